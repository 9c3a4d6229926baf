package tui

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/verte-zerg/tuisplit/internal/engine"
	"github.com/verte-zerg/tuisplit/internal/model"
)

type recordingController struct {
	mu    sync.Mutex
	calls []string
	// gate holds the first Primary call until closed.
	gate chan struct{}
	err  error
}

func (c *recordingController) record(name string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.calls = append(c.calls, name)
	return c.err
}

func (c *recordingController) Primary(context.Context) error {
	c.mu.Lock()
	first := len(c.calls) == 0
	c.mu.Unlock()
	if first && c.gate != nil {
		<-c.gate
	}
	return c.record("primary")
}

func (c *recordingController) TogglePause(context.Context) error {
	return c.record("pause")
}

func (c *recordingController) Reset(context.Context) error {
	return c.record("reset")
}

func (c *recordingController) SelectGroup(context.Context, int64) error {
	return c.record("group")
}

func (c *recordingController) Subscribe() (<-chan engine.Snapshot, func()) {
	return make(chan engine.Snapshot), func() {}
}

func (c *recordingController) recorded() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]string(nil), c.calls...)
}

func runes(s string) tea.KeyMsg {
	return tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune(s)}
}

func TestActionsRunInKeyOrder(t *testing.T) {
	ctrl := &recordingController{gate: make(chan struct{})}
	m := NewModel(ctrl, NewKeyMap(model.KeyBindings{}), []model.Group{{ID: 1}, {ID: 2}})
	defer m.Close()

	m.Update(tea.KeyMsg{Type: tea.KeyEnter})
	m.Update(runes("p"))
	m.Update(runes("g"))
	m.Update(runes("r"))
	// The first action is still blocked; later presses must wait behind it.
	close(ctrl.gate)

	want := []string{"primary", "pause", "group", "reset"}
	deadline := time.Now().Add(3 * time.Second)
	for {
		got := ctrl.recorded()
		if len(got) == len(want) {
			for i := range want {
				if got[i] != want[i] {
					t.Fatalf("expected %v, got %v", want, got)
				}
			}
			return
		}
		if time.Now().After(deadline) {
			t.Fatalf("timed out; recorded %v", got)
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func TestActionErrorClearsOnSuccess(t *testing.T) {
	ctrl := &recordingController{err: engine.ErrStopped}
	m := NewModel(ctrl, NewKeyMap(model.KeyBindings{}), nil)
	defer m.Close()

	m.Update(runes("p"))
	msg := m.waitForResult()()
	m.Update(msg)
	if m.errorLine() != engine.ErrStopped.Error() {
		t.Fatalf("expected action error, got %q", m.errorLine())
	}

	m.Update(actionDoneMsg{})
	if got := m.errorLine(); got != "" {
		t.Fatalf("expected error cleared, got %q", got)
	}
}

func TestActionQueueFull(t *testing.T) {
	m := &Model{pending: make(chan func(context.Context) error, 1)}
	m.act(func(context.Context) error { return nil })
	m.act(func(context.Context) error { return errors.New("unreachable") })
	if m.lastErr != errActionQueueFull.Error() {
		t.Fatalf("expected queue full error, got %q", m.lastErr)
	}
}
