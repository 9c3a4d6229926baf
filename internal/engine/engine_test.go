package engine

import (
	"context"
	"errors"
	"io"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/verte-zerg/tuisplit/internal/model"
	"github.com/verte-zerg/tuisplit/internal/store"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Unix(1_700_000_000, 0)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

func testLogger() logrus.FieldLogger {
	log := logrus.New()
	log.SetOutput(io.Discard)
	return log
}

func openTestStore(t *testing.T) *store.Store {
	t.Helper()
	st, err := store.Open(filepath.Join(t.TempDir(), "tuisplit.db"))
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() {
		_ = st.Close()
	})
	return st
}

func createGroup(t *testing.T, st *store.Store, splits ...string) int64 {
	t.Helper()
	id, err := st.CreateGroup(context.Background(), "Any%", splits)
	if err != nil {
		t.Fatalf("create group: %v", err)
	}
	return id
}

func startEngine(t *testing.T, st Store, cfg model.TimerConfig, clock *fakeClock) *Engine {
	t.Helper()
	e := New(testLogger(), st, cfg, WithClock(clock))
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		if err := e.Run(ctx); err != nil {
			t.Errorf("run: %v", err)
		}
	}()
	t.Cleanup(func() {
		cancel()
		<-done
	})
	return e
}

func waitFor(t *testing.T, e *Engine, what string, cond func(Snapshot) bool) Snapshot {
	t.Helper()
	deadline := time.Now().Add(3 * time.Second)
	for {
		snap := e.Snapshot()
		if cond(snap) {
			return snap
		}
		if time.Now().After(deadline) {
			t.Fatalf("timed out waiting for %s; last snapshot: %+v", what, snap)
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func waitLoaded(t *testing.T, e *Engine, splits int) Snapshot {
	t.Helper()
	return waitFor(t, e, "group load", func(s Snapshot) bool {
		return len(s.Templates) == splits
	})
}

func mustAct(t *testing.T, err error) {
	t.Helper()
	if err != nil {
		t.Fatalf("action: %v", err)
	}
}

func value(t *testing.T, v *int64) int64 {
	t.Helper()
	if v == nil {
		t.Fatalf("expected value, got nil")
	}
	return *v
}

func TestRunLifecycleOnEmptyHistory(t *testing.T) {
	st := openTestStore(t)
	gid := createGroup(t, st, "a", "b", "c")
	clock := newFakeClock()
	e := startEngine(t, st, model.TimerConfig{GroupID: gid}, clock)
	ctx := context.Background()
	waitLoaded(t, e, 3)

	mustAct(t, e.Primary(ctx))
	waitFor(t, e, "running", func(s Snapshot) bool { return s.Running })

	clock.Advance(99 * time.Second)
	mustAct(t, e.Primary(ctx))
	snap := waitFor(t, e, "first split", func(s Snapshot) bool { return s.Current[0] != nil })
	if value(t, snap.Current[0]) != 99000 {
		t.Fatalf("unexpected split time %d", *snap.Current[0])
	}
	if snap.Status[0] != model.StatusGold {
		t.Fatalf("expected gold without history, got %s", snap.Status[0])
	}

	clock.Advance(time.Second)
	mustAct(t, e.Primary(ctx))
	clock.Advance(time.Second)
	mustAct(t, e.Primary(ctx))
	snap = waitFor(t, e, "saved run", func(s Snapshot) bool {
		return s.State == StateFinished && s.LastRunID != 0 && !s.Saving
	})
	if snap.ElapsedMs != 101000 {
		t.Fatalf("expected frozen elapsed 101000, got %d", snap.ElapsedMs)
	}
	if !snap.LastRunCompleted {
		t.Fatalf("expected last run completed flag")
	}

	totals, err := st.GetTotalsByRun(ctx, gid)
	if err != nil {
		t.Fatalf("totals: %v", err)
	}
	if len(totals) != 1 || totals[0].TotalMs != 101000 {
		t.Fatalf("unexpected totals %+v", totals)
	}
}

func TestPendingBaselineAppliedOnNextStart(t *testing.T) {
	st := openTestStore(t)
	gid := createGroup(t, st, "a", "b", "c")
	if _, err := st.FinalizeRun(context.Background(), gid, []int64{1000, 2000, 3000}, time.Now()); err != nil {
		t.Fatalf("seed run: %v", err)
	}
	clock := newFakeClock()
	e := startEngine(t, st, model.TimerConfig{GroupID: gid}, clock)
	ctx := context.Background()
	waitFor(t, e, "baseline", func(s Snapshot) bool { return s.HasAnyCompleteRun })

	mustAct(t, e.Primary(ctx))
	for i := 0; i < 3; i++ {
		clock.Advance(900 * time.Millisecond)
		mustAct(t, e.Primary(ctx))
	}
	snap := waitFor(t, e, "saved run", func(s Snapshot) bool {
		return s.State == StateFinished && s.LastRunID != 0 && !s.Saving
	})
	want := []int64{1000, 2000, 3000}
	for i := range want {
		if snap.BestCumulative[i] != want[i] {
			t.Fatalf("baseline changed before next start: %v", snap.BestCumulative)
		}
	}
	for i, diff := range []int64{-100, -200, -300} {
		if value(t, snap.CumulativeDiff[i]) != diff {
			t.Fatalf("index %d: expected diff %d, got %d", i, diff, *snap.CumulativeDiff[i])
		}
	}

	mustAct(t, e.Primary(ctx))
	snap = waitFor(t, e, "next run", func(s Snapshot) bool { return s.Running })
	for i, ms := range []int64{900, 1800, 2700} {
		if snap.BestCumulative[i] != ms {
			t.Fatalf("expected new baseline after start, got %v", snap.BestCumulative)
		}
	}
	for i, cur := range snap.Current {
		if cur != nil {
			t.Fatalf("expected cleared split %d", i)
		}
	}
}

func TestSlowerRunKeepsBaseline(t *testing.T) {
	st := openTestStore(t)
	gid := createGroup(t, st, "a", "b")
	if _, err := st.FinalizeRun(context.Background(), gid, []int64{1000, 2000}, time.Now()); err != nil {
		t.Fatalf("seed run: %v", err)
	}
	clock := newFakeClock()
	e := startEngine(t, st, model.TimerConfig{GroupID: gid}, clock)
	ctx := context.Background()
	waitFor(t, e, "baseline", func(s Snapshot) bool { return s.HasAnyCompleteRun })

	mustAct(t, e.Primary(ctx))
	clock.Advance(1500 * time.Millisecond)
	mustAct(t, e.Primary(ctx))
	clock.Advance(1500 * time.Millisecond)
	mustAct(t, e.Primary(ctx))
	snap := waitFor(t, e, "saved run", func(s Snapshot) bool { return s.LastRunID != 0 && !s.Saving })
	if snap.BestCumulative[1] != 2000 || snap.PersonalBestMs != 2000 {
		t.Fatalf("unexpected baseline %v pb=%d", snap.BestCumulative, snap.PersonalBestMs)
	}
	if snap.Status[1] != model.StatusLossLosing {
		t.Fatalf("expected loss-losing, got %s", snap.Status[1])
	}
}

func TestPauseResumeDoesNotCountPause(t *testing.T) {
	st := openTestStore(t)
	gid := createGroup(t, st, "a", "b")
	clock := newFakeClock()
	e := startEngine(t, st, model.TimerConfig{GroupID: gid}, clock)
	ctx := context.Background()
	waitLoaded(t, e, 2)

	mustAct(t, e.Primary(ctx))
	clock.Advance(5 * time.Second)
	mustAct(t, e.TogglePause(ctx))
	snap := waitFor(t, e, "paused", func(s Snapshot) bool { return s.Paused })
	if snap.ElapsedMs != 5000 {
		t.Fatalf("expected 5000 at pause, got %d", snap.ElapsedMs)
	}

	clock.Advance(2 * time.Second)
	mustAct(t, e.TogglePause(ctx))
	snap = waitFor(t, e, "resumed", func(s Snapshot) bool { return s.Running })
	if snap.ElapsedMs != 5000 {
		t.Fatalf("expected elapsed to continue from 5000, got %d", snap.ElapsedMs)
	}

	clock.Advance(500 * time.Millisecond)
	mustAct(t, e.Primary(ctx))
	snap = waitFor(t, e, "split", func(s Snapshot) bool { return s.Current[0] != nil })
	if *snap.Current[0] != 5500 {
		t.Fatalf("expected split at 5500, got %d", *snap.Current[0])
	}
}

func TestPrimaryResumesPausedRun(t *testing.T) {
	st := openTestStore(t)
	gid := createGroup(t, st, "a")
	clock := newFakeClock()
	e := startEngine(t, st, model.TimerConfig{GroupID: gid}, clock)
	ctx := context.Background()
	waitLoaded(t, e, 1)

	mustAct(t, e.Primary(ctx))
	mustAct(t, e.TogglePause(ctx))
	mustAct(t, e.Primary(ctx))
	snap := waitFor(t, e, "running", func(s Snapshot) bool { return s.Running })
	if snap.Current[0] != nil {
		t.Fatalf("resume must not record a split")
	}
}

func TestResetTwiceMatchesResetOnce(t *testing.T) {
	st := openTestStore(t)
	gid := createGroup(t, st, "a", "b", "c")
	clock := newFakeClock()
	e := startEngine(t, st, model.TimerConfig{GroupID: gid}, clock)
	ctx := context.Background()
	waitLoaded(t, e, 3)

	mustAct(t, e.Primary(ctx))
	clock.Advance(time.Second)
	mustAct(t, e.Primary(ctx))

	check := func(s Snapshot) {
		t.Helper()
		if s.State != StateIdle || s.ElapsedMs != 0 {
			t.Fatalf("expected idle zeroed state, got %s %d", s.State, s.ElapsedMs)
		}
		if len(s.Current) != 3 {
			t.Fatalf("expected 3 current entries, got %d", len(s.Current))
		}
		for i, cur := range s.Current {
			if cur != nil {
				t.Fatalf("expected cleared split %d", i)
			}
		}
	}
	mustAct(t, e.Reset(ctx))
	check(waitFor(t, e, "idle", func(s Snapshot) bool { return s.State == StateIdle }))
	mustAct(t, e.Reset(ctx))
	check(waitFor(t, e, "idle", func(s Snapshot) bool { return s.State == StateIdle }))

	totals, err := st.GetTotalsByRun(ctx, gid)
	if err != nil {
		t.Fatalf("totals: %v", err)
	}
	if len(totals) != 0 {
		t.Fatalf("reset must not persist progress, got %+v", totals)
	}
}

func TestSelectMissingGroupDisablesPrimary(t *testing.T) {
	st := openTestStore(t)
	gid := createGroup(t, st, "a", "b")
	clock := newFakeClock()
	e := startEngine(t, st, model.TimerConfig{GroupID: gid}, clock)
	ctx := context.Background()
	waitLoaded(t, e, 2)

	mustAct(t, e.SelectGroup(ctx, 999))
	snap := waitFor(t, e, "placeholder", func(s Snapshot) bool { return s.GroupName == "Group 999" })
	if len(snap.Templates) != 0 || snap.Err != "" {
		t.Fatalf("unexpected snapshot %+v", snap)
	}
	mustAct(t, e.Primary(ctx))
	if s := e.Snapshot(); s.State != StateIdle {
		t.Fatalf("expected primary to be a no-op, got %s", s.State)
	}

	mustAct(t, e.SelectGroup(ctx, gid))
	snap = waitLoaded(t, e, 2)
	if snap.GroupName != "Any%" || snap.GroupID != gid {
		t.Fatalf("unexpected group after switch: %+v", snap)
	}
}

func TestSelectGroupDiscardsRunningRun(t *testing.T) {
	st := openTestStore(t)
	first := createGroup(t, st, "a", "b")
	second, err := st.CreateGroup(context.Background(), "Glitchless", []string{"x", "y", "z"})
	if err != nil {
		t.Fatalf("create group: %v", err)
	}
	clock := newFakeClock()
	e := startEngine(t, st, model.TimerConfig{GroupID: first}, clock)
	ctx := context.Background()
	waitLoaded(t, e, 2)

	mustAct(t, e.Primary(ctx))
	mustAct(t, e.SelectGroup(ctx, second))
	snap := waitLoaded(t, e, 3)
	if snap.State != StateIdle || snap.GroupName != "Glitchless" {
		t.Fatalf("unexpected state after switch: %s %q", snap.State, snap.GroupName)
	}
}

func TestBestSegmentsFollowSavedRuns(t *testing.T) {
	st := openTestStore(t)
	gid := createGroup(t, st, "a", "b")
	clock := newFakeClock()
	e := startEngine(t, st, model.TimerConfig{GroupID: gid}, clock)
	waitLoaded(t, e, 2)

	if _, err := st.FinalizeRun(context.Background(), gid, []int64{700, 1500}, time.Now()); err != nil {
		t.Fatalf("finalize: %v", err)
	}
	snap := waitFor(t, e, "best segments", func(s Snapshot) bool {
		return len(s.BestSegments) == 2 && s.BestSegments[1] != nil
	})
	if *snap.BestSegments[0] != 700 || *snap.BestSegments[1] != 800 {
		t.Fatalf("unexpected best segments %d %d", *snap.BestSegments[0], *snap.BestSegments[1])
	}
	if snap.SumOfBestMs != 1500 || !snap.SumOfBestComplete {
		t.Fatalf("unexpected sum of best %d", snap.SumOfBestMs)
	}
}

func TestDebounceDropsRepeatedPrimary(t *testing.T) {
	st := openTestStore(t)
	gid := createGroup(t, st, "a", "b")
	clock := newFakeClock()
	e := startEngine(t, st, model.TimerConfig{GroupID: gid, Debounce: time.Second}, clock)
	ctx := context.Background()
	waitLoaded(t, e, 2)

	mustAct(t, e.Primary(ctx))
	mustAct(t, e.Primary(ctx))
	snap := waitFor(t, e, "running", func(s Snapshot) bool { return s.Running })
	if snap.Current[0] != nil {
		t.Fatalf("expected repeated trigger to be dropped")
	}

	clock.Advance(time.Second)
	mustAct(t, e.Primary(ctx))
	snap = waitFor(t, e, "split", func(s Snapshot) bool { return s.Current[0] != nil })
	if *snap.Current[0] != 1000 {
		t.Fatalf("unexpected split %d", *snap.Current[0])
	}
}

func TestConcurrentPrimarySerialized(t *testing.T) {
	st := openTestStore(t)
	gid := createGroup(t, st, "a", "b", "c", "d", "e")
	clock := newFakeClock()
	e := startEngine(t, st, model.TimerConfig{GroupID: gid}, clock)
	ctx := context.Background()
	waitLoaded(t, e, 5)
	mustAct(t, e.Primary(ctx))

	var wg sync.WaitGroup
	for i := 0; i < 3; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := e.Primary(ctx); err != nil {
				t.Errorf("primary: %v", err)
			}
		}()
	}
	wg.Wait()
	snap := waitFor(t, e, "three splits", func(s Snapshot) bool { return s.Current[2] != nil })
	if snap.Current[3] != nil {
		t.Fatalf("expected exactly three splits")
	}
}

type failingStore struct {
	*store.Store
}

var errDiskFull = errors.New("disk full")

func (failingStore) FinalizeRun(context.Context, int64, []int64, time.Time) (int64, error) {
	return 0, errDiskFull
}

func TestSaveFailureIsReported(t *testing.T) {
	st := openTestStore(t)
	gid := createGroup(t, st, "a")
	clock := newFakeClock()
	e := startEngine(t, failingStore{st}, model.TimerConfig{GroupID: gid, SaveRetries: 1}, clock)
	ctx := context.Background()
	waitLoaded(t, e, 1)

	mustAct(t, e.Primary(ctx))
	clock.Advance(time.Second)
	mustAct(t, e.Primary(ctx))
	snap := waitFor(t, e, "save failure", func(s Snapshot) bool { return s.SaveFailures == 1 })
	if snap.Err == "" || snap.Saving || snap.State != StateFinished {
		t.Fatalf("unexpected snapshot after failure: %+v", snap)
	}
}

func TestActionsAfterStop(t *testing.T) {
	st := openTestStore(t)
	gid := createGroup(t, st, "a")
	e := New(testLogger(), st, model.TimerConfig{GroupID: gid})
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = e.Run(ctx)
	}()
	cancel()
	<-done
	if err := e.Primary(context.Background()); !errors.Is(err, ErrStopped) {
		t.Fatalf("expected ErrStopped, got %v", err)
	}
}

func TestSubscribeReceivesUpdates(t *testing.T) {
	st := openTestStore(t)
	gid := createGroup(t, st, "a", "b")
	clock := newFakeClock()
	e := startEngine(t, st, model.TimerConfig{GroupID: gid}, clock)
	updates, cancel := e.Subscribe()
	defer cancel()
	waitLoaded(t, e, 2)

	mustAct(t, e.Primary(context.Background()))
	deadline := time.After(3 * time.Second)
	for {
		select {
		case snap := <-updates:
			if snap.Running {
				return
			}
		case <-deadline:
			t.Fatalf("no running snapshot received")
		}
	}
}

type gatedStore struct {
	*store.Store
	entered chan struct{}
	release chan struct{}
}

func (g gatedStore) FinalizeRun(ctx context.Context, groupID int64, cumulative []int64, recordedAt time.Time) (int64, error) {
	close(g.entered)
	<-g.release
	return g.Store.FinalizeRun(ctx, groupID, cumulative, recordedAt)
}

func TestShutdownWaitsForFinishedRun(t *testing.T) {
	st := openTestStore(t)
	gid := createGroup(t, st, "a")
	clock := newFakeClock()
	gated := gatedStore{Store: st, entered: make(chan struct{}), release: make(chan struct{})}
	e := New(testLogger(), gated, model.TimerConfig{GroupID: gid}, WithClock(clock))
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = e.Run(ctx)
	}()
	waitLoaded(t, e, 1)

	mustAct(t, e.Primary(context.Background()))
	clock.Advance(42 * time.Second)
	mustAct(t, e.Primary(context.Background()))

	select {
	case <-gated.entered:
	case <-time.After(3 * time.Second):
		t.Fatalf("save never started")
	}
	cancel()
	close(gated.release)
	select {
	case <-done:
	case <-time.After(3 * time.Second):
		t.Fatalf("engine did not stop")
	}

	totals, err := st.GetTotalsByRun(context.Background(), gid)
	if err != nil {
		t.Fatalf("totals: %v", err)
	}
	if len(totals) != 1 || totals[0].TotalMs != 42000 {
		t.Fatalf("expected saved run of 42000ms, got %+v", totals)
	}
	if snap := e.Snapshot(); snap.Saving || snap.SaveFailures != 0 {
		t.Fatalf("unexpected snapshot after shutdown: %+v", snap)
	}
}
