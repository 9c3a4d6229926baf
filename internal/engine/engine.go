// Package engine runs the split timer state machine.
package engine

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/time/rate"

	"github.com/verte-zerg/tuisplit/internal/baseline"
	"github.com/verte-zerg/tuisplit/internal/model"
	"github.com/verte-zerg/tuisplit/internal/splits"
	"github.com/verte-zerg/tuisplit/internal/store"
)

// ErrStopped is returned by actions once the engine loop has exited.
var ErrStopped = errors.New("engine stopped")

// DefaultTick is the elapsed refresh interval.
const DefaultTick = 50 * time.Millisecond

// drainTimeout bounds how long Run waits for pending saves after ctx is done.
const drainTimeout = 5 * time.Second

// Store is the persistence used by the engine.
type Store interface {
	baseline.History
	GetGroup(ctx context.Context, id int64) (model.Group, error)
	GetTemplatesForGroup(ctx context.Context, groupID int64) ([]model.SplitTemplate, error)
	FinalizeRun(ctx context.Context, groupID int64, cumulative []int64, recordedAt time.Time) (int64, error)
	WatchBestSegments(ctx context.Context, groupID int64) <-chan store.BestSegmentsUpdate
}

// Clock supplies the current time. Elapsed time is always derived from it.
type Clock interface {
	Now() time.Time
}

type systemClock struct{}

func (systemClock) Now() time.Time { return time.Now() }

// Option configures an Engine.
type Option func(*Engine)

// WithClock replaces the system clock.
func WithClock(c Clock) Option {
	return func(e *Engine) {
		e.clock = c
	}
}

type actionKind int

const (
	actionPrimary actionKind = iota
	actionTogglePause
	actionReset
	actionSelectGroup
)

type action struct {
	kind    actionKind
	groupID int64
	done    chan struct{}
}

type job func(ctx context.Context) event

type event interface {
	apply(e *Engine)
}

// Engine owns all timer state. Actions are serialized through Run; observers read snapshots.
type Engine struct {
	store   Store
	calc    *baseline.Calculator
	clock   Clock
	log     logrus.FieldLogger
	tick    time.Duration
	retries int
	limiter *rate.Limiter

	actions chan action
	events  chan event
	jobs    chan job
	stopped chan struct{}

	mu   sync.RWMutex
	snap Snapshot
	subs map[chan Snapshot]struct{}

	// Fields below are owned by the Run goroutine.
	runCtx       context.Context
	queue        []job
	state        State
	epoch        uint64
	watchCancel  context.CancelFunc
	groupID      int64
	groupName    string
	templates    []model.SplitTemplate
	best         baseline.Best
	pending      *baseline.Best
	segments     []model.BestSegment
	current      []*int64
	startRef     time.Time
	elapsed      time.Duration
	ticker       *time.Ticker
	saving       int
	lastRunID    int64
	saveFailures int
	errMsg       string
}

// New builds an engine for the configured initial group. Call Run to start it.
func New(log logrus.FieldLogger, st Store, cfg model.TimerConfig, opts ...Option) *Engine {
	tick := cfg.Tick
	if tick <= 0 {
		tick = DefaultTick
	}
	e := &Engine{
		store:   st,
		calc:    baseline.NewCalculator(st),
		clock:   systemClock{},
		log:     log.WithField("component", "engine"),
		tick:    tick,
		retries: cfg.SaveRetries,
		actions: make(chan action),
		events:  make(chan event),
		jobs:    make(chan job),
		stopped: make(chan struct{}),
		subs:    map[chan Snapshot]struct{}{},
		groupID: cfg.GroupID,
	}
	if cfg.Debounce > 0 {
		e.limiter = rate.NewLimiter(rate.Every(cfg.Debounce), 1)
	}
	for _, opt := range opts {
		opt(e)
	}
	e.snap = Snapshot{GroupID: cfg.GroupID}
	return e
}

// Run processes actions until ctx is done.
func (e *Engine) Run(ctx context.Context) error {
	defer close(e.stopped)
	e.runCtx = ctx

	// Jobs outlive ctx so a finished run is still written during shutdown.
	workCtx, cancelWork := context.WithCancel(context.WithoutCancel(ctx))
	defer cancelWork()
	workDone := make(chan struct{})
	go func() {
		defer close(workDone)
		e.work(workCtx)
	}()

	e.selectGroup(e.groupID)
	e.publish()

	for {
		var (
			jobs  chan job
			next  job
			ticks <-chan time.Time
		)
		if len(e.queue) > 0 {
			jobs = e.jobs
			next = e.queue[0]
		}
		if e.ticker != nil {
			ticks = e.ticker.C
		}

		select {
		case <-ctx.Done():
			e.stopTicker()
			if e.watchCancel != nil {
				e.watchCancel()
			}
			e.drain(cancelWork, workDone)
			return nil
		case a := <-e.actions:
			e.handle(a)
			// Callers read Snapshot right after an action returns.
			e.publish()
			close(a.done)
			continue
		case jobs <- next:
			e.queue = e.queue[1:]
			continue
		case ev := <-e.events:
			ev.apply(e)
		case <-ticks:
		}
		e.publish()
	}
}

// Primary starts, splits, resumes, or restarts depending on the state.
func (e *Engine) Primary(ctx context.Context) error {
	return e.send(ctx, action{kind: actionPrimary})
}

// TogglePause pauses a running run or resumes a paused one.
func (e *Engine) TogglePause(ctx context.Context) error {
	return e.send(ctx, action{kind: actionTogglePause})
}

// Reset discards the in-memory run and reloads the baseline.
func (e *Engine) Reset(ctx context.Context) error {
	return e.send(ctx, action{kind: actionReset})
}

// SelectGroup switches the active group.
func (e *Engine) SelectGroup(ctx context.Context, groupID int64) error {
	return e.send(ctx, action{kind: actionSelectGroup, groupID: groupID})
}

func (e *Engine) send(ctx context.Context, a action) error {
	a.done = make(chan struct{})
	select {
	case e.actions <- a:
	case <-e.stopped:
		return ErrStopped
	case <-ctx.Done():
		return ctx.Err()
	}
	select {
	case <-a.done:
		return nil
	case <-e.stopped:
		return ErrStopped
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Snapshot returns the latest published state.
func (e *Engine) Snapshot() Snapshot {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.snap
}

// Subscribe returns a channel receiving every published snapshot. Slow readers only see the
// newest one. The returned func cancels the subscription.
func (e *Engine) Subscribe() (<-chan Snapshot, func()) {
	ch := make(chan Snapshot, 1)
	e.mu.Lock()
	e.subs[ch] = struct{}{}
	ch <- e.snap
	e.mu.Unlock()
	var once sync.Once
	return ch, func() {
		once.Do(func() {
			e.mu.Lock()
			delete(e.subs, ch)
			e.mu.Unlock()
		})
	}
}

func (e *Engine) handle(a action) {
	switch a.kind {
	case actionPrimary:
		if e.limiter != nil && !e.limiter.AllowN(e.clock.Now(), 1) {
			e.log.Debug("primary action debounced")
			return
		}
		e.primary()
	case actionTogglePause:
		switch e.state {
		case StateRunning:
			e.pause()
		case StatePaused:
			e.resume()
		}
	case actionReset:
		e.reset()
	case actionSelectGroup:
		e.selectGroup(a.groupID)
	}
}

func (e *Engine) primary() {
	switch e.state {
	case StateIdle, StateFinished:
		e.beginRun()
	case StatePaused:
		e.resume()
	case StateRunning:
		e.recordSplit()
	}
}

func (e *Engine) beginRun() {
	if len(e.templates) == 0 {
		return
	}
	if e.pending != nil {
		e.best = *e.pending
		e.pending = nil
	}
	e.current = make([]*int64, len(e.templates))
	e.elapsed = 0
	e.startRef = e.clock.Now()
	e.state = StateRunning
	e.startTicker()
}

func (e *Engine) recordSplit() {
	now := e.clock.Now()
	idx := splits.NextUnset(e.current)
	if idx >= len(e.current) {
		e.finishRun(now)
		return
	}
	ms := now.Sub(e.startRef).Milliseconds()
	e.current[idx] = &ms
	if splits.Complete(e.current) {
		e.finishRun(now)
	}
}

func (e *Engine) finishRun(now time.Time) {
	e.stopTicker()
	e.elapsed = now.Sub(e.startRef)
	e.state = StateFinished
	e.saving++
	e.enqueue(e.finalizeJob(e.epoch, e.groupID, splits.Values(e.current), now))
}

func (e *Engine) pause() {
	e.elapsed = e.clock.Now().Sub(e.startRef)
	e.stopTicker()
	e.state = StatePaused
}

func (e *Engine) resume() {
	e.startRef = e.clock.Now().Add(-e.elapsed)
	e.state = StateRunning
	e.startTicker()
}

func (e *Engine) reset() {
	e.stopTicker()
	e.state = StateIdle
	e.elapsed = 0
	e.current = nil
	e.pending = nil
	e.enqueue(e.baselineJob(e.epoch, e.groupID, len(e.templates)))
}

func (e *Engine) selectGroup(groupID int64) {
	e.stopTicker()
	if e.watchCancel != nil {
		e.watchCancel()
		e.watchCancel = nil
	}
	e.epoch++
	e.groupID = groupID
	e.groupName = ""
	e.templates = nil
	e.segments = nil
	e.best = baseline.Best{}
	e.pending = nil
	e.current = nil
	e.elapsed = 0
	e.state = StateIdle
	e.errMsg = ""

	e.enqueue(e.loadGroupJob(e.epoch, groupID))
	e.watch(e.epoch, groupID)
}

func (e *Engine) watch(epoch uint64, groupID int64) {
	ctx, cancel := context.WithCancel(e.runCtx)
	e.watchCancel = cancel
	updates := e.store.WatchBestSegments(ctx, groupID)
	go func() {
		for upd := range updates {
			select {
			case e.events <- segmentsEvent{epoch: epoch, update: upd}:
			case <-ctx.Done():
				return
			}
		}
	}()
}

func (e *Engine) startTicker() {
	e.stopTicker()
	e.ticker = time.NewTicker(e.tick)
}

func (e *Engine) stopTicker() {
	if e.ticker != nil {
		e.ticker.Stop()
		e.ticker = nil
	}
}

func (e *Engine) enqueue(j job) {
	e.queue = append(e.queue, j)
}

// work runs storage jobs one at a time so a finalize write always precedes later reads.
func (e *Engine) work(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case j := <-e.jobs:
			ev := j(ctx)
			select {
			case e.events <- ev:
			case <-ctx.Done():
				return
			}
		}
	}
}

// drain keeps feeding the worker until every finished run is saved or drainTimeout passes.
func (e *Engine) drain(cancelWork context.CancelFunc, workDone <-chan struct{}) {
	timer := time.NewTimer(drainTimeout)
	defer timer.Stop()
	for e.saving > 0 {
		var (
			jobs chan job
			next job
		)
		if len(e.queue) > 0 {
			jobs = e.jobs
			next = e.queue[0]
		}
		select {
		case jobs <- next:
			e.queue = e.queue[1:]
		case ev := <-e.events:
			ev.apply(e)
		case <-timer.C:
			e.saveFailures += e.saving
			e.log.WithField("runs", e.saving).Error("shutdown before runs were saved")
			e.saving = 0
		}
	}
	e.queue = nil
	cancelWork()
	<-workDone
	e.publish()
}

func (e *Engine) setErr(msg string, err error) {
	e.errMsg = fmt.Sprintf("%s: %v", msg, err)
	e.log.WithError(err).Warn(msg)
}

func (e *Engine) elapsedNow() time.Duration {
	if e.state == StateRunning {
		return e.clock.Now().Sub(e.startRef)
	}
	return e.elapsed
}

func (e *Engine) publish() {
	n := len(e.templates)
	current := make([]*int64, n)
	copy(current, e.current)
	bestCumulative := make([]int64, n)
	copy(bestCumulative, e.best.Cumulative)
	bestSegments := baseline.Align(e.segments, n)
	cmp := splits.Compare(bestCumulative, current, bestSegments, e.best.HasAnyCompleteRun)
	sob, sobComplete := splits.SumOfBest(bestSegments)

	snap := Snapshot{
		State:             e.state,
		Running:           e.state == StateRunning,
		Paused:            e.state == StatePaused,
		ElapsedMs:         e.elapsedNow().Milliseconds(),
		GroupID:           e.groupID,
		GroupName:         e.groupName,
		Templates:         e.templates,
		BestCumulative:    bestCumulative,
		BestSegments:      bestSegments,
		Current:           splits.Clone(current),
		CumulativeDiff:    cmp.CumulativeDiff,
		Status:            cmp.Status,
		Items:             splits.Items(e.templates, bestCumulative, current, bestSegments, cmp),
		HasAnyCompleteRun: e.best.HasAnyCompleteRun,
		LastRunCompleted:  e.state == StateFinished,
		SumOfBestMs:       sob,
		SumOfBestComplete: sobComplete,
		Saving:            e.saving > 0,
		LastRunID:         e.lastRunID,
		SaveFailures:      e.saveFailures,
		Err:               e.errMsg,
	}
	if e.best.HasAnyCompleteRun && n > 0 {
		snap.PersonalBestMs = bestCumulative[n-1]
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	e.snap = snap
	for ch := range e.subs {
		select {
		case ch <- snap:
		default:
			select {
			case <-ch:
			default:
			}
			select {
			case ch <- snap:
			default:
			}
		}
	}
}
