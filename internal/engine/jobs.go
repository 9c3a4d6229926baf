package engine

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/verte-zerg/tuisplit/internal/baseline"
	"github.com/verte-zerg/tuisplit/internal/model"
	"github.com/verte-zerg/tuisplit/internal/store"
)

const retryBackoff = 100 * time.Millisecond

type groupLoadedEvent struct {
	epoch     uint64
	groupID   int64
	name      string
	templates []model.SplitTemplate
	best      baseline.Best
	err       error
}

func (e *Engine) loadGroupJob(epoch uint64, groupID int64) job {
	return func(ctx context.Context) event {
		ev := groupLoadedEvent{epoch: epoch, groupID: groupID}
		group, err := e.store.GetGroup(ctx, groupID)
		if err != nil {
			ev.name = fmt.Sprintf("Group %d", groupID)
			if !errors.Is(err, store.ErrNotFound) {
				ev.err = fmt.Errorf("load group: %w", err)
			}
			return ev
		}
		ev.name = group.Name
		ev.templates, err = e.store.GetTemplatesForGroup(ctx, groupID)
		if err != nil {
			ev.templates = nil
			ev.err = fmt.Errorf("load templates: %w", err)
			return ev
		}
		ev.best, err = e.calc.BestCumulative(ctx, groupID, len(ev.templates))
		if err != nil {
			ev.err = err
		}
		return ev
	}
}

func (ev groupLoadedEvent) apply(e *Engine) {
	if ev.epoch != e.epoch {
		return
	}
	e.groupName = ev.name
	e.templates = ev.templates
	e.best = ev.best
	if ev.err != nil {
		e.setErr("group load failed", ev.err)
		return
	}
	e.log.WithFields(logrus.Fields{
		"group":  ev.groupID,
		"splits": len(ev.templates),
	}).Debug("group loaded")
}

type baselineEvent struct {
	epoch uint64
	best  baseline.Best
	err   error
}

func (e *Engine) baselineJob(epoch uint64, groupID int64, templateCount int) job {
	return func(ctx context.Context) event {
		best, err := e.calc.BestCumulative(ctx, groupID, templateCount)
		return baselineEvent{epoch: epoch, best: best, err: err}
	}
}

func (ev baselineEvent) apply(e *Engine) {
	if ev.epoch != e.epoch {
		return
	}
	if len(ev.best.Cumulative) != len(e.templates) {
		// Templates changed since the job was queued; a group load carries its own baseline.
		return
	}
	e.best = ev.best
	if ev.err != nil {
		e.setErr("baseline recompute failed", ev.err)
		return
	}
	e.errMsg = ""
}

type finalizedEvent struct {
	epoch    uint64
	runID    int64
	attempts int
	err      error
	best     baseline.Best
	bestErr  error
}

func (e *Engine) finalizeJob(epoch uint64, groupID int64, cumulative []int64, recordedAt time.Time) job {
	return func(ctx context.Context) event {
		ev := finalizedEvent{epoch: epoch}
		for attempt := 0; attempt <= e.retries; attempt++ {
			ev.attempts = attempt + 1
			ev.runID, ev.err = e.store.FinalizeRun(ctx, groupID, cumulative, recordedAt)
			if ev.err == nil {
				break
			}
			e.log.WithError(ev.err).WithField("attempt", ev.attempts).Warn("saving run failed")
			if attempt == e.retries {
				break
			}
			select {
			case <-time.After(retryBackoff * time.Duration(attempt+1)):
			case <-ctx.Done():
				return ev
			}
		}
		if ev.err != nil {
			return ev
		}
		ev.best, ev.bestErr = e.calc.BestCumulative(ctx, groupID, len(cumulative))
		return ev
	}
}

func (ev finalizedEvent) apply(e *Engine) {
	e.saving--
	if ev.err != nil {
		e.saveFailures++
		e.setErr(fmt.Sprintf("saving run failed after %d attempts", ev.attempts), ev.err)
		return
	}
	e.lastRunID = ev.runID
	e.log.WithField("run", ev.runID).Info("run saved")
	if ev.epoch != e.epoch {
		return
	}
	if ev.bestErr != nil {
		e.setErr("baseline recompute failed", ev.bestErr)
		return
	}
	if ev.best.RunID == ev.runID && e.state == StateFinished {
		// Keep diffs of the finished run against the previous record until the next start.
		best := ev.best
		e.pending = &best
		return
	}
	e.best = ev.best
	e.pending = nil
}

type segmentsEvent struct {
	epoch  uint64
	update store.BestSegmentsUpdate
}

func (ev segmentsEvent) apply(e *Engine) {
	if ev.epoch != e.epoch {
		return
	}
	if ev.update.Err != nil {
		e.setErr("best segment refresh failed", ev.update.Err)
		return
	}
	e.segments = ev.update.Segments
}
