package baseline

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/verte-zerg/tuisplit/internal/model"
	"github.com/verte-zerg/tuisplit/internal/store"
)

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

func seedHistory(t *testing.T, st *store.Store) (groupID, r1, r2 int64) {
	t.Helper()
	ctx := context.Background()
	gid, err := st.CreateGroup(ctx, "Any%", []string{"a", "b", "c"})
	if err != nil {
		t.Fatalf("create group: %v", err)
	}
	r1, err = st.FinalizeRun(ctx, gid, []int64{1000, 5000, 10000}, time.Now())
	if err != nil {
		t.Fatalf("finalize r1: %v", err)
	}
	r2, err = st.FinalizeRun(ctx, gid, []int64{1200, 5500, 9500}, time.Now())
	if err != nil {
		t.Fatalf("finalize r2: %v", err)
	}
	r3, err := st.InsertRun(ctx, gid, time.Now())
	if err != nil {
		t.Fatalf("insert r3: %v", err)
	}
	for i, ms := range []int64{500, 9000} {
		if err := st.InsertSegmentRecord(ctx, model.SegmentRecord{
			RunID: r3, GroupID: gid, SplitIndex: i, TimeFromStartMs: ms, RecordedAt: time.Now(),
		}); err != nil {
			t.Fatalf("insert r3 record: %v", err)
		}
	}
	return gid, r1, r2
}

func TestBestCumulativeIgnoresIncompleteRuns(t *testing.T) {
	st := openTestStore(t)
	gid, _, r2 := seedHistory(t, st)

	best, err := NewCalculator(st).BestCumulative(context.Background(), gid, 3)
	if err != nil {
		t.Fatalf("best cumulative: %v", err)
	}
	if !best.HasAnyCompleteRun || best.RunID != r2 {
		t.Fatalf("expected run %d to win, got %+v", r2, best)
	}
	want := []int64{1200, 5500, 9500}
	for i := range want {
		if best.Cumulative[i] != want[i] {
			t.Fatalf("index %d: expected %d, got %d", i, want[i], best.Cumulative[i])
		}
	}
}

func TestBestSegmentsCountIncompleteRuns(t *testing.T) {
	st := openTestStore(t)
	gid, _, _ := seedHistory(t, st)

	segments, err := NewCalculator(st).BestSegments(context.Background(), gid, 3)
	if err != nil {
		t.Fatalf("best segments: %v", err)
	}
	if segments[0] == nil || *segments[0] != 500 {
		t.Fatalf("expected 500 at index 0, got %v", segments[0])
	}
	if segments[1] == nil || *segments[1] != 4000 {
		t.Fatalf("expected 4000 at index 1, got %v", segments[1])
	}
	if segments[2] == nil || *segments[2] != 4000 {
		t.Fatalf("expected 4000 at index 2, got %v", segments[2])
	}
}

func TestBestCumulativeTieGoesToLowestRunID(t *testing.T) {
	st := openTestStore(t)
	ctx := context.Background()
	gid, err := st.CreateGroup(ctx, "g", []string{"a", "b"})
	if err != nil {
		t.Fatalf("create group: %v", err)
	}
	first, err := st.FinalizeRun(ctx, gid, []int64{1500, 3000}, time.Now())
	if err != nil {
		t.Fatalf("finalize: %v", err)
	}
	if _, err := st.FinalizeRun(ctx, gid, []int64{1000, 3000}, time.Now()); err != nil {
		t.Fatalf("finalize: %v", err)
	}

	best, err := NewCalculator(st).BestCumulative(ctx, gid, 2)
	if err != nil {
		t.Fatalf("best cumulative: %v", err)
	}
	if best.RunID != first || best.Cumulative[0] != 1500 {
		t.Fatalf("expected first run to win the tie, got %+v", best)
	}
}

func TestBestCumulativeEmptyHistory(t *testing.T) {
	st := openTestStore(t)
	ctx := context.Background()
	gid, err := st.CreateGroup(ctx, "g", []string{"a", "b", "c", "d"})
	if err != nil {
		t.Fatalf("create group: %v", err)
	}
	best, err := NewCalculator(st).BestCumulative(ctx, gid, 4)
	if err != nil {
		t.Fatalf("best cumulative: %v", err)
	}
	if best.HasAnyCompleteRun || len(best.Cumulative) != 4 {
		t.Fatalf("unexpected baseline %+v", best)
	}
	for i, v := range best.Cumulative {
		if v != 0 {
			t.Fatalf("expected zero at %d, got %d", i, v)
		}
	}
}

type failingHistory struct{}

var errOffline = errors.New("offline")

func (failingHistory) GetTotalsByRun(context.Context, int64) ([]model.RunTotal, error) {
	return nil, errOffline
}

func (failingHistory) GetSegmentRecordsForRun(context.Context, int64, int64) ([]model.SplitTime, error) {
	return nil, errOffline
}

func (failingHistory) GetBestSegments(context.Context, int64) ([]model.BestSegment, error) {
	return nil, errOffline
}

func TestReadFailureFallsBackToZeroBaseline(t *testing.T) {
	calc := NewCalculator(failingHistory{})
	best, err := calc.BestCumulative(context.Background(), 1, 2)
	if !errors.Is(err, errOffline) {
		t.Fatalf("expected wrapped error, got %v", err)
	}
	if len(best.Cumulative) != 2 || best.HasAnyCompleteRun {
		t.Fatalf("expected zero-filled fallback, got %+v", best)
	}
	segments, err := calc.BestSegments(context.Background(), 1, 2)
	if !errors.Is(err, errOffline) || len(segments) != 2 || segments[0] != nil {
		t.Fatalf("expected empty segment fallback, got %v %v", segments, err)
	}
}

func TestIsComplete(t *testing.T) {
	full := []model.SplitTime{{SplitIndex: 0}, {SplitIndex: 1}, {SplitIndex: 2}}
	if !IsComplete(full, 3) {
		t.Fatalf("expected complete")
	}
	if IsComplete(full[:2], 3) {
		t.Fatalf("expected missing last index to be incomplete")
	}
	if IsComplete([]model.SplitTime{{SplitIndex: 1}, {SplitIndex: 2}}, 2) {
		t.Fatalf("expected missing first index to be incomplete")
	}
}
