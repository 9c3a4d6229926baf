package stats

import (
	"bytes"
	"context"
	"errors"
	"path/filepath"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/verte-zerg/tuisplit/internal/model"
	"github.com/verte-zerg/tuisplit/internal/store"
)

func seedReport(t *testing.T) (*store.Store, int64, []int64) {
	t.Helper()
	dir := t.TempDir()
	st, err := store.Open(filepath.Join(dir, "tuisplit.db"))
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() {
		_ = st.Close()
	})

	ctx := context.Background()
	gid, err := st.CreateGroup(ctx, "Any%", []string{"Forest", "Castle", "Boss"})
	if err != nil {
		t.Fatalf("create group: %v", err)
	}
	var ids []int64
	for i, run := range [][]int64{
		{1000, 3000, 6000},
		{1200, 2900, 5500},
	} {
		id, err := st.FinalizeRun(ctx, gid, run, time.Unix(0, 0).Add(time.Duration(i)*time.Hour))
		if err != nil {
			t.Fatalf("finalize: %v", err)
		}
		ids = append(ids, id)
	}
	partial, err := st.InsertRun(ctx, gid, time.Unix(0, 0).Add(2*time.Hour))
	if err != nil {
		t.Fatalf("insert run: %v", err)
	}
	if err := st.InsertSegmentRecord(ctx, model.SegmentRecord{
		RunID: partial, GroupID: gid, SplitIndex: 0, TimeFromStartMs: 800, RecordedAt: time.Now(),
	}); err != nil {
		t.Fatalf("insert record: %v", err)
	}
	ids = append(ids, partial)
	return st, gid, ids
}

func TestBuildReport(t *testing.T) {
	st, gid, ids := seedReport(t)
	report, err := BuildReport(context.Background(), st, gid)
	if err != nil {
		t.Fatalf("build report: %v", err)
	}
	if report.Group.Name != "Any%" || len(report.Templates) != 3 {
		t.Fatalf("unexpected group data: %+v", report.Group)
	}
	if len(report.Runs) != 3 || report.Runs[0].Run.ID != ids[2] {
		t.Fatalf("expected newest run first, got %+v", report.Runs)
	}
	if report.Runs[0].Complete || !report.Runs[1].Complete {
		t.Fatalf("unexpected completeness flags")
	}
	if report.BestRunID != ids[1] || report.BestCumulative[2] != 5500 {
		t.Fatalf("unexpected best run %d %v", report.BestRunID, report.BestCumulative)
	}
	// Best segments: 800 (partial run), 1700, 2600.
	want := []int64{800, 2500, 5100}
	for i := range want {
		if report.TheoreticalBest[i] != want[i] {
			t.Fatalf("theoretical best %d: expected %d, got %d", i, want[i], report.TheoreticalBest[i])
		}
	}
	if report.SumOfBestMs != 5100 || !report.SumOfBestComplete {
		t.Fatalf("unexpected sum of best %d", report.SumOfBestMs)
	}
	totals := report.Totals()
	if len(totals) != 2 || totals[0] != 6000 || totals[1] != 5500 {
		t.Fatalf("unexpected totals %v", totals)
	}
	if series := report.SegmentSeries(0); len(series) != 3 || series[2] != 800 {
		t.Fatalf("unexpected segment series %v", series)
	}
}

func TestBuildReportMissingGroup(t *testing.T) {
	st, _, _ := seedReport(t)
	if _, err := BuildReport(context.Background(), st, 404); !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestShareMessages(t *testing.T) {
	st, gid, ids := seedReport(t)
	report, err := BuildReport(context.Background(), st, gid)
	if err != nil {
		t.Fatalf("build report: %v", err)
	}

	pb := PBMessage(report)
	if pb != "PB - Any%\nForest: 00:01.200\nCastle: 00:02.900\nBoss: 00:05.500" {
		t.Fatalf("unexpected pb message:\n%s", pb)
	}
	best := BestPossibleMessage(report)
	if !strings.HasPrefix(best, "Best Possible Time - Any%\nForest: 00:00.800") {
		t.Fatalf("unexpected best possible message:\n%s", best)
	}
	row, ok := report.FindRun(ids[2])
	if !ok {
		t.Fatalf("run %d not found", ids[2])
	}
	msg := RunMessage(report, row)
	if !strings.HasSuffix(msg, "Castle: 00:00.000\nBoss: 00:00.000") {
		t.Fatalf("expected missing splits as zero:\n%s", msg)
	}
}

func TestTopTimeSaves(t *testing.T) {
	st, gid, _ := seedReport(t)
	report, err := BuildReport(context.Background(), st, gid)
	if err != nil {
		t.Fatalf("build report: %v", err)
	}
	saves := TopTimeSaves(report, 5)
	// PB segments 1200, 1700, 2600 against bests 800, 1700, 2600.
	if len(saves) != 1 || saves[0].Name != "Forest" || saves[0].SaveMs != 400 {
		t.Fatalf("unexpected time saves %+v", saves)
	}
}

func TestRenderPlainReport(t *testing.T) {
	st, gid, ids := seedReport(t)
	report, err := BuildReport(context.Background(), st, gid)
	if err != nil {
		t.Fatalf("build report: %v", err)
	}
	var buf bytes.Buffer
	if err := RenderSummary(&buf, report); err != nil {
		t.Fatalf("summary: %v", err)
	}
	if err := RenderRunsTable(&buf, report, time.Unix(0, 0).Add(3*time.Hour)); err != nil {
		t.Fatalf("runs table: %v", err)
	}
	out := buf.String()
	for _, needle := range []string{
		"PB: 00:05.500",
		"Sum of Best: 00:05.100",
		"Runs: 3 (2 complete)",
		"Best Possible",
		"Run " + strconv.FormatInt(ids[1], 10) + " *",
		"ago",
	} {
		if !strings.Contains(out, needle) {
			t.Fatalf("expected %q in output:\n%s", needle, out)
		}
	}
}
