// Package store handles SQLite persistence.
package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/verte-zerg/tuisplit/internal/model"

	_ "modernc.org/sqlite" // SQLite driver.
)

// ErrNotFound is returned when a requested row does not exist.
var ErrNotFound = errors.New("not found")

// Store wraps SQLite access for groups, templates and runs.
type Store struct {
	db *sql.DB

	mu       sync.Mutex
	watchers map[int64]map[chan struct{}]struct{}
}

// Open opens or creates the SQLite database and applies migrations.
func Open(path string) (*Store, error) {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, err
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	// A single connection serializes writers; SQLite would otherwise report SQLITE_BUSY.
	db.SetMaxOpenConns(1)
	store := &Store{
		db:       db,
		watchers: map[int64]map[chan struct{}]struct{}{},
	}
	if err := store.migrate(); err != nil {
		if cerr := db.Close(); cerr != nil {
			// Best-effort close on migration failure.
			_ = cerr
		}
		return nil, err
	}
	return store, nil
}

// Close closes the underlying database.
func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) migrate() error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS groups (
			id INTEGER PRIMARY KEY,
			name TEXT NOT NULL
		);`,
		`CREATE TABLE IF NOT EXISTS split_templates (
			id INTEGER PRIMARY KEY,
			group_id INTEGER NOT NULL,
			index_in_group INTEGER NOT NULL,
			name TEXT NOT NULL,
			UNIQUE (group_id, index_in_group)
		);`,
		`CREATE TABLE IF NOT EXISTS runs (
			id INTEGER PRIMARY KEY,
			group_id INTEGER NOT NULL,
			created_at TEXT NOT NULL
		);`,
		`CREATE TABLE IF NOT EXISTS run_times (
			id INTEGER PRIMARY KEY,
			run_id INTEGER NOT NULL,
			group_id INTEGER NOT NULL,
			split_index INTEGER NOT NULL,
			time_from_start_ms INTEGER NOT NULL,
			recorded_at TEXT NOT NULL,
			UNIQUE (run_id, group_id, split_index)
		);`,
		`CREATE INDEX IF NOT EXISTS idx_runs_group_id ON runs(group_id);`,
		`CREATE INDEX IF NOT EXISTS idx_run_times_group_split ON run_times(group_id, split_index);`,
	}
	for _, stmt := range stmts {
		if _, err := s.db.Exec(stmt); err != nil {
			return err
		}
	}
	return nil
}

// CreateGroup stores a group and its ordered split templates.
func (s *Store) CreateGroup(ctx context.Context, name string, splitNames []string) (id int64, err error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, err
	}
	defer func() {
		if err != nil {
			if rerr := tx.Rollback(); rerr != nil {
				// Best-effort rollback.
				_ = rerr
			}
		}
	}()

	res, err := tx.ExecContext(ctx, `INSERT INTO groups (name) VALUES (?)`, name)
	if err != nil {
		return 0, err
	}
	id, err = res.LastInsertId()
	if err != nil {
		return 0, err
	}
	for i, splitName := range splitNames {
		if _, err = tx.ExecContext(ctx,
			`INSERT INTO split_templates (group_id, index_in_group, name) VALUES (?, ?, ?)`,
			id, i, splitName); err != nil {
			return 0, err
		}
	}
	if err = tx.Commit(); err != nil {
		return 0, err
	}
	return id, nil
}

// ListGroups returns all groups ordered by id.
func (s *Store) ListGroups(ctx context.Context) ([]model.Group, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT id, name FROM groups ORDER BY id ASC`)
	if err != nil {
		return nil, err
	}
	defer func() {
		if cerr := rows.Close(); cerr != nil {
			// Best-effort rows close.
			_ = cerr
		}
	}()

	var groups []model.Group
	for rows.Next() {
		var g model.Group
		if err := rows.Scan(&g.ID, &g.Name); err != nil {
			return nil, err
		}
		groups = append(groups, g)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return groups, nil
}

// GetGroup returns a group by id or ErrNotFound.
func (s *Store) GetGroup(ctx context.Context, id int64) (model.Group, error) {
	var g model.Group
	err := s.db.QueryRowContext(ctx, `SELECT id, name FROM groups WHERE id = ?`, id).Scan(&g.ID, &g.Name)
	if errors.Is(err, sql.ErrNoRows) {
		return model.Group{}, fmt.Errorf("group %d: %w", id, ErrNotFound)
	}
	if err != nil {
		return model.Group{}, err
	}
	return g, nil
}

// DeleteGroup removes a group with its templates, runs and segment records.
func (s *Store) DeleteGroup(ctx context.Context, id int64) (err error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() {
		if err != nil {
			if rerr := tx.Rollback(); rerr != nil {
				// Best-effort rollback.
				_ = rerr
			}
		}
	}()

	res, err := tx.ExecContext(ctx, `DELETE FROM groups WHERE id = ?`, id)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		err = fmt.Errorf("group %d: %w", id, ErrNotFound)
		return err
	}
	for _, stmt := range []string{
		`DELETE FROM split_templates WHERE group_id = ?`,
		`DELETE FROM run_times WHERE group_id = ?`,
		`DELETE FROM runs WHERE group_id = ?`,
	} {
		if _, err = tx.ExecContext(ctx, stmt, id); err != nil {
			return err
		}
	}
	if err = tx.Commit(); err != nil {
		return err
	}
	s.notify(id)
	return nil
}

// GetTemplatesForGroup returns the group's split templates ordered by index.
func (s *Store) GetTemplatesForGroup(ctx context.Context, groupID int64) ([]model.SplitTemplate, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, group_id, index_in_group, name
		 FROM split_templates
		 WHERE group_id = ?
		 ORDER BY index_in_group ASC`, groupID)
	if err != nil {
		return nil, err
	}
	defer func() {
		if cerr := rows.Close(); cerr != nil {
			// Best-effort rows close.
			_ = cerr
		}
	}()

	var templates []model.SplitTemplate
	for rows.Next() {
		var tpl model.SplitTemplate
		if err := rows.Scan(&tpl.ID, &tpl.GroupID, &tpl.IndexInGroup, &tpl.Name); err != nil {
			return nil, err
		}
		templates = append(templates, tpl)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return templates, nil
}

// InsertRun creates an empty run row and returns its id.
func (s *Store) InsertRun(ctx context.Context, groupID int64, createdAt time.Time) (int64, error) {
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO runs (group_id, created_at) VALUES (?, ?)`,
		groupID, createdAt.Format(time.RFC3339Nano))
	if err != nil {
		return 0, err
	}
	return res.LastInsertId()
}

// InsertSegmentRecord stores one cumulative split time, replacing an existing record for the same slot.
func (s *Store) InsertSegmentRecord(ctx context.Context, rec model.SegmentRecord) error {
	if _, err := s.db.ExecContext(ctx, insertRunTimeQuery,
		rec.RunID, rec.GroupID, rec.SplitIndex, rec.TimeFromStartMs, rec.RecordedAt.Format(time.RFC3339Nano)); err != nil {
		return err
	}
	s.notify(rec.GroupID)
	return nil
}

const insertRunTimeQuery = `INSERT OR REPLACE INTO run_times (run_id, group_id, split_index, time_from_start_ms, recorded_at)
	VALUES (?, ?, ?, ?, ?)`

// FinalizeRun stores a completed run and one record per split in a single transaction.
func (s *Store) FinalizeRun(ctx context.Context, groupID int64, cumulative []int64, recordedAt time.Time) (runID int64, err error) {
	if len(cumulative) == 0 {
		return 0, fmt.Errorf("run has no splits")
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, err
	}
	defer func() {
		if err != nil {
			if rerr := tx.Rollback(); rerr != nil {
				// Best-effort rollback.
				_ = rerr
			}
		}
	}()

	stamp := recordedAt.Format(time.RFC3339Nano)
	res, err := tx.ExecContext(ctx, `INSERT INTO runs (group_id, created_at) VALUES (?, ?)`, groupID, stamp)
	if err != nil {
		return 0, err
	}
	runID, err = res.LastInsertId()
	if err != nil {
		return 0, err
	}

	stmt, err := tx.PrepareContext(ctx, insertRunTimeQuery)
	if err != nil {
		return 0, err
	}
	defer func() {
		if cerr := stmt.Close(); cerr != nil {
			// Best-effort statement close.
			_ = cerr
		}
	}()
	for i, ms := range cumulative {
		if _, err = stmt.ExecContext(ctx, runID, groupID, i, ms, stamp); err != nil {
			return 0, err
		}
	}

	if err = tx.Commit(); err != nil {
		return 0, err
	}
	s.notify(groupID)
	return runID, nil
}

// ListRuns returns every run of a group, newest first.
func (s *Store) ListRuns(ctx context.Context, groupID int64) ([]model.Run, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, group_id, created_at FROM runs WHERE group_id = ? ORDER BY id DESC`, groupID)
	if err != nil {
		return nil, err
	}
	defer func() {
		if cerr := rows.Close(); cerr != nil {
			// Best-effort rows close.
			_ = cerr
		}
	}()

	var runs []model.Run
	for rows.Next() {
		var run model.Run
		var createdAt string
		if err := rows.Scan(&run.ID, &run.GroupID, &createdAt); err != nil {
			return nil, err
		}
		parsed, err := time.Parse(time.RFC3339Nano, createdAt)
		if err != nil {
			return nil, err
		}
		run.CreatedAt = parsed
		runs = append(runs, run)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return runs, nil
}

// DeleteRun removes a run and its segment records.
func (s *Store) DeleteRun(ctx context.Context, runID int64) (err error) {
	var groupID int64
	err = s.db.QueryRowContext(ctx, `SELECT group_id FROM runs WHERE id = ?`, runID).Scan(&groupID)
	if errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("run %d: %w", runID, ErrNotFound)
	}
	if err != nil {
		return err
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() {
		if err != nil {
			if rerr := tx.Rollback(); rerr != nil {
				// Best-effort rollback.
				_ = rerr
			}
		}
	}()
	if _, err = tx.ExecContext(ctx, `DELETE FROM run_times WHERE run_id = ?`, runID); err != nil {
		return err
	}
	if _, err = tx.ExecContext(ctx, `DELETE FROM runs WHERE id = ?`, runID); err != nil {
		return err
	}
	if err = tx.Commit(); err != nil {
		return err
	}
	s.notify(groupID)
	return nil
}

// GetTotalsByRun returns, per run of a group, the largest recorded cumulative time.
func (s *Store) GetTotalsByRun(ctx context.Context, groupID int64) ([]model.RunTotal, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT run_id, MAX(time_from_start_ms) AS total
		 FROM run_times
		 WHERE group_id = ?
		 GROUP BY run_id
		 ORDER BY run_id ASC`, groupID)
	if err != nil {
		return nil, err
	}
	defer func() {
		if cerr := rows.Close(); cerr != nil {
			// Best-effort rows close.
			_ = cerr
		}
	}()

	var totals []model.RunTotal
	for rows.Next() {
		var t model.RunTotal
		if err := rows.Scan(&t.RunID, &t.TotalMs); err != nil {
			return nil, err
		}
		totals = append(totals, t)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return totals, nil
}

// GetSegmentRecordsForRun returns a run's recorded cumulative times ordered by split index.
func (s *Store) GetSegmentRecordsForRun(ctx context.Context, runID, groupID int64) ([]model.SplitTime, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT split_index, time_from_start_ms
		 FROM run_times
		 WHERE run_id = ? AND group_id = ?
		 ORDER BY split_index ASC`, runID, groupID)
	if err != nil {
		return nil, err
	}
	defer func() {
		if cerr := rows.Close(); cerr != nil {
			// Best-effort rows close.
			_ = cerr
		}
	}()

	var times []model.SplitTime
	for rows.Next() {
		var st model.SplitTime
		if err := rows.Scan(&st.SplitIndex, &st.CumulativeMs); err != nil {
			return nil, err
		}
		times = append(times, st)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return times, nil
}

// GetBestSegments computes, per split index, the fastest segment across all runs of a group.
// A run without a record at index-1 contributes its cumulative time as the segment.
func (s *Store) GetBestSegments(ctx context.Context, groupID int64) ([]model.BestSegment, error) {
	query := `WITH cumulative AS (
		SELECT run_id, split_index, time_from_start_ms
		FROM run_times
		WHERE group_id = ?
	),
	segs AS (
		SELECT c.run_id, c.split_index,
			(c.time_from_start_ms - COALESCE(p.time_from_start_ms, 0)) AS segment_ms
		FROM cumulative c
		LEFT JOIN cumulative p
			ON p.run_id = c.run_id AND p.split_index = c.split_index - 1
	)
	SELECT split_index, MIN(segment_ms) AS best_segment_ms
	FROM segs
	GROUP BY split_index
	ORDER BY split_index ASC`

	rows, err := s.db.QueryContext(ctx, query, groupID)
	if err != nil {
		return nil, err
	}
	defer func() {
		if cerr := rows.Close(); cerr != nil {
			// Best-effort rows close.
			_ = cerr
		}
	}()

	var result []model.BestSegment
	for rows.Next() {
		var b model.BestSegment
		if err := rows.Scan(&b.Index, &b.BestSegmentMs); err != nil {
			return nil, err
		}
		result = append(result, b)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return result, nil
}
