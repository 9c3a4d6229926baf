package store

import (
	"context"
	"time"

	"github.com/verte-zerg/tuisplit/internal/model"
)

// ExportDataset reads every table into a backup dataset.
func (s *Store) ExportDataset(ctx context.Context) (model.Dataset, error) {
	var ds model.Dataset

	groups, err := s.ListGroups(ctx)
	if err != nil {
		return model.Dataset{}, err
	}
	for _, g := range groups {
		ds.Groups = append(ds.Groups, model.BackupGroup{ID: g.ID, Name: g.Name})
	}
	if ds.Templates, err = s.exportTemplates(ctx); err != nil {
		return model.Dataset{}, err
	}
	if ds.Runs, err = s.exportRuns(ctx); err != nil {
		return model.Dataset{}, err
	}
	if ds.RunTimes, err = s.exportRunTimes(ctx); err != nil {
		return model.Dataset{}, err
	}
	return ds, nil
}

func (s *Store) exportTemplates(ctx context.Context) ([]model.BackupTemplate, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, group_id, index_in_group, name FROM split_templates ORDER BY group_id, index_in_group`)
	if err != nil {
		return nil, err
	}
	defer func() {
		if cerr := rows.Close(); cerr != nil {
			// Best-effort rows close.
			_ = cerr
		}
	}()

	var templates []model.BackupTemplate
	for rows.Next() {
		var t model.BackupTemplate
		if err := rows.Scan(&t.ID, &t.GroupID, &t.Index, &t.Name); err != nil {
			return nil, err
		}
		templates = append(templates, t)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return templates, nil
}

func (s *Store) exportRuns(ctx context.Context) ([]model.BackupRun, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT id, group_id, created_at FROM runs ORDER BY id`)
	if err != nil {
		return nil, err
	}
	defer func() {
		if cerr := rows.Close(); cerr != nil {
			// Best-effort rows close.
			_ = cerr
		}
	}()

	var runs []model.BackupRun
	for rows.Next() {
		var r model.BackupRun
		var createdAt string
		if err := rows.Scan(&r.ID, &r.GroupID, &createdAt); err != nil {
			return nil, err
		}
		parsed, err := time.Parse(time.RFC3339Nano, createdAt)
		if err != nil {
			return nil, err
		}
		r.CreatedAt = parsed.UnixMilli()
		runs = append(runs, r)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return runs, nil
}

func (s *Store) exportRunTimes(ctx context.Context) ([]model.BackupRunTime, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT run_id, group_id, split_index, time_from_start_ms, recorded_at FROM run_times ORDER BY run_id, split_index`)
	if err != nil {
		return nil, err
	}
	defer func() {
		if cerr := rows.Close(); cerr != nil {
			// Best-effort rows close.
			_ = cerr
		}
	}()

	var runTimes []model.BackupRunTime
	for rows.Next() {
		var rt model.BackupRunTime
		var recordedAt string
		if err := rows.Scan(&rt.RunID, &rt.GroupID, &rt.SplitIndex, &rt.Time, &recordedAt); err != nil {
			return nil, err
		}
		parsed, err := time.Parse(time.RFC3339Nano, recordedAt)
		if err != nil {
			return nil, err
		}
		rt.RecordedAt = parsed.UnixMilli()
		runTimes = append(runTimes, rt)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return runTimes, nil
}

// ReplaceDataset overwrites every table with the dataset in one transaction.
func (s *Store) ReplaceDataset(ctx context.Context, ds model.Dataset) (err error) {
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

	for _, stmt := range []string{
		`DELETE FROM run_times`,
		`DELETE FROM runs`,
		`DELETE FROM split_templates`,
		`DELETE FROM groups`,
	} {
		if _, err = tx.ExecContext(ctx, stmt); err != nil {
			return err
		}
	}
	for _, g := range ds.Groups {
		if _, err = tx.ExecContext(ctx, `INSERT INTO groups (id, name) VALUES (?, ?)`, g.ID, g.Name); err != nil {
			return err
		}
	}
	for _, t := range ds.Templates {
		if _, err = tx.ExecContext(ctx,
			`INSERT INTO split_templates (id, group_id, index_in_group, name) VALUES (?, ?, ?, ?)`,
			t.ID, t.GroupID, t.Index, t.Name); err != nil {
			return err
		}
	}
	for _, r := range ds.Runs {
		if _, err = tx.ExecContext(ctx, `INSERT INTO runs (id, group_id, created_at) VALUES (?, ?, ?)`,
			r.ID, r.GroupID, time.UnixMilli(r.CreatedAt).UTC().Format(time.RFC3339Nano)); err != nil {
			return err
		}
	}
	for _, rt := range ds.RunTimes {
		if _, err = tx.ExecContext(ctx, insertRunTimeQuery,
			rt.RunID, rt.GroupID, rt.SplitIndex, rt.Time,
			time.UnixMilli(rt.RecordedAt).UTC().Format(time.RFC3339Nano)); err != nil {
			return err
		}
	}
	if err = tx.Commit(); err != nil {
		return err
	}
	s.notifyAll()
	return nil
}
