// Package backup reads and writes full dataset backups to files and S3.
package backup

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/verte-zerg/tuisplit/internal/model"
)

// ErrNoBackup is returned when a remote holds no backup yet.
var ErrNoBackup = errors.New("no backup found")

// Format is a dataset document encoding.
type Format int

// Supported formats.
const (
	FormatJSON Format = iota
	FormatYAML
)

// FormatForPath picks the encoding from a file extension. Unknown extensions use JSON.
func FormatForPath(path string) Format {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		return FormatYAML
	default:
		return FormatJSON
	}
}

// Encode writes ds to w.
func Encode(w io.Writer, format Format, ds model.Dataset) error {
	switch format {
	case FormatYAML:
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		if err := enc.Encode(ds); err != nil {
			return fmt.Errorf("encode yaml: %w", err)
		}
		return enc.Close()
	default:
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		if err := enc.Encode(ds); err != nil {
			return fmt.Errorf("encode json: %w", err)
		}
		return nil
	}
}

// Decode reads a dataset from r and validates its references.
func Decode(r io.Reader, format Format) (model.Dataset, error) {
	var ds model.Dataset
	switch format {
	case FormatYAML:
		if err := yaml.NewDecoder(r).Decode(&ds); err != nil && !errors.Is(err, io.EOF) {
			return model.Dataset{}, fmt.Errorf("decode yaml: %w", err)
		}
	default:
		if err := json.NewDecoder(r).Decode(&ds); err != nil {
			return model.Dataset{}, fmt.Errorf("decode json: %w", err)
		}
	}
	if err := Validate(ds); err != nil {
		return model.Dataset{}, err
	}
	return ds, nil
}

// Validate checks that every row points at an existing parent row.
func Validate(ds model.Dataset) error {
	groups := make(map[int64]struct{}, len(ds.Groups))
	for _, g := range ds.Groups {
		if _, dup := groups[g.ID]; dup {
			return fmt.Errorf("duplicate group id %d", g.ID)
		}
		groups[g.ID] = struct{}{}
	}
	for _, tpl := range ds.Templates {
		if _, ok := groups[tpl.GroupID]; !ok {
			return fmt.Errorf("template %d references unknown group %d", tpl.ID, tpl.GroupID)
		}
		if tpl.Index < 0 {
			return fmt.Errorf("template %d has negative index", tpl.ID)
		}
	}
	runs := make(map[int64]int64, len(ds.Runs))
	for _, run := range ds.Runs {
		if _, ok := groups[run.GroupID]; !ok {
			return fmt.Errorf("run %d references unknown group %d", run.ID, run.GroupID)
		}
		runs[run.ID] = run.GroupID
	}
	for _, rt := range ds.RunTimes {
		gid, ok := runs[rt.RunID]
		if !ok {
			return fmt.Errorf("run time references unknown run %d", rt.RunID)
		}
		if gid != rt.GroupID {
			return fmt.Errorf("run time for run %d has group %d, want %d", rt.RunID, rt.GroupID, gid)
		}
	}
	return nil
}
