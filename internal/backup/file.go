package backup

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/verte-zerg/tuisplit/internal/model"
)

// DatasetStore is the store surface used for backups.
type DatasetStore interface {
	ExportDataset(ctx context.Context) (model.Dataset, error)
	ReplaceDataset(ctx context.Context, ds model.Dataset) error
}

// ExportFile writes the whole store to path, encoded by its extension.
func ExportFile(ctx context.Context, st DatasetStore, path string) (model.Dataset, error) {
	ds, err := st.ExportDataset(ctx)
	if err != nil {
		return model.Dataset{}, fmt.Errorf("export dataset: %w", err)
	}
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return model.Dataset{}, fmt.Errorf("failed to create backup dir: %w", err)
		}
	}
	f, err := os.Create(path)
	if err != nil {
		return model.Dataset{}, fmt.Errorf("failed to create backup: %w", err)
	}
	if err := Encode(f, FormatForPath(path), ds); err != nil {
		_ = f.Close()
		return model.Dataset{}, err
	}
	if err := f.Close(); err != nil {
		return model.Dataset{}, fmt.Errorf("failed to write backup: %w", err)
	}
	return ds, nil
}

// ImportFile replaces the whole store with the dataset at path.
func ImportFile(ctx context.Context, st DatasetStore, path string) (model.Dataset, error) {
	f, err := os.Open(path)
	if err != nil {
		return model.Dataset{}, fmt.Errorf("failed to open backup: %w", err)
	}
	defer f.Close()
	ds, err := Decode(f, FormatForPath(path))
	if err != nil {
		return model.Dataset{}, err
	}
	if err := st.ReplaceDataset(ctx, ds); err != nil {
		return model.Dataset{}, fmt.Errorf("restore dataset: %w", err)
	}
	return ds, nil
}
