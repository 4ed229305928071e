package index

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"go.uber.org/zap"
)

// Store persists indexes. Load never fails for a dataset that has no record
// yet; it returns an empty index instead. Save must be atomic: a reader sees
// either the previous record or the new one, never a partial write.
type Store interface {
	Load(ctx context.Context, dataset int) (*Index, error)
	Save(ctx context.Context, idx *Index) error
}

// Filename is the name of a dataset's index file inside the output directory.
func Filename(dataset int) string {
	return fmt.Sprintf("dataset%d-index.json", dataset)
}

// FileStore keeps one JSON document per dataset in a directory.
type FileStore struct {
	baseDir string
	logger  *zap.Logger
	mu      sync.Mutex
	now     func() time.Time
}

func NewFileStore(baseDir string, logger *zap.Logger) *FileStore {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &FileStore{
		baseDir: baseDir,
		logger:  logger,
		now:     time.Now,
	}
}

func (f *FileStore) Path(dataset int) string {
	return filepath.Join(f.baseDir, Filename(dataset))
}

func (f *FileStore) Load(ctx context.Context, dataset int) (*Index, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	indexPath := f.Path(dataset)

	data, err := os.ReadFile(indexPath)
	if os.IsNotExist(err) {
		f.logger.Info("No index found", zap.Int("dataset", dataset))
		return New(dataset), nil
	}
	if err != nil {
		return nil, err
	}

	idx, err := Decode(data, dataset)
	if err != nil {
		return nil, fmt.Errorf("decode %s: %w", indexPath, err)
	}

	f.logger.Info("Index loaded",
		zap.Int("dataset", dataset),
		zap.Int("files", idx.Len()),
		zap.Int("last_page", idx.LastPage),
		zap.Bool("complete", idx.Complete),
	)
	return idx, nil
}

func (f *FileStore) Save(ctx context.Context, idx *Index) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if err := os.MkdirAll(f.baseDir, 0755); err != nil {
		return err
	}

	indexPath := f.Path(idx.Dataset)
	tempPath := indexPath + ".tmp"

	record := *idx
	record.UpdatedAt = f.now().UTC()

	data, err := json.MarshalIndent(&record, "", "  ")
	if err != nil {
		return err
	}

	if err := writeSynced(tempPath, data); err != nil {
		os.Remove(tempPath)
		return err
	}

	if err := os.Rename(tempPath, indexPath); err != nil {
		os.Remove(tempPath)
		return err
	}
	if err := syncDir(f.baseDir); err != nil {
		return fmt.Errorf("sync %s: %w", f.baseDir, err)
	}

	idx.UpdatedAt = record.UpdatedAt

	f.logger.Debug("Index saved",
		zap.Int("dataset", idx.Dataset),
		zap.Int("files", idx.Len()),
		zap.Int("last_page", idx.LastPage),
	)
	return nil
}

func writeSynced(path string, data []byte) error {
	file, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0644)
	if err != nil {
		return err
	}
	if _, err := file.Write(data); err != nil {
		file.Close()
		return err
	}
	if err := file.Sync(); err != nil {
		file.Close()
		return err
	}
	return file.Close()
}

// syncDir flushes directory entries so a completed rename survives a crash.
func syncDir(dir string) error {
	d, err := os.Open(dir)
	if err != nil {
		return err
	}
	if err := d.Sync(); err != nil {
		d.Close()
		return err
	}
	return d.Close()
}

// Decode parses a stored index document. It is shared by every backend that
// stores the JSON form.
func Decode(data []byte, dataset int) (*Index, error) {
	idx := New(dataset)
	if err := json.Unmarshal(data, idx); err != nil {
		return nil, err
	}
	if idx.Files == nil {
		idx.Files = New(dataset).Files
	}
	if idx.Dataset == 0 {
		idx.Dataset = dataset
	}
	return idx, nil
}
