package storage

import (
	"context"
	"encoding/json"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/cockroachdb/errors"

	"github.com/mpz/devops/tools/rds-cluster-scheduler/internal/constants"
	"github.com/mpz/devops/tools/rds-cluster-scheduler/internal/types"
)

// FileStore implements Store using the filesystem.
// Structure:
//
//	{dataDir}/
//	└── runs/
//	    ├── {run-id}.json
//	    └── ...
type FileStore struct {
	dataDir string
	mu      sync.RWMutex
}

// NewFileStore creates a new file-based store.
func NewFileStore(dataDir string) (*FileStore, error) {
	runsDir := filepath.Join(dataDir, "runs")
	if err := os.MkdirAll(runsDir, constants.DefaultDirMode); err != nil {
		return nil, errors.Wrap(err, "create runs directory")
	}

	return &FileStore{dataDir: dataDir}, nil
}

// runsDir returns the directory holding run files.
func (s *FileStore) runsDir() string {
	return filepath.Join(s.dataDir, "runs")
}

// runFile returns the path to a run's file.
func (s *FileStore) runFile(id string) string {
	return filepath.Join(s.runsDir(), sanitizeFilename(id)+".json")
}

// SaveRun persists a finished run.
func (s *FileStore) SaveRun(ctx context.Context, run *types.RunResult) error {
	if err := run.Validate(); err != nil {
		return errors.Wrap(err, "invalid run")
	}

	data, err := json.MarshalIndent(run, "", "  ")
	if err != nil {
		return errors.Wrap(err, "marshal run")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	// Atomic write with fsync for durability
	if err := atomicWriteFile(s.runFile(run.RunID), data, constants.DefaultFileMode); err != nil {
		return errors.Wrap(err, "write run file")
	}
	return nil
}

// GetRun retrieves a run by ID.
func (s *FileStore) GetRun(ctx context.Context, id string) (*types.RunResult, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	data, err := os.ReadFile(s.runFile(id))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, runNotFound(id)
		}
		return nil, errors.Wrap(err, "read run file")
	}

	var run types.RunResult
	if err := json.Unmarshal(data, &run); err != nil {
		return nil, errors.Wrap(err, "unmarshal run")
	}
	return &run, nil
}

// CorruptedFile represents a file that could not be loaded due to corruption.
type CorruptedFile struct {
	Path  string
	Error error
}

// ListRuns returns up to limit runs, newest first. Corrupted files are skipped.
func (s *FileStore) ListRuns(ctx context.Context, limit int) ([]*types.RunResult, error) {
	runs, corrupted, err := s.listRunsWithCorrupted()
	if err != nil {
		return nil, err
	}
	for _, cf := range corrupted {
		slog.Warn("skipping corrupted run file", "path", cf.Path, "error", cf.Error)
	}

	sortNewestFirst(runs)
	return truncate(runs, limit), nil
}

// listRunsWithCorrupted returns all runs and a list of corrupted run files.
func (s *FileStore) listRunsWithCorrupted() ([]*types.RunResult, []CorruptedFile, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	entries, err := os.ReadDir(s.runsDir())
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil, nil
		}
		return nil, nil, errors.Wrap(err, "read runs directory")
	}

	var runs []*types.RunResult
	var corrupted []CorruptedFile

	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".json") {
			continue
		}

		path := filepath.Join(s.runsDir(), entry.Name())
		data, err := os.ReadFile(path)
		if err != nil {
			corrupted = append(corrupted, CorruptedFile{Path: path, Error: err})
			continue
		}

		var run types.RunResult
		if err := json.Unmarshal(data, &run); err != nil {
			corrupted = append(corrupted, CorruptedFile{Path: path, Error: err})
			continue
		}
		// Validate run data integrity
		if err := run.Validate(); err != nil {
			corrupted = append(corrupted, CorruptedFile{Path: path, Error: errors.Wrap(err, "validation failed")})
			continue
		}
		runs = append(runs, &run)
	}

	return runs, corrupted, nil
}

// DeleteRun removes a run file.
func (s *FileStore) DeleteRun(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := os.Remove(s.runFile(id)); err != nil && !os.IsNotExist(err) {
		return errors.Wrap(err, "remove run file")
	}
	return nil
}

// Recover removes temp files left by interrupted writes and reports how many
// archived runs are readable. Called once on startup.
func (s *FileStore) Recover(ctx context.Context) (int, error) {
	if err := s.cleanupTempFiles(); err != nil {
		slog.Warn("failed to cleanup temp files", "error", err)
	}

	runs, corrupted, err := s.listRunsWithCorrupted()
	if err != nil {
		return 0, errors.Wrap(err, "list runs")
	}
	for _, cf := range corrupted {
		slog.Error("skipping corrupted run file", "path", cf.Path, "error", cf.Error)
	}
	if len(corrupted) > 0 {
		slog.Warn("some run files were corrupted and skipped", "count", len(corrupted))
	}
	return len(runs), nil
}

// sanitizeFilename removes characters that are problematic in filenames.
func sanitizeFilename(s string) string {
	replacer := strings.NewReplacer(
		"/", "_",
		"\\", "_",
		":", "_",
		"*", "_",
		"?", "_",
		"\"", "_",
		"<", "_",
		">", "_",
		"|", "_",
		" ", "_",
		"..", "_",
	)
	return replacer.Replace(s)
}

// atomicWriteFile writes data to a file atomically using write-to-temp-then-rename pattern.
// It also fsyncs the file to ensure durability.
func atomicWriteFile(path string, data []byte, perm os.FileMode) error {
	// Write to temp file in same directory (ensures same filesystem for atomic rename)
	dir := filepath.Dir(path)
	tmpFile, err := os.CreateTemp(dir, ".tmp-*")
	if err != nil {
		return errors.Wrap(err, "create temp file")
	}
	tmpPath := tmpFile.Name()

	// Clean up temp file on any error
	success := false
	defer func() {
		if !success {
			tmpFile.Close()
			os.Remove(tmpPath)
		}
	}()

	if _, err := tmpFile.Write(data); err != nil {
		return errors.Wrap(err, "write to temp file")
	}

	// Fsync to ensure data is on disk before rename
	if err := tmpFile.Sync(); err != nil {
		return errors.Wrap(err, "sync temp file")
	}

	// Close before rename (required on Windows)
	if err := tmpFile.Close(); err != nil {
		return errors.Wrap(err, "close temp file")
	}

	if err := os.Chmod(tmpPath, perm); err != nil {
		return errors.Wrap(err, "chmod temp file")
	}

	if err := os.Rename(tmpPath, path); err != nil {
		return errors.Wrap(err, "rename temp file")
	}

	success = true
	return nil
}

// cleanupTempFiles removes orphaned temp files in the runs directory.
func (s *FileStore) cleanupTempFiles() error {
	return filepath.Walk(s.runsDir(), func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return nil // Skip inaccessible paths
		}
		if info.IsDir() {
			return nil
		}
		name := info.Name()
		if strings.HasSuffix(name, ".tmp") || strings.HasPrefix(name, ".tmp-") {
			slog.Warn("removing orphaned temp file", "path", path)
			os.Remove(path)
		}
		return nil
	})
}
