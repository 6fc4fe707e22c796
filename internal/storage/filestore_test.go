package storage

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"testing"
	"time"

	internalerrors "github.com/mpz/devops/tools/rds-cluster-scheduler/internal/errors"
	"github.com/mpz/devops/tools/rds-cluster-scheduler/internal/types"
)

func TestFileStore_AtomicWrite(t *testing.T) {
	tmpDir := t.TempDir()

	store, err := NewFileStore(tmpDir)
	if err != nil {
		t.Fatalf("NewFileStore failed: %v", err)
	}

	ctx := context.Background()
	run := createTestRun("run-1", time.Now())

	if err := store.SaveRun(ctx, run); err != nil {
		t.Fatalf("SaveRun failed: %v", err)
	}

	// Verify no temp files remain
	files, _ := filepath.Glob(filepath.Join(tmpDir, "runs", ".tmp-*"))
	if len(files) > 0 {
		t.Errorf("temp files remaining after save: %v", files)
	}

	loaded, err := store.GetRun(ctx, run.RunID)
	if err != nil {
		t.Fatalf("GetRun failed: %v", err)
	}
	if loaded.RunID != run.RunID || loaded.Report.ProcessedClusters[0] != "a" {
		t.Errorf("unexpected run loaded: %+v", loaded)
	}
}

func TestFileStore_GetMissingRun(t *testing.T) {
	store, err := NewFileStore(t.TempDir())
	if err != nil {
		t.Fatalf("NewFileStore failed: %v", err)
	}

	_, err = store.GetRun(context.Background(), "nope")
	if !internalerrors.IsNotFound(err) {
		t.Errorf("expected not found, got %v", err)
	}
}

func TestFileStore_RejectsInvalidRun(t *testing.T) {
	store, err := NewFileStore(t.TempDir())
	if err != nil {
		t.Fatalf("NewFileStore failed: %v", err)
	}

	if err := store.SaveRun(context.Background(), &types.RunResult{RunID: "x"}); err == nil {
		t.Error("expected validation error")
	}
}

func TestFileStore_CorruptedRunRecovery(t *testing.T) {
	tmpDir := t.TempDir()

	store, err := NewFileStore(tmpDir)
	if err != nil {
		t.Fatalf("NewFileStore failed: %v", err)
	}

	ctx := context.Background()
	if err := store.SaveRun(ctx, createTestRun("good", time.Now())); err != nil {
		t.Fatalf("SaveRun failed: %v", err)
	}

	runsDir := filepath.Join(tmpDir, "runs")
	if err := os.WriteFile(filepath.Join(runsDir, "corrupt.json"), []byte("not json{"), 0644); err != nil {
		t.Fatalf("WriteFile failed: %v", err)
	}
	if err := os.WriteFile(filepath.Join(runsDir, "invalid.json"), []byte(`{"run_id":"invalid"}`), 0644); err != nil {
		t.Fatalf("WriteFile failed: %v", err)
	}

	runs, err := store.ListRuns(ctx, 0)
	if err != nil {
		t.Fatalf("ListRuns failed: %v", err)
	}
	if len(runs) != 1 || runs[0].RunID != "good" {
		t.Errorf("expected only the valid run, got %d runs", len(runs))
	}

	n, err := store.Recover(ctx)
	if err != nil {
		t.Fatalf("Recover failed: %v", err)
	}
	if n != 1 {
		t.Errorf("Recover() = %d, want 1", n)
	}
}

func TestFileStore_TempFileCleanup(t *testing.T) {
	tmpDir := t.TempDir()
	runsDir := filepath.Join(tmpDir, "runs")
	if err := os.MkdirAll(runsDir, 0755); err != nil {
		t.Fatalf("MkdirAll failed: %v", err)
	}

	orphanedFiles := []string{
		filepath.Join(runsDir, "run.json.tmp"),
		filepath.Join(runsDir, ".tmp-abc123"),
	}
	for _, f := range orphanedFiles {
		if err := os.WriteFile(f, []byte("temp data"), 0644); err != nil {
			t.Fatalf("WriteFile failed: %v", err)
		}
	}

	store, err := NewFileStore(tmpDir)
	if err != nil {
		t.Fatalf("NewFileStore failed: %v", err)
	}
	if _, err := store.Recover(context.Background()); err != nil {
		t.Fatalf("Recover failed: %v", err)
	}

	for _, f := range orphanedFiles {
		if _, err := os.Stat(f); !os.IsNotExist(err) {
			t.Errorf("orphaned temp file should be removed: %s", f)
		}
	}
}

func TestFileStore_IDCannotEscapeRunsDir(t *testing.T) {
	tmpDir := t.TempDir()
	store, err := NewFileStore(tmpDir)
	if err != nil {
		t.Fatalf("NewFileStore failed: %v", err)
	}

	if err := store.SaveRun(context.Background(), createTestRun("../../escape", time.Now())); err != nil {
		t.Fatalf("SaveRun failed: %v", err)
	}
	if _, err := os.Stat(filepath.Join(tmpDir, "..", "escape.json")); !os.IsNotExist(err) {
		t.Error("run file written outside the runs directory")
	}
}

func TestStores_ListNewestFirst(t *testing.T) {
	fileStore, err := NewFileStore(t.TempDir())
	if err != nil {
		t.Fatalf("NewFileStore failed: %v", err)
	}

	stores := map[string]Store{
		"memory": NewMemoryStore(),
		"file":   fileStore,
	}

	base := time.Date(2024, 5, 1, 7, 0, 0, 0, time.UTC)
	for name, store := range stores {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			for i := range 5 {
				run := createTestRun(fmt.Sprintf("run-%d", i), base.Add(time.Duration(i)*time.Hour))
				if err := store.SaveRun(ctx, run); err != nil {
					t.Fatalf("SaveRun failed: %v", err)
				}
			}

			runs, err := store.ListRuns(ctx, 3)
			if err != nil {
				t.Fatalf("ListRuns failed: %v", err)
			}
			want := []string{"run-4", "run-3", "run-2"}
			if len(runs) != len(want) {
				t.Fatalf("expected %d runs, got %d", len(want), len(runs))
			}
			for i, id := range want {
				if runs[i].RunID != id {
					t.Errorf("runs[%d] = %s, want %s", i, runs[i].RunID, id)
				}
			}

			if err := store.DeleteRun(ctx, "run-4"); err != nil {
				t.Fatalf("DeleteRun failed: %v", err)
			}
			if _, err := store.GetRun(ctx, "run-4"); !internalerrors.IsNotFound(err) {
				t.Errorf("expected deleted run to be not found, got %v", err)
			}
			if err := store.DeleteRun(ctx, "run-4"); err != nil {
				t.Errorf("deleting a missing run should succeed: %v", err)
			}
		})
	}
}

// createTestRun creates a valid run for testing.
func createTestRun(id string, started time.Time) *types.RunResult {
	return &types.RunResult{
		RunID:       id,
		Action:      types.ActionStop,
		TagKey:      "Schedule",
		StartedAt:   started,
		CompletedAt: started.Add(time.Minute),
		Discovered:  1,
		Report: types.RunReport{
			ProcessedClusters: []string{"a"},
			SkippedClusters:   []string{},
			FailedClusters:    []string{},
		},
	}
}
