package history

import (
	"context"
	"database/sql"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestStore_OpenInitializesSchemaAndSaveLoad(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "history.db")
	store, err := Open(path, 0)
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	defer store.Close()

	base := time.Date(2026, 2, 13, 10, 0, 0, 0, time.UTC)
	first := Run{ID: "run-1", StartedAt: base, Status: StatusFail, FailedStage: "REQUIRED_COVERAGE", MissingSymbols: 3}
	update := Run{ID: "run-1", StartedAt: base, FinishedAt: base.Add(time.Minute), Status: StatusFail, FailedStage: "REQUIRED_COVERAGE", MissingSymbols: 4}
	second := Run{ID: "run-2", StartedAt: base.Add(2 * time.Hour), Status: StatusPass, RequiredSymbols: 120, GKIMismatches: 0}

	for _, run := range []Run{first, update, second} {
		if err := store.SaveRun(ctx, run); err != nil {
			t.Fatalf("save %s: %v", run.ID, err)
		}
	}

	got, err := store.LoadRuns(ctx, base.Add(time.Hour), 0)
	if err != nil {
		t.Fatalf("load runs: %v", err)
	}
	if len(got) != 1 || got[0].ID != "run-2" {
		t.Fatalf("expected only run-2 after since filter, got %+v", got)
	}
	if got[0].RequiredSymbols != 120 || !got[0].FinishedAt.IsZero() {
		t.Fatalf("unexpected roundtrip: %+v", got[0])
	}

	all, err := store.LoadRuns(ctx, time.Time{}, 0)
	if err != nil {
		t.Fatalf("load all runs: %v", err)
	}
	if len(all) != 2 {
		t.Fatalf("expected upserted 2 runs, got %d", len(all))
	}
	if all[0].MissingSymbols != 4 || !all[0].FinishedAt.Equal(base.Add(time.Minute)) {
		t.Fatalf("expected upserted run-1, got %+v", all[0])
	}
}

func TestStore_LoadRunsLimitKeepsNewest(t *testing.T) {
	ctx := context.Background()
	store, err := Open(filepath.Join(t.TempDir(), "history.db"), time.Second)
	if err != nil {
		t.Fatal(err)
	}
	defer store.Close()

	base := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	for i, id := range []string{"a", "b", "c"} {
		if err := store.SaveRun(ctx, Run{ID: id, StartedAt: base.Add(time.Duration(i) * time.Hour), Status: StatusPass}); err != nil {
			t.Fatal(err)
		}
	}

	got, err := store.LoadRuns(ctx, time.Time{}, 2)
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 2 || got[0].ID != "b" || got[1].ID != "c" {
		t.Fatalf("expected [b c], got %+v", got)
	}
}

func TestStore_SaveRunRequiresID(t *testing.T) {
	store, err := Open(filepath.Join(t.TempDir(), "history.db"), 0)
	if err != nil {
		t.Fatal(err)
	}
	defer store.Close()

	if err := store.SaveRun(context.Background(), Run{Status: StatusPass}); err == nil {
		t.Fatal("expected error for empty run id")
	}
}

func TestStore_OpenRejectsDirectoryPath(t *testing.T) {
	_, err := Open(t.TempDir(), 0)
	if err == nil {
		t.Fatal("expected open error for directory path")
	}
	if !strings.Contains(err.Error(), "is a directory") {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestStore_OpenCorruptDBPath(t *testing.T) {
	path := filepath.Join(t.TempDir(), "history.db")
	if err := os.WriteFile(path, []byte("this is not sqlite"), 0o644); err != nil {
		t.Fatal(err)
	}
	_, err := Open(path, 0)
	if err == nil {
		t.Fatal("expected sqlite open error")
	}
	lower := strings.ToLower(err.Error())
	if !strings.Contains(lower, "not a database") && !strings.Contains(lower, "schema") {
		t.Fatalf("expected schema/open error, got: %v", err)
	}
}

func TestEnsureSchema_DetectsNewerVersionDrift(t *testing.T) {
	path := filepath.Join(t.TempDir(), "history.db")
	store, err := Open(path, 0)
	if err != nil {
		t.Fatal(err)
	}
	defer store.Close()

	_, err = store.db.Exec(`INSERT OR REPLACE INTO schema_migrations(version) VALUES (?)`, SchemaVersion+1)
	if err != nil {
		t.Fatal(err)
	}

	db, err := sql.Open(driverName, "file:"+path)
	if err != nil {
		t.Fatal(err)
	}
	defer db.Close()
	err = EnsureSchema(db)
	if err == nil {
		t.Fatal("expected drift error")
	}
	if !strings.Contains(err.Error(), "newer than supported") {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestBuildTrend(t *testing.T) {
	base := time.Date(2026, 2, 13, 10, 0, 0, 0, time.UTC)
	runs := []Run{
		{ID: "3", StartedAt: base.Add(3 * time.Hour), Status: StatusFail, FailedStage: "VERSION_GKI"},
		{ID: "1", StartedAt: base, Status: StatusPass},
		{ID: "2", StartedAt: base.Add(time.Hour), Status: StatusFail, FailedStage: "VERSION_GKI"},
		{ID: "4", StartedAt: base.Add(4 * time.Hour), Status: StatusError},
	}

	trend := BuildTrend(runs)
	if trend.Runs != 4 || trend.Passed != 1 || trend.Failed != 3 {
		t.Fatalf("unexpected counts: %+v", trend)
	}
	if trend.PassRate != 25 {
		t.Fatalf("expected pass rate 25, got %v", trend.PassRate)
	}
	if trend.FailuresByStage["VERSION_GKI"] != 2 || trend.FailuresByStage["UNKNOWN"] != 1 {
		t.Fatalf("unexpected failures by stage: %+v", trend.FailuresByStage)
	}
	if trend.CurrentStreak != -3 {
		t.Fatalf("expected streak -3, got %d", trend.CurrentStreak)
	}
	if !trend.LastPass.Equal(base) {
		t.Fatalf("unexpected last pass: %v", trend.LastPass)
	}
}

func TestBuildTrendEmpty(t *testing.T) {
	trend := BuildTrend(nil)
	if trend.Runs != 0 || trend.CurrentStreak != 0 {
		t.Fatalf("unexpected empty trend: %+v", trend)
	}
}

func TestAdapterNilStoreIsNoop(t *testing.T) {
	a := NewAdapter(nil)
	if err := a.SaveRun(context.Background(), Run{ID: "x"}); err != nil {
		t.Fatal(err)
	}
	runs, err := a.LoadRuns(context.Background(), time.Time{}, 0)
	if err != nil || runs != nil {
		t.Fatalf("expected nil runs, got %v %v", runs, err)
	}
}

func TestIsCorruptError(t *testing.T) {
	if !IsCorruptError(errors.New("database disk image is malformed")) {
		t.Fatal("expected malformed sqlite message to be treated as corrupt")
	}
}
