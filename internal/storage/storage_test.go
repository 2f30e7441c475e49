package storage_test

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"scrub/internal/pipeline"
	"scrub/internal/storage"
)

// ─────────────────────────────────────────────────────────────
// Storage tests — real SQLite files under t.TempDir()
// ─────────────────────────────────────────────────────────────

func openDB(t *testing.T) *storage.DB {
	t.Helper()
	db, err := storage.New(filepath.Join(t.TempDir(), "scrub.db"))
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

func sampleJob(name string) *pipeline.Job {
	return &pipeline.Job{
		Name:       name,
		ReaderType: "csv_file",
		ReaderConfig: map[string]any{
			"filePath": "/data/input.csv",
		},
		Pipeline: pipeline.Config{
			Fields: map[string][]pipeline.FieldSource{
				"name": {{Column: "name", Extractor: "text"}},
			},
			Required: []string{"name"},
			Identity: []string{"name"},
		},
	}
}

// ── JobStore ───────────────────────────────────────────────

func TestJobStore_CreateAndGet(t *testing.T) {
	store := storage.NewJobStore(openDB(t))

	job := sampleJob("customers")
	if err := store.CreateJob(job); err != nil {
		t.Fatalf("create: %v", err)
	}
	if job.ID == "" {
		t.Fatal("create should assign an id")
	}
	if job.TriggerType != pipeline.TriggerManual {
		t.Errorf("trigger should default to manual, got %q", job.TriggerType)
	}

	got, err := store.GetJob(job.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.Name != "customers" || got.ReaderType != "csv_file" {
		t.Errorf("round-trip lost fields: %+v", got)
	}
	if got.ReaderConfig["filePath"] != "/data/input.csv" {
		t.Errorf("reader config did not round-trip: %v", got.ReaderConfig)
	}
	if len(got.Pipeline.Fields["name"]) != 1 {
		t.Errorf("pipeline config did not round-trip: %+v", got.Pipeline)
	}
}

func TestJobStore_GetMissing(t *testing.T) {
	store := storage.NewJobStore(openDB(t))
	if _, err := store.GetJob("nope"); err == nil {
		t.Error("expected an error for a missing job")
	}
}

func TestJobStore_UpdateAndStatus(t *testing.T) {
	store := storage.NewJobStore(openDB(t))

	job := sampleJob("orders")
	if err := store.CreateJob(job); err != nil {
		t.Fatalf("create: %v", err)
	}

	job.Name = "orders-v2"
	job.Enabled = true
	if err := store.UpdateJob(job); err != nil {
		t.Fatalf("update: %v", err)
	}
	if err := store.UpdateJobStatus(job.ID, "success", ""); err != nil {
		t.Fatalf("update status: %v", err)
	}

	got, _ := store.GetJob(job.ID)
	if got.Name != "orders-v2" || !got.Enabled {
		t.Errorf("update not persisted: %+v", got)
	}
	if got.LastStatus != "success" {
		t.Errorf("status not persisted: %q", got.LastStatus)
	}
}

func TestJobStore_DeleteKeepsRuns(t *testing.T) {
	db := openDB(t)
	jobs := storage.NewJobStore(db)
	runs := storage.NewRunStore(db)

	job := sampleJob("ephemeral")
	if err := jobs.CreateJob(job); err != nil {
		t.Fatalf("create: %v", err)
	}
	sum := &pipeline.Summary{
		RunID:     "run-1",
		StartedAt: time.Now(),
		Status:    pipeline.StatusSuccess,
		Rejected:  map[pipeline.Reason]int{},
	}
	if err := runs.SaveSummary(job.ID, sum); err != nil {
		t.Fatalf("save summary: %v", err)
	}

	if err := jobs.DeleteJob(job.ID); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if _, err := jobs.GetJob(job.ID); err == nil {
		t.Error("job should be gone")
	}
	if _, err := runs.GetRun("run-1"); err != nil {
		t.Errorf("run history must outlive its job: %v", err)
	}
}

func TestJobStore_ListEnabledTriggeredJobs(t *testing.T) {
	store := storage.NewJobStore(openDB(t))

	manual := sampleJob("manual")
	manual.Enabled = true

	scheduled := sampleJob("scheduled")
	scheduled.Enabled = true
	scheduled.TriggerType = pipeline.TriggerSchedule
	scheduled.TriggerConfig = "*/5 * * * *"

	disabled := sampleJob("disabled")
	disabled.TriggerType = pipeline.TriggerFileWatch
	disabled.TriggerConfig = "/data/drop"

	for _, j := range []*pipeline.Job{manual, scheduled, disabled} {
		if err := store.CreateJob(j); err != nil {
			t.Fatalf("create %s: %v", j.Name, err)
		}
	}

	triggered, err := store.ListEnabledTriggeredJobs()
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(triggered) != 1 || triggered[0].Name != "scheduled" {
		t.Errorf("expected only the enabled scheduled job, got %+v", triggered)
	}
}

// ── RunStore ───────────────────────────────────────────────

func TestRunStore_SaveAndLoadSummary(t *testing.T) {
	store := storage.NewRunStore(openDB(t))

	sum := &pipeline.Summary{
		RunID:      "run-42",
		StartedAt:  time.Now().Add(-time.Minute),
		FinishedAt: time.Now(),
		Status:     pipeline.StatusSuccess,
		Total:      4,
		Accepted:   2,
		Duplicates: 1,
		Rejected:   map[pipeline.Reason]int{"BAD_EMAIL": 1},
		Rows: []pipeline.RowOutcome{
			{RowNum: 1, Disposition: pipeline.DispositionAccepted, RecordID: "rec-1"},
			{RowNum: 2, Disposition: pipeline.DispositionRejected, Reason: "BAD_EMAIL", Detail: "email"},
			{RowNum: 3, Disposition: pipeline.DispositionDuplicate, DuplicateOf: "rec-1"},
			{RowNum: 4, Disposition: pipeline.DispositionAccepted, RecordID: "rec-2"},
		},
	}
	if err := store.SaveSummary("job-1", sum); err != nil {
		t.Fatalf("save: %v", err)
	}

	run, err := store.GetRun("run-42")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if run.JobID != "job-1" || run.Total != 4 || run.Accepted != 2 || run.Rejected != 1 {
		t.Errorf("summary did not round-trip: %+v", run)
	}
	if run.Reasons["BAD_EMAIL"] != 1 {
		t.Errorf("reason breakdown lost: %v", run.Reasons)
	}

	outcomes, err := store.ListOutcomes("run-42")
	if err != nil {
		t.Fatalf("outcomes: %v", err)
	}
	if len(outcomes) != 4 {
		t.Fatalf("expected 4 outcomes, got %d", len(outcomes))
	}
	if outcomes[2].DuplicateOf != "rec-1" {
		t.Errorf("duplicate reference lost: %+v", outcomes[2])
	}
	for i, o := range outcomes {
		if o.RowNum != i+1 {
			t.Errorf("outcomes must come back in row order: %+v", outcomes)
			break
		}
	}
}

func TestRunStore_ListRunsNewestFirst(t *testing.T) {
	store := storage.NewRunStore(openDB(t))

	base := time.Now()
	for i := 0; i < 3; i++ {
		sum := &pipeline.Summary{
			RunID:     []string{"old", "mid", "new"}[i],
			StartedAt: base.Add(time.Duration(i) * time.Hour),
			Status:    pipeline.StatusSuccess,
			Rejected:  map[pipeline.Reason]int{},
		}
		if err := store.SaveSummary("job-1", sum); err != nil {
			t.Fatalf("save %d: %v", i, err)
		}
	}

	runs, err := store.ListRuns("job-1", 0)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(runs) != 3 || runs[0].ID != "new" || runs[2].ID != "old" {
		t.Errorf("expected newest first, got %+v", runs)
	}

	all, err := store.ListRuns("", 2)
	if err != nil {
		t.Fatalf("list all: %v", err)
	}
	if len(all) != 2 {
		t.Errorf("limit not honored: got %d", len(all))
	}
}

// ── CleanStore ─────────────────────────────────────────────

func TestCleanStore_CommitAndReload(t *testing.T) {
	store := storage.NewCleanStore(openDB(t))
	ctx := context.Background()

	rec := &pipeline.DestinationRecord{
		ID:          "rec-1",
		RunID:       "run-1",
		RowNum:      3,
		IdentityKey: "key-1",
		Fields:      map[string]any{"name": "Ann", "age": 34.0},
	}
	if err := store.Commit(ctx, rec); err != nil {
		t.Fatalf("commit: %v", err)
	}

	got, err := store.GetRecord(ctx, "rec-1")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.IdentityKey != "key-1" || got.Fields["name"] != "Ann" {
		t.Errorf("record did not round-trip: %+v", got)
	}

	n, err := store.CountRecords(ctx)
	if err != nil || n != 1 {
		t.Errorf("expected 1 record, got %d (%v)", n, err)
	}
}

func TestCleanStore_DuplicateIdentityIsStructuralRejection(t *testing.T) {
	store := storage.NewCleanStore(openDB(t))
	ctx := context.Background()

	a := &pipeline.DestinationRecord{ID: "rec-1", IdentityKey: "same", Fields: map[string]any{}}
	b := &pipeline.DestinationRecord{ID: "rec-2", IdentityKey: "same", Fields: map[string]any{}}

	if err := store.Commit(ctx, a); err != nil {
		t.Fatalf("first commit: %v", err)
	}
	err := store.Commit(ctx, b)
	if !errors.Is(err, pipeline.ErrDestinationRejected) {
		t.Fatalf("identity collision should wrap ErrDestinationRejected, got %v", err)
	}

	// The losing record never became visible.
	n, _ := store.CountRecords(ctx)
	if n != 1 {
		t.Errorf("expected 1 record after rejected commit, got %d", n)
	}
}

func TestCleanStore_SeedIndex(t *testing.T) {
	store := storage.NewCleanStore(openDB(t))
	ctx := context.Background()

	for i, key := range []string{"k1", "k2"} {
		rec := &pipeline.DestinationRecord{
			ID:          []string{"rec-1", "rec-2"}[i],
			IdentityKey: key,
			Fields:      map[string]any{},
		}
		if err := store.Commit(ctx, rec); err != nil {
			t.Fatalf("commit %s: %v", key, err)
		}
	}

	seed, err := store.SeedIndex(ctx)
	if err != nil {
		t.Fatalf("seed: %v", err)
	}
	if len(seed) != 2 || seed["k1"] != "rec-1" || seed["k2"] != "rec-2" {
		t.Errorf("unexpected seed index: %v", seed)
	}
}
