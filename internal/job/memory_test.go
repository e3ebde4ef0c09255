package job

import (
	"context"
	"errors"
	"testing"
	"time"
)

func newTestJob(id string) *Job {
	return &Job{
		ID:               id,
		Direction:        "pdf-to-word",
		OriginalFilename: "report.pdf",
		SourceFormat:     "pdf",
		TargetFormat:     "docx",
		Mode:             "auto",
		Status:           StatusPending,
		InputPath:        "/tmp/in/" + id + ".pdf",
		CreatedAt:        time.Now().UTC(),
	}
}

func TestMemoryStore_Lifecycle(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()
	defer s.Close()

	if err := s.Create(ctx, newTestJob("a")); err != nil {
		t.Fatalf("Create: %v", err)
	}

	j, err := s.Get(ctx, "a")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if j.Status != StatusPending {
		t.Fatalf("status = %q, want pending", j.Status)
	}

	if err := s.MarkProcessing(ctx, "a"); err != nil {
		t.Fatalf("MarkProcessing: %v", err)
	}
	j, _ = s.Get(ctx, "a")
	if j.Status != StatusProcessing {
		t.Fatalf("status = %q, want processing", j.Status)
	}
	if j.StartedAt == nil {
		t.Error("StartedAt not set")
	}

	artifact := Artifact{
		Method:   "direct-text",
		Path:     "/tmp/out/a.docx",
		Filename: "report_converted.docx",
		Size:     1234,
		Metadata: map[string]any{"page_count": 3},
	}
	if err := s.Complete(ctx, "a", artifact); err != nil {
		t.Fatalf("Complete: %v", err)
	}

	j, _ = s.Get(ctx, "a")
	if j.Status != StatusCompleted {
		t.Fatalf("status = %q, want completed", j.Status)
	}
	if j.Method != "direct-text" || j.OutputPath != artifact.Path || j.FileSize != 1234 {
		t.Errorf("artifact fields not recorded: %+v", j)
	}
	if j.CompletedAt == nil {
		t.Error("CompletedAt not set")
	}
}

func TestMemoryStore_TerminalIsFinal(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()
	defer s.Close()

	s.Create(ctx, newTestJob("a"))
	s.MarkProcessing(ctx, "a")
	if err := s.Fail(ctx, "a", "boom"); err != nil {
		t.Fatalf("Fail: %v", err)
	}

	if err := s.Complete(ctx, "a", Artifact{Path: "x"}); !errors.Is(err, ErrTerminal) {
		t.Errorf("Complete after Fail: err = %v, want ErrTerminal", err)
	}
	if err := s.Fail(ctx, "a", "again"); !errors.Is(err, ErrTerminal) {
		t.Errorf("Fail after Fail: err = %v, want ErrTerminal", err)
	}
	if err := s.MarkProcessing(ctx, "a"); !errors.Is(err, ErrTerminal) {
		t.Errorf("MarkProcessing after Fail: err = %v, want ErrTerminal", err)
	}

	j, _ := s.Get(ctx, "a")
	if j.Error != "boom" {
		t.Errorf("error = %q, want the first failure reason", j.Error)
	}
}

func TestMemoryStore_GetUnknown(t *testing.T) {
	s := NewMemoryStore()
	defer s.Close()

	if _, err := s.Get(context.Background(), "nope"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("err = %v, want ErrNotFound", err)
	}
}

func TestMemoryStore_CloneIsolation(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()
	defer s.Close()

	orig := newTestJob("a")
	orig.Metadata = map[string]any{"k": "v"}
	s.Create(ctx, orig)

	// Mutating what the caller holds must not leak into the store.
	got, _ := s.Get(ctx, "a")
	got.Status = StatusFailed
	got.Metadata["k"] = "mutated"

	again, _ := s.Get(ctx, "a")
	if again.Status != StatusPending {
		t.Errorf("status leaked: %q", again.Status)
	}
	if again.Metadata["k"] != "v" {
		t.Errorf("metadata leaked: %v", again.Metadata)
	}
}

func TestMemoryStore_ClearArtifact(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()
	defer s.Close()

	s.Create(ctx, newTestJob("a"))
	s.MarkProcessing(ctx, "a")
	s.Complete(ctx, "a", Artifact{Path: "/tmp/out/a.docx", Filename: "a.docx", Size: 10})

	if err := s.ClearArtifact(ctx, "a"); err != nil {
		t.Fatalf("ClearArtifact: %v", err)
	}

	j, _ := s.Get(ctx, "a")
	if j.OutputPath != "" {
		t.Errorf("OutputPath = %q, want cleared", j.OutputPath)
	}
	// The record itself must survive so status polls keep resolving.
	if j.Status != StatusCompleted || j.OutputFilename != "a.docx" {
		t.Errorf("record damaged by ClearArtifact: %+v", j)
	}
}

func TestMemoryStore_FailProcessing(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()
	defer s.Close()

	s.Create(ctx, newTestJob("pending"))
	s.Create(ctx, newTestJob("running"))
	s.MarkProcessing(ctx, "running")
	s.Create(ctx, newTestJob("done"))
	s.MarkProcessing(ctx, "done")
	s.Complete(ctx, "done", Artifact{Path: "x"})

	ids, err := s.FailProcessing(ctx)
	if err != nil {
		t.Fatalf("FailProcessing: %v", err)
	}
	if len(ids) != 2 {
		t.Fatalf("failed %d jobs, want 2: %v", len(ids), ids)
	}

	for _, id := range []string{"pending", "running"} {
		j, _ := s.Get(ctx, id)
		if j.Status != StatusFailed {
			t.Errorf("%s status = %q, want failed", id, j.Status)
		}
	}
	j, _ := s.Get(ctx, "done")
	if j.Status != StatusCompleted {
		t.Errorf("completed job touched by FailProcessing")
	}
}

func TestMemoryStore_DeleteTerminalBefore(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()
	defer s.Close()

	// Seed a job that finished two days ago.
	old := newTestJob("old")
	old.Status = StatusFailed
	oldDone := time.Now().UTC().Add(-48 * time.Hour)
	old.CompletedAt = &oldDone
	s.Create(ctx, old)

	fresh := newTestJob("fresh")
	s.Create(ctx, fresh)
	s.MarkProcessing(ctx, "fresh")
	s.Fail(ctx, "fresh", "x")

	stuck := newTestJob("stuck")
	stuck.CreatedAt = time.Now().Add(-48 * time.Hour)
	s.Create(ctx, stuck)

	n, err := s.DeleteTerminalBefore(ctx, time.Now().Add(-24*time.Hour))
	if err != nil {
		t.Fatalf("DeleteTerminalBefore: %v", err)
	}
	if n != 1 {
		t.Fatalf("deleted %d, want 1", n)
	}

	if _, err := s.Get(ctx, "old"); !errors.Is(err, ErrNotFound) {
		t.Error("old terminal job not purged")
	}
	if _, err := s.Get(ctx, "fresh"); err != nil {
		t.Error("fresh terminal job purged too early")
	}
	// Non-terminal jobs are never purged regardless of age.
	if _, err := s.Get(ctx, "stuck"); err != nil {
		t.Error("pending job purged")
	}
}
