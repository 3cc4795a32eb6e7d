package runstore

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/dispatchlab/fieldops/core/model"
)

func rec(id, tenant string, started time.Time, status model.RunStatus) Record {
	return Record{Run: model.Run{
		ID:        id,
		TenantID:  tenant,
		Trigger:   model.TriggerBatch,
		Status:    status,
		StartedAt: started,
	}}
}

func TestMemoryStoreSaveGet(t *testing.T) {
	s := NewMemoryStore()
	base := time.Date(2025, 6, 2, 8, 0, 0, 0, time.UTC)
	if err := s.Save(context.Background(), rec("run-1", "acme", base, model.RunCompleted)); err != nil {
		t.Fatalf("save: %v", err)
	}
	got, err := s.Get(context.Background(), "run-1")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.Run.TenantID != "acme" || got.Run.Status != model.RunCompleted {
		t.Fatalf("unexpected record %+v", got.Run)
	}
}

func TestMemoryStoreGetMissing(t *testing.T) {
	s := NewMemoryStore()
	if _, err := s.Get(context.Background(), "ghost"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestMemoryStoreSaveRequiresID(t *testing.T) {
	s := NewMemoryStore()
	if err := s.Save(context.Background(), Record{}); err == nil {
		t.Fatal("expected an error for an empty run id")
	}
}

func TestMemoryStoreSaveReplacesStatus(t *testing.T) {
	s := NewMemoryStore()
	base := time.Date(2025, 6, 2, 8, 0, 0, 0, time.UTC)
	r := rec("run-1", "acme", base, model.RunRunning)
	if err := s.Save(context.Background(), r); err != nil {
		t.Fatalf("save: %v", err)
	}
	r.Run.Status = model.RunCompleted
	r.Run.FinishedAt = base.Add(10 * time.Second)
	if err := s.Save(context.Background(), r); err != nil {
		t.Fatalf("resave: %v", err)
	}
	got, err := s.Get(context.Background(), "run-1")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.Run.Status != model.RunCompleted {
		t.Fatalf("expected completed, got %s", got.Run.Status)
	}
}

func TestMemoryStoreListFiltersAndOrders(t *testing.T) {
	s := NewMemoryStore()
	base := time.Date(2025, 6, 2, 8, 0, 0, 0, time.UTC)
	ctx := context.Background()
	_ = s.Save(ctx, rec("run-b", "acme", base.Add(time.Hour), model.RunCompleted))
	_ = s.Save(ctx, rec("run-a", "acme", base, model.RunCompleted))
	_ = s.Save(ctx, rec("run-c", "acme", base.Add(2*time.Hour), model.RunFailed))
	_ = s.Save(ctx, rec("run-d", "other", base, model.RunCompleted))

	out, err := s.List(ctx, Query{TenantID: "acme"})
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(out) != 3 {
		t.Fatalf("expected 3 records, got %d", len(out))
	}
	for i, want := range []string{"run-a", "run-b", "run-c"} {
		if out[i].Run.ID != want {
			t.Fatalf("position %d: expected %s, got %s", i, want, out[i].Run.ID)
		}
	}

	out, err = s.List(ctx, Query{TenantID: "acme", Status: model.RunCompleted})
	if err != nil {
		t.Fatalf("list by status: %v", err)
	}
	if len(out) != 2 {
		t.Fatalf("expected 2 completed records, got %d", len(out))
	}

	out, err = s.List(ctx, Query{Start: base.Add(30 * time.Minute), End: base.Add(90 * time.Minute)})
	if err != nil {
		t.Fatalf("list by range: %v", err)
	}
	if len(out) != 1 || out[0].Run.ID != "run-b" {
		t.Fatalf("expected only run-b in range, got %+v", out)
	}

	out, err = s.List(ctx, Query{TenantID: "acme", Limit: 2})
	if err != nil {
		t.Fatalf("list with limit: %v", err)
	}
	if len(out) != 2 || out[0].Run.ID != "run-a" {
		t.Fatalf("expected the 2 earliest records, got %+v", out)
	}
}

func TestMemoryStorePurgeBefore(t *testing.T) {
	s := NewMemoryStore()
	base := time.Date(2025, 6, 2, 8, 0, 0, 0, time.UTC)
	ctx := context.Background()
	_ = s.Save(ctx, rec("run-old", "acme", base.AddDate(0, 0, -40), model.RunCompleted))
	_ = s.Save(ctx, rec("run-new", "acme", base, model.RunCompleted))

	n, err := s.PurgeBefore(ctx, base.AddDate(0, 0, -30))
	if err != nil {
		t.Fatalf("purge: %v", err)
	}
	if n != 1 {
		t.Fatalf("expected 1 purged record, got %d", n)
	}
	if _, err := s.Get(ctx, "run-old"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected run-old gone, got %v", err)
	}
	if _, err := s.Get(ctx, "run-new"); err != nil {
		t.Fatalf("run-new should survive: %v", err)
	}
}
