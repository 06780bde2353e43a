package service

import (
	"testing"
	"time"

	"github.com/calin/convohist/internal/domain"
)

func TestRegistryPutGetDelete(t *testing.T) {
	r := NewRegistry()

	if _, ok := r.Get("missing"); ok {
		t.Error("Get() on empty registry returned ok")
	}

	job := &domain.ExportJob{ID: "j1", Status: domain.JobStatusProcessing, CreatedAt: time.Now()}
	r.Put(job)

	got, ok := r.Get("j1")
	if !ok || got.ID != "j1" {
		t.Fatalf("Get() = %+v, %v", got, ok)
	}

	// Snapshots must not alias the stored job
	got.Status = domain.JobStatusFailed
	again, _ := r.Get("j1")
	if again.Status != domain.JobStatusProcessing {
		t.Error("Get() returned an aliased job")
	}

	r.Delete("j1")
	if r.Len() != 0 {
		t.Errorf("Len() = %d after delete, want 0", r.Len())
	}
}

func TestRegistryUpdateReportsExistence(t *testing.T) {
	r := NewRegistry()
	r.Put(&domain.ExportJob{ID: "j1"})

	ok := r.Update("j1", func(job *domain.ExportJob) {
		job.Status = domain.JobStatusComplete
	})
	if !ok {
		t.Fatal("Update() on existing job returned false")
	}
	got, _ := r.Get("j1")
	if got.Status != domain.JobStatusComplete {
		t.Errorf("Status = %s, want complete", got.Status)
	}

	called := false
	ok = r.Update("gone", func(job *domain.ExportJob) { called = true })
	if ok {
		t.Error("Update() on missing job returned true")
	}
	if called {
		t.Error("Update() invoked fn for a missing job")
	}
}

func TestRegistrySnapshot(t *testing.T) {
	r := NewRegistry()
	r.Put(&domain.ExportJob{ID: "a"})
	r.Put(&domain.ExportJob{ID: "b"})

	snap := r.Snapshot()
	if len(snap) != 2 {
		t.Fatalf("Snapshot() returned %d jobs, want 2", len(snap))
	}

	// Mutating the snapshot must not touch the registry
	snap[0].Status = domain.JobStatusFailed
	for _, id := range []string{"a", "b"} {
		job, _ := r.Get(id)
		if job.Status == domain.JobStatusFailed {
			t.Error("Snapshot() returned aliased jobs")
		}
	}
}
