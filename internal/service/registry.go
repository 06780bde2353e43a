package service

import (
	"sync"

	"github.com/calin/convohist/internal/domain"
)

// Registry is the process-wide store of export jobs. It is constructor
// injected so every caller (and test) owns its own empty registry. A
// single coarse lock is sufficient: only the owning worker writes to a
// job's mutable fields, status polls read snapshots.
type Registry struct {
	mu   sync.RWMutex
	jobs map[string]*domain.ExportJob
}

// NewRegistry creates an empty job registry.
func NewRegistry() *Registry {
	return &Registry{jobs: make(map[string]*domain.ExportJob)}
}

// Put inserts or replaces a job.
func (r *Registry) Put(job *domain.ExportJob) {
	r.mu.Lock()
	r.jobs[job.ID] = job
	r.mu.Unlock()
}

// Get returns a snapshot copy of a job.
func (r *Registry) Get(id string) (domain.ExportJob, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	job, ok := r.jobs[id]
	if !ok {
		return domain.ExportJob{}, false
	}
	return *job, true
}

// Update applies fn to a job under the lock and reports whether the job
// still exists. Workers use the return value to detect that the reaper
// removed their job mid-flight and exit quietly.
func (r *Registry) Update(id string, fn func(job *domain.ExportJob)) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	job, ok := r.jobs[id]
	if !ok {
		return false
	}
	fn(job)
	return true
}

// Delete removes a job.
func (r *Registry) Delete(id string) {
	r.mu.Lock()
	delete(r.jobs, id)
	r.mu.Unlock()
}

// Snapshot returns copies of all jobs, for reaper iteration.
func (r *Registry) Snapshot() []domain.ExportJob {
	r.mu.RLock()
	defer r.mu.RUnlock()
	jobs := make([]domain.ExportJob, 0, len(r.jobs))
	for _, job := range r.jobs {
		jobs = append(jobs, *job)
	}
	return jobs
}

// Len returns the number of registered jobs.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.jobs)
}
