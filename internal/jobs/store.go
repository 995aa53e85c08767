// Package jobs tracks visualization jobs through their lifecycle and runs
// the background pipeline that completes them.
package jobs

import (
	"sync"
	"time"
)

// Status enumerates job lifecycle states. A job transitions from pending to
// exactly one terminal state and never leaves it.
type Status string

const (
	StatusPending   Status = "pending"
	StatusCompleted Status = "completed"
	StatusFailed    Status = "failed"
)

// Result is the payload of a completed job.
type Result struct {
	Filename string `json:"filename"`
}

// Job is the unit of tracked work. Instances are owned by the Store; callers
// only ever see copies.
type Job struct {
	ID        string
	Status    Status
	Result    *Result
	Error     string
	CreatedAt time.Time
}

// DefaultMaxAge is how long a job survives before eviction.
const DefaultMaxAge = time.Hour

// Store is the authoritative in-memory map of jobs, guarded by a single
// lock. State transitions on one job are serialized by that lock, so a
// terminal status can never be overwritten.
type Store struct {
	mu   sync.Mutex
	jobs map[string]*Job
	now  func() time.Time
}

// NewStore constructs an empty Store.
func NewStore() *Store {
	return &Store{
		jobs: make(map[string]*Job),
		now:  time.Now,
	}
}

// Create inserts a new pending job under the given identifier.
func (s *Store) Create(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.jobs[id] = &Job{
		ID:        id,
		Status:    StatusPending,
		CreatedAt: s.now(),
	}
}

// Get returns a copy of the job and whether it exists.
func (s *Store) Get(id string) (Job, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	j, ok := s.jobs[id]
	if !ok {
		return Job{}, false
	}
	return *j, true
}

// Complete transitions the job to completed with the given result. Calls on
// a job already in a terminal state are ignored.
func (s *Store) Complete(id string, result Result) {
	s.mu.Lock()
	defer s.mu.Unlock()
	j, ok := s.jobs[id]
	if !ok || j.Status != StatusPending {
		return
	}
	j.Status = StatusCompleted
	j.Result = &result
}

// Fail transitions the job to failed with the given message. Calls on a job
// already in a terminal state are ignored.
func (s *Store) Fail(id, message string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	j, ok := s.jobs[id]
	if !ok || j.Status != StatusPending {
		return
	}
	j.Status = StatusFailed
	j.Error = message
}

// EvictStale removes every job older than maxAge. It is called
// opportunistically before reads rather than on a timer, so staleness is
// bounded only at read time.
func (s *Store) EvictStale(maxAge time.Duration) {
	if maxAge <= 0 {
		maxAge = DefaultMaxAge
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	cutoff := s.now().Add(-maxAge)
	for id, j := range s.jobs {
		if j.CreatedAt.Before(cutoff) {
			delete(s.jobs, id)
		}
	}
}

// Len reports the number of tracked jobs.
func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.jobs)
}
