package survey

import (
	"sort"
	"sync"
)

// Job lifecycle states.
const (
	StateQueued     = "queued"
	StateProcessing = "processing"
	StateCompleted  = "completed"
	StateError      = "error"
)

// Status is the lifecycle record for one survey job as exposed by the
// status endpoint and the live channel.
type Status struct {
	Status   string `json:"status"`
	Progress int    `json:"progress"`
	Message  string `json:"message"`
}

// StatusStore holds the status of every known job. Each mutation replaces
// the whole value for a key; only a job's own pipeline writes its entry
// after admission, so readers never observe a torn update.
type StatusStore struct {
	mu       sync.RWMutex
	statuses map[string]Status
}

// NewStatusStore creates an empty status store.
func NewStatusStore() *StatusStore {
	return &StatusStore{statuses: make(map[string]Status)}
}

// Set replaces the status for a job id.
func (s *StatusStore) Set(id string, st Status) {
	s.mu.Lock()
	s.statuses[id] = st
	s.mu.Unlock()
}

// Get returns the status for a job id.
func (s *StatusStore) Get(id string) (Status, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	st, ok := s.statuses[id]
	return st, ok
}

// Delete removes a job id. Admitted jobs are never deleted; this exists so
// an upload refused at admission leaves no phantom entry behind.
func (s *StatusStore) Delete(id string) {
	s.mu.Lock()
	delete(s.statuses, id)
	s.mu.Unlock()
}

// IDs returns all known job ids in lexicographic order.
func (s *StatusStore) IDs() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	ids := make([]string, 0, len(s.statuses))
	for id := range s.statuses {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// Len returns the number of known jobs.
func (s *StatusStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.statuses)
}
