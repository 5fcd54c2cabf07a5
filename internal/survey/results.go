package survey

import (
	"encoding/json"
	"errors"
	"fmt"
	"path/filepath"
	"sync"

	"github.com/pavescan-data/surface.report/internal/fsutil"
	"github.com/pavescan-data/surface.report/internal/security"
)

// ErrReportNotFound is returned when no report exists for a job id, either
// in memory or as a durable file.
var ErrReportNotFound = errors.New("report not found")

// ResultStore keeps completed reports in memory and mirrors each one to a
// JSON file named by job id. Reads check memory first and fall back to the
// file, re-caching it, so reports survive a process restart.
type ResultStore struct {
	mu  sync.RWMutex
	dir string
	fs  fsutil.FileSystem
	mem map[string]*Report
}

// NewResultStore creates a result store rooted at dir, creating the
// directory if needed.
func NewResultStore(dir string, fs fsutil.FileSystem) (*ResultStore, error) {
	if fs == nil {
		fs = fsutil.OSFileSystem{}
	}
	if err := fs.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("create results directory: %w", err)
	}
	return &ResultStore{
		dir: dir,
		fs:  fs,
		mem: make(map[string]*Report),
	}, nil
}

// Put stores a completed report in memory and writes its durable file.
// The in-memory copy is kept even if the file write fails, so the results
// endpoint can still serve the run that produced it.
func (s *ResultStore) Put(r *Report) error {
	s.mu.Lock()
	s.mem[r.VideoID] = r
	s.mu.Unlock()

	path, err := s.path(r.VideoID)
	if err != nil {
		return err
	}
	data, err := json.MarshalIndent(r, "", "  ")
	if err != nil {
		return fmt.Errorf("encode report %s: %w", r.VideoID, err)
	}
	if err := s.fs.WriteFile(path, data, 0644); err != nil {
		opsf("failed to persist report %s: %v", r.VideoID, err)
		return fmt.Errorf("write report %s: %w", r.VideoID, err)
	}
	return nil
}

// Get returns the report for a job id, falling back to the durable file and
// re-caching it in memory. Returns ErrReportNotFound if neither exists.
func (s *ResultStore) Get(id string) (*Report, error) {
	s.mu.RLock()
	r, ok := s.mem[id]
	s.mu.RUnlock()
	if ok {
		return r, nil
	}

	path, err := s.path(id)
	if err != nil {
		return nil, ErrReportNotFound
	}
	if !s.fs.Exists(path) {
		return nil, ErrReportNotFound
	}

	data, err := s.fs.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read report %s: %w", id, err)
	}
	loaded := &Report{}
	if err := json.Unmarshal(data, loaded); err != nil {
		return nil, fmt.Errorf("decode report %s: %w", id, err)
	}

	s.mu.Lock()
	s.mem[id] = loaded
	s.mu.Unlock()
	return loaded, nil
}

// Summary returns the summary of a completed report if it is resident in
// memory. The videos listing uses this; it never touches the filesystem.
func (s *ResultStore) Summary(id string) (Summary, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if r, ok := s.mem[id]; ok {
		return r.Summary, true
	}
	return Summary{}, false
}

// path builds the durable file path for a job id, rejecting ids that would
// escape the results directory.
func (s *ResultStore) path(id string) (string, error) {
	p := filepath.Join(s.dir, id+".json")
	if err := security.ValidatePathWithinDirectory(p, s.dir); err != nil {
		return "", fmt.Errorf("invalid report id %q: %w", id, err)
	}
	return p, nil
}
