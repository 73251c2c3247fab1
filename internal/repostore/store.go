// Package repostore is an in-memory, thread-safe store of RepoConfig
// records indexed by repo-id and project-id. See spec.md §4.D.
package repostore

import (
	"sync"

	"github.com/Sxriptor/colabify-app-sub001/internal/gitstate"
)

// RepoConfig is the per-repository mapping owned exclusively by the
// store; watchers hold only a snapshot and a callback, never the
// authoritative record.
type RepoConfig struct {
	ID        string
	ProjectID string
	Path      string
	Watching  bool
	Last      *gitstate.RepoState
}

// Clone returns a deep copy, so callers can hand out config snapshots
// without the store's internal state leaking to another goroutine.
func (c RepoConfig) Clone() RepoConfig {
	out := c
	if c.Last != nil {
		last := gitstate.Clone(*c.Last)
		out.Last = &last
	}
	return out
}

// Store is the in-memory, thread-safe associative store of RepoConfig
// records, indexed by repo-id and by project-id.
type Store struct {
	mu        sync.RWMutex
	byID      map[string]RepoConfig
	byProject map[string]map[string]struct{}
}

// New creates an empty Store.
func New() *Store {
	return &Store{
		byID:      make(map[string]RepoConfig),
		byProject: make(map[string]map[string]struct{}),
	}
}

// Upsert inserts or replaces a RepoConfig record.
func (s *Store) Upsert(cfg RepoConfig) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if old, ok := s.byID[cfg.ID]; ok && old.ProjectID != cfg.ProjectID {
		s.removeFromProjectIndex(old.ProjectID, old.ID)
	}

	s.byID[cfg.ID] = cfg.Clone()
	s.addToProjectIndex(cfg.ProjectID, cfg.ID)
}

// Remove deletes a RepoConfig by id. It is a no-op if absent.
func (s *Store) Remove(repoID string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	cfg, ok := s.byID[repoID]
	if !ok {
		return
	}
	delete(s.byID, repoID)
	s.removeFromProjectIndex(cfg.ProjectID, repoID)
}

// Get returns a snapshot of the RepoConfig for repoID, or ok=false.
func (s *Store) Get(repoID string) (RepoConfig, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	cfg, ok := s.byID[repoID]
	if !ok {
		return RepoConfig{}, false
	}
	return cfg.Clone(), true
}

// ListByProject returns snapshots of every RepoConfig mapped to projectID.
func (s *Store) ListByProject(projectID string) []RepoConfig {
	s.mu.RLock()
	defer s.mu.RUnlock()

	ids := s.byProject[projectID]
	out := make([]RepoConfig, 0, len(ids))
	for id := range ids {
		out = append(out, s.byID[id].Clone())
	}
	return out
}

// SaveLast updates the cached RepoState on an existing RepoConfig. It is
// the only mutator called from a watcher's hot path, and is a no-op if
// the repo has since been removed.
func (s *Store) SaveLast(repoID string, state gitstate.RepoState) {
	s.mu.Lock()
	defer s.mu.Unlock()

	cfg, ok := s.byID[repoID]
	if !ok {
		return
	}
	cloned := gitstate.Clone(state)
	cfg.Last = &cloned
	s.byID[repoID] = cfg
}

// Size returns the number of tracked repos.
func (s *Store) Size() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.byID)
}

// All returns a snapshot of every tracked RepoConfig.
func (s *Store) All() []RepoConfig {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]RepoConfig, 0, len(s.byID))
	for _, cfg := range s.byID {
		out = append(out, cfg.Clone())
	}
	return out
}

func (s *Store) addToProjectIndex(projectID, repoID string) {
	set, ok := s.byProject[projectID]
	if !ok {
		set = make(map[string]struct{})
		s.byProject[projectID] = set
	}
	set[repoID] = struct{}{}
}

func (s *Store) removeFromProjectIndex(projectID, repoID string) {
	set, ok := s.byProject[projectID]
	if !ok {
		return
	}
	delete(set, repoID)
	if len(set) == 0 {
		delete(s.byProject, projectID)
	}
}
