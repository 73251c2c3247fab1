// Package manager implements the ProjectWatcherManager (H) from
// spec.md §4.H: lifecycle and restore of ProjectWatchers from the
// RepoStore, exposing start/stop per project.
package manager

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/Sxriptor/colabify-app-sub001/internal/activity"
	"github.com/Sxriptor/colabify-app-sub001/internal/common/logger"
	"github.com/Sxriptor/colabify-app-sub001/internal/gitwatcher"
	"github.com/Sxriptor/colabify-app-sub001/internal/projectwatcher"
	"github.com/Sxriptor/colabify-app-sub001/internal/repostore"
)

// Config holds the tunables propagated to every ProjectWatcher this
// manager constructs.
type Config struct {
	RemotePollInterval time.Duration
	Debounce           time.Duration
	GitTimeout         time.Duration
	FetchTimeout       time.Duration
}

// Manager owns every active ProjectWatcher, keyed by project id.
type Manager struct {
	store    *repostore.Store
	detector *activity.Detector
	cfg      Config
	emit     gitwatcher.EmitFunc
	log      *logger.Logger

	mu       sync.Mutex
	projects map[string]*projectwatcher.Watcher
}

// New creates a Manager bound to store and detector; emit receives every
// activity produced by any constituent watcher.
func New(store *repostore.Store, detector *activity.Detector, cfg Config, emit gitwatcher.EmitFunc, log *logger.Logger) *Manager {
	return &Manager{
		store:    store,
		detector: detector,
		cfg:      cfg,
		emit:     emit,
		log:      log.With(zap.String("component", "manager")),
		projects: make(map[string]*projectwatcher.Watcher),
	}
}

// RestoreWatchingProjects groups RepoStore.All() by project_id and starts
// watching every group containing at least one watching=true entry.
func (m *Manager) RestoreWatchingProjects(ctx context.Context) {
	byProject := make(map[string][]repostore.RepoConfig)
	for _, cfg := range m.store.All() {
		byProject[cfg.ProjectID] = append(byProject[cfg.ProjectID], cfg)
	}

	for projectID, repos := range byProject {
		anyWatching := false
		for _, r := range repos {
			if r.Watching {
				anyWatching = true
				break
			}
		}
		if anyWatching {
			m.StartWatching(ctx, projectID)
		}
	}
}

// StartWatching constructs a ProjectWatcher for projectID using the
// store's current repo set and records it. A no-op if already watching.
func (m *Manager) StartWatching(ctx context.Context, projectID string) {
	m.mu.Lock()
	if _, exists := m.projects[projectID]; exists {
		m.mu.Unlock()
		return
	}
	pw := projectwatcher.New(projectID, m.store, m.detector,
		m.cfg.RemotePollInterval, m.cfg.Debounce, m.cfg.GitTimeout, m.cfg.FetchTimeout,
		m.emit, m.log)
	m.projects[projectID] = pw
	m.mu.Unlock()

	pw.Start(ctx, m.store.ListByProject(projectID))
}

// StopWatching stops and forgets the ProjectWatcher for projectID.
func (m *Manager) StopWatching(projectID string) {
	m.mu.Lock()
	pw, ok := m.projects[projectID]
	if ok {
		delete(m.projects, projectID)
	}
	m.mu.Unlock()
	if ok {
		pw.Stop()
	}
}

// IsWatching reports whether projectID currently has an active
// ProjectWatcher.
func (m *Manager) IsWatching(projectID string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.projects[projectID]
	return ok
}

// AddRepository updates the store and, if the project is being watched,
// delegates to its ProjectWatcher. It never creates a new ProjectWatcher.
func (m *Manager) AddRepository(ctx context.Context, cfg repostore.RepoConfig) {
	m.store.Upsert(cfg)
	if pw, ok := m.project(cfg.ProjectID); ok {
		pw.AddRepository(ctx, cfg)
	}
}

// RemoveRepository updates the store and, if the project is being
// watched, delegates to its ProjectWatcher.
func (m *Manager) RemoveRepository(projectID, repoID string) {
	m.store.Remove(repoID)
	if pw, ok := m.project(projectID); ok {
		pw.RemoveRepository(repoID)
	}
}

// UpdateRepository updates the store and, if the project is being
// watched, delegates to its ProjectWatcher.
func (m *Manager) UpdateRepository(ctx context.Context, cfg repostore.RepoConfig) {
	m.store.Upsert(cfg)
	if pw, ok := m.project(cfg.ProjectID); ok {
		pw.UpdateRepository(ctx, cfg)
	}
}

// StopAll stops every ProjectWatcher.
func (m *Manager) StopAll() {
	m.mu.Lock()
	projects := make([]*projectwatcher.Watcher, 0, len(m.projects))
	for _, pw := range m.projects {
		projects = append(projects, pw)
	}
	m.projects = make(map[string]*projectwatcher.Watcher)
	m.mu.Unlock()

	for _, pw := range projects {
		pw.Stop()
	}
}

func (m *Manager) project(projectID string) (*projectwatcher.Watcher, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	pw, ok := m.projects[projectID]
	return pw, ok
}
