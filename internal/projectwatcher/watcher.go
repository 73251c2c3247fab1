// Package projectwatcher implements the per-project coordinator from
// spec.md §4.F: one GitWatcher per watched repository, plus a
// remote-polling timer that runs `fetch --prune` on a fixed cadence and
// emits remote-origin activities. The ticker-in-goroutine idiom is
// grounded on the teacher's WorkspaceTracker.pollGitChanges
// (internal/agentctl/server/process/workspace_tracker.go), generalized
// from one workspace to many repos processed serially per tick.
package projectwatcher

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/Sxriptor/colabify-app-sub001/internal/activity"
	"github.com/Sxriptor/colabify-app-sub001/internal/common/logger"
	"github.com/Sxriptor/colabify-app-sub001/internal/gitstate"
	"github.com/Sxriptor/colabify-app-sub001/internal/gitwatcher"
	"github.com/Sxriptor/colabify-app-sub001/internal/repostore"
)

// DefaultRemotePollInterval is REMOTE_POLLING_INTERVAL from spec.md §4.F.
const DefaultRemotePollInterval = 120 * time.Second

// projectState mirrors the Idle -> Watching -> Idle machine from spec.md §4.F.
type projectState int

const (
	psIdle projectState = iota
	psWatching
)

// Watcher owns every GitWatcher for one watched project plus the
// project's remote-polling timer.
type Watcher struct {
	projectID    string
	store        *repostore.Store
	detector     *activity.Detector
	pollInterval time.Duration
	debounce     time.Duration
	gitTimeout   time.Duration
	fetchTimeout time.Duration
	emit         gitwatcher.EmitFunc
	log          *logger.Logger

	mu       sync.Mutex
	state    projectState
	repos    map[string]repostore.RepoConfig
	children map[string]*gitwatcher.Watcher
	cancel   context.CancelFunc
	wg       sync.WaitGroup
}

// New creates a Watcher for projectID.
func New(projectID string, store *repostore.Store, detector *activity.Detector, pollInterval, debounce, gitTimeout, fetchTimeout time.Duration, emit gitwatcher.EmitFunc, log *logger.Logger) *Watcher {
	if pollInterval <= 0 {
		pollInterval = DefaultRemotePollInterval
	}
	return &Watcher{
		projectID:    projectID,
		store:        store,
		detector:     detector,
		pollInterval: pollInterval,
		debounce:     debounce,
		gitTimeout:   gitTimeout,
		fetchTimeout: fetchTimeout,
		emit:         emit,
		log:          log.With(zap.String("component", "projectwatcher"), zap.String("project_id", projectID)),
		repos:        make(map[string]repostore.RepoConfig),
		children:     make(map[string]*gitwatcher.Watcher),
	}
}

// Start stores repos, starts a GitWatcher for each, and arms the
// remote-poll timer if any repo has a remote URL. Overlapping Start
// calls on an already-watching project are no-ops with a warning.
func (w *Watcher) Start(ctx context.Context, repos []repostore.RepoConfig) {
	w.mu.Lock()
	if w.state == psWatching {
		w.mu.Unlock()
		w.log.Warn("start called on an already-watching project")
		return
	}
	runCtx, cancel := context.WithCancel(ctx)
	w.cancel = cancel
	w.state = psWatching
	hasRemote := false
	for _, r := range repos {
		r.Watching = true
		w.repos[r.ID] = r
		gw := gitwatcher.New(w.store, w.detector, w.debounce, w.gitTimeout, loggerOrDefault(w.log))
		w.children[r.ID] = gw
		if r.Last != nil && r.Last.HasAnyRemoteURL() {
			hasRemote = true
		}
	}
	w.mu.Unlock()

	for id, gw := range w.snapshotChildren() {
		cfg := w.repos[id]
		gw.Start(runCtx, cfg, w.emit)
	}

	if !hasRemote {
		hasRemote = w.anyRemoteConfigured(runCtx)
	}
	if hasRemote {
		w.wg.Add(1)
		go w.remotePollLoop(runCtx)
	}
}

func loggerOrDefault(l *logger.Logger) *logger.Logger {
	if l == nil {
		return logger.Default()
	}
	return l
}

// anyRemoteConfigured reads current state for each repo to decide whether
// the remote-poll timer should arm, covering the case where RepoConfig.Last
// was not yet populated at Start time.
func (w *Watcher) anyRemoteConfigured(ctx context.Context) bool {
	for _, cfg := range w.snapshotRepos() {
		reader := gitstate.NewReader(cfg.Path, w.gitTimeout, w.fetchTimeout)
		urls := reader.GetRemoteURLs(ctx)
		if len(urls) > 0 {
			return true
		}
	}
	return false
}

// Stop disarms the remote-poll timer and stops every child GitWatcher.
// Idempotent.
func (w *Watcher) Stop() {
	w.mu.Lock()
	if w.state != psWatching {
		w.mu.Unlock()
		return
	}
	w.state = psIdle
	cancel := w.cancel
	children := make([]*gitwatcher.Watcher, 0, len(w.children))
	for _, gw := range w.children {
		children = append(children, gw)
	}
	w.children = make(map[string]*gitwatcher.Watcher)
	w.repos = make(map[string]repostore.RepoConfig)
	w.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	for _, gw := range children {
		gw.Stop()
	}
	w.wg.Wait()
}

// AddRepository starts watching a newly-mapped repository.
func (w *Watcher) AddRepository(ctx context.Context, cfg repostore.RepoConfig) {
	w.mu.Lock()
	if w.state != psWatching {
		w.mu.Unlock()
		return
	}
	cfg.Watching = true
	w.repos[cfg.ID] = cfg
	gw := gitwatcher.New(w.store, w.detector, w.debounce, w.gitTimeout, loggerOrDefault(w.log))
	w.children[cfg.ID] = gw
	runCtx := context.Background()
	if w.cancel != nil {
		runCtx = ctx
	}
	w.mu.Unlock()

	gw.Start(runCtx, cfg, w.emit)
}

// RemoveRepository stops and forgets a repository.
func (w *Watcher) RemoveRepository(repoID string) {
	w.mu.Lock()
	gw, ok := w.children[repoID]
	if ok {
		delete(w.children, repoID)
		delete(w.repos, repoID)
	}
	w.mu.Unlock()
	if ok {
		gw.Stop()
	}
}

// UpdateRepository propagates a configuration change to the live
// GitWatcher (so its next debounce cycle sees the new Last), starting or
// stopping the child watcher when cfg.Watching flips.
func (w *Watcher) UpdateRepository(ctx context.Context, cfg repostore.RepoConfig) {
	w.mu.Lock()
	gw, ok := w.children[cfg.ID]
	w.repos[cfg.ID] = cfg
	w.mu.Unlock()

	if !ok {
		if cfg.Watching {
			w.AddRepository(ctx, cfg)
		}
		return
	}

	if !cfg.Watching {
		w.RemoveRepository(cfg.ID)
		return
	}
	gw.UpdateConfig(cfg)
}

func (w *Watcher) snapshotChildren() map[string]*gitwatcher.Watcher {
	w.mu.Lock()
	defer w.mu.Unlock()
	out := make(map[string]*gitwatcher.Watcher, len(w.children))
	for k, v := range w.children {
		out[k] = v
	}
	return out
}

func (w *Watcher) snapshotRepos() []repostore.RepoConfig {
	w.mu.Lock()
	defer w.mu.Unlock()
	out := make([]repostore.RepoConfig, 0, len(w.repos))
	for _, r := range w.repos {
		out = append(out, r)
	}
	return out
}

// remotePollLoop runs the spec.md §4.F remote-polling tick on a fixed
// cadence, processing every watched repo serially within a single tick.
func (w *Watcher) remotePollLoop(ctx context.Context) {
	defer w.wg.Done()

	ticker := time.NewTicker(w.pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			w.remoteTick(ctx)
		}
	}
}

func (w *Watcher) remoteTick(ctx context.Context) {
	for _, cfg := range w.snapshotRepos() {
		w.pollOneRepo(ctx, cfg)
	}
}

// pollOneRepo implements spec.md §4.F's five-step per-repo remote
// observation. Any failure along the way emits ERROR{command:"remote-polling"}
// and moves on to the next repo without advancing Last.
func (w *Watcher) pollOneRepo(ctx context.Context, cfg repostore.RepoConfig) {
	reader := gitstate.NewReader(cfg.Path, w.gitTimeout, w.fetchTimeout)

	before, err := reader.ReadRepoState(ctx)
	if err != nil {
		w.emitPollError(cfg, err.Error())
		return
	}

	if err := reader.Fetch(ctx); err != nil {
		w.emitPollError(cfg, err.Error())
		return
	}

	after, err := reader.ReadRepoState(ctx)
	if err != nil {
		w.emitPollError(cfg, err.Error())
		return
	}

	acts := w.detector.DetectRemote(ctx, &before, after, cfg.ProjectID, cfg.ID, reader, time.Now())
	for _, a := range acts {
		w.emit(a)
	}

	w.store.SaveLast(cfg.ID, after)
	w.mu.Lock()
	if existing, ok := w.repos[cfg.ID]; ok {
		cloned := gitstate.Clone(after)
		existing.Last = &cloned
		w.repos[cfg.ID] = existing
	}
	w.mu.Unlock()
}

func (w *Watcher) emitPollError(cfg repostore.RepoConfig, message string) {
	w.emit(activity.New(cfg.ProjectID, cfg.ID, activity.Error{
		Message: message,
		Command: "remote-polling",
	}, time.Now()))
}
