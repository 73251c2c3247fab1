// Package coordinator implements the GitMonitoringBackend (J) from
// spec.md §4.J: binds the ProjectWatcherManager (H) and
// LiveActivityMonitor (G) to a single user, reconciles the watched-
// project set against the Sink on a timer, and routes every emitted
// Activity through G (session attribution) and I (persistence and
// derived file changes).
package coordinator

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/Sxriptor/colabify-app-sub001/internal/activity"
	"github.com/Sxriptor/colabify-app-sub001/internal/common/logger"
	"github.com/Sxriptor/colabify-app-sub001/internal/eventbus"
	"github.com/Sxriptor/colabify-app-sub001/internal/liveactivity"
	"github.com/Sxriptor/colabify-app-sub001/internal/manager"
	"github.com/Sxriptor/colabify-app-sub001/internal/repostore"
	"github.com/Sxriptor/colabify-app-sub001/internal/sink"
)

// DefaultSyncInterval is the sync_interval default from spec.md §4.J.
const DefaultSyncInterval = 60 * time.Second

// Config holds the start() parameters from spec.md §4.J.
type Config struct {
	UserID             string
	EnableLiveActivity bool
	SyncInterval       time.Duration
}

// Backend is the GitMonitoringBackend.
type Backend struct {
	store    *repostore.Store
	detector *activity.Detector
	mgr      *manager.Manager
	live     *liveactivity.Monitor
	sink     sink.DatabaseSync
	bus      eventbus.Bus
	log      *logger.Logger

	mu           sync.Mutex
	cfg          Config
	running      bool
	watched      map[string]bool
	repoSessions map[string]string // "<projectID>/<repoID>" -> session id

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// New wires a Backend over store/detector with managerCfg governing every
// ProjectWatcher it constructs, live (may be nil to disable G entirely),
// sinkImpl for persistence, and bus for the outbound event stream (may be
// nil).
func New(store *repostore.Store, detector *activity.Detector, managerCfg manager.Config, live *liveactivity.Monitor, sinkImpl sink.DatabaseSync, bus eventbus.Bus, log *logger.Logger) *Backend {
	b := &Backend{
		store:        store,
		detector:     detector,
		live:         live,
		sink:         sinkImpl,
		bus:          bus,
		log:          log.With(zap.String("component", "coordinator")),
		watched:      make(map[string]bool),
		repoSessions: make(map[string]string),
	}
	b.mgr = manager.New(store, detector, managerCfg, b.handleActivity, log)
	return b
}

// NewSinkAdapter narrows sinkImpl to the liveactivity.Sync interface G
// depends on, translating between the domain types G owns
// (liveactivity.Session/FileChange) and the Sink-facing wire shapes.
func NewSinkAdapter(sinkImpl sink.DatabaseSync) liveactivity.Sync {
	return sinkAdapter{sink: sinkImpl}
}

// Start resolves the initially-watched project set from the Sink, starts
// monitoring each, and arms the reconciliation timer. A no-op if already
// running.
func (b *Backend) Start(ctx context.Context, cfg Config) error {
	b.mu.Lock()
	if b.running {
		b.mu.Unlock()
		return nil
	}
	if cfg.SyncInterval <= 0 {
		cfg.SyncInterval = DefaultSyncInterval
	}
	b.cfg = cfg
	b.running = true
	runCtx, cancel := context.WithCancel(ctx)
	b.cancel = cancel
	b.mu.Unlock()

	if b.live != nil {
		b.live.Run(runCtx)
	}

	watched, err := b.sink.SyncWatchedProjects(runCtx, cfg.UserID)
	if err != nil {
		b.log.Warn("initial watched-project sync failed", zap.Error(err))
		watched = nil
	}

	b.mu.Lock()
	for _, p := range watched {
		b.watched[p] = true
	}
	b.mu.Unlock()

	for _, projectID := range watched {
		b.startProjectMonitoring(runCtx, projectID)
	}

	b.wg.Add(1)
	go b.reconcileLoop(runCtx, cfg.SyncInterval)

	return nil
}

// Stop disarms the reconciliation timer, stops every ProjectWatcher, and
// shuts down G. Idempotent: a later Start produces a fresh
// instance-equivalent state.
func (b *Backend) Stop() {
	b.mu.Lock()
	if !b.running {
		b.mu.Unlock()
		return
	}
	b.running = false
	cancel := b.cancel
	b.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	b.wg.Wait()

	b.mgr.StopAll()
	if b.live != nil {
		b.live.Stop(context.Background())
	}

	b.mu.Lock()
	b.watched = make(map[string]bool)
	b.repoSessions = make(map[string]string)
	b.mu.Unlock()
}

// ToggleProjectWatch mutates the Sink's watched flag for projectID, then
// starts or stops monitoring accordingly.
func (b *Backend) ToggleProjectWatch(ctx context.Context, projectID string, on bool) error {
	b.mu.Lock()
	userID := b.cfg.UserID
	b.mu.Unlock()

	if err := b.sink.ToggleProjectWatch(ctx, projectID, userID, on); err != nil {
		return err
	}

	b.mu.Lock()
	b.watched[projectID] = on
	b.mu.Unlock()

	if on {
		b.startProjectMonitoring(ctx, projectID)
	} else {
		b.stopProjectMonitoring(projectID)
	}
	return nil
}

// IsWatching reports whether projectID currently has an active
// ProjectWatcher.
func (b *Backend) IsWatching(projectID string) bool {
	return b.mgr.IsWatching(projectID)
}

// GetTeamAwareness returns G's live awareness view for projectID, or nil
// when live activity is disabled.
func (b *Backend) GetTeamAwareness(projectID string) []liveactivity.TeamAwareness {
	if b.live == nil {
		return nil
	}
	return b.live.GetTeamAwareness(projectID)
}

// GetRecentActivities delegates to the Sink.
func (b *Backend) GetRecentActivities(ctx context.Context, projectID string, limit int) ([]sink.LiveActivityRecord, error) {
	return b.sink.GetRecentActivities(ctx, projectID, limit)
}

// WatchedProjectIDs returns a snapshot of every project this Backend
// currently believes is watched, per the last reconciliation.
func (b *Backend) WatchedProjectIDs() []string {
	b.mu.Lock()
	defer b.mu.Unlock()
	ids := make([]string, 0, len(b.watched))
	for id, on := range b.watched {
		if on {
			ids = append(ids, id)
		}
	}
	return ids
}

// Running reports whether Start has been called without a matching Stop.
func (b *Backend) Running() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.running
}

// startProjectMonitoring refuses duplicates, verifies is_project_watched,
// resolves the project's repos from the store, and constructs the
// ProjectWatcher via the Manager, starting a G session for every
// watching=true repo when live activity is enabled.
func (b *Backend) startProjectMonitoring(ctx context.Context, projectID string) {
	if b.mgr.IsWatching(projectID) {
		return
	}

	b.mu.Lock()
	userID := b.cfg.UserID
	enableLive := b.cfg.EnableLiveActivity
	b.mu.Unlock()

	watched, err := b.sink.IsProjectWatched(ctx, projectID, userID)
	if err != nil {
		b.log.Warn("is_project_watched check failed", zap.String("project_id", projectID), zap.Error(err))
		return
	}
	if !watched {
		return
	}

	b.mgr.StartWatching(ctx, projectID)

	if !enableLive || b.live == nil {
		return
	}
	for _, repo := range b.store.ListByProject(projectID) {
		if !repo.Watching {
			continue
		}
		sessionID, err := b.live.StartMonitoring(ctx, repo, userID)
		if err != nil {
			b.log.Warn("failed to start live session", zap.String("repo_id", repo.ID), zap.Error(err))
			continue
		}
		b.mu.Lock()
		b.repoSessions[sessionKey(projectID, repo.ID)] = sessionID
		b.mu.Unlock()
	}
}

func (b *Backend) stopProjectMonitoring(projectID string) {
	b.mgr.StopWatching(projectID)
	if b.live == nil {
		return
	}

	prefix := projectID + "/"
	b.mu.Lock()
	var sessionIDs []string
	for key, sid := range b.repoSessions {
		if strings.HasPrefix(key, prefix) {
			sessionIDs = append(sessionIDs, sid)
			delete(b.repoSessions, key)
		}
	}
	b.mu.Unlock()

	for _, sid := range sessionIDs {
		b.live.StopMonitoring(context.Background(), sid)
	}
}

// handleActivity is the gitwatcher/projectwatcher EmitFunc wired into
// every ProjectWatcher the Manager constructs. It resolves the active
// session for (project, repo), forwards the transition to G, persists
// the activity, publishes it on the event bus, and for WORKTREE_CHANGE
// or COMMIT, derives and syncs file changes.
func (b *Backend) handleActivity(act activity.Activity) {
	ctx := context.Background()

	sessionID, hasSession := b.sessionFor(act.ProjectID, act.RepoID)

	b.mu.Lock()
	enableLive, userID := b.cfg.EnableLiveActivity, b.cfg.UserID
	b.mu.Unlock()

	if hasSession && enableLive && b.live != nil {
		b.live.RecordGitActivity(sessionID, act)
	}

	var details map[string]any
	if act.Details != nil {
		details = act.Details.ToMap()
	}
	rec := sink.LiveActivityRecord{
		ID:        uuid.NewString(),
		ProjectID: act.ProjectID,
		RepoID:    act.RepoID,
		SessionID: sessionID,
		Type:      string(act.Type),
		Details:   details,
		At:        act.At,
	}
	if err := b.sink.SyncLiveActivity(ctx, rec); err != nil {
		b.log.Warn("activity sync failed", zap.String("project_id", act.ProjectID), zap.Error(err))
	}

	if b.bus != nil {
		event := eventbus.NewEvent(string(act.Type), "gitwatcher", act.ToWire())
		if err := b.bus.Publish(ctx, eventbus.ActivitySubject(act.ProjectID), event); err != nil {
			b.log.Debug("activity publish failed", zap.String("project_id", act.ProjectID), zap.Error(err))
		}
	}

	if hasSession && (act.Type == activity.KindWorktreeChange || act.Type == activity.KindCommit) {
		b.syncFileChanges(ctx, act, sessionID, userID)
	}
}

func (b *Backend) syncFileChanges(ctx context.Context, act activity.Activity, sessionID, userID string) {
	repo, ok := b.store.Get(act.RepoID)
	if !ok || repo.Last == nil {
		return
	}

	summaries := activity.DetectFileChanges(ctx, repo.Path, *repo.Last)
	if len(summaries) == 0 {
		return
	}

	now := time.Now().UTC()
	changes := make([]sink.FileChangeRecord, 0, len(summaries))
	for _, s := range summaries {
		changes = append(changes, sink.FileChangeRecord{
			FilePath:      s.FilePath,
			FileType:      fileExtension(s.FilePath),
			ChangeType:    string(s.ChangeType),
			LinesAdded:    s.LinesAdded,
			LinesRemoved:  s.LinesRemoved,
			FirstChangeAt: now,
			LastChangeAt:  now,
		})
	}

	if err := b.sink.SyncFileChanges(ctx, sessionID, userID, act.ProjectID, changes); err != nil {
		b.log.Warn("file-change sync failed", zap.String("project_id", act.ProjectID), zap.Error(err))
	}
}

func (b *Backend) sessionFor(projectID, repoID string) (string, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	sid, ok := b.repoSessions[sessionKey(projectID, repoID)]
	return sid, ok
}

func sessionKey(projectID, repoID string) string {
	return projectID + "/" + repoID
}

func fileExtension(path string) string {
	idx := strings.LastIndex(path, ".")
	if idx < 0 || idx == len(path)-1 {
		return ""
	}
	return path[idx+1:]
}

// reconcileLoop ticks every interval, running cleanup_old_data and
// refreshing the watched-project set against the Sink.
func (b *Backend) reconcileLoop(ctx context.Context, interval time.Duration) {
	defer b.wg.Done()
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			b.reconcile(ctx)
		}
	}
}

func (b *Backend) reconcile(ctx context.Context) {
	if err := b.sink.CleanupOldData(ctx); err != nil {
		b.log.Warn("cleanup_old_data failed", zap.Error(err))
	}

	b.mu.Lock()
	userID := b.cfg.UserID
	b.mu.Unlock()

	ids, err := b.sink.GetWatchedProjectIDs(ctx, userID)
	if err != nil {
		b.log.Warn("watched-project refresh failed", zap.Error(err))
		return
	}

	next := make(map[string]bool, len(ids))
	for _, id := range ids {
		next[id] = true
	}

	b.mu.Lock()
	prev := b.watched
	b.watched = next
	b.mu.Unlock()

	for id := range next {
		if !prev[id] {
			b.startProjectMonitoring(ctx, id)
		}
	}
	for id := range prev {
		if !next[id] {
			b.stopProjectMonitoring(id)
		}
	}
}

type sinkAdapter struct {
	sink sink.DatabaseSync
}

func (a sinkAdapter) SyncLiveSession(ctx context.Context, s liveactivity.Session) error {
	return a.sink.SyncLiveSession(ctx, sink.LiveSessionRecord{
		ID:            s.ID,
		UserID:        s.UserID,
		ProjectID:     s.ProjectID,
		RepositoryID:  s.RepositoryID,
		LocalPath:     s.LocalPath,
		SessionStart:  s.SessionStart,
		LastActivity:  s.LastActivity,
		IsActive:      s.IsActive,
		CurrentBranch: s.CurrentBranch,
		CurrentHead:   s.CurrentHead,
		WorkDirStatus: s.WorkDirStatus,
		AheadCount:    s.AheadCount,
		BehindCount:   s.BehindCount,
		FocusFile:     s.FocusFile,
		EditorInfo:    s.EditorInfo,
	})
}

func (a sinkAdapter) SyncFileChanges(ctx context.Context, sessionID, userID, projectID string, changes []liveactivity.FileChange) error {
	out := make([]sink.FileChangeRecord, 0, len(changes))
	for _, c := range changes {
		out = append(out, sink.FileChangeRecord{
			FilePath:          c.FilePath,
			FileType:          c.FileType,
			ChangeType:        string(c.ChangeType),
			LinesAdded:        c.LinesAdded,
			LinesRemoved:      c.LinesRemoved,
			CharactersAdded:   c.CharactersAdded,
			CharactersRemoved: c.CharactersRemoved,
			FirstChangeAt:     c.FirstChangeAt,
			LastChangeAt:      c.LastChangeAt,
		})
	}
	return a.sink.SyncFileChanges(ctx, sessionID, userID, projectID, out)
}
