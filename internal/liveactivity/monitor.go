// Package liveactivity implements the LiveActivityMonitor (G) from
// spec.md §4.G: per-session heartbeat/timeout, a file-watcher over the
// work-tree (excluding .git/), focus-file tracking, file-change
// aggregation (each watcher event is merged as it arrives; events are not
// debounced), and a periodic sync of session/file-change state to an
// external Sink. The watcher plumbing is grounded on the same
// WorkspaceTracker the GitWatcher package draws on
// (internal/agentctl/server/process/workspace_tracker.go), reconfigured
// here with the ignore-glob set spec.md §4.G specifies instead of the
// teacher's .git-only exclusion.
package liveactivity

import (
	"context"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/Sxriptor/colabify-app-sub001/internal/activity"
	"github.com/Sxriptor/colabify-app-sub001/internal/common/logger"
	"github.com/Sxriptor/colabify-app-sub001/internal/gitstate"
	"github.com/Sxriptor/colabify-app-sub001/internal/repostore"
)

// Defaults from spec.md §4.G.
const (
	DefaultHeartbeatInterval = 30 * time.Second
	DefaultSessionTimeout    = 600 * time.Second
	DefaultSyncInterval      = 60 * time.Second
)

// watchDirDepth mirrors gitwatcher's recursion cap.
const watchDirDepth = 10

var defaultIgnoreDirs = map[string]struct{}{
	"node_modules": {}, ".git": {}, "dist": {}, "build": {}, ".next": {}, "coverage": {},
}

// Sync is the narrow slice of DatabaseSync (spec.md §4.I) the monitor
// needs: session snapshots and file-change aggregates.
type Sync interface {
	SyncLiveSession(ctx context.Context, s Session) error
	SyncFileChanges(ctx context.Context, sessionID, userID, projectID string, changes []FileChange) error
}

// Config holds the monitor's implementer-tunable knobs.
type Config struct {
	HeartbeatInterval time.Duration
	SessionTimeout    time.Duration
	SyncInterval      time.Duration
	GitTimeout        time.Duration
}

// DefaultConfig returns the spec-default Config.
func DefaultConfig() Config {
	return Config{
		HeartbeatInterval: DefaultHeartbeatInterval,
		SessionTimeout:    DefaultSessionTimeout,
		SyncInterval:      DefaultSyncInterval,
	}
}

type sessionState struct {
	session     Session
	fileChanges map[string]*FileChange
	watcher     *fsnotify.Watcher
	stopCh      chan struct{}
	mu          sync.Mutex // guards session + fileChanges
}

// Monitor owns every active Session for the local process.
type Monitor struct {
	cfg  Config
	sync Sync
	log  *logger.Logger
	now  func() time.Time

	mu       sync.Mutex
	sessions map[string]*sessionState
	wg       sync.WaitGroup
	cancel   context.CancelFunc
}

// New creates a Monitor. sink may be nil in tests that don't exercise
// periodic syncing.
func New(cfg Config, sink Sync, log *logger.Logger) *Monitor {
	if cfg.HeartbeatInterval <= 0 {
		cfg.HeartbeatInterval = DefaultHeartbeatInterval
	}
	if cfg.SessionTimeout <= 0 {
		cfg.SessionTimeout = DefaultSessionTimeout
	}
	if cfg.SyncInterval <= 0 {
		cfg.SyncInterval = DefaultSyncInterval
	}
	return &Monitor{
		cfg:      cfg,
		sync:     sink,
		log:      log.With(zap.String("component", "liveactivity")),
		now:      time.Now,
		sessions: make(map[string]*sessionState),
	}
}

// Run starts the heartbeat and sync timers. Call once per Monitor
// lifetime; Stop cancels both and every active session's watcher.
func (m *Monitor) Run(ctx context.Context) {
	runCtx, cancel := context.WithCancel(ctx)
	m.mu.Lock()
	m.cancel = cancel
	m.mu.Unlock()

	m.wg.Add(2)
	go m.heartbeatLoop(runCtx)
	go m.syncLoop(runCtx)
}

// Stop ends every session and the heartbeat/sync timers.
func (m *Monitor) Stop(ctx context.Context) {
	m.mu.Lock()
	cancel := m.cancel
	ids := make([]string, 0, len(m.sessions))
	for id := range m.sessions {
		ids = append(ids, id)
	}
	m.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	for _, id := range ids {
		m.StopMonitoring(ctx, id)
	}
	m.wg.Wait()
}

// StartMonitoring begins a live session over cfg.Path for userID, per
// spec.md §4.G.
func (m *Monitor) StartMonitoring(ctx context.Context, cfg repostore.RepoConfig, userID string) (string, error) {
	reader := gitstate.NewReader(cfg.Path, m.cfg.GitTimeout, 0)
	state, _ := reader.ReadRepoState(ctx)

	id := uuid.NewString()
	now := m.now()
	sess := Session{
		ID:            id,
		UserID:        userID,
		ProjectID:     cfg.ProjectID,
		RepositoryID:  cfg.ID,
		LocalPath:     cfg.Path,
		SessionStart:  now,
		LastActivity:  now,
		IsActive:      true,
		CurrentBranch: state.Branch,
		CurrentHead:   state.Head,
		WorkDirStatus: state.StatusShort,
		AheadCount:    state.Ahead,
		BehindCount:   state.Behind,
	}

	st := &sessionState{
		session:     sess,
		fileChanges: make(map[string]*FileChange),
		stopCh:      make(chan struct{}),
	}

	fsw, err := fsnotify.NewWatcher()
	if err == nil {
		st.watcher = fsw
		addWorktreeWatch(fsw, cfg.Path, m.log)
	} else {
		m.log.Warn("live activity watcher unavailable", zap.String("session_id", id), zap.Error(err))
	}

	m.mu.Lock()
	m.sessions[id] = st
	m.mu.Unlock()

	if fsw != nil {
		m.wg.Add(1)
		go m.watchLoop(ctx, id, st)
	}

	return id, nil
}

// StopMonitoring closes the watcher, flips is_active false, syncs a
// terminal snapshot, and forgets local state.
func (m *Monitor) StopMonitoring(ctx context.Context, sessionID string) {
	m.mu.Lock()
	st, ok := m.sessions[sessionID]
	if ok {
		delete(m.sessions, sessionID)
	}
	m.mu.Unlock()
	if !ok {
		return
	}

	close(st.stopCh)
	if st.watcher != nil {
		_ = st.watcher.Close()
	}

	st.mu.Lock()
	st.session.IsActive = false
	snapshot := st.session
	st.mu.Unlock()

	if m.sync != nil {
		if err := m.sync.SyncLiveSession(ctx, snapshot); err != nil {
			m.log.Warn("terminal session sync failed", zap.String("session_id", sessionID), zap.Error(err))
		}
	}
}

// UpdateFocusFile sets the session's focus file and records a FILE_FOCUS
// activity for the caller to route onward (e.g. through the coordinator's
// event stream); this function returns it rather than emitting directly
// so Monitor stays decoupled from any particular transport.
func (m *Monitor) UpdateFocusFile(sessionID, path string) (activity.Activity, bool) {
	st, ok := m.session(sessionID)
	if !ok {
		return activity.Activity{}, false
	}
	st.mu.Lock()
	st.session.FocusFile = path
	st.session.LastActivity = m.now()
	projectID, repoID := st.session.ProjectID, st.session.RepositoryID
	st.mu.Unlock()

	act := activity.New(projectID, repoID, activity.FileFocus{
		FilePath: path,
		FileType: fileExtension(path),
	}, m.now())
	return act, true
}

// RecordGitActivity updates session-derived fields per spec.md §4.G.
func (m *Monitor) RecordGitActivity(sessionID string, act activity.Activity) {
	st, ok := m.session(sessionID)
	if !ok {
		return
	}
	st.mu.Lock()
	defer st.mu.Unlock()

	switch d := act.Details.(type) {
	case activity.BranchSwitch:
		st.session.CurrentBranch = d.To
		st.session.WorkingOn = "switched to " + d.To
	case activity.Commit:
		st.session.CurrentHead = d.Head
		st.session.LastCommitMessage = d.Subject
		st.session.WorkingOn = "committed: " + d.Subject
	case activity.Push:
		st.session.CurrentHead = d.Head
		st.session.WorkingOn = "pushed " + d.Branch
	}
	st.session.LastActivity = m.now()
}

// GetTeamAwareness derives the awareness view over local active sessions
// for projectID.
func (m *Monitor) GetTeamAwareness(projectID string) []TeamAwareness {
	m.mu.Lock()
	defer m.mu.Unlock()

	var out []TeamAwareness
	for _, st := range m.sessions {
		st.mu.Lock()
		if st.session.ProjectID == projectID {
			out = append(out, TeamAwareness{
				UserID:            st.session.UserID,
				Status:            awarenessStatus(st.session),
				CurrentBranch:     st.session.CurrentBranch,
				CurrentFile:       st.session.FocusFile,
				LastCommitMessage: st.session.LastCommitMessage,
				RepositoryPath:    st.session.LocalPath,
				WorkingOn:         st.session.WorkingOn,
				LastSeen:          st.session.LastActivity,
				IsOnline:          st.session.IsActive,
			})
		}
		st.mu.Unlock()
	}
	return out
}

func awarenessStatus(s Session) string {
	if !s.IsActive {
		return "offline"
	}
	return "online"
}

func (m *Monitor) session(id string) (*sessionState, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	st, ok := m.sessions[id]
	return st, ok
}

// watchLoop updates LastActivity and the per-session file_changes map on
// every change/add/unlink event, and refreshes awareness when the
// changed file is the session's focus file.
func (m *Monitor) watchLoop(ctx context.Context, sessionID string, st *sessionState) {
	defer m.wg.Done()
	for {
		select {
		case <-ctx.Done():
			return
		case <-st.stopCh:
			return
		case ev, ok := <-st.watcher.Events:
			if !ok {
				return
			}
			m.handleFileEvent(sessionID, st, ev)
		case err, ok := <-st.watcher.Errors:
			if !ok {
				return
			}
			m.log.Debug("live activity watcher error", zap.String("session_id", sessionID), zap.Error(err))
		}
	}
}

func (m *Monitor) handleFileEvent(sessionID string, st *sessionState, ev fsnotify.Event) {
	rel, err := filepath.Rel(st.session.LocalPath, ev.Name)
	if err != nil {
		rel = ev.Name
	}
	if isIgnored(rel) {
		return
	}

	if ev.Op&fsnotify.Create == fsnotify.Create {
		if info, serr := os.Stat(ev.Name); serr == nil && info.IsDir() {
			addWorktreeWatch(st.watcher, ev.Name, m.log)
		}
	}

	changeType := ChangeModified
	switch {
	case ev.Op&fsnotify.Create == fsnotify.Create:
		changeType = ChangeAdded
	case ev.Op&fsnotify.Remove == fsnotify.Remove:
		changeType = ChangeDeleted
	case ev.Op&fsnotify.Rename == fsnotify.Rename:
		changeType = ChangeRenamed
	}

	now := m.now()
	st.mu.Lock()
	st.session.LastActivity = now
	existing, ok := st.fileChanges[rel]
	if !ok {
		existing = &FileChange{FilePath: rel, FileType: fileExtension(rel), FirstChangeAt: now}
		st.fileChanges[rel] = existing
	}
	existing.Merge(FileChange{ChangeType: changeType, FirstChangeAt: now, LastChangeAt: now})
	isFocus := rel == st.session.FocusFile
	st.mu.Unlock()

	_ = sessionID
	_ = isFocus // awareness refresh for focus-file changes happens via GetTeamAwareness's live read
}

// isIgnored matches the glob set from spec.md §4.G against a
// project-relative path.
func isIgnored(relPath string) bool {
	parts := strings.Split(filepath.ToSlash(relPath), "/")
	for _, p := range parts {
		if _, ok := defaultIgnoreDirs[p]; ok {
			return true
		}
	}
	return strings.HasSuffix(relPath, ".log")
}

func fileExtension(path string) string {
	idx := strings.LastIndex(path, ".")
	if idx < 0 || idx == len(path)-1 {
		return ""
	}
	return path[idx+1:]
}

// addWorktreeWatch recursively arms dir on fsw, skipping the ignore set
// and symlinks, up to watchDirDepth.
func addWorktreeWatch(fsw *fsnotify.Watcher, dir string, log *logger.Logger) {
	_ = filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return nil //nolint:nilerr // best effort
		}
		if !d.IsDir() {
			return nil
		}
		name := d.Name()
		if _, skip := defaultIgnoreDirs[name]; skip {
			return filepath.SkipDir
		}
		if info, lerr := d.Info(); lerr == nil && info.Mode()&fs.ModeSymlink != 0 {
			return filepath.SkipDir
		}
		if rel, rerr := filepath.Rel(dir, path); rerr == nil && rel != "." {
			if len(strings.Split(rel, string(filepath.Separator))) > watchDirDepth {
				return filepath.SkipDir
			}
		}
		if err := fsw.Add(path); err != nil && log != nil {
			log.Debug("failed to watch directory", zap.String("path", path), zap.Error(err))
		}
		return nil
	})
}

// heartbeatLoop implements the HEARTBEAT_INTERVAL tick from spec.md §4.G:
// each tick stops the sessions idle longer than SessionTimeout and leaves
// every other session, including its awareness state, unchanged.
func (m *Monitor) heartbeatLoop(ctx context.Context) {
	defer m.wg.Done()
	ticker := time.NewTicker(m.cfg.HeartbeatInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			m.heartbeatTick(ctx)
		}
	}
}

func (m *Monitor) heartbeatTick(ctx context.Context) {
	var timedOut []string
	m.mu.Lock()
	for id, st := range m.sessions {
		st.mu.Lock()
		idle := m.now().Sub(st.session.LastActivity)
		st.mu.Unlock()
		if idle > m.cfg.SessionTimeout {
			timedOut = append(timedOut, id)
		}
	}
	m.mu.Unlock()

	for _, id := range timedOut {
		m.StopMonitoring(ctx, id)
	}
}

// syncLoop implements the SYNC_INTERVAL tick from spec.md §4.G.
func (m *Monitor) syncLoop(ctx context.Context) {
	defer m.wg.Done()
	if m.sync == nil {
		return
	}
	ticker := time.NewTicker(m.cfg.SyncInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			m.syncTick(ctx)
		}
	}
}

func (m *Monitor) syncTick(ctx context.Context) {
	type pending struct {
		session Session
		changes []FileChange
	}
	m.mu.Lock()
	work := make([]pending, 0, len(m.sessions))
	for _, st := range m.sessions {
		st.mu.Lock()
		if st.session.IsActive {
			var changes []FileChange
			for _, fc := range st.fileChanges {
				changes = append(changes, *fc)
			}
			work = append(work, pending{session: st.session, changes: changes})
		}
		st.mu.Unlock()
	}
	m.mu.Unlock()

	for _, p := range work {
		if err := m.sync.SyncLiveSession(ctx, p.session); err != nil {
			m.log.Warn("periodic session sync failed", zap.String("session_id", p.session.ID), zap.Error(err))
		}
		if len(p.changes) > 0 {
			if err := m.sync.SyncFileChanges(ctx, p.session.ID, p.session.UserID, p.session.ProjectID, p.changes); err != nil {
				m.log.Warn("periodic file-change sync failed", zap.String("session_id", p.session.ID), zap.Error(err))
			}
		}
	}
}
