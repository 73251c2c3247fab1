package liveactivity

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Sxriptor/colabify-app-sub001/internal/activity"
	"github.com/Sxriptor/colabify-app-sub001/internal/common/logger"
	"github.com/Sxriptor/colabify-app-sub001/internal/repostore"
)

type fakeSync struct {
	mu       sync.Mutex
	sessions []Session
	changes  map[string][]FileChange
}

func newFakeSync() *fakeSync {
	return &fakeSync{changes: make(map[string][]FileChange)}
}

func (f *fakeSync) SyncLiveSession(ctx context.Context, s Session) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sessions = append(f.sessions, s)
	return nil
}

func (f *fakeSync) SyncFileChanges(ctx context.Context, sessionID, userID, projectID string, changes []FileChange) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.changes[sessionID] = changes
	return nil
}

func (f *fakeSync) lastSession() (Session, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.sessions) == 0 {
		return Session{}, false
	}
	return f.sessions[len(f.sessions)-1], true
}

func testLogger(t *testing.T) *logger.Logger {
	t.Helper()
	log, err := logger.New(logger.Config{Level: "error", Format: "json", OutputPath: "stdout"})
	require.NoError(t, err)
	return log
}

func TestMonitor_StartMonitoringCreatesActiveSession(t *testing.T) {
	dir := t.TempDir()
	fs := newFakeSync()
	m := New(DefaultConfig(), fs, testLogger(t))

	id, err := m.StartMonitoring(context.Background(), repostore.RepoConfig{ID: "repo-1", ProjectID: "proj-1", Path: dir}, "user-1")
	require.NoError(t, err)
	require.NotEmpty(t, id)

	st, ok := m.session(id)
	require.True(t, ok)
	assert.True(t, st.session.IsActive)
	assert.Equal(t, "user-1", st.session.UserID)

	m.StopMonitoring(context.Background(), id)
}

func TestMonitor_StopMonitoringFlipsInactiveAndSyncs(t *testing.T) {
	dir := t.TempDir()
	fs := newFakeSync()
	m := New(DefaultConfig(), fs, testLogger(t))

	id, err := m.StartMonitoring(context.Background(), repostore.RepoConfig{ID: "repo-1", ProjectID: "proj-1", Path: dir}, "user-1")
	require.NoError(t, err)

	m.StopMonitoring(context.Background(), id)

	_, ok := m.session(id)
	assert.False(t, ok, "session should be forgotten after stop")

	snapshot, ok := fs.lastSession()
	require.True(t, ok)
	assert.False(t, snapshot.IsActive)
}

func TestMonitor_HeartbeatTickTimesOutIdleSessions(t *testing.T) {
	dir := t.TempDir()
	fs := newFakeSync()
	cfg := DefaultConfig()
	cfg.SessionTimeout = 5 * time.Minute
	m := New(cfg, fs, testLogger(t))

	id, err := m.StartMonitoring(context.Background(), repostore.RepoConfig{ID: "repo-1", ProjectID: "proj-1", Path: dir}, "user-1")
	require.NoError(t, err)

	base := time.Now()
	m.now = func() time.Time { return base.Add(10 * time.Minute) }

	m.heartbeatTick(context.Background())

	_, ok := m.session(id)
	assert.False(t, ok, "idle session past SessionTimeout should be stopped")
}

func TestMonitor_HeartbeatTickKeepsActiveSessions(t *testing.T) {
	dir := t.TempDir()
	fs := newFakeSync()
	cfg := DefaultConfig()
	cfg.SessionTimeout = 5 * time.Minute
	m := New(cfg, fs, testLogger(t))

	id, err := m.StartMonitoring(context.Background(), repostore.RepoConfig{ID: "repo-1", ProjectID: "proj-1", Path: dir}, "user-1")
	require.NoError(t, err)

	m.heartbeatTick(context.Background())

	_, ok := m.session(id)
	assert.True(t, ok, "a session with recent activity should survive a heartbeat tick")

	m.StopMonitoring(context.Background(), id)
}

func TestMonitor_RecordGitActivityUpdatesSessionState(t *testing.T) {
	dir := t.TempDir()
	fs := newFakeSync()
	m := New(DefaultConfig(), fs, testLogger(t))

	id, err := m.StartMonitoring(context.Background(), repostore.RepoConfig{ID: "repo-1", ProjectID: "proj-1", Path: dir}, "user-1")
	require.NoError(t, err)

	act := activity.New("proj-1", "repo-1", activity.BranchSwitch{From: "main", To: "feature"}, time.Now())
	m.RecordGitActivity(id, act)

	st, ok := m.session(id)
	require.True(t, ok)
	assert.Equal(t, "feature", st.session.CurrentBranch)

	m.StopMonitoring(context.Background(), id)
}

func TestMonitor_RecordGitActivityDerivesAwarenessStringsFromCommitAndPush(t *testing.T) {
	dir := t.TempDir()
	fs := newFakeSync()
	m := New(DefaultConfig(), fs, testLogger(t))

	id, err := m.StartMonitoring(context.Background(), repostore.RepoConfig{ID: "repo-1", ProjectID: "proj-1", Path: dir}, "user-1")
	require.NoError(t, err)

	commit := activity.New("proj-1", "repo-1", activity.Commit{Branch: "main", Head: "aaa", Author: "alice", Subject: "fix the bug"}, time.Now())
	m.RecordGitActivity(id, commit)

	awareness := m.GetTeamAwareness("proj-1")
	require.Len(t, awareness, 1)
	assert.Equal(t, "fix the bug", awareness[0].LastCommitMessage)
	assert.NotEmpty(t, awareness[0].WorkingOn)

	push := activity.New("proj-1", "repo-1", activity.Push{Branch: "main", Head: "bbb"}, time.Now())
	m.RecordGitActivity(id, push)

	awareness = m.GetTeamAwareness("proj-1")
	require.Len(t, awareness, 1)
	assert.Contains(t, awareness[0].WorkingOn, "main")

	m.StopMonitoring(context.Background(), id)
}

func TestMonitor_GetTeamAwarenessFiltersByProject(t *testing.T) {
	dirA, dirB := t.TempDir(), t.TempDir()
	fs := newFakeSync()
	m := New(DefaultConfig(), fs, testLogger(t))

	idA, err := m.StartMonitoring(context.Background(), repostore.RepoConfig{ID: "repo-a", ProjectID: "proj-a", Path: dirA}, "user-a")
	require.NoError(t, err)
	idB, err := m.StartMonitoring(context.Background(), repostore.RepoConfig{ID: "repo-b", ProjectID: "proj-b", Path: dirB}, "user-b")
	require.NoError(t, err)

	awareness := m.GetTeamAwareness("proj-a")
	require.Len(t, awareness, 1)
	assert.Equal(t, "user-a", awareness[0].UserID)

	m.StopMonitoring(context.Background(), idA)
	m.StopMonitoring(context.Background(), idB)
}
