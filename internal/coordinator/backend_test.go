package coordinator

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Sxriptor/colabify-app-sub001/internal/activity"
	"github.com/Sxriptor/colabify-app-sub001/internal/common/logger"
	"github.com/Sxriptor/colabify-app-sub001/internal/eventbus"
	"github.com/Sxriptor/colabify-app-sub001/internal/manager"
	"github.com/Sxriptor/colabify-app-sub001/internal/repostore"
	"github.com/Sxriptor/colabify-app-sub001/internal/sink"
)

func testLogger(t *testing.T) *logger.Logger {
	t.Helper()
	log, err := logger.New(logger.Config{Level: "error", Format: "json", OutputPath: "stdout"})
	require.NoError(t, err)
	return log
}

type fakeSink struct {
	mu             sync.Mutex
	watchedByUser  map[string][]string
	toggled        map[string]bool
	activities     []sink.LiveActivityRecord
	fileChangeCall int
	cleanupCalls   int
}

func newFakeSink() *fakeSink {
	return &fakeSink{watchedByUser: make(map[string][]string), toggled: make(map[string]bool)}
}

func (f *fakeSink) SyncWatchedProjects(ctx context.Context, userID string) ([]string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.watchedByUser[userID], nil
}

func (f *fakeSink) GetWatchedProjectIDs(ctx context.Context, userID string) ([]string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.watchedByUser[userID], nil
}

func (f *fakeSink) IsProjectWatched(ctx context.Context, projectID, userID string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.toggled[projectID], nil
}

func (f *fakeSink) ToggleProjectWatch(ctx context.Context, projectID, userID string, on bool) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.toggled[projectID] = on
	return nil
}

func (f *fakeSink) SyncLiveActivity(ctx context.Context, rec sink.LiveActivityRecord) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.activities = append(f.activities, rec)
	return nil
}

func (f *fakeSink) SyncFileChanges(ctx context.Context, sessionID, userID, projectID string, changes []sink.FileChangeRecord) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.fileChangeCall++
	return nil
}

func (f *fakeSink) CleanupOldData(ctx context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.cleanupCalls++
	return nil
}

func (f *fakeSink) GetTeamAwareness(ctx context.Context, projectID string) ([]sink.TeamAwarenessRecord, error) {
	return nil, nil
}

func (f *fakeSink) GetRecentActivities(ctx context.Context, projectID string, limit int) ([]sink.LiveActivityRecord, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]sink.LiveActivityRecord, len(f.activities))
	copy(out, f.activities)
	return out, nil
}

func (f *fakeSink) SyncLiveSession(ctx context.Context, rec sink.LiveSessionRecord) error {
	return nil
}

func (f *fakeSink) lastActivity() (sink.LiveActivityRecord, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.activities) == 0 {
		return sink.LiveActivityRecord{}, false
	}
	return f.activities[len(f.activities)-1], true
}

type fakeBus struct {
	mu        sync.Mutex
	published []struct {
		subject string
		event   *eventbus.Event
	}
}

func (f *fakeBus) Publish(ctx context.Context, subject string, event *eventbus.Event) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.published = append(f.published, struct {
		subject string
		event   *eventbus.Event
	}{subject, event})
	return nil
}

func (f *fakeBus) Subscribe(subject string, handler eventbus.Handler) (eventbus.Subscription, error) {
	return nil, nil
}
func (f *fakeBus) Close()              {}
func (f *fakeBus) IsConnected() bool   { return true }

func (f *fakeBus) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.published)
}

func newTestBackend(t *testing.T) (*Backend, *fakeSink, *fakeBus) {
	t.Helper()
	store := repostore.New()
	detector := activity.NewDetector(activity.DefaultConfig())
	fs := newFakeSink()
	fb := &fakeBus{}
	managerCfg := manager.Config{RemotePollInterval: time.Hour, Debounce: 50 * time.Millisecond}
	b := New(store, detector, managerCfg, nil, fs, fb, testLogger(t))
	return b, fs, fb
}

func TestBackend_HandleActivityPersistsAndPublishes(t *testing.T) {
	b, fs, fb := newTestBackend(t)
	require.NoError(t, b.Start(context.Background(), Config{UserID: "user-1", SyncInterval: time.Hour}))
	defer b.Stop()

	act := activity.New("proj-1", "repo-1", activity.BranchSwitch{From: "main", To: "feature"}, time.Now())
	b.handleActivity(act)

	rec, ok := fs.lastActivity()
	require.True(t, ok)
	assert.Equal(t, "proj-1", rec.ProjectID)
	assert.Equal(t, "BRANCH_SWITCH", rec.Type)
	assert.Equal(t, 1, fb.count())
}

func TestBackend_ToggleProjectWatchStartsAndStopsMonitoring(t *testing.T) {
	b, fs, _ := newTestBackend(t)
	require.NoError(t, b.Start(context.Background(), Config{UserID: "user-1", SyncInterval: time.Hour}))
	defer b.Stop()

	require.NoError(t, b.ToggleProjectWatch(context.Background(), "proj-1", true))
	assert.True(t, b.IsWatching("proj-1"))
	assert.True(t, fs.toggled["proj-1"])

	require.NoError(t, b.ToggleProjectWatch(context.Background(), "proj-1", false))
	assert.False(t, b.IsWatching("proj-1"))
	assert.False(t, fs.toggled["proj-1"])
}

func TestBackend_StartResolvesInitiallyWatchedProjects(t *testing.T) {
	store := repostore.New()
	detector := activity.NewDetector(activity.DefaultConfig())
	fs := newFakeSink()
	fs.watchedByUser["user-1"] = []string{"proj-1"}
	fs.toggled["proj-1"] = true
	fb := &fakeBus{}
	managerCfg := manager.Config{RemotePollInterval: time.Hour, Debounce: 50 * time.Millisecond}
	b := New(store, detector, managerCfg, nil, fs, fb, testLogger(t))

	require.NoError(t, b.Start(context.Background(), Config{UserID: "user-1", SyncInterval: time.Hour}))
	defer b.Stop()

	assert.True(t, b.IsWatching("proj-1"))
	assert.ElementsMatch(t, []string{"proj-1"}, b.WatchedProjectIDs())
}

func TestBackend_StartIsIdempotent(t *testing.T) {
	b, _, _ := newTestBackend(t)
	require.NoError(t, b.Start(context.Background(), Config{UserID: "user-1", SyncInterval: time.Hour}))
	require.NoError(t, b.Start(context.Background(), Config{UserID: "user-1", SyncInterval: time.Hour}))
	assert.True(t, b.Running())
	b.Stop()
	assert.False(t, b.Running())
}

func TestBackend_ReconcileStartsAndStopsOnDiff(t *testing.T) {
	b, fs, _ := newTestBackend(t)
	require.NoError(t, b.Start(context.Background(), Config{UserID: "user-1", SyncInterval: time.Hour}))
	defer b.Stop()

	fs.mu.Lock()
	fs.watchedByUser["user-1"] = []string{"proj-new"}
	fs.toggled["proj-new"] = true
	fs.mu.Unlock()

	b.reconcile(context.Background())

	assert.True(t, b.IsWatching("proj-new"))
	assert.Equal(t, 1, fs.cleanupCalls)

	fs.mu.Lock()
	fs.watchedByUser["user-1"] = nil
	fs.mu.Unlock()

	b.reconcile(context.Background())

	assert.False(t, b.IsWatching("proj-new"))
}

func TestBackend_GetRecentActivitiesDelegatesToSink(t *testing.T) {
	b, fs, _ := newTestBackend(t)
	require.NoError(t, b.Start(context.Background(), Config{UserID: "user-1", SyncInterval: time.Hour}))
	defer b.Stop()

	act := activity.New("proj-1", "repo-1", activity.Commit{Branch: "main", Head: "aaa"}, time.Now())
	b.handleActivity(act)

	recs, err := b.GetRecentActivities(context.Background(), "proj-1", 10)
	require.NoError(t, err)
	assert.Len(t, recs, 1)
	_ = fs
}
