package sqlite

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Sxriptor/colabify-app-sub001/internal/sink"
)

func setupTestRepo(t *testing.T) *Repository {
	t.Helper()
	path := filepath.Join(t.TempDir(), "gitwatch.db")
	repo, err := Open(path)
	require.NoError(t, err)
	t.Cleanup(func() { _ = repo.Close() })
	return repo
}

// ===== watched projects =====

func TestRepository_ToggleProjectWatchAndIsProjectWatched(t *testing.T) {
	repo := setupTestRepo(t)
	ctx := context.Background()

	watched, err := repo.IsProjectWatched(ctx, "proj-1", "user-1")
	require.NoError(t, err)
	assert.False(t, watched)

	require.NoError(t, repo.ToggleProjectWatch(ctx, "proj-1", "user-1", true))

	watched, err = repo.IsProjectWatched(ctx, "proj-1", "user-1")
	require.NoError(t, err)
	assert.True(t, watched)

	require.NoError(t, repo.ToggleProjectWatch(ctx, "proj-1", "user-1", false))
	watched, err = repo.IsProjectWatched(ctx, "proj-1", "user-1")
	require.NoError(t, err)
	assert.False(t, watched)
}

func TestRepository_GetWatchedProjectIDs(t *testing.T) {
	repo := setupTestRepo(t)
	ctx := context.Background()

	require.NoError(t, repo.ToggleProjectWatch(ctx, "proj-1", "user-1", true))
	require.NoError(t, repo.ToggleProjectWatch(ctx, "proj-2", "user-1", true))
	require.NoError(t, repo.ToggleProjectWatch(ctx, "proj-3", "user-1", false))
	require.NoError(t, repo.ToggleProjectWatch(ctx, "proj-4", "user-2", true))

	ids, err := repo.GetWatchedProjectIDs(ctx, "user-1")
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"proj-1", "proj-2"}, ids)
}

// ===== live sessions =====

func TestRepository_SyncLiveSessionUpsert(t *testing.T) {
	repo := setupTestRepo(t)
	ctx := context.Background()
	now := time.Now().UTC().Truncate(time.Second)

	rec := sink.LiveSessionRecord{
		ID: "sess-1", UserID: "user-1", ProjectID: "proj-1", RepositoryID: "repo-1",
		LocalPath: "/tmp/repo-1", SessionStart: now, LastActivity: now,
		IsActive: true, CurrentBranch: "main", CurrentHead: "aaa",
	}
	require.NoError(t, repo.SyncLiveSession(ctx, rec))

	rec.CurrentBranch = "feature"
	rec.LastActivity = now.Add(time.Minute)
	require.NoError(t, repo.SyncLiveSession(ctx, rec))

	awareness, err := repo.GetTeamAwareness(ctx, "proj-1")
	require.NoError(t, err)
	require.Len(t, awareness, 1)
	assert.Equal(t, "feature", awareness[0].CurrentBranch)
}

func TestRepository_GetTeamAwarenessExcludesInactiveSessions(t *testing.T) {
	repo := setupTestRepo(t)
	ctx := context.Background()
	now := time.Now().UTC()

	require.NoError(t, repo.SyncLiveSession(ctx, sink.LiveSessionRecord{
		ID: "sess-1", UserID: "user-1", ProjectID: "proj-1",
		SessionStart: now, LastActivity: now, IsActive: false,
	}))

	awareness, err := repo.GetTeamAwareness(ctx, "proj-1")
	require.NoError(t, err)
	assert.Empty(t, awareness)
}

// ===== file changes =====

func TestRepository_SyncFileChangesMergesCountersByMax(t *testing.T) {
	repo := setupTestRepo(t)
	ctx := context.Background()
	now := time.Now().UTC()

	require.NoError(t, repo.SyncFileChanges(ctx, "sess-1", "user-1", "proj-1", []sink.FileChangeRecord{
		{FilePath: "main.go", ChangeType: "MODIFIED", LinesAdded: 5, LinesRemoved: 1, FirstChangeAt: now, LastChangeAt: now},
	}))
	require.NoError(t, repo.SyncFileChanges(ctx, "sess-1", "user-1", "proj-1", []sink.FileChangeRecord{
		{FilePath: "main.go", ChangeType: "MODIFIED", LinesAdded: 2, LinesRemoved: 9, FirstChangeAt: now, LastChangeAt: now.Add(time.Minute)},
	}))

	var linesAdded, linesRemoved int
	require.NoError(t, repo.db.GetContext(ctx, &linesAdded, `SELECT lines_added FROM file_changes WHERE session_id = ? AND file_path = ?`, "sess-1", "main.go"))
	require.NoError(t, repo.db.GetContext(ctx, &linesRemoved, `SELECT lines_removed FROM file_changes WHERE session_id = ? AND file_path = ?`, "sess-1", "main.go"))

	assert.Equal(t, 5, linesAdded, "should keep the higher of the two observations")
	assert.Equal(t, 9, linesRemoved)
}

// ===== activities =====

func TestRepository_SyncLiveActivityAndGetRecentActivities(t *testing.T) {
	repo := setupTestRepo(t)
	ctx := context.Background()
	now := time.Now().UTC()

	require.NoError(t, repo.SyncLiveActivity(ctx, sink.LiveActivityRecord{
		ID: "act-1", ProjectID: "proj-1", RepoID: "repo-1", Type: "COMMIT",
		Details: map[string]any{"head": "aaa"}, At: now,
	}))
	require.NoError(t, repo.SyncLiveActivity(ctx, sink.LiveActivityRecord{
		ID: "act-2", ProjectID: "proj-1", RepoID: "repo-1", Type: "BRANCH_SWITCH",
		Details: map[string]any{"to": "feature"}, At: now.Add(time.Second),
	}))

	acts, err := repo.GetRecentActivities(ctx, "proj-1", 10)
	require.NoError(t, err)
	require.Len(t, acts, 2)
	assert.Equal(t, "act-2", acts[0].ID, "most recent first")
	assert.Equal(t, "feature", acts[0].Details["to"])
}

func TestRepository_SyncLiveActivityIsIdempotentByID(t *testing.T) {
	repo := setupTestRepo(t)
	ctx := context.Background()
	now := time.Now().UTC()

	rec := sink.LiveActivityRecord{ID: "act-1", ProjectID: "proj-1", RepoID: "repo-1", Type: "COMMIT", At: now}
	require.NoError(t, repo.SyncLiveActivity(ctx, rec))
	require.NoError(t, repo.SyncLiveActivity(ctx, rec))

	acts, err := repo.GetRecentActivities(ctx, "proj-1", 10)
	require.NoError(t, err)
	assert.Len(t, acts, 1)
}

// ===== cleanup =====

func TestRepository_CleanupOldDataRemovesOnlyStaleInactiveSessions(t *testing.T) {
	repo := setupTestRepo(t)
	ctx := context.Background()
	old := time.Now().Add(-48 * time.Hour).UTC()
	recent := time.Now().UTC()

	require.NoError(t, repo.SyncLiveSession(ctx, sink.LiveSessionRecord{
		ID: "stale", UserID: "user-1", ProjectID: "proj-1",
		SessionStart: old, LastActivity: old, IsActive: false,
	}))
	require.NoError(t, repo.SyncLiveSession(ctx, sink.LiveSessionRecord{
		ID: "fresh", UserID: "user-1", ProjectID: "proj-1",
		SessionStart: recent, LastActivity: recent, IsActive: false,
	}))
	require.NoError(t, repo.SyncFileChanges(ctx, "stale", "user-1", "proj-1", []sink.FileChangeRecord{
		{FilePath: "a.go", FirstChangeAt: old, LastChangeAt: old},
	}))

	require.NoError(t, repo.CleanupOldData(ctx))

	var count int
	require.NoError(t, repo.db.GetContext(ctx, &count, `SELECT COUNT(*) FROM live_sessions WHERE id = ?`, "stale"))
	assert.Equal(t, 0, count)
	require.NoError(t, repo.db.GetContext(ctx, &count, `SELECT COUNT(*) FROM live_sessions WHERE id = ?`, "fresh"))
	assert.Equal(t, 1, count)
	require.NoError(t, repo.db.GetContext(ctx, &count, `SELECT COUNT(*) FROM file_changes WHERE session_id = ?`, "stale"))
	assert.Equal(t, 0, count)
}
