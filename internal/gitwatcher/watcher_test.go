package gitwatcher

import (
	"context"
	"os"
	"os/exec"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Sxriptor/colabify-app-sub001/internal/activity"
	"github.com/Sxriptor/colabify-app-sub001/internal/common/logger"
	"github.com/Sxriptor/colabify-app-sub001/internal/gitstate"
	"github.com/Sxriptor/colabify-app-sub001/internal/repostore"
)

func testLogger(t *testing.T) *logger.Logger {
	t.Helper()
	log, err := logger.New(logger.Config{Level: "error", Format: "json", OutputPath: "stdout"})
	require.NoError(t, err)
	return log
}

func runGit(t *testing.T, dir string, args ...string) {
	t.Helper()
	cmd := exec.Command("git", args...)
	cmd.Dir = dir
	cmd.Env = append(os.Environ(),
		"GIT_AUTHOR_NAME=test", "GIT_AUTHOR_EMAIL=test@example.com",
		"GIT_COMMITTER_NAME=test", "GIT_COMMITTER_EMAIL=test@example.com",
	)
	out, err := cmd.CombinedOutput()
	require.NoErrorf(t, err, "git %v failed: %s", args, out)
}

func initRepo(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	runGit(t, dir, "init", "-b", "main")
	require.NoError(t, os.WriteFile(filepath.Join(dir, "README.md"), []byte("hello"), 0o644))
	runGit(t, dir, "add", ".")
	runGit(t, dir, "commit", "-m", "initial commit")
	return dir
}

func TestWatcher_StartOnNonRepoEmitsValidationError(t *testing.T) {
	dir := t.TempDir() // not a git repo
	store := repostore.New()
	detector := activity.NewDetector(activity.DefaultConfig())
	w := New(store, detector, 50*time.Millisecond, 0, testLogger(t))

	received := make(chan activity.Activity, 1)
	cfg := repostore.RepoConfig{ID: "repo-1", ProjectID: "proj-1", Path: dir}

	w.Start(context.Background(), cfg, func(a activity.Activity) { received <- a })

	select {
	case a := <-received:
		assert.Equal(t, activity.KindError, a.Type)
		errDetails := a.Details.(activity.Error)
		assert.Equal(t, "validation", errDetails.Command)
	case <-time.After(time.Second):
		t.Fatal("expected a validation error activity")
	}
	assert.False(t, w.IsWatching())
}

func TestWatcher_DetectsCommitAfterDebounce(t *testing.T) {
	dir := initRepo(t)
	store := repostore.New()
	detector := activity.NewDetector(activity.DefaultConfig())
	w := New(store, detector, 100*time.Millisecond, 0, testLogger(t))

	reader := gitstate.NewReader(dir, 0, 0)
	initial, err := reader.ReadRepoState(context.Background())
	require.NoError(t, err)

	cfg := repostore.RepoConfig{ID: "repo-1", ProjectID: "proj-1", Path: dir, Last: &initial}
	store.Upsert(cfg)

	received := make(chan activity.Activity, 8)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	w.Start(ctx, cfg, func(a activity.Activity) { received <- a })
	require.True(t, w.IsWatching())
	defer w.Stop()

	require.NoError(t, os.WriteFile(filepath.Join(dir, "README.md"), []byte("hello again"), 0o644))
	runGit(t, dir, "commit", "-am", "second commit")

	deadline := time.After(5 * time.Second)
	for {
		select {
		case a := <-received:
			if a.Type == activity.KindCommit {
				c := a.Details.(activity.Commit)
				assert.Equal(t, "main", c.Branch)
				return
			}
		case <-deadline:
			t.Fatal("timed out waiting for a COMMIT activity")
		}
	}
}

func TestWatcher_StopIsIdempotent(t *testing.T) {
	dir := initRepo(t)
	store := repostore.New()
	detector := activity.NewDetector(activity.DefaultConfig())
	w := New(store, detector, 50*time.Millisecond, 0, testLogger(t))

	cfg := repostore.RepoConfig{ID: "repo-1", ProjectID: "proj-1", Path: dir}
	w.Start(context.Background(), cfg, func(activity.Activity) {})
	require.True(t, w.IsWatching())

	w.Stop()
	w.Stop()
	assert.False(t, w.IsWatching())
}
