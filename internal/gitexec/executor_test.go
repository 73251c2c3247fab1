package gitexec

import (
	"context"
	"errors"
	"os"
	"os/exec"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func initGitRepo(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	run := func(args ...string) {
		cmd := exec.Command("git", args...)
		cmd.Dir = dir
		cmd.Env = append(os.Environ(),
			"GIT_AUTHOR_NAME=test", "GIT_AUTHOR_EMAIL=test@example.com",
			"GIT_COMMITTER_NAME=test", "GIT_COMMITTER_EMAIL=test@example.com",
		)
		out, err := cmd.CombinedOutput()
		require.NoErrorf(t, err, "git %v failed: %s", args, out)
	}
	run("init", "-b", "main")
	require.NoError(t, os.WriteFile(filepath.Join(dir, "f.txt"), []byte("x"), 0o644))
	run("add", ".")
	run("commit", "-m", "initial")
	return dir
}

func TestExecutor_RunReturnsStdoutOnSuccess(t *testing.T) {
	dir := initGitRepo(t)
	e := New(dir)

	res, err := e.Run(context.Background(), 0, "rev-parse", "--abbrev-ref", "HEAD")
	require.NoError(t, err)
	assert.Equal(t, "main", trimNewline(res.Stdout))
}

func TestExecutor_RunReturnsExecFailedOnNonZeroExit(t *testing.T) {
	dir := initGitRepo(t)
	e := New(dir)

	_, err := e.Run(context.Background(), 0, "show", "refs/does/not/exist")
	require.Error(t, err)
	var failed *ExecFailed
	require.True(t, errors.As(err, &failed))
	assert.Contains(t, failed.Args, "show")
}

func TestExecutor_RunReturnsErrTimeoutWhenExceeded(t *testing.T) {
	dir := t.TempDir()
	e := New(dir)

	_, err := e.Run(context.Background(), time.Nanosecond, "version")
	assert.ErrorIs(t, err, ErrTimeout)
}

func TestIsGitRepository(t *testing.T) {
	dir := initGitRepo(t)
	assert.True(t, IsGitRepository(context.Background(), dir))

	nonRepo := t.TempDir()
	assert.False(t, IsGitRepository(context.Background(), nonRepo))
}

func TestRepositoryRoot(t *testing.T) {
	dir := initGitRepo(t)
	sub := filepath.Join(dir, "sub")
	require.NoError(t, os.Mkdir(sub, 0o755))

	root, err := RepositoryRoot(context.Background(), sub)
	require.NoError(t, err)

	resolvedDir, err := filepath.EvalSymlinks(dir)
	require.NoError(t, err)
	assert.Equal(t, resolvedDir, root)
}

func TestRepositoryRoot_ErrorsOnNonRepo(t *testing.T) {
	dir := t.TempDir()
	_, err := RepositoryRoot(context.Background(), dir)
	assert.Error(t, err)
}

func trimNewline(s string) string {
	for len(s) > 0 && (s[len(s)-1] == '\n' || s[len(s)-1] == '\r') {
		s = s[:len(s)-1]
	}
	return s
}
