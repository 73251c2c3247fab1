package activity

import (
	"context"
	"os"
	"os/exec"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Sxriptor/colabify-app-sub001/internal/gitstate"
)

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

func initRepoWithCommit(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	runGit(t, dir, "init", "-b", "main")
	require.NoError(t, os.WriteFile(filepath.Join(dir, "existing.txt"), []byte("line1\n"), 0o644))
	runGit(t, dir, "add", ".")
	runGit(t, dir, "commit", "-m", "initial")
	return dir
}

func statusShort(t *testing.T, dir string) string {
	t.Helper()
	cmd := exec.Command("git", "status", "--short")
	cmd.Dir = dir
	out, err := cmd.Output()
	require.NoError(t, err)
	return string(out)
}

func TestDetectFileChanges_NewFileIsAdded(t *testing.T) {
	dir := initRepoWithCommit(t)
	require.NoError(t, os.WriteFile(filepath.Join(dir, "new.txt"), []byte("hello\n"), 0o644))
	runGit(t, dir, "add", "new.txt")

	next := gitstate.RepoState{StatusShort: statusShort(t, dir)}
	summaries := DetectFileChanges(context.Background(), dir, next)

	require.Len(t, summaries, 1)
	assert.Equal(t, "new.txt", summaries[0].FilePath)
	assert.Equal(t, ChangeAdded, summaries[0].ChangeType)
}

func TestDetectFileChanges_ModifiedFileReportsLineDelta(t *testing.T) {
	dir := initRepoWithCommit(t)
	require.NoError(t, os.WriteFile(filepath.Join(dir, "existing.txt"), []byte("line1\nline2\n"), 0o644))

	next := gitstate.RepoState{StatusShort: statusShort(t, dir)}
	summaries := DetectFileChanges(context.Background(), dir, next)

	require.Len(t, summaries, 1)
	assert.Equal(t, "existing.txt", summaries[0].FilePath)
	assert.Equal(t, ChangeModified, summaries[0].ChangeType)
	assert.Equal(t, 1, summaries[0].LinesAdded)
}

func TestDetectFileChanges_DeletedFileSkipsNumstat(t *testing.T) {
	dir := initRepoWithCommit(t)
	require.NoError(t, os.Remove(filepath.Join(dir, "existing.txt")))

	next := gitstate.RepoState{StatusShort: statusShort(t, dir)}
	summaries := DetectFileChanges(context.Background(), dir, next)

	require.Len(t, summaries, 1)
	assert.Equal(t, ChangeDeleted, summaries[0].ChangeType)
	assert.Equal(t, 0, summaries[0].LinesAdded)
	assert.Equal(t, 0, summaries[0].LinesRemoved)
}

func TestDetectFileChanges_EmptyStatusProducesNoEntries(t *testing.T) {
	dir := initRepoWithCommit(t)
	summaries := DetectFileChanges(context.Background(), dir, gitstate.RepoState{StatusShort: statusShort(t, dir)})
	assert.Empty(t, summaries)
}

func TestClassifyStatusPrefix(t *testing.T) {
	assert.Equal(t, ChangeAdded, classifyStatusPrefix("A "))
	assert.Equal(t, ChangeDeleted, classifyStatusPrefix(" D"))
	assert.Equal(t, ChangeRenamed, classifyStatusPrefix("R "))
	assert.Equal(t, ChangeModified, classifyStatusPrefix(" M"))
	assert.Equal(t, ChangeModified, classifyStatusPrefix("??"))
}

func TestToFileChangeDetails_ConvertsSummariesToActivities(t *testing.T) {
	summaries := []FileChangeSummary{
		{FilePath: "src/main.go", ChangeType: ChangeModified, LinesAdded: 3, LinesRemoved: 1},
	}
	now := time.Now()

	acts := ToFileChangeDetails("proj-1", "repo-1", summaries, now)

	require.Len(t, acts, 1)
	assert.Equal(t, KindFileChange, acts[0].Type)
	detail, ok := acts[0].Details.(FileChangeDetail)
	require.True(t, ok)
	assert.Equal(t, "src/main.go", detail.FilePath)
	assert.Equal(t, "go", detail.FileType)
	assert.Equal(t, 3, detail.LinesAdded)
}

func TestFileExtension(t *testing.T) {
	assert.Equal(t, "go", fileExtension("internal/foo/bar.go"))
	assert.Equal(t, "", fileExtension("Makefile"))
	assert.Equal(t, "", fileExtension("trailing."))
}
