package activity

import (
	"context"
	"strconv"
	"strings"
	"time"

	"github.com/Sxriptor/colabify-app-sub001/internal/gitexec"
	"github.com/Sxriptor/colabify-app-sub001/internal/gitstate"
)

// ChangeType enumerates the file-level change classification used by
// FileChangeSummary and the FILE_CHANGE activity.
type ChangeType string

const (
	ChangeAdded    ChangeType = "ADDED"
	ChangeDeleted  ChangeType = "DELETED"
	ChangeRenamed  ChangeType = "RENAMED"
	ChangeModified ChangeType = "MODIFIED"
)

// FileChangeSummary is one parsed entry of `git status --short`, enriched
// with line-delta counts from `git diff --numstat`.
type FileChangeSummary struct {
	FilePath     string
	ChangeType   ChangeType
	LinesAdded   int
	LinesRemoved int
}

// classifyStatusPrefix interprets the two-character status prefix from
// `git status --short` per spec.md §4.C.
func classifyStatusPrefix(prefix string) ChangeType {
	if len(prefix) < 2 {
		return ChangeModified
	}
	switch {
	case strings.ContainsRune(prefix, 'A'):
		return ChangeAdded
	case strings.ContainsRune(prefix, 'D'):
		return ChangeDeleted
	case strings.ContainsRune(prefix, 'R'):
		return ChangeRenamed
	case strings.ContainsRune(prefix, 'M'), strings.ContainsRune(prefix, 'U'):
		return ChangeModified
	default:
		return ChangeModified
	}
}

// DetectFileChanges parses next.StatusShort into FileChangeSummary
// entries, filling in line deltas via `git diff --numstat`.
func DetectFileChanges(ctx context.Context, cwd string, next gitstate.RepoState) []FileChangeSummary {
	exec := gitexec.New(cwd)
	var out []FileChangeSummary

	for _, line := range strings.Split(next.StatusShort, "\n") {
		if strings.TrimSpace(line) == "" {
			continue
		}
		if len(line) < 3 {
			continue
		}
		prefix := line[:2]
		rest := strings.TrimSpace(line[2:])
		path := rest
		// Renamed entries look like "old -> new"; use the new path.
		if idx := strings.Index(rest, " -> "); idx >= 0 {
			path = strings.TrimSpace(rest[idx+len(" -> "):])
		}
		changeType := classifyStatusPrefix(prefix)

		var added, removed int
		if changeType != ChangeDeleted {
			added, removed = numstatDelta(ctx, exec, path)
		}

		out = append(out, FileChangeSummary{
			FilePath:     path,
			ChangeType:   changeType,
			LinesAdded:   added,
			LinesRemoved: removed,
		})
	}

	return out
}

// numstatDelta tries `git diff --numstat HEAD -- <file>` (staged form)
// first, falling back to the unstaged form, and finally (0,0) if both
// fail.
func numstatDelta(ctx context.Context, exec *gitexec.Executor, path string) (added, removed int) {
	if a, r, ok := parseNumstat(exec, ctx, "diff", "--numstat", "HEAD", "--", path); ok {
		return a, r
	}
	if a, r, ok := parseNumstat(exec, ctx, "diff", "--numstat", "--", path); ok {
		return a, r
	}
	return 0, 0
}

func parseNumstat(exec *gitexec.Executor, ctx context.Context, args ...string) (added, removed int, ok bool) {
	res, err := exec.Run(ctx, gitexec.DefaultTimeout, args...)
	if err != nil {
		return 0, 0, false
	}
	line := strings.TrimSpace(res.Stdout)
	if line == "" {
		return 0, 0, true
	}
	fields := strings.Fields(strings.Split(line, "\n")[0])
	if len(fields) < 2 {
		return 0, 0, false
	}
	a, aErr := strconv.Atoi(fields[0])
	r, rErr := strconv.Atoi(fields[1])
	if aErr != nil || rErr != nil {
		// Binary files report "-" for both counts; treat as zero delta.
		return 0, 0, true
	}
	return a, r, true
}

// ToFileChangeDetails converts parsed summaries into FILE_CHANGE
// Activity values, one per summary, each carrying a FileChangeDetail.
func ToFileChangeDetails(projectID, repoID string, summaries []FileChangeSummary, now time.Time) []Activity {
	out := make([]Activity, 0, len(summaries))
	for _, s := range summaries {
		out = append(out, New(projectID, repoID, FileChangeDetail{
			FilePath:     s.FilePath,
			ChangeType:   string(s.ChangeType),
			FileType:     fileExtension(s.FilePath),
			LinesAdded:   s.LinesAdded,
			LinesRemoved: s.LinesRemoved,
		}, now))
	}
	return out
}

func fileExtension(path string) string {
	idx := strings.LastIndex(path, ".")
	if idx < 0 || idx == len(path)-1 {
		return ""
	}
	return path[idx+1:]
}
