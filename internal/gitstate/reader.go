package gitstate

import (
	"context"
	"regexp"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/Sxriptor/colabify-app-sub001/internal/gitexec"
)

// CommitMeta carries the metadata for a single commit, used by COMMIT
// activities.
type CommitMeta struct {
	Hash    string
	Author  string
	Subject string
}

// Reader derives RepoState and related facts from a working directory by
// invoking git through a gitexec.Executor. All operations are idempotent.
type Reader struct {
	exec          *gitexec.Executor
	timeout       time.Duration
	fetchTimeout  time.Duration
}

// NewReader creates a Reader rooted at workDir, using the given default
// and fetch timeouts (gitexec defaults are used when either is zero).
func NewReader(workDir string, timeout, fetchTimeout time.Duration) *Reader {
	return &Reader{
		exec:         gitexec.New(workDir),
		timeout:      timeout,
		fetchTimeout: fetchTimeout,
	}
}

func (r *Reader) run(ctx context.Context, args ...string) (string, error) {
	res, err := r.exec.Run(ctx, r.timeout, args...)
	if err != nil {
		return "", err
	}
	return res.Stdout, nil
}

// Branch returns the short branch name, or DetachedHead when HEAD is
// detached.
func (r *Reader) Branch(ctx context.Context) string {
	out, err := r.run(ctx, "symbolic-ref", "-q", "--short", "HEAD")
	if err != nil {
		return DetachedHead
	}
	name := strings.TrimSpace(out)
	if name == "" {
		return DetachedHead
	}
	return name
}

// Head returns the full HEAD commit hash. This is the one field whose
// absence surfaces as an error — every other reader degrades gracefully.
func (r *Reader) Head(ctx context.Context) (string, error) {
	out, err := r.run(ctx, "rev-parse", "HEAD")
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(out), nil
}

// StatusShort returns the output of `git status --short` with trailing
// newlines removed; each line's leading status columns are kept.
func (r *Reader) StatusShort(ctx context.Context) string {
	out, err := r.run(ctx, "status", "--short")
	if err != nil {
		return ""
	}
	return strings.TrimRight(out, "\n")
}

var upstreamLineRe = regexp.MustCompile(`^\*?\s*\S+\s+\S+\s+\[([^\]]+)\]`)
var aheadRe = regexp.MustCompile(`ahead (\d+)`)
var behindRe = regexp.MustCompile(`behind (\d+)`)

// UpstreamAheadBehind parses `git branch -vv --no-color` for the current
// branch's upstream tracking info. Defaults to {ahead:0, behind:0} with
// no upstream when parsing fails or there is none configured.
func (r *Reader) UpstreamAheadBehind(ctx context.Context) (upstream string, ahead, behind int) {
	out, err := r.run(ctx, "branch", "-vv", "--no-color")
	if err != nil {
		return "", 0, 0
	}
	branch := r.Branch(ctx)
	for _, line := range strings.Split(out, "\n") {
		trimmed := strings.TrimPrefix(strings.TrimPrefix(line, "* "), "  ")
		fields := strings.Fields(trimmed)
		if len(fields) == 0 || fields[0] != branch {
			continue
		}
		m := upstreamLineRe.FindStringSubmatch(line)
		if m == nil {
			return "", 0, 0
		}
		bracket := m[1]
		parts := strings.SplitN(bracket, ":", 2)
		upstream = parts[0]
		if len(parts) == 2 {
			if am := aheadRe.FindStringSubmatch(parts[1]); am != nil {
				ahead, _ = strconv.Atoi(am[1])
			}
			if bm := behindRe.FindStringSubmatch(parts[1]); bm != nil {
				behind, _ = strconv.Atoi(bm[1])
			}
		}
		return upstream, ahead, behind
	}
	return "", 0, 0
}

// ListLocalBranches returns the set of local branch names.
func (r *Reader) ListLocalBranches(ctx context.Context) map[string]struct{} {
	out, err := r.run(ctx, "for-each-ref", "refs/heads", "--format=%(refname:short)")
	set := make(map[string]struct{})
	if err != nil {
		return set
	}
	for _, line := range strings.Split(out, "\n") {
		line = strings.TrimSpace(line)
		if line != "" {
			set[line] = struct{}{}
		}
	}
	return set
}

// ListRemoteBranches returns the set of remote-tracking branch names
// (e.g. "origin/main").
func (r *Reader) ListRemoteBranches(ctx context.Context) map[string]struct{} {
	out, err := r.run(ctx, "for-each-ref", "refs/remotes", "--format=%(refname:short)")
	set := make(map[string]struct{})
	if err != nil {
		return set
	}
	for _, line := range strings.Split(out, "\n") {
		line = strings.TrimSpace(line)
		if line != "" {
			set[line] = struct{}{}
		}
	}
	return set
}

// GetRemoteURLs returns a map of remote name to its fetch URL.
func (r *Reader) GetRemoteURLs(ctx context.Context) map[string]string {
	out, err := r.run(ctx, "remote", "-v")
	urls := make(map[string]string)
	if err != nil {
		return urls
	}
	for _, line := range strings.Split(out, "\n") {
		if !strings.HasSuffix(strings.TrimSpace(line), "(fetch)") {
			continue
		}
		fields := strings.Fields(line)
		if len(fields) < 2 {
			continue
		}
		urls[fields[0]] = fields[1]
	}
	return urls
}

// GetLastCommitMeta returns metadata for the current HEAD commit.
func (r *Reader) GetLastCommitMeta(ctx context.Context) CommitMeta {
	out, err := r.run(ctx, "log", "-1", "--pretty=%H\x1f%an\x1f%s")
	if err != nil {
		return CommitMeta{}
	}
	parts := strings.SplitN(strings.TrimRight(out, "\n"), "\x1f", 3)
	meta := CommitMeta{}
	if len(parts) > 0 {
		meta.Hash = parts[0]
	}
	if len(parts) > 1 {
		meta.Author = parts[1]
	}
	if len(parts) > 2 {
		meta.Subject = parts[2]
	}
	return meta
}

// IsMergeHead reports whether HEAD has two or more parents, and returns
// the parent count.
func (r *Reader) IsMergeHead(ctx context.Context) (isMerge bool, parentsCount int) {
	out, err := r.run(ctx, "log", "-1", "--pretty=%P")
	if err != nil {
		return false, 0
	}
	fields := strings.Fields(out)
	return len(fields) >= 2, len(fields)
}

// DetectRecentPush reports whether the reflog within `since` contains a
// push entry (case-insensitive substring match on "push").
func (r *Reader) DetectRecentPush(ctx context.Context, since time.Duration) bool {
	minutes := int(since.Minutes())
	if minutes < 1 {
		minutes = 1
	}
	out, err := r.run(ctx, "reflog", "--date=iso", "--since", strconv.Itoa(minutes)+" minutes ago")
	if err != nil {
		return false
	}
	return strings.Contains(strings.ToLower(out), "push")
}

// Fetch runs `git fetch --prune` with the reader's fetch timeout.
func (r *Reader) Fetch(ctx context.Context) error {
	timeout := r.fetchTimeout
	if timeout <= 0 {
		timeout = gitexec.FetchTimeout
	}
	_, err := r.exec.Run(ctx, timeout, "fetch", "--prune")
	return err
}

// ReadRepoState assembles a full RepoState by invoking all of the above
// reads in parallel. Only Head is required; every other field falls back
// to its empty value on failure, per spec.md §4.B's lenient-parsing rule.
func (r *Reader) ReadRepoState(ctx context.Context) (RepoState, error) {
	state := NewRepoState()

	head, err := r.Head(ctx)
	if err != nil {
		return RepoState{}, err
	}
	state.Head = head

	var wg sync.WaitGroup
	var mu sync.Mutex

	run := func(f func()) {
		wg.Add(1)
		go func() {
			defer wg.Done()
			f()
		}()
	}

	run(func() {
		branch := r.Branch(ctx)
		mu.Lock()
		state.Branch = branch
		mu.Unlock()
	})
	run(func() {
		status := r.StatusShort(ctx)
		mu.Lock()
		state.StatusShort = status
		mu.Unlock()
	})
	run(func() {
		upstream, ahead, behind := r.UpstreamAheadBehind(ctx)
		mu.Lock()
		state.Upstream = upstream
		state.Ahead = ahead
		state.Behind = behind
		mu.Unlock()
	})
	run(func() {
		local := r.ListLocalBranches(ctx)
		mu.Lock()
		state.LocalBranches = local
		mu.Unlock()
	})
	run(func() {
		remote := r.ListRemoteBranches(ctx)
		mu.Lock()
		state.RemoteBranches = remote
		mu.Unlock()
	})
	run(func() {
		urls := r.GetRemoteURLs(ctx)
		mu.Lock()
		state.RemoteURLs = urls
		mu.Unlock()
	})

	wg.Wait()
	return state, nil
}
