package activity

import (
	"context"
	"sort"
	"time"

	"github.com/Sxriptor/colabify-app-sub001/internal/gitstate"
)

// Querier is the subset of gitstate.Reader the detector consults when a
// head change needs to be classified as a commit or a merge, or when the
// remote-poll path needs to check for a recent push. *gitstate.Reader
// satisfies this interface directly.
type Querier interface {
	IsMergeHead(ctx context.Context) (isMerge bool, parentsCount int)
	GetLastCommitMeta(ctx context.Context) gitstate.CommitMeta
	DetectRecentPush(ctx context.Context, since time.Duration) bool
}

// Config holds the detector's implementer-tunable knobs.
type Config struct {
	// PushLookback is the reflog window consulted by DetectRemote to
	// decide whether a PUSH activity should be emitted. spec.md §9
	// leaves this as an open question; default is 2 minutes.
	PushLookback time.Duration
}

// DefaultConfig returns the spec-default detector configuration.
func DefaultConfig() Config {
	return Config{PushLookback: 2 * time.Minute}
}

// Detector is a pure classifier over RepoState transitions; its only
// side effects are read-only git queries performed through a Querier.
type Detector struct {
	cfg Config
}

// NewDetector creates a Detector with the given configuration.
func NewDetector(cfg Config) *Detector {
	return &Detector{cfg: cfg}
}

// DetectLocal diffs prev -> next for the local-observation path (triggered
// by a GitWatcher debounce cycle). prev == nil means this is the first
// observation, which never produces an activity (spec.md §8 property 1).
func (d *Detector) DetectLocal(ctx context.Context, prev *gitstate.RepoState, next gitstate.RepoState, projectID, repoID string, q Querier, now time.Time) []Activity {
	if prev == nil {
		return nil
	}
	p := *prev
	var out []Activity
	produced := false

	if p.Branch != next.Branch {
		out = append(out, New(projectID, repoID, BranchSwitch{From: p.Branch, To: next.Branch}, now))
		produced = true
	}

	for _, name := range newBranches(p.LocalBranches, next.LocalBranches) {
		out = append(out, New(projectID, repoID, BranchCreated{Name: name, Scope: ScopeLocal}, now))
		produced = true
	}

	headChanged := p.Head != next.Head
	if headChanged {
		isMerge, parents := q.IsMergeHead(ctx)
		if !isMerge {
			meta := q.GetLastCommitMeta(ctx)
			out = append(out, New(projectID, repoID, Commit{
				Branch:  next.Branch,
				Head:    next.Head,
				Author:  meta.Author,
				Subject: meta.Subject,
			}, now))
			produced = true
		}
		if isMerge {
			out = append(out, New(projectID, repoID, Merge{
				Branch:       next.Branch,
				Head:         next.Head,
				ParentsCount: parents,
			}, now))
			produced = true
		}
	}

	if !produced && p.StatusShort != next.StatusShort {
		summary := next.StatusShort
		if summary == "" {
			summary = "Working tree clean"
		}
		out = append(out, New(projectID, repoID, WorktreeChange{Summary: summary}, now))
	}

	return out
}

// DetectRemote diffs prev -> next for the remote-poll path (triggered
// after a `git fetch --prune`). prev == nil never produces an activity.
func (d *Detector) DetectRemote(ctx context.Context, prev *gitstate.RepoState, next gitstate.RepoState, projectID, repoID string, q Querier, now time.Time) []Activity {
	if prev == nil {
		return nil
	}
	p := *prev
	var out []Activity

	for _, name := range newBranches(p.RemoteBranches, next.RemoteBranches) {
		out = append(out, New(projectID, repoID, BranchCreated{Name: name, Scope: ScopeRemote}, now))
	}

	if p.Ahead != next.Ahead || p.Behind != next.Behind {
		out = append(out, New(projectID, repoID, RemoteUpdate{
			Branch: next.Branch,
			Ahead:  next.Ahead,
			Behind: next.Behind,
		}, now))
	}

	if q.DetectRecentPush(ctx, d.cfg.PushLookback) {
		out = append(out, New(projectID, repoID, Push{Branch: next.Branch, Head: next.Head}, now))
	}

	return out
}

// newBranches returns names in next but not prev, in stable sorted order.
func newBranches(prev, next map[string]struct{}) []string {
	var added []string
	for name := range next {
		if _, ok := prev[name]; !ok {
			added = append(added, name)
		}
	}
	sort.Strings(added)
	return added
}
