// Package gitstate derives a compact RepoState snapshot from a working
// directory by invoking git through internal/gitexec.
package gitstate

import (
	"sort"
)

// DetachedHead is the sentinel branch name used when HEAD is detached.
const DetachedHead = "DETACHED"

// RepoState is a compact, hashable-by-structural-equality snapshot of a
// working tree's observable git state. See spec.md §3.
type RepoState struct {
	Branch          string
	Head            string
	StatusShort     string
	Upstream        string // empty when there is none
	Ahead           int
	Behind          int
	LocalBranches   map[string]struct{}
	RemoteBranches  map[string]struct{}
	RemoteURLs      map[string]string
}

// NewRepoState returns a zero-value RepoState with initialized maps.
func NewRepoState() RepoState {
	return RepoState{
		LocalBranches:  make(map[string]struct{}),
		RemoteBranches: make(map[string]struct{}),
		RemoteURLs:     make(map[string]string),
	}
}

// Clone deep-copies a RepoState so callers (notably the ActivityDetector)
// can treat their inputs as immutable.
func Clone(s RepoState) RepoState {
	c := RepoState{
		Branch:      s.Branch,
		Head:        s.Head,
		StatusShort: s.StatusShort,
		Upstream:    s.Upstream,
		Ahead:       s.Ahead,
		Behind:      s.Behind,
	}
	c.LocalBranches = make(map[string]struct{}, len(s.LocalBranches))
	for k := range s.LocalBranches {
		c.LocalBranches[k] = struct{}{}
	}
	c.RemoteBranches = make(map[string]struct{}, len(s.RemoteBranches))
	for k := range s.RemoteBranches {
		c.RemoteBranches[k] = struct{}{}
	}
	c.RemoteURLs = make(map[string]string, len(s.RemoteURLs))
	for k, v := range s.RemoteURLs {
		c.RemoteURLs[k] = v
	}
	return c
}

// Equal reports structural equality between two RepoStates, treating the
// branch sets as order-insensitive per spec.md §3.
func Equal(a, b RepoState) bool {
	if a.Branch != b.Branch || a.Head != b.Head || a.StatusShort != b.StatusShort ||
		a.Upstream != b.Upstream || a.Ahead != b.Ahead || a.Behind != b.Behind {
		return false
	}
	if !setsEqual(a.LocalBranches, b.LocalBranches) {
		return false
	}
	if !setsEqual(a.RemoteBranches, b.RemoteBranches) {
		return false
	}
	if len(a.RemoteURLs) != len(b.RemoteURLs) {
		return false
	}
	for k, v := range a.RemoteURLs {
		if bv, ok := b.RemoteURLs[k]; !ok || bv != v {
			return false
		}
	}
	return true
}

func setsEqual(a, b map[string]struct{}) bool {
	if len(a) != len(b) {
		return false
	}
	for k := range a {
		if _, ok := b[k]; !ok {
			return false
		}
	}
	return true
}

// SortedLocalBranches returns LocalBranches in stable sorted order, used
// wherever serialisation or deterministic iteration is required.
func (s RepoState) SortedLocalBranches() []string {
	return sortedKeys(s.LocalBranches)
}

// SortedRemoteBranches returns RemoteBranches in stable sorted order.
func (s RepoState) SortedRemoteBranches() []string {
	return sortedKeys(s.RemoteBranches)
}

func sortedKeys(m map[string]struct{}) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

// HasAnyRemoteURL reports whether any remote has a configured fetch URL,
// used by ProjectWatcher to decide whether to arm the remote-poll timer.
func (s RepoState) HasAnyRemoteURL() bool {
	return len(s.RemoteURLs) > 0
}
