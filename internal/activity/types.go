// Package activity defines the Activity wire/domain model and the pure
// ActivityDetector that classifies RepoState transitions into typed
// activities. See spec.md §3/§4.C.
package activity

import "time"

// Kind enumerates the activity types from spec.md §3.
type Kind string

const (
	KindBranchSwitch   Kind = "BRANCH_SWITCH"
	KindBranchCreated  Kind = "BRANCH_CREATED"
	KindCommit         Kind = "COMMIT"
	KindMerge          Kind = "MERGE"
	KindRemoteUpdate   Kind = "REMOTE_UPDATE"
	KindPush           Kind = "PUSH"
	KindWorktreeChange Kind = "WORKTREE_CHANGE"
	KindFileChange     Kind = "FILE_CHANGE"
	KindFileFocus      Kind = "FILE_FOCUS"
	KindError          Kind = "ERROR"
)

// Details is implemented by every per-kind payload struct. Internally the
// detector works with these concrete types; ToMap flattens a payload to
// the heterogeneous map the wire format (spec.md §6) requires.
type Details interface {
	Kind() Kind
	ToMap() map[string]any
}

// Activity is a single semantic classification of a repo-state
// transition, or an out-of-band diagnostic.
type Activity struct {
	ProjectID string
	RepoID    string
	Type      Kind
	Details   Details
	At        time.Time
}

// BranchSwitch is emitted when the checked-out branch changes.
type BranchSwitch struct {
	From string
	To   string
}

func (BranchSwitch) Kind() Kind { return KindBranchSwitch }
func (d BranchSwitch) ToMap() map[string]any {
	return map[string]any{"from": d.From, "to": d.To}
}

// BranchScope distinguishes local from remote branch creation.
type BranchScope string

const (
	ScopeLocal  BranchScope = "local"
	ScopeRemote BranchScope = "remote"
)

// BranchCreated is emitted for each branch newly observed, local or remote.
type BranchCreated struct {
	Name  string
	Scope BranchScope
}

func (BranchCreated) Kind() Kind { return KindBranchCreated }
func (d BranchCreated) ToMap() map[string]any {
	return map[string]any{"name": d.Name, "scope": string(d.Scope)}
}

// Commit is emitted when HEAD changes and the new HEAD is not a merge
// commit, including when the same observation also switched branches.
type Commit struct {
	Branch  string
	Head    string
	Author  string
	Subject string
}

func (Commit) Kind() Kind { return KindCommit }
func (d Commit) ToMap() map[string]any {
	return map[string]any{"branch": d.Branch, "head": d.Head, "author": d.Author, "subject": d.Subject}
}

// Merge is emitted when HEAD advances and has two or more parents.
type Merge struct {
	Branch        string
	Head          string
	ParentsCount  int
}

func (Merge) Kind() Kind { return KindMerge }
func (d Merge) ToMap() map[string]any {
	return map[string]any{"branch": d.Branch, "head": d.Head, "parents_count": d.ParentsCount}
}

// RemoteUpdate is emitted when ahead/behind counters change, detected by
// the remote-poll path only.
type RemoteUpdate struct {
	Branch string
	Ahead  int
	Behind int
}

func (RemoteUpdate) Kind() Kind { return KindRemoteUpdate }
func (d RemoteUpdate) ToMap() map[string]any {
	return map[string]any{"branch": d.Branch, "ahead": d.Ahead, "behind": d.Behind}
}

// Push is emitted when the reflog shows a recent push, detected by the
// remote-poll path only.
type Push struct {
	Branch string
	Head   string
}

func (Push) Kind() Kind { return KindPush }
func (d Push) ToMap() map[string]any {
	return map[string]any{"branch": d.Branch, "head": d.Head}
}

// WorktreeChange is the fallback emitted only when no other activity was
// detected and status_short changed.
type WorktreeChange struct {
	Summary string
}

func (WorktreeChange) Kind() Kind { return KindWorktreeChange }
func (d WorktreeChange) ToMap() map[string]any {
	return map[string]any{"summary": d.Summary}
}

// FileChangeDetail carries one file-level change, produced by G.
type FileChangeDetail struct {
	FilePath        string
	ChangeType      string
	FileType        string
	LinesAdded      int
	LinesRemoved    int
	CharsAdded      int
	CharsRemoved    int
}

func (FileChangeDetail) Kind() Kind { return KindFileChange }
func (d FileChangeDetail) ToMap() map[string]any {
	return map[string]any{
		"file_path":         d.FilePath,
		"change_type":       d.ChangeType,
		"file_type":         d.FileType,
		"lines_added":       d.LinesAdded,
		"lines_removed":     d.LinesRemoved,
		"characters_added":   d.CharsAdded,
		"characters_removed": d.CharsRemoved,
	}
}

// FileFocus is emitted by G when the user's focused file changes.
type FileFocus struct {
	FilePath string
	FileType string
}

func (FileFocus) Kind() Kind { return KindFileFocus }
func (d FileFocus) ToMap() map[string]any {
	return map[string]any{"file_path": d.FilePath, "file_type": d.FileType}
}

// Error is a non-fatal diagnostic.
type Error struct {
	Message     string
	Command     string
	ChangedPath string
}

func (Error) Kind() Kind { return KindError }
func (d Error) ToMap() map[string]any {
	m := map[string]any{"message": d.Message}
	if d.Command != "" {
		m["command"] = d.Command
	}
	if d.ChangedPath != "" {
		m["changed_path"] = d.ChangedPath
	}
	return m
}

// New constructs an Activity with the given details, stamping Type from
// Details.Kind() and At from at (converted to UTC).
func New(projectID, repoID string, details Details, at time.Time) Activity {
	return Activity{
		ProjectID: projectID,
		RepoID:    repoID,
		Type:      details.Kind(),
		Details:   details,
		At:        at.UTC(),
	}
}

// ToWire flattens an Activity to the JSON-equivalent wire shape from
// spec.md §6: {projectId, repoId, type, details, at}.
func (a Activity) ToWire() map[string]any {
	var details map[string]any
	if a.Details != nil {
		details = a.Details.ToMap()
	}
	return map[string]any{
		"projectId": a.ProjectID,
		"repoId":    a.RepoID,
		"type":      string(a.Type),
		"details":   details,
		"at":        a.At.Format(time.RFC3339Nano),
	}
}
