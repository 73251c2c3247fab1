package liveactivity

import "time"

// Session is the LiveSession value from spec.md §3: a (user, work-tree)
// pairing with liveness and focus state, owned exclusively by Monitor.
type Session struct {
	ID            string
	UserID        string
	ProjectID     string
	RepositoryID  string
	LocalPath     string
	SessionStart  time.Time
	LastActivity  time.Time // compared against Monitor's clock in heartbeatTick
	IsActive      bool
	CurrentBranch string
	CurrentHead   string
	WorkDirStatus string
	AheadCount    int
	BehindCount   int
	FocusFile     string
	EditorInfo    string
	LastCommitMessage string
	WorkingOn         string
}

// ChangeType enumerates the FileChange classification from spec.md §3.
type ChangeType string

const (
	ChangeAdded    ChangeType = "ADDED"
	ChangeDeleted  ChangeType = "DELETED"
	ChangeRenamed  ChangeType = "RENAMED"
	ChangeModified ChangeType = "MODIFIED"
)

// FileChange is one aggregated per-(session, relative-path) entry, owned
// by Monitor per spec.md §3.
type FileChange struct {
	FilePath        string
	FileType        string
	ChangeType      ChangeType
	LinesAdded      int
	LinesRemoved    int
	CharactersAdded int
	CharactersRemoved int
	FirstChangeAt   time.Time
	LastChangeAt    time.Time
}

// Merge folds an incoming observation into an existing aggregate,
// maintaining the monotonic-counters / latest-change-type invariant from
// spec.md §3 (also exercised as the Sink's upsert semantic, §4.I/§8
// property 10).
func (fc *FileChange) Merge(incoming FileChange) {
	if fc.FirstChangeAt.IsZero() || incoming.FirstChangeAt.Before(fc.FirstChangeAt) {
		fc.FirstChangeAt = incoming.FirstChangeAt
	}
	if incoming.LastChangeAt.After(fc.LastChangeAt) {
		fc.LastChangeAt = incoming.LastChangeAt
		fc.ChangeType = incoming.ChangeType
	}
	if incoming.LinesAdded > fc.LinesAdded {
		fc.LinesAdded = incoming.LinesAdded
	}
	if incoming.LinesRemoved > fc.LinesRemoved {
		fc.LinesRemoved = incoming.LinesRemoved
	}
	if incoming.CharactersAdded > fc.CharactersAdded {
		fc.CharactersAdded = incoming.CharactersAdded
	}
	if incoming.CharactersRemoved > fc.CharactersRemoved {
		fc.CharactersRemoved = incoming.CharactersRemoved
	}
}

// TeamAwareness is the derived/output projection from spec.md §3.
type TeamAwareness struct {
	UserID            string
	Status            string
	CurrentBranch     string
	CurrentFile       string
	LastCommitMessage string
	RepositoryPath    string
	WorkingOn         string
	LastSeen          time.Time
	IsOnline          bool
}
