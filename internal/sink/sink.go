// Package sink defines DatabaseSync (component I, spec.md §4.I): the
// narrow adapter interface over the external row-oriented persistence
// API ("Sink"). Concrete backends live in sink/postgres and sink/sqlite,
// selected by config.DatabaseConfig.Driver exactly as the teacher
// selects its db.OpenSQLite/db.OpenPostgres pair
// (internal/db/sqlite.go, internal/db/postgres.go).
package sink

import (
	"context"
	"time"
)

// LiveActivityRecord is the Sink-facing shape of one emitted Activity,
// enriched with the session it was attributed to (an empty SessionID when
// no session could be resolved, per spec.md §4.J).
type LiveActivityRecord struct {
	ID        string
	ProjectID string
	RepoID    string
	SessionID string // empty when unresolved
	Type      string
	Details   map[string]any
	At        time.Time
}

// LiveSessionRecord is the Sink-facing shape of a liveactivity.Session.
type LiveSessionRecord struct {
	ID            string
	UserID        string
	ProjectID     string
	RepositoryID  string
	LocalPath     string
	SessionStart  time.Time
	LastActivity  time.Time
	IsActive      bool
	CurrentBranch string
	CurrentHead   string
	WorkDirStatus string
	AheadCount    int
	BehindCount   int
	FocusFile     string
	EditorInfo    string
}

// FileChangeRecord is the Sink-facing shape of a liveactivity.FileChange.
type FileChangeRecord struct {
	FilePath          string
	FileType          string
	ChangeType        string
	LinesAdded        int
	LinesRemoved      int
	CharactersAdded   int
	CharactersRemoved int
	FirstChangeAt     time.Time
	LastChangeAt      time.Time
}

// TeamAwarenessRecord is the Sink-facing shape of liveactivity.TeamAwareness.
type TeamAwarenessRecord struct {
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

// Error wraps a Sink failure with a transient hint, per spec.md §7:
// all Sink failures are logged and elided, never retried synchronously
// or escalated to cancellation.
type Error struct {
	Transient bool
	Err       error
}

func (e *Error) Error() string { return e.Err.Error() }
func (e *Error) Unwrap() error { return e.Err }

// DatabaseSync is the ten-operation adapter interface from spec.md §4.I.
type DatabaseSync interface {
	SyncWatchedProjects(ctx context.Context, userID string) ([]string, error)
	GetWatchedProjectIDs(ctx context.Context, userID string) ([]string, error)
	IsProjectWatched(ctx context.Context, projectID, userID string) (bool, error)
	ToggleProjectWatch(ctx context.Context, projectID, userID string, on bool) error

	SyncLiveActivity(ctx context.Context, rec LiveActivityRecord) error
	SyncFileChanges(ctx context.Context, sessionID, userID, projectID string, changes []FileChangeRecord) error
	CleanupOldData(ctx context.Context) error
	GetTeamAwareness(ctx context.Context, projectID string) ([]TeamAwarenessRecord, error)
	GetRecentActivities(ctx context.Context, projectID string, limit int) ([]LiveActivityRecord, error)

	// SyncLiveSession upserts a full session snapshot; spec.md §4.I lists
	// this implicitly via "upsert sessions" in §2's data-flow summary.
	SyncLiveSession(ctx context.Context, rec LiveSessionRecord) error
}
