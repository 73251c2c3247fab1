// Package sqlite implements sink.DatabaseSync against a SQLite database,
// grounded on the teacher's sqlite persistence layer
// (internal/db/sqlite.go, internal/analytics/repository/sqlite) and its
// jmoiron/sqlx struct-scanning convention.
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	_ "github.com/mattn/go-sqlite3"

	"github.com/Sxriptor/colabify-app-sub001/internal/sink"
)

// Repository implements sink.DatabaseSync backed by SQLite.
type Repository struct {
	db *sqlx.DB
}

// Open opens path and ensures the schema exists.
func Open(path string) (*Repository, error) {
	db, err := sqlx.Open("sqlite3", fmt.Sprintf("file:%s?_foreign_keys=on&_journal_mode=WAL&_busy_timeout=5000", path))
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(1) // single writer, as the teacher's db.OpenSQLite does
	repo := &Repository{db: db}
	if err := repo.migrate(); err != nil {
		return nil, err
	}
	return repo, nil
}

// NewWithDB wraps an already-open *sqlx.DB (e.g. shared with other
// subsystems in the embedding process).
func NewWithDB(db *sqlx.DB) (*Repository, error) {
	repo := &Repository{db: db}
	if err := repo.migrate(); err != nil {
		return nil, err
	}
	return repo, nil
}

// Close closes the underlying database handle.
func (r *Repository) Close() error {
	return r.db.Close()
}

func (r *Repository) migrate() error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS watched_projects (
			project_id TEXT NOT NULL,
			user_id TEXT NOT NULL,
			watching INTEGER NOT NULL DEFAULT 1,
			updated_at TEXT NOT NULL,
			PRIMARY KEY (project_id, user_id)
		)`,
		`CREATE TABLE IF NOT EXISTS live_sessions (
			id TEXT PRIMARY KEY,
			user_id TEXT NOT NULL,
			project_id TEXT NOT NULL,
			repository_id TEXT,
			local_path TEXT,
			session_start TEXT,
			last_activity TEXT,
			is_active INTEGER NOT NULL DEFAULT 1,
			current_branch TEXT,
			current_head TEXT,
			working_directory_status TEXT,
			ahead_count INTEGER NOT NULL DEFAULT 0,
			behind_count INTEGER NOT NULL DEFAULT 0,
			focus_file TEXT,
			editor_info TEXT
		)`,
		`CREATE INDEX IF NOT EXISTS idx_live_sessions_project ON live_sessions(project_id, is_active)`,
		`CREATE TABLE IF NOT EXISTS file_changes (
			session_id TEXT NOT NULL,
			user_id TEXT NOT NULL,
			project_id TEXT NOT NULL,
			file_path TEXT NOT NULL,
			file_type TEXT,
			change_type TEXT,
			lines_added INTEGER NOT NULL DEFAULT 0,
			lines_removed INTEGER NOT NULL DEFAULT 0,
			characters_added INTEGER NOT NULL DEFAULT 0,
			characters_removed INTEGER NOT NULL DEFAULT 0,
			first_change_at TEXT,
			last_change_at TEXT,
			PRIMARY KEY (session_id, file_path)
		)`,
		`CREATE TABLE IF NOT EXISTS activities (
			id TEXT PRIMARY KEY,
			project_id TEXT NOT NULL,
			repo_id TEXT NOT NULL,
			session_id TEXT,
			type TEXT NOT NULL,
			details TEXT,
			at TEXT NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_activities_project_at ON activities(project_id, at)`,
	}
	for _, s := range stmts {
		if _, err := r.db.Exec(s); err != nil {
			return fmt.Errorf("sqlite sink: migrate: %w", err)
		}
	}
	return nil
}

func wrap(err error) error {
	if err == nil {
		return nil
	}
	return &sink.Error{Transient: true, Err: err}
}

// SyncWatchedProjects reads back the current watched-project set; it
// writes nothing for the user. See spec.md §4.I.
func (r *Repository) SyncWatchedProjects(ctx context.Context, userID string) ([]string, error) {
	return r.GetWatchedProjectIDs(ctx, userID)
}

// GetWatchedProjectIDs returns every project_id watched by userID.
func (r *Repository) GetWatchedProjectIDs(ctx context.Context, userID string) ([]string, error) {
	var ids []string
	err := r.db.SelectContext(ctx, &ids,
		`SELECT project_id FROM watched_projects WHERE user_id = ? AND watching = 1`, userID)
	if err != nil {
		return nil, wrap(err)
	}
	return ids, nil
}

// IsProjectWatched reports whether projectID is watched by userID.
func (r *Repository) IsProjectWatched(ctx context.Context, projectID, userID string) (bool, error) {
	var watching int
	err := r.db.GetContext(ctx, &watching,
		`SELECT watching FROM watched_projects WHERE project_id = ? AND user_id = ?`, projectID, userID)
	if err == sql.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, wrap(err)
	}
	return watching == 1, nil
}

// ToggleProjectWatch upserts the watched state for (projectID, userID).
func (r *Repository) ToggleProjectWatch(ctx context.Context, projectID, userID string, on bool) error {
	watching := 0
	if on {
		watching = 1
	}
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO watched_projects (project_id, user_id, watching, updated_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(project_id, user_id) DO UPDATE SET
			watching = excluded.watching,
			updated_at = excluded.updated_at
	`, projectID, userID, watching, time.Now().UTC().Format(time.RFC3339Nano))
	return wrap(err)
}

// SyncLiveSession upserts a full session snapshot.
func (r *Repository) SyncLiveSession(ctx context.Context, rec sink.LiveSessionRecord) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO live_sessions (
			id, user_id, project_id, repository_id, local_path, session_start,
			last_activity, is_active, current_branch, current_head,
			working_directory_status, ahead_count, behind_count, focus_file, editor_info
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			last_activity = excluded.last_activity,
			is_active = excluded.is_active,
			current_branch = excluded.current_branch,
			current_head = excluded.current_head,
			working_directory_status = excluded.working_directory_status,
			ahead_count = excluded.ahead_count,
			behind_count = excluded.behind_count,
			focus_file = excluded.focus_file,
			editor_info = excluded.editor_info
	`,
		rec.ID, rec.UserID, rec.ProjectID, rec.RepositoryID, rec.LocalPath,
		rec.SessionStart.UTC().Format(time.RFC3339Nano), rec.LastActivity.UTC().Format(time.RFC3339Nano),
		boolToInt(rec.IsActive), rec.CurrentBranch, rec.CurrentHead, rec.WorkDirStatus,
		rec.AheadCount, rec.BehindCount, rec.FocusFile, rec.EditorInfo)
	return wrap(err)
}

// SyncLiveActivity inserts one emitted activity row, keyed by its id so
// redelivery (the coordinator never retries synchronously, but a restart
// replaying a small backlog is possible) is a no-op.
func (r *Repository) SyncLiveActivity(ctx context.Context, rec sink.LiveActivityRecord) error {
	details, err := json.Marshal(rec.Details)
	if err != nil {
		return wrap(err)
	}
	sessionID := sql.NullString{String: rec.SessionID, Valid: rec.SessionID != ""}
	_, err = r.db.ExecContext(ctx, `
		INSERT INTO activities (id, project_id, repo_id, session_id, type, details, at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO NOTHING
	`, rec.ID, rec.ProjectID, rec.RepoID, sessionID, rec.Type, string(details), rec.At.UTC().Format(time.RFC3339Nano))
	return wrap(err)
}

// SyncFileChanges upserts each change, merging counters monotonically and
// keeping the latest change_type, keyed by (session_id, file_path) per
// spec.md §4.I/§8 property 10.
func (r *Repository) SyncFileChanges(ctx context.Context, sessionID, userID, projectID string, changes []sink.FileChangeRecord) error {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return wrap(err)
	}
	defer func() { _ = tx.Rollback() }()

	for _, c := range changes {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO file_changes (
				session_id, user_id, project_id, file_path, file_type, change_type,
				lines_added, lines_removed, characters_added, characters_removed,
				first_change_at, last_change_at
			) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
			ON CONFLICT(session_id, file_path) DO UPDATE SET
				change_type = excluded.change_type,
				lines_added = MAX(file_changes.lines_added, excluded.lines_added),
				lines_removed = MAX(file_changes.lines_removed, excluded.lines_removed),
				characters_added = MAX(file_changes.characters_added, excluded.characters_added),
				characters_removed = MAX(file_changes.characters_removed, excluded.characters_removed),
				last_change_at = excluded.last_change_at
		`,
			sessionID, userID, projectID, c.FilePath, c.FileType, c.ChangeType,
			c.LinesAdded, c.LinesRemoved, c.CharactersAdded, c.CharactersRemoved,
			c.FirstChangeAt.UTC().Format(time.RFC3339Nano), c.LastChangeAt.UTC().Format(time.RFC3339Nano))
		if err != nil {
			return wrap(err)
		}
	}
	return wrap(tx.Commit())
}

// CleanupOldData is the housekeeping hook invoked from the coordinator's
// periodic reconciliation: it drops terminal sessions and their file
// changes older than 24h.
func (r *Repository) CleanupOldData(ctx context.Context) error {
	cutoff := time.Now().Add(-24 * time.Hour).UTC().Format(time.RFC3339Nano)
	_, err := r.db.ExecContext(ctx, `
		DELETE FROM file_changes WHERE session_id IN (
			SELECT id FROM live_sessions WHERE is_active = 0 AND last_activity < ?
		)`, cutoff)
	if err != nil {
		return wrap(err)
	}
	_, err = r.db.ExecContext(ctx, `DELETE FROM live_sessions WHERE is_active = 0 AND last_activity < ?`, cutoff)
	return wrap(err)
}

// GetTeamAwareness derives one row per active session for projectID, the
// "team_awareness is derived from live_sessions" note in SPEC_FULL.md §4.I.
func (r *Repository) GetTeamAwareness(ctx context.Context, projectID string) ([]sink.TeamAwarenessRecord, error) {
	rows, err := r.db.QueryxContext(ctx, `
		SELECT user_id, current_branch, focus_file, local_path, last_activity, is_active
		FROM live_sessions WHERE project_id = ? AND is_active = 1
	`, projectID)
	if err != nil {
		return nil, wrap(err)
	}
	defer func() { _ = rows.Close() }()

	var out []sink.TeamAwarenessRecord
	for rows.Next() {
		var userID, branch, focus, path, lastActivity string
		var active int
		if err := rows.Scan(&userID, &branch, &focus, &path, &lastActivity, &active); err != nil {
			return nil, wrap(err)
		}
		seen, _ := time.Parse(time.RFC3339Nano, lastActivity)
		out = append(out, sink.TeamAwarenessRecord{
			UserID:         userID,
			Status:         "online",
			CurrentBranch:  branch,
			CurrentFile:    focus,
			RepositoryPath: path,
			LastSeen:       seen,
			IsOnline:       active == 1,
		})
	}
	return out, wrap(rows.Err())
}

// GetRecentActivities returns the most recent activities for projectID.
func (r *Repository) GetRecentActivities(ctx context.Context, projectID string, limit int) ([]sink.LiveActivityRecord, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := r.db.QueryxContext(ctx, `
		SELECT id, project_id, repo_id, COALESCE(session_id, ''), type, details, at
		FROM activities WHERE project_id = ? ORDER BY at DESC LIMIT ?
	`, projectID, limit)
	if err != nil {
		return nil, wrap(err)
	}
	defer func() { _ = rows.Close() }()

	var out []sink.LiveActivityRecord
	for rows.Next() {
		var id, pID, repoID, sessionID, typ, details, at string
		if err := rows.Scan(&id, &pID, &repoID, &sessionID, &typ, &details, &at); err != nil {
			return nil, wrap(err)
		}
		ts, _ := time.Parse(time.RFC3339Nano, at)
		out = append(out, sink.LiveActivityRecord{
			ID: id, ProjectID: pID, RepoID: repoID, SessionID: sessionID,
			Type: typ, Details: decodeDetails(details), At: ts,
		})
	}
	return out, wrap(rows.Err())
}

func boolToInt(v bool) int {
	if v {
		return 1
	}
	return 0
}

func decodeDetails(raw string) map[string]any {
	if raw == "" {
		return nil
	}
	var m map[string]any
	if err := json.Unmarshal([]byte(raw), &m); err != nil {
		return nil
	}
	return m
}
