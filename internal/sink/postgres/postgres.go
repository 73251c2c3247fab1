// Package postgres implements sink.DatabaseSync against PostgreSQL,
// grounded on the teacher's internal/db/postgres.go (pgx/v5 stdlib driver
// over database/sql) paired with jmoiron/sqlx for struct scanning, the
// same combination the sqlite sink backend uses.
package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	_ "github.com/jackc/pgx/v5/stdlib"

	"github.com/Sxriptor/colabify-app-sub001/internal/sink"
)

// Repository implements sink.DatabaseSync backed by PostgreSQL.
type Repository struct {
	db *sqlx.DB
}

// Open opens dsn and ensures the schema exists. maxConns/minConns follow
// the teacher's OpenPostgres defaults (25/5) when zero.
func Open(dsn string, maxConns, minConns int) (*Repository, error) {
	db, err := sqlx.Open("pgx", dsn)
	if err != nil {
		return nil, fmt.Errorf("postgres sink: open: %w", err)
	}
	if maxConns <= 0 {
		maxConns = 25
	}
	if minConns <= 0 {
		minConns = 5
	}
	db.SetMaxOpenConns(maxConns)
	db.SetMaxIdleConns(minConns)

	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("postgres sink: ping: %w", err)
	}

	repo := &Repository{db: db}
	if err := repo.migrate(); err != nil {
		_ = db.Close()
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
			watching BOOLEAN NOT NULL DEFAULT TRUE,
			updated_at TIMESTAMPTZ NOT NULL,
			PRIMARY KEY (project_id, user_id)
		)`,
		`CREATE TABLE IF NOT EXISTS live_sessions (
			id TEXT PRIMARY KEY,
			user_id TEXT NOT NULL,
			project_id TEXT NOT NULL,
			repository_id TEXT,
			local_path TEXT,
			session_start TIMESTAMPTZ,
			last_activity TIMESTAMPTZ,
			is_active BOOLEAN NOT NULL DEFAULT TRUE,
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
			first_change_at TIMESTAMPTZ,
			last_change_at TIMESTAMPTZ,
			PRIMARY KEY (session_id, file_path)
		)`,
		`CREATE TABLE IF NOT EXISTS activities (
			id TEXT PRIMARY KEY,
			project_id TEXT NOT NULL,
			repo_id TEXT NOT NULL,
			session_id TEXT,
			type TEXT NOT NULL,
			details JSONB,
			at TIMESTAMPTZ NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_activities_project_at ON activities(project_id, at DESC)`,
	}
	for _, s := range stmts {
		if _, err := r.db.Exec(s); err != nil {
			return fmt.Errorf("postgres sink: migrate: %w", err)
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

// SyncWatchedProjects reads back the current watched-project set.
func (r *Repository) SyncWatchedProjects(ctx context.Context, userID string) ([]string, error) {
	return r.GetWatchedProjectIDs(ctx, userID)
}

// GetWatchedProjectIDs returns every project_id watched by userID.
func (r *Repository) GetWatchedProjectIDs(ctx context.Context, userID string) ([]string, error) {
	var ids []string
	err := r.db.SelectContext(ctx, &ids,
		`SELECT project_id FROM watched_projects WHERE user_id = $1 AND watching = TRUE`, userID)
	if err != nil {
		return nil, wrap(err)
	}
	return ids, nil
}

// IsProjectWatched reports whether projectID is watched by userID.
func (r *Repository) IsProjectWatched(ctx context.Context, projectID, userID string) (bool, error) {
	var watching bool
	err := r.db.GetContext(ctx, &watching,
		`SELECT watching FROM watched_projects WHERE project_id = $1 AND user_id = $2`, projectID, userID)
	if err == sql.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, wrap(err)
	}
	return watching, nil
}

// ToggleProjectWatch upserts the watched state for (projectID, userID).
func (r *Repository) ToggleProjectWatch(ctx context.Context, projectID, userID string, on bool) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO watched_projects (project_id, user_id, watching, updated_at)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (project_id, user_id) DO UPDATE SET
			watching = EXCLUDED.watching,
			updated_at = EXCLUDED.updated_at
	`, projectID, userID, on, time.Now().UTC())
	return wrap(err)
}

// SyncLiveActivity inserts one emitted activity row; redelivery of the
// same id is a no-op.
func (r *Repository) SyncLiveActivity(ctx context.Context, rec sink.LiveActivityRecord) error {
	details, err := json.Marshal(rec.Details)
	if err != nil {
		return wrap(err)
	}
	sessionID := sql.NullString{String: rec.SessionID, Valid: rec.SessionID != ""}
	_, err = r.db.ExecContext(ctx, `
		INSERT INTO activities (id, project_id, repo_id, session_id, type, details, at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (id) DO NOTHING
	`, rec.ID, rec.ProjectID, rec.RepoID, sessionID, rec.Type, details, rec.At.UTC())
	return wrap(err)
}

// SyncLiveSession upserts a full session snapshot.
func (r *Repository) SyncLiveSession(ctx context.Context, rec sink.LiveSessionRecord) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO live_sessions (
			id, user_id, project_id, repository_id, local_path, session_start,
			last_activity, is_active, current_branch, current_head,
			working_directory_status, ahead_count, behind_count, focus_file, editor_info
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)
		ON CONFLICT (id) DO UPDATE SET
			last_activity = EXCLUDED.last_activity,
			is_active = EXCLUDED.is_active,
			current_branch = EXCLUDED.current_branch,
			current_head = EXCLUDED.current_head,
			working_directory_status = EXCLUDED.working_directory_status,
			ahead_count = EXCLUDED.ahead_count,
			behind_count = EXCLUDED.behind_count,
			focus_file = EXCLUDED.focus_file,
			editor_info = EXCLUDED.editor_info
	`,
		rec.ID, rec.UserID, rec.ProjectID, rec.RepositoryID, rec.LocalPath,
		rec.SessionStart.UTC(), rec.LastActivity.UTC(), rec.IsActive, rec.CurrentBranch,
		rec.CurrentHead, rec.WorkDirStatus, rec.AheadCount, rec.BehindCount,
		rec.FocusFile, rec.EditorInfo)
	return wrap(err)
}

// SyncFileChanges upserts each change, merging counters monotonically via
// GREATEST() and keeping the latest change_type, keyed by
// (session_id, file_path) per spec.md §4.I/§8 property 10.
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
			) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
			ON CONFLICT (session_id, file_path) DO UPDATE SET
				change_type = EXCLUDED.change_type,
				lines_added = GREATEST(file_changes.lines_added, EXCLUDED.lines_added),
				lines_removed = GREATEST(file_changes.lines_removed, EXCLUDED.lines_removed),
				characters_added = GREATEST(file_changes.characters_added, EXCLUDED.characters_added),
				characters_removed = GREATEST(file_changes.characters_removed, EXCLUDED.characters_removed),
				last_change_at = EXCLUDED.last_change_at
		`,
			sessionID, userID, projectID, c.FilePath, c.FileType, c.ChangeType,
			c.LinesAdded, c.LinesRemoved, c.CharactersAdded, c.CharactersRemoved,
			c.FirstChangeAt.UTC(), c.LastChangeAt.UTC())
		if err != nil {
			return wrap(err)
		}
	}
	return wrap(tx.Commit())
}

// CleanupOldData drops terminal sessions and their file changes older
// than 24h.
func (r *Repository) CleanupOldData(ctx context.Context) error {
	cutoff := time.Now().Add(-24 * time.Hour).UTC()
	_, err := r.db.ExecContext(ctx, `
		DELETE FROM file_changes WHERE session_id IN (
			SELECT id FROM live_sessions WHERE is_active = FALSE AND last_activity < $1
		)`, cutoff)
	if err != nil {
		return wrap(err)
	}
	_, err = r.db.ExecContext(ctx, `DELETE FROM live_sessions WHERE is_active = FALSE AND last_activity < $1`, cutoff)
	return wrap(err)
}

// GetTeamAwareness derives one row per active session for projectID.
func (r *Repository) GetTeamAwareness(ctx context.Context, projectID string) ([]sink.TeamAwarenessRecord, error) {
	rows, err := r.db.QueryxContext(ctx, `
		SELECT user_id, current_branch, focus_file, local_path, last_activity, is_active
		FROM live_sessions WHERE project_id = $1 AND is_active = TRUE
	`, projectID)
	if err != nil {
		return nil, wrap(err)
	}
	defer func() { _ = rows.Close() }()

	var out []sink.TeamAwarenessRecord
	for rows.Next() {
		var userID, branch, focus, path string
		var lastActivity time.Time
		var active bool
		if err := rows.Scan(&userID, &branch, &focus, &path, &lastActivity, &active); err != nil {
			return nil, wrap(err)
		}
		out = append(out, sink.TeamAwarenessRecord{
			UserID:         userID,
			Status:         "online",
			CurrentBranch:  branch,
			CurrentFile:    focus,
			RepositoryPath: path,
			LastSeen:       lastActivity,
			IsOnline:       active,
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
		FROM activities WHERE project_id = $1 ORDER BY at DESC LIMIT $2
	`, projectID, limit)
	if err != nil {
		return nil, wrap(err)
	}
	defer func() { _ = rows.Close() }()

	var out []sink.LiveActivityRecord
	for rows.Next() {
		var id, pID, repoID, sessionID, typ string
		var details []byte
		var at time.Time
		if err := rows.Scan(&id, &pID, &repoID, &sessionID, &typ, &details, &at); err != nil {
			return nil, wrap(err)
		}
		out = append(out, sink.LiveActivityRecord{
			ID: id, ProjectID: pID, RepoID: repoID, SessionID: sessionID,
			Type: typ, Details: decodeDetails(details), At: at,
		})
	}
	return out, wrap(rows.Err())
}

func decodeDetails(raw []byte) map[string]any {
	if len(raw) == 0 {
		return nil
	}
	var m map[string]any
	if err := json.Unmarshal(raw, &m); err != nil {
		return nil
	}
	return m
}
