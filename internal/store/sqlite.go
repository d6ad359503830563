// Copyright 2025 the MetaMCP authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package store

import (
	"context"
	"crypto/rand"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"math/big"
	"strings"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"
)

// SQLiteStore implements Store using SQLite.
//
// Features:
//   - WAL mode for concurrent readers
//   - Foreign key constraints enabled (cascade chains for profile deletion)
//   - Automatic default project + profile creation
type SQLiteStore struct {
	db *sql.DB
}

// SQLiteConfig contains configuration for SQLite storage.
type SQLiteConfig struct {
	// Path is the filesystem path to the SQLite database file.
	// ":memory:" is accepted for tests.
	Path string
}

// NewSQLiteStore creates a new SQLite storage backend.
//
// The database is created if it doesn't exist and migrations run
// automatically. A "Default Project" (with its "Default Workspace" profile)
// is created when no project exists, so the gateway always has a tenant to
// resolve against.
func NewSQLiteStore(cfg SQLiteConfig) (*SQLiteStore, error) {
	if cfg.Path == "" {
		return nil, fmt.Errorf("database path is required")
	}

	// modernc's driver applies pragmas per connection via _pragma query
	// parameters. foreign_keys must be on for the cascade and SET NULL
	// semantics the schema relies on.
	connStr := cfg.Path + "?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)&_pragma=synchronous(NORMAL)&_pragma=foreign_keys(1)"

	db, err := sql.Open("sqlite", connStr)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// SQLite with WAL mode can handle multiple concurrent readers
	db.SetMaxOpenConns(5)
	db.SetMaxIdleConns(2)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	s := &SQLiteStore{db: db}

	if err := s.migrate(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	if err := s.ensureDefaultProject(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create default project: %w", err)
	}

	return s, nil
}

// migrate creates the database schema.
func (s *SQLiteStore) migrate(ctx context.Context) error {
	migrations := []string{
		`CREATE TABLE IF NOT EXISTS projects (
			uuid TEXT PRIMARY KEY,
			name TEXT NOT NULL,
			active_profile_uuid TEXT REFERENCES profiles(uuid),
			created_at TEXT NOT NULL DEFAULT (datetime('now'))
		)`,

		`CREATE TABLE IF NOT EXISTS profiles (
			uuid TEXT PRIMARY KEY,
			name TEXT NOT NULL,
			project_uuid TEXT NOT NULL REFERENCES projects(uuid) ON DELETE CASCADE,
			enabled_capabilities TEXT NOT NULL DEFAULT '[]',
			created_at TEXT NOT NULL DEFAULT (datetime('now'))
		)`,

		`CREATE TABLE IF NOT EXISTS api_keys (
			uuid TEXT PRIMARY KEY,
			project_uuid TEXT NOT NULL REFERENCES projects(uuid) ON DELETE CASCADE,
			api_key TEXT NOT NULL UNIQUE,
			name TEXT,
			created_at TEXT NOT NULL DEFAULT (datetime('now'))
		)`,

		`CREATE TABLE IF NOT EXISTS mcp_servers (
			uuid TEXT PRIMARY KEY,
			name TEXT NOT NULL,
			description TEXT,
			type TEXT NOT NULL DEFAULT 'STDIO',
			command TEXT,
			args TEXT NOT NULL DEFAULT '[]',
			env TEXT NOT NULL DEFAULT '{}',
			url TEXT,
			profile_uuid TEXT NOT NULL REFERENCES profiles(uuid) ON DELETE CASCADE,
			status TEXT NOT NULL DEFAULT 'ACTIVE',
			created_at TEXT NOT NULL DEFAULT (datetime('now')),
			CHECK (
				(type = 'SSE' AND url IS NOT NULL AND command IS NULL) OR
				(type = 'STDIO' AND url IS NULL AND command IS NOT NULL)
			)
		)`,

		`CREATE TABLE IF NOT EXISTS custom_mcp_servers (
			uuid TEXT PRIMARY KEY,
			name TEXT NOT NULL,
			description TEXT,
			code TEXT NOT NULL,
			additional_args TEXT NOT NULL DEFAULT '[]',
			env TEXT NOT NULL DEFAULT '{}',
			profile_uuid TEXT NOT NULL REFERENCES profiles(uuid) ON DELETE CASCADE,
			status TEXT NOT NULL DEFAULT 'ACTIVE',
			created_at TEXT NOT NULL DEFAULT (datetime('now'))
		)`,

		`CREATE TABLE IF NOT EXISTS tools (
			uuid TEXT PRIMARY KEY,
			name TEXT NOT NULL,
			description TEXT,
			tool_schema TEXT NOT NULL,
			mcp_server_uuid TEXT NOT NULL REFERENCES mcp_servers(uuid) ON DELETE CASCADE,
			status TEXT NOT NULL DEFAULT 'ACTIVE',
			created_at TEXT NOT NULL DEFAULT (datetime('now')),
			UNIQUE(mcp_server_uuid, name)
		)`,

		`CREATE TABLE IF NOT EXISTS tool_execution_logs (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			mcp_server_uuid TEXT REFERENCES mcp_servers(uuid) ON DELETE SET NULL,
			tool_name TEXT NOT NULL,
			payload TEXT NOT NULL DEFAULT '{}',
			result TEXT,
			status TEXT NOT NULL DEFAULT 'PENDING',
			error_message TEXT,
			execution_time_ms INTEGER,
			created_at TEXT NOT NULL DEFAULT (datetime('now'))
		)`,

		`CREATE INDEX IF NOT EXISTS idx_profiles_project
			ON profiles(project_uuid)`,
		`CREATE INDEX IF NOT EXISTS idx_api_keys_project
			ON api_keys(project_uuid)`,
		`CREATE INDEX IF NOT EXISTS idx_mcp_servers_profile
			ON mcp_servers(profile_uuid)`,
		`CREATE INDEX IF NOT EXISTS idx_mcp_servers_status
			ON mcp_servers(status)`,
		`CREATE INDEX IF NOT EXISTS idx_custom_mcp_servers_profile
			ON custom_mcp_servers(profile_uuid)`,
		`CREATE INDEX IF NOT EXISTS idx_tools_server
			ON tools(mcp_server_uuid)`,
		`CREATE INDEX IF NOT EXISTS idx_logs_server
			ON tool_execution_logs(mcp_server_uuid)`,
		`CREATE INDEX IF NOT EXISTS idx_logs_tool_name
			ON tool_execution_logs(tool_name)`,
	}

	for _, migration := range migrations {
		if _, err := s.db.ExecContext(ctx, migration); err != nil {
			return fmt.Errorf("migration failed: %w", err)
		}
	}

	return nil
}

// ensureDefaultProject creates a default project when none exists.
func (s *SQLiteStore) ensureDefaultProject(ctx context.Context) error {
	var count int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM projects`).Scan(&count); err != nil {
		return fmt.Errorf("failed to count projects: %w", err)
	}
	if count > 0 {
		return nil
	}

	_, err := s.CreateProject(ctx, "Default Project")
	return err
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// CreateProject creates a project, its default profile, and activates the
// profile. The project row is inserted with a null active profile first
// because of the circular reference between the two tables.
func (s *SQLiteStore) CreateProject(ctx context.Context, name string) (*Project, error) {
	if name == "" {
		return nil, Validationf("project name is required")
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	now := time.Now()
	project := &Project{
		UUID:      uuid.New().String(),
		Name:      name,
		CreatedAt: now,
	}

	_, err = tx.ExecContext(ctx,
		`INSERT INTO projects (uuid, name, active_profile_uuid, created_at) VALUES (?, ?, NULL, ?)`,
		project.UUID, project.Name, project.CreatedAt.Format(time.RFC3339Nano),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create project: %w", err)
	}

	profileUUID := uuid.New().String()
	_, err = tx.ExecContext(ctx,
		`INSERT INTO profiles (uuid, name, project_uuid, enabled_capabilities, created_at) VALUES (?, ?, ?, '[]', ?)`,
		profileUUID, defaultProfileName, project.UUID, now.Format(time.RFC3339Nano),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create default profile: %w", err)
	}

	_, err = tx.ExecContext(ctx,
		`UPDATE projects SET active_profile_uuid = ? WHERE uuid = ?`,
		profileUUID, project.UUID,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to activate default profile: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit project: %w", err)
	}

	project.ActiveProfileUUID = profileUUID
	return project, nil
}

// defaultProfileName is the name given to auto-created profiles.
const defaultProfileName = "Default Workspace"

// GetProject retrieves a project by uuid.
func (s *SQLiteStore) GetProject(ctx context.Context, id string) (*Project, error) {
	return scanProject(s.db.QueryRowContext(ctx,
		`SELECT uuid, name, active_profile_uuid, created_at FROM projects WHERE uuid = ?`, id))
}

// ListProjects returns all projects ordered by creation time.
func (s *SQLiteStore) ListProjects(ctx context.Context) ([]*Project, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT uuid, name, active_profile_uuid, created_at FROM projects ORDER BY created_at`)
	if err != nil {
		return nil, fmt.Errorf("failed to list projects: %w", err)
	}
	defer rows.Close()

	var projects []*Project
	for rows.Next() {
		p, err := scanProject(rows)
		if err != nil {
			return nil, err
		}
		projects = append(projects, p)
	}
	return projects, rows.Err()
}

// UpdateProjectName renames a project.
func (s *SQLiteStore) UpdateProjectName(ctx context.Context, id, name string) (*Project, error) {
	if name == "" {
		return nil, Validationf("project name is required")
	}

	result, err := s.db.ExecContext(ctx, `UPDATE projects SET name = ? WHERE uuid = ?`, name, id)
	if err != nil {
		return nil, fmt.Errorf("failed to update project: %w", err)
	}
	if n, _ := result.RowsAffected(); n == 0 {
		return nil, ErrProjectNotFound
	}
	return s.GetProject(ctx, id)
}

// DeleteProject deletes a project. The last remaining project cannot be
// deleted.
func (s *SQLiteStore) DeleteProject(ctx context.Context, id string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	var count int
	if err := tx.QueryRowContext(ctx, `SELECT COUNT(*) FROM projects`).Scan(&count); err != nil {
		return fmt.Errorf("failed to count projects: %w", err)
	}
	if count <= 1 {
		return ErrLastProject
	}

	// Break the circular reference before the cascade removes the profiles.
	if _, err := tx.ExecContext(ctx,
		`UPDATE projects SET active_profile_uuid = NULL WHERE uuid = ?`, id); err != nil {
		return fmt.Errorf("failed to clear active profile: %w", err)
	}

	result, err := tx.ExecContext(ctx, `DELETE FROM projects WHERE uuid = ?`, id)
	if err != nil {
		return fmt.Errorf("failed to delete project: %w", err)
	}
	if n, _ := result.RowsAffected(); n == 0 {
		return ErrProjectNotFound
	}

	return tx.Commit()
}

// SetActiveProfile marks a profile as the project's active profile.
func (s *SQLiteStore) SetActiveProfile(ctx context.Context, projectUUID, profileUUID string) error {
	var owner string
	err := s.db.QueryRowContext(ctx,
		`SELECT project_uuid FROM profiles WHERE uuid = ?`, profileUUID).Scan(&owner)
	if errors.Is(err, sql.ErrNoRows) || (err == nil && owner != projectUUID) {
		return ErrProfileNotFound
	}
	if err != nil {
		return fmt.Errorf("failed to resolve profile: %w", err)
	}

	result, err := s.db.ExecContext(ctx,
		`UPDATE projects SET active_profile_uuid = ? WHERE uuid = ?`, profileUUID, projectUUID)
	if err != nil {
		return fmt.Errorf("failed to set active profile: %w", err)
	}
	if n, _ := result.RowsAffected(); n == 0 {
		return ErrProjectNotFound
	}
	return nil
}

// CreateProfile creates a profile inside a project.
func (s *SQLiteStore) CreateProfile(ctx context.Context, projectUUID, name string) (*Profile, error) {
	if name == "" {
		return nil, Validationf("profile name is required")
	}

	profile := &Profile{
		UUID:                uuid.New().String(),
		Name:                name,
		ProjectUUID:         projectUUID,
		EnabledCapabilities: []ProfileCapability{},
		CreatedAt:           time.Now(),
	}

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO profiles (uuid, name, project_uuid, enabled_capabilities, created_at) VALUES (?, ?, ?, '[]', ?)`,
		profile.UUID, profile.Name, profile.ProjectUUID, profile.CreatedAt.Format(time.RFC3339Nano),
	)
	if err != nil {
		if isForeignKeyError(err) {
			return nil, ErrProjectNotFound
		}
		return nil, fmt.Errorf("failed to create profile: %w", err)
	}

	return profile, nil
}

// GetProfile retrieves a profile by uuid.
func (s *SQLiteStore) GetProfile(ctx context.Context, id string) (*Profile, error) {
	return scanProfile(s.db.QueryRowContext(ctx,
		`SELECT uuid, name, project_uuid, enabled_capabilities, created_at FROM profiles WHERE uuid = ?`, id))
}

// ListProfiles returns a project's profiles ordered by creation time.
func (s *SQLiteStore) ListProfiles(ctx context.Context, projectUUID string) ([]*Profile, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT uuid, name, project_uuid, enabled_capabilities, created_at
		 FROM profiles WHERE project_uuid = ? ORDER BY created_at`, projectUUID)
	if err != nil {
		return nil, fmt.Errorf("failed to list profiles: %w", err)
	}
	defer rows.Close()

	var profiles []*Profile
	for rows.Next() {
		p, err := scanProfile(rows)
		if err != nil {
			return nil, err
		}
		profiles = append(profiles, p)
	}
	return profiles, rows.Err()
}

// UpdateProfileName renames a profile.
func (s *SQLiteStore) UpdateProfileName(ctx context.Context, id, name string) (*Profile, error) {
	if name == "" {
		return nil, Validationf("profile name is required")
	}

	result, err := s.db.ExecContext(ctx, `UPDATE profiles SET name = ? WHERE uuid = ?`, name, id)
	if err != nil {
		return nil, fmt.Errorf("failed to update profile: %w", err)
	}
	if n, _ := result.RowsAffected(); n == 0 {
		return nil, ErrProfileNotFound
	}
	return s.GetProfile(ctx, id)
}

// UpdateProfileCapabilities replaces a profile's enabled capability set.
func (s *SQLiteStore) UpdateProfileCapabilities(ctx context.Context, id string, capabilities []ProfileCapability) (*Profile, error) {
	if capabilities == nil {
		capabilities = []ProfileCapability{}
	}
	encoded, err := json.Marshal(capabilities)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal capabilities: %w", err)
	}

	result, err := s.db.ExecContext(ctx,
		`UPDATE profiles SET enabled_capabilities = ? WHERE uuid = ?`, string(encoded), id)
	if err != nil {
		return nil, fmt.Errorf("failed to update capabilities: %w", err)
	}
	if n, _ := result.RowsAffected(); n == 0 {
		return nil, ErrProfileNotFound
	}
	return s.GetProfile(ctx, id)
}

// DeleteProfile deletes a profile. The last profile in a project cannot be
// deleted; the cascade removes the profile's servers and their tools.
func (s *SQLiteStore) DeleteProfile(ctx context.Context, id string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	var projectUUID string
	err = tx.QueryRowContext(ctx, `SELECT project_uuid FROM profiles WHERE uuid = ?`, id).Scan(&projectUUID)
	if errors.Is(err, sql.ErrNoRows) {
		return ErrProfileNotFound
	}
	if err != nil {
		return fmt.Errorf("failed to resolve profile: %w", err)
	}

	var count int
	if err := tx.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM profiles WHERE project_uuid = ?`, projectUUID).Scan(&count); err != nil {
		return fmt.Errorf("failed to count profiles: %w", err)
	}
	if count <= 1 {
		return ErrLastProfile
	}

	if _, err := tx.ExecContext(ctx,
		`UPDATE projects SET active_profile_uuid = NULL WHERE active_profile_uuid = ?`, id); err != nil {
		return fmt.Errorf("failed to clear active profile: %w", err)
	}

	if _, err := tx.ExecContext(ctx, `DELETE FROM profiles WHERE uuid = ?`, id); err != nil {
		return fmt.Errorf("failed to delete profile: %w", err)
	}

	return tx.Commit()
}

// GetActiveProfile resolves a project's active profile, activating or
// creating one when needed. The whole resolution runs inside a single
// transaction so two concurrent first-time calls cannot each create a
// default profile.
func (s *SQLiteStore) GetActiveProfile(ctx context.Context, projectUUID string) (*Profile, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	var active sql.NullString
	err = tx.QueryRowContext(ctx,
		`SELECT active_profile_uuid FROM projects WHERE uuid = ?`, projectUUID).Scan(&active)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrProjectNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to resolve project: %w", err)
	}

	if active.Valid {
		profile, err := scanProfile(tx.QueryRowContext(ctx,
			`SELECT uuid, name, project_uuid, enabled_capabilities, created_at FROM profiles WHERE uuid = ?`,
			active.String))
		if err == nil {
			return profile, tx.Commit()
		}
		if !errors.Is(err, ErrProfileNotFound) {
			return nil, err
		}
		// Dangling reference: fall through to the fallback logic.
	}

	// Oldest existing profile wins the activation, deterministically.
	profile, err := scanProfile(tx.QueryRowContext(ctx,
		`SELECT uuid, name, project_uuid, enabled_capabilities, created_at
		 FROM profiles WHERE project_uuid = ? ORDER BY created_at, uuid LIMIT 1`, projectUUID))
	if err != nil && !errors.Is(err, ErrProfileNotFound) {
		return nil, err
	}

	if errors.Is(err, ErrProfileNotFound) {
		profile = &Profile{
			UUID:                uuid.New().String(),
			Name:                defaultProfileName,
			ProjectUUID:         projectUUID,
			EnabledCapabilities: []ProfileCapability{},
			CreatedAt:           time.Now(),
		}
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO profiles (uuid, name, project_uuid, enabled_capabilities, created_at) VALUES (?, ?, ?, '[]', ?)`,
			profile.UUID, profile.Name, profile.ProjectUUID, profile.CreatedAt.Format(time.RFC3339Nano),
		); err != nil {
			return nil, fmt.Errorf("failed to create default profile: %w", err)
		}
	}

	if _, err := tx.ExecContext(ctx,
		`UPDATE projects SET active_profile_uuid = ? WHERE uuid = ?`, profile.UUID, projectUUID); err != nil {
		return nil, fmt.Errorf("failed to activate profile: %w", err)
	}

	return profile, tx.Commit()
}

// apiKeyPrefix plus 64 alphanumerics forms an API key value.
const apiKeyPrefix = "sk_mt_"

const apiKeyAlphabet = "0123456789ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz"

// newAPIKeyValue mints an opaque bearer value.
func newAPIKeyValue() (string, error) {
	var sb strings.Builder
	sb.WriteString(apiKeyPrefix)
	max := big.NewInt(int64(len(apiKeyAlphabet)))
	for i := 0; i < 64; i++ {
		n, err := rand.Int(rand.Reader, max)
		if err != nil {
			return "", fmt.Errorf("failed to generate api key: %w", err)
		}
		sb.WriteByte(apiKeyAlphabet[n.Int64()])
	}
	return sb.String(), nil
}

// CreateAPIKey mints a new key for a project. Value collisions are
// vanishingly unlikely with 64 random characters but the UNIQUE column
// catches them; mint again rather than fail the request.
func (s *SQLiteStore) CreateAPIKey(ctx context.Context, projectUUID, name string) (*APIKey, error) {
	for attempt := 0; attempt < 3; attempt++ {
		value, err := newAPIKeyValue()
		if err != nil {
			return nil, err
		}

		key := &APIKey{
			UUID:        uuid.New().String(),
			ProjectUUID: projectUUID,
			APIKey:      value,
			Name:        name,
			CreatedAt:   time.Now(),
		}

		_, err = s.db.ExecContext(ctx,
			`INSERT INTO api_keys (uuid, project_uuid, api_key, name, created_at) VALUES (?, ?, ?, ?, ?)`,
			key.UUID, key.ProjectUUID, key.APIKey, nullStr(key.Name), key.CreatedAt.Format(time.RFC3339Nano),
		)
		if err == nil {
			return key, nil
		}
		if isForeignKeyError(err) {
			return nil, ErrProjectNotFound
		}
		if isUniqueConstraintError(err) {
			continue
		}
		return nil, fmt.Errorf("failed to create api key: %w", err)
	}

	return nil, fmt.Errorf("failed to mint a unique api key")
}

// GetFirstAPIKey returns the project's oldest key, minting one on demand.
func (s *SQLiteStore) GetFirstAPIKey(ctx context.Context, projectUUID string) (*APIKey, error) {
	key, err := scanAPIKey(s.db.QueryRowContext(ctx,
		`SELECT uuid, project_uuid, api_key, name, created_at
		 FROM api_keys WHERE project_uuid = ? ORDER BY created_at, uuid LIMIT 1`, projectUUID))
	if err == nil {
		return key, nil
	}
	if !errors.Is(err, ErrAPIKeyNotFound) {
		return nil, err
	}

	return s.CreateAPIKey(ctx, projectUUID, "")
}

// ListAPIKeys returns a project's keys ordered by creation time.
func (s *SQLiteStore) ListAPIKeys(ctx context.Context, projectUUID string) ([]*APIKey, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT uuid, project_uuid, api_key, name, created_at
		 FROM api_keys WHERE project_uuid = ? ORDER BY created_at`, projectUUID)
	if err != nil {
		return nil, fmt.Errorf("failed to list api keys: %w", err)
	}
	defer rows.Close()

	var keys []*APIKey
	for rows.Next() {
		k, err := scanAPIKey(rows)
		if err != nil {
			return nil, err
		}
		keys = append(keys, k)
	}
	return keys, rows.Err()
}

// DeleteAPIKey removes a key scoped to its project.
func (s *SQLiteStore) DeleteAPIKey(ctx context.Context, projectUUID, id string) error {
	result, err := s.db.ExecContext(ctx,
		`DELETE FROM api_keys WHERE uuid = ? AND project_uuid = ?`, id, projectUUID)
	if err != nil {
		return fmt.Errorf("failed to delete api key: %w", err)
	}
	if n, _ := result.RowsAffected(); n == 0 {
		return ErrAPIKeyNotFound
	}
	return nil
}

// GetAPIKeyByValue looks up a key record by its opaque bearer value.
func (s *SQLiteStore) GetAPIKeyByValue(ctx context.Context, value string) (*APIKey, error) {
	return scanAPIKey(s.db.QueryRowContext(ctx,
		`SELECT uuid, project_uuid, api_key, name, created_at FROM api_keys WHERE api_key = ?`, value))
}

// rowScanner abstracts *sql.Row and *sql.Rows for the scan helpers.
type rowScanner interface {
	Scan(dest ...any) error
}

func scanProject(row rowScanner) (*Project, error) {
	var p Project
	var active sql.NullString
	var createdAt string

	err := row.Scan(&p.UUID, &p.Name, &active, &createdAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrProjectNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan project: %w", err)
	}

	p.ActiveProfileUUID = active.String
	p.CreatedAt = parseTime(createdAt)
	return &p, nil
}

func scanProfile(row rowScanner) (*Profile, error) {
	var p Profile
	var capabilities string
	var createdAt string

	err := row.Scan(&p.UUID, &p.Name, &p.ProjectUUID, &capabilities, &createdAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrProfileNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan profile: %w", err)
	}

	if err := json.Unmarshal([]byte(capabilities), &p.EnabledCapabilities); err != nil {
		return nil, fmt.Errorf("failed to unmarshal capabilities: %w", err)
	}
	p.CreatedAt = parseTime(createdAt)
	return &p, nil
}

func scanAPIKey(row rowScanner) (*APIKey, error) {
	var k APIKey
	var name sql.NullString
	var createdAt string

	err := row.Scan(&k.UUID, &k.ProjectUUID, &k.APIKey, &name, &createdAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrAPIKeyNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan api key: %w", err)
	}

	k.Name = name.String
	k.CreatedAt = parseTime(createdAt)
	return &k, nil
}

// parseTime parses stored timestamps, tolerating both RFC3339 and sqlite's
// datetime('now') format.
func parseTime(value string) time.Time {
	if t, err := time.Parse(time.RFC3339Nano, value); err == nil {
		return t
	}
	t, _ := time.Parse("2006-01-02 15:04:05", value)
	return t
}

// nullStr maps empty strings to NULL.
func nullStr(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

// isUniqueConstraintError checks if err is a unique constraint violation.
func isUniqueConstraintError(err error) bool {
	return err != nil && strings.Contains(err.Error(), "UNIQUE constraint failed")
}

// isForeignKeyError checks if err is a foreign key constraint violation.
func isForeignKeyError(err error) bool {
	return err != nil && strings.Contains(err.Error(), "FOREIGN KEY constraint failed")
}

// isCheckConstraintError checks if err is a CHECK constraint violation.
func isCheckConstraintError(err error) bool {
	return err != nil && strings.Contains(err.Error(), "CHECK constraint failed")
}
