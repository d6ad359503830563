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
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// unknownServerName is reported for log rows whose server has been deleted
// or that never had one.
const unknownServerName = "Unknown Server"

// CreateServer inserts a server registration.
func (s *SQLiteStore) CreateServer(ctx context.Context, server *MCPServer) error {
	if server == nil {
		return Validationf("server cannot be nil")
	}

	if server.UUID == "" {
		server.UUID = uuid.New().String()
	}
	if server.Type == "" {
		server.Type = ServerTypeStdio
	}
	if server.Status == "" {
		server.Status = ServerStatusActive
	}
	server.CreatedAt = time.Now()

	args, env, err := encodeServerFields(server.Args, server.Env)
	if err != nil {
		return err
	}

	_, err = s.db.ExecContext(ctx,
		`INSERT INTO mcp_servers (uuid, name, description, type, command, args, env, url, profile_uuid, status, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		server.UUID, server.Name, nullStr(server.Description), string(server.Type),
		nullStr(server.Command), args, env, nullStr(server.URL),
		server.ProfileUUID, string(server.Status), server.CreatedAt.Format(time.RFC3339Nano),
	)
	if err != nil {
		if isForeignKeyError(err) {
			return ErrProfileNotFound
		}
		if isCheckConstraintError(err) {
			return Validationf("exactly one of command or url must be set, consistent with the server type")
		}
		return fmt.Errorf("failed to create mcp server: %w", err)
	}

	return nil
}

// GetServer retrieves a server scoped to a profile.
func (s *SQLiteStore) GetServer(ctx context.Context, profileUUID, id string) (*MCPServer, error) {
	return scanServer(s.db.QueryRowContext(ctx,
		`SELECT uuid, name, description, type, command, args, env, url, profile_uuid, status, created_at
		 FROM mcp_servers WHERE uuid = ? AND profile_uuid = ?`, id, profileUUID))
}

// ListServers returns a profile's servers with the given statuses, newest
// first. An empty status list means {ACTIVE, INACTIVE}, which excludes the
// SUGGESTED/DECLINED recommendation states.
func (s *SQLiteStore) ListServers(ctx context.Context, profileUUID string, statuses []ServerStatus) ([]*MCPServer, error) {
	if len(statuses) == 0 {
		statuses = []ServerStatus{ServerStatusActive, ServerStatusInactive}
	}

	query := fmt.Sprintf(
		`SELECT uuid, name, description, type, command, args, env, url, profile_uuid, status, created_at
		 FROM mcp_servers WHERE profile_uuid = ? AND status IN (%s)
		 ORDER BY created_at DESC`, placeholders(len(statuses)))

	args := []any{profileUUID}
	for _, st := range statuses {
		args = append(args, string(st))
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list mcp servers: %w", err)
	}
	defer rows.Close()

	var servers []*MCPServer
	for rows.Next() {
		server, err := scanServer(rows)
		if err != nil {
			return nil, err
		}
		servers = append(servers, server)
	}
	return servers, rows.Err()
}

// UpdateServer replaces a server's mutable fields, scoped to the profile.
func (s *SQLiteStore) UpdateServer(ctx context.Context, server *MCPServer) error {
	if server == nil {
		return Validationf("server cannot be nil")
	}

	args, env, err := encodeServerFields(server.Args, server.Env)
	if err != nil {
		return err
	}

	result, err := s.db.ExecContext(ctx,
		`UPDATE mcp_servers
		 SET name = ?, description = ?, type = ?, command = ?, args = ?, env = ?, url = ?
		 WHERE uuid = ? AND profile_uuid = ?`,
		server.Name, nullStr(server.Description), string(server.Type),
		nullStr(server.Command), args, env, nullStr(server.URL),
		server.UUID, server.ProfileUUID,
	)
	if err != nil {
		if isCheckConstraintError(err) {
			return Validationf("exactly one of command or url must be set, consistent with the server type")
		}
		return fmt.Errorf("failed to update mcp server: %w", err)
	}
	if n, _ := result.RowsAffected(); n == 0 {
		return ErrServerNotFound
	}
	return nil
}

// DeleteServer removes a server and cascades to its tools. Execution logs
// keep their rows with the server reference nulled.
func (s *SQLiteStore) DeleteServer(ctx context.Context, profileUUID, id string) error {
	result, err := s.db.ExecContext(ctx,
		`DELETE FROM mcp_servers WHERE uuid = ? AND profile_uuid = ?`, id, profileUUID)
	if err != nil {
		return fmt.Errorf("failed to delete mcp server: %w", err)
	}
	if n, _ := result.RowsAffected(); n == 0 {
		return ErrServerNotFound
	}
	return nil
}

// SetServerStatus updates a server's status, scoped to the profile.
func (s *SQLiteStore) SetServerStatus(ctx context.Context, profileUUID, id string, status ServerStatus) error {
	result, err := s.db.ExecContext(ctx,
		`UPDATE mcp_servers SET status = ? WHERE uuid = ? AND profile_uuid = ?`,
		string(status), id, profileUUID)
	if err != nil {
		return fmt.Errorf("failed to update mcp server status: %w", err)
	}
	if n, _ := result.RowsAffected(); n == 0 {
		return ErrServerNotFound
	}
	return nil
}

// CreateCustomServer inserts a code-based server registration.
func (s *SQLiteStore) CreateCustomServer(ctx context.Context, server *CustomMCPServer) error {
	if server == nil {
		return Validationf("server cannot be nil")
	}
	if server.UUID == "" {
		server.UUID = uuid.New().String()
	}
	if server.Status == "" {
		server.Status = ServerStatusActive
	}
	server.CreatedAt = time.Now()

	args, env, err := encodeServerFields(server.AdditionalArgs, server.Env)
	if err != nil {
		return err
	}

	_, err = s.db.ExecContext(ctx,
		`INSERT INTO custom_mcp_servers (uuid, name, description, code, additional_args, env, profile_uuid, status, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		server.UUID, server.Name, nullStr(server.Description), server.Code,
		args, env, server.ProfileUUID, string(server.Status),
		server.CreatedAt.Format(time.RFC3339Nano),
	)
	if err != nil {
		if isForeignKeyError(err) {
			return ErrProfileNotFound
		}
		return fmt.Errorf("failed to create custom mcp server: %w", err)
	}
	return nil
}

// GetCustomServer retrieves a custom server scoped to a profile.
func (s *SQLiteStore) GetCustomServer(ctx context.Context, profileUUID, id string) (*CustomMCPServer, error) {
	return scanCustomServer(s.db.QueryRowContext(ctx,
		`SELECT uuid, name, description, code, additional_args, env, profile_uuid, status, created_at
		 FROM custom_mcp_servers WHERE uuid = ? AND profile_uuid = ?`, id, profileUUID))
}

// ListCustomServers returns a profile's custom servers, newest first.
func (s *SQLiteStore) ListCustomServers(ctx context.Context, profileUUID string, statuses []ServerStatus) ([]*CustomMCPServer, error) {
	if len(statuses) == 0 {
		statuses = []ServerStatus{ServerStatusActive, ServerStatusInactive}
	}

	query := fmt.Sprintf(
		`SELECT uuid, name, description, code, additional_args, env, profile_uuid, status, created_at
		 FROM custom_mcp_servers WHERE profile_uuid = ? AND status IN (%s)
		 ORDER BY created_at DESC`, placeholders(len(statuses)))

	args := []any{profileUUID}
	for _, st := range statuses {
		args = append(args, string(st))
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list custom mcp servers: %w", err)
	}
	defer rows.Close()

	var servers []*CustomMCPServer
	for rows.Next() {
		server, err := scanCustomServer(rows)
		if err != nil {
			return nil, err
		}
		servers = append(servers, server)
	}
	return servers, rows.Err()
}

// DeleteCustomServer removes a custom server scoped to a profile.
func (s *SQLiteStore) DeleteCustomServer(ctx context.Context, profileUUID, id string) error {
	result, err := s.db.ExecContext(ctx,
		`DELETE FROM custom_mcp_servers WHERE uuid = ? AND profile_uuid = ?`, id, profileUUID)
	if err != nil {
		return fmt.Errorf("failed to delete custom mcp server: %w", err)
	}
	if n, _ := result.RowsAffected(); n == 0 {
		return ErrCustomServerNotFound
	}
	return nil
}

// SetCustomServerStatus updates a custom server's status.
func (s *SQLiteStore) SetCustomServerStatus(ctx context.Context, profileUUID, id string, status ServerStatus) error {
	result, err := s.db.ExecContext(ctx,
		`UPDATE custom_mcp_servers SET status = ? WHERE uuid = ? AND profile_uuid = ?`,
		string(status), id, profileUUID)
	if err != nil {
		return fmt.Errorf("failed to update custom mcp server status: %w", err)
	}
	if n, _ := result.RowsAffected(); n == 0 {
		return ErrCustomServerNotFound
	}
	return nil
}

// UpsertTools merges discovered tools into the catalog inside one
// transaction. Conflicts on (server, name) update description and schema
// only; an operator's enable/disable survives rediscovery.
func (s *SQLiteStore) UpsertTools(ctx context.Context, serverUUID string, tools []ToolUpsert) ([]*Tool, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	upserted := make([]*Tool, 0, len(tools))
	for _, t := range tools {
		if t.Name == "" {
			return nil, Validationf("tool name is required")
		}
		schema := t.ToolSchema
		if len(schema) == 0 {
			schema = json.RawMessage(`{}`)
		}

		_, err := tx.ExecContext(ctx,
			`INSERT INTO tools (uuid, name, description, tool_schema, mcp_server_uuid, status, created_at)
			 VALUES (?, ?, ?, ?, ?, 'ACTIVE', ?)
			 ON CONFLICT(mcp_server_uuid, name) DO UPDATE SET
				description = excluded.description,
				tool_schema = excluded.tool_schema`,
			uuid.New().String(), t.Name, nullStr(t.Description), string(schema),
			serverUUID, time.Now().Format(time.RFC3339Nano),
		)
		if err != nil {
			if isForeignKeyError(err) {
				return nil, ErrServerNotFound
			}
			return nil, fmt.Errorf("failed to upsert tool %s: %w", t.Name, err)
		}

		tool, err := scanTool(tx.QueryRowContext(ctx,
			`SELECT uuid, name, description, tool_schema, mcp_server_uuid, status, created_at
			 FROM tools WHERE mcp_server_uuid = ? AND name = ?`, serverUUID, t.Name))
		if err != nil {
			return nil, err
		}
		upserted = append(upserted, tool)
	}

	return upserted, tx.Commit()
}

// ListTools returns tools joined to the profile's servers.
func (s *SQLiteStore) ListTools(ctx context.Context, profileUUID string, status *ToggleStatus) ([]*Tool, error) {
	query := `SELECT t.uuid, t.name, t.description, t.tool_schema, t.mcp_server_uuid, t.status, t.created_at
		 FROM tools t
		 INNER JOIN mcp_servers s ON t.mcp_server_uuid = s.uuid
		 WHERE s.profile_uuid = ?`
	args := []any{profileUUID}

	if status != nil {
		query += ` AND t.status = ?`
		args = append(args, string(*status))
	}
	query += ` ORDER BY t.name`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list tools: %w", err)
	}
	defer rows.Close()

	var tools []*Tool
	for rows.Next() {
		tool, err := scanTool(rows)
		if err != nil {
			return nil, err
		}
		tools = append(tools, tool)
	}
	return tools, rows.Err()
}

// SetToolStatus toggles a tool, scoped to the profile via its server.
func (s *SQLiteStore) SetToolStatus(ctx context.Context, profileUUID, toolUUID string, status ToggleStatus) error {
	result, err := s.db.ExecContext(ctx,
		`UPDATE tools SET status = ?
		 WHERE uuid = ? AND mcp_server_uuid IN
			(SELECT uuid FROM mcp_servers WHERE profile_uuid = ?)`,
		string(status), toolUUID, profileUUID)
	if err != nil {
		return fmt.Errorf("failed to update tool status: %w", err)
	}
	if n, _ := result.RowsAffected(); n == 0 {
		return ErrToolNotFound
	}
	return nil
}

// CreateLog inserts an execution log entry and fills in its assigned ID.
func (s *SQLiteStore) CreateLog(ctx context.Context, entry *ExecutionLog) error {
	if entry == nil {
		return Validationf("log entry cannot be nil")
	}
	if entry.ToolName == "" {
		return Validationf("tool name is required")
	}
	if entry.Status == "" {
		entry.Status = ExecutionStatusPending
	}
	payload := entry.Payload
	if len(payload) == 0 {
		payload = json.RawMessage(`{}`)
	}
	entry.CreatedAt = time.Now()

	var result sql.NullString
	if len(entry.Result) > 0 {
		result = sql.NullString{String: string(entry.Result), Valid: true}
	}
	var execTime sql.NullInt64
	if entry.ExecutionTimeMS != nil {
		execTime = sql.NullInt64{Int64: *entry.ExecutionTimeMS, Valid: true}
	}

	res, err := s.db.ExecContext(ctx,
		`INSERT INTO tool_execution_logs (mcp_server_uuid, tool_name, payload, result, status, error_message, execution_time_ms, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		nullStr(entry.ServerUUID), entry.ToolName, string(payload), result,
		string(entry.Status), nullStr(entry.ErrorMessage), execTime,
		entry.CreatedAt.Format(time.RFC3339Nano),
	)
	if err != nil {
		if isForeignKeyError(err) {
			return ErrServerNotFound
		}
		return fmt.Errorf("failed to create execution log: %w", err)
	}

	entry.ID, err = res.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to read log id: %w", err)
	}
	return nil
}

// UpdateLog applies a terminal update to a log entry and returns the
// updated row.
func (s *SQLiteStore) UpdateLog(ctx context.Context, id int64, update LogUpdate) (*ExecutionLog, error) {
	if update.IsEmpty() {
		return nil, Validationf("no fields to update")
	}

	var sets []string
	var args []any

	if update.Result != nil {
		sets = append(sets, "result = ?")
		args = append(args, string(update.Result))
	}
	if update.Status != nil {
		sets = append(sets, "status = ?")
		args = append(args, string(*update.Status))
	}
	if update.ErrorMessage != nil {
		sets = append(sets, "error_message = ?")
		args = append(args, *update.ErrorMessage)
	}
	if update.ExecutionTimeMS != nil {
		sets = append(sets, "execution_time_ms = ?")
		args = append(args, *update.ExecutionTimeMS)
	}
	args = append(args, id)

	result, err := s.db.ExecContext(ctx,
		fmt.Sprintf(`UPDATE tool_execution_logs SET %s WHERE id = ?`, strings.Join(sets, ", ")),
		args...)
	if err != nil {
		return nil, fmt.Errorf("failed to update execution log: %w", err)
	}
	if n, _ := result.RowsAffected(); n == 0 {
		return nil, ErrLogNotFound
	}

	return s.GetLog(ctx, id)
}

// GetLog retrieves a log entry by id with its server name joined in.
func (s *SQLiteStore) GetLog(ctx context.Context, id int64) (*ExecutionLog, error) {
	return scanLog(s.db.QueryRowContext(ctx,
		`SELECT l.id, l.mcp_server_uuid, s.name, l.tool_name, l.payload, l.result, l.status, l.error_message, l.execution_time_ms, l.created_at
		 FROM tool_execution_logs l
		 LEFT JOIN mcp_servers s ON l.mcp_server_uuid = s.uuid
		 WHERE l.id = ?`, id))
}

// QueryLogs returns a profile's logs newest-first plus the total count
// before pagination. Logs are strictly scoped to servers owned by the
// profile; rows whose server was deleted are not attributable to a tenant
// and are excluded from scoped queries.
func (s *SQLiteStore) QueryLogs(ctx context.Context, profileUUID string, filter LogFilter) ([]*ExecutionLog, int, error) {
	where := []string{"s.profile_uuid = ?"}
	args := []any{profileUUID}

	if len(filter.ServerUUIDs) > 0 {
		where = append(where, fmt.Sprintf("l.mcp_server_uuid IN (%s)", placeholders(len(filter.ServerUUIDs))))
		for _, u := range filter.ServerUUIDs {
			args = append(args, u)
		}
	}
	if len(filter.ToolNames) > 0 {
		where = append(where, fmt.Sprintf("l.tool_name IN (%s)", placeholders(len(filter.ToolNames))))
		for _, n := range filter.ToolNames {
			args = append(args, n)
		}
	}
	if len(filter.Statuses) > 0 {
		where = append(where, fmt.Sprintf("l.status IN (%s)", placeholders(len(filter.Statuses))))
		for _, st := range filter.Statuses {
			args = append(args, string(st))
		}
	}

	from := `FROM tool_execution_logs l
		 INNER JOIN mcp_servers s ON l.mcp_server_uuid = s.uuid
		 WHERE ` + strings.Join(where, " AND ")

	var total int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) `+from, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("failed to count execution logs: %w", err)
	}

	limit := filter.Limit
	if limit <= 0 {
		limit = 50
	}

	query := `SELECT l.id, l.mcp_server_uuid, s.name, l.tool_name, l.payload, l.result, l.status, l.error_message, l.execution_time_ms, l.created_at ` +
		from + ` ORDER BY l.id DESC LIMIT ? OFFSET ?`
	args = append(args, limit, filter.Offset)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to query execution logs: %w", err)
	}
	defer rows.Close()

	var logs []*ExecutionLog
	for rows.Next() {
		entry, err := scanLog(rows)
		if err != nil {
			return nil, 0, err
		}
		logs = append(logs, entry)
	}
	return logs, total, rows.Err()
}

// ListToolNames returns the distinct tool names across a profile's logs.
func (s *SQLiteStore) ListToolNames(ctx context.Context, profileUUID string) ([]string, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT DISTINCT l.tool_name
		 FROM tool_execution_logs l
		 INNER JOIN mcp_servers s ON l.mcp_server_uuid = s.uuid
		 WHERE s.profile_uuid = ?
		 ORDER BY l.tool_name`, profileUUID)
	if err != nil {
		return nil, fmt.Errorf("failed to list tool names: %w", err)
	}
	defer rows.Close()

	var names []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, fmt.Errorf("failed to scan tool name: %w", err)
		}
		names = append(names, name)
	}
	return names, rows.Err()
}

func scanServer(row rowScanner) (*MCPServer, error) {
	var server MCPServer
	var description, command, url sql.NullString
	var args, env, serverType, status, createdAt string

	err := row.Scan(&server.UUID, &server.Name, &description, &serverType,
		&command, &args, &env, &url, &server.ProfileUUID, &status, &createdAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrServerNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan mcp server: %w", err)
	}

	server.Description = description.String
	server.Type = ServerType(serverType)
	server.Command = command.String
	server.URL = url.String
	server.Status = ServerStatus(status)
	server.CreatedAt = parseTime(createdAt)

	if err := json.Unmarshal([]byte(args), &server.Args); err != nil {
		return nil, fmt.Errorf("failed to unmarshal args: %w", err)
	}
	if err := json.Unmarshal([]byte(env), &server.Env); err != nil {
		return nil, fmt.Errorf("failed to unmarshal env: %w", err)
	}
	return &server, nil
}

func scanCustomServer(row rowScanner) (*CustomMCPServer, error) {
	var server CustomMCPServer
	var description sql.NullString
	var args, env, status, createdAt string

	err := row.Scan(&server.UUID, &server.Name, &description, &server.Code,
		&args, &env, &server.ProfileUUID, &status, &createdAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrCustomServerNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan custom mcp server: %w", err)
	}

	server.Description = description.String
	server.Status = ServerStatus(status)
	server.CreatedAt = parseTime(createdAt)

	if err := json.Unmarshal([]byte(args), &server.AdditionalArgs); err != nil {
		return nil, fmt.Errorf("failed to unmarshal additional args: %w", err)
	}
	if err := json.Unmarshal([]byte(env), &server.Env); err != nil {
		return nil, fmt.Errorf("failed to unmarshal env: %w", err)
	}
	return &server, nil
}

func scanTool(row rowScanner) (*Tool, error) {
	var tool Tool
	var description sql.NullString
	var schema, status, createdAt string

	err := row.Scan(&tool.UUID, &tool.Name, &description, &schema,
		&tool.ServerUUID, &status, &createdAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrToolNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan tool: %w", err)
	}

	tool.Description = description.String
	tool.ToolSchema = json.RawMessage(schema)
	tool.Status = ToggleStatus(status)
	tool.CreatedAt = parseTime(createdAt)
	return &tool, nil
}

func scanLog(row rowScanner) (*ExecutionLog, error) {
	var entry ExecutionLog
	var serverUUID, serverName, result, errorMessage sql.NullString
	var execTime sql.NullInt64
	var payload, status, createdAt string

	err := row.Scan(&entry.ID, &serverUUID, &serverName, &entry.ToolName,
		&payload, &result, &status, &errorMessage, &execTime, &createdAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrLogNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan execution log: %w", err)
	}

	entry.ServerUUID = serverUUID.String
	entry.ServerName = serverName.String
	if entry.ServerName == "" {
		entry.ServerName = unknownServerName
	}
	entry.Payload = json.RawMessage(payload)
	if result.Valid {
		entry.Result = json.RawMessage(result.String)
	}
	entry.Status = ExecutionStatus(status)
	entry.ErrorMessage = errorMessage.String
	if execTime.Valid {
		entry.ExecutionTimeMS = &execTime.Int64
	}
	entry.CreatedAt = parseTime(createdAt)
	return &entry, nil
}

// encodeServerFields marshals args and env for storage, defaulting to empty
// collections.
func encodeServerFields(args []string, env map[string]string) (string, string, error) {
	if args == nil {
		args = []string{}
	}
	if env == nil {
		env = map[string]string{}
	}

	argsJSON, err := json.Marshal(args)
	if err != nil {
		return "", "", fmt.Errorf("failed to marshal args: %w", err)
	}
	envJSON, err := json.Marshal(env)
	if err != nil {
		return "", "", fmt.Errorf("failed to marshal env: %w", err)
	}
	return string(argsJSON), string(envJSON), nil
}

// placeholders returns n comma-separated SQL placeholders.
func placeholders(n int) string {
	return strings.TrimSuffix(strings.Repeat("?, ", n), ", ")
}
