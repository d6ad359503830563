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
	"encoding/json"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestStore(t *testing.T) *SQLiteStore {
	t.Helper()

	s, err := NewSQLiteStore(SQLiteConfig{Path: filepath.Join(t.TempDir(), "metamcp_test.db")})
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func TestConnectionPragmas(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	var fk int
	require.NoError(t, s.db.QueryRowContext(ctx, "PRAGMA foreign_keys").Scan(&fk))
	assert.Equal(t, 1, fk, "foreign key enforcement must be on")

	var mode string
	require.NoError(t, s.db.QueryRowContext(ctx, "PRAGMA journal_mode").Scan(&mode))
	assert.Equal(t, "wal", strings.ToLower(mode))
}

// defaultProject returns the project auto-created on first open.
func defaultProject(t *testing.T, s *SQLiteStore) *Project {
	t.Helper()

	projects, err := s.ListProjects(context.Background())
	require.NoError(t, err)
	require.Len(t, projects, 1)
	return projects[0]
}

func newTestServer(t *testing.T, s *SQLiteStore, profileUUID, name string) *MCPServer {
	t.Helper()

	server := &MCPServer{
		Name:        name,
		Type:        ServerTypeStdio,
		Command:     "npx",
		Args:        []string{"-y", "@example/" + name},
		Env:         map[string]string{"TOKEN": "secret"},
		ProfileUUID: profileUUID,
	}
	require.NoError(t, s.CreateServer(context.Background(), server))
	return server
}

func TestNewSQLiteStoreCreatesDefaultProject(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	project := defaultProject(t, s)
	assert.Equal(t, "Default Project", project.Name)
	require.NotEmpty(t, project.ActiveProfileUUID)

	profile, err := s.GetProfile(ctx, project.ActiveProfileUUID)
	require.NoError(t, err)
	assert.Equal(t, "Default Workspace", profile.Name)
	assert.Equal(t, project.UUID, profile.ProjectUUID)
	assert.Empty(t, profile.EnabledCapabilities)
}

func TestCreateProjectActivatesDefaultProfile(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	project, err := s.CreateProject(ctx, "Staging")
	require.NoError(t, err)
	assert.NotEmpty(t, project.UUID)
	require.NotEmpty(t, project.ActiveProfileUUID)

	profiles, err := s.ListProfiles(ctx, project.UUID)
	require.NoError(t, err)
	require.Len(t, profiles, 1)
	assert.Equal(t, project.ActiveProfileUUID, profiles[0].UUID)
}

func TestDeleteLastProject(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	project := defaultProject(t, s)
	err := s.DeleteProject(ctx, project.UUID)
	assert.ErrorIs(t, err, ErrLastProject)

	// With a second project around, deletion goes through.
	other, err := s.CreateProject(ctx, "Disposable")
	require.NoError(t, err)
	require.NoError(t, s.DeleteProject(ctx, other.UUID))

	_, err = s.GetProject(ctx, other.UUID)
	assert.ErrorIs(t, err, ErrProjectNotFound)
}

func TestDeleteLastProfile(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	project := defaultProject(t, s)
	err := s.DeleteProfile(ctx, project.ActiveProfileUUID)
	assert.ErrorIs(t, err, ErrLastProfile)
}

func TestDeleteActiveProfileClearsReference(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	project := defaultProject(t, s)
	second, err := s.CreateProfile(ctx, project.UUID, "Second")
	require.NoError(t, err)
	require.NoError(t, s.SetActiveProfile(ctx, project.UUID, second.UUID))

	require.NoError(t, s.DeleteProfile(ctx, second.UUID))

	reloaded, err := s.GetProject(ctx, project.UUID)
	require.NoError(t, err)
	assert.Empty(t, reloaded.ActiveProfileUUID)
}

func TestSetActiveProfileRejectsForeignProfile(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	project := defaultProject(t, s)
	other, err := s.CreateProject(ctx, "Other")
	require.NoError(t, err)

	err = s.SetActiveProfile(ctx, project.UUID, other.ActiveProfileUUID)
	assert.ErrorIs(t, err, ErrProfileNotFound)
}

func TestGetActiveProfileFallsBackToOldest(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	project := defaultProject(t, s)
	original := project.ActiveProfileUUID

	second, err := s.CreateProfile(ctx, project.UUID, "Second")
	require.NoError(t, err)
	require.NoError(t, s.SetActiveProfile(ctx, project.UUID, second.UUID))
	require.NoError(t, s.DeleteProfile(ctx, second.UUID))

	// The project has no active profile now; resolution activates the
	// oldest remaining profile and persists the choice.
	active, err := s.GetActiveProfile(ctx, project.UUID)
	require.NoError(t, err)
	assert.Equal(t, original, active.UUID)

	reloaded, err := s.GetProject(ctx, project.UUID)
	require.NoError(t, err)
	assert.Equal(t, original, reloaded.ActiveProfileUUID)
}

func TestGetActiveProfileUnknownProject(t *testing.T) {
	s := newTestStore(t)

	_, err := s.GetActiveProfile(context.Background(), "nonexistent")
	assert.ErrorIs(t, err, ErrProjectNotFound)
}

func TestUpdateProfileCapabilities(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	project := defaultProject(t, s)
	profile, err := s.UpdateProfileCapabilities(ctx, project.ActiveProfileUUID,
		[]ProfileCapability{CapabilityToolsManagement, CapabilityToolLogs})
	require.NoError(t, err)
	assert.Equal(t, []ProfileCapability{CapabilityToolsManagement, CapabilityToolLogs}, profile.EnabledCapabilities)

	profile, err = s.UpdateProfileCapabilities(ctx, project.ActiveProfileUUID, nil)
	require.NoError(t, err)
	assert.Empty(t, profile.EnabledCapabilities)
}

func TestAPIKeyLifecycle(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	project := defaultProject(t, s)

	// No keys yet: GetFirstAPIKey mints one.
	first, err := s.GetFirstAPIKey(ctx, project.UUID)
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(first.APIKey, "sk_mt_"))
	assert.Len(t, first.APIKey, len("sk_mt_")+64)

	// A second call returns the same key instead of minting again.
	again, err := s.GetFirstAPIKey(ctx, project.UUID)
	require.NoError(t, err)
	assert.Equal(t, first.UUID, again.UUID)

	found, err := s.GetAPIKeyByValue(ctx, first.APIKey)
	require.NoError(t, err)
	assert.Equal(t, project.UUID, found.ProjectUUID)

	_, err = s.GetAPIKeyByValue(ctx, "sk_mt_bogus")
	assert.ErrorIs(t, err, ErrAPIKeyNotFound)

	require.NoError(t, s.DeleteAPIKey(ctx, project.UUID, first.UUID))
	err = s.DeleteAPIKey(ctx, project.UUID, first.UUID)
	assert.ErrorIs(t, err, ErrAPIKeyNotFound)
}

func TestServerRoundTrip(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	project := defaultProject(t, s)
	server := newTestServer(t, s, project.ActiveProfileUUID, "filesystem")

	got, err := s.GetServer(ctx, project.ActiveProfileUUID, server.UUID)
	require.NoError(t, err)
	assert.Equal(t, "filesystem", got.Name)
	assert.Equal(t, ServerTypeStdio, got.Type)
	assert.Equal(t, "npx", got.Command)
	assert.Equal(t, []string{"-y", "@example/filesystem"}, got.Args)
	assert.Equal(t, map[string]string{"TOKEN": "secret"}, got.Env)
	assert.Equal(t, ServerStatusActive, got.Status)
}

func TestServerCrossProfileIsolation(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	project := defaultProject(t, s)
	server := newTestServer(t, s, project.ActiveProfileUUID, "filesystem")

	other, err := s.CreateProfile(ctx, project.UUID, "Other")
	require.NoError(t, err)

	// The row exists but belongs to another profile. Lookup, status change,
	// and deletion all report not-found rather than leaking existence.
	_, err = s.GetServer(ctx, other.UUID, server.UUID)
	assert.ErrorIs(t, err, ErrServerNotFound)
	assert.ErrorIs(t, s.SetServerStatus(ctx, other.UUID, server.UUID, ServerStatusInactive), ErrServerNotFound)
	assert.ErrorIs(t, s.DeleteServer(ctx, other.UUID, server.UUID), ErrServerNotFound)
}

func TestListServersDefaultStatuses(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	project := defaultProject(t, s)
	profileUUID := project.ActiveProfileUUID

	newTestServer(t, s, profileUUID, "active-one")
	inactive := newTestServer(t, s, profileUUID, "inactive-one")
	suggested := newTestServer(t, s, profileUUID, "suggested-one")
	require.NoError(t, s.SetServerStatus(ctx, profileUUID, inactive.UUID, ServerStatusInactive))
	require.NoError(t, s.SetServerStatus(ctx, profileUUID, suggested.UUID, ServerStatusSuggested))

	// Default listing excludes the recommendation states.
	servers, err := s.ListServers(ctx, profileUUID, nil)
	require.NoError(t, err)
	require.Len(t, servers, 2)
	for _, sv := range servers {
		assert.NotEqual(t, suggested.UUID, sv.UUID)
	}

	onlySuggested, err := s.ListServers(ctx, profileUUID, []ServerStatus{ServerStatusSuggested})
	require.NoError(t, err)
	require.Len(t, onlySuggested, 1)
	assert.Equal(t, suggested.UUID, onlySuggested[0].UUID)
}

func TestCreateServerConstraints(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	project := defaultProject(t, s)

	// Unknown profile maps the foreign key failure to a sentinel.
	err := s.CreateServer(ctx, &MCPServer{
		Name:        "orphan",
		Type:        ServerTypeStdio,
		Command:     "npx",
		ProfileUUID: "nonexistent",
	})
	assert.ErrorIs(t, err, ErrProfileNotFound)

	// An SSE row without a URL violates the schema CHECK.
	err = s.CreateServer(ctx, &MCPServer{
		Name:        "broken",
		Type:        ServerTypeSSE,
		Command:     "npx",
		ProfileUUID: project.ActiveProfileUUID,
	})
	assert.True(t, IsValidation(err), "expected validation error, got %v", err)
}

func TestUpsertToolsPreservesStatus(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	project := defaultProject(t, s)
	profileUUID := project.ActiveProfileUUID
	server := newTestServer(t, s, profileUUID, "filesystem")

	tools, err := s.UpsertTools(ctx, server.UUID, []ToolUpsert{
		{Name: "read_file", Description: "Read a file", ToolSchema: json.RawMessage(`{"type":"object"}`)},
		{Name: "write_file", Description: "Write a file", ToolSchema: json.RawMessage(`{"type":"object"}`)},
	})
	require.NoError(t, err)
	require.Len(t, tools, 2)
	assert.Equal(t, ToggleStatusActive, tools[0].Status)

	// Operator disables one tool, then the server is rediscovered with a
	// changed description. The toggle must survive.
	require.NoError(t, s.SetToolStatus(ctx, profileUUID, tools[0].UUID, ToggleStatusInactive))

	tools, err = s.UpsertTools(ctx, server.UUID, []ToolUpsert{
		{Name: "read_file", Description: "Read a file (v2)", ToolSchema: json.RawMessage(`{"type":"object","required":["path"]}`)},
	})
	require.NoError(t, err)
	require.Len(t, tools, 1)
	assert.Equal(t, ToggleStatusInactive, tools[0].Status)
	assert.Equal(t, "Read a file (v2)", tools[0].Description)

	all, err := s.ListTools(ctx, profileUUID, nil)
	require.NoError(t, err)
	assert.Len(t, all, 2)

	activeOnly := ToggleStatusActive
	active, err := s.ListTools(ctx, profileUUID, &activeOnly)
	require.NoError(t, err)
	require.Len(t, active, 1)
	assert.Equal(t, "write_file", active[0].Name)
}

func TestUpsertToolsUnknownServer(t *testing.T) {
	s := newTestStore(t)

	_, err := s.UpsertTools(context.Background(), "nonexistent", []ToolUpsert{{Name: "x"}})
	assert.ErrorIs(t, err, ErrServerNotFound)
}

func TestExecutionLogLifecycle(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	project := defaultProject(t, s)
	profileUUID := project.ActiveProfileUUID
	server := newTestServer(t, s, profileUUID, "filesystem")

	entry := &ExecutionLog{
		ServerUUID: server.UUID,
		ToolName:   "read_file",
		Payload:    json.RawMessage(`{"path":"/etc/hosts"}`),
	}
	require.NoError(t, s.CreateLog(ctx, entry))
	assert.Greater(t, entry.ID, int64(0))
	assert.Equal(t, ExecutionStatusPending, entry.Status)

	status := ExecutionStatusSuccess
	elapsed := int64(42)
	updated, err := s.UpdateLog(ctx, entry.ID, LogUpdate{
		Result:          json.RawMessage(`{"content":"..."}`),
		Status:          &status,
		ExecutionTimeMS: &elapsed,
	})
	require.NoError(t, err)
	assert.Equal(t, ExecutionStatusSuccess, updated.Status)
	assert.Equal(t, "filesystem", updated.ServerName)
	require.NotNil(t, updated.ExecutionTimeMS)
	assert.Equal(t, int64(42), *updated.ExecutionTimeMS)

	_, err = s.UpdateLog(ctx, entry.ID, LogUpdate{})
	assert.True(t, IsValidation(err))

	_, err = s.UpdateLog(ctx, 99999, LogUpdate{Status: &status})
	assert.ErrorIs(t, err, ErrLogNotFound)
}

func TestGetLogAfterServerDeletion(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	project := defaultProject(t, s)
	profileUUID := project.ActiveProfileUUID
	server := newTestServer(t, s, profileUUID, "ephemeral")

	entry := &ExecutionLog{ServerUUID: server.UUID, ToolName: "read_file"}
	require.NoError(t, s.CreateLog(ctx, entry))
	require.NoError(t, s.DeleteServer(ctx, profileUUID, server.UUID))

	// The log row survives with its server reference nulled.
	got, err := s.GetLog(ctx, entry.ID)
	require.NoError(t, err)
	assert.Empty(t, got.ServerUUID)
	assert.Equal(t, "Unknown Server", got.ServerName)
}

func TestQueryLogsScopingAndFilters(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	project := defaultProject(t, s)
	profileUUID := project.ActiveProfileUUID
	server := newTestServer(t, s, profileUUID, "filesystem")

	otherProfile, err := s.CreateProfile(ctx, project.UUID, "Other")
	require.NoError(t, err)
	otherServer := newTestServer(t, s, otherProfile.UUID, "search")

	success := ExecutionStatusSuccess
	for i := 0; i < 3; i++ {
		entry := &ExecutionLog{ServerUUID: server.UUID, ToolName: "read_file"}
		require.NoError(t, s.CreateLog(ctx, entry))
		_, err := s.UpdateLog(ctx, entry.ID, LogUpdate{Status: &success})
		require.NoError(t, err)
	}
	entry := &ExecutionLog{ServerUUID: server.UUID, ToolName: "write_file"}
	require.NoError(t, s.CreateLog(ctx, entry))
	foreign := &ExecutionLog{ServerUUID: otherServer.UUID, ToolName: "search_web"}
	require.NoError(t, s.CreateLog(ctx, foreign))

	// The other profile's log never shows up.
	logs, total, err := s.QueryLogs(ctx, profileUUID, LogFilter{})
	require.NoError(t, err)
	assert.Equal(t, 4, total)
	require.Len(t, logs, 4)
	for _, l := range logs {
		assert.NotEqual(t, "search_web", l.ToolName)
	}

	// Newest first.
	assert.Equal(t, "write_file", logs[0].ToolName)

	// Status and tool-name filters combine with AND.
	logs, total, err = s.QueryLogs(ctx, profileUUID, LogFilter{
		ToolNames: []string{"read_file"},
		Statuses:  []ExecutionStatus{ExecutionStatusSuccess},
	})
	require.NoError(t, err)
	assert.Equal(t, 3, total)
	assert.Len(t, logs, 3)

	// Pagination reports the pre-page total.
	logs, total, err = s.QueryLogs(ctx, profileUUID, LogFilter{Limit: 2, Offset: 2})
	require.NoError(t, err)
	assert.Equal(t, 4, total)
	assert.Len(t, logs, 2)

	names, err := s.ListToolNames(ctx, profileUUID)
	require.NoError(t, err)
	assert.Equal(t, []string{"read_file", "write_file"}, names)
}

func TestDeleteProfileCascadesToServersAndTools(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	project := defaultProject(t, s)
	victim, err := s.CreateProfile(ctx, project.UUID, "Victim")
	require.NoError(t, err)
	server := newTestServer(t, s, victim.UUID, "filesystem")
	_, err = s.UpsertTools(ctx, server.UUID, []ToolUpsert{{Name: "read_file"}})
	require.NoError(t, err)

	require.NoError(t, s.DeleteProfile(ctx, victim.UUID))

	_, err = s.GetServer(ctx, victim.UUID, server.UUID)
	assert.ErrorIs(t, err, ErrServerNotFound)
}

func TestCustomServerRoundTrip(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	project := defaultProject(t, s)
	profileUUID := project.ActiveProfileUUID

	server := &CustomMCPServer{
		Name:           "inline-tools",
		Code:           "export default { tools: [] }",
		AdditionalArgs: []string{"--experimental"},
		Env:            map[string]string{"DEBUG": "1"},
		ProfileUUID:    profileUUID,
	}
	require.NoError(t, s.CreateCustomServer(ctx, server))

	got, err := s.GetCustomServer(ctx, profileUUID, server.UUID)
	require.NoError(t, err)
	assert.Equal(t, "export default { tools: [] }", got.Code)
	assert.Equal(t, []string{"--experimental"}, got.AdditionalArgs)
	assert.Equal(t, ServerStatusActive, got.Status)

	require.NoError(t, s.SetCustomServerStatus(ctx, profileUUID, server.UUID, ServerStatusInactive))
	listed, err := s.ListCustomServers(ctx, profileUUID, nil)
	require.NoError(t, err)
	require.Len(t, listed, 1)
	assert.Equal(t, ServerStatusInactive, listed[0].Status)

	require.NoError(t, s.DeleteCustomServer(ctx, profileUUID, server.UUID))
	_, err = s.GetCustomServer(ctx, profileUUID, server.UUID)
	assert.ErrorIs(t, err, ErrCustomServerNotFound)
}
