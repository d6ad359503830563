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

package catalog

import (
	"context"
	"encoding/json"
	"errors"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/metatool-ai/metamcp/internal/mcp"
	"github.com/metatool-ai/metamcp/internal/store"
)

type stubSession struct {
	tools   []mcp.ToolDefinition
	listErr error
	closed  bool
}

func (s *stubSession) ListTools(ctx context.Context) ([]mcp.ToolDefinition, error) {
	if s.listErr != nil {
		return nil, s.listErr
	}
	return s.tools, nil
}

func (s *stubSession) CallTool(ctx context.Context, req mcp.ToolCallRequest) (*mcp.ToolCallResponse, error) {
	return nil, errors.New("not implemented")
}

func (s *stubSession) Close() error {
	s.closed = true
	return nil
}

type stubDialer struct {
	session *stubSession
	dialErr error
	dialed  *store.MCPServer
}

func (d *stubDialer) Dial(ctx context.Context, server *store.MCPServer) (mcp.Session, error) {
	d.dialed = server
	if d.dialErr != nil {
		return nil, d.dialErr
	}
	return d.session, nil
}

func newTestCatalog(t *testing.T, dialer mcp.Dialer) (*Service, store.Store, string) {
	t.Helper()

	st, err := store.NewSQLiteStore(store.SQLiteConfig{Path: filepath.Join(t.TempDir(), "catalog_test.db")})
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })

	projects, err := st.ListProjects(context.Background())
	require.NoError(t, err)
	require.Len(t, projects, 1)

	return NewService(st, dialer, nil), st, projects[0].ActiveProfileUUID
}

func createSSEServer(t *testing.T, st store.Store, profileUUID string) *store.MCPServer {
	t.Helper()

	server := &store.MCPServer{
		Name:        "remote",
		Type:        store.ServerTypeSSE,
		URL:         "https://mcp.example.com/sse",
		ProfileUUID: profileUUID,
	}
	require.NoError(t, st.CreateServer(context.Background(), server))
	return server
}

func TestRefreshDiscoversAndUpserts(t *testing.T) {
	session := &stubSession{tools: []mcp.ToolDefinition{
		{Name: "search_web", Description: "Search the web", InputSchema: json.RawMessage(`{"type":"object"}`)},
		{Name: "fetch_page", Description: "Fetch a page", InputSchema: json.RawMessage(`{"type":"object"}`)},
	}}
	dialer := &stubDialer{session: session}
	svc, st, profileUUID := newTestCatalog(t, dialer)
	server := createSSEServer(t, st, profileUUID)

	tools, err := svc.Refresh(context.Background(), profileUUID, server.UUID)
	require.NoError(t, err)
	require.Len(t, tools, 2)
	assert.Equal(t, server.UUID, dialer.dialed.UUID)
	assert.True(t, session.closed, "session must be closed after refresh")

	listed, err := svc.List(context.Background(), profileUUID, nil)
	require.NoError(t, err)
	assert.Len(t, listed, 2)
}

func TestRefreshPreservesToggles(t *testing.T) {
	session := &stubSession{tools: []mcp.ToolDefinition{
		{Name: "search_web", Description: "v1"},
	}}
	svc, st, profileUUID := newTestCatalog(t, &stubDialer{session: session})
	server := createSSEServer(t, st, profileUUID)
	ctx := context.Background()

	tools, err := svc.Refresh(ctx, profileUUID, server.UUID)
	require.NoError(t, err)
	require.NoError(t, svc.SetStatus(ctx, profileUUID, tools[0].UUID, store.ToggleStatusInactive))

	session.tools[0].Description = "v2"
	tools, err = svc.Refresh(ctx, profileUUID, server.UUID)
	require.NoError(t, err)
	require.Len(t, tools, 1)
	assert.Equal(t, "v2", tools[0].Description)
	assert.Equal(t, store.ToggleStatusInactive, tools[0].Status)
}

func TestRefreshRejectsStdioServers(t *testing.T) {
	svc, st, profileUUID := newTestCatalog(t, &stubDialer{})
	server := &store.MCPServer{
		Name:        "local",
		Type:        store.ServerTypeStdio,
		Command:     "npx",
		ProfileUUID: profileUUID,
	}
	require.NoError(t, st.CreateServer(context.Background(), server))

	_, err := svc.Refresh(context.Background(), profileUUID, server.UUID)
	assert.True(t, store.IsValidation(err), "expected validation error, got %v", err)
}

func TestRefreshUnknownServer(t *testing.T) {
	svc, _, profileUUID := newTestCatalog(t, &stubDialer{})

	_, err := svc.Refresh(context.Background(), profileUUID, "nonexistent")
	assert.ErrorIs(t, err, store.ErrServerNotFound)
}

func TestRefreshDialFailure(t *testing.T) {
	dialErr := &mcp.ConnectionError{ServerName: "remote", Err: errors.New("connection refused")}
	svc, st, profileUUID := newTestCatalog(t, &stubDialer{dialErr: dialErr})
	server := createSSEServer(t, st, profileUUID)

	_, err := svc.Refresh(context.Background(), profileUUID, server.UUID)
	assert.True(t, mcp.IsConnection(err))
}

func TestRefreshListFailureClosesSession(t *testing.T) {
	session := &stubSession{listErr: &mcp.ProtocolError{ServerName: "remote", Op: "tools/list", Err: errors.New("eof")}}
	svc, st, profileUUID := newTestCatalog(t, &stubDialer{session: session})
	server := createSSEServer(t, st, profileUUID)

	_, err := svc.Refresh(context.Background(), profileUUID, server.UUID)
	assert.True(t, mcp.IsProtocol(err))
	assert.True(t, session.closed, "session must be closed even when listing fails")
}

func TestReportToolsScopeCheck(t *testing.T) {
	svc, st, profileUUID := newTestCatalog(t, &stubDialer{})
	server := createSSEServer(t, st, profileUUID)
	ctx := context.Background()

	upserts := []store.ToolUpsert{{Name: "read_file"}}

	_, err := svc.ReportTools(ctx, "other-profile", server.UUID, upserts)
	assert.ErrorIs(t, err, store.ErrServerNotFound)

	tools, err := svc.ReportTools(ctx, profileUUID, server.UUID, upserts)
	require.NoError(t, err)
	assert.Len(t, tools, 1)
}

func TestReportBatchIsolatesFailures(t *testing.T) {
	svc, st, profileUUID := newTestCatalog(t, &stubDialer{})
	server := createSSEServer(t, st, profileUUID)
	ctx := context.Background()

	result, err := svc.ReportBatch(ctx, profileUUID, []BatchItem{
		{ServerUUID: server.UUID, Name: "read_file", Description: "Read a file"},
		{ServerUUID: server.UUID, Description: "nameless"},
		{ServerUUID: "nonexistent", Name: "write_file"},
		{Name: "orphan"},
	})
	require.NoError(t, err)
	assert.Equal(t, 1, result.SuccessCount)
	assert.Equal(t, 3, result.FailureCount)
	require.Len(t, result.Results, 1)
	assert.Equal(t, "read_file", result.Results[0].Name)
	require.Len(t, result.Errors, 3)
	assert.Equal(t, "write_file", result.Errors[1].Tool)
	assert.Equal(t, "server not found", result.Errors[1].Error)
}

func TestReportBatchCrossProfileServer(t *testing.T) {
	svc, st, profileUUID := newTestCatalog(t, &stubDialer{})
	server := createSSEServer(t, st, profileUUID)
	ctx := context.Background()

	// A foreign profile addressing this server gets a per-item not-found,
	// never an upsert.
	result, err := svc.ReportBatch(ctx, "other-profile", []BatchItem{
		{ServerUUID: server.UUID, Name: "read_file"},
	})
	require.NoError(t, err)
	assert.Equal(t, 0, result.SuccessCount)
	require.Len(t, result.Errors, 1)
	assert.Equal(t, "server not found", result.Errors[0].Error)

	tools, err := svc.List(ctx, profileUUID, nil)
	require.NoError(t, err)
	assert.Empty(t, tools)
}

func TestReportBatchEmpty(t *testing.T) {
	svc, _, profileUUID := newTestCatalog(t, &stubDialer{})

	_, err := svc.ReportBatch(context.Background(), profileUUID, nil)
	assert.True(t, store.IsValidation(err))
}

func TestReportToolsValidation(t *testing.T) {
	svc, st, profileUUID := newTestCatalog(t, &stubDialer{})
	server := createSSEServer(t, st, profileUUID)
	ctx := context.Background()

	_, err := svc.ReportTools(ctx, profileUUID, server.UUID, nil)
	assert.True(t, store.IsValidation(err))

	_, err = svc.ReportTools(ctx, profileUUID, server.UUID, []store.ToolUpsert{{Description: "nameless"}})
	assert.True(t, store.IsValidation(err))
}
