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

// Package gateway routes tool invocations to downstream MCP servers and
// records each attempt in the execution log.
package gateway

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	logging "github.com/metatool-ai/metamcp/internal/log"
	"github.com/metatool-ai/metamcp/internal/mcp"
	"github.com/metatool-ai/metamcp/internal/metrics"
	"github.com/metatool-ai/metamcp/internal/store"
)

// Service dispatches tool calls. Every dispatched call produces exactly one
// PENDING log entry followed by exactly one terminal update, whatever the
// outcome.
type Service struct {
	store  store.Store
	dialer mcp.Dialer
	logger *slog.Logger
}

// NewService creates a gateway service.
func NewService(st store.Store, dialer mcp.Dialer, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{store: st, dialer: dialer, logger: logging.WithComponent(logger, "gateway")}
}

// CallRequest identifies one tool invocation.
type CallRequest struct {
	ServerUUID string          `json:"mcp_server_uuid"`
	ToolName   string          `json:"tool_name"`
	Arguments  map[string]any  `json:"arguments,omitempty"`
	Payload    json.RawMessage `json:"-"`
}

// CallResult carries the downstream response together with the log entry
// that recorded the invocation.
type CallResult struct {
	LogID    int64                 `json:"log_id"`
	Response *mcp.ToolCallResponse `json:"response"`
}

// Call routes a tool invocation to its server. The server must belong to
// the profile and be ACTIVE, and the tool must not be disabled. Tool-level
// failures (IsError responses) are passed through to the caller and
// recorded as ERROR log entries, not translated into gateway errors.
func (s *Service) Call(ctx context.Context, profileUUID string, req CallRequest) (*CallResult, error) {
	if req.ToolName == "" {
		return nil, store.Validationf("tool_name is required")
	}
	if req.ServerUUID == "" {
		return nil, store.Validationf("mcp_server_uuid is required")
	}

	server, err := s.store.GetServer(ctx, profileUUID, req.ServerUUID)
	if err != nil {
		return nil, err
	}
	if server.Status != store.ServerStatusActive {
		return nil, store.Validationf("server %s is not active", server.Name)
	}
	if err := s.checkToolEnabled(ctx, profileUUID, server.UUID, req.ToolName); err != nil {
		return nil, err
	}

	payload := req.Payload
	if len(payload) == 0 {
		encoded, err := json.Marshal(map[string]any{
			"tool_name": req.ToolName,
			"arguments": req.Arguments,
		})
		if err != nil {
			return nil, store.Validationf("invalid arguments: %v", err)
		}
		payload = encoded
	}

	entry := &store.ExecutionLog{
		ServerUUID: server.UUID,
		ToolName:   req.ToolName,
		Payload:    payload,
	}
	if err := s.store.CreateLog(ctx, entry); err != nil {
		return nil, err
	}

	start := time.Now()
	response, callErr := s.dispatch(ctx, server, req)
	elapsed := time.Since(start)

	result := &CallResult{LogID: entry.ID, Response: response}
	if callErr != nil {
		s.finalize(ctx, entry.ID, store.LogUpdate{
			Status:          statusPtr(store.ExecutionStatusError),
			ErrorMessage:    strPtr(callErr.Error()),
			ExecutionTimeMS: msPtr(elapsed),
		})
		metrics.RecordInvocation(server.Name, req.ToolName, "error", elapsed)
		s.logger.Warn("tool call failed",
			slog.String(logging.ServerKey, server.Name),
			slog.String(logging.ToolKey, req.ToolName),
			logging.Error(callErr))
		return nil, callErr
	}

	update := store.LogUpdate{ExecutionTimeMS: msPtr(elapsed)}
	if encoded, err := json.Marshal(response); err == nil {
		update.Result = encoded
	}
	if response.IsError {
		update.Status = statusPtr(store.ExecutionStatusError)
		update.ErrorMessage = strPtr(firstText(response))
		metrics.RecordInvocation(server.Name, req.ToolName, "error", elapsed)
	} else {
		update.Status = statusPtr(store.ExecutionStatusSuccess)
		metrics.RecordInvocation(server.Name, req.ToolName, "success", elapsed)
	}
	s.finalize(ctx, entry.ID, update)

	s.logger.Info("tool call completed",
		slog.String(logging.ServerKey, server.Name),
		slog.String(logging.ToolKey, req.ToolName),
		slog.Bool("tool_error", response.IsError),
		logging.Duration(elapsed))
	return result, nil
}

// dispatch opens a session, invokes the tool, and tears the session down.
func (s *Service) dispatch(ctx context.Context, server *store.MCPServer, req CallRequest) (*mcp.ToolCallResponse, error) {
	session, err := s.dialer.Dial(ctx, server)
	if err != nil {
		return nil, err
	}
	defer session.Close()

	return session.CallTool(ctx, mcp.ToolCallRequest{
		Name:      req.ToolName,
		Arguments: req.Arguments,
	})
}

// checkToolEnabled rejects calls to tools an operator has disabled. Tools
// the catalog hasn't discovered yet pass through; the downstream server is
// the authority on whether they exist.
func (s *Service) checkToolEnabled(ctx context.Context, profileUUID, serverUUID, toolName string) error {
	tools, err := s.store.ListTools(ctx, profileUUID, nil)
	if err != nil {
		return err
	}
	for _, tool := range tools {
		if tool.ServerUUID == serverUUID && tool.Name == toolName {
			if tool.Status == store.ToggleStatusInactive {
				return store.Validationf("tool %s is disabled", toolName)
			}
			return nil
		}
	}
	return nil
}

// finalize applies the terminal log update. A failure here must not mask
// the call's own outcome, so it is logged and swallowed.
func (s *Service) finalize(ctx context.Context, logID int64, update store.LogUpdate) {
	if _, err := s.store.UpdateLog(ctx, logID, update); err != nil {
		s.logger.Error("failed to finalize execution log",
			slog.Int64("log_id", logID),
			logging.Error(err))
	}
}

// ReportExecution records an invocation performed outside the gateway,
// typically by a stdio client running on the operator's machine. When the
// entry names a server it must belong to the profile.
func (s *Service) ReportExecution(ctx context.Context, profileUUID string, entry *store.ExecutionLog) (*store.ExecutionLog, error) {
	if entry == nil || entry.ToolName == "" {
		return nil, store.Validationf("tool_name is required")
	}
	if entry.Status != "" && !validExecutionStatus(entry.Status) {
		return nil, store.Validationf("invalid status: %s", entry.Status)
	}
	if entry.ServerUUID != "" {
		if _, err := s.store.GetServer(ctx, profileUUID, entry.ServerUUID); err != nil {
			return nil, err
		}
	}
	if err := s.store.CreateLog(ctx, entry); err != nil {
		return nil, err
	}
	return s.store.GetLog(ctx, entry.ID)
}

// GetExecution returns one execution log entry. Entries tied to another
// profile's server read as not found.
func (s *Service) GetExecution(ctx context.Context, profileUUID string, id int64) (*store.ExecutionLog, error) {
	entry, err := s.store.GetLog(ctx, id)
	if err != nil {
		return nil, err
	}
	if entry.ServerUUID != "" {
		if _, err := s.store.GetServer(ctx, profileUUID, entry.ServerUUID); err != nil {
			return nil, store.ErrLogNotFound
		}
	}
	return entry, nil
}

// UpdateExecution applies a terminal update to a reported invocation. The
// entry's server, when set, must belong to the profile.
func (s *Service) UpdateExecution(ctx context.Context, profileUUID string, id int64, update store.LogUpdate) (*store.ExecutionLog, error) {
	if update.Status != nil && !validExecutionStatus(*update.Status) {
		return nil, store.Validationf("invalid status: %s", *update.Status)
	}

	entry, err := s.store.GetLog(ctx, id)
	if err != nil {
		return nil, err
	}
	if entry.ServerUUID != "" {
		if _, err := s.store.GetServer(ctx, profileUUID, entry.ServerUUID); err != nil {
			return nil, store.ErrLogNotFound
		}
	}

	return s.store.UpdateLog(ctx, id, update)
}

// QueryLogs returns the profile's execution logs.
func (s *Service) QueryLogs(ctx context.Context, profileUUID string, filter store.LogFilter) ([]*store.ExecutionLog, int, error) {
	for _, st := range filter.Statuses {
		if !validExecutionStatus(st) {
			return nil, 0, store.Validationf("invalid status: %s", st)
		}
	}
	return s.store.QueryLogs(ctx, profileUUID, filter)
}

// ListToolNames returns the distinct tool names across the profile's logs.
func (s *Service) ListToolNames(ctx context.Context, profileUUID string) ([]string, error) {
	return s.store.ListToolNames(ctx, profileUUID)
}

func validExecutionStatus(st store.ExecutionStatus) bool {
	switch st {
	case store.ExecutionStatusPending, store.ExecutionStatusSuccess, store.ExecutionStatusError:
		return true
	}
	return false
}

// firstText extracts the first text content from a response for the log's
// error message.
func firstText(response *mcp.ToolCallResponse) string {
	for _, item := range response.Content {
		if item.Type == "text" && item.Text != "" {
			return item.Text
		}
	}
	return "tool reported an error"
}

func statusPtr(st store.ExecutionStatus) *store.ExecutionStatus { return &st }

func strPtr(s string) *string { return &s }

func msPtr(d time.Duration) *int64 {
	ms := d.Milliseconds()
	return &ms
}
