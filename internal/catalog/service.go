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

// Package catalog maintains the per-server tool catalog: on-demand
// discovery over the MCP connection, manual batch reports, and operator
// enable/disable toggles.
package catalog

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

// Service refreshes and queries the tool catalog.
type Service struct {
	store  store.Store
	dialer mcp.Dialer
	logger *slog.Logger
}

// NewService creates a catalog service.
func NewService(st store.Store, dialer mcp.Dialer, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{store: st, dialer: dialer, logger: logging.WithComponent(logger, "catalog")}
}

// Refresh dials the server, lists its tools, and merges them into the
// catalog. Only SSE servers can be refreshed on demand; stdio servers run
// on the operator's machine and report their tools through ReportTools.
func (s *Service) Refresh(ctx context.Context, profileUUID, serverUUID string) ([]*store.Tool, error) {
	server, err := s.store.GetServer(ctx, profileUUID, serverUUID)
	if err != nil {
		return nil, err
	}
	if server.Type != store.ServerTypeSSE {
		return nil, store.Validationf("only SSE servers support on-demand refresh; stdio servers report tools via the batch endpoint")
	}
	if server.URL == "" {
		return nil, store.Validationf("server has no url configured")
	}

	start := time.Now()
	session, err := s.dialer.Dial(ctx, server)
	if err != nil {
		metrics.RecordRefresh(server.Name, "error", 0)
		return nil, err
	}
	defer session.Close()

	definitions, err := session.ListTools(ctx)
	if err != nil {
		metrics.RecordRefresh(server.Name, "error", 0)
		return nil, err
	}

	upserts := make([]store.ToolUpsert, len(definitions))
	for i, def := range definitions {
		upserts[i] = store.ToolUpsert{
			Name:        def.Name,
			Description: def.Description,
			ToolSchema:  def.InputSchema,
		}
	}

	tools, err := s.store.UpsertTools(ctx, server.UUID, upserts)
	if err != nil {
		metrics.RecordRefresh(server.Name, "error", 0)
		return nil, err
	}

	metrics.RecordRefresh(server.Name, "success", len(tools))
	s.logger.Info("tool catalog refreshed",
		slog.String(logging.ServerKey, server.Name),
		slog.Int("tools", len(tools)),
		logging.Duration(time.Since(start)))
	return tools, nil
}

// ReportTools merges a batch of tools reported for a server, typically by
// a stdio client that discovered them locally. The server must belong to
// the profile.
func (s *Service) ReportTools(ctx context.Context, profileUUID, serverUUID string, upserts []store.ToolUpsert) ([]*store.Tool, error) {
	if len(upserts) == 0 {
		return nil, store.Validationf("no tools to report")
	}
	for _, u := range upserts {
		if u.Name == "" {
			return nil, store.Validationf("tool name is required")
		}
	}

	// Scope check before touching rows keyed only by server uuid.
	server, err := s.store.GetServer(ctx, profileUUID, serverUUID)
	if err != nil {
		return nil, err
	}

	tools, err := s.store.UpsertTools(ctx, server.UUID, upserts)
	if err != nil {
		return nil, err
	}

	s.logger.Info("tools reported",
		slog.String(logging.ServerKey, server.Name),
		slog.Int("tools", len(tools)))
	return tools, nil
}

// BatchItem is one tool in a mixed-server batch report.
type BatchItem struct {
	ServerUUID  string          `json:"mcp_server_uuid"`
	Name        string          `json:"name"`
	Description string          `json:"description"`
	ToolSchema  json.RawMessage `json:"toolSchema"`
}

// BatchError records why one item of a batch was rejected.
type BatchError struct {
	Tool  string `json:"tool"`
	Error string `json:"error"`
}

// BatchResult summarizes a mixed-server batch report.
type BatchResult struct {
	Results      []*store.Tool `json:"results"`
	Errors       []BatchError  `json:"errors"`
	SuccessCount int           `json:"successCount"`
	FailureCount int           `json:"failureCount"`
}

// ReportBatch merges tools addressed to any mix of the profile's servers,
// isolating failures per item so one bad entry does not sink the batch.
// Only a store failure unrelated to a single item aborts the request.
func (s *Service) ReportBatch(ctx context.Context, profileUUID string, items []BatchItem) (*BatchResult, error) {
	if len(items) == 0 {
		return nil, store.Validationf("no tools to report")
	}

	result := &BatchResult{Results: []*store.Tool{}, Errors: []BatchError{}}
	scopeErrs := make(map[string]error)
	for _, item := range items {
		if item.Name == "" {
			result.Errors = append(result.Errors, BatchError{Tool: item.Name, Error: "tool name is required"})
			continue
		}
		if item.ServerUUID == "" {
			result.Errors = append(result.Errors, BatchError{Tool: item.Name, Error: "mcp_server_uuid is required"})
			continue
		}

		scopeErr, checked := scopeErrs[item.ServerUUID]
		if !checked {
			_, err := s.store.GetServer(ctx, profileUUID, item.ServerUUID)
			scopeErrs[item.ServerUUID] = err
			scopeErr = err
		}
		if scopeErr != nil {
			if store.IsNotFound(scopeErr) {
				result.Errors = append(result.Errors, BatchError{Tool: item.Name, Error: "server not found"})
				continue
			}
			return nil, scopeErr
		}

		tools, err := s.store.UpsertTools(ctx, item.ServerUUID, []store.ToolUpsert{{
			Name:        item.Name,
			Description: item.Description,
			ToolSchema:  item.ToolSchema,
		}})
		if err != nil {
			if store.IsNotFound(err) || store.IsValidation(err) {
				result.Errors = append(result.Errors, BatchError{Tool: item.Name, Error: err.Error()})
				continue
			}
			return nil, err
		}
		result.Results = append(result.Results, tools...)
	}

	result.SuccessCount = len(result.Results)
	result.FailureCount = len(result.Errors)
	s.logger.Info("tool batch reported",
		slog.Int("succeeded", result.SuccessCount),
		slog.Int("failed", result.FailureCount))
	return result, nil
}

// List returns the profile's tools, optionally filtered by status.
func (s *Service) List(ctx context.Context, profileUUID string, status *store.ToggleStatus) ([]*store.Tool, error) {
	if status != nil && *status != store.ToggleStatusActive && *status != store.ToggleStatusInactive {
		return nil, store.Validationf("status must be ACTIVE or INACTIVE")
	}
	return s.store.ListTools(ctx, profileUUID, status)
}

// SetStatus toggles a tool on or off for the profile.
func (s *Service) SetStatus(ctx context.Context, profileUUID, toolUUID string, status store.ToggleStatus) error {
	if status != store.ToggleStatusActive && status != store.ToggleStatusInactive {
		return store.Validationf("status must be ACTIVE or INACTIVE")
	}
	return s.store.SetToolStatus(ctx, profileUUID, toolUUID, status)
}
