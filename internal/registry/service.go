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

// Package registry manages MCP server registrations: transport validation,
// create/update/delete, status toggling, and bulk import.
package registry

import (
	"context"
	"log/slog"
	"net/url"
	"strings"

	logging "github.com/metatool-ai/metamcp/internal/log"
	"github.com/metatool-ai/metamcp/internal/store"
)

// Service wraps the store with registration semantics. The store persists
// what it is given; the service owns the transport invariant.
type Service struct {
	store  store.Store
	logger *slog.Logger
}

// NewService creates a registry service.
func NewService(st store.Store, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{store: st, logger: logging.WithComponent(logger, "registry")}
}

// CreateRequest carries the fields for a new server registration.
type CreateRequest struct {
	Name        string            `json:"name"`
	Description string            `json:"description,omitempty"`
	Type        store.ServerType  `json:"type,omitempty"`
	Command     string            `json:"command,omitempty"`
	Args        []string          `json:"args,omitempty"`
	Env         map[string]string `json:"env,omitempty"`
	URL         string            `json:"url,omitempty"`
}

// UpdateRequest carries a partial update. Nil fields keep the stored value.
// Changing transport fields revalidates the whole registration; switching
// type clears the other transport's field.
type UpdateRequest struct {
	Name        *string            `json:"name,omitempty"`
	Description *string            `json:"description,omitempty"`
	Type        *store.ServerType  `json:"type,omitempty"`
	Command     *string            `json:"command,omitempty"`
	Args        *[]string          `json:"args,omitempty"`
	Env         *map[string]string `json:"env,omitempty"`
	URL         *string            `json:"url,omitempty"`
}

// Create validates and registers a new server under the profile. The type
// is inferred from the transport fields when omitted.
func (s *Service) Create(ctx context.Context, profileUUID string, req CreateRequest) (*store.MCPServer, error) {
	server := &store.MCPServer{
		Name:        strings.TrimSpace(req.Name),
		Description: req.Description,
		Type:        req.Type,
		Command:     strings.TrimSpace(req.Command),
		Args:        req.Args,
		Env:         req.Env,
		URL:         strings.TrimSpace(req.URL),
		ProfileUUID: profileUUID,
		Status:      store.ServerStatusActive,
	}
	if server.Type == "" {
		if server.URL != "" {
			server.Type = store.ServerTypeSSE
		} else {
			server.Type = store.ServerTypeStdio
		}
	}

	if err := validateServer(server); err != nil {
		return nil, err
	}
	if err := s.store.CreateServer(ctx, server); err != nil {
		return nil, err
	}

	s.logger.Info("mcp server registered",
		slog.String(logging.ServerKey, server.Name),
		slog.String(logging.ServerUUIDKey, server.UUID),
		slog.String("type", string(server.Type)))
	return server, nil
}

// Get retrieves a registration scoped to the profile.
func (s *Service) Get(ctx context.Context, profileUUID, uuid string) (*store.MCPServer, error) {
	return s.store.GetServer(ctx, profileUUID, uuid)
}

// List returns a profile's registrations, optionally filtered by status.
func (s *Service) List(ctx context.Context, profileUUID string, statuses []store.ServerStatus) ([]*store.MCPServer, error) {
	for _, st := range statuses {
		if !validServerStatus(st) {
			return nil, store.Validationf("invalid status: %s", st)
		}
	}
	return s.store.ListServers(ctx, profileUUID, statuses)
}

// Update merges a partial update into the stored registration and
// revalidates the result before persisting.
func (s *Service) Update(ctx context.Context, profileUUID, uuid string, req UpdateRequest) (*store.MCPServer, error) {
	server, err := s.store.GetServer(ctx, profileUUID, uuid)
	if err != nil {
		return nil, err
	}

	if req.Name != nil {
		server.Name = strings.TrimSpace(*req.Name)
	}
	if req.Description != nil {
		server.Description = *req.Description
	}
	if req.Type != nil {
		server.Type = *req.Type
	}
	if req.Command != nil {
		server.Command = strings.TrimSpace(*req.Command)
	}
	if req.Args != nil {
		server.Args = *req.Args
	}
	if req.Env != nil {
		server.Env = *req.Env
	}
	if req.URL != nil {
		server.URL = strings.TrimSpace(*req.URL)
	}

	// A type switch clears the other transport's field so a STDIO server
	// converted to SSE doesn't drag its old command along.
	switch server.Type {
	case store.ServerTypeStdio:
		server.URL = ""
	case store.ServerTypeSSE:
		server.Command = ""
		server.Args = nil
	}

	if err := validateServer(server); err != nil {
		return nil, err
	}
	if err := s.store.UpdateServer(ctx, server); err != nil {
		return nil, err
	}
	return server, nil
}

// Delete removes a registration and its discovered tools.
func (s *Service) Delete(ctx context.Context, profileUUID, uuid string) error {
	if err := s.store.DeleteServer(ctx, profileUUID, uuid); err != nil {
		return err
	}
	s.logger.Info("mcp server deleted", slog.String(logging.ServerUUIDKey, uuid))
	return nil
}

// SetStatus toggles a registration between ACTIVE and INACTIVE. The
// recommendation states are not settable through this path.
func (s *Service) SetStatus(ctx context.Context, profileUUID, uuid string, status store.ServerStatus) error {
	if status != store.ServerStatusActive && status != store.ServerStatusInactive {
		return store.Validationf("status must be ACTIVE or INACTIVE")
	}
	return s.store.SetServerStatus(ctx, profileUUID, uuid, status)
}

// ImportEntry is one server in a bulk import payload, keyed by name.
type ImportEntry struct {
	Description string            `json:"description,omitempty"`
	Command     string            `json:"command,omitempty"`
	Args        []string          `json:"args,omitempty"`
	Env         map[string]string `json:"env,omitempty"`
	URL         string            `json:"url,omitempty"`
}

// ImportResult reports the outcome of a bulk import.
type ImportResult struct {
	Created int               `json:"created"`
	Errors  map[string]string `json:"errors,omitempty"`
}

// Import registers a batch of servers keyed by name. Entries are processed
// independently: a bad entry is reported in the result and does not roll
// back the others.
func (s *Service) Import(ctx context.Context, profileUUID string, entries map[string]ImportEntry) (*ImportResult, error) {
	if len(entries) == 0 {
		return nil, store.Validationf("no servers to import")
	}

	result := &ImportResult{Errors: map[string]string{}}
	for name, entry := range entries {
		_, err := s.Create(ctx, profileUUID, CreateRequest{
			Name:        name,
			Description: entry.Description,
			Command:     entry.Command,
			Args:        entry.Args,
			Env:         entry.Env,
			URL:         entry.URL,
		})
		if err != nil {
			result.Errors[name] = err.Error()
			continue
		}
		result.Created++
	}
	if len(result.Errors) == 0 {
		result.Errors = nil
	}

	s.logger.Info("bulk import finished",
		slog.Int("created", result.Created),
		slog.Int("failed", len(result.Errors)))
	return result, nil
}

// validateServer enforces the transport invariant: a name, and exactly one
// of command (STDIO) or url (SSE) consistent with the type.
func validateServer(server *store.MCPServer) error {
	if server.Name == "" {
		return store.Validationf("server name is required")
	}

	switch server.Type {
	case store.ServerTypeStdio:
		if server.Command == "" {
			return store.Validationf("command is required for STDIO servers")
		}
		if server.URL != "" {
			return store.Validationf("url must not be set for STDIO servers")
		}
	case store.ServerTypeSSE:
		if server.URL == "" {
			return store.Validationf("url is required for SSE servers")
		}
		if server.Command != "" || len(server.Args) > 0 {
			return store.Validationf("command and args must not be set for SSE servers")
		}
		if err := validateURL(server.URL); err != nil {
			return err
		}
	default:
		return store.Validationf("invalid server type: %s", server.Type)
	}
	return nil
}

// validateURL requires an absolute http(s) URL with a host.
func validateURL(raw string) error {
	u, err := url.Parse(raw)
	if err != nil {
		return store.Validationf("invalid url: %v", err)
	}
	if (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return store.Validationf("url must be an absolute http or https url")
	}
	return nil
}

func validServerStatus(st store.ServerStatus) bool {
	switch st {
	case store.ServerStatusActive, store.ServerStatusInactive,
		store.ServerStatusSuggested, store.ServerStatusDeclined:
		return true
	}
	return false
}

// CustomCreateRequest carries the fields for a code-based server.
type CustomCreateRequest struct {
	Name           string            `json:"name"`
	Description    string            `json:"description,omitempty"`
	Code           string            `json:"code"`
	AdditionalArgs []string          `json:"additionalArgs,omitempty"`
	Env            map[string]string `json:"env,omitempty"`
}

// CreateCustom registers a code-based server under the profile.
func (s *Service) CreateCustom(ctx context.Context, profileUUID string, req CustomCreateRequest) (*store.CustomMCPServer, error) {
	if strings.TrimSpace(req.Name) == "" {
		return nil, store.Validationf("server name is required")
	}
	if strings.TrimSpace(req.Code) == "" {
		return nil, store.Validationf("code is required")
	}

	server := &store.CustomMCPServer{
		Name:           strings.TrimSpace(req.Name),
		Description:    req.Description,
		Code:           req.Code,
		AdditionalArgs: req.AdditionalArgs,
		Env:            req.Env,
		ProfileUUID:    profileUUID,
		Status:         store.ServerStatusActive,
	}
	if err := s.store.CreateCustomServer(ctx, server); err != nil {
		return nil, err
	}

	s.logger.Info("custom mcp server registered",
		slog.String(logging.ServerKey, server.Name),
		slog.String(logging.ServerUUIDKey, server.UUID))
	return server, nil
}

// GetCustom retrieves a code-based registration scoped to the profile.
func (s *Service) GetCustom(ctx context.Context, profileUUID, uuid string) (*store.CustomMCPServer, error) {
	return s.store.GetCustomServer(ctx, profileUUID, uuid)
}

// ListCustom returns a profile's code-based registrations.
func (s *Service) ListCustom(ctx context.Context, profileUUID string, statuses []store.ServerStatus) ([]*store.CustomMCPServer, error) {
	for _, st := range statuses {
		if !validServerStatus(st) {
			return nil, store.Validationf("invalid status: %s", st)
		}
	}
	return s.store.ListCustomServers(ctx, profileUUID, statuses)
}

// DeleteCustom removes a code-based registration.
func (s *Service) DeleteCustom(ctx context.Context, profileUUID, uuid string) error {
	return s.store.DeleteCustomServer(ctx, profileUUID, uuid)
}

// SetCustomStatus toggles a code-based registration.
func (s *Service) SetCustomStatus(ctx context.Context, profileUUID, uuid string, status store.ServerStatus) error {
	if status != store.ServerStatusActive && status != store.ServerStatusInactive {
		return store.Validationf("status must be ACTIVE or INACTIVE")
	}
	return s.store.SetCustomServerStatus(ctx, profileUUID, uuid, status)
}
