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

package api

import (
	"net/http"
	"strings"

	"github.com/metatool-ai/metamcp/internal/httputil"
	"github.com/metatool-ai/metamcp/internal/registry"
	"github.com/metatool-ai/metamcp/internal/store"
)

// parseStatuses parses a comma-separated status query parameter.
func parseStatuses(req *http.Request) []store.ServerStatus {
	raw := req.URL.Query().Get("status")
	if raw == "" {
		return nil
	}
	var statuses []store.ServerStatus
	for _, s := range strings.Split(raw, ",") {
		if s = strings.TrimSpace(s); s != "" {
			statuses = append(statuses, store.ServerStatus(strings.ToUpper(s)))
		}
	}
	return statuses
}

// handleListServers handles GET /v1/mcp-servers.
func (r *Router) handleListServers(w http.ResponseWriter, req *http.Request) {
	servers, err := r.services.Registry.List(req.Context(), profileUUID(req), parseStatuses(req))
	if err != nil {
		writeServiceError(w, r.logger, err)
		return
	}
	if servers == nil {
		servers = []*store.MCPServer{}
	}
	httputil.WriteJSON(w, http.StatusOK, servers)
}

// handleCreateServer handles POST /v1/mcp-servers.
func (r *Router) handleCreateServer(w http.ResponseWriter, req *http.Request) {
	var body registry.CreateRequest
	if err := httputil.DecodeJSON(req, &body); err != nil {
		httputil.WriteError(w, http.StatusBadRequest, err.Error())
		return
	}

	server, err := r.services.Registry.Create(req.Context(), profileUUID(req), body)
	if err != nil {
		writeServiceError(w, r.logger, err)
		return
	}
	httputil.WriteJSON(w, http.StatusCreated, server)
}

// handleImportServers handles POST /v1/mcp-servers/import. The payload is
// the conventional {"mcpServers": {name: {...}}} shape.
func (r *Router) handleImportServers(w http.ResponseWriter, req *http.Request) {
	var body struct {
		MCPServers map[string]registry.ImportEntry `json:"mcpServers"`
	}
	if err := httputil.DecodeJSON(req, &body); err != nil {
		httputil.WriteError(w, http.StatusBadRequest, err.Error())
		return
	}

	result, err := r.services.Registry.Import(req.Context(), profileUUID(req), body.MCPServers)
	if err != nil {
		writeServiceError(w, r.logger, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, result)
}

// handleGetServer handles GET /v1/mcp-servers/{uuid}.
func (r *Router) handleGetServer(w http.ResponseWriter, req *http.Request) {
	server, err := r.services.Registry.Get(req.Context(), profileUUID(req), req.PathValue("uuid"))
	if err != nil {
		writeServiceError(w, r.logger, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, server)
}

// handleUpdateServer handles PUT /v1/mcp-servers/{uuid}.
func (r *Router) handleUpdateServer(w http.ResponseWriter, req *http.Request) {
	var body registry.UpdateRequest
	if err := httputil.DecodeJSON(req, &body); err != nil {
		httputil.WriteError(w, http.StatusBadRequest, err.Error())
		return
	}

	server, err := r.services.Registry.Update(req.Context(), profileUUID(req), req.PathValue("uuid"), body)
	if err != nil {
		writeServiceError(w, r.logger, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, server)
}

// handleDeleteServer handles DELETE /v1/mcp-servers/{uuid}.
func (r *Router) handleDeleteServer(w http.ResponseWriter, req *http.Request) {
	if err := r.services.Registry.Delete(req.Context(), profileUUID(req), req.PathValue("uuid")); err != nil {
		writeServiceError(w, r.logger, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// handleSetServerStatus handles PUT /v1/mcp-servers/{uuid}/status.
func (r *Router) handleSetServerStatus(w http.ResponseWriter, req *http.Request) {
	var body struct {
		Status store.ServerStatus `json:"status"`
	}
	if err := httputil.DecodeJSON(req, &body); err != nil {
		httputil.WriteError(w, http.StatusBadRequest, err.Error())
		return
	}

	if err := r.services.Registry.SetStatus(req.Context(), profileUUID(req), req.PathValue("uuid"), body.Status); err != nil {
		writeServiceError(w, r.logger, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, map[string]string{"status": string(body.Status)})
}

// handleRefreshServer handles POST /v1/mcp-servers/{uuid}/refresh.
func (r *Router) handleRefreshServer(w http.ResponseWriter, req *http.Request) {
	tools, err := r.services.Catalog.Refresh(req.Context(), profileUUID(req), req.PathValue("uuid"))
	if err != nil {
		writeServiceError(w, r.logger, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, tools)
}

// handleReportTools handles POST /v1/mcp-servers/{uuid}/tools, the batch
// report used by stdio clients.
func (r *Router) handleReportTools(w http.ResponseWriter, req *http.Request) {
	var body struct {
		Tools []store.ToolUpsert `json:"tools"`
	}
	if err := httputil.DecodeJSON(req, &body); err != nil {
		httputil.WriteError(w, http.StatusBadRequest, err.Error())
		return
	}

	tools, err := r.services.Catalog.ReportTools(req.Context(), profileUUID(req), req.PathValue("uuid"), body.Tools)
	if err != nil {
		writeServiceError(w, r.logger, err)
		return
	}
	httputil.WriteJSON(w, http.StatusCreated, tools)
}
