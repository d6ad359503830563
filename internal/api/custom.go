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

	"github.com/metatool-ai/metamcp/internal/httputil"
	"github.com/metatool-ai/metamcp/internal/registry"
	"github.com/metatool-ai/metamcp/internal/store"
)

// handleListCustomServers handles GET /v1/custom-mcp-servers.
func (r *Router) handleListCustomServers(w http.ResponseWriter, req *http.Request) {
	servers, err := r.services.Registry.ListCustom(req.Context(), profileUUID(req), parseStatuses(req))
	if err != nil {
		writeServiceError(w, r.logger, err)
		return
	}
	if servers == nil {
		servers = []*store.CustomMCPServer{}
	}
	httputil.WriteJSON(w, http.StatusOK, servers)
}

// handleCreateCustomServer handles POST /v1/custom-mcp-servers.
func (r *Router) handleCreateCustomServer(w http.ResponseWriter, req *http.Request) {
	var body registry.CustomCreateRequest
	if err := httputil.DecodeJSON(req, &body); err != nil {
		httputil.WriteError(w, http.StatusBadRequest, err.Error())
		return
	}

	server, err := r.services.Registry.CreateCustom(req.Context(), profileUUID(req), body)
	if err != nil {
		writeServiceError(w, r.logger, err)
		return
	}
	httputil.WriteJSON(w, http.StatusCreated, server)
}

// handleGetCustomServer handles GET /v1/custom-mcp-servers/{uuid}.
func (r *Router) handleGetCustomServer(w http.ResponseWriter, req *http.Request) {
	server, err := r.services.Registry.GetCustom(req.Context(), profileUUID(req), req.PathValue("uuid"))
	if err != nil {
		writeServiceError(w, r.logger, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, server)
}

// handleDeleteCustomServer handles DELETE /v1/custom-mcp-servers/{uuid}.
func (r *Router) handleDeleteCustomServer(w http.ResponseWriter, req *http.Request) {
	if err := r.services.Registry.DeleteCustom(req.Context(), profileUUID(req), req.PathValue("uuid")); err != nil {
		writeServiceError(w, r.logger, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// handleSetCustomServerStatus handles PUT /v1/custom-mcp-servers/{uuid}/status.
func (r *Router) handleSetCustomServerStatus(w http.ResponseWriter, req *http.Request) {
	var body struct {
		Status store.ServerStatus `json:"status"`
	}
	if err := httputil.DecodeJSON(req, &body); err != nil {
		httputil.WriteError(w, http.StatusBadRequest, err.Error())
		return
	}

	if err := r.services.Registry.SetCustomStatus(req.Context(), profileUUID(req), req.PathValue("uuid"), body.Status); err != nil {
		writeServiceError(w, r.logger, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, map[string]string{"status": string(body.Status)})
}
