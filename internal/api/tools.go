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

	"github.com/metatool-ai/metamcp/internal/catalog"
	"github.com/metatool-ai/metamcp/internal/httputil"
	"github.com/metatool-ai/metamcp/internal/store"
)

// handleListTools handles GET /v1/tools.
func (r *Router) handleListTools(w http.ResponseWriter, req *http.Request) {
	var status *store.ToggleStatus
	if raw := req.URL.Query().Get("status"); raw != "" {
		s := store.ToggleStatus(strings.ToUpper(raw))
		status = &s
	}

	tools, err := r.services.Catalog.List(req.Context(), profileUUID(req), status)
	if err != nil {
		writeServiceError(w, r.logger, err)
		return
	}
	if tools == nil {
		tools = []*store.Tool{}
	}
	httputil.WriteJSON(w, http.StatusOK, tools)
}

// handleBatchUpsertTools handles POST /v1/tools. Items address their own
// server, so one request can report tools for several stdio clients at
// once; failures are isolated per item.
func (r *Router) handleBatchUpsertTools(w http.ResponseWriter, req *http.Request) {
	var body struct {
		Tools []catalog.BatchItem `json:"tools"`
	}
	if err := httputil.DecodeJSON(req, &body); err != nil {
		httputil.WriteError(w, http.StatusBadRequest, err.Error())
		return
	}

	result, err := r.services.Catalog.ReportBatch(req.Context(), profileUUID(req), body.Tools)
	if err != nil {
		writeServiceError(w, r.logger, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, result)
}

// handleSetToolStatus handles PUT /v1/tools/{uuid}/status.
func (r *Router) handleSetToolStatus(w http.ResponseWriter, req *http.Request) {
	var body struct {
		Status store.ToggleStatus `json:"status"`
	}
	if err := httputil.DecodeJSON(req, &body); err != nil {
		httputil.WriteError(w, http.StatusBadRequest, err.Error())
		return
	}

	if err := r.services.Catalog.SetStatus(req.Context(), profileUUID(req), req.PathValue("uuid"), body.Status); err != nil {
		writeServiceError(w, r.logger, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, map[string]string{"status": string(body.Status)})
}
