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
	"encoding/json"
	"net/http"
	"strconv"
	"strings"

	"github.com/metatool-ai/metamcp/internal/httputil"
	"github.com/metatool-ai/metamcp/internal/store"
)

// logsResponse is the paginated execution log envelope.
type logsResponse struct {
	Logs  []*store.ExecutionLog `json:"logs"`
	Total int                   `json:"total"`
}

// handleQueryLogs handles GET /v1/tool-execution-logs. Filters come from
// query parameters: mcp_server_uuids, tool_names, statuses (all
// comma-separated), limit, offset.
func (r *Router) handleQueryLogs(w http.ResponseWriter, req *http.Request) {
	q := req.URL.Query()
	filter := store.LogFilter{
		ServerUUIDs: splitParam(q.Get("mcp_server_uuids")),
		ToolNames:   splitParam(q.Get("tool_names")),
	}
	for _, s := range splitParam(q.Get("statuses")) {
		filter.Statuses = append(filter.Statuses, store.ExecutionStatus(strings.ToUpper(s)))
	}
	if raw := q.Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			httputil.WriteError(w, http.StatusBadRequest, "invalid limit")
			return
		}
		filter.Limit = n
	}
	if raw := q.Get("offset"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			httputil.WriteError(w, http.StatusBadRequest, "invalid offset")
			return
		}
		filter.Offset = n
	}

	logs, total, err := r.services.Gateway.QueryLogs(req.Context(), profileUUID(req), filter)
	if err != nil {
		writeServiceError(w, r.logger, err)
		return
	}
	if logs == nil {
		logs = []*store.ExecutionLog{}
	}
	httputil.WriteJSON(w, http.StatusOK, logsResponse{Logs: logs, Total: total})
}

// splitParam splits a comma-separated query parameter.
func splitParam(raw string) []string {
	if raw == "" {
		return nil
	}
	var out []string
	for _, s := range strings.Split(raw, ",") {
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, s)
		}
	}
	return out
}

// handleGetLog handles GET /v1/tool-execution-logs/{id}.
func (r *Router) handleGetLog(w http.ResponseWriter, req *http.Request) {
	id, err := strconv.ParseInt(req.PathValue("id"), 10, 64)
	if err != nil {
		httputil.WriteError(w, http.StatusBadRequest, "invalid log id")
		return
	}

	entry, err := r.services.Gateway.GetExecution(req.Context(), profileUUID(req), id)
	if err != nil {
		writeServiceError(w, r.logger, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, entry)
}

// handleReportExecution handles POST /v1/tool-execution-logs, used by
// stdio clients to record invocations they performed locally.
func (r *Router) handleReportExecution(w http.ResponseWriter, req *http.Request) {
	var body store.ExecutionLog
	if err := httputil.DecodeJSON(req, &body); err != nil {
		httputil.WriteError(w, http.StatusBadRequest, err.Error())
		return
	}

	entry, err := r.services.Gateway.ReportExecution(req.Context(), profileUUID(req), &body)
	if err != nil {
		writeServiceError(w, r.logger, err)
		return
	}
	httputil.WriteJSON(w, http.StatusCreated, entry)
}

// executionUpdateBody carries the terminal fields for PUT
// /v1/tool-execution-logs/{id}.
type executionUpdateBody struct {
	Result          json.RawMessage        `json:"result,omitempty"`
	Status          *store.ExecutionStatus `json:"status,omitempty"`
	ErrorMessage    *string                `json:"error_message,omitempty"`
	ExecutionTimeMS *int64                 `json:"execution_time_ms,omitempty"`
}

// handleUpdateExecution handles PUT /v1/tool-execution-logs/{id}.
func (r *Router) handleUpdateExecution(w http.ResponseWriter, req *http.Request) {
	id, err := strconv.ParseInt(req.PathValue("id"), 10, 64)
	if err != nil {
		httputil.WriteError(w, http.StatusBadRequest, "invalid log id")
		return
	}

	var body executionUpdateBody
	if err := httputil.DecodeJSON(req, &body); err != nil {
		httputil.WriteError(w, http.StatusBadRequest, err.Error())
		return
	}

	entry, err := r.services.Gateway.UpdateExecution(req.Context(), profileUUID(req), id, store.LogUpdate{
		Result:          body.Result,
		Status:          body.Status,
		ErrorMessage:    body.ErrorMessage,
		ExecutionTimeMS: body.ExecutionTimeMS,
	})
	if err != nil {
		writeServiceError(w, r.logger, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, entry)
}

// handleListToolNames handles GET /v1/tool-execution-logs/tool-names.
func (r *Router) handleListToolNames(w http.ResponseWriter, req *http.Request) {
	names, err := r.services.Gateway.ListToolNames(req.Context(), profileUUID(req))
	if err != nil {
		writeServiceError(w, r.logger, err)
		return
	}
	if names == nil {
		names = []string{}
	}
	httputil.WriteJSON(w, http.StatusOK, map[string][]string{"tool_names": names})
}
