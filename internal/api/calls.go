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

	"github.com/metatool-ai/metamcp/internal/gateway"
	"github.com/metatool-ai/metamcp/internal/httputil"
)

// handleToolCall handles POST /v1/tool-calls, routing an invocation to the
// named server and returning the downstream response.
func (r *Router) handleToolCall(w http.ResponseWriter, req *http.Request) {
	var body gateway.CallRequest
	if err := httputil.DecodeJSON(req, &body); err != nil {
		httputil.WriteError(w, http.StatusBadRequest, err.Error())
		return
	}

	result, err := r.services.Gateway.Call(req.Context(), profileUUID(req), body)
	if err != nil {
		writeServiceError(w, r.logger, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, result)
}
