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
	"errors"
	"log/slog"
	"net/http"

	"github.com/metatool-ai/metamcp/internal/auth"
	"github.com/metatool-ai/metamcp/internal/httputil"
	logging "github.com/metatool-ai/metamcp/internal/log"
	"github.com/metatool-ai/metamcp/internal/mcp"
	"github.com/metatool-ai/metamcp/internal/store"
)

// writeServiceError maps service errors onto HTTP status codes. Anything
// unclassified is a 500 with a generic body so internals don't leak.
func writeServiceError(w http.ResponseWriter, logger *slog.Logger, err error) {
	switch {
	case store.IsValidation(err):
		httputil.WriteError(w, http.StatusBadRequest, err.Error())
	case store.IsNotFound(err):
		httputil.WriteError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, store.ErrLastProject), errors.Is(err, store.ErrLastProfile):
		httputil.WriteError(w, http.StatusBadRequest, err.Error())
	case auth.IsAuthError(err):
		httputil.WriteError(w, http.StatusUnauthorized, err.Error())
	case mcp.IsConnection(err):
		httputil.WriteError(w, http.StatusBadGateway, err.Error())
	case mcp.IsProtocol(err):
		httputil.WriteError(w, http.StatusBadGateway, err.Error())
	default:
		logger.Error("request failed", logging.Error(err))
		httputil.WriteError(w, http.StatusInternalServerError, "internal server error")
	}
}
