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

// Package api provides the HTTP API for the gateway.
package api

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/metatool-ai/metamcp/internal/auth"
	"github.com/metatool-ai/metamcp/internal/catalog"
	"github.com/metatool-ai/metamcp/internal/gateway"
	"github.com/metatool-ai/metamcp/internal/httputil"
	logging "github.com/metatool-ai/metamcp/internal/log"
	"github.com/metatool-ai/metamcp/internal/registry"
	"github.com/metatool-ai/metamcp/internal/store"
)

// Config holds configuration for the API router.
type Config struct {
	Version   string
	Commit    string
	BuildDate string
}

// Services bundles the service layer the handlers dispatch to.
type Services struct {
	Store    store.Store
	Registry *registry.Service
	Catalog  *catalog.Service
	Gateway  *gateway.Service
}

// Router wraps an http.ServeMux with authentication, rate limiting, and
// request logging.
type Router struct {
	mux       *http.ServeMux
	config    Config
	services  Services
	logger    *slog.Logger
	startedAt time.Time
}

// NewRouter creates the HTTP router with all API endpoints. Health,
// version, and metrics are public; everything else requires an API key.
func NewRouter(cfg Config, services Services, authn *auth.Authenticator, limiter *auth.RateLimiter, logger *slog.Logger) *Router {
	if logger == nil {
		logger = slog.Default()
	}

	r := &Router{
		mux:       http.NewServeMux(),
		config:    cfg,
		services:  services,
		logger:    logging.WithComponent(logger, "api"),
		startedAt: time.Now(),
	}

	r.mux.HandleFunc("/", r.handleRoot)
	r.mux.HandleFunc("GET /v1/health", r.handleHealth)
	r.mux.HandleFunc("GET /v1/version", r.handleVersion)
	r.mux.Handle("GET /metrics", promhttp.Handler())

	api := http.NewServeMux()

	// Server registrations
	api.HandleFunc("GET /v1/mcp-servers", r.handleListServers)
	api.HandleFunc("POST /v1/mcp-servers", r.handleCreateServer)
	api.HandleFunc("POST /v1/mcp-servers/import", r.handleImportServers)
	api.HandleFunc("GET /v1/mcp-servers/{uuid}", r.handleGetServer)
	api.HandleFunc("PUT /v1/mcp-servers/{uuid}", r.handleUpdateServer)
	api.HandleFunc("DELETE /v1/mcp-servers/{uuid}", r.handleDeleteServer)
	api.HandleFunc("PUT /v1/mcp-servers/{uuid}/status", r.handleSetServerStatus)
	api.HandleFunc("POST /v1/mcp-servers/{uuid}/refresh", r.handleRefreshServer)
	api.HandleFunc("POST /v1/mcp-servers/{uuid}/tools", r.handleReportTools)

	// Code-based server registrations
	api.HandleFunc("GET /v1/custom-mcp-servers", r.handleListCustomServers)
	api.HandleFunc("POST /v1/custom-mcp-servers", r.handleCreateCustomServer)
	api.HandleFunc("GET /v1/custom-mcp-servers/{uuid}", r.handleGetCustomServer)
	api.HandleFunc("DELETE /v1/custom-mcp-servers/{uuid}", r.handleDeleteCustomServer)
	api.HandleFunc("PUT /v1/custom-mcp-servers/{uuid}/status", r.handleSetCustomServerStatus)

	// Tool catalog
	api.HandleFunc("GET /v1/tools", r.handleListTools)
	api.HandleFunc("POST /v1/tools", r.handleBatchUpsertTools)
	api.HandleFunc("PUT /v1/tools/{uuid}/status", r.handleSetToolStatus)

	// Tool invocation
	api.HandleFunc("POST /v1/tool-calls", r.handleToolCall)

	// Execution logs
	api.HandleFunc("GET /v1/tool-execution-logs", r.handleQueryLogs)
	api.HandleFunc("POST /v1/tool-execution-logs", r.handleReportExecution)
	api.HandleFunc("GET /v1/tool-execution-logs/tool-names", r.handleListToolNames)
	api.HandleFunc("GET /v1/tool-execution-logs/{id}", r.handleGetLog)
	api.HandleFunc("PUT /v1/tool-execution-logs/{id}", r.handleUpdateExecution)

	// Tenant management
	api.HandleFunc("GET /v1/projects", r.handleListProjects)
	api.HandleFunc("POST /v1/projects", r.handleCreateProject)
	api.HandleFunc("GET /v1/projects/{uuid}", r.handleGetProject)
	api.HandleFunc("PUT /v1/projects/{uuid}", r.handleRenameProject)
	api.HandleFunc("DELETE /v1/projects/{uuid}", r.handleDeleteProject)
	api.HandleFunc("PUT /v1/projects/{uuid}/active-profile", r.handleSetActiveProfile)
	api.HandleFunc("GET /v1/projects/{uuid}/profiles", r.handleListProfiles)
	api.HandleFunc("POST /v1/projects/{uuid}/profiles", r.handleCreateProfile)
	api.HandleFunc("GET /v1/projects/{uuid}/api-keys", r.handleListAPIKeys)
	api.HandleFunc("POST /v1/projects/{uuid}/api-keys", r.handleCreateAPIKey)
	api.HandleFunc("DELETE /v1/projects/{uuid}/api-keys/{keyUuid}", r.handleDeleteAPIKey)
	api.HandleFunc("PUT /v1/profiles/{uuid}", r.handleRenameProfile)
	api.HandleFunc("PUT /v1/profiles/{uuid}/capabilities", r.handleSetProfileCapabilities)
	api.HandleFunc("DELETE /v1/profiles/{uuid}", r.handleDeleteProfile)

	// Auth first so the rate limiter can key on the API key.
	var protected http.Handler = api
	if limiter != nil {
		protected = limiter.Middleware(protected)
	}
	if authn != nil {
		protected = authn.Middleware(protected)
	}
	r.mux.Handle("/v1/", protected)

	return r
}

// ServeHTTP implements http.Handler with request logging applied outermost.
func (r *Router) ServeHTTP(w http.ResponseWriter, req *http.Request) {
	start := time.Now()
	defer func() {
		r.logger.Info("request completed",
			slog.String("method", req.Method),
			slog.String("path", req.URL.Path),
			slog.Int64("duration_ms", time.Since(start).Milliseconds()),
		)
	}()

	r.mux.ServeHTTP(w, req)
}

// profileUUID returns the authenticated caller's active profile uuid.
func profileUUID(req *http.Request) string {
	if identity := auth.IdentityFromContext(req.Context()); identity != nil {
		return identity.Profile.UUID
	}
	return ""
}

// projectUUID returns the project owning the authenticated key.
func projectUUID(req *http.Request) string {
	if identity := auth.IdentityFromContext(req.Context()); identity != nil {
		return identity.Key.ProjectUUID
	}
	return ""
}

// handleRoot handles GET / for basic connectivity.
func (r *Router) handleRoot(w http.ResponseWriter, req *http.Request) {
	if req.URL.Path != "/" {
		httputil.WriteError(w, http.StatusNotFound, "not found")
		return
	}
	httputil.WriteJSON(w, http.StatusOK, map[string]string{
		"name":    "metamcpd",
		"version": r.config.Version,
	})
}

// handleHealth handles GET /v1/health.
func (r *Router) handleHealth(w http.ResponseWriter, req *http.Request) {
	httputil.WriteJSON(w, http.StatusOK, map[string]any{
		"status":         "ok",
		"uptime_seconds": int64(time.Since(r.startedAt).Seconds()),
	})
}

// handleVersion handles GET /v1/version.
func (r *Router) handleVersion(w http.ResponseWriter, req *http.Request) {
	httputil.WriteJSON(w, http.StatusOK, map[string]string{
		"version":    r.config.Version,
		"commit":     r.config.Commit,
		"build_date": r.config.BuildDate,
	})
}
