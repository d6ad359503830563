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

package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/metatool-ai/metamcp/internal/api"
	"github.com/metatool-ai/metamcp/internal/auth"
	"github.com/metatool-ai/metamcp/internal/catalog"
	"github.com/metatool-ai/metamcp/internal/config"
	"github.com/metatool-ai/metamcp/internal/gateway"
	logging "github.com/metatool-ai/metamcp/internal/log"
	"github.com/metatool-ai/metamcp/internal/mcp"
	"github.com/metatool-ai/metamcp/internal/registry"
	"github.com/metatool-ai/metamcp/internal/store"
)

// rateLimitCleanupInterval controls how often idle rate limit buckets are
// reaped.
const rateLimitCleanupInterval = 10 * time.Minute

func runServe(cmd *cobra.Command) error {
	configPath, _ := cmd.Flags().GetString("config")
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}
	if addr, _ := cmd.Flags().GetString("addr"); addr != "" {
		cfg.Server.Addr = addr
	}
	if dbPath, _ := cmd.Flags().GetString("db"); dbPath != "" {
		cfg.Database.Path = dbPath
	}

	logCfg := logging.FromEnv()
	if cfg.Log.Level != "" {
		logCfg.Level = cfg.Log.Level
	}
	if cfg.Log.Format != "" {
		logCfg.Format = logging.Format(cfg.Log.Format)
	}
	logger := logging.New(logCfg)
	slog.SetDefault(logger)

	if err := os.MkdirAll(filepath.Dir(cfg.Database.Path), 0o700); err != nil {
		return fmt.Errorf("failed to create data directory: %w", err)
	}
	st, err := store.NewSQLiteStore(store.SQLiteConfig{Path: cfg.Database.Path})
	if err != nil {
		return err
	}
	defer st.Close()

	// The first key is minted on demand and printed so a fresh install can
	// authenticate immediately.
	ctx := context.Background()
	projects, err := st.ListProjects(ctx)
	if err != nil {
		return err
	}
	if len(projects) > 0 {
		key, err := st.GetFirstAPIKey(ctx, projects[0].UUID)
		if err != nil {
			return err
		}
		logger.Info("api key ready",
			slog.String("project", projects[0].Name),
			slog.String("api_key", logging.SanitizeAPIKey(key.APIKey)))
	}

	dialer := mcp.NewClientDialer(cfg.MCP.ConnectTimeout, cfg.MCP.CallTimeout)
	services := api.Services{
		Store:    st,
		Registry: registry.NewService(st, logger),
		Catalog:  catalog.NewService(st, dialer, logger),
		Gateway:  gateway.NewService(st, dialer, logger),
	}

	limiter := auth.NewRateLimiter(auth.RateLimitConfig{
		Enabled:           cfg.RateLimit.Enabled,
		RequestsPerSecond: cfg.RateLimit.RequestsPerSecond,
		BurstSize:         cfg.RateLimit.BurstSize,
	})

	router := api.NewRouter(
		api.Config{Version: version, Commit: commit, BuildDate: buildDate},
		services,
		auth.NewAuthenticator(st, logger),
		limiter,
		logger,
	)

	server := &http.Server{
		Addr:              cfg.Server.Addr,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	runCtx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	go func() {
		ticker := time.NewTicker(rateLimitCleanupInterval)
		defer ticker.Stop()
		for {
			select {
			case <-runCtx.Done():
				return
			case <-ticker.C:
				limiter.Cleanup(rateLimitCleanupInterval)
			}
		}
	}()

	errCh := make(chan error, 1)
	go func() {
		logger.Info("gateway listening", slog.String("addr", cfg.Server.Addr))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return err
	case <-runCtx.Done():
	}

	logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown failed: %w", err)
	}
	return nil
}
