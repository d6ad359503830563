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

package auth

import (
	"net/http"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/metatool-ai/metamcp/internal/httputil"
)

// RateLimitConfig contains rate limiting configuration.
type RateLimitConfig struct {
	// RequestsPerSecond is the number of requests allowed per second per
	// API key.
	RequestsPerSecond float64

	// BurstSize is the maximum burst size (token bucket capacity).
	BurstSize int

	// Enabled controls whether rate limiting is active.
	Enabled bool
}

// callerLimiter pairs a token bucket with its last-seen time so idle
// entries can be reaped.
type callerLimiter struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// RateLimiter provides per-API-key rate limiting. Requests that did not
// pass authentication fall back to per-address buckets.
type RateLimiter struct {
	mu      sync.Mutex
	callers map[string]*callerLimiter
	config  RateLimitConfig
}

// NewRateLimiter creates a new rate limiter.
func NewRateLimiter(cfg RateLimitConfig) *RateLimiter {
	if cfg.RequestsPerSecond <= 0 {
		cfg.RequestsPerSecond = 10
	}
	if cfg.BurstSize <= 0 {
		cfg.BurstSize = 20
	}

	return &RateLimiter{
		callers: make(map[string]*callerLimiter),
		config:  cfg,
	}
}

// Allow checks if a request from the given caller is allowed.
func (rl *RateLimiter) Allow(callerID string) bool {
	if !rl.config.Enabled {
		return true
	}
	if callerID == "" {
		callerID = "_anonymous_"
	}

	rl.mu.Lock()
	entry, ok := rl.callers[callerID]
	if !ok {
		entry = &callerLimiter{
			limiter: rate.NewLimiter(rate.Limit(rl.config.RequestsPerSecond), rl.config.BurstSize),
		}
		rl.callers[callerID] = entry
	}
	entry.lastSeen = time.Now()
	rl.mu.Unlock()

	return entry.limiter.Allow()
}

// Cleanup removes buckets for callers who haven't made requests recently.
func (rl *RateLimiter) Cleanup(maxAge time.Duration) {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	cutoff := time.Now().Add(-maxAge)
	for callerID, entry := range rl.callers {
		if entry.lastSeen.Before(cutoff) {
			delete(rl.callers, callerID)
		}
	}
}

// Middleware wraps an http.Handler with rate limiting. It must run after
// the auth middleware so the bucket is keyed by API key.
func (rl *RateLimiter) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !rl.config.Enabled {
			next.ServeHTTP(w, r)
			return
		}

		callerID := r.RemoteAddr
		if identity := IdentityFromContext(r.Context()); identity != nil {
			callerID = identity.Key.UUID
		}

		if !rl.Allow(callerID) {
			w.Header().Set("Retry-After", "1")
			httputil.WriteError(w, http.StatusTooManyRequests, "rate limit exceeded")
			return
		}

		next.ServeHTTP(w, r)
	})
}
