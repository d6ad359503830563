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
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestRateLimiterDisabled(t *testing.T) {
	rl := NewRateLimiter(RateLimitConfig{Enabled: false})

	for i := 0; i < 100; i++ {
		assert.True(t, rl.Allow("key-1"))
	}
}

func TestRateLimiterEnforcesBurst(t *testing.T) {
	rl := NewRateLimiter(RateLimitConfig{
		Enabled:           true,
		RequestsPerSecond: 1,
		BurstSize:         3,
	})

	for i := 0; i < 3; i++ {
		assert.True(t, rl.Allow("key-1"), "request %d within burst should pass", i)
	}
	assert.False(t, rl.Allow("key-1"), "request beyond burst should be rejected")

	// Buckets are per caller.
	assert.True(t, rl.Allow("key-2"))
}

func TestRateLimiterCleanup(t *testing.T) {
	rl := NewRateLimiter(RateLimitConfig{Enabled: true, RequestsPerSecond: 1, BurstSize: 1})
	rl.Allow("key-1")

	rl.Cleanup(0)

	rl.mu.Lock()
	remaining := len(rl.callers)
	rl.mu.Unlock()
	assert.Zero(t, remaining)
}

func TestRateLimiterMiddleware(t *testing.T) {
	rl := NewRateLimiter(RateLimitConfig{
		Enabled:           true,
		RequestsPerSecond: 0.001,
		BurstSize:         1,
	})

	handler := rl.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	do := func() int {
		r := httptest.NewRequest(http.MethodGet, "/v1/tools", nil)
		r.RemoteAddr = "10.0.0.1:1234"
		w := httptest.NewRecorder()
		handler.ServeHTTP(w, r)
		return w.Code
	}

	assert.Equal(t, http.StatusOK, do())
	assert.Equal(t, http.StatusTooManyRequests, do())
}

func TestRateLimiterRefills(t *testing.T) {
	rl := NewRateLimiter(RateLimitConfig{
		Enabled:           true,
		RequestsPerSecond: 100,
		BurstSize:         1,
	})

	assert.True(t, rl.Allow("key-1"))
	assert.False(t, rl.Allow("key-1"))

	time.Sleep(20 * time.Millisecond)
	assert.True(t, rl.Allow("key-1"))
}
