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

package store

import (
	"errors"
	"fmt"
)

var (
	// ErrProjectNotFound is returned when a project doesn't exist.
	ErrProjectNotFound = errors.New("project not found")

	// ErrProfileNotFound is returned when a profile doesn't exist.
	ErrProfileNotFound = errors.New("profile not found")

	// ErrAPIKeyNotFound is returned when an API key doesn't exist.
	ErrAPIKeyNotFound = errors.New("api key not found")

	// ErrServerNotFound is returned when an MCP server doesn't exist or
	// doesn't belong to the caller's profile. Cross-profile lookups return
	// this error so existence never leaks across tenants.
	ErrServerNotFound = errors.New("mcp server not found")

	// ErrCustomServerNotFound is returned when a custom MCP server doesn't exist.
	ErrCustomServerNotFound = errors.New("custom mcp server not found")

	// ErrToolNotFound is returned when a tool doesn't exist.
	ErrToolNotFound = errors.New("tool not found")

	// ErrLogNotFound is returned when an execution log entry doesn't exist.
	ErrLogNotFound = errors.New("tool execution log not found")

	// ErrLastProject is returned when deleting the sole remaining project.
	ErrLastProject = errors.New("cannot delete the last project")

	// ErrLastProfile is returned when deleting the sole remaining profile
	// in a project.
	ErrLastProfile = errors.New("cannot delete the last profile")
)

// ValidationError indicates malformed input: a bad URL, a missing required
// field, or a transport-kind invariant violation. Surfaced to HTTP callers
// as 400.
type ValidationError struct {
	Message string
}

// Error implements the error interface.
func (e *ValidationError) Error() string {
	return e.Message
}

// Validationf builds a ValidationError with a formatted message.
func Validationf(format string, args ...any) error {
	return &ValidationError{Message: fmt.Sprintf(format, args...)}
}

// IsValidation reports whether err is a ValidationError.
func IsValidation(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}

// IsNotFound reports whether err is any of the not-found sentinels.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrProjectNotFound) ||
		errors.Is(err, ErrProfileNotFound) ||
		errors.Is(err, ErrAPIKeyNotFound) ||
		errors.Is(err, ErrServerNotFound) ||
		errors.Is(err, ErrCustomServerNotFound) ||
		errors.Is(err, ErrToolNotFound) ||
		errors.Is(err, ErrLogNotFound)
}
