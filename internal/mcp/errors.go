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

package mcp

import (
	"errors"
	"fmt"
)

// ConnectionError indicates the downstream server could not be reached or
// spawned at all. Surfaced to HTTP callers as 502.
type ConnectionError struct {
	ServerName string
	Err        error
}

func (e *ConnectionError) Error() string {
	return fmt.Sprintf("failed to connect to mcp server %s: %v", e.ServerName, e.Err)
}

func (e *ConnectionError) Unwrap() error {
	return e.Err
}

// ProtocolError indicates the server was reached but an MCP operation
// (initialize, tools/list, tools/call transport) failed.
type ProtocolError struct {
	ServerName string
	Op         string
	Err        error
}

func (e *ProtocolError) Error() string {
	return fmt.Sprintf("mcp %s failed for server %s: %v", e.Op, e.ServerName, e.Err)
}

func (e *ProtocolError) Unwrap() error {
	return e.Err
}

// IsConnection reports whether err is a ConnectionError.
func IsConnection(err error) bool {
	var ce *ConnectionError
	return errors.As(err, &ce)
}

// IsProtocol reports whether err is a ProtocolError.
func IsProtocol(err error) bool {
	var pe *ProtocolError
	return errors.As(err, &pe)
}
