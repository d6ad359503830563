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

// Package store provides persistence for the gateway's configuration and
// telemetry: projects, profiles, API keys, MCP server registrations,
// discovered tools, and tool execution logs.
package store

import (
	"encoding/json"
	"time"
)

// ServerStatus is the lifecycle status of an MCP server registration.
type ServerStatus string

const (
	ServerStatusActive    ServerStatus = "ACTIVE"
	ServerStatusInactive  ServerStatus = "INACTIVE"
	ServerStatusSuggested ServerStatus = "SUGGESTED"
	ServerStatusDeclined  ServerStatus = "DECLINED"
)

// ServerType is the transport used to reach an MCP server.
type ServerType string

const (
	// ServerTypeStdio servers are spawned as child processes and spoken to
	// over stdin/stdout.
	ServerTypeStdio ServerType = "STDIO"
	// ServerTypeSSE servers are reached over an HTTP server-sent-events
	// connection.
	ServerTypeSSE ServerType = "SSE"
)

// ToggleStatus is the operator-controlled enable/disable state of a tool.
type ToggleStatus string

const (
	ToggleStatusActive   ToggleStatus = "ACTIVE"
	ToggleStatusInactive ToggleStatus = "INACTIVE"
)

// ExecutionStatus is the lifecycle state of a tool execution log entry.
type ExecutionStatus string

const (
	ExecutionStatusPending ExecutionStatus = "PENDING"
	ExecutionStatusSuccess ExecutionStatus = "SUCCESS"
	ExecutionStatusError   ExecutionStatus = "ERROR"
)

// ProfileCapability is an optional feature that can be enabled per profile.
type ProfileCapability string

const (
	CapabilityToolsManagement ProfileCapability = "TOOLS_MANAGEMENT"
	CapabilityToolLogs        ProfileCapability = "TOOL_LOGS"
)

// Project is the tenant root. It owns profiles and API keys and points at
// its currently active profile. ActiveProfileUUID is empty until a profile
// has been activated.
type Project struct {
	UUID              string    `json:"uuid"`
	Name              string    `json:"name"`
	ActiveProfileUUID string    `json:"active_profile_uuid,omitempty"`
	CreatedAt         time.Time `json:"created_at"`
}

// Profile is a named configuration scope ("workspace") inside a project.
// It is the unit of isolation for servers, tools, and execution logs.
type Profile struct {
	UUID                string              `json:"uuid"`
	Name                string              `json:"name"`
	ProjectUUID         string              `json:"project_uuid"`
	EnabledCapabilities []ProfileCapability `json:"enabled_capabilities"`
	CreatedAt           time.Time           `json:"created_at"`
}

// APIKey is an opaque bearer credential bound to a project.
type APIKey struct {
	UUID        string    `json:"uuid"`
	ProjectUUID string    `json:"project_uuid"`
	APIKey      string    `json:"api_key"`
	Name        string    `json:"name,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
}

// MCPServer is a registration of one downstream tool-server. Exactly one of
// Command (STDIO) or URL (SSE) is set, consistent with Type.
type MCPServer struct {
	UUID        string            `json:"uuid"`
	Name        string            `json:"name"`
	Description string            `json:"description,omitempty"`
	Type        ServerType        `json:"type"`
	Command     string            `json:"command,omitempty"`
	Args        []string          `json:"args"`
	Env         map[string]string `json:"env"`
	URL         string            `json:"url,omitempty"`
	ProfileUUID string            `json:"profile_uuid"`
	Status      ServerStatus      `json:"status"`
	CreatedAt   time.Time         `json:"created_at"`
}

// CustomMCPServer is the code-based server variant. The server's source is
// carried inline; the gateway runs it with the configured interpreter args.
type CustomMCPServer struct {
	UUID           string            `json:"uuid"`
	Name           string            `json:"name"`
	Description    string            `json:"description,omitempty"`
	Code           string            `json:"code"`
	AdditionalArgs []string          `json:"additionalArgs"`
	Env            map[string]string `json:"env"`
	ProfileUUID    string            `json:"profile_uuid"`
	Status         ServerStatus      `json:"status"`
	CreatedAt      time.Time         `json:"created_at"`
}

// Tool is one capability exposed by an MCP server, discovered via refresh.
// (ServerUUID, Name) is unique; rediscovery updates Description and
// ToolSchema but never Status.
type Tool struct {
	UUID        string          `json:"uuid"`
	Name        string          `json:"name"`
	Description string          `json:"description,omitempty"`
	ToolSchema  json.RawMessage `json:"toolSchema"`
	ServerUUID  string          `json:"mcp_server_uuid"`
	Status      ToggleStatus    `json:"status"`
	CreatedAt   time.Time       `json:"created_at"`
}

// ToolUpsert is one discovered tool to merge into the catalog.
type ToolUpsert struct {
	Name        string          `json:"name"`
	Description string          `json:"description"`
	ToolSchema  json.RawMessage `json:"toolSchema"`
}

// ExecutionLog records one tool invocation attempt. Rows are created PENDING
// and receive exactly one terminal update. ServerUUID is empty when the
// invocation failed pre-dispatch or the server has since been deleted.
type ExecutionLog struct {
	ID              int64           `json:"id"`
	ServerUUID      string          `json:"mcp_server_uuid,omitempty"`
	ServerName      string          `json:"mcp_server_name,omitempty"`
	ToolName        string          `json:"tool_name"`
	Payload         json.RawMessage `json:"payload"`
	Result          json.RawMessage `json:"result,omitempty"`
	Status          ExecutionStatus `json:"status"`
	ErrorMessage    string          `json:"error_message,omitempty"`
	ExecutionTimeMS *int64          `json:"execution_time_ms,omitempty"`
	CreatedAt       time.Time       `json:"created_at"`
}

// LogUpdate carries the terminal fields for an execution log. Nil fields are
// left untouched so callers can update only what they have.
type LogUpdate struct {
	Result          json.RawMessage
	Status          *ExecutionStatus
	ErrorMessage    *string
	ExecutionTimeMS *int64
}

// IsEmpty reports whether the update carries no fields at all.
func (u LogUpdate) IsEmpty() bool {
	return u.Result == nil && u.Status == nil && u.ErrorMessage == nil && u.ExecutionTimeMS == nil
}

// LogFilter narrows an execution log query. All fields are optional and
// combine with AND; results are always scoped to the querying profile first.
type LogFilter struct {
	ServerUUIDs []string
	ToolNames   []string
	Statuses    []ExecutionStatus
	Limit       int
	Offset      int
}
