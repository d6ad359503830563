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

import "context"

// Store defines the persistence interface for the gateway.
//
// All mutation goes through the backing database's transactional guarantees;
// the gateway layer holds no global lock of its own. Scoped reads (profile
// plus uuid) return the not-found sentinel when the row exists but belongs
// to another profile.
type Store interface {
	// Project operations

	// CreateProject creates a project together with its default profile and
	// activates that profile, all in one transaction (the project row is
	// inserted first with a null active profile, then updated).
	CreateProject(ctx context.Context, name string) (*Project, error)

	// GetProject retrieves a project by uuid.
	// Returns ErrProjectNotFound if it doesn't exist.
	GetProject(ctx context.Context, uuid string) (*Project, error)

	// ListProjects returns all projects ordered by creation time.
	ListProjects(ctx context.Context) ([]*Project, error)

	// UpdateProjectName renames a project.
	UpdateProjectName(ctx context.Context, uuid, name string) (*Project, error)

	// DeleteProject deletes a project and cascades to its profiles and API
	// keys. Returns ErrLastProject when the project is the only one left.
	DeleteProject(ctx context.Context, uuid string) error

	// SetActiveProfile marks a profile as the project's active profile.
	// The profile must belong to the project.
	SetActiveProfile(ctx context.Context, projectUUID, profileUUID string) error

	// Profile operations

	// CreateProfile creates a profile inside a project.
	CreateProfile(ctx context.Context, projectUUID, name string) (*Profile, error)

	// GetProfile retrieves a profile by uuid.
	GetProfile(ctx context.Context, uuid string) (*Profile, error)

	// ListProfiles returns a project's profiles ordered by creation time.
	ListProfiles(ctx context.Context, projectUUID string) ([]*Profile, error)

	// UpdateProfileName renames a profile.
	UpdateProfileName(ctx context.Context, uuid, name string) (*Profile, error)

	// UpdateProfileCapabilities replaces a profile's enabled capability set.
	UpdateProfileCapabilities(ctx context.Context, uuid string, capabilities []ProfileCapability) (*Profile, error)

	// DeleteProfile deletes a profile and cascades to its servers and their
	// tools. Returns ErrLastProfile when the profile is the only one in its
	// project. If the profile was the project's active profile the project
	// falls back to no active profile.
	DeleteProfile(ctx context.Context, uuid string) error

	// GetActiveProfile resolves a project's active profile. If none is set
	// it activates the oldest existing profile; if the project has no
	// profiles at all it creates and activates a "Default Workspace". The
	// whole resolution runs in one transaction so concurrent first-time
	// calls converge on a single profile.
	GetActiveProfile(ctx context.Context, projectUUID string) (*Profile, error)

	// API key operations

	// CreateAPIKey mints a new key for a project. Name is optional.
	CreateAPIKey(ctx context.Context, projectUUID, name string) (*APIKey, error)

	// GetFirstAPIKey returns the project's oldest key, minting one when the
	// project has none.
	GetFirstAPIKey(ctx context.Context, projectUUID string) (*APIKey, error)

	// ListAPIKeys returns a project's keys ordered by creation time.
	ListAPIKeys(ctx context.Context, projectUUID string) ([]*APIKey, error)

	// DeleteAPIKey removes a key scoped to its project.
	DeleteAPIKey(ctx context.Context, projectUUID, uuid string) error

	// GetAPIKeyByValue looks up a key record by its opaque bearer value.
	// Returns ErrAPIKeyNotFound for unknown values.
	GetAPIKeyByValue(ctx context.Context, value string) (*APIKey, error)

	// MCP server operations

	// CreateServer inserts a server registration. The caller is responsible
	// for transport-invariant validation; the schema CHECK rejects rows that
	// slip through.
	CreateServer(ctx context.Context, server *MCPServer) error

	// GetServer retrieves a server scoped to a profile.
	GetServer(ctx context.Context, profileUUID, uuid string) (*MCPServer, error)

	// ListServers returns a profile's servers with the given statuses,
	// newest first. An empty status list means {ACTIVE, INACTIVE}.
	ListServers(ctx context.Context, profileUUID string, statuses []ServerStatus) ([]*MCPServer, error)

	// UpdateServer replaces a server's mutable fields (name, description,
	// transport fields, type). Scoped to the profile.
	UpdateServer(ctx context.Context, server *MCPServer) error

	// DeleteServer removes a server and cascades to its tools. Execution
	// logs referencing it survive with a null server reference.
	DeleteServer(ctx context.Context, profileUUID, uuid string) error

	// SetServerStatus updates a server's status, scoped to the profile.
	SetServerStatus(ctx context.Context, profileUUID, uuid string, status ServerStatus) error

	// Custom MCP server operations

	CreateCustomServer(ctx context.Context, server *CustomMCPServer) error
	GetCustomServer(ctx context.Context, profileUUID, uuid string) (*CustomMCPServer, error)
	ListCustomServers(ctx context.Context, profileUUID string, statuses []ServerStatus) ([]*CustomMCPServer, error)
	DeleteCustomServer(ctx context.Context, profileUUID, uuid string) error
	SetCustomServerStatus(ctx context.Context, profileUUID, uuid string, status ServerStatus) error

	// Tool operations

	// UpsertTools merges discovered tools into the catalog keyed by
	// (server, name) inside one transaction. Existing rows keep their
	// status; only description and schema are overwritten.
	UpsertTools(ctx context.Context, serverUUID string, tools []ToolUpsert) ([]*Tool, error)

	// ListTools returns tools joined to the profile's servers, optionally
	// filtered by status.
	ListTools(ctx context.Context, profileUUID string, status *ToggleStatus) ([]*Tool, error)

	// SetToolStatus toggles a tool, scoped to the profile via its server.
	SetToolStatus(ctx context.Context, profileUUID, toolUUID string, status ToggleStatus) error

	// Execution log operations

	// CreateLog inserts a log entry and fills in its assigned ID.
	CreateLog(ctx context.Context, entry *ExecutionLog) error

	// UpdateLog applies a terminal update to a log entry.
	// Returns ErrLogNotFound for unknown ids.
	UpdateLog(ctx context.Context, id int64, update LogUpdate) (*ExecutionLog, error)

	// GetLog retrieves a log entry by id.
	GetLog(ctx context.Context, id int64) (*ExecutionLog, error)

	// QueryLogs returns a profile's logs newest-first plus the total count
	// before pagination. Logs are scoped to servers owned by the profile.
	QueryLogs(ctx context.Context, profileUUID string, filter LogFilter) ([]*ExecutionLog, int, error)

	// ListToolNames returns the distinct tool names across a profile's
	// logs, sorted.
	ListToolNames(ctx context.Context, profileUUID string) ([]string, error)

	// Close releases the underlying database handle.
	Close() error
}
