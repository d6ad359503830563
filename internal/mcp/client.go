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
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"time"

	"github.com/mark3labs/mcp-go/client"
	mcpgo "github.com/mark3labs/mcp-go/mcp"

	"github.com/metatool-ai/metamcp/internal/store"
)

const (
	clientName    = "metamcp-gateway"
	clientVersion = "0.1.0"

	defaultConnectTimeout = 10 * time.Second
	defaultCallTimeout    = 60 * time.Second
)

// Session is one live connection to a downstream MCP server. Sessions are
// not reused across requests; callers must Close when done.
type Session interface {
	// ListTools retrieves the tools the server advertises.
	ListTools(ctx context.Context) ([]ToolDefinition, error)

	// CallTool executes a tool. A response with IsError set is a successful
	// protocol exchange whose payload reports a tool-level failure.
	CallTool(ctx context.Context, req ToolCallRequest) (*ToolCallResponse, error)

	// Close tears the session down, stopping the child process for stdio
	// servers.
	Close() error
}

// Dialer opens sessions to registered servers. The gateway and catalog
// depend on this interface so tests can substitute a stub.
type Dialer interface {
	Dial(ctx context.Context, server *store.MCPServer) (Session, error)
}

// ClientDialer dials real MCP servers using the registration's transport:
// stdio servers are spawned as child processes, SSE servers are reached
// over HTTP.
type ClientDialer struct {
	// ConnectTimeout bounds transport start plus the initialize handshake.
	ConnectTimeout time.Duration

	// CallTimeout is the per-invocation default applied by sessions.
	CallTimeout time.Duration
}

// NewClientDialer creates a dialer with the given timeouts, applying
// defaults for zero values.
func NewClientDialer(connectTimeout, callTimeout time.Duration) *ClientDialer {
	if connectTimeout <= 0 {
		connectTimeout = defaultConnectTimeout
	}
	if callTimeout <= 0 {
		callTimeout = defaultCallTimeout
	}
	return &ClientDialer{ConnectTimeout: connectTimeout, CallTimeout: callTimeout}
}

// Dial opens a session to the server and completes the initialize handshake.
func (d *ClientDialer) Dial(ctx context.Context, server *store.MCPServer) (Session, error) {
	if server == nil {
		return nil, fmt.Errorf("server is required")
	}

	var mcpClient *client.Client
	var err error

	switch server.Type {
	case store.ServerTypeStdio:
		if server.Command == "" {
			return nil, &ConnectionError{ServerName: server.Name, Err: fmt.Errorf("stdio server has no command")}
		}
		mcpClient, err = client.NewStdioMCPClient(server.Command, envSlice(server.Env), server.Args...)
	case store.ServerTypeSSE:
		if server.URL == "" {
			return nil, &ConnectionError{ServerName: server.Name, Err: fmt.Errorf("sse server has no url")}
		}
		mcpClient, err = client.NewSSEMCPClient(server.URL)
	default:
		return nil, fmt.Errorf("unsupported server type: %s", server.Type)
	}
	if err != nil {
		return nil, &ConnectionError{ServerName: server.Name, Err: err}
	}

	connectCtx, cancel := context.WithTimeout(ctx, d.ConnectTimeout)
	defer cancel()

	if err := mcpClient.Start(connectCtx); err != nil {
		mcpClient.Close()
		return nil, &ConnectionError{ServerName: server.Name, Err: err}
	}

	initReq := mcpgo.InitializeRequest{
		Params: mcpgo.InitializeParams{
			ProtocolVersion: mcpgo.LATEST_PROTOCOL_VERSION,
			Capabilities:    mcpgo.ClientCapabilities{
				// Minimal capabilities for tool usage
			},
			ClientInfo: mcpgo.Implementation{
				Name:    clientName,
				Version: clientVersion,
			},
		},
	}
	if _, err := mcpClient.Initialize(connectCtx, initReq); err != nil {
		mcpClient.Close()
		return nil, &ProtocolError{ServerName: server.Name, Op: "initialize", Err: err}
	}

	return &session{
		serverName:  server.Name,
		client:      mcpClient,
		callTimeout: d.CallTimeout,
	}, nil
}

// envSlice flattens an env map to KEY=VALUE form, sorted for deterministic
// process environments.
func envSlice(env map[string]string) []string {
	if len(env) == 0 {
		return nil
	}
	keys := make([]string, 0, len(env))
	for k := range env {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	out := make([]string, 0, len(env))
	for _, k := range keys {
		out = append(out, fmt.Sprintf("%s=%s", k, env[k]))
	}
	return out
}

// session wraps the underlying MCP protocol client.
type session struct {
	serverName  string
	client      *client.Client
	callTimeout time.Duration
}

// ListTools retrieves the list of available tools from the MCP server.
func (s *session) ListTools(ctx context.Context) ([]ToolDefinition, error) {
	result, err := s.client.ListTools(ctx, mcpgo.ListToolsRequest{})
	if err != nil {
		return nil, &ProtocolError{ServerName: s.serverName, Op: "tools/list", Err: err}
	}

	tools := make([]ToolDefinition, len(result.Tools))
	for i, tool := range result.Tools {
		schema, err := extractInputSchema(tool)
		if err != nil {
			return nil, &ProtocolError{ServerName: s.serverName, Op: "tools/list", Err: err}
		}
		tools[i] = ToolDefinition{
			Name:        tool.Name,
			Description: tool.Description,
			InputSchema: schema,
		}
	}

	return tools, nil
}

// extractInputSchema pulls the JSON Schema out of a discovered tool. The
// raw schema is preferred when the server provided one; otherwise the tool
// is re-marshalled and the inputSchema field extracted.
func extractInputSchema(tool mcpgo.Tool) (json.RawMessage, error) {
	if len(tool.RawInputSchema) > 0 {
		return json.RawMessage(tool.RawInputSchema), nil
	}

	toolBytes, err := tool.MarshalJSON()
	if err != nil {
		return nil, fmt.Errorf("failed to marshal tool %s: %w", tool.Name, err)
	}
	var toolMap map[string]any
	if err := json.Unmarshal(toolBytes, &toolMap); err != nil {
		return nil, fmt.Errorf("failed to unmarshal tool %s: %w", tool.Name, err)
	}
	inputSchema, ok := toolMap["inputSchema"]
	if !ok {
		return json.RawMessage(`{}`), nil
	}
	schema, err := json.Marshal(inputSchema)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal input schema for %s: %w", tool.Name, err)
	}
	return schema, nil
}

// CallTool executes an MCP tool with the given arguments.
func (s *session) CallTool(ctx context.Context, req ToolCallRequest) (*ToolCallResponse, error) {
	ctx, cancel := context.WithTimeout(ctx, s.callTimeout)
	defer cancel()

	result, err := s.client.CallTool(ctx, mcpgo.CallToolRequest{
		Params: mcpgo.CallToolParams{
			Name:      req.Name,
			Arguments: req.Arguments,
		},
	})
	if err != nil {
		return nil, &ProtocolError{ServerName: s.serverName, Op: "tools/call", Err: err}
	}

	response := &ToolCallResponse{
		IsError: result.IsError,
		Content: make([]ContentItem, len(result.Content)),
	}

	for i, content := range result.Content {
		item := ContentItem{}

		if textContent, ok := mcpgo.AsTextContent(content); ok {
			item.Type = textContent.Type
			item.Text = textContent.Text
		} else if imageContent, ok := mcpgo.AsImageContent(content); ok {
			item.Type = imageContent.Type
			item.Data = imageContent.Data
			item.MimeType = imageContent.MIMEType
		} else {
			// Fallback: marshal to JSON to extract fields
			contentBytes, err := json.Marshal(content)
			if err != nil {
				return nil, fmt.Errorf("failed to marshal content: %w", err)
			}
			var contentMap map[string]any
			if err := json.Unmarshal(contentBytes, &contentMap); err != nil {
				return nil, fmt.Errorf("failed to unmarshal content: %w", err)
			}

			if contentType, ok := contentMap["type"].(string); ok {
				item.Type = contentType
			}
			if text, ok := contentMap["text"].(string); ok {
				item.Text = text
			}
			if data, ok := contentMap["data"].(string); ok {
				item.Data = data
			}
			if mimeType, ok := contentMap["mimeType"].(string); ok {
				item.MimeType = mimeType
			}
		}

		response.Content[i] = item
	}

	return response, nil
}

// Close closes the connection to the MCP server and stops the process.
func (s *session) Close() error {
	if s.client == nil {
		return nil
	}
	if err := s.client.Close(); err != nil {
		return fmt.Errorf("failed to close MCP client: %w", err)
	}
	return nil
}
