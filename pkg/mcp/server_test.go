package mcp

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rochus-keller/FlowLine2/internal/model"
	"github.com/rochus-keller/FlowLine2/internal/store"
)

func TestNewFlowServer(t *testing.T) {
	s := NewFlowServer(ServerDeps{Store: store.New(model.StoreOptions()...)})
	require.NotNil(t, s)
	assert.NotNil(t, s.mcpServer)
	assert.NotNil(t, s.logger)
	assert.NotNil(t, s.lock)
	assert.NotNil(t, s.Sessions())
}

func TestToolRegistration(t *testing.T) {
	s := NewFlowServer(ServerDeps{Store: store.New(model.StoreOptions()...)})

	tools := s.mcpServer.ListTools()
	require.Len(t, tools, 9)

	expectedTools := []string{
		"flowline.diagrams",
		"flowline.snapshot",
		"flowline.hidden_links",
		"flowline.shortest_path",
		"flowline.extend",
		"flowline.layout",
		"flowline.query",
		"flowline.lint",
		"flowline.export",
	}
	for _, name := range expectedTools {
		tool := s.mcpServer.GetTool(name)
		assert.NotNil(t, tool, "tool %s should be registered", name)
	}
}

func TestToolDefinitions(t *testing.T) {
	tests := []struct {
		name        string
		toolName    string
		description string
	}{
		{"diagrams", "flowline.diagrams", "List the diagrams and processes of the repository"},
		{"snapshot", "flowline.snapshot", "Describe the nodes and flows shown on a diagram"},
		{"layout", "flowline.layout", "Lay a diagram out automatically"},
		{"export", "flowline.export", "Export a process with its nested processes as a process stream"},
	}

	s := NewFlowServer(ServerDeps{Store: store.New(model.StoreOptions()...)})

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			tool := s.mcpServer.GetTool(tc.toolName)
			require.NotNil(t, tool)
			assert.Equal(t, tc.description, tool.Tool.Description)
		})
	}
}
