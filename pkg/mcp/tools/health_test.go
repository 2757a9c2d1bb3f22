package tools

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/mark3labs/mcp-go/server"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func callHealth(t *testing.T, checks map[string]HealthCheck) healthResult {
	t.Helper()
	mcpServer := server.NewMCPServer("test", "1.0.0", server.WithToolCapabilities(true))
	RegisterHealthTool(mcpServer, "1.2.3", checks)

	result := mcpServer.HandleMessage(context.Background(),
		[]byte(`{"jsonrpc":"2.0","method":"tools/call","params":{"name":"health"},"id":1}`))
	resultBytes, err := json.Marshal(result)
	require.NoError(t, err)

	var response struct {
		Result struct {
			Content []struct {
				Type string `json:"type"`
				Text string `json:"text"`
			} `json:"content"`
		} `json:"result"`
	}
	require.NoError(t, json.Unmarshal(resultBytes, &response))
	require.NotEmpty(t, response.Result.Content)
	assert.Equal(t, "text", response.Result.Content[0].Type)

	var health healthResult
	require.NoError(t, json.Unmarshal([]byte(response.Result.Content[0].Text), &health))
	return health
}

func TestHealthTool_Execute(t *testing.T) {
	health := callHealth(t, nil)
	assert.Equal(t, "ok", health.Status)
	assert.Equal(t, "1.2.3", health.Version)
	assert.Empty(t, health.Checks)
}

func TestHealthTool_FailingCheckDegrades(t *testing.T) {
	health := callHealth(t, map[string]HealthCheck{
		"database": func(ctx context.Context) error { return nil },
		"calendar": func(ctx context.Context) error { return errors.New("unreachable") },
	})
	assert.Equal(t, "degraded", health.Status)
	assert.Equal(t, "ok", health.Checks["database"])
	assert.Equal(t, "unreachable", health.Checks["calendar"])
}
