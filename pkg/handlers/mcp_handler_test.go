package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/ekaya-inc/agenda-sync/pkg/auth"
	"github.com/ekaya-inc/agenda-sync/pkg/config"
	"github.com/ekaya-inc/agenda-sync/pkg/mcp"
	"github.com/ekaya-inc/agenda-sync/pkg/mcp/tools"
	"github.com/ekaya-inc/agenda-sync/pkg/testhelpers"
)

// newTestMCPMux serves a health-only MCP server behind bearer auth with
// signature verification disabled.
func newTestMCPMux(t *testing.T, required bool) *http.ServeMux {
	t.Helper()
	logger := zap.NewNop()

	mcpServer := mcp.NewServer("agenda-sync", "test-version", logger)
	tools.RegisterHealthTool(mcpServer.MCP(), "test-version", nil)

	validator, err := auth.NewJWKSClient(context.Background(), config.AuthConfig{EnableVerification: false})
	require.NoError(t, err)

	mux := http.NewServeMux()
	NewMCPHandler(mcpServer, auth.NewMiddleware(validator, required, logger), logger).RegisterRoutes(mux)
	return mux
}

func postMCP(mux *http.ServeMux, body, authorization string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, "/mcp", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	if authorization != "" {
		req.Header.Set("Authorization", authorization)
	}
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)
	return rec
}

func TestMCPHandler_ToolsList(t *testing.T) {
	mux := newTestMCPMux(t, true)

	rec := postMCP(mux, `{"jsonrpc":"2.0","method":"tools/list","id":1}`,
		testhelpers.GenerateTestJWTWithBearer("user-1", "ana@example.com"))

	require.Equal(t, http.StatusOK, rec.Code)

	var response map[string]any
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&response))
	assert.Equal(t, "2.0", response["jsonrpc"])
	assert.Equal(t, float64(1), response["id"])
}

func TestMCPHandler_ToolsCall(t *testing.T) {
	mux := newTestMCPMux(t, true)

	rec := postMCP(mux, `{"jsonrpc":"2.0","method":"tools/call","params":{"name":"health"},"id":1}`,
		testhelpers.GenerateTestJWTWithBearer("user-1", ""))

	require.Equal(t, http.StatusOK, rec.Code)

	var response struct {
		Result struct {
			Content []struct {
				Type string `json:"type"`
				Text string `json:"text"`
			} `json:"content"`
		} `json:"result"`
	}
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&response))
	require.NotEmpty(t, response.Result.Content)

	var health struct {
		Status  string `json:"status"`
		Version string `json:"version"`
	}
	require.NoError(t, json.Unmarshal([]byte(response.Result.Content[0].Text), &health))
	assert.Equal(t, "ok", health.Status)
	assert.Equal(t, "test-version", health.Version)
}

func TestMCPHandler_RequiresToken(t *testing.T) {
	mux := newTestMCPMux(t, true)

	rec := postMCP(mux, `{"jsonrpc":"2.0","method":"tools/list","id":1}`, "")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = postMCP(mux, `{"jsonrpc":"2.0","method":"tools/list","id":1}`, "Bearer not-a-jwt")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestMCPHandler_OptionalToken(t *testing.T) {
	mux := newTestMCPMux(t, false)

	rec := postMCP(mux, `{"jsonrpc":"2.0","method":"tools/list","id":1}`, "")
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestMCPHandler_RejectsNonPOST(t *testing.T) {
	mux := newTestMCPMux(t, true)

	for _, method := range []string{http.MethodGet, http.MethodDelete} {
		rec := httptest.NewRecorder()
		mux.ServeHTTP(rec, httptest.NewRequest(method, "/mcp", nil))
		assert.Equal(t, http.StatusMethodNotAllowed, rec.Code, method)
		assert.Equal(t, "POST", rec.Header().Get("Allow"))
	}
}

func TestMCPHandler_RejectsOversizedBody(t *testing.T) {
	mux := newTestMCPMux(t, true)

	body := `{"jsonrpc":"2.0","method":"tools/list","id":1,"pad":"` + strings.Repeat("x", maxMCPBodyBytes) + `"}`
	rec := postMCP(mux, body, testhelpers.GenerateTestJWTWithBearer("user-1", ""))

	assert.Equal(t, http.StatusRequestEntityTooLarge, rec.Code)
	var resp map[string]string
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	assert.Equal(t, "request_too_large", resp["error"])
}
