package main

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/caffeineduck/hostbridge/config"
	"github.com/caffeineduck/hostbridge/driver/luadelegate"
	"github.com/caffeineduck/hostbridge/stack"
)

func setupTestServer(t *testing.T) (*stack.Stack, http.Handler) {
	t.Helper()

	s, err := stack.New(context.Background(), config.Default(), io.Discard)
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })

	return s, newRouter(s)
}

func postEval(t *testing.T, h http.Handler, req evalRequest) (*httptest.ResponseRecorder, evalResponse) {
	t.Helper()

	body, err := json.Marshal(req)
	require.NoError(t, err)

	w := httptest.NewRecorder()
	h.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/eval", bytes.NewReader(body)))

	var resp evalResponse
	if w.Code == http.StatusOK {
		require.NoError(t, json.NewDecoder(w.Body).Decode(&resp))
	}
	return w, resp
}

func TestHealthEndpoint(t *testing.T) {
	_, h := setupTestServer(t)

	w := httptest.NewRecorder()
	h.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/health", nil))

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "ok", w.Body.String())
}

func TestEvalEndpoint(t *testing.T) {
	_, h := setupTestServer(t)

	w, resp := postEval(t, h, evalRequest{
		Code: `scriptArgs[0] === "test" ? "ok" : "unexpected"`,
		Lang: "js",
		Args: []string{"test"},
	})
	require.Equal(t, http.StatusOK, w.Code)
	assert.Empty(t, resp.Error)
	assert.Equal(t, "string", resp.Kind)
	assert.Equal(t, "ok", resp.Value)
}

func TestEvalEndpointLua(t *testing.T) {
	_, h := setupTestServer(t)

	w, resp := postEval(t, h, evalRequest{Code: `return {1, 2}`, Lang: "lua"})
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "[1,2]", resp.Value)
}

func TestEvalEndpointScriptError(t *testing.T) {
	_, h := setupTestServer(t)

	w, resp := postEval(t, h, evalRequest{Code: `error("nope")`, Lang: "lua"})
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, resp.Error, "nope")
	assert.Equal(t, "script", resp.ErrorCode)
	assert.Empty(t, resp.Value)
}

func TestEvalEndpointTimeout(t *testing.T) {
	_, h := setupTestServer(t)

	w, resp := postEval(t, h, evalRequest{Code: `while (true) {}`, Lang: "js", Timeout: "50ms"})
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, resp.Error, "timed out")
	assert.Empty(t, resp.ErrorCode)
}

func TestEvalEndpointCallerNamespaces(t *testing.T) {
	_, h := setupTestServer(t)

	_, resp := postEval(t, h, evalRequest{Code: `host.cache_set({key: "k", value: "alice"}); "set"`, Lang: "js", Caller: "alice"})
	require.Empty(t, resp.Error)

	_, resp = postEval(t, h, evalRequest{Code: `String(host.cache_get({key: "k"}))`, Lang: "js", Caller: "alice"})
	assert.Equal(t, "alice", resp.Value)

	_, resp = postEval(t, h, evalRequest{Code: `return tostring(host.cache_get({key = "k"}))`, Lang: "lua", Caller: "bob"})
	assert.Equal(t, "nil", resp.Value)
}

func TestEvalEndpointBadRequests(t *testing.T) {
	_, h := setupTestServer(t)

	tests := []struct {
		name string
		body string
	}{
		{"invalid json", `{`},
		{"missing code", `{"lang":"js"}`},
		{"unknown language", `{"code":"1","lang":"cobol"}`},
		{"bad timeout", `{"code":"1","timeout":"soon"}`},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			w := httptest.NewRecorder()
			h.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/eval", strings.NewReader(tc.body)))
			assert.Equal(t, http.StatusBadRequest, w.Code)
		})
	}
}

func TestEvalEndpointMethod(t *testing.T) {
	_, h := setupTestServer(t)

	w := httptest.NewRecorder()
	h.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/eval", nil))
	assert.Equal(t, http.StatusMethodNotAllowed, w.Code)
}

func TestDriversEndpoint(t *testing.T) {
	s, h := setupTestServer(t)

	w := httptest.NewRecorder()
	h.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/drivers", nil))
	require.Equal(t, http.StatusOK, w.Code)

	var entries []driverEntry
	require.NoError(t, json.NewDecoder(w.Body).Decode(&entries))
	assert.Len(t, entries, s.Host.Registry().Len())

	w = httptest.NewRecorder()
	h.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/drivers/"+luadelegate.Name, nil))
	require.Equal(t, http.StatusOK, w.Code)

	var entry driverEntry
	require.NoError(t, json.NewDecoder(w.Body).Decode(&entry))
	assert.Equal(t, luadelegate.Address.String(), entry.Address)

	w = httptest.NewRecorder()
	h.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/drivers/Missing", nil))
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestMetricsEndpoint(t *testing.T) {
	_, h := setupTestServer(t)

	postEval(t, h, evalRequest{Code: `"warm"`, Lang: "js"})

	w := httptest.NewRecorder()
	h.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "hostbridge_")
}

func TestEvalEndpointBodyLimit(t *testing.T) {
	_, h := setupTestServer(t)

	body := `{"code":"` + strings.Repeat("a", maxEvalBody) + `","lang":"js"}`
	w := httptest.NewRecorder()
	h.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/eval", strings.NewReader(body)))
	assert.Equal(t, http.StatusRequestEntityTooLarge, w.Code)
}
