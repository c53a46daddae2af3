//
// Tencent is pleased to support the open source community by making trpc-query-go available.
//
// Copyright (C) 2025 Tencent.  All rights reserved.
//
// trpc-query-go is licensed under the Apache License Version 2.0.
//
//

package httpapi

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"trpc.group/trpc-go/trpc-query-go/knowledge/query"
	"trpc.group/trpc-go/trpc-query-go/knowledge/query/dictionary"
	"trpc.group/trpc-go/trpc-query-go/knowledge/query/pipeline"
)

func newTestServer(t *testing.T, opts ...Option) *httptest.Server {
	t.Helper()
	dict := dictionary.NewStatic(map[string]dictionary.Entries{
		"shop": {Synonyms: map[string][]string{"蓝牙耳机": {"无线耳机"}}},
	})
	p := pipeline.New(pipeline.Deps{Dictionary: dict})
	cfg := query.DefaultConfig()
	srv := httptest.NewServer(New(p, cfg, opts...).Handler())
	t.Cleanup(srv.Close)
	return srv
}

func post(t *testing.T, url, body string) *http.Response {
	t.Helper()
	rsp, err := http.Post(url, "application/json", strings.NewReader(body))
	require.NoError(t, err)
	t.Cleanup(func() { rsp.Body.Close() })
	return rsp
}

func TestTransform(t *testing.T) {
	srv := newTestServer(t)
	rsp := post(t, srv.URL+"/v1/query/transform",
		`{"query":"  那退款呢 ","scope":{"tenant":"shop","channel":"app"},"history":["我的蓝牙耳机坏了"],"requestId":"r-1"}`)
	require.Equal(t, http.StatusOK, rsp.StatusCode)
	assert.Equal(t, "application/json", rsp.Header.Get("Content-Type"))

	var got query.Result
	require.NoError(t, json.NewDecoder(rsp.Body).Decode(&got))
	assert.Equal(t, "r-1", got.RequestID)
	assert.Equal(t, "  那退款呢 ", got.OriginalQuery)
	assert.Equal(t, "  那退款呢 ", got.Queries[0])
	assert.Equal(t, query.Scope{Tenant: "shop", Channel: "app"}, got.Scope)
	assert.Len(t, got.Diagnostics, len(query.StageNames))
	require.NotNil(t, got.Strategy)
}

func TestTransform_DefaultScope(t *testing.T) {
	srv := newTestServer(t, WithDefaultScope(query.Scope{Tenant: "shop", Channel: "web"}))
	rsp := post(t, srv.URL+"/v1/query/transform", `{"query":"return policy","scope":{"channel":"app"}}`)
	require.Equal(t, http.StatusOK, rsp.StatusCode)
	var got query.Result
	require.NoError(t, json.NewDecoder(rsp.Body).Decode(&got))
	assert.Equal(t, query.Scope{Tenant: "shop", Channel: "app"}, got.Scope)
	assert.NotEmpty(t, got.RequestID)
}

func TestTransform_BadRequests(t *testing.T) {
	srv := newTestServer(t, WithMaxBodyBytes(64))
	tests := []struct {
		name   string
		body   string
		status int
		errMsg string
	}{
		{name: "empty body", body: "", status: http.StatusBadRequest, errMsg: "empty request body"},
		{name: "malformed json", body: `{"query":`, status: http.StatusBadRequest},
		{name: "blank query", body: `{"query":"   "}`, status: http.StatusBadRequest, errMsg: query.ErrEmptyQuery.Error()},
		{
			name:   "too large",
			body:   `{"query":"` + strings.Repeat("a", 128) + `"}`,
			status: http.StatusRequestEntityTooLarge,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rsp := post(t, srv.URL+"/v1/query/transform", tt.body)
			assert.Equal(t, tt.status, rsp.StatusCode)
			var e ErrorResponse
			require.NoError(t, json.NewDecoder(rsp.Body).Decode(&e))
			assert.NotEmpty(t, e.Error)
			if tt.errMsg != "" {
				assert.Equal(t, tt.errMsg, e.Error)
			}
		})
	}
}

func TestTransform_WithPool(t *testing.T) {
	p := pipeline.New(pipeline.Deps{})
	pool, err := pipeline.NewPool(p, 2)
	require.NoError(t, err)
	defer pool.Release()

	cfg := query.DefaultConfig()
	srv := httptest.NewServer(New(p, cfg, WithPool(pool), WithBasePath("/api/")).Handler())
	defer srv.Close()

	rsp := post(t, srv.URL+"/api/query/transform", `{"query":"Track My ORDER"}`)
	require.Equal(t, http.StatusOK, rsp.StatusCode)
	var got query.Result
	require.NoError(t, json.NewDecoder(rsp.Body).Decode(&got))
	// The lowercased variant folds onto the original.
	assert.Equal(t, []string{"Track My ORDER"}, got.Queries)
}

func TestHealth(t *testing.T) {
	srv := newTestServer(t)
	rsp, err := http.Get(srv.URL + "/healthz")
	require.NoError(t, err)
	defer rsp.Body.Close()
	require.Equal(t, http.StatusOK, rsp.StatusCode)
	var got HealthResponse
	require.NoError(t, json.NewDecoder(rsp.Body).Decode(&got))
	assert.Equal(t, "ok", got.Status)
	assert.Equal(t, query.StageNames, got.Stages)
}

func TestMethodNotAllowed(t *testing.T) {
	srv := newTestServer(t)
	rsp, err := http.Get(srv.URL + "/v1/query/transform")
	require.NoError(t, err)
	defer rsp.Body.Close()
	assert.Equal(t, http.StatusMethodNotAllowed, rsp.StatusCode)
}

func TestCORSPreflight(t *testing.T) {
	srv := newTestServer(t, WithAllowedOrigins("https://console.example.com"))
	req, err := http.NewRequest(http.MethodOptions, srv.URL+"/v1/query/transform", nil)
	require.NoError(t, err)
	req.Header.Set("Origin", "https://console.example.com")
	req.Header.Set("Access-Control-Request-Method", http.MethodPost)
	rsp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer rsp.Body.Close()
	assert.Equal(t, "https://console.example.com", rsp.Header.Get("Access-Control-Allow-Origin"))
}
