//
// Tencent is pleased to support the open source community by making trpc-query-go available.
//
// Copyright (C) 2025 Tencent.  All rights reserved.
//
// trpc-query-go is licensed under the Apache License Version 2.0.
//
//

// Package httpapi exposes the query transformation pipeline over HTTP.
package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"

	"github.com/gorilla/mux"
	"github.com/rs/cors"

	"trpc.group/trpc-go/trpc-query-go/knowledge/query"
	"trpc.group/trpc-go/trpc-query-go/knowledge/query/pipeline"
	"trpc.group/trpc-go/trpc-query-go/log"
)

const (
	defaultBasePath = "/v1"
	transformPath   = "/query/transform"
	healthPath      = "/healthz"

	// defaultMaxBodyBytes bounds a transform request body.
	defaultMaxBodyBytes = 1 << 20
)

// TransformRequest is the body of POST {basePath}/query/transform.
type TransformRequest struct {
	Query     string      `json:"query"`
	Scope     query.Scope `json:"scope"`
	History   []string    `json:"history,omitempty"`
	RequestID string      `json:"requestId,omitempty"`
}

// ErrorResponse is written for every rejected request.
type ErrorResponse struct {
	Error string `json:"error"`
}

// HealthResponse is the body of GET /healthz.
type HealthResponse struct {
	Status string   `json:"status"`
	Stages []string `json:"stages"`
}

// Executor runs one pipeline invocation. *pipeline.Pipeline and
// *pipeline.Pool both satisfy it.
type Executor interface {
	Execute(ctx context.Context, q string, scope query.Scope, cfg *query.Config,
		opts ...query.ContextOption) (*query.Context, error)
}

// Server serves the transform endpoint.
type Server struct {
	pipeline *pipeline.Pipeline
	executor Executor
	cfg      *query.Config
	router   *mux.Router
	opts     options
}

// New creates a server around p. Requests run with cfg, which must not be
// modified afterwards.
func New(p *pipeline.Pipeline, cfg *query.Config, opts ...Option) *Server {
	o := options{
		basePath:       defaultBasePath,
		maxBodyBytes:   defaultMaxBodyBytes,
		allowedOrigins: []string{"*"},
	}
	for _, opt := range opts {
		opt(&o)
	}
	s := &Server{
		pipeline: p,
		executor: p,
		cfg:      cfg,
		router:   mux.NewRouter(),
		opts:     o,
	}
	if o.pool != nil {
		s.executor = o.pool
	}

	c := cors.New(cors.Options{
		AllowedOrigins: o.allowedOrigins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders: []string{"*"},
		ExposedHeaders: []string{"Content-Length", "Content-Type"},
	})
	s.router.Use(c.Handler)
	s.registerRoutes()
	return s
}

// Handler returns the http.Handler serving every route.
func (s *Server) Handler() http.Handler { return s.router }

func (s *Server) registerRoutes() {
	base := strings.TrimRight(s.opts.basePath, "/")
	s.router.HandleFunc(base+transformPath, s.handleTransform).Methods(http.MethodPost, http.MethodOptions)
	s.router.HandleFunc(healthPath, s.handleHealth).Methods(http.MethodGet)
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, HealthResponse{Status: "ok", Stages: s.pipeline.Stages()})
}

func (s *Server) handleTransform(w http.ResponseWriter, r *http.Request) {
	defer r.Body.Close()
	var req TransformRequest
	body := http.MaxBytesReader(w, r.Body, s.opts.maxBodyBytes)
	if err := json.NewDecoder(body).Decode(&req); err != nil {
		status := http.StatusBadRequest
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			status = http.StatusRequestEntityTooLarge
		} else if errors.Is(err, io.EOF) {
			err = errors.New("empty request body")
		}
		writeError(w, status, err)
		return
	}
	if req.Scope.Tenant == "" {
		req.Scope.Tenant = s.opts.defaultScope.Tenant
	}
	if req.Scope.Channel == "" {
		req.Scope.Channel = s.opts.defaultScope.Channel
	}

	qc, err := s.executor.Execute(r.Context(), req.Query, req.Scope, s.cfg,
		query.WithHistory(req.History), query.WithRequestID(req.RequestID))
	switch {
	case errors.Is(err, query.ErrEmptyQuery):
		writeError(w, http.StatusBadRequest, err)
		return
	case err != nil:
		log.ErrorfContext(r.Context(), "transform query failed: %v", err)
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	log.DebugfContext(r.Context(), "query %s: %d variants, blocked=%t",
		qc.RequestID, qc.Len(), qc.RetrievalBlocked)
	writeJSON(w, http.StatusOK, qc.Result())
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Warnf("write response: %v", err)
	}
}

func writeError(w http.ResponseWriter, status int, err error) {
	writeJSON(w, status, ErrorResponse{Error: err.Error()})
}
