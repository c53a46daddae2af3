//
// Tencent is pleased to support the open source community by making trpc-query-go available.
//
// Copyright (C) 2025 Tencent.  All rights reserved.
//
// trpc-query-go is licensed under the Apache License Version 2.0.
//
//

package query

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrEmptyQuery is returned by the pipeline for an empty or blank query.
	ErrEmptyQuery = errors.New("query: empty query")
	// ErrStageTimeout marks a stage or external call that ran past its deadline.
	ErrStageTimeout = errors.New("query: stage timeout")
	// ErrStagePanic marks a stage that panicked.
	ErrStagePanic = errors.New("query: stage panic")
	// ErrPipelinePanic marks a panic outside any stage, for example in a collector.
	ErrPipelinePanic = errors.New("query: pipeline panic")
)

// StageError is the single error category produced by a failing stage.
type StageError struct {
	Stage string
	Err   error
}

func (e *StageError) Error() string {
	return fmt.Sprintf("stage %s: %v", e.Stage, e.Err)
}

func (e *StageError) Unwrap() error {
	return e.Err
}

// ExternalServiceError wraps a failure of a dictionary, model, embedding
// or validation call made by a stage.
type ExternalServiceError struct {
	Service string
	Op      string
	Err     error
}

func (e *ExternalServiceError) Error() string {
	return fmt.Sprintf("%s %s: %v", e.Service, e.Op, e.Err)
}

func (e *ExternalServiceError) Unwrap() error {
	return e.Err
}

// External wraps err as an ExternalServiceError. It returns nil for a nil err.
func External(service, op string, err error) error {
	if err == nil {
		return nil
	}
	return &ExternalServiceError{Service: service, Op: op, Err: err}
}

// ValidationError reports one invalid configuration field.
type ValidationError struct {
	Field   string
	Message string
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// ValidationErrors aggregates configuration problems.
type ValidationErrors []ValidationError

func (e ValidationErrors) Error() string {
	msgs := make([]string, 0, len(e))
	for _, v := range e {
		msgs = append(msgs, v.Error())
	}
	return "invalid pipeline config: " + strings.Join(msgs, "; ")
}

func (e ValidationErrors) orNil() error {
	if len(e) == 0 {
		return nil
	}
	return e
}
