//
// Tencent is pleased to support the open source community by making trpc-query-go available.
//
// Copyright (C) 2025 Tencent.  All rights reserved.
//
// trpc-query-go is licensed under the Apache License Version 2.0.
//
//

package model

import "fmt"

// Error type constants for ResponseError.Type.
const (
	ErrorTypeAPIError    = "api_error"
	ErrorTypeStreamError = "stream_error"
)

// Choice represents a single completion choice.
type Choice struct {
	Index   int     `json:"index"`
	Message Message `json:"message"`
	// FinishReason is "stop", "length", "content_filter" and so on.
	FinishReason *string `json:"finish_reason,omitempty"`
}

// Usage represents token usage information.
type Usage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

// Response is the response from the model.
//
// Error carries API level failures reported after the request reached the
// model service; GenerateContent's own error covers failures to send it.
type Response struct {
	ID      string         `json:"id"`
	Model   string         `json:"model"`
	Choices []Choice       `json:"choices"`
	Usage   *Usage         `json:"usage,omitempty"`
	Error   *ResponseError `json:"error,omitempty"`
	// IsPartial marks streaming chunks.
	IsPartial bool `json:"is_partial"`
	// Done marks the last response of a request.
	Done bool `json:"done"`
}

// Content returns the content of the first choice.
func (rsp *Response) Content() string {
	if rsp == nil || len(rsp.Choices) == 0 {
		return ""
	}
	return rsp.Choices[0].Message.Content
}

// ResponseError is an API level error.
type ResponseError struct {
	Message string `json:"message"`
	Type    string `json:"type"`
	Code    string `json:"code,omitempty"`
}

func (e *ResponseError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("%s (%s): %s", e.Type, e.Code, e.Message)
	}
	return fmt.Sprintf("%s: %s", e.Type, e.Message)
}
