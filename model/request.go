//
// Tencent is pleased to support the open source community by making trpc-query-go available.
//
// Copyright (C) 2025 Tencent.  All rights reserved.
//
// trpc-query-go is licensed under the Apache License Version 2.0.
//
//

package model

// Role represents the role of a message author.
type Role string

// Role constants for message authors.
const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Message represents a single message in a conversation.
type Message struct {
	Role    Role   `json:"role"`
	Content string `json:"content,omitempty"`
}

// NewSystemMessage creates a system message.
func NewSystemMessage(content string) Message {
	return Message{Role: RoleSystem, Content: content}
}

// NewUserMessage creates a user message.
func NewUserMessage(content string) Message {
	return Message{Role: RoleUser, Content: content}
}

// NewAssistantMessage creates an assistant message.
func NewAssistantMessage(content string) Message {
	return Message{Role: RoleAssistant, Content: content}
}

// GenerationConfig contains configuration for text generation.
type GenerationConfig struct {
	// MaxTokens is the maximum number of tokens to generate.
	MaxTokens *int `json:"max_tokens,omitempty"`
	// Temperature controls randomness (0.0 to 2.0).
	Temperature *float64 `json:"temperature,omitempty"`
	// TopP controls nucleus sampling (0.0 to 1.0).
	TopP *float64 `json:"top_p,omitempty"`
	// Stop sequences where the API will stop generating further tokens.
	Stop []string `json:"stop,omitempty"`
}

// StructuredOutputType selects the structured output mode.
type StructuredOutputType string

// StructuredOutputJSONSchema asks the model for JSON matching a schema.
const StructuredOutputJSONSchema StructuredOutputType = "json_schema"

// JSONSchemaConfig is the schema of a structured output.
type JSONSchemaConfig struct {
	Name        string         `json:"name"`
	Schema      map[string]any `json:"schema"`
	Strict      bool           `json:"strict,omitempty"`
	Description string         `json:"description,omitempty"`
}

// StructuredOutput requests a machine readable answer.
type StructuredOutput struct {
	Type       StructuredOutputType `json:"type"`
	JSONSchema *JSONSchemaConfig    `json:"json_schema,omitempty"`
}

// Request is the request to the model.
type Request struct {
	Messages []Message `json:"messages"`

	GenerationConfig `json:",inline"`

	StructuredOutput *StructuredOutput `json:"structured_output,omitempty"`
}

// Float64 returns a pointer to v.
func Float64(v float64) *float64 { return &v }

// Int returns a pointer to v.
func Int(v int) *int { return &v }
