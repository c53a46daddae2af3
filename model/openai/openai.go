//
// Tencent is pleased to support the open source community by making trpc-query-go available.
//
// Copyright (C) 2025 Tencent.  All rights reserved.
//
// trpc-query-go is licensed under the Apache License Version 2.0.
//
//

// Package openai implements model.Model for OpenAI compatible chat APIs.
package openai

import (
	"context"
	"errors"

	openai "github.com/openai/openai-go"
	openaiopt "github.com/openai/openai-go/option"
	"github.com/openai/openai-go/shared"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"trpc.group/trpc-go/trpc-query-go/model"
)

var _ model.Model = (*Model)(nil)

const (
	defaultChannelBufferSize = 1
	tracerName               = "trpc.group/trpc-go/trpc-query-go/model/openai"
)

type options struct {
	apiKey            string
	baseURL           string
	channelBufferSize int
	extraFields       map[string]any
	requestOptions    []openaiopt.RequestOption
}

// Option configures a Model.
type Option func(*options)

// WithAPIKey sets the API key. OPENAI_API_KEY is used when unset.
func WithAPIKey(key string) Option {
	return func(o *options) {
		o.apiKey = key
	}
}

// WithBaseURL points the client at an OpenAI compatible endpoint.
func WithBaseURL(url string) Option {
	return func(o *options) {
		o.baseURL = url
	}
}

// WithChannelBufferSize sets the buffer of the response channel.
func WithChannelBufferSize(size int) Option {
	return func(o *options) {
		if size > 0 {
			o.channelBufferSize = size
		}
	}
}

// WithExtraFields adds provider specific fields to every request body.
func WithExtraFields(fields map[string]any) Option {
	return func(o *options) {
		if o.extraFields == nil {
			o.extraFields = make(map[string]any, len(fields))
		}
		for k, v := range fields {
			o.extraFields[k] = v
		}
	}
}

// WithRequestOptions appends raw openai-go request options.
func WithRequestOptions(opts ...openaiopt.RequestOption) Option {
	return func(o *options) {
		o.requestOptions = append(o.requestOptions, opts...)
	}
}

// Model is a chat completion model.
type Model struct {
	client            openai.Client
	name              string
	channelBufferSize int
	requestOptions    []openaiopt.RequestOption
}

// New creates a Model for the named chat model.
func New(name string, opts ...Option) *Model {
	o := options{channelBufferSize: defaultChannelBufferSize}
	for _, opt := range opts {
		opt(&o)
	}
	var clientOpts []openaiopt.RequestOption
	if o.apiKey != "" {
		clientOpts = append(clientOpts, openaiopt.WithAPIKey(o.apiKey))
	}
	if o.baseURL != "" {
		clientOpts = append(clientOpts, openaiopt.WithBaseURL(o.baseURL))
	}
	reqOpts := append([]openaiopt.RequestOption(nil), o.requestOptions...)
	for k, v := range o.extraFields {
		reqOpts = append(reqOpts, openaiopt.WithJSONSet(k, v))
	}
	return &Model{
		client:            openai.NewClient(clientOpts...),
		name:              name,
		channelBufferSize: o.channelBufferSize,
		requestOptions:    reqOpts,
	}
}

// Info implements model.Model.
func (m *Model) Info() model.Info {
	return model.Info{Name: m.name}
}

// GenerateContent implements model.Model. It sends one non streaming chat
// completion and delivers a single final response.
func (m *Model) GenerateContent(ctx context.Context, request *model.Request) (<-chan *model.Response, error) {
	if request == nil {
		return nil, errors.New("request cannot be nil")
	}
	ch := make(chan *model.Response, m.channelBufferSize)
	params := m.buildChatRequest(request)
	go func() {
		defer close(ch)
		rsp := m.complete(ctx, params)
		select {
		case ch <- rsp:
		case <-ctx.Done():
		}
	}()
	return ch, nil
}

func (m *Model) buildChatRequest(request *model.Request) openai.ChatCompletionNewParams {
	params := openai.ChatCompletionNewParams{
		Model:    shared.ChatModel(m.name),
		Messages: convertMessages(request.Messages),
	}
	if so := request.StructuredOutput; so != nil && so.Type == model.StructuredOutputJSONSchema && so.JSONSchema != nil {
		js := so.JSONSchema
		params.ResponseFormat = openai.ChatCompletionNewParamsResponseFormatUnion{
			OfJSONSchema: &shared.ResponseFormatJSONSchemaParam{
				JSONSchema: shared.ResponseFormatJSONSchemaJSONSchemaParam{
					Name:        js.Name,
					Schema:      js.Schema,
					Strict:      openai.Bool(js.Strict),
					Description: openai.String(js.Description),
				},
			},
		}
	}
	if request.MaxTokens != nil {
		params.MaxCompletionTokens = openai.Int(int64(*request.MaxTokens))
	}
	if request.Temperature != nil {
		params.Temperature = openai.Float(*request.Temperature)
	}
	if request.TopP != nil {
		params.TopP = openai.Float(*request.TopP)
	}
	if len(request.Stop) > 0 {
		// Only the first stop sequence is forwarded.
		params.Stop = openai.ChatCompletionNewParamsStopUnion{OfString: openai.String(request.Stop[0])}
	}
	return params
}

func convertMessages(messages []model.Message) []openai.ChatCompletionMessageParamUnion {
	out := make([]openai.ChatCompletionMessageParamUnion, 0, len(messages))
	for _, msg := range messages {
		switch msg.Role {
		case model.RoleSystem:
			out = append(out, openai.SystemMessage(msg.Content))
		case model.RoleAssistant:
			out = append(out, openai.AssistantMessage(msg.Content))
		default:
			out = append(out, openai.UserMessage(msg.Content))
		}
	}
	return out
}

func (m *Model) complete(ctx context.Context, params openai.ChatCompletionNewParams) *model.Response {
	ctx, span := otel.Tracer(tracerName).Start(ctx, "chat "+m.name)
	defer span.End()

	completion, err := m.client.Chat.Completions.New(ctx, params, m.requestOptions...)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return &model.Response{
			Error: &model.ResponseError{Message: err.Error(), Type: model.ErrorTypeAPIError},
			Done:  true,
		}
	}
	rsp := &model.Response{
		ID:    completion.ID,
		Model: completion.Model,
		Done:  true,
		Usage: &model.Usage{
			PromptTokens:     int(completion.Usage.PromptTokens),
			CompletionTokens: int(completion.Usage.CompletionTokens),
			TotalTokens:      int(completion.Usage.TotalTokens),
		},
	}
	span.SetAttributes(
		attribute.Int64("gen_ai.usage.input_tokens", completion.Usage.PromptTokens),
		attribute.Int64("gen_ai.usage.output_tokens", completion.Usage.CompletionTokens),
	)
	for _, choice := range completion.Choices {
		c := model.Choice{
			Index:   int(choice.Index),
			Message: model.NewAssistantMessage(choice.Message.Content),
		}
		if choice.FinishReason != "" {
			reason := choice.FinishReason
			c.FinishReason = &reason
		}
		rsp.Choices = append(rsp.Choices, c)
	}
	return rsp
}
