//
// Tencent is pleased to support the open source community by making trpc-query-go available.
//
// Copyright (C) 2025 Tencent.  All rights reserved.
//
// trpc-query-go is licensed under the Apache License Version 2.0.
//
//

package stage

import (
	"context"

	"trpc.group/trpc-go/trpc-query-go/knowledge/query"
	"trpc.group/trpc-go/trpc-query-go/model"
)

// generate resolves modelID and runs one request under timeoutMs.
func generate(
	ctx context.Context, models model.Provider, modelID string, timeoutMs int, req *model.Request,
) (*model.Response, *query.Usage, error) {
	if models == nil {
		return nil, nil, external(serviceModel, "resolve", model.ErrUnknownModel)
	}
	m, err := models.Model(modelID)
	if err != nil {
		return nil, nil, external(serviceModel, "resolve", err)
	}
	rsp, err := within(ctx, timeoutMs, func(ctx context.Context) (*model.Response, error) {
		return model.Generate(ctx, m, req)
	})
	if err != nil {
		return nil, nil, external(serviceModel, "generate", err)
	}
	var usage *query.Usage
	if rsp.Usage != nil {
		usage = usageOf(modelID, rsp.Usage.PromptTokens, rsp.Usage.CompletionTokens)
	}
	return rsp, usage, nil
}
