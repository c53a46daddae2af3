//
// Tencent is pleased to support the open source community by making trpc-query-go available.
//
// Copyright (C) 2025 Tencent.  All rights reserved.
//
// trpc-query-go is licensed under the Apache License Version 2.0.
//
//

package main

import (
	"github.com/spf13/cobra"

	"trpc.group/trpc-go/trpc-query-go/knowledge/query"
	"trpc.group/trpc-go/trpc-query-go/log"
	"trpc.group/trpc-go/trpc-query-go/telemetry"
)

// rootOptions holds the flags shared by every command.
type rootOptions struct {
	configPath     string
	dictionaryPath string
	redisURL       string
	resourcesPath  string
	openAIBaseURL  string
	openAIAPIKey   string
	logLevel       string
	otlpEndpoint   string
	otlpProtocol   string
	scope          query.Scope
}

func newRootCmd() *cobra.Command {
	opts := &rootOptions{}
	cmd := &cobra.Command{
		Use:   "queryflow",
		Short: "Turn raw user queries into retrieval ready query variants",
		Long: `queryflow runs the query transformation pipeline: normalization, correction,
completion, synonym recall, alignment, intent and slot handling, rewrite,
expansion and strategy selection.`,
		SilenceUsage: true,
		PersistentPreRun: func(*cobra.Command, []string) {
			log.SetLevel(opts.logLevel)
		},
	}

	f := cmd.PersistentFlags()
	f.StringVar(&opts.configPath, "config", "", "pipeline config YAML (defaults apply when empty)")
	f.StringVar(&opts.dictionaryPath, "dictionary", "", "dictionary YAML file")
	f.StringVar(&opts.redisURL, "redis-url", "", "redis URL of the dictionary, used when --dictionary is empty")
	f.StringVar(&opts.resourcesPath, "resources", "",
		"YAML file with phonetic confusions, completion terms and synonym entries")
	f.StringVar(&opts.openAIBaseURL, "openai-base-url", "", "base URL of the OpenAI compatible endpoint")
	f.StringVar(&opts.openAIAPIKey, "openai-api-key", "", "API key (defaults to OPENAI_API_KEY)")
	f.StringVar(&opts.logLevel, "log-level", "info", "log level: debug, info, warn, error")
	f.StringVar(&opts.otlpEndpoint, "otlp-endpoint", "",
		"OTLP collector host:port; traces and metrics are exported when set")
	f.StringVar(&opts.otlpProtocol, "otlp-protocol", telemetry.ProtocolGRPC, "OTLP protocol: grpc or http")
	f.StringVar(&opts.scope.Tenant, "tenant", "", "tenant scope")
	f.StringVar(&opts.scope.Channel, "channel", "", "channel scope")
	f.StringVar(&opts.scope.Region, "region", "", "region scope")
	f.StringVar(&opts.scope.Env, "env", "", "environment scope")

	cmd.AddCommand(newRunCmd(opts), newServeCmd(opts))
	return cmd
}
