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
	"encoding/json"
	"strings"

	"github.com/spf13/cobra"

	"trpc.group/trpc-go/trpc-query-go/knowledge/query"
)

func newRunCmd(opts *rootOptions) *cobra.Command {
	var (
		history   []string
		requestID string
	)
	cmd := &cobra.Command{
		Use:   "run <query>",
		Short: "Transform one query and print the result as JSON",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			a, err := buildApp(ctx, opts)
			if err != nil {
				return err
			}
			defer a.Close()

			qc, err := a.pipeline.Execute(ctx, strings.Join(args, " "), opts.scope, a.cfg,
				query.WithHistory(history), query.WithRequestID(requestID))
			if err != nil {
				return err
			}
			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			enc.SetEscapeHTML(false)
			return enc.Encode(qc.Result())
		},
	}
	cmd.Flags().StringArrayVar(&history, "history", nil, "previous user turn, oldest first; repeatable")
	cmd.Flags().StringVar(&requestID, "request-id", "", "request id (generated when empty)")
	return cmd
}
