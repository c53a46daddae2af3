//
// Tencent is pleased to support the open source community by making trpc-query-go available.
//
// Copyright (C) 2025 Tencent.  All rights reserved.
//
// trpc-query-go is licensed under the Apache License Version 2.0.
//
//

// Command queryflow runs the query transformation pipeline from the command
// line or as an HTTP service.
package main

import "os"

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}
