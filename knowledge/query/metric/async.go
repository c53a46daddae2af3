//
// Tencent is pleased to support the open source community by making trpc-query-go available.
//
// Copyright (C) 2025 Tencent.  All rights reserved.
//
// trpc-query-go is licensed under the Apache License Version 2.0.
//
//

package metric

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"trpc.group/trpc-go/trpc-query-go/log"
)

const defaultAsyncBuffer = 1024

// Async decouples a collector from the pipeline with a bounded queue drained
// by one goroutine. Events are dropped when the queue is full.
type Async struct {
	next    Collector
	events  chan func()
	dropped atomic.Int64
	failed  atomic.Int64
	mu      sync.RWMutex
	closed  bool
	done    chan struct{}
}

// AsyncOption configures Async.
type AsyncOption func(*asyncOptions)

type asyncOptions struct {
	buffer int
}

// WithBuffer sets the queue capacity.
func WithBuffer(n int) AsyncOption {
	return func(o *asyncOptions) {
		if n > 0 {
			o.buffer = n
		}
	}
}

// NewAsync starts the drain goroutine. Call Close to stop it.
func NewAsync(next Collector, opts ...AsyncOption) *Async {
	o := asyncOptions{buffer: defaultAsyncBuffer}
	for _, opt := range opts {
		opt(&o)
	}
	a := &Async{
		next:   next,
		events: make(chan func(), o.buffer),
		done:   make(chan struct{}),
	}
	go a.run()
	return a
}

func (a *Async) run() {
	defer close(a.done)
	for fn := range a.events {
		a.deliver(fn)
	}
}

// deliver runs one event. A panicking collector loses the event, not the
// drain goroutine.
func (a *Async) deliver(fn func()) {
	defer func() {
		if r := recover(); r != nil {
			a.failed.Add(1)
			log.Errorf("metric collector panicked: %v", r)
		}
	}()
	fn()
}

// Dropped returns the number of events discarded because the queue was full.
func (a *Async) Dropped() int64 {
	return a.dropped.Load()
}

// Failed returns the number of events whose collector panicked.
func (a *Async) Failed() int64 {
	return a.failed.Load()
}

// Close flushes queued events and stops the drain goroutine. Events sent
// after Close are dropped.
func (a *Async) Close() {
	a.mu.Lock()
	if !a.closed {
		a.closed = true
		close(a.events)
	}
	a.mu.Unlock()
	<-a.done
}

func (a *Async) enqueue(fn func()) {
	a.mu.RLock()
	defer a.mu.RUnlock()
	if a.closed {
		a.dropped.Add(1)
		return
	}
	select {
	case a.events <- fn:
	default:
		a.dropped.Add(1)
	}
}

// OnStageStart implements Collector.
func (a *Async) OnStageStart(ctx context.Context, stage string, inputCount int) {
	ctx = context.WithoutCancel(ctx)
	a.enqueue(func() { a.next.OnStageStart(ctx, stage, inputCount) })
}

// OnStageComplete implements Collector.
func (a *Async) OnStageComplete(ctx context.Context, stage string, outputCount int, elapsed time.Duration) {
	ctx = context.WithoutCancel(ctx)
	a.enqueue(func() { a.next.OnStageComplete(ctx, stage, outputCount, elapsed) })
}

// OnStageFailure implements Collector.
func (a *Async) OnStageFailure(ctx context.Context, stage string, err error, elapsed time.Duration) {
	ctx = context.WithoutCancel(ctx)
	a.enqueue(func() { a.next.OnStageFailure(ctx, stage, err, elapsed) })
}

// OnStageSkipped implements Collector.
func (a *Async) OnStageSkipped(ctx context.Context, stage, reason string) {
	ctx = context.WithoutCancel(ctx)
	a.enqueue(func() { a.next.OnStageSkipped(ctx, stage, reason) })
}

// OnTokenUsage implements Collector.
func (a *Async) OnTokenUsage(ctx context.Context, stage string, in, out int) {
	ctx = context.WithoutCancel(ctx)
	a.enqueue(func() { a.next.OnTokenUsage(ctx, stage, in, out) })
}

// OnCost implements Collector.
func (a *Async) OnCost(ctx context.Context, stage string, cost float64) {
	ctx = context.WithoutCancel(ctx)
	a.enqueue(func() { a.next.OnCost(ctx, stage, cost) })
}
