// Copyright (C) 2014 The Syncthing Authors.
//
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this file,
// You can obtain one at https://mozilla.org/MPL/2.0/.

// Package workerpool runs inbound channel messages that are not
// execute-in-order on a bounded set of goroutines, sized by the
// "worker-threads" configuration option. A pool of size 0 runs work
// inline on the calling goroutine (normally the connection's receive
// loop), matching the option's documented "0 => process on receive
// thread" behavior.
package workerpool

import (
	"context"

	"golang.org/x/sync/errgroup"
)

// Pool is a fixed-size goroutine pool. The zero value is not usable;
// construct with New.
type Pool struct {
	size   int
	work   chan func()
	cancel context.CancelFunc
	g      *errgroup.Group
}

// New creates a Pool with size worker goroutines. size <= 0 makes Submit
// run its argument synchronously instead of spawning any goroutines.
func New(size int) *Pool {
	p := &Pool{size: size}
	if size <= 0 {
		return p
	}
	ctx, cancel := context.WithCancel(context.Background())
	g, gctx := errgroup.WithContext(ctx)
	p.cancel = cancel
	p.g = g
	p.work = make(chan func())
	for i := 0; i < size; i++ {
		g.Go(func() error {
			for {
				select {
				case fn := <-p.work:
					fn()
				case <-gctx.Done():
					return nil
				}
			}
		})
	}
	return p
}

// Submit runs fn on a pool worker, or inline if the pool has size 0.
// Submit blocks if every worker is busy.
func (p *Pool) Submit(fn func()) {
	if p.size <= 0 {
		fn()
		return
	}
	p.work <- fn
}

// Close stops every worker goroutine and waits for the current work item
// on each, if any, to finish.
func (p *Pool) Close() {
	if p.size <= 0 {
		return
	}
	p.cancel()
	_ = p.g.Wait()
}
