// Copyright (C) 2014 The Syncthing Authors.
//
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this file,
// You can obtain one at https://mozilla.org/MPL/2.0/.

// Package initiator implements the client-side component that opens
// and owns a connection: ensure-connection dials on demand,
// never pools, and publishes opened/closed/error lifecycle events to
// whatever embeds it, the same way lib/api subscribes to events.Logger
// for its own lifecycle notifications.
package initiator

import (
	"context"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"
	"golang.org/x/time/rate"

	"github.com/coherence-go/extend/events"
	"github.com/coherence-go/extend/transport"
)

// Initiator owns at most one live transport.Connection at a time.
// Concurrent EnsureConnection callers during a dial are coalesced into
// a single dial+handshake attempt via singleflight, the idiomatic Go
// answer to "one initiator owns at most one live connection" under
// concurrent callers.
type Initiator struct {
	opts   []transport.Option
	events *events.Logger

	mu   sync.Mutex
	conn *transport.Connection

	group   singleflight.Group
	limiter *rate.Limiter
}

// New creates an Initiator that dials with opts whenever
// EnsureConnection finds no live connection. Dial attempts are
// throttled to at most one per redialInterval (burst 1), the same
// rate.Limiter idiom cmd/stdiscosrv/querysrv.go uses to cap a bursty
// caller, here applied to a server that keeps refusing or dropping the
// connection instead of a client sending too many packets.
func New(redialInterval time.Duration, opts ...transport.Option) *Initiator {
	if redialInterval <= 0 {
		redialInterval = time.Second
	}
	return &Initiator{
		opts:    opts,
		events:  events.NewLogger(),
		limiter: rate.NewLimiter(rate.Every(redialInterval), 1),
	}
}

// Events returns the bus lifecycle events are published on:
// events.ConnectionOpened, events.ConnectionClosed, events.ConnectionError.
func (i *Initiator) Events() *events.Logger { return i.events }

// EnsureConnection returns the current live connection, dialing a new
// one if there is none or the existing one has closed.
func (i *Initiator) EnsureConnection(ctx context.Context) (*transport.Connection, error) {
	if conn := i.currentConnection(); conn != nil {
		return conn, nil
	}

	v, err, _ := i.group.Do("connect", func() (any, error) {
		if conn := i.currentConnection(); conn != nil {
			return conn, nil
		}
		if err := i.limiter.Wait(ctx); err != nil {
			return nil, err
		}
		o := transport.DefaultOptions()
		for _, opt := range i.opts {
			opt(&o)
		}
		conn, err := transport.Dial(ctx, o)
		if err != nil {
			i.events.Log(events.ConnectionError, err)
			return nil, err
		}
		conn.OnClosed(func(closeErr error) {
			i.mu.Lock()
			if i.conn == conn {
				i.conn = nil
			}
			i.mu.Unlock()
			i.events.Log(events.ConnectionClosed, closeErr)
		})
		i.mu.Lock()
		i.conn = conn
		i.mu.Unlock()
		i.events.Log(events.ConnectionOpened, conn.ID)
		return conn, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(*transport.Connection), nil
}

func (i *Initiator) currentConnection() *transport.Connection {
	i.mu.Lock()
	defer i.mu.Unlock()
	if i.conn != nil && !i.conn.IsClosed() {
		return i.conn
	}
	return nil
}

// Close tears down the current connection, if any.
func (i *Initiator) Close() {
	i.mu.Lock()
	conn := i.conn
	i.conn = nil
	i.mu.Unlock()
	if conn != nil {
		conn.Close(nil)
	}
}
