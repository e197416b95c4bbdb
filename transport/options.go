// Copyright (C) 2014 The Syncthing Authors.
//
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this file,
// You can obtain one at https://mozilla.org/MPL/2.0/.

package transport

import (
	"time"

	"github.com/coherence-go/extend/internal/bufferpool"
	"github.com/coherence-go/extend/logger"
)

// Options configures a Connection. It is a typed struct built with
// functional options rather than an opaque map, covering every
// configuration row the wire protocol exposes plus the ambient-stack
// additions (logger, metrics) the protocol itself doesn't name.
type Options struct {
	RemoteAddress  string
	Edition        string
	RequestTimeout time.Duration
	PingInterval   time.Duration
	PingTimeout    time.Duration
	WorkerThreads  int
	ReadBufferSize int
	IdentityToken  []byte
	SendQueueDepth int
	Logger         *logger.Logger
	MetricsEnabled bool
	BufferPool     *bufferpool.Pool
}

// Option mutates an Options being built.
type Option func(*Options)

// DefaultOptions returns the baseline configuration every Connection
// starts from before Option values are applied.
func DefaultOptions() Options {
	return Options{
		Edition:        "extend",
		RequestTimeout: 30 * time.Second,
		PingInterval:   10 * time.Second,
		PingTimeout:    30 * time.Second,
		WorkerThreads:  0,
		ReadBufferSize: 64 * 1024,
		SendQueueDepth: 256,
	}
}

func WithRemoteAddress(addr string) Option { return func(o *Options) { o.RemoteAddress = addr } }

func WithEdition(edition string) Option { return func(o *Options) { o.Edition = edition } }

func WithRequestTimeout(d time.Duration) Option {
	return func(o *Options) { o.RequestTimeout = d }
}

func WithPingInterval(d time.Duration) Option { return func(o *Options) { o.PingInterval = d } }

func WithPingTimeout(d time.Duration) Option { return func(o *Options) { o.PingTimeout = d } }

func WithWorkerThreads(n int) Option { return func(o *Options) { o.WorkerThreads = n } }

func WithReadBufferSize(n int) Option { return func(o *Options) { o.ReadBufferSize = n } }

func WithIdentityToken(token []byte) Option { return func(o *Options) { o.IdentityToken = token } }

func WithSendQueueDepth(n int) Option { return func(o *Options) { o.SendQueueDepth = n } }

func WithLogger(l *logger.Logger) Option { return func(o *Options) { o.Logger = l } }

func WithMetrics(enabled bool) Option { return func(o *Options) { o.MetricsEnabled = enabled } }

func WithBufferPool(p *bufferpool.Pool) Option { return func(o *Options) { o.BufferPool = p } }
