// Copyright (C) 2014 The Syncthing Authors.
//
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this file,
// You can obtain one at https://mozilla.org/MPL/2.0/.

package cache

import (
	"context"
	"fmt"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/coherence-go/extend/channel"
	"github.com/coherence-go/extend/logger"
	"github.com/coherence-go/extend/pof"
	"github.com/coherence-go/extend/wire"
)

// Dialer is the channel-opening subset of transport.Connection a Manager
// needs. Depending on this instead of *transport.Connection directly
// keeps cache free of any import on transport (mirroring why
// channel.Sender exists) and lets tests substitute a fake.
type Dialer interface {
	OpenChannel(ctx context.Context, protocol, principal string, factory wire.MessageFactory, serializer *pof.Context, receiver channel.Receiver) (*channel.Channel, error)
}

// Manager opens NamedCache channels on demand and keeps at most capacity
// of them open at once, closing the least-recently-used one to make room
// for a new name. This is the same bounded-handle-cache idiom
// cmd/stdiscosrv/querysrv.go uses lru.Cache for (there, per-remote rate
// buckets keyed by IP; here, open channels keyed by cache name) applied
// to a long-lived client process that may touch far more caches over its
// lifetime than it wants live channels for at once.
type Manager struct {
	dial      Dialer
	principal string
	log       *logger.Logger
	caches    *lru.Cache[string, *Cache]
}

// NewManager creates a Manager that opens channels through dial,
// identifying itself with principal, and keeps at most capacity caches
// open concurrently.
func NewManager(dial Dialer, principal string, capacity int, l *logger.Logger) (*Manager, error) {
	m := &Manager{dial: dial, principal: principal, log: l}
	caches, err := lru.NewWithEvict[string, *Cache](capacity, func(_ string, c *Cache) {
		c.Registry.Shutdown()
		c.Channel.Close(nil)
	})
	if err != nil {
		return nil, fmt.Errorf("cache: manager: %w", err)
	}
	m.caches = caches
	return m, nil
}

// Open returns the Cache named name, opening a fresh channel for it (and
// evicting the least-recently-used open cache, if the manager is already
// at capacity) if none is cached yet.
func (m *Manager) Open(ctx context.Context, name string) (*Cache, error) {
	if c, ok := m.caches.Get(name); ok && !c.Channel.IsClosed() {
		return c, nil
	}
	registry := NewRegistry(m.log)
	ch, err := m.dial.OpenChannel(ctx, Protocol, m.principal, Factory(), pof.NewContext(true), registry)
	if err != nil {
		return nil, err
	}
	c := New(name, ch, registry)
	m.caches.Add(name, c)
	return c, nil
}

// Release closes name's channel immediately, if open, instead of waiting
// for it to be evicted by capacity pressure.
func (m *Manager) Release(name string) {
	m.caches.Remove(name)
}

// Close releases every cache the manager currently holds open.
func (m *Manager) Close() {
	m.caches.Purge()
}
