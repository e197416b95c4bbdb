// Copyright (C) 2014 The Syncthing Authors.
//
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this file,
// You can obtain one at https://mozilla.org/MPL/2.0/.

package cache

import (
	"context"
	"sync/atomic"
	"unsafe"

	"github.com/coherence-go/extend/channel"
	"github.com/coherence-go/extend/internal/syncutil"
	"github.com/coherence-go/extend/logger"
	"github.com/coherence-go/extend/wire"
)

// EntryEventType classifies an EntryEvent by the before/after value
// shape a CacheEvent carries: insert, update, or delete.
type EntryEventType int

const (
	EntryInserted EntryEventType = iota
	EntryUpdated
	EntryDeleted
)

func (t EntryEventType) String() string {
	switch t {
	case EntryInserted:
		return "inserted"
	case EntryUpdated:
		return "updated"
	case EntryDeleted:
		return "deleted"
	default:
		return "unknown"
	}
}

// EntryEvent is the value handed to a registered EntryListener. Key,
// OldValue and NewValue carry opaque POF-encoded bytes: decoding them
// into live values is the embedding facade's job, not this package's.
type EntryEvent struct {
	Type           EntryEventType
	Key            []byte
	OldValue       []byte
	NewValue       []byte
	Synthetic      bool
	Priming        bool
	Expired        bool
	TransformState TransformState
}

func entryEventFrom(m *CacheEvent) EntryEvent {
	t := EntryUpdated
	switch {
	case m.OldValue == nil && m.NewValue != nil:
		t = EntryInserted
	case m.NewValue == nil:
		t = EntryDeleted
	}
	return EntryEvent{
		Type:           t,
		Key:            m.Key,
		OldValue:       m.OldValue,
		NewValue:       m.NewValue,
		Synthetic:      m.Flags.Has(FlagSynthetic),
		Priming:        m.Flags.Has(FlagPriming),
		Expired:        m.Flags.Has(FlagExpired),
		TransformState: m.TransformState,
	}
}

// EntryListener receives fan-out for a key or filter registration.
type EntryListener func(EntryEvent)

// DeactivationType distinguishes why a cache's deactivation listeners
// fired (§4.5 "Deactivation listeners").
type DeactivationType int

const (
	DeactivationTruncate DeactivationType = iota
	DeactivationNoStorage
	DeactivationDestroyed
)

func (t DeactivationType) String() string {
	switch t {
	case DeactivationTruncate:
		return "truncate"
	case DeactivationNoStorage:
		return "no-storage"
	case DeactivationDestroyed:
		return "destroyed"
	default:
		return "unknown"
	}
}

// DeactivationListener receives notice of a truncate, no-storage, or
// destroy event. Unlike EntryListener, deactivation never carries a
// key or value — only the reason.
type DeactivationListener func(DeactivationType)

// ListenerHandle identifies one registered listener so it can later be
// removed; handles are unique per Registry and never reused.
type ListenerHandle int64

// filterSet and keySet are the copy-on-write snapshots fanned out
// under Registry.mu: every mutation clones the map, mutates the clone,
// and swaps it in, so a fan-out in progress always sees a consistent
// view (§5 "Listener registries are copy-on-write under their cache's
// lock").
type filterSet = map[int64]map[ListenerHandle]EntryListener
type keySet = map[string]map[ListenerHandle]EntryListener
type deactivationSet = map[ListenerHandle]DeactivationListener

// Registry is the per-cache listener state described in §3: a
// filter-id-keyed and a key-keyed EntryListener table plus a
// deactivation listener set. It implements channel.Receiver so a
// channel opened for the named-cache protocol can hand it inbound
// CacheEvent and NoStorageMembers messages directly.
type Registry struct {
	mu syncutil.Mutex

	byFilter atomic.Pointer[filterSet]
	byKey    atomic.Pointer[keySet]
	deactiv  atomic.Pointer[deactivationSet]

	nextHandle atomic.Int64

	log *logger.Facility
}

// NewRegistry creates an empty Registry. l may be nil, in which case
// registry events are not logged.
func NewRegistry(l *logger.Logger) *Registry {
	r := &Registry{mu: syncutil.NewMutex(l, "cache-registry")}
	empty := filterSet{}
	r.byFilter.Store(&empty)
	emptyKeys := keySet{}
	r.byKey.Store(&emptyKeys)
	emptyDeactiv := deactivationSet{}
	r.deactiv.Store(&emptyDeactiv)
	if l != nil {
		r.log = l.NewFacility("cache-registry", "listener fan-out")
	} else {
		r.log = logger.New().NewFacility("cache-registry", "listener fan-out")
	}
	return r
}

// AddFilterListener registers l to fire for every CacheEvent whose
// FilterIDs includes filterID.
func (r *Registry) AddFilterListener(filterID int64, l EntryListener) ListenerHandle {
	h := ListenerHandle(r.nextHandle.Add(1))
	r.mu.Lock()
	defer r.mu.Unlock()
	cur := *r.byFilter.Load()
	next := make(filterSet, len(cur)+1)
	for k, v := range cur {
		next[k] = v
	}
	set := make(map[ListenerHandle]EntryListener, len(next[filterID])+1)
	for k, v := range next[filterID] {
		set[k] = v
	}
	set[h] = l
	next[filterID] = set
	r.byFilter.Store(&next)
	return h
}

// RemoveFilterListener undoes AddFilterListener. Removing the last
// listener for a filter id drops the filter id from the registry
// entirely (the caller is then expected to also send a
// ListenerFilterRequest with Add=false to deregister server-side).
func (r *Registry) RemoveFilterListener(filterID int64, h ListenerHandle) {
	r.mu.Lock()
	defer r.mu.Unlock()
	cur := *r.byFilter.Load()
	if _, ok := cur[filterID]; !ok {
		return
	}
	next := make(filterSet, len(cur))
	for k, v := range cur {
		next[k] = v
	}
	set := make(map[ListenerHandle]EntryListener, len(next[filterID]))
	for k, v := range next[filterID] {
		if k != h {
			set[k] = v
		}
	}
	if len(set) == 0 {
		delete(next, filterID)
	} else {
		next[filterID] = set
	}
	r.byFilter.Store(&next)
}

// AddKeyListener registers l to fire for every CacheEvent whose Key
// equals key.
func (r *Registry) AddKeyListener(key []byte, l EntryListener) ListenerHandle {
	h := ListenerHandle(r.nextHandle.Add(1))
	r.mu.Lock()
	defer r.mu.Unlock()
	cur := *r.byKey.Load()
	next := make(keySet, len(cur)+1)
	for k, v := range cur {
		next[k] = v
	}
	ks := string(key)
	set := make(map[ListenerHandle]EntryListener, len(next[ks])+1)
	for k, v := range next[ks] {
		set[k] = v
	}
	set[h] = l
	next[ks] = set
	r.byKey.Store(&next)
	return h
}

// RemoveKeyListener undoes AddKeyListener.
func (r *Registry) RemoveKeyListener(key []byte, h ListenerHandle) {
	r.mu.Lock()
	defer r.mu.Unlock()
	ks := string(key)
	cur := *r.byKey.Load()
	if _, ok := cur[ks]; !ok {
		return
	}
	next := make(keySet, len(cur))
	for k, v := range cur {
		next[k] = v
	}
	set := make(map[ListenerHandle]EntryListener, len(next[ks]))
	for k, v := range next[ks] {
		if k != h {
			set[k] = v
		}
	}
	if len(set) == 0 {
		delete(next, ks)
	} else {
		next[ks] = set
	}
	r.byKey.Store(&next)
}

// AddDeactivationListener registers l to fire on truncate, no-storage,
// or destroy.
func (r *Registry) AddDeactivationListener(l DeactivationListener) ListenerHandle {
	h := ListenerHandle(r.nextHandle.Add(1))
	r.mu.Lock()
	defer r.mu.Unlock()
	cur := *r.deactiv.Load()
	next := make(deactivationSet, len(cur)+1)
	for k, v := range cur {
		next[k] = v
	}
	next[h] = l
	r.deactiv.Store(&next)
	return h
}

// RemoveDeactivationListener undoes AddDeactivationListener.
func (r *Registry) RemoveDeactivationListener(h ListenerHandle) {
	r.mu.Lock()
	defer r.mu.Unlock()
	cur := *r.deactiv.Load()
	if _, ok := cur[h]; !ok {
		return
	}
	next := make(deactivationSet, len(cur))
	for k, v := range cur {
		if k != h {
			next[k] = v
		}
	}
	r.deactiv.Store(&next)
}

// Deliver implements channel.Receiver: it is the entry point the
// owning Channel calls for every inbound CacheEvent and
// NoStorageMembers message.
func (r *Registry) Deliver(_ context.Context, _ *channel.Channel, msg wire.Message) (wire.Message, error) {
	switch m := msg.(type) {
	case *CacheEvent:
		r.dispatchEvent(m)
	case *NoStorageMembers:
		r.dispatchDeactivation(DeactivationNoStorage)
	}
	return nil, nil
}

// dispatchEvent fans a CacheEvent out to listeners. A truncate event
// invokes only deactivation listeners (§4.5, §8 "A truncate event
// invokes only deactivation listeners, not per-key or per-filter
// listeners"); otherwise the union of the event's filter-id listeners
// and its key listener fire exactly once each, deduplicated by listener
// identity rather than by handle, so a listener registered under two
// matching filter ids (or a filter id and the key) still only runs once
// (§8 "Listener fan-out").
func (r *Registry) dispatchEvent(m *CacheEvent) {
	if m.Flags.Has(FlagTruncate) {
		r.dispatchDeactivation(DeactivationTruncate)
		return
	}

	// Func values are not comparable; a func value's single word points at
	// its closure, which every copy of one listener shares.
	listenerID := func(l EntryListener) unsafe.Pointer { return *(*unsafe.Pointer)(unsafe.Pointer(&l)) }
	fired := make(map[unsafe.Pointer]struct{})
	byFilter := *r.byFilter.Load()
	for _, fid := range m.FilterIDs {
		for _, l := range byFilter[fid] {
			if _, done := fired[listenerID(l)]; done {
				continue
			}
			fired[listenerID(l)] = struct{}{}
			l(entryEventFrom(m))
		}
	}
	byKey := *r.byKey.Load()
	for _, l := range byKey[string(m.Key)] {
		if _, done := fired[listenerID(l)]; done {
			continue
		}
		fired[listenerID(l)] = struct{}{}
		l(entryEventFrom(m))
	}
}

func (r *Registry) dispatchDeactivation(t DeactivationType) {
	set := *r.deactiv.Load()
	for _, l := range set {
		l(t)
	}
}

// Shutdown fires every deactivation listener with DeactivationDestroyed;
// call it when the owning channel or connection tears down so a cache
// handle's subscribers learn it is no longer usable (§3 "on destroy the
// cache handle is unusable").
func (r *Registry) Shutdown() {
	r.dispatchDeactivation(DeactivationDestroyed)
}
