// Copyright (C) 2014 The Syncthing Authors.
//
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this file,
// You can obtain one at https://mozilla.org/MPL/2.0/.

// Package syncutil adapts internal/sync's debug-timed lock wrappers: a Mutex
// or RWMutex that times how long each critical section is held and logs
// the ones that cross a threshold through its facility's Debugf, so the
// lines appear only while that facility has debug logging enabled. Given
// a nil logger the constructors return a plain sync.Mutex/sync.RWMutex
// with no extra bookkeeping.
package syncutil

import (
	"runtime"
	"strconv"
	"sync"
	"time"

	"github.com/coherence-go/extend/logger"
)

// threshold is the critical-section duration that triggers a log line
// once debug logging is enabled; overridable by tests the same way
// lib/sync's package-level "threshold" var is.
var threshold = 100 * time.Millisecond

// Mutex is satisfied by both sync.Mutex and the debug-timed wrapper, so
// callers can hold whichever one NewMutex returns without caring which.
type Mutex interface {
	Lock()
	Unlock()
}

// RWMutex extends Mutex with the reader-lock half of sync.RWMutex.
type RWMutex interface {
	Mutex
	RLock()
	RUnlock()
}

// NewMutex returns a plain *sync.Mutex when l is nil; otherwise it
// returns a timing wrapper that logs slow critical sections under the
// named facility on l, visible only while that facility has debug
// logging enabled.
func NewMutex(l *logger.Logger, facility string) Mutex {
	if l == nil {
		return &sync.Mutex{}
	}
	return &loggedMutex{fac: l.NewFacility(facility, "lock timing")}
}

// NewRWMutex is NewMutex's RWMutex counterpart.
func NewRWMutex(l *logger.Logger, facility string) RWMutex {
	if l == nil {
		return &sync.RWMutex{}
	}
	return &loggedRWMutex{fac: l.NewFacility(facility, "lock timing")}
}

type loggedMutex struct {
	mut   sync.Mutex
	fac   *logger.Facility
	start time.Time
}

func (m *loggedMutex) Lock() {
	m.mut.Lock()
	m.start = time.Now()
}

func (m *loggedMutex) Unlock() {
	d := time.Since(m.start)
	if d > threshold {
		m.fac.Debugf("mutex held for %v at %s", d, caller())
	}
	m.mut.Unlock()
}

type loggedRWMutex struct {
	mut   sync.RWMutex
	fac   *logger.Facility
	start time.Time
}

func (m *loggedRWMutex) Lock() {
	m.mut.Lock()
	m.start = time.Now()
}

func (m *loggedRWMutex) Unlock() {
	d := time.Since(m.start)
	if d > threshold {
		m.fac.Debugf("rwmutex held (w) for %v at %s", d, caller())
	}
	m.mut.Unlock()
}

func (m *loggedRWMutex) RLock() { m.mut.RLock() }

func (m *loggedRWMutex) RUnlock() { m.mut.RUnlock() }

func caller() string {
	_, file, line, ok := runtime.Caller(2)
	if !ok {
		return "unknown"
	}
	return file + ":" + strconv.Itoa(line)
}
