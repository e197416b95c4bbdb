// Copyright (C) 2014 The Syncthing Authors.
//
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this file,
// You can obtain one at https://mozilla.org/MPL/2.0/.

package syncutil

import (
	"sync"
	"testing"
	"time"

	"github.com/coherence-go/extend/logger"
)

func TestNewMutexWithNilLoggerIsPlain(t *testing.T) {
	m := NewMutex(nil, "test")
	m.Lock()
	m.Unlock()
}

func TestNewRWMutexAllowsConcurrentReaders(t *testing.T) {
	m := NewRWMutex(nil, "test")
	m.RLock()
	m.RLock()
	m.RUnlock()
	m.RUnlock()
}

func TestLoggedMutexLogsSlowCriticalSection(t *testing.T) {
	old := threshold
	threshold = time.Millisecond
	defer func() { threshold = old }()

	l := logger.New()
	l.SetDebug("test-facility", true)

	var mu sync.Mutex
	var got string
	l.AddHandler(logger.LevelDebug, func(_ logger.LogLevel, msg string) {
		mu.Lock()
		defer mu.Unlock()
		got = msg
	})

	m := NewMutex(l, "test-facility")
	m.Lock()
	time.Sleep(5 * time.Millisecond)
	m.Unlock()

	mu.Lock()
	defer mu.Unlock()
	if got == "" {
		t.Fatal("expected a debug line for a slow critical section")
	}
}

func TestLoggedMutexSilentWhenFast(t *testing.T) {
	l := logger.New()
	l.SetDebug("test-facility-fast", true)

	var mu sync.Mutex
	logged := false
	l.AddHandler(logger.LevelDebug, func(_ logger.LogLevel, _ string) {
		mu.Lock()
		defer mu.Unlock()
		logged = true
	})

	m := NewMutex(l, "test-facility-fast")
	m.Lock()
	m.Unlock()

	mu.Lock()
	defer mu.Unlock()
	if logged {
		t.Fatal("did not expect a debug line for a fast critical section")
	}
}
