// Copyright (C) 2014 The Syncthing Authors.
//
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this file,
// You can obtain one at https://mozilla.org/MPL/2.0/.

package workerpool

import (
	"sync"
	"sync/atomic"
	"testing"
)

func TestSubmitRunsOnWorkers(t *testing.T) {
	p := New(4)
	defer p.Close()

	var n atomic.Int32
	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		p.Submit(func() {
			defer wg.Done()
			n.Add(1)
		})
	}
	wg.Wait()
	if got := n.Load(); got != 20 {
		t.Fatalf("ran %d submissions, want 20", got)
	}
}

func TestZeroSizeRunsInline(t *testing.T) {
	p := New(0)
	defer p.Close()

	ran := false
	p.Submit(func() { ran = true })
	if !ran {
		t.Fatal("expected Submit to run synchronously for a zero-size pool")
	}
}

func TestCloseWaitsForInFlightWork(t *testing.T) {
	p := New(1)
	done := make(chan struct{})
	p.Submit(func() { close(done) })
	p.Close()
	select {
	case <-done:
	default:
		t.Fatal("expected submitted work to have run before Close returned")
	}
}
