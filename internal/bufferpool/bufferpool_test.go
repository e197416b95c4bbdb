// Copyright (C) 2014 The Syncthing Authors.
//
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this file,
// You can obtain one at https://mozilla.org/MPL/2.0/.

package bufferpool

import "testing"

func TestGetReturnsRequestedLength(t *testing.T) {
	p := New(4)
	buf := p.Get(100)
	if len(buf) != 100 {
		t.Fatalf("len(buf) = %d, want 100", len(buf))
	}
}

func TestPutReuse(t *testing.T) {
	p := New(4)
	buf := p.Get(64)
	for i := range buf {
		buf[i] = 1
	}
	p.Put(buf)

	reused := p.Get(64)
	if cap(reused) < 64 {
		t.Fatalf("cap(reused) = %d, want >= 64", cap(reused))
	}
}

func TestLargeRequestNeverServedFromSmallBucket(t *testing.T) {
	p := New(4)
	p.Put(make([]byte, 16)) // lands in the small bucket

	got := p.Get(4096)
	if len(got) != 4096 {
		t.Fatalf("len(got) = %d, want 4096", len(got))
	}
}
