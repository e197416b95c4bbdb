// Copyright (C) 2014 Jakob Borg and Contributors (see the CONTRIBUTORS file).
// All rights reserved. Use of this source code is governed by an MIT-style
// license that can be found in the LICENSE file.

package events

import (
	"testing"
	"time"
)

func TestSubscribeReceivesMatchingEvents(t *testing.T) {
	l := NewLogger()
	s := l.Subscribe(ConnectionOpened)
	defer l.Unsubscribe(s)

	l.Log(ConnectionOpened, "conn-1")

	ev, err := s.Poll(time.Second)
	if err != nil {
		t.Fatalf("Poll: %v", err)
	}
	if ev.Type != ConnectionOpened || ev.Data != "conn-1" {
		t.Fatalf("got %+v", ev)
	}
}

func TestSubscribeMaskFiltersEvents(t *testing.T) {
	l := NewLogger()
	s := l.Subscribe(ConnectionOpened)
	defer l.Unsubscribe(s)

	l.Log(ConnectionClosed, "conn-1")

	if _, err := s.Poll(20 * time.Millisecond); err != ErrTimeout {
		t.Fatalf("Poll error = %v, want ErrTimeout", err)
	}
}

func TestPollTimeout(t *testing.T) {
	l := NewLogger()
	s := l.Subscribe(AllEvents)
	defer l.Unsubscribe(s)

	if _, err := s.Poll(10 * time.Millisecond); err != ErrTimeout {
		t.Fatalf("Poll error = %v, want ErrTimeout", err)
	}
}

func TestUnsubscribeClosesPoll(t *testing.T) {
	l := NewLogger()
	s := l.Subscribe(AllEvents)
	l.Unsubscribe(s)

	if _, err := s.Poll(time.Second); err != ErrClosed {
		t.Fatalf("Poll error = %v, want ErrClosed", err)
	}
}

func TestBufferedSubscriptionSince(t *testing.T) {
	l := NewLogger()
	s := l.Subscribe(AllEvents)
	bs := NewBufferedSubscription(s, 16)
	defer bs.Stop()

	l.Log(CacheEntryEvent, "one")
	l.Log(CacheEntryEvent, "two")

	var got []Event
	deadlineAt := time.Now().Add(time.Second)
	for len(got) < 2 && time.Now().Before(deadlineAt) {
		got = bs.Since(-1, nil)
	}
	if len(got) != 2 {
		t.Fatalf("got %d events, want 2", len(got))
	}
	if got[0].Data != "one" || got[1].Data != "two" {
		t.Fatalf("got %+v", got)
	}
}
