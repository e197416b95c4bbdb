// Copyright (C) 2014 The Syncthing Authors.
//
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this file,
// You can obtain one at https://mozilla.org/MPL/2.0/.

package cache

import "testing"

func TestDispatchEventDedupesAcrossFilterAndKey(t *testing.T) {
	r := NewRegistry(nil)

	var fired int
	l := func(EntryEvent) { fired++ }

	r.AddFilterListener(1, l)
	r.AddFilterListener(2, l)
	r.AddKeyListener([]byte("k"), l)

	r.dispatchEvent(&CacheEvent{
		FilterIDs: []int64{1, 2},
		Key:       []byte("k"),
		NewValue:  []byte("v"),
	})

	if fired != 1 {
		t.Fatalf("listener registered under two filters and a key should fire once, fired %d times", fired)
	}
}

func TestDispatchEventFiresDistinctListenersIndependently(t *testing.T) {
	r := NewRegistry(nil)

	var filterFired, keyFired, otherKeyFired int
	r.AddFilterListener(1, func(EntryEvent) { filterFired++ })
	r.AddKeyListener([]byte("k"), func(EntryEvent) { keyFired++ })
	r.AddKeyListener([]byte("other"), func(EntryEvent) { otherKeyFired++ })

	r.dispatchEvent(&CacheEvent{
		FilterIDs: []int64{1},
		Key:       []byte("k"),
		NewValue:  []byte("v"),
	})

	if filterFired != 1 || keyFired != 1 {
		t.Fatalf("expected both matching listeners to fire once, got filter=%d key=%d", filterFired, keyFired)
	}
	if otherKeyFired != 0 {
		t.Fatalf("listener for an unrelated key must not fire, fired %d times", otherKeyFired)
	}
}

func TestTruncateEventSkipsKeyAndFilterListeners(t *testing.T) {
	r := NewRegistry(nil)

	var entryFired, deactivations int
	r.AddFilterListener(1, func(EntryEvent) { entryFired++ })
	r.AddKeyListener([]byte("k"), func(EntryEvent) { entryFired++ })
	r.AddDeactivationListener(func(DeactivationType) { deactivations++ })

	r.dispatchEvent(&CacheEvent{
		FilterIDs: []int64{1},
		Key:       []byte("k"),
		Flags:     FlagTruncate,
	})

	if entryFired != 0 {
		t.Fatalf("truncate must not invoke key/filter listeners, invoked %d times", entryFired)
	}
	if deactivations != 1 {
		t.Fatalf("truncate must invoke deactivation listeners exactly once, got %d", deactivations)
	}
}

func TestShutdownFiresDeactivationListenersWithDestroyed(t *testing.T) {
	r := NewRegistry(nil)

	var got DeactivationType
	var calls int
	r.AddDeactivationListener(func(t DeactivationType) {
		calls++
		got = t
	})

	r.Shutdown()

	if calls != 1 {
		t.Fatalf("expected Shutdown to fire the listener once, got %d", calls)
	}
	if got != DeactivationDestroyed {
		t.Fatalf("expected DeactivationDestroyed, got %v", got)
	}
}

func TestRemoveFilterListenerDropsEmptyFilterID(t *testing.T) {
	r := NewRegistry(nil)

	h := r.AddFilterListener(7, func(EntryEvent) {})
	r.RemoveFilterListener(7, h)

	var fired bool
	r.AddFilterListener(7, func(EntryEvent) { fired = true })
	r.dispatchEvent(&CacheEvent{FilterIDs: []int64{7}, Key: []byte("k"), NewValue: []byte("v")})

	if !fired {
		t.Fatal("a fresh listener registered for a previously emptied filter id should still fire")
	}
}

func TestEntryEventFromClassifiesByValuePresence(t *testing.T) {
	cases := []struct {
		name string
		m    *CacheEvent
		want EntryEventType
	}{
		{"insert", &CacheEvent{NewValue: []byte("v")}, EntryInserted},
		{"update", &CacheEvent{OldValue: []byte("o"), NewValue: []byte("n")}, EntryUpdated},
		{"delete", &CacheEvent{OldValue: []byte("o")}, EntryDeleted},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			got := entryEventFrom(c.m)
			if got.Type != c.want {
				t.Fatalf("got %v, want %v", got.Type, c.want)
			}
		})
	}
}

func TestDeliverDispatchesKnownMessageTypes(t *testing.T) {
	r := NewRegistry(nil)

	var noStorage int
	r.AddDeactivationListener(func(t DeactivationType) {
		if t == DeactivationNoStorage {
			noStorage++
		}
	})

	if _, err := r.Deliver(nil, nil, &NoStorageMembers{}); err != nil {
		t.Fatalf("Deliver: %v", err)
	}
	if noStorage != 1 {
		t.Fatalf("expected NoStorageMembers to trigger a no-storage deactivation, got %d", noStorage)
	}
}

func TestAddKeyListenerPrimingEventMarksPriming(t *testing.T) {
	r := NewRegistry(nil)

	var got EntryEvent
	r.AddKeyListener([]byte("k"), func(e EntryEvent) { got = e })

	r.dispatchEvent(&CacheEvent{
		Key:      []byte("k"),
		NewValue: []byte("v"),
		Flags:    FlagPriming,
	})

	if !got.Priming {
		t.Fatal("expected the synthesized priming event to carry Priming=true")
	}
}
