// Copyright (C) 2014 The Syncthing Authors.
//
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this file,
// You can obtain one at https://mozilla.org/MPL/2.0/.

package deadline

import (
	"context"
	"testing"
	"time"
)

func TestWithTimeoutInstallsDeadline(t *testing.T) {
	ctx, cancel := WithTimeout(context.Background(), time.Hour)
	defer cancel()

	got, ok := From(ctx)
	if !ok {
		t.Fatal("expected a deadline to be installed")
	}
	if time.Until(got) <= 0 || time.Until(got) > time.Hour {
		t.Fatalf("deadline %v is not roughly an hour out", got)
	}
}

func TestWithDeadlineNarrowsExisting(t *testing.T) {
	outer, cancel := WithDeadline(context.Background(), time.Now().Add(time.Minute))
	defer cancel()

	inner, cancel2 := WithDeadline(outer, time.Now().Add(time.Hour))
	defer cancel2()

	got, ok := From(inner)
	if !ok {
		t.Fatal("expected a deadline on the inner context")
	}
	if time.Until(got) > time.Minute {
		t.Fatalf("inner deadline %v should not be later than the outer one", got)
	}
}

func TestEarliest(t *testing.T) {
	now := time.Now()
	later := now.Add(time.Hour)

	got, ok := Earliest(later, now, time.Time{})
	if !ok {
		t.Fatal("expected ok=true when at least one deadline is set")
	}
	if !got.Equal(now) {
		t.Fatalf("Earliest = %v, want %v", got, now)
	}

	if _, ok := Earliest(time.Time{}, time.Time{}); ok {
		t.Fatal("expected ok=false when no deadline is set")
	}
}
