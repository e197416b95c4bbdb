// Copyright (C) 2014 The Syncthing Authors.
//
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this file,
// You can obtain one at https://mozilla.org/MPL/2.0/.

package protocolerr

import (
	"errors"
	"fmt"
	"testing"
)

func TestErrorsAsUnwrapsCause(t *testing.T) {
	root := errors.New("broken pipe")
	err := fmt.Errorf("dial: %w", &TransportError{Cause: root})

	var te *TransportError
	if !errors.As(err, &te) {
		t.Fatal("expected errors.As to find a *TransportError")
	}
	if !errors.Is(te, root) {
		t.Fatal("expected the TransportError to unwrap to its cause")
	}

	var pe *ProtocolError
	if errors.As(err, &pe) {
		t.Fatal("did not expect a *ProtocolError to match a *TransportError chain")
	}
}

func TestRequestErrorUnwrapsPortableException(t *testing.T) {
	exc := &PortableException{ClassName: "java.lang.IllegalStateException", Message: "bad state"}
	err := &RequestError{Exception: exc}

	var got *PortableException
	if !errors.As(err, &got) {
		t.Fatal("expected errors.As to find the wrapped PortableException")
	}
	if got != exc {
		t.Fatalf("got %v, want %v", got, exc)
	}
}

func TestPortableExceptionChain(t *testing.T) {
	cause := &PortableException{ClassName: "java.io.IOException", Message: "closed"}
	top := &PortableException{ClassName: "java.lang.RuntimeException", Message: "wrapped", Cause: cause}

	if !errors.Is(top, cause) {
		t.Fatal("expected top exception to unwrap to its cause")
	}
	if got, want := top.Error(), "java.lang.RuntimeException: wrapped"; got != want {
		t.Fatalf("Error() = %q, want %q", got, want)
	}
}

func TestTimeoutKindString(t *testing.T) {
	cases := map[TimeoutKind]string{
		TimeoutRequest:   "request",
		TimeoutExecution: "execution",
		TimeoutPing:      "ping",
		TimeoutKind(99):  "unknown",
	}
	for kind, want := range cases {
		if got := kind.String(); got != want {
			t.Errorf("TimeoutKind(%d).String() = %q, want %q", kind, got, want)
		}
	}
}

func TestUserErrorDoesNotImplementUnwrapCycle(t *testing.T) {
	err := &UserError{Cause: errors.New("duplicate registration")}
	if err.Unwrap() == nil {
		t.Fatal("expected UserError to unwrap its cause")
	}
}
