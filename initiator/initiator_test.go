// Copyright (C) 2014 The Syncthing Authors.
//
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this file,
// You can obtain one at https://mozilla.org/MPL/2.0/.

package initiator

import (
	"bufio"
	"context"
	"net"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/coherence-go/extend/transport"
	"github.com/coherence-go/extend/wire"
)

// fakeControlFactory mirrors transport's own channel-0 factory, built
// from the exported message types' own TypeID so the fake peer below
// never has to know the control channel's internal type-id values.
func fakeControlFactory() wire.MessageFactory {
	return wire.NewStaticFactory(map[int32]func() wire.Message{
		(&transport.OpenConnectionRequest{}).TypeID(): func() wire.Message { return &transport.OpenConnectionRequest{} },
		(&transport.PingRequest{}).TypeID():            func() wire.Message { return &transport.PingRequest{} },
	})
}

// serveOneHandshake accepts exactly one handshake on conn, accepting it
// under connID, then answers any further ping keep-alives until conn
// closes.
func serveOneHandshake(conn net.Conn, connID uint64) {
	defer conn.Close()
	r := bufio.NewReader(conn)
	factory := fakeControlFactory()
	for {
		body, err := wire.ReadFrame(r)
		if err != nil {
			return
		}
		chID, msg, err := wire.DecodeMessage(body, factory)
		if err != nil {
			return
		}
		switch m := msg.(type) {
		case *transport.OpenConnectionRequest:
			resp := &transport.OpenConnectionResponse{
				BaseResponse:      wire.BaseResponse{Header: wire.ResponseHeader{RequestID: m.Header.RequestID}},
				Accepted:          true,
				NegotiatedEdition: m.Edition,
				ConnectionID:      connID,
			}
			frame, err := wire.EncodeMessage(chID, resp)
			if err != nil {
				return
			}
			if _, err := conn.Write(frame); err != nil {
				return
			}
		case *transport.PingRequest:
			resp := &transport.PingResponse{BaseResponse: wire.BaseResponse{Header: wire.ResponseHeader{RequestID: m.Header.RequestID}}}
			frame, err := wire.EncodeMessage(chID, resp)
			if err != nil {
				return
			}
			if _, err := conn.Write(frame); err != nil {
				return
			}
		}
	}
}

func TestEnsureConnectionCoalescesConcurrentCallers(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	defer ln.Close()

	var accepts int32
	go func() {
		for {
			conn, err := ln.Accept()
			if err != nil {
				return
			}
			atomic.AddInt32(&accepts, 1)
			go serveOneHandshake(conn, 99)
		}
	}()

	in := New(time.Hour,
		transport.WithRemoteAddress(ln.Addr().String()),
		transport.WithPingInterval(0),
		transport.WithPingTimeout(0),
	)
	defer in.Close()

	const n = 8
	var wg sync.WaitGroup
	results := make([]*transport.Connection, n)
	errs := make([]error, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			results[i], errs[i] = in.EnsureConnection(ctx)
		}(i)
	}
	wg.Wait()

	for i, err := range errs {
		if err != nil {
			t.Fatalf("EnsureConnection[%d]: %v", i, err)
		}
	}
	for i := 1; i < n; i++ {
		if results[i] != results[0] {
			t.Fatalf("expected every concurrent caller to observe the same connection, got a distinct instance at index %d", i)
		}
	}
	if got := atomic.LoadInt32(&accepts); got != 1 {
		t.Fatalf("expected singleflight to coalesce every caller into exactly one dial, but the listener accepted %d connections", got)
	}
}

func TestEnsureConnectionRedialsAfterClose(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	defer ln.Close()

	connID := uint64(1)
	go func() {
		for {
			conn, err := ln.Accept()
			if err != nil {
				return
			}
			id := connID
			connID++
			go serveOneHandshake(conn, id)
		}
	}()

	in := New(10*time.Millisecond,
		transport.WithRemoteAddress(ln.Addr().String()),
		transport.WithPingInterval(0),
		transport.WithPingTimeout(0),
	)
	defer in.Close()

	ctx := context.Background()
	first, err := in.EnsureConnection(ctx)
	if err != nil {
		t.Fatalf("EnsureConnection: %v", err)
	}

	first.Close(nil)

	// EnsureConnection must notice the closed connection and dial again
	// rather than keep handing back the dead one.
	var second *transport.Connection
	deadline := time.Now().Add(2 * time.Second)
	for {
		second, err = in.EnsureConnection(ctx)
		if err != nil {
			t.Fatalf("EnsureConnection after close: %v", err)
		}
		if second.ID != first.ID {
			break
		}
		if time.Now().After(deadline) {
			t.Fatal("timed out waiting for EnsureConnection to redial after the first connection closed")
		}
		time.Sleep(time.Millisecond)
	}
}
