// Copyright (C) 2014 The Syncthing Authors.
//
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this file,
// You can obtain one at https://mozilla.org/MPL/2.0/.

// Package transport owns the physical byte stream underneath every
// channel.Channel: framing, the handshake, channel negotiation, the
// keep-alive ping loop, and the supervision tree that isolates each of
// those from the others. It generalizes cmd/syncthing/connections.go's
// dial-and-hand-off loop from a one-connection-per-device TLS dialer to
// a single long-lived multiplexed stream, and grounds its suture
// wiring on internal/db/sqlite/db_service.go's Serve(ctx) error /
// String() suture.Service pair (the modern suture/v4 idiom, as opposed
// to the pre-restructure lib/suturewrap wrapper).
package transport

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"net"
	"sync/atomic"
	"time"

	"github.com/thejerf/suture/v4"

	"github.com/coherence-go/extend/channel"
	"github.com/coherence-go/extend/internal/bufferpool"
	"github.com/coherence-go/extend/internal/workerpool"
	"github.com/coherence-go/extend/logger"
	"github.com/coherence-go/extend/pof"
	"github.com/coherence-go/extend/protocolerr"
	"github.com/coherence-go/extend/wire"

	"github.com/puzpuzpuz/xsync/v3"
)

// ProtocolVersion is the version this client negotiates during the
// handshake (§4.4).
const ProtocolVersion int32 = 1

// Connection is one physical, long-lived byte stream carrying every
// logical channel.Channel multiplexed over it.
type Connection struct {
	ID                uint64
	NegotiatedEdition string

	opts Options
	conn net.Conn

	channels      *xsync.MapOf[uint64, *channel.Channel]
	sendQueue     chan outboundFrame
	lastHeard     atomic.Int64
	closed        atomic.Bool
	closeErr      atomic.Pointer[error]
	supervisor    *suture.Supervisor
	cancel        context.CancelFunc
	log           *logger.Facility
	metrics       *connMetrics
	onClosed      func(error)
	workers       *workerpool.Pool
}

type outboundFrame struct {
	frame []byte
	done  chan error
}

// Dial opens a TCP connection to opts.RemoteAddress and performs the
// protocol handshake, returning a Connection ready for channel.Open.
func Dial(ctx context.Context, opts Options) (*Connection, error) {
	var d net.Dialer
	conn, err := d.DialContext(ctx, "tcp", opts.RemoteAddress)
	if err != nil {
		return nil, &protocolerr.TransportError{Cause: err}
	}
	return newConnection(ctx, conn, opts)
}

func newConnection(ctx context.Context, conn net.Conn, opts Options) (*Connection, error) {
	l := opts.Logger
	if l == nil {
		l = logger.New()
	}
	svCtx, cancel := context.WithCancel(context.Background())
	c := &Connection{
		conn:       conn,
		opts:       opts,
		channels:   xsync.NewMapOf[uint64, *channel.Channel](),
		sendQueue:  make(chan outboundFrame, opts.SendQueueDepth),
		supervisor: suture.New("connection", suture.Spec{}),
		cancel:     cancel,
		log:        l.NewFacility("transport", "connection lifecycle"),
		metrics:    newConnMetrics(),
		workers:    workerpool.New(opts.WorkerThreads),
	}
	c.lastHeard.Store(time.Now().UnixNano())

	ch0 := channel.New(channel.ControlChannelID, c, channel.Options{
		Protocol:       "control",
		Factory:        controlFactory(),
		DefaultTimeout: opts.RequestTimeout,
		Workers:        c.workers,
		Logger:         l,
	})
	c.channels.Store(channel.ControlChannelID, ch0)

	c.supervisor.Add(runnableService{name: "receive", run: c.receiveLoop})
	c.supervisor.Add(runnableService{name: "send", run: c.sendLoop})
	c.supervisor.Add(runnableService{name: "ping", run: c.pingLoop})
	c.supervisor.Add(runnableService{name: "ping-monitor", run: c.pingMonitor})
	go func() {
		if err := c.supervisor.Serve(svCtx); err != nil && !errors.Is(err, context.Canceled) {
			c.fail(&protocolerr.TransportError{Cause: err})
		}
	}()

	if err := c.handshake(ctx, ch0); err != nil {
		c.Close(err)
		return nil, err
	}
	c.metrics.opened.Inc()
	return c, nil
}

func (c *Connection) handshake(ctx context.Context, ch0 *channel.Channel) error {
	req := &OpenConnectionRequest{
		ProtocolVersion: ProtocolVersion,
		Edition:         c.opts.Edition,
		IdentityToken:   c.opts.IdentityToken,
	}
	resp, err := ch0.Request(ctx, req, c.opts.RequestTimeout)
	if err != nil {
		return err
	}
	ocr, ok := resp.(*OpenConnectionResponse)
	if !ok {
		return &protocolerr.ProtocolError{Cause: fmt.Errorf("transport: unexpected handshake response type %T", resp)}
	}
	if !ocr.Accepted {
		return &protocolerr.ProtocolError{Cause: fmt.Errorf("transport: connection rejected by peer")}
	}
	c.ID = ocr.ConnectionID
	c.NegotiatedEdition = ocr.NegotiatedEdition
	return nil
}

// OpenChannel negotiates a new logical channel for protocol, bound to
// receiver and serialized with serializer.
func (c *Connection) OpenChannel(ctx context.Context, protocol, principal string, factory wire.MessageFactory, serializer *pof.Context, receiver channel.Receiver) (*channel.Channel, error) {
	ch0, ok := c.channels.Load(channel.ControlChannelID)
	if !ok {
		return nil, &protocolerr.UserError{Cause: fmt.Errorf("transport: connection has no control channel")}
	}
	req := &OpenChannelRequest{Protocol: protocol, Principal: principal}
	resp, err := ch0.Request(ctx, req, c.opts.RequestTimeout)
	if err != nil {
		return nil, err
	}
	ocr, ok := resp.(*OpenChannelResponse)
	if !ok {
		return nil, &protocolerr.ProtocolError{Cause: fmt.Errorf("transport: unexpected open-channel response type %T", resp)}
	}
	if ocr.Header.IsFailure {
		return nil, &protocolerr.RequestError{Exception: &protocolerr.PortableException{
			ClassName: "ChannelOpenException", Message: "peer refused protocol " + protocol,
		}}
	}

	ch := channel.New(ocr.ChannelID, c, channel.Options{
		Protocol:       protocol,
		Principal:      principal,
		Serializer:     serializer,
		Factory:        factory,
		Receiver:       receiver,
		DefaultTimeout: c.opts.RequestTimeout,
		Workers:        c.workers,
		Logger:         c.opts.Logger,
	})
	c.channels.Store(ocr.ChannelID, ch)
	return ch, nil
}

// bufferPool returns the connection's configured scratch-buffer pool, or
// the process-wide default if none was supplied via WithBufferPool.
func (c *Connection) bufferPool() *bufferpool.Pool {
	if c.opts.BufferPool != nil {
		return c.opts.BufferPool
	}
	return bufferpool.Default
}

// SendFrame implements channel.Sender: it frames msg and queues it on
// the single dedicated sender goroutine, preserving the single-writer
// invariant (§4.4) no matter how many channels send concurrently.
func (c *Connection) SendFrame(channelID uint64, msg wire.Message) error {
	if c.closed.Load() {
		return &protocolerr.TransportError{Cause: fmt.Errorf("transport: connection closed")}
	}
	frame, err := wire.EncodeMessageWithPool(c.bufferPool(), channelID, msg)
	if err != nil {
		return &protocolerr.ProtocolError{Cause: err}
	}
	done := make(chan error, 1)
	// Blocks once the queue is full, applying backpressure to the caller
	// rather than dropping the frame.
	c.sendQueue <- outboundFrame{frame: frame, done: done}
	return <-done
}

func (c *Connection) sendLoop(ctx context.Context) error {
	w := bufio.NewWriter(c.conn)
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case of := <-c.sendQueue:
			_, err := w.Write(of.frame)
			if err == nil {
				err = w.Flush()
			}
			of.done <- err
			if err != nil {
				// Close waits for the worker pool, whose goroutines may be
				// blocked handing frames to this loop, so it runs apart.
				go c.fail(&protocolerr.TransportError{Cause: err})
				return err
			}
		}
	}
}

func (c *Connection) receiveLoop(ctx context.Context) error {
	r := bufio.NewReaderSize(c.conn, c.opts.ReadBufferSize)
	pool := c.bufferPool()
	for {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		body, err := wire.ReadFrameWithPool(pool, r)
		if err != nil {
			c.fail(&protocolerr.TransportError{Cause: err})
			return err
		}
		c.lastHeard.Store(time.Now().UnixNano())

		env, err := wire.DecodeEnvelope(bytes.NewReader(body))
		if err != nil {
			c.log.Debugf("dropping unparsable frame: %v", err)
			pool.Put(body)
			continue
		}
		ch, ok := c.channels.Load(env.ChannelID)
		if !ok {
			c.log.Debugf("frame for unknown channel %d dropped", env.ChannelID)
			pool.Put(body)
			continue
		}
		// Every decoded string/binary value is copied out of body by
		// pof.Reader, so the buffer is safe to return to the pool as soon
		// as decode returns, before the message is ever dispatched.
		_, msg, err := wire.DecodeMessage(body, ch.Factory())
		pool.Put(body)
		if err != nil {
			c.log.Debugf("dropping undecodable message on channel %d: %v", env.ChannelID, err)
			continue
		}
		ch.HandleInbound(ctx, msg)
	}
}

func (c *Connection) pingLoop(ctx context.Context) error {
	if c.opts.PingInterval <= 0 {
		<-ctx.Done()
		return ctx.Err()
	}
	t := time.NewTicker(c.opts.PingInterval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-t.C:
			ch0, ok := c.channels.Load(channel.ControlChannelID)
			if !ok {
				continue
			}
			if _, err := ch0.SendRequest(ctx, &PingRequest{}); err != nil {
				c.log.Debugf("ping send failed: %v", err)
			}
		}
	}
}

func (c *Connection) pingMonitor(ctx context.Context) error {
	if c.opts.PingTimeout <= 0 {
		<-ctx.Done()
		return ctx.Err()
	}
	t := time.NewTicker(c.opts.PingTimeout / 2)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-t.C:
			last := time.Unix(0, c.lastHeard.Load())
			if time.Since(last) > c.opts.PingTimeout {
				err := &protocolerr.TimeoutError{Kind: protocolerr.TimeoutPing}
				c.fail(&protocolerr.TransportError{Cause: err})
				return err
			}
		}
	}
}

func (c *Connection) fail(err error) {
	c.Close(err)
}

// Close tears the connection down: every channel (including the
// control channel) has its pending requests cancelled with err, the
// underlying socket is closed, and the supervision tree is stopped.
// Close is idempotent.
func (c *Connection) Close(err error) {
	if !c.closed.CompareAndSwap(false, true) {
		return
	}
	if err == nil {
		err = &protocolerr.TransportError{Cause: fmt.Errorf("transport: connection closed")}
	}
	c.closeErr.Store(&err)
	c.channels.Range(func(id uint64, ch *channel.Channel) bool {
		ch.Close(err)
		return true
	})
	c.cancel()
	_ = c.conn.Close()
	c.workers.Close()
	c.metrics.opened.Dec()
	if c.onClosed != nil {
		c.onClosed(err)
	}
}

// IsClosed reports whether the connection has been closed.
func (c *Connection) IsClosed() bool { return c.closed.Load() }

// Err returns the error the connection was closed with, if any.
func (c *Connection) Err() error {
	if p := c.closeErr.Load(); p != nil {
		return *p
	}
	return nil
}

// OnClosed registers fn to run once, when the connection closes for any
// reason (including a caller-initiated Close). Used by initiator to
// notice a dead connection and re-dial.
func (c *Connection) OnClosed(fn func(error)) { c.onClosed = fn }

// runnableService adapts a plain Serve(ctx) error function into a
// suture.Service, the same minimal shape
// internal/db/sqlite/db_service.go's Service type exposes.
type runnableService struct {
	name string
	run  func(ctx context.Context) error
}

func (s runnableService) Serve(ctx context.Context) error { return s.run(ctx) }
func (s runnableService) String() string                  { return "transport." + s.name }
