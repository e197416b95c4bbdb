// Copyright (C) 2014 The Syncthing Authors.
//
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this file,
// You can obtain one at https://mozilla.org/MPL/2.0/.

// Package channel implements the logical, multiplexed request/response
// stream described for the cache client: request correlation by id, a
// pending-request table shared by the sender, the receiver and every
// cancellation path, and the execute-in-order dispatch rule cache
// events rely on. Request id allocation generalizes cid.Map's
// id-allocator idiom from node-id-to-connection-id to per-channel
// monotonic request ids; the pending table itself is a
// puzpuzpuz/xsync/v3 MapOf, the same lock-free concurrent map
// cmd/stdiscosrv/database.go uses for its own high-churn lookup table.
package channel

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/puzpuzpuz/xsync/v3"

	"github.com/coherence-go/extend/internal/deadline"
	"github.com/coherence-go/extend/internal/workerpool"
	"github.com/coherence-go/extend/logger"
	"github.com/coherence-go/extend/pof"
	"github.com/coherence-go/extend/protocolerr"
	"github.com/coherence-go/extend/wire"
)

// ControlChannelID is the connection's reserved channel for handshake
// and channel-open negotiation (§3, §4.4).
const ControlChannelID = 0

// Sender is the callback a Channel uses to actually put bytes on the
// wire; package transport implements it so channel has no import-time
// dependency on transport (avoiding an import cycle, since transport
// owns the channels that use this interface).
type Sender interface {
	SendFrame(channelID uint64, msg wire.Message) error
}

// Receiver is the server-side (or peer-side) entity a channel is bound
// to: it services inbound requests and one-way messages. Named-cache
// listener dispatch, handshake negotiation on channel 0, and any other
// per-protocol behavior all implement this.
type Receiver interface {
	// Deliver handles one inbound message. For a Runnable request it
	// returns the response to send back (nil error, non-nil message); for
	// a one-way message or event it returns (nil, nil).
	Deliver(ctx context.Context, ch *Channel, msg wire.Message) (wire.Message, error)
}

// Channel is one logical, multiplexed stream over a connection.
type Channel struct {
	ID         uint64
	Protocol   string
	Principal  string
	Serializer *pof.Context

	sender  Sender
	factory wire.MessageFactory

	receiver Receiver
	attrs    *xsync.MapOf[string, any]
	pending  *xsync.MapOf[uint64, *PendingRequest]

	nextRequestID  atomic.Uint64
	closed         atomic.Bool
	defaultTimeout time.Duration

	ordered     chan orderedWork
	orderedDone chan struct{}
	workers     *workerpool.Pool

	log *logger.Facility

	metrics *channelMetrics
}

type orderedWork struct {
	ctx context.Context
	msg wire.Message
}

// Options configures a new Channel.
type Options struct {
	Protocol       string
	Principal      string
	Serializer     *pof.Context
	Factory        wire.MessageFactory
	Receiver       Receiver
	DefaultTimeout time.Duration
	Workers        *workerpool.Pool
	Logger         *logger.Logger
}

// New creates a Channel bound to sender, ready to send and receive.
func New(id uint64, sender Sender, opts Options) *Channel {
	l := opts.Logger
	if l == nil {
		l = logger.New()
	}
	workers := opts.Workers
	if workers == nil {
		workers = workerpool.New(0)
	}
	c := &Channel{
		ID:             id,
		Protocol:       opts.Protocol,
		Principal:      opts.Principal,
		Serializer:     opts.Serializer,
		sender:         sender,
		factory:        opts.Factory,
		receiver:       opts.Receiver,
		attrs:          xsync.NewMapOf[string, any](),
		pending:        xsync.NewMapOf[uint64, *PendingRequest](),
		defaultTimeout: opts.DefaultTimeout,
		ordered:        make(chan orderedWork, 256),
		orderedDone:    make(chan struct{}),
		workers:        workers,
		log:            l.NewFacility("channel", "channel dispatch"),
		metrics:        newChannelMetrics(),
	}
	go c.runOrdered()
	return c
}

// Attributes returns c's attribute bag, a place for the embedding
// protocol (named-cache, in particular) to stash per-channel state such
// as a listener registry without growing the Channel type itself.
func (c *Channel) Attributes() *xsync.MapOf[string, any] { return c.attrs }

func (c *Channel) Factory() wire.MessageFactory { return c.factory }

// IsClosed reports whether the channel has been closed.
func (c *Channel) IsClosed() bool { return c.closed.Load() }

// Send transmits a one-way message; it fails if the channel is closed.
func (c *Channel) Send(ctx context.Context, msg wire.Message) error {
	if c.closed.Load() {
		return &protocolerr.UserError{Cause: fmt.Errorf("channel %d is closed", c.ID)}
	}
	if err := c.sender.SendFrame(c.ID, msg); err != nil {
		return &protocolerr.TransportError{Cause: err}
	}
	c.metrics.sent.Inc()
	return nil
}

// SendRequest assigns a fresh request id to req, registers a pending
// entry, and transmits it; it returns the pending entry as an awaitable
// handle without blocking for the response.
func (c *Channel) SendRequest(ctx context.Context, req wire.Request) (*PendingRequest, error) {
	if c.closed.Load() {
		return nil, &protocolerr.UserError{Cause: fmt.Errorf("channel %d is closed", c.ID)}
	}
	id := c.nextRequestID.Add(1)
	req.SetRequestHeader(wire.RequestHeader{RequestID: id})
	pr := newPendingRequest(id, c.defaultTimeout)
	c.pending.Store(id, pr)
	c.metrics.pending.Inc()

	if err := c.sender.SendFrame(c.ID, req); err != nil {
		c.pending.Delete(id)
		c.metrics.pending.Dec()
		werr := &protocolerr.TransportError{Cause: err}
		pr.Cancel(werr)
		return pr, werr
	}
	c.metrics.sent.Inc()
	return pr, nil
}

// Request is SendRequest followed by a wait for the response, honoring
// the timeout semantics spelled out in §4.3: 0 waits forever, -1 uses
// the channel's configured default.
func (c *Channel) Request(ctx context.Context, req wire.Request, timeout time.Duration) (wire.Message, error) {
	pr, err := c.SendRequest(ctx, req)
	if err != nil {
		return nil, err
	}
	return c.Await(ctx, pr, timeout)
}

// Await blocks until pr completes or timeout elapses, applying the same
// 0/-1 semantics as Request. It is split out from Request so callers that
// already hold a PendingRequest from SendRequest (e.g. to overlap several
// async sends) can wait on it separately.
func (c *Channel) Await(ctx context.Context, pr *PendingRequest, timeout time.Duration) (wire.Message, error) {
	if timeout == -1 {
		timeout = c.defaultTimeout
	}

	waitCtx := ctx
	var cancel context.CancelFunc
	if timeout > 0 {
		waitCtx, cancel = deadline.WithTimeout(ctx, timeout)
		defer cancel()
	}

	select {
	case <-pr.Done():
		// completeResponse already removed a normally-completed entry; this
		// only still finds one here when pr was cancelled by Close instead
		// (which also already removed it) or never registered at all, so
		// removeFromPending's ok check keeps either case from
		// double-decrementing the gauge.
		c.removeFromPending(pr.RequestID)
		return pr.Result()
	case <-waitCtx.Done():
		err := &protocolerr.TimeoutError{Kind: protocolerr.TimeoutRequest}
		if pr.Cancel(err) {
			c.removeFromPending(pr.RequestID)
			return nil, err
		}
		// Lost the race with a completer that beat the deadline; use its
		// result instead of reporting a spurious timeout.
		c.removeFromPending(pr.RequestID)
		return pr.Result()
	}
}

// removeFromPending deletes id from the pending table and decrements the
// gauge only if an entry was actually still present, so a request already
// removed by completeResponse or Close is never double-counted.
func (c *Channel) removeFromPending(id uint64) {
	if _, ok := c.pending.LoadAndDelete(id); ok {
		c.metrics.pending.Dec()
	}
}

// HandleInbound routes one message decoded off the wire for this
// channel: a Response is correlated to its pending entry, an
// OrderedMessage (e.g. a cache event) is queued for in-order delivery, a
// Runnable request is executed (on the worker pool) and its response
// sent back, and anything else is handed to the Receiver, also on the
// worker pool, as a one-way message.
func (c *Channel) HandleInbound(ctx context.Context, msg wire.Message) {
	if resp, ok := msg.(wire.Response); ok {
		c.completeResponse(resp)
		return
	}
	if ordered, ok := msg.(wire.OrderedMessage); ok && ordered.ExecuteInOrder() {
		select {
		case c.ordered <- orderedWork{ctx: ctx, msg: msg}:
		case <-c.orderedDone:
		}
		return
	}
	if runnable, ok := msg.(wire.Runnable); ok {
		c.workers.Submit(func() { c.run(ctx, runnable) })
		return
	}
	c.workers.Submit(func() { c.deliver(ctx, msg) })
}

func (c *Channel) run(ctx context.Context, runnable wire.Runnable) {
	resp, err := runnable.Run(ctx)
	if err != nil {
		c.log.Debugf("channel %d: running request: %v", c.ID, err)
		return
	}
	if resp == nil {
		return
	}
	if err := c.sender.SendFrame(c.ID, resp); err != nil {
		c.log.Debugf("channel %d: sending response: %v", c.ID, err)
	}
}

func (c *Channel) completeResponse(resp wire.Response) {
	hdr := resp.GetResponseHeader()
	pr, ok := c.pending.LoadAndDelete(hdr.RequestID)
	if !ok {
		c.log.Debugf("response for unknown request id %d on channel %d dropped", hdr.RequestID, c.ID)
		return
	}
	c.metrics.pending.Dec()
	if hdr.IsFailure {
		pr.Fail(&protocolerr.RequestError{Exception: responseException(resp)})
		return
	}
	pr.Succeed(resp)
}

// responseException extracts the portable exception a failure response
// carries, if the concrete type exposes one; otherwise a minimal
// exception is synthesized so callers always get a non-nil Exception.
func responseException(resp wire.Response) *protocolerr.PortableException {
	if carrier, ok := resp.(interface {
		Exception() *protocolerr.PortableException
	}); ok {
		if e := carrier.Exception(); e != nil {
			return e
		}
	}
	return &protocolerr.PortableException{ClassName: "RemoteException", Message: "request failed"}
}

func (c *Channel) runOrdered() {
	for {
		select {
		case w := <-c.ordered:
			c.deliver(w.ctx, w.msg)
		case <-c.orderedDone:
			return
		}
	}
}

func (c *Channel) deliver(ctx context.Context, msg wire.Message) {
	if c.receiver == nil {
		return
	}
	resp, err := c.receiver.Deliver(ctx, c, msg)
	if err != nil {
		c.log.Debugf("channel %d: receiver error for message %d: %v", c.ID, msg.TypeID(), err)
		return
	}
	if resp == nil {
		return
	}
	if err := c.sender.SendFrame(c.ID, resp); err != nil {
		c.log.Debugf("channel %d: sending response: %v", c.ID, err)
	}
}

// Close cancels every pending request with err and marks the channel
// closed; subsequent Send/SendRequest calls fail immediately.
func (c *Channel) Close(err error) {
	if !c.closed.CompareAndSwap(false, true) {
		return
	}
	close(c.orderedDone)
	c.pending.Range(func(id uint64, pr *PendingRequest) bool {
		pr.Cancel(err)
		c.removeFromPending(id)
		return true
	})
}
