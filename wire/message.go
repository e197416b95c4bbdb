// Copyright (C) 2014 The Syncthing Authors.
//
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this file,
// You can obtain one at https://mozilla.org/MPL/2.0/.

// Package wire implements the message envelope and per-protocol message
// factory described for the cache client: a fixed (channel-id,
// message-type-id) prefix followed by a POF-encoded body, and the
// mapping from a numeric type-id to a freshly constructed message
// instance. It generalizes internal/protocol/header.go's fixed
// bit-packed header to the two independent varints the wire format
// actually specifies, and replaces internal/protocol/message.go's
// calmh/xdr Writer/Reader pair with the equivalent pof.Writer/pof.Reader
// pair.
package wire

import (
	"context"

	"github.com/coherence-go/extend/pof"
)

// Message is the contract every request, response and event type on the
// wire satisfies. Encode/Decode must agree on a fixed schema per
// (TypeID, protocol version) pair; see Versioned for messages whose
// schema grew across versions.
type Message interface {
	TypeID() int32
	Encode(w *pof.Writer) error
	Decode(r *pof.Reader) error
}

// Versioned is implemented by a Message whose wire schema has fields
// introduced after version 1; ImplVersion reports the schema version
// this binary understands, used to decide which optional fields a
// Decode call should expect (gating is impl-version >= k, inclusive).
type Versioned interface {
	Message
	ImplVersion() int32
}

// Runnable is implemented by request messages that execute server-bound
// work when received; most response types don't implement it since they
// carry only data. ctx carries the receiving channel via channel.FromContext.
type Runnable interface {
	Run(ctx context.Context) (Message, error)
}

// OrderedMessage marks a message that must be dispatched on the channel's
// single ordered-delivery goroutine, in wire order, rather than handed to
// the shared worker pool. Cache events implement this; most responses do
// not.
type OrderedMessage interface {
	Message
	ExecuteInOrder() bool
}

// Request is implemented by every message that carries a RequestHeader:
// the channel assigns and reads back the request id through this
// interface rather than each message type hand-rolling the bookkeeping.
type Request interface {
	Message
	SetRequestHeader(RequestHeader)
	GetRequestHeader() RequestHeader
}

// Response is implemented by every message that carries a
// ResponseHeader, so the channel can correlate it to its PendingRequest
// without knowing the concrete response type.
type Response interface {
	Message
	GetResponseHeader() ResponseHeader
}

// BaseRequest gives a concrete request message its RequestHeader
// bookkeeping by embedding; most named-cache requests embed this instead
// of repeating the three-line accessor pair.
type BaseRequest struct {
	Header RequestHeader
}

func (b *BaseRequest) SetRequestHeader(h RequestHeader) { b.Header = h }
func (b *BaseRequest) GetRequestHeader() RequestHeader  { return b.Header }

// BaseResponse gives a concrete response message its ResponseHeader
// bookkeeping by embedding.
type BaseResponse struct {
	Header ResponseHeader
}

func (b *BaseResponse) GetResponseHeader() ResponseHeader { return b.Header }
