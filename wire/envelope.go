// Copyright (C) 2014 The Syncthing Authors.
//
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this file,
// You can obtain one at https://mozilla.org/MPL/2.0/.

package wire

import (
	"bufio"
	"fmt"
	"io"

	"github.com/coherence-go/extend/pof"
)

// Envelope is the fixed prefix that precedes every POF-encoded body on
// the wire: (channel-id, message-type-id), both plain unsigned varints.
// This is the direct generalization of
// internal/protocol/header.go's encodeHeader/decodeHeader, which packed
// the equivalent fields into fixed bit ranges of one uint32; POF's
// variable-length ids require two independent varints instead.
type Envelope struct {
	ChannelID     uint64
	MessageTypeID uint64
	Body          []byte
}

// EncodeEnvelope writes env's prefix followed by its already-POF-encoded
// body to w.
func EncodeEnvelope(w io.Writer, env Envelope) error {
	bw, ok := w.(*bufio.Writer)
	if !ok {
		bw = bufio.NewWriter(w)
	}
	if err := pof.WriteUvarint(bw, env.ChannelID); err != nil {
		return fmt.Errorf("wire: encode envelope: %w", err)
	}
	if err := pof.WriteUvarint(bw, env.MessageTypeID); err != nil {
		return fmt.Errorf("wire: encode envelope: %w", err)
	}
	if _, err := bw.Write(env.Body); err != nil {
		return fmt.Errorf("wire: encode envelope: %w", err)
	}
	return bw.Flush()
}

// DecodeEnvelope reads one envelope's prefix and takes the rest of r (a
// reader already limited to exactly one frame's body, see Frame) as the
// body.
func DecodeEnvelope(r io.Reader) (Envelope, error) {
	br, ok := r.(*bufio.Reader)
	if !ok {
		br = bufio.NewReader(r)
	}
	chID, err := pof.ReadUvarint(br)
	if err != nil {
		return Envelope{}, fmt.Errorf("wire: decode envelope: %w", err)
	}
	typeID, err := pof.ReadUvarint(br)
	if err != nil {
		return Envelope{}, fmt.Errorf("wire: decode envelope: %w", err)
	}
	body, err := io.ReadAll(br)
	if err != nil {
		return Envelope{}, fmt.Errorf("wire: decode envelope: %w", err)
	}
	return Envelope{ChannelID: chID, MessageTypeID: typeID, Body: body}, nil
}

// RequestHeader is the header every request message's POF body begins
// with: a monotonically assigned request id and an opaque identity
// token, never inspected client-side.
type RequestHeader struct {
	RequestID     uint64
	IdentityToken []byte
}

func (h RequestHeader) EncodeInto(w *pof.Writer) error {
	if err := w.WriteInt64(int64(h.RequestID)); err != nil {
		return err
	}
	return w.WriteBinary(h.IdentityToken)
}

func (h *RequestHeader) DecodeFrom(r *pof.Reader) error {
	id, err := r.ReadInt64()
	if err != nil {
		return err
	}
	h.RequestID = uint64(id)
	h.IdentityToken, err = r.ReadBinary()
	return err
}

// ResultFormat preserves container shape across a response's generic
// result payload, per the wire envelope's result-format field.
type ResultFormat = pof.ResultFormat

const (
	ResultGeneric    = pof.ResultGeneric
	ResultCollection = pof.ResultCollection
	ResultMap        = pof.ResultMap
)

// ResponseHeader is the header every response message's POF body begins
// with.
type ResponseHeader struct {
	RequestID    uint64
	IsFailure    bool
	ResultFormat ResultFormat
}

func (h ResponseHeader) EncodeInto(w *pof.Writer) error {
	if err := w.WriteInt64(int64(h.RequestID)); err != nil {
		return err
	}
	if err := w.WriteBool(h.IsFailure); err != nil {
		return err
	}
	return w.WriteInt8(int8(h.ResultFormat))
}

func (h *ResponseHeader) DecodeFrom(r *pof.Reader) error {
	id, err := r.ReadInt64()
	if err != nil {
		return err
	}
	h.RequestID = uint64(id)
	if h.IsFailure, err = r.ReadBool(); err != nil {
		return err
	}
	fmtByte, err := r.ReadInt8()
	if err != nil {
		return err
	}
	h.ResultFormat = ResultFormat(fmtByte)
	return nil
}
