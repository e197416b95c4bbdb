// Copyright (C) 2014 The Syncthing Authors.
//
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this file,
// You can obtain one at https://mozilla.org/MPL/2.0/.

package wire

import (
	"bufio"
	"bytes"
	"fmt"
	"io"

	"github.com/coherence-go/extend/internal/bufferpool"
	"github.com/coherence-go/extend/pof"
)

// MaxFrameLength bounds a single frame's body so a corrupt or hostile
// peer advertising an enormous length can't exhaust memory; it comfortably
// exceeds any legitimate named-cache payload.
const MaxFrameLength = 64 << 20

// WriteFrame writes one length-prefixed frame: a varint byte length
// followed by exactly that many bytes. body is normally the
// result of EncodeEnvelope.
func WriteFrame(w io.Writer, body []byte) error {
	bw, ok := w.(*bufio.Writer)
	if !ok {
		bw = bufio.NewWriter(w)
	}
	if err := pof.WriteUvarint(bw, uint64(len(body))); err != nil {
		return fmt.Errorf("wire: write frame: %w", err)
	}
	if _, err := bw.Write(body); err != nil {
		return fmt.Errorf("wire: write frame: %w", err)
	}
	return bw.Flush()
}

// ReadFrame reads one length-prefixed frame's body, allocating a fresh
// buffer for it. Production callers on a hot receive path should prefer
// ReadFrameWithPool.
func ReadFrame(r *bufio.Reader) ([]byte, error) {
	return ReadFrameWithPool(nil, r)
}

// ReadFrameWithPool reads one length-prefixed frame's body into a buffer
// drawn from pool (bufferpool.Default if pool is nil). The caller must
// return the buffer with pool.Put once it is done with the bytes — safe
// to do as soon as DecodeMessage has returned, since every decoded
// string/binary value is copied out rather than aliased into this buffer.
func ReadFrameWithPool(pool *bufferpool.Pool, r *bufio.Reader) ([]byte, error) {
	if pool == nil {
		pool = bufferpool.Default
	}
	n, err := pof.ReadUvarint(r)
	if err != nil {
		return nil, fmt.Errorf("wire: read frame length: %w", err)
	}
	if n > MaxFrameLength {
		return nil, fmt.Errorf("wire: frame length %d exceeds maximum %d", n, MaxFrameLength)
	}
	buf := pool.Get(int(n))
	if _, err := io.ReadFull(r, buf); err != nil {
		pool.Put(buf)
		return nil, fmt.Errorf("wire: read frame body: %w", err)
	}
	return buf, nil
}

// EncodeMessage renders a fully framed wire chunk for one message on one
// channel: length-prefixed envelope, with the message's own Encode
// producing the envelope body.
func EncodeMessage(channelID uint64, msg Message) ([]byte, error) {
	return EncodeMessageWithPool(nil, channelID, msg)
}

// EncodeMessageWithPool is EncodeMessage, but draws the message body's
// scratch buffer from pool (bufferpool.Default if pool is nil) instead of
// growing a fresh one. The scratch buffer is returned to the pool before
// this function returns, since EncodeEnvelope copies body.Bytes() rather
// than aliasing it into the returned frame.
func EncodeMessageWithPool(pool *bufferpool.Pool, channelID uint64, msg Message) ([]byte, error) {
	if pool == nil {
		pool = bufferpool.Default
	}
	bodyBuf := pool.Get(256)
	defer pool.Put(bodyBuf)
	body := bytes.NewBuffer(bodyBuf[:0])
	w := pof.NewWriter(body, nil)
	if err := msg.Encode(w); err != nil {
		return nil, fmt.Errorf("wire: encode message %d: %w", msg.TypeID(), err)
	}
	if err := w.Flush(); err != nil {
		return nil, err
	}
	var env bytes.Buffer
	if err := EncodeEnvelope(&env, Envelope{
		ChannelID:     channelID,
		MessageTypeID: uint64(msg.TypeID()),
		Body:          body.Bytes(),
	}); err != nil {
		return nil, err
	}
	var frame bytes.Buffer
	if err := WriteFrame(&frame, env.Bytes()); err != nil {
		return nil, err
	}
	return frame.Bytes(), nil
}

// DecodeMessage decodes one frame's body (as returned by ReadFrame) into
// its envelope and, using factory, the concrete Message it carries.
func DecodeMessage(frameBody []byte, factory MessageFactory) (channelID uint64, msg Message, err error) {
	env, err := DecodeEnvelope(bytes.NewReader(frameBody))
	if err != nil {
		return 0, nil, err
	}
	msg, err = factory.Create(int32(env.MessageTypeID))
	if err != nil {
		return env.ChannelID, nil, err
	}
	r := pof.NewReader(bytes.NewReader(env.Body), nil)
	if err := msg.Decode(r); err != nil {
		return env.ChannelID, nil, fmt.Errorf("wire: decode message %d: %w", env.MessageTypeID, err)
	}
	return env.ChannelID, msg, nil
}
