// Copyright (C) 2014 The Syncthing Authors.
//
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this file,
// You can obtain one at https://mozilla.org/MPL/2.0/.

package pof

import "fmt"

// EncodeFunc writes a registered user type's body, including its
// WriteUserTypeHeader/WriteProperty/WriteEnd sequence. v is always the
// concrete Go type the registration was made for.
type EncodeFunc func(w *Writer, v any) error

// DecodeFunc reads a registered user type's body, having already
// consumed its type-id indicator, and returns the concrete Go value.
// bind registers the shell value's identity in the reader's reference
// table as soon as it is allocated, before its properties are filled in
// — call it right after constructing the zero-valued instance so a
// cyclic back-reference encountered while reading its own properties
// resolves to that same instance instead of failing with ErrReference.
type DecodeFunc func(r *Reader, bind func(any)) (any, error)

// Descriptor names one registered user type.
type Descriptor struct {
	TypeID      TypeID
	ImplVersion int32
}

type registration struct {
	desc   Descriptor
	encode EncodeFunc
	decode DecodeFunc
}

// Context is a serializer configuration: the set of registered user
// types available for encode/decode dispatch, and whether the
// identity/reference protocol is applied to composite and user-type
// values. One Context is normally shared by every Writer/Reader for a
// connection, mirroring how a single serializer is negotiated once per
// channel.
type Context struct {
	trackReferences bool
	types           map[TypeID]registration
}

// NewContext creates a Context. trackReferences enables the
// identity/reference wire protocol for composite and user-type values;
// disable it only for streams known never to share object graphs, since
// turning it off is a pure space optimization, not a correctness one.
func NewContext(trackReferences bool) *Context {
	return &Context{trackReferences: trackReferences, types: make(map[TypeID]registration)}
}

// Register associates a user type id with its encode/decode functions.
// Register is not safe to call concurrently with encoding or decoding;
// register every type before first use.
func (c *Context) Register(desc Descriptor, encode EncodeFunc, decode DecodeFunc) error {
	if desc.TypeID < 0 {
		return fmt.Errorf("pof: Register: type id must be non-negative, got %d", desc.TypeID)
	}
	if _, exists := c.types[desc.TypeID]; exists {
		return fmt.Errorf("pof: Register: type id %d already registered", desc.TypeID)
	}
	c.types[desc.TypeID] = registration{desc: desc, encode: encode, decode: decode}
	return nil
}

func (c *Context) lookup(id TypeID) (registration, bool) {
	reg, ok := c.types[id]
	return reg, ok
}

// TrackReferences reports whether c applies the identity/reference
// protocol to composite and user-type values.
func (c *Context) TrackReferences() bool { return c.trackReferences }
