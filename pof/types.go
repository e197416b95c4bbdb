// Copyright (C) 2014 The Syncthing Authors.
//
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this file,
// You can obtain one at https://mozilla.org/MPL/2.0/.

// Package pof implements the Portable Object Format: a self-describing,
// length-independent, reference-aware binary codec. Every value is
// preceded by a signed varint type indicator; negative indicators name
// one of the built-in intrinsics below, non-negative indicators name a
// user type registered in a Context (see context.go).
package pof

// TypeID identifies a user type registered in a Context. Negative values
// are reserved for intrinsics and must never be registered.
type TypeID int32

// Intrinsic type indicators. All are negative, matching the contract that
// non-negative indicators always name a user type.
const (
	tBoolean TypeID = -1 - iota
	tInt8
	tInt16
	tInt32
	tInt64
	tInt128
	tFloat32
	tFloat64
	tDecimal32
	tDecimal64
	tDecimal128
	tChar
	tString
	tDate
	tTime
	tDateTime
	tYearMonthInterval
	tDayTimeInterval
	tTimeInterval
	tBinary
	tArray
	tUniformArray
	tCollection
	tUniformCollection
	tMap
	tUniformKeysMap
	tUniformMap
	tSparseArray
	tIdentity
	tReference
	tNilValue
)

// Evolvable is implemented by user types that preserve unknown
// properties and a trailing remainder across a round trip, so that an
// older client talking to a newer cluster (or vice versa) does not
// silently drop data it does not understand. ImplVersion is the
// version of the type this binary was built against; DataVersion is
// the version actually present on the wire, which may be newer.
type Evolvable interface {
	ImplVersion() int32
	DataVersion() int32
	SetDataVersion(int32)
	Remainder() []byte
	SetRemainder([]byte)
}

// ResultFormat preserves container shape across a response's generic
// result payload, per the wire envelope's result-format field.
type ResultFormat int8

const (
	ResultGeneric ResultFormat = iota
	ResultCollection
	ResultMap
)

// TransformState classifies whether a CacheEvent has been, could be, or
// was never meant to be transformed by a server-side event transformer.
type TransformState int8

const (
	TransformStateNone TransformState = iota
	TransformStateTransformed
	TransformStateTransformable
)
