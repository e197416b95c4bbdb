// Copyright (C) 2014 The Syncthing Authors.
//
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this file,
// You can obtain one at https://mozilla.org/MPL/2.0/.

package pof

import (
	"fmt"
	"io"
	"math"
)

// Array is the decoded form of a self-describing or uniform POF array
// whose concrete Go element types were not known ahead of
// time. It is a pointer type so it has a stable identity across decode,
// letting the reference table support cyclic graphs (see ReadValue).
type Array struct{ Elements []any }

// Collection is decoded identically to Array but distinguishes the
// collection intrinsic from the array intrinsic on re-encode.
type Collection struct{ Elements []any }

// Map is the decoded form of a self-describing POF map.
type Map struct{ Entries []MapEntry }

// UserValue is the decoded form of a user type for which no concrete Go
// type was registered in the Context: its properties are preserved
// generically, and its remainder bytes verbatim. The Writer has no
// generic encoder for it: WriteAny looks its TypeID up in the Context
// like any other UserType and returns ErrUnknownType when that id is
// not registered.
type UserValue struct {
	TypeID      TypeID
	DataVersion int32
	Properties  map[int32]any
	Remainder   []byte
}

func (u *UserValue) PofTypeID() TypeID { return u.TypeID }

// ReadValue decodes the next self-describing value, resolving
// identity/reference markers and dispatching user types to their
// registered decoder when the Reader carries a Context.
func (r *Reader) ReadValue() (any, error) {
	ind, err := r.readIndicator()
	if err != nil {
		return nil, err
	}
	return r.readValueForIndicator(ind)
}

func (r *Reader) readValueForIndicator(ind TypeID) (any, error) {
	switch ind {
	case tReference:
		id, err := readVarint(r.br)
		if err != nil {
			return nil, err
		}
		v, ok := r.refs[int32(id)]
		if !ok {
			return nil, fmt.Errorf("pof: reference to unread id %d: %w", id, ErrReference)
		}
		return v, nil
	case tIdentity:
		id, err := readVarint(r.br)
		if err != nil {
			return nil, err
		}
		inner, err := r.readIndicator()
		if err != nil {
			return nil, err
		}
		return r.readIdentifiedValue(int32(id), inner)
	default:
		return r.decodeByIndicator(ind)
	}
}

// readIdentifiedValue allocates the composite/user value for a freshly
// assigned identity, registers it in the reference table immediately
// (so a cycle back to this id resolves even mid-decode), and then fills
// it in place.
func (r *Reader) readIdentifiedValue(id int32, ind TypeID) (any, error) {
	switch {
	case ind == tArray:
		a := &Array{}
		r.refs[id] = a
		n, err := readUvarint(r.br)
		if err != nil {
			return nil, err
		}
		a.Elements, err = r.readElements(int(n))
		return a, err
	case ind == tCollection:
		c := &Collection{}
		r.refs[id] = c
		n, err := readUvarint(r.br)
		if err != nil {
			return nil, err
		}
		c.Elements, err = r.readElements(int(n))
		return c, err
	case ind == tUniformArray || ind == tUniformCollection:
		holder := &Array{}
		r.refs[id] = holder
		elemInd, err := r.readIndicator()
		if err != nil {
			return nil, err
		}
		n, err := readUvarint(r.br)
		if err != nil {
			return nil, err
		}
		elems := make([]any, n)
		for i := range elems {
			elems[i], err = r.readValueForIndicator(elemInd)
			if err != nil {
				return nil, err
			}
		}
		holder.Elements = elems
		if ind == tUniformCollection {
			c := &Collection{Elements: elems}
			r.refs[id] = c
			return c, nil
		}
		return holder, nil
	case ind == tMap || ind == tUniformKeysMap || ind == tUniformMap:
		m := &Map{}
		r.refs[id] = m
		entries, err := r.readMapEntries(ind)
		m.Entries = entries
		return m, err
	case ind == tSparseArray:
		a := &SparseArray{}
		r.refs[id] = a
		return a, r.fillSparseArray(a)
	case ind >= 0:
		return r.readUserTypeBody(id, ind)
	default:
		// An intrinsic was wrapped in an identity marker; intrinsics are
		// not reference-capable on encode, but a permissive decoder still
		// accepts it rather than failing a round trip.
		return r.decodeByIndicator(ind)
	}
}

func (r *Reader) readElements(n int) ([]any, error) {
	out := make([]any, n)
	for i := range out {
		v, err := r.ReadValue()
		if err != nil {
			return nil, err
		}
		out[i] = v
	}
	return out, nil
}

func (r *Reader) readMapEntries(ind TypeID) ([]MapEntry, error) {
	var keyInd, valInd TypeID
	haveKeyInd, haveValInd := false, false
	if ind == tUniformKeysMap || ind == tUniformMap {
		var err error
		keyInd, err = r.readIndicator()
		if err != nil {
			return nil, err
		}
		haveKeyInd = true
	}
	if ind == tUniformMap {
		var err error
		valInd, err = r.readIndicator()
		if err != nil {
			return nil, err
		}
		haveValInd = true
	}
	n, err := readUvarint(r.br)
	if err != nil {
		return nil, err
	}
	entries := make([]MapEntry, n)
	for i := range entries {
		var k, v any
		if haveKeyInd {
			k, err = r.readValueForIndicator(keyInd)
		} else {
			k, err = r.ReadValue()
		}
		if err != nil {
			return nil, err
		}
		if haveValInd {
			v, err = r.readValueForIndicator(valInd)
		} else {
			v, err = r.ReadValue()
		}
		if err != nil {
			return nil, err
		}
		entries[i] = MapEntry{Key: k, Value: v}
	}
	return entries, nil
}

func (r *Reader) fillSparseArray(a *SparseArray) error {
	length, err := readUvarint(r.br)
	if err != nil {
		return err
	}
	a.Length = int32(length)
	a.Entries = make(map[int32]any)
	for {
		idx, err := readVarint(r.br)
		if err != nil {
			return err
		}
		if idx == terminatorIndex {
			return nil
		}
		v, err := r.ReadValue()
		if err != nil {
			return err
		}
		a.Entries[int32(idx)] = v
	}
}

func (r *Reader) readUserTypeBody(id int32, typeID TypeID) (any, error) {
	if r.ctx != nil {
		if reg, ok := r.ctx.lookup(typeID); ok {
			v, err := reg.decode(r, func(shell any) { r.refs[id] = shell })
			if err != nil {
				return nil, err
			}
			r.refs[id] = v
			return v, nil
		}
	}
	u := &UserValue{TypeID: typeID, Properties: make(map[int32]any)}
	r.refs[id] = u
	dv, err := r.ReadUserTypeHeader()
	if err != nil {
		return nil, err
	}
	u.DataVersion = dv
	for {
		idx, atEnd, err := r.ReadPropertyIndex()
		if err != nil {
			return nil, err
		}
		if atEnd {
			u.Remainder, err = r.ReadRemainder()
			return u, err
		}
		v, err := r.ReadValue()
		if err != nil {
			return nil, err
		}
		u.Properties[idx] = v
	}
}

// decodeByIndicator decodes a value whose indicator has already been
// read and which is not wrapped in an identity/reference marker (either
// reference tracking is off, or the indicator names a non-reference-
// capable intrinsic).
func (r *Reader) decodeByIndicator(ind TypeID) (any, error) {
	switch ind {
	case tNilValue:
		return nil, nil
	case tBoolean:
		b, err := r.br.ReadByte()
		return b != 0, err
	case tInt8:
		v, err := readVarint(r.br)
		return int8(v), err
	case tInt16:
		v, err := readVarint(r.br)
		return int16(v), err
	case tInt32:
		v, err := readVarint(r.br)
		return int32(v), err
	case tInt64:
		return readVarint(r.br)
	case tInt128:
		return r.readBytesRaw()
	case tFloat32:
		var buf [4]byte
		if _, err := io.ReadFull(r.br, buf[:]); err != nil {
			return nil, fmt.Errorf("pof: %w", ErrIO)
		}
		return math.Float32frombits(bitsGetUint32(buf[:])), nil
	case tFloat64:
		var buf [8]byte
		if _, err := io.ReadFull(r.br, buf[:]); err != nil {
			return nil, fmt.Errorf("pof: %w", ErrIO)
		}
		return math.Float64frombits(bitsGetUint64(buf[:])), nil
	case tDecimal32, tDecimal64, tDecimal128:
		scale, err := readVarint(r.br)
		if err != nil {
			return nil, err
		}
		unscaled, err := r.readBytesRaw()
		if err != nil {
			return nil, err
		}
		width := map[TypeID]int{tDecimal32: 32, tDecimal64: 64, tDecimal128: 128}[ind]
		return Decimal{Unscaled: unscaled, Scale: int32(scale), Width: width}, nil
	case tChar:
		v, err := readVarint(r.br)
		return rune(v), err
	case tString:
		return r.readRawString()
	case tBinary:
		return r.readBytesRaw()
	case tDate:
		return r.readDateRaw()
	case tTime:
		return r.readTimeRaw()
	case tDateTime:
		d, err := r.readDateRaw()
		if err != nil {
			return nil, err
		}
		t, err := r.readTimeRaw()
		return DateTime{Date: d, Time: t}, err
	case tYearMonthInterval:
		vs, err := readVarints(r.br, 2)
		if err != nil {
			return nil, err
		}
		return YearMonthInterval{Years: int32(vs[0]), Months: int32(vs[1])}, nil
	case tDayTimeInterval:
		vs, err := readVarints(r.br, 5)
		if err != nil {
			return nil, err
		}
		return DayTimeInterval{Days: int32(vs[0]), Hours: int32(vs[1]), Minutes: int32(vs[2]), Seconds: int32(vs[3]), Nanos: int32(vs[4])}, nil
	case tTimeInterval:
		vs, err := readVarints(r.br, 4)
		if err != nil {
			return nil, err
		}
		return TimeInterval{Hours: int32(vs[0]), Minutes: int32(vs[1]), Seconds: int32(vs[2]), Nanos: int32(vs[3])}, nil
	case tArray:
		n, err := readUvarint(r.br)
		if err != nil {
			return nil, err
		}
		elems, err := r.readElements(int(n))
		return &Array{Elements: elems}, err
	case tCollection:
		n, err := readUvarint(r.br)
		if err != nil {
			return nil, err
		}
		elems, err := r.readElements(int(n))
		return &Collection{Elements: elems}, err
	case tUniformArray, tUniformCollection:
		elemInd, err := r.readIndicator()
		if err != nil {
			return nil, err
		}
		n, err := readUvarint(r.br)
		if err != nil {
			return nil, err
		}
		elems := make([]any, n)
		for i := range elems {
			elems[i], err = r.readValueForIndicator(elemInd)
			if err != nil {
				return nil, err
			}
		}
		if ind == tUniformCollection {
			return &Collection{Elements: elems}, nil
		}
		return &Array{Elements: elems}, nil
	case tMap, tUniformKeysMap, tUniformMap:
		entries, err := r.readMapEntries(ind)
		return &Map{Entries: entries}, err
	case tSparseArray:
		a := &SparseArray{}
		return a, r.fillSparseArray(a)
	default:
		if ind >= 0 {
			// No identity wrapper (reference tracking disabled): still
			// dispatch to the registered decoder or fall back generically,
			// but without assigning a reference id.
			if r.ctx != nil {
				if reg, ok := r.ctx.lookup(ind); ok {
					return reg.decode(r, func(any) {})
				}
			}
			u := &UserValue{TypeID: ind, Properties: make(map[int32]any)}
			dv, err := r.ReadUserTypeHeader()
			if err != nil {
				return nil, err
			}
			u.DataVersion = dv
			for {
				idx, atEnd, err := r.ReadPropertyIndex()
				if err != nil {
					return nil, err
				}
				if atEnd {
					u.Remainder, err = r.ReadRemainder()
					return u, err
				}
				v, err := r.ReadValue()
				if err != nil {
					return nil, err
				}
				u.Properties[idx] = v
			}
		}
		return nil, fmt.Errorf("pof: %w: indicator %d", ErrUnknownType, ind)
	}
}
