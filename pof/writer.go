// Copyright (C) 2014 The Syncthing Authors.
//
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this file,
// You can obtain one at https://mozilla.org/MPL/2.0/.

package pof

import (
	"bufio"
	"fmt"
	"io"
	"math"
	"reflect"
)

// terminatorIndex marks the end of a user type's indexed properties; it
// is never a legal property index since those are always >= 0.
const terminatorIndex = -1

// Writer encodes a stream of self-describing POF values to an
// underlying io.Writer.
type Writer struct {
	bw  *bufio.Writer
	ctx *Context

	identities map[uintptr]int32
	nextID     int32
}

// NewWriter creates a Writer. ctx may be nil for encoding streams that
// never reference user types (e.g. the envelope header).
func NewWriter(w io.Writer, ctx *Context) *Writer {
	bw, ok := w.(*bufio.Writer)
	if !ok {
		bw = bufio.NewWriter(w)
	}
	return &Writer{bw: bw, ctx: ctx, identities: make(map[uintptr]int32)}
}

// Flush flushes any buffered bytes to the underlying writer.
func (w *Writer) Flush() error { return w.bw.Flush() }

func (w *Writer) writeIndicator(t TypeID) error { return writeVarint(w.bw, int64(t)) }

// --- reference tracking -----------------------------------------------

// identityKey returns a stable identity fingerprint for a reference-
// capable value (always a pointer, slice header, or map in this
// package's composite types), and whether it is eligible for tracking
// at all.
func identityKey(v any) (uintptr, bool) {
	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Ptr, reflect.Map:
		if rv.IsNil() {
			return 0, false
		}
		return rv.Pointer(), true
	case reflect.Slice:
		if rv.IsNil() {
			return 0, false
		}
		return rv.Pointer(), true
	default:
		return 0, false
	}
}

// writeRefCapable writes the identity/reference wrapper around a
// reference-capable value if the context has reference tracking
// enabled, then invokes body to write the value's own indicator and
// payload (on first occurrence only; a repeat occurrence only emits a
// reference and never calls body).
func (w *Writer) writeRefCapable(v any, body func() error) error {
	if w.ctx == nil || !w.ctx.trackReferences {
		return body()
	}
	key, ok := identityKey(v)
	if !ok {
		return body()
	}
	if id, seen := w.identities[key]; seen {
		if err := w.writeIndicator(tReference); err != nil {
			return err
		}
		return writeVarint(w.bw, int64(id))
	}
	id := w.nextID
	w.nextID++
	w.identities[key] = id
	if err := w.writeIndicator(tIdentity); err != nil {
		return err
	}
	if err := writeVarint(w.bw, int64(id)); err != nil {
		return err
	}
	return body()
}

// --- intrinsics ----------------------------------------------------------

func (w *Writer) WriteNil() error { return w.writeIndicator(tNilValue) }

func (w *Writer) WriteBool(v bool) error {
	if err := w.writeIndicator(tBoolean); err != nil {
		return err
	}
	var b byte
	if v {
		b = 1
	}
	return w.bw.WriteByte(b)
}

func (w *Writer) WriteInt8(v int8) error {
	if err := w.writeIndicator(tInt8); err != nil {
		return err
	}
	return writeVarint(w.bw, int64(v))
}

func (w *Writer) WriteInt16(v int16) error {
	if err := w.writeIndicator(tInt16); err != nil {
		return err
	}
	return writeVarint(w.bw, int64(v))
}

func (w *Writer) WriteInt32(v int32) error {
	if err := w.writeIndicator(tInt32); err != nil {
		return err
	}
	return writeVarint(w.bw, int64(v))
}

func (w *Writer) WriteInt64(v int64) error {
	if err := w.writeIndicator(tInt64); err != nil {
		return err
	}
	return writeVarint(w.bw, v)
}

// WriteInt128 writes a big integer's two's-complement big-endian bytes,
// length-prefixed.
func (w *Writer) WriteInt128(v []byte) error {
	if err := w.writeIndicator(tInt128); err != nil {
		return err
	}
	return w.writeBytes(v)
}

func (w *Writer) WriteFloat32(v float32) error {
	if err := w.writeIndicator(tFloat32); err != nil {
		return err
	}
	var buf [4]byte
	bitsPutUint32(buf[:], math.Float32bits(v))
	_, err := w.bw.Write(buf[:])
	return err
}

func (w *Writer) WriteFloat64(v float64) error {
	if err := w.writeIndicator(tFloat64); err != nil {
		return err
	}
	var buf [8]byte
	bitsPutUint64(buf[:], math.Float64bits(v))
	_, err := w.bw.Write(buf[:])
	return err
}

// Decimal is a scaled, arbitrary-precision decimal: value == Unscaled *
// 10^-Scale. Width names the POF decimal width (32, 64, or 128) used
// only for range checking.
type Decimal struct {
	Unscaled []byte // two's-complement big-endian
	Scale    int32
	Width    int
}

func (w *Writer) WriteDecimal(d Decimal) error {
	var ind TypeID
	switch d.Width {
	case 32:
		ind = tDecimal32
	case 64:
		ind = tDecimal64
	default:
		ind = tDecimal128
	}
	if err := w.writeIndicator(ind); err != nil {
		return err
	}
	if err := writeVarint(w.bw, int64(d.Scale)); err != nil {
		return err
	}
	return w.writeBytes(d.Unscaled)
}

func (w *Writer) WriteChar(v rune) error {
	if err := w.writeIndicator(tChar); err != nil {
		return err
	}
	return writeVarint(w.bw, int64(v))
}

func (w *Writer) WriteString(v string) error {
	if err := w.writeIndicator(tString); err != nil {
		return err
	}
	return w.writeRawString(v)
}

func (w *Writer) writeRawString(v string) error {
	if err := writeUvarint(w.bw, uint64(len(v))); err != nil {
		return err
	}
	_, err := w.bw.WriteString(v)
	return err
}

func (w *Writer) WriteBinary(v []byte) error {
	if err := w.writeIndicator(tBinary); err != nil {
		return err
	}
	return w.writeBytes(v)
}

func (w *Writer) writeBytes(v []byte) error {
	if err := writeUvarint(w.bw, uint64(len(v))); err != nil {
		return err
	}
	_, err := w.bw.Write(v)
	return err
}

// Date is a plain calendar date.
type Date struct{ Year, Month, Day int32 }

func (w *Writer) WriteDate(d Date) error {
	if err := w.writeIndicator(tDate); err != nil {
		return err
	}
	return w.writeDateRaw(d)
}

func (w *Writer) writeDateRaw(d Date) error {
	for _, v := range [...]int32{d.Year, d.Month, d.Day} {
		if err := writeVarint(w.bw, int64(v)); err != nil {
			return err
		}
	}
	return nil
}

// Zone describes a time value's zone: absent, UTC, or a signed
// hour/minute offset.
type Zone struct {
	Present    bool
	UTC        bool
	HourOffset int32
	MinOffset  int32
}

// Time is a time-of-day with optional zone.
type Time struct {
	Hour, Minute, Second, Nanos int32
	Zone                        Zone
}

func (w *Writer) WriteTime(t Time) error {
	if err := w.writeIndicator(tTime); err != nil {
		return err
	}
	return w.writeTimeRaw(t)
}

func (w *Writer) writeTimeRaw(t Time) error {
	for _, v := range [...]int32{t.Hour, t.Minute, t.Second, t.Nanos} {
		if err := writeVarint(w.bw, int64(v)); err != nil {
			return err
		}
	}
	return w.writeZone(t.Zone)
}

func (w *Writer) writeZone(z Zone) error {
	var tag int64
	switch {
	case !z.Present:
		tag = 0
	case z.UTC:
		tag = 1
	default:
		tag = 2
	}
	if err := writeVarint(w.bw, tag); err != nil {
		return err
	}
	if tag != 2 {
		return nil
	}
	if err := writeVarint(w.bw, int64(z.HourOffset)); err != nil {
		return err
	}
	return writeVarint(w.bw, int64(z.MinOffset))
}

// DateTime is a date followed by a time.
type DateTime struct {
	Date Date
	Time Time
}

func (w *Writer) WriteDateTime(dt DateTime) error {
	if err := w.writeIndicator(tDateTime); err != nil {
		return err
	}
	if err := w.writeDateRaw(dt.Date); err != nil {
		return err
	}
	return w.writeTimeRaw(dt.Time)
}

// YearMonthInterval, DayTimeInterval and TimeInterval are fixed tuples.
type YearMonthInterval struct{ Years, Months int32 }
type DayTimeInterval struct{ Days, Hours, Minutes, Seconds, Nanos int32 }
type TimeInterval struct{ Hours, Minutes, Seconds, Nanos int32 }

func (w *Writer) WriteYearMonthInterval(v YearMonthInterval) error {
	if err := w.writeIndicator(tYearMonthInterval); err != nil {
		return err
	}
	return writeVarints(w.bw, int64(v.Years), int64(v.Months))
}

func (w *Writer) WriteDayTimeInterval(v DayTimeInterval) error {
	if err := w.writeIndicator(tDayTimeInterval); err != nil {
		return err
	}
	return writeVarints(w.bw, int64(v.Days), int64(v.Hours), int64(v.Minutes), int64(v.Seconds), int64(v.Nanos))
}

func (w *Writer) WriteTimeInterval(v TimeInterval) error {
	if err := w.writeIndicator(tTimeInterval); err != nil {
		return err
	}
	return writeVarints(w.bw, int64(v.Hours), int64(v.Minutes), int64(v.Seconds), int64(v.Nanos))
}

func writeVarints(bw *bufio.Writer, vs ...int64) error {
	for _, v := range vs {
		if err := writeVarint(bw, v); err != nil {
			return err
		}
	}
	return nil
}

// --- composites ------------------------------------------------------

// WriteAny writes any supported Go value, dispatching by concrete type
// (including registered UserType values, by calling back into the
// context) and handling identity/reference tracking for composites and
// user types.
func (w *Writer) WriteAny(v any) error {
	switch x := v.(type) {
	case nil:
		return w.WriteNil()
	case bool:
		return w.WriteBool(x)
	case int8:
		return w.WriteInt8(x)
	case int16:
		return w.WriteInt16(x)
	case int32:
		return w.WriteInt32(x)
	case int:
		return w.WriteInt64(int64(x))
	case int64:
		return w.WriteInt64(x)
	case float32:
		return w.WriteFloat32(x)
	case float64:
		return w.WriteFloat64(x)
	case string:
		return w.WriteString(x)
	case []byte:
		return w.WriteBinary(x)
	case rune32:
		return w.WriteChar(rune(x))
	case Date:
		return w.WriteDate(x)
	case Time:
		return w.WriteTime(x)
	case DateTime:
		return w.WriteDateTime(x)
	case Decimal:
		return w.WriteDecimal(x)
	case *Array:
		return w.WriteArray(x.Elements)
	case *Collection:
		return w.WriteCollection(x.Elements)
	case *Map:
		return w.WriteMap(x.Entries)
	case *SparseArray:
		return w.writeSparseArray(x)
	case UserType:
		return w.writeUserType(x)
	default:
		return fmt.Errorf("pof: WriteAny: unsupported go type %T", v)
	}
}

// rune32 disambiguates an intentional POF char from a Go int32 when
// passed through WriteAny; callers that want WriteChar semantics should
// call WriteChar directly, or wrap with pof.Char(v).
type rune32 int32

// Char wraps v so WriteAny encodes it as a POF char rather than int32.
func Char(v rune) any { return rune32(v) }

// WriteArray writes a self-describing array: each element carries its
// own type indicator.
func (w *Writer) WriteArray(elems []any) error {
	return w.writeRefCapable(elems, func() error {
		if err := w.writeIndicator(tArray); err != nil {
			return err
		}
		if err := writeUvarint(w.bw, uint64(len(elems))); err != nil {
			return err
		}
		for _, e := range elems {
			if err := w.WriteAny(e); err != nil {
				return err
			}
		}
		return nil
	})
}

// WriteUniformArray writes an array whose elements all share elemType;
// encodeElem writes one element's value without its own indicator.
func (w *Writer) WriteUniformArray(elemType TypeID, elems []any, encodeElem func(*Writer, any) error) error {
	return w.writeRefCapable(elems, func() error {
		if err := w.writeIndicator(tUniformArray); err != nil {
			return err
		}
		if err := w.writeIndicator(elemType); err != nil {
			return err
		}
		if err := writeUvarint(w.bw, uint64(len(elems))); err != nil {
			return err
		}
		for _, e := range elems {
			if err := encodeElem(w, e); err != nil {
				return err
			}
		}
		return nil
	})
}

// WriteCollection is WriteArray's counterpart decoding into an ordered
// container abstraction (see Collection in value.go).
func (w *Writer) WriteCollection(elems []any) error {
	return w.writeRefCapable(elems, func() error {
		if err := w.writeIndicator(tCollection); err != nil {
			return err
		}
		if err := writeUvarint(w.bw, uint64(len(elems))); err != nil {
			return err
		}
		for _, e := range elems {
			if err := w.WriteAny(e); err != nil {
				return err
			}
		}
		return nil
	})
}

func (w *Writer) WriteUniformCollection(elemType TypeID, elems []any, encodeElem func(*Writer, any) error) error {
	return w.writeRefCapable(elems, func() error {
		if err := w.writeIndicator(tUniformCollection); err != nil {
			return err
		}
		if err := w.writeIndicator(elemType); err != nil {
			return err
		}
		if err := writeUvarint(w.bw, uint64(len(elems))); err != nil {
			return err
		}
		for _, e := range elems {
			if err := encodeElem(w, e); err != nil {
				return err
			}
		}
		return nil
	})
}

// MapEntry is one key/value pair of a Map.
type MapEntry struct {
	Key   any
	Value any
}

func (w *Writer) WriteMap(entries []MapEntry) error {
	return w.writeRefCapable(entries, func() error {
		if err := w.writeIndicator(tMap); err != nil {
			return err
		}
		if err := writeUvarint(w.bw, uint64(len(entries))); err != nil {
			return err
		}
		for _, e := range entries {
			if err := w.WriteAny(e.Key); err != nil {
				return err
			}
			if err := w.WriteAny(e.Value); err != nil {
				return err
			}
		}
		return nil
	})
}

// WriteUniformKeysMap writes a map whose keys all share keyType.
func (w *Writer) WriteUniformKeysMap(keyType TypeID, entries []MapEntry, encodeKey func(*Writer, any) error) error {
	return w.writeRefCapable(entries, func() error {
		if err := w.writeIndicator(tUniformKeysMap); err != nil {
			return err
		}
		if err := w.writeIndicator(keyType); err != nil {
			return err
		}
		if err := writeUvarint(w.bw, uint64(len(entries))); err != nil {
			return err
		}
		for _, e := range entries {
			if err := encodeKey(w, e.Key); err != nil {
				return err
			}
			if err := w.WriteAny(e.Value); err != nil {
				return err
			}
		}
		return nil
	})
}

// WriteUniformMap writes a map uniform by both key and value type.
func (w *Writer) WriteUniformMap(keyType, valType TypeID, entries []MapEntry, encodeKey, encodeVal func(*Writer, any) error) error {
	return w.writeRefCapable(entries, func() error {
		if err := w.writeIndicator(tUniformMap); err != nil {
			return err
		}
		if err := w.writeIndicator(keyType); err != nil {
			return err
		}
		if err := w.writeIndicator(valType); err != nil {
			return err
		}
		if err := writeUvarint(w.bw, uint64(len(entries))); err != nil {
			return err
		}
		for _, e := range entries {
			if err := encodeKey(w, e.Key); err != nil {
				return err
			}
			if err := encodeVal(w, e.Value); err != nil {
				return err
			}
		}
		return nil
	})
}

// SparseArray is an index-keyed array; absent indices decode as a nil
// placeholder rather than being present with a zero value.
type SparseArray struct {
	Entries map[int32]any
	Length  int32 // length hint, may be 0 if unknown
}

func (w *Writer) writeSparseArray(a *SparseArray) error {
	return w.writeRefCapable(a, func() error {
		if err := w.writeIndicator(tSparseArray); err != nil {
			return err
		}
		if err := writeUvarint(w.bw, uint64(a.Length)); err != nil {
			return err
		}
		for idx, v := range a.Entries {
			if err := writeVarint(w.bw, int64(idx)); err != nil {
				return err
			}
			if err := w.WriteAny(v); err != nil {
				return err
			}
		}
		return writeVarint(w.bw, terminatorIndex)
	})
}

// --- user types --------------------------------------------------------

// UserType is implemented by concrete Go types registered in a Context;
// PofTypeID names the registration to dispatch to.
type UserType interface {
	PofTypeID() TypeID
}

func (w *Writer) writeUserType(v UserType) error {
	if w.ctx == nil {
		return fmt.Errorf("pof: WriteAny: no context to encode user type %d", v.PofTypeID())
	}
	reg, ok := w.ctx.lookup(v.PofTypeID())
	if !ok {
		return fmt.Errorf("pof: %w: %d", ErrUnknownType, v.PofTypeID())
	}
	return w.writeRefCapable(v, func() error {
		return reg.encode(w, v)
	})
}

// WriteUserTypeHeader writes the type-id indicator and on-wire data
// version for a user type body. The on-wire data version is
// max(dataVersion, implVersion) per the evolvability protocol.
func (w *Writer) WriteUserTypeHeader(id TypeID, dataVersion, implVersion int32) error {
	if id < 0 {
		return fmt.Errorf("pof: user type id must be non-negative, got %d", id)
	}
	if err := w.writeIndicator(id); err != nil {
		return err
	}
	v := dataVersion
	if implVersion > v {
		v = implVersion
	}
	return writeVarint(w.bw, int64(v))
}

// WriteProperty writes one indexed property; index must be strictly
// greater than the previous call's index within one user type body.
func (w *Writer) WriteProperty(index int32, writeVal func() error) error {
	if err := writeVarint(w.bw, int64(index)); err != nil {
		return err
	}
	return writeVal()
}

// WriteEnd terminates a user type's property list, appending remainder
// verbatim (the tail bytes captured from a newer writer's version, if
// any).
func (w *Writer) WriteEnd(remainder []byte) error {
	if err := writeVarint(w.bw, terminatorIndex); err != nil {
		return err
	}
	return w.writeBytes(remainder)
}

func bitsPutUint32(b []byte, v uint32) {
	b[0] = byte(v >> 24)
	b[1] = byte(v >> 16)
	b[2] = byte(v >> 8)
	b[3] = byte(v)
}

func bitsPutUint64(b []byte, v uint64) {
	for i := 0; i < 8; i++ {
		b[i] = byte(v >> uint(56-8*i))
	}
}
