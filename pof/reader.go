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
)

// Reader decodes a stream of self-describing POF values from an
// underlying io.Reader. One Reader corresponds to one top-level decode
// operation: its reference table is valid only for that operation's
// lifetime, per the codec's reference semantics.
type Reader struct {
	br  *bufio.Reader
	ctx *Context

	refs map[int32]any
}

// NewReader creates a Reader. ctx may be nil for decoding streams that
// never contain user types.
func NewReader(r io.Reader, ctx *Context) *Reader {
	br, ok := r.(*bufio.Reader)
	if !ok {
		br = bufio.NewReader(r)
	}
	return &Reader{br: br, ctx: ctx, refs: make(map[int32]any)}
}

func (r *Reader) readIndicator() (TypeID, error) {
	v, err := readVarint(r.br)
	return TypeID(v), err
}

// --- intrinsics ----------------------------------------------------------

func (r *Reader) expect(got, want TypeID) error {
	if got != want {
		return fmt.Errorf("pof: expected type indicator %d, got %d: %w", want, got, ErrIO)
	}
	return nil
}

func (r *Reader) ReadBool() (bool, error) {
	ind, err := r.readIndicator()
	if err != nil {
		return false, err
	}
	if err := r.expect(ind, tBoolean); err != nil {
		return false, err
	}
	b, err := r.br.ReadByte()
	return b != 0, err
}

func (r *Reader) ReadInt8() (int8, error) {
	ind, err := r.readIndicator()
	if err != nil {
		return 0, err
	}
	if err := r.expect(ind, tInt8); err != nil {
		return 0, err
	}
	v, err := readVarint(r.br)
	return int8(v), err
}

func (r *Reader) ReadInt16() (int16, error) {
	ind, err := r.readIndicator()
	if err != nil {
		return 0, err
	}
	if err := r.expect(ind, tInt16); err != nil {
		return 0, err
	}
	v, err := readVarint(r.br)
	return int16(v), err
}

func (r *Reader) ReadInt32() (int32, error) {
	ind, err := r.readIndicator()
	if err != nil {
		return 0, err
	}
	if err := r.expect(ind, tInt32); err != nil {
		return 0, err
	}
	v, err := readVarint(r.br)
	return int32(v), err
}

func (r *Reader) ReadInt64() (int64, error) {
	ind, err := r.readIndicator()
	if err != nil {
		return 0, err
	}
	if err := r.expect(ind, tInt64); err != nil {
		return 0, err
	}
	return readVarint(r.br)
}

func (r *Reader) ReadFloat32() (float32, error) {
	ind, err := r.readIndicator()
	if err != nil {
		return 0, err
	}
	if err := r.expect(ind, tFloat32); err != nil {
		return 0, err
	}
	var buf [4]byte
	if _, err := io.ReadFull(r.br, buf[:]); err != nil {
		return 0, fmt.Errorf("pof: %w", ErrIO)
	}
	return math.Float32frombits(bitsGetUint32(buf[:])), nil
}

func (r *Reader) ReadFloat64() (float64, error) {
	ind, err := r.readIndicator()
	if err != nil {
		return 0, err
	}
	if err := r.expect(ind, tFloat64); err != nil {
		return 0, err
	}
	var buf [8]byte
	if _, err := io.ReadFull(r.br, buf[:]); err != nil {
		return 0, fmt.Errorf("pof: %w", ErrIO)
	}
	return math.Float64frombits(bitsGetUint64(buf[:])), nil
}

var decimalMax = map[int]int{32: 7, 64: 16, 128: 34} // max unscaled decimal digits, used loosely as a byte-length sanity bound

func (r *Reader) ReadDecimal(width int) (Decimal, error) {
	ind, err := r.readIndicator()
	if err != nil {
		return Decimal{}, err
	}
	want := map[int]TypeID{32: tDecimal32, 64: tDecimal64, 128: tDecimal128}[width]
	if err := r.expect(ind, want); err != nil {
		return Decimal{}, err
	}
	scale, err := readVarint(r.br)
	if err != nil {
		return Decimal{}, err
	}
	unscaled, err := r.readBytesRaw()
	if err != nil {
		return Decimal{}, err
	}
	if max, ok := decimalMax[width]; ok && len(unscaled) > max*5 {
		return Decimal{}, fmt.Errorf("pof: decimal%d unscaled magnitude too large: %w", width, ErrOverflow)
	}
	return Decimal{Unscaled: unscaled, Scale: int32(scale), Width: width}, nil
}

func (r *Reader) ReadChar() (rune, error) {
	ind, err := r.readIndicator()
	if err != nil {
		return 0, err
	}
	if err := r.expect(ind, tChar); err != nil {
		return 0, err
	}
	v, err := readVarint(r.br)
	return rune(v), err
}

func (r *Reader) ReadString() (string, error) {
	ind, err := r.readIndicator()
	if err != nil {
		return "", err
	}
	if err := r.expect(ind, tString); err != nil {
		return "", err
	}
	return r.readRawString()
}

func (r *Reader) readRawString() (string, error) {
	n, err := readUvarint(r.br)
	if err != nil {
		return "", err
	}
	buf := make([]byte, n)
	if _, err := io.ReadFull(r.br, buf); err != nil {
		return "", fmt.Errorf("pof: %w", ErrIO)
	}
	return string(buf), nil
}

func (r *Reader) ReadBinary() ([]byte, error) {
	ind, err := r.readIndicator()
	if err != nil {
		return nil, err
	}
	if err := r.expect(ind, tBinary); err != nil {
		return nil, err
	}
	return r.readBytesRaw()
}

func (r *Reader) readBytesRaw() ([]byte, error) {
	n, err := readUvarint(r.br)
	if err != nil {
		return nil, err
	}
	buf := make([]byte, n)
	if _, err := io.ReadFull(r.br, buf); err != nil {
		return nil, fmt.Errorf("pof: %w", ErrIO)
	}
	return buf, nil
}

func (r *Reader) ReadDate() (Date, error) {
	ind, err := r.readIndicator()
	if err != nil {
		return Date{}, err
	}
	if err := r.expect(ind, tDate); err != nil {
		return Date{}, err
	}
	return r.readDateRaw()
}

func (r *Reader) readDateRaw() (Date, error) {
	vs, err := readVarints(r.br, 3)
	if err != nil {
		return Date{}, err
	}
	return Date{Year: int32(vs[0]), Month: int32(vs[1]), Day: int32(vs[2])}, nil
}

func (r *Reader) ReadTime() (Time, error) {
	ind, err := r.readIndicator()
	if err != nil {
		return Time{}, err
	}
	if err := r.expect(ind, tTime); err != nil {
		return Time{}, err
	}
	return r.readTimeRaw()
}

func (r *Reader) readTimeRaw() (Time, error) {
	vs, err := readVarints(r.br, 4)
	if err != nil {
		return Time{}, err
	}
	z, err := r.readZone()
	if err != nil {
		return Time{}, err
	}
	return Time{Hour: int32(vs[0]), Minute: int32(vs[1]), Second: int32(vs[2]), Nanos: int32(vs[3]), Zone: z}, nil
}

func (r *Reader) readZone() (Zone, error) {
	tag, err := readVarint(r.br)
	if err != nil {
		return Zone{}, err
	}
	switch tag {
	case 0:
		return Zone{Present: false}, nil
	case 1:
		return Zone{Present: true, UTC: true}, nil
	case 2:
		vs, err := readVarints(r.br, 2)
		if err != nil {
			return Zone{}, err
		}
		return Zone{Present: true, HourOffset: int32(vs[0]), MinOffset: int32(vs[1])}, nil
	default:
		return Zone{}, fmt.Errorf("pof: unknown zone tag %d: %w", tag, ErrIO)
	}
}

func (r *Reader) ReadDateTime() (DateTime, error) {
	ind, err := r.readIndicator()
	if err != nil {
		return DateTime{}, err
	}
	if err := r.expect(ind, tDateTime); err != nil {
		return DateTime{}, err
	}
	d, err := r.readDateRaw()
	if err != nil {
		return DateTime{}, err
	}
	t, err := r.readTimeRaw()
	if err != nil {
		return DateTime{}, err
	}
	return DateTime{Date: d, Time: t}, nil
}

func (r *Reader) ReadYearMonthInterval() (YearMonthInterval, error) {
	ind, err := r.readIndicator()
	if err != nil {
		return YearMonthInterval{}, err
	}
	if err := r.expect(ind, tYearMonthInterval); err != nil {
		return YearMonthInterval{}, err
	}
	vs, err := readVarints(r.br, 2)
	if err != nil {
		return YearMonthInterval{}, err
	}
	return YearMonthInterval{Years: int32(vs[0]), Months: int32(vs[1])}, nil
}

func (r *Reader) ReadDayTimeInterval() (DayTimeInterval, error) {
	ind, err := r.readIndicator()
	if err != nil {
		return DayTimeInterval{}, err
	}
	if err := r.expect(ind, tDayTimeInterval); err != nil {
		return DayTimeInterval{}, err
	}
	vs, err := readVarints(r.br, 5)
	if err != nil {
		return DayTimeInterval{}, err
	}
	return DayTimeInterval{Days: int32(vs[0]), Hours: int32(vs[1]), Minutes: int32(vs[2]), Seconds: int32(vs[3]), Nanos: int32(vs[4])}, nil
}

func (r *Reader) ReadTimeInterval() (TimeInterval, error) {
	ind, err := r.readIndicator()
	if err != nil {
		return TimeInterval{}, err
	}
	if err := r.expect(ind, tTimeInterval); err != nil {
		return TimeInterval{}, err
	}
	vs, err := readVarints(r.br, 4)
	if err != nil {
		return TimeInterval{}, err
	}
	return TimeInterval{Hours: int32(vs[0]), Minutes: int32(vs[1]), Seconds: int32(vs[2]), Nanos: int32(vs[3])}, nil
}

func readVarints(br *bufio.Reader, n int) ([]int64, error) {
	out := make([]int64, n)
	for i := range out {
		v, err := readVarint(br)
		if err != nil {
			return nil, err
		}
		out[i] = v
	}
	return out, nil
}

func bitsGetUint32(b []byte) uint32 {
	return uint32(b[0])<<24 | uint32(b[1])<<16 | uint32(b[2])<<8 | uint32(b[3])
}

func bitsGetUint64(b []byte) uint64 {
	var v uint64
	for i := 0; i < 8; i++ {
		v = v<<8 | uint64(b[i])
	}
	return v
}

// --- property loop (user type bodies) ------------------------------------

// ReadUserTypeHeader reads the on-wire data version following a user
// type's indicator (already consumed by the caller/dispatcher). A
// negative data version is malformed (§4.1 "version" error condition).
func (r *Reader) ReadUserTypeHeader() (dataVersion int32, err error) {
	v, err := readVarint(r.br)
	if err != nil {
		return 0, err
	}
	dataVersion = int32(v)
	if dataVersion < 0 {
		return 0, fmt.Errorf("pof: %w", ErrVersion)
	}
	return dataVersion, nil
}

// ReadPropertyIndex reads the next property index. atEnd is true once
// the terminator has been read, in which case the caller must next call
// ReadRemainder.
func (r *Reader) ReadPropertyIndex() (index int32, atEnd bool, err error) {
	v, err := readVarint(r.br)
	if err != nil {
		return 0, false, err
	}
	if v == terminatorIndex {
		return 0, true, nil
	}
	return int32(v), false, nil
}

// ReadRemainder reads the length-prefixed trailing bytes written by
// WriteEnd.
func (r *Reader) ReadRemainder() ([]byte, error) {
	return r.readBytesRaw()
}

// SkipValue decodes and discards one self-describing value, for
// unrecognised property indices.
func (r *Reader) SkipValue() error {
	_, err := r.ReadValue()
	return err
}
