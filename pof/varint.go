// Copyright (C) 2014 The Syncthing Authors.
//
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this file,
// You can obtain one at https://mozilla.org/MPL/2.0/.

package pof

import (
	"fmt"
	"io"
)

// writeUvarint writes v as an unsigned little-endian base-128 varint:
// seven payload bits per byte, the high bit set on every byte but the
// last (the wire format's framing and length encoding).
func writeUvarint(w io.ByteWriter, v uint64) error {
	for v >= 0x80 {
		if err := w.WriteByte(byte(v) | 0x80); err != nil {
			return err
		}
		v >>= 7
	}
	return w.WriteByte(byte(v))
}

func readUvarint(r io.ByteReader) (uint64, error) {
	var v uint64
	var shift uint
	for {
		b, err := r.ReadByte()
		if err != nil {
			return 0, fmt.Errorf("pof: reading varint: %w", ErrIO)
		}
		v |= uint64(b&0x7f) << shift
		if b&0x80 == 0 {
			return v, nil
		}
		shift += 7
		if shift >= 70 {
			return 0, fmt.Errorf("pof: varint overflow: %w", ErrIO)
		}
	}
}

// writeVarint writes a signed value zigzag-encoded, used for the type
// indicator and every signed integer intrinsic.
func writeVarint(w io.ByteWriter, v int64) error {
	u := (uint64(v) << 1) ^ uint64(v>>63)
	return writeUvarint(w, u)
}

func readVarint(r io.ByteReader) (int64, error) {
	u, err := readUvarint(r)
	if err != nil {
		return 0, err
	}
	return int64(u>>1) ^ -int64(u&1), nil
}

// WriteUvarint and ReadUvarint expose the wire format's plain unsigned
// varint (no type indicator, no zigzag) for callers outside this package
// that frame their own non-POF fields the same way the envelope does —
// namely package wire, for the frame length prefix and the envelope's
// channel-id/message-type-id fields.
func WriteUvarint(w io.ByteWriter, v uint64) error { return writeUvarint(w, v) }
func ReadUvarint(r io.ByteReader) (uint64, error)  { return readUvarint(r) }
