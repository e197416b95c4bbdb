// Copyright (C) 2014 The Syncthing Authors.
//
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this file,
// You can obtain one at https://mozilla.org/MPL/2.0/.

package pof

import (
	"bytes"
	"errors"
	"testing"
)

func roundTrip(t *testing.T, ctx *Context, write func(*Writer) error, read func(*Reader) error) {
	t.Helper()
	var buf bytes.Buffer
	w := NewWriter(&buf, ctx)
	if err := write(w); err != nil {
		t.Fatalf("write: %v", err)
	}
	if err := w.Flush(); err != nil {
		t.Fatalf("flush: %v", err)
	}
	r := NewReader(&buf, ctx)
	if err := read(r); err != nil {
		t.Fatalf("read: %v", err)
	}
}

func TestIntrinsicRoundTrip(t *testing.T) {
	roundTrip(t, nil,
		func(w *Writer) error {
			if err := w.WriteBool(true); err != nil {
				return err
			}
			if err := w.WriteInt32(-12345); err != nil {
				return err
			}
			if err := w.WriteInt64(1 << 40); err != nil {
				return err
			}
			if err := w.WriteFloat64(3.14159); err != nil {
				return err
			}
			return w.WriteString("hello, pof")
		},
		func(r *Reader) error {
			b, err := r.ReadBool()
			if err != nil || !b {
				t.Fatalf("bool: %v %v", b, err)
			}
			i32, err := r.ReadInt32()
			if err != nil || i32 != -12345 {
				t.Fatalf("int32: %v %v", i32, err)
			}
			i64, err := r.ReadInt64()
			if err != nil || i64 != 1<<40 {
				t.Fatalf("int64: %v %v", i64, err)
			}
			f64, err := r.ReadFloat64()
			if err != nil || f64 != 3.14159 {
				t.Fatalf("float64: %v %v", f64, err)
			}
			s, err := r.ReadString()
			if err != nil || s != "hello, pof" {
				t.Fatalf("string: %q %v", s, err)
			}
			return nil
		},
	)
}

func TestVarintNegativeValues(t *testing.T) {
	var buf bytes.Buffer
	for _, v := range []int64{0, 1, -1, 127, -128, 1 << 33, -(1 << 33)} {
		buf.Reset()
		w := NewWriter(&buf, nil)
		if err := w.WriteInt64(v); err != nil {
			t.Fatalf("write %d: %v", v, err)
		}
		w.Flush()
		r := NewReader(&buf, nil)
		got, err := r.ReadInt64()
		if err != nil || got != v {
			t.Fatalf("round trip %d: got %d, err %v", v, got, err)
		}
	}
}

func TestArrayCollectionMapRoundTrip(t *testing.T) {
	roundTrip(t, NewContext(false),
		func(w *Writer) error {
			if err := w.WriteArray([]any{int32(1), "two", true}); err != nil {
				return err
			}
			if err := w.WriteCollection([]any{int32(7), int32(8)}); err != nil {
				return err
			}
			return w.WriteMap([]MapEntry{{Key: "a", Value: int32(1)}, {Key: "b", Value: int32(2)}})
		},
		func(r *Reader) error {
			v, err := r.ReadValue()
			if err != nil {
				return err
			}
			a, ok := v.(*Array)
			if !ok || len(a.Elements) != 3 {
				t.Fatalf("array: %#v", v)
			}
			v, err = r.ReadValue()
			if err != nil {
				return err
			}
			c, ok := v.(*Collection)
			if !ok || len(c.Elements) != 2 {
				t.Fatalf("collection: %#v", v)
			}
			v, err = r.ReadValue()
			if err != nil {
				return err
			}
			m, ok := v.(*Map)
			if !ok || len(m.Entries) != 2 {
				t.Fatalf("map: %#v", v)
			}
			return nil
		},
	)
}

func TestSparseArrayRoundTrip(t *testing.T) {
	roundTrip(t, NewContext(false),
		func(w *Writer) error {
			return w.WriteAny(&SparseArray{Length: 10, Entries: map[int32]any{2: "x", 7: "y"}})
		},
		func(r *Reader) error {
			v, err := r.ReadValue()
			if err != nil {
				return err
			}
			a, ok := v.(*SparseArray)
			if !ok || a.Length != 10 || len(a.Entries) != 2 || a.Entries[2] != "x" || a.Entries[7] != "y" {
				t.Fatalf("sparse array: %#v", v)
			}
			return nil
		},
	)
}

func TestReferenceSharing(t *testing.T) {
	ctx := NewContext(true)
	shared := []any{int32(1), int32(2)}
	var buf bytes.Buffer
	w := NewWriter(&buf, ctx)
	if err := w.WriteArray(shared); err != nil {
		t.Fatal(err)
	}
	if err := w.WriteArray(shared); err != nil {
		t.Fatal(err)
	}
	w.Flush()

	r := NewReader(&buf, ctx)
	first, err := r.ReadValue()
	if err != nil {
		t.Fatal(err)
	}
	second, err := r.ReadValue()
	if err != nil {
		t.Fatal(err)
	}
	a1, ok1 := first.(*Array)
	a2, ok2 := second.(*Array)
	if !ok1 || !ok2 {
		t.Fatalf("expected *Array, got %T and %T", first, second)
	}
	if a1 != a2 {
		t.Fatalf("expected the second occurrence to resolve to the same *Array instance")
	}
}

func TestReferenceTrackingDisabledDuplicatesData(t *testing.T) {
	ctx := NewContext(false)
	shared := []any{int32(1)}
	var buf bytes.Buffer
	w := NewWriter(&buf, ctx)
	if err := w.WriteArray(shared); err != nil {
		t.Fatal(err)
	}
	if err := w.WriteArray(shared); err != nil {
		t.Fatal(err)
	}
	w.Flush()

	r := NewReader(&buf, ctx)
	first, err := r.ReadValue()
	if err != nil {
		t.Fatal(err)
	}
	second, err := r.ReadValue()
	if err != nil {
		t.Fatal(err)
	}
	if first.(*Array) == second.(*Array) {
		t.Fatalf("reference tracking was disabled, each occurrence should decode independently")
	}
}

func TestUnresolvedReferenceErrors(t *testing.T) {
	var buf bytes.Buffer
	w := NewWriter(&buf, nil)
	if err := w.writeIndicator(tReference); err != nil {
		t.Fatal(err)
	}
	if err := writeVarint(w.bw, 99); err != nil {
		t.Fatal(err)
	}
	w.Flush()

	r := NewReader(&buf, nil)
	_, err := r.ReadValue()
	if !errors.Is(err, ErrReference) {
		t.Fatalf("expected ErrReference, got %v", err)
	}
}

// person is a hand-written registered user type used to exercise the
// evolvability protocol: an old reader must preserve whatever a newer
// writer appended, and return it unchanged on re-encode.
type person struct {
	Name        string
	Age         int32
	dataVersion int32
	remainder   []byte
}

const personTypeID TypeID = 1001
const personImplVersion = 1

func (p *person) PofTypeID() TypeID     { return personTypeID }
func (p *person) ImplVersion() int32    { return personImplVersion }
func (p *person) DataVersion() int32    { return p.dataVersion }
func (p *person) SetDataVersion(v int32) { p.dataVersion = v }
func (p *person) Remainder() []byte     { return p.remainder }
func (p *person) SetRemainder(b []byte) { p.remainder = b }

func encodePerson(w *Writer, v any) error {
	p := v.(*person)
	if err := w.WriteUserTypeHeader(personTypeID, p.dataVersion, p.ImplVersion()); err != nil {
		return err
	}
	if err := w.WriteProperty(0, func() error { return w.WriteString(p.Name) }); err != nil {
		return err
	}
	if err := w.WriteProperty(1, func() error { return w.WriteInt32(p.Age) }); err != nil {
		return err
	}
	return w.WriteEnd(p.remainder)
}

func decodePerson(r *Reader, bind func(any)) (any, error) {
	p := &person{}
	bind(p)
	dv, err := r.ReadUserTypeHeader()
	if err != nil {
		return nil, err
	}
	p.dataVersion = dv
	for {
		idx, atEnd, err := r.ReadPropertyIndex()
		if err != nil {
			return nil, err
		}
		if atEnd {
			p.remainder, err = r.ReadRemainder()
			return p, err
		}
		switch idx {
		case 0:
			p.Name, err = r.ReadString()
		case 1:
			p.Age, err = r.ReadInt32()
		default:
			err = r.SkipValue()
		}
		if err != nil {
			return nil, err
		}
	}
}

func newPersonContext(t *testing.T, trackReferences bool) *Context {
	t.Helper()
	ctx := NewContext(trackReferences)
	if err := ctx.Register(Descriptor{TypeID: personTypeID, ImplVersion: personImplVersion}, encodePerson, decodePerson); err != nil {
		t.Fatal(err)
	}
	return ctx
}

func TestUserTypeRoundTrip(t *testing.T) {
	ctx := newPersonContext(t, true)
	p := &person{Name: "Ada", Age: 36}
	roundTrip(t, ctx,
		func(w *Writer) error { return w.WriteAny(p) },
		func(r *Reader) error {
			v, err := r.ReadValue()
			if err != nil {
				return err
			}
			got, ok := v.(*person)
			if !ok || got.Name != "Ada" || got.Age != 36 {
				t.Fatalf("person: %#v", v)
			}
			return nil
		},
	)
}

// TestEvolvableRemainderPreserved simulates an older client reading a
// newer cluster's value: the trailing bytes the newer writer appended
// after the known properties come back as the decoded value's remainder
// and must survive re-encode unchanged.
func TestEvolvableRemainderPreserved(t *testing.T) {
	ctx := newPersonContext(t, false)

	futureBytes := []byte{0x01, 0x02, 0x03}
	var wire bytes.Buffer
	w := NewWriter(&wire, ctx)
	if err := w.WriteUserTypeHeader(personTypeID, 2, 1); err != nil {
		t.Fatal(err)
	}
	if err := w.WriteProperty(0, func() error { return w.WriteString("Grace") }); err != nil {
		t.Fatal(err)
	}
	if err := w.WriteProperty(1, func() error { return w.WriteInt32(40) }); err != nil {
		t.Fatal(err)
	}
	if err := w.WriteEnd(futureBytes); err != nil {
		t.Fatal(err)
	}
	w.Flush()
	original := append([]byte(nil), wire.Bytes()...)

	r := NewReader(&wire, ctx)
	ind, err := r.readIndicator()
	if err != nil {
		t.Fatal(err)
	}
	v, err := r.readUserTypeBody(0, ind)
	if err != nil {
		t.Fatal(err)
	}
	p := v.(*person)
	if p.Name != "Grace" || p.Age != 40 || p.dataVersion != 2 {
		t.Fatalf("person: %#v", p)
	}
	if !bytes.Equal(p.remainder, futureBytes) {
		t.Fatalf("expected remainder %v, got %v", futureBytes, p.remainder)
	}

	var out bytes.Buffer
	w2 := NewWriter(&out, ctx)
	if err := encodePerson(w2, p); err != nil {
		t.Fatal(err)
	}
	w2.Flush()
	if !bytes.Equal(original, out.Bytes()) {
		t.Fatalf("re-encoding a decoded value did not reproduce the original bytes")
	}
}

// node is a registered user type with a self-referencing pointer field,
// used to exercise decode-time cyclic reference resolution: a node
// whose Next points back to itself.
type node struct {
	Value int32
	Next  *node
}

const nodeTypeID TypeID = 1002

func (n *node) PofTypeID() TypeID { return nodeTypeID }

func encodeNode(w *Writer, v any) error {
	n := v.(*node)
	if err := w.WriteUserTypeHeader(nodeTypeID, 0, 0); err != nil {
		return err
	}
	if err := w.WriteProperty(0, func() error { return w.WriteInt32(n.Value) }); err != nil {
		return err
	}
	if err := w.WriteProperty(1, func() error {
		if n.Next == nil {
			return w.WriteNil()
		}
		return w.WriteAny(n.Next)
	}); err != nil {
		return err
	}
	return w.WriteEnd(nil)
}

func decodeNode(r *Reader, bind func(any)) (any, error) {
	n := &node{}
	bind(n)
	if _, err := r.ReadUserTypeHeader(); err != nil {
		return nil, err
	}
	for {
		idx, atEnd, err := r.ReadPropertyIndex()
		if err != nil {
			return nil, err
		}
		if atEnd {
			_, err = r.ReadRemainder()
			return n, err
		}
		switch idx {
		case 0:
			n.Value, err = r.ReadInt32()
		case 1:
			var v any
			if v, err = r.ReadValue(); err == nil && v != nil {
				n.Next = v.(*node)
			}
		default:
			err = r.SkipValue()
		}
		if err != nil {
			return nil, err
		}
	}
}

// TestRegisteredUserTypeSelfReferenceRoundTrip exercises a true cycle
// through a registered concrete type: n.Next == n. Without early
// identity binding in readUserTypeBody, decoding n's own Next property
// would hit ErrReference trying to resolve a reference to its own,
// not-yet-registered id.
func TestRegisteredUserTypeSelfReferenceRoundTrip(t *testing.T) {
	ctx := NewContext(true)
	if err := ctx.Register(Descriptor{TypeID: nodeTypeID}, encodeNode, decodeNode); err != nil {
		t.Fatal(err)
	}

	n := &node{Value: 42}
	n.Next = n

	var buf bytes.Buffer
	w := NewWriter(&buf, ctx)
	if err := w.WriteAny(n); err != nil {
		t.Fatal(err)
	}
	w.Flush()

	r := NewReader(&buf, ctx)
	v, err := r.ReadValue()
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	got, ok := v.(*node)
	if !ok || got.Value != 42 {
		t.Fatalf("node: %#v", v)
	}
	if got.Next != got {
		t.Fatalf("expected self-referential cycle to resolve to the same *node instance, got %#v pointing at %#v", got, got.Next)
	}
}
