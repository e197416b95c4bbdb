// Copyright (C) 2014 The Syncthing Authors.
//
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this file,
// You can obtain one at https://mozilla.org/MPL/2.0/.

package wire

import (
	"bufio"
	"bytes"
	"testing"

	"github.com/coherence-go/extend/pof"
)

const testEchoTypeID int32 = 42

type echoRequest struct {
	BaseRequest
	Text string
}

func (m *echoRequest) TypeID() int32 { return testEchoTypeID }

func (m *echoRequest) Encode(w *pof.Writer) error {
	if err := m.Header.EncodeInto(w); err != nil {
		return err
	}
	return w.WriteString(m.Text)
}

func (m *echoRequest) Decode(r *pof.Reader) error {
	if err := m.Header.DecodeFrom(r); err != nil {
		return err
	}
	var err error
	m.Text, err = r.ReadString()
	return err
}

func echoFactory() MessageFactory {
	return NewStaticFactory(map[int32]func() Message{
		testEchoTypeID: func() Message { return &echoRequest{} },
	})
}

func TestEnvelopeRoundTrip(t *testing.T) {
	var buf bytes.Buffer
	want := Envelope{ChannelID: 7, MessageTypeID: 42, Body: []byte("hello")}
	if err := EncodeEnvelope(&buf, want); err != nil {
		t.Fatalf("EncodeEnvelope: %v", err)
	}
	got, err := DecodeEnvelope(bufio.NewReader(&buf))
	if err != nil {
		t.Fatalf("DecodeEnvelope: %v", err)
	}
	if got.ChannelID != want.ChannelID || got.MessageTypeID != want.MessageTypeID || !bytes.Equal(got.Body, want.Body) {
		t.Fatalf("got %+v, want %+v", got, want)
	}
}

func TestFrameRoundTrip(t *testing.T) {
	var buf bytes.Buffer
	body := []byte("a framed body")
	if err := WriteFrame(&buf, body); err != nil {
		t.Fatalf("WriteFrame: %v", err)
	}
	got, err := ReadFrame(bufio.NewReader(&buf))
	if err != nil {
		t.Fatalf("ReadFrame: %v", err)
	}
	if !bytes.Equal(got, body) {
		t.Fatalf("got %q, want %q", got, body)
	}
}

func TestFrameRejectsOversizedLength(t *testing.T) {
	var buf bytes.Buffer
	if err := pof.WriteUvarint(&buf, MaxFrameLength+1); err != nil {
		t.Fatalf("WriteUvarint: %v", err)
	}
	if _, err := ReadFrame(bufio.NewReader(&buf)); err == nil {
		t.Fatal("expected ReadFrame to reject an oversized length, got nil error")
	}
}

func TestEncodeDecodeMessageRoundTrip(t *testing.T) {
	req := &echoRequest{Text: "ping"}
	req.SetRequestHeader(RequestHeader{RequestID: 99, IdentityToken: []byte("tok")})

	frame, err := EncodeMessage(3, req)
	if err != nil {
		t.Fatalf("EncodeMessage: %v", err)
	}

	body, err := ReadFrame(bufio.NewReader(bytes.NewReader(frame)))
	if err != nil {
		t.Fatalf("ReadFrame: %v", err)
	}

	chID, msg, err := DecodeMessage(body, echoFactory())
	if err != nil {
		t.Fatalf("DecodeMessage: %v", err)
	}
	if chID != 3 {
		t.Fatalf("channel id = %d, want 3", chID)
	}
	got, ok := msg.(*echoRequest)
	if !ok {
		t.Fatalf("decoded type %T, want *echoRequest", msg)
	}
	if got.Text != "ping" {
		t.Fatalf("Text = %q, want %q", got.Text, "ping")
	}
	if got.GetRequestHeader().RequestID != 99 {
		t.Fatalf("RequestID = %d, want 99", got.GetRequestHeader().RequestID)
	}
}

func TestStaticFactoryUnknownType(t *testing.T) {
	f := echoFactory()
	if _, err := f.Create(123); err == nil {
		t.Fatal("expected an error for an unregistered type id")
	} else if _, ok := err.(ErrUnknownMessageType); !ok {
		t.Fatalf("error type = %T, want ErrUnknownMessageType", err)
	}
}

func TestStaticFactoryCopiesCtorMap(t *testing.T) {
	ctors := map[int32]func() Message{
		testEchoTypeID: func() Message { return &echoRequest{} },
	}
	f := NewStaticFactory(ctors)
	delete(ctors, testEchoTypeID)
	if _, err := f.Create(testEchoTypeID); err != nil {
		t.Fatalf("Create after caller mutated their map: %v", err)
	}
}
