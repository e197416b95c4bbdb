// Copyright (C) 2014 The Syncthing Authors.
//
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this file,
// You can obtain one at https://mozilla.org/MPL/2.0/.

package transport

import (
	"context"

	"github.com/coherence-go/extend/pof"
	"github.com/coherence-go/extend/wire"
)

// Control-channel message type ids. These are scoped to channel 0's own
// factory, a namespace entirely separate from the named-cache protocol's
// message ids, so there is no collision to arbitrate.
const (
	typeOpenConnectionRequest int32 = iota
	typeOpenConnectionResponse
	typeOpenChannelRequest
	typeOpenChannelResponse
	typePingRequest
	typePingResponse
)

// controlFactory is the wire.MessageFactory bound to every connection's
// channel 0, the direct analogue of internal/protocol/message.go's
// small constructor map, scoped here to the handshake and keep-alive
// messages instead of application messages.
func controlFactory() wire.MessageFactory {
	return wire.NewStaticFactory(map[int32]func() wire.Message{
		typeOpenConnectionRequest:  func() wire.Message { return &OpenConnectionRequest{} },
		typeOpenConnectionResponse: func() wire.Message { return &OpenConnectionResponse{} },
		typeOpenChannelRequest:     func() wire.Message { return &OpenChannelRequest{} },
		typeOpenChannelResponse:    func() wire.Message { return &OpenChannelResponse{} },
		typePingRequest:            func() wire.Message { return &PingRequest{} },
		typePingResponse:           func() wire.Message { return &PingResponse{} },
	})
}

// OpenConnectionRequest begins the handshake on channel 0 (§4.4).
type OpenConnectionRequest struct {
	wire.BaseRequest
	ProtocolVersion int32
	Edition         string
	IdentityToken   []byte
}

func (m *OpenConnectionRequest) TypeID() int32 { return typeOpenConnectionRequest }

func (m *OpenConnectionRequest) Encode(w *pof.Writer) error {
	if err := m.Header.EncodeInto(w); err != nil {
		return err
	}
	if err := w.WriteInt32(m.ProtocolVersion); err != nil {
		return err
	}
	if err := w.WriteString(m.Edition); err != nil {
		return err
	}
	return w.WriteBinary(m.IdentityToken)
}

func (m *OpenConnectionRequest) Decode(r *pof.Reader) error {
	if err := m.Header.DecodeFrom(r); err != nil {
		return err
	}
	var err error
	if m.ProtocolVersion, err = r.ReadInt32(); err != nil {
		return err
	}
	if m.Edition, err = r.ReadString(); err != nil {
		return err
	}
	m.IdentityToken, err = r.ReadBinary()
	return err
}

// OpenConnectionResponse reports the server's side of the negotiation.
type OpenConnectionResponse struct {
	wire.BaseResponse
	Accepted          bool
	NegotiatedEdition string
	ConnectionID      uint64
}

func (m *OpenConnectionResponse) TypeID() int32 { return typeOpenConnectionResponse }

func (m *OpenConnectionResponse) Encode(w *pof.Writer) error {
	if err := m.Header.EncodeInto(w); err != nil {
		return err
	}
	if err := w.WriteBool(m.Accepted); err != nil {
		return err
	}
	if err := w.WriteString(m.NegotiatedEdition); err != nil {
		return err
	}
	return w.WriteInt64(int64(m.ConnectionID))
}

func (m *OpenConnectionResponse) Decode(r *pof.Reader) error {
	if err := m.Header.DecodeFrom(r); err != nil {
		return err
	}
	var err error
	if m.Accepted, err = r.ReadBool(); err != nil {
		return err
	}
	if m.NegotiatedEdition, err = r.ReadString(); err != nil {
		return err
	}
	id, err := r.ReadInt64()
	m.ConnectionID = uint64(id)
	return err
}

// OpenChannelRequest asks the peer to open a new logical channel bound
// to protocol (the named-cache protocol name, or any other registered
// protocol identifier).
type OpenChannelRequest struct {
	wire.BaseRequest
	Protocol  string
	Principal string
}

func (m *OpenChannelRequest) TypeID() int32 { return typeOpenChannelRequest }

func (m *OpenChannelRequest) Encode(w *pof.Writer) error {
	if err := m.Header.EncodeInto(w); err != nil {
		return err
	}
	if err := w.WriteString(m.Protocol); err != nil {
		return err
	}
	return w.WriteString(m.Principal)
}

func (m *OpenChannelRequest) Decode(r *pof.Reader) error {
	if err := m.Header.DecodeFrom(r); err != nil {
		return err
	}
	var err error
	if m.Protocol, err = r.ReadString(); err != nil {
		return err
	}
	m.Principal, err = r.ReadString()
	return err
}

// OpenChannelResponse carries the newly assigned channel id, or a
// failure (IsFailure on the embedded header) if the protocol is unknown
// to the peer.
type OpenChannelResponse struct {
	wire.BaseResponse
	ChannelID uint64
}

func (m *OpenChannelResponse) TypeID() int32 { return typeOpenChannelResponse }

func (m *OpenChannelResponse) Encode(w *pof.Writer) error {
	if err := m.Header.EncodeInto(w); err != nil {
		return err
	}
	return w.WriteInt64(int64(m.ChannelID))
}

func (m *OpenChannelResponse) Decode(r *pof.Reader) error {
	if err := m.Header.DecodeFrom(r); err != nil {
		return err
	}
	id, err := r.ReadInt64()
	m.ChannelID = uint64(id)
	return err
}

// PingRequest is the keep-alive probe sent on channel 0. It implements
// wire.Runnable so an inbound ping (from a peer that pings us) is
// answered automatically by whichever goroutine dispatches it, without
// the embedding protocol needing to know about keep-alive traffic.
type PingRequest struct {
	wire.BaseRequest
}

func (m *PingRequest) TypeID() int32 { return typePingRequest }

func (m *PingRequest) Encode(w *pof.Writer) error { return m.Header.EncodeInto(w) }

func (m *PingRequest) Decode(r *pof.Reader) error { return m.Header.DecodeFrom(r) }

func (m *PingRequest) Run(ctx context.Context) (wire.Message, error) {
	return &PingResponse{BaseResponse: wire.BaseResponse{
		Header: wire.ResponseHeader{RequestID: m.Header.RequestID},
	}}, nil
}

// PingResponse answers a PingRequest; arrival resets the sender's
// lastHeard clock (§4.4).
type PingResponse struct {
	wire.BaseResponse
}

func (m *PingResponse) TypeID() int32 { return typePingResponse }

func (m *PingResponse) Encode(w *pof.Writer) error { return m.Header.EncodeInto(w) }

func (m *PingResponse) Decode(r *pof.Reader) error { return m.Header.DecodeFrom(r) }
