// Copyright (C) 2014 The Syncthing Authors.
//
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this file,
// You can obtain one at https://mozilla.org/MPL/2.0/.

// Package cache implements the named-cache protocol: the request/
// response/event message taxonomy (type-ids 1-56), the listener
// registry that fans cache events out to registered callbacks, and
// query-cookie streaming. Keys, values, filters and processor payloads
// are always opaque POF-encoded []byte: the facade that would turn
// them into live Go values is out of scope here (§1), so every message
// below treats them as bytes and nothing more.
//
// Message shapes generalize internal/protocol/message.go's flat tagged
// structs (IndexMessage, RequestMessage, ...), one type per wire id,
// each with its own fixed Encode/Decode pair rather than a shared
// reflective marshaler.
package cache

import (
	"github.com/coherence-go/extend/pof"
	"github.com/coherence-go/extend/wire"
)

// Message type-ids, stable per the wire contract (spec §4.5's table).
const (
	TypeSize               int32 = 1
	TypeContainsKey        int32 = 2
	TypeContainsValue      int32 = 3
	TypeGet                int32 = 4
	TypePut                int32 = 5
	TypeRemove             int32 = 6
	TypePutAll             int32 = 7
	TypeClear              int32 = 8
	TypeContainsAll        int32 = 9
	TypeRemoveAll          int32 = 10
	TypeListenerKey        int32 = 11
	TypeListenerFilter     int32 = 12
	TypeCacheEvent         int32 = 13
	TypeGetAll             int32 = 21
	TypeLock               int32 = 31
	TypeUnlock             int32 = 32
	TypeQuery              int32 = 41
	TypeIndex              int32 = 42
	TypeInvoke             int32 = 51
	TypeInvokeAll          int32 = 52
	TypeAggregate          int32 = 53
	TypeAggregateAll       int32 = 54
	TypePriorityTask       int32 = 55
	TypeNoStorageMembers   int32 = 56
)

// responseIDOffset separates a response's wire id from its request's.
// The table above names one id per logical operation; since the
// factory dispatches purely on the incoming message's id, request and
// response still need distinct keys, the same way transport's control
// channel gives OpenConnectionRequest/Response separate iota values.
const responseIDOffset int32 = 1000

// SchedulingPriority is a priority task's scheduling-priority field
// (spec §4.5 "Priority-task semantics").
type SchedulingPriority int8

const (
	PriorityStandard SchedulingPriority = iota
	PriorityFirst
	PriorityImmediate
)

// PriorityTask carries the three settings any invoke/aggregate payload
// advertising itself as a priority task must honour when serialized;
// zero value is "not a priority task", which serializes the protocol
// defaults for all three fields.
type PriorityTask struct {
	IsPriority            bool
	RequestTimeoutMillis   int64
	ExecutionTimeoutMillis int64
	SchedulingPriority     SchedulingPriority
}

func (p PriorityTask) encodeInto(w *pof.Writer) error {
	if err := w.WriteBool(p.IsPriority); err != nil {
		return err
	}
	if err := w.WriteInt64(p.RequestTimeoutMillis); err != nil {
		return err
	}
	if err := w.WriteInt64(p.ExecutionTimeoutMillis); err != nil {
		return err
	}
	return w.WriteInt8(int8(p.SchedulingPriority))
}

func (p *PriorityTask) decodeFrom(r *pof.Reader) error {
	var err error
	if p.IsPriority, err = r.ReadBool(); err != nil {
		return err
	}
	if p.RequestTimeoutMillis, err = r.ReadInt64(); err != nil {
		return err
	}
	if p.ExecutionTimeoutMillis, err = r.ReadInt64(); err != nil {
		return err
	}
	pr, err := r.ReadInt8()
	p.SchedulingPriority = SchedulingPriority(pr)
	return err
}

// SizeRequest asks for the cache's current entry count.
type SizeRequest struct{ wire.BaseRequest }

func (m *SizeRequest) TypeID() int32                { return TypeSize }
func (m *SizeRequest) Encode(w *pof.Writer) error    { return m.Header.EncodeInto(w) }
func (m *SizeRequest) Decode(r *pof.Reader) error    { return m.Header.DecodeFrom(r) }

type SizeResponse struct {
	wire.BaseResponse
	Size int32
}

func (m *SizeResponse) TypeID() int32 { return TypeSize + responseIDOffset }
func (m *SizeResponse) Encode(w *pof.Writer) error {
	if err := m.Header.EncodeInto(w); err != nil {
		return err
	}
	return w.WriteInt32(m.Size)
}
func (m *SizeResponse) Decode(r *pof.Reader) error {
	if err := m.Header.DecodeFrom(r); err != nil {
		return err
	}
	var err error
	m.Size, err = r.ReadInt32()
	return err
}

// ContainsKeyRequest tests whether key is present.
type ContainsKeyRequest struct {
	wire.BaseRequest
	Key []byte
}

func (m *ContainsKeyRequest) TypeID() int32 { return TypeContainsKey }
func (m *ContainsKeyRequest) Encode(w *pof.Writer) error {
	if err := m.Header.EncodeInto(w); err != nil {
		return err
	}
	return w.WriteBinary(m.Key)
}
func (m *ContainsKeyRequest) Decode(r *pof.Reader) error {
	if err := m.Header.DecodeFrom(r); err != nil {
		return err
	}
	var err error
	m.Key, err = r.ReadBinary()
	return err
}

// ContainsValueRequest tests whether value is present anywhere in the
// cache (an O(n) server-side scan, per spec).
type ContainsValueRequest struct {
	wire.BaseRequest
	Value []byte
}

func (m *ContainsValueRequest) TypeID() int32 { return TypeContainsValue }
func (m *ContainsValueRequest) Encode(w *pof.Writer) error {
	if err := m.Header.EncodeInto(w); err != nil {
		return err
	}
	return w.WriteBinary(m.Value)
}
func (m *ContainsValueRequest) Decode(r *pof.Reader) error {
	if err := m.Header.DecodeFrom(r); err != nil {
		return err
	}
	var err error
	m.Value, err = r.ReadBinary()
	return err
}

// BoolResponse answers any request whose entire result is a single
// boolean (ContainsKey, ContainsValue, Lock acquisition). The three
// uses share a wire shape but not a type-id, so the id travels with
// the value rather than being hardcoded on the type.
type BoolResponse struct {
	wire.BaseResponse
	id     int32
	Result bool
}

func newBoolResponse(requestID int32) func() wire.Message {
	return func() wire.Message { return &BoolResponse{id: requestID + responseIDOffset} }
}

func (m *BoolResponse) TypeID() int32 { return m.id }
func (m *BoolResponse) Encode(w *pof.Writer) error {
	if err := m.Header.EncodeInto(w); err != nil {
		return err
	}
	return w.WriteBool(m.Result)
}
func (m *BoolResponse) Decode(r *pof.Reader) error {
	if err := m.Header.DecodeFrom(r); err != nil {
		return err
	}
	var err error
	m.Result, err = r.ReadBool()
	return err
}

// GetRequest fetches a single entry.
type GetRequest struct {
	wire.BaseRequest
	Key []byte
}

func (m *GetRequest) TypeID() int32 { return TypeGet }
func (m *GetRequest) Encode(w *pof.Writer) error {
	if err := m.Header.EncodeInto(w); err != nil {
		return err
	}
	return w.WriteBinary(m.Key)
}
func (m *GetRequest) Decode(r *pof.Reader) error {
	if err := m.Header.DecodeFrom(r); err != nil {
		return err
	}
	var err error
	m.Key, err = r.ReadBinary()
	return err
}

type GetResponse struct {
	wire.BaseResponse
	Present bool
	Value   []byte
}

func (m *GetResponse) TypeID() int32 { return TypeGet + responseIDOffset }
func (m *GetResponse) Encode(w *pof.Writer) error {
	if err := m.Header.EncodeInto(w); err != nil {
		return err
	}
	if err := w.WriteBool(m.Present); err != nil {
		return err
	}
	return w.WriteBinary(m.Value)
}
func (m *GetResponse) Decode(r *pof.Reader) error {
	if err := m.Header.DecodeFrom(r); err != nil {
		return err
	}
	var err error
	if m.Present, err = r.ReadBool(); err != nil {
		return err
	}
	m.Value, err = r.ReadBinary()
	return err
}

// PutRequest inserts or updates an entry. ExpiryMillis == 0 means the
// cache's default expiry; ReturnPrevious requests the prior value back
// in PutResponse.
type PutRequest struct {
	wire.BaseRequest
	Key            []byte
	Value          []byte
	ExpiryMillis   int64
	ReturnPrevious bool
}

func (m *PutRequest) TypeID() int32 { return TypePut }
func (m *PutRequest) Encode(w *pof.Writer) error {
	if err := m.Header.EncodeInto(w); err != nil {
		return err
	}
	if err := w.WriteBinary(m.Key); err != nil {
		return err
	}
	if err := w.WriteBinary(m.Value); err != nil {
		return err
	}
	if err := w.WriteInt64(m.ExpiryMillis); err != nil {
		return err
	}
	return w.WriteBool(m.ReturnPrevious)
}
func (m *PutRequest) Decode(r *pof.Reader) error {
	if err := m.Header.DecodeFrom(r); err != nil {
		return err
	}
	var err error
	if m.Key, err = r.ReadBinary(); err != nil {
		return err
	}
	if m.Value, err = r.ReadBinary(); err != nil {
		return err
	}
	if m.ExpiryMillis, err = r.ReadInt64(); err != nil {
		return err
	}
	m.ReturnPrevious, err = r.ReadBool()
	return err
}

type PutResponse struct {
	wire.BaseResponse
	HadPrevious   bool
	PreviousValue []byte
}

func (m *PutResponse) TypeID() int32 { return TypePut + responseIDOffset }
func (m *PutResponse) Encode(w *pof.Writer) error {
	if err := m.Header.EncodeInto(w); err != nil {
		return err
	}
	if err := w.WriteBool(m.HadPrevious); err != nil {
		return err
	}
	return w.WriteBinary(m.PreviousValue)
}
func (m *PutResponse) Decode(r *pof.Reader) error {
	if err := m.Header.DecodeFrom(r); err != nil {
		return err
	}
	var err error
	if m.HadPrevious, err = r.ReadBool(); err != nil {
		return err
	}
	m.PreviousValue, err = r.ReadBinary()
	return err
}

// RemoveRequest deletes an entry, optionally returning its prior value.
type RemoveRequest struct {
	wire.BaseRequest
	Key            []byte
	ReturnPrevious bool
}

func (m *RemoveRequest) TypeID() int32 { return TypeRemove }
func (m *RemoveRequest) Encode(w *pof.Writer) error {
	if err := m.Header.EncodeInto(w); err != nil {
		return err
	}
	if err := w.WriteBinary(m.Key); err != nil {
		return err
	}
	return w.WriteBool(m.ReturnPrevious)
}
func (m *RemoveRequest) Decode(r *pof.Reader) error {
	if err := m.Header.DecodeFrom(r); err != nil {
		return err
	}
	var err error
	if m.Key, err = r.ReadBinary(); err != nil {
		return err
	}
	m.ReturnPrevious, err = r.ReadBool()
	return err
}

// RemoveResponse reuses PutResponse's shape (hadPrevious/previousValue).
type RemoveResponse struct {
	wire.BaseResponse
	HadPrevious   bool
	PreviousValue []byte
}

func (m *RemoveResponse) TypeID() int32 { return TypeRemove + responseIDOffset }
func (m *RemoveResponse) Encode(w *pof.Writer) error {
	if err := m.Header.EncodeInto(w); err != nil {
		return err
	}
	if err := w.WriteBool(m.HadPrevious); err != nil {
		return err
	}
	return w.WriteBinary(m.PreviousValue)
}
func (m *RemoveResponse) Decode(r *pof.Reader) error {
	if err := m.Header.DecodeFrom(r); err != nil {
		return err
	}
	var err error
	if m.HadPrevious, err = r.ReadBool(); err != nil {
		return err
	}
	m.PreviousValue, err = r.ReadBinary()
	return err
}

// Entry is one key/value pair as it travels in a bulk request.
type Entry struct {
	Key   []byte
	Value []byte
}

func writeEntries(w *pof.Writer, entries []Entry) error {
	if err := w.WriteInt32(int32(len(entries))); err != nil {
		return err
	}
	for _, e := range entries {
		if err := w.WriteBinary(e.Key); err != nil {
			return err
		}
		if err := w.WriteBinary(e.Value); err != nil {
			return err
		}
	}
	return nil
}

func readEntries(r *pof.Reader) ([]Entry, error) {
	n, err := r.ReadInt32()
	if err != nil {
		return nil, err
	}
	entries := make([]Entry, n)
	for i := range entries {
		if entries[i].Key, err = r.ReadBinary(); err != nil {
			return nil, err
		}
		if entries[i].Value, err = r.ReadBinary(); err != nil {
			return nil, err
		}
	}
	return entries, nil
}

func writeKeys(w *pof.Writer, keys [][]byte) error {
	if err := w.WriteInt32(int32(len(keys))); err != nil {
		return err
	}
	for _, k := range keys {
		if err := w.WriteBinary(k); err != nil {
			return err
		}
	}
	return nil
}

func readKeys(r *pof.Reader) ([][]byte, error) {
	n, err := r.ReadInt32()
	if err != nil {
		return nil, err
	}
	keys := make([][]byte, n)
	for i := range keys {
		if keys[i], err = r.ReadBinary(); err != nil {
			return nil, err
		}
	}
	return keys, nil
}

// PutAllRequest inserts many entries in one round trip.
type PutAllRequest struct {
	wire.BaseRequest
	Entries []Entry
}

func (m *PutAllRequest) TypeID() int32 { return TypePutAll }
func (m *PutAllRequest) Encode(w *pof.Writer) error {
	if err := m.Header.EncodeInto(w); err != nil {
		return err
	}
	return writeEntries(w, m.Entries)
}
func (m *PutAllRequest) Decode(r *pof.Reader) error {
	if err := m.Header.DecodeFrom(r); err != nil {
		return err
	}
	var err error
	m.Entries, err = readEntries(r)
	return err
}

// AckResponse answers any request whose result is just success/failure,
// carried entirely by the embedded ResponseHeader's IsFailure flag
// (PutAll, Clear, RemoveAll, Unlock, Index, ListenerKey).
type AckResponse struct {
	wire.BaseResponse
	id int32
}

func newAckResponse(requestID int32) func() wire.Message {
	return func() wire.Message { return &AckResponse{id: requestID + responseIDOffset} }
}

func (m *AckResponse) TypeID() int32             { return m.id }
func (m *AckResponse) Encode(w *pof.Writer) error { return m.Header.EncodeInto(w) }
func (m *AckResponse) Decode(r *pof.Reader) error { return m.Header.DecodeFrom(r) }

// ClearRequest removes every entry.
type ClearRequest struct{ wire.BaseRequest }

func (m *ClearRequest) TypeID() int32             { return TypeClear }
func (m *ClearRequest) Encode(w *pof.Writer) error { return m.Header.EncodeInto(w) }
func (m *ClearRequest) Decode(r *pof.Reader) error { return m.Header.DecodeFrom(r) }

// ContainsAllRequest tests existence for a batch of keys at once.
type ContainsAllRequest struct {
	wire.BaseRequest
	Keys [][]byte
}

func (m *ContainsAllRequest) TypeID() int32 { return TypeContainsAll }
func (m *ContainsAllRequest) Encode(w *pof.Writer) error {
	if err := m.Header.EncodeInto(w); err != nil {
		return err
	}
	return writeKeys(w, m.Keys)
}
func (m *ContainsAllRequest) Decode(r *pof.Reader) error {
	if err := m.Header.DecodeFrom(r); err != nil {
		return err
	}
	var err error
	m.Keys, err = readKeys(r)
	return err
}

type ContainsAllResponse struct {
	wire.BaseResponse
	Present []bool
}

func (m *ContainsAllResponse) TypeID() int32 { return TypeContainsAll + responseIDOffset }
func (m *ContainsAllResponse) Encode(w *pof.Writer) error {
	if err := m.Header.EncodeInto(w); err != nil {
		return err
	}
	if err := w.WriteInt32(int32(len(m.Present))); err != nil {
		return err
	}
	for _, p := range m.Present {
		if err := w.WriteBool(p); err != nil {
			return err
		}
	}
	return nil
}
func (m *ContainsAllResponse) Decode(r *pof.Reader) error {
	if err := m.Header.DecodeFrom(r); err != nil {
		return err
	}
	n, err := r.ReadInt32()
	if err != nil {
		return err
	}
	m.Present = make([]bool, n)
	for i := range m.Present {
		if m.Present[i], err = r.ReadBool(); err != nil {
			return err
		}
	}
	return nil
}

// RemoveAllRequest deletes a batch of keys at once.
type RemoveAllRequest struct {
	wire.BaseRequest
	Keys [][]byte
}

func (m *RemoveAllRequest) TypeID() int32 { return TypeRemoveAll }
func (m *RemoveAllRequest) Encode(w *pof.Writer) error {
	if err := m.Header.EncodeInto(w); err != nil {
		return err
	}
	return writeKeys(w, m.Keys)
}
func (m *RemoveAllRequest) Decode(r *pof.Reader) error {
	if err := m.Header.DecodeFrom(r); err != nil {
		return err
	}
	var err error
	m.Keys, err = readKeys(r)
	return err
}

// ListenerKeyRequest adds or removes a per-key listener.
type ListenerKeyRequest struct {
	wire.BaseRequest
	Key     []byte
	Add     bool
	Lite    bool
	Priming bool
	Trigger []byte
}

func (m *ListenerKeyRequest) TypeID() int32 { return TypeListenerKey }
func (m *ListenerKeyRequest) Encode(w *pof.Writer) error {
	if err := m.Header.EncodeInto(w); err != nil {
		return err
	}
	if err := w.WriteBinary(m.Key); err != nil {
		return err
	}
	if err := w.WriteBool(m.Add); err != nil {
		return err
	}
	if err := w.WriteBool(m.Lite); err != nil {
		return err
	}
	if err := w.WriteBool(m.Priming); err != nil {
		return err
	}
	return w.WriteBinary(m.Trigger)
}
func (m *ListenerKeyRequest) Decode(r *pof.Reader) error {
	if err := m.Header.DecodeFrom(r); err != nil {
		return err
	}
	var err error
	if m.Key, err = r.ReadBinary(); err != nil {
		return err
	}
	if m.Add, err = r.ReadBool(); err != nil {
		return err
	}
	if m.Lite, err = r.ReadBool(); err != nil {
		return err
	}
	if m.Priming, err = r.ReadBool(); err != nil {
		return err
	}
	m.Trigger, err = r.ReadBinary()
	return err
}

// ListenerFilterRequest adds or removes a filter-based listener. On
// add, the server assigns FilterID (carried back in the response); on
// remove, the caller supplies the FilterID it was given.
type ListenerFilterRequest struct {
	wire.BaseRequest
	FilterID int64
	Filter   []byte
	Add      bool
	Lite     bool
}

func (m *ListenerFilterRequest) TypeID() int32 { return TypeListenerFilter }
func (m *ListenerFilterRequest) Encode(w *pof.Writer) error {
	if err := m.Header.EncodeInto(w); err != nil {
		return err
	}
	if err := w.WriteInt64(m.FilterID); err != nil {
		return err
	}
	if err := w.WriteBinary(m.Filter); err != nil {
		return err
	}
	if err := w.WriteBool(m.Add); err != nil {
		return err
	}
	return w.WriteBool(m.Lite)
}
func (m *ListenerFilterRequest) Decode(r *pof.Reader) error {
	if err := m.Header.DecodeFrom(r); err != nil {
		return err
	}
	var err error
	if m.FilterID, err = r.ReadInt64(); err != nil {
		return err
	}
	if m.Filter, err = r.ReadBinary(); err != nil {
		return err
	}
	if m.Add, err = r.ReadBool(); err != nil {
		return err
	}
	m.Lite, err = r.ReadBool()
	return err
}

type ListenerFilterResponse struct {
	wire.BaseResponse
	FilterID int64
}

func (m *ListenerFilterResponse) TypeID() int32 { return TypeListenerFilter + responseIDOffset }
func (m *ListenerFilterResponse) Encode(w *pof.Writer) error {
	if err := m.Header.EncodeInto(w); err != nil {
		return err
	}
	return w.WriteInt64(m.FilterID)
}
func (m *ListenerFilterResponse) Decode(r *pof.Reader) error {
	if err := m.Header.DecodeFrom(r); err != nil {
		return err
	}
	var err error
	m.FilterID, err = r.ReadInt64()
	return err
}

// EventFlags are CacheEvent's bitflags (spec §4.5 "Event flags").
// Unknown bits must be preserved when round-tripping, so the flags
// travel as a raw int32 rather than being unpacked into named bools
// the decode path could silently drop.
type EventFlags int32

const (
	FlagSynthetic EventFlags = 1 << iota
	FlagPriming
	FlagExpired
	FlagTruncate
)

func (f EventFlags) Has(bit EventFlags) bool { return f&bit != 0 }

// TransformState is CacheEvent's transform-state enum.
type TransformState int8

const (
	TransformNone TransformState = iota
	Transformed
	Transformable
)

// CacheEvent is an inbound, one-way notification of an insert/update/
// delete. It implements wire.OrderedMessage: events for one cache must
// observe wire order, so they ride the channel's single ordered-
// delivery goroutine rather than the shared worker pool.
type CacheEvent struct {
	FilterIDs      []int64
	Key            []byte
	OldValue       []byte
	NewValue       []byte
	Flags          EventFlags
	TransformState TransformState
}

func (m *CacheEvent) TypeID() int32         { return TypeCacheEvent }
func (m *CacheEvent) ExecuteInOrder() bool   { return true }
func (m *CacheEvent) Encode(w *pof.Writer) error {
	if err := w.WriteInt32(int32(len(m.FilterIDs))); err != nil {
		return err
	}
	for _, id := range m.FilterIDs {
		if err := w.WriteInt64(id); err != nil {
			return err
		}
	}
	if err := w.WriteBinary(m.Key); err != nil {
		return err
	}
	if err := w.WriteBinary(m.OldValue); err != nil {
		return err
	}
	if err := w.WriteBinary(m.NewValue); err != nil {
		return err
	}
	if err := w.WriteInt32(int32(m.Flags)); err != nil {
		return err
	}
	return w.WriteInt8(int8(m.TransformState))
}
func (m *CacheEvent) Decode(r *pof.Reader) error {
	n, err := r.ReadInt32()
	if err != nil {
		return err
	}
	m.FilterIDs = make([]int64, n)
	for i := range m.FilterIDs {
		if m.FilterIDs[i], err = r.ReadInt64(); err != nil {
			return err
		}
	}
	if m.Key, err = r.ReadBinary(); err != nil {
		return err
	}
	if m.OldValue, err = r.ReadBinary(); err != nil {
		return err
	}
	if m.NewValue, err = r.ReadBinary(); err != nil {
		return err
	}
	flags, err := r.ReadInt32()
	if err != nil {
		return err
	}
	m.Flags = EventFlags(flags)
	ts, err := r.ReadInt8()
	m.TransformState = TransformState(ts)
	return err
}

// GetAllRequest fetches many keys in one round trip.
type GetAllRequest struct {
	wire.BaseRequest
	Keys [][]byte
}

func (m *GetAllRequest) TypeID() int32 { return TypeGetAll }
func (m *GetAllRequest) Encode(w *pof.Writer) error {
	if err := m.Header.EncodeInto(w); err != nil {
		return err
	}
	return writeKeys(w, m.Keys)
}
func (m *GetAllRequest) Decode(r *pof.Reader) error {
	if err := m.Header.DecodeFrom(r); err != nil {
		return err
	}
	var err error
	m.Keys, err = readKeys(r)
	return err
}

type GetAllResponse struct {
	wire.BaseResponse
	Entries []Entry
}

func (m *GetAllResponse) TypeID() int32 { return TypeGetAll + responseIDOffset }
func (m *GetAllResponse) Encode(w *pof.Writer) error {
	if err := m.Header.EncodeInto(w); err != nil {
		return err
	}
	return writeEntries(w, m.Entries)
}
func (m *GetAllResponse) Decode(r *pof.Reader) error {
	if err := m.Header.DecodeFrom(r); err != nil {
		return err
	}
	var err error
	m.Entries, err = readEntries(r)
	return err
}

// LockRequest requests an advisory lock on key, waiting up to
// WaitMillis (0 = don't wait, <0 = wait forever).
type LockRequest struct {
	wire.BaseRequest
	Key       []byte
	WaitMillis int64
}

func (m *LockRequest) TypeID() int32 { return TypeLock }
func (m *LockRequest) Encode(w *pof.Writer) error {
	if err := m.Header.EncodeInto(w); err != nil {
		return err
	}
	if err := w.WriteBinary(m.Key); err != nil {
		return err
	}
	return w.WriteInt64(m.WaitMillis)
}
func (m *LockRequest) Decode(r *pof.Reader) error {
	if err := m.Header.DecodeFrom(r); err != nil {
		return err
	}
	var err error
	if m.Key, err = r.ReadBinary(); err != nil {
		return err
	}
	m.WaitMillis, err = r.ReadInt64()
	return err
}

// UnlockRequest releases a previously acquired lock.
type UnlockRequest struct {
	wire.BaseRequest
	Key []byte
}

func (m *UnlockRequest) TypeID() int32 { return TypeUnlock }
func (m *UnlockRequest) Encode(w *pof.Writer) error {
	if err := m.Header.EncodeInto(w); err != nil {
		return err
	}
	return w.WriteBinary(m.Key)
}
func (m *UnlockRequest) Decode(r *pof.Reader) error {
	if err := m.Header.DecodeFrom(r); err != nil {
		return err
	}
	var err error
	m.Key, err = r.ReadBinary()
	return err
}

// QueryRequest asks for keys or entries matching Filter, resuming from
// Cookie if non-nil (spec §4.5 "Query streaming").
type QueryRequest struct {
	wire.BaseRequest
	Filter   []byte
	KeysOnly bool
	Cookie   []byte
}

func (m *QueryRequest) TypeID() int32 { return TypeQuery }
func (m *QueryRequest) Encode(w *pof.Writer) error {
	if err := m.Header.EncodeInto(w); err != nil {
		return err
	}
	if err := w.WriteBinary(m.Filter); err != nil {
		return err
	}
	if err := w.WriteBool(m.KeysOnly); err != nil {
		return err
	}
	return w.WriteBinary(m.Cookie)
}
func (m *QueryRequest) Decode(r *pof.Reader) error {
	if err := m.Header.DecodeFrom(r); err != nil {
		return err
	}
	var err error
	if m.Filter, err = r.ReadBinary(); err != nil {
		return err
	}
	if m.KeysOnly, err = r.ReadBool(); err != nil {
		return err
	}
	m.Cookie, err = r.ReadBinary()
	return err
}

// QueryResponse carries one page of results plus a continuation cookie;
// a nil Cookie signals the query is exhausted.
type QueryResponse struct {
	wire.BaseResponse
	Entries []Entry
	Cookie  []byte
}

func (m *QueryResponse) TypeID() int32 { return TypeQuery + responseIDOffset }
func (m *QueryResponse) Encode(w *pof.Writer) error {
	if err := m.Header.EncodeInto(w); err != nil {
		return err
	}
	if err := writeEntries(w, m.Entries); err != nil {
		return err
	}
	return w.WriteBinary(m.Cookie)
}
func (m *QueryResponse) Decode(r *pof.Reader) error {
	if err := m.Header.DecodeFrom(r); err != nil {
		return err
	}
	var err error
	if m.Entries, err = readEntries(r); err != nil {
		return err
	}
	m.Cookie, err = r.ReadBinary()
	return err
}

// IndexRequest adds or removes a server-side index.
type IndexRequest struct {
	wire.BaseRequest
	Extractor  []byte
	Ordered    bool
	Comparator []byte
	Add        bool
}

func (m *IndexRequest) TypeID() int32 { return TypeIndex }
func (m *IndexRequest) Encode(w *pof.Writer) error {
	if err := m.Header.EncodeInto(w); err != nil {
		return err
	}
	if err := w.WriteBinary(m.Extractor); err != nil {
		return err
	}
	if err := w.WriteBool(m.Ordered); err != nil {
		return err
	}
	if err := w.WriteBinary(m.Comparator); err != nil {
		return err
	}
	return w.WriteBool(m.Add)
}
func (m *IndexRequest) Decode(r *pof.Reader) error {
	if err := m.Header.DecodeFrom(r); err != nil {
		return err
	}
	var err error
	if m.Extractor, err = r.ReadBinary(); err != nil {
		return err
	}
	if m.Ordered, err = r.ReadBool(); err != nil {
		return err
	}
	if m.Comparator, err = r.ReadBinary(); err != nil {
		return err
	}
	m.Add, err = r.ReadBool()
	return err
}

// InvokeRequest runs an opaque entry processor against a single key.
type InvokeRequest struct {
	wire.BaseRequest
	Key       []byte
	Processor []byte
	PriorityTask
}

func (m *InvokeRequest) TypeID() int32 { return TypeInvoke }
func (m *InvokeRequest) Encode(w *pof.Writer) error {
	if err := m.Header.EncodeInto(w); err != nil {
		return err
	}
	if err := w.WriteBinary(m.Key); err != nil {
		return err
	}
	if err := w.WriteBinary(m.Processor); err != nil {
		return err
	}
	return m.PriorityTask.encodeInto(w)
}
func (m *InvokeRequest) Decode(r *pof.Reader) error {
	if err := m.Header.DecodeFrom(r); err != nil {
		return err
	}
	var err error
	if m.Key, err = r.ReadBinary(); err != nil {
		return err
	}
	if m.Processor, err = r.ReadBinary(); err != nil {
		return err
	}
	return m.PriorityTask.decodeFrom(r)
}

// InvokeAllRequest runs an opaque entry processor against every key
// matching Filter (or every key in Keys, if Filter is nil).
type InvokeAllRequest struct {
	wire.BaseRequest
	Keys      [][]byte
	Filter    []byte
	Processor []byte
	PriorityTask
}

func (m *InvokeAllRequest) TypeID() int32 { return TypeInvokeAll }
func (m *InvokeAllRequest) Encode(w *pof.Writer) error {
	if err := m.Header.EncodeInto(w); err != nil {
		return err
	}
	if err := writeKeys(w, m.Keys); err != nil {
		return err
	}
	if err := w.WriteBinary(m.Filter); err != nil {
		return err
	}
	if err := w.WriteBinary(m.Processor); err != nil {
		return err
	}
	return m.PriorityTask.encodeInto(w)
}
func (m *InvokeAllRequest) Decode(r *pof.Reader) error {
	if err := m.Header.DecodeFrom(r); err != nil {
		return err
	}
	var err error
	if m.Keys, err = readKeys(r); err != nil {
		return err
	}
	if m.Filter, err = r.ReadBinary(); err != nil {
		return err
	}
	if m.Processor, err = r.ReadBinary(); err != nil {
		return err
	}
	return m.PriorityTask.decodeFrom(r)
}

// InvokeResponse carries one opaque, already POF-encoded processor
// result (keyed results for InvokeAll travel as Entries). Shared
// between Invoke and InvokeAll, so its wire id travels with the value.
type InvokeResponse struct {
	wire.BaseResponse
	id      int32
	Result  []byte
	Entries []Entry
}

func newInvokeResponse(requestID int32) func() wire.Message {
	return func() wire.Message { return &InvokeResponse{id: requestID + responseIDOffset} }
}

func (m *InvokeResponse) TypeID() int32 { return m.id }
func (m *InvokeResponse) Encode(w *pof.Writer) error {
	if err := m.Header.EncodeInto(w); err != nil {
		return err
	}
	if err := w.WriteBinary(m.Result); err != nil {
		return err
	}
	return writeEntries(w, m.Entries)
}
func (m *InvokeResponse) Decode(r *pof.Reader) error {
	if err := m.Header.DecodeFrom(r); err != nil {
		return err
	}
	var err error
	if m.Result, err = r.ReadBinary(); err != nil {
		return err
	}
	m.Entries, err = readEntries(r)
	return err
}

// AggregateRequest runs an opaque aggregator over entries matching
// Filter (or Keys, if Filter is nil).
type AggregateRequest struct {
	wire.BaseRequest
	Keys       [][]byte
	Filter     []byte
	Aggregator []byte
	PriorityTask
}

func (m *AggregateRequest) TypeID() int32 { return TypeAggregate }
func (m *AggregateRequest) Encode(w *pof.Writer) error {
	if err := m.Header.EncodeInto(w); err != nil {
		return err
	}
	if err := writeKeys(w, m.Keys); err != nil {
		return err
	}
	if err := w.WriteBinary(m.Filter); err != nil {
		return err
	}
	if err := w.WriteBinary(m.Aggregator); err != nil {
		return err
	}
	return m.PriorityTask.encodeInto(w)
}
func (m *AggregateRequest) Decode(r *pof.Reader) error {
	if err := m.Header.DecodeFrom(r); err != nil {
		return err
	}
	var err error
	if m.Keys, err = readKeys(r); err != nil {
		return err
	}
	if m.Filter, err = r.ReadBinary(); err != nil {
		return err
	}
	if m.Aggregator, err = r.ReadBinary(); err != nil {
		return err
	}
	return m.PriorityTask.decodeFrom(r)
}

// AggregateAllRequest is AggregateRequest's GetAll-style bulk-keys twin
// (id 54): present as a distinct type solely so factory dispatch and
// any per-message metrics can tell the two apart on the wire, even
// though their payload shape is identical today.
type AggregateAllRequest struct {
	AggregateRequest
}

func (m *AggregateAllRequest) TypeID() int32 { return TypeAggregateAll }

// AggregateResponse carries one opaque, already POF-encoded aggregation
// result. Shared between Aggregate and AggregateAll, so its wire id
// travels with the value.
type AggregateResponse struct {
	wire.BaseResponse
	id     int32
	Result []byte
}

func newAggregateResponse(requestID int32) func() wire.Message {
	return func() wire.Message { return &AggregateResponse{id: requestID + responseIDOffset} }
}

func (m *AggregateResponse) TypeID() int32 { return m.id }
func (m *AggregateResponse) Encode(w *pof.Writer) error {
	if err := m.Header.EncodeInto(w); err != nil {
		return err
	}
	return w.WriteBinary(m.Result)
}
func (m *AggregateResponse) Decode(r *pof.Reader) error {
	if err := m.Header.DecodeFrom(r); err != nil {
		return err
	}
	var err error
	m.Result, err = r.ReadBinary()
	return err
}

// PriorityTaskRequest (id 55) carries an arbitrary opaque task payload
// that is itself a priority task but not one of the named invoke/
// aggregate shapes above — the generic escape hatch spec §4.5 leaves
// room for under "Aggregate / Invoke variants".
type PriorityTaskRequest struct {
	wire.BaseRequest
	Payload []byte
	PriorityTask
}

func (m *PriorityTaskRequest) TypeID() int32 { return TypePriorityTask }
func (m *PriorityTaskRequest) Encode(w *pof.Writer) error {
	if err := m.Header.EncodeInto(w); err != nil {
		return err
	}
	if err := w.WriteBinary(m.Payload); err != nil {
		return err
	}
	return m.PriorityTask.encodeInto(w)
}
func (m *PriorityTaskRequest) Decode(r *pof.Reader) error {
	if err := m.Header.DecodeFrom(r); err != nil {
		return err
	}
	var err error
	if m.Payload, err = r.ReadBinary(); err != nil {
		return err
	}
	return m.PriorityTask.decodeFrom(r)
}

// NoStorageMembers is a one-way deactivation signal: the cluster has no
// storage-enabled members, so the cache is effectively gone until one
// rejoins. It must be delivered in order relative to any CacheEvent on
// the same channel, so it also implements wire.OrderedMessage.
type NoStorageMembers struct{}

func (m *NoStorageMembers) TypeID() int32          { return TypeNoStorageMembers }
func (m *NoStorageMembers) ExecuteInOrder() bool    { return true }
func (m *NoStorageMembers) Encode(w *pof.Writer) error { return nil }
func (m *NoStorageMembers) Decode(r *pof.Reader) error { return nil }
