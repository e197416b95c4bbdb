// Copyright (C) 2014 The Syncthing Authors.
//
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this file,
// You can obtain one at https://mozilla.org/MPL/2.0/.

package cache

import "github.com/coherence-go/extend/wire"

// Protocol is the name a connection's OpenChannelRequest advertises to
// bind a channel to the named-cache protocol (transport.OpenChannel's
// protocol argument).
const Protocol = "NamedCache"

// Factory returns the wire.MessageFactory for the named-cache protocol:
// every request id 1-56 from §4.5's table plus its response
// counterpart. Response type ids that several requests share
// (BoolResponse, AckResponse, InvokeResponse, AggregateResponse) are
// registered once per distinct wire id they can arrive under, since
// MessageFactory dispatches purely on the incoming id.
func Factory() wire.MessageFactory {
	return wire.NewStaticFactory(map[int32]func() wire.Message{
		TypeSize:     func() wire.Message { return &SizeRequest{} },
		TypeSize + responseIDOffset: func() wire.Message { return &SizeResponse{} },

		TypeContainsKey:                     func() wire.Message { return &ContainsKeyRequest{} },
		TypeContainsKey + responseIDOffset:  newBoolResponse(TypeContainsKey),
		TypeContainsValue:                    func() wire.Message { return &ContainsValueRequest{} },
		TypeContainsValue + responseIDOffset: newBoolResponse(TypeContainsValue),

		TypeGet:                    func() wire.Message { return &GetRequest{} },
		TypeGet + responseIDOffset: func() wire.Message { return &GetResponse{} },

		TypePut:                    func() wire.Message { return &PutRequest{} },
		TypePut + responseIDOffset: func() wire.Message { return &PutResponse{} },

		TypeRemove:                    func() wire.Message { return &RemoveRequest{} },
		TypeRemove + responseIDOffset: func() wire.Message { return &RemoveResponse{} },

		TypePutAll:                    func() wire.Message { return &PutAllRequest{} },
		TypePutAll + responseIDOffset: newAckResponse(TypePutAll),

		TypeClear:                    func() wire.Message { return &ClearRequest{} },
		TypeClear + responseIDOffset: newAckResponse(TypeClear),

		TypeContainsAll:                    func() wire.Message { return &ContainsAllRequest{} },
		TypeContainsAll + responseIDOffset: func() wire.Message { return &ContainsAllResponse{} },

		TypeRemoveAll:                    func() wire.Message { return &RemoveAllRequest{} },
		TypeRemoveAll + responseIDOffset: newAckResponse(TypeRemoveAll),

		TypeListenerKey:                    func() wire.Message { return &ListenerKeyRequest{} },
		TypeListenerKey + responseIDOffset: newAckResponse(TypeListenerKey),

		TypeListenerFilter:                    func() wire.Message { return &ListenerFilterRequest{} },
		TypeListenerFilter + responseIDOffset: func() wire.Message { return &ListenerFilterResponse{} },

		TypeCacheEvent: func() wire.Message { return &CacheEvent{} },

		TypeGetAll:                    func() wire.Message { return &GetAllRequest{} },
		TypeGetAll + responseIDOffset: func() wire.Message { return &GetAllResponse{} },

		TypeLock:                    func() wire.Message { return &LockRequest{} },
		TypeLock + responseIDOffset: newBoolResponse(TypeLock),

		TypeUnlock:                    func() wire.Message { return &UnlockRequest{} },
		TypeUnlock + responseIDOffset: newAckResponse(TypeUnlock),

		TypeQuery:                    func() wire.Message { return &QueryRequest{} },
		TypeQuery + responseIDOffset: func() wire.Message { return &QueryResponse{} },

		TypeIndex:                    func() wire.Message { return &IndexRequest{} },
		TypeIndex + responseIDOffset: newAckResponse(TypeIndex),

		TypeInvoke:                    func() wire.Message { return &InvokeRequest{} },
		TypeInvoke + responseIDOffset: newInvokeResponse(TypeInvoke),

		TypeInvokeAll:                    func() wire.Message { return &InvokeAllRequest{} },
		TypeInvokeAll + responseIDOffset: newInvokeResponse(TypeInvokeAll),

		TypeAggregate:                    func() wire.Message { return &AggregateRequest{} },
		TypeAggregate + responseIDOffset: newAggregateResponse(TypeAggregate),

		TypeAggregateAll:                    func() wire.Message { return &AggregateAllRequest{} },
		TypeAggregateAll + responseIDOffset: newAggregateResponse(TypeAggregateAll),

		TypePriorityTask:                    func() wire.Message { return &PriorityTaskRequest{} },
		TypePriorityTask + responseIDOffset: newAckResponse(TypePriorityTask),

		TypeNoStorageMembers: func() wire.Message { return &NoStorageMembers{} },
	})
}
