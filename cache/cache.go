// Copyright (C) 2014 The Syncthing Authors.
//
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this file,
// You can obtain one at https://mozilla.org/MPL/2.0/.

package cache

import (
	"context"
	"time"

	"github.com/coherence-go/extend/channel"
	"github.com/coherence-go/extend/protocolerr"
	"github.com/coherence-go/extend/wire"
)

// Cache drives the named-cache protocol over one dedicated channel. It
// is not a full NamedCache facade (query filters, aggregators and
// entry processors as business logic stay opaque bytes here) — it
// is the thin request/response/listener surface the facade would be
// built on, enough to exercise the whole wire engine end to end.
type Cache struct {
	Name     string
	Channel  *channel.Channel
	Registry *Registry
}

// New wraps ch (already opened for Protocol) as a Cache named name,
// backed by registry for listener fan-out. ch's Receiver must be
// registry for inbound CacheEvent/NoStorageMembers to reach it.
func New(name string, ch *channel.Channel, registry *Registry) *Cache {
	return &Cache{Name: name, Channel: ch, Registry: registry}
}

func (c *Cache) request(ctx context.Context, req wire.Request, timeout time.Duration) (wire.Message, error) {
	return c.Channel.Request(ctx, req, timeout)
}

// Size returns the cache's current entry count.
func (c *Cache) Size(ctx context.Context) (int64, error) {
	resp, err := c.request(ctx, &SizeRequest{}, -1)
	if err != nil {
		return 0, err
	}
	sr, ok := resp.(*SizeResponse)
	if !ok {
		return 0, unexpectedResponse(resp)
	}
	return int64(sr.Size), nil
}

// ContainsKey reports whether key is present.
func (c *Cache) ContainsKey(ctx context.Context, key []byte) (bool, error) {
	resp, err := c.request(ctx, &ContainsKeyRequest{Key: key}, -1)
	if err != nil {
		return false, err
	}
	br, ok := resp.(*BoolResponse)
	if !ok {
		return false, unexpectedResponse(resp)
	}
	return br.Result, nil
}

// ContainsValue reports whether value is present anywhere in the cache.
func (c *Cache) ContainsValue(ctx context.Context, value []byte) (bool, error) {
	resp, err := c.request(ctx, &ContainsValueRequest{Value: value}, -1)
	if err != nil {
		return false, err
	}
	br, ok := resp.(*BoolResponse)
	if !ok {
		return false, unexpectedResponse(resp)
	}
	return br.Result, nil
}

// Get fetches key. present reports whether key was found; value is nil
// when it was not.
func (c *Cache) Get(ctx context.Context, key []byte) (value []byte, present bool, err error) {
	resp, err := c.request(ctx, &GetRequest{Key: key}, -1)
	if err != nil {
		return nil, false, err
	}
	gr, ok := resp.(*GetResponse)
	if !ok {
		return nil, false, unexpectedResponse(resp)
	}
	return gr.Value, gr.Present, nil
}

// GetAll fetches many keys in one round trip.
func (c *Cache) GetAll(ctx context.Context, keys [][]byte) ([]Entry, error) {
	resp, err := c.request(ctx, &GetAllRequest{Keys: keys}, -1)
	if err != nil {
		return nil, err
	}
	gr, ok := resp.(*GetAllResponse)
	if !ok {
		return nil, unexpectedResponse(resp)
	}
	return gr.Entries, nil
}

// Put inserts or updates key; expiry == 0 uses the cache's default. It
// returns the previous value, if returnPrevious was requested and one
// existed.
func (c *Cache) Put(ctx context.Context, key, value []byte, expiry time.Duration, returnPrevious bool) (previous []byte, hadPrevious bool, err error) {
	resp, err := c.request(ctx, &PutRequest{
		Key: key, Value: value,
		ExpiryMillis:   expiry.Milliseconds(),
		ReturnPrevious: returnPrevious,
	}, -1)
	if err != nil {
		return nil, false, err
	}
	pr, ok := resp.(*PutResponse)
	if !ok {
		return nil, false, unexpectedResponse(resp)
	}
	return pr.PreviousValue, pr.HadPrevious, nil
}

// PutAll inserts many entries in one round trip.
func (c *Cache) PutAll(ctx context.Context, entries []Entry) error {
	_, err := c.request(ctx, &PutAllRequest{Entries: entries}, -1)
	return err
}

// Remove deletes key, optionally returning its prior value.
func (c *Cache) Remove(ctx context.Context, key []byte, returnPrevious bool) (previous []byte, hadPrevious bool, err error) {
	resp, err := c.request(ctx, &RemoveRequest{Key: key, ReturnPrevious: returnPrevious}, -1)
	if err != nil {
		return nil, false, err
	}
	rr, ok := resp.(*RemoveResponse)
	if !ok {
		return nil, false, unexpectedResponse(resp)
	}
	return rr.PreviousValue, rr.HadPrevious, nil
}

// RemoveAll deletes a batch of keys at once.
func (c *Cache) RemoveAll(ctx context.Context, keys [][]byte) error {
	_, err := c.request(ctx, &RemoveAllRequest{Keys: keys}, -1)
	return err
}

// Clear removes every entry.
func (c *Cache) Clear(ctx context.Context) error {
	_, err := c.request(ctx, &ClearRequest{}, -1)
	return err
}

// ContainsAll reports, per key in the same order, whether each is present.
func (c *Cache) ContainsAll(ctx context.Context, keys [][]byte) ([]bool, error) {
	resp, err := c.request(ctx, &ContainsAllRequest{Keys: keys}, -1)
	if err != nil {
		return nil, err
	}
	cr, ok := resp.(*ContainsAllResponse)
	if !ok {
		return nil, unexpectedResponse(resp)
	}
	return cr.Present, nil
}

// Lock requests an advisory lock on key, waiting up to wait before
// giving up. wait is sent in whole milliseconds: 0 does not wait, and a
// negative wait waits forever.
func (c *Cache) Lock(ctx context.Context, key []byte, wait time.Duration) (bool, error) {
	resp, err := c.request(ctx, &LockRequest{Key: key, WaitMillis: wait.Milliseconds()}, -1)
	if err != nil {
		return false, err
	}
	br, ok := resp.(*BoolResponse)
	if !ok {
		return false, unexpectedResponse(resp)
	}
	return br.Result, nil
}

// Unlock releases a previously acquired lock.
func (c *Cache) Unlock(ctx context.Context, key []byte) error {
	_, err := c.request(ctx, &UnlockRequest{Key: key}, -1)
	return err
}

// AddIndex adds a server-side index built from extractor (and, for an
// ordered index, comparator).
func (c *Cache) AddIndex(ctx context.Context, extractor, comparator []byte, ordered bool) error {
	_, err := c.request(ctx, &IndexRequest{Extractor: extractor, Comparator: comparator, Ordered: ordered, Add: true}, -1)
	return err
}

// RemoveIndex removes a previously added index.
func (c *Cache) RemoveIndex(ctx context.Context, extractor []byte) error {
	_, err := c.request(ctx, &IndexRequest{Extractor: extractor, Add: false}, -1)
	return err
}

// Invoke runs processor against key's entry, returning its opaque
// result.
func (c *Cache) Invoke(ctx context.Context, key, processor []byte, task PriorityTask) ([]byte, error) {
	resp, err := c.request(ctx, &InvokeRequest{Key: key, Processor: processor, PriorityTask: task}, invokeTimeout(task))
	if err != nil {
		return nil, err
	}
	ir, ok := resp.(*InvokeResponse)
	if !ok {
		return nil, unexpectedResponse(resp)
	}
	return ir.Result, nil
}

// InvokeAll runs processor against every key matching filter (or every
// key in keys, if filter is nil), returning one entry per affected key.
func (c *Cache) InvokeAll(ctx context.Context, keys [][]byte, filter, processor []byte, task PriorityTask) ([]Entry, error) {
	resp, err := c.request(ctx, &InvokeAllRequest{Keys: keys, Filter: filter, Processor: processor, PriorityTask: task}, invokeTimeout(task))
	if err != nil {
		return nil, err
	}
	ir, ok := resp.(*InvokeResponse)
	if !ok {
		return nil, unexpectedResponse(resp)
	}
	return ir.Entries, nil
}

// Aggregate runs aggregator over entries matching filter (or keys, if
// filter is nil), returning its opaque result.
func (c *Cache) Aggregate(ctx context.Context, keys [][]byte, filter, aggregator []byte, task PriorityTask) ([]byte, error) {
	req := &AggregateRequest{Keys: keys, Filter: filter, Aggregator: aggregator, PriorityTask: task}
	resp, err := c.request(ctx, req, invokeTimeout(task))
	if err != nil {
		return nil, err
	}
	ar, ok := resp.(*AggregateResponse)
	if !ok {
		return nil, unexpectedResponse(resp)
	}
	return ar.Result, nil
}

func invokeTimeout(task PriorityTask) time.Duration {
	if task.IsPriority && task.ExecutionTimeoutMillis > 0 {
		return time.Duration(task.ExecutionTimeoutMillis) * time.Millisecond
	}
	return -1
}

// QueryIterator walks a query's result pages, issuing a further
// QueryRequest carrying the server's continuation cookie until it
// comes back nil.
type QueryIterator struct {
	cache    *Cache
	filter   []byte
	keysOnly bool
	cookie   []byte
	done     bool
}

// Query begins a streaming query for filter; keysOnly trims values from
// the results.
func (c *Cache) Query(filter []byte, keysOnly bool) *QueryIterator {
	return &QueryIterator{cache: c, filter: filter, keysOnly: keysOnly}
}

// Next fetches the next page. An empty, non-nil slice with err == nil
// and no more pages left is possible; callers should loop until Done
// reports true.
func (q *QueryIterator) Next(ctx context.Context) ([]Entry, error) {
	if q.done {
		return nil, nil
	}
	resp, err := q.cache.request(ctx, &QueryRequest{Filter: q.filter, KeysOnly: q.keysOnly, Cookie: q.cookie}, -1)
	if err != nil {
		return nil, err
	}
	qr, ok := resp.(*QueryResponse)
	if !ok {
		return nil, unexpectedResponse(resp)
	}
	q.cookie = qr.Cookie
	if q.cookie == nil {
		q.done = true
	}
	return qr.Entries, nil
}

// Done reports whether the query is exhausted.
func (q *QueryIterator) Done() bool { return q.done }

// All drains the iterator, concatenating every page: the client loops
// until the cookie is absent, concatenating results.
func (q *QueryIterator) All(ctx context.Context) ([]Entry, error) {
	var all []Entry
	for !q.done {
		page, err := q.Next(ctx)
		if err != nil {
			return nil, err
		}
		all = append(all, page...)
	}
	return all, nil
}

// AddKeyListener adds a listener for key, via both the server (a
// ListenerKeyRequest) and the local registry.
func (c *Cache) AddKeyListener(ctx context.Context, key []byte, lite, priming bool, l EntryListener) (ListenerHandle, error) {
	h := c.Registry.AddKeyListener(key, l)
	if _, err := c.request(ctx, &ListenerKeyRequest{Key: key, Add: true, Lite: lite, Priming: priming}, -1); err != nil {
		c.Registry.RemoveKeyListener(key, h)
		return 0, err
	}
	return h, nil
}

// RemoveKeyListener undoes AddKeyListener.
func (c *Cache) RemoveKeyListener(ctx context.Context, key []byte, h ListenerHandle) error {
	c.Registry.RemoveKeyListener(key, h)
	_, err := c.request(ctx, &ListenerKeyRequest{Key: key, Add: false}, -1)
	return err
}

// AddFilterListener registers filter with the server, which assigns a
// filter id, and binds l to fire for events carrying that id.
func (c *Cache) AddFilterListener(ctx context.Context, filter []byte, lite bool, l EntryListener) (int64, ListenerHandle, error) {
	resp, err := c.request(ctx, &ListenerFilterRequest{Filter: filter, Add: true, Lite: lite}, -1)
	if err != nil {
		return 0, 0, err
	}
	fr, ok := resp.(*ListenerFilterResponse)
	if !ok {
		return 0, 0, unexpectedResponse(resp)
	}
	h := c.Registry.AddFilterListener(fr.FilterID, l)
	return fr.FilterID, h, nil
}

// RemoveFilterListener undoes AddFilterListener.
func (c *Cache) RemoveFilterListener(ctx context.Context, filterID int64, h ListenerHandle) error {
	c.Registry.RemoveFilterListener(filterID, h)
	_, err := c.request(ctx, &ListenerFilterRequest{FilterID: filterID, Add: false}, -1)
	return err
}

func unexpectedResponse(resp wire.Message) error {
	return &protocolerr.ProtocolError{Cause: &unexpectedResponseError{resp}}
}

type unexpectedResponseError struct{ resp wire.Message }

func (e *unexpectedResponseError) Error() string {
	if e.resp == nil {
		return "unexpected nil response"
	}
	return "unexpected response type for request"
}
