// Copyright (C) 2014 The Syncthing Authors.
//
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this file,
// You can obtain one at https://mozilla.org/MPL/2.0/.

package channel

import (
	"sync/atomic"
	"time"

	"github.com/coherence-go/extend/wire"
)

type completionState int32

const (
	statePending completionState = iota
	stateSucceeded
	stateFailed
	stateCancelled
)

// PendingRequest correlates one outstanding request id with the caller
// blocked waiting for it. A pending request transitions out of pending
// at most once (§3 invariant); the transition is a single CAS so the
// receive goroutine, a timeout, a channel close and an explicit cancel
// can all race to complete it and exactly one wins.
type PendingRequest struct {
	RequestID      uint64
	InitTime       time.Time
	DefaultTimeout time.Duration

	state    atomic.Int32
	done     chan struct{}
	response wire.Message
	err      error
}

func newPendingRequest(id uint64, defaultTimeout time.Duration) *PendingRequest {
	return &PendingRequest{
		RequestID:      id,
		InitTime:       time.Now(),
		DefaultTimeout: defaultTimeout,
		done:           make(chan struct{}),
	}
}

// complete performs the single pending -> terminal transition. Only the
// first caller across all racing completers observes ok == true; every
// other caller's response/err is discarded, matching §5's "late response
// produces no callback" rule.
func (p *PendingRequest) complete(state completionState, resp wire.Message, err error) (ok bool) {
	if !p.state.CompareAndSwap(int32(statePending), int32(state)) {
		return false
	}
	p.response = resp
	p.err = err
	close(p.done)
	return true
}

// Succeed completes the request with a successful response.
func (p *PendingRequest) Succeed(resp wire.Message) bool { return p.complete(stateSucceeded, resp, nil) }

// Fail completes the request with a remote failure (already translated
// to a protocolerr.RequestError by the caller).
func (p *PendingRequest) Fail(err error) bool { return p.complete(stateFailed, nil, err) }

// Cancel completes the request with err, from a timeout, channel close,
// connection error, or explicit cancellation. Idempotent: cancelling an
// already-terminal request is a no-op.
func (p *PendingRequest) Cancel(err error) bool { return p.complete(stateCancelled, nil, err) }

// Done returns a channel closed once the request reaches a terminal
// state.
func (p *PendingRequest) Done() <-chan struct{} { return p.done }

// Result returns the completed request's response and error. Only valid
// after Done() is closed.
func (p *PendingRequest) Result() (wire.Message, error) { return p.response, p.err }

// State reports the pending request's current completion state.
func (p *PendingRequest) State() completionState { return completionState(p.state.Load()) }
