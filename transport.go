// Copyright 2012 The GoSNMP Authors. All rights reserved.  Use of this
// source code is governed by a BSD-style license that can be found in the
// LICENSE file.

package snmp

import (
	"context"
	"crypto/rand"
	"encoding/binary"
	"net"
	"sync/atomic"
)

// Transport is the contract a request multiplexer must satisfy (§4.5).
// RoundTrip sends payload (a fully marshaled Message) to addr under the
// correlation key requestID, and blocks until either a reply carrying that
// key arrives, ctx is done, or the transport is closed. Send is a
// fire-and-forget write used for traps/informs that expect no correlated
// reply. AllocRequestID returns a fresh correlation key from the
// transport's own counter: request-ID allocation belongs to the
// multiplexer, not to any one Client sharing it (§3, §4.5, §5), so that
// two Clients pointed at the same Transport never draw colliding IDs.
type Transport interface {
	AllocRequestID() int32
	RoundTrip(ctx context.Context, addr net.Addr, payload []byte, requestID int32) ([]byte, error)
	Send(ctx context.Context, addr net.Addr, payload []byte) error
	LocalAddr() net.Addr
	Close() error
}

// requestIDCounter is the single atomic counter §3/§5 require: one per
// multiplexer, seeded from a random source (not 0 or wall-clock) so two
// multiplexers created in the same process don't start from the same
// value, embedded by value into each concrete Transport.
type requestIDCounter struct {
	v int32
}

func newRequestIDCounter() requestIDCounter {
	var b [4]byte
	if _, err := rand.Read(b[:]); err != nil {
		return requestIDCounter{v: 1}
	}
	seed := int32(binary.BigEndian.Uint32(b[:]) & 0x7fffffff)
	if seed == 0 {
		seed = 1
	}
	return requestIDCounter{v: seed}
}

func (c *requestIDCounter) next() int32 {
	return atomic.AddInt32(&c.v, 1)
}

// ExtractIDFunc pulls the correlation key out of an inbound datagram
// without fully decoding it. UDP and TCP transports are protocol-agnostic
// with respect to SNMP versions, so this is supplied by the caller rather
// than hardcoded to ExtractRequestID.
type ExtractIDFunc func(payload []byte) (int32, error)
