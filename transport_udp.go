// Copyright 2012 The GoSNMP Authors. All rights reserved.  Use of this
// source code is governed by a BSD-style license that can be found in the
// LICENSE file.

package snmp

import (
	"context"
	"net"
	"sync"
)

// rxBufSize is sized for the largest IPv4/IPv6 UDP datagram a compliant
// agent may send (§4.5).
const rxBufSize = 65535

// numPendingShards bounds lock contention on the pending-request table
// under the 50k+ outstanding-request load named in §5: each shard guards
// an independent map, so unrelated requests never block each other.
const numPendingShards = 64

type pendingRequest struct {
	addr net.Addr
	ch   chan udpResult
}

type udpResult struct {
	payload []byte
	err     error
}

type pendingShard struct {
	mu      sync.Mutex
	pending map[int32]*pendingRequest
}

// UDPTransport multiplexes many concurrent requests over one UDP socket,
// matching inbound datagrams to outstanding requests by a caller-supplied
// correlation key (§4.5, §4.6).
type UDPTransport struct {
	conn      net.PacketConn
	extractID ExtractIDFunc
	logger    Logger

	warnOnSourceMismatch bool

	reqIDCounter requestIDCounter

	shards [numPendingShards]pendingShard

	closeOnce sync.Once
	closed    chan struct{}
	recvDone  chan struct{}
}

// UDPTransportConfig carries the options original_source/transport/shared.rs
// exposes as SharedTransportConfig.
type UDPTransportConfig struct {
	// WarnOnSourceMismatch logs a reply whose source address differs from
	// the request's destination. The reply is delivered either way: v2c/v3
	// agents behind NAT or multihomed hosts legitimately do this, and
	// UDPTransport never refuses a reply for it.
	WarnOnSourceMismatch bool
	Logger               Logger
}

// defaultSocketBufferBytes sizes the kernel socket buffers generously
// enough to absorb a burst against the 50k+ outstanding-request scale
// named in §5 without TuneUDPBuffers needing per-deployment tuning.
const defaultSocketBufferBytes = 4 << 20

// DialUDP opens a UDP socket, tunes its kernel buffers (a no-op outside
// Linux; see sockopt_other.go) and wraps it in a UDPTransport ready to
// pass to NewClient.
func DialUDP(extractID ExtractIDFunc, cfg UDPTransportConfig) (*UDPTransport, error) {
	conn, err := net.ListenUDP("udp", nil)
	if err != nil {
		return nil, &IoError{Err: err}
	}
	if err := TuneUDPBuffers(conn, defaultSocketBufferBytes, defaultSocketBufferBytes); err != nil && cfg.Logger.Enabled() {
		cfg.Logger.Printf("snmp: socket buffer tuning failed: %v", err)
	}
	return NewUDPTransport(conn, extractID, cfg), nil
}

// NewUDPTransport wraps an already-bound PacketConn. extractID is called
// on every inbound datagram to recover its correlation key.
func NewUDPTransport(conn net.PacketConn, extractID ExtractIDFunc, cfg UDPTransportConfig) *UDPTransport {
	t := &UDPTransport{
		conn:                 conn,
		extractID:            extractID,
		logger:               cfg.Logger,
		warnOnSourceMismatch: cfg.WarnOnSourceMismatch,
		reqIDCounter:         newRequestIDCounter(),
		closed:               make(chan struct{}),
		recvDone:             make(chan struct{}),
	}
	for i := range t.shards {
		t.shards[i].pending = make(map[int32]*pendingRequest)
	}
	go t.recvLoop()
	return t
}

// AllocRequestID implements Transport.
func (t *UDPTransport) AllocRequestID() int32 { return t.reqIDCounter.next() }

func (t *UDPTransport) shardFor(requestID int32) *pendingShard {
	return &t.shards[uint32(requestID)%numPendingShards]
}

// RoundTrip implements Transport.
func (t *UDPTransport) RoundTrip(ctx context.Context, addr net.Addr, payload []byte, requestID int32) ([]byte, error) {
	shard := t.shardFor(requestID)
	pr := &pendingRequest{addr: addr, ch: make(chan udpResult, 1)}

	shard.mu.Lock()
	shard.pending[requestID] = pr
	shard.mu.Unlock()

	defer func() {
		shard.mu.Lock()
		delete(shard.pending, requestID)
		shard.mu.Unlock()
	}()

	if _, err := t.conn.WriteTo(payload, addr); err != nil {
		return nil, &IoError{Target: addr, Err: err}
	}

	select {
	case res := <-pr.ch:
		return res.payload, res.err
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-t.closed:
		return nil, &IoError{Target: addr, Err: net.ErrClosed}
	}
}

// Send implements Transport.
func (t *UDPTransport) Send(ctx context.Context, addr net.Addr, payload []byte) error {
	if _, err := t.conn.WriteTo(payload, addr); err != nil {
		return &IoError{Target: addr, Err: err}
	}
	return nil
}

func (t *UDPTransport) LocalAddr() net.Addr { return t.conn.LocalAddr() }

// Close stops the receive loop and releases every outstanding waiter with
// an error, then closes the underlying socket.
func (t *UDPTransport) Close() error {
	var err error
	t.closeOnce.Do(func() {
		close(t.closed)
		err = t.conn.Close()
		<-t.recvDone
		for i := range t.shards {
			shard := &t.shards[i]
			shard.mu.Lock()
			for id, pr := range shard.pending {
				pr.ch <- udpResult{err: &IoError{Target: pr.addr, Err: net.ErrClosed}}
				delete(shard.pending, id)
			}
			shard.mu.Unlock()
		}
	})
	return err
}

func (t *UDPTransport) recvLoop() {
	defer close(t.recvDone)
	buf := make([]byte, rxBufSize)
	for {
		n, from, err := t.conn.ReadFrom(buf)
		if err != nil {
			select {
			case <-t.closed:
				return
			default:
				if t.logger.Enabled() {
					t.logger.Printf("snmp: udp receive error: %v", err)
				}
				continue
			}
		}
		payload := append([]byte{}, buf[:n]...)
		t.dispatch(payload, from)
	}
}

func (t *UDPTransport) dispatch(payload []byte, from net.Addr) {
	id, err := t.extractID(payload)
	if err != nil {
		if t.logger.Enabled() {
			t.logger.Printf("snmp: dropping unparseable datagram from %v: %v", from, err)
		}
		return
	}

	shard := t.shardFor(id)
	shard.mu.Lock()
	pr, ok := shard.pending[id]
	if ok {
		delete(shard.pending, id)
	}
	shard.mu.Unlock()

	if !ok {
		// No outstanding request for this id: either a duplicate reply
		// after timeout, or an unsolicited datagram (trap listener shares
		// no transport with the request path, so this should be rare).
		return
	}

	if t.warnOnSourceMismatch && pr.addr.String() != from.String() && t.logger.Enabled() {
		t.logger.Printf("snmp: reply for request to %v arrived from %v", pr.addr, from)
	}

	pr.ch <- udpResult{payload: payload}
}
