// Copyright 2012 The GoSNMP Authors. All rights reserved.  Use of this
// source code is governed by a BSD-style license that can be found in the
// LICENSE file.

package snmp

import (
	"context"
	"net"
	"sync"
)

// TCPTransport implements Transport over RFC 3430's framing: each SNMP
// message is one self-delimiting BER SEQUENCE, so no length prefix is
// added beyond what the codec already writes. One connection serves one
// target; like UDPTransport it does not retry on its own: a failed round
// trip is surfaced to the caller's retry policy (§4.5).
type TCPTransport struct {
	conn   net.Conn
	logger Logger

	mu      sync.Mutex
	pending map[int32]chan udpResult

	reqIDCounter requestIDCounter

	closeOnce sync.Once
	closed    chan struct{}
	recvDone  chan struct{}

	extractID ExtractIDFunc
}

// NewTCPTransport wraps an already-dialed stream connection.
func NewTCPTransport(conn net.Conn, extractID ExtractIDFunc, logger Logger) *TCPTransport {
	t := &TCPTransport{
		conn:         conn,
		extractID:    extractID,
		logger:       logger,
		pending:      make(map[int32]chan udpResult),
		reqIDCounter: newRequestIDCounter(),
		closed:       make(chan struct{}),
		recvDone:     make(chan struct{}),
	}
	go t.recvLoop()
	return t
}

// AllocRequestID implements Transport.
func (t *TCPTransport) AllocRequestID() int32 { return t.reqIDCounter.next() }

// RoundTrip implements Transport. addr is ignored; a TCPTransport is
// already bound to one target via its underlying connection.
func (t *TCPTransport) RoundTrip(ctx context.Context, addr net.Addr, payload []byte, requestID int32) ([]byte, error) {
	ch := make(chan udpResult, 1)
	t.mu.Lock()
	t.pending[requestID] = ch
	t.mu.Unlock()
	defer func() {
		t.mu.Lock()
		delete(t.pending, requestID)
		t.mu.Unlock()
	}()

	if _, err := t.conn.Write(payload); err != nil {
		return nil, &IoError{Target: t.conn.RemoteAddr(), Err: err}
	}

	select {
	case res := <-ch:
		return res.payload, res.err
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-t.closed:
		return nil, &IoError{Target: t.conn.RemoteAddr(), Err: net.ErrClosed}
	}
}

// Send implements Transport.
func (t *TCPTransport) Send(ctx context.Context, addr net.Addr, payload []byte) error {
	if _, err := t.conn.Write(payload); err != nil {
		return &IoError{Target: t.conn.RemoteAddr(), Err: err}
	}
	return nil
}

func (t *TCPTransport) LocalAddr() net.Addr { return t.conn.LocalAddr() }

// Close shuts down the connection and releases every outstanding waiter.
func (t *TCPTransport) Close() error {
	var err error
	t.closeOnce.Do(func() {
		close(t.closed)
		err = t.conn.Close()
		<-t.recvDone
		t.mu.Lock()
		for id, ch := range t.pending {
			ch <- udpResult{err: &IoError{Target: t.conn.RemoteAddr(), Err: net.ErrClosed}}
			delete(t.pending, id)
		}
		t.mu.Unlock()
	})
	return err
}

// recvLoop decodes one self-delimiting BER SEQUENCE at a time off the
// stream. A partial message at EOF is a transport error, not a decode
// error, since the peer closing mid-message is a connection failure.
func (t *TCPTransport) recvLoop() {
	defer close(t.recvDone)
	var buf []byte
	chunk := make([]byte, rxBufSize)
	for {
		n, err := t.conn.Read(chunk)
		if n > 0 {
			buf = append(buf, chunk[:n]...)
			for {
				msgLen, ok := berMessageLength(buf)
				if !ok {
					break
				}
				if len(buf) < msgLen {
					break
				}
				t.dispatch(append([]byte{}, buf[:msgLen]...))
				buf = buf[msgLen:]
			}
		}
		if err != nil {
			select {
			case <-t.closed:
			default:
				if t.logger.Enabled() {
					t.logger.Printf("snmp: tcp receive error: %v", err)
				}
			}
			return
		}
	}
}

func (t *TCPTransport) dispatch(payload []byte) {
	id, err := t.extractID(payload)
	if err != nil {
		if t.logger.Enabled() {
			t.logger.Printf("snmp: dropping unparseable tcp message: %v", err)
		}
		return
	}
	t.mu.Lock()
	ch, ok := t.pending[id]
	if ok {
		delete(t.pending, id)
	}
	t.mu.Unlock()
	if ok {
		ch <- udpResult{payload: payload}
	}
}

// berMessageLength reports the total byte length (header+content) of the
// leading BER TLV in buf, and whether buf holds enough bytes to know that
// length yet.
func berMessageLength(buf []byte) (int, bool) {
	if len(buf) < 2 {
		return 0, false
	}
	if buf[1] < 0x80 {
		return 2 + int(buf[1]), true
	}
	numLenBytes := int(buf[1] &^ 0x80)
	if numLenBytes == 0 || numLenBytes > 4 {
		return 0, false
	}
	if len(buf) < 2+numLenBytes {
		return 0, false
	}
	length := 0
	for _, b := range buf[2 : 2+numLenBytes] {
		length = length<<8 | int(b)
	}
	return 2 + numLenBytes + length, true
}
