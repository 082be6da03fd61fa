// Copyright 2025 The GoSNMP Authors. All rights reserved.  Use of this
// source code is governed by a BSD-style license that can be found in the
// LICENSE file.

package snmp

import (
	"context"
	"crypto/tls"
	"crypto/x509"
	"net"
	"sync"

	"github.com/pion/dtls/v3"
)

// TSMSecurityModel is the RFC 5591 §2 securityModel value, used in the
// msgSecurityModel field of a v3 message carried over TLS or DTLS.
const TSMSecurityModel int32 = 4

// TSM delegates authentication and privacy entirely to the transport
// (RFC 5591 §8.2): msgAuthoritativeEngineID/msgSecurityParameters are
// empty on the wire, and the handshake's peer certificate, mapped through
// CertMappings, stands in for the USM securityName. TLSTransport and
// DTLSTransport below are Transport implementations a Client can be
// pointed at instead of UDPTransport; Client still builds USM messages
// (msgSecurityModel 3) over them and never sends TSM messages. Only
// TrapListener recognises TSM (msgSecurityModel 4) on received traps.

// TLSTransport implements Transport over a TLS connection to one target,
// satisfying RFC 5591's TLS binding of the Transport Security Model.
type TLSTransport struct {
	*TCPTransport
	peerCert *x509.Certificate
}

// DialTLS opens and handshakes a TLS connection to addr for use as a TSM
// transport. cfg must set ClientAuth appropriately if the agent requires
// mutual authentication (typical for TSM, per RFC 5591 §4.2).
func DialTLS(ctx context.Context, addr string, cfg *tls.Config, extractID ExtractIDFunc, logger Logger) (*TLSTransport, error) {
	dialer := &tls.Dialer{Config: cfg}
	conn, err := dialer.DialContext(ctx, "tcp", addr)
	if err != nil {
		return nil, &IoError{Err: err}
	}
	tlsConn := conn.(*tls.Conn)
	var peerCert *x509.Certificate
	if state := tlsConn.ConnectionState(); len(state.PeerCertificates) > 0 {
		peerCert = state.PeerCertificates[0]
	}
	return &TLSTransport{
		TCPTransport: NewTCPTransport(conn, extractID, logger),
		peerCert:     peerCert,
	}, nil
}

// PeerSecurityName derives the target's TSM securityName from its TLS
// certificate using mappings, per RFC 6353 §5.3.
func (t *TLSTransport) PeerSecurityName(mappings []CertMapping) (string, error) {
	name, err := ExtractSecurityName(t.conn.RemoteAddr(), t.peerCert, mappings)
	if err != nil && t.logger.Enabled() {
		t.logger.Printf("snmp: tls: %v", err)
	}
	return name, err
}

// DTLSTransport implements Transport over a DTLS association to one
// target, satisfying RFC 5591's DTLS binding of the Transport Security
// Model. Unlike TLSTransport it is datagram-based, so it reuses
// UDPTransport's sharded correlation table rather than TCPTransport's
// stream framer.
type DTLSTransport struct {
	conn     *dtls.Conn
	peerCert *x509.Certificate
	logger   Logger

	shards [numPendingShards]pendingShard

	reqIDCounter requestIDCounter

	closeOnce sync.Once
	closed    chan struct{}
	recvDone  chan struct{}

	extractID ExtractIDFunc
}

// DialDTLS opens and handshakes a DTLS association to addr.
func DialDTLS(ctx context.Context, network, addr string, cfg *dtls.Config, extractID ExtractIDFunc, logger Logger) (*DTLSTransport, error) {
	udpAddr, err := net.ResolveUDPAddr(network, addr)
	if err != nil {
		return nil, &IoError{Err: err}
	}
	conn, err := dtls.DialWithContext(ctx, network, udpAddr, cfg)
	if err != nil {
		return nil, &IoError{Target: udpAddr, Err: err}
	}
	var peerCert *x509.Certificate
	if state, ok := conn.ConnectionState(); ok && len(state.PeerCertificates) > 0 {
		if c, err := x509.ParseCertificate(state.PeerCertificates[0]); err == nil {
			peerCert = c
		}
	}
	t := &DTLSTransport{
		conn:         conn,
		peerCert:     peerCert,
		logger:       logger,
		extractID:    extractID,
		reqIDCounter: newRequestIDCounter(),
		closed:       make(chan struct{}),
		recvDone:     make(chan struct{}),
	}
	for i := range t.shards {
		t.shards[i].pending = make(map[int32]*pendingRequest)
	}
	go t.recvLoop()
	return t, nil
}

// AllocRequestID implements Transport.
func (t *DTLSTransport) AllocRequestID() int32 { return t.reqIDCounter.next() }

// PeerSecurityName derives the target's TSM securityName from its DTLS
// certificate using mappings.
func (t *DTLSTransport) PeerSecurityName(mappings []CertMapping) (string, error) {
	name, err := ExtractSecurityName(t.conn.RemoteAddr(), t.peerCert, mappings)
	if err != nil && t.logger.Enabled() {
		t.logger.Printf("snmp: dtls: %v", err)
	}
	return name, err
}

func (t *DTLSTransport) shardFor(requestID int32) *pendingShard {
	return &t.shards[uint32(requestID)%numPendingShards]
}

// RoundTrip implements Transport.
func (t *DTLSTransport) RoundTrip(ctx context.Context, addr net.Addr, payload []byte, requestID int32) ([]byte, error) {
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

	if _, err := t.conn.Write(payload); err != nil {
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
func (t *DTLSTransport) Send(ctx context.Context, addr net.Addr, payload []byte) error {
	if _, err := t.conn.Write(payload); err != nil {
		return &IoError{Target: addr, Err: err}
	}
	return nil
}

func (t *DTLSTransport) LocalAddr() net.Addr { return t.conn.LocalAddr() }

// Close implements Transport.
func (t *DTLSTransport) Close() error {
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

func (t *DTLSTransport) recvLoop() {
	defer close(t.recvDone)
	buf := make([]byte, rxBufSize)
	for {
		n, err := t.conn.Read(buf)
		if err != nil {
			select {
			case <-t.closed:
			default:
				if t.logger.Enabled() {
					t.logger.Printf("snmp: dtls receive error: %v", err)
				}
			}
			return
		}
		payload := append([]byte{}, buf[:n]...)
		id, err := t.extractID(payload)
		if err != nil {
			if t.logger.Enabled() {
				t.logger.Printf("snmp: dropping unparseable dtls message: %v", err)
			}
			continue
		}
		shard := t.shardFor(id)
		shard.mu.Lock()
		pr, ok := shard.pending[id]
		if ok {
			delete(shard.pending, id)
		}
		shard.mu.Unlock()
		if ok {
			pr.ch <- udpResult{payload: payload}
		}
	}
}
