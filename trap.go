// Copyright 2012 The GoSNMP Authors. All rights reserved.  Use of this
// source code is governed by a BSD-style license that can be found in the
// LICENSE file.

package snmp

import (
	"context"
	"crypto/tls"
	"crypto/x509"
	"errors"
	"fmt"
	"net"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/pion/dtls/v3"
	"golang.org/x/net/ipv4"
)

// SendTrap sends an SNMPv1 Trap-PDU, v2c/v3 SNMPv2-Trap-PDU, or (if
// isInform is true) an InformRequest carrying vbs. SendTrap does not wait
// for a reply except when sending an Inform, which blocks for the
// originator's acknowledgement.
func (c *Client) SendTrap(ctx context.Context, vbs []VarBind, isInform bool) error {
	switch c.cfg.Version {
	case V1:
		if isInform {
			return &ConfigError{Field: "Version", Reason: "InformRequest requires v2c or v3"}
		}
		return c.sendV1Trap(ctx, vbs)
	case V2c:
		return c.sendV2TrapOrInform(ctx, vbs, isInform)
	case V3:
		return c.sendV3TrapOrInform(ctx, vbs, isInform)
	default:
		return &ConfigError{Field: "Version", Reason: "unsupported"}
	}
}

func (c *Client) sendV1Trap(ctx context.Context, vbs []VarBind) error {
	pdu := &PDU{Type: Trap, VarBinds: vbs}
	msg := &Message{Version: V1, Community: []byte(c.cfg.Community), PDU: pdu}
	raw, err := MarshalMessage(msg)
	if err != nil {
		return err
	}
	return c.transport.Send(ctx, c.addr, raw)
}

func (c *Client) sendV2TrapOrInform(ctx context.Context, vbs []VarBind, isInform bool) error {
	pduType := SNMPv2Trap
	if isInform {
		pduType = InformRequest
	}
	reqID := c.nextRequestID()
	pdu := &PDU{Type: pduType, RequestID: reqID, VarBinds: vbs}
	msg := &Message{Version: V2c, Community: []byte(c.cfg.Community), PDU: pdu}
	raw, err := MarshalMessage(msg)
	if err != nil {
		return err
	}
	if !isInform {
		return c.transport.Send(ctx, c.addr, raw)
	}
	_, err = c.transport.RoundTrip(ctx, c.addr, raw, reqID)
	return err
}

func (c *Client) sendV3TrapOrInform(ctx context.Context, vbs []VarBind, isInform bool) error {
	pduType := SNMPv2Trap
	if isInform {
		pduType = InformRequest
	}
	engine, ok := c.engines.Lookup(c.addr.String())
	if !ok {
		var err error
		// An Inform needs the reportable flag and gets its own Report PDU
		// back from the recipient's engine (RFC 3414 §4), so discovery
		// uses the same probe as a regular request.
		engine, err = c.discoverEngine(ctx)
		if err != nil {
			return err
		}
	}
	reqID := c.nextRequestID()
	pdu := &PDU{Type: pduType, RequestID: reqID, VarBinds: vbs}

	if !isInform {
		reply, err := c.sendV3(ctx, pdu, reqID, engine, c.cfg.USM.Level())
		_ = reply
		if err != nil {
			var ioErr *IoError
			if errors.As(err, &ioErr) {
				return err
			}
			// Unconfirmed traps have no reply to wait for; a decode
			// failure on a reply that never arrives is not an error here.
		}
		return nil
	}
	_, err := c.sendV3(ctx, pdu, reqID, engine, c.cfg.USM.Level())
	return err
}

// TrapHandlerFunc is invoked once per received Trap or InformRequest.
// addr is *net.UDPAddr for UDP/DTLS listeners and *net.TCPAddr for
// TCP/TLS listeners.
type TrapHandlerFunc func(msg *Message, addr net.Addr)

const defaultCloseTimeout = 3 * time.Second

// TrapListener receives SNMP traps and informs over UDP, TCP, TLS or DTLS
// (§4.5's transport abstraction applied to the unsolicited-message path).
type TrapListener struct {
	mu sync.Mutex

	// OnTrap is called for every received Trap/InformRequest.
	OnTrap TrapHandlerFunc

	// CertMappings maps TLS/DTLS peer certificates to USM-TSM security
	// names (RFC 5591/6353), used only by the tls/dtls schemes.
	CertMappings []CertMapping
	TLSConfig    *tls.Config
	DTLSConfig   *dtls.Config

	CloseTimeout time.Duration
	Logger       Logger

	udpConn     net.PacketConn
	tcpListener net.Listener
	tlsListener net.Listener
	dtlsLn      net.Listener

	finish int32
	done   chan struct{}
}

// NewTrapListener returns an initialized, unstarted TrapListener.
func NewTrapListener() *TrapListener {
	return &TrapListener{CloseTimeout: defaultCloseTimeout, done: make(chan struct{})}
}

// Close stops the listener, waiting up to CloseTimeout for its accept
// loop to exit.
func (t *TrapListener) Close() {
	if !atomic.CompareAndSwapInt32(&t.finish, 0, 1) {
		return
	}
	t.mu.Lock()
	var closeErr error
	switch {
	case t.udpConn != nil:
		closeErr = t.udpConn.Close()
	case t.tcpListener != nil:
		closeErr = t.tcpListener.Close()
	case t.tlsListener != nil:
		closeErr = t.tlsListener.Close()
	case t.dtlsLn != nil:
		closeErr = t.dtlsLn.Close()
	}
	t.mu.Unlock()
	if closeErr != nil && t.Logger.Enabled() {
		t.Logger.Printf("snmp: trap listener close: %v", closeErr)
	}
	select {
	case <-t.done:
	case <-time.After(t.CloseTimeout):
		if t.Logger.Enabled() {
			t.Logger.Printf("snmp: trap listener close timed out")
		}
	}
}

// Listen starts accepting on addr, which may be prefixed with "tcp://",
// "tls://" or "dtls://" (UDP is the default with no prefix), and blocks
// until Close is called. Errors resolving or binding addr are returned;
// accept and read errors are skipped and the loop continues.
func (t *TrapListener) Listen(addr string) error {
	proto := "udp"
	if parts := strings.SplitN(addr, "://", 2); len(parts) == 2 {
		proto, addr = parts[0], parts[1]
	}
	switch proto {
	case "udp":
		return t.listenUDP(addr)
	case "tcp":
		return t.listenTCP(addr)
	case "tls":
		return t.listenTLS(addr)
	case "dtls":
		return t.listenDTLS(addr)
	default:
		return fmt.Errorf("snmp: unsupported trap listener scheme %q", proto)
	}
}

func (t *TrapListener) closing() bool { return atomic.LoadInt32(&t.finish) == 1 }

// multicastInterfaces returns every multicast-capable interface present on
// the host, for joining a trap group on all of them.
func (t *TrapListener) multicastInterfaces() []net.Interface {
	ifaces, err := net.Interfaces()
	if err != nil {
		if t.Logger.Enabled() {
			t.Logger.Printf("snmp: trap listener: list interfaces: %v", err)
		}
		return nil
	}
	var out []net.Interface
	for _, iface := range ifaces {
		if iface.Flags&net.FlagMulticast != 0 && iface.Flags&net.FlagUp != 0 {
			out = append(out, iface)
		}
	}
	return out
}

func (t *TrapListener) listenUDP(addr string) error {
	udpAddr, err := net.ResolveUDPAddr("udp", addr)
	if err != nil {
		return err
	}
	conn, err := net.ListenUDP("udp", udpAddr)
	if err != nil {
		return err
	}
	if ip4 := udpAddr.IP.To4(); ip4 != nil && ip4.IsMulticast() {
		// Some deployments fan out v1/v2c traps to a multicast group rather
		// than unicasting to each manager; join it on every interface so a
		// listener bound to the group address actually receives them.
		pc := ipv4.NewPacketConn(conn)
		for _, iface := range t.multicastInterfaces() {
			if err := pc.JoinGroup(&iface, &net.UDPAddr{IP: udpAddr.IP}); err != nil && t.Logger.Enabled() {
				t.Logger.Printf("snmp: trap listener: join multicast group on %s: %v", iface.Name, err)
			}
		}
	}
	t.mu.Lock()
	t.udpConn = conn
	t.mu.Unlock()
	defer close(t.done)

	buf := make([]byte, rxBufSize)
	for {
		n, from, err := conn.ReadFrom(buf)
		if err != nil {
			if t.closing() {
				return nil
			}
			continue
		}
		t.handleDatagram(append([]byte{}, buf[:n]...), from, nil)
	}
}

func (t *TrapListener) listenTCP(addr string) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return err
	}
	t.mu.Lock()
	t.tcpListener = ln
	t.mu.Unlock()
	defer close(t.done)

	for {
		conn, err := ln.Accept()
		if err != nil {
			if t.closing() {
				return nil
			}
			continue
		}
		go t.handleStreamConn(conn, nil)
	}
}

func (t *TrapListener) listenTLS(addr string) error {
	if t.TLSConfig == nil {
		return errors.New("snmp: TLSConfig required for tls:// trap listener")
	}
	cfg := t.TLSConfig.Clone()
	cfg.ClientAuth = tls.RequireAndVerifyClientCert
	if cfg.MinVersion < tls.VersionTLS12 {
		cfg.MinVersion = tls.VersionTLS12
	}
	ln, err := tls.Listen("tcp", addr, cfg)
	if err != nil {
		return err
	}
	t.mu.Lock()
	t.tlsListener = ln
	t.mu.Unlock()
	defer close(t.done)

	for {
		conn, err := ln.Accept()
		if err != nil {
			if t.closing() {
				return nil
			}
			continue
		}
		tlsConn := conn.(*tls.Conn)
		go func() {
			if err := tlsConn.Handshake(); err != nil {
				return
			}
			var cert *x509.Certificate
			if state := tlsConn.ConnectionState(); len(state.PeerCertificates) > 0 {
				cert = state.PeerCertificates[0]
			}
			t.handleStreamConn(tlsConn, cert)
		}()
	}
}

func (t *TrapListener) listenDTLS(addr string) error {
	if t.DTLSConfig == nil {
		return errors.New("snmp: DTLSConfig required for dtls:// trap listener")
	}
	udpAddr, err := net.ResolveUDPAddr("udp", addr)
	if err != nil {
		return err
	}
	cfg := t.DTLSConfig
	cfg.ClientAuth = dtls.RequireAndVerifyClientCert
	ln, err := dtls.Listen("udp", udpAddr, cfg)
	if err != nil {
		return err
	}
	t.mu.Lock()
	t.dtlsLn = ln
	t.mu.Unlock()
	defer close(t.done)

	for {
		conn, err := ln.Accept()
		if err != nil {
			if t.closing() {
				return nil
			}
			continue
		}
		go t.handleDTLSConn(conn.(*dtls.Conn))
	}
}

func (t *TrapListener) handleStreamConn(conn net.Conn, cert *x509.Certificate) {
	defer conn.Close()
	buf := make([]byte, rxBufSize)
	n, err := conn.Read(buf)
	if err != nil {
		return
	}
	t.handleDatagram(buf[:n], conn.RemoteAddr(), cert)
}

func (t *TrapListener) handleDTLSConn(conn *dtls.Conn) {
	defer conn.Close()
	buf := make([]byte, rxBufSize)
	n, err := conn.Read(buf)
	if err != nil {
		return
	}
	var cert *x509.Certificate
	if state, ok := conn.ConnectionState(); ok && len(state.PeerCertificates) > 0 {
		if c, err := x509.ParseCertificate(state.PeerCertificates[0]); err == nil {
			cert = c
		}
	}
	t.handleDatagram(buf[:n], conn.RemoteAddr(), cert)
}

func (t *TrapListener) handleDatagram(payload []byte, from net.Addr, peerCert *x509.Certificate) {
	msg, err := UnmarshalMessage(payload)
	if err != nil {
		if t.Logger.Enabled() {
			t.Logger.Printf("snmp: trap listener: %v", err)
		}
		return
	}

	if msg.Version == V3 && msg.MsgSecurityModel == tsmSecurityModel && peerCert != nil && len(t.CertMappings) > 0 {
		// TSM trusts the transport for authenticity; the mapping is only
		// checked here so an unmappable peer certificate is logged instead
		// of silently accepted (RFC 5591 §8.2).
		if _, err := ExtractSecurityName(from, peerCert, t.CertMappings); err != nil {
			if t.Logger.Enabled() {
				t.Logger.Printf("snmp: trap listener: %v", err)
			}
			return
		}
	}

	if t.OnTrap != nil {
		t.OnTrap(msg, from)
	}
}

// tsmSecurityModel is the RFC 5591 §2 securityModel value for TSM.
const tsmSecurityModel = 4
