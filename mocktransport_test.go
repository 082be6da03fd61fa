// Copyright 2012 The GoSNMP Authors. All rights reserved.  Use of this
// source code is governed by a BSD-style license that can be found in the
// LICENSE file.

package snmp

import (
	"context"
	"net"
	"sync"
)

// mockTransport is a hand-rolled Transport double for exercising Client and
// Walk without a real socket: RoundTrip hands each outgoing frame to a
// caller-supplied responder and returns whatever it builds.
type mockTransport struct {
	mu           sync.Mutex
	respond      func(raw []byte, reqID int32) ([]byte, error)
	sent         [][]byte
	roundTrip    int
	closed       bool
	reqIDCounter requestIDCounter
}

func newMockTransport(respond func(raw []byte, reqID int32) ([]byte, error)) *mockTransport {
	return &mockTransport{respond: respond, reqIDCounter: newRequestIDCounter()}
}

// AllocRequestID implements Transport.
func (m *mockTransport) AllocRequestID() int32 { return m.reqIDCounter.next() }

func (m *mockTransport) RoundTrip(ctx context.Context, addr net.Addr, payload []byte, requestID int32) ([]byte, error) {
	m.mu.Lock()
	m.roundTrip++
	m.mu.Unlock()
	return m.respond(payload, requestID)
}

func (m *mockTransport) Send(ctx context.Context, addr net.Addr, payload []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sent = append(m.sent, payload)
	return nil
}

func (m *mockTransport) LocalAddr() net.Addr { return &net.UDPAddr{IP: net.IPv4(127, 0, 0, 1)} }

func (m *mockTransport) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
	return nil
}

func (m *mockTransport) callCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.roundTrip
}

// v3ServerReply builds a v3 reply message the way an authoritative agent
// would: it mirrors Client.sendV3's wire construction from the engine's side
// of the exchange, so tests can produce a reply that a real USM client
// would accept.
func v3ServerReply(user *USMUser, level SecurityLevel, engine *EngineState, reqID int32, pdu *PDU) ([]byte, error) {
	scoped := make([]byte, 0, 64)
	scoped = encodeTLV(scoped, TagOctetString, engine.EngineID)
	scoped = encodeTLV(scoped, TagOctetString, nil)
	pduBytes, err := MarshalPDU(pdu)
	if err != nil {
		return nil, err
	}
	scoped = append(scoped, pduBytes...)
	scopedSeq := encodeTLV(nil, TagSequence, scoped)

	var localizedAuthKey []byte
	var flags byte
	if level >= AuthNoPriv {
		flags |= flagAuth
		localizedAuthKey = user.localizedAuthKey(engine.EngineID)
	}

	var msgData []byte
	var privParamsWire []byte
	if level == AuthPriv {
		flags |= flagPriv
		ct, pp, err := EncryptScopedPDU(user.PrivProtocol, localizedAuthKey, user.AuthProtocol, engine.EngineBoots, engine.EngineTime, 0x1122334455667788, scopedSeq)
		if err != nil {
			return nil, err
		}
		msgData = encodeTLV(nil, TagOctetString, ct)
		privParamsWire = pp
	} else {
		msgData = scopedSeq
	}

	authPlaceholderLen := 0
	if level >= AuthNoPriv {
		authPlaceholderLen = user.AuthProtocol.macLen()
	}
	usmParams := usmSecurityParameters{
		EngineID:    engine.EngineID,
		EngineBoots: engine.EngineBoots,
		EngineTime:  engine.EngineTime,
		UserName:    []byte(user.Name),
		AuthParams:  make([]byte, authPlaceholderLen),
		PrivParams:  privParamsWire,
	}
	secParams, authOffsetInUSM := marshalUSMSecurityParameters(usmParams)

	global := make([]byte, 0, 32)
	global = encodeTLV(global, TagInteger, encodeInteger(int64(reqID)))
	global = encodeTLV(global, TagInteger, encodeInteger(65507))
	global = encodeTLV(global, TagOctetString, []byte{flags})
	global = encodeTLV(global, TagInteger, encodeInteger(3))
	globalSeq := encodeTLV(nil, TagSequence, global)

	versionTLV := encodeTLV(nil, TagInteger, encodeInteger(int64(V3)))
	secParamsTLV := encodeTLV(nil, TagOctetString, secParams)
	secParamsHeaderLen := len(secParamsTLV) - len(secParams)

	body := make([]byte, 0, len(versionTLV)+len(globalSeq)+len(secParamsTLV)+len(msgData))
	body = append(body, versionTLV...)
	body = append(body, globalSeq...)
	body = append(body, secParamsTLV...)
	body = append(body, msgData...)

	raw := encodeTLV(nil, TagSequence, body)
	outerHeaderLen := len(raw) - len(body)
	secParamsOffsetInRaw := outerHeaderLen + len(versionTLV) + len(globalSeq) + secParamsHeaderLen
	authOffsetInRaw := secParamsOffsetInRaw + authOffsetInUSM

	if authPlaceholderLen > 0 {
		mac := computeMAC(user.AuthProtocol, localizedAuthKey, raw)
		copy(raw[authOffsetInRaw:authOffsetInRaw+authPlaceholderLen], mac)
	}
	return raw, nil
}

// v3DiscoveryReply builds the unauthenticated Report an agent sends back to
// an engine-discovery probe, carrying its real engineID/boots/time in the
// security parameters.
func v3DiscoveryReply(engineID []byte, boots, engineTime uint32, reqID int32) ([]byte, error) {
	reportOid, err := ParseOid("1.3.6.1.6.3.15.1.1.4.0")
	if err != nil {
		return nil, err
	}
	report := &PDU{Type: Report, RequestID: reqID, VarBinds: []VarBind{{Oid: reportOid, Value: Counter32Value(0)}}}

	usmParams := usmSecurityParameters{EngineID: engineID, EngineBoots: boots, EngineTime: engineTime}
	secParams, _ := marshalUSMSecurityParameters(usmParams)

	msg := &Message{
		Version:            V3,
		MsgID:              reqID,
		MsgMaxSize:         65507,
		MsgFlags:           flagReportable,
		MsgSecurityModel:   3,
		SecurityParameters: secParams,
		ContextEngineID:    engineID,
		ContextName:        nil,
		PDU:                report,
	}
	return MarshalMessage(msg)
}

// isDiscoveryProbe reports whether raw is an unauthenticated v3 probe with
// no USM username, the shape Client.discoverEngine sends.
func isDiscoveryProbe(raw []byte) bool {
	msg, err := UnmarshalMessage(raw)
	if err != nil || msg.Version != V3 {
		return false
	}
	usm, err := unmarshalUSMSecurityParameters(msg.SecurityParameters)
	if err != nil {
		return false
	}
	return len(usm.UserName) == 0
}
