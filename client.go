// Copyright 2012 The GoSNMP Authors. All rights reserved.  Use of this
// source code is governed by a BSD-style license that can be found in the
// LICENSE file.

package snmp

import (
	"context"
	"errors"
	"net"
	"sync"
	"time"
)

// SecurityLevel is the USM securityLevel (RFC 3414 §3).
type SecurityLevel byte

const (
	NoAuthNoPriv SecurityLevel = iota
	AuthNoPriv
	AuthPriv
)

// USMUser describes one SNMPv3 USM principal's credentials (§4.1, §4.4).
type USMUser struct {
	Name           string
	AuthProtocol   AuthProtocol
	AuthPassphrase string
	PrivProtocol   PrivProtocol
	PrivPassphrase string

	mu        sync.Mutex
	localized map[string][]byte // keyed by engineID, hex-free raw string
}

// Level derives the securityLevel implied by which credentials are set.
func (u *USMUser) Level() SecurityLevel {
	switch {
	case u.PrivProtocol != PrivNone:
		return AuthPriv
	case u.AuthProtocol != AuthNone:
		return AuthNoPriv
	default:
		return NoAuthNoPriv
	}
}

// localizedAuthKey returns this user's authentication key localized to
// engineID, computing and caching it on first use (§4.4's "USM key
// caching keyed by the authoritative engine").
func (u *USMUser) localizedAuthKey(engineID []byte) []byte {
	if u.AuthProtocol == AuthNone {
		return nil
	}
	u.mu.Lock()
	defer u.mu.Unlock()
	if u.localized == nil {
		u.localized = make(map[string][]byte)
	}
	key := string(engineID)
	if k, ok := u.localized[key]; ok {
		return k
	}
	ku := PasswordToKey([]byte(u.AuthPassphrase), u.AuthProtocol)
	kul := LocalizeKey(ku, engineID, u.AuthProtocol)
	u.localized[key] = kul
	return kul
}

// ClientConfig configures a Client (§4.8).
type ClientConfig struct {
	Version   Version
	Community string // v1/v2c
	USM       *USMUser

	ContextEngineID []byte // v3; empty means "use the discovered engine ID"
	ContextName     []byte

	Timeout           time.Duration
	MaxOidsPerRequest int
	RetryPolicy       RetryPolicy

	// WalkMode is the default lexicographic-order policy for Walk/BulkWalk
	// (§4.9, §6's walk_mode option). Zero value is WalkStrict.
	WalkMode WalkMode

	// StrictSourceValidation is not read by Client or by any Transport:
	// replies are accepted whatever their source address. A source
	// mismatch is only logged, by UDPTransport, when its
	// UDPTransportConfig.WarnOnSourceMismatch is set.
	StrictSourceValidation bool

	Logger Logger
}

func (c ClientConfig) maxOids() int {
	if c.MaxOidsPerRequest > 0 {
		return c.MaxOidsPerRequest
	}
	return 60
}

// Client is the application-facing SNMP facade: one Client talks to one
// target address over one Transport (§4.8). Request IDs are drawn from the
// Transport's own counter (§3, §4.5, §5), not tracked per Client, so many
// Clients sharing one Transport never collide.
type Client struct {
	cfg       ClientConfig
	transport Transport
	addr      net.Addr
	engines   *EngineCache
}

// NewClient builds a Client bound to addr over transport.
func NewClient(cfg ClientConfig, transport Transport, addr net.Addr) (*Client, error) {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 5 * time.Second
	}
	if cfg.RetryPolicy.InitialDelay <= 0 {
		cfg.RetryPolicy = RetryPolicy{MaxRetries: 3, InitialDelay: 200 * time.Millisecond, MaxDelay: 3 * time.Second}
	}
	if cfg.Version == V3 && cfg.USM == nil {
		return nil, &ConfigError{Field: "USM", Reason: "required for SNMPv3"}
	}
	return &Client{
		cfg:       cfg,
		transport: transport,
		addr:      addr,
		engines:   NewEngineCache(),
	}, nil
}

func (c *Client) nextRequestID() int32 {
	return c.transport.AllocRequestID()
}

func (c *Client) checkOidCount(n int) error {
	if n > c.cfg.maxOids() {
		return ErrTooManyOids
	}
	return nil
}

// Get performs a GetRequest for the given OIDs (§4.8).
func (c *Client) Get(ctx context.Context, oids []Oid) ([]VarBind, error) {
	if err := c.checkOidCount(len(oids)); err != nil {
		return nil, err
	}
	return c.getLike(ctx, GetRequest, oids)
}

// GetNext performs a GetNextRequest for the given OIDs.
func (c *Client) GetNext(ctx context.Context, oids []Oid) ([]VarBind, error) {
	if err := c.checkOidCount(len(oids)); err != nil {
		return nil, err
	}
	return c.getLike(ctx, GetNextRequest, oids)
}

// GetBulk performs a GetBulkRequest (v2c/v3 only).
func (c *Client) GetBulk(ctx context.Context, nonRepeaters int32, maxRepetitions int32, oids []Oid) ([]VarBind, error) {
	if c.cfg.Version == V1 {
		return nil, &ConfigError{Field: "Version", Reason: "GetBulk requires v2c or v3"}
	}
	if err := c.checkOidCount(len(oids)); err != nil {
		return nil, err
	}
	vbs := make([]VarBind, len(oids))
	for i, o := range oids {
		vbs[i] = VarBind{Oid: o, Value: NullValue()}
	}
	pdu := &PDU{Type: GetBulkRequest, NonRepeaters: nonRepeaters, MaxRepetitions: maxRepetitions, VarBinds: vbs}
	resp, err := c.doRequest(ctx, pdu)
	if err != nil {
		return nil, err
	}
	return resp.VarBinds, nil
}

// Set performs a SetRequest.
func (c *Client) Set(ctx context.Context, vbs []VarBind) ([]VarBind, error) {
	if err := c.checkOidCount(len(vbs)); err != nil {
		return nil, err
	}
	pdu := &PDU{Type: SetRequest, VarBinds: vbs}
	resp, err := c.doRequest(ctx, pdu)
	if err != nil {
		return nil, err
	}
	return resp.VarBinds, nil
}

func (c *Client) getLike(ctx context.Context, pduType PDUType, oids []Oid) ([]VarBind, error) {
	vbs := make([]VarBind, len(oids))
	for i, o := range oids {
		vbs[i] = VarBind{Oid: o, Value: NullValue()}
	}
	pdu := &PDU{Type: pduType, VarBinds: vbs}
	resp, err := c.doRequest(ctx, pdu)
	if err != nil {
		return nil, err
	}
	return resp.VarBinds, nil
}

// doRequest sends pdu and returns the agent's response PDU, applying
// retries (§4.7) and, for v3, engine discovery and USM auth/privacy
// (§4.4).
func (c *Client) doRequest(ctx context.Context, pdu *PDU) (*PDU, error) {
	var result *PDU
	err := doWithRetry(ctx, c.cfg.RetryPolicy, func(ctx context.Context, attempt int) error {
		reqCtx, cancel := context.WithTimeout(ctx, c.cfg.Timeout)
		defer cancel()

		var resp *PDU
		var err error
		switch c.cfg.Version {
		case V1, V2c:
			resp, err = c.doV1V2c(reqCtx, pdu)
		case V3:
			resp, err = c.doV3(reqCtx, pdu)
		default:
			return &ConfigError{Field: "Version", Reason: "unsupported"}
		}
		if err != nil {
			if errors.Is(err, context.DeadlineExceeded) {
				return &TimeoutError{Target: c.addr, Elapsed: c.cfg.Timeout, Retries: attempt, RequestID: pdu.RequestID}
			}
			return err
		}
		result = resp
		return nil
	})
	if err != nil {
		return nil, err
	}
	if result.ErrorStatus != NoError {
		return result, &PduError{Status: result.ErrorStatus, Index: int(result.ErrorIndex)}
	}
	return result, nil
}

func (c *Client) doV1V2c(ctx context.Context, pdu *PDU) (*PDU, error) {
	reqID := c.nextRequestID()
	pdu.RequestID = reqID

	msg := &Message{Version: c.cfg.Version, Community: []byte(c.cfg.Community), PDU: pdu}
	raw, err := MarshalMessage(msg)
	if err != nil {
		return nil, err
	}

	replyBytes, err := c.transport.RoundTrip(ctx, c.addr, raw, reqID)
	if err != nil {
		return nil, err
	}
	reply, err := UnmarshalMessage(replyBytes)
	if err != nil {
		return nil, err
	}
	return reply.PDU, nil
}

func (c *Client) doV3(ctx context.Context, pdu *PDU) (*PDU, error) {
	engine, ok := c.engines.Lookup(c.addr.String())
	if !ok {
		var err error
		engine, err = c.discoverEngine(ctx)
		if err != nil {
			return nil, err
		}
	}

	reqID := c.nextRequestID()
	pdu.RequestID = reqID

	reply, err := c.sendV3(ctx, pdu, reqID, engine, c.cfg.USM.Level())
	if err != nil {
		var engErr *EngineError
		if errors.As(err, &engErr) && (engErr.Kind == EngineOutOfTimeWindow || engErr.Kind == EngineIDMismatch) {
			// Resync once and retry this single attempt (§4.4). A stale or
			// wrong cached identity is discarded outright rather than
			// merely overwritten, so a concurrent reader never observes it.
			c.engines.Forget(c.addr.String())
			engine, err = c.discoverEngine(ctx)
			if err != nil {
				return nil, err
			}
			return c.sendV3(ctx, pdu, reqID, engine, c.cfg.USM.Level())
		}
		return nil, err
	}
	return reply, nil
}

// discoverEngine sends an unauthenticated probe to learn the target's
// engineID/boots/time from its Report PDU (§4.4).
func (c *Client) discoverEngine(ctx context.Context) (*EngineState, error) {
	reqID := c.nextRequestID()
	probe := &PDU{Type: GetRequest, RequestID: reqID}

	usmParams := usmSecurityParameters{}
	secParams, _ := marshalUSMSecurityParameters(usmParams)

	msg := &Message{
		Version:            V3,
		MsgID:              reqID,
		MsgMaxSize:         65507,
		MsgFlags:           flagReportable,
		MsgSecurityModel:   3,
		SecurityParameters: secParams,
		ContextEngineID:    nil,
		ContextName:        c.cfg.ContextName,
		PDU:                probe,
	}
	raw, err := MarshalMessage(msg)
	if err != nil {
		return nil, err
	}

	replyBytes, err := c.transport.RoundTrip(ctx, c.addr, raw, reqID)
	if err != nil {
		return nil, err
	}
	reply, err := UnmarshalMessage(replyBytes)
	if err != nil {
		return nil, err
	}
	usm, err := unmarshalUSMSecurityParameters(reply.SecurityParameters)
	if err != nil {
		return nil, err
	}
	if len(usm.EngineID) == 0 {
		return nil, &EngineError{Kind: EngineDiscoveryFailed}
	}
	c.engines.Store(c.addr.String(), usm.EngineID, usm.EngineBoots, usm.EngineTime)
	st, _ := c.engines.Lookup(c.addr.String())
	return st, nil
}

// sendV3 marshals, authenticates and (if needed) encrypts pdu, sends it,
// and decrypts/verifies the reply.
func (c *Client) sendV3(ctx context.Context, pdu *PDU, reqID int32, engine *EngineState, level SecurityLevel) (*PDU, error) {
	user := c.cfg.USM
	ctxEngineID := c.cfg.ContextEngineID
	if len(ctxEngineID) == 0 {
		ctxEngineID = engine.EngineID
	}

	scoped := make([]byte, 0, 64)
	scoped = encodeTLV(scoped, TagOctetString, ctxEngineID)
	scoped = encodeTLV(scoped, TagOctetString, c.cfg.ContextName)
	pduBytes, err := MarshalPDU(pdu)
	if err != nil {
		return nil, err
	}
	scoped = append(scoped, pduBytes...)
	scopedSeq := make([]byte, 0, len(scoped)+8)
	scopedSeq = encodeTLV(scopedSeq, TagSequence, scoped)

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
		salt := engine.nextSalt()
		ct, pp, err := EncryptScopedPDU(user.PrivProtocol, localizedAuthKey, user.AuthProtocol, engine.EngineBoots, engine.localTime(), salt, scopedSeq)
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
		EngineTime:  engine.localTime(),
		UserName:    []byte(user.Name),
		AuthParams:  make([]byte, authPlaceholderLen),
		PrivParams:  privParamsWire,
	}
	secParams, authOffsetInUSM := marshalUSMSecurityParameters(usmParams)

	global := make([]byte, 0, 32)
	global = encodeTLV(global, TagInteger, encodeInteger(int64(reqID)))
	global = encodeTLV(global, TagInteger, encodeInteger(65507))
	global = encodeTLV(global, TagOctetString, []byte{flags | flagReportable})
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

	replyBytes, err := c.transport.RoundTrip(ctx, c.addr, raw, reqID)
	if err != nil {
		return nil, err
	}
	return c.processV3Reply(replyBytes, user, localizedAuthKey, engine)
}

func (c *Client) processV3Reply(replyBytes []byte, user *USMUser, localizedAuthKey []byte, engine *EngineState) (*PDU, error) {
	reply, err := UnmarshalMessage(replyBytes)
	if err != nil {
		return nil, err
	}
	usm, err := unmarshalUSMSecurityParameters(reply.SecurityParameters)
	if err != nil {
		return nil, err
	}

	if reply.HasAuth() {
		if len(usm.AuthParams) != user.AuthProtocol.macLen() {
			return nil, &AuthError{Kind: AuthMacMismatch}
		}
		authOffset, authLen, err := locateUSMAuthParams(replyBytes)
		if err != nil {
			return nil, &AuthError{Kind: AuthMacMismatch}
		}
		wireMAC := append([]byte{}, usm.AuthParams...)
		zeroed := append([]byte{}, replyBytes...)
		for i := 0; i < authLen; i++ {
			zeroed[authOffset+i] = 0
		}
		if !verifyMAC(user.AuthProtocol, localizedAuthKey, zeroed, wireMAC) {
			return nil, &AuthError{Kind: AuthMacMismatch}
		}
	}

	if !engine.inTimeWindow(usm.EngineBoots, usm.EngineTime) {
		c.engines.Store(c.addr.String(), usm.EngineID, usm.EngineBoots, usm.EngineTime)
		return nil, &EngineError{Kind: EngineOutOfTimeWindow}
	}

	if reply.HasPriv() && reply.EncryptedPDU != nil {
		plaintext, err := DecryptScopedPDU(user.PrivProtocol, localizedAuthKey, user.AuthProtocol, usm.EngineBoots, usm.EngineTime, usm.PrivParams, reply.EncryptedPDU)
		if err != nil {
			return nil, err
		}
		decoded, err := UnmarshalMessage(wrapAsV3Plaintext(reply, plaintext))
		if err != nil {
			return nil, err
		}
		reply = decoded
	}

	if reply.PDU == nil {
		return nil, newBerError(BerUnexpectedTag, "v3 reply missing scoped PDU")
	}
	if reply.PDU.Type == Report {
		return nil, classifyReportPDU(reply.PDU)
	}
	return reply.PDU, nil
}

// wrapAsV3Plaintext re-wraps a decrypted scoped PDU in a throwaway outer
// message so UnmarshalMessage's existing scoped-PDU decoder can parse it,
// avoiding a second parser for the same grammar.
func wrapAsV3Plaintext(reply *Message, scopedPDUBytes []byte) []byte {
	global := make([]byte, 0, 32)
	global = encodeTLV(global, TagInteger, encodeInteger(int64(reply.MsgID)))
	global = encodeTLV(global, TagInteger, encodeInteger(int64(reply.MsgMaxSize)))
	global = encodeTLV(global, TagOctetString, []byte{reply.MsgFlags})
	global = encodeTLV(global, TagInteger, encodeInteger(int64(reply.MsgSecurityModel)))
	globalSeq := encodeTLV(nil, TagSequence, global)

	versionTLV := encodeTLV(nil, TagInteger, encodeInteger(int64(V3)))
	secParamsTLV := encodeTLV(nil, TagOctetString, reply.SecurityParameters)

	body := append(append(append([]byte{}, versionTLV...), globalSeq...), secParamsTLV...)
	body = append(body, scopedPDUBytes...)
	return encodeTLV(nil, TagSequence, body)
}

// classifyReportPDU turns a Report PDU's sole varbind (one of the
// usmStats* OIDs, RFC 3414 §5) into a typed error.
func classifyReportPDU(pdu *PDU) error {
	if len(pdu.VarBinds) == 0 {
		return ErrUnknownReportPDU
	}
	switch pdu.VarBinds[0].Oid.String() {
	case "1.3.6.1.6.3.15.1.1.1.0":
		return ErrUnknownSecurityLevel
	case "1.3.6.1.6.3.15.1.1.2.0":
		return &EngineError{Kind: EngineOutOfTimeWindow}
	case "1.3.6.1.6.3.15.1.1.3.0":
		return &AuthError{Kind: AuthUnknownUser}
	case "1.3.6.1.6.3.15.1.1.4.0":
		return &EngineError{Kind: EngineIDMismatch}
	case "1.3.6.1.6.3.15.1.1.5.0":
		return &AuthError{Kind: AuthMacMismatch}
	case "1.3.6.1.6.3.15.1.1.6.0":
		return &PrivacyError{Kind: PrivacyDecryptFailure}
	default:
		return ErrUnknownReportPDU
	}
}

// Close releases the underlying transport.
func (c *Client) Close() error { return c.transport.Close() }
