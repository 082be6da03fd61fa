// Copyright 2012 The GoSNMP Authors. All rights reserved.  Use of this
// source code is governed by a BSD-style license that can be found in the
// LICENSE file.

package snmp

// Version identifies the SNMP message version (§3).
type Version int32

const (
	V1  Version = 0
	V2c Version = 1
	V3  Version = 3
)

func (v Version) String() string {
	switch v {
	case V1:
		return "1"
	case V2c:
		return "2c"
	case V3:
		return "3"
	default:
		return "unknown"
	}
}

// msgFlags bits (RFC 3412 §6.4).
const (
	flagAuth       byte = 0x01
	flagPriv       byte = 0x02
	flagReportable byte = 0x04
)

// Message is the decoded form of one SNMP datagram, covering all three
// versions (§4.3). For v1/v2c, Community and PDU are populated. For v3,
// the header and security fields are populated and either PDU (security
// level noAuthNoPriv/authNoPriv) or EncryptedPDU (authPriv, pending
// decryption by the USM layer) is set.
type Message struct {
	Version Version

	// v1/v2c
	Community []byte

	// v3 header data (msgGlobalData)
	MsgID            int32
	MsgMaxSize       int32
	MsgFlags         byte
	MsgSecurityModel int32

	// v3 security parameters: the raw OCTET STRING content. Interpretation
	// (USM vs TSM) is the security model's responsibility, not the
	// envelope's.
	SecurityParameters []byte

	// v3 scoped PDU
	ContextEngineID []byte
	ContextName     []byte
	EncryptedPDU    []byte // set instead of PDU when authPriv and still encrypted

	PDU *PDU
}

func (m *Message) HasAuth() bool      { return m.MsgFlags&flagAuth != 0 }
func (m *Message) HasPriv() bool      { return m.MsgFlags&flagPriv != 0 }
func (m *Message) IsReportable() bool { return m.MsgFlags&flagReportable != 0 }

// MarshalMessage encodes m as the outer SEQUENCE described in §4.3.
func MarshalMessage(m *Message) ([]byte, error) {
	body := make([]byte, 0, 64)
	body = encodeTLV(body, TagInteger, encodeInteger(int64(m.Version)))

	switch m.Version {
	case V1, V2c:
		body = encodeTLV(body, TagOctetString, m.Community)
		if m.PDU == nil {
			return nil, newBerError(BerUnexpectedTag, "v1/v2c message missing PDU")
		}
		pduBytes, err := MarshalPDU(m.PDU)
		if err != nil {
			return nil, err
		}
		body = append(body, pduBytes...)

	case V3:
		global := make([]byte, 0, 32)
		global = encodeTLV(global, TagInteger, encodeInteger(int64(m.MsgID)))
		global = encodeTLV(global, TagInteger, encodeInteger(int64(m.MsgMaxSize)))
		global = encodeTLV(global, TagOctetString, []byte{m.MsgFlags})
		global = encodeTLV(global, TagInteger, encodeInteger(int64(m.MsgSecurityModel)))
		globalSeq := make([]byte, 0, len(global)+8)
		globalSeq = encodeTLV(globalSeq, TagSequence, global)
		body = append(body, globalSeq...)

		body = encodeTLV(body, TagOctetString, m.SecurityParameters)

		if m.HasPriv() && m.EncryptedPDU != nil {
			body = encodeTLV(body, TagOctetString, m.EncryptedPDU)
		} else {
			scoped := make([]byte, 0, 64)
			scoped = encodeTLV(scoped, TagOctetString, m.ContextEngineID)
			scoped = encodeTLV(scoped, TagOctetString, m.ContextName)
			if m.PDU == nil {
				return nil, newBerError(BerUnexpectedTag, "v3 message missing scoped PDU")
			}
			pduBytes, err := MarshalPDU(m.PDU)
			if err != nil {
				return nil, err
			}
			scoped = append(scoped, pduBytes...)
			scopedSeq := make([]byte, 0, len(scoped)+8)
			scopedSeq = encodeTLV(scopedSeq, TagSequence, scoped)
			body = append(body, scopedSeq...)
		}

	default:
		return nil, newBerError(BerUnexpectedTag, "unsupported message version")
	}

	out := make([]byte, 0, len(body)+8)
	return encodeTLV(out, TagSequence, body), nil
}

// UnmarshalMessage decodes one SNMP datagram's outer SEQUENCE.
func UnmarshalMessage(buf []byte) (*Message, error) {
	outer, err := expectTag(buf, TagSequence)
	if err != nil {
		return nil, err
	}
	rest := outer.Value

	verTLV, err := expectTag(rest, TagInteger)
	if err != nil {
		return nil, err
	}
	ver, err := decodeInt32(verTLV.Value)
	if err != nil {
		return nil, err
	}
	rest = rest[verTLV.Consumed:]

	m := &Message{Version: Version(ver)}

	switch m.Version {
	case V1, V2c:
		commTLV, err := expectTag(rest, TagOctetString)
		if err != nil {
			return nil, err
		}
		m.Community = commTLV.Value
		rest = rest[commTLV.Consumed:]

		pdu, err := UnmarshalPDU(rest)
		if err != nil {
			return nil, err
		}
		m.PDU = pdu
		return m, nil

	case V3:
		globalTLV, err := expectTag(rest, TagSequence)
		if err != nil {
			return nil, err
		}
		g := globalTLV.Value

		idTLV, err := expectTag(g, TagInteger)
		if err != nil {
			return nil, err
		}
		msgID, err := decodeInt32(idTLV.Value)
		if err != nil {
			return nil, err
		}
		m.MsgID = msgID
		g = g[idTLV.Consumed:]

		maxSizeTLV, err := expectTag(g, TagInteger)
		if err != nil {
			return nil, err
		}
		maxSize, err := decodeInt32(maxSizeTLV.Value)
		if err != nil {
			return nil, err
		}
		m.MsgMaxSize = maxSize
		g = g[maxSizeTLV.Consumed:]

		flagsTLV, err := expectTag(g, TagOctetString)
		if err != nil {
			return nil, err
		}
		if len(flagsTLV.Value) != 1 {
			return nil, newBerError(BerInvalidLength, "msgFlags must be 1 octet")
		}
		m.MsgFlags = flagsTLV.Value[0]
		g = g[flagsTLV.Consumed:]

		secModelTLV, err := expectTag(g, TagInteger)
		if err != nil {
			return nil, err
		}
		secModel, err := decodeInt32(secModelTLV.Value)
		if err != nil {
			return nil, err
		}
		m.MsgSecurityModel = secModel

		rest = rest[globalTLV.Consumed:]

		secParamsTLV, err := expectTag(rest, TagOctetString)
		if err != nil {
			return nil, err
		}
		m.SecurityParameters = secParamsTLV.Value
		rest = rest[secParamsTLV.Consumed:]

		dataTLV, err := decodeTLV(rest)
		if err != nil {
			return nil, err
		}
		switch dataTLV.Tag {
		case TagSequence:
			scoped := dataTLV.Value
			engineTLV, err := expectTag(scoped, TagOctetString)
			if err != nil {
				return nil, err
			}
			m.ContextEngineID = engineTLV.Value
			scoped = scoped[engineTLV.Consumed:]

			nameTLV, err := expectTag(scoped, TagOctetString)
			if err != nil {
				return nil, err
			}
			m.ContextName = nameTLV.Value
			scoped = scoped[nameTLV.Consumed:]

			pdu, err := UnmarshalPDU(scoped)
			if err != nil {
				return nil, err
			}
			m.PDU = pdu

		case TagOctetString:
			m.EncryptedPDU = dataTLV.Value

		default:
			return nil, newBerError(BerUnexpectedTag, "unrecognized msgData")
		}

		return m, nil

	default:
		return nil, newBerError(BerUnexpectedTag, "unsupported message version")
	}
}

// ExtractRequestID reads only enough of buf to return the identifier used
// to correlate a response with its outstanding request, without decoding
// varbinds or (for v3 authPriv) decrypting anything. For v1/v2c this is
// the PDU's request-id; for v3 it is msgID, which RFC 3412 guarantees is
// present and meaningful even when the scoped PDU is still encrypted.
func ExtractRequestID(buf []byte) (int32, error) {
	outer, err := expectTag(buf, TagSequence)
	if err != nil {
		return 0, err
	}
	rest := outer.Value

	verTLV, err := expectTag(rest, TagInteger)
	if err != nil {
		return 0, err
	}
	ver, err := decodeInt32(verTLV.Value)
	if err != nil {
		return 0, err
	}
	rest = rest[verTLV.Consumed:]

	switch Version(ver) {
	case V1, V2c:
		commTLV, err := expectTag(rest, TagOctetString)
		if err != nil {
			return 0, err
		}
		rest = rest[commTLV.Consumed:]

		pduTLV, err := decodeTLV(rest)
		if err != nil {
			return 0, err
		}
		reqID, _, err := decodeLeadingInteger(pduTLV.Value)
		return reqID, err

	case V3:
		globalTLV, err := expectTag(rest, TagSequence)
		if err != nil {
			return 0, err
		}
		idTLV, err := expectTag(globalTLV.Value, TagInteger)
		if err != nil {
			return 0, err
		}
		return decodeInt32(idTLV.Value)

	default:
		return 0, newBerError(BerUnexpectedTag, "unsupported message version")
	}
}
