// Copyright 2012 The GoSNMP Authors. All rights reserved.  Use of this
// source code is governed by a BSD-style license that can be found in the
// LICENSE file.

package snmp

// PDU is a tagged union over the SNMP request/response types (§3). The
// non-bulk variants use RequestID/ErrorStatus/ErrorIndex/VarBinds; GetBulk
// uses RequestID/NonRepeaters/MaxRepetitions/VarBinds; the v1 Trap variant
// uses the SNMPv1-specific trailer fields instead of RequestID.
type PDU struct {
	Type PDUType

	RequestID      int32
	ErrorStatus    SNMPError
	ErrorIndex     int32
	NonRepeaters   int32
	MaxRepetitions int32
	VarBinds       []VarBind

	// SNMPv1 Trap-PDU fields (RFC 1157 §4.1.6). Unused by every other type.
	Enterprise   Oid
	AgentAddress uint32
	GenericTrap  int32
	SpecificTrap int32
	Timestamp    uint32
}

// IsBulk reports whether p is a GetBulk-Request, which uses
// NonRepeaters/MaxRepetitions instead of ErrorStatus/ErrorIndex.
func (p *PDU) IsBulk() bool { return p.Type == GetBulkRequest }

// MarshalPDU encodes p as its CONTEXT-specific, constructed TLV.
func MarshalPDU(p *PDU) ([]byte, error) {
	var body []byte
	var err error

	switch p.Type {
	case GetBulkRequest:
		body, err = marshalBulkBody(p)
	case Trap:
		body, err = marshalV1TrapBody(p)
	default:
		body, err = marshalStandardBody(p)
	}
	if err != nil {
		return nil, err
	}

	out := make([]byte, 0, len(body)+8)
	return encodeTLV(out, BerTag(p.Type), body), nil
}

func marshalStandardBody(p *PDU) ([]byte, error) {
	body := make([]byte, 0, 32)
	body = encodeTLV(body, TagInteger, encodeInteger(int64(p.RequestID)))
	body = encodeTLV(body, TagInteger, encodeInteger(int64(p.ErrorStatus)))
	body = encodeTLV(body, TagInteger, encodeInteger(int64(p.ErrorIndex)))
	vbl, err := marshalVarBindList(p.VarBinds)
	if err != nil {
		return nil, err
	}
	return append(body, vbl...), nil
}

func marshalBulkBody(p *PDU) ([]byte, error) {
	body := make([]byte, 0, 32)
	body = encodeTLV(body, TagInteger, encodeInteger(int64(p.RequestID)))
	body = encodeTLV(body, TagInteger, encodeInteger(int64(p.NonRepeaters)))
	body = encodeTLV(body, TagInteger, encodeInteger(int64(p.MaxRepetitions)))
	vbl, err := marshalVarBindList(p.VarBinds)
	if err != nil {
		return nil, err
	}
	return append(body, vbl...), nil
}

func marshalV1TrapBody(p *PDU) ([]byte, error) {
	body := make([]byte, 0, 32)
	oidContent, err := encodeOid(p.Enterprise)
	if err != nil {
		return nil, err
	}
	body = encodeTLV(body, TagObjectIdentifier, oidContent)
	ip := p.AgentAddress
	body = encodeTLV(body, TagIPAddress, []byte{byte(ip >> 24), byte(ip >> 16), byte(ip >> 8), byte(ip)})
	body = encodeTLV(body, TagInteger, encodeInteger(int64(p.GenericTrap)))
	body = encodeTLV(body, TagInteger, encodeInteger(int64(p.SpecificTrap)))
	body = encodeTLV(body, TagTimeTicks, encodeUint32(p.Timestamp))
	vbl, err := marshalVarBindList(p.VarBinds)
	if err != nil {
		return nil, err
	}
	return append(body, vbl...), nil
}

// UnmarshalPDU decodes a CONTEXT-specific PDU TLV from buf.
func UnmarshalPDU(buf []byte) (*PDU, error) {
	t, err := decodeTLV(buf)
	if err != nil {
		return nil, err
	}
	pduType := PDUType(t.Tag)
	switch pduType {
	case GetRequest, GetNextRequest, GetResponse, SetRequest, GetBulkRequest,
		InformRequest, SNMPv2Trap, Report, Trap:
		// recognized
	default:
		return nil, newBerError(BerUnexpectedTag, "unrecognized PDU type")
	}

	p := &PDU{Type: pduType}
	rest := t.Value

	switch pduType {
	case GetBulkRequest:
		reqID, consumed, err := decodeLeadingInteger(rest)
		if err != nil {
			return nil, err
		}
		p.RequestID = reqID
		rest = rest[consumed:]

		nonRep, consumed, err := decodeLeadingInteger(rest)
		if err != nil {
			return nil, err
		}
		p.NonRepeaters = nonRep
		rest = rest[consumed:]

		maxRep, consumed, err := decodeLeadingInteger(rest)
		if err != nil {
			return nil, err
		}
		p.MaxRepetitions = maxRep
		rest = rest[consumed:]

	case Trap:
		oidTLV, err := expectTag(rest, TagObjectIdentifier)
		if err != nil {
			return nil, err
		}
		oid, err := decodeOid(oidTLV.Value)
		if err != nil {
			return nil, err
		}
		p.Enterprise = oid
		rest = rest[oidTLV.Consumed:]

		addrTLV, err := expectTag(rest, TagIPAddress)
		if err != nil {
			return nil, err
		}
		if len(addrTLV.Value) != 4 {
			return nil, newBerError(BerInvalidLength, "AgentAddress must be 4 octets")
		}
		p.AgentAddress = uint32(addrTLV.Value[0])<<24 | uint32(addrTLV.Value[1])<<16 | uint32(addrTLV.Value[2])<<8 | uint32(addrTLV.Value[3])
		rest = rest[addrTLV.Consumed:]

		generic, consumed, err := decodeLeadingInteger(rest)
		if err != nil {
			return nil, err
		}
		p.GenericTrap = generic
		rest = rest[consumed:]

		specific, consumed, err := decodeLeadingInteger(rest)
		if err != nil {
			return nil, err
		}
		p.SpecificTrap = specific
		rest = rest[consumed:]

		tsTLV, err := expectTag(rest, TagTimeTicks)
		if err != nil {
			return nil, err
		}
		ts, err := decodeUint32(tsTLV.Value)
		if err != nil {
			return nil, err
		}
		p.Timestamp = ts
		rest = rest[tsTLV.Consumed:]

	default:
		reqID, consumed, err := decodeLeadingInteger(rest)
		if err != nil {
			return nil, err
		}
		p.RequestID = reqID
		rest = rest[consumed:]

		errStatus, consumed, err := decodeLeadingInteger(rest)
		if err != nil {
			return nil, err
		}
		p.ErrorStatus = SNMPError(errStatus)
		rest = rest[consumed:]

		errIndex, consumed, err := decodeLeadingInteger(rest)
		if err != nil {
			return nil, err
		}
		p.ErrorIndex = errIndex
		rest = rest[consumed:]
	}

	vbs, err := unmarshalVarBindList(rest)
	if err != nil {
		return nil, err
	}
	p.VarBinds = vbs
	return p, nil
}

// decodeLeadingInteger decodes one leading INTEGER TLV from buf, returning
// its value and the number of bytes it consumed.
func decodeLeadingInteger(buf []byte) (int32, int, error) {
	t, err := expectTag(buf, TagInteger)
	if err != nil {
		return 0, 0, err
	}
	v, err := decodeInt32(t.Value)
	if err != nil {
		return 0, 0, err
	}
	return v, t.Consumed, nil
}
