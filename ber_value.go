// Copyright 2012 The GoSNMP Authors. All rights reserved.  Use of this
// source code is governed by a BSD-style license that can be found in the
// LICENSE file.

package snmp

// encodeValue returns the BER tag and content bytes for v. The caller
// wraps the result in a TLV (see marshalVarBind).
func encodeValue(v Value) (BerTag, []byte, error) {
	switch v.Kind {
	case KindInteger:
		return TagInteger, encodeInteger(int64(v.Int)), nil
	case KindOctetString:
		return TagOctetString, v.Bytes, nil
	case KindNull:
		return TagNull, nil, nil
	case KindObjectIdentifier:
		content, err := encodeOid(v.Oid)
		if err != nil {
			return 0, nil, err
		}
		return TagObjectIdentifier, content, nil
	case KindIPAddress:
		return TagIPAddress, []byte{byte(v.Uint32 >> 24), byte(v.Uint32 >> 16), byte(v.Uint32 >> 8), byte(v.Uint32)}, nil
	case KindCounter32:
		return TagCounter32, encodeUint32(v.Uint32), nil
	case KindGauge32:
		return TagGauge32, encodeUint32(v.Uint32), nil
	case KindTimeTicks:
		return TagTimeTicks, encodeUint32(v.Uint32), nil
	case KindOpaque:
		return TagOpaque, v.Bytes, nil
	case KindCounter64:
		return TagCounter64, encodeUint64(v.Uint64), nil
	case KindNoSuchObject:
		return TagNoSuchObject, nil, nil
	case KindNoSuchInstance:
		return TagNoSuchInstance, nil, nil
	case KindEndOfMibView:
		return TagEndOfMibView, nil, nil
	default:
		return 0, nil, newBerError(BerUnexpectedTag, "unknown value kind")
	}
}

// decodeValue interprets a decoded TLV as a Value. content aliases the
// input buffer; callers that retain Bytes/Oid past the input's lifetime
// must copy explicitly (§4.2).
func decodeValue(tag BerTag, content []byte) (Value, error) {
	switch tag {
	case TagInteger:
		i, err := decodeInt32(content)
		if err != nil {
			return Value{}, err
		}
		return IntegerValue(i), nil
	case TagOctetString:
		return OctetStringValue(content), nil
	case TagNull:
		if len(content) != 0 {
			return Value{}, newBerError(BerInvalidLength, "NULL with non-empty content")
		}
		return NullValue(), nil
	case TagObjectIdentifier:
		o, err := decodeOid(content)
		if err != nil {
			return Value{}, err
		}
		return ObjectIdentifierValue(o), nil
	case TagIPAddress:
		if len(content) != 4 {
			return Value{}, newBerError(BerInvalidLength, "IpAddress must be 4 octets")
		}
		v := uint32(content[0])<<24 | uint32(content[1])<<16 | uint32(content[2])<<8 | uint32(content[3])
		return IPAddressValue(v), nil
	case TagCounter32:
		v, err := decodeUint32(content)
		if err != nil {
			return Value{}, err
		}
		return Counter32Value(v), nil
	case TagGauge32:
		v, err := decodeUint32(content)
		if err != nil {
			return Value{}, err
		}
		return Gauge32Value(v), nil
	case TagTimeTicks:
		v, err := decodeUint32(content)
		if err != nil {
			return Value{}, err
		}
		return TimeTicksValue(v), nil
	case TagOpaque:
		return OpaqueValue(content), nil
	case TagCounter64:
		v, err := decodeUint64(content)
		if err != nil {
			return Value{}, err
		}
		return Counter64Value(v), nil
	case TagNoSuchObject:
		return NoSuchObjectValue(), nil
	case TagNoSuchInstance:
		return NoSuchInstanceValue(), nil
	case TagEndOfMibView:
		return EndOfMibViewValue(), nil
	default:
		return Value{}, newBerError(BerUnexpectedTag, "unrecognized value tag")
	}
}

// marshalVarBind encodes one (Oid, Value) pair as:
//
//	SEQUENCE {
//	  ObjectIdentifier (vb.Oid)
//	  <value TLV>       (vb.Value)
//	}
func marshalVarBind(vb VarBind) ([]byte, error) {
	oidContent, err := encodeOid(vb.Oid)
	if err != nil {
		return nil, err
	}
	tag, content, err := encodeValue(vb.Value)
	if err != nil {
		return nil, err
	}
	inner := make([]byte, 0, 64)
	inner = encodeTLV(inner, TagObjectIdentifier, oidContent)
	inner = encodeTLV(inner, tag, content)
	out := make([]byte, 0, len(inner)+8)
	out = encodeTLV(out, TagSequence, inner)
	return out, nil
}

// unmarshalVarBind decodes one varbind SEQUENCE from buf.
func unmarshalVarBind(buf []byte) (VarBind, int, error) {
	outer, err := expectTag(buf, TagSequence)
	if err != nil {
		return VarBind{}, 0, err
	}
	rest := outer.Value

	oidTLV, err := expectTag(rest, TagObjectIdentifier)
	if err != nil {
		return VarBind{}, 0, err
	}
	oid, err := decodeOid(oidTLV.Value)
	if err != nil {
		return VarBind{}, 0, err
	}
	rest = rest[oidTLV.Consumed:]

	valTLV, err := decodeTLV(rest)
	if err != nil {
		return VarBind{}, 0, err
	}
	val, err := decodeValue(valTLV.Tag, valTLV.Value)
	if err != nil {
		return VarBind{}, 0, err
	}

	return VarBind{Oid: oid, Value: val}, outer.Consumed, nil
}

// marshalVarBindList encodes an ordered varbind list as a SEQUENCE OF
// VarBind.
func marshalVarBindList(vbs []VarBind) ([]byte, error) {
	inner := make([]byte, 0, 64*len(vbs))
	for _, vb := range vbs {
		enc, err := marshalVarBind(vb)
		if err != nil {
			return nil, err
		}
		inner = append(inner, enc...)
	}
	out := make([]byte, 0, len(inner)+8)
	return encodeTLV(out, TagSequence, inner), nil
}

// unmarshalVarBindList decodes a SEQUENCE OF VarBind.
func unmarshalVarBindList(buf []byte) ([]VarBind, error) {
	outer, err := expectTag(buf, TagSequence)
	if err != nil {
		return nil, err
	}
	rest := outer.Value
	var vbs []VarBind
	for len(rest) > 0 {
		vb, consumed, err := unmarshalVarBind(rest)
		if err != nil {
			return nil, err
		}
		vbs = append(vbs, vb)
		rest = rest[consumed:]
	}
	return vbs, nil
}
