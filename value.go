// Copyright 2012 The GoSNMP Authors. All rights reserved.  Use of this
// source code is governed by a BSD-style license that can be found in the
// LICENSE file.

package snmp

import "fmt"

// ValueKind tags which field of a Value is populated.
type ValueKind byte

const (
	KindInteger ValueKind = iota
	KindOctetString
	KindNull
	KindObjectIdentifier
	KindIPAddress
	KindCounter32
	KindGauge32
	KindTimeTicks
	KindOpaque
	KindCounter64
	// NoSuchObject, NoSuchInstance and EndOfMibView are exception values
	// carried in a varbind, never protocol-level errors (§3).
	KindNoSuchObject
	KindNoSuchInstance
	KindEndOfMibView
)

func (k ValueKind) String() string {
	switch k {
	case KindInteger:
		return "Integer"
	case KindOctetString:
		return "OctetString"
	case KindNull:
		return "Null"
	case KindObjectIdentifier:
		return "ObjectIdentifier"
	case KindIPAddress:
		return "IpAddress"
	case KindCounter32:
		return "Counter32"
	case KindGauge32:
		return "Gauge32"
	case KindTimeTicks:
		return "TimeTicks"
	case KindOpaque:
		return "Opaque"
	case KindCounter64:
		return "Counter64"
	case KindNoSuchObject:
		return "NoSuchObject"
	case KindNoSuchInstance:
		return "NoSuchInstance"
	case KindEndOfMibView:
		return "EndOfMibView"
	default:
		return "Unknown"
	}
}

// Value is a tagged union over the SNMP SMI value types (§3). Exactly the
// field matching Kind is meaningful; the rest are zero.
type Value struct {
	Kind ValueKind

	Int    int32
	Bytes  []byte // OctetString / Opaque payload
	Oid    Oid
	Uint32 uint32 // IpAddress / Counter32 / Gauge32 / TimeTicks
	Uint64 uint64 // Counter64
}

// IsException reports whether v is one of the three varbind exception
// values, which terminate walks but are not PduErrors.
func (v Value) IsException() bool {
	switch v.Kind {
	case KindNoSuchObject, KindNoSuchInstance, KindEndOfMibView:
		return true
	default:
		return false
	}
}

// Equal compares two Values for the BER round-trip property test (§8).
func (v Value) Equal(other Value) bool {
	if v.Kind != other.Kind {
		return false
	}
	switch v.Kind {
	case KindInteger:
		return v.Int == other.Int
	case KindOctetString, KindOpaque:
		return bytesEqual(v.Bytes, other.Bytes)
	case KindNull, KindNoSuchObject, KindNoSuchInstance, KindEndOfMibView:
		return true
	case KindObjectIdentifier:
		return v.Oid.Equal(other.Oid)
	case KindIPAddress, KindCounter32, KindGauge32, KindTimeTicks:
		return v.Uint32 == other.Uint32
	case KindCounter64:
		return v.Uint64 == other.Uint64
	default:
		return false
	}
}

func bytesEqual(a, b []byte) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

func (v Value) String() string {
	switch v.Kind {
	case KindInteger:
		return fmt.Sprintf("Integer(%d)", v.Int)
	case KindOctetString:
		return fmt.Sprintf("OctetString(%q)", v.Bytes)
	case KindOpaque:
		return fmt.Sprintf("Opaque(%d bytes)", len(v.Bytes))
	case KindNull:
		return "Null"
	case KindObjectIdentifier:
		return fmt.Sprintf("ObjectIdentifier(%s)", v.Oid)
	case KindIPAddress:
		return fmt.Sprintf("IpAddress(%d.%d.%d.%d)", byte(v.Uint32>>24), byte(v.Uint32>>16), byte(v.Uint32>>8), byte(v.Uint32))
	case KindCounter32:
		return fmt.Sprintf("Counter32(%d)", v.Uint32)
	case KindGauge32:
		return fmt.Sprintf("Gauge32(%d)", v.Uint32)
	case KindTimeTicks:
		return fmt.Sprintf("TimeTicks(%d)", v.Uint32)
	case KindCounter64:
		return fmt.Sprintf("Counter64(%d)", v.Uint64)
	case KindNoSuchObject:
		return "NoSuchObject"
	case KindNoSuchInstance:
		return "NoSuchInstance"
	case KindEndOfMibView:
		return "EndOfMibView"
	default:
		return "Unknown"
	}
}

// Constructors for convenient, type-checked construction.

func IntegerValue(i int32) Value        { return Value{Kind: KindInteger, Int: i} }
func OctetStringValue(b []byte) Value   { return Value{Kind: KindOctetString, Bytes: b} }
func NullValue() Value                  { return Value{Kind: KindNull} }
func ObjectIdentifierValue(o Oid) Value { return Value{Kind: KindObjectIdentifier, Oid: o} }
func IPAddressValue(v uint32) Value     { return Value{Kind: KindIPAddress, Uint32: v} }
func Counter32Value(v uint32) Value     { return Value{Kind: KindCounter32, Uint32: v} }
func Gauge32Value(v uint32) Value       { return Value{Kind: KindGauge32, Uint32: v} }
func TimeTicksValue(v uint32) Value     { return Value{Kind: KindTimeTicks, Uint32: v} }
func OpaqueValue(b []byte) Value        { return Value{Kind: KindOpaque, Bytes: b} }
func Counter64Value(v uint64) Value     { return Value{Kind: KindCounter64, Uint64: v} }
func NoSuchObjectValue() Value          { return Value{Kind: KindNoSuchObject} }
func NoSuchInstanceValue() Value        { return Value{Kind: KindNoSuchInstance} }
func EndOfMibViewValue() Value          { return Value{Kind: KindEndOfMibView} }

// VarBind is an (Oid, Value) pair. PDUs carry an ordered list of these.
type VarBind struct {
	Oid   Oid
	Value Value
}
