// Copyright 2012 The GoSNMP Authors. All rights reserved.  Use of this
// source code is governed by a BSD-style license that can be found in the
// LICENSE file.

package snmp

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEncodeDecodeValueRoundTrip(t *testing.T) {
	oid, _ := ParseOid("1.3.6.1.2.1.1.1.0")
	tests := []struct {
		name string
		v    Value
	}{
		{"integer", IntegerValue(-17)},
		{"octet_string", OctetStringValue([]byte("a string value"))},
		{"empty_octet_string", OctetStringValue(nil)},
		{"null", NullValue()},
		{"oid", ObjectIdentifierValue(oid)},
		{"ip_address", IPAddressValue(0xc0a80001)},
		{"counter32", Counter32Value(4294967295)},
		{"gauge32", Gauge32Value(100)},
		{"time_ticks", TimeTicksValue(123456)},
		{"opaque", OpaqueValue([]byte{0xde, 0xad, 0xbe, 0xef})},
		{"counter64", Counter64Value(18446744073709551615)},
		{"no_such_object", NoSuchObjectValue()},
		{"no_such_instance", NoSuchInstanceValue()},
		{"end_of_mib_view", EndOfMibViewValue()},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tag, content, err := encodeValue(tt.v)
			require.NoError(t, err)
			got, err := decodeValue(tag, content)
			require.NoError(t, err)
			assert.True(t, tt.v.Equal(got), "got %s want %s", got, tt.v)
		})
	}
}

func TestValueIsException(t *testing.T) {
	assert.True(t, NoSuchObjectValue().IsException())
	assert.True(t, NoSuchInstanceValue().IsException())
	assert.True(t, EndOfMibViewValue().IsException())
	assert.False(t, IntegerValue(1).IsException())
}

func TestVarBindRoundTrip(t *testing.T) {
	oid, _ := ParseOid("1.3.6.1.2.1.1.3.0")
	vb := VarBind{Oid: oid, Value: TimeTicksValue(98765)}

	encoded, err := marshalVarBind(vb)
	require.NoError(t, err)
	decoded, consumed, err := unmarshalVarBind(encoded)
	require.NoError(t, err)
	assert.Equal(t, len(encoded), consumed)
	assert.True(t, vb.Oid.Equal(decoded.Oid))
	assert.True(t, vb.Value.Equal(decoded.Value))
}
