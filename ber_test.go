// Copyright 2012 The GoSNMP Authors. All rights reserved.  Use of this
// source code is governed by a BSD-style license that can be found in the
// LICENSE file.

package snmp

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEncodeDecodeLength(t *testing.T) {
	tests := []struct {
		name   string
		length int
		want   []byte
	}{
		{"short_zero", 0, []byte{0x00}},
		{"short_max", 127, []byte{0x7f}},
		{"long_one_octet", 128, []byte{0x81, 0x80}},
		{"long_two_octets", 256, []byte{0x82, 0x01, 0x00}},
		{"long_max_one_octet", 255, []byte{0x81, 0xff}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := encodeLength(nil, tt.length)
			assert.Equal(t, tt.want, got)

			length, consumed, err := decodeLength(got)
			require.NoError(t, err)
			assert.Equal(t, tt.length, length)
			assert.Equal(t, len(got), consumed)
		})
	}
}

func TestDecodeLengthRejectsIndefiniteAndOverlong(t *testing.T) {
	_, _, err := decodeLength([]byte{0x80})
	assert.Error(t, err, "indefinite length must be rejected")

	_, _, err = decodeLength([]byte{0x85, 1, 2, 3, 4, 5})
	assert.Error(t, err, "length fields wider than 4 octets must be rejected")

	_, _, err = decodeLength([]byte{0x82, 0x01})
	assert.Error(t, err, "truncated long-form length must error")
}

func TestTLVRoundTrip(t *testing.T) {
	buf := encodeTLV(nil, TagOctetString, []byte("public"))
	got, err := decodeTLV(buf)
	require.NoError(t, err)
	assert.Equal(t, TagOctetString, got.Tag)
	assert.Equal(t, []byte("public"), got.Value)
	assert.Equal(t, len(buf), got.Consumed)
}

func TestDecodeTLVTruncated(t *testing.T) {
	buf := encodeTLV(nil, TagOctetString, []byte("hello"))
	_, err := decodeTLV(buf[:len(buf)-2])
	assert.Error(t, err)
}

func TestExpectTagMismatch(t *testing.T) {
	buf := encodeTLV(nil, TagInteger, encodeInteger(1))
	_, err := expectTag(buf, TagOctetString)
	assert.Error(t, err)
}

func TestEncodeDecodeIntegerRoundTrip(t *testing.T) {
	values := []int64{0, 1, -1, 127, 128, -128, -129, 32767, -32768, 1 << 40, -(1 << 40)}
	for _, v := range values {
		enc := encodeInteger(v)
		got, err := decodeInteger(enc)
		require.NoError(t, err)
		assert.Equal(t, v, got, "round trip for %d", v)
	}
}

func TestEncodeIntegerIsMinimal(t *testing.T) {
	// 127 fits in one octet; 128 needs a leading zero pad to avoid looking
	// negative.
	assert.Equal(t, []byte{0x7f}, encodeInteger(127))
	assert.Equal(t, []byte{0x00, 0x80}, encodeInteger(128))
	assert.Equal(t, []byte{0x80}, encodeInteger(-128))
}

func TestDecodeInt32Overflow(t *testing.T) {
	_, err := decodeInt32(encodeInteger(int64(1) << 40))
	assert.Error(t, err)
}

func TestEncodeDecodeUint32RoundTrip(t *testing.T) {
	values := []uint32{0, 1, 127, 128, 255, 256, 1<<31 - 1, 1 << 31, ^uint32(0)}
	for _, v := range values {
		enc := encodeUint32(v)
		got, err := decodeUint32(enc)
		require.NoError(t, err)
		assert.Equal(t, v, got, "round trip for %d", v)
	}
}

func TestEncodeUint32PadsSignBit(t *testing.T) {
	// A value whose top bit is set needs a leading 0x00 so it isn't
	// misread as a negative BER INTEGER.
	enc := encodeUint32(0x80000000)
	assert.Equal(t, []byte{0x00, 0x80, 0x00, 0x00, 0x00}, enc)
}

func TestEncodeDecodeUint64RoundTrip(t *testing.T) {
	values := []uint64{0, 1, 1 << 40, ^uint64(0)}
	for _, v := range values {
		enc := encodeUint64(v)
		got, err := decodeUint64(enc)
		require.NoError(t, err)
		assert.Equal(t, v, got)
	}
}

func TestEncodeDecodeOidRoundTrip(t *testing.T) {
	tests := []string{
		"1.3.6.1.2.1.1.1.0",
		"1.3.6.1.4.1.2021.11.9.0",
		"0.0",
		"2.999.3",
	}
	for _, s := range tests {
		oid, err := ParseOid(s)
		require.NoError(t, err)
		content, err := encodeOid(oid)
		require.NoError(t, err)
		decoded, err := decodeOid(content)
		require.NoError(t, err)
		assert.True(t, oid.Equal(decoded), "round trip for %s: got %s", s, decoded)
	}
}

func TestDecodeOidRejectsDanglingContinuationBit(t *testing.T) {
	_, err := decodeOid([]byte{0x81})
	assert.Error(t, err)
}

func TestDecodeOidRejectsEmpty(t *testing.T) {
	_, err := decodeOid(nil)
	assert.Error(t, err)
}

func TestDecodeTLVNestingViaVarBindList(t *testing.T) {
	oid, _ := ParseOid("1.3.6.1.2.1.1.1.0")
	vbs := []VarBind{
		{Oid: oid, Value: OctetStringValue([]byte("sysDescr"))},
		{Oid: oid, Value: IntegerValue(42)},
	}
	encoded, err := marshalVarBindList(vbs)
	require.NoError(t, err)
	decoded, err := unmarshalVarBindList(encoded)
	require.NoError(t, err)
	require.Len(t, decoded, 2)
	assert.True(t, decoded[0].Value.Equal(vbs[0].Value))
	assert.True(t, decoded[1].Value.Equal(vbs[1].Value))
}
