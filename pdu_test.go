// Copyright 2012 The GoSNMP Authors. All rights reserved.  Use of this
// source code is governed by a BSD-style license that can be found in the
// LICENSE file.

package snmp

import (
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sampleVarBinds(t *testing.T) []VarBind {
	t.Helper()
	oid1, err := ParseOid("1.3.6.1.2.1.1.1.0")
	require.NoError(t, err)
	oid2, err := ParseOid("1.3.6.1.2.1.1.3.0")
	require.NoError(t, err)
	return []VarBind{
		{Oid: oid1, Value: OctetStringValue([]byte("a test agent"))},
		{Oid: oid2, Value: TimeTicksValue(12345)},
	}
}

func TestMarshalUnmarshalPDUStandard(t *testing.T) {
	for _, pduType := range []PDUType{GetRequest, GetNextRequest, GetResponse, SetRequest, InformRequest, SNMPv2Trap, Report} {
		t.Run(pduType.String(), func(t *testing.T) {
			pdu := &PDU{Type: pduType, RequestID: 42, ErrorStatus: NoError, ErrorIndex: 0, VarBinds: sampleVarBinds(t)}
			encoded, err := MarshalPDU(pdu)
			require.NoError(t, err)

			decoded, err := UnmarshalPDU(encoded)
			require.NoError(t, err)
			assert.Equal(t, pdu.Type, decoded.Type)
			assert.Equal(t, pdu.RequestID, decoded.RequestID)
			assert.Equal(t, pdu.ErrorStatus, decoded.ErrorStatus)
			require.Len(t, decoded.VarBinds, 2)
			assert.True(t, decoded.VarBinds[0].Value.Equal(pdu.VarBinds[0].Value))
		})
	}
}

func TestMarshalUnmarshalPDUBulk(t *testing.T) {
	pdu := &PDU{Type: GetBulkRequest, RequestID: 7, NonRepeaters: 1, MaxRepetitions: 10, VarBinds: sampleVarBinds(t)}
	encoded, err := MarshalPDU(pdu)
	require.NoError(t, err)

	decoded, err := UnmarshalPDU(encoded)
	require.NoError(t, err)
	assert.True(t, decoded.IsBulk())
	assert.Equal(t, int32(1), decoded.NonRepeaters)
	assert.Equal(t, int32(10), decoded.MaxRepetitions)
}

func TestMarshalUnmarshalPDUV1Trap(t *testing.T) {
	enterprise, err := ParseOid("1.3.6.1.4.1.8072.3.2.10")
	require.NoError(t, err)
	pdu := &PDU{
		Type:         Trap,
		Enterprise:   enterprise,
		AgentAddress: 0xc0a80101,
		GenericTrap:  6,
		SpecificTrap: 1,
		Timestamp:    100,
		VarBinds:     sampleVarBinds(t),
	}
	encoded, err := MarshalPDU(pdu)
	require.NoError(t, err)

	decoded, err := UnmarshalPDU(encoded)
	require.NoError(t, err)
	assert.Equal(t, Trap, decoded.Type)
	assert.True(t, decoded.Enterprise.Equal(enterprise))
	assert.Equal(t, uint32(0xc0a80101), decoded.AgentAddress)
	assert.Equal(t, int32(6), decoded.GenericTrap)
	assert.Equal(t, int32(1), decoded.SpecificTrap)
	assert.Equal(t, uint32(100), decoded.Timestamp)
}

func TestUnmarshalPDURejectsUnknownType(t *testing.T) {
	buf := encodeTLV(nil, BerTag(0x99), nil)
	_, err := UnmarshalPDU(buf)
	assert.Error(t, err)
}

func TestMarshalUnmarshalPDUPreservesVarBindOids(t *testing.T) {
	want := sampleVarBinds(t)
	pdu := &PDU{Type: GetResponse, RequestID: 1, VarBinds: want}
	encoded, err := MarshalPDU(pdu)
	require.NoError(t, err)

	decoded, err := UnmarshalPDU(encoded)
	require.NoError(t, err)
	require.Len(t, decoded.VarBinds, len(want))

	for i := range want {
		if diff := cmp.Diff([]uint32(want[i].Oid), []uint32(decoded.VarBinds[i].Oid)); diff != "" {
			t.Errorf("varbind %d oid mismatch (-want +got):\n%s", i, diff)
		}
	}
}
