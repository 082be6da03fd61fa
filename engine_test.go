// Copyright 2012 The GoSNMP Authors. All rights reserved.  Use of this
// source code is governed by a BSD-style license that can be found in the
// LICENSE file.

package snmp

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEngineStateLocalTimeExtrapolates(t *testing.T) {
	e := &EngineState{EngineBoots: 1, EngineTime: 100, discoveredAt: time.Now().Add(-10 * time.Second)}
	got := e.localTime()
	assert.InDelta(t, 110, int64(got), 2)
}

func TestEngineStateLocalTimeZeroDiscoveredAt(t *testing.T) {
	e := &EngineState{EngineTime: 42}
	assert.Equal(t, uint32(42), e.localTime())
}

func TestEngineStateInTimeWindowBoundary(t *testing.T) {
	e := &EngineState{EngineBoots: 1, EngineTime: 1000}

	assert.True(t, e.inTimeWindow(1, 1000), "exact match is always in window")
	assert.True(t, e.inTimeWindow(1, 1000+150), "exactly at the 150s boundary is still in window")
	assert.False(t, e.inTimeWindow(1, 1000+151), "past the 150s boundary is rejected")
	assert.True(t, e.inTimeWindow(1, 1000-150))
	assert.False(t, e.inTimeWindow(1, 1000-151))
}

func TestEngineStateInTimeWindowRejectsBootsMismatch(t *testing.T) {
	e := &EngineState{EngineBoots: 5, EngineTime: 1000}
	assert.False(t, e.inTimeWindow(4, 1000), "a reboot invalidates the cached window regardless of time")
}

func TestEngineCacheLookupStoreForget(t *testing.T) {
	c := NewEngineCache()

	_, ok := c.Lookup("10.0.0.1:161")
	assert.False(t, ok)

	c.Store("10.0.0.1:161", []byte{0x80, 0x00, 0x00, 0x00, 0x01}, 3, 500)
	state, ok := c.Lookup("10.0.0.1:161")
	require.True(t, ok)
	assert.Equal(t, uint32(3), state.EngineBoots)
	assert.Equal(t, uint32(500), state.EngineTime)

	c.Forget("10.0.0.1:161")
	_, ok = c.Lookup("10.0.0.1:161")
	assert.False(t, ok)
}

func TestEngineCacheStoreIsIndependentPerTarget(t *testing.T) {
	c := NewEngineCache()
	c.Store("a:161", []byte{1}, 1, 1)
	c.Store("b:161", []byte{2}, 2, 2)

	a, _ := c.Lookup("a:161")
	b, _ := c.Lookup("b:161")
	assert.Equal(t, uint32(1), a.EngineBoots)
	assert.Equal(t, uint32(2), b.EngineBoots)

	c.Forget("a:161")
	_, ok := c.Lookup("a:161")
	assert.False(t, ok)
	_, ok = c.Lookup("b:161")
	assert.True(t, ok, "forgetting one target must not evict another")
}

func TestEngineStateNextSaltIsMonotonicAndUnique(t *testing.T) {
	e := &EngineState{}
	seen := make(map[uint64]bool)
	prev := uint64(0)
	for i := 0; i < 100; i++ {
		s := e.nextSalt()
		assert.False(t, seen[s], "salt %d reused", s)
		seen[s] = true
		assert.Greater(t, s, prev)
		prev = s
	}
}

func TestEngineCacheStorePreservesSaltCounterAcrossResync(t *testing.T) {
	c := NewEngineCache()
	engineID := []byte{0x80, 0x00, 0x00, 0x00, 0x01}
	c.Store("a:161", engineID, 1, 100)

	state, _ := c.Lookup("a:161")
	for i := 0; i < 5; i++ {
		state.nextSalt()
	}
	before := state.usmAesSalt

	// A resync with the same engineID (boots/time advancing) must not
	// reset the counter, or a message could reuse a (boots, salt) pair.
	c.Store("a:161", engineID, 1, 250)
	resynced, _ := c.Lookup("a:161")
	assert.Equal(t, before, resynced.usmAesSalt)

	// A genuinely new engine (different engineID) gets a fresh seed
	// rather than carrying the old counter forward.
	newEngineID := []byte{0x80, 0x00, 0x00, 0x00, 0x02}
	c.Store("a:161", newEngineID, 1, 250)
	rediscovered, _ := c.Lookup("a:161")
	assert.NotEqual(t, before, rediscovered.usmAesSalt, "extremely unlikely to collide with a fresh random seed")
}

func TestEngineCacheStoreCopiesEngineID(t *testing.T) {
	c := NewEngineCache()
	id := []byte{0x80, 0x01}
	c.Store("x:161", id, 1, 1)
	id[0] = 0xff

	state, _ := c.Lookup("x:161")
	assert.Equal(t, byte(0x80), state.EngineID[0], "the cache must not alias the caller's slice")
}
