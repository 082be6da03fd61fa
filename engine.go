// Copyright 2012 The GoSNMP Authors. All rights reserved.  Use of this
// source code is governed by a BSD-style license that can be found in the
// LICENSE file.

package snmp

import (
	"bytes"
	"crypto/rand"
	"encoding/binary"
	"sync"
	"sync/atomic"
	"time"
)

// engineTimeWindow is the RFC 3414 §3.2 clause 7 timeliness bound: a
// message is rejected if its reported engine time differs from the
// locally tracked engine time by more than this many seconds.
const engineTimeWindow = 150 * time.Second

// EngineState is what a client knows about one SNMPv3 authoritative
// engine: its identity and the boots/time pair used for the timeliness
// check (§4.4).
type EngineState struct {
	EngineID     []byte
	EngineBoots  uint32
	EngineTime   uint32
	discoveredAt time.Time

	// usmAesSalt is the monotonically incrementing privacy salt counter
	// (§3, §4.4): each authPriv message sent to this engine draws the
	// next value instead of a fresh random one, so the (engineBoots, salt)
	// pair handed to EncryptScopedPDU never repeats for the life of one
	// discovered engine. Seeded randomly so two client processes that
	// independently discover the same engine don't start from the same
	// counter value.
	usmAesSalt uint64
}

// nextSalt atomically increments and returns the privacy salt counter.
func (e *EngineState) nextSalt() uint64 {
	return atomic.AddUint64(&e.usmAesSalt, 1)
}

// randomSaltSeed returns a random 64-bit seed for a freshly discovered
// engine's salt counter. A read failure falls back to 0, which is still
// safe: the counter still increments monotonically from there, it just
// loses the extra protection against two processes racing from the same
// start value.
func randomSaltSeed() uint64 {
	var b [8]byte
	if _, err := rand.Read(b[:]); err != nil {
		return 0
	}
	return binary.BigEndian.Uint64(b[:])
}

// localTime extrapolates the engine's current notion of time from the
// last discovery/sync point, per RFC 3414 §3.2 clause 7b.
func (e *EngineState) localTime() uint32 {
	if e.discoveredAt.IsZero() {
		return e.EngineTime
	}
	return e.EngineTime + uint32(time.Since(e.discoveredAt).Seconds())
}

// inTimeWindow reports whether a peer-reported (boots, time) pair is
// within the acceptable window of this cached state.
func (e *EngineState) inTimeWindow(boots, engineTime uint32) bool {
	if boots != e.EngineBoots {
		return false
	}
	local := e.localTime()
	var delta int64
	if engineTime >= local {
		delta = int64(engineTime) - int64(local)
	} else {
		delta = int64(local) - int64(engineTime)
	}
	return delta <= int64(engineTimeWindow.Seconds())
}

// EngineCache maps a target address to its discovered engine state (§4.4's
// engine-discovery cache, keyed per-target so a client talking to many
// agents reuses each discovery independently).
type EngineCache struct {
	mu     sync.RWMutex
	states map[string]*EngineState
}

// NewEngineCache returns an empty cache.
func NewEngineCache() *EngineCache {
	return &EngineCache{states: make(map[string]*EngineState)}
}

// Lookup returns the cached state for target, if any.
func (c *EngineCache) Lookup(target string) (*EngineState, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	s, ok := c.states[target]
	return s, ok
}

// Store records newly discovered or resynchronized engine state for
// target. If target's cached engineID is unchanged, the existing salt
// counter carries over so a boots/time resync alone never resets it; a
// genuinely new engine gets a freshly seeded one.
func (c *EngineCache) Store(target string, engineID []byte, boots, engineTime uint32) {
	c.mu.Lock()
	defer c.mu.Unlock()
	salt := randomSaltSeed()
	if prev, ok := c.states[target]; ok && bytes.Equal(prev.EngineID, engineID) {
		salt = atomic.LoadUint64(&prev.usmAesSalt)
	}
	c.states[target] = &EngineState{
		EngineID:     append([]byte{}, engineID...),
		EngineBoots:  boots,
		EngineTime:   engineTime,
		discoveredAt: time.Now(),
		usmAesSalt:   salt,
	}
}

// Forget evicts cached state for target, forcing rediscovery on the next
// request (used after EngineOutOfTimeWindow or EngineIDMismatch).
func (c *EngineCache) Forget(target string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.states, target)
}
