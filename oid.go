// Copyright 2012 The GoSNMP Authors. All rights reserved.  Use of this
// source code is governed by a BSD-style license that can be found in the
// LICENSE file.

package snmp

import (
	"strconv"
	"strings"
)

// MaxOidArcs is the maximum number of arcs an Oid may carry (§4.1).
const MaxOidArcs = 128

// Oid is a fixed-capacity, ordered sequence of unsigned 32-bit arcs with
// lexicographic total order.
type Oid []uint32

// ParseOid parses dotted-decimal form ("1.3.6.1.2.1.1.1.0"), rejecting
// empty input, leading/trailing dots, non-numeric arcs, arcs that overflow
// uint32, and sequences longer than MaxOidArcs.
func ParseOid(s string) (Oid, error) {
	s = strings.TrimPrefix(s, ".")
	if s == "" {
		return nil, newBerError(BerInvalidLength, "empty OID")
	}
	if strings.HasSuffix(s, ".") {
		return nil, newBerError(BerInvalidLength, "trailing dot in OID")
	}
	parts := strings.Split(s, ".")
	if len(parts) > MaxOidArcs {
		return nil, newBerError(BerOidTooLong, "OID exceeds 128 arcs")
	}
	arcs := make(Oid, len(parts))
	for i, p := range parts {
		if p == "" {
			return nil, newBerError(BerInvalidLength, "empty arc in OID")
		}
		v, err := strconv.ParseUint(p, 10, 32)
		if err != nil {
			return nil, newBerError(BerIntegerOverflow, "non-numeric or oversized arc: "+p)
		}
		arcs[i] = uint32(v)
	}
	return arcs, nil
}

// String formats the Oid in dotted-decimal form.
func (o Oid) String() string {
	var b strings.Builder
	for i, arc := range o {
		if i > 0 {
			b.WriteByte('.')
		}
		b.WriteString(strconv.FormatUint(uint64(arc), 10))
	}
	return b.String()
}

// Clone returns an independent copy of the Oid.
func (o Oid) Clone() Oid {
	c := make(Oid, len(o))
	copy(c, o)
	return c
}

// Compare returns -1, 0 or 1 as o is lexicographically less than, equal
// to, or greater than other. A strict prefix compares less than any
// extension of itself.
func (o Oid) Compare(other Oid) int {
	n := len(o)
	if len(other) < n {
		n = len(other)
	}
	for i := 0; i < n; i++ {
		if o[i] < other[i] {
			return -1
		}
		if o[i] > other[i] {
			return 1
		}
	}
	switch {
	case len(o) < len(other):
		return -1
	case len(o) > len(other):
		return 1
	default:
		return 0
	}
}

// Equal reports whether o and other have the same arcs.
func (o Oid) Equal(other Oid) bool { return o.Compare(other) == 0 }

// Less reports whether o sorts strictly before other.
func (o Oid) Less(other Oid) bool { return o.Compare(other) < 0 }

// LessEqual reports whether o sorts at or before other.
func (o Oid) LessEqual(other Oid) bool { return o.Compare(other) <= 0 }

// IsPrefixOf reports whether o is a prefix of other (including o == other).
func (o Oid) IsPrefixOf(other Oid) bool {
	if len(o) > len(other) {
		return false
	}
	for i := range o {
		if o[i] != other[i] {
			return false
		}
	}
	return true
}

// Successor returns a new Oid with a trailing .0 arc appended, the
// canonical starting point for a subtree walk rooted at o.
func (o Oid) Successor() Oid {
	s := make(Oid, len(o)+1)
	copy(s, o)
	s[len(o)] = 0
	return s
}

// validateOid enforces the arc-count bound for an Oid constructed
// programmatically (OidFromUint32s) and for the BER OID encoder/decoder;
// ParseOid applies the same bound itself.
func validateOid(o Oid) error {
	if len(o) > MaxOidArcs {
		return newBerError(BerOidTooLong, "OID exceeds 128 arcs")
	}
	return nil
}

// OidFromUint32s builds an Oid from a literal arc list, validating length.
func OidFromUint32s(arcs ...uint32) (Oid, error) {
	o := Oid(arcs).Clone()
	if err := validateOid(o); err != nil {
		return nil, err
	}
	return o, nil
}
