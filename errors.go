// Copyright 2012 The GoSNMP Authors. All rights reserved.  Use of this
// source code is governed by a BSD-style license that can be found in the
// LICENSE file.

package snmp

import (
	"errors"
	"fmt"
	"net"
	"time"
)

// Sentinel errors for SNMPv3 USM Report PDU classification. These mirror
// the fixed, context-free error conditions defined by RFC 3414; anything
// that needs per-occurrence context (target, elapsed time, request ID) gets
// its own type below instead of a sentinel.
var (
	ErrUnknownSecurityLevel  = errors.New("snmp: unsupported security level")
	ErrUnknownSecurityModels = errors.New("snmp: unknown security model")
	ErrInvalidMsgs           = errors.New("snmp: invalid message")
	ErrUnknownPDUHandlers    = errors.New("snmp: unknown PDU handler")
	ErrUnknownReportPDU      = errors.New("snmp: unrecognized report PDU")
)

// CertMappingError reports that no CertMapping derived a securityName from a
// TSM peer's certificate (RFC 6353 §5.3.2). Target, when known, is the
// address of the peer whose certificate was being mapped.
type CertMappingError struct {
	Target net.Addr
	Reason string
}

func (e *CertMappingError) Error() string {
	if e.Target != nil {
		return fmt.Sprintf("snmp: tsm: no certificate mapping for %v: %s", e.Target, e.Reason)
	}
	return fmt.Sprintf("snmp: tsm: no certificate mapping: %s", e.Reason)
}

// Is lets errors.Is(err, ErrNoCertMapping) keep matching after Target
// context was added, for callers that only care about the failure class.
func (e *CertMappingError) Is(target error) bool { return target == ErrNoCertMapping }

// ErrNoCertMapping classifies a CertMappingError; match it with errors.Is
// rather than comparing directly, since CertMappingError carries the
// target address that produced it.
var ErrNoCertMapping = errors.New("snmp: no matching certificate mapping")

// TimeoutError reports that no response arrived for a request before its
// deadline, across all retry attempts.
type TimeoutError struct {
	Target    net.Addr
	Elapsed   time.Duration
	Retries   int
	RequestID int32
}

func (e *TimeoutError) Error() string {
	return fmt.Sprintf("snmp: timeout waiting for response from %v (request id %d, %d retries, %s elapsed)",
		e.Target, e.RequestID, e.Retries, e.Elapsed)
}

// Timeout reports whether this error represents a deadline expiry, so it
// satisfies net.Error-style timeout checks used by callers and by the
// retry engine's isRetriable classification.
func (e *TimeoutError) Timeout() bool { return true }

// IoError wraps a transport-level failure (socket, DNS, etc).
type IoError struct {
	Target net.Addr
	Err    error
}

func (e *IoError) Error() string {
	if e.Target != nil {
		return fmt.Sprintf("snmp: io error talking to %v: %v", e.Target, e.Err)
	}
	return fmt.Sprintf("snmp: io error: %v", e.Err)
}

func (e *IoError) Unwrap() error { return e.Err }

// BerErrorKind enumerates the ways a BER decode can fail.
type BerErrorKind int

const (
	BerTruncated BerErrorKind = iota
	BerUnexpectedTag
	BerInvalidLength
	BerIntegerOverflow
	BerOidTooLong
)

func (k BerErrorKind) String() string {
	switch k {
	case BerTruncated:
		return "truncated"
	case BerUnexpectedTag:
		return "unexpected tag"
	case BerInvalidLength:
		return "invalid length"
	case BerIntegerOverflow:
		return "integer overflow"
	case BerOidTooLong:
		return "oid too long"
	default:
		return "unknown ber error"
	}
}

// BerError is returned by the BER codec. It is never retried (§7).
type BerError struct {
	Kind    BerErrorKind
	Context string
}

func (e *BerError) Error() string {
	if e.Context != "" {
		return fmt.Sprintf("snmp: ber: %s: %s", e.Kind, e.Context)
	}
	return fmt.Sprintf("snmp: ber: %s", e.Kind)
}

func newBerError(kind BerErrorKind, context string) *BerError {
	return &BerError{Kind: kind, Context: context}
}

// PduError is an agent-reported error-status/error-index pair, surfaced to
// the caller unmodified.
type PduError struct {
	Status SNMPError
	Index  int
}

func (e *PduError) Error() string {
	return fmt.Sprintf("snmp: agent returned error %s at varbind index %d", e.Status, e.Index)
}

// AuthErrorKind enumerates SNMPv3 authentication failures.
type AuthErrorKind int

const (
	AuthMacMismatch AuthErrorKind = iota
	AuthUnknownUser
	AuthUnsupportedProtocol
)

func (k AuthErrorKind) String() string {
	switch k {
	case AuthMacMismatch:
		return "MAC mismatch"
	case AuthUnknownUser:
		return "unknown user"
	case AuthUnsupportedProtocol:
		return "unsupported authentication protocol"
	default:
		return "unknown auth error"
	}
}

// AuthError signals an SNMPv3 USM authentication failure. Never retried.
type AuthError struct {
	Kind AuthErrorKind
}

func (e *AuthError) Error() string { return fmt.Sprintf("snmp: auth: %s", e.Kind) }

// PrivacyErrorKind enumerates SNMPv3 privacy (encryption) failures.
type PrivacyErrorKind int

const (
	PrivacyDecryptFailure PrivacyErrorKind = iota
	PrivacyUnsupportedProtocol
	PrivacyInvalidParams
)

func (k PrivacyErrorKind) String() string {
	switch k {
	case PrivacyDecryptFailure:
		return "decrypt failure"
	case PrivacyUnsupportedProtocol:
		return "unsupported privacy protocol"
	case PrivacyInvalidParams:
		return "invalid privacy parameters"
	default:
		return "unknown privacy error"
	}
}

// PrivacyError signals an SNMPv3 USM privacy failure. Never retried.
type PrivacyError struct {
	Kind PrivacyErrorKind
}

func (e *PrivacyError) Error() string { return fmt.Sprintf("snmp: privacy: %s", e.Kind) }

// EngineErrorKind enumerates SNMPv3 engine-state failures.
type EngineErrorKind int

const (
	EngineDiscoveryFailed EngineErrorKind = iota
	EngineIDMismatch
	EngineOutOfTimeWindow
)

func (k EngineErrorKind) String() string {
	switch k {
	case EngineDiscoveryFailed:
		return "discovery failed"
	case EngineIDMismatch:
		return "engine id mismatch"
	case EngineOutOfTimeWindow:
		return "out of time window"
	default:
		return "unknown engine error"
	}
}

// EngineError signals an SNMPv3 engine-cache failure. OutOfTimeWindow and
// EngineIDMismatch trigger one automatic resync-and-retry (§4.4);
// DiscoveryFailed surfaces.
type EngineError struct {
	Kind EngineErrorKind
}

func (e *EngineError) Error() string { return fmt.Sprintf("snmp: engine: %s", e.Kind) }

// ConfigError reports a programmer error in client configuration. Never
// retried.
type ConfigError struct {
	Field  string
	Reason string
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("snmp: config: field %q: %s", e.Field, e.Reason)
}

// WalkErrorKind enumerates walk-iteration failures.
type WalkErrorKind int

const (
	WalkLexicographicRegression WalkErrorKind = iota
	WalkUnexpectedValueType
)

func (k WalkErrorKind) String() string {
	switch k {
	case WalkLexicographicRegression:
		return "lexicographic regression"
	case WalkUnexpectedValueType:
		return "unexpected value type"
	default:
		return "unknown walk error"
	}
}

// WalkError is surfaced to a walk consumer; the previous and current OIDs
// are attached for LexicographicRegression.
type WalkError struct {
	Kind     WalkErrorKind
	Previous Oid
	Current  Oid
}

func (e *WalkError) Error() string {
	if e.Kind == WalkLexicographicRegression {
		return fmt.Sprintf("snmp: walk: %s: %s did not increase past %s", e.Kind, e.Current, e.Previous)
	}
	return fmt.Sprintf("snmp: walk: %s", e.Kind)
}

// ErrTooManyOids is returned when a request's OID count exceeds
// ClientConfig.MaxOidsPerRequest. See SPEC_FULL.md Open Question #2: this
// library errors rather than auto-chunking.
var ErrTooManyOids = errors.New("snmp: too many OIDs for a single request")

// isRetriable centralizes the retry/no-retry policy of §7: transient
// network errors are retried by the retry engine; everything else
// (protocol decode errors, agent-reported PDU errors, auth/privacy
// failures, config errors) is surfaced immediately.
func isRetriable(err error) bool {
	if err == nil {
		return false
	}
	var to *TimeoutError
	if errors.As(err, &to) {
		return true
	}
	var ioErr *IoError
	if errors.As(err, &ioErr) {
		return true
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		return netErr.Timeout()
	}
	return false
}
