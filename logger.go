// Copyright 2012 The GoSNMP Authors. All rights reserved.  Use of this
// source code is governed by a BSD-style license that can be found in the
// LICENSE file.

package snmp

// LoggerInterface is a small debugging interface, deliberately shaped like
// the standard library's log.Logger so that *log.Logger satisfies it
// directly.
type LoggerInterface interface {
	Print(v ...any)
	Printf(format string, v ...any)
}

// Logger wraps an optional LoggerInterface. The zero value is a no-op
// logger, so a Client never needs a nil check before calling through it.
type Logger struct {
	logger LoggerInterface
}

// NewLogger wraps logger for use as a Client's debug logger.
func NewLogger(logger LoggerInterface) Logger {
	return Logger{logger: logger}
}
