// Copyright 2025 The GoSNMP Authors. All rights reserved.  Use of this
// source code is governed by a BSD-style license that can be found in the
// LICENSE file.

//go:build gosnmp_nodebug

// Built with the gosnmp_nodebug tag, Logger drops straight to no-ops: the
// log call sites in transport_udp.go, transport_tcp.go, transport_tsm.go
// and trap.go already guard every call behind Enabled(), so with Enabled
// constantly false this build strips the log formatting instead of merely
// silencing it at runtime.
package snmp

func (l *Logger) Print(v ...any) {}

func (l *Logger) Printf(format string, v ...any) {}

// Enabled always reports false under gosnmp_nodebug.
func (l *Logger) Enabled() bool { return false }
