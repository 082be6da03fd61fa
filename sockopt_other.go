// Copyright 2012 The GoSNMP Authors. All rights reserved.  Use of this
// source code is governed by a BSD-style license that can be found in the
// LICENSE file.

//go:build !linux

package snmp

import "net"

// TuneUDPBuffers is a no-op outside Linux: SO_RCVBUF/SO_SNDBUF tuning is
// handled by the OS default on other platforms, and the syscall numbers
// golang.org/x/sys/unix exposes for it are Linux/BSD-specific.
func TuneUDPBuffers(conn *net.UDPConn, rcvBufBytes, sndBufBytes int) error {
	return nil
}
