// Copyright 2012 The GoSNMP Authors. All rights reserved.  Use of this
// source code is governed by a BSD-style license that can be found in the
// LICENSE file.

//go:build linux

package snmp

import (
	"net"

	"golang.org/x/sys/unix"
)

// TuneUDPBuffers raises the kernel socket receive/send buffer sizes on a
// UDP socket handling the request volumes named in §5 (50k+ outstanding
// requests): the default buffer overflows well before the pending-request
// table does, silently dropping replies under burst load.
func TuneUDPBuffers(conn *net.UDPConn, rcvBufBytes, sndBufBytes int) error {
	rawConn, err := conn.SyscallConn()
	if err != nil {
		return err
	}
	var setErr error
	ctrlErr := rawConn.Control(func(fd uintptr) {
		if err := unix.SetsockoptInt(int(fd), unix.SOL_SOCKET, unix.SO_RCVBUF, rcvBufBytes); err != nil {
			setErr = err
			return
		}
		if err := unix.SetsockoptInt(int(fd), unix.SOL_SOCKET, unix.SO_SNDBUF, sndBufBytes); err != nil {
			setErr = err
			return
		}
	})
	if ctrlErr != nil {
		return ctrlErr
	}
	return setErr
}
