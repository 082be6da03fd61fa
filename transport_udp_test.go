// Copyright 2012 The GoSNMP Authors. All rights reserved.  Use of this
// source code is governed by a BSD-style license that can be found in the
// LICENSE file.

package snmp

import (
	"context"
	"net"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// extractTestID treats the first four payload bytes as a big-endian
// correlation id, keeping these tests independent of the SNMP message
// grammar exercised elsewhere.
func extractTestID(payload []byte) (int32, error) {
	if len(payload) < 4 {
		return 0, newBerError(BerTruncated, "short test payload")
	}
	return int32(payload[0])<<24 | int32(payload[1])<<16 | int32(payload[2])<<8 | int32(payload[3]), nil
}

func putTestID(id int32, rest string) []byte {
	b := make([]byte, 4+len(rest))
	b[0] = byte(id >> 24)
	b[1] = byte(id >> 16)
	b[2] = byte(id >> 8)
	b[3] = byte(id)
	copy(b[4:], rest)
	return b
}

func newLoopbackPair(t *testing.T) (client, server *net.UDPConn) {
	t.Helper()
	serverConn, err := net.ListenUDP("udp", &net.UDPAddr{IP: net.IPv4(127, 0, 0, 1)})
	require.NoError(t, err)
	clientConn, err := net.ListenUDP("udp", &net.UDPAddr{IP: net.IPv4(127, 0, 0, 1)})
	require.NoError(t, err)
	return clientConn, serverConn
}

func TestUDPTransportRoundTripEchoServer(t *testing.T) {
	clientConn, serverConn := newLoopbackPair(t)
	defer serverConn.Close()

	// A trivial echo "agent": whatever id comes in, a reply carrying the
	// same id goes back to whoever sent it.
	go func() {
		buf := make([]byte, 2048)
		for {
			n, from, err := serverConn.ReadFrom(buf)
			if err != nil {
				return
			}
			_, _ = serverConn.WriteTo(buf[:n], from)
		}
	}()

	transport := NewUDPTransport(clientConn, extractTestID, UDPTransportConfig{})
	defer transport.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	payload := putTestID(42, "hello")
	reply, err := transport.RoundTrip(ctx, serverConn.LocalAddr(), payload, 42)
	require.NoError(t, err)
	assert.Equal(t, payload, reply)
}

func TestUDPTransportRoundTripTimesOutOnNoReply(t *testing.T) {
	clientConn, serverConn := newLoopbackPair(t)
	serverConn.Close() // nothing will ever answer

	transport := NewUDPTransport(clientConn, extractTestID, UDPTransportConfig{})
	defer transport.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	_, err := transport.RoundTrip(ctx, &net.UDPAddr{IP: net.IPv4(127, 0, 0, 1), Port: 1}, putTestID(1, "x"), 1)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestUDPTransportConcurrentRoundTripsDoNotCrossDeliver(t *testing.T) {
	clientConn, serverConn := newLoopbackPair(t)
	defer serverConn.Close()

	go func() {
		buf := make([]byte, 2048)
		for {
			n, from, err := serverConn.ReadFrom(buf)
			if err != nil {
				return
			}
			reply := append([]byte{}, buf[:n]...)
			_, _ = serverConn.WriteTo(reply, from)
		}
	}()

	transport := NewUDPTransport(clientConn, extractTestID, UDPTransportConfig{})
	defer transport.Close()

	const n = 50
	var wg sync.WaitGroup
	errs := make([]error, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(id int32) {
			defer wg.Done()
			ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
			defer cancel()
			payload := putTestID(id, "payload")
			reply, err := transport.RoundTrip(ctx, serverConn.LocalAddr(), payload, id)
			if err != nil {
				errs[id] = err
				return
			}
			gotID, err := extractTestID(reply)
			if err != nil {
				errs[id] = err
				return
			}
			if gotID != id {
				errs[id] = &IoError{Err: context.DeadlineExceeded}
			}
		}(int32(i))
	}
	wg.Wait()

	for i, err := range errs {
		assert.NoError(t, err, "request %d", i)
	}
}

func TestUDPTransportCloseReleasesPendingWaiters(t *testing.T) {
	clientConn, serverConn := newLoopbackPair(t)
	serverConn.Close()

	transport := NewUDPTransport(clientConn, extractTestID, UDPTransportConfig{})

	done := make(chan error, 1)
	go func() {
		_, err := transport.RoundTrip(context.Background(), &net.UDPAddr{IP: net.IPv4(127, 0, 0, 1), Port: 1}, putTestID(7, "x"), 7)
		done <- err
	}()

	time.Sleep(20 * time.Millisecond)
	require.NoError(t, transport.Close())

	select {
	case err := <-done:
		assert.Error(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("Close did not release the pending RoundTrip")
	}
}

func TestUDPTransportSendIsFireAndForget(t *testing.T) {
	clientConn, serverConn := newLoopbackPair(t)
	defer serverConn.Close()

	transport := NewUDPTransport(clientConn, extractTestID, UDPTransportConfig{})
	defer transport.Close()

	err := transport.Send(context.Background(), serverConn.LocalAddr(), putTestID(1, "trap"))
	require.NoError(t, err)

	buf := make([]byte, 2048)
	require.NoError(t, serverConn.SetReadDeadline(time.Now().Add(2*time.Second)))
	n, _, err := serverConn.ReadFrom(buf)
	require.NoError(t, err)
	assert.Equal(t, putTestID(1, "trap"), buf[:n])
}

func TestDialUDPWiresSocketBufferTuning(t *testing.T) {
	transport, err := DialUDP(extractTestID, UDPTransportConfig{})
	require.NoError(t, err)
	defer transport.Close()
	assert.NotNil(t, transport.LocalAddr())
}
