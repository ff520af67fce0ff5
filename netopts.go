// ©Hayabusa Cloud Co., Ltd. 2025. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package natscore

import (
	"context"
	"io"
	"net"
)

// netConn is the minimal surface the receiver/sender/supervisor need from a
// dialed connection: a reader, a writer, and a closer. Satisfied by
// *net.TCPConn; kept as an interface so tests can substitute a fake transport.
type netConn interface {
	io.Reader
	io.Writer
	Close() error
}

// dialTCP opens the connection for one supervisor cycle: plain TCP with
// Nagle disabled, since NATS frames are small and latency-sensitive and the
// sender already does its own coalescing — two layers of batching would only
// add latency for no throughput gain.
func dialTCP(ctx context.Context, addr string) (*net.TCPConn, error) {
	d := net.Dialer{}
	conn, err := d.DialContext(ctx, "tcp", addr)
	if err != nil {
		return nil, err
	}
	tc := conn.(*net.TCPConn)
	if err := tc.SetNoDelay(true); err != nil {
		tc.Close()
		return nil, err
	}
	return tc, nil
}
