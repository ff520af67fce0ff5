// ©Hayabusa Cloud Co., Ltd. 2025. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package natscore

import (
	"bytes"
	"context"
	"errors"
	"io"
	"testing"
)

func TestNewBytePipe_CapacityFromHighWaterMark(t *testing.T) {
	p := newBytePipe(3 * receiverChunkSize)
	if cap(p.ch) != 3 {
		t.Fatalf("cap = %d, want 3", cap(p.ch))
	}
}

func TestNewBytePipe_MinimumCapacityOne(t *testing.T) {
	p := newBytePipe(1)
	if cap(p.ch) != 1 {
		t.Fatalf("cap = %d, want 1 (clamped minimum)", cap(p.ch))
	}
}

func TestReceiver_ReadsUntilEOF(t *testing.T) {
	pool := newBufferPool()
	src := bytes.NewReader([]byte("hello world"))
	pipe := newBytePipe(4 * receiverChunkSize)
	c := &counters{}
	rv := newReceiver(src, pool, pipe, c)

	err := rv.run(context.Background())
	if err != io.EOF {
		t.Fatalf("run = %v, want io.EOF", err)
	}
	if got := <-pipe.done; got != io.EOF {
		t.Fatalf("pipe.done = %v, want io.EOF", got)
	}

	var got []byte
	for b := range pipe.ch {
		got = append(got, b.Bytes()...)
		pool.put(b)
	}
	if string(got) != "hello world" {
		t.Fatalf("got = %q, want %q", got, "hello world")
	}
	if c.totalReceivedBytes.Load() != int64(len("hello world")) {
		t.Fatalf("totalReceivedBytes = %d", c.totalReceivedBytes.Load())
	}
}

type erroringReader struct{ err error }

func (r erroringReader) Read([]byte) (int, error) { return 0, r.err }

func TestReceiver_ReportsTransportError(t *testing.T) {
	pool := newBufferPool()
	wantErr := errors.New("connection reset")
	pipe := newBytePipe(receiverChunkSize)
	rv := newReceiver(erroringReader{err: wantErr}, pool, pipe, nil)

	err := rv.run(context.Background())
	if !errors.Is(err, wantErr) {
		t.Fatalf("run = %v, want %v", err, wantErr)
	}
	if got := <-pipe.done; !errors.Is(got, wantErr) {
		t.Fatalf("pipe.done = %v, want %v", got, wantErr)
	}
}

func TestReceiver_CancelledContextStopsLoop(t *testing.T) {
	pool := newBufferPool()
	pipe := newBytePipe(receiverChunkSize)
	rv := newReceiver(&neverEndingReader{}, pool, pipe, nil)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := rv.run(ctx)
	if err != context.Canceled {
		t.Fatalf("run = %v, want context.Canceled", err)
	}
	if got := <-pipe.done; got != context.Canceled {
		t.Fatalf("pipe.done = %v, want context.Canceled", got)
	}
}

// neverEndingReader always returns a full chunk of zero bytes, modeling a
// socket that keeps producing data, so the cancellation check at the top of
// the loop (not a blocked Read) is what must stop the loop.
type neverEndingReader struct{ reads int }

func (r *neverEndingReader) Read(p []byte) (int, error) {
	for i := range p {
		p[i] = 0
	}
	return len(p), nil
}
