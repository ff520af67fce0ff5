// ©Hayabusa Cloud Co., Ltd. 2025. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package natscore

import (
	"context"
	"io"
)

// receiverChunkSize is the size of each pool-lent buffer the receiver reads
// into. It is independent of MaxPayloadSize: a single frame's payload spans
// as many chunks as it takes, reassembled by the parser's accumulation
// buffer.
const receiverChunkSize = 32 * 1024

// bytePipe is the bounded byte conduit between the receiver and the
// dispatcher. Its capacity in chunks, times receiverChunkSize, is the pipe's
// high-water mark: once that many chunks are in flight and unread, the
// receiver's send blocks, suspending the socket read loop and propagating
// backpressure all the way to the wire.
type bytePipe struct {
	ch   chan *buffer
	done chan error
}

func newBytePipe(highWaterBytes int) *bytePipe {
	capacity := highWaterBytes / receiverChunkSize
	if capacity < 1 {
		capacity = 1
	}
	return &bytePipe{
		ch:   make(chan *buffer, capacity),
		done: make(chan error, 1),
	}
}

// receiver reads socket bytes into a bytePipe. It does not parse; it only
// discovers and reports transport-level EOF/errors.
type receiver struct {
	r        io.Reader
	pool     *bufferPool
	pipe     *bytePipe
	counters *counters
}

func newReceiver(r io.Reader, pool *bufferPool, pipe *bytePipe, c *counters) *receiver {
	return &receiver{r: r, pool: pool, pipe: pipe, counters: c}
}

// run reads until ctx is cancelled or the socket returns an error, io.EOF
// being the orderly close; a zero-byte read with no error just reads again.
// The terminal condition is always reported on pipe.done exactly once.
func (rv *receiver) run(ctx context.Context) error {
	defer close(rv.pipe.ch)

	for {
		if ctx.Err() != nil {
			rv.pipe.done <- ctx.Err()
			return ctx.Err()
		}

		b := rv.pool.get(receiverChunkSize)
		n, err := rv.r.Read(b.Buf)
		if n > 0 {
			b.Len = n
			if rv.counters != nil {
				rv.counters.totalReceivedBytes.Add(int64(n))
				rv.counters.receiverQueueBytes.Add(int64(n))
			}
			select {
			case rv.pipe.ch <- b:
			case <-ctx.Done():
				rv.pool.put(b)
				rv.pipe.done <- ctx.Err()
				return ctx.Err()
			}
		} else {
			rv.pool.put(b)
		}

		if err != nil {
			if err == io.EOF {
				rv.pipe.done <- io.EOF
				return io.EOF
			}
			rv.pipe.done <- err
			return err
		}
	}
}
