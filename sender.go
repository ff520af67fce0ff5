// ©Hayabusa Cloud Co., Ltd. 2025. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package natscore

import (
	"context"
	"io"
)

// defaultScratchSize is the sender's coalescing buffer size.
const defaultScratchSize = 1 << 20 // 1 MiB

// sender drains a bounded queue of pooled frames and coalesces them into as
// few kernel writes as possible. One sender belongs to exactly one connected
// cycle; the supervisor spawns a fresh sender per (re)connect, but queue is
// owned by the Conn and outlives any single cycle, so a frame handed to it
// while disconnected is still delivered once the next sender starts draining
// it — queued messages survive a reconnect.
type sender struct {
	pool  *bufferPool
	queue chan *buffer
	w     io.Writer

	scratch    []byte
	scratchLen int

	counters *counters
}

func newSender(pool *bufferPool, queue chan *buffer, w io.Writer, c *counters) *sender {
	return &sender{
		pool:     pool,
		queue:    queue,
		w:        w,
		scratch:  make([]byte, defaultScratchSize),
		counters: c,
	}
}

// enqueue hands ownership of b to the sender queue, blocking until capacity
// is available if the queue is full.
func (s *sender) enqueue(b *buffer) error {
	s.queue <- b
	if s.counters != nil {
		s.counters.senderQueueBytes.Add(int64(b.Len))
	}
	return nil
}

// enqueueCtx is enqueue with cancellation. Cancellation before the frame is
// accepted by the queue returns b to the pool unwritten.
func (s *sender) enqueueCtx(ctx context.Context, b *buffer) error {
	select {
	case s.queue <- b:
		if s.counters != nil {
			s.counters.senderQueueBytes.Add(int64(b.Len))
		}
		return nil
	case <-ctx.Done():
		s.pool.put(b)
		return ctx.Err()
	}
}

// run drives the drain loop until ctx is cancelled or a write fails. It waits
// for one frame, then greedily takes every immediately-available frame before
// flushing, collapsing bursts of small publishes into one syscall while
// bounding scratch memory to len(s.scratch).
func (s *sender) run(ctx context.Context) error {
	for {
		var b *buffer
		select {
		case b = <-s.queue:
		case <-ctx.Done():
			return s.flush()
		}

		if err := s.drainBurst(b); err != nil {
			return err
		}

	drainMore:
		for {
			select {
			case b := <-s.queue:
				if err := s.drainBurst(b); err != nil {
					return err
				}
			default:
				break drainMore
			}
		}

		if err := s.flush(); err != nil {
			return err
		}
	}
}

// drainBurst processes one already-dequeued frame, releasing it to the pool
// once its bytes are accounted for.
func (s *sender) drainBurst(b *buffer) error {
	defer s.pool.put(b)

	if s.counters != nil {
		s.counters.senderQueueBytes.Add(-int64(b.Len))
	}

	n := b.Len
	if s.scratchLen+n <= len(s.scratch) {
		copy(s.scratch[s.scratchLen:], b.Buf[:n])
		s.scratchLen += n
		s.bumpTransmitted(n)
		return nil
	}

	if s.scratchLen > 0 {
		if err := s.flush(); err != nil {
			return err
		}
	}

	if n <= len(s.scratch) {
		copy(s.scratch[:n], b.Buf[:n])
		s.scratchLen = n
		s.bumpTransmitted(n)
		return nil
	}

	// Oversize: write directly from the frame's own buffer.
	if _, err := s.w.Write(b.Buf[:n]); err != nil {
		return err
	}
	s.bumpTransmitted(n)
	return nil
}

// bumpTransmitted increments total_transmitted_bytes uniformly whether the
// frame went through the coalescing scratch buffer or was written directly,
// so an oversize frame isn't silently left out of the transmitted-bytes total.
func (s *sender) bumpTransmitted(n int) {
	if s.counters != nil {
		s.counters.totalTransmittedBytes.Add(int64(n))
		s.counters.totalTransmittedMessages.Add(1)
	}
}

func (s *sender) flush() error {
	if s.scratchLen == 0 {
		return nil
	}
	n := s.scratchLen
	s.scratchLen = 0
	_, err := s.w.Write(s.scratch[:n])
	return err
}
