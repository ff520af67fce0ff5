// ©Hayabusa Cloud Co., Ltd. 2025. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package natscore

import (
	"context"
	"time"
)

// dispatcher reads from the receiver's pipe, drives the parser, and routes
// every emitted frame. One dispatcher belongs to exactly one connected cycle.
type dispatcher struct {
	pipe     *bytePipe
	pool     *bufferPool
	parser   *parser
	sender   *sender
	registry *registry
	conn     *Conn
	counters *counters

	lastSlowConsumerLog time.Time
}

func newDispatcher(pipe *bytePipe, pool *bufferPool, p *parser, s *sender, reg *registry, conn *Conn, c *counters) *dispatcher {
	return &dispatcher{pipe: pipe, pool: pool, parser: p, sender: s, registry: reg, conn: conn, counters: c}
}

// run drains the pipe until it closes or ctx is cancelled, returning the
// terminal error reported by the receiver (io.EOF for orderly close, a
// transport error otherwise) or a *ProtocolError for a malformed frame.
func (d *dispatcher) run(ctx context.Context) error {
	for {
		select {
		case b, ok := <-d.pipe.ch:
			if !ok {
				return <-d.pipe.done
			}
			if err := d.feed(b); err != nil {
				return err
			}
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

func (d *dispatcher) feed(b *buffer) error {
	n := b.Len
	frames, err := d.parser.Feed(b.Bytes())
	d.pool.put(b)
	if d.counters != nil {
		d.counters.receiverQueueBytes.Add(-int64(n))
	}
	if err != nil {
		d.conn.notifyError(err)
		return err
	}
	for i := range frames {
		d.route(&frames[i])
	}
	return nil
}

// route dispatches one parsed frame to whatever it's about: a reply frame, a
// connection-level callback, or a subscriber delivery.
func (d *dispatcher) route(f *inboundFrame) {
	switch f.Kind {
	case framePing:
		b := d.pool.buildPong()
		_ = d.sender.enqueue(b)

	case frameInfo:
		d.conn.setServerInfo(f.Info)

	case framePong:
		d.conn.notifyPong()

	case frameMsg, frameHMsg:
		d.deliver(f)

	case frameOK:
		// ignored

	case frameErr:
		d.conn.notifyError(newServerError(f.Err))
	}
}

// deliver fan-outs a Msg/HMsg frame to the subscription whose sid matches.
// Because sid is unique, the snapshot map lookup is exactly one hit or a
// miss; there is no inner scan.
func (d *dispatcher) deliver(f *inboundFrame) {
	if d.counters != nil {
		d.counters.totalReceivedMessages.Add(1)
	}

	sub, ok := d.registry.snapshot()[f.Sid]
	if !ok {
		f.payload.release()
		return
	}

	f.payload.retain()
	msg := &Msg{
		Subject:    f.Subject,
		Sid:        f.Sid,
		ReplyTo:    f.ReplyTo,
		Headers:    f.Headers,
		ref:        f.payload,
		dataOffset: f.payloadOffset,
	}

	select {
	case sub.inbox <- msg:
	default:
		// Inbox full: fall back to an awaiting insert, which propagates
		// backpressure to the dispatcher and, through it, to the receiver
		// and the socket.
		d.notifySlowConsumer(sub)
		sub.inbox <- msg
	}

	f.payload.release()
}

// notifySlowConsumer reports a full inbox, rate-limited to one log line per
// second per dispatcher to avoid flooding the error channel under sustained
// backpressure.
func (d *dispatcher) notifySlowConsumer(sub *Subscription) {
	now := time.Now()
	if now.Sub(d.lastSlowConsumerLog) < time.Second {
		return
	}
	d.lastSlowConsumerLog = now
	d.conn.notifySlowConsumer(sub, ErrSlowConsumer)
}
