// ©Hayabusa Cloud Co., Ltd. 2025. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package natscore

import "sync/atomic"

// frameKind tags an inbound frame as emitted by the parser.
type frameKind uint8

const (
	frameInfo frameKind = iota + 1
	frameMsg
	frameHMsg
	framePing
	framePong
	frameOK
	frameErr
)

// Header is one parsed NATS/1.0 header line.
type Header struct {
	Name  string
	Value string
}

// inboundFrame is the tagged union emitted by the parser. Only the fields
// relevant to Kind are populated.
type inboundFrame struct {
	Kind frameKind

	// Info carries the raw JSON payload of an INFO line.
	Info []byte

	// Msg/HMsg fields.
	Subject string
	Sid     uint64
	ReplyTo string
	Headers []Header
	payload *payloadRef // nil for zero-length payloads

	// payloadOffset is where user data begins within payload's buffer: 0 for
	// MSG, header-len for HMSG (the header block precedes the data in the
	// same pool-lent buffer).
	payloadOffset int

	// Err carries the -ERR message text.
	Err string
}

// payloadRef is a pool-lent buffer shared by every subscription that receives
// the frame it backs. The dispatcher starts the count at 1 for its own
// reference; each subscription offered the message adds one more before the
// offer, which its reader removes once it has copied the payload out
// (Msg.materialize); the dispatcher removes its own reference once every
// snapshot entry has been offered. Reaching zero returns buf to the pool that
// lent it.
type payloadRef struct {
	buf   *buffer
	pool  *bufferPool
	count int32
}

func newPayloadRef(pool *bufferPool, buf *buffer) *payloadRef {
	return &payloadRef{buf: buf, pool: pool, count: 1}
}

// bytes returns the payload's logical contents. Valid as long as the caller
// holds a reference.
func (p *payloadRef) bytes() []byte {
	if p == nil {
		return nil
	}
	return p.buf.Bytes()
}

// data returns the user-data region of the frame's payload, skipping the
// NATS/1.0 header block recorded by payloadOffset for HMSG frames.
func (f *inboundFrame) data() []byte {
	b := f.payload.bytes()
	if f.payloadOffset == 0 || f.payloadOffset > len(b) {
		return b
	}
	return b[f.payloadOffset:]
}

// retain adds one reference. Must be called before handing the ref to a new
// concurrent consumer.
func (p *payloadRef) retain() {
	if p == nil {
		return
	}
	atomic.AddInt32(&p.count, 1)
}

// release drops one reference, returning the backing buffer to the pool when
// the count reaches zero.
func (p *payloadRef) release() {
	if p == nil {
		return
	}
	if atomic.AddInt32(&p.count, -1) == 0 {
		p.pool.put(p.buf)
	}
}

// Msg is the message delivered to subscribers. While queued in a
// Subscription's inbox, Data is nil and the message's bytes live in the
// shared pooled buffer referenced by ref; Subscription.Next materializes an
// owned copy into Data and releases ref before returning the Msg, so callers
// always receive payloads they own outright.
type Msg struct {
	Subject string
	Sid     uint64
	ReplyTo string
	Headers []Header
	Data    []byte

	ref        *payloadRef
	dataOffset int
}

// materialize copies the message's payload out of the shared pooled buffer
// into an owned slice and releases the reference. Safe to call once; a nil
// ref (zero-length payload) is a no-op beyond setting Data to nil.
func (m *Msg) materialize() {
	if m.ref == nil {
		m.Data = nil
		return
	}
	src := m.ref.bytes()[m.dataOffset:]
	owned := make([]byte, len(src))
	copy(owned, src)
	m.Data = owned
	m.ref.release()
	m.ref = nil
}
