// ©Hayabusa Cloud Co., Ltd. 2025. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package natscore

import (
	"sync"
	"sync/atomic"

	"code.hybscloud.com/natscore/internal/sizeclass"
)

// bufferPoolMinClass is the smallest power-of-two bucket size. Frames shorter
// than this (most SUB/UNSUB/PING/PONG lines) still get a full-size buffer; the
// bucketing trades a little waste for a small, fixed number of sync.Pools.
const bufferPoolMinClass = 64

// bufferPoolMaxClass is the largest bucketed size. Requests above this are
// allocated directly and never pooled — large HPUB/PUB payloads are typically
// one-shot and not worth retaining.
const bufferPoolMaxClass = 1 << 20 // 1 MiB

// buffer is a pool-owned byte region with an explicit used length. Buf is
// always sized to its size class; Len is the caller's logical length within
// Buf. Ownership transfers from producer to consumer on handoff: whoever
// receives a *buffer through a channel owns it until they call pool.put.
type buffer struct {
	Buf      []byte
	Len      int
	class    int    // bucket index into pool.classes, or -1 if unpooled
	released uint32 // debug double-free guard
}

// Bytes returns the logical contents of the buffer.
func (b *buffer) Bytes() []byte { return b.Buf[:b.Len] }

// bufferPool lends buffers in power-of-two size classes and reclaims them on
// release. It grows unboundedly (backed by sync.Pool, which itself is reclaimed
// under GC pressure); backpressure comes from the sender/receiver queue depths,
// not from the pool itself.
type bufferPool struct {
	classes []sync.Pool // classes[i] lends buffers of size bufferPoolMinClass<<i
	debug   bool        // enables the double-free guard; on by default, cheap
}

func newBufferPool() *bufferPool {
	p := &bufferPool{debug: true}
	n := sizeclass.Count(bufferPoolMinClass, bufferPoolMaxClass)
	p.classes = make([]sync.Pool, n)
	for i := range p.classes {
		sz := sizeclass.Size(bufferPoolMinClass, i)
		p.classes[i] = sync.Pool{New: func() any {
			return &buffer{Buf: make([]byte, sz)}
		}}
	}
	return p
}

// classFor returns the bucket index whose size is >= want, or -1 if want
// exceeds bufferPoolMaxClass.
func (p *bufferPool) classFor(want int) int {
	idx, _ := sizeclass.Of(want, bufferPoolMinClass, bufferPoolMaxClass)
	return idx
}

// get lends a buffer of at least size bytes, writable from index 0. The
// returned buffer's Len is set to size.
func (p *bufferPool) get(size int) *buffer {
	class := p.classFor(size)
	if class < 0 {
		return &buffer{Buf: make([]byte, size), Len: size, class: -1}
	}
	b := p.classes[class].Get().(*buffer)
	b.Len = size
	b.class = class
	atomic.StoreUint32(&b.released, 0)
	return b
}

// put returns a buffer to its size class. Releasing an already-released buffer
// is a caller bug; in debug mode it panics instead of silently corrupting the
// pool via a double-checked-out buffer.
func (p *bufferPool) put(b *buffer) {
	if b == nil || b.class < 0 {
		return
	}
	if p.debug {
		if !atomic.CompareAndSwapUint32(&b.released, 0, 1) {
			panic("natscore: double free of pooled buffer")
		}
	}
	p.classes[b.class].Put(b)
}
