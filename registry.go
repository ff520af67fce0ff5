// ©Hayabusa Cloud Co., Ltd. 2025. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package natscore

import (
	"context"
	"sync"
	"sync/atomic"
)

// Subscription is a handle returned by Conn.Subscribe. Its inbox is a bounded
// queue fed by the dispatcher; Next drains it. Closing a Subscription
// (Unsubscribe, or the connection being disposed) makes Next return
// ErrConnectionClosed once the inbox has drained.
type Subscription struct {
	sid        uint64
	subject    string
	queueGroup string
	capacity   int

	inbox     chan *Msg
	closed    chan struct{}
	closeOnce sync.Once
	reg       *registry

	pendingMax int64 // UNSUB max-msgs; 0 means unlimited
	delivered  int64 // atomic
}

// close marks the subscription terminal. It never closes inbox: deliver
// may be mid-send on it (looked up from a snapshot taken before close), and
// closing a channel with a pending send would panic. closed is safe to close
// concurrently with a send on a different channel.
func (s *Subscription) close() {
	s.closeOnce.Do(func() { close(s.closed) })
}

// Subject returns the subscription's subject.
func (s *Subscription) Subject() string { return s.subject }

// Sid returns the subscription's unique id.
func (s *Subscription) Sid() uint64 { return s.sid }

// Next blocks for the next delivered Msg, or returns ctx.Err() if ctx is
// cancelled first, or ErrConnectionClosed once the subscription is closed and
// its inbox drained.
func (s *Subscription) Next(ctx context.Context) (*Msg, error) {
	select {
	case m := <-s.inbox:
		m.materialize()
		return m, nil
	case <-s.closed:
		select {
		case m := <-s.inbox:
			m.materialize()
			return m, nil
		default:
			return nil, ErrConnectionClosed
		}
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Unsubscribe removes the subscription from the registry and sends UNSUB. It
// does not interrupt a reader mid-Next; any messages already queued in the
// inbox are still delivered.
func (s *Subscription) Unsubscribe() error {
	err := s.reg.remove(s.sid)
	s.close()
	return err
}

// registry is the subscription set. The write path (add/remove) is
// serialized by mu; the read path (dispatch) takes the current snapshot
// pointer atomically and never blocks on mu. The snapshot is a map keyed by
// sid rather than a list, since sid uniquely identifies a subscription and a
// linear scan would otherwise be a single-hit search in disguise.
type registry struct {
	mu     sync.Mutex
	snap   atomic.Pointer[map[uint64]*Subscription]
	nextID atomic.Uint64

	// curSender is the sender of the currently connected cycle, or nil while
	// disconnected/reconnecting. The supervisor installs it with setSender
	// after replaying resubscribe, and clears it the moment a cycle ends.
	curSender atomic.Pointer[sender]

	pool *bufferPool
}

func newRegistry(pool *bufferPool) *registry {
	r := &registry{pool: pool}
	empty := map[uint64]*Subscription{}
	r.snap.Store(&empty)
	return r
}

// setSender installs or clears the active cycle's sender.
func (r *registry) setSender(s *sender) {
	r.curSender.Store(s)
}

// nextSid allocates the next monotonically increasing, never-reused sid.
func (r *registry) nextSid() uint64 {
	return r.nextID.Add(1)
}

// add installs a new subscription and sends SUB if currently connected. If
// not connected, the subscription is still installed; it is replayed by the
// supervisor's resubscribe on the next connect.
func (r *registry) add(subject, queueGroup string, capacity int) (*Subscription, error) {
	if len(subject) == 0 {
		return nil, ErrInvalidSubject
	}
	if capacity < 1 {
		capacity = 1
	}

	sub := &Subscription{
		subject:    subject,
		queueGroup: queueGroup,
		capacity:   capacity,
		inbox:      make(chan *Msg, capacity),
		closed:     make(chan struct{}),
		reg:        r,
	}

	r.mu.Lock()
	sub.sid = r.nextSid()
	cur := *r.snap.Load()
	next := make(map[uint64]*Subscription, len(cur)+1)
	for k, v := range cur {
		next[k] = v
	}
	next[sub.sid] = sub
	r.snap.Store(&next)
	r.mu.Unlock()

	if s := r.curSender.Load(); s != nil {
		b, err := r.pool.buildSub(subject, queueGroup, sub.sid)
		if err != nil {
			return nil, err
		}
		if err := s.enqueue(b); err != nil {
			return nil, err
		}
	}
	return sub, nil
}

// remove drops sid from the snapshot and sends UNSUB. It does not close the
// subscription's inbox: a reader already draining it may continue until
// empty; removal blocks no readers.
func (r *registry) remove(sid uint64) error {
	r.mu.Lock()
	cur := *r.snap.Load()
	if _, ok := cur[sid]; !ok {
		r.mu.Unlock()
		return nil
	}
	next := make(map[uint64]*Subscription, len(cur)-1)
	for k, v := range cur {
		if k != sid {
			next[k] = v
		}
	}
	r.snap.Store(&next)
	r.mu.Unlock()

	if s := r.curSender.Load(); s != nil {
		b := r.pool.buildUnsub(sid, 0)
		return s.enqueue(b)
	}
	return nil
}

// snapshot returns the current immutable subscription map without taking mu;
// reads never take the lock.
func (r *registry) snapshot() map[uint64]*Subscription {
	return *r.snap.Load()
}

// closeAll marks every live subscription terminal, used by Conn.Dispose so
// every blocked Next returns ErrConnectionClosed once its inbox drains.
func (r *registry) closeAll() {
	for _, sub := range r.snapshot() {
		sub.close()
	}
}

// resubscribe replays the current registry snapshot by sending one SUB per
// subscription, preserving each sid and subject. The supervisor calls it with
// the new cycle's sender immediately after CONNECT and before installing that
// sender with setSender, so a subscribe racing with reconnect either lands in
// this snapshot or waits for the next cycle, never both (no duplicate SUB).
func (r *registry) resubscribe(s *sender) error {
	for _, sub := range r.snapshot() {
		b, err := r.pool.buildSub(sub.subject, sub.queueGroup, sub.sid)
		if err != nil {
			return err
		}
		if err := s.enqueue(b); err != nil {
			return err
		}
	}
	return nil
}
