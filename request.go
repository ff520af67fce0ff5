// ©Hayabusa Cloud Co., Ltd. 2025. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package natscore

import (
	"context"
	"sync"
	"time"
)

// requestInboxCapacity sizes the single system-owned subscription every
// request/response correlator reads from. It is large because every
// outstanding request on the connection shares this one inbox.
const requestInboxCapacity = 65536

// correlator is the request/response component. Conn.Connect creates one
// and Conn.Disconnect closes it, so a Connect after a Disconnect gets a new
// correlator with a new inbox prefix. Within one Connect it survives
// reconnects: its subscription is a normal registry entry and is therefore
// replayed by the supervisor's resubscribe like any other subscription.
type correlator struct {
	prefix  string
	counter inboxCounter

	sub *Subscription

	mu      sync.Mutex
	pending map[string]chan *Msg

	cancel context.CancelFunc
}

func newCorrelator(reg *registry) (*correlator, error) {
	prefix := newInboxPrefix()
	sub, err := reg.add(prefix+">", "", requestInboxCapacity)
	if err != nil {
		return nil, err
	}

	ctx, cancel := context.WithCancel(context.Background())
	c := &correlator{
		prefix:  prefix,
		sub:     sub,
		pending: make(map[string]chan *Msg),
		cancel:  cancel,
	}
	go c.run(ctx)
	return c, nil
}

func (c *correlator) run(ctx context.Context) {
	for {
		msg, err := c.sub.Next(ctx)
		if err != nil {
			return
		}
		c.complete(msg)
	}
}

// complete resolves a pending request if its slot is still present. A reply
// arriving after the slot was dropped (timeout, cancel) finds nothing in the
// map and causes no state change.
func (c *correlator) complete(msg *Msg) {
	c.mu.Lock()
	ch, ok := c.pending[msg.Subject]
	if ok {
		delete(c.pending, msg.Subject)
	}
	c.mu.Unlock()
	if ok {
		ch <- msg
	}
}

// register allocates a fresh reply subject and its one-shot completion slot.
func (c *correlator) register() (replySubject string, done chan *Msg) {
	replySubject = c.counter.next(c.prefix)
	done = make(chan *Msg, 1)
	c.mu.Lock()
	c.pending[replySubject] = done
	c.mu.Unlock()
	return replySubject, done
}

// drop removes a pending slot without completing it, used on timeout or
// cancellation so a late reply is silently ignored.
func (c *correlator) drop(replySubject string) {
	c.mu.Lock()
	delete(c.pending, replySubject)
	c.mu.Unlock()
}

// await blocks for the reply, the deadline, or ctx, dropping the slot on
// either failure path.
func (c *correlator) await(ctx context.Context, replySubject string, done chan *Msg, timeout time.Duration) (*Msg, error) {
	var deadline <-chan time.Time
	if timeout > 0 {
		t := time.NewTimer(timeout)
		defer t.Stop()
		deadline = t.C
	}
	select {
	case msg := <-done:
		return msg, nil
	case <-deadline:
		c.drop(replySubject)
		return nil, ErrRequestTimeout
	case <-ctx.Done():
		c.drop(replySubject)
		return nil, ErrCancelled
	}
}

func (c *correlator) close() {
	c.cancel()
	_ = c.sub.Unsubscribe()
}
