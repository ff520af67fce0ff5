// ©Hayabusa Cloud Co., Ltd. 2025. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package natscore

import (
	"context"
	"strings"
	"testing"
	"time"
)

func TestCorrelator_RegisterProducesWildcardMatchingInboxSubject(t *testing.T) {
	reg := newRegistry(newBufferPool())
	c, err := newCorrelator(reg)
	if err != nil {
		t.Fatalf("newCorrelator: %v", err)
	}
	defer c.close()

	subj, _ := c.register()
	if !strings.HasPrefix(subj, c.prefix) {
		t.Fatalf("subject %q does not carry correlator prefix %q", subj, c.prefix)
	}
	if !strings.HasPrefix(c.sub.Subject(), inboxPrefix) || !strings.HasSuffix(c.sub.Subject(), ">") {
		t.Fatalf("correlator subscription subject = %q, want an _INBOX wildcard", c.sub.Subject())
	}
}

func TestCorrelator_CompleteResolvesPendingSlot(t *testing.T) {
	reg := newRegistry(newBufferPool())
	c, err := newCorrelator(reg)
	if err != nil {
		t.Fatalf("newCorrelator: %v", err)
	}
	defer c.close()

	subj, done := c.register()
	c.complete(&Msg{Subject: subj, Data: []byte("reply")})

	select {
	case msg := <-done:
		if string(msg.Data) != "reply" {
			t.Fatalf("Data = %q, want reply", msg.Data)
		}
	case <-time.After(time.Second):
		t.Fatal("complete did not resolve the pending channel")
	}
}

func TestCorrelator_LateReplyIsNoOp(t *testing.T) {
	reg := newRegistry(newBufferPool())
	c, err := newCorrelator(reg)
	if err != nil {
		t.Fatalf("newCorrelator: %v", err)
	}
	defer c.close()

	subj, _ := c.register()
	c.drop(subj)

	// A reply for a dropped slot must not panic or block; it simply vanishes.
	c.complete(&Msg{Subject: subj, Data: []byte("too-late")})

	c.mu.Lock()
	_, stillPending := c.pending[subj]
	c.mu.Unlock()
	if stillPending {
		t.Fatal("dropped slot reappeared")
	}
}

func TestCorrelator_AwaitTimesOutAndDropsSlot(t *testing.T) {
	reg := newRegistry(newBufferPool())
	c, err := newCorrelator(reg)
	if err != nil {
		t.Fatalf("newCorrelator: %v", err)
	}
	defer c.close()

	subj, done := c.register()
	_, err = c.await(context.Background(), subj, done, 10*time.Millisecond)
	if err != ErrRequestTimeout {
		t.Fatalf("err = %v, want ErrRequestTimeout", err)
	}

	c.mu.Lock()
	_, stillPending := c.pending[subj]
	c.mu.Unlock()
	if stillPending {
		t.Fatal("await must drop the slot on timeout")
	}
}

func TestCorrelator_AwaitCancelledDropsSlot(t *testing.T) {
	reg := newRegistry(newBufferPool())
	c, err := newCorrelator(reg)
	if err != nil {
		t.Fatalf("newCorrelator: %v", err)
	}
	defer c.close()

	subj, done := c.register()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err = c.await(ctx, subj, done, time.Second)
	if err != ErrCancelled {
		t.Fatalf("err = %v, want ErrCancelled", err)
	}

	c.mu.Lock()
	_, stillPending := c.pending[subj]
	c.mu.Unlock()
	if stillPending {
		t.Fatal("await must drop the slot on cancellation")
	}
}

func TestCorrelator_AwaitSucceedsBeforeTimeout(t *testing.T) {
	reg := newRegistry(newBufferPool())
	c, err := newCorrelator(reg)
	if err != nil {
		t.Fatalf("newCorrelator: %v", err)
	}
	defer c.close()

	subj, done := c.register()
	go func() {
		time.Sleep(5 * time.Millisecond)
		c.complete(&Msg{Subject: subj, Data: []byte("ok")})
	}()

	msg, err := c.await(context.Background(), subj, done, time.Second)
	if err != nil {
		t.Fatalf("await: %v", err)
	}
	if string(msg.Data) != "ok" {
		t.Fatalf("Data = %q, want ok", msg.Data)
	}
}

func TestInboxCounter_MonotonicallyIncreasingSuffixes(t *testing.T) {
	var c inboxCounter
	a := c.next("_INBOX.tok.")
	b := c.next("_INBOX.tok.")
	if a == b {
		t.Fatalf("counter produced duplicate subjects: %q", a)
	}
}
