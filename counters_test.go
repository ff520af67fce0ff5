// ©Hayabusa Cloud Co., Ltd. 2025. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package natscore

import "testing"

func TestCounters_SnapshotReflectsAtomicState(t *testing.T) {
	c := &counters{}
	c.senderQueueBytes.Add(10)
	c.receiverQueueBytes.Add(20)
	c.totalTransmittedBytes.Add(30)
	c.totalReceivedBytes.Add(40)
	c.totalTransmittedMessages.Add(1)
	c.totalReceivedMessages.Add(2)

	s := c.snapshot()
	want := Stats{
		SenderQueueBytes:         10,
		ReceiverQueueBytes:       20,
		TotalTransmittedBytes:    30,
		TotalReceivedBytes:       40,
		TotalTransmittedMessages: 1,
		TotalReceivedMessages:    2,
	}
	if s != want {
		t.Fatalf("snapshot = %+v, want %+v", s, want)
	}
}

func TestCounters_SenderQueueBytesCanGoNegativeDelta(t *testing.T) {
	c := &counters{}
	c.senderQueueBytes.Add(100)
	c.senderQueueBytes.Add(-40)
	if got := c.senderQueueBytes.Load(); got != 60 {
		t.Fatalf("senderQueueBytes = %d, want 60", got)
	}
}
