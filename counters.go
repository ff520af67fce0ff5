// ©Hayabusa Cloud Co., Ltd. 2025. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package natscore

import "sync/atomic"

// counters holds the connection's monotonic, lock-free-readable totals. Every
// field is updated with atomic add/subtract only, so a reader never takes a
// lock to sample them.
type counters struct {
	senderQueueBytes   atomic.Int64
	receiverQueueBytes atomic.Int64

	totalTransmittedBytes    atomic.Int64
	totalReceivedBytes       atomic.Int64
	totalTransmittedMessages atomic.Int64
	totalReceivedMessages    atomic.Int64
}

// Stats is a point-in-time snapshot of a Conn's counters, convenient for
// callers that want the totals without touching the raw atomics.
type Stats struct {
	SenderQueueBytes         int64
	ReceiverQueueBytes       int64
	TotalTransmittedBytes    int64
	TotalReceivedBytes       int64
	TotalTransmittedMessages int64
	TotalReceivedMessages    int64
}

func (c *counters) snapshot() Stats {
	return Stats{
		SenderQueueBytes:         c.senderQueueBytes.Load(),
		ReceiverQueueBytes:       c.receiverQueueBytes.Load(),
		TotalTransmittedBytes:    c.totalTransmittedBytes.Load(),
		TotalReceivedBytes:       c.totalReceivedBytes.Load(),
		TotalTransmittedMessages: c.totalTransmittedMessages.Load(),
		TotalReceivedMessages:    c.totalReceivedMessages.Load(),
	}
}
