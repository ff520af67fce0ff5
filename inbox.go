// ©Hayabusa Cloud Co., Ltd. 2025. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package natscore

import (
	"strconv"
	"sync/atomic"

	"github.com/nats-io/nuid"
)

// inboxPrefix is the well-known reply-subject root. Every correlator gets its
// own random suffix, generated with nuid rather
// than crypto/rand+hex: nuid is the allocation-light unique-token generator
// the rest of the NATS ecosystem settled on, and request subjects are not
// security-sensitive — only required to be unique per connection.
const inboxPrefix = "_INBOX."

// newInboxPrefix returns a fresh "_INBOX.<token>." root unique for the
// process lifetime of a connection.
func newInboxPrefix() string {
	return inboxPrefix + nuid.Next() + "."
}

// inboxCounter allocates the monotonically increasing suffix appended to a
// connection's inbox prefix for each outstanding request.
type inboxCounter struct {
	n atomic.Uint64
}

func (c *inboxCounter) next(prefix string) string {
	return prefix + strconv.FormatUint(c.n.Add(1), 10)
}
