// ©Hayabusa Cloud Co., Ltd. 2025. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package natscore

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"
)

// Options configures a Conn. The zero value plus defaultOptions's overrides is a
// usable configuration pointed at the default local server.
type Options struct {
	// Server is the "host:port" TCP endpoint to dial.
	Server string

	// SenderQueueLength bounds the number of pooled frames queued between
	// publishers and the sender.
	SenderQueueLength int

	// ReceiverQueueLength bounds the per-subscription inbox depth.
	ReceiverQueueLength int

	// ReadPipeHighWaterBytes bounds the receiver→dispatcher pipe.
	ReadPipeHighWaterBytes int

	// MaxPayloadSize rejects inbound frames whose declared length exceeds it.
	// Zero selects DefaultMaxPayloadSize.
	MaxPayloadSize int64

	Verbose  bool
	Pedantic bool
	Echo     bool

	Name      string
	User      string
	Pass      string
	AuthToken string

	Lang    string
	Version string

	// Serializer (de)serializes user payloads. Out of core scope; the core only
	// moves bytes. A nil Serializer means callers work with []byte directly.
	Serializer Codec

	// Logger receives structured events: connection errors (dial and
	// transport failures, protocol violations, server -ERR) and slow
	// consumers. Status transitions are not logged. Defaults to a no-op logger.
	Logger zerolog.Logger

	// ReconnectDelay is the wait between failed dial attempts.
	ReconnectDelay time.Duration

	// Registerer, if non-nil, receives the connection's Prometheus collectors
	// (see metrics.go). A nil Registerer disables metrics registration.
	Registerer prometheus.Registerer

	// StatusChangedCB fires whenever the connection's Status transitions,
	// mirroring the ConnHandler callbacks of the ancestor apcera-nats client.
	StatusChangedCB func(*Conn, Status)

	// ErrorCB fires on every asynchronous error the connection surfaces:
	// transport failures, protocol violations, server -ERR frames, and slow
	// consumer notifications (the connection_error observable).
	ErrorCB func(*Conn, *Subscription, error)

	// ServerInfoCB fires on every INFO frame received from the server (the
	// server_info observable).
	ServerInfoCB func(*Conn, []byte)
}

var defaultOptions = Options{
	Server:                 DefaultURL,
	SenderQueueLength:      4096,
	ReceiverQueueLength:    512,
	ReadPipeHighWaterBytes: 1 << 20,
	MaxPayloadSize:         DefaultMaxPayloadSize,
	Lang:                   "go",
	Version:                Version,
	ReconnectDelay:         time.Second,
	Logger:                 zerolog.Nop(),
}

// Option mutates an Options value. Construction follows the same
// defaults-value-plus-functional-option shape used throughout this package's
// ancestry: Options{} is never used directly, defaultOptions is copied first.
type Option func(*Options)

func WithServer(addr string) Option {
	return func(o *Options) { o.Server = addr }
}

func WithName(name string) Option {
	return func(o *Options) { o.Name = name }
}

func WithCredentials(user, pass string) Option {
	return func(o *Options) { o.User = user; o.Pass = pass }
}

func WithAuthToken(token string) Option {
	return func(o *Options) { o.AuthToken = token }
}

func WithVerbose() Option {
	return func(o *Options) { o.Verbose = true }
}

func WithPedantic() Option {
	return func(o *Options) { o.Pedantic = true }
}

func WithNoEcho() Option {
	return func(o *Options) { o.Echo = false }
}

func WithSenderQueueLength(n int) Option {
	return func(o *Options) { o.SenderQueueLength = n }
}

func WithReceiverQueueLength(n int) Option {
	return func(o *Options) { o.ReceiverQueueLength = n }
}

func WithReadPipeHighWaterBytes(n int) Option {
	return func(o *Options) { o.ReadPipeHighWaterBytes = n }
}

func WithMaxPayloadSize(n int64) Option {
	return func(o *Options) { o.MaxPayloadSize = n }
}

func WithSerializer(c Codec) Option {
	return func(o *Options) { o.Serializer = c }
}

func WithLogger(l zerolog.Logger) Option {
	return func(o *Options) { o.Logger = l }
}

func WithReconnectDelay(d time.Duration) Option {
	return func(o *Options) { o.ReconnectDelay = d }
}

func WithRegisterer(r prometheus.Registerer) Option {
	return func(o *Options) { o.Registerer = r }
}

func WithStatusChangedHandler(cb func(*Conn, Status)) Option {
	return func(o *Options) { o.StatusChangedCB = cb }
}

func WithErrorHandler(cb func(*Conn, *Subscription, error)) Option {
	return func(o *Options) { o.ErrorCB = cb }
}

func WithServerInfoHandler(cb func(*Conn, []byte)) Option {
	return func(o *Options) { o.ServerInfoCB = cb }
}
