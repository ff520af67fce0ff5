// ©Hayabusa Cloud Co., Ltd. 2025. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package natscore

import "github.com/prometheus/client_golang/prometheus"

// connMetrics mirrors counters as Prometheus collectors so an embedding
// service's existing /metrics endpoint picks up the connection's monotonic
// totals and queue depths alongside its own metrics, registered against a
// caller-supplied prometheus.Registerer rather than the global default.
type connMetrics struct {
	transmittedBytes    prometheus.Counter
	receivedBytes       prometheus.Counter
	transmittedMessages prometheus.Counter
	receivedMessages    prometheus.Counter
	senderQueueBytes    prometheus.Gauge
	receiverQueueBytes  prometheus.Gauge
	reconnects          prometheus.Counter
	status              prometheus.Gauge

	// last* track the previous sample so monotonic Stats totals (which never
	// decrease) can be translated into prometheus.Counter deltas.
	lastTransmittedBytes    int64
	lastReceivedBytes       int64
	lastTransmittedMessages int64
	lastReceivedMessages    int64
}

func newConnMetrics(name string) *connMetrics {
	labels := prometheus.Labels{"conn": name}
	return &connMetrics{
		transmittedBytes: prometheus.NewCounter(prometheus.CounterOpts{
			Name:        "natscore_transmitted_bytes_total",
			Help:        "Total bytes written to the socket.",
			ConstLabels: labels,
		}),
		receivedBytes: prometheus.NewCounter(prometheus.CounterOpts{
			Name:        "natscore_received_bytes_total",
			Help:        "Total bytes read from the socket.",
			ConstLabels: labels,
		}),
		transmittedMessages: prometheus.NewCounter(prometheus.CounterOpts{
			Name:        "natscore_transmitted_messages_total",
			Help:        "Total frames written to the socket.",
			ConstLabels: labels,
		}),
		receivedMessages: prometheus.NewCounter(prometheus.CounterOpts{
			Name:        "natscore_received_messages_total",
			Help:        "Total MSG/HMSG frames received.",
			ConstLabels: labels,
		}),
		senderQueueBytes: prometheus.NewGauge(prometheus.GaugeOpts{
			Name:        "natscore_sender_queue_bytes",
			Help:        "Bytes currently queued for the sender.",
			ConstLabels: labels,
		}),
		receiverQueueBytes: prometheus.NewGauge(prometheus.GaugeOpts{
			Name:        "natscore_receiver_queue_bytes",
			Help:        "Bytes currently queued between the receiver and dispatcher.",
			ConstLabels: labels,
		}),
		reconnects: prometheus.NewCounter(prometheus.CounterOpts{
			Name:        "natscore_reconnects_total",
			Help:        "Total reconnect cycles completed.",
			ConstLabels: labels,
		}),
		status: prometheus.NewGauge(prometheus.GaugeOpts{
			Name:        "natscore_status",
			Help:        "Connection status: 0=Disconnected, 1=Connecting, 2=Connected.",
			ConstLabels: labels,
		}),
	}
}

func (m *connMetrics) register(reg prometheus.Registerer) {
	if reg == nil || m == nil {
		return
	}
	reg.MustRegister(
		m.transmittedBytes, m.receivedBytes,
		m.transmittedMessages, m.receivedMessages,
		m.senderQueueBytes, m.receiverQueueBytes,
		m.reconnects, m.status,
	)
}

// sample copies the live counters into the collectors once per poll. Called
// by Conn whenever Stats() is read, so these collectors advance only when
// Stats is called; status transitions set only the status gauge.
func (m *connMetrics) sample(s Stats) {
	if m == nil {
		return
	}
	m.transmittedBytes.Add(float64(s.TotalTransmittedBytes - m.lastTransmittedBytes))
	m.receivedBytes.Add(float64(s.TotalReceivedBytes - m.lastReceivedBytes))
	m.transmittedMessages.Add(float64(s.TotalTransmittedMessages - m.lastTransmittedMessages))
	m.receivedMessages.Add(float64(s.TotalReceivedMessages - m.lastReceivedMessages))
	m.lastTransmittedBytes = s.TotalTransmittedBytes
	m.lastReceivedBytes = s.TotalReceivedBytes
	m.lastTransmittedMessages = s.TotalTransmittedMessages
	m.lastReceivedMessages = s.TotalReceivedMessages

	m.senderQueueBytes.Set(float64(s.SenderQueueBytes))
	m.receiverQueueBytes.Set(float64(s.ReceiverQueueBytes))
}
