// ©Hayabusa Cloud Co., Ltd. 2025. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package natscore

import (
	"encoding/json"
	"strconv"
)

// Outbound frame builder. One function per client→server command. Each
// computes an exact upper-bound size from its inputs (including the decimal
// width of any embedded length field), lends a buffer of that size from pool,
// writes the protocol's ASCII bytes directly into it, and returns the buffer
// with Len set to the number of bytes actually written. Builders never grow
// or reallocate the buffer they were lent.

const crlf = "\r\n"

// digits10 returns the number of ASCII decimal digits needed to print n (n>=0).
func digits10(n int) int {
	if n == 0 {
		return 1
	}
	d := 0
	for n > 0 {
		d++
		n /= 10
	}
	return d
}

// buildConnect serializes CONNECT <json-options>\r\n. json is the
// already-marshalled CONNECT payload produced by connectInfoJSON.
func (p *bufferPool) buildConnect(json []byte) *buffer {
	size := len("CONNECT ") + len(json) + len(crlf)
	b := p.get(size)
	n := 0
	n += copy(b.Buf[n:], "CONNECT ")
	n += copy(b.Buf[n:], json)
	n += copy(b.Buf[n:], crlf)
	b.Len = n
	return b
}

// buildPing serializes PING\r\n.
func (p *bufferPool) buildPing() *buffer {
	b := p.get(len("PING" + crlf))
	b.Len = copy(b.Buf, "PING"+crlf)
	return b
}

// buildPong serializes PONG\r\n.
func (p *bufferPool) buildPong() *buffer {
	b := p.get(len("PONG" + crlf))
	b.Len = copy(b.Buf, "PONG"+crlf)
	return b
}

// buildPub serializes PUB <subject> [reply-to] <len>\r\n<payload>\r\n.
// An empty subject is rejected with ErrInvalidSubject.
func (p *bufferPool) buildPub(subject, replyTo string, payload []byte) (*buffer, error) {
	if len(subject) == 0 {
		return nil, ErrInvalidSubject
	}
	lenField := digits10(len(payload))
	size := len("PUB ") + len(subject) + 1
	if replyTo != "" {
		size += len(replyTo) + 1
	}
	size += lenField + len(crlf) + len(payload) + len(crlf)

	b := p.get(size)
	n := 0
	n += copy(b.Buf[n:], "PUB ")
	n += copy(b.Buf[n:], subject)
	b.Buf[n] = ' '
	n++
	if replyTo != "" {
		n += copy(b.Buf[n:], replyTo)
		b.Buf[n] = ' '
		n++
	}
	n += copy(b.Buf[n:], strconv.Itoa(len(payload)))
	n += copy(b.Buf[n:], crlf)
	n += copy(b.Buf[n:], payload)
	n += copy(b.Buf[n:], crlf)
	b.Len = n
	return b, nil
}

// natsHeaderPrefix is the mandatory first line of a NATS/1.0 header block.
const natsHeaderPrefix = "NATS/1.0\r\n"

// encodeHeaders renders the NATS/1.0 header block, including its terminal
// blank line, which counts toward header-len.
func encodeHeaders(headers []Header) []byte {
	size := len(natsHeaderPrefix) + len(crlf)
	for _, h := range headers {
		size += len(h.Name) + len(": ") + len(h.Value) + len(crlf)
	}
	out := make([]byte, 0, size)
	out = append(out, natsHeaderPrefix...)
	for _, h := range headers {
		out = append(out, h.Name...)
		out = append(out, ": "...)
		out = append(out, h.Value...)
		out = append(out, crlf...)
	}
	out = append(out, crlf...)
	return out
}

// buildHPub serializes
// HPUB <subject> [reply-to] <header-len> <total-len>\r\n<headers><payload>\r\n.
// header_len and total_len = header_len + payload_len, in that order.
func (p *bufferPool) buildHPub(subject, replyTo string, headers []Header, payload []byte) (*buffer, error) {
	if len(subject) == 0 {
		return nil, ErrInvalidSubject
	}
	hdr := encodeHeaders(headers)
	headerLen := len(hdr)
	totalLen := headerLen + len(payload)

	size := len("HPUB ") + len(subject) + 1
	if replyTo != "" {
		size += len(replyTo) + 1
	}
	size += digits10(headerLen) + 1 + digits10(totalLen) + len(crlf)
	size += totalLen + len(crlf)

	b := p.get(size)
	n := 0
	n += copy(b.Buf[n:], "HPUB ")
	n += copy(b.Buf[n:], subject)
	b.Buf[n] = ' '
	n++
	if replyTo != "" {
		n += copy(b.Buf[n:], replyTo)
		b.Buf[n] = ' '
		n++
	}
	n += copy(b.Buf[n:], strconv.Itoa(headerLen))
	b.Buf[n] = ' '
	n++
	n += copy(b.Buf[n:], strconv.Itoa(totalLen))
	n += copy(b.Buf[n:], crlf)
	n += copy(b.Buf[n:], hdr)
	n += copy(b.Buf[n:], payload)
	n += copy(b.Buf[n:], crlf)
	b.Len = n
	return b, nil
}

// buildSub serializes SUB <subject> [queue-group] <sid>\r\n.
func (p *bufferPool) buildSub(subject, queueGroup string, sid uint64) (*buffer, error) {
	if len(subject) == 0 {
		return nil, ErrInvalidSubject
	}
	sidStr := strconv.FormatUint(sid, 10)
	size := len("SUB ") + len(subject) + 1
	if queueGroup != "" {
		size += len(queueGroup) + 1
	}
	size += len(sidStr) + len(crlf)

	b := p.get(size)
	n := 0
	n += copy(b.Buf[n:], "SUB ")
	n += copy(b.Buf[n:], subject)
	b.Buf[n] = ' '
	n++
	if queueGroup != "" {
		n += copy(b.Buf[n:], queueGroup)
		b.Buf[n] = ' '
		n++
	}
	n += copy(b.Buf[n:], sidStr)
	n += copy(b.Buf[n:], crlf)
	b.Len = n
	return b, nil
}

// buildUnsub serializes UNSUB <sid> [max-msgs]\r\n. maxMsgs <= 0 omits the
// optional field.
func (p *bufferPool) buildUnsub(sid uint64, maxMsgs int) *buffer {
	sidStr := strconv.FormatUint(sid, 10)
	size := len("UNSUB ") + len(sidStr)
	var maxStr string
	if maxMsgs > 0 {
		maxStr = strconv.Itoa(maxMsgs)
		size += 1 + len(maxStr)
	}
	size += len(crlf)

	b := p.get(size)
	n := 0
	n += copy(b.Buf[n:], "UNSUB ")
	n += copy(b.Buf[n:], sidStr)
	if maxMsgs > 0 {
		b.Buf[n] = ' '
		n++
		n += copy(b.Buf[n:], maxStr)
	}
	n += copy(b.Buf[n:], crlf)
	b.Len = n
	return b
}

// connectInfo is the CONNECT JSON payload. Field order doesn't matter on the
// wire; encoding/json renders booleans lowercase with no trailing whitespace.
type connectInfo struct {
	Verbose      bool   `json:"verbose"`
	Pedantic     bool   `json:"pedantic"`
	TLSRequired  bool   `json:"tls_required"`
	AuthToken    string `json:"auth_token,omitempty"`
	User         string `json:"user,omitempty"`
	Pass         string `json:"pass,omitempty"`
	Name         string `json:"name,omitempty"`
	Lang         string `json:"lang"`
	Version      string `json:"version"`
	Protocol     int    `json:"protocol"`
	Echo         bool   `json:"echo"`
	Headers      bool   `json:"headers"`
}

func connectInfoJSON(o *Options) ([]byte, error) {
	ci := connectInfo{
		Verbose:     o.Verbose,
		Pedantic:    o.Pedantic,
		TLSRequired: false,
		AuthToken:   o.AuthToken,
		User:        o.User,
		Pass:        o.Pass,
		Name:        o.Name,
		Lang:        o.Lang,
		Version:     o.Version,
		Protocol:    1,
		Echo:        o.Echo,
		Headers:     true,
	}
	return json.Marshal(ci)
}
