// ©Hayabusa Cloud Co., Ltd. 2025. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package natscore

import (
	"bytes"
	"strconv"
	"strings"
)

// DefaultMaxPayloadSize is the parser's default rejection threshold for a
// frame's declared total-len.
const DefaultMaxPayloadSize = 64 << 20 // 64 MiB

// parserState is the inbound parser's two-state machine.
type parserState uint8

const (
	expectingLine parserState = iota
	expectingPayload
)

// pendingFrame holds the line-parsed fields of an MSG/HMSG while the parser
// waits for its payload block to arrive.
type pendingFrame struct {
	isHMsg    bool
	subject   string
	sid       uint64
	replyTo   string
	headerLen int64 // valid only when isHMsg
	totalLen  int64
}

// parser incrementally decodes the server→client protocol over a sequence of
// possibly non-contiguous byte chunks. It is not safe for concurrent use; one
// parser belongs to exactly one Dispatcher.
type parser struct {
	pool       *bufferPool
	maxPayload int64

	state   parserState
	pending pendingFrame

	// acc accumulates bytes not yet consumed into a complete frame. consume
	// reslices it forward; compact occasionally copies the remainder into a
	// fresh slice so the old backing array, consumed prefix included, can be
	// collected.
	acc []byte
}

func newParser(pool *bufferPool, maxPayload int64) *parser {
	if maxPayload <= 0 {
		maxPayload = DefaultMaxPayloadSize
	}
	return &parser{pool: pool, maxPayload: maxPayload, acc: make([]byte, 0, 4096)}
}

// Feed appends data to the parser's pending bytes and decodes as many
// complete frames as are available. It returns every frame produced by this
// call in wire order; a nil error with zero frames means "need more bytes".
// A non-nil error is always a *ProtocolError and is fatal to the connection
// cycle the caller is driving.
func (p *parser) Feed(data []byte) ([]inboundFrame, error) {
	p.acc = append(p.acc, data...)

	var out []inboundFrame
	for {
		switch p.state {
		case expectingLine:
			idx := bytes.Index(p.acc, []byte(crlf))
			if idx < 0 {
				p.compact()
				return out, nil
			}
			line := p.acc[:idx]
			p.consume(idx + len(crlf))

			frame, err := p.parseLine(line)
			if err != nil {
				return out, err
			}
			if frame != nil {
				out = append(out, *frame)
			}
			// MSG/HMSG leave p.state == expectingPayload; everything else
			// stays on expectingLine and the loop continues.

		case expectingPayload:
			need := p.pending.totalLen + int64(len(crlf))
			if int64(len(p.acc)) < need {
				p.compact()
				return out, nil
			}
			payload := p.acc[:p.pending.totalLen]
			trailer := p.acc[p.pending.totalLen:need]
			if !bytes.Equal(trailer, []byte(crlf)) {
				return out, newProtocolViolation("missing CRLF after payload")
			}

			frame := p.finishPayload(payload)
			p.consume(int(need))
			p.state = expectingLine
			out = append(out, frame)
		}
	}
}

// consume drops the first n bytes of acc, the portion just parsed.
func (p *parser) consume(n int) {
	p.acc = p.acc[n:]
}

// compact copies the unconsumed remainder into a newly allocated slice of the
// same capacity when the remainder is non-empty, fills no more than half of
// the capacity from its start, and that capacity is at least 8192 bytes.
// Otherwise it leaves acc as it is.
func (p *parser) compact() {
	if cap(p.acc)-len(p.acc) < len(p.acc) {
		return
	}
	if len(p.acc) == 0 || cap(p.acc) < 8192 {
		return
	}
	fresh := make([]byte, len(p.acc), cap(p.acc))
	copy(fresh, p.acc)
	p.acc = fresh
}

// parseLine decodes one line already stripped of its trailing CRLF. For
// MSG/HMSG it records pendingFrame and transitions to expectingPayload,
// returning a nil frame (nothing to emit until the payload arrives). For
// everything else it returns the completed frame immediately.
func (p *parser) parseLine(line []byte) (*inboundFrame, error) {
	verb, rest := splitVerb(line)
	switch strings.ToUpper(verb) {
	case "PING":
		return &inboundFrame{Kind: framePing}, nil
	case "PONG":
		return &inboundFrame{Kind: framePong}, nil
	case "+OK":
		return &inboundFrame{Kind: frameOK}, nil
	case "-ERR":
		return &inboundFrame{Kind: frameErr, Err: unquote(strings.TrimSpace(string(rest)))}, nil
	case "INFO":
		// Post-space remainder of the line is the JSON payload, verbatim.
		buf := make([]byte, len(rest))
		copy(buf, rest)
		return &inboundFrame{Kind: frameInfo, Info: buf}, nil
	case "MSG":
		return nil, p.beginMsg(rest, false)
	case "HMSG":
		return nil, p.beginMsg(rest, true)
	default:
		return nil, newProtocolViolation("unknown verb %q", verb)
	}
}

// splitVerb returns the first whitespace-delimited token of line and the
// (untrimmed) remainder following the first space, mirroring the wire
// grammar's "<verb> <args>" shape.
func splitVerb(line []byte) (verb string, rest []byte) {
	i := bytes.IndexByte(line, ' ')
	if i < 0 {
		return string(line), nil
	}
	return string(line[:i]), line[i+1:]
}

func unquote(s string) string {
	if len(s) >= 2 && s[0] == '\'' && s[len(s)-1] == '\'' {
		return s[1 : len(s)-1]
	}
	return s
}

// beginMsg parses "subject SID [reply-to] [header-len] total-len" and arms
// expectingPayload. hmsg selects the 5-field HMSG grammar over the 4-field MSG
// grammar.
func (p *parser) beginMsg(args []byte, hmsg bool) error {
	fields := strings.Fields(string(args))
	minFields, maxFields := 3, 4
	if hmsg {
		minFields, maxFields = 4, 5
	}
	if len(fields) < minFields || len(fields) > maxFields {
		return newProtocolViolation("malformed %s args %q", verbName(hmsg), args)
	}

	subject := fields[0]
	sid, err := strconv.ParseUint(fields[1], 10, 64)
	if err != nil {
		return newProtocolViolation("invalid sid %q", fields[1])
	}

	var replyTo string
	tail := fields[2:]
	if len(tail) == maxFields-2 {
		replyTo = tail[0]
		tail = tail[1:]
	}

	var headerLen int64
	if hmsg {
		headerLen, err = parseNonNegative(tail[0])
		if err != nil {
			return newProtocolViolation("invalid header-len %q", tail[0])
		}
		tail = tail[1:]
	}
	totalLen, err := parseNonNegative(tail[0])
	if err != nil {
		return newProtocolViolation("invalid total-len %q", tail[0])
	}
	if totalLen > p.maxPayload {
		return newProtocolViolation("frame length %d exceeds max %d", totalLen, p.maxPayload)
	}
	if hmsg && headerLen > totalLen {
		return newProtocolViolation("header-len %d exceeds total-len %d", headerLen, totalLen)
	}

	p.pending = pendingFrame{
		isHMsg:    hmsg,
		subject:   subject,
		sid:       sid,
		replyTo:   replyTo,
		headerLen: headerLen,
		totalLen:  totalLen,
	}
	p.state = expectingPayload
	return nil
}

func verbName(hmsg bool) string {
	if hmsg {
		return "HMSG"
	}
	return "MSG"
}

func parseNonNegative(s string) (int64, error) {
	n, err := strconv.ParseInt(s, 10, 64)
	if err != nil || n < 0 {
		return 0, strconv.ErrSyntax
	}
	return n, nil
}

// finishPayload builds the Msg/HMsg frame once the full payload block has
// arrived. The payload is copied into a freshly pool-lent buffer so its
// lifetime can be managed independently of the parser's accumulation buffer
// via payloadRef's reference count.
func (p *parser) finishPayload(payload []byte) inboundFrame {
	f := inboundFrame{
		Kind:    frameMsg,
		Subject: p.pending.subject,
		Sid:     p.pending.sid,
		ReplyTo: p.pending.replyTo,
	}
	if p.pending.isHMsg {
		f.Kind = frameHMsg
	}

	if p.pending.isHMsg {
		f.Headers = parseHeaderBlock(payload[:p.pending.headerLen])
		f.payloadOffset = int(p.pending.headerLen)
	}

	if len(payload) > 0 {
		b := p.pool.get(len(payload))
		copy(b.Buf, payload)
		b.Len = len(payload)
		f.payload = newPayloadRef(p.pool, b)
	}
	return f
}

// parseHeaderBlock parses the NATS/1.0 header block: a mandatory "NATS/1.0"
// status line, zero or more "Name: Value" lines, and a terminal blank line.
func parseHeaderBlock(block []byte) []Header {
	lines := bytes.Split(block, []byte(crlf))
	var headers []Header
	for i, line := range lines {
		if i == 0 {
			continue // "NATS/1.0" status line
		}
		if len(line) == 0 {
			continue
		}
		name, value, ok := strings.Cut(string(line), ":")
		if !ok {
			continue
		}
		headers = append(headers, Header{Name: strings.TrimSpace(name), Value: strings.TrimSpace(value)})
	}
	return headers
}
