// ©Hayabusa Cloud Co., Ltd. 2025. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package natscore

import (
	"testing"
)

func TestParser_Ping(t *testing.T) {
	p := newParser(newBufferPool(), 0)
	frames, err := p.Feed([]byte("PING\r\n"))
	if err != nil {
		t.Fatalf("Feed: %v", err)
	}
	if len(frames) != 1 || frames[0].Kind != framePing {
		t.Fatalf("frames = %+v, want one PING", frames)
	}
}

func TestParser_InfoCarriesRawJSON(t *testing.T) {
	p := newParser(newBufferPool(), 0)
	frames, err := p.Feed([]byte(`INFO {"server_id":"abc"}` + "\r\n"))
	if err != nil {
		t.Fatalf("Feed: %v", err)
	}
	if len(frames) != 1 || frames[0].Kind != frameInfo {
		t.Fatalf("frames = %+v, want one INFO", frames)
	}
	if string(frames[0].Info) != `{"server_id":"abc"}` {
		t.Fatalf("Info = %q", frames[0].Info)
	}
}

func TestParser_Msg(t *testing.T) {
	p := newParser(newBufferPool(), 0)
	frames, err := p.Feed([]byte("MSG foo.bar 9 5\r\nhello\r\n"))
	if err != nil {
		t.Fatalf("Feed: %v", err)
	}
	if len(frames) != 1 {
		t.Fatalf("frames = %d, want 1", len(frames))
	}
	f := frames[0]
	if f.Kind != frameMsg || f.Subject != "foo.bar" || f.Sid != 9 || f.ReplyTo != "" {
		t.Fatalf("unexpected frame: %+v", f)
	}
	if string(f.data()) != "hello" {
		t.Fatalf("data = %q, want hello", f.data())
	}
	f.payload.release()
}

func TestParser_MsgWithReplyTo(t *testing.T) {
	p := newParser(newBufferPool(), 0)
	frames, err := p.Feed([]byte("MSG foo.bar 9 _INBOX.1 5\r\nhello\r\n"))
	if err != nil {
		t.Fatalf("Feed: %v", err)
	}
	f := frames[0]
	if f.ReplyTo != "_INBOX.1" {
		t.Fatalf("ReplyTo = %q", f.ReplyTo)
	}
	f.payload.release()
}

func TestParser_HMsg(t *testing.T) {
	p := newParser(newBufferPool(), 0)
	hdr := "NATS/1.0\r\nX-Trace: abc\r\n\r\n"
	payload := "hello"
	total := len(hdr) + len(payload)
	frame := "HMSG foo.bar 9 " + itoa(len(hdr)) + " " + itoa(total) + "\r\n" + hdr + payload + "\r\n"

	frames, err := p.Feed([]byte(frame))
	if err != nil {
		t.Fatalf("Feed: %v", err)
	}
	f := frames[0]
	if f.Kind != frameHMsg {
		t.Fatalf("Kind = %v, want frameHMsg", f.Kind)
	}
	if len(f.Headers) != 1 || f.Headers[0].Name != "X-Trace" || f.Headers[0].Value != "abc" {
		t.Fatalf("Headers = %+v", f.Headers)
	}
	if string(f.data()) != payload {
		t.Fatalf("data = %q, want %q", f.data(), payload)
	}
	f.payload.release()
}

func itoa(n int) string {
	if n == 0 {
		return "0"
	}
	var digits []byte
	for n > 0 {
		digits = append([]byte{byte('0' + n%10)}, digits...)
		n /= 10
	}
	return string(digits)
}

// TestParser_SplitAtEveryByte feeds the same well-formed stream one byte at
// a time, exercising tolerance for arbitrary byte-boundary splits.
func TestParser_SplitAtEveryByte(t *testing.T) {
	p := newParser(newBufferPool(), 0)
	stream := []byte("MSG foo 1 5\r\nhello\r\nPING\r\n+OK\r\n")

	var got []inboundFrame
	for i := 0; i < len(stream); i++ {
		frames, err := p.Feed(stream[i : i+1])
		if err != nil {
			t.Fatalf("Feed byte %d: %v", i, err)
		}
		got = append(got, frames...)
	}

	if len(got) != 3 {
		t.Fatalf("got %d frames, want 3: %+v", len(got), got)
	}
	if got[0].Kind != frameMsg || string(got[0].data()) != "hello" {
		t.Fatalf("frame 0 = %+v", got[0])
	}
	got[0].payload.release()
	if got[1].Kind != framePing {
		t.Fatalf("frame 1 = %+v", got[1])
	}
	if got[2].Kind != frameOK {
		t.Fatalf("frame 2 = %+v", got[2])
	}
}

func TestParser_MalformedVerb(t *testing.T) {
	p := newParser(newBufferPool(), 0)
	_, err := p.Feed([]byte("BOGUS\r\n"))
	if _, ok := err.(*ProtocolError); !ok {
		t.Fatalf("err = %v, want *ProtocolError", err)
	}
}

func TestParser_MissingPayloadCRLF(t *testing.T) {
	p := newParser(newBufferPool(), 0)
	_, err := p.Feed([]byte("MSG foo 1 5\r\nhelloXX"))
	if _, ok := err.(*ProtocolError); !ok {
		t.Fatalf("err = %v, want *ProtocolError", err)
	}
}

func TestParser_RejectsOversizePayload(t *testing.T) {
	p := newParser(newBufferPool(), 10)
	_, err := p.Feed([]byte("MSG foo 1 11\r\n"))
	if _, ok := err.(*ProtocolError); !ok {
		t.Fatalf("err = %v, want *ProtocolError for oversize payload", err)
	}
}

func TestParser_ErrFrameCarriesMessage(t *testing.T) {
	p := newParser(newBufferPool(), 0)
	frames, err := p.Feed([]byte("-ERR 'Authorization Violation'\r\n"))
	if err != nil {
		t.Fatalf("Feed: %v", err)
	}
	if frames[0].Kind != frameErr || frames[0].Err != "Authorization Violation" {
		t.Fatalf("frame = %+v", frames[0])
	}
}
