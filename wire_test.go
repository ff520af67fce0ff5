// ©Hayabusa Cloud Co., Ltd. 2025. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package natscore

import (
	"encoding/json"
	"strings"
	"testing"
)

func TestBuildPub_NoReply(t *testing.T) {
	p := newBufferPool()
	b, err := p.buildPub("foo.bar", "", []byte("hello"))
	if err != nil {
		t.Fatalf("buildPub: %v", err)
	}
	want := "PUB foo.bar 5\r\nhello\r\n"
	if got := string(b.Bytes()); got != want {
		t.Fatalf("buildPub = %q, want %q", got, want)
	}
}

func TestBuildPub_WithReply(t *testing.T) {
	p := newBufferPool()
	b, err := p.buildPub("foo.bar", "_INBOX.1", []byte("hi"))
	if err != nil {
		t.Fatalf("buildPub: %v", err)
	}
	want := "PUB foo.bar _INBOX.1 2\r\nhi\r\n"
	if got := string(b.Bytes()); got != want {
		t.Fatalf("buildPub = %q, want %q", got, want)
	}
}

func TestBuildPub_EmptySubjectRejected(t *testing.T) {
	p := newBufferPool()
	if _, err := p.buildPub("", "", nil); err != ErrInvalidSubject {
		t.Fatalf("err = %v, want ErrInvalidSubject", err)
	}
}

func TestBuildHPub_LengthsMatchGrammar(t *testing.T) {
	p := newBufferPool()
	headers := []Header{{Name: "X-Trace", Value: "abc"}}
	payload := []byte("payload")
	b, err := p.buildHPub("foo", "", headers, payload)
	if err != nil {
		t.Fatalf("buildHPub: %v", err)
	}
	s := string(b.Bytes())
	if !strings.HasPrefix(s, "HPUB foo ") {
		t.Fatalf("unexpected prefix: %q", s)
	}
	if !strings.Contains(s, "NATS/1.0\r\n") {
		t.Fatalf("missing header status line: %q", s)
	}
	if !strings.Contains(s, "X-Trace: abc\r\n") {
		t.Fatalf("missing header line: %q", s)
	}
	if !strings.HasSuffix(s, "payload\r\n") {
		t.Fatalf("missing payload tail: %q", s)
	}
}

func TestBuildSub_WithQueueGroup(t *testing.T) {
	p := newBufferPool()
	b, err := p.buildSub("foo.*", "workers", 7)
	if err != nil {
		t.Fatalf("buildSub: %v", err)
	}
	want := "SUB foo.* workers 7\r\n"
	if got := string(b.Bytes()); got != want {
		t.Fatalf("buildSub = %q, want %q", got, want)
	}
}

func TestBuildUnsub_WithAndWithoutMaxMsgs(t *testing.T) {
	p := newBufferPool()
	b := p.buildUnsub(3, 0)
	if got, want := string(b.Bytes()), "UNSUB 3\r\n"; got != want {
		t.Fatalf("buildUnsub = %q, want %q", got, want)
	}
	b2 := p.buildUnsub(3, 5)
	if got, want := string(b2.Bytes()), "UNSUB 3 5\r\n"; got != want {
		t.Fatalf("buildUnsub = %q, want %q", got, want)
	}
}

func TestConnectInfoJSON_RoundTrips(t *testing.T) {
	o := defaultOptions
	o.Name = "test-conn"
	o.User = "alice"
	raw, err := connectInfoJSON(&o)
	if err != nil {
		t.Fatalf("connectInfoJSON: %v", err)
	}
	var ci connectInfo
	if err := json.Unmarshal(raw, &ci); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if ci.Name != "test-conn" || ci.User != "alice" {
		t.Fatalf("round trip mismatch: %+v", ci)
	}
	if !ci.Headers {
		t.Fatalf("headers must always be advertised true")
	}
}

func TestBuildConnect_FramesJSON(t *testing.T) {
	p := newBufferPool()
	b := p.buildConnect([]byte(`{"a":1}`))
	want := "CONNECT {\"a\":1}\r\n"
	if got := string(b.Bytes()); got != want {
		t.Fatalf("buildConnect = %q, want %q", got, want)
	}
}
