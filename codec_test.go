// ©Hayabusa Cloud Co., Ltd. 2025. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package natscore

import "testing"

func TestRawCodec_EncodePassesBytesThrough(t *testing.T) {
	c := RawCodec{}
	got, err := c.Encode([]byte("hello"))
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}
	if string(got) != "hello" {
		t.Fatalf("Encode = %q, want hello", got)
	}
}

func TestRawCodec_EncodeRejectsNonBytes(t *testing.T) {
	c := RawCodec{}
	if _, err := c.Encode(42); err != ErrInvalidArgument {
		t.Fatalf("err = %v, want ErrInvalidArgument", err)
	}
}

func TestRawCodec_DecodeCopiesIntoBytePointer(t *testing.T) {
	c := RawCodec{}
	var out []byte
	if err := c.Decode([]byte("world"), &out); err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if string(out) != "world" {
		t.Fatalf("out = %q, want world", out)
	}
}

func TestRawCodec_DecodeRejectsWrongType(t *testing.T) {
	c := RawCodec{}
	var out string
	if err := c.Decode([]byte("world"), &out); err != ErrInvalidArgument {
		t.Fatalf("err = %v, want ErrInvalidArgument", err)
	}
}
