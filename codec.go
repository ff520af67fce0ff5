// ©Hayabusa Cloud Co., Ltd. 2025. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package natscore

// Codec (de)serializes user payloads. It sits outside the core: the wire engine
// only ever moves []byte. A Codec lets a caller publish and receive typed values
// through Conn.PublishValue/Conn.DecodeValue without hand-marshalling at every
// call site.
//
// DecodeValue wraps decode errors in DeserializationError, reports it through
// the error channel (ErrorCB) the same way a malformed frame is reported, and
// returns it to its caller. Request returns the raw reply Msg undecoded.
type Codec interface {
	Encode(v any) ([]byte, error)
	Decode(data []byte, v any) error
}

// RawCodec is the identity codec: Encode requires a []byte input and returns it
// unchanged; Decode requires a *[]byte output and copies into it. It is the
// Codec used when Options.Serializer is nil and a caller reaches for the typed
// helpers anyway.
type RawCodec struct{}

func (RawCodec) Encode(v any) ([]byte, error) {
	b, ok := v.([]byte)
	if !ok {
		return nil, ErrInvalidArgument
	}
	return b, nil
}

func (RawCodec) Decode(data []byte, v any) error {
	p, ok := v.(*[]byte)
	if !ok {
		return ErrInvalidArgument
	}
	*p = append((*p)[:0], data...)
	return nil
}
