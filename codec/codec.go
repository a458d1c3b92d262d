// Package codec turns typed values into bytes and back. The query cache uses
// deterministic CBOR for key identity; the REST client decodes bodies as JSON;
// the response cache stores payloads with any of them.
package codec

import (
	"encoding/json"
	"errors"
	"fmt"
)

type Codec[V any] interface {
	Encode(V) ([]byte, error)
	Decode([]byte) (V, error)
}

// JSON uses encoding/json. Zero value is ready.
type JSON[V any] struct{}

var _ Codec[struct{}] = JSON[struct{}]{}

func (JSON[V]) Encode(v V) ([]byte, error) { return json.Marshal(v) }

func (JSON[V]) Decode(b []byte) (v V, err error) {
	err = json.Unmarshal(b, &v)
	return v, err
}

// ErrTooLarge is wrapped by LimitCodec.Decode for oversized input.
var ErrTooLarge = errors.New("codec: payload too large")

// LimitCodec rejects payloads longer than MaxDecode before Inner sees them.
// MaxDecode <= 0 means no limit. Encode is not limited.
type LimitCodec[V any] struct {
	Inner     Codec[V]
	MaxDecode int
}

func (c LimitCodec[V]) Encode(v V) ([]byte, error) { return c.Inner.Encode(v) }

func (c LimitCodec[V]) Decode(b []byte) (V, error) {
	if c.MaxDecode > 0 && len(b) > c.MaxDecode {
		var zero V
		return zero, fmt.Errorf("%w: %d bytes, limit %d", ErrTooLarge, len(b), c.MaxDecode)
	}
	return c.Inner.Decode(b)
}
