package codec

import (
	"reflect"

	"github.com/fxamacker/cbor/v2"
)

// CBOR encodes with fxamacker/cbor. Build one with CanonicalCBOR or CompactCBOR;
// the zero value panics. Times are written as RFC 3339 strings and untyped maps
// decode as map[string]any.
type CBOR[V any] struct {
	enc cbor.EncMode
	dec cbor.DecMode
}

var _ Codec[struct{}] = CBOR[struct{}]{}

// CanonicalCBOR uses RFC 8949 core deterministic encoding: sorted map keys,
// shortest integer forms, no indefinite lengths. Equal values give equal bytes,
// which key identity depends on.
func CanonicalCBOR[V any]() CBOR[V] { return CBOR[V]{enc: canonicalMode, dec: decodeMode} }

// CompactCBOR skips key sorting. Output for maps is not stable across runs.
func CompactCBOR[V any]() CBOR[V] { return CBOR[V]{enc: compactMode, dec: decodeMode} }

func (c CBOR[V]) Encode(v V) ([]byte, error) { return c.enc.Marshal(v) }

func (c CBOR[V]) Decode(b []byte) (v V, err error) {
	err = c.dec.Unmarshal(b, &v)
	return v, err
}

// modes are immutable and shared by every CBOR value
var (
	canonicalMode = encMode(cbor.CoreDetEncOptions(), true)
	compactMode   = encMode(cbor.PreferredUnsortedEncOptions(), false)
	decodeMode    = mustMode(cbor.DecOptions{DefaultMapType: reflect.TypeOf(map[string]any(nil))}.DecMode())
)

func encMode(o cbor.EncOptions, strict bool) cbor.EncMode {
	o.Time = cbor.TimeRFC3339Nano
	if strict {
		o.IndefLength = cbor.IndefLengthForbidden
	}
	return mustMode(o.EncMode())
}

func mustMode[M any](m M, err error) M {
	if err != nil {
		panic("codec: cbor options: " + err.Error())
	}
	return m
}
