package querycache

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/unkn0wn-root/querycache/codec"
	"github.com/unkn0wn-root/querycache/internal/util"
)

// Key addresses one cached resource. Elements are strings, numbers or small
// serializable values (structs, maps). Two keys are equal when every element
// has the same canonical CBOR encoding, so Key{"posts", PageQuery{1, 10}} and
// Key{"posts", map[string]any{"page": 1, "pageSize": 10}} name the same entry.
type Key []any

var keyCodec = codec.CanonicalCBOR[any]()

// String renders the key as JSON for logs and hooks.
func (k Key) String() string {
	b, err := json.Marshal([]any(k))
	if err != nil {
		return fmt.Sprint([]any(k))
	}
	return string(b)
}

// Append returns a new key with parts added; k is not modified.
func (k Key) Append(parts ...any) Key {
	out := make(Key, 0, len(k)+len(parts))
	out = append(out, k...)
	return append(out, parts...)
}

// Equal reports whether both keys address the same entry.
// Keys that cannot be encoded are never equal.
func (k Key) Equal(other Key) bool {
	a, _, err := encodeKey(k)
	if err != nil {
		return false
	}
	b, _, err := encodeKey(other)
	return err == nil && a == b
}

// HasPrefix reports whether k belongs to the family named by prefix.
func (k Key) HasPrefix(prefix Key) bool {
	_, parts, err := encodeKey(k)
	if err != nil {
		return false
	}
	pp, err := encodeParts(prefix)
	if err != nil {
		return false
	}
	return util.HasPrefix(parts, pp)
}

// encodeKey returns the map id of k and the encoding of each element.
// CBOR items are self-delimiting, so the concatenation is unambiguous.
func encodeKey(k Key) (string, []string, error) {
	if len(k) == 0 {
		return "", nil, &ValidationError{Field: "key", Reason: "empty"}
	}
	parts, err := encodeParts(k)
	if err != nil {
		return "", nil, err
	}
	return strings.Join(parts, ""), parts, nil
}

func encodeParts(k Key) ([]string, error) {
	parts := make([]string, len(k))
	for i, p := range k {
		b, err := keyCodec.Encode(p)
		if err != nil {
			return nil, &ValidationError{Field: "key", Reason: fmt.Sprintf("element %d: %v", i, err)}
		}
		parts[i] = string(b)
	}
	return parts, nil
}
