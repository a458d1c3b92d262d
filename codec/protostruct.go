package codec

import (
	"encoding/json"
	"fmt"

	"google.golang.org/protobuf/types/known/structpb"
)

// ProtoStruct stores JSON-shaped values as a google.protobuf.Value, for byte
// stores shared with other protobuf consumers. V goes through its JSON form, so
// json tags decide field names; numbers come back as float64 before decoding
// into V, which is lossless for integers up to 2^53.
type ProtoStruct[V any] struct {
	pb Protobuf[*structpb.Value]
}

var _ Codec[struct{}] = ProtoStruct[struct{}]{}

func NewProtoStruct[V any]() ProtoStruct[V] {
	return ProtoStruct[V]{pb: NewDeterministicProtobuf(func() *structpb.Value { return &structpb.Value{} })}
}

func (c ProtoStruct[V]) Encode(v V) ([]byte, error) {
	js, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	var tree any
	if err := json.Unmarshal(js, &tree); err != nil {
		return nil, err
	}
	pv, err := structpb.NewValue(tree)
	if err != nil {
		return nil, fmt.Errorf("codec: protostruct: %w", err)
	}
	return c.pb.Encode(pv)
}

func (c ProtoStruct[V]) Decode(b []byte) (V, error) {
	var v V
	pv, err := c.pb.Decode(b)
	if err != nil {
		return v, err
	}
	js, err := json.Marshal(pv.AsInterface())
	if err != nil {
		return v, err
	}
	err = json.Unmarshal(js, &v)
	return v, err
}
