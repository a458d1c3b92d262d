package codec

import "google.golang.org/protobuf/proto"

// Protobuf is a Codec for generated protobuf messages.
// ctor must return a fresh, non-nil message (e.g. func() *pb.Post { return &pb.Post{} }).
type Protobuf[T proto.Message] struct {
	new func() T
	det bool
}

func NewProtobuf[T proto.Message](ctor func() T) Protobuf[T] {
	return Protobuf[T]{new: ctor}
}

// NewDeterministicProtobuf is like NewProtobuf but encodes map fields in a
// stable order, so equal messages produce equal bytes within one binary.
func NewDeterministicProtobuf[T proto.Message](ctor func() T) Protobuf[T] {
	return Protobuf[T]{new: ctor, det: true}
}

func (c Protobuf[T]) Encode(v T) ([]byte, error) {
	return proto.MarshalOptions{Deterministic: c.det}.Marshal(v)
}

func (c Protobuf[T]) Decode(b []byte) (T, error) {
	m := c.new()
	err := proto.Unmarshal(b, m)
	return m, err
}
