package codec

import (
	"bytes"
	"errors"
	"reflect"
	"testing"
	"time"

	"google.golang.org/protobuf/types/known/wrapperspb"
)

type post struct {
	ID     int    `json:"id" cbor:"id"`
	UserID int    `json:"userId" cbor:"userId"`
	Title  string `json:"title" cbor:"title"`
	Body   string `json:"body" cbor:"body"`
}

var samplePosts = []post{
	{ID: 1, UserID: 1, Title: "sunt aut facere", Body: "quia et suscipit"},
	{ID: 2, UserID: 1, Title: "qui est esse", Body: "est rerum tempore"},
}

func roundTrip[V any](t *testing.T, name string, c Codec[V], in V) {
	t.Helper()
	b, err := c.Encode(in)
	if err != nil {
		t.Fatalf("%s encode: %v", name, err)
	}
	out, err := c.Decode(b)
	if err != nil {
		t.Fatalf("%s decode: %v", name, err)
	}
	if !reflect.DeepEqual(in, out) {
		t.Fatalf("%s round trip: got %+v want %+v", name, out, in)
	}
}

func TestCodecsRoundTripPosts(t *testing.T) {
	roundTrip[[]post](t, "json", JSON[[]post]{}, samplePosts)
	roundTrip[[]post](t, "msgpack", Msgpack[[]post]{}, samplePosts)
	roundTrip[[]post](t, "cbor", CompactCBOR[[]post](), samplePosts)
	roundTrip[[]post](t, "cbor-det", CanonicalCBOR[[]post](), samplePosts)
	roundTrip[[]post](t, "protostruct", NewProtoStruct[[]post](), samplePosts)
}

func TestMsgpackUsesJSONNames(t *testing.T) {
	b, err := Msgpack[post]{}.Encode(samplePosts[0])
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.Contains(b, []byte("userId")) {
		t.Fatalf("msgpack payload does not use json field names: %x", b)
	}
}

func TestCBORDeterministicMapOrder(t *testing.T) {
	c := CanonicalCBOR[any]()
	a, err := c.Encode(map[string]any{"pageSize": 10, "page": 1, "b": true})
	if err != nil {
		t.Fatal(err)
	}
	for i := 0; i < 20; i++ {
		b, err := c.Encode(map[string]any{"b": true, "page": 1, "pageSize": 10})
		if err != nil {
			t.Fatal(err)
		}
		if !bytes.Equal(a, b) {
			t.Fatalf("deterministic encoding differs: %x vs %x", a, b)
		}
	}
}

func TestCBORDecodesMapsAsStringKeyed(t *testing.T) {
	c := CanonicalCBOR[any]()
	b, _ := c.Encode(map[string]any{"id": 1})
	v, err := c.Decode(b)
	if err != nil {
		t.Fatal(err)
	}
	if _, ok := v.(map[string]any); !ok {
		t.Fatalf("decoded %T want map[string]any", v)
	}
}

func TestCBORTimeRFC3339(t *testing.T) {
	c := CanonicalCBOR[time.Time]()
	in := time.Date(2024, 1, 1, 12, 0, 0, 123, time.UTC)
	b, err := c.Encode(in)
	if err != nil {
		t.Fatal(err)
	}
	out, err := c.Decode(b)
	if err != nil || !out.Equal(in) {
		t.Fatalf("time round trip: %v %v", out, err)
	}
}

func TestLimitCodec(t *testing.T) {
	c := LimitCodec[[]post]{Inner: JSON[[]post]{}, MaxDecode: 16}
	b, _ := JSON[[]post]{}.Encode(samplePosts)
	if _, err := c.Decode(b); !errors.Is(err, ErrTooLarge) {
		t.Fatalf("err=%v want ErrTooLarge", err)
	}
	unlimited := LimitCodec[[]post]{Inner: JSON[[]post]{}}
	if _, err := unlimited.Decode(b); err != nil {
		t.Fatalf("unlimited decode: %v", err)
	}
}

func TestProtobufWrappers(t *testing.T) {
	c := NewProtobuf(func() *wrapperspb.StringValue { return &wrapperspb.StringValue{} })
	b, err := c.Encode(wrapperspb.String("delectus aut autem"))
	if err != nil {
		t.Fatal(err)
	}
	out, err := c.Decode(b)
	if err != nil || out.GetValue() != "delectus aut autem" {
		t.Fatalf("decode=%v err=%v", out.GetValue(), err)
	}
	if _, err := c.Decode([]byte{0xff, 0xff}); err == nil {
		t.Fatalf("expected error for garbage input")
	}
}

func TestProtoStructDeterministic(t *testing.T) {
	c := NewProtoStruct[map[string]any]()
	a, err := c.Encode(map[string]any{"x": 1, "y": "z", "n": []any{1, 2}})
	if err != nil {
		t.Fatal(err)
	}
	b, err := c.Encode(map[string]any{"n": []any{1, 2}, "y": "z", "x": 1})
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(a, b) {
		t.Fatalf("protostruct encoding depends on map order")
	}
}
