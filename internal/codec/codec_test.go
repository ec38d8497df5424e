package codec

import (
	"reflect"
	"testing"

	"github.com/adred-codev/shmcomm/internal/shmerr"
)

func TestGobRoundTrip(t *testing.T) {
	c, err := ForMethod(PickleEquivalent)
	if err != nil {
		t.Fatalf("ForMethod: %v", err)
	}
	in := map[string]any{"v": int64(42), "name": "sensor-1"}
	data, err := c.Encode(in)
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}
	var out any
	if err := c.Decode(data, &out); err != nil {
		t.Fatalf("Decode: %v", err)
	}
	got, ok := out.(map[string]any)
	if !ok {
		t.Fatalf("decoded type = %T, want map[string]any", out)
	}
	if got["name"] != "sensor-1" {
		t.Fatalf("name = %v, want sensor-1", got["name"])
	}
}

func TestMsgpackRoundTripScalars(t *testing.T) {
	c, err := ForMethod(Msgpack)
	if err != nil {
		t.Fatalf("ForMethod: %v", err)
	}
	cases := []any{nil, true, false, int64(-7), 3.5, "hello", []byte("raw")}
	for _, in := range cases {
		data, err := c.Encode(in)
		if err != nil {
			t.Fatalf("Encode(%v): %v", in, err)
		}
		var out any
		if err := c.Decode(data, &out); err != nil {
			t.Fatalf("Decode(%v): %v", in, err)
		}
		if !reflect.DeepEqual(out, in) {
			t.Fatalf("round trip %v => %v, want %v", in, out, in)
		}
	}
}

func TestMsgpackRoundTripMapAndArray(t *testing.T) {
	c, err := ForMethod(Msgpack)
	if err != nil {
		t.Fatalf("ForMethod: %v", err)
	}
	in := map[string]any{"a": int64(1), "b": []any{int64(1), int64(2), "three"}}
	data, err := c.Encode(in)
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}
	var out any
	if err := c.Decode(data, &out); err != nil {
		t.Fatalf("Decode: %v", err)
	}
	gotMap, ok := out.(map[string]any)
	if !ok {
		t.Fatalf("decoded type = %T, want map[string]any", out)
	}
	if gotMap["a"] != int64(1) {
		t.Fatalf("a = %v, want 1", gotMap["a"])
	}
	arr, ok := gotMap["b"].([]any)
	if !ok || len(arr) != 3 {
		t.Fatalf("b = %v, want a 3-element slice", gotMap["b"])
	}
}

func TestUnknownMethodIsArgumentError(t *testing.T) {
	_, err := ForMethod("protobuf")
	if err == nil {
		t.Fatal("expected error for unknown method")
	}
	if _, ok := err.(*shmerr.ArgumentError); !ok {
		t.Fatalf("expected *shmerr.ArgumentError, got %T: %v", err, err)
	}
}
