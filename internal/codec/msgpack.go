package codec

import (
	"encoding/binary"
	"fmt"
	"math"
	"reflect"

	"github.com/adred-codev/shmcomm/internal/shmerr"
)

// msgpackCodec implements the subset of the MessagePack wire format
// (https://github.com/msgpack/msgpack/blob/master/spec.md) needed by
// shmcomm endpoints: nil, bool, signed/unsigned integers, float64,
// str, bin, array, and map[string]any. No msgpack library is present
// anywhere in the retrieved example corpus, so this is implemented
// directly against the public wire spec rather than faked as a
// third-party dependency.
type msgpackCodec struct{}

func (msgpackCodec) Encode(v any) ([]byte, error) {
	var buf []byte
	buf, err := appendValue(buf, reflect.ValueOf(v))
	if err != nil {
		return nil, &shmerr.SerializationError{Method: Msgpack, Err: err}
	}
	return buf, nil
}

func (msgpackCodec) Decode(data []byte, out any) error {
	v, _, err := decodeValue(data)
	if err != nil {
		return &shmerr.SerializationError{Method: Msgpack, Err: err}
	}
	ptr, ok := out.(*any)
	if !ok {
		return &shmerr.SerializationError{Method: Msgpack, Err: fmt.Errorf("msgpack decode requires *any, got %T", out)}
	}
	*ptr = v
	return nil
}

func appendValue(buf []byte, rv reflect.Value) ([]byte, error) {
	if !rv.IsValid() {
		return append(buf, 0xc0), nil // nil
	}
	switch rv.Kind() {
	case reflect.Interface, reflect.Ptr:
		if rv.IsNil() {
			return append(buf, 0xc0), nil
		}
		return appendValue(buf, rv.Elem())
	case reflect.Bool:
		if rv.Bool() {
			return append(buf, 0xc3), nil
		}
		return append(buf, 0xc2), nil
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return appendInt(buf, rv.Int()), nil
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		return appendInt(buf, int64(rv.Uint())), nil
	case reflect.Float32, reflect.Float64:
		return appendFloat64(buf, rv.Float()), nil
	case reflect.String:
		return appendStr(buf, rv.String()), nil
	case reflect.Slice, reflect.Array:
		if rv.Type().Elem().Kind() == reflect.Uint8 {
			return appendBin(buf, rv.Bytes()), nil
		}
		buf = appendArrayHeader(buf, rv.Len())
		for i := 0; i < rv.Len(); i++ {
			var err error
			buf, err = appendValue(buf, rv.Index(i))
			if err != nil {
				return nil, err
			}
		}
		return buf, nil
	case reflect.Map:
		buf = appendMapHeader(buf, rv.Len())
		iter := rv.MapRange()
		for iter.Next() {
			var err error
			buf, err = appendValue(buf, iter.Key())
			if err != nil {
				return nil, err
			}
			buf, err = appendValue(buf, iter.Value())
			if err != nil {
				return nil, err
			}
		}
		return buf, nil
	default:
		return nil, fmt.Errorf("msgpack: unsupported type %s", rv.Kind())
	}
}

func appendInt(buf []byte, n int64) []byte {
	b := make([]byte, 9)
	b[0] = 0xd3
	binary.BigEndian.PutUint64(b[1:], uint64(n))
	return append(buf, b...)
}

func appendFloat64(buf []byte, f float64) []byte {
	b := make([]byte, 9)
	b[0] = 0xcb
	binary.BigEndian.PutUint64(b[1:], math.Float64bits(f))
	return append(buf, b...)
}

func appendStr(buf []byte, s string) []byte {
	n := len(s)
	b := make([]byte, 5)
	b[0] = 0xdb
	binary.BigEndian.PutUint32(b[1:], uint32(n))
	buf = append(buf, b...)
	return append(buf, s...)
}

func appendBin(buf []byte, data []byte) []byte {
	n := len(data)
	b := make([]byte, 5)
	b[0] = 0xc6
	binary.BigEndian.PutUint32(b[1:], uint32(n))
	buf = append(buf, b...)
	return append(buf, data...)
}

func appendArrayHeader(buf []byte, n int) []byte {
	b := make([]byte, 5)
	b[0] = 0xdd
	binary.BigEndian.PutUint32(b[1:], uint32(n))
	return append(buf, b...)
}

func appendMapHeader(buf []byte, n int) []byte {
	b := make([]byte, 5)
	b[0] = 0xdf
	binary.BigEndian.PutUint32(b[1:], uint32(n))
	return append(buf, b...)
}

func decodeValue(data []byte) (any, []byte, error) {
	if len(data) == 0 {
		return nil, nil, fmt.Errorf("msgpack: unexpected end of data")
	}
	tag := data[0]
	rest := data[1:]
	switch tag {
	case 0xc0:
		return nil, rest, nil
	case 0xc2:
		return false, rest, nil
	case 0xc3:
		return true, rest, nil
	case 0xd3:
		if len(rest) < 8 {
			return nil, nil, fmt.Errorf("msgpack: truncated int")
		}
		return int64(binary.BigEndian.Uint64(rest[:8])), rest[8:], nil
	case 0xcb:
		if len(rest) < 8 {
			return nil, nil, fmt.Errorf("msgpack: truncated float")
		}
		return math.Float64frombits(binary.BigEndian.Uint64(rest[:8])), rest[8:], nil
	case 0xdb:
		if len(rest) < 4 {
			return nil, nil, fmt.Errorf("msgpack: truncated str header")
		}
		n := binary.BigEndian.Uint32(rest[:4])
		rest = rest[4:]
		if uint32(len(rest)) < n {
			return nil, nil, fmt.Errorf("msgpack: truncated str body")
		}
		return string(rest[:n]), rest[n:], nil
	case 0xc6:
		if len(rest) < 4 {
			return nil, nil, fmt.Errorf("msgpack: truncated bin header")
		}
		n := binary.BigEndian.Uint32(rest[:4])
		rest = rest[4:]
		if uint32(len(rest)) < n {
			return nil, nil, fmt.Errorf("msgpack: truncated bin body")
		}
		out := make([]byte, n)
		copy(out, rest[:n])
		return out, rest[n:], nil
	case 0xdd:
		if len(rest) < 4 {
			return nil, nil, fmt.Errorf("msgpack: truncated array header")
		}
		n := binary.BigEndian.Uint32(rest[:4])
		rest = rest[4:]
		arr := make([]any, n)
		for i := uint32(0); i < n; i++ {
			var v any
			var err error
			v, rest, err = decodeValue(rest)
			if err != nil {
				return nil, nil, err
			}
			arr[i] = v
		}
		return arr, rest, nil
	case 0xdf:
		if len(rest) < 4 {
			return nil, nil, fmt.Errorf("msgpack: truncated map header")
		}
		n := binary.BigEndian.Uint32(rest[:4])
		rest = rest[4:]
		m := make(map[string]any, n)
		for i := uint32(0); i < n; i++ {
			var k, v any
			var err error
			k, rest, err = decodeValue(rest)
			if err != nil {
				return nil, nil, err
			}
			v, rest, err = decodeValue(rest)
			if err != nil {
				return nil, nil, err
			}
			ks, ok := k.(string)
			if !ok {
				return nil, nil, fmt.Errorf("msgpack: map key is not a string")
			}
			m[ks] = v
		}
		return m, rest, nil
	default:
		return nil, nil, fmt.Errorf("msgpack: unsupported tag 0x%x", tag)
	}
}
