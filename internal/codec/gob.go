package codec

import (
	"bytes"
	"encoding/gob"

	"github.com/adred-codev/shmcomm/internal/shmerr"
)

// gobCodec is the "pickle-equivalent" method: encoding/gob is the
// closest stdlib analogue to Python's pickle — a reflection-driven
// codec for arbitrary registered struct/map/slice graphs. No
// third-party object-graph codec with that property appears in the
// example corpus, so the standard library is used directly here.
type gobCodec struct{}

func init() {
	// Encode/Decode always go through a *any pointer (see below), which
	// makes every payload an interface value on the wire; gob requires
	// the concrete dynamic types flowing through that interface to be
	// registered up front.
	gob.Register(map[string]any{})
	gob.Register([]any{})
	gob.Register("")
	gob.Register(int64(0))
	gob.Register(float64(0))
	gob.Register(true)
	gob.Register([]byte(nil))
}

func (gobCodec) Encode(v any) ([]byte, error) {
	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(&v); err != nil {
		return nil, &shmerr.SerializationError{Method: PickleEquivalent, Err: err}
	}
	return buf.Bytes(), nil
}

func (gobCodec) Decode(data []byte, out any) error {
	ptr, ok := out.(*any)
	if !ok {
		if err := gob.NewDecoder(bytes.NewReader(data)).Decode(out); err != nil {
			return &shmerr.SerializationError{Method: PickleEquivalent, Err: err}
		}
		return nil
	}
	if err := gob.NewDecoder(bytes.NewReader(data)).Decode(ptr); err != nil {
		return &shmerr.SerializationError{Method: PickleEquivalent, Err: err}
	}
	return nil
}
