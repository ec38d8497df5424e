// Package codec implements the pluggable serialization backends
// pattern endpoints use before handing bytes to the ring buffer. The
// ring itself never depends on this package — raw bytes bypass it
// entirely via the endpoints' SendBytes/RecvBytes paths.
package codec

import (
	"encoding/gob"

	"github.com/adred-codev/shmcomm/internal/shmerr"
)

// Method names recognized on the wire; both ends of a channel must
// agree out of band, the protocol does not negotiate it.
const (
	PickleEquivalent = "pickle-equivalent"
	Msgpack          = "msgpack"
)

// Codec encodes and decodes Go values to and from the byte payloads
// carried in ring slots.
type Codec interface {
	Encode(v any) ([]byte, error)
	Decode(data []byte, out any) error
}

// ForMethod resolves a method name to its Codec implementation.
func ForMethod(method string) (Codec, error) {
	switch method {
	case PickleEquivalent:
		return gobCodec{}, nil
	case Msgpack:
		return msgpackCodec{}, nil
	default:
		return nil, &shmerr.ArgumentError{Msg: "unknown serialization method " + method}
	}
}

// RegisterType registers an application-defined type for use with the
// pickle-equivalent (gob) codec, analogous to the source's requirement
// that pickled classes be importable on both ends. Call it once at
// startup for every concrete type an endpoint will Send.
func RegisterType(v any) { gob.Register(v) }
