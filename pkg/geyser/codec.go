package geyser

import (
	"fmt"
)

// Frame is one protobuf-encoded message as it travels on the wire.
type Frame struct {
	Data []byte
}

// Codec passes Frames through gRPC untouched. Encoding and decoding of the few
// Geyser messages used here happens in this package with protowire, so no
// generated stubs are needed.
//
// It registers as "proto" so the content-type matches what Geyser servers expect.
type Codec struct{}

// Marshal implements encoding.Codec.
func (Codec) Marshal(v any) ([]byte, error) {
	f, ok := v.(*Frame)
	if !ok {
		return nil, fmt.Errorf("geyser codec: cannot marshal %T", v)
	}
	return f.Data, nil
}

// Unmarshal implements encoding.Codec. The data is copied because gRPC may reuse its buffer.
func (Codec) Unmarshal(data []byte, v any) error {
	f, ok := v.(*Frame)
	if !ok {
		return fmt.Errorf("geyser codec: cannot unmarshal into %T", v)
	}
	f.Data = append([]byte(nil), data...)
	return nil
}

// Name implements encoding.Codec.
func (Codec) Name() string { return "proto" }
