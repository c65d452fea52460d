package codec

import (
	"encoding/json"
)

// JSON is the standard-library JSON codec.
//
// Extension parameters and manifests are map-like structures for which
// JSON is stable and portable; large numeric arrays go through the binary
// block format instead and never pass through a Codec.
type JSON struct{}

// Marshal encodes the value to JSON.
func (JSON) Marshal(v any) ([]byte, error) { return json.Marshal(v) }

// Unmarshal decodes the JSON data into v.
func (JSON) Unmarshal(data []byte, v any) error { return json.Unmarshal(data, v) }

// Name returns the unique name of the codec ("json").
func (JSON) Name() string { return "json" }
