package codec

import "encoding/json"

// JSON is the default codec. Stored integers are plain decimal text, which is
// what native INCRBY-style counters operate on.
type JSON struct{}

var _ Codec = JSON{}

func (JSON) Encode(v any) ([]byte, error)   { return json.Marshal(v) }
func (JSON) Decode(b []byte, dst any) error { return json.Unmarshal(b, dst) }
