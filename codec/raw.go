package codec

import "fmt"

// Bytes stores []byte and string values verbatim. Any other value type is an
// error. Useful for payloads that are already serialized.
type Bytes struct{}

var _ Codec = Bytes{}

func (Bytes) Encode(v any) ([]byte, error) {
	switch t := v.(type) {
	case []byte:
		return t, nil
	case string:
		return []byte(t), nil
	}
	return nil, fmt.Errorf("codec: Bytes cannot encode %T", v)
}

func (Bytes) Decode(b []byte, dst any) error {
	switch d := dst.(type) {
	case *[]byte:
		*d = append((*d)[:0], b...)
		return nil
	case *string:
		*d = string(b)
		return nil
	case *any:
		*d = append([]byte(nil), b...)
		return nil
	}
	return fmt.Errorf("codec: Bytes cannot decode into %T", dst)
}
