package codec

// Codec encodes values to []byte for storage and decodes them back into a
// destination pointer. Drivers are not generic over the value type, so a
// codec must handle any value its caller passes.
type Codec interface {
	Encode(v any) ([]byte, error)
	Decode(b []byte, dst any) error
}
