package wire

import (
	"bytes"
	"encoding/base64"
	"encoding/json"
	"time"
)

// Document is the JSON form of a cache entry used by text media
// (storage, file, cookie):
//
//	{"expires": <epoch millis | null>, "key": <raw key>, "value": <any>}
//
// Payloads are inlined only when encoding/json writes them back byte for
// byte (compact, no HTML-escaped characters). Anything else, including the
// output of binary codecs, is stored as a base64 string and flagged with
// "binary": true.
type Document struct {
	Expires *int64          `json:"expires"`
	Key     string          `json:"key"`
	Value   json.RawMessage `json:"value"`
	Binary  bool            `json:"binary,omitempty"`
}

func NewDocument(rawKey string, expires time.Time, payload []byte) Document {
	d := Document{Key: rawKey}
	if !expires.IsZero() {
		ms := expires.UnixMilli()
		d.Expires = &ms
	}
	if inlinable(payload) {
		d.Value = json.RawMessage(payload)
	} else {
		enc, _ := json.Marshal(base64.StdEncoding.EncodeToString(payload))
		d.Value = enc
		d.Binary = true
	}
	return d
}

// inlinable reports whether payload survives being embedded as a
// json.RawMessage, which Marshal compacts and HTML-escapes.
func inlinable(payload []byte) bool {
	if !json.Valid(payload) {
		return false
	}
	b, err := json.Marshal(json.RawMessage(payload))
	return err == nil && bytes.Equal(b, payload)
}

// ExpiresAt returns the zero time for documents that never expire.
func (d Document) ExpiresAt() time.Time {
	if d.Expires == nil {
		return time.Time{}
	}
	return time.UnixMilli(*d.Expires)
}

// Expired reports whether d is no longer visible at now.
func (d Document) Expired(now time.Time) bool {
	return d.Expires != nil && *d.Expires <= now.UnixMilli()
}

// Payload returns the codec bytes carried by d.
func (d Document) Payload() ([]byte, error) {
	if !d.Binary {
		if len(d.Value) == 0 {
			return []byte("null"), nil
		}
		return d.Value, nil
	}
	var s string
	if err := json.Unmarshal(d.Value, &s); err != nil {
		return nil, ErrCorrupt
	}
	b, err := base64.StdEncoding.DecodeString(s)
	if err != nil {
		return nil, ErrCorrupt
	}
	return b, nil
}

// ParseDocument decodes one serialized document.
func ParseDocument(s string) (Document, error) {
	var d Document
	if err := json.Unmarshal([]byte(s), &d); err != nil {
		return Document{}, ErrCorrupt
	}
	return d, nil
}

// String serializes d. Marshal cannot fail for a Document built by
// NewDocument or ParseDocument.
func (d Document) String() string {
	b, _ := json.Marshal(d)
	return string(b)
}
