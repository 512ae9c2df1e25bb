package util

import (
	"reflect"
	"strconv"
)

// Key is any caller-supplied cache key: a string or an integer kind.
type Key interface {
	~string |
		~int | ~int8 | ~int16 | ~int32 | ~int64 |
		~uint | ~uint8 | ~uint16 | ~uint32 | ~uint64
}

// KeyString coerces k to its string form. Integers use their decimal form.
func KeyString[K Key](k K) string {
	if s, ok := any(k).(string); ok {
		return s
	}
	v := reflect.ValueOf(k)
	switch v.Kind() {
	case reflect.String:
		return v.String()
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return strconv.FormatInt(v.Int(), 10)
	default:
		return strconv.FormatUint(v.Uint(), 10)
	}
}

// StorageKey maps a raw key to the key actually stored in a medium.
// A prefix ending in an ASCII letter or digit is joined with ".", any other
// prefix (e.g. "app:" or "tmp-") is concatenated as is.
func StorageKey(prefix, raw string) string {
	if prefix == "" {
		return raw
	}
	if alnum(prefix[len(prefix)-1]) {
		return prefix + "." + raw
	}
	return prefix + raw
}

// ScopePrefix is the storage key prefix shared by every key under prefix.
// Empty when prefix is empty (no scoping).
func ScopePrefix(prefix string) string {
	if prefix == "" {
		return ""
	}
	return StorageKey(prefix, "")
}

func alnum(c byte) bool {
	return (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z') || (c >= '0' && c <= '9')
}
