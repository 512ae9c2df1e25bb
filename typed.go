package kvcache

import (
	"context"
	"reflect"
)

// Fallback produces a value for a miss. It is only invoked on a miss, never
// eagerly. Wrap literals with Value.
type Fallback[T any] func(ctx context.Context) (T, error)

// Value wraps a literal as a Fallback.
func Value[T any](v T) Fallback[T] {
	return func(context.Context) (T, error) { return v, nil }
}

// Get returns the value stored under key. ok is false when the key is absent,
// expired or holds a value that cannot be decoded as T.
func Get[T any, K Key](ctx context.Context, d Driver, key K) (v T, ok bool, err error) {
	ok, err = d.Get(ctx, KeyOf(key), &v)
	if err != nil || !ok {
		var zero T
		return zero, false, err
	}
	return v, true, nil
}

// GetOr returns the value stored under key, or resolves fallback on a miss.
// A nil fallback yields the zero value.
func GetOr[T any, K Key](ctx context.Context, d Driver, key K, fallback Fallback[T]) (T, error) {
	v, ok, err := Get[T](ctx, d, key)
	if err != nil || ok {
		return v, err
	}
	if fallback == nil {
		var zero T
		return zero, nil
	}
	return fallback(ctx)
}

// Put stores value and returns it unchanged.
func Put[T any, K Key](ctx context.Context, d Driver, key K, value T, exp Expiry) (T, error) {
	if err := d.Put(ctx, KeyOf(key), value, exp); err != nil {
		var zero T
		return zero, err
	}
	return value, nil
}

// Remember returns the cached value, or invokes produce once, stores its
// result with exp and returns it. Networked stores keep one connection open
// for the whole read-produce-write sequence.
func Remember[T any, K Key](ctx context.Context, d Driver, key K, produce Fallback[T], exp Expiry) (T, error) {
	var out T
	var p func(ctx context.Context) (any, error)
	if produce != nil {
		p = func(ctx context.Context) (any, error) { return produce(ctx) }
	}
	if err := d.Remember(ctx, KeyOf(key), &out, p, exp); err != nil {
		var zero T
		return zero, err
	}
	return out, nil
}

// GetMany returns the hits by key (order-agnostic) and the missing keys in
// request order.
func GetMany[T any, K Key](ctx context.Context, d Driver, keys []K) (map[K]T, []K, error) {
	strs := make([]string, len(keys))
	for i, k := range keys {
		strs[i] = KeyOf(k)
	}
	vals := make([]T, len(keys))
	found, err := d.GetMany(ctx, strs, func(i int) any { return &vals[i] })
	if err != nil {
		return nil, nil, err
	}
	out := make(map[K]T, len(keys))
	var missing []K
	for i, k := range keys {
		if found[i] {
			out[k] = vals[i]
		} else {
			missing = append(missing, k)
		}
	}
	return out, missing, nil
}

// setDirect stores v into *dst when v's type is assignable to dst's element.
func setDirect(dst, v any) bool {
	rv := reflect.ValueOf(dst)
	if rv.Kind() != reflect.Pointer || rv.IsNil() {
		return false
	}
	elem := rv.Elem()
	if v == nil {
		switch elem.Kind() {
		case reflect.Interface, reflect.Pointer, reflect.Map, reflect.Slice:
			elem.Set(reflect.Zero(elem.Type()))
			return true
		}
		return false
	}
	vv := reflect.ValueOf(v)
	if !vv.Type().AssignableTo(elem.Type()) {
		return false
	}
	elem.Set(vv)
	return true
}
