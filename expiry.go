package kvcache

import "time"

type expiryKind uint8

const (
	expDefault expiryKind = iota
	expNever
	expAt
	expIn
)

// Expiry is the expiry argument of Put and Remember. The zero value means
// "not given": the driver's TTL policy decides.
type Expiry struct {
	kind expiryKind
	at   time.Time
	in   time.Duration
}

// Never stores without expiry, regardless of the driver's TTL.
var Never = Expiry{kind: expNever}

// Default defers to the driver's TTL policy. Same as Expiry{}.
var Default = Expiry{}

// At expires the entry at t. The zero time means Never.
func At(t time.Time) Expiry {
	if t.IsZero() {
		return Never
	}
	return Expiry{kind: expAt, at: t}
}

// In expires the entry d after the write, measured on the driver's clock.
// A non-positive d stores an already expired entry.
func In(d time.Duration) Expiry {
	return Expiry{kind: expIn, in: d}
}

// resolveExpiry maps exp to an absolute time; the zero time means never.
func (d *driver) resolveExpiry(exp Expiry) time.Time {
	var t time.Time
	switch exp.kind {
	case expNever:
		return time.Time{}
	case expAt:
		t = exp.at
	case expIn:
		t = d.now().Add(exp.in)
	default:
		switch {
		case d.ttlFunc != nil:
			t = d.ttlFunc()
		case d.ttl > 0:
			t = d.now().Add(d.ttl)
		default:
			return time.Time{}
		}
	}
	if t.IsZero() {
		return t
	}
	return d.adjustExpiry(t)
}
