package util

import "testing"

type userID int64

type slug string

func TestKeyString(t *testing.T) {
	if got := KeyString("foo"); got != "foo" {
		t.Fatalf("got %q", got)
	}
	if got := KeyString(42); got != "42" {
		t.Fatalf("got %q", got)
	}
	if got := KeyString(int8(-3)); got != "-3" {
		t.Fatalf("got %q", got)
	}
	if got := KeyString(uint64(18446744073709551615)); got != "18446744073709551615" {
		t.Fatalf("got %q", got)
	}
	if got := KeyString(userID(7)); got != "7" {
		t.Fatalf("named int: got %q", got)
	}
	if got := KeyString(slug("a-b")); got != "a-b" {
		t.Fatalf("named string: got %q", got)
	}
}

func TestStorageKey(t *testing.T) {
	cases := []struct {
		prefix, raw, want string
	}{
		{"", "k", "k"},
		{"ns", "k", "ns.k"},
		{"NS1", "k", "NS1.k"},
		{"app:", "k", "app:k"},
		{"tmp-", "1", "tmp-1"},
		{"ns", "", "ns."},
	}
	for _, tc := range cases {
		if got := StorageKey(tc.prefix, tc.raw); got != tc.want {
			t.Fatalf("StorageKey(%q,%q)=%q want %q", tc.prefix, tc.raw, got, tc.want)
		}
	}
}

func TestScopePrefix(t *testing.T) {
	if ScopePrefix("") != "" {
		t.Fatalf("empty prefix must not scope")
	}
	if ScopePrefix("ns") != "ns." {
		t.Fatalf("got %q", ScopePrefix("ns"))
	}
	if ScopePrefix("app:") != "app:" {
		t.Fatalf("got %q", ScopePrefix("app:"))
	}
}
