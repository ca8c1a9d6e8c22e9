package querycache

import (
	"encoding/json"
	"strings"
)

// Key identifies a cache entry: a resource kind followed by its parameters.
//
// Keys compare part by part, so ("a:b") and ("a","b") never collide.
type Key []string

// NewKey builds a Key from parts.
func NewKey(parts ...string) Key {
	return append(Key(nil), parts...)
}

// With returns a copy of k extended by parts.
func (k Key) With(parts ...string) Key {
	out := make(Key, 0, len(k)+len(parts))
	out = append(out, k...)
	return append(out, parts...)
}

// HasPrefix reports whether prefix matches the leading parts of k.
func (k Key) HasPrefix(prefix Key) bool {
	if len(prefix) > len(k) {
		return false
	}
	for i := range prefix {
		if k[i] != prefix[i] {
			return false
		}
	}
	return true
}

// Equal reports whether k and other have identical parts.
func (k Key) Equal(other Key) bool {
	return len(k) == len(other) && k.HasPrefix(other)
}

// String encodes k as a JSON array, which is the map key used internally.
func (k Key) String() string {
	if k == nil {
		k = Key{}
	}
	b, err := json.Marshal([]string(k))
	if err != nil {
		return "[" + strings.Join(k, ",") + "]"
	}
	return string(b)
}
