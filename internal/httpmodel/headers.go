package httpmodel

import "strings"

// Headers is a case-insensitive HTTP header map. Keys are stored
// lowercased; Get and Set both normalize the key first so callers never
// need to think about header-name casing.
type Headers map[string]string

// NewHeaders builds a Headers map from a plain map, lowercasing keys.
func NewHeaders(src map[string]string) Headers {
	h := make(Headers, len(src))
	for k, v := range src {
		h[strings.ToLower(k)] = v
	}
	return h
}

// Get returns the value for key, case-insensitively.
func (h Headers) Get(key string) string {
	if h == nil {
		return ""
	}
	return h[strings.ToLower(key)]
}

// Set stores value under the lowercased key.
func (h Headers) Set(key, value string) {
	h[strings.ToLower(key)] = value
}

// Clone returns a deep copy.
func (h Headers) Clone() Headers {
	cp := make(Headers, len(h))
	for k, v := range h {
		cp[k] = v
	}
	return cp
}

// Equal reports whether two header maps hold the same key/value pairs.
func (h Headers) Equal(other Headers) bool {
	if len(h) != len(other) {
		return false
	}
	for k, v := range h {
		if ov, ok := other[k]; !ok || ov != v {
			return false
		}
	}
	return true
}
