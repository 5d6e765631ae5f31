package http

import (
	"strings"
)

const setCookie = "set-cookie"

// Header is the header map of a request.
//
// Keys are folded to lower case. Repeated fields are merged with ", "
// except Set-Cookie, whose values are kept as an ordered list.
// Iteration follows the order in which keys first appeared.
type Header struct {
	keys    []string
	values  map[string]string
	cookies []string
}

func normalizeKey(name string) string {
	return strings.ToLower(strings.TrimSpace(name))
}

func (h *Header) init() {
	if h.values == nil {
		h.values = make(map[string]string)
	}
}

// Add appends value under name, merging it into an existing value.
//
// Reference: https://datatracker.ietf.org/doc/html/rfc9110#section-5.3
func (h *Header) Add(name, value string) {
	h.init()
	key := normalizeKey(name)

	if key == setCookie {
		if len(h.cookies) == 0 {
			h.keys = append(h.keys, key)
		}
		h.cookies = append(h.cookies, value)
		return
	}

	prev, ok := h.values[key]
	if !ok {
		h.keys = append(h.keys, key)
		h.values[key] = value
		return
	}
	h.values[key] = prev + ", " + value
}

// Set replaces every value stored under name.
func (h *Header) Set(name, value string) {
	h.Del(name)
	h.Add(name, value)
}

// Get returns the value of name, or an empty string.
// For Set-Cookie, the first value is returned. Use [Header.Values] for all.
func (h *Header) Get(name string) string {
	v, _ := h.Lookup(name)
	return v
}

func (h *Header) Lookup(name string) (value string, ok bool) {
	key := normalizeKey(name)
	if key == setCookie {
		if len(h.cookies) == 0 {
			return "", false
		}
		return h.cookies[0], true
	}

	value, ok = h.values[key]
	return value, ok
}

// Values returns all the values of name.
func (h *Header) Values(name string) []string {
	key := normalizeKey(name)
	if key == setCookie {
		return append([]string(nil), h.cookies...)
	}

	if v, ok := h.values[key]; ok {
		return []string{v}
	}
	return nil
}

func (h *Header) Has(name string) bool {
	_, ok := h.Lookup(name)
	return ok
}

func (h *Header) Del(name string) {
	key := normalizeKey(name)

	found := false
	if key == setCookie {
		found = len(h.cookies) > 0
		h.cookies = nil
	} else if _, ok := h.values[key]; ok {
		found = true
		delete(h.values, key)
	}

	if !found {
		return
	}

	for idx, k := range h.keys {
		if k == key {
			h.keys = append(h.keys[:idx], h.keys[idx+1:]...)
			break
		}
	}
}

// Len returns the number of distinct keys.
func (h *Header) Len() int { return len(h.keys) }

// Keys returns the lower-cased keys in first-seen order.
func (h *Header) Keys() []string { return append([]string(nil), h.keys...) }

// Each calls fn for every field in first-seen order.
// Set-Cookie is expanded into one call per value.
func (h *Header) Each(fn func(name, value string)) {
	for _, key := range h.keys {
		if key == setCookie {
			for _, v := range h.cookies {
				fn(key, v)
			}
			continue
		}
		fn(key, h.values[key])
	}
}

func (h *Header) Clone() Header {
	clone := Header{
		keys:    append([]string(nil), h.keys...),
		values:  make(map[string]string, len(h.values)),
		cookies: append([]string(nil), h.cookies...),
	}
	for k, v := range h.values {
		clone.values[k] = v
	}
	return clone
}

// Field is a single header line of a response.
type Field struct{ Name, Value string }

func (f Field) Text() []byte {
	b := make([]byte, 0, len(f.Name)+len(f.Value)+2)
	b = append(b, f.Name...)
	b = append(b, ':', ' ')
	b = append(b, f.Value...)
	return b
}

// ResponseHeader is an insertion ordered list of response fields.
// Lookups are case-insensitive. Names keep the case they were set with.
type ResponseHeader struct{ fields []Field }

func NewResponseHeader(fields ...Field) ResponseHeader {
	return ResponseHeader{fields: append([]Field(nil), fields...)}
}

// Set replaces the first field with the same name in place
// and removes the others. If there's none, the field is appended.
func (h *ResponseHeader) Set(name, value string) {
	idx := h.index(name)
	if idx < 0 {
		h.fields = append(h.fields, Field{Name: name, Value: value})
		return
	}

	h.fields[idx].Value = value
	h.delFrom(name, idx+1)
}

// Add appends a field even if the name exists. It's used for Set-Cookie.
func (h *ResponseHeader) Add(name, value string) {
	h.fields = append(h.fields, Field{Name: name, Value: value})
}

// SetDefault sets the field only if it's not set yet.
func (h *ResponseHeader) SetDefault(name, value string) {
	if !h.Has(name) {
		h.Add(name, value)
	}
}

func (h *ResponseHeader) Get(name string) string {
	v, _ := h.Lookup(name)
	return v
}

func (h *ResponseHeader) Lookup(name string) (string, bool) {
	idx := h.index(name)
	if idx < 0 {
		return "", false
	}
	return h.fields[idx].Value, true
}

func (h *ResponseHeader) Has(name string) bool { return h.index(name) >= 0 }

func (h *ResponseHeader) Del(name string) { h.delFrom(name, 0) }

func (h *ResponseHeader) Len() int { return len(h.fields) }

// Fields returns a copy of the fields in insertion order.
func (h *ResponseHeader) Fields() []Field { return append([]Field(nil), h.fields...) }

func (h *ResponseHeader) Clone() ResponseHeader { return NewResponseHeader(h.fields...) }

func (h *ResponseHeader) index(name string) int {
	for idx, f := range h.fields {
		if strings.EqualFold(f.Name, name) {
			return idx
		}
	}
	return -1
}

func (h *ResponseHeader) delFrom(name string, from int) {
	kept := h.fields[:from]
	for _, f := range h.fields[from:] {
		if !strings.EqualFold(f.Name, name) {
			kept = append(kept, f)
		}
	}
	h.fields = kept
}
