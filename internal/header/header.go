package header

import (
	"fmt"

	"nirsvault/internal/apperr"
)

// Header is an ordered mapping from field name to Value: one parsed file
// header. Readers build it with Set; once a reader returns it, it is only read.
type Header struct {
	keys   []string
	values map[string]Value
}

// Entry is one field of a Header.
type Entry struct {
	Key   string
	Value Value
}

// New returns an empty Header.
func New() *Header {
	return &Header{values: make(map[string]Value)}
}

// Set stores a value. Re-setting a key keeps its original position.
func (h *Header) Set(key string, v Value) {
	if _, ok := h.values[key]; !ok {
		h.keys = append(h.keys, key)
	}
	h.values[key] = v
}

func (h *Header) Get(key string) (Value, bool) {
	v, ok := h.values[key]
	return v, ok
}

// Text returns the scalar stored at key, or "".
func (h *Header) Text(key string) string {
	return h.values[key].Text()
}

func (h *Header) Len() int {
	return len(h.keys)
}

// Keys returns field names in insertion order.
func (h *Header) Keys() []string {
	out := make([]string, len(h.keys))
	copy(out, h.keys)
	return out
}

// Entries returns the fields in insertion order.
func (h *Header) Entries() []Entry {
	out := make([]Entry, len(h.keys))
	for i, k := range h.keys {
		out[i] = Entry{Key: k, Value: h.values[k]}
	}
	return out
}

// Flatten walks nested mappings and returns leaf entries in order, dropping
// the section grouping. A leaf name used by two sections would collapse into
// one key, so it is reported instead.
func (h *Header) Flatten() ([]Entry, error) {
	var out []Entry
	seen := make(map[string]bool)
	if err := h.flatten(&out, seen); err != nil {
		return nil, err
	}
	return out, nil
}

func (h *Header) flatten(out *[]Entry, seen map[string]bool) error {
	for _, k := range h.keys {
		v := h.values[k]
		if m, ok := v.AsMapping(); ok {
			if m == nil {
				continue
			}
			if err := m.flatten(out, seen); err != nil {
				return err
			}
			continue
		}
		if seen[k] {
			return apperr.MalformedHeaderField(k, fmt.Errorf("field %q appears in more than one section", k))
		}
		seen[k] = true
		*out = append(*out, Entry{Key: k, Value: v})
	}
	return nil
}

// FlatMap is Flatten indexed by key.
func (h *Header) FlatMap() (map[string]Value, error) {
	entries, err := h.Flatten()
	if err != nil {
		return nil, err
	}
	m := make(map[string]Value, len(entries))
	for _, e := range entries {
		m[e.Key] = e.Value
	}
	return m, nil
}
