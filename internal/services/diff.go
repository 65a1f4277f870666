package services

import (
	"bytes"
	"encoding/json"
	"sort"
)

// bookkeeping fields every client rewrites on each save
var ignoredFields = map[string]struct{}{
	"version":    {},
	"updatedAt":  {},
	"createdAt":  {},
	"updated_at": {},
	"created_at": {},
}

// ConflictingFields returns the sorted top-level keys whose values differ
// between the two payloads. A key missing on one side counts as differing.
// Payloads that are absent or not JSON objects are compared as empty
// objects.
func ConflictingFields(local, server json.RawMessage) []string {
	l := decodeObject(local)
	s := decodeObject(server)

	fields := make([]string, 0)
	seen := make(map[string]struct{}, len(l)+len(s))
	for _, obj := range []map[string]json.RawMessage{l, s} {
		for key := range obj {
			if _, skip := ignoredFields[key]; skip {
				continue
			}
			if _, done := seen[key]; done {
				continue
			}
			seen[key] = struct{}{}

			lv, inLocal := l[key]
			sv, inServer := s[key]
			if inLocal != inServer || !bytes.Equal(canonical(lv), canonical(sv)) {
				fields = append(fields, key)
			}
		}
	}

	sort.Strings(fields)
	return fields
}

func decodeObject(raw json.RawMessage) map[string]json.RawMessage {
	var obj map[string]json.RawMessage
	if len(raw) == 0 || json.Unmarshal(raw, &obj) != nil {
		return map[string]json.RawMessage{}
	}
	return obj
}

// canonical re-encodes a JSON value so that key order and whitespace do
// not register as differences. Numbers keep their literal form.
func canonical(raw json.RawMessage) []byte {
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()

	var v any
	if err := dec.Decode(&v); err != nil {
		return raw
	}
	out, err := json.Marshal(v)
	if err != nil {
		return raw
	}
	return out
}
