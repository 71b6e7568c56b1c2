// Package notice decides which inbound events are "member joined a group"
// occurrences.
package notice

import (
	"bytes"
	"encoding/json"
	"strconv"
)

// Record is a raw OneBot report, decoded with numbers kept as json.Number.
type Record map[string]any

// DecodeRecord decodes raw into a Record. ok is false unless raw is a JSON
// object carrying post_type.
func DecodeRecord(raw []byte) (Record, bool) {
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()

	var r Record
	if err := dec.Decode(&r); err != nil || r == nil {
		return nil, false
	}
	if _, ok := r["post_type"]; !ok {
		return nil, false
	}
	return r, true
}

// String returns the field as a string; numbers are written without
// exponent, missing or null fields give "".
func (r Record) String(key string) string {
	switch v := r[key].(type) {
	case nil:
		return ""
	case string:
		return v
	case json.Number:
		return v.String()
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64)
	case int64:
		return strconv.FormatInt(v, 10)
	case int:
		return strconv.Itoa(v)
	case bool:
		return strconv.FormatBool(v)
	default:
		return ""
	}
}

// Seconds returns a numeric field as Unix seconds.
func (r Record) Seconds(key string) (float64, bool) {
	switch v := r[key].(type) {
	case json.Number:
		f, err := v.Float64()
		return f, err == nil
	case float64:
		return v, true
	case int64:
		return float64(v), true
	case int:
		return float64(v), true
	default:
		return 0, false
	}
}
