package settings

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

// Keys of the stored document. Any other key is kept in Extra and written
// back unchanged.
const (
	keyDefaultMessage = "default_message"
	keyGroups         = "groups"
	keyEnabled        = "enabled"
	keyMessage        = "message"
)

func (d Document) MarshalJSON() ([]byte, error) { return marshalJSON(d.toMap()) }

func (d *Document) UnmarshalJSON(data []byte) error {
	m, err := unmarshalJSONMap(data)
	if err != nil {
		return err
	}
	*d = documentFromMap(m)
	return nil
}

func (d Document) MarshalYAML() (any, error) { return d.toMap(), nil }

func (d *Document) UnmarshalYAML(node *yaml.Node) error {
	var m map[string]any
	if err := node.Decode(&m); err != nil {
		return err
	}
	*d = documentFromMap(m)
	return nil
}

func (g GroupConfig) MarshalJSON() ([]byte, error) { return marshalJSON(g.toMap()) }

func (g *GroupConfig) UnmarshalJSON(data []byte) error {
	m, err := unmarshalJSONMap(data)
	if err != nil {
		return err
	}
	*g = groupFromMap(m)
	return nil
}

func (g GroupConfig) MarshalYAML() (any, error) { return g.toMap(), nil }

func (g *GroupConfig) UnmarshalYAML(node *yaml.Node) error {
	var m map[string]any
	if err := node.Decode(&m); err != nil {
		return err
	}
	*g = groupFromMap(m)
	return nil
}

func (d Document) toMap() map[string]any {
	out := make(map[string]any, len(d.Extra)+2)
	for k, v := range d.Extra {
		out[k] = v
	}
	groups := make(map[string]any, len(d.Groups))
	for id, g := range d.Groups {
		groups[id] = g.toMap()
	}
	out[keyDefaultMessage] = d.DefaultMessage
	out[keyGroups] = groups
	return out
}

func (g GroupConfig) toMap() map[string]any {
	out := make(map[string]any, len(g.Extra)+2)
	for k, v := range g.Extra {
		out[k] = v
	}
	out[keyEnabled] = g.Enabled
	if g.Message != nil {
		out[keyMessage] = *g.Message
	}
	return out
}

// documentFromMap never fails: fields of the wrong shape fall back to
// their defaults, and a group that is not a mapping is skipped.
func documentFromMap(m map[string]any) Document {
	var doc Document
	for k, v := range m {
		switch k {
		case keyDefaultMessage:
			if s, ok := scalarString(v); ok {
				doc.DefaultMessage = s
			}
		case keyGroups:
			groups, ok := asMap(v)
			if !ok {
				continue
			}
			doc.Groups = make(map[string]GroupConfig, len(groups))
			for id, raw := range groups {
				gm, ok := asMap(raw)
				if !ok {
					continue
				}
				doc.Groups[id] = groupFromMap(gm)
			}
		default:
			if doc.Extra == nil {
				doc.Extra = map[string]any{}
			}
			doc.Extra[k] = v
		}
	}
	return doc
}

func groupFromMap(m map[string]any) GroupConfig {
	var g GroupConfig
	for k, v := range m {
		switch k {
		case keyEnabled:
			g.Enabled = truthy(v)
		case keyMessage:
			if s, ok := scalarString(v); ok {
				g.Message = StringPtr(s)
			}
		default:
			if g.Extra == nil {
				g.Extra = map[string]any{}
			}
			g.Extra[k] = v
		}
	}
	return g
}

// truthy interprets hand-edited flags: numbers are true unless zero,
// strings unless empty or a recognized false word.
func truthy(v any) bool {
	switch t := v.(type) {
	case nil:
		return false
	case bool:
		return t
	case json.Number:
		f, err := t.Float64()
		return err != nil || f != 0
	case int:
		return t != 0
	case int64:
		return t != 0
	case uint64:
		return t != 0
	case float64:
		return t != 0
	case string:
		switch strings.ToLower(strings.TrimSpace(t)) {
		case "", "0", "false", "no", "off", "n", "f":
			return false
		}
		return true
	case map[string]any:
		return len(t) > 0
	case map[any]any:
		return len(t) > 0
	case []any:
		return len(t) > 0
	}
	return true
}

// scalarString accepts strings and renders other scalars as text. Null and
// collections are rejected.
func scalarString(v any) (string, bool) {
	switch t := v.(type) {
	case string:
		return t, true
	case json.Number:
		return t.String(), true
	case bool:
		return strconv.FormatBool(t), true
	case int, int64, uint64, float64:
		return fmt.Sprint(t), true
	}
	return "", false
}

// asMap normalizes JSON and YAML mappings. YAML gives map[any]any when a
// key is not a string, e.g. an unquoted numeric group id.
func asMap(v any) (map[string]any, bool) {
	switch t := v.(type) {
	case map[string]any:
		return t, true
	case map[any]any:
		out := make(map[string]any, len(t))
		for k, val := range t {
			out[fmt.Sprint(k)] = val
		}
		return out, true
	}
	return nil, false
}

func unmarshalJSONMap(data []byte) (map[string]any, error) {
	var m map[string]any
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	if err := dec.Decode(&m); err != nil {
		return nil, err
	}
	return m, nil
}

func marshalJSON(v any) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(v); err != nil {
		return nil, err
	}
	return bytes.TrimRight(buf.Bytes(), "\n"), nil
}
