// Package settings holds the per-group welcome configuration document and
// the stores that persist it.
package settings

// DefaultMessage is the fallback template of a fresh document.
const DefaultMessage = "欢迎 {at} 加入本群！当前时间：{time}"

// Document is the root configuration: one per process.
type Document struct {
	DefaultMessage string                 `json:"default_message" yaml:"default_message"`
	Groups         map[string]GroupConfig `json:"groups" yaml:"groups"`

	// Extra holds root keys this program does not use.
	Extra map[string]any `json:"-" yaml:"-"`
}

// GroupConfig is the welcome configuration of a single group. A nil
// Message falls back to the document's DefaultMessage.
type GroupConfig struct {
	Enabled bool    `json:"enabled" yaml:"enabled"`
	Message *string `json:"message,omitempty" yaml:"message,omitempty"`

	// Extra holds group keys this program does not use.
	Extra map[string]any `json:"-" yaml:"-"`
}

// NewDocument returns the default document.
func NewDocument() Document {
	return Document{
		DefaultMessage: DefaultMessage,
		Groups:         map[string]GroupConfig{},
	}
}

// normalize fills fields missing from a decoded document.
func (d *Document) normalize() {
	if d.DefaultMessage == "" {
		d.DefaultMessage = DefaultMessage
	}
	if d.Groups == nil {
		d.Groups = map[string]GroupConfig{}
	}
}

// Clone returns a deep copy.
func (d Document) Clone() Document {
	out := Document{
		DefaultMessage: d.DefaultMessage,
		Groups:         make(map[string]GroupConfig, len(d.Groups)),
	}
	for id, g := range d.Groups {
		out.Groups[id] = g.clone()
	}
	out.Extra = cloneExtra(d.Extra)
	return out
}

// Template returns the effective template for groupID: the group's own
// message when set, otherwise DefaultMessage.
func (d Document) Template(groupID string) string {
	if g, ok := d.Groups[groupID]; ok && g.Message != nil {
		return *g.Message
	}
	return d.DefaultMessage
}

// EnabledCount returns how many groups have greeting turned on.
func (d Document) EnabledCount() int {
	n := 0
	for _, g := range d.Groups {
		if g.Enabled {
			n++
		}
	}
	return n
}

func (g GroupConfig) clone() GroupConfig {
	if g.Message != nil {
		msg := *g.Message
		g.Message = &msg
	}
	g.Extra = cloneExtra(g.Extra)
	return g
}

func cloneExtra(m map[string]any) map[string]any {
	if m == nil {
		return nil
	}
	out := make(map[string]any, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

// StringPtr is a helper for building GroupConfig literals.
func StringPtr(s string) *string { return &s }
