// Package onebot talks to a OneBot v11 implementation over a forward
// WebSocket or the HTTP API.
package onebot

import (
	"strings"

	"github.com/p-blackswan/welcome-agent/internal/render"
)

// Segment is a OneBot message segment on the wire.
type Segment struct {
	Type string            `json:"type"`
	Data map[string]string `json:"data"`
}

// EncodeSegments converts rendered segments into wire segments.
func EncodeSegments(segments []render.Segment) []Segment {
	out := make([]Segment, 0, len(segments))
	for _, seg := range segments {
		switch seg.Kind {
		case render.KindMention:
			out = append(out, Segment{Type: "at", Data: map[string]string{"qq": seg.UserID}})
		default:
			out = append(out, Segment{Type: "text", Data: map[string]string{"text": seg.Text}})
		}
	}
	return out
}

var cqUnescaper = strings.NewReplacer(
	"&#91;", "[",
	"&#93;", "]",
	"&#44;", ",",
	"&amp;", "&",
)

// UnescapeCQ decodes the CQ-code escapes used in raw_message.
func UnescapeCQ(s string) string {
	return cqUnescaper.Replace(s)
}
