// Package render turns a welcome template into an ordered list of message
// segments. Recognized placeholders are {time}, {user_id} and {at}.
package render

import "strings"

// Placeholders recognized in templates.
const (
	PlaceholderTime    = "{time}"
	PlaceholderUserID  = "{user_id}"
	PlaceholderMention = "{at}"
)

// Kind tags a Segment.
type Kind string

const (
	KindText    Kind = "text"
	KindMention Kind = "mention"
)

// Segment is one unit of an outbound message: either plain text or a
// mention of a user.
type Segment struct {
	Kind Kind `json:"kind"`
	// Text is set for KindText.
	Text string `json:"text,omitempty"`
	// UserID is set for KindMention.
	UserID string `json:"user_id,omitempty"`
}

// Text builds a text segment.
func Text(s string) Segment { return Segment{Kind: KindText, Text: s} }

// Mention builds a mention segment.
func Mention(userID string) Segment { return Segment{Kind: KindMention, UserID: userID} }

// Bindings are the runtime values substituted into a template.
type Bindings struct {
	Time   string
	UserID string
}

// Render substitutes {time} and {user_id}, then splits on {at}. Every {at}
// becomes a Mention of b.UserID; empty text between markers is skipped.
// There is no escaping mechanism.
func Render(template string, b Bindings) []Segment {
	s := strings.ReplaceAll(template, PlaceholderTime, b.Time)
	s = strings.ReplaceAll(s, PlaceholderUserID, b.UserID)

	parts := strings.Split(s, PlaceholderMention)
	segments := make([]Segment, 0, 2*len(parts)-1)
	for i, part := range parts {
		if part != "" {
			segments = append(segments, Text(part))
		}
		if i < len(parts)-1 {
			segments = append(segments, Mention(b.UserID))
		}
	}
	return segments
}

// PlainText flattens segments into a single string, writing mentions as
// "@<user id>". Used for logs and previews.
func PlainText(segments []Segment) string {
	var sb strings.Builder
	for _, seg := range segments {
		switch seg.Kind {
		case KindText:
			sb.WriteString(seg.Text)
		case KindMention:
			sb.WriteString("@")
			sb.WriteString(seg.UserID)
		}
	}
	return sb.String()
}
