package command

import (
	"regexp"
	"strings"

	"github.com/p-blackswan/welcome-agent/internal/notice"
	"github.com/p-blackswan/welcome-agent/internal/onebot"
)

// Message is a chat message reported by OneBot.
type Message struct {
	// GroupID is empty for private messages.
	GroupID string
	UserID  string
	SelfID  string
	Text    string
}

// MessageFromRecord extracts a message from a OneBot record. ok is false
// for anything but group and private messages.
func MessageFromRecord(rec notice.Record) (Message, bool) {
	if rec.String("post_type") != "message" {
		return Message{}, false
	}

	msg := Message{
		UserID: rec.String("user_id"),
		SelfID: rec.String("self_id"),
		Text:   strings.TrimSpace(messageText(rec)),
	}
	switch rec.String("message_type") {
	case "group":
		msg.GroupID = rec.String("group_id")
		if msg.GroupID == "" {
			return Message{}, false
		}
	case "private":
	default:
		return Message{}, false
	}
	if msg.UserID == "" {
		return Message{}, false
	}
	return msg, true
}

var cqCode = regexp.MustCompile(`\[CQ:[^\]]*\]`)

// messageText joins the text segments of an array-format message. Other
// formats fall back to raw_message with CQ codes removed and escapes
// decoded.
func messageText(rec notice.Record) string {
	if segs, ok := rec["message"].([]any); ok {
		var sb strings.Builder
		for _, item := range segs {
			seg, ok := item.(map[string]any)
			if !ok || seg["type"] != "text" {
				continue
			}
			data, _ := seg["data"].(map[string]any)
			if text, ok := data["text"].(string); ok {
				sb.WriteString(text)
			}
		}
		return sb.String()
	}

	raw := rec.String("raw_message")
	if raw == "" {
		raw, _ = rec["message"].(string)
	}
	return onebot.UnescapeCQ(cqCode.ReplaceAllString(raw, ""))
}
