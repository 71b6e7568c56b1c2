package render

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestRender_MentionOnly(t *testing.T) {
	got := Render("{at}", Bindings{UserID: "42"})
	assert.Equal(t, []Segment{Mention("42")}, got)
}

func TestRender_MixedSegments(t *testing.T) {
	got := Render("Hi {at}, at {time}", Bindings{Time: "2024-01-01 00:00:00", UserID: "7"})
	assert.Equal(t, []Segment{
		Text("Hi "),
		Mention("7"),
		Text(", at 2024-01-01 00:00:00"),
	}, got)
}

func TestRender_NoPlaceholders(t *testing.T) {
	got := Render("hello everyone", Bindings{Time: "t", UserID: "1"})
	assert.Equal(t, []Segment{Text("hello everyone")}, got)
}

func TestRender_EmptyTemplate(t *testing.T) {
	assert.Empty(t, Render("", Bindings{Time: "t", UserID: "1"}))
}

func TestRender_SubstitutesEverywhere(t *testing.T) {
	got := Render("{user_id}/{user_id} {time}{time}", Bindings{Time: "T", UserID: "9"})
	assert.Equal(t, []Segment{Text("9/9 TT")}, got)
}

func TestRender_SubstitutionToEmpty(t *testing.T) {
	assert.Empty(t, Render("{time}", Bindings{}))
}

func TestRender_AdjacentMentions(t *testing.T) {
	got := Render("{at}{at}x{at}", Bindings{UserID: "5"})
	assert.Equal(t, []Segment{Mention("5"), Mention("5"), Text("x"), Mention("5")}, got)
}

func TestRender_MentionCountMatchesMarkers(t *testing.T) {
	templates := []string{
		"a{at}b{at}c",
		"{at} welcome {at} to the group {at}",
		"no markers",
		"{at}{at}{at}{at}",
		"trailing {at}",
	}
	for _, tpl := range templates {
		segs := Render(tpl, Bindings{Time: "now", UserID: "u"})
		mentions := 0
		for _, s := range segs {
			if s.Kind == KindMention {
				mentions++
				assert.Equal(t, "u", s.UserID)
			} else {
				assert.NotEmpty(t, s.Text, "template %q", tpl)
			}
		}
		assert.Equal(t, strings.Count(tpl, PlaceholderMention), mentions, "template %q", tpl)
	}
}

func TestRender_DefaultMessage(t *testing.T) {
	got := Render("欢迎 {at} 加入本群！当前时间：{time}", Bindings{Time: "2024-05-01 12:00:00", UserID: "10001"})
	assert.Equal(t, []Segment{
		Text("欢迎 "),
		Mention("10001"),
		Text(" 加入本群！当前时间：2024-05-01 12:00:00"),
	}, got)
}

func TestPlainText(t *testing.T) {
	segs := []Segment{Text("hi "), Mention("3"), Text("!")}
	assert.Equal(t, "hi @3!", PlainText(segs))
}
