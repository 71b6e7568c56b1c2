package notice

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/p-blackswan/welcome-agent/internal/event"
)

const joinRecord = `{"time":1700000000,"self_id":10000,"post_type":"notice","notice_type":"group_increase","sub_type":"approve","group_id":123456,"operator_id":0,"user_id":20001}`

func wsEvent(body string) event.Event {
	return event.NewRawEvent(event.SourceOneBotWS, event.TypeNotice, json.RawMessage(body), nil)
}

func webhookEvent(t *testing.T, body string) event.Event {
	t.Helper()
	ev, err := event.NewEvent(event.SourceWebhook, event.TypeNotice, event.WebhookPayload{
		Type: event.TypeNotice,
		Body: json.RawMessage(body),
	}, nil)
	require.NoError(t, err)
	return ev
}

func newTestClassifier(now time.Time) *Classifier {
	c := NewClassifier(zerolog.Nop())
	c.now = func() time.Time { return now }
	return c
}

func TestClassify_PayloadShape(t *testing.T) {
	c := newTestClassifier(time.Now())
	occ, ok := c.Classify(wsEvent(joinRecord))
	require.True(t, ok)
	assert.Equal(t, JoinedOccurrence{
		GroupID:   "123456",
		UserID:    "20001",
		SelfID:    "10000",
		Timestamp: time.Unix(1700000000, 0),
	}, occ)
}

func TestClassify_EnvelopeShape(t *testing.T) {
	c := newTestClassifier(time.Now())
	occ, ok := c.Classify(webhookEvent(t, joinRecord))
	require.True(t, ok)
	assert.Equal(t, "123456", occ.GroupID)
	assert.Equal(t, "20001", occ.UserID)
}

func TestClassify_NoRecord(t *testing.T) {
	c := newTestClassifier(time.Now())
	for _, body := range []string{`"text"`, `[]`, `{"type":"alert"}`, `not json`, `null`} {
		_, ok := c.Classify(wsEvent(body))
		assert.False(t, ok, "body %s", body)
	}
}

func TestClassify_RejectsOtherKinds(t *testing.T) {
	c := newTestClassifier(time.Now())
	bodies := []string{
		`{"post_type":"notice","notice_type":"group_decrease","group_id":1,"user_id":2,"self_id":3}`,
		`{"post_type":"message","notice_type":"group_increase","group_id":1,"user_id":2,"self_id":3}`,
		`{"post_type":"notice","group_id":1,"user_id":2,"self_id":3}`,
		`{"post_type":"meta_event","meta_event_type":"heartbeat","self_id":3}`,
	}
	for _, body := range bodies {
		_, ok := c.Classify(wsEvent(body))
		assert.False(t, ok, "body %s", body)
	}
}

func TestClassify_RejectsSelfJoin(t *testing.T) {
	c := newTestClassifier(time.Now())
	_, ok := c.Classify(wsEvent(`{"post_type":"notice","notice_type":"group_increase","group_id":1,"user_id":10000,"self_id":10000}`))
	assert.False(t, ok)

	// Same id in different JSON types is still the bot.
	_, ok = c.Classify(wsEvent(`{"post_type":"notice","notice_type":"group_increase","group_id":1,"user_id":"10000","self_id":10000}`))
	assert.False(t, ok)
}

func TestClassify_RejectsMissingIDs(t *testing.T) {
	c := newTestClassifier(time.Now())
	_, ok := c.Classify(wsEvent(`{"post_type":"notice","notice_type":"group_increase","user_id":2,"self_id":3}`))
	assert.False(t, ok)
	_, ok = c.Classify(wsEvent(`{"post_type":"notice","notice_type":"group_increase","group_id":1,"self_id":3}`))
	assert.False(t, ok)
}

func TestClassify_TimestampDefaults(t *testing.T) {
	now := time.Date(2024, 3, 1, 8, 0, 0, 0, time.UTC)
	c := newTestClassifier(now)

	occ, ok := c.Classify(wsEvent(`{"post_type":"notice","notice_type":"group_increase","group_id":1,"user_id":2,"self_id":3}`))
	require.True(t, ok)
	assert.Equal(t, now, occ.Timestamp)

	occ, ok = c.Classify(wsEvent(`{"post_type":"notice","notice_type":"group_increase","group_id":1,"user_id":2,"self_id":3,"time":"yesterday"}`))
	require.True(t, ok)
	assert.Equal(t, now, occ.Timestamp)

	occ, ok = c.Classify(wsEvent(`{"post_type":"notice","notice_type":"group_increase","group_id":1,"user_id":2,"self_id":3,"time":1700000000.5}`))
	require.True(t, ok)
	assert.Equal(t, time.Unix(1700000000, 500000000), occ.Timestamp)
}

// stubSource lets tests control the extraction order.
type stubSource struct {
	name string
	rec  Record
}

func (s stubSource) Name() string { return s.name }

func (s stubSource) RawNotice(event.Event) (Record, bool) { return s.rec, s.rec != nil }

func TestClassifier_SourcePrecedence(t *testing.T) {
	first := stubSource{name: "first", rec: Record{"post_type": "notice", "notice_type": "group_increase", "group_id": "A", "user_id": "1", "self_id": "9"}}
	second := stubSource{name: "second", rec: Record{"post_type": "notice", "notice_type": "group_increase", "group_id": "B", "user_id": "1", "self_id": "9"}}

	c := NewClassifier(zerolog.Nop(), first, second)
	occ, ok := c.Classify(event.Event{})
	require.True(t, ok)
	assert.Equal(t, "A", occ.GroupID)

	c = NewClassifier(zerolog.Nop(), stubSource{name: "empty"}, second)
	occ, ok = c.Classify(event.Event{})
	require.True(t, ok)
	assert.Equal(t, "B", occ.GroupID)
}

func TestRecord_String(t *testing.T) {
	rec, ok := DecodeRecord([]byte(`{"post_type":"notice","a":1234567890123,"b":"x","c":null,"d":true,"e":{"x":1}}`))
	require.True(t, ok)
	assert.Equal(t, "1234567890123", rec.String("a"))
	assert.Equal(t, "x", rec.String("b"))
	assert.Equal(t, "", rec.String("c"))
	assert.Equal(t, "true", rec.String("d"))
	assert.Equal(t, "", rec.String("e"))
	assert.Equal(t, "", rec.String("missing"))
	assert.Equal(t, "42", Record{"f": float64(42)}.String("f"))
}
