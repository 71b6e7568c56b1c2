package welcome

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	werrors "github.com/p-blackswan/welcome-agent/internal/errors"
	"github.com/p-blackswan/welcome-agent/internal/event"
	"github.com/p-blackswan/welcome-agent/internal/metrics"
	"github.com/p-blackswan/welcome-agent/internal/notice"
	"github.com/p-blackswan/welcome-agent/internal/publish"
	"github.com/p-blackswan/welcome-agent/internal/render"
	"github.com/p-blackswan/welcome-agent/internal/retry"
	"github.com/p-blackswan/welcome-agent/internal/settings"
)

var fixedNow = time.Date(2024, 5, 1, 8, 30, 0, 0, time.UTC)

type memStore struct {
	mu    sync.Mutex
	doc   *settings.Document
	saves int
}

func (m *memStore) Load(context.Context) (settings.Document, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.doc == nil {
		return settings.Document{}, werrors.ErrNotFound
	}
	return m.doc.Clone(), nil
}

func (m *memStore) Save(_ context.Context, doc settings.Document) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := doc.Clone()
	m.doc = &cp
	m.saves++
	return nil
}

func (m *memStore) Close() error { return nil }

type fakeSender struct {
	mu    sync.Mutex
	errs  []error
	calls int
	sent  [][]render.Segment
}

func (f *fakeSender) SendGroupMessage(_ context.Context, _ string, segs []render.Segment) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if len(f.errs) > 0 {
		err := f.errs[0]
		f.errs = f.errs[1:]
		if err != nil {
			return err
		}
	}
	f.sent = append(f.sent, segs)
	return nil
}

type recordingPublisher struct {
	mu     sync.Mutex
	topics []string
	events []any
}

func (p *recordingPublisher) Publish(_ context.Context, topic string, ev any) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.topics = append(p.topics, topic)
	p.events = append(p.events, ev)
	return nil
}

func (p *recordingPublisher) Close() error { return nil }

func newHolder(t *testing.T, doc *settings.Document) (*settings.Holder, *memStore) {
	t.Helper()
	store := &memStore{doc: doc}
	return settings.Open(context.Background(), store, zerolog.Nop()), store
}

func testOptions(pub publish.Publisher) Options {
	return Options{
		Location:  time.UTC,
		Publisher: pub,
		Metrics:   metrics.New(),
		Now:       func() time.Time { return fixedNow },
		Retry: retry.Config{
			MaxAttempts: 3,
			BaseDelay:   time.Millisecond,
			MaxDelay:    5 * time.Millisecond,
		},
	}
}

func docWith(groups map[string]settings.GroupConfig) *settings.Document {
	doc := settings.NewDocument()
	doc.DefaultMessage = "welcome {at}"
	for id, g := range groups {
		doc.Groups[id] = g
	}
	return &doc
}

func joined(groupID string) notice.JoinedOccurrence {
	return notice.JoinedOccurrence{
		GroupID:   groupID,
		UserID:    "20001",
		SelfID:    "10000",
		Timestamp: time.Unix(1700000000, 0),
	}
}

func TestWelcomer_EnabledGroupCustomTemplate(t *testing.T) {
	holder, _ := newHolder(t, docWith(map[string]settings.GroupConfig{
		"123456": {Enabled: true, Message: settings.StringPtr("欢迎 {at} 于 {time} 加入，你的号码是 {user_id}")},
	}))
	sender := &fakeSender{}
	pub := &recordingPublisher{}
	w := NewWelcomer(holder, sender, testOptions(pub), zerolog.Nop())

	g := w.Handle(context.Background(), joined("123456"))
	require.NotNil(t, g)

	want := []render.Segment{
		render.Text("欢迎 "),
		render.Mention("20001"),
		render.Text(" 于 2023-11-14 22:13:20 加入，你的号码是 20001"),
	}
	assert.Equal(t, want, g.Segments)
	require.Len(t, sender.sent, 1)
	assert.Equal(t, want, sender.sent[0])
	assert.Equal(t, []string{publish.TopicGreetingSent}, pub.topics)
}

func TestWelcomer_DefaultTemplateWhenMessageUnset(t *testing.T) {
	holder, _ := newHolder(t, docWith(map[string]settings.GroupConfig{
		"1": {Enabled: true},
	}))
	sender := &fakeSender{}
	w := NewWelcomer(holder, sender, testOptions(nil), zerolog.Nop())

	g := w.Handle(context.Background(), joined("1"))
	require.NotNil(t, g)
	assert.Equal(t, []render.Segment{render.Text("welcome "), render.Mention("20001")}, g.Segments)
}

func TestWelcomer_SameOccurrenceSendsTwice(t *testing.T) {
	holder, _ := newHolder(t, docWith(map[string]settings.GroupConfig{
		"1": {Enabled: true},
	}))
	sender := &fakeSender{}
	pub := &recordingPublisher{}
	w := NewWelcomer(holder, sender, testOptions(pub), zerolog.Nop())

	occ := joined("1")
	require.NotNil(t, w.Handle(context.Background(), occ))
	require.NotNil(t, w.Handle(context.Background(), occ))

	assert.Equal(t, 2, sender.calls)
	require.Len(t, sender.sent, 2)
	assert.Equal(t, sender.sent[0], sender.sent[1])
	assert.Equal(t, []string{publish.TopicGreetingSent, publish.TopicGreetingSent}, pub.topics)
}

func TestWelcomer_SkipsDisabledAndUnknownGroups(t *testing.T) {
	holder, _ := newHolder(t, docWith(map[string]settings.GroupConfig{
		"off": {Enabled: false, Message: settings.StringPtr("hi")},
	}))
	sender := &fakeSender{}
	w := NewWelcomer(holder, sender, testOptions(nil), zerolog.Nop())

	assert.Nil(t, w.Handle(context.Background(), joined("off")))
	assert.Nil(t, w.Handle(context.Background(), joined("unknown")))
	assert.Zero(t, sender.calls)
}

func TestWelcomer_EmptyRenderIsNotSent(t *testing.T) {
	holder, _ := newHolder(t, docWith(map[string]settings.GroupConfig{
		"1": {Enabled: true, Message: settings.StringPtr("")},
	}))
	sender := &fakeSender{}
	w := NewWelcomer(holder, sender, testOptions(nil), zerolog.Nop())

	assert.Nil(t, w.Handle(context.Background(), joined("1")))
	assert.Zero(t, sender.calls)
}

func TestWelcomer_DropPolicy(t *testing.T) {
	holder, _ := newHolder(t, docWith(map[string]settings.GroupConfig{"1": {Enabled: true}}))
	sender := &fakeSender{errs: []error{werrors.ErrUnavailable}}
	pub := &recordingPublisher{}
	w := NewWelcomer(holder, sender, testOptions(pub), zerolog.Nop())

	assert.Nil(t, w.Handle(context.Background(), joined("1")))
	assert.Equal(t, 1, sender.calls)
	require.Len(t, pub.events, 1)
	failed, ok := pub.events[0].(publish.GreetingFailed)
	require.True(t, ok)
	assert.Equal(t, "1", failed.GroupID)
	assert.NotEmpty(t, failed.Error)
}

func TestWelcomer_RetryPolicy(t *testing.T) {
	holder, _ := newHolder(t, docWith(map[string]settings.GroupConfig{"1": {Enabled: true}}))

	t.Run("recovers from transient error", func(t *testing.T) {
		sender := &fakeSender{errs: []error{werrors.ErrNotConnected, nil}}
		opts := testOptions(nil)
		opts.Policy = PolicyRetry
		w := NewWelcomer(holder, sender, opts, zerolog.Nop())

		assert.NotNil(t, w.Handle(context.Background(), joined("1")))
		assert.Equal(t, 2, sender.calls)
	})

	t.Run("gives up after max attempts", func(t *testing.T) {
		sender := &fakeSender{errs: []error{werrors.ErrTimeout, werrors.ErrTimeout, werrors.ErrTimeout}}
		opts := testOptions(nil)
		opts.Policy = PolicyRetry
		w := NewWelcomer(holder, sender, opts, zerolog.Nop())

		assert.Nil(t, w.Handle(context.Background(), joined("1")))
		assert.Equal(t, 3, sender.calls)
	})

	t.Run("does not retry permanent errors", func(t *testing.T) {
		sender := &fakeSender{errs: []error{errors.New("group muted")}}
		opts := testOptions(nil)
		opts.Policy = PolicyRetry
		w := NewWelcomer(holder, sender, opts, zerolog.Nop())

		assert.Nil(t, w.Handle(context.Background(), joined("1")))
		assert.Equal(t, 1, sender.calls)
	})
}

func TestParseSendPolicy(t *testing.T) {
	p, err := ParseSendPolicy("")
	require.NoError(t, err)
	assert.Equal(t, PolicyDrop, p)

	p, err = ParseSendPolicy("retry")
	require.NoError(t, err)
	assert.Equal(t, PolicyRetry, p)

	_, err = ParseSendPolicy("escalate")
	assert.Error(t, err)
}

func TestFormatTime(t *testing.T) {
	now := func() time.Time { return fixedNow }
	shanghai := time.FixedZone("CST", 8*3600)

	assert.Equal(t, "2023-11-15 06:13:20", FormatTime(time.Unix(1700000000, 0), shanghai, now))
	assert.Equal(t, "2024-05-01 08:30:00", FormatTime(time.Time{}, time.UTC, now))
	assert.Equal(t, "2024-05-01 08:30:00", FormatTime(time.Date(10000, 1, 1, 0, 0, 0, 0, time.UTC), time.UTC, now))
}

func TestNoticeHandler(t *testing.T) {
	holder, _ := newHolder(t, docWith(map[string]settings.GroupConfig{"123456": {Enabled: true}}))
	sender := &fakeSender{}
	w := NewWelcomer(holder, sender, testOptions(nil), zerolog.Nop())
	h := NewNoticeHandler(notice.NewClassifier(zerolog.Nop()), w, metrics.New())
	assert.Equal(t, HandlerID, h.ID())

	join := `{"time":1700000000,"self_id":10000,"post_type":"notice","notice_type":"group_increase","group_id":123456,"user_id":20001}`
	ev := event.NewRawEvent(event.SourceOneBotWS, event.TypeNotice, json.RawMessage(join), nil)
	require.NoError(t, h.Handle(context.Background(), ev))
	require.Len(t, sender.sent, 1)

	msg := `{"post_type":"message","message_type":"group","group_id":123456,"user_id":20001,"raw_message":"hi"}`
	ev = event.NewRawEvent(event.SourceOneBotWS, event.TypeMessage, json.RawMessage(msg), nil)
	require.NoError(t, h.Handle(context.Background(), ev))
	assert.Len(t, sender.sent, 1)
}
