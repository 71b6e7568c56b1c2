package publish

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	natsserver "github.com/nats-io/nats-server/v2/server"
	"github.com/nats-io/nats.go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// startTestNATS starts an embedded NATS server and returns its client URL.
func startTestNATS(t *testing.T) string {
	t.Helper()
	srv, err := natsserver.NewServer(&natsserver.Options{Host: "127.0.0.1", Port: -1})
	require.NoError(t, err)
	srv.Start()
	t.Cleanup(srv.Shutdown)
	require.True(t, srv.ReadyForConnections(5*time.Second), "embedded NATS not ready")
	return srv.ClientURL()
}

func TestNoopPublisher(t *testing.T) {
	var p Publisher = NoopPublisher{}
	assert.NoError(t, p.Publish(context.Background(), TopicGreetingSent, GreetingSent{GroupID: "1"}))
	assert.NoError(t, p.Close())
}

func TestNewNATSPublisher_Unreachable(t *testing.T) {
	_, err := NewNATSPublisher("nats://127.0.0.1:1", "")
	assert.Error(t, err)
}

func TestNATSPublisher_PublishesJSON(t *testing.T) {
	url := startTestNATS(t)

	pub, err := NewNATSPublisher(url, "test.")
	require.NoError(t, err)
	defer pub.Close()
	assert.True(t, pub.Connected())

	sub, err := nats.Connect(url)
	require.NoError(t, err)
	defer sub.Close()

	ch := make(chan *nats.Msg, 1)
	s, err := sub.ChanSubscribe("test.welcome.>", ch)
	require.NoError(t, err)
	defer s.Unsubscribe()
	require.NoError(t, sub.Flush())

	msg := "hi {at}"
	require.NoError(t, pub.Publish(context.Background(), TopicSettingsChanged, SettingsChanged{
		GroupID: "123",
		Command: "set",
		Enabled: true,
		Message: &msg,
	}))
	require.NoError(t, pub.conn.Flush())

	select {
	case m := <-ch:
		assert.Equal(t, "test."+TopicSettingsChanged, m.Subject)
		var got SettingsChanged
		require.NoError(t, json.Unmarshal(m.Data, &got))
		assert.Equal(t, "123", got.GroupID)
		assert.Equal(t, "set", got.Command)
		require.NotNil(t, got.Message)
		assert.Equal(t, msg, *got.Message)
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for message")
	}
}
