package onebot

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	werrors "github.com/p-blackswan/welcome-agent/internal/errors"
	"github.com/p-blackswan/welcome-agent/internal/render"
)

type fakeCaller struct {
	action string
	params any
	data   json.RawMessage
	err    error
}

func (f *fakeCaller) Call(_ context.Context, action string, params any) (json.RawMessage, error) {
	f.action = action
	f.params = params
	return f.data, f.err
}

func TestEncodeSegments(t *testing.T) {
	segs := EncodeSegments([]render.Segment{render.Text("hi "), render.Mention("20001")})
	raw, err := json.Marshal(segs)
	require.NoError(t, err)
	assert.JSONEq(t, `[{"type":"text","data":{"text":"hi "}},{"type":"at","data":{"qq":"20001"}}]`, string(raw))
}

func TestUnescapeCQ(t *testing.T) {
	assert.Equal(t, "[a,b] & c", UnescapeCQ("&#91;a&#44;b&#93; &amp; c"))
	assert.Equal(t, "&#91;", UnescapeCQ("&amp;#91;"))
	assert.Equal(t, "plain", UnescapeCQ("plain"))
}

func TestAPI_SendGroupMessage(t *testing.T) {
	fc := &fakeCaller{}
	api := NewAPI(fc)

	err := api.SendGroupMessage(context.Background(), "123456", []render.Segment{render.Mention("1")})
	require.NoError(t, err)
	assert.Equal(t, ActionSendGroupMsg, fc.action)

	raw, _ := json.Marshal(fc.params)
	assert.JSONEq(t, `{"group_id":123456,"message":[{"type":"at","data":{"qq":"1"}}]}`, string(raw))
}

func TestAPI_RejectsNonNumericIDs(t *testing.T) {
	fc := &fakeCaller{}
	api := NewAPI(fc)

	err := api.SendGroupMessage(context.Background(), "abc", nil)
	assert.ErrorIs(t, err, werrors.ErrInvalidInput)
	err = api.SendPrivateMessage(context.Background(), "", nil)
	assert.ErrorIs(t, err, werrors.ErrInvalidInput)
	assert.Empty(t, fc.action)
}

func TestAPI_LoginInfo(t *testing.T) {
	fc := &fakeCaller{data: json.RawMessage(`{"user_id":10000,"nickname":"bot"}`)}
	info, err := NewAPI(fc).LoginInfo(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(10000), info.UserID)
	assert.Equal(t, "bot", info.Nickname)
}

func TestActionResponse_Result(t *testing.T) {
	_, err := actionResponse{Status: "ok"}.result("x")
	assert.NoError(t, err)
	_, err = actionResponse{Status: "async", Retcode: 1}.result("x")
	assert.NoError(t, err)

	_, err = actionResponse{Status: "failed", Retcode: 100, Wording: "group not found"}.result(ActionSendGroupMsg)
	var apiErr *werrors.APIError
	require.True(t, errors.As(err, &apiErr))
	assert.Equal(t, 100, apiErr.Code)
	assert.Contains(t, apiErr.Message, "group not found")
	assert.False(t, werrors.IsRetryable(err))

	_, err = actionResponse{Status: "ok", Retcode: 102, Message: "bad params"}.result(ActionSendGroupMsg)
	require.True(t, errors.As(err, &apiErr))
	assert.Equal(t, 102, apiErr.Code)
	assert.Contains(t, apiErr.Message, "bad params")

	_, err = actionResponse{Status: "async", Retcode: 100}.result("x")
	assert.Error(t, err)
}

func TestHTTPClient_Call(t *testing.T) {
	var gotAuth, gotPath string
	var gotBody map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		gotPath = r.URL.Path
		_ = json.NewDecoder(r.Body).Decode(&gotBody)
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"status":"ok","retcode":0,"data":{"message_id":7}}`))
	}))
	defer srv.Close()

	c := NewHTTPClient(HTTPConfig{BaseURL: srv.URL + "/", AccessToken: "tok"})
	err := NewAPI(c).SendGroupMessage(context.Background(), "42", []render.Segment{render.Text("hi")})
	require.NoError(t, err)

	assert.Equal(t, "Bearer tok", gotAuth)
	assert.Equal(t, "/send_group_msg", gotPath)
	assert.Equal(t, float64(42), gotBody["group_id"])
}

func TestHTTPClient_Errors(t *testing.T) {
	t.Run("http status", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			http.Error(w, "busy", http.StatusServiceUnavailable)
		}))
		defer srv.Close()

		_, err := NewHTTPClient(HTTPConfig{BaseURL: srv.URL}).Call(context.Background(), "x", nil)
		require.Error(t, err)
		assert.True(t, werrors.IsRetryable(err))
	})

	t.Run("failed retcode", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			_, _ = w.Write([]byte(`{"status":"failed","retcode":102,"message":"bad"}`))
		}))
		defer srv.Close()

		_, err := NewHTTPClient(HTTPConfig{BaseURL: srv.URL}).Call(context.Background(), "x", nil)
		var apiErr *werrors.APIError
		require.True(t, errors.As(err, &apiErr))
		assert.Equal(t, 102, apiErr.Code)
	})

	t.Run("unreachable", func(t *testing.T) {
		_, err := NewHTTPClient(HTTPConfig{BaseURL: "http://127.0.0.1:1"}).Call(context.Background(), "x", nil)
		assert.ErrorIs(t, err, werrors.ErrUnavailable)
	})
}
