package onebot

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	werrors "github.com/p-blackswan/welcome-agent/internal/errors"
	"github.com/p-blackswan/welcome-agent/internal/render"
)

// Action names.
const (
	ActionSendGroupMsg   = "send_group_msg"
	ActionSendPrivateMsg = "send_private_msg"
	ActionGetLoginInfo   = "get_login_info"
)

type actionRequest struct {
	Action string `json:"action"`
	Params any    `json:"params"`
	Echo   string `json:"echo,omitempty"`
}

type actionResponse struct {
	Status  string          `json:"status"`
	Retcode int             `json:"retcode"`
	Data    json.RawMessage `json:"data"`
	Echo    json.RawMessage `json:"echo,omitempty"`
	Message string          `json:"message,omitempty"`
	Wording string          `json:"wording,omitempty"`
}

// Retcodes with a fixed meaning in OneBot v11.
const (
	RetcodeOK    = 0
	RetcodeAsync = 1
)

// result turns a response into data or a retcode *errors.APIError. Success is
// status "ok" with retcode 0, or status "async" (queued by the
// implementation, retcode 1). Anything else is a failure.
func (r actionResponse) result(action string) (json.RawMessage, error) {
	switch {
	case r.Status == "ok" && r.Retcode == RetcodeOK:
		return r.Data, nil
	case r.Status == "async" && (r.Retcode == RetcodeAsync || r.Retcode == RetcodeOK):
		return r.Data, nil
	}
	msg := r.Wording
	if msg == "" {
		msg = r.Message
	}
	if msg == "" {
		msg = "status " + r.Status
	}
	return nil, werrors.NewRetcodeError(action, r.Retcode, msg)
}

// Caller executes a OneBot action and returns its data.
type Caller interface {
	Call(ctx context.Context, action string, params any) (json.RawMessage, error)
}

// API provides typed actions on top of a Caller.
type API struct {
	caller Caller
}

// NewAPI wraps c.
func NewAPI(c Caller) *API {
	return &API{caller: c}
}

type sendGroupParams struct {
	GroupID int64     `json:"group_id"`
	Message []Segment `json:"message"`
}

type sendPrivateParams struct {
	UserID  int64     `json:"user_id"`
	Message []Segment `json:"message"`
}

// LoginInfo is the bot account.
type LoginInfo struct {
	UserID   int64  `json:"user_id"`
	Nickname string `json:"nickname"`
}

// SendGroupMessage sends segments to groupID.
func (a *API) SendGroupMessage(ctx context.Context, groupID string, segments []render.Segment) error {
	id, err := parseID("group_id", groupID)
	if err != nil {
		return err
	}
	_, err = a.caller.Call(ctx, ActionSendGroupMsg, sendGroupParams{GroupID: id, Message: EncodeSegments(segments)})
	return err
}

// SendPrivateMessage sends segments to userID.
func (a *API) SendPrivateMessage(ctx context.Context, userID string, segments []render.Segment) error {
	id, err := parseID("user_id", userID)
	if err != nil {
		return err
	}
	_, err = a.caller.Call(ctx, ActionSendPrivateMsg, sendPrivateParams{UserID: id, Message: EncodeSegments(segments)})
	return err
}

// LoginInfo returns the logged-in bot account.
func (a *API) LoginInfo(ctx context.Context) (LoginInfo, error) {
	data, err := a.caller.Call(ctx, ActionGetLoginInfo, struct{}{})
	if err != nil {
		return LoginInfo{}, err
	}
	var info LoginInfo
	if err := json.Unmarshal(data, &info); err != nil {
		return LoginInfo{}, fmt.Errorf("decoding login info: %w", err)
	}
	return info, nil
}

func parseID(field, s string) (int64, error) {
	id, err := strconv.ParseInt(strings.TrimSpace(s), 10, 64)
	if err != nil {
		return 0, fmt.Errorf("%w: %s %q is not numeric", werrors.ErrInvalidInput, field, s)
	}
	return id, nil
}
