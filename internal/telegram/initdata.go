// Package telegram models the mini app host: the launch init data blob and the bridge calls
// (haptics, close) the app makes back into the chat client.
package telegram

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"strconv"
	"time"
)

type User struct {
	ID           int64  `json:"id"`
	FirstName    string `json:"first_name"`
	LastName     string `json:"last_name,omitempty"`
	Username     string `json:"username,omitempty"`
	LanguageCode string `json:"language_code,omitempty"`
	IsPremium    bool   `json:"is_premium,omitempty"`
}

// InitData is the decoded launch blob. Raw keeps the original string, which is what the backend
// re-validates.
type InitData struct {
	Raw        string
	QueryID    string
	User       *User
	AuthDate   time.Time
	StartParam string
	Hash       string
}

// HeaderInitData carries the raw init data on backend requests that re-validate it.
const HeaderInitData = "X-Telegram-Init-Data"

var ErrEmptyInitData = errors.New("init data is empty")

// ParseInitData decodes the blob without checking its signature.
func ParseInitData(raw string) (InitData, error) {
	if raw == "" {
		return InitData{}, ErrEmptyInitData
	}
	values, err := url.ParseQuery(raw)
	if err != nil {
		return InitData{}, fmt.Errorf("parse init data: %w", err)
	}

	data := InitData{
		Raw:        raw,
		QueryID:    values.Get("query_id"),
		StartParam: values.Get("start_param"),
		Hash:       values.Get("hash"),
	}
	if userJSON := values.Get("user"); userJSON != "" {
		var u User
		if err := json.Unmarshal([]byte(userJSON), &u); err != nil {
			return InitData{}, fmt.Errorf("parse init data user: %w", err)
		}
		data.User = &u
	}
	if ts := values.Get("auth_date"); ts != "" {
		sec, err := strconv.ParseInt(ts, 10, 64)
		if err != nil {
			return InitData{}, fmt.Errorf("parse auth_date: %w", err)
		}
		data.AuthDate = time.Unix(sec, 0)
	}
	return data, nil
}

// UserID is the decimal user id, or "" when the blob carried no user.
func (d InitData) UserID() string {
	if d.User == nil || d.User.ID == 0 {
		return ""
	}
	return strconv.FormatInt(d.User.ID, 10)
}

func (d InitData) LanguageCode() string {
	if d.User == nil {
		return ""
	}
	return d.User.LanguageCode
}
