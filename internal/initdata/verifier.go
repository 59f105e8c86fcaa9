// Package initdata validates Telegram WebApp init data and guards backend routes with it.
package initdata

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"net/http"
	"net/url"
	"sort"
	"strings"
	"time"

	"rnftgateway/internal/telegram"
)

const webAppDataKey = "WebAppData"

var (
	ErrMissingInitData = errors.New("missing init data")
	ErrMissingHash     = errors.New("init data has no hash")
	ErrStaleInitData   = errors.New("init data expired")
	ErrInvalidHash     = errors.New("invalid init data hash")
)

type Verifier struct {
	BotToken string
	// MaxAge of zero disables the auth_date check.
	MaxAge time.Duration
	Now    func() time.Time
}

// Validate checks the signature and age of raw and returns the decoded blob.
func (v *Verifier) Validate(raw string) (telegram.InitData, error) {
	if strings.TrimSpace(raw) == "" {
		return telegram.InitData{}, ErrMissingInitData
	}
	values, err := url.ParseQuery(raw)
	if err != nil {
		return telegram.InitData{}, err
	}
	hash := values.Get("hash")
	if hash == "" {
		return telegram.InitData{}, ErrMissingHash
	}

	expected := computeHash(v.BotToken, values)
	if !hmac.Equal([]byte(expected), []byte(strings.ToLower(hash))) {
		return telegram.InitData{}, ErrInvalidHash
	}

	data, err := telegram.ParseInitData(raw)
	if err != nil {
		return telegram.InitData{}, err
	}

	if v.MaxAge > 0 {
		now := time.Now()
		if v.Now != nil {
			now = v.Now()
		}
		if data.AuthDate.IsZero() || now.Sub(data.AuthDate) > v.MaxAge {
			return telegram.InitData{}, ErrStaleInitData
		}
	}
	return data, nil
}

type ctxKey struct{}

// Middleware rejects requests whose X-Telegram-Init-Data header does not validate and
// stores the decoded blob on the request context.
func (v *Verifier) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		data, err := v.Validate(r.Header.Get(telegram.HeaderInitData))
		if err != nil {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusUnauthorized)
			_ = json.NewEncoder(w).Encode(map[string]string{"error": err.Error()})
			return
		}
		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), ctxKey{}, data)))
	})
}

// FromContext returns the init data stored by Middleware.
func FromContext(ctx context.Context) (telegram.InitData, bool) {
	data, ok := ctx.Value(ctxKey{}).(telegram.InitData)
	return data, ok
}

// Sign appends a valid hash to values and returns the encoded blob. Used by tests and local tooling.
func Sign(values url.Values, botToken string) string {
	signed := url.Values{}
	for k, vs := range values {
		if k != "hash" {
			signed[k] = vs
		}
	}
	signed.Set("hash", computeHash(botToken, signed))
	return signed.Encode()
}

func computeHash(botToken string, values url.Values) string {
	secret := hmacSHA256([]byte(webAppDataKey), []byte(botToken))
	return hex.EncodeToString(hmacSHA256(secret, []byte(dataCheckString(values))))
}

func dataCheckString(values url.Values) string {
	keys := make([]string, 0, len(values))
	for k := range values {
		if k == "hash" {
			continue
		}
		keys = append(keys, k)
	}
	sort.Strings(keys)

	lines := make([]string, 0, len(keys))
	for _, k := range keys {
		lines = append(lines, k+"="+values.Get(k))
	}
	return strings.Join(lines, "\n")
}

func hmacSHA256(key, data []byte) []byte {
	mac := hmac.New(sha256.New, key)
	mac.Write(data)
	return mac.Sum(nil)
}
