package telegram

import (
	"io"
	"net/url"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sampleInitData() string {
	v := url.Values{}
	v.Set("query_id", "AAH")
	v.Set("user", `{"id":42,"first_name":"Ada","username":"ada","language_code":"ru"}`)
	v.Set("auth_date", "1700000000")
	v.Set("start_param", "action=claim")
	v.Set("hash", "abc")
	return v.Encode()
}

func TestParseInitData(t *testing.T) {
	data, err := ParseInitData(sampleInitData())
	require.NoError(t, err)

	assert.Equal(t, "AAH", data.QueryID)
	assert.Equal(t, "42", data.UserID())
	assert.Equal(t, "ru", data.LanguageCode())
	assert.Equal(t, "action=claim", data.StartParam)
	assert.Equal(t, time.Unix(1_700_000_000, 0), data.AuthDate)
}

func TestParseInitDataErrors(t *testing.T) {
	_, err := ParseInitData("")
	assert.ErrorIs(t, err, ErrEmptyInitData)

	_, err = ParseInitData("user=%7Bnot-json")
	assert.Error(t, err)

	_, err = ParseInitData("auth_date=yesterday")
	assert.Error(t, err)
}

func TestConsoleHostClosesOnce(t *testing.T) {
	logger := logrus.New()
	logger.SetOutput(io.Discard)

	closed := 0
	host := NewConsoleHost(sampleInitData(), ThemeParams{BgColor: "#fff"}, func() { closed++ }, logger)

	assert.Equal(t, "action=claim", host.StartParam())
	assert.Equal(t, "#fff", host.ThemeParams().BgColor)
	host.NotifyHaptic(HapticSuccess)
	host.Close()
	host.Close()
	assert.Equal(t, 1, closed)
}

func TestConsoleHostKeepsUnparseableBlob(t *testing.T) {
	logger := logrus.New()
	logger.SetOutput(io.Discard)

	host := NewConsoleHost("user=%7Bbroken", ThemeParams{}, nil, logger)
	assert.Equal(t, "user=%7Bbroken", host.InitData())
	assert.Empty(t, host.StartParam())
}
