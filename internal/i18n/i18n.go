// Package i18n localizes the diagnostics and status lines shown to the user.
package i18n

import (
	"embed"
	"encoding/json"

	"github.com/nicksnyder/go-i18n/v2/i18n"
	"golang.org/x/text/language"
)

//go:embed locales/*.json
var localeFS embed.FS

var bundle *i18n.Bundle

var (
	English = language.English
	Russian = language.Russian
)

func init() {
	bundle = i18n.NewBundle(English)
	bundle.RegisterUnmarshalFunc("json", json.Unmarshal)
	for _, f := range []string{"en.json", "ru.json"} {
		_, _ = bundle.LoadMessageFileFS(localeFS, "locales/"+f)
	}
}

// Localizer prefers lang and falls back to English.
func Localizer(lang string) *i18n.Localizer {
	return i18n.NewLocalizer(bundle, FromTelegram(lang).String(), English.String())
}

// T returns the message ID itself when no translation exists.
func T(loc *i18n.Localizer, messageID string) string {
	msg, err := loc.Localize(&i18n.LocalizeConfig{MessageID: messageID})
	if err != nil {
		return messageID
	}
	return msg
}

func TWithData(loc *i18n.Localizer, messageID string, data map[string]any) string {
	msg, err := loc.Localize(&i18n.LocalizeConfig{
		MessageID:    messageID,
		TemplateData: data,
	})
	if err != nil {
		return messageID
	}
	return msg
}

// FromTelegram maps a Telegram language_code onto a supported tag.
func FromTelegram(code string) language.Tag {
	tag, err := language.Parse(code)
	if err != nil {
		return English
	}
	base, _ := tag.Base()
	if base.String() == "ru" {
		return Russian
	}
	return English
}
