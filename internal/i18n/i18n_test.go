package i18n

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestTranslate(t *testing.T) {
	en := Localizer("en")
	assert.Equal(t, "Transaction rejected by user.", T(en, "error.user_rejected"))
	assert.Equal(t, "Claim rewards successful!", TWithData(en, "flow.success", map[string]any{"Action": "Claim rewards"}))

	ru := Localizer("ru-RU")
	assert.Equal(t, "Транзакция отклонена пользователем.", T(ru, "error.user_rejected"))
}

func TestFallbacks(t *testing.T) {
	assert.Equal(t, English, FromTelegram(""))
	assert.Equal(t, English, FromTelegram("de"))
	assert.Equal(t, Russian, FromTelegram("ru"))

	assert.Equal(t, "no.such.id", T(Localizer("en"), "no.such.id"))
	assert.Equal(t, "Claim rewards", T(Localizer("fr"), "action.claim"))
}
