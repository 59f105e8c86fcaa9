// Package notify tells users in their Telegram chat that a transaction was recorded.
package notify

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/go-telegram/bot"

	"rnftgateway/internal/chain"
	"rnftgateway/internal/txlog"
)

type Notifier interface {
	TxLogged(ctx context.Context, rec txlog.Record) error
}

// Nop drops every notification.
type Nop struct{}

func (Nop) TxLogged(context.Context, txlog.Record) error { return nil }

// TelegramNotifier messages the user's private chat through the bot API.
type TelegramNotifier struct {
	bot     *bot.Bot
	network chain.Network
}

// NewTelegramNotifier does not call getMe, so construction never touches the network.
func NewTelegramNotifier(token string, network chain.Network, opts ...bot.Option) (*TelegramNotifier, error) {
	opts = append([]bot.Option{bot.WithSkipGetMe()}, opts...)
	b, err := bot.New(token, opts...)
	if err != nil {
		return nil, fmt.Errorf("create telegram bot: %w", err)
	}
	return &TelegramNotifier{bot: b, network: network}, nil
}

func (n *TelegramNotifier) TxLogged(ctx context.Context, rec txlog.Record) error {
	chatID, err := strconv.ParseInt(rec.TelegramUserID, 10, 64)
	if err != nil {
		return fmt.Errorf("telegram user id %q is not a chat id", rec.TelegramUserID)
	}
	_, err = n.bot.SendMessage(ctx, &bot.SendMessageParams{
		ChatID: chatID,
		Text:   message(rec, n.network),
	})
	if err != nil {
		return fmt.Errorf("send telegram message: %w", err)
	}
	return nil
}

func message(rec txlog.Record, network chain.Network) string {
	var sb strings.Builder
	switch rec.TxType {
	case "mint":
		sb.WriteString("Your rNFT mint was submitted.")
	case "claim":
		sb.WriteString("Your reward claim was submitted.")
	default:
		sb.WriteString("Your transaction was submitted.")
	}
	if url := network.TxURL(rec.TxHash); url != "" {
		sb.WriteString("\n" + url)
	} else {
		sb.WriteString("\n" + rec.TxHash)
	}
	return sb.String()
}
