package api

import (
	"context"
	"errors"
	"fmt"
	"log"

	"github.com/abelzeko/aguasur/internal/alerts"
	"github.com/abelzeko/aguasur/internal/entities"
	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
)

// Sender is the subset of the Telegram client used to push messages.
type Sender interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
}

// TelegramNotifier pushes alerts to a fixed set of operator chats.
type TelegramNotifier struct {
	sender  Sender
	chatIDs []int64
}

// NewTelegramNotifier creates a notifier sending to every chat in chatIDs.
func NewTelegramNotifier(sender Sender, chatIDs []int64) *TelegramNotifier {
	return &TelegramNotifier{sender: sender, chatIDs: chatIDs}
}

// NotifyAlert sends the alert to every chat. It tries every chat and returns the joined failures.
func (n *TelegramNotifier) NotifyAlert(ctx context.Context, a alerts.Alert, c entities.Cistern) error {
	if len(n.chatIDs) == 0 {
		return nil
	}
	text := FormatAlert(a, c)

	var errs []error
	for _, id := range n.chatIDs {
		if err := ctx.Err(); err != nil {
			errs = append(errs, err)
			break
		}
		if _, err := n.sender.Send(tgbotapi.NewMessage(id, text)); err != nil {
			errs = append(errs, fmt.Errorf("chat %d: %w", id, err))
			continue
		}
		log.Printf("Sent %s alert for cistern %s to chat %d", a.Severity, a.CisternID, id)
	}
	return errors.Join(errs...)
}
