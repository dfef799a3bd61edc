// Package notify delivers processing outcome messages to the user.
package notify

import (
	"fmt"
	"log"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
)

// Notifier sends one message. Implementations must be safe for concurrent
// use.
type Notifier interface {
	Notify(text string) error
}

// Nop discards every message.
type Nop struct{}

func (Nop) Notify(string) error { return nil }

// Sender is the subset of the Telegram bot API the notifier uses.
type Sender interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
}

// BotFactory builds a Sender from a bot token. Tests inject fakes here.
type BotFactory func(token string) (Sender, error)

func defaultBotFactory(token string) (Sender, error) {
	bot, err := tgbotapi.NewBotAPI(token)
	if err != nil {
		return nil, fmt.Errorf("create telegram bot: %w", err)
	}
	return bot, nil
}

// Telegram sends messages to a single chat.
type Telegram struct {
	bot    Sender
	chatID int64
}

func NewTelegram(token string, chatID int64, factory BotFactory) (*Telegram, error) {
	if token == "" {
		return nil, fmt.Errorf("telegram token is empty")
	}
	if chatID == 0 {
		return nil, fmt.Errorf("telegram chat ID is empty")
	}
	if factory == nil {
		factory = defaultBotFactory
	}
	bot, err := factory(token)
	if err != nil {
		return nil, err
	}
	return &Telegram{bot: bot, chatID: chatID}, nil
}

func (t *Telegram) Notify(text string) error {
	msg := tgbotapi.NewMessage(t.chatID, text)
	if _, err := t.bot.Send(msg); err != nil {
		return fmt.Errorf("send telegram message: %w", err)
	}
	return nil
}

// Processed formats a success message for a finished recording.
func Processed(filename, document string) string {
	return fmt.Sprintf("✅ %s processed\nDocument: %s", filename, document)
}

// Failed formats a failure message.
func Failed(filename string, err error) string {
	return fmt.Sprintf("❌ %s failed\n%v", filename, err)
}

// Best sends through the notifier and logs instead of propagating errors.
// Notification is never allowed to fail the pipeline.
func Best(n Notifier, text string) {
	if n == nil {
		return
	}
	if err := n.Notify(text); err != nil {
		log.Printf("[notify] send failed: %v", err)
	}
}
