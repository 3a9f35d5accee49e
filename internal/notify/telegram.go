// Package notify pushes session milestones to Telegram: deck generation
// finished, authentication expired. Outbound only; it never reads chat.
package notify

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/go-telegram/bot"

	"deckhand/internal/deck"
	"deckhand/internal/events"
	"deckhand/internal/session"
)

// Config holds Telegram notifier settings
type Config struct {
	Enabled  bool   `json:"enabled"`
	BotToken string `json:"bot_token"` // supports ${ENV_VAR} expansion in config
	ChatID   int64  `json:"chat_id"`
}

// Validate checks the notifier configuration
func (c Config) Validate() error {
	if !c.Enabled {
		return nil
	}
	if c.BotToken == "" {
		return fmt.Errorf("notify bot_token is required when enabled")
	}
	if c.ChatID == 0 {
		return fmt.Errorf("notify chat_id is required when enabled")
	}
	return nil
}

// Notifier sends one-way status messages to a Telegram chat
type Notifier struct {
	bot    *bot.Bot
	chatID int64
}

// New creates a notifier from a bot token and destination chat
func New(cfg Config) (*Notifier, error) {
	b, err := bot.New(cfg.BotToken)
	if err != nil {
		return nil, fmt.Errorf("failed to create telegram bot: %w", err)
	}
	return &Notifier{bot: b, chatID: cfg.ChatID}, nil
}

// Attach subscribes the notifier to a session's milestone events and
// returns a detach function
func (n *Notifier) Attach(sess *session.Session) func() {
	unsubCompleted := sess.Subscribe(session.EventCompleted, func(ev events.Event) {
		snap, ok := ev.Payload.(deck.Snapshot)
		if !ok {
			return
		}
		n.send(fmt.Sprintf("Presentation ready: %s (%d slides)",
			deck.DeckTitle(snap), len(snap.Slides)))
	})

	unsubAuth := sess.Subscribe(session.EventAuthExpired, func(ev events.Event) {
		n.send("Deckhand session needs re-authentication.")
	})

	return func() {
		unsubCompleted()
		unsubAuth()
	}
}

func (n *Notifier) send(text string) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	_, err := n.bot.SendMessage(ctx, &bot.SendMessageParams{
		ChatID: n.chatID,
		Text:   text,
	})
	if err != nil {
		log.Printf("[Notify] Failed to send telegram message: %v", err)
	}
}
