// Package notify tells staff when long-running work finishes.
package notify

import (
	"context"
	"log/slog"
	"net/mail"
	"strings"
)

type Message struct {
	To      []mail.Address
	Subject string
	Text    string
	HTML    string
}

func (m Message) hasRecipients() bool { return len(m.To) > 0 }

type Notifier interface {
	Notify(ctx context.Context, msg Message) error
}

// Console logs messages instead of sending them (dev and tests).
type Console struct {
	Log *slog.Logger
}

func (c Console) Notify(ctx context.Context, msg Message) error {
	to := make([]string, 0, len(msg.To))
	for _, a := range msg.To {
		to = append(to, a.String())
	}
	c.Log.InfoContext(ctx, "notification", "to", strings.Join(to, ", "), "subject", msg.Subject, "text", msg.Text)
	return nil
}

// Recorder keeps messages in memory; tests read Sent.
type Recorder struct {
	Sent []Message
}

func (r *Recorder) Notify(_ context.Context, msg Message) error {
	r.Sent = append(r.Sent, msg)
	return nil
}
