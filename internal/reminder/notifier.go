package reminder

import (
	"context"
	"log/slog"
)

// Notification is one reminder delivery.
type Notification struct {
	Title string
	Body  string
	// Link deep-links into the portal, e.g. "/parent-diary".
	Link string
}

// Notifier delivers a notification to the caregiver.
type Notifier interface {
	Notify(ctx context.Context, n Notification) error
}

// ConsoleNotifier logs notifications through slog. It is the default
// delivery channel for local development.
type ConsoleNotifier struct {
	Logger *slog.Logger
}

// Notify implements Notifier.
func (c ConsoleNotifier) Notify(_ context.Context, n Notification) error {
	logger := c.Logger
	if logger == nil {
		logger = slog.Default()
	}
	logger.Info("reminder notification",
		slog.String("title", n.Title),
		slog.String("body", n.Body),
		slog.String("link", n.Link))
	return nil
}
