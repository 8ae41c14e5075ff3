// Package notify delivers workflow notifications to users. The engine calls a
// single domain.Notifier after each committed action; the types here fan that
// out to logs and webhooks.
package notify

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"projecthub/internal/domain"
)

// Log writes each notification to a slog logger.
type Log struct {
	Logger *slog.Logger
}

func (l Log) Notify(ctx context.Context, n domain.Notification) error {
	logger := l.Logger
	if logger == nil {
		logger = slog.Default()
	}
	logger.InfoContext(ctx, "notification",
		"user_id", n.UserID,
		"type", n.Type,
		"title", n.Title,
		"link", n.Link,
	)
	return nil
}

// Multi sends to every notifier in order and joins their errors.
type Multi []domain.Notifier

func (m Multi) Notify(ctx context.Context, n domain.Notification) error {
	var errs []error
	for i, target := range m {
		if target == nil {
			continue
		}
		if err := target.Notify(ctx, n); err != nil {
			errs = append(errs, fmt.Errorf("notifier %d: %w", i, err))
		}
	}
	return errors.Join(errs...)
}

// Async hands each notification to its own goroutine and returns at once.
// Failures and panics in Next are logged, never returned.
type Async struct {
	Next   domain.Notifier
	Logger *slog.Logger
	// done, when set, is called after each delivery finishes. Tests use it to
	// wait for the goroutine.
	done func()
}

func (a Async) Notify(ctx context.Context, n domain.Notification) error {
	if a.Next == nil {
		return nil
	}
	ctx = context.WithoutCancel(ctx)
	go func() {
		if a.done != nil {
			defer a.done()
		}
		defer func() {
			if r := recover(); r != nil {
				a.log().ErrorContext(ctx, "notification panicked", "type", n.Type, "user_id", n.UserID, "panic", r)
			}
		}()
		if err := a.Next.Notify(ctx, n); err != nil {
			a.log().WarnContext(ctx, "notification delivery failed", "type", n.Type, "user_id", n.UserID, "err", err)
		}
	}()
	return nil
}

func (a Async) log() *slog.Logger {
	if a.Logger != nil {
		return a.Logger
	}
	return slog.Default()
}
