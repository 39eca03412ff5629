// Package notify delivers new-issue notifications to chat webhooks.
package notify

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/calebhart/issuewise/internal/pubsub"
	"github.com/calebhart/issuewise/internal/retry"
	"github.com/calebhart/issuewise/internal/store"
	"github.com/calebhart/issuewise/internal/syncer"
)

// Notification describes one newly synced issue.
type Notification struct {
	Repo  string
	Issue store.Issue
}

// Notifier sends notifications about new issues.
type Notifier interface {
	Notify(ctx context.Context, n Notification) error
}

// MultiNotifier sends notifications to multiple notifiers.
type MultiNotifier struct {
	notifiers []Notifier
}

// NewMultiNotifier creates a MultiNotifier from the given notifiers.
func NewMultiNotifier(notifiers ...Notifier) *MultiNotifier {
	return &MultiNotifier{notifiers: notifiers}
}

// Notify sends the notification to all configured notifiers. It logs errors
// from individual notifiers but continues to the rest. Returns the last
// error encountered, if any.
func (m *MultiNotifier) Notify(ctx context.Context, n Notification) error {
	var lastErr error
	for _, notifier := range m.notifiers {
		if err := notifier.Notify(ctx, n); err != nil {
			log.Printf("notifier error: %v", err)
			lastErr = err
		}
	}
	return lastErr
}

// NewNotifier creates a Notifier based on the notifyType.
// Supported types: "slack", "discord", "both".
func NewNotifier(notifyType string, slackURL, discordURL string) (Notifier, error) {
	switch notifyType {
	case "slack":
		if slackURL == "" {
			return nil, fmt.Errorf("slack webhook URL is required for slack notifier")
		}
		return NewSlackNotifier(slackURL), nil
	case "discord":
		if discordURL == "" {
			return nil, fmt.Errorf("discord webhook URL is required for discord notifier")
		}
		return NewDiscordNotifier(discordURL), nil
	case "both":
		if slackURL == "" {
			return nil, fmt.Errorf("slack webhook URL is required for 'both' notifier")
		}
		if discordURL == "" {
			return nil, fmt.Errorf("discord webhook URL is required for 'both' notifier")
		}
		return NewMultiNotifier(
			NewSlackNotifier(slackURL),
			NewDiscordNotifier(discordURL),
		), nil
	default:
		return nil, fmt.Errorf("unsupported notifier type: %q", notifyType)
	}
}

// Worker consumes sync events and notifies about issues the store has never
// notified on before. Each issue is marked notified after the webhook is
// delivered, so restarts never re-announce.
type Worker struct {
	notifier Notifier
	store    store.Store
	logger   *log.Logger
}

// NewWorker creates a Worker delivering through notifier and recording
// delivery in st.
func NewWorker(notifier Notifier, st store.Store) *Worker {
	return &Worker{
		notifier: notifier,
		store:    st,
		logger:   log.New(log.Writer(), "[notify] ", log.LstdFlags),
	}
}

// Run consumes events until the context is cancelled. Only IssueCreated
// events trigger a notification; delivery retries with backoff, and failures
// leave the issue unmarked so a later sync can try again.
func (w *Worker) Run(ctx context.Context, events <-chan pubsub.Event[syncer.IssueEvent]) {
	for {
		select {
		case <-ctx.Done():
			return
		case evt, ok := <-events:
			if !ok {
				return
			}
			if evt.Type != pubsub.IssueCreated {
				continue
			}
			w.handle(ctx, evt.Payload)
		}
	}
}

func (w *Worker) handle(ctx context.Context, evt syncer.IssueEvent) {
	if evt.Issue.NotifiedAt != nil {
		return
	}

	n := Notification{Repo: evt.Repo, Issue: evt.Issue}
	err := retry.Do(ctx, retry.DefaultMaxAttempts, func() error {
		return w.notifier.Notify(ctx, n)
	})
	if err != nil {
		w.logger.Printf("notifying about #%d failed: %v", evt.Issue.Number, err)
		return
	}

	if err := w.store.MarkNotified(ctx, []int{evt.Issue.Number}, time.Now().UTC()); err != nil {
		w.logger.Printf("marking #%d notified: %v", evt.Issue.Number, err)
	}
}
