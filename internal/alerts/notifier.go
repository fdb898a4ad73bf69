package alerts

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/moov-data/internal/common/logger"
)

// Sender delivers one alert to an external channel.
type Sender interface {
	SendTrafficAlert(ctx context.Context, bucket, line, start, title, message string) error
}

// Notifier forwards alerts it has not sent before.
type Notifier struct {
	filter *Filter
	sender Sender
	logger logger.Logger

	mu   sync.Mutex
	sent map[string]struct{}
}

func NewNotifier(filter *Filter, sender Sender, log logger.Logger) *Notifier {
	return &Notifier{
		filter: filter,
		sender: sender,
		logger: log.With("component", "alert_notifier"),
		sent:   make(map[string]struct{}),
	}
}

// Notify sends every new alert and returns how many were sent. An alert
// whose delivery fails is retried on the next call. Alerts no longer active
// are forgotten, except after an empty pass, which is indistinguishable from
// a feed outage.
func (n *Notifier) Notify(ctx context.Context) int {
	buckets := n.filter.ActiveAlerts(ctx)

	n.mu.Lock()
	defer n.mu.Unlock()

	active := make(map[string]struct{})
	sent := 0
	for _, bucket := range []string{Metro, Bus, Tram} {
		for _, a := range buckets[bucket] {
			key := fmt.Sprintf("%s|%s|%s", a.Line, a.Start, a.Title)
			active[key] = struct{}{}
			if _, ok := n.sent[key]; ok {
				continue
			}
			// Warn, not Error: the log hook posts errors to the same webhook.
			if err := n.sender.SendTrafficAlert(ctx, bucket, a.Line, a.Start, a.Title, a.Message); err != nil {
				n.logger.Warn("Failed to send alert", "line", a.Line, "title", a.Title, "error", err)
				continue
			}
			n.sent[key] = struct{}{}
			sent++
		}
	}

	if len(active) > 0 {
		for key := range n.sent {
			if _, ok := active[key]; !ok {
				delete(n.sent, key)
			}
		}
	}
	if sent > 0 {
		n.logger.Info("Sent traffic alerts", "count", sent)
	}
	return sent
}

// Run calls Notify immediately and then every interval until ctx is done.
func (n *Notifier) Run(ctx context.Context, interval time.Duration) error {
	n.Notify(ctx)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			n.logger.Info("Alert notifier stopped")
			return nil
		case <-ticker.C:
			n.Notify(ctx)
		}
	}
}
