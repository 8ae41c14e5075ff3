package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"

	"projecthub/internal/config"
	"projecthub/internal/domain"
)

const defaultWebhookTimeout = 5 * time.Second

// Webhook POSTs each notification as JSON to a configured URL.
type Webhook struct {
	URL    string
	Secret string
	Client *http.Client
	filter typeFilter
}

// NewWebhook builds a webhook notifier from configuration. A disabled hook
// yields ok=false.
func NewWebhook(cfg config.WebhookConfig) (Webhook, bool) {
	if cfg.Enabled != nil && !*cfg.Enabled {
		return Webhook{}, false
	}
	if strings.TrimSpace(cfg.URL) == "" {
		return Webhook{}, false
	}
	timeout := defaultWebhookTimeout
	if cfg.TimeoutSeconds > 0 {
		timeout = time.Duration(cfg.TimeoutSeconds) * time.Second
	}
	return Webhook{
		URL:    cfg.URL,
		Secret: cfg.Secret,
		Client: &http.Client{Timeout: timeout},
		filter: newTypeFilter(cfg.Types),
	}, true
}

type webhookBody struct {
	Delivery string `json:"delivery"`
	SentAt   string `json:"sent_at"`
	domain.Notification
}

func (w Webhook) Notify(ctx context.Context, n domain.Notification) error {
	if !w.filter.match(n.Type) {
		return nil
	}
	body := webhookBody{
		Delivery:     uuid.NewString(),
		SentAt:       time.Now().UTC().Format(time.RFC3339),
		Notification: n,
	}
	data, err := json.Marshal(body)
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, w.URL, bytes.NewReader(data))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Projecthub-Event", n.Type)
	req.Header.Set("X-Projecthub-Delivery", body.Delivery)
	if strings.TrimSpace(w.Secret) != "" {
		req.Header.Set("X-Projecthub-Secret", w.Secret)
	}
	client := w.Client
	if client == nil {
		client = &http.Client{Timeout: defaultWebhookTimeout}
	}
	res, err := client.Do(req)
	if err != nil {
		return err
	}
	defer res.Body.Close()
	if res.StatusCode < 200 || res.StatusCode >= 300 {
		msg, _ := io.ReadAll(io.LimitReader(res.Body, 4096))
		return fmt.Errorf("webhook %s: status %d: %s", w.URL, res.StatusCode, strings.TrimSpace(string(msg)))
	}
	return nil
}

type typeFilter struct {
	set map[string]struct{}
}

func newTypeFilter(types []string) typeFilter {
	set := make(map[string]struct{}, len(types))
	for _, t := range types {
		if key := strings.TrimSpace(t); key != "" {
			set[key] = struct{}{}
		}
	}
	if len(set) == 0 {
		return typeFilter{}
	}
	return typeFilter{set: set}
}

// match accepts everything when no types were configured.
func (f typeFilter) match(typ string) bool {
	if f.set == nil {
		return true
	}
	_, ok := f.set[typ]
	return ok
}

// FromConfig assembles the notifier for a process: every notification is
// logged, and enabled webhooks receive it off the request path.
func FromConfig(cfg config.NotificationsConfig, logger *slog.Logger) domain.Notifier {
	targets := Multi{Log{Logger: logger}}
	for _, hook := range cfg.Webhooks {
		if w, ok := NewWebhook(hook); ok {
			targets = append(targets, Async{Next: w, Logger: logger})
		}
	}
	return targets
}
