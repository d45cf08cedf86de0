package notify

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/wnt/turfpoints/internal/metrics"
	"github.com/wnt/turfpoints/internal/utils"
)

// WebhookNotifier posts events to an HTTP endpoint run by the delivery
// service.
type WebhookNotifier struct {
	httpClient *utils.HTTPClient
	url        string
	logger     zerolog.Logger
}

// NewWebhookNotifier creates a notifier that POSTs events to the given URL.
func NewWebhookNotifier(url string, logger zerolog.Logger) *WebhookNotifier {
	return &WebhookNotifier{
		httpClient: utils.NewHTTPClient(
			utils.WithTimeout(10*time.Second),
			utils.WithRetries(2, 250*time.Millisecond),
		),
		url:    url,
		logger: logger.With().Str("component", "notify_webhook").Logger(),
	}
}

// Notify posts one event. Errors are logged and swallowed.
func (n *WebhookNotifier) Notify(ctx context.Context, userID uint, title, body string) {
	event := Event{
		ID:        uuid.NewString(),
		UserID:    userID,
		Title:     title,
		Body:      body,
		CreatedAt: time.Now().UTC(),
	}

	resp, err := n.httpClient.Post(ctx, n.url, event)
	if err != nil {
		n.logger.Error().Err(err).Uint("user_id", userID).Str("title", title).
			Msg("Failed to deliver notification")
		metrics.RecordNotification("failed")
		return
	}

	n.logger.Debug().Uint("user_id", userID).Str("title", title).
		Int("status", resp.StatusCode).Msg("Notification delivered")
	metrics.RecordNotification("success")
}
