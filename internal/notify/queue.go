package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/wnt/turfpoints/internal/metrics"
)

const notificationQueueKey = "notification_queue"

// Event is the payload the delivery service pops from the queue.
type Event struct {
	ID        string    `json:"id"`
	UserID    uint      `json:"user_id"`
	Title     string    `json:"title"`
	Body      string    `json:"body"`
	CreatedAt time.Time `json:"created_at"`
}

// QueueNotifier pushes events onto a Redis list for the external delivery
// service to drain.
type QueueNotifier struct {
	client *redis.Client
	logger zerolog.Logger
}

// NewQueueNotifier creates a new Redis-backed notifier
func NewQueueNotifier(redisURL string, logger zerolog.Logger) (*QueueNotifier, error) {
	opt, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse Redis URL: %w", err)
	}

	client := redis.NewClient(opt)

	// Test connection
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	logger.Info().Str("redis_url", redisURL).Msg("Connected to Redis successfully")

	return &QueueNotifier{
		client: client,
		logger: logger.With().Str("component", "notify_queue").Logger(),
	}, nil
}

// Notify enqueues one event. Errors are logged and swallowed.
func (n *QueueNotifier) Notify(ctx context.Context, userID uint, title, body string) {
	event := Event{
		ID:        uuid.NewString(),
		UserID:    userID,
		Title:     title,
		Body:      body,
		CreatedAt: time.Now().UTC(),
	}

	payload, err := json.Marshal(event)
	if err != nil {
		n.logger.Error().Err(err).Uint("user_id", userID).Msg("Failed to marshal notification")
		metrics.RecordNotification("failed")
		return
	}

	if err := n.client.LPush(ctx, notificationQueueKey, payload).Err(); err != nil {
		n.logger.Error().Err(err).Uint("user_id", userID).Str("title", title).
			Msg("Failed to enqueue notification")
		metrics.RecordNotification("failed")
		return
	}

	n.logger.Debug().Uint("user_id", userID).Str("title", title).Msg("Notification enqueued")
	metrics.RecordNotification("success")
}

// QueueLength returns the number of undelivered events, for monitoring.
func (n *QueueNotifier) QueueLength(ctx context.Context) (int64, error) {
	length, err := n.client.LLen(ctx, notificationQueueKey).Result()
	if err != nil {
		return 0, fmt.Errorf("failed to get notification queue length: %w", err)
	}
	return length, nil
}

// Close releases the Redis connection.
func (n *QueueNotifier) Close() error {
	return n.client.Close()
}
