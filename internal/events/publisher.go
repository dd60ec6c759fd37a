package events

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"favsync/shared/rabbitmq"

	"github.com/google/uuid"
)

// StatusEvent is emitted on every task status transition. Events are purely
// observational: consumers watch the exchange, but the engine never depends on
// delivery.
type StatusEvent struct {
	EventID      string    `json:"event_id"`
	TaskKey      string    `json:"task_key"`
	TaskType     string    `json:"task_type"`
	OldStatus    string    `json:"old_status,omitempty"`
	NewStatus    string    `json:"new_status"`
	ErrorMessage string    `json:"error_message,omitempty"`
	Timestamp    time.Time `json:"timestamp"`
}

// Publisher emits task lifecycle events.
type Publisher interface {
	PublishStatusChange(ctx context.Context, event StatusEvent)
}

// RabbitMQPublisher publishes events through the shared broker client.
// Publish failures are logged and swallowed.
type RabbitMQPublisher struct {
	client *rabbitmq.Client
	logger *slog.Logger
}

// NewRabbitMQPublisher wraps a connected broker client.
func NewRabbitMQPublisher(client *rabbitmq.Client, logger *slog.Logger) *RabbitMQPublisher {
	return &RabbitMQPublisher{client: client, logger: logger}
}

func (p *RabbitMQPublisher) PublishStatusChange(ctx context.Context, event StatusEvent) {
	if event.EventID == "" {
		event.EventID = uuid.New().String()
	}
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now()
	}

	body, err := json.Marshal(event)
	if err != nil {
		p.logger.Error("Failed to encode status event",
			slog.String("task_key", event.TaskKey),
			slog.Any("error", err),
		)
		return
	}

	if err := p.client.PublishWithRetry(ctx, body, "application/json"); err != nil {
		p.logger.Warn("Failed to publish status event",
			slog.String("task_key", event.TaskKey),
			slog.String("new_status", event.NewStatus),
			slog.Any("error", err),
		)
	}
}

// NoopPublisher drops every event. Installed when the broker is disabled.
type NoopPublisher struct{}

func (NoopPublisher) PublishStatusChange(context.Context, StatusEvent) {}
