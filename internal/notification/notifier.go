package notification

import (
	"context"
	"fmt"

	"github.com/samueldng/cash-back-phone-link/internal/model"
	"github.com/samueldng/cash-back-phone-link/pkg/logger"
)

const metaKind = "kind"

// Publisher is the part of queue.Queue the notifier needs.
type Publisher interface {
	PublishJSON(ctx context.Context, data interface{}, metadata map[string]string) (string, error)
}

// QueueNotifier hands notifications to the SMS processor through a stream.
type QueueNotifier struct {
	publisher Publisher
}

func NewQueueNotifier(publisher Publisher) *QueueNotifier {
	return &QueueNotifier{publisher: publisher}
}

func (n *QueueNotifier) Notify(ctx context.Context, note model.Notification) error {
	id, err := n.publisher.PublishJSON(ctx, note, map[string]string{metaKind: string(note.Kind)})
	if err != nil {
		return fmt.Errorf("publish %s notification: %w", note.Kind, err)
	}

	logger.Debug("notification queued", "id", note.ID, "phone", note.Phone, "kind", note.Kind, "stream_id", id)
	return nil
}

// LogNotifier only logs. It is used when no queue is configured.
type LogNotifier struct{}

func (LogNotifier) Notify(_ context.Context, note model.Notification) error {
	logger.Info("notification", "phone", note.Phone, "kind", note.Kind, "text", Render(note))
	return nil
}
