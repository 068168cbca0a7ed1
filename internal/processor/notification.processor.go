package processor

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	gateway "github.com/samueldng/cash-back-phone-link/internal/gateways"
	"github.com/samueldng/cash-back-phone-link/internal/model"
	"github.com/samueldng/cash-back-phone-link/internal/notification"
	"github.com/samueldng/cash-back-phone-link/internal/queue"
	"github.com/samueldng/cash-back-phone-link/pkg/logger"
	"github.com/samueldng/cash-back-phone-link/pkg/prom"
)

const (
	deliverySent     = "sent"
	deliveryRejected = "rejected"
	deliveryFailed   = "failed"
	deliveryGaveUp   = "gave_up"
)

type SMSSender interface {
	SendSMS(ctx context.Context, req gateway.SendRequest) (*gateway.SendResponse, error)
}

// NotificationProcessor renders queued notifications and sends them as SMS.
type NotificationProcessor struct {
	sender      SMSSender
	idempotency *IdempotencyService
}

func NewNotificationProcessor(sender SMSSender, idempotency *IdempotencyService) *NotificationProcessor {
	return &NotificationProcessor{
		sender:      sender,
		idempotency: idempotency,
	}
}

func (p *NotificationProcessor) GetType() string {
	return "notification"
}

// Process returns nil when the message should be acked: it was sent, was sent
// before, or can never be sent. Any other error leaves it for a retry.
func (p *NotificationProcessor) Process(ctx context.Context, msg *queue.Message) error {
	var note model.Notification
	if err := json.Unmarshal(msg.Data, &note); err != nil {
		return fmt.Errorf("failed to unmarshal notification %s: %w", msg.ID, err)
	}
	if note.ID == "" {
		note.ID = msg.ID
	}

	body := notification.Render(note)
	if body == "" {
		logger.Warn("unknown notification kind, dropping", "id", note.ID, "kind", note.Kind)
		prom.AddNotificationDelivered(string(note.Kind), deliveryRejected)
		return nil
	}

	procCtx, err := p.idempotency.AcquireProcessingLock(ctx, note.ID)
	switch {
	case errors.Is(err, ErrAlreadyProcessed):
		logger.Info("notification already sent, skipping", "id", note.ID)
		return nil
	case errors.Is(err, ErrMaxRetriesExceeded):
		logger.Error("giving up on notification", "id", note.ID, "phone", note.Phone, "kind", note.Kind)
		prom.AddNotificationDelivered(string(note.Kind), deliveryGaveUp)
		return nil
	case err != nil:
		return err
	}
	defer func() {
		if err := p.idempotency.ReleaseLock(ctx, procCtx); err != nil {
			logger.Warn("failed to release lock", "id", note.ID, "error", err)
		}
	}()

	res, err := p.sender.SendSMS(ctx, gateway.SendRequest{
		MessageID: note.ID,
		To:        note.Phone,
		Body:      body,
	})
	if errors.Is(err, gateway.ErrRejected) {
		logger.Error("sms rejected by provider", "id", note.ID, "phone", note.Phone, "error", err)
		prom.AddNotificationDelivered(string(note.Kind), deliveryRejected)
		if markErr := p.idempotency.MarkSuccess(ctx, procCtx); markErr != nil {
			logger.Error("failed to mark notification", "id", note.ID, "error", markErr)
		}
		return nil
	}
	if err != nil {
		prom.AddNotificationDelivered(string(note.Kind), deliveryFailed)
		if markErr := p.idempotency.MarkFailure(ctx, procCtx, err); markErr != nil {
			logger.Error("failed to mark failure", "id", note.ID, "error", markErr)
		}
		return err
	}

	prom.AddNotificationDelivered(string(note.Kind), deliverySent)
	if markErr := p.idempotency.MarkSuccess(ctx, procCtx); markErr != nil {
		// the sms is out; a redelivery may duplicate it
		logger.Error("failed to mark success", "id", note.ID, "error", markErr)
	}

	logger.Info("notification sent",
		"id", note.ID,
		"phone", note.Phone,
		"kind", note.Kind,
		"sid", res.SID,
		"retry_count", procCtx.RetryCount)
	return nil
}
