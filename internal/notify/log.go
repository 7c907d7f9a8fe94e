package notify

import (
	"context"
	"encoding/json"
	"fmt"

	"bubble-ledger-go/internal/dispatcher"
	"bubble-ledger-go/internal/models"

	"go.uber.org/zap"
)

// LogSink writes notifications to the log. It stands in for the gateway in local setups.
type LogSink struct{}

func (LogSink) Deliver(_ context.Context, event models.OutboxEvent) error {
	var n models.Notification
	if err := json.Unmarshal(event.Payload, &n); err != nil {
		return fmt.Errorf("%w: undecodable notification payload: %v", dispatcher.ErrPermanent, err)
	}
	zap.L().Info("Notification",
		zap.String("event_id", event.Id),
		zap.Int64("recipient", n.RecipientAccountId),
		zap.String("type", n.Type),
		zap.String("title", n.Title),
		zap.String("body", n.Body))
	return nil
}
