package api

import (
	"context"

	"go.uber.org/zap"
)

// AcknowledgeDelivery records the notification collaborator's delivery-status callback. It never
// touches ledger state.
func (s *LedgerService) AcknowledgeDelivery(ctx context.Context, eventId string, delivered bool, detail string) error {
	if err := s.store.AcknowledgeDelivery(ctx, eventId, delivered, detail); err != nil {
		return err
	}
	zap.L().Info("Delivery acknowledged",
		zap.String("event_id", eventId),
		zap.Bool("delivered", delivered))
	return nil
}
