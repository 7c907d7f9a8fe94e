package database

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"bubble-ledger-go/internal/models"

	"go.uber.org/zap"
)

func scanOutboxEvent(row rowScanner) (*models.OutboxEvent, error) {
	var (
		e       models.OutboxEvent
		payload string
	)
	if err := row.Scan(&e.Id, &e.Topic, &e.RecipientAccountId, &payload, &e.Status, &e.Attempts, &e.LastError,
		&e.NextAttemptAt, &e.CreatedAt, &e.UpdatedAt); err != nil {
		return nil, err
	}
	e.Payload = json.RawMessage(payload)
	return &e, nil
}

// FetchDueEvents returns pending events whose next attempt is due, oldest first.
func (s *Service) FetchDueEvents(ctx context.Context, limit int) ([]models.OutboxEvent, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.db.QueryContext(ctx, s.dialect.rebind(queryFetchDueEvents), s.now(), limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query due events: %w", err)
	}
	defer rows.Close()

	var events []models.OutboxEvent
	for rows.Next() {
		event, err := scanOutboxEvent(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan outbox event: %w", err)
		}
		events = append(events, *event)
	}
	return events, rows.Err()
}

func (s *Service) MarkEventDelivered(ctx context.Context, eventId string) error {
	return s.execEvent(ctx, eventId, queryMarkEventDelivered, s.now(), eventId)
}

// MarkEventFailed records a failed attempt. The event is retried at retryAt until maxAttempts is
// reached, after which it stays failed.
func (s *Service) MarkEventFailed(ctx context.Context, eventId string, cause string, retryAt time.Time, maxAttempts int) error {
	return s.execEvent(ctx, eventId, queryMarkEventFailed, cause, retryAt.UTC(), maxAttempts, s.now(), eventId)
}

// AcknowledgeDelivery records the gateway's final report for an event it accepted earlier.
func (s *Service) AcknowledgeDelivery(ctx context.Context, eventId string, delivered bool, detail string) error {
	status := models.OutboxAcknowledged
	if !delivered {
		status = models.OutboxFailed
	}
	if err := s.execEvent(ctx, eventId, queryAcknowledgeEvent, status, detail, s.now(), eventId); err != nil {
		return err
	}
	zap.L().Debug("Delivery acknowledged",
		zap.String("event_id", eventId),
		zap.Bool("delivered", delivered),
		zap.String("detail", detail))
	return nil
}

// PurgeEvents deletes settled events last touched before olderThan.
func (s *Service) PurgeEvents(ctx context.Context, olderThan time.Time) (int64, error) {
	res, err := s.db.ExecContext(ctx, s.dialect.rebind(queryPurgeEvents), olderThan.UTC())
	if err != nil {
		return 0, fmt.Errorf("failed to purge outbox events: %w", err)
	}
	return res.RowsAffected()
}

// GetEvent loads a single outbox event.
func (s *Service) GetEvent(ctx context.Context, eventId string) (*models.OutboxEvent, error) {
	event, err := scanOutboxEvent(s.db.QueryRowContext(ctx, s.dialect.rebind(queryGetOutboxEvent), eventId))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", ErrEventNotFound, eventId)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query outbox event: %w", err)
	}
	return event, nil
}

func (s *Service) execEvent(ctx context.Context, eventId, query string, args ...any) error {
	res, err := s.db.ExecContext(ctx, s.dialect.rebind(query), args...)
	if err != nil {
		return translate(fmt.Errorf("failed to update outbox event %s: %w", eventId, err))
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("%w: %s", ErrEventNotFound, eventId)
	}
	return nil
}
