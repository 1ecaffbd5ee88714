package postgres

import (
	"context"
	"database/sql"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/google/uuid"

	"github.com/vladislavdragonenkov/storefront/internal/domain"
)

const (
	outboxStatusSent   = "sent"
	outboxStatusFailed = "failed"

	defaultOutboxPullLimit = 100
)

const (
	insertOutboxSQL = `
INSERT INTO outbox_messages
    (id, aggregate_type, aggregate_id, event_type, payload, status, attempt_count, created_at, updated_at)
VALUES ($1, $2, $3, $4, $5, 'pending', 0, $6, $7)`

	pendingOutboxSQL = `
SELECT id, aggregate_type, aggregate_id, event_type, payload, created_at
FROM outbox_messages
WHERE status = 'pending'
ORDER BY seq
LIMIT $1`

	outboxStatsSQL = `SELECT COUNT(*), MIN(created_at) FROM outbox_messages WHERE status = 'pending'`

	markOutboxSQL = `
UPDATE outbox_messages
SET status = $2, attempt_count = attempt_count + 1, updated_at = $3
WHERE id = $1`
)

// outboxRepository хранит события в той же транзакции, что и изменение состояния.
type outboxRepository struct {
	q queryer
}

func (r *outboxRepository) Enqueue(ctx context.Context, msg domain.OutboxMessage) (domain.OutboxMessage, error) {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	now := time.Now().UTC()
	if msg.ID == "" {
		msg.ID = uuid.NewString()
	}
	if msg.CreatedAt.IsZero() {
		msg.CreatedAt = now
	}
	msg.CreatedAt = msg.CreatedAt.UTC()

	_, err := r.q.ExecContext(ctx, insertOutboxSQL,
		msg.ID, msg.AggregateType, msg.AggregateID, msg.EventType, msg.Payload, msg.CreatedAt, now)
	switch {
	case isUniqueViolation(err):
		return domain.OutboxMessage{}, errors.Wrapf(domain.ErrDuplicate, "outbox message %s", msg.ID)
	case err != nil:
		return domain.OutboxMessage{}, errors.Wrap(err, "enqueue outbox message")
	}
	return msg, nil
}

// PullPending возвращает до limit сообщений в порядке постановки в очередь.
func (r *outboxRepository) PullPending(ctx context.Context, limit int) ([]domain.OutboxMessage, error) {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	if limit <= 0 {
		limit = defaultOutboxPullLimit
	}

	rows, err := r.q.QueryContext(ctx, pendingOutboxSQL, limit)
	if err != nil {
		return nil, errors.Wrap(err, "pull pending outbox messages")
	}
	defer rows.Close()

	var pending []domain.OutboxMessage
	for rows.Next() {
		msg, err := scanOutboxMessage(rows)
		if err != nil {
			return nil, err
		}
		pending = append(pending, msg)
	}
	return pending, errors.Wrap(rows.Err(), "iterate outbox rows")
}

func scanOutboxMessage(rows *sql.Rows) (domain.OutboxMessage, error) {
	var msg domain.OutboxMessage
	err := rows.Scan(&msg.ID, &msg.AggregateType, &msg.AggregateID, &msg.EventType, &msg.Payload, &msg.CreatedAt)
	if err != nil {
		return domain.OutboxMessage{}, errors.Wrap(err, "scan outbox message")
	}
	msg.CreatedAt = msg.CreatedAt.UTC()
	return msg, nil
}

// Stats считает pending-сообщения и время постановки самого старого из них.
func (r *outboxRepository) Stats(ctx context.Context) (domain.OutboxStats, error) {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	var (
		stats  domain.OutboxStats
		oldest sql.NullTime
	)
	if err := r.q.QueryRowContext(ctx, outboxStatsSQL).Scan(&stats.PendingCount, &oldest); err != nil {
		return domain.OutboxStats{}, errors.Wrap(err, "query outbox stats")
	}
	if oldest.Valid {
		stats.OldestPendingAt = oldest.Time.UTC()
	}
	return stats, nil
}

func (r *outboxRepository) MarkSent(ctx context.Context, id string) error {
	return r.mark(ctx, id, outboxStatusSent)
}

func (r *outboxRepository) MarkFailed(ctx context.Context, id string) error {
	return r.mark(ctx, id, outboxStatusFailed)
}

func (r *outboxRepository) mark(ctx context.Context, id, status string) error {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	res, err := r.q.ExecContext(ctx, markOutboxSQL, id, status, time.Now().UTC())
	if err != nil {
		return errors.Wrapf(err, "mark outbox message %s as %s", id, status)
	}
	if n, err := res.RowsAffected(); err != nil {
		return errors.Wrapf(err, "mark outbox message %s as %s", id, status)
	} else if n == 0 {
		return errors.Wrapf(domain.ErrOutboxPublish, "outbox message %s not found", id)
	}
	return nil
}

var _ domain.OutboxRepository = (*outboxRepository)(nil)
