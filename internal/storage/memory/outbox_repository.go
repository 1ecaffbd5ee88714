package memory

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/vladislavdragonenkov/storefront/internal/domain"
)

const (
	outboxStatusPending = "pending"
	outboxStatusSent    = "sent"
	outboxStatusFailed  = "failed"
)

// outboxRecord хранит сообщение и служебные поля для in-memory реализации.
type outboxRecord struct {
	msg        domain.OutboxMessage
	status     string
	attemptCnt int
	updatedAt  time.Time
}

type outboxRepo struct {
	tx *memTx
}

// Enqueue сохраняет событие со статусом `pending` и возвращает его с идентификатором.
func (r *outboxRepo) Enqueue(_ context.Context, msg domain.OutboxMessage) (domain.OutboxMessage, error) {
	if err := r.tx.writable(); err != nil {
		return domain.OutboxMessage{}, err
	}
	if msg.ID == "" {
		msg.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	if msg.CreatedAt.IsZero() {
		msg.CreatedAt = now
	}

	s := r.tx.s
	put(r.tx, s.outbox, msg.ID, &outboxRecord{msg: msg, status: outboxStatusPending, updatedAt: now})
	prevLen := len(s.outboxSeq)
	s.outboxSeq = append(s.outboxSeq, msg.ID)
	r.tx.onRollback(func() { s.outboxSeq = s.outboxSeq[:prevLen] })
	return msg, nil
}

// PullPending возвращает до limit сообщений со статусом `pending` в порядке постановки.
func (r *outboxRepo) PullPending(_ context.Context, limit int) ([]domain.OutboxMessage, error) {
	if limit <= 0 {
		limit = 100
	}
	result := make([]domain.OutboxMessage, 0, limit)
	for _, id := range r.tx.s.outboxSeq {
		rec := r.tx.s.outbox[id]
		if rec == nil || rec.status != outboxStatusPending {
			continue
		}
		result = append(result, rec.msg)
		if len(result) >= limit {
			break
		}
	}
	return result, nil
}

func (r *outboxRepo) Stats(_ context.Context) (domain.OutboxStats, error) {
	var stats domain.OutboxStats
	for _, rec := range r.tx.s.outbox {
		if rec.status != outboxStatusPending {
			continue
		}
		stats.PendingCount++
		if stats.OldestPendingAt.IsZero() || rec.msg.CreatedAt.Before(stats.OldestPendingAt) {
			stats.OldestPendingAt = rec.msg.CreatedAt
		}
	}
	return stats, nil
}

// MarkSent обновляет статус события после успешной публикации.
func (r *outboxRepo) MarkSent(_ context.Context, id string) error {
	return r.mark(id, outboxStatusSent)
}

// MarkFailed фиксирует ошибку публикации.
func (r *outboxRepo) MarkFailed(_ context.Context, id string) error {
	return r.mark(id, outboxStatusFailed)
}

func (r *outboxRepo) mark(id, status string) error {
	if err := r.tx.writable(); err != nil {
		return err
	}
	rec, ok := r.tx.s.outbox[id]
	if !ok {
		return domain.ErrOutboxPublish
	}
	updated := *rec
	updated.status = status
	updated.attemptCnt++
	updated.updatedAt = time.Now().UTC()
	put(r.tx, r.tx.s.outbox, id, &updated)
	return nil
}

// lockedOutbox открывает короткую транзакцию на каждый вызов.
type lockedOutbox struct {
	s *Store
}

func (o *lockedOutbox) Enqueue(ctx context.Context, msg domain.OutboxMessage) (out domain.OutboxMessage, err error) {
	err = o.s.Within(ctx, func(ctx context.Context, tx domain.Tx) error {
		out, err = tx.Outbox().Enqueue(ctx, msg)
		return err
	})
	return out, err
}

func (o *lockedOutbox) PullPending(ctx context.Context, limit int) (out []domain.OutboxMessage, err error) {
	err = o.s.WithinReadOnly(ctx, func(ctx context.Context, tx domain.Tx) error {
		out, err = tx.Outbox().PullPending(ctx, limit)
		return err
	})
	return out, err
}

func (o *lockedOutbox) Stats(ctx context.Context) (out domain.OutboxStats, err error) {
	err = o.s.WithinReadOnly(ctx, func(ctx context.Context, tx domain.Tx) error {
		out, err = tx.Outbox().Stats(ctx)
		return err
	})
	return out, err
}

func (o *lockedOutbox) MarkSent(ctx context.Context, id string) error {
	return o.s.Within(ctx, func(ctx context.Context, tx domain.Tx) error {
		return tx.Outbox().MarkSent(ctx, id)
	})
}

func (o *lockedOutbox) MarkFailed(ctx context.Context, id string) error {
	return o.s.Within(ctx, func(ctx context.Context, tx domain.Tx) error {
		return tx.Outbox().MarkFailed(ctx, id)
	})
}

var (
	_ domain.OutboxRepository = (*outboxRepo)(nil)
	_ domain.OutboxRepository = (*lockedOutbox)(nil)
)
