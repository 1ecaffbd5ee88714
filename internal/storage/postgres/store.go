package postgres

import (
	"context"
	"database/sql"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/jackc/pgx/v5/pgconn"
	_ "github.com/jackc/pgx/v5/stdlib"

	"github.com/vladislavdragonenkov/storefront/internal/domain"
)

const (
	defaultConnTimeout     = 5 * time.Second
	defaultMaxOpenConns    = 25
	defaultMaxIdleConns    = 25
	defaultConnMaxLifetime = 30 * time.Minute
	defaultConnMaxIdleTime = 5 * time.Minute

	opTimeout = 5 * time.Second

	// Сколько раз повторяем транзакцию после 40001/40P01, прежде чем отдать ошибку наверх.
	maxSerializationRetries = 2
	serializationRetryDelay = 20 * time.Millisecond
)

const (
	pgUniqueViolation      = "23505"
	pgSerializationFailure = "40001"
	pgDeadlockDetected     = "40P01"
)

var errNotInitialized = errors.New("postgres store is not initialized")

// queryer — общее подмножество *sql.DB и *sql.Tx, с которым работают репозитории.
type queryer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// Store оборачивает SQL-подключение к PostgreSQL и реализует domain.UnitOfWork.
type Store struct {
	db *sql.DB
}

// Open открывает подключение к PostgreSQL и проверяет доступность базы.
func Open(ctx context.Context, dsn string) (*Store, error) {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, errors.Wrap(err, "open postgres connection")
	}
	db.SetMaxOpenConns(defaultMaxOpenConns)
	db.SetMaxIdleConns(defaultMaxIdleConns)
	db.SetConnMaxLifetime(defaultConnMaxLifetime)
	db.SetConnMaxIdleTime(defaultConnMaxIdleTime)

	pingCtx, cancel := context.WithTimeout(ctx, defaultConnTimeout)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		_ = db.Close()
		return nil, errors.Wrap(err, "ping postgres")
	}

	return &Store{db: db}, nil
}

// DB возвращает raw SQL DB, когда нужен низкоуровневый доступ.
func (s *Store) DB() *sql.DB {
	return s.db
}

// Ping проверяет доступность подключения.
func (s *Store) Ping(ctx context.Context) error {
	if s == nil || s.db == nil {
		return errNotInitialized
	}

	pingCtx, cancel := context.WithTimeout(ctx, defaultConnTimeout)
	defer cancel()
	return s.db.PingContext(pingCtx)
}

// EnsureSchema применяет все up-миграции.
func (s *Store) EnsureSchema(ctx context.Context) error {
	return s.MigrateUp(ctx, 0)
}

// Close закрывает подключение к БД.
func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

// Within выполняет fn в транзакции READ COMMITTED.
// Конфликты сериализации и дедлоки повторяются; исчерпав попытки, ошибка помечается domain.ErrSerialization.
func (s *Store) Within(ctx context.Context, fn func(ctx context.Context, tx domain.Tx) error) error {
	return s.run(ctx, false, fn)
}

// WithinReadOnly выполняет fn в read-only транзакции.
func (s *Store) WithinReadOnly(ctx context.Context, fn func(ctx context.Context, tx domain.Tx) error) error {
	return s.run(ctx, true, fn)
}

// Outbox возвращает outbox-репозиторий вне транзакций: каждый вызов фиксируется сразу.
func (s *Store) Outbox() domain.OutboxRepository {
	return &outboxRepository{q: s.db}
}

func (s *Store) run(ctx context.Context, readOnly bool, fn func(ctx context.Context, tx domain.Tx) error) error {
	if s == nil || s.db == nil {
		return errNotInitialized
	}

	var err error
	for attempt := 0; ; attempt++ {
		err = s.runOnce(ctx, readOnly, fn)
		if err == nil || !isSerializationFailure(err) || attempt >= maxSerializationRetries {
			break
		}

		timer := time.NewTimer(serializationRetryDelay << attempt)
		select {
		case <-ctx.Done():
			timer.Stop()
			return errors.WithStack(ctx.Err())
		case <-timer.C:
		}
	}

	if err != nil && isSerializationFailure(err) {
		return errors.Mark(err, domain.ErrSerialization)
	}
	return err
}

func (s *Store) runOnce(ctx context.Context, readOnly bool, fn func(ctx context.Context, tx domain.Tx) error) (err error) {
	tx, err := s.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelReadCommitted, ReadOnly: readOnly})
	if err != nil {
		return errors.Wrap(err, "begin transaction")
	}

	defer func() {
		if p := recover(); p != nil {
			_ = tx.Rollback()
			panic(p)
		}
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	if err = fn(ctx, newTx(tx)); err != nil {
		return err
	}
	if err = tx.Commit(); err != nil {
		return errors.Wrap(err, "commit transaction")
	}
	return nil
}

// pgTx связывает все репозитории с одной *sql.Tx.
type pgTx struct {
	q queryer
}

func newTx(q queryer) *pgTx {
	return &pgTx{q: q}
}

func (t *pgTx) Stock() domain.StockRepository              { return &stockRepository{q: t.q} }
func (t *pgTx) Reservations() domain.ReservationRepository { return &reservationRepository{q: t.q} }
func (t *pgTx) Promotions() domain.PromotionRepository     { return &promotionRepository{q: t.q} }
func (t *pgTx) Customers() domain.CustomerRepository       { return &customerRepository{q: t.q} }
func (t *pgTx) Loyalty() domain.LoyaltyRepository          { return &loyaltyRepository{q: t.q} }
func (t *pgTx) Orders() domain.OrderRepository             { return &orderRepository{q: t.q} }
func (t *pgTx) History() domain.StatusHistoryRepository    { return &historyRepository{q: t.q} }
func (t *pgTx) Outbox() domain.OutboxRepository            { return &outboxRepository{q: t.q} }

func pgErrorCode(err error) string {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code
	}
	return ""
}

func isUniqueViolation(err error) bool {
	return pgErrorCode(err) == pgUniqueViolation
}

func isSerializationFailure(err error) bool {
	switch pgErrorCode(err) {
	case pgSerializationFailure, pgDeadlockDetected:
		return true
	default:
		return false
	}
}

func nullTime(t *time.Time) sql.NullTime {
	if t == nil {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: t.UTC(), Valid: true}
}

func timePtr(t sql.NullTime) *time.Time {
	if !t.Valid {
		return nil
	}
	v := t.Time.UTC()
	return &v
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

var (
	_ domain.UnitOfWork = (*Store)(nil)
	_ domain.Tx         = (*pgTx)(nil)
)
