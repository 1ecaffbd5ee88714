package memory

import (
	"context"
	"sync"
	"time"

	"github.com/cockroachdb/errors"

	"github.com/vladislavdragonenkov/storefront/internal/domain"
)

var errReadOnly = errors.New("write attempted in read-only transaction")

// Store — in-memory хранилище для локальной разработки и тестов.
// Транзакции сериализуются общим мьютексом, откат выполняется по журналу отмены.
type Store struct {
	mu sync.Mutex

	stock        map[string]domain.StockRecord
	reservations map[string]domain.Reservation
	promotions   map[string]domain.Promotion
	promoCodes   map[string]string
	usages       map[string]domain.PromotionUsage
	usageSeq     []string
	customers    map[string]domain.Customer
	loyalty      map[string][]domain.LoyaltyEntry
	orders       map[string]domain.Order
	orderCodes   map[string]string
	requestKeys  map[string]string
	history      map[string][]domain.StatusHistory
	outbox       map[string]*outboxRecord
	outboxSeq    []string
}

// NewStore создаёт пустое хранилище.
func NewStore() *Store {
	return &Store{
		stock:        make(map[string]domain.StockRecord),
		reservations: make(map[string]domain.Reservation),
		promotions:   make(map[string]domain.Promotion),
		promoCodes:   make(map[string]string),
		usages:       make(map[string]domain.PromotionUsage),
		customers:    make(map[string]domain.Customer),
		loyalty:      make(map[string][]domain.LoyaltyEntry),
		orders:       make(map[string]domain.Order),
		orderCodes:   make(map[string]string),
		requestKeys:  make(map[string]string),
		history:      make(map[string][]domain.StatusHistory),
		outbox:       make(map[string]*outboxRecord),
	}
}

// Within выполняет fn атомарно: при ошибке или панике все изменения отменяются.
func (s *Store) Within(ctx context.Context, fn func(ctx context.Context, tx domain.Tx) error) error {
	return s.run(ctx, false, fn)
}

// WithinReadOnly выполняет fn на согласованном снимке; запись запрещена.
func (s *Store) WithinReadOnly(ctx context.Context, fn func(ctx context.Context, tx domain.Tx) error) error {
	return s.run(ctx, true, fn)
}

func (s *Store) run(ctx context.Context, readOnly bool, fn func(ctx context.Context, tx domain.Tx) error) (err error) {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	tx := &memTx{s: s, readOnly: readOnly}
	defer func() {
		if r := recover(); r != nil {
			tx.rollback()
			panic(r)
		}
	}()

	if err = fn(ctx, tx); err != nil {
		tx.rollback()
		return err
	}
	if err = ctx.Err(); err != nil {
		tx.rollback()
		return err
	}
	return nil
}

// Outbox возвращает outbox-репозиторий для работы вне транзакций (воркер публикации).
func (s *Store) Outbox() domain.OutboxRepository {
	return &lockedOutbox{s: s}
}

// memTx копит функции отмены в порядке применения изменений.
type memTx struct {
	s        *Store
	readOnly bool
	journal  []func()
}

func (t *memTx) Stock() domain.StockRepository              { return &stockRepo{tx: t} }
func (t *memTx) Reservations() domain.ReservationRepository { return &reservationRepo{tx: t} }
func (t *memTx) Promotions() domain.PromotionRepository     { return &promotionRepo{tx: t} }
func (t *memTx) Customers() domain.CustomerRepository       { return &customerRepo{tx: t} }
func (t *memTx) Loyalty() domain.LoyaltyRepository          { return &loyaltyRepo{tx: t} }
func (t *memTx) Orders() domain.OrderRepository             { return &orderRepo{tx: t} }
func (t *memTx) History() domain.StatusHistoryRepository    { return &historyRepo{tx: t} }
func (t *memTx) Outbox() domain.OutboxRepository            { return &outboxRepo{tx: t} }

func (t *memTx) writable() error {
	if t.readOnly {
		return errReadOnly
	}
	return nil
}

func (t *memTx) onRollback(undo func()) {
	t.journal = append(t.journal, undo)
}

func (t *memTx) rollback() {
	for i := len(t.journal) - 1; i >= 0; i-- {
		t.journal[i]()
	}
	t.journal = nil
}

// put записывает значение в map и регистрирует восстановление предыдущего.
func put[K comparable, V any](t *memTx, m map[K]V, key K, value V) {
	prev, existed := m[key]
	m[key] = value
	t.onRollback(func() {
		if existed {
			m[key] = prev
		} else {
			delete(m, key)
		}
	})
}

// appendTo добавляет элемент в список под ключом с откатом по длине.
func appendTo[K comparable, V any](t *memTx, m map[K][]V, key K, value V) {
	prevLen := len(m[key])
	m[key] = append(m[key], value)
	t.onRollback(func() {
		if prevLen == 0 {
			delete(m, key)
			return
		}
		m[key] = m[key][:prevLen]
	})
}

func cloneTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	v := *t
	return &v
}
