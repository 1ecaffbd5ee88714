package outbox

import (
	"sync"
	"time"

	"github.com/cockroachdb/errors"
	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/storefront/internal/domain"
)

// ErrCircuitOpen возвращается, пока брокер считается недоступным; событие остаётся pending.
var ErrCircuitOpen = errors.New("outbox: circuit breaker is open")

// CircuitState — состояние предохранителя.
type CircuitState int

const (
	CircuitClosed CircuitState = iota
	CircuitOpen
	CircuitHalfOpen
)

func (s CircuitState) String() string {
	switch s {
	case CircuitOpen:
		return "open"
	case CircuitHalfOpen:
		return "half-open"
	default:
		return "closed"
	}
}

// BreakerPublisher размыкает цепь после maxFailures подряд неудачных публикаций
// и пропускает одну пробную попытку спустя resetTimeout.
type BreakerPublisher struct {
	publisher    domain.OutboxPublisher
	maxFailures  int
	resetTimeout time.Duration
	logger       *log.Entry
	now          func() time.Time

	mu          sync.Mutex
	failures    int
	lastFailure time.Time
	state       CircuitState
}

// NewBreakerPublisher оборачивает publisher предохранителем.
func NewBreakerPublisher(publisher domain.OutboxPublisher, maxFailures int, resetTimeout time.Duration, logger *log.Entry) *BreakerPublisher {
	if maxFailures <= 0 {
		maxFailures = 5
	}
	if resetTimeout <= 0 {
		resetTimeout = 30 * time.Second
	}
	if logger == nil {
		logger = log.WithField("component", "outbox-breaker")
	}
	return &BreakerPublisher{
		publisher:    publisher,
		maxFailures:  maxFailures,
		resetTimeout: resetTimeout,
		logger:       logger,
		now:          time.Now,
		state:        CircuitClosed,
	}
}

// State возвращает текущее состояние цепи.
func (b *BreakerPublisher) State() CircuitState {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state
}

func (b *BreakerPublisher) Publish(event domain.OutboxMessage) error {
	if !b.allow() {
		return ErrCircuitOpen
	}

	err := b.publisher.Publish(event)
	b.record(err)
	return err
}

func (b *BreakerPublisher) allow() bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	switch b.state {
	case CircuitOpen:
		if b.now().Sub(b.lastFailure) < b.resetTimeout {
			return false
		}
		b.state = CircuitHalfOpen
		b.logger.Info("circuit breaker half-open")
		return true
	case CircuitHalfOpen:
		// пробная публикация уже идёт
		return false
	default:
		return true
	}
}

func (b *BreakerPublisher) record(err error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if err == nil {
		if b.state != CircuitClosed {
			b.logger.Info("circuit breaker closed")
		}
		b.state = CircuitClosed
		b.failures = 0
		return
	}

	b.failures++
	b.lastFailure = b.now()
	if b.state == CircuitHalfOpen || b.failures >= b.maxFailures {
		if b.state != CircuitOpen {
			b.logger.WithError(err).WithField("failures", b.failures).Warn("circuit breaker opened")
		}
		b.state = CircuitOpen
	}
}

var _ domain.OutboxPublisher = (*BreakerPublisher)(nil)
