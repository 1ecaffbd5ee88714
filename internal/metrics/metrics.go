package metrics

import (
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Checkout-результаты, не являющиеся кодами ошибок.
const (
	ResultCreated  = "created"
	ResultReplayed = "replayed"
)

// Metrics содержит метрики checkout и переходов статусов заказа.
// Все методы допускают nil-получатель.
type Metrics struct {
	checkouts         *prometheus.CounterVec
	checkoutDuration  prometheus.Histogram
	checkoutsInFlight prometheus.Gauge

	transitions        *prometheus.CounterVec
	transitionRejected *prometheus.CounterVec

	promotionRedeemed prometheus.Counter
	promotionReverted prometheus.Counter
	pointsRedeemed    prometheus.Counter
	pointsAccrued     prometheus.Counter
	pointsRefunded    prometheus.Counter
	stockLow          prometheus.Counter

	outboxPublish   *prometheus.CounterVec
	outboxPending   prometheus.Gauge
	outboxOldestAge prometheus.Gauge
}

// New создаёт метрики в DefaultRegisterer.
func New() *Metrics {
	return NewWithRegisterer(prometheus.DefaultRegisterer)
}

// NewWithRegisterer создаёт метрики в указанном registerer; повторная регистрация переиспользует коллекторы.
func NewWithRegisterer(registerer prometheus.Registerer) *Metrics {
	if registerer == nil {
		registerer = prometheus.DefaultRegisterer
	}

	return &Metrics{
		checkouts: registerCounterVec(registerer, prometheus.CounterOpts{
			Name: "storefront_checkouts_total",
			Help: "Total number of checkout attempts grouped by result code.",
		}, []string{"result"}),
		checkoutDuration: registerHistogram(registerer, prometheus.HistogramOpts{
			Name:    "storefront_checkout_duration_seconds",
			Help:    "Duration of checkout transactions in seconds.",
			Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1.0, 2.5, 5.0},
		}),
		checkoutsInFlight: registerGauge(registerer, prometheus.GaugeOpts{
			Name: "storefront_checkouts_in_flight",
			Help: "Number of checkout transactions currently running.",
		}),
		transitions: registerCounterVec(registerer, prometheus.CounterOpts{
			Name: "storefront_order_transitions_total",
			Help: "Total number of applied order status transitions.",
		}, []string{"from", "to"}),
		transitionRejected: registerCounterVec(registerer, prometheus.CounterOpts{
			Name: "storefront_order_transitions_rejected_total",
			Help: "Total number of rejected order status transitions grouped by reason.",
		}, []string{"reason"}),
		promotionRedeemed: registerCounter(registerer, prometheus.CounterOpts{
			Name: "storefront_promotion_redemptions_total",
			Help: "Total number of promotion usages recorded at checkout.",
		}),
		promotionReverted: registerCounter(registerer, prometheus.CounterOpts{
			Name: "storefront_promotion_reversals_total",
			Help: "Total number of promotion usages reverted by cancellation.",
		}),
		pointsRedeemed: registerCounter(registerer, prometheus.CounterOpts{
			Name: "storefront_loyalty_points_redeemed_total",
			Help: "Total loyalty points spent as order discounts.",
		}),
		pointsAccrued: registerCounter(registerer, prometheus.CounterOpts{
			Name: "storefront_loyalty_points_accrued_total",
			Help: "Total loyalty points earned on completed orders.",
		}),
		pointsRefunded: registerCounter(registerer, prometheus.CounterOpts{
			Name: "storefront_loyalty_points_refunded_total",
			Help: "Total loyalty points returned by cancellation.",
		}),
		stockLow: registerCounter(registerer, prometheus.CounterOpts{
			Name: "storefront_stock_low_events_total",
			Help: "Total number of low-stock events emitted.",
		}),
		outboxPublish: registerCounterVec(registerer, prometheus.CounterOpts{
			Name: "storefront_outbox_publish_attempts_total",
			Help: "Total number of outbox publish attempts grouped by result.",
		}, []string{"result"}),
		outboxPending: registerGauge(registerer, prometheus.GaugeOpts{
			Name: "storefront_outbox_pending_records",
			Help: "Current number of pending records in transactional outbox.",
		}),
		outboxOldestAge: registerGauge(registerer, prometheus.GaugeOpts{
			Name: "storefront_outbox_oldest_pending_age_seconds",
			Help: "Age in seconds of the oldest pending outbox record.",
		}),
	}
}

func registerCounter(registerer prometheus.Registerer, opts prometheus.CounterOpts) prometheus.Counter {
	collector := prometheus.NewCounter(opts)
	if err := registerer.Register(collector); err != nil {
		if alreadyRegistered, ok := err.(prometheus.AlreadyRegisteredError); ok {
			existing, ok := alreadyRegistered.ExistingCollector.(prometheus.Counter)
			if !ok {
				panic(fmt.Sprintf("collector %q already registered with unexpected type", opts.Name))
			}
			return existing
		}
		panic(fmt.Sprintf("register counter %q: %v", opts.Name, err))
	}
	return collector
}

func registerCounterVec(registerer prometheus.Registerer, opts prometheus.CounterOpts, labels []string) *prometheus.CounterVec {
	collector := prometheus.NewCounterVec(opts, labels)
	if err := registerer.Register(collector); err != nil {
		if alreadyRegistered, ok := err.(prometheus.AlreadyRegisteredError); ok {
			existing, ok := alreadyRegistered.ExistingCollector.(*prometheus.CounterVec)
			if !ok {
				panic(fmt.Sprintf("collector %q already registered with unexpected type", opts.Name))
			}
			return existing
		}
		panic(fmt.Sprintf("register counter vec %q: %v", opts.Name, err))
	}
	return collector
}

func registerGauge(registerer prometheus.Registerer, opts prometheus.GaugeOpts) prometheus.Gauge {
	collector := prometheus.NewGauge(opts)
	if err := registerer.Register(collector); err != nil {
		if alreadyRegistered, ok := err.(prometheus.AlreadyRegisteredError); ok {
			existing, ok := alreadyRegistered.ExistingCollector.(prometheus.Gauge)
			if !ok {
				panic(fmt.Sprintf("collector %q already registered with unexpected type", opts.Name))
			}
			return existing
		}
		panic(fmt.Sprintf("register gauge %q: %v", opts.Name, err))
	}
	return collector
}

func registerHistogram(registerer prometheus.Registerer, opts prometheus.HistogramOpts) prometheus.Histogram {
	collector := prometheus.NewHistogram(opts)
	if err := registerer.Register(collector); err != nil {
		if alreadyRegistered, ok := err.(prometheus.AlreadyRegisteredError); ok {
			existing, ok := alreadyRegistered.ExistingCollector.(prometheus.Histogram)
			if !ok {
				panic(fmt.Sprintf("collector %q already registered with unexpected type", opts.Name))
			}
			return existing
		}
		panic(fmt.Sprintf("register histogram %q: %v", opts.Name, err))
	}
	return collector
}

// CheckoutStarted отмечает начало checkout и возвращает функцию завершения.
func (m *Metrics) CheckoutStarted() func(result string) {
	if m == nil {
		return func(string) {}
	}
	started := time.Now()
	m.checkoutsInFlight.Inc()
	return func(result string) {
		m.checkoutsInFlight.Dec()
		m.checkoutDuration.Observe(time.Since(started).Seconds())
		m.checkouts.WithLabelValues(result).Inc()
	}
}

// RecordTransition учитывает применённый переход статуса.
func (m *Metrics) RecordTransition(from, to string) {
	if m == nil {
		return
	}
	m.transitions.WithLabelValues(from, to).Inc()
}

// RecordTransitionRejected учитывает отклонённый переход.
func (m *Metrics) RecordTransitionRejected(reason string) {
	if m == nil {
		return
	}
	m.transitionRejected.WithLabelValues(reason).Inc()
}

// RecordPromotionRedeemed увеличивает счётчик применений промокодов.
func (m *Metrics) RecordPromotionRedeemed() {
	if m == nil {
		return
	}
	m.promotionRedeemed.Inc()
}

// RecordPromotionReverted увеличивает счётчик отменённых применений.
func (m *Metrics) RecordPromotionReverted() {
	if m == nil {
		return
	}
	m.promotionReverted.Inc()
}

// RecordPointsRedeemed учитывает списанные баллы.
func (m *Metrics) RecordPointsRedeemed(points int64) {
	if m == nil || points <= 0 {
		return
	}
	m.pointsRedeemed.Add(float64(points))
}

// RecordPointsAccrued учитывает начисленные баллы.
func (m *Metrics) RecordPointsAccrued(points int64) {
	if m == nil || points <= 0 {
		return
	}
	m.pointsAccrued.Add(float64(points))
}

// RecordPointsRefunded учитывает возвращённые баллы.
func (m *Metrics) RecordPointsRefunded(points int64) {
	if m == nil || points <= 0 {
		return
	}
	m.pointsRefunded.Add(float64(points))
}

// RecordStockLow увеличивает счётчик событий низкого остатка.
func (m *Metrics) RecordStockLow() {
	if m == nil {
		return
	}
	m.stockLow.Inc()
}

// RecordOutboxPublish учитывает попытку публикации события outbox.
func (m *Metrics) RecordOutboxPublish(result string) {
	if m == nil {
		return
	}
	m.outboxPublish.WithLabelValues(result).Inc()
}

// SetOutboxBacklog обновляет размер backlog и возраст старейшей записи.
func (m *Metrics) SetOutboxBacklog(pending int, oldestAge time.Duration) {
	if m == nil {
		return
	}
	if oldestAge < 0 {
		oldestAge = 0
	}
	m.outboxPending.Set(float64(pending))
	m.outboxOldestAge.Set(oldestAge.Seconds())
}
