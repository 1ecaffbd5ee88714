package app

import (
	"strings"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/storefront/internal/domain"
	"github.com/vladislavdragonenkov/storefront/internal/messaging/kafka"
	"github.com/vladislavdragonenkov/storefront/internal/service/outbox"
)

// Предохранитель основного топика: после серии отказов брокера события ждут в outbox.
const (
	breakerMaxFailures  = 5
	breakerResetTimeout = 30 * time.Second
)

// eventPublishers — получатели событий outbox: основной топик и DLQ.
type eventPublishers struct {
	events   domain.OutboxPublisher
	dlq      domain.OutboxPublisher
	producer *kafka.Producer
}

// initKafkaProducer инициализирует Kafka producer, если список brokers не пустой.
// Возвращает nil, nil при пустом списке.
func initKafkaProducer(brokers []string, logger *log.Entry) (*kafka.Producer, error) {
	brokerList := normalizeBrokers(brokers)
	if len(brokerList) == 0 {
		return nil, nil
	}

	producer, err := kafka.NewProducer(brokerList, logger.WithField("component", "kafka-producer"))
	if err != nil {
		logger.WithError(err).Warn("failed to create kafka producer")
		return nil, err
	}

	logger.WithField("brokers", brokerList).Info("kafka producer initialized")
	return producer, nil
}

// initPublishers выбирает Kafka, а без брокеров или при ошибке подключения пишет события в лог.
func initPublishers(cfg Config, logger *log.Entry) eventPublishers {
	producer, err := initKafkaProducer(cfg.KafkaBrokers, logger)
	if err != nil || producer == nil {
		if err != nil {
			logger.Warn("continuing without kafka, outbox events go to log")
		}
		return eventPublishers{
			events: outbox.NewLogPublisher(logger.WithField("component", "outbox-log")),
		}
	}

	events := outbox.NewBreakerPublisher(
		kafka.NewOutboxPublisher(producer, cfg.KafkaTopic),
		breakerMaxFailures, breakerResetTimeout,
		logger.WithField("component", "outbox-breaker"),
	)
	return eventPublishers{
		events:   events,
		dlq:      kafka.NewOutboxPublisher(producer, kafka.TopicDeadLetterQueue),
		producer: producer,
	}
}

func normalizeBrokers(brokers []string) []string {
	result := make([]string, 0, len(brokers))
	for _, broker := range brokers {
		for _, part := range strings.Split(broker, ",") {
			if part = strings.TrimSpace(part); part != "" {
				result = append(result, part)
			}
		}
	}
	return result
}

// closeKafka закрывает Kafka producer, если он не nil.
func closeKafka(producer *kafka.Producer, logger *log.Entry) {
	if producer == nil {
		return
	}

	if err := producer.Close(); err != nil {
		logger.WithError(err).Warn("failed to close kafka producer")
	} else {
		logger.Info("kafka producer closed")
	}
}
