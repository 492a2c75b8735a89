package app

import (
	"strings"

	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/orders-ms/internal/messaging/kafka"
)

const settlementMaxRetries = 3

// splitBrokers разбирает список брокеров из конфигурации,
// отбрасывая пустые элементы.
func splitBrokers(brokers string) []string {
	var list []string
	for _, broker := range strings.Split(brokers, ",") {
		if broker = strings.TrimSpace(broker); broker != "" {
			list = append(list, broker)
		}
	}
	return list
}

// initKafkaProducer поднимает producer, когда брокеры заданы.
// Пустая конфигурация выключает event plane целиком.
func initKafkaProducer(brokers string, logger *log.Entry) (*kafka.Producer, error) {
	list := splitBrokers(brokers)
	if len(list) == 0 {
		return nil, nil
	}

	producer, err := kafka.NewProducer(list)
	if err != nil {
		logger.WithError(err).Warn("kafka producer unavailable, events are disabled")
		return nil, err
	}

	logger.WithField("brokers", list).Info("kafka producer initialized")
	return producer, nil
}

// initSettlementConsumer подписывает обработчик подтверждений оплаты
// на топик payment.succeeded с ретраями и DLQ.
func initSettlementConsumer(brokers, groupID string, handler kafka.MessageHandler, dlqProducer *kafka.Producer, logger *log.Entry) (*kafka.Consumer, error) {
	list := splitBrokers(brokers)
	if len(list) == 0 {
		return nil, nil
	}

	consumer, err := kafka.NewConsumerWithDLQ(
		list,
		groupID,
		[]string{kafka.TopicPaymentSucceeded},
		handler,
		dlqProducer,
		settlementMaxRetries,
	)
	if err != nil {
		logger.WithError(err).Warn("settlement consumer unavailable, payments are not settled")
		return nil, err
	}

	logger.WithFields(log.Fields{
		"brokers": list,
		"group":   groupID,
		"topic":   kafka.TopicPaymentSucceeded,
	}).Info("settlement consumer initialized")
	return consumer, nil
}

func closeKafka(producer *kafka.Producer, logger *log.Entry) {
	if producer == nil {
		return
	}
	if err := producer.Close(); err != nil {
		logger.WithError(err).Warn("failed to close kafka producer")
		return
	}
	logger.Info("kafka producer closed")
}
