// Package settlement обрабатывает подтверждения оплаты из Kafka и переводит
// заказы в статус PAID. Повторная доставка события безопасна: оркестратор
// игнорирует уже оплаченные заказы.
package settlement

import (
	"context"
	"fmt"

	"github.com/IBM/sarama"
	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/orders-ms/internal/domain"
	"github.com/vladislavdragonenkov/orders-ms/internal/messaging/kafka"
	"github.com/vladislavdragonenkov/orders-ms/internal/metrics"
)

// Settler — операция оркестратора, применяющая оплату к заказу.
type Settler interface {
	MarkPaid(orderID, externalPaymentRef, receiptURL string) (domain.Order, error)
}

// Listener превращает события оплаты в вызовы оркестратора.
type Listener struct {
	settler Settler
	logger  *log.Entry
	metrics *metrics.OrderMetrics
}

// NewListener конструирует Listener с зависимостями.
func NewListener(settler Settler, logger *log.Entry) *Listener {
	if logger == nil {
		logger = log.New().WithField("component", "settlement")
	}
	return &Listener{
		settler: settler,
		logger:  logger,
		metrics: metrics.NewOrderMetrics(),
	}
}

// NewListenerWithoutMetrics конструирует Listener без метрик (для тестов).
func NewListenerWithoutMetrics(settler Settler, logger *log.Entry) *Listener {
	l := NewListener(settler, logger)
	l.metrics = nil
	return l
}

// Handle — kafka.MessageHandler для topic'а подтверждений оплаты.
//
// Ошибка разбора payload'а возвращается наружу: такое сообщение нельзя
// применить и оно уходит в DLQ после исчерпания retry. Ошибка оркестратора
// тоже возвращается, чтобы consumer повторил доставку.
func (l *Listener) Handle(_ context.Context, message *sarama.ConsumerMessage) error {
	event, err := kafka.ParsePaymentSucceededEvent(message)
	if err != nil {
		l.recordSettlement("malformed")
		return fmt.Errorf("parse payment succeeded event: %w", err)
	}

	order, err := l.settler.MarkPaid(event.OrderID, event.StripePaymentID, event.ReceiptURL)
	if err != nil {
		l.recordSettlement("error")
		l.logger.WithError(err).WithField("order_id", event.OrderID).Error("failed to settle order")
		return fmt.Errorf("settle order %s: %w", event.OrderID, err)
	}

	l.recordSettlement("ok")
	l.logger.WithFields(log.Fields{
		"order_id": order.ID,
		"status":   order.Status,
	}).Info("order settled")
	return nil
}

func (l *Listener) recordSettlement(result string) {
	if l.metrics != nil {
		l.metrics.RecordSettlement(result)
	}
}
