package kafka

import (
	"encoding/json"
	"fmt"

	"github.com/IBM/sarama"
)

// Kafka topics сервиса заказов.
const (
	// TopicOrderEvents — события жизненного цикла заказа (из outbox).
	TopicOrderEvents = "orders.order.events"
	// TopicPaymentSucceeded — подтверждения оплаты от платёжного сервиса.
	TopicPaymentSucceeded = "orders.payment.succeeded"
	// TopicDeadLetterQueue — сообщения, не обработанные после всех retry.
	TopicDeadLetterQueue = "orders.dlq"
)

// Kafka headers для retry логики.
const (
	HeaderRetryCount    = "x-retry-count"
	HeaderOriginalTopic = "x-original-topic"
	HeaderErrorMessage  = "x-error-message"
	HeaderFailedAt      = "x-failed-at"
)

// PaymentSucceededEvent — событие успешной оплаты заказа.
type PaymentSucceededEvent struct {
	OrderID         string `json:"orderId"`
	StripePaymentID string `json:"stripePaymentId"`
	ReceiptURL      string `json:"receiptUrl"`
}

// ParsePaymentSucceededEvent разбирает событие оплаты из сообщения.
func ParsePaymentSucceededEvent(message *sarama.ConsumerMessage) (*PaymentSucceededEvent, error) {
	var event PaymentSucceededEvent
	if err := json.Unmarshal(message.Value, &event); err != nil {
		return nil, fmt.Errorf("failed to unmarshal payment succeeded event: %w", err)
	}
	if event.OrderID == "" {
		return nil, fmt.Errorf("payment succeeded event has empty orderId")
	}
	if event.StripePaymentID == "" {
		return nil, fmt.Errorf("payment succeeded event has empty stripePaymentId")
	}
	return &event, nil
}
