package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// ValidatedProduct — ответ каталога по одному товару.
type ValidatedProduct struct {
	ID    int64
	Name  string
	Price decimal.Decimal
}

// ProductValidator описывает взаимодействие с сервисом каталога.
type ProductValidator interface {
	// Validate проверяет существование товаров и возвращает имя/цену по каждому id.
	// Вызов делается один раз на весь набор id, чтобы ограничить число remote
	// round trips. Отсутствующие id просто не попадают в результат; недоступность
	// каталога — ErrCatalogUnavailable.
	Validate(productIDs []int64) (map[int64]ValidatedProduct, error)
}

// PaymentSessionItem — одна позиция для платёжной сессии.
type PaymentSessionItem struct {
	Name     string          `json:"name"`
	Price    decimal.Decimal `json:"price"`
	Quantity int32           `json:"quantity"`
}

// PaymentSession — handle платёжной сессии, возвращаемый платёжным сервисом.
type PaymentSession struct {
	URL        string `json:"url"`
	SuccessURL string `json:"successUrl"`
	CancelURL  string `json:"cancelUrl"`
}

// PaymentSessions описывает взаимодействие с платёжным сервисом.
type PaymentSessions interface {
	// CreateSession запрашивает платёжную сессию для уже сохранённого заказа.
	// Недоступность сервиса — ErrPaymentUnavailable.
	CreateSession(orderID string, currency string, items []PaymentSessionItem) (PaymentSession, error)
}

// OutboxMessage хранит данные для публикуемого события.
type OutboxMessage struct {
	ID            string
	AggregateType string
	AggregateID   string
	EventType     string
	Payload       []byte
}

// OutboxStats описывает текущее состояние backlog transactional outbox.
type OutboxStats struct {
	PendingCount    int
	OldestPendingAt time.Time
}

// OutboxRepository позволяет сохранять события для последующей публикации.
type OutboxRepository interface {
	Enqueue(msg OutboxMessage) (OutboxMessage, error)
	PullPending(limit int) ([]OutboxMessage, error)
	Stats() (OutboxStats, error)
	MarkSent(id string) error
	MarkFailed(id string) error
}

// OutboxPublisher публикует события из transactional outbox.
type OutboxPublisher interface {
	// Publish передаёт событие наружу; должен быть идемпотентным.
	Publish(event OutboxMessage) error
}
