package app

import (
	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/orders-ms/internal/domain"
	"github.com/vladislavdragonenkov/orders-ms/internal/service/catalog"
	"github.com/vladislavdragonenkov/orders-ms/internal/service/payments"
	"github.com/vladislavdragonenkov/orders-ms/internal/storage/memory"
)

// Dependencies содержит зависимости оркестратора заказов.
type Dependencies struct {
	Repo       domain.OrderRepository
	OutboxRepo domain.OutboxRepository
	Catalog    domain.ProductValidator
	Payments   domain.PaymentSessions
	Logger     *log.Entry
}

// NewDependencies собирает in-memory зависимости для локальной разработки
// и тестов: хранилище в памяти, mock каталога и mock платёжного сервиса.
func NewDependencies(logger *log.Entry) *Dependencies {
	if logger == nil {
		logger = log.WithField("component", "app")
	}

	return &Dependencies{
		Repo:       memory.NewOrderRepository(),
		OutboxRepo: memory.NewOutboxRepository(),
		Catalog:    catalog.NewMockValidator(),
		Payments:   payments.NewMockSessions(),
		Logger:     logger,
	}
}
