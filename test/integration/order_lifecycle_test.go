package integration

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/IBM/sarama"
	log "github.com/sirupsen/logrus"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"

	"github.com/vladislavdragonenkov/orders-ms/internal/domain"
	"github.com/vladislavdragonenkov/orders-ms/internal/messaging/kafka"
	"github.com/vladislavdragonenkov/orders-ms/internal/rpc"
	"github.com/vladislavdragonenkov/orders-ms/internal/service/catalog"
	natssvc "github.com/vladislavdragonenkov/orders-ms/internal/service/nats"
	"github.com/vladislavdragonenkov/orders-ms/internal/service/orders"
	"github.com/vladislavdragonenkov/orders-ms/internal/service/payments"
	"github.com/vladislavdragonenkov/orders-ms/internal/service/settlement"
	"github.com/vladislavdragonenkov/orders-ms/internal/storage/memory"
)

type envelope struct {
	Data  json.RawMessage `json:"data"`
	Error *rpc.Error      `json:"error"`
}

type orderView struct {
	ID          string     `json:"id"`
	TotalAmount string     `json:"totalAmount"`
	TotalItems  int        `json:"totalItems"`
	Status      string     `json:"status"`
	Paid        bool       `json:"paid"`
	PaidAt      *time.Time `json:"paidAt"`
}

// OrderLifecycleTestSuite тестирует полный жизненный цикл заказов.
type OrderLifecycleTestSuite struct {
	suite.Suite
	handlers *natssvc.Handlers
	listener *settlement.Listener
	service  *orders.Service
	repo     domain.OrderRepository
	outbox   domain.OutboxRepository
	catalog  *catalog.MockValidator
	payments *payments.MockSessions
}

func (suite *OrderLifecycleTestSuite) SetupTest() {
	baseLogger := log.New()
	baseLogger.SetLevel(log.WarnLevel) // Уменьшаем шум в тестах
	logger := baseLogger.WithField("component", "integration-test")

	suite.repo = memory.NewOrderRepository()
	suite.outbox = memory.NewOutboxRepository()
	suite.catalog = catalog.NewMockValidator()
	suite.payments = payments.NewMockSessions()

	suite.service = orders.NewServiceWithoutMetrics(
		suite.repo,
		suite.catalog,
		suite.payments,
		suite.outbox,
		logger,
	)

	suite.handlers = natssvc.NewHandlersWithoutMetrics(suite.service, logger)
	suite.listener = settlement.NewListenerWithoutMetrics(suite.service, logger)
}

func (suite *OrderLifecycleTestSuite) TestSuccessfulOrderSettlement() {
	// 1. Создаём заказ через message-handler
	order := suite.createOrder()
	require.Equal(suite.T(), string(domain.OrderStatusPending), order.Status)
	require.Equal(suite.T(), "45", order.TotalAmount)
	require.Equal(suite.T(), 3, order.TotalItems)
	require.False(suite.T(), order.Paid)
	require.Equal(suite.T(), 1, suite.catalog.ValidateCalls)
	require.Equal(suite.T(), 1, suite.payments.CreateCalls)
	require.Equal(suite.T(), order.ID, suite.payments.LastOrderID)

	// 2. Оплата подтверждается событием из платёжного сервиса
	suite.deliverPaymentSucceeded(order.ID, "pi_3NcbX", "https://pay.test/receipts/1")

	// 3. Проверяем финальное состояние
	paid := suite.getOrder(order.ID)
	require.Equal(suite.T(), string(domain.OrderStatusPaid), paid.Status)
	require.True(suite.T(), paid.Paid)
	require.NotNil(suite.T(), paid.PaidAt)

	// 4. Повторная доставка того же события ничего не меняет
	firstPaidAt := *paid.PaidAt
	suite.deliverPaymentSucceeded(order.ID, "pi_other", "https://pay.test/receipts/2")

	again := suite.getOrder(order.ID)
	require.Equal(suite.T(), string(domain.OrderStatusPaid), again.Status)
	require.NotNil(suite.T(), again.PaidAt)
	require.True(suite.T(), firstPaidAt.Equal(*again.PaidAt))

	// 5. Доменные события накоплены в outbox
	pending, err := suite.outbox.PullPending(10)
	require.NoError(suite.T(), err)
	require.GreaterOrEqual(suite.T(), len(pending), 2)
	require.Equal(suite.T(), "order.created", pending[0].EventType)
	require.Equal(suite.T(), order.ID, pending[0].AggregateID)
}

func (suite *OrderLifecycleTestSuite) TestOrderCancellation() {
	order := suite.createOrder()

	payload, _ := json.Marshal(map[string]string{
		"id":     order.ID,
		"status": string(domain.OrderStatusCancelled),
	})
	reply := suite.handlers.Handle(natssvc.PatternChangeOrderStatus, payload)

	var env envelope
	require.NoError(suite.T(), json.Unmarshal(reply, &env))
	require.Nil(suite.T(), env.Error)

	cancelled := suite.getOrder(order.ID)
	require.Equal(suite.T(), string(domain.OrderStatusCancelled), cancelled.Status)
	require.False(suite.T(), cancelled.Paid)
}

func (suite *OrderLifecycleTestSuite) TestUnknownProductRejected() {
	payload, _ := json.Marshal(map[string]any{
		"items": []map[string]any{
			{"productId": 999, "quantity": 1},
		},
	})
	reply := suite.handlers.Handle(natssvc.PatternCreateOrder, payload)

	var env envelope
	require.NoError(suite.T(), json.Unmarshal(reply, &env))
	require.NotNil(suite.T(), env.Error)
	require.Equal(suite.T(), 400, env.Error.Status)

	// Платёжная сессия не создаётся для невалидного заказа
	require.Equal(suite.T(), 0, suite.payments.CreateCalls)
}

func (suite *OrderLifecycleTestSuite) TestCatalogUnavailable() {
	suite.catalog.Err = domain.ErrCatalogUnavailable

	payload, _ := json.Marshal(map[string]any{
		"items": []map[string]any{
			{"productId": 1, "quantity": 1},
		},
	})
	reply := suite.handlers.Handle(natssvc.PatternCreateOrder, payload)

	var env envelope
	require.NoError(suite.T(), json.Unmarshal(reply, &env))
	require.NotNil(suite.T(), env.Error)
	require.Equal(suite.T(), 503, env.Error.Status)
}

func (suite *OrderLifecycleTestSuite) TestPaginatedListing() {
	for i := 0; i < 7; i++ {
		suite.createOrder()
	}

	payload, _ := json.Marshal(map[string]int{"page": 2, "limit": 3})
	reply := suite.handlers.Handle(natssvc.PatternFindAllOrders, payload)

	var env envelope
	require.NoError(suite.T(), json.Unmarshal(reply, &env))
	require.Nil(suite.T(), env.Error)

	var page struct {
		Data []orderView `json:"data"`
		Meta struct {
			Total    int `json:"total"`
			Page     int `json:"page"`
			LastPage int `json:"lastPage"`
		} `json:"meta"`
	}
	require.NoError(suite.T(), json.Unmarshal(env.Data, &page))
	require.Len(suite.T(), page.Data, 3)
	require.Equal(suite.T(), 7, page.Meta.Total)
	require.Equal(suite.T(), 2, page.Meta.Page)
	require.Equal(suite.T(), 3, page.Meta.LastPage)
}

// Вспомогательные методы

func (suite *OrderLifecycleTestSuite) createOrder() orderView {
	payload, _ := json.Marshal(map[string]any{
		"items": []map[string]any{
			{"productId": 1, "quantity": 2},
			{"productId": 2, "quantity": 1},
		},
	})
	reply := suite.handlers.Handle(natssvc.PatternCreateOrder, payload)

	var env envelope
	require.NoError(suite.T(), json.Unmarshal(reply, &env))
	require.Nil(suite.T(), env.Error)

	var result struct {
		Order          orderView             `json:"order"`
		PaymentSession domain.PaymentSession `json:"paymentSession"`
	}
	require.NoError(suite.T(), json.Unmarshal(env.Data, &result))
	require.NotEmpty(suite.T(), result.Order.ID)
	return result.Order
}

func (suite *OrderLifecycleTestSuite) getOrder(id string) orderView {
	payload, _ := json.Marshal(map[string]string{"id": id})
	reply := suite.handlers.Handle(natssvc.PatternFindOneOrder, payload)

	var env envelope
	require.NoError(suite.T(), json.Unmarshal(reply, &env))
	require.Nil(suite.T(), env.Error)

	var order orderView
	require.NoError(suite.T(), json.Unmarshal(env.Data, &order))
	return order
}

func (suite *OrderLifecycleTestSuite) deliverPaymentSucceeded(orderID, paymentRef, receiptURL string) {
	body, _ := json.Marshal(kafka.PaymentSucceededEvent{
		OrderID:         orderID,
		StripePaymentID: paymentRef,
		ReceiptURL:      receiptURL,
	})
	err := suite.listener.Handle(context.Background(), &sarama.ConsumerMessage{
		Topic: kafka.TopicPaymentSucceeded,
		Value: body,
	})
	require.NoError(suite.T(), err)
}

func TestOrderLifecycle(t *testing.T) {
	suite.Run(t, new(OrderLifecycleTestSuite))
}
