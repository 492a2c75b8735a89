// Package natssvc связывает request/reply message patterns сервиса заказов
// с оркестратором. Транспортом выступает NATS; сами обработчики принимают
// и возвращают байтовые payload'ы, что позволяет тестировать их без брокера.
package natssvc

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/nats-io/nats.go"
	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/orders-ms/internal/domain"
	"github.com/vladislavdragonenkov/orders-ms/internal/metrics"
	"github.com/vladislavdragonenkov/orders-ms/internal/rpc"
	"github.com/vladislavdragonenkov/orders-ms/internal/service/orders"
)

// Message patterns сервиса заказов.
const (
	PatternCreateOrder       = "createOrder"
	PatternFindAllOrders     = "findAllOrders"
	PatternFindOneOrder      = "findOneOrder"
	PatternChangeOrderStatus = "changeOrderStatus"

	// queueGroup обеспечивает распределение запросов между инстансами сервиса.
	queueGroup = "orders"
)

// OrderService — операции оркестратора, доступные через message patterns.
type OrderService interface {
	Create(items []orders.CreateItem) (orders.CreateResult, error)
	FindAll(status *domain.OrderStatus, page, limit int) (orders.OrderPage, error)
	FindOne(id string) (domain.Order, error)
	ChangeStatus(id string, status domain.OrderStatus) (domain.Order, error)
}

// Handlers обрабатывает входящие message patterns заказов.
type Handlers struct {
	svc     OrderService
	logger  *log.Entry
	metrics *metrics.OrderMetrics
	subs    []*nats.Subscription
}

// NewHandlers конструирует обработчики с зависимостями.
func NewHandlers(svc OrderService, logger *log.Entry) *Handlers {
	if logger == nil {
		logger = log.New().WithField("component", "order-handlers")
	}
	return &Handlers{
		svc:     svc,
		logger:  logger,
		metrics: metrics.NewOrderMetrics(),
	}
}

// NewHandlersWithoutMetrics конструирует обработчики без метрик (для тестов).
func NewHandlersWithoutMetrics(svc OrderService, logger *log.Entry) *Handlers {
	h := NewHandlers(svc, logger)
	h.metrics = nil
	return h
}

// subscriber — минимальный интерфейс подписки поверх NATS.
type subscriber interface {
	QueueSubscribe(subj, queue string, cb nats.MsgHandler) (*nats.Subscription, error)
}

// Register подписывает обработчики на все patterns сервиса.
func (h *Handlers) Register(conn subscriber) error {
	patterns := []string{
		PatternCreateOrder,
		PatternFindAllOrders,
		PatternFindOneOrder,
		PatternChangeOrderStatus,
	}

	for _, pattern := range patterns {
		pattern := pattern
		sub, err := conn.QueueSubscribe(pattern, queueGroup, func(msg *nats.Msg) {
			reply := h.Handle(pattern, msg.Data)
			if err := msg.Respond(reply); err != nil {
				h.logger.WithError(err).WithField("pattern", pattern).Warn("failed to send reply")
			}
		})
		if err != nil {
			return fmt.Errorf("subscribe %s: %w", pattern, err)
		}
		h.subs = append(h.subs, sub)
	}

	h.logger.WithField("patterns", patterns).Info("order message patterns registered")
	return nil
}

// Drain отписывает обработчики, дождавшись доставленных сообщений.
func (h *Handlers) Drain() error {
	var firstErr error
	for _, sub := range h.subs {
		if err := sub.Drain(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	h.subs = nil
	return firstErr
}

// Handle выполняет один pattern: разбирает payload, вызывает оркестратор
// и упаковывает результат в единый конверт ответа.
func (h *Handlers) Handle(pattern string, payload []byte) []byte {
	start := time.Now()
	if h.metrics != nil {
		h.metrics.RecordRequestStarted()
	}

	reply, handleErr := h.dispatch(pattern, payload)

	if h.metrics != nil {
		h.metrics.RecordRequestFinished()
		h.metrics.RecordRequestDuration(pattern, time.Since(start))
		result := "ok"
		if handleErr != nil {
			result = "error"
		}
		h.metrics.RecordRequest(pattern, result)
	}

	if handleErr != nil {
		rpcErr := toRPCError(handleErr)
		h.logger.WithError(handleErr).WithFields(log.Fields{
			"pattern": pattern,
			"status":  rpcErr.Status,
		}).Warn("pattern handling failed")
		return rpc.EncodeError(rpcErr.Status, rpcErr.Message)
	}
	return reply
}

func (h *Handlers) dispatch(pattern string, payload []byte) ([]byte, error) {
	switch pattern {
	case PatternCreateOrder:
		return h.handleCreateOrder(payload)
	case PatternFindAllOrders:
		return h.handleFindAllOrders(payload)
	case PatternFindOneOrder:
		return h.handleFindOneOrder(payload)
	case PatternChangeOrderStatus:
		return h.handleChangeOrderStatus(payload)
	default:
		return nil, &rpc.Error{Status: 400, Message: fmt.Sprintf("unknown pattern %q", pattern)}
	}
}

type createOrderItem struct {
	ProductID int64 `json:"productId"`
	Quantity  int32 `json:"quantity"`
}

type createOrderRequest struct {
	Items []createOrderItem `json:"items"`
}

func (h *Handlers) handleCreateOrder(payload []byte) ([]byte, error) {
	var req createOrderRequest
	if err := json.Unmarshal(payload, &req); err != nil {
		return nil, badRequest("malformed createOrder payload")
	}
	if len(req.Items) == 0 {
		return nil, badRequest("items must contain at least one element")
	}

	items := make([]orders.CreateItem, 0, len(req.Items))
	for idx, item := range req.Items {
		if item.ProductID <= 0 {
			return nil, badRequest(fmt.Sprintf("items[%d].productId must be a positive integer", idx))
		}
		if item.Quantity <= 0 {
			return nil, badRequest(fmt.Sprintf("items[%d].quantity must be a positive integer", idx))
		}
		items = append(items, orders.CreateItem{ProductID: item.ProductID, Quantity: item.Quantity})
	}

	result, err := h.svc.Create(items)
	if err != nil {
		return nil, err
	}

	return rpc.EncodeReply(struct {
		Order          orderDTO              `json:"order"`
		PaymentSession domain.PaymentSession `json:"paymentSession"`
	}{
		Order:          toOrderDTO(result.Order, true),
		PaymentSession: result.PaymentSession,
	}), nil
}

type findAllOrdersRequest struct {
	Page   *int    `json:"page"`
	Limit  *int    `json:"limit"`
	Status *string `json:"status"`
}

func (h *Handlers) handleFindAllOrders(payload []byte) ([]byte, error) {
	req := findAllOrdersRequest{}
	// Пустой payload допустим: применяются значения по умолчанию.
	if len(payload) > 0 {
		if err := json.Unmarshal(payload, &req); err != nil {
			return nil, badRequest("malformed findAllOrders payload")
		}
	}

	page := orders.DefaultPage
	if req.Page != nil {
		if *req.Page <= 0 {
			return nil, badRequest("page must be a positive integer")
		}
		page = *req.Page
	}
	limit := orders.DefaultLimit
	if req.Limit != nil {
		if *req.Limit <= 0 {
			return nil, badRequest("limit must be a positive integer")
		}
		limit = *req.Limit
	}

	var status *domain.OrderStatus
	if req.Status != nil {
		parsed, err := domain.ParseOrderStatus(*req.Status)
		if err != nil {
			return nil, badRequest(fmt.Sprintf("status must be one of %v", domain.OrderStatuses))
		}
		status = &parsed
	}

	result, err := h.svc.FindAll(status, page, limit)
	if err != nil {
		return nil, err
	}

	data := make([]orderDTO, 0, len(result.Data))
	for _, order := range result.Data {
		data = append(data, toOrderDTO(order, false))
	}

	return rpc.EncodeReply(struct {
		Data []orderDTO      `json:"data"`
		Meta orders.PageMeta `json:"meta"`
	}{Data: data, Meta: result.Meta}), nil
}

type findOneOrderRequest struct {
	ID string `json:"id"`
}

func (h *Handlers) handleFindOneOrder(payload []byte) ([]byte, error) {
	var req findOneOrderRequest
	if err := json.Unmarshal(payload, &req); err != nil {
		return nil, badRequest("malformed findOneOrder payload")
	}
	if _, err := uuid.Parse(req.ID); err != nil {
		return nil, badRequest("id must be a valid UUID")
	}

	order, err := h.svc.FindOne(req.ID)
	if err != nil {
		return nil, err
	}
	return rpc.EncodeReply(toOrderDTO(order, true)), nil
}

type changeOrderStatusRequest struct {
	ID     string `json:"id"`
	Status string `json:"status"`
}

func (h *Handlers) handleChangeOrderStatus(payload []byte) ([]byte, error) {
	var req changeOrderStatusRequest
	if err := json.Unmarshal(payload, &req); err != nil {
		return nil, badRequest("malformed changeOrderStatus payload")
	}
	if _, err := uuid.Parse(req.ID); err != nil {
		return nil, badRequest("id must be a valid UUID")
	}
	status, err := domain.ParseOrderStatus(req.Status)
	if err != nil {
		return nil, badRequest(fmt.Sprintf("status must be one of %v", domain.OrderStatuses))
	}

	order, err := h.svc.ChangeStatus(req.ID, status)
	if err != nil {
		return nil, err
	}
	return rpc.EncodeReply(toOrderDTO(order, false)), nil
}

func badRequest(message string) error {
	return &rpc.Error{Status: 400, Message: message}
}

// toRPCError отображает доменную ошибку в единый конверт remote procedure failure.
func toRPCError(err error) *rpc.Error {
	var rpcErr *rpc.Error
	if errors.As(err, &rpcErr) {
		return rpcErr
	}

	switch {
	case errors.Is(err, domain.ErrOrderNotFound):
		return &rpc.Error{Status: 404, Message: err.Error()}
	case errors.Is(err, domain.ErrOrderAlreadyExists):
		return &rpc.Error{Status: 409, Message: err.Error()}
	case errors.Is(err, domain.ErrInvalidProductReference),
		errors.Is(err, domain.ErrItemsRequired),
		errors.Is(err, domain.ErrQuantityInvalid),
		errors.Is(err, domain.ErrStatusInvalid):
		return &rpc.Error{Status: 400, Message: err.Error()}
	case domain.IsUnavailable(err):
		return &rpc.Error{Status: 503, Message: err.Error()}
	default:
		return &rpc.Error{Status: 500, Message: "internal error"}
	}
}
