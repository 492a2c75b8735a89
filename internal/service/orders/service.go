package orders

import (
	"encoding/json"
	"math"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/orders-ms/internal/domain"
	"github.com/vladislavdragonenkov/orders-ms/internal/metrics"
)

const (
	// DefaultPage и DefaultLimit — значения пагинации по умолчанию.
	DefaultPage  = 1
	DefaultLimit = 5

	// defaultCurrency используется при создании платёжной сессии.
	defaultCurrency = "usd"

	eventTypeOrderCreated       = "order.created"
	eventTypeOrderStatusChanged = "order.status_changed"
)

// CreateItem — позиция входящего запроса на создание заказа.
type CreateItem struct {
	ProductID int64
	Quantity  int32
}

// PageMeta описывает метаданные пагинированной выборки.
type PageMeta struct {
	Total    int64 `json:"total"`
	Page     int   `json:"page"`
	LastPage int   `json:"lastPage"`
}

// OrderPage — страница заказов с метаданными.
type OrderPage struct {
	Data []domain.Order
	Meta PageMeta
}

// CreateResult — результат создания заказа: сам заказ и платёжная сессия.
type CreateResult struct {
	Order          domain.Order
	PaymentSession domain.PaymentSession
}

// Service оркестрирует жизненный цикл заказа поверх хранилища и двух
// внешних сервисов: каталога и платёжного сервиса.
type Service struct {
	repo     domain.OrderRepository
	catalog  domain.ProductValidator
	payments domain.PaymentSessions
	outbox   domain.OutboxRepository
	logger   *log.Entry
	metrics  *metrics.OrderMetrics
}

// NewService создаёт рабочий экземпляр оркестратора.
func NewService(
	repo domain.OrderRepository,
	catalog domain.ProductValidator,
	payments domain.PaymentSessions,
	outbox domain.OutboxRepository,
	logger *log.Entry,
) *Service {
	if logger == nil {
		logger = log.New().WithField("component", "orders")
	}
	return &Service{
		repo:     repo,
		catalog:  catalog,
		payments: payments,
		outbox:   outbox,
		logger:   logger,
		metrics:  metrics.NewOrderMetrics(),
	}
}

// NewServiceWithoutMetrics создаёт оркестратор без метрик (для тестов).
func NewServiceWithoutMetrics(
	repo domain.OrderRepository,
	catalog domain.ProductValidator,
	payments domain.PaymentSessions,
	outbox domain.OutboxRepository,
	logger *log.Entry,
) *Service {
	svc := NewService(repo, catalog, payments, outbox, logger)
	svc.metrics = nil
	return svc
}

// Create создаёт заказ: валидирует позиции через каталог, считает производные
// суммы по ценам каталога (не по ценам вызывающей стороны), атомарно сохраняет
// заказ с позициями и запрашивает платёжную сессию.
//
// Платёжная сессия — best-effort шаг после коммита: если он падает, заказ уже
// надёжно сохранён в статусе PENDING, и сессию можно перезапросить по id заказа.
func (s *Service) Create(items []CreateItem) (CreateResult, error) {
	if len(items) == 0 {
		return CreateResult{}, domain.ErrItemsRequired
	}
	for _, item := range items {
		if item.Quantity <= 0 {
			return CreateResult{}, domain.ErrQuantityInvalid
		}
	}

	productIDs := distinctProductIDs(items)

	// Один вызов каталога на весь набор id, никогда per-item.
	products, err := s.catalog.Validate(productIDs)
	if err != nil {
		s.logger.WithError(err).Warn("product validation failed")
		return CreateResult{}, err
	}

	var missing []int64
	for _, id := range productIDs {
		if _, ok := products[id]; !ok {
			missing = append(missing, id)
		}
	}
	if len(missing) > 0 {
		return CreateResult{}, domain.InvalidProductsError(missing)
	}

	now := time.Now().UTC()
	lines := make([]domain.OrderLine, 0, len(items))
	totalAmount := decimal.Zero
	var totalItems int32
	for _, item := range items {
		product := products[item.ProductID]
		lines = append(lines, domain.OrderLine{
			ID:        uuid.NewString(),
			ProductID: item.ProductID,
			Price:     product.Price,
			Quantity:  item.Quantity,
			CreatedAt: now,
		})
		totalAmount = totalAmount.Add(product.Price.Mul(decimal.NewFromInt32(item.Quantity)))
		totalItems += item.Quantity
	}

	order := domain.Order{
		ID:          uuid.NewString(),
		TotalAmount: totalAmount,
		TotalItems:  totalItems,
		Status:      domain.OrderStatusPending,
		Lines:       lines,
		CreatedAt:   now,
		UpdatedAt:   now,
	}

	if errs := order.ValidateInvariants(); len(errs) > 0 {
		// Инварианты производных полей держит сам сервис; нарушение — баг.
		s.logger.WithField("order_id", order.ID).Errorf("order invariants violated: %v", errs)
		return CreateResult{}, errs[0]
	}

	if err := s.repo.Create(order); err != nil {
		s.logger.WithError(err).Error("failed to persist order")
		return CreateResult{}, err
	}
	if s.metrics != nil {
		s.metrics.RecordOrderCreated()
	}
	s.enqueueOrderEvent(eventTypeOrderCreated, order)

	// Денормализуем имена товаров для ответа; в хранилище имена не пишутся.
	sessionItems := make([]domain.PaymentSessionItem, 0, len(order.Lines))
	for i := range order.Lines {
		order.Lines[i].ProductName = products[order.Lines[i].ProductID].Name
		sessionItems = append(sessionItems, domain.PaymentSessionItem{
			Name:     order.Lines[i].ProductName,
			Price:    order.Lines[i].Price,
			Quantity: order.Lines[i].Quantity,
		})
	}

	session, err := s.payments.CreateSession(order.ID, defaultCurrency, sessionItems)
	if err != nil {
		// Заказ уже закоммичен; согласованность между заказом и сессией
		// не транзакционная (см. DESIGN.md).
		s.logger.WithError(err).WithField("order_id", order.ID).Error("payment session creation failed")
		return CreateResult{}, err
	}

	return CreateResult{Order: order, PaymentSession: session}, nil
}

// FindAll возвращает страницу заказов с метаданными пагинации.
// Страница за пределами выборки — пустые данные, не ошибка.
func (s *Service) FindAll(status *domain.OrderStatus, page, limit int) (OrderPage, error) {
	if page <= 0 {
		page = DefaultPage
	}
	if limit <= 0 {
		limit = DefaultLimit
	}

	filter := domain.OrderFilter{Status: status}
	total, err := s.repo.Count(filter)
	if err != nil {
		s.logger.WithError(err).Error("failed to count orders")
		return OrderPage{}, err
	}

	lastPage := int(math.Ceil(float64(total) / float64(limit)))
	data, err := s.repo.List(filter, (page-1)*limit, limit)
	if err != nil {
		s.logger.WithError(err).Error("failed to list orders")
		return OrderPage{}, err
	}

	return OrderPage{
		Data: data,
		Meta: PageMeta{Total: total, Page: page, LastPage: lastPage},
	}, nil
}

// FindOne возвращает заказ с позициями, обогащёнными именами товаров из каталога.
// Если обогащение невозможно, чтение завершается ошибкой целиком, без частичных
// данных (поведение исходной системы; см. DESIGN.md).
func (s *Service) FindOne(id string) (domain.Order, error) {
	order, err := s.repo.Get(id, true)
	if err != nil {
		return domain.Order{}, err
	}

	ids := make([]int64, 0, len(order.Lines))
	seen := make(map[int64]struct{}, len(order.Lines))
	for _, line := range order.Lines {
		if _, ok := seen[line.ProductID]; ok {
			continue
		}
		seen[line.ProductID] = struct{}{}
		ids = append(ids, line.ProductID)
	}

	products, err := s.catalog.Validate(ids)
	if err != nil {
		s.logger.WithError(err).WithField("order_id", id).Warn("product name enrichment failed")
		return domain.Order{}, err
	}

	var missing []int64
	for i := range order.Lines {
		product, ok := products[order.Lines[i].ProductID]
		if !ok {
			missing = append(missing, order.Lines[i].ProductID)
			continue
		}
		order.Lines[i].ProductName = product.Name
	}
	if len(missing) > 0 {
		return domain.Order{}, domain.InvalidProductsError(missing)
	}

	return order, nil
}

// ChangeStatus переводит заказ в указанный статус.
// Установка текущего статуса — no-op, возвращающий запись без лишней записи
// в хранилище; операцию безопасно повторять.
func (s *Service) ChangeStatus(id string, status domain.OrderStatus) (domain.Order, error) {
	if !status.Valid() {
		return domain.Order{}, domain.ErrStatusInvalid
	}

	current, err := s.repo.Get(id, false)
	if err != nil {
		return domain.Order{}, err
	}
	if current.Status == status {
		return current, nil
	}

	updated, err := s.repo.UpdateStatus(id, status, time.Now().UTC())
	if err != nil {
		s.logger.WithError(err).WithField("order_id", id).Error("failed to change order status")
		return domain.Order{}, err
	}
	s.enqueueOrderEvent(eventTypeOrderStatusChanged, updated)

	return updated, nil
}

// MarkPaid — единственный путь в PAID, управляемый внешним событием.
// Идемпотентен: повторная доставка уведомления об оплате возвращает
// существующий заказ без записи и без второго чека.
func (s *Service) MarkPaid(orderID, externalPaymentRef, receiptURL string) (domain.Order, error) {
	current, err := s.repo.Get(orderID, false)
	if err != nil {
		return domain.Order{}, err
	}
	if current.Paid {
		s.logger.WithField("order_id", orderID).Debug("order already paid, skipping settlement")
		return current, nil
	}

	paid, err := s.repo.MarkPaid(orderID, externalPaymentRef, receiptURL, time.Now().UTC())
	if err != nil {
		s.logger.WithError(err).WithField("order_id", orderID).Error("failed to mark order paid")
		return domain.Order{}, err
	}
	s.enqueueOrderEvent(eventTypeOrderStatusChanged, paid)

	return paid, nil
}

func (s *Service) enqueueOrderEvent(eventType string, order domain.Order) {
	if s.outbox == nil {
		return
	}

	payload, err := json.Marshal(struct {
		OrderID     string          `json:"orderId"`
		Status      string          `json:"status"`
		TotalAmount decimal.Decimal `json:"totalAmount"`
		TotalItems  int32           `json:"totalItems"`
		Paid        bool            `json:"paid"`
	}{
		OrderID:     order.ID,
		Status:      string(order.Status),
		TotalAmount: order.TotalAmount,
		TotalItems:  order.TotalItems,
		Paid:        order.Paid,
	})
	if err != nil {
		s.logger.WithError(err).WithField("order_id", order.ID).Warn("failed to encode order event")
		return
	}

	if _, err := s.outbox.Enqueue(domain.OutboxMessage{
		AggregateType: "order",
		AggregateID:   order.ID,
		EventType:     eventType,
		Payload:       payload,
	}); err != nil {
		// Публикация событий — вспомогательный контур; операция заказа не падает.
		s.logger.WithError(err).WithField("order_id", order.ID).Warn("failed to enqueue order event")
	}
	if s.metrics != nil {
		s.metrics.RecordOutboxEvent()
	}
}

func distinctProductIDs(items []CreateItem) []int64 {
	seen := make(map[int64]struct{}, len(items))
	ids := make([]int64, 0, len(items))
	for _, item := range items {
		if _, ok := seen[item.ProductID]; ok {
			continue
		}
		seen[item.ProductID] = struct{}{}
		ids = append(ids, item.ProductID)
	}
	return ids
}
