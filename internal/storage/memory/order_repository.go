package memory

import (
	"sort"
	"sync"
	"time"

	"github.com/vladislavdragonenkov/orders-ms/internal/domain"
)

// orderRepositoryInMemory — простая in-memory реализация OrderRepository.
type orderRepositoryInMemory struct {
	mu       sync.RWMutex
	items    map[string]domain.Order
	receipts map[string]domain.OrderReceipt // ключ — order id, не более одного чека на заказ
}

// NewOrderRepository возвращает in-memory репозиторий для локальной разработки и тестов.
func NewOrderRepository() domain.OrderRepository {
	return &orderRepositoryInMemory{
		items:    make(map[string]domain.Order),
		receipts: make(map[string]domain.OrderReceipt),
	}
}

// Create сохраняет новый заказ вместе с позициями, если ID ещё не занят.
func (r *orderRepositoryInMemory) Create(order domain.Order) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.items[order.ID]; exists {
		return domain.ErrOrderAlreadyExists
	}
	// Сохраняем копию позиций, чтобы избежать непредсказуемых мутаций извне.
	order.Lines = cloneLines(order.Lines)
	r.items[order.ID] = order
	return nil
}

// Get возвращает заказ или ErrOrderNotFound, если его нет.
func (r *orderRepositoryInMemory) Get(id string, withLines bool) (domain.Order, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	order, ok := r.items[id]
	if !ok {
		return domain.Order{}, domain.ErrOrderNotFound
	}
	if withLines {
		order.Lines = cloneLines(order.Lines)
	} else {
		order.Lines = nil
	}
	return order, nil
}

// Count возвращает число заказов, попадающих под фильтр.
func (r *orderRepositoryInMemory) Count(filter domain.OrderFilter) (int64, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var total int64
	for _, order := range r.items {
		if matchesFilter(order, filter) {
			total++
		}
	}
	return total, nil
}

// List возвращает страницу заказов, упорядоченных по created_at ASC, id ASC.
func (r *orderRepositoryInMemory) List(filter domain.OrderFilter, offset, limit int) ([]domain.Order, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	matched := make([]domain.Order, 0, len(r.items))
	for _, order := range r.items {
		if !matchesFilter(order, filter) {
			continue
		}
		order.Lines = nil
		matched = append(matched, order)
	}

	sort.Slice(matched, func(i, j int) bool {
		if !matched[i].CreatedAt.Equal(matched[j].CreatedAt) {
			return matched[i].CreatedAt.Before(matched[j].CreatedAt)
		}
		return matched[i].ID < matched[j].ID
	})

	if offset < 0 {
		offset = 0
	}
	if offset >= len(matched) {
		return []domain.Order{}, nil
	}
	matched = matched[offset:]
	if limit > 0 && len(matched) > limit {
		matched = matched[:limit]
	}

	return matched, nil
}

// UpdateStatus перезаписывает статус заказа и возвращает обновлённую запись.
func (r *orderRepositoryInMemory) UpdateStatus(id string, status domain.OrderStatus, updatedAt time.Time) (domain.Order, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	order, ok := r.items[id]
	if !ok {
		return domain.Order{}, domain.ErrOrderNotFound
	}
	order.Status = status
	order.UpdatedAt = updatedAt
	r.items[id] = order

	order.Lines = cloneLines(order.Lines)
	return order, nil
}

// MarkPaid атомарно переводит заказ в PAID и создаёт запись чека.
// Если заказ уже оплачен, возвращает текущее состояние без записи.
func (r *orderRepositoryInMemory) MarkPaid(id, externalPaymentRef, receiptURL string, paidAt time.Time) (domain.Order, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	order, ok := r.items[id]
	if !ok {
		return domain.Order{}, domain.ErrOrderNotFound
	}
	if order.Paid {
		order.Lines = cloneLines(order.Lines)
		return order, nil
	}

	order.Status = domain.OrderStatusPaid
	order.Paid = true
	paidCopy := paidAt
	order.PaidAt = &paidCopy
	order.ExternalPaymentRef = externalPaymentRef
	order.UpdatedAt = paidAt
	r.items[id] = order

	r.receipts[id] = domain.OrderReceipt{
		ID:         id + "-receipt",
		OrderID:    id,
		ReceiptURL: receiptURL,
		CreatedAt:  paidAt,
	}

	order.Lines = cloneLines(order.Lines)
	return order, nil
}

// Receipt возвращает чек заказа; используется в тестах идемпотентности settlement.
func (r *orderRepositoryInMemory) Receipt(orderID string) (domain.OrderReceipt, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	receipt, ok := r.receipts[orderID]
	return receipt, ok
}

func matchesFilter(order domain.Order, filter domain.OrderFilter) bool {
	return filter.Status == nil || order.Status == *filter.Status
}

func cloneLines(lines []domain.OrderLine) []domain.OrderLine {
	if lines == nil {
		return nil
	}
	cloned := make([]domain.OrderLine, len(lines))
	copy(cloned, lines)
	return cloned
}

var _ domain.OrderRepository = (*orderRepositoryInMemory)(nil)
