package domain

import "time"

// OrderFilter ограничивает выборку заказов.
type OrderFilter struct {
	// Status фильтрует по статусу; nil означает выборку без фильтра.
	Status *OrderStatus
}

// OrderRepository описывает требования к хранилищу заказов.
type OrderRepository interface {
	// Create атомарно сохраняет заказ вместе с позициями.
	// Возвращает ErrOrderAlreadyExists, если запись с таким ID уже существует.
	Create(order Order) error
	// Get возвращает заказ по идентификатору или ErrOrderNotFound, если его нет.
	// withLines управляет загрузкой позиций.
	Get(id string, withLines bool) (Order, error)
	// Count возвращает число заказов, попадающих под фильтр.
	Count(filter OrderFilter) (int64, error)
	// List возвращает страницу заказов, упорядоченных по created_at ASC, id ASC.
	// Порядок стабилен, чтобы пагинация была детерминированной.
	List(filter OrderFilter, offset, limit int) ([]Order, error)
	// UpdateStatus меняет статус заказа и возвращает обновлённую запись.
	UpdateStatus(id string, status OrderStatus, updatedAt time.Time) (Order, error)
	// MarkPaid атомарно переводит заказ в PAID (paid, paid_at, external ref)
	// и создаёт запись чека. Обновление защищено условием paid = false:
	// если заказ уже оплачен, запись не меняется и возвращается текущее
	// состояние — повторная доставка события безопасна.
	MarkPaid(id, externalPaymentRef, receiptURL string, paidAt time.Time) (Order, error)
}
