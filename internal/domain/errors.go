package domain

import (
	"errors"
	"fmt"
)

var (
	// ErrOrderNotFound возвращается, если заказ не найден в репозитории.
	ErrOrderNotFound = errors.New("order not found")
	// ErrOrderAlreadyExists сигнализирует о коллизии идентификатора при создании.
	ErrOrderAlreadyExists = errors.New("order already exists")
	// ErrItemsRequired — в заказе нет ни одной позиции.
	ErrItemsRequired = errors.New("order must contain at least one item")
	// ErrQuantityInvalid — некорректное количество товара (<= 0).
	ErrQuantityInvalid = errors.New("item quantity must be greater than zero")
	// ErrPriceInvalid — отрицательная цена позиции.
	ErrPriceInvalid = errors.New("item price must be non-negative")
	// ErrAmountNegative — отрицательная сумма заказа.
	ErrAmountNegative = errors.New("total_amount must be non-negative")
	// ErrAmountMismatch — сумма заказа не сходится с суммой позиций.
	ErrAmountMismatch = errors.New("total_amount does not match lines sum")
	// ErrItemsMismatch — total_items не сходится с количеством по позициям.
	ErrItemsMismatch = errors.New("total_items does not match lines sum")
	// ErrStatusInvalid — значение статуса вне закрытого множества.
	ErrStatusInvalid = errors.New("order status is not valid")
	// ErrPaidStatusMismatch — paid=true допустим только в статусе PAID.
	ErrPaidStatusMismatch = errors.New("paid order must have PAID status")
	// ErrPaidAtRequired — оплаченный заказ обязан иметь paid_at.
	ErrPaidAtRequired = errors.New("paid order must have paid_at timestamp")
	// ErrInvalidProductReference — каталог не знает один или несколько product id.
	ErrInvalidProductReference = errors.New("one or more products were not found in catalog")
	// ErrCatalogUnavailable — сервис каталога недоступен или не ответил вовремя.
	ErrCatalogUnavailable = errors.New("catalog service unavailable")
	// ErrPaymentUnavailable — платёжный сервис недоступен или не ответил вовремя.
	ErrPaymentUnavailable = errors.New("payment service unavailable")
	// ErrOutboxPublish — ошибка при публикации сообщения из outbox.
	ErrOutboxPublish = errors.New("outbox publish failed")
)

// InvalidProductsError оборачивает ErrInvalidProductReference, называя отсутствующие id.
func InvalidProductsError(missing []int64) error {
	return fmt.Errorf("%w: %v", ErrInvalidProductReference, missing)
}

// IsNotFound проверяет, является ли ошибка отсутствием заказа.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrOrderNotFound)
}

// IsUnavailable проверяет, относится ли ошибка к недоступности внешнего сервиса.
func IsUnavailable(err error) bool {
	return errors.Is(err, ErrCatalogUnavailable) || errors.Is(err, ErrPaymentUnavailable)
}
