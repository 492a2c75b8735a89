package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// OrderStatus описывает жизненный цикл заказа.
type OrderStatus string

const (
	// OrderStatusPending — заказ создан, оплата ещё не подтверждена.
	OrderStatusPending OrderStatus = "PENDING"
	// OrderStatusCancelled — заказ отменён до завершения цикла.
	OrderStatusCancelled OrderStatus = "CANCELLED"
	// OrderStatusDelivered — заказ доставлен покупателю.
	OrderStatusDelivered OrderStatus = "DELIVERED"
	// OrderStatusPaid — оплата подтверждена платёжным сервисом.
	OrderStatusPaid OrderStatus = "PAID"
)

// OrderStatuses перечисляет закрытое множество статусов заказа.
var OrderStatuses = []OrderStatus{
	OrderStatusPending,
	OrderStatusCancelled,
	OrderStatusDelivered,
	OrderStatusPaid,
}

// Valid проверяет, что статус относится к поддерживаемым значениям.
func (s OrderStatus) Valid() bool {
	switch s {
	case OrderStatusPending, OrderStatusCancelled, OrderStatusDelivered, OrderStatusPaid:
		return true
	default:
		return false
	}
}

// ParseOrderStatus разбирает строковое значение статуса.
// Любое значение вне закрытого множества — ошибка валидации на границе.
func ParseOrderStatus(value string) (OrderStatus, error) {
	status := OrderStatus(value)
	if !status.Valid() {
		return "", ErrStatusInvalid
	}
	return status, nil
}

// OrderLine представляет одну позицию заказа.
type OrderLine struct {
	// ID позиции нужен для однозначной идентификации и аудита.
	ID string
	// ProductID — внешний идентификатор товара в каталоге.
	ProductID int64
	// ProductName — денормализованное имя товара; подставляется из каталога
	// при чтении и в заказе не хранится.
	ProductName string
	// Price — цена за единицу, зафиксированная на момент создания заказа.
	// Последующие изменения цены в каталоге на заказ не влияют.
	Price decimal.Decimal
	// Quantity — количество единиц товара.
	Quantity int32
	// CreatedAt фиксирует момент добавления позиции в заказ.
	CreatedAt time.Time
}

// Order агрегирует состояние заказа и его позиции.
// Набор позиций неизменяем после создания заказа.
type Order struct {
	ID          string
	TotalAmount decimal.Decimal
	TotalItems  int32
	Status      OrderStatus
	Paid        bool
	// PaidAt устанавливается ровно один раз при settlement.
	PaidAt *time.Time
	// ExternalPaymentRef — идентификатор платежа у внешнего провайдера.
	ExternalPaymentRef string
	Lines              []OrderLine
	CreatedAt          time.Time
	UpdatedAt          time.Time
}

// ValidateInvariants проверяет базовые инварианты заказа и возвращает список замечаний.
func (o *Order) ValidateInvariants() []error {
	var errs []error

	if !o.Status.Valid() {
		errs = append(errs, ErrStatusInvalid)
	}
	if len(o.Lines) == 0 {
		errs = append(errs, ErrItemsRequired)
	}
	if o.TotalAmount.IsNegative() {
		errs = append(errs, ErrAmountNegative)
	}

	// Сверяем производные поля с позициями: сумма price*quantity и сумма quantity.
	calcAmount := decimal.Zero
	var calcItems int32
	for _, line := range o.Lines {
		if line.Quantity <= 0 {
			errs = append(errs, ErrQuantityInvalid)
		}
		if line.Price.IsNegative() {
			errs = append(errs, ErrPriceInvalid)
		}
		calcAmount = calcAmount.Add(line.Price.Mul(decimal.NewFromInt32(line.Quantity)))
		calcItems += line.Quantity
	}
	if !calcAmount.Equal(o.TotalAmount) {
		errs = append(errs, ErrAmountMismatch)
	}
	if calcItems != o.TotalItems {
		errs = append(errs, ErrItemsMismatch)
	}

	if o.Paid {
		if o.Status != OrderStatusPaid {
			errs = append(errs, ErrPaidStatusMismatch)
		}
		if o.PaidAt == nil {
			errs = append(errs, ErrPaidAtRequired)
		}
	}

	return errs
}
