package domain

import "time"

// OrderReceipt хранит ссылку на чек, полученный при подтверждении оплаты.
// У заказа может быть не более одного чека; запись создаётся в той же
// транзакции, что и перевод заказа в статус PAID.
type OrderReceipt struct {
	ID         string
	OrderID    string
	ReceiptURL string
	CreatedAt  time.Time
}
