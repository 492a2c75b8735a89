package natssvc

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/vladislavdragonenkov/orders-ms/internal/domain"
)

// orderLineDTO — позиция заказа в ответе message pattern.
type orderLineDTO struct {
	ProductID   int64           `json:"productId"`
	ProductName string          `json:"productName,omitempty"`
	Price       decimal.Decimal `json:"price"`
	Quantity    int32           `json:"quantity"`
}

// orderDTO — представление заказа в ответах message patterns.
type orderDTO struct {
	ID                 string          `json:"id"`
	TotalAmount        decimal.Decimal `json:"totalAmount"`
	TotalItems         int32           `json:"totalItems"`
	Status             string          `json:"status"`
	Paid               bool            `json:"paid"`
	PaidAt             *time.Time      `json:"paidAt"`
	ExternalPaymentRef string          `json:"externalPaymentRef,omitempty"`
	Items              []orderLineDTO  `json:"items,omitempty"`
	CreatedAt          time.Time       `json:"createdAt"`
	UpdatedAt          time.Time       `json:"updatedAt"`
}

func toOrderDTO(order domain.Order, withLines bool) orderDTO {
	dto := orderDTO{
		ID:                 order.ID,
		TotalAmount:        order.TotalAmount,
		TotalItems:         order.TotalItems,
		Status:             string(order.Status),
		Paid:               order.Paid,
		PaidAt:             order.PaidAt,
		ExternalPaymentRef: order.ExternalPaymentRef,
		CreatedAt:          order.CreatedAt,
		UpdatedAt:          order.UpdatedAt,
	}
	if withLines {
		dto.Items = make([]orderLineDTO, 0, len(order.Lines))
		for _, line := range order.Lines {
			dto.Items = append(dto.Items, orderLineDTO{
				ProductID:   line.ProductID,
				ProductName: line.ProductName,
				Price:       line.Price,
				Quantity:    line.Quantity,
			})
		}
	}
	return dto
}
