package catalog

import (
	"sync"

	"github.com/shopspring/decimal"

	"github.com/vladislavdragonenkov/orders-ms/internal/domain"
)

// MockValidator — конфигурируемая заглушка ProductValidator для локальной
// разработки и тестов: отвечает из заранее заданного набора товаров.
type MockValidator struct {
	mu       sync.Mutex
	Products map[int64]domain.ValidatedProduct
	Err      error

	ValidateCalls int
}

// NewMockValidator возвращает mock с небольшим каталогом по умолчанию.
func NewMockValidator() *MockValidator {
	return &MockValidator{
		Products: map[int64]domain.ValidatedProduct{
			1: {ID: 1, Name: "Teclado", Price: decimal.NewFromInt(10)},
			2: {ID: 2, Name: "Mouse", Price: decimal.NewFromInt(25)},
			3: {ID: 3, Name: "Monitor", Price: decimal.NewFromFloat(149.99)},
		},
	}
}

// Validate возвращает подмножество известных товаров и считает вызовы.
func (m *MockValidator) Validate(productIDs []int64) (map[int64]domain.ValidatedProduct, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.ValidateCalls++
	if m.Err != nil {
		return nil, m.Err
	}

	result := make(map[int64]domain.ValidatedProduct, len(productIDs))
	for _, id := range productIDs {
		if product, ok := m.Products[id]; ok {
			result[id] = product
		}
	}
	return result, nil
}

var _ domain.ProductValidator = (*MockValidator)(nil)
