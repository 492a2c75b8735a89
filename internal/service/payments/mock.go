package payments

import (
	"sync"

	"github.com/vladislavdragonenkov/orders-ms/internal/domain"
)

// MockSessions — конфигурируемая заглушка PaymentSessions для тестов
// и локальной разработки без платёжного сервиса.
type MockSessions struct {
	mu      sync.Mutex
	Session domain.PaymentSession
	Err     error

	CreateCalls int
	LastOrderID string
}

// NewMockSessions возвращает mock с успешным сценарием по умолчанию.
func NewMockSessions() *MockSessions {
	return &MockSessions{
		Session: domain.PaymentSession{
			URL:        "https://checkout.local/session/mock",
			SuccessURL: "https://shop.local/payments/success",
			CancelURL:  "https://shop.local/payments/cancel",
		},
	}
}

// CreateSession возвращает заранее настроенный результат и считает вызовы.
func (m *MockSessions) CreateSession(orderID, currency string, items []domain.PaymentSessionItem) (domain.PaymentSession, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.CreateCalls++
	m.LastOrderID = orderID
	if m.Err != nil {
		return domain.PaymentSession{}, m.Err
	}
	return m.Session, nil
}

var _ domain.PaymentSessions = (*MockSessions)(nil)
