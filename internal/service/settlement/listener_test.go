package settlement

import (
	"context"
	"errors"
	"testing"

	"github.com/IBM/sarama"

	"github.com/vladislavdragonenkov/orders-ms/internal/domain"
)

type stubSettler struct {
	order domain.Order
	err   error

	calls       int
	lastOrderID string
	lastRef     string
	lastReceipt string
}

func (s *stubSettler) MarkPaid(orderID, externalPaymentRef, receiptURL string) (domain.Order, error) {
	s.calls++
	s.lastOrderID = orderID
	s.lastRef = externalPaymentRef
	s.lastReceipt = receiptURL
	if s.err != nil {
		return domain.Order{}, s.err
	}
	return s.order, nil
}

func paymentMessage(value string) *sarama.ConsumerMessage {
	return &sarama.ConsumerMessage{
		Topic: "orders.payment.succeeded",
		Value: []byte(value),
	}
}

func TestListenerHandle(t *testing.T) {
	settler := &stubSettler{
		order: domain.Order{ID: "order-1", Status: domain.OrderStatusPaid, Paid: true},
	}
	listener := NewListenerWithoutMetrics(settler, nil)

	msg := paymentMessage(`{"orderId":"order-1","stripePaymentId":"pi_42","receiptUrl":"https://pay.local/r/42"}`)
	if err := listener.Handle(context.Background(), msg); err != nil {
		t.Fatalf("handle failed: %v", err)
	}

	if settler.calls != 1 {
		t.Fatalf("expected 1 settle call, got %d", settler.calls)
	}
	if settler.lastOrderID != "order-1" {
		t.Errorf("expected order-1, got %s", settler.lastOrderID)
	}
	if settler.lastRef != "pi_42" {
		t.Errorf("expected payment ref pi_42, got %s", settler.lastRef)
	}
	if settler.lastReceipt != "https://pay.local/r/42" {
		t.Errorf("expected receipt url, got %s", settler.lastReceipt)
	}
}

func TestListenerHandleMalformedEvent(t *testing.T) {
	settler := &stubSettler{}
	listener := NewListenerWithoutMetrics(settler, nil)

	cases := []string{
		`{"orderId":`,
		`{"stripePaymentId":"pi_42"}`,
		`{"orderId":"order-1"}`,
	}
	for _, value := range cases {
		if err := listener.Handle(context.Background(), paymentMessage(value)); err == nil {
			t.Fatalf("expected error for payload %s", value)
		}
	}
	if settler.calls != 0 {
		t.Fatalf("settler must not be called for malformed events, got %d calls", settler.calls)
	}
}

func TestListenerHandleSettlerError(t *testing.T) {
	settler := &stubSettler{err: errors.New("storage down")}
	listener := NewListenerWithoutMetrics(settler, nil)

	msg := paymentMessage(`{"orderId":"order-1","stripePaymentId":"pi_42","receiptUrl":""}`)
	err := listener.Handle(context.Background(), msg)
	if err == nil {
		t.Fatal("expected error when settlement fails")
	}
}
