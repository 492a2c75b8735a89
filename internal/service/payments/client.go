package payments

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/nats-io/nats.go"
	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/orders-ms/internal/domain"
	"github.com/vladislavdragonenkov/orders-ms/internal/rpc"
)

const (
	// SubjectCreatePaymentSession — message pattern платёжного сервиса.
	SubjectCreatePaymentSession = "create.payment.session"

	defaultRequestTimeout = 5 * time.Second
)

// requester — минимальный интерфейс request/reply вызова поверх NATS.
type requester interface {
	Request(subj string, data []byte, timeout time.Duration) (*nats.Msg, error)
}

// Client — клиент платёжного сервиса поверх request/reply messaging fabric.
type Client struct {
	conn    requester
	timeout time.Duration
	logger  *log.Entry
}

// NewClient создаёт клиент платёжного сервиса.
func NewClient(conn *nats.Conn, logger *log.Entry) *Client {
	return newClient(conn, logger)
}

func newClient(conn requester, logger *log.Entry) *Client {
	if logger == nil {
		logger = log.New().WithField("component", "payments-client")
	}
	return &Client{
		conn:    conn,
		timeout: defaultRequestTimeout,
		logger:  logger,
	}
}

type sessionRequest struct {
	OrderID  string                      `json:"orderId"`
	Currency string                      `json:"currency"`
	Items    []domain.PaymentSessionItem `json:"items"`
}

// CreateSession запрашивает платёжную сессию для уже сохранённого заказа.
// Таймаут и транспортные ошибки превращаются в ErrPaymentUnavailable.
func (c *Client) CreateSession(orderID, currency string, items []domain.PaymentSessionItem) (domain.PaymentSession, error) {
	if orderID == "" {
		return domain.PaymentSession{}, fmt.Errorf("create payment session: order id is required")
	}
	if len(items) == 0 {
		return domain.PaymentSession{}, fmt.Errorf("create payment session: items must not be empty")
	}

	requestBody, err := json.Marshal(sessionRequest{
		OrderID:  orderID,
		Currency: currency,
		Items:    items,
	})
	if err != nil {
		return domain.PaymentSession{}, fmt.Errorf("encode session request: %w", err)
	}

	msg, err := c.conn.Request(SubjectCreatePaymentSession, requestBody, c.timeout)
	if err != nil {
		c.logger.WithError(err).WithField("order_id", orderID).Warn("payment session request failed")
		return domain.PaymentSession{}, fmt.Errorf("%w: %v", domain.ErrPaymentUnavailable, err)
	}

	var session domain.PaymentSession
	if err := rpc.Decode(msg.Data, &session); err != nil {
		var rpcErr *rpc.Error
		if errors.As(err, &rpcErr) {
			return domain.PaymentSession{}, fmt.Errorf("%w: %s", domain.ErrPaymentUnavailable, rpcErr.Message)
		}
		return domain.PaymentSession{}, fmt.Errorf("%w: %v", domain.ErrPaymentUnavailable, err)
	}
	return session, nil
}

var _ domain.PaymentSessions = (*Client)(nil)
