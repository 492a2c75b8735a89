package catalog

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/shopspring/decimal"
	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/orders-ms/internal/domain"
	"github.com/vladislavdragonenkov/orders-ms/internal/rpc"
)

const (
	// SubjectValidateProducts — message pattern сервиса каталога.
	SubjectValidateProducts = "validate_products"

	defaultRequestTimeout = 5 * time.Second
)

// requester — минимальный интерфейс request/reply вызова поверх NATS.
type requester interface {
	Request(subj string, data []byte, timeout time.Duration) (*nats.Msg, error)
}

// Client — клиент сервиса каталога поверх request/reply messaging fabric.
type Client struct {
	conn    requester
	timeout time.Duration
	logger  *log.Entry
}

// NewClient создаёт клиент каталога.
func NewClient(conn *nats.Conn, logger *log.Entry) *Client {
	return newClient(conn, logger)
}

func newClient(conn requester, logger *log.Entry) *Client {
	if logger == nil {
		logger = log.New().WithField("component", "catalog-client")
	}
	return &Client{
		conn:    conn,
		timeout: defaultRequestTimeout,
		logger:  logger,
	}
}

type validateRequest struct {
	IDs []int64 `json:"ids"`
}

type validatedProduct struct {
	ID    int64           `json:"id"`
	Name  string          `json:"name"`
	Price decimal.Decimal `json:"price"`
}

// Validate запрашивает существование и актуальные цены товаров одним вызовом.
// Таймаут и транспортные ошибки превращаются в ErrCatalogUnavailable;
// отсутствующие товары просто не попадают в результат.
func (c *Client) Validate(productIDs []int64) (map[int64]domain.ValidatedProduct, error) {
	if len(productIDs) == 0 {
		return nil, fmt.Errorf("validate products: ids must not be empty")
	}

	// Запрос шлём без конверта: тело запроса — это просто данные.
	requestBody, err := json.Marshal(validateRequest{IDs: productIDs})
	if err != nil {
		return nil, fmt.Errorf("encode validate request: %w", err)
	}

	msg, err := c.conn.Request(SubjectValidateProducts, requestBody, c.timeout)
	if err != nil {
		c.logger.WithError(err).Warn("catalog request failed")
		return nil, fmt.Errorf("%w: %v", domain.ErrCatalogUnavailable, err)
	}

	var products []validatedProduct
	if err := rpc.Decode(msg.Data, &products); err != nil {
		var rpcErr *rpc.Error
		if errors.As(err, &rpcErr) {
			// Каталог отвечает ошибкой, если хотя бы один id неизвестен.
			if rpcErr.Status == 400 || rpcErr.Status == 404 {
				return nil, fmt.Errorf("%w: %s", domain.ErrInvalidProductReference, rpcErr.Message)
			}
			return nil, fmt.Errorf("%w: %s", domain.ErrCatalogUnavailable, rpcErr.Message)
		}
		return nil, fmt.Errorf("%w: %v", domain.ErrCatalogUnavailable, err)
	}

	result := make(map[int64]domain.ValidatedProduct, len(products))
	for _, product := range products {
		result[product.ID] = domain.ValidatedProduct{
			ID:    product.ID,
			Name:  product.Name,
			Price: product.Price,
		}
	}
	return result, nil
}

var _ domain.ProductValidator = (*Client)(nil)
