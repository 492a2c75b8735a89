package postgres

import (
	"errors"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/shopspring/decimal"

	"github.com/vladislavdragonenkov/orders-ms/internal/domain"
)

func newMockRepo(t *testing.T) (*orderRepository, sqlmock.Sqlmock) {
	t.Helper()

	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("failed to open sqlmock: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })

	return &orderRepository{db: db}, mock
}

func sampleOrder() domain.Order {
	now := time.Now().UTC().Truncate(time.Microsecond)
	return domain.Order{
		ID:          "49c41bfc-2dd4-4b67-a474-12a9f1a1b02f",
		TotalAmount: decimal.NewFromInt(45),
		TotalItems:  3,
		Status:      domain.OrderStatusPending,
		Lines: []domain.OrderLine{
			{ID: "b7a3ad6e-4a81-4f51-bb63-3d1a0a7a1101", ProductID: 1, Price: decimal.NewFromInt(10), Quantity: 2, CreatedAt: now},
			{ID: "ce1f75db-50f7-4a35-a937-bb1dbcf45e02", ProductID: 2, Price: decimal.NewFromInt(25), Quantity: 1, CreatedAt: now},
		},
		CreatedAt: now,
		UpdatedAt: now,
	}
}

func orderColumns() []string {
	return []string{
		"id", "total_amount", "total_items", "status", "paid", "paid_at",
		"external_payment_ref", "created_at", "updated_at",
	}
}

func TestOrderRepositoryCreate(t *testing.T) {
	repo, mock := newMockRepo(t)
	order := sampleOrder()

	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO orders")).
		WillReturnResult(sqlmock.NewResult(0, 1))
	for range order.Lines {
		mock.ExpectExec(regexp.QuoteMeta("INSERT INTO order_lines")).
			WillReturnResult(sqlmock.NewResult(0, 1))
	}
	mock.ExpectCommit()

	if err := repo.Create(order); err != nil {
		t.Fatalf("create failed: %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestOrderRepositoryCreateDuplicate(t *testing.T) {
	repo, mock := newMockRepo(t)
	order := sampleOrder()

	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO orders")).
		WillReturnError(&pgconn.PgError{Code: "23505"})
	mock.ExpectRollback()

	err := repo.Create(order)
	if !errors.Is(err, domain.ErrOrderAlreadyExists) {
		t.Fatalf("expected ErrOrderAlreadyExists, got %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestOrderRepositoryGetNotFound(t *testing.T) {
	repo, mock := newMockRepo(t)

	mock.ExpectQuery(regexp.QuoteMeta("FROM orders")).
		WillReturnRows(sqlmock.NewRows(orderColumns()))

	_, err := repo.Get("49c41bfc-2dd4-4b67-a474-12a9f1a1b02f", false)
	if !errors.Is(err, domain.ErrOrderNotFound) {
		t.Fatalf("expected ErrOrderNotFound, got %v", err)
	}
}

func TestOrderRepositoryGetWithLines(t *testing.T) {
	repo, mock := newMockRepo(t)
	order := sampleOrder()

	mock.ExpectQuery(regexp.QuoteMeta("FROM orders")).
		WithArgs(order.ID).
		WillReturnRows(sqlmock.NewRows(orderColumns()).AddRow(
			order.ID, "45.00", order.TotalItems, string(order.Status),
			false, nil, "", order.CreatedAt, order.UpdatedAt,
		))
	lineRows := sqlmock.NewRows([]string{"id", "product_id", "price", "quantity", "created_at"})
	for _, line := range order.Lines {
		lineRows.AddRow(line.ID, line.ProductID, line.Price.StringFixed(2), line.Quantity, line.CreatedAt)
	}
	mock.ExpectQuery(regexp.QuoteMeta("FROM order_lines")).
		WithArgs(order.ID).
		WillReturnRows(lineRows)

	got, err := repo.Get(order.ID, true)
	if err != nil {
		t.Fatalf("get failed: %v", err)
	}
	if got.ID != order.ID {
		t.Fatalf("expected order %s, got %s", order.ID, got.ID)
	}
	if !got.TotalAmount.Equal(order.TotalAmount) {
		t.Fatalf("expected total %s, got %s", order.TotalAmount, got.TotalAmount)
	}
	if len(got.Lines) != len(order.Lines) {
		t.Fatalf("expected %d lines, got %d", len(order.Lines), len(got.Lines))
	}
	if got.Lines[0].ProductID != 1 || got.Lines[1].ProductID != 2 {
		t.Fatalf("unexpected line order: %+v", got.Lines)
	}
}

func TestOrderRepositoryCountWithFilter(t *testing.T) {
	repo, mock := newMockRepo(t)

	status := domain.OrderStatusDelivered
	mock.ExpectQuery(regexp.QuoteMeta("SELECT COUNT(*) FROM orders WHERE status = $1")).
		WithArgs(string(status)).
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(7))

	total, err := repo.Count(domain.OrderFilter{Status: &status})
	if err != nil {
		t.Fatalf("count failed: %v", err)
	}
	if total != 7 {
		t.Fatalf("expected 7, got %d", total)
	}
}

func TestOrderRepositoryList(t *testing.T) {
	repo, mock := newMockRepo(t)
	order := sampleOrder()

	mock.ExpectQuery(regexp.QuoteMeta("FROM orders")).
		WithArgs(5, 5).
		WillReturnRows(sqlmock.NewRows(orderColumns()).AddRow(
			order.ID, "45.00", order.TotalItems, string(order.Status),
			false, nil, "", order.CreatedAt, order.UpdatedAt,
		))

	orders, err := repo.List(domain.OrderFilter{}, 5, 5)
	if err != nil {
		t.Fatalf("list failed: %v", err)
	}
	if len(orders) != 1 {
		t.Fatalf("expected 1 order, got %d", len(orders))
	}
	if len(orders[0].Lines) != 0 {
		t.Fatal("list must not load order lines")
	}
}

func TestOrderRepositoryUpdateStatusNotFound(t *testing.T) {
	repo, mock := newMockRepo(t)

	mock.ExpectExec(regexp.QuoteMeta("UPDATE orders")).
		WillReturnResult(sqlmock.NewResult(0, 0))

	_, err := repo.UpdateStatus("49c41bfc-2dd4-4b67-a474-12a9f1a1b02f", domain.OrderStatusCancelled, time.Now().UTC())
	if !errors.Is(err, domain.ErrOrderNotFound) {
		t.Fatalf("expected ErrOrderNotFound, got %v", err)
	}
}

func TestOrderRepositoryMarkPaid(t *testing.T) {
	repo, mock := newMockRepo(t)
	order := sampleOrder()
	paidAt := time.Now().UTC().Truncate(time.Microsecond)

	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta("UPDATE orders")).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO order_receipts")).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()
	mock.ExpectQuery(regexp.QuoteMeta("FROM orders")).
		WithArgs(order.ID).
		WillReturnRows(sqlmock.NewRows(orderColumns()).AddRow(
			order.ID, "45.00", order.TotalItems, string(domain.OrderStatusPaid),
			true, paidAt, "pi_42", order.CreatedAt, paidAt,
		))

	got, err := repo.MarkPaid(order.ID, "pi_42", "https://pay.local/r/42", paidAt)
	if err != nil {
		t.Fatalf("mark paid failed: %v", err)
	}
	if !got.Paid || got.Status != domain.OrderStatusPaid {
		t.Fatalf("expected paid order, got %+v", got)
	}
	if got.PaidAt == nil || !got.PaidAt.Equal(paidAt) {
		t.Fatalf("expected paid_at %v, got %v", paidAt, got.PaidAt)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestOrderRepositoryMarkPaidAlreadyPaid(t *testing.T) {
	repo, mock := newMockRepo(t)
	order := sampleOrder()
	paidAt := time.Now().UTC().Truncate(time.Microsecond)

	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta("UPDATE orders")).
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectRollback()
	mock.ExpectQuery(regexp.QuoteMeta("FROM orders")).
		WithArgs(order.ID).
		WillReturnRows(sqlmock.NewRows(orderColumns()).AddRow(
			order.ID, "45.00", order.TotalItems, string(domain.OrderStatusPaid),
			true, paidAt, "pi_41", order.CreatedAt, paidAt,
		))

	got, err := repo.MarkPaid(order.ID, "pi_42", "https://pay.local/r/42", time.Now().UTC())
	if err != nil {
		t.Fatalf("mark paid failed: %v", err)
	}
	if got.ExternalPaymentRef != "pi_41" {
		t.Fatalf("settlement must not overwrite payment ref, got %s", got.ExternalPaymentRef)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}
