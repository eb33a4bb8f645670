package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"sikabot/internal/model"
)

var ErrOrderNotFound = errors.New("order not found")

// OrderRepo stores fulfilled orders. Rows are written once, on a
// definitive successful delivery, and never updated.
type OrderRepo struct {
	dbPool *pgxpool.Pool
}

func NewOrderRepo(db *pgxpool.Pool) *OrderRepo {
	return &OrderRepo{dbPool: db}
}

func (r *OrderRepo) Create(ctx context.Context, o model.Order) error {
	_, err := r.dbPool.Exec(ctx,
		`INSERT INTO orders (id, user_id, item_code, item_label, destination, amount, payment_method, status, provider_ref)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		o.ID, o.UserID, o.ItemCode, o.ItemLabel, o.Destination,
		int64(o.Amount), string(o.PaymentMethod), string(o.Status), o.ProviderRef)
	if isUniqueViolation(err) {
		return ErrAlreadyProcessed
	}
	if err != nil {
		return fmt.Errorf("insert order: %w", err)
	}
	return nil
}

func (r *OrderRepo) Get(ctx context.Context, orderID string) (*model.Order, error) {
	o, err := r.scanOne(r.dbPool.QueryRow(ctx, selectOrder+` WHERE id = $1`, orderID))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrOrderNotFound
	}
	return o, err
}

// ListByUser returns a user's orders, most recent first.
func (r *OrderRepo) ListByUser(ctx context.Context, userID string, limit int) ([]model.Order, error) {
	rows, err := r.dbPool.Query(ctx,
		selectOrder+` WHERE user_id = $1 ORDER BY created_at DESC LIMIT $2`, userID, limit)
	if err != nil {
		return nil, fmt.Errorf("query orders: %w", err)
	}
	defer rows.Close()

	var out []model.Order
	for rows.Next() {
		o, err := r.scanOne(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *o)
	}
	return out, rows.Err()
}

const selectOrder = `SELECT id, user_id, item_code, item_label, destination, amount, payment_method, status, provider_ref, created_at FROM orders`

func (r *OrderRepo) scanOne(row pgx.Row) (*model.Order, error) {
	var o model.Order
	var amount int64
	var method, status string
	if err := row.Scan(&o.ID, &o.UserID, &o.ItemCode, &o.ItemLabel, &o.Destination,
		&amount, &method, &status, &o.ProviderRef, &o.CreatedAt); err != nil {
		return nil, err
	}
	o.Amount = model.Pesewas(amount)
	o.PaymentMethod = model.PaymentMethod(method)
	o.Status = model.OrderStatus(status)
	return &o, nil
}
