package core

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
)

// OrderSummary is a projection for the admin order listing.
type OrderSummary struct {
	ID        string    `json:"id"`
	Username  string    `json:"username"`
	Total     float64   `json:"total"`
	LineCount int       `json:"line_count"`
	CreatedAt time.Time `json:"created_at"`
}

// OrderRepository archives completed checkouts.
type OrderRepository interface {
	Record(ctx context.Context, username string, total float64, lines []CartLine) (string, error)
	List(ctx context.Context, page, perPage int) ([]OrderSummary, int, error)
}

// PgOrderRepository implements OrderRepository using pgxpool.
type PgOrderRepository struct {
	db *pgxpool.Pool
}

func NewPgOrderRepository(db *pgxpool.Pool) *PgOrderRepository {
	return &PgOrderRepository{db: db}
}

// Record inserts the order and its lines in one transaction and returns the
// generated order id.
func (r *PgOrderRepository) Record(ctx context.Context, username string, total float64, lines []CartLine) (string, error) {
	if len(lines) == 0 {
		return "", errors.New("order has no lines")
	}

	tx, err := r.db.Begin(ctx)
	if err != nil {
		return "", err
	}
	defer tx.Rollback(ctx)

	const orderQ = `INSERT INTO orders (username, total) VALUES ($1,$2) RETURNING id::text`
	var orderID string
	if err := tx.QueryRow(ctx, orderQ, username, total).Scan(&orderID); err != nil {
		return "", err
	}

	const lineQ = `INSERT INTO order_lines (order_id, product_id, title, price, quantity) VALUES ($1,$2,$3,$4,$5)`
	for _, line := range lines {
		if _, err := tx.Exec(ctx, lineQ, orderID, line.Product.ID, line.Product.Title, line.Product.Price, line.Quantity); err != nil {
			return "", err
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return "", err
	}
	return orderID, nil
}

// List returns paginated order summaries, newest first.
func (r *PgOrderRepository) List(ctx context.Context, page, perPage int) ([]OrderSummary, int, error) {
	if page <= 0 || perPage <= 0 {
		return nil, 0, errors.New("invalid pagination")
	}
	const countQ = `SELECT COUNT(*) FROM orders`
	var total int
	if err := r.db.QueryRow(ctx, countQ).Scan(&total); err != nil {
		return nil, 0, err
	}

	const listQ = `
SELECT o.id::text, o.username, o.total, COUNT(l.order_id), o.created_at
FROM orders o
LEFT JOIN order_lines l ON l.order_id = o.id
GROUP BY o.id, o.username, o.total, o.created_at
ORDER BY o.created_at DESC
LIMIT $1 OFFSET $2`
	rows, err := r.db.Query(ctx, listQ, perPage, (page-1)*perPage)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	items := make([]OrderSummary, 0, perPage)
	for rows.Next() {
		var o OrderSummary
		if err := rows.Scan(&o.ID, &o.Username, &o.Total, &o.LineCount, &o.CreatedAt); err != nil {
			return nil, 0, err
		}
		items = append(items, o)
	}
	return items, total, rows.Err()
}
