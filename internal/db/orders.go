package db

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/jewelhouse/jewelhouse/internal/models"
)

var ErrOrderNotFound = errors.New("order not found")

type OrderStore struct {
	pool *pgxpool.Pool
}

func NewOrderStore(pool *pgxpool.Pool) *OrderStore {
	return &OrderStore{pool: pool}
}

const orderColumns = `
	o.id, o.user_id, o.phone, o.address, o.total_amount::float8, o.status,
	o.payment_method, o.is_paid, o.paid_at, o.created_at, o.updated_at,
	u.name, u.email, u.phone_number`

// Create persists the order and its captured line items in one transaction.
// The order always starts pending and unpaid regardless of what the caller set.
func (s *OrderStore) Create(ctx context.Context, order *Order) error {
	if order == nil {
		return fmt.Errorf("order is required")
	}
	if order.ID == uuid.Nil {
		order.ID = uuid.New()
	}
	order.Status = StatusPending
	order.IsPaid = false
	order.PaidAt = nil

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer func() {
		_ = tx.Rollback(ctx) //nolint
	}()

	var createdAt, updatedAt pgtype.Timestamptz
	err = tx.QueryRow(ctx, `
		INSERT INTO orders (id, user_id, phone, address, total_amount, status, payment_method, is_paid)
		VALUES ($1, $2, $3, $4, $5, $6, $7, FALSE)
		RETURNING created_at, updated_at
	`, order.ID, order.UserID, order.Phone, order.Address, order.TotalAmount, string(order.Status), order.PaymentMethod).
		Scan(&createdAt, &updatedAt)
	if err != nil {
		return err
	}

	batch := &pgx.Batch{}
	for position, item := range order.Items {
		optionsJSON, err := marshalOptions(item.Options)
		if err != nil {
			return err
		}
		batch.Queue(`
			INSERT INTO order_items (order_id, position, product_id, name, unit_price, quantity, size, options)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		`, order.ID, position, nullableUUID(item.ProductID), item.Name, item.UnitPrice, item.Quantity,
			pgtype.Text{String: item.Size, Valid: item.Size != ""}, optionsJSON)
	}
	if err := tx.SendBatch(ctx, batch).Close(); err != nil {
		return fmt.Errorf("failed to insert order items: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return err
	}

	order.CreatedAt = createdAt.Time
	order.UpdatedAt = updatedAt.Time
	return nil
}

// ListByUser returns the user's orders newest first with product snapshots.
func (s *OrderStore) ListByUser(ctx context.Context, userID uuid.UUID) ([]*Order, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT `+orderColumns+`
		FROM orders o
		LEFT JOIN users u ON u.id = o.user_id
		WHERE o.user_id = $1
		ORDER BY o.created_at DESC
	`, userID)
	if err != nil {
		return nil, err
	}
	orders, err := collectOrders(rows)
	if err != nil {
		return nil, err
	}
	if err := s.attachItems(ctx, orders); err != nil {
		return nil, err
	}
	return orders, nil
}

// CountFeed counts orders whose status differs from exclude.
func (s *OrderStore) CountFeed(ctx context.Context, exclude OrderStatus) (int, error) {
	var total int
	err := s.pool.QueryRow(ctx, `SELECT COUNT(*) FROM orders WHERE status <> $1`, string(exclude)).Scan(&total)
	return total, err
}

// FeedSummary aggregates the whole filtered set, independent of paging.
func (s *OrderStore) FeedSummary(ctx context.Context, exclude OrderStatus) (models.FeedSummary, error) {
	var summary models.FeedSummary
	err := s.pool.QueryRow(ctx, `
		SELECT
			COALESCE(SUM(total_amount), 0)::float8,
			COUNT(*) FILTER (WHERE status NOT IN ('delivered', 'cancelled'))
		FROM orders
		WHERE status <> $1
	`, string(exclude)).Scan(&summary.TotalValue, &summary.OpenCount)
	return summary, err
}

func (s *OrderStore) ListFeed(ctx context.Context, exclude OrderStatus, limit, offset int) ([]*Order, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT `+orderColumns+`
		FROM orders o
		LEFT JOIN users u ON u.id = o.user_id
		WHERE o.status <> $1
		ORDER BY o.created_at DESC
		LIMIT $2 OFFSET $3
	`, string(exclude), limit, offset)
	if err != nil {
		return nil, err
	}
	return collectOrders(rows)
}

// ListAll is the unpaginated admin dump. Items are included without snapshots.
func (s *OrderStore) ListAll(ctx context.Context) ([]*Order, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT `+orderColumns+`
		FROM orders o
		LEFT JOIN users u ON u.id = o.user_id
		ORDER BY o.created_at DESC
	`)
	if err != nil {
		return nil, err
	}
	orders, err := collectOrders(rows)
	if err != nil {
		return nil, err
	}
	if err := s.attachItems(ctx, orders); err != nil {
		return nil, err
	}
	return orders, nil
}

// GetByID loads the order header and customer without line items.
func (s *OrderStore) GetByID(ctx context.Context, orderID uuid.UUID) (*Order, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT `+orderColumns+`
		FROM orders o
		LEFT JOIN users u ON u.id = o.user_id
		WHERE o.id = $1
	`, orderID)
	if err != nil {
		return nil, err
	}
	orders, err := collectOrders(rows)
	if err != nil {
		return nil, err
	}
	if len(orders) == 0 {
		return nil, ErrOrderNotFound
	}
	return orders[0], nil
}

// GetDetail loads the order with customer contact and item snapshots.
func (s *OrderStore) GetDetail(ctx context.Context, orderID uuid.UUID) (*Order, error) {
	order, err := s.GetByID(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if err := s.attachItems(ctx, []*Order{order}); err != nil {
		return nil, err
	}
	return order, nil
}

func (s *OrderStore) GetStatus(ctx context.Context, orderID uuid.UUID) (OrderStatus, error) {
	var status string
	err := s.pool.QueryRow(ctx, `SELECT status FROM orders WHERE id = $1`, orderID).Scan(&status)
	if errors.Is(err, pgx.ErrNoRows) {
		return "", ErrOrderNotFound
	}
	if err != nil {
		return "", err
	}
	return OrderStatus(status), nil
}

// SetStatus writes the new status unconditionally. Callers validate the
// transition against the status they read; concurrent writers race and the
// last write wins.
func (s *OrderStore) SetStatus(ctx context.Context, orderID uuid.UUID, status OrderStatus) (time.Time, error) {
	var updatedAt pgtype.Timestamptz
	err := s.pool.QueryRow(ctx, `
		UPDATE orders
		SET status = $1, updated_at = NOW()
		WHERE id = $2
		RETURNING updated_at
	`, string(status), orderID).Scan(&updatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return time.Time{}, ErrOrderNotFound
	}
	if err != nil {
		return time.Time{}, err
	}
	return updatedAt.Time, nil
}

func (s *OrderStore) attachItems(ctx context.Context, orders []*Order) error {
	if len(orders) == 0 {
		return nil
	}

	ids := make([]uuid.UUID, 0, len(orders))
	byID := make(map[uuid.UUID]*Order, len(orders))
	for _, order := range orders {
		ids = append(ids, order.ID)
		byID[order.ID] = order
		order.Items = []OrderItem{}
	}

	rows, err := s.pool.Query(ctx, `
		SELECT
			oi.order_id, oi.product_id, oi.name, oi.unit_price::float8, oi.quantity, oi.size, oi.options,
			p.id, p.name, p.sku, p.price::float8, COALESCE(p.images, '{}'), COALESCE(p.sizes, '{}'),
			p.stock, p.sale_active, p.sale_price::float8
		FROM order_items oi
		LEFT JOIN products p ON p.id = oi.product_id
		WHERE oi.order_id = ANY($1)
		ORDER BY oi.order_id, oi.position
	`, ids)
	if err != nil {
		return err
	}
	defer rows.Close()

	for rows.Next() {
		var (
			orderID      uuid.UUID
			productID    pgtype.UUID
			name         string
			unitPrice    float64
			quantity     int32
			size         pgtype.Text
			optionsJSON  []byte
			snapshotID   pgtype.UUID
			snapshotName pgtype.Text
			snapshotSKU  pgtype.Text
			price        pgtype.Float8
			images       []string
			sizes        []string
			stock        pgtype.Int4
			saleActive   pgtype.Bool
			salePrice    pgtype.Float8
		)
		if err := rows.Scan(
			&orderID, &productID, &name, &unitPrice, &quantity, &size, &optionsJSON,
			&snapshotID, &snapshotName, &snapshotSKU, &price, &images, &sizes,
			&stock, &saleActive, &salePrice,
		); err != nil {
			return err
		}

		item := OrderItem{
			Name:      name,
			UnitPrice: unitPrice,
			Quantity:  int(quantity),
		}
		if productID.Valid {
			item.ProductID = uuid.UUID(productID.Bytes)
		}
		if size.Valid {
			item.Size = size.String
		}
		if len(optionsJSON) > 0 {
			if err := json.Unmarshal(optionsJSON, &item.Options); err != nil {
				return err
			}
		}
		if snapshotID.Valid {
			snapshot := &models.ProductSnapshot{
				ID:         uuid.UUID(snapshotID.Bytes),
				Name:       snapshotName.String,
				SKU:        snapshotSKU.String,
				Price:      price.Float64,
				Images:     images,
				Sizes:      sizes,
				Stock:      int(stock.Int32),
				SaleActive: saleActive.Bool,
			}
			if salePrice.Valid {
				value := salePrice.Float64
				snapshot.SalePrice = &value
			}
			item.Product = snapshot
		}

		if order, ok := byID[orderID]; ok {
			order.Items = append(order.Items, item)
		}
	}
	return rows.Err()
}

func collectOrders(rows pgx.Rows) ([]*Order, error) {
	defer rows.Close()

	orders := []*Order{}
	for rows.Next() {
		var (
			order         Order
			status        string
			paidAt        pgtype.Timestamptz
			createdAt     pgtype.Timestamptz
			updatedAt     pgtype.Timestamptz
			customerName  pgtype.Text
			customerEmail pgtype.Text
			customerPhone pgtype.Text
		)
		if err := rows.Scan(
			&order.ID, &order.UserID, &order.Phone, &order.Address, &order.TotalAmount, &status,
			&order.PaymentMethod, &order.IsPaid, &paidAt, &createdAt, &updatedAt,
			&customerName, &customerEmail, &customerPhone,
		); err != nil {
			return nil, err
		}

		order.Status = OrderStatus(status)
		order.CreatedAt = createdAt.Time
		order.UpdatedAt = updatedAt.Time
		if paidAt.Valid {
			paid := paidAt.Time
			order.PaidAt = &paid
		}
		order.Customer = &models.Customer{
			ID:    order.UserID,
			Name:  customerName.String,
			Email: customerEmail.String,
			Phone: customerPhone.String,
		}
		orders = append(orders, &order)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return orders, nil
}

func marshalOptions(options []models.OptionValue) ([]byte, error) {
	if len(options) == 0 {
		return nil, nil
	}
	return json.Marshal(options)
}

func nullableUUID(id uuid.UUID) pgtype.UUID {
	if id == uuid.Nil {
		return pgtype.UUID{}
	}
	return pgtype.UUID{Bytes: id, Valid: true}
}
