package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"

	"hotelpos/backend/internal/domain"
	"hotelpos/backend/internal/store"
)

const orderNumberAttempts = 10

var errOrderNumberTaken = errors.New("order number taken")

// CreateOrder writes the order, its lines, the bar stock decrements and the
// payment in one transaction. Order numbers are millisecond stamps; a clash
// with a concurrent order retries with a fresh stamp that is always later
// than the one that clashed.
func (s *Store) CreateOrder(ctx context.Context, order domain.Order) (*domain.Order, error) {
	if len(order.Items) == 0 {
		return nil, fmt.Errorf("%w: order has no items", store.ErrValidation)
	}
	if order.Status == "" {
		order.Status = domain.DefaultOrderStatus(order.OrderType)
	}
	if order.PaymentStatus == "" {
		order.PaymentStatus = domain.PaymentStatusPending
	}

	var last int64
	for attempt := 0; attempt < orderNumberAttempts; attempt++ {
		last = nextOrderStamp(s.now().UnixMilli(), last)
		number := "ORD-" + strconv.FormatInt(last, 10)
		id, err := s.createOrderTx(ctx, order, number)
		if errors.Is(err, errOrderNumberTaken) {
			log.Debug().Str("order_number", number).Msg("order number clash, retrying")
			continue
		}
		if err != nil {
			return nil, err
		}
		return s.GetOrder(ctx, id)
	}
	return nil, fmt.Errorf("%w: could not allocate an order number", store.ErrConflict)
}

func nextOrderStamp(nowMillis int64, last int64) int64 {
	if nowMillis <= last {
		return last + 1
	}
	return nowMillis
}

// isOrderNumberClash only matches the order_number unique constraint; other
// unique violations on orders are real errors.
func isOrderNumberClash(err error) bool {
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) || pgErr.Code != "23505" {
		return false
	}
	return strings.Contains(pgErr.ConstraintName, "order_number") ||
		strings.Contains(pgErr.Detail, "(order_number)")
}

func (s *Store) createOrderTx(ctx context.Context, order domain.Order, number string) (int64, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, err
	}
	defer func() { _ = tx.Rollback() }()

	var b insertBuilder
	b.add("order_number", number)
	b.add("order_type", order.OrderType)
	b.add("staff_id", nullInt64(order.Attribution.StaffIDPtr()))
	if s.caps.OrderHasExemptReason {
		b.add("exempt_reason", nullIfEmpty(order.Attribution.Reason))
	}
	b.add("status", order.Status)
	b.add("table_number", nullIfEmpty(order.TableNumber))
	b.add("room_number", nullIfEmpty(order.RoomNumber))
	b.add("customer_name", nullIfEmpty(order.CustomerName))
	b.add("notes", nullIfEmpty(order.Notes))
	b.add("subtotal", order.Subtotal)
	if s.caps.OrderHasDiscount {
		b.add("discount_amount", order.Discount)
	}
	b.add("total_amount", order.TotalAmount)
	b.add("payment_method", order.PaymentMethod)
	b.add("payment_status", order.PaymentStatus)

	var orderID int64
	if err := tx.QueryRowContext(ctx, b.build("orders", "id"), b.args...).Scan(&orderID); err != nil {
		if isOrderNumberClash(err) {
			return 0, errOrderNumberTaken
		}
		return 0, err
	}

	loggedBy := order.Attribution.StaffName
	for _, item := range order.Items {
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO order_items (order_id, product_id, inventory_item_id, quantity, unit_price, total_price, notes)
			VALUES ($1,$2,$3,$4,$5,$6,$7)
		`, orderID, nullInt64(item.ProductID), nullInt64(item.InventoryItemID), item.Quantity, item.UnitPrice, item.TotalPrice, nullIfEmpty(item.Notes)); err != nil {
			return 0, err
		}
		if item.InventoryItemID == nil {
			continue
		}
		decremented, err := decrementBarStock(ctx, tx, *item.InventoryItemID, item.Quantity)
		if err != nil {
			return 0, err
		}
		if decremented {
			if err := insertInventoryLog(ctx, tx, *item.InventoryItemID, domain.LogActionOrderSale, item.Quantity.Neg(), &orderID, "order", loggedBy); err != nil {
				return 0, err
			}
		}
	}

	if _, err := tx.ExecContext(ctx, `
		INSERT INTO payments (order_id, payment_method, amount, status, created_at)
		VALUES ($1,$2,$3,$4,now())
	`, orderID, order.PaymentMethod, order.TotalAmount, order.PaymentStatus); err != nil {
		return 0, err
	}

	if err := tx.Commit(); err != nil {
		return 0, err
	}
	return orderID, nil
}

func (s *Store) GetOrder(ctx context.Context, id int64) (*domain.Order, error) {
	orders, err := s.loadOrders(ctx, s.db, `WHERE o.id = $1`, []any{id})
	if err != nil {
		return nil, err
	}
	if len(orders) == 0 {
		return nil, store.ErrNotFound
	}
	return &orders[0], nil
}

func (s *Store) ListOrders(ctx context.Context, status string, limit int) ([]domain.Order, error) {
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	return s.loadOrders(ctx, s.db, `WHERE ($1 = '' OR o.status = $1) ORDER BY o.id DESC LIMIT $2`, []any{status, limit})
}

// TransitionOrder moves an order along the kitchen workflow. Cancelling gives
// back the bar stock the order took.
func (s *Store) TransitionOrder(ctx context.Context, id int64, status string, changedBy string) (*domain.Order, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer func() { _ = tx.Rollback() }()

	var current string
	err = tx.QueryRowContext(ctx, `SELECT status FROM orders WHERE id = $1 FOR UPDATE`, id).Scan(&current)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}
	if !domain.CanTransitionOrder(current, status) {
		return nil, fmt.Errorf("%w: cannot move order from %s to %s", store.ErrConflict, current, status)
	}

	if status == domain.OrderStatusCancelled {
		if err := restockOrder(ctx, tx, id, changedBy); err != nil {
			return nil, err
		}
	}
	if _, err := tx.ExecContext(ctx, `UPDATE orders SET status = $2, updated_at = now() WHERE id = $1`, id, status); err != nil {
		return nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, err
	}
	return s.GetOrder(ctx, id)
}

func restockOrder(ctx context.Context, tx *sql.Tx, orderID int64, changedBy string) error {
	rows, err := tx.QueryContext(ctx, `
		SELECT oi.inventory_item_id, oi.quantity
		FROM order_items oi
		JOIN inventory_items ii ON ii.id = oi.inventory_item_id
		WHERE oi.order_id = $1 AND ii.inventory_type = $2
		ORDER BY oi.inventory_item_id
	`, orderID, domain.InventoryBar)
	if err != nil {
		return err
	}
	type restock struct {
		itemID int64
		qty    decimal.Decimal
	}
	lines := make([]restock, 0, 4)
	for rows.Next() {
		var line restock
		if err := rows.Scan(&line.itemID, &line.qty); err != nil {
			_ = rows.Close()
			return err
		}
		lines = append(lines, line)
	}
	if err := rows.Err(); err != nil {
		_ = rows.Close()
		return err
	}
	_ = rows.Close()

	for _, line := range lines {
		found, err := incrementStock(ctx, tx, line.itemID, line.qty)
		if err != nil {
			return err
		}
		if !found {
			continue
		}
		if err := insertInventoryLog(ctx, tx, line.itemID, domain.LogActionOrderCancelled, line.qty, &orderID, "order", changedBy); err != nil {
			return err
		}
	}
	return nil
}

func (s *Store) loadOrders(ctx context.Context, q queryer, where string, args []any) ([]domain.Order, error) {
	exemptReason := "NULL"
	if s.caps.OrderHasExemptReason {
		exemptReason = "o.exempt_reason"
	}
	discount := "0"
	if s.caps.OrderHasDiscount {
		discount = "o.discount_amount"
	}

	rows, err := q.QueryContext(ctx, fmt.Sprintf(`
		SELECT o.id, o.order_number, o.order_type, o.staff_id, st.name, %s, o.status,
			o.table_number, o.room_number, o.customer_name, o.notes,
			o.subtotal, %s, o.total_amount, o.payment_method, o.payment_status, o.created_at, o.updated_at
		FROM orders o
		LEFT JOIN staff st ON st.id = o.staff_id
	`, exemptReason, discount)+where, args...)
	if err != nil {
		return nil, err
	}

	orders := make([]domain.Order, 0, 16)
	index := make(map[int64]int)
	for rows.Next() {
		var o domain.Order
		var staffID sql.NullInt64
		var staffName, reason, table, room, customer, notes sql.NullString
		if err := rows.Scan(
			&o.ID, &o.OrderNumber, &o.OrderType, &staffID, &staffName, &reason, &o.Status,
			&table, &room, &customer, &notes,
			&o.Subtotal, &o.Discount, &o.TotalAmount, &o.PaymentMethod, &o.PaymentStatus, &o.CreatedAt, &o.UpdatedAt,
		); err != nil {
			_ = rows.Close()
			return nil, err
		}
		o.Attribution = attributionFor(o.OrderType, staffID, staffName.String, reason.String)
		o.TableNumber = table.String
		o.RoomNumber = room.String
		o.CustomerName = customer.String
		o.Notes = notes.String
		o.CreatedAt = o.CreatedAt.UTC()
		o.UpdatedAt = o.UpdatedAt.UTC()
		o.Items = make([]domain.OrderItem, 0, 4)
		index[o.ID] = len(orders)
		orders = append(orders, o)
	}
	if err := rows.Err(); err != nil {
		_ = rows.Close()
		return nil, err
	}
	_ = rows.Close()
	if len(orders) == 0 {
		return orders, nil
	}

	ids := make([]int64, 0, len(orders))
	for _, o := range orders {
		ids = append(ids, o.ID)
	}

	itemRows, err := q.QueryContext(ctx, `
		SELECT id, order_id, product_id, inventory_item_id, quantity, unit_price, total_price, notes
		FROM order_items
		WHERE order_id = ANY($1)
		ORDER BY id
	`, ids)
	if err != nil {
		return nil, err
	}
	for itemRows.Next() {
		var item domain.OrderItem
		var productID, inventoryID sql.NullInt64
		var notes sql.NullString
		if err := itemRows.Scan(&item.ID, &item.OrderID, &productID, &inventoryID, &item.Quantity, &item.UnitPrice, &item.TotalPrice, &notes); err != nil {
			_ = itemRows.Close()
			return nil, err
		}
		item.ProductID = int64Ptr(productID)
		item.InventoryItemID = int64Ptr(inventoryID)
		item.Notes = notes.String
		if i, ok := index[item.OrderID]; ok {
			orders[i].Items = append(orders[i].Items, item)
		}
	}
	if err := itemRows.Err(); err != nil {
		_ = itemRows.Close()
		return nil, err
	}
	_ = itemRows.Close()

	paymentRows, err := q.QueryContext(ctx, `
		SELECT DISTINCT ON (order_id) id, order_id, payment_method, amount, status, created_at
		FROM payments
		WHERE order_id = ANY($1)
		ORDER BY order_id, id DESC
	`, ids)
	if err != nil {
		return nil, err
	}
	defer paymentRows.Close()
	for paymentRows.Next() {
		var p domain.Payment
		if err := paymentRows.Scan(&p.ID, &p.OrderID, &p.PaymentMethod, &p.Amount, &p.Status, &p.CreatedAt); err != nil {
			return nil, err
		}
		p.CreatedAt = p.CreatedAt.UTC()
		if i, ok := index[p.OrderID]; ok {
			payment := p
			orders[i].Payment = &payment
		}
	}
	return orders, paymentRows.Err()
}

// attributionFor rebuilds an order's attribution from its row. Orders written
// before exempt_reason existed fall back to their order type.
func attributionFor(orderType string, staffID sql.NullInt64, staffName string, reason string) domain.Attribution {
	if staffID.Valid {
		return domain.Attributed(staffID.Int64, staffName)
	}
	if strings.TrimSpace(reason) == "" {
		reason = orderType
	}
	if exempt, ok := domain.ExemptionFor(reason); ok {
		return exempt
	}
	return domain.Attribution{Kind: domain.AttributionExempt, Reason: reason}
}
