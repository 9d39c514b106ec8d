package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/shopspring/decimal"

	"hotelpos/backend/internal/domain"
	"hotelpos/backend/internal/numbering"
	"hotelpos/backend/internal/receiving"
	"hotelpos/backend/internal/store"
)

func (s *Store) CreatePurchaseOrder(ctx context.Context, po domain.PurchaseOrder) (*domain.PurchaseOrder, error) {
	if po.SupplierID <= 0 || len(po.Items) == 0 {
		return nil, store.ErrValidation
	}
	if po.OrderDate.IsZero() {
		po.OrderDate = s.now()
	}
	for i := range po.Items {
		po.Items[i].QuantityReceived = decimal.Zero
		po.Items[i].TotalPrice = po.Items[i].UnitCost.Mul(po.Items[i].QuantityOrdered)
	}
	po.TotalAmount = receiving.Total(po.Items)
	po.Status = domain.POStatusPending

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer func() { _ = tx.Rollback() }()

	number, release, err := s.nextNumberTx(ctx, tx, numbering.PurchaseOrder(), po.OrderDate)
	if err != nil {
		return nil, err
	}
	defer release()
	po.PONumber = number

	var b insertBuilder
	b.addPair(s.caps.PONumber, po.PONumber)
	b.addRenamed(s.caps.POSupplier, po.SupplierID, strconv.FormatInt(po.SupplierID, 10))
	b.add("order_date", dateUTC(po.OrderDate))
	b.add("expected_delivery_date", nullDate(po.ExpectedDeliveryDate))
	b.add("status", po.Status)
	b.add("total_amount", po.TotalAmount)
	b.add("notes", nullIfEmpty(po.Notes))
	b.add("created_by", nullIfEmpty(po.CreatedBy))
	if err := tx.QueryRowContext(ctx, b.build("purchase_orders", "id, created_at"), b.args...).Scan(&po.ID, &po.CreatedAt); err != nil {
		if isUniqueViolation(err) {
			return nil, fmt.Errorf("%w: purchase order number %s already used", store.ErrConflict, po.PONumber)
		}
		return nil, err
	}

	for i, line := range po.Items {
		var exists bool
		if err := tx.QueryRowContext(ctx, `SELECT EXISTS (SELECT 1 FROM inventory_items WHERE id = $1)`, line.InventoryItemID).Scan(&exists); err != nil {
			return nil, err
		}
		if !exists {
			return nil, fmt.Errorf("%w: inventory item %d not found", store.ErrValidation, line.InventoryItemID)
		}

		var lb insertBuilder
		lb.add("purchase_order_id", po.ID)
		lb.addPair(s.caps.POItemInventory, line.InventoryItemID)
		lb.addPair(s.caps.POItemQuantity, line.QuantityOrdered)
		lb.add("quantity_received", line.QuantityReceived)
		lb.addPair(s.caps.POItemUnitCost, line.UnitCost)
		if s.caps.POItemHasTotalPrice {
			lb.add("total_price", line.TotalPrice)
		}
		if err := tx.QueryRowContext(ctx, lb.build("purchase_order_items", "id"), lb.args...).Scan(&po.Items[i].ID); err != nil {
			return nil, err
		}
		po.Items[i].PurchaseOrderID = po.ID
	}

	if err := tx.Commit(); err != nil {
		return nil, err
	}
	po.CreatedAt = po.CreatedAt.UTC()
	po.OrderDate = dateUTC(po.OrderDate)
	return &po, nil
}

func (s *Store) purchaseOrderSelect() string {
	delivered := "NULL::date"
	if s.caps.POHasActualDeliveryDate {
		delivered = "po.actual_delivery_date"
	}
	return fmt.Sprintf(`
		SELECT po.id, %s, %s, po.order_date, po.expected_delivery_date, %s,
			po.status, po.total_amount, po.notes, po.created_by, po.created_at
		FROM purchase_orders po
	`, s.caps.PONumber.ReadExpr("po"), s.caps.POSupplier.ReadExpr("po"), delivered)
}

func scanPurchaseOrder(row interface{ Scan(...any) error }) (domain.PurchaseOrder, error) {
	var po domain.PurchaseOrder
	var supplier sql.NullInt64
	var expected, delivered sql.NullTime
	var notes, createdBy sql.NullString
	err := row.Scan(
		&po.ID, &po.PONumber, &supplier, &po.OrderDate, &expected, &delivered,
		&po.Status, &po.TotalAmount, &notes, &createdBy, &po.CreatedAt,
	)
	if err != nil {
		return po, err
	}
	po.SupplierID = supplier.Int64
	po.OrderDate = po.OrderDate.UTC()
	po.ExpectedDeliveryDate = timePtr(expected)
	po.ActualDeliveryDate = timePtr(delivered)
	po.Notes = notes.String
	po.CreatedBy = createdBy.String
	po.CreatedAt = po.CreatedAt.UTC()
	return po, nil
}

func (s *Store) loadPurchaseOrderItems(ctx context.Context, q queryer, purchaseOrderID int64) ([]domain.PurchaseOrderItem, error) {
	totalPrice := "0"
	if s.caps.POItemHasTotalPrice {
		totalPrice = "COALESCE(poi.total_price, 0)"
	}
	rows, err := q.QueryContext(ctx, fmt.Sprintf(`
		SELECT poi.id, poi.purchase_order_id, %s, COALESCE(%s, 0), COALESCE(poi.quantity_received, 0), COALESCE(%s, 0), %s
		FROM purchase_order_items poi
		WHERE poi.purchase_order_id = $1
		ORDER BY poi.id
	`, s.caps.POItemInventory.ReadExpr("poi"), s.caps.POItemQuantity.ReadExpr("poi"), s.caps.POItemUnitCost.ReadExpr("poi"), totalPrice), purchaseOrderID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	items := make([]domain.PurchaseOrderItem, 0, 8)
	for rows.Next() {
		var item domain.PurchaseOrderItem
		var inventoryID sql.NullInt64
		if err := rows.Scan(&item.ID, &item.PurchaseOrderID, &inventoryID, &item.QuantityOrdered, &item.QuantityReceived, &item.UnitCost, &item.TotalPrice); err != nil {
			return nil, err
		}
		item.InventoryItemID = inventoryID.Int64
		items = append(items, item)
	}
	return items, rows.Err()
}

func (s *Store) GetPurchaseOrder(ctx context.Context, id int64) (*domain.PurchaseOrder, error) {
	po, err := scanPurchaseOrder(s.db.QueryRowContext(ctx, s.purchaseOrderSelect()+` WHERE po.id = $1`, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}
	items, err := s.loadPurchaseOrderItems(ctx, s.db, id)
	if err != nil {
		return nil, err
	}
	po.Items = items
	return &po, nil
}

func (s *Store) ListPurchaseOrders(ctx context.Context, status string, limit int) ([]domain.PurchaseOrder, error) {
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	rows, err := s.db.QueryContext(ctx, s.purchaseOrderSelect()+`
		WHERE ($1 = '' OR po.status = $1)
		ORDER BY po.id DESC
		LIMIT $2
	`, status, limit)
	if err != nil {
		return nil, err
	}
	orders := make([]domain.PurchaseOrder, 0, limit)
	for rows.Next() {
		po, err := scanPurchaseOrder(rows)
		if err != nil {
			_ = rows.Close()
			return nil, err
		}
		orders = append(orders, po)
	}
	if err := rows.Err(); err != nil {
		_ = rows.Close()
		return nil, err
	}
	_ = rows.Close()

	for i := range orders {
		items, err := s.loadPurchaseOrderItems(ctx, s.db, orders[i].ID)
		if err != nil {
			return nil, err
		}
		orders[i].Items = items
	}
	return orders, nil
}

// ReceivePurchaseOrder books a delivery note against a purchase order. The
// purchase order row is locked for the whole transaction so two receipts for
// the same order are applied one after the other.
func (s *Store) ReceivePurchaseOrder(ctx context.Context, id int64, lines []domain.ReceiveLine, receivedAt time.Time, receivedBy string) (*domain.PurchaseOrder, error) {
	if receivedAt.IsZero() {
		receivedAt = s.now()
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer func() { _ = tx.Rollback() }()

	var status string
	err = tx.QueryRowContext(ctx, `SELECT status FROM purchase_orders WHERE id = $1 FOR UPDATE`, id).Scan(&status)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}
	if status == domain.POStatusCancelled {
		return nil, fmt.Errorf("%w: purchase order %d is cancelled", store.ErrConflict, id)
	}

	items, err := s.loadPurchaseOrderItems(ctx, tx, id)
	if err != nil {
		return nil, err
	}

	byLine := make(map[int64]int, len(items))
	for i, item := range items {
		byLine[item.ID] = i
	}
	for _, update := range receiving.Plan(items, lines) {
		if err := s.applyLineUpdate(ctx, tx, update); err != nil {
			return nil, err
		}
		idx := byLine[update.LineID]
		items[idx].QuantityReceived = update.Received
		items[idx].TotalPrice = update.TotalPrice

		if !update.Delta.IsPositive() {
			continue
		}
		found, err := incrementStock(ctx, tx, update.InventoryItemID, update.Delta)
		if err != nil {
			return nil, err
		}
		if !found {
			continue
		}
		poID := id
		if err := insertInventoryLog(ctx, tx, update.InventoryItemID, domain.LogActionPurchaseReceived, update.Delta, &poID, "purchase_order", receivedBy); err != nil {
			return nil, err
		}
	}

	nextStatus := receiving.Status(items)
	if s.caps.POHasActualDeliveryDate {
		_, err = tx.ExecContext(ctx, `
			UPDATE purchase_orders SET status = $2, total_amount = $3, actual_delivery_date = $4 WHERE id = $1
		`, id, nextStatus, receiving.Total(items), dateUTC(receivedAt))
	} else {
		_, err = tx.ExecContext(ctx, `
			UPDATE purchase_orders SET status = $2, total_amount = $3 WHERE id = $1
		`, id, nextStatus, receiving.Total(items))
	}
	if err != nil {
		return nil, err
	}

	if err := tx.Commit(); err != nil {
		return nil, err
	}
	return s.GetPurchaseOrder(ctx, id)
}

func (s *Store) applyLineUpdate(ctx context.Context, tx *sql.Tx, update receiving.LineUpdate) error {
	if s.caps.POItemHasTotalPrice {
		_, err := tx.ExecContext(ctx, `
			UPDATE purchase_order_items SET quantity_received = $2, total_price = $3 WHERE id = $1
		`, update.LineID, update.Received, update.TotalPrice)
		return err
	}
	_, err := tx.ExecContext(ctx, `UPDATE purchase_order_items SET quantity_received = $2 WHERE id = $1`, update.LineID, update.Received)
	return err
}

// CancelPurchaseOrder only applies while nothing has been received.
func (s *Store) CancelPurchaseOrder(ctx context.Context, id int64) (*domain.PurchaseOrder, error) {
	res, err := s.db.ExecContext(ctx, `
		UPDATE purchase_orders SET status = $2 WHERE id = $1 AND status = $3
	`, id, domain.POStatusCancelled, domain.POStatusPending)
	if err != nil {
		return nil, err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return nil, err
	}
	if affected == 0 {
		po, err := s.GetPurchaseOrder(ctx, id)
		if err != nil {
			return nil, err
		}
		return nil, fmt.Errorf("%w: purchase order %s is %s", store.ErrConflict, po.PONumber, po.Status)
	}
	return s.GetPurchaseOrder(ctx, id)
}
