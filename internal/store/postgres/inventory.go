package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/shopspring/decimal"

	"hotelpos/backend/internal/domain"
	"hotelpos/backend/internal/ledger"
	"hotelpos/backend/internal/store"
)

func (s *Store) inventorySelect() string {
	return fmt.Sprintf(`
		SELECT id, name, unit, current_stock, minimum_stock, cost_per_unit, %s, inventory_type, is_active, updated_at
		FROM inventory_items
	`, s.caps.InventorySupplier.ReadExpr(""))
}

func scanInventoryItem(row interface{ Scan(...any) error }) (domain.InventoryItem, error) {
	var item domain.InventoryItem
	var supplier sql.NullInt64
	err := row.Scan(
		&item.ID, &item.Name, &item.Unit, &item.CurrentStock, &item.MinimumStock,
		&item.CostPerUnit, &supplier, &item.InventoryType, &item.Active, &item.UpdatedAt,
	)
	if err != nil {
		return item, err
	}
	item.SupplierID = int64Ptr(supplier)
	item.UpdatedAt = item.UpdatedAt.UTC()
	return item, nil
}

func (s *Store) CreateInventoryItem(ctx context.Context, item domain.InventoryItem) (*domain.InventoryItem, error) {
	if strings.TrimSpace(item.Name) == "" || item.InventoryType == "" {
		return nil, store.ErrValidation
	}
	if _, err := ledger.Set(item.CurrentStock); err != nil {
		return nil, err
	}

	var b insertBuilder
	b.add("name", item.Name)
	b.add("unit", item.Unit)
	b.add("current_stock", item.CurrentStock)
	b.add("minimum_stock", item.MinimumStock)
	b.add("cost_per_unit", item.CostPerUnit)
	if item.SupplierID != nil {
		b.addRenamed(s.caps.InventorySupplier, *item.SupplierID, strconv.FormatInt(*item.SupplierID, 10))
	}
	b.add("inventory_type", item.InventoryType)
	b.add("is_active", true)

	if err := s.db.QueryRowContext(ctx, b.build("inventory_items", "id, updated_at"), b.args...).Scan(&item.ID, &item.UpdatedAt); err != nil {
		return nil, err
	}
	item.Active = true
	item.UpdatedAt = item.UpdatedAt.UTC()
	return &item, nil
}

func (s *Store) GetInventoryItem(ctx context.Context, id int64) (*domain.InventoryItem, error) {
	item, err := scanInventoryItem(s.db.QueryRowContext(ctx, s.inventorySelect()+` WHERE id = $1`, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}
	return &item, nil
}

func (s *Store) ListInventoryItems(ctx context.Context, inventoryType string) ([]domain.InventoryItem, error) {
	rows, err := s.db.QueryContext(ctx, s.inventorySelect()+`
		WHERE is_active = true AND ($1 = '' OR inventory_type = $1)
		ORDER BY id
	`, inventoryType)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	items := make([]domain.InventoryItem, 0, 64)
	for rows.Next() {
		item, err := scanInventoryItem(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, item)
	}
	return items, rows.Err()
}

// SetInventoryStock records a manual stock count and logs the difference.
func (s *Store) SetInventoryStock(ctx context.Context, id int64, stock decimal.Decimal, loggedBy string) (*domain.InventoryItem, error) {
	next, err := ledger.Set(stock)
	if err != nil {
		return nil, err
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer func() { _ = tx.Rollback() }()

	var previous decimal.Decimal
	err = tx.QueryRowContext(ctx, `SELECT current_stock FROM inventory_items WHERE id = $1 FOR UPDATE`, id).Scan(&previous)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}
	if _, err := tx.ExecContext(ctx, `UPDATE inventory_items SET current_stock = $2, updated_at = now() WHERE id = $1`, id, next); err != nil {
		return nil, err
	}
	if err := insertInventoryLog(ctx, tx, id, domain.LogActionStockAdjusted, next.Sub(previous), nil, "", loggedBy); err != nil {
		return nil, err
	}

	item, err := scanInventoryItem(tx.QueryRowContext(ctx, s.inventorySelect()+` WHERE id = $1`, id))
	if err != nil {
		return nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, err
	}
	return &item, nil
}

func (s *Store) ListInventoryLogs(ctx context.Context, itemID int64, limit int) ([]domain.InventoryLogEntry, error) {
	if limit <= 0 || limit > 500 {
		limit = 100
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, inventory_item_id, action, quantity_change, reference_id, reference_type, logged_by, created_at
		FROM inventory_logs
		WHERE ($1 = 0 OR inventory_item_id = $1)
		ORDER BY id DESC
		LIMIT $2
	`, itemID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	entries := make([]domain.InventoryLogEntry, 0, limit)
	for rows.Next() {
		var entry domain.InventoryLogEntry
		var refID sql.NullInt64
		var refType sql.NullString
		if err := rows.Scan(&entry.ID, &entry.InventoryItemID, &entry.Action, &entry.QuantityChange, &refID, &refType, &entry.LoggedBy, &entry.CreatedAt); err != nil {
			return nil, err
		}
		entry.ReferenceID = int64Ptr(refID)
		entry.ReferenceType = refType.String
		entry.CreatedAt = entry.CreatedAt.UTC()
		entries = append(entries, entry)
	}
	return entries, rows.Err()
}

func insertInventoryLog(ctx context.Context, q queryer, itemID int64, action string, change decimal.Decimal, refID *int64, refType string, loggedBy string) error {
	if strings.TrimSpace(loggedBy) == "" {
		loggedBy = "system"
	}
	_, err := q.ExecContext(ctx, `
		INSERT INTO inventory_logs (inventory_item_id, action, quantity_change, reference_id, reference_type, logged_by, created_at)
		VALUES ($1,$2,$3,$4,$5,$6,now())
	`, itemID, action, change, nullInt64(refID), nullIfEmpty(refType), loggedBy)
	return err
}
