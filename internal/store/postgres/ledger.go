package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/shopspring/decimal"

	"hotelpos/backend/internal/domain"
	"hotelpos/backend/internal/ledger"
	"hotelpos/backend/internal/store"
)

// decrementBarStock takes qty off a bar item inside the caller's transaction.
// The guard in the WHERE clause makes the check and the write one statement,
// so two orders racing for the last bottle cannot both win. Items of another
// inventory type are left alone and reported as not decremented.
func decrementBarStock(ctx context.Context, tx *sql.Tx, itemID int64, qty decimal.Decimal) (bool, error) {
	if qty.IsNegative() {
		return false, fmt.Errorf("%w: quantity must not be negative", store.ErrValidation)
	}

	var next decimal.Decimal
	err := tx.QueryRowContext(ctx, `
		UPDATE inventory_items
		SET current_stock = current_stock - $2, updated_at = now()
		WHERE id = $1 AND inventory_type = $3 AND current_stock >= $2
		RETURNING current_stock
	`, itemID, qty, domain.InventoryBar).Scan(&next)
	if err == nil {
		return true, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return false, err
	}

	var balance ledger.Balance
	var inventoryType string
	err = tx.QueryRowContext(ctx, `
		SELECT id, name, current_stock, inventory_type
		FROM inventory_items
		WHERE id = $1
	`, itemID).Scan(&balance.ItemID, &balance.Name, &balance.Stock, &inventoryType)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return false, fmt.Errorf("%w: inventory item %d not found", store.ErrValidation, itemID)
		}
		return false, err
	}
	if inventoryType != domain.InventoryBar {
		return false, nil
	}
	if _, err := ledger.Decrement(balance, qty); err != nil {
		return false, err
	}
	// the guard failed but the balance now covers qty: a concurrent restock
	// landed in between, so the caller's transaction must start over
	return false, fmt.Errorf("%w: stock for %s changed concurrently", store.ErrConflict, balance.Name)
}

// incrementStock adds qty to an item and reports false when the item no
// longer exists.
func incrementStock(ctx context.Context, tx *sql.Tx, itemID int64, qty decimal.Decimal) (bool, error) {
	if qty.IsNegative() {
		return false, fmt.Errorf("%w: quantity must not be negative", store.ErrValidation)
	}
	res, err := tx.ExecContext(ctx, `
		UPDATE inventory_items
		SET current_stock = current_stock + $2, updated_at = now()
		WHERE id = $1
	`, itemID, qty)
	if err != nil {
		return false, err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return affected > 0, nil
}
