// Package ledger holds the stock balance rules shared by every store: stock
// never drops below zero and a refused decrement leaves the balance untouched.
// The operations carry no transaction of their own; stores apply them inside
// whatever transaction the caller opened.
package ledger

import (
	"fmt"

	"github.com/shopspring/decimal"

	"hotelpos/backend/internal/store"
)

type Balance struct {
	ItemID int64
	Name   string
	Stock  decimal.Decimal
}

type InsufficientStockError struct {
	ItemID    int64
	ItemName  string
	Available decimal.Decimal
	Requested decimal.Decimal
}

func (e *InsufficientStockError) Error() string {
	return fmt.Sprintf("Insufficient stock for %s. Available: %s", e.ItemName, e.Available.String())
}

func (e *InsufficientStockError) Is(target error) bool {
	return target == store.ErrInsufficientStock
}

func Decrement(balance Balance, qty decimal.Decimal) (decimal.Decimal, error) {
	if qty.IsNegative() {
		return balance.Stock, fmt.Errorf("%w: decrement quantity must not be negative", store.ErrValidation)
	}
	next := balance.Stock.Sub(qty)
	if next.IsNegative() {
		return balance.Stock, &InsufficientStockError{
			ItemID:    balance.ItemID,
			ItemName:  balance.Name,
			Available: balance.Stock,
			Requested: qty,
		}
	}
	return next, nil
}

func Increment(balance Balance, qty decimal.Decimal) (decimal.Decimal, error) {
	if qty.IsNegative() {
		return balance.Stock, fmt.Errorf("%w: increment quantity must not be negative", store.ErrValidation)
	}
	return balance.Stock.Add(qty), nil
}

// Set validates a manual stock count.
func Set(value decimal.Decimal) (decimal.Decimal, error) {
	if value.IsNegative() {
		return decimal.Zero, fmt.Errorf("%w: current_stock must not be negative", store.ErrValidation)
	}
	return value, nil
}
