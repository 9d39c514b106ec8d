// Package receiving reconciles delivery notes against purchase order lines.
// Received quantities are capped at the ordered quantity; whatever was
// delivered beyond that is dropped rather than booked as an overage.
package receiving

import (
	"bytes"
	"encoding/json"
	"strings"

	"github.com/shopspring/decimal"

	"hotelpos/backend/internal/domain"
)

type LineUpdate struct {
	LineID          int64
	InventoryItemID int64
	Previous        decimal.Decimal
	Received        decimal.Decimal
	TotalPrice      decimal.Decimal
	Delta           decimal.Decimal
}

// ParseQuantity reads a received quantity that may arrive as a JSON number or
// a numeric string. Anything else, including null or more decimal places than
// the stock columns keep, is reported as not ok.
func ParseQuantity(raw json.RawMessage) (decimal.Decimal, bool) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return decimal.Zero, false
	}
	text := string(raw)
	if raw[0] == '"' {
		var s string
		if err := json.Unmarshal(raw, &s); err != nil {
			return decimal.Zero, false
		}
		text = strings.TrimSpace(s)
	}
	qty, err := decimal.NewFromString(text)
	if err != nil || !domain.FitsQuantityScale(qty) {
		return decimal.Zero, false
	}
	return qty, true
}

// Clamp caps received at ordered. A line with no ordered quantity is capped by
// the received value itself.
func Clamp(received decimal.Decimal, ordered decimal.Decimal) decimal.Decimal {
	limit := ordered
	if !ordered.IsPositive() {
		limit = received
	}
	return decimal.Max(decimal.Zero, decimal.Min(received, limit))
}

// Plan computes the line updates for one receive call. Unknown line ids and
// unreadable quantities are skipped, and a line never moves below what it has
// already received. A line listed twice sees its own earlier
// update as the previous value.
func Plan(lines []domain.PurchaseOrderItem, incoming []domain.ReceiveLine) []LineUpdate {
	byID := make(map[int64]domain.PurchaseOrderItem, len(lines))
	for _, line := range lines {
		byID[line.ID] = line
	}

	updates := make([]LineUpdate, 0, len(incoming))
	for _, in := range incoming {
		line, ok := byID[in.ID]
		if !ok {
			continue
		}
		qty, ok := ParseQuantity(in.QuantityReceived)
		if !ok {
			continue
		}

		clamped := Clamp(qty, line.QuantityOrdered)
		if clamped.LessThan(line.QuantityReceived) {
			// stock already booked cannot be taken back by a later, smaller note
			clamped = line.QuantityReceived
		}
		update := LineUpdate{
			LineID:          line.ID,
			InventoryItemID: line.InventoryItemID,
			Previous:        line.QuantityReceived,
			Received:        clamped,
			TotalPrice:      line.UnitCost.Mul(line.QuantityOrdered),
			Delta:           clamped.Sub(line.QuantityReceived),
		}
		updates = append(updates, update)

		line.QuantityReceived = clamped
		line.TotalPrice = update.TotalPrice
		byID[line.ID] = line
	}
	return updates
}

func AllReceived(lines []domain.PurchaseOrderItem) bool {
	for _, line := range lines {
		if !line.QuantityOrdered.IsPositive() {
			continue
		}
		if line.QuantityReceived.LessThan(line.QuantityOrdered) {
			return false
		}
	}
	return true
}

func Status(lines []domain.PurchaseOrderItem) string {
	if AllReceived(lines) {
		return domain.POStatusReceived
	}
	return domain.POStatusPartiallyReceived
}

func Total(lines []domain.PurchaseOrderItem) decimal.Decimal {
	total := decimal.Zero
	for _, line := range lines {
		total = total.Add(line.UnitCost.Mul(line.QuantityOrdered))
	}
	return total
}
