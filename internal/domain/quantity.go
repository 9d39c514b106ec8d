package domain

import "github.com/shopspring/decimal"

// QuantityScale is the number of decimal places stock and quantity columns
// keep. Anything finer would be rounded by the database.
const QuantityScale = 3

func FitsQuantityScale(d decimal.Decimal) bool {
	return d.Equal(d.Truncate(QuantityScale))
}
