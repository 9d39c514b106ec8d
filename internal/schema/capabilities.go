package schema

import (
	"context"
	"fmt"
)

// DescriptorVersion changes whenever Capabilities gains or loses a field.
const DescriptorVersion = 1

// ColumnPair is a column known under a current and a legacy name. During a
// rename both may exist; writes then go to both and reads prefer the current.
type ColumnPair struct {
	Table      string
	Current    string
	Legacy     string
	HasCurrent bool
	HasLegacy  bool
	// LegacyRead wraps the legacy column when its type differs from the
	// current one. It receives the qualified column name through %[1]s.
	LegacyRead string
}

func (c ColumnPair) Present() bool {
	return c.HasCurrent || c.HasLegacy
}

// WriteColumns returns every present column name, current first.
func (c ColumnPair) WriteColumns() []string {
	cols := make([]string, 0, 2)
	if c.HasCurrent {
		cols = append(cols, c.Current)
	}
	if c.HasLegacy {
		cols = append(cols, c.Legacy)
	}
	return cols
}

// ReadExpr is the SQL expression that yields the value regardless of which
// columns exist. alias may be empty.
func (c ColumnPair) ReadExpr(alias string) string {
	qualify := func(col string) string {
		if alias == "" {
			return col
		}
		return alias + "." + col
	}
	legacy := qualify(c.Legacy)
	if c.LegacyRead != "" {
		legacy = fmt.Sprintf(c.LegacyRead, legacy)
	}
	switch {
	case c.HasCurrent && c.HasLegacy:
		return fmt.Sprintf("COALESCE(%s, %s)", qualify(c.Current), legacy)
	case c.HasCurrent:
		return qualify(c.Current)
	case c.HasLegacy:
		return legacy
	default:
		return "NULL"
	}
}

// Capabilities describes the live schema as far as the persistence layer
// cares. It is computed once by Probe and then only read.
type Capabilities struct {
	Version int

	PONumber          ColumnPair
	POSupplier        ColumnPair
	POItemInventory   ColumnPair
	POItemQuantity    ColumnPair
	POItemUnitCost    ColumnPair
	InventorySupplier ColumnPair

	POItemHasReceived       bool
	POItemHasTotalPrice     bool
	POHasActualDeliveryDate bool
	OrderHasExemptReason    bool
	OrderHasDiscount        bool
	HasDocumentSequences    bool
}

const legacySupplierRead = "CASE WHEN %[1]s ~ '^[0-9]+$' THEN %[1]s::bigint END"

func renamed(table, current, legacy string) ColumnPair {
	return ColumnPair{Table: table, Current: current, Legacy: legacy}
}

func baseline() Capabilities {
	poSupplier := renamed("purchase_orders", "supplier_id", "supplier")
	poSupplier.LegacyRead = legacySupplierRead
	invSupplier := renamed("inventory_items", "supplier_id", "supplier")
	invSupplier.LegacyRead = legacySupplierRead

	return Capabilities{
		Version:           DescriptorVersion,
		PONumber:          renamed("purchase_orders", "po_number", "order_number"),
		POSupplier:        poSupplier,
		POItemInventory:   renamed("purchase_order_items", "inventory_item_id", "item_id"),
		POItemQuantity:    renamed("purchase_order_items", "quantity_ordered", "quantity"),
		POItemUnitCost:    renamed("purchase_order_items", "unit_cost", "unit_price"),
		InventorySupplier: invSupplier,
	}
}

// Current is the descriptor of a fully migrated database.
func Current() Capabilities {
	caps := baseline()
	for _, pair := range caps.pairs() {
		pair.HasCurrent = true
	}
	caps.POItemHasReceived = true
	caps.POItemHasTotalPrice = true
	caps.POHasActualDeliveryDate = true
	caps.OrderHasExemptReason = true
	caps.OrderHasDiscount = true
	caps.HasDocumentSequences = true
	return caps
}

func (c *Capabilities) pairs() []*ColumnPair {
	return []*ColumnPair{
		&c.PONumber, &c.POSupplier, &c.POItemInventory,
		&c.POItemQuantity, &c.POItemUnitCost, &c.InventorySupplier,
	}
}

// Probe inspects the database through prober. Renamed columns the core cannot
// work without must exist under at least one name.
func Probe(ctx context.Context, prober *Prober) (Capabilities, error) {
	caps := baseline()

	for _, pair := range caps.pairs() {
		var err error
		if pair.HasCurrent, err = prober.HasColumn(ctx, pair.Table, pair.Current); err != nil {
			return Capabilities{}, err
		}
		if pair.HasLegacy, err = prober.HasColumn(ctx, pair.Table, pair.Legacy); err != nil {
			return Capabilities{}, err
		}
	}

	for _, required := range []ColumnPair{caps.PONumber, caps.POItemInventory, caps.POItemQuantity, caps.POItemUnitCost} {
		if !required.Present() {
			return Capabilities{}, fmt.Errorf("schema: %s has neither %s nor %s", required.Table, required.Current, required.Legacy)
		}
	}

	flags := []struct {
		dst    *bool
		table  string
		column string
	}{
		{&caps.POItemHasReceived, "purchase_order_items", "quantity_received"},
		{&caps.POItemHasTotalPrice, "purchase_order_items", "total_price"},
		{&caps.POHasActualDeliveryDate, "purchase_orders", "actual_delivery_date"},
		{&caps.OrderHasExemptReason, "orders", "exempt_reason"},
		{&caps.OrderHasDiscount, "orders", "discount_amount"},
	}
	for _, f := range flags {
		ok, err := prober.HasColumn(ctx, f.table, f.column)
		if err != nil {
			return Capabilities{}, err
		}
		*f.dst = ok
	}
	if !caps.POItemHasReceived {
		return Capabilities{}, fmt.Errorf("schema: purchase_order_items.quantity_received is required for receiving")
	}

	hasSeq, err := prober.HasTable(ctx, "document_sequences")
	if err != nil {
		return Capabilities{}, err
	}
	caps.HasDocumentSequences = hasSeq
	return caps, nil
}
