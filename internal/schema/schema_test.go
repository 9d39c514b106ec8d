package schema

import (
	"context"
	"errors"
	"strings"
	"testing"
)

type fakeLister struct {
	tables map[string][]string
	calls  map[string]int
	err    error
}

func (f *fakeLister) Columns(_ context.Context, table string) ([]string, error) {
	if f.calls == nil {
		f.calls = make(map[string]int)
	}
	f.calls[table]++
	if f.err != nil {
		return nil, f.err
	}
	return f.tables[table], nil
}

func migratedTables() map[string][]string {
	return map[string][]string{
		"purchase_orders":      {"id", "po_number", "supplier_id", "status", "actual_delivery_date"},
		"purchase_order_items": {"id", "inventory_item_id", "quantity_ordered", "quantity_received", "unit_cost", "total_price"},
		"inventory_items":      {"id", "supplier_id"},
		"orders":               {"id", "exempt_reason", "discount_amount"},
		"document_sequences":   {"scope", "last_number"},
	}
}

func TestHasColumnIsMemoizedPerTable(t *testing.T) {
	lister := &fakeLister{tables: migratedTables()}
	prober := NewProber(lister)
	ctx := context.Background()

	for _, col := range []string{"po_number", "PO_NUMBER", "order_number", "status"} {
		if _, err := prober.HasColumn(ctx, "purchase_orders", col); err != nil {
			t.Fatalf("has column: %v", err)
		}
	}
	ok, _ := prober.HasColumn(ctx, "purchase_orders", "PO_Number")
	if !ok {
		t.Fatalf("expected case-insensitive match")
	}
	if lister.calls["purchase_orders"] != 1 {
		t.Fatalf("expected one lookup, got %d", lister.calls["purchase_orders"])
	}
}

func TestHasColumnPropagatesErrorsWithoutCaching(t *testing.T) {
	lister := &fakeLister{err: errors.New("connection reset")}
	prober := NewProber(lister)
	if _, err := prober.HasColumn(context.Background(), "orders", "id"); err == nil {
		t.Fatalf("expected error")
	}
	lister.err = nil
	lister.tables = migratedTables()
	ok, err := prober.HasColumn(context.Background(), "orders", "id")
	if err != nil || !ok {
		t.Fatalf("expected retry to succeed, got %v %v", ok, err)
	}
}

func TestProbeMigratedSchema(t *testing.T) {
	caps, err := Probe(context.Background(), NewProber(&fakeLister{tables: migratedTables()}))
	if err != nil {
		t.Fatalf("probe: %v", err)
	}
	if caps.Version != DescriptorVersion {
		t.Fatalf("unexpected version %d", caps.Version)
	}
	if caps.POItemQuantity.ReadExpr("poi") != "poi.quantity_ordered" {
		t.Fatalf("unexpected read expr %q", caps.POItemQuantity.ReadExpr("poi"))
	}
	if !caps.HasDocumentSequences || !caps.OrderHasExemptReason || !caps.POHasActualDeliveryDate {
		t.Fatalf("expected optional features detected: %+v", caps)
	}
}

func TestProbeMidRenameDualReadsAndWrites(t *testing.T) {
	tables := migratedTables()
	tables["purchase_order_items"] = []string{"id", "item_id", "inventory_item_id", "quantity", "quantity_received", "unit_price"}
	tables["purchase_orders"] = []string{"id", "order_number", "supplier"}
	delete(tables, "document_sequences")

	caps, err := Probe(context.Background(), NewProber(&fakeLister{tables: tables}))
	if err != nil {
		t.Fatalf("probe: %v", err)
	}

	if got := caps.POItemInventory.WriteColumns(); len(got) != 2 || got[0] != "inventory_item_id" || got[1] != "item_id" {
		t.Fatalf("expected dual write columns, got %v", got)
	}
	if got := caps.POItemInventory.ReadExpr("poi"); got != "COALESCE(poi.inventory_item_id, poi.item_id)" {
		t.Fatalf("unexpected dual read %q", got)
	}
	if got := caps.POItemQuantity.ReadExpr(""); got != "quantity" {
		t.Fatalf("expected legacy-only read, got %q", got)
	}
	if got := caps.PONumber.WriteColumns(); len(got) != 1 || got[0] != "order_number" {
		t.Fatalf("expected legacy po number column, got %v", got)
	}
	if got := caps.POSupplier.ReadExpr("po"); !strings.Contains(got, "po.supplier::bigint") {
		t.Fatalf("expected cast of legacy supplier, got %q", got)
	}
	if caps.POItemHasTotalPrice || caps.HasDocumentSequences {
		t.Fatalf("expected missing optional features to be false: %+v", caps)
	}
}

func TestProbeFailsWhenRequiredColumnMissing(t *testing.T) {
	tables := migratedTables()
	tables["purchase_order_items"] = []string{"id", "inventory_item_id", "quantity_received", "unit_cost"}
	if _, err := Probe(context.Background(), NewProber(&fakeLister{tables: tables})); err == nil {
		t.Fatalf("expected missing quantity column to fail the probe")
	}
}

func TestCurrentDescriptor(t *testing.T) {
	caps := Current()
	if caps.PONumber.ReadExpr("") != "po_number" || !caps.HasDocumentSequences {
		t.Fatalf("unexpected current descriptor: %+v", caps)
	}
	var empty ColumnPair
	if empty.ReadExpr("x") != "NULL" {
		t.Fatalf("expected NULL for absent pair")
	}
}
