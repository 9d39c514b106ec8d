package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"hotelpos/backend/internal/domain"
	"hotelpos/backend/internal/ledger"
	"hotelpos/backend/internal/numbering"
	"hotelpos/backend/internal/store"
)

func testDatabaseURL(t *testing.T) string {
	t.Helper()
	databaseURL := os.Getenv("POS_TEST_DATABASE_URL")
	if databaseURL == "" {
		t.Skip("set POS_TEST_DATABASE_URL to run postgres integration tests")
	}
	return databaseURL
}

// isolatedStore runs setup in a fresh schema and returns a store whose
// connections only see that schema.
func isolatedStore(t *testing.T, setup string, opts ...Option) *Store {
	t.Helper()
	databaseURL := testDatabaseURL(t)
	ctx := context.Background()

	name := fmt.Sprintf("pos_it_%d", time.Now().UnixNano())
	admin, err := sql.Open("pgx", databaseURL)
	if err != nil {
		t.Fatalf("connect: %v", err)
	}
	if _, err := admin.ExecContext(ctx, "CREATE SCHEMA "+name); err != nil {
		t.Fatalf("create schema: %v", err)
	}
	t.Cleanup(func() {
		_, _ = admin.ExecContext(context.Background(), "DROP SCHEMA "+name+" CASCADE")
		_ = admin.Close()
	})

	scopedURL := withSearchPath(databaseURL, name)
	if setup != "" {
		raw, err := sql.Open("pgx", scopedURL)
		if err != nil {
			t.Fatalf("connect for setup: %v", err)
		}
		if _, err := raw.ExecContext(ctx, setup); err != nil {
			t.Fatalf("setup schema: %v", err)
		}
		_ = raw.Close()
	} else {
		opts = append(opts, WithAutoMigrate(true))
	}

	s, err := New(ctx, scopedURL, opts...)
	if err != nil {
		t.Fatalf("new store: %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func withSearchPath(databaseURL string, schemaName string) string {
	if strings.Contains(databaseURL, "://") {
		sep := "?"
		if strings.Contains(databaseURL, "?") {
			sep = "&"
		}
		return databaseURL + sep + "search_path=" + schemaName
	}
	return databaseURL + " search_path=" + schemaName
}

func dec(v string) decimal.Decimal { return decimal.RequireFromString(v) }

func mustItem(t *testing.T, s *Store, name, invType, stock string) *domain.InventoryItem {
	t.Helper()
	item, err := s.CreateInventoryItem(context.Background(), domain.InventoryItem{
		Name: name, Unit: "pcs", CurrentStock: dec(stock), InventoryType: invType,
	})
	if err != nil {
		t.Fatalf("create item: %v", err)
	}
	return item
}

func barSale(itemID int64, qty string) domain.Order {
	exempt, _ := domain.ExemptionFor(domain.OrderTypeBarSale)
	id := itemID
	total := dec(qty).Mul(dec("2"))
	return domain.Order{
		OrderType:     domain.OrderTypeBarSale,
		Attribution:   exempt,
		Subtotal:      total,
		TotalAmount:   total,
		PaymentMethod: "cash",
		Items: []domain.OrderItem{{
			ProductID: &id, InventoryItemID: &id, Quantity: dec(qty), UnitPrice: dec("2"), TotalPrice: total,
		}},
	}
}

func TestOrderDecrementAndRollback(t *testing.T) {
	s := isolatedStore(t, "")
	ctx := context.Background()
	lager := mustItem(t, s, "Lager", domain.InventoryBar, "5")

	order, err := s.CreateOrder(ctx, barSale(lager.ID, "3"))
	if err != nil {
		t.Fatalf("create order: %v", err)
	}
	if order.Attribution.StaffName != "Bar Staff" || order.Payment == nil {
		t.Fatalf("unexpected order %+v", order)
	}
	got, _ := s.GetInventoryItem(ctx, lager.ID)
	if !got.CurrentStock.Equal(dec("2")) {
		t.Fatalf("expected stock 2, got %s", got.CurrentStock)
	}

	_, err = s.CreateOrder(ctx, barSale(lager.ID, "10"))
	var stockErr *ledger.InsufficientStockError
	if !errors.As(err, &stockErr) || !stockErr.Available.Equal(dec("2")) {
		t.Fatalf("expected insufficient stock with 2 available, got %v", err)
	}
	orders, _ := s.ListOrders(ctx, "", 0)
	if len(orders) != 1 {
		t.Fatalf("expected the refused order to leave no row, got %d orders", len(orders))
	}
}

func TestFailedMiddleLineRollsBackWholeOrder(t *testing.T) {
	s := isolatedStore(t, "")
	ctx := context.Background()
	lager := mustItem(t, s, "Lager", domain.InventoryBar, "10")
	wine := mustItem(t, s, "Wine", domain.InventoryBar, "1")
	cola := mustItem(t, s, "Cola", domain.InventoryBar, "10")

	order := barSale(lager.ID, "2")
	for _, id := range []int64{wine.ID, cola.ID} {
		itemID := id
		order.Items = append(order.Items, domain.OrderItem{
			ProductID: &itemID, InventoryItemID: &itemID, Quantity: dec("2"), UnitPrice: dec("2"), TotalPrice: dec("4"),
		})
	}

	_, err := s.CreateOrder(ctx, order)
	var stockErr *ledger.InsufficientStockError
	if !errors.As(err, &stockErr) || stockErr.ItemName != "Wine" {
		t.Fatalf("expected insufficient stock on Wine, got %v", err)
	}
	for id, want := range map[int64]string{lager.ID: "10", wine.ID: "1", cola.ID: "10"} {
		got, _ := s.GetInventoryItem(ctx, id)
		if !got.CurrentStock.Equal(dec(want)) {
			t.Fatalf("item %d: expected stock %s, got %s", id, want, got.CurrentStock)
		}
	}

	orders, _ := s.ListOrders(ctx, "", 0)
	if len(orders) != 0 {
		t.Fatalf("expected no orders, got %d", len(orders))
	}
	for _, table := range []string{"order_items", "payments", "inventory_logs"} {
		var count int
		if err := s.db.QueryRowContext(ctx, "SELECT count(*) FROM "+table).Scan(&count); err != nil {
			t.Fatalf("count %s: %v", table, err)
		}
		if count != 0 {
			t.Fatalf("expected %s to be empty, got %d rows", table, count)
		}
	}
}

func TestConcurrentOrdersDoNotOversell(t *testing.T) {
	s := isolatedStore(t, "")
	ctx := context.Background()
	lager := mustItem(t, s, "Lager", domain.InventoryBar, "5")

	var wg sync.WaitGroup
	var mu sync.Mutex
	wins := 0
	for i := 0; i < 12; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := s.CreateOrder(ctx, barSale(lager.ID, "1")); err == nil {
				mu.Lock()
				wins++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	got, _ := s.GetInventoryItem(ctx, lager.ID)
	if wins != 5 || !got.CurrentStock.IsZero() {
		t.Fatalf("expected 5 sales and empty stock, got %d sales and %s left", wins, got.CurrentStock)
	}
}

func TestReceiveIsClampedAndIdempotent(t *testing.T) {
	s := isolatedStore(t, "")
	ctx := context.Background()
	rice := mustItem(t, s, "Rice", domain.InventoryKitchen, "0")

	po, err := s.CreatePurchaseOrder(ctx, domain.PurchaseOrder{
		SupplierID: 3,
		Items:      []domain.PurchaseOrderItem{{InventoryItemID: rice.ID, QuantityOrdered: dec("10"), UnitCost: dec("1.5")}},
	})
	if err != nil {
		t.Fatalf("create po: %v", err)
	}
	if !strings.HasPrefix(po.PONumber, "PO") {
		t.Fatalf("unexpected po number %q", po.PONumber)
	}
	line := po.Items[0].ID

	receive := func(qty string) *domain.PurchaseOrder {
		t.Helper()
		got, err := s.ReceivePurchaseOrder(ctx, po.ID, []domain.ReceiveLine{{ID: line, QuantityReceived: json.RawMessage(qty)}}, time.Time{}, "manager")
		if err != nil {
			t.Fatalf("receive %s: %v", qty, err)
		}
		return got
	}

	if got := receive("4"); got.Status != domain.POStatusPartiallyReceived || got.ActualDeliveryDate == nil {
		t.Fatalf("expected partially_received with a delivery date, got %s (%v)", got.Status, got.ActualDeliveryDate)
	}
	receive("4")
	if got := receive("15"); got.Status != domain.POStatusReceived || !got.Items[0].QuantityReceived.Equal(dec("10")) {
		t.Fatalf("expected received and clamped, got %+v", got)
	}
	item, _ := s.GetInventoryItem(ctx, rice.ID)
	if !item.CurrentStock.Equal(dec("10")) {
		t.Fatalf("expected stock 10, got %s", item.CurrentStock)
	}
	logs, _ := s.ListInventoryLogs(ctx, rice.ID, 10)
	if len(logs) != 2 {
		t.Fatalf("expected two purchase_received logs, got %d", len(logs))
	}
}

func TestInvoiceNumbersUseSequenceTable(t *testing.T) {
	s := isolatedStore(t, "")
	ctx := context.Background()
	at := time.Date(2026, 10, 1, 8, 0, 0, 0, time.UTC)

	first, err := s.NextDocumentNumber(ctx, numbering.Invoice("INV"), at)
	if err != nil {
		t.Fatalf("number: %v", err)
	}
	second, _ := s.NextDocumentNumber(ctx, numbering.Invoice("INV"), at)
	if first != "INV-202610-001" || second != "INV-202610-002" {
		t.Fatalf("unexpected numbers %s %s", first, second)
	}
}

const legacySchema = `
CREATE TABLE staff (id BIGSERIAL PRIMARY KEY, employee_id TEXT, username TEXT UNIQUE, name TEXT, role TEXT,
    pin TEXT DEFAULT '', password_hash TEXT DEFAULT '', is_active BOOLEAN DEFAULT true, created_at TIMESTAMPTZ DEFAULT now());
CREATE TABLE inventory_items (id BIGSERIAL PRIMARY KEY, name TEXT, unit TEXT, current_stock NUMERIC DEFAULT 0,
    minimum_stock NUMERIC DEFAULT 0, cost_per_unit NUMERIC DEFAULT 0, supplier TEXT, inventory_type TEXT,
    is_active BOOLEAN DEFAULT true, updated_at TIMESTAMPTZ DEFAULT now());
CREATE TABLE inventory_logs (id BIGSERIAL PRIMARY KEY, inventory_item_id BIGINT, action TEXT, quantity_change NUMERIC,
    reference_id BIGINT, reference_type TEXT, logged_by TEXT, created_at TIMESTAMPTZ DEFAULT now());
CREATE TABLE purchase_orders (id BIGSERIAL PRIMARY KEY, order_number TEXT UNIQUE, supplier TEXT, order_date DATE,
    expected_delivery_date DATE, status TEXT, total_amount NUMERIC DEFAULT 0, notes TEXT, created_by TEXT,
    created_at TIMESTAMPTZ DEFAULT now());
CREATE TABLE purchase_order_items (id BIGSERIAL PRIMARY KEY, purchase_order_id BIGINT, item_id BIGINT, quantity NUMERIC,
    quantity_received NUMERIC DEFAULT 0, unit_price NUMERIC);
`

func TestLegacySchemaPurchaseOrderRoundTrip(t *testing.T) {
	s := isolatedStore(t, legacySchema, WithLocker(numbering.NewLocalLocker()))
	ctx := context.Background()

	caps := s.Capabilities()
	if caps.HasDocumentSequences || caps.POItemHasTotalPrice || !caps.POItemQuantity.HasLegacy || caps.POItemQuantity.HasCurrent {
		t.Fatalf("unexpected capabilities %+v", caps)
	}

	towel := mustItem(t, s, "Towel", domain.InventoryHousekeeping, "1")
	first, err := s.CreatePurchaseOrder(ctx, domain.PurchaseOrder{
		SupplierID: 12,
		Items:      []domain.PurchaseOrderItem{{InventoryItemID: towel.ID, QuantityOrdered: dec("5"), UnitCost: dec("3")}},
	})
	if err != nil {
		t.Fatalf("create po: %v", err)
	}
	second, err := s.CreatePurchaseOrder(ctx, domain.PurchaseOrder{
		SupplierID: 12,
		Items:      []domain.PurchaseOrderItem{{InventoryItemID: towel.ID, QuantityOrdered: dec("1"), UnitCost: dec("3")}},
	})
	if err != nil {
		t.Fatalf("create second po: %v", err)
	}
	if first.PONumber != "PO0001" || second.PONumber != "PO0002" {
		t.Fatalf("unexpected numbers %s %s", first.PONumber, second.PONumber)
	}

	got, err := s.ReceivePurchaseOrder(ctx, first.ID, []domain.ReceiveLine{{ID: first.Items[0].ID, QuantityReceived: json.RawMessage(`"5"`)}}, time.Time{}, "manager")
	if err != nil {
		t.Fatalf("receive: %v", err)
	}
	if got.SupplierID != 12 || got.Status != domain.POStatusReceived || !got.Items[0].QuantityOrdered.Equal(dec("5")) {
		t.Fatalf("unexpected purchase order %+v", got)
	}
	item, _ := s.GetInventoryItem(ctx, towel.ID)
	if !item.CurrentStock.Equal(dec("6")) {
		t.Fatalf("expected stock 6, got %s", item.CurrentStock)
	}

	if _, err := s.CancelPurchaseOrder(ctx, first.ID); !errors.Is(err, store.ErrConflict) {
		t.Fatalf("expected conflict cancelling a received order, got %v", err)
	}
}
