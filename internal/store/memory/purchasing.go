package memory

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/shopspring/decimal"

	"hotelpos/backend/internal/domain"
	"hotelpos/backend/internal/ledger"
	"hotelpos/backend/internal/numbering"
	"hotelpos/backend/internal/receiving"
	"hotelpos/backend/internal/store"
)

func (s *Store) CreatePurchaseOrder(_ context.Context, po domain.PurchaseOrder) (*domain.PurchaseOrder, error) {
	if po.SupplierID <= 0 || len(po.Items) == 0 {
		return nil, store.ErrValidation
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	for _, line := range po.Items {
		if _, ok := s.inventory[line.InventoryItemID]; !ok {
			return nil, fmt.Errorf("%w: inventory item %d not found", store.ErrValidation, line.InventoryItemID)
		}
	}

	now := s.now()
	if po.OrderDate.IsZero() {
		po.OrderDate = now
	}
	po.ID = s.nextID("purchase_order")
	po.PONumber = s.nextNumber(numbering.PurchaseOrder(), po.OrderDate)
	po.Status = domain.POStatusPending
	po.CreatedAt = now

	items := make([]domain.PurchaseOrderItem, len(po.Items))
	for i, line := range po.Items {
		line.ID = s.nextID("purchase_order_item")
		line.PurchaseOrderID = po.ID
		line.QuantityReceived = decimal.Zero
		line.TotalPrice = line.UnitCost.Mul(line.QuantityOrdered)
		items[i] = line
	}
	po.Items = items
	po.TotalAmount = receiving.Total(items)

	s.purchaseOrders[po.ID] = po
	return clonePurchaseOrder(po), nil
}

func (s *Store) GetPurchaseOrder(_ context.Context, id int64) (*domain.PurchaseOrder, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	po, ok := s.purchaseOrders[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	return clonePurchaseOrder(po), nil
}

func (s *Store) ListPurchaseOrders(_ context.Context, status string, limit int) ([]domain.PurchaseOrder, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]domain.PurchaseOrder, 0, len(s.purchaseOrders))
	for _, po := range s.purchaseOrders {
		if status != "" && po.Status != status {
			continue
		}
		out = append(out, *clonePurchaseOrder(po))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID > out[j].ID })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// ReceivePurchaseOrder books a delivery note. Holding the write lock for the
// whole call serialises concurrent receives against the same purchase order.
func (s *Store) ReceivePurchaseOrder(_ context.Context, id int64, lines []domain.ReceiveLine, receivedAt time.Time, receivedBy string) (*domain.PurchaseOrder, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	po, ok := s.purchaseOrders[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	if po.Status == domain.POStatusCancelled {
		return nil, fmt.Errorf("%w: purchase order %s is cancelled", store.ErrConflict, po.PONumber)
	}
	if receivedAt.IsZero() {
		receivedAt = s.now()
	}

	updates := receiving.Plan(po.Items, lines)
	byLine := make(map[int64]int, len(po.Items))
	for i, line := range po.Items {
		byLine[line.ID] = i
	}

	items := append([]domain.PurchaseOrderItem(nil), po.Items...)
	for _, update := range updates {
		idx := byLine[update.LineID]
		items[idx].QuantityReceived = update.Received
		items[idx].TotalPrice = update.TotalPrice
		if !update.Delta.IsPositive() {
			continue
		}
		inv, ok := s.inventory[update.InventoryItemID]
		if !ok {
			continue
		}
		next, err := ledger.Increment(ledger.Balance{ItemID: inv.ID, Name: inv.Name, Stock: inv.CurrentStock}, update.Delta)
		if err != nil {
			return nil, err
		}
		inv.CurrentStock = next
		inv.UpdatedAt = receivedAt
		s.inventory[inv.ID] = inv
		poID := po.ID
		s.appendLog(inv.ID, domain.LogActionPurchaseReceived, update.Delta, &poID, "purchase_order", receivedBy)
	}

	po.Items = items
	po.Status = receiving.Status(items)
	po.TotalAmount = receiving.Total(items)
	delivered := receivedAt
	po.ActualDeliveryDate = &delivered
	s.purchaseOrders[id] = po
	return clonePurchaseOrder(po), nil
}

// CancelPurchaseOrder only applies while nothing has been received.
func (s *Store) CancelPurchaseOrder(_ context.Context, id int64) (*domain.PurchaseOrder, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	po, ok := s.purchaseOrders[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	if po.Status != domain.POStatusPending {
		return nil, fmt.Errorf("%w: purchase order %s is %s", store.ErrConflict, po.PONumber, po.Status)
	}
	po.Status = domain.POStatusCancelled
	s.purchaseOrders[id] = po
	return clonePurchaseOrder(po), nil
}

func (s *Store) NextDocumentNumber(_ context.Context, scope numbering.Scope, at time.Time) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.nextNumber(scope, at), nil
}

// nextNumber must be called with the write lock held.
func (s *Store) nextNumber(scope numbering.Scope, at time.Time) string {
	key := scope.Key(at)
	s.sequences[key]++
	return scope.Format(at, s.sequences[key])
}

func (s *Store) CreateInvoice(_ context.Context, invoice domain.Invoice, scope numbering.Scope) (*domain.Invoice, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	order, ok := s.orders[invoice.OrderID]
	if !ok {
		return nil, store.ErrNotFound
	}
	for _, existing := range s.invoices {
		if existing.OrderID == invoice.OrderID && existing.Status != domain.InvoiceStatusVoid {
			return nil, fmt.Errorf("%w: order %s already has invoice %s", store.ErrConflict, order.OrderNumber, existing.InvoiceNumber)
		}
	}

	if invoice.IssuedAt.IsZero() {
		invoice.IssuedAt = s.now()
	}
	invoice.ID = s.nextID("invoice")
	invoice.InvoiceNumber = s.nextNumber(scope, invoice.IssuedAt)
	invoice.Amount = order.TotalAmount
	invoice.Status = domain.InvoiceStatusUnpaid
	invoice.PaidAt = nil
	s.invoices[invoice.ID] = invoice
	saved := invoice
	return &saved, nil
}

func (s *Store) GetInvoice(_ context.Context, id int64) (*domain.Invoice, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	invoice, ok := s.invoices[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	return &invoice, nil
}

// UpdateInvoiceStatus settles or voids an invoice. Paying also completes the
// order's payment.
func (s *Store) UpdateInvoiceStatus(_ context.Context, id int64, status string, at time.Time) (*domain.Invoice, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	invoice, ok := s.invoices[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	if !domain.CanTransitionInvoice(invoice.Status, status) {
		return nil, fmt.Errorf("%w: cannot move invoice from %s to %s", store.ErrConflict, invoice.Status, status)
	}
	if at.IsZero() {
		at = s.now()
	}

	invoice.Status = status
	if status == domain.InvoiceStatusPaid {
		paidAt := at
		invoice.PaidAt = &paidAt
		if order, ok := s.orders[invoice.OrderID]; ok {
			order.PaymentStatus = domain.PaymentStatusCompleted
			if order.Payment != nil {
				payment := *order.Payment
				payment.Status = domain.PaymentStatusCompleted
				order.Payment = &payment
			}
			order.UpdatedAt = at
			s.orders[order.ID] = order
		}
	}
	s.invoices[id] = invoice
	saved := invoice
	return &saved, nil
}

func clonePurchaseOrder(po domain.PurchaseOrder) *domain.PurchaseOrder {
	cloned := po
	cloned.Items = append([]domain.PurchaseOrderItem(nil), po.Items...)
	return &cloned
}
