package memory

import (
	"context"
	"fmt"
	"sort"
	"strconv"

	"github.com/shopspring/decimal"

	"hotelpos/backend/internal/domain"
	"hotelpos/backend/internal/ledger"
	"hotelpos/backend/internal/store"
)

// CreateOrder stages every bar decrement first and only touches state once all
// of them succeed, so a refused line leaves no order and no stock change.
func (s *Store) CreateOrder(_ context.Context, order domain.Order) (*domain.Order, error) {
	if len(order.Items) == 0 {
		return nil, fmt.Errorf("%w: order has no items", store.ErrValidation)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	staged := make(map[int64]decimal.Decimal)
	for _, item := range order.Items {
		if item.InventoryItemID == nil {
			continue
		}
		inv, ok := s.inventory[*item.InventoryItemID]
		if !ok {
			return nil, fmt.Errorf("%w: inventory item %d not found", store.ErrValidation, *item.InventoryItemID)
		}
		if inv.InventoryType != domain.InventoryBar {
			continue
		}
		current, seen := staged[inv.ID]
		if !seen {
			current = inv.CurrentStock
		}
		next, err := ledger.Decrement(ledger.Balance{ItemID: inv.ID, Name: inv.Name, Stock: current}, item.Quantity)
		if err != nil {
			return nil, err
		}
		staged[inv.ID] = next
	}

	now := s.now()
	order.ID = s.nextID("order")
	order.OrderNumber = s.uniqueOrderNumber(now.UnixMilli())
	if order.Status == "" {
		order.Status = domain.DefaultOrderStatus(order.OrderType)
	}
	if order.PaymentStatus == "" {
		order.PaymentStatus = domain.PaymentStatusPending
	}
	order.CreatedAt = now
	order.UpdatedAt = now

	items := make([]domain.OrderItem, len(order.Items))
	for i, item := range order.Items {
		item.ID = s.nextID("order_item")
		item.OrderID = order.ID
		items[i] = item
	}
	order.Items = items

	order.Payment = &domain.Payment{
		ID:            s.nextID("payment"),
		OrderID:       order.ID,
		PaymentMethod: order.PaymentMethod,
		Amount:        order.TotalAmount,
		Status:        order.PaymentStatus,
		CreatedAt:     now,
	}

	loggedBy := order.Attribution.StaffName
	for _, item := range items {
		if item.InventoryItemID == nil {
			continue
		}
		id := *item.InventoryItemID
		next, ok := staged[id]
		if !ok {
			continue
		}
		inv := s.inventory[id]
		if !inv.CurrentStock.Equal(next) {
			inv.CurrentStock = next
			inv.UpdatedAt = now
			s.inventory[id] = inv
		}
		orderID := order.ID
		s.appendLog(id, domain.LogActionOrderSale, item.Quantity.Neg(), &orderID, "order", loggedBy)
	}

	s.orders[order.ID] = order
	s.orderNumbers[order.OrderNumber] = order.ID
	return cloneOrder(order), nil
}

// uniqueOrderNumber must be called with the write lock held. Two orders in the
// same millisecond get consecutive stamps.
func (s *Store) uniqueOrderNumber(millis int64) string {
	for {
		number := "ORD-" + strconv.FormatInt(millis, 10)
		if _, taken := s.orderNumbers[number]; !taken {
			return number
		}
		millis++
	}
}

func (s *Store) GetOrder(_ context.Context, id int64) (*domain.Order, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	order, ok := s.orders[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	return cloneOrder(order), nil
}

func (s *Store) ListOrders(_ context.Context, status string, limit int) ([]domain.Order, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]domain.Order, 0, len(s.orders))
	for _, order := range s.orders {
		if status != "" && order.Status != status {
			continue
		}
		out = append(out, *cloneOrder(order))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID > out[j].ID })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// TransitionOrder moves an order along the kitchen workflow. Cancelling gives
// back the bar stock the order took.
func (s *Store) TransitionOrder(_ context.Context, id int64, status string, changedBy string) (*domain.Order, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	order, ok := s.orders[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	if !domain.CanTransitionOrder(order.Status, status) {
		return nil, fmt.Errorf("%w: cannot move order from %s to %s", store.ErrConflict, order.Status, status)
	}

	now := s.now()
	if status == domain.OrderStatusCancelled {
		for _, item := range order.Items {
			if item.InventoryItemID == nil {
				continue
			}
			inv, ok := s.inventory[*item.InventoryItemID]
			if !ok || inv.InventoryType != domain.InventoryBar {
				continue
			}
			next, err := ledger.Increment(ledger.Balance{ItemID: inv.ID, Name: inv.Name, Stock: inv.CurrentStock}, item.Quantity)
			if err != nil {
				return nil, err
			}
			inv.CurrentStock = next
			inv.UpdatedAt = now
			s.inventory[inv.ID] = inv
			orderID := order.ID
			s.appendLog(inv.ID, domain.LogActionOrderCancelled, item.Quantity, &orderID, "order", changedBy)
		}
	}

	order.Status = status
	order.UpdatedAt = now
	s.orders[id] = order
	return cloneOrder(order), nil
}

func cloneOrder(order domain.Order) *domain.Order {
	cloned := order
	cloned.Items = append([]domain.OrderItem(nil), order.Items...)
	if order.Payment != nil {
		payment := *order.Payment
		cloned.Payment = &payment
	}
	return &cloned
}
