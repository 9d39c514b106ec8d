package service

import (
	"context"
	"fmt"
	"strconv"

	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"

	"hotelpos/backend/internal/domain"
	"hotelpos/backend/internal/notify"
	"hotelpos/backend/internal/store"
)

const defaultPaymentMethod = "cash"

// CreateOrder credits the order to a staff member (or an exemption), prices it
// server-side and hands it to the store, which decrements bar stock in the
// same transaction. Client-side totals are ignored.
func (s *Service) CreateOrder(ctx context.Context, req domain.CreateOrderRequest) (domain.CreateOrderResponse, error) {
	if err := s.check(req); err != nil {
		return domain.CreateOrderResponse{}, err
	}

	attribution, err := s.identity.Attribute(ctx, req.OrderType, req.StaffUsername, req.PIN)
	if err != nil {
		return domain.CreateOrderResponse{}, err
	}

	items, subtotal := priceLines(req.OrderType, req.Items)
	total := subtotal.Sub(req.DiscountAmount)
	if total.IsNegative() {
		total = decimal.Zero
	}

	paymentStatus := domain.PaymentStatusPending
	if req.PaymentStatus == domain.PaymentStatusCompleted {
		paymentStatus = domain.PaymentStatusCompleted
	}
	paymentMethod := req.PaymentMethod
	if paymentMethod == "" {
		paymentMethod = defaultPaymentMethod
	}

	created, err := s.repo.CreateOrder(ctx, domain.Order{
		OrderType:     req.OrderType,
		Attribution:   attribution,
		Status:        domain.DefaultOrderStatus(req.OrderType),
		TableNumber:   req.TableNumber,
		RoomNumber:    req.RoomNumber,
		CustomerName:  req.CustomerName,
		Notes:         req.Notes,
		Subtotal:      subtotal,
		Discount:      req.DiscountAmount,
		TotalAmount:   total,
		PaymentMethod: paymentMethod,
		PaymentStatus: paymentStatus,
		Items:         items,
	})
	if err != nil {
		return domain.CreateOrderResponse{}, err
	}

	s.publish(ctx, notify.EventOrderCreated, *created)
	s.logAudit(ctx, "order_create", "order", strconv.FormatInt(created.ID, 10),
		fmt.Sprintf("number=%s,type=%s,staff=%s,total=%s", created.OrderNumber, created.OrderType, created.Attribution.StaffName, created.TotalAmount.StringFixed(2)))

	return domain.CreateOrderResponse{
		Message:     "Order created successfully",
		OrderID:     created.ID,
		OrderNumber: created.OrderNumber,
		StaffName:   created.Attribution.StaffName,
	}, nil
}

// priceLines recomputes line totals from quantity and unit price. Bar sales
// ring up bottles straight from the bar inventory, so a bare product id there
// names the inventory item to decrement.
func priceLines(orderType string, lines []domain.CartLine) ([]domain.OrderItem, decimal.Decimal) {
	items := make([]domain.OrderItem, 0, len(lines))
	subtotal := decimal.Zero
	for _, line := range lines {
		lineTotal := line.UnitPrice.Mul(line.Quantity)
		item := domain.OrderItem{
			ProductID:       line.ProductID,
			InventoryItemID: line.InventoryItemID,
			Quantity:        line.Quantity,
			UnitPrice:       line.UnitPrice,
			TotalPrice:      lineTotal,
			Notes:           line.Notes,
		}
		if orderType == domain.OrderTypeBarSale && item.InventoryItemID == nil && item.ProductID != nil {
			id := *item.ProductID
			item.InventoryItemID = &id
		}
		items = append(items, item)
		subtotal = subtotal.Add(lineTotal)
	}
	return items, subtotal
}

func (s *Service) GetOrder(ctx context.Context, id int64) (*domain.Order, error) {
	return s.repo.GetOrder(ctx, id)
}

func (s *Service) ListOrders(ctx context.Context, status string, limit int) ([]domain.Order, error) {
	switch status {
	case "", domain.OrderStatusPending, domain.OrderStatusPreparing, domain.OrderStatusReady,
		domain.OrderStatusCompleted, domain.OrderStatusCancelled:
	default:
		return nil, fmt.Errorf("%w: unknown order status %q", store.ErrValidation, status)
	}
	return s.repo.ListOrders(ctx, status, limit)
}

func (s *Service) UpdateOrderStatus(ctx context.Context, id int64, req domain.OrderStatusRequest) (*domain.Order, error) {
	actor, err := requireActor(ctx)
	if err != nil {
		return nil, err
	}
	if !domain.CanChangeOrderStatus(actor.Role) {
		return nil, fmt.Errorf("%w: role %s cannot change order status", store.ErrForbidden, actor.Role)
	}
	switch req.Status {
	case domain.OrderStatusPreparing, domain.OrderStatusReady, domain.OrderStatusCompleted, domain.OrderStatusCancelled:
	default:
		return nil, fmt.Errorf("%w: unknown order status %q", store.ErrValidation, req.Status)
	}

	updated, err := s.repo.TransitionOrder(ctx, id, req.Status, actor.Username)
	if err != nil {
		return nil, err
	}
	s.publish(ctx, notify.EventOrderStatusChanged, *updated)
	s.logAudit(ctx, "order_status", "order", strconv.FormatInt(updated.ID, 10), "status="+updated.Status)
	return updated, nil
}

// publish runs after commit; a dead broker only costs a log line. The order is
// already saved, so the publish outlives a client hang-up but not its timeout.
func (s *Service) publish(ctx context.Context, eventType string, order domain.Order) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.publishTimeout)
	defer cancel()
	if err := s.broadcaster.Publish(ctx, notify.NewOrderEvent(eventType, order, s.now())); err != nil {
		log.Warn().Err(err).
			Str("event", eventType).
			Int64("order_id", order.ID).
			Str("order_number", order.OrderNumber).
			Msg("notify: publish failed")
	}
}
