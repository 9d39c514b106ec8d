package service

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"hotelpos/backend/internal/domain"
	"hotelpos/backend/internal/store"
)

func (s *Service) CreatePurchaseOrder(ctx context.Context, req domain.PurchaseOrderCreateRequest) (domain.PurchaseOrderCreateResponse, error) {
	actor, err := requireActor(ctx)
	if err != nil {
		return domain.PurchaseOrderCreateResponse{}, err
	}
	if err := s.check(req); err != nil {
		return domain.PurchaseOrderCreateResponse{}, err
	}

	orderDate := s.now()
	if at := req.OrderDate.TimePtr(); at != nil {
		orderDate = *at
	}
	expected := req.ExpectedDeliveryDate.TimePtr()
	if expected != nil && dateOnly(*expected).Before(dateOnly(orderDate)) {
		return domain.PurchaseOrderCreateResponse{}, fmt.Errorf("%w: expected_delivery_date is before order_date", store.ErrValidation)
	}

	items := make([]domain.PurchaseOrderItem, 0, len(req.Items))
	for _, line := range req.Items {
		items = append(items, domain.PurchaseOrderItem{
			InventoryItemID: line.InventoryItemID,
			QuantityOrdered: line.QuantityOrdered,
			UnitCost:        line.UnitCost,
		})
	}

	created, err := s.repo.CreatePurchaseOrder(ctx, domain.PurchaseOrder{
		SupplierID:           req.SupplierID,
		OrderDate:            orderDate,
		ExpectedDeliveryDate: expected,
		Status:               domain.POStatusPending,
		Notes:                strings.TrimSpace(req.Notes),
		CreatedBy:            actor.Username,
		Items:                items,
	})
	if err != nil {
		return domain.PurchaseOrderCreateResponse{}, err
	}
	s.logAudit(ctx, "purchase_order_create", "purchase_order", strconv.FormatInt(created.ID, 10),
		fmt.Sprintf("number=%s,supplier=%d,lines=%d,total=%s", created.PONumber, created.SupplierID, len(created.Items), created.TotalAmount.StringFixed(2)))

	return domain.PurchaseOrderCreateResponse{
		ID:       created.ID,
		PONumber: created.PONumber,
		Message:  "Purchase order created successfully",
	}, nil
}

func (s *Service) ListPurchaseOrders(ctx context.Context, status string, limit int) ([]domain.PurchaseOrder, error) {
	switch status {
	case "", domain.POStatusPending, domain.POStatusPartiallyReceived, domain.POStatusReceived, domain.POStatusCancelled:
	default:
		return nil, fmt.Errorf("%w: unknown purchase order status %q", store.ErrValidation, status)
	}
	return s.repo.ListPurchaseOrders(ctx, status, limit)
}

func (s *Service) GetPurchaseOrder(ctx context.Context, id int64) (*domain.PurchaseOrder, error) {
	return s.repo.GetPurchaseOrder(ctx, id)
}

// ReceivePurchaseOrder books a delivery note. Quantities are cumulative per
// line, so replaying the same note changes nothing.
func (s *Service) ReceivePurchaseOrder(ctx context.Context, id int64, req domain.ReceiveRequest) (*domain.PurchaseOrder, error) {
	actor, err := requireActor(ctx)
	if err != nil {
		return nil, err
	}
	if len(req.Items) == 0 {
		return nil, fmt.Errorf("%w: items is required", store.ErrValidation)
	}
	receivedAt := s.now()
	if at := req.ReceivedDate.TimePtr(); at != nil {
		receivedAt = *at
	}

	po, err := s.repo.ReceivePurchaseOrder(ctx, id, req.Items, receivedAt, actor.Username)
	if err != nil {
		return nil, err
	}
	s.logAudit(ctx, "purchase_order_receive", "purchase_order", strconv.FormatInt(po.ID, 10),
		fmt.Sprintf("number=%s,status=%s,lines=%d", po.PONumber, po.Status, len(req.Items)))
	return po, nil
}

func (s *Service) CancelPurchaseOrder(ctx context.Context, id int64) (*domain.PurchaseOrder, error) {
	if _, err := requireActor(ctx); err != nil {
		return nil, err
	}
	po, err := s.repo.CancelPurchaseOrder(ctx, id)
	if err != nil {
		return nil, err
	}
	s.logAudit(ctx, "purchase_order_cancel", "purchase_order", strconv.FormatInt(po.ID, 10), "number="+po.PONumber)
	return po, nil
}

func dateOnly(t time.Time) time.Time {
	y, m, d := t.UTC().Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}
