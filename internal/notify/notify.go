// Package notify pushes order events to kitchen displays. Delivery is best
// effort: callers log a failed publish and carry on.
package notify

import (
	"context"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"hotelpos/backend/internal/domain"
)

const (
	EventOrderCreated       = "order.created"
	EventOrderStatusChanged = "order.status_changed"
)

type OrderEvent struct {
	Type        string      `json:"type"`
	OrderID     int64       `json:"order_id"`
	OrderNumber string      `json:"order_number"`
	OrderType   string      `json:"order_type"`
	Status      string      `json:"status"`
	StaffName   string      `json:"staff_name"`
	TableNumber string      `json:"table_number,omitempty"`
	RoomNumber  string      `json:"room_number,omitempty"`
	Items       []EventItem `json:"items,omitempty"`
	At          time.Time   `json:"at"`
}

type EventItem struct {
	ProductID       *int64          `json:"product_id,omitempty"`
	InventoryItemID *int64          `json:"inventory_item_id,omitempty"`
	Quantity        decimal.Decimal `json:"quantity"`
	Notes           string          `json:"notes,omitempty"`
}

func NewOrderEvent(eventType string, order domain.Order, at time.Time) OrderEvent {
	items := make([]EventItem, 0, len(order.Items))
	for _, item := range order.Items {
		items = append(items, EventItem{
			ProductID:       item.ProductID,
			InventoryItemID: item.InventoryItemID,
			Quantity:        item.Quantity,
			Notes:           item.Notes,
		})
	}
	return OrderEvent{
		Type:        eventType,
		OrderID:     order.ID,
		OrderNumber: order.OrderNumber,
		OrderType:   order.OrderType,
		Status:      order.Status,
		StaffName:   order.Attribution.StaffName,
		TableNumber: order.TableNumber,
		RoomNumber:  order.RoomNumber,
		Items:       items,
		At:          at.UTC(),
	}
}

type Broadcaster interface {
	Publish(ctx context.Context, event OrderEvent) error
}

type NoopBroadcaster struct{}

func (NoopBroadcaster) Publish(_ context.Context, _ OrderEvent) error {
	return nil
}

// Recorder keeps published events in memory. Err, when set, is returned from
// every Publish after the event is recorded.
type Recorder struct {
	mu     sync.Mutex
	events []OrderEvent
	Err    error
}

func (r *Recorder) Publish(_ context.Context, event OrderEvent) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, event)
	return r.Err
}

func (r *Recorder) Events() []OrderEvent {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]OrderEvent, len(r.events))
	copy(out, r.events)
	return out
}
