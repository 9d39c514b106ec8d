package domain

import (
	"encoding/json"
	"time"

	"github.com/shopspring/decimal"
)

type StaffMember struct {
	ID           int64     `json:"id"`
	EmployeeID   string    `json:"employee_id"`
	Username     string    `json:"username"`
	Name         string    `json:"name"`
	Role         string    `json:"role"`
	PIN          string    `json:"-"`
	PasswordHash string    `json:"-"`
	Active       bool      `json:"is_active"`
	CreatedAt    time.Time `json:"created_at"`
}

type StaffCreateRequest struct {
	EmployeeID string `json:"employee_id" validate:"omitempty,max=32"`
	Username   string `json:"username" validate:"required,min=3,max=64"`
	Name       string `json:"name" validate:"required,max=120"`
	Role       string `json:"role" validate:"required,oneof=admin manager waiter kitchen_staff receptionist housekeeping quick_pos cashier bar"`
	PIN        PIN    `json:"pin" validate:"required,numeric,min=4,max=8"`
	Password   string `json:"password" validate:"omitempty,min=6"`
}

type LoginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type LoginResponse struct {
	AccessToken string `json:"access_token"`
	Role        string `json:"role"`
	StaffName   string `json:"staff_name"`
	ExpiresAt   string `json:"expires_at"`
}

type PINValidationRequest struct {
	Username string `json:"username"`
	PIN      PIN    `json:"pin"`
}

// PINValidation is the outcome of a staff PIN check. Failures never say which
// half of the credential was wrong.
type PINValidation struct {
	Valid     bool   `json:"valid"`
	StaffID   int64  `json:"staff_id,omitempty"`
	StaffName string `json:"staff_name,omitempty"`
	Role      string `json:"role,omitempty"`
}

type Actor struct {
	StaffID  int64  `json:"staff_id"`
	Username string `json:"username"`
	Role     string `json:"role"`
}

type InventoryItem struct {
	ID            int64           `json:"id"`
	Name          string          `json:"name"`
	Unit          string          `json:"unit"`
	CurrentStock  decimal.Decimal `json:"current_stock"`
	MinimumStock  decimal.Decimal `json:"minimum_stock"`
	CostPerUnit   decimal.Decimal `json:"cost_per_unit"`
	SupplierID    *int64          `json:"supplier_id,omitempty"`
	InventoryType string          `json:"inventory_type"`
	Active        bool            `json:"is_active"`
	UpdatedAt     time.Time       `json:"updated_at"`
}

type InventoryItemCreateRequest struct {
	Name          string          `json:"name" validate:"required,max=120"`
	Unit          string          `json:"unit" validate:"required,max=32"`
	CurrentStock  decimal.Decimal `json:"current_stock" validate:"gte=0"`
	MinimumStock  decimal.Decimal `json:"minimum_stock" validate:"gte=0"`
	CostPerUnit   decimal.Decimal `json:"cost_per_unit" validate:"gte=0"`
	SupplierID    *int64          `json:"supplier_id,omitempty" validate:"omitempty,gt=0"`
	InventoryType string          `json:"inventory_type" validate:"required,oneof=kitchen bar housekeeping minibar"`
}

type StockUpdateRequest struct {
	CurrentStock *decimal.Decimal `json:"current_stock"`
}

type InventoryLogEntry struct {
	ID              int64           `json:"id"`
	InventoryItemID int64           `json:"inventory_item_id"`
	Action          string          `json:"action"`
	QuantityChange  decimal.Decimal `json:"quantity_change"`
	ReferenceID     *int64          `json:"reference_id,omitempty"`
	ReferenceType   string          `json:"reference_type,omitempty"`
	LoggedBy        string          `json:"logged_by"`
	CreatedAt       time.Time       `json:"created_at"`
}

type Order struct {
	ID            int64           `json:"id"`
	OrderNumber   string          `json:"order_number"`
	OrderType     string          `json:"order_type"`
	Attribution   Attribution     `json:"attribution"`
	Status        string          `json:"status"`
	TableNumber   string          `json:"table_number,omitempty"`
	RoomNumber    string          `json:"room_number,omitempty"`
	CustomerName  string          `json:"customer_name,omitempty"`
	Notes         string          `json:"notes,omitempty"`
	Subtotal      decimal.Decimal `json:"subtotal"`
	Discount      decimal.Decimal `json:"discount_amount"`
	TotalAmount   decimal.Decimal `json:"total_amount"`
	PaymentMethod string          `json:"payment_method"`
	PaymentStatus string          `json:"payment_status"`
	Items         []OrderItem     `json:"items"`
	Payment       *Payment        `json:"payment,omitempty"`
	CreatedAt     time.Time       `json:"created_at"`
	UpdatedAt     time.Time       `json:"updated_at"`
}

type OrderItem struct {
	ID              int64           `json:"id"`
	OrderID         int64           `json:"order_id"`
	ProductID       *int64          `json:"product_id,omitempty"`
	InventoryItemID *int64          `json:"inventory_item_id,omitempty"`
	Quantity        decimal.Decimal `json:"quantity"`
	UnitPrice       decimal.Decimal `json:"unit_price"`
	TotalPrice      decimal.Decimal `json:"total_price"`
	Notes           string          `json:"notes,omitempty"`
}

type Payment struct {
	ID            int64           `json:"id"`
	OrderID       int64           `json:"order_id"`
	PaymentMethod string          `json:"payment_method"`
	Amount        decimal.Decimal `json:"amount"`
	Status        string          `json:"status"`
	CreatedAt     time.Time       `json:"created_at"`
}

// CartLine is one line of an incoming order. Prices arrive as JSON numbers or
// numeric strings and are recomputed server-side.
type CartLine struct {
	ProductID       *int64          `json:"product_id" validate:"omitempty,gt=0"`
	InventoryItemID *int64          `json:"inventory_item_id" validate:"omitempty,gt=0"`
	Quantity        decimal.Decimal `json:"quantity" validate:"gt=0"`
	UnitPrice       decimal.Decimal `json:"unit_price" validate:"gte=0"`
	TotalPrice      decimal.Decimal `json:"total_price"`
	Notes           string          `json:"notes" validate:"max=500"`
}

type CreateOrderRequest struct {
	Items          []CartLine      `json:"items" validate:"required,min=1,dive"`
	StaffUsername  string          `json:"staff_username"`
	PIN            PIN             `json:"pin"`
	PaymentMethod  string          `json:"payment_method" validate:"omitempty,oneof=cash card mobile room_charge qris transfer"`
	PaymentStatus  string          `json:"payment_status" validate:"omitempty,oneof=pending completed"`
	OrderType      string          `json:"order_type" validate:"required,oneof=dine_in bar_sale self_service quick_sale room takeaway"`
	TableNumber    string          `json:"table_number" validate:"max=16"`
	RoomNumber     string          `json:"room_number" validate:"max=16"`
	CustomerName   string          `json:"customer_name" validate:"max=120"`
	Notes          string          `json:"notes" validate:"max=1000"`
	DiscountAmount decimal.Decimal `json:"discount_amount" validate:"gte=0"`
	Subtotal       json.RawMessage `json:"subtotal,omitempty"`
	TotalAmount    json.RawMessage `json:"total_amount,omitempty"`
}

type CreateOrderResponse struct {
	Message     string `json:"message"`
	OrderID     int64  `json:"order_id"`
	OrderNumber string `json:"order_number"`
	StaffName   string `json:"staff_name"`
}

type OrderStatusRequest struct {
	Status string `json:"status"`
}

type PurchaseOrder struct {
	ID                   int64               `json:"id"`
	PONumber             string              `json:"po_number"`
	SupplierID           int64               `json:"supplier_id"`
	OrderDate            time.Time           `json:"order_date"`
	ExpectedDeliveryDate *time.Time          `json:"expected_delivery_date,omitempty"`
	ActualDeliveryDate   *time.Time          `json:"actual_delivery_date,omitempty"`
	Status               string              `json:"status"`
	TotalAmount          decimal.Decimal     `json:"total_amount"`
	Notes                string              `json:"notes,omitempty"`
	CreatedBy            string              `json:"created_by,omitempty"`
	Items                []PurchaseOrderItem `json:"items"`
	CreatedAt            time.Time           `json:"created_at"`
}

type PurchaseOrderItem struct {
	ID               int64           `json:"id"`
	PurchaseOrderID  int64           `json:"purchase_order_id"`
	InventoryItemID  int64           `json:"inventory_item_id"`
	QuantityOrdered  decimal.Decimal `json:"quantity_ordered"`
	QuantityReceived decimal.Decimal `json:"quantity_received"`
	UnitCost         decimal.Decimal `json:"unit_cost"`
	TotalPrice       decimal.Decimal `json:"total_price"`
}

type PurchaseOrderItemInput struct {
	InventoryItemID int64           `json:"inventory_item_id" validate:"required,gt=0"`
	QuantityOrdered decimal.Decimal `json:"quantity_ordered" validate:"gt=0"`
	UnitCost        decimal.Decimal `json:"unit_cost" validate:"gte=0"`
}

type PurchaseOrderCreateRequest struct {
	SupplierID           int64                    `json:"supplier_id" validate:"required,gt=0"`
	OrderDate            *Date                    `json:"order_date"`
	ExpectedDeliveryDate *Date                    `json:"expected_delivery_date"`
	Items                []PurchaseOrderItemInput `json:"items" validate:"required,min=1,dive"`
	Notes                string                   `json:"notes" validate:"max=1000"`
}

type PurchaseOrderCreateResponse struct {
	ID       int64  `json:"id"`
	PONumber string `json:"po_number"`
	Message  string `json:"message"`
}

// ReceiveLine keeps the quantity raw so a malformed value skips only its own
// line instead of failing the whole delivery note.
type ReceiveLine struct {
	ID               int64           `json:"id"`
	QuantityReceived json.RawMessage `json:"quantity_received"`
}

type ReceiveRequest struct {
	Items        []ReceiveLine `json:"items"`
	ReceivedDate *Date         `json:"received_date"`
}

type Invoice struct {
	ID            int64           `json:"id"`
	InvoiceNumber string          `json:"invoice_number"`
	OrderID       int64           `json:"order_id"`
	Amount        decimal.Decimal `json:"amount"`
	Status        string          `json:"status"`
	IssuedBy      string          `json:"issued_by,omitempty"`
	IssuedAt      time.Time       `json:"issued_at"`
	PaidAt        *time.Time      `json:"paid_at,omitempty"`
}

type InvoiceCreateRequest struct {
	OrderID int64 `json:"order_id" validate:"required,gt=0"`
}

type InvoiceStatusRequest struct {
	Status string `json:"status" validate:"required,oneof=unpaid paid void"`
}

type Shift struct {
	ID           int64           `json:"id"`
	StaffID      int64           `json:"staff_id"`
	StaffName    string          `json:"staff_name"`
	OpeningFloat decimal.Decimal `json:"opening_float"`
	ClosingCash  decimal.Decimal `json:"closing_cash"`
	Status       string          `json:"status"`
	OpenedAt     time.Time       `json:"opened_at"`
	ClosedAt     *time.Time      `json:"closed_at,omitempty"`
}

type ShiftOpenRequest struct {
	OpeningFloat decimal.Decimal `json:"opening_float" validate:"gte=0"`
}

type ShiftCloseRequest struct {
	ClosingCash decimal.Decimal `json:"closing_cash" validate:"gte=0"`
}

type AuditLog struct {
	ID            int64     `json:"id"`
	RequestID     string    `json:"request_id,omitempty"`
	ActorUsername string    `json:"actor_username"`
	ActorRole     string    `json:"actor_role"`
	Action        string    `json:"action"`
	EntityType    string    `json:"entity_type"`
	EntityID      string    `json:"entity_id"`
	Detail        string    `json:"detail"`
	CreatedAt     time.Time `json:"created_at"`
}

const (
	RoleAdmin        = "admin"
	RoleManager      = "manager"
	RoleWaiter       = "waiter"
	RoleKitchenStaff = "kitchen_staff"
	RoleReceptionist = "receptionist"
	RoleHousekeeping = "housekeeping"
	RoleQuickPOS     = "quick_pos"
	RoleCashier      = "cashier"
	RoleBar          = "bar"
)

const (
	InventoryKitchen      = "kitchen"
	InventoryBar          = "bar"
	InventoryHousekeeping = "housekeeping"
	InventoryMinibar      = "minibar"
)

const (
	OrderTypeDineIn      = "dine_in"
	OrderTypeBarSale     = "bar_sale"
	OrderTypeSelfService = "self_service"
	OrderTypeQuickSale   = "quick_sale"
	OrderTypeRoom        = "room"
	OrderTypeTakeaway    = "takeaway"
)

const (
	OrderStatusPending   = "pending"
	OrderStatusPreparing = "preparing"
	OrderStatusReady     = "ready"
	OrderStatusCompleted = "completed"
	OrderStatusCancelled = "cancelled"
)

const (
	PaymentStatusPending   = "pending"
	PaymentStatusCompleted = "completed"
)

const (
	POStatusPending           = "pending"
	POStatusPartiallyReceived = "partially_received"
	POStatusReceived          = "received"
	POStatusCancelled         = "cancelled"
)

const (
	InvoiceStatusUnpaid = "unpaid"
	InvoiceStatusPaid   = "paid"
	InvoiceStatusVoid   = "void"
)

const (
	ShiftStatusOpen   = "open"
	ShiftStatusClosed = "closed"
)

const (
	LogActionPurchaseReceived = "purchase_received"
	LogActionStockAdjusted    = "stock_adjusted"
	LogActionOrderSale        = "order_sale"
	LogActionOrderCancelled   = "order_cancelled"
)
