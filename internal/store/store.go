package store

import (
	"context"
	"errors"
	"time"

	"github.com/shopspring/decimal"

	"hotelpos/backend/internal/domain"
	"hotelpos/backend/internal/numbering"
)

var (
	ErrNotFound          = errors.New("not found")
	ErrValidation        = errors.New("validation failed")
	ErrAuthentication    = errors.New("invalid credentials")
	ErrForbidden         = errors.New("forbidden")
	ErrInsufficientStock = errors.New("insufficient stock")
	ErrConflict          = errors.New("conflict")
)

type Repository interface {
	CreateStaff(ctx context.Context, staff domain.StaffMember) (*domain.StaffMember, error)
	// GetActiveStaffByUsername returns ErrNotFound for unknown and inactive staff alike.
	GetActiveStaffByUsername(ctx context.Context, username string) (*domain.StaffMember, error)
	ListStaff(ctx context.Context) ([]domain.StaffMember, error)
	DeactivateStaff(ctx context.Context, id int64) error

	CreateInventoryItem(ctx context.Context, item domain.InventoryItem) (*domain.InventoryItem, error)
	GetInventoryItem(ctx context.Context, id int64) (*domain.InventoryItem, error)
	ListInventoryItems(ctx context.Context, inventoryType string) ([]domain.InventoryItem, error)
	SetInventoryStock(ctx context.Context, id int64, stock decimal.Decimal, loggedBy string) (*domain.InventoryItem, error)
	ListInventoryLogs(ctx context.Context, itemID int64, limit int) ([]domain.InventoryLogEntry, error)

	CreateOrder(ctx context.Context, order domain.Order) (*domain.Order, error)
	GetOrder(ctx context.Context, id int64) (*domain.Order, error)
	ListOrders(ctx context.Context, status string, limit int) ([]domain.Order, error)
	TransitionOrder(ctx context.Context, id int64, status string, changedBy string) (*domain.Order, error)

	CreatePurchaseOrder(ctx context.Context, po domain.PurchaseOrder) (*domain.PurchaseOrder, error)
	GetPurchaseOrder(ctx context.Context, id int64) (*domain.PurchaseOrder, error)
	ListPurchaseOrders(ctx context.Context, status string, limit int) ([]domain.PurchaseOrder, error)
	ReceivePurchaseOrder(ctx context.Context, id int64, lines []domain.ReceiveLine, receivedAt time.Time, receivedBy string) (*domain.PurchaseOrder, error)
	CancelPurchaseOrder(ctx context.Context, id int64) (*domain.PurchaseOrder, error)

	NextDocumentNumber(ctx context.Context, scope numbering.Scope, at time.Time) (string, error)
	CreateInvoice(ctx context.Context, invoice domain.Invoice, scope numbering.Scope) (*domain.Invoice, error)
	GetInvoice(ctx context.Context, id int64) (*domain.Invoice, error)
	UpdateInvoiceStatus(ctx context.Context, id int64, status string, at time.Time) (*domain.Invoice, error)

	OpenShift(ctx context.Context, shift domain.Shift) (*domain.Shift, error)
	CloseActiveShift(ctx context.Context, staffID int64, closingCash decimal.Decimal, closedAt time.Time) (*domain.Shift, error)
	GetActiveShift(ctx context.Context, staffID int64) (*domain.Shift, error)

	CreateAuditLog(ctx context.Context, entry domain.AuditLog) error
	ListAuditLogs(ctx context.Context, limit int) ([]domain.AuditLog, error)
}
