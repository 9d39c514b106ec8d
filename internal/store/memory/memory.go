package memory

import (
	"context"
	"fmt"
	"os"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"

	"hotelpos/backend/internal/domain"
	"hotelpos/backend/internal/identity"
	"hotelpos/backend/internal/ledger"
	"hotelpos/backend/internal/store"
)

var _ store.Repository = (*Store)(nil)

// Store keeps everything in maps behind one mutex. Each write method holds the
// lock for its whole duration and validates before it mutates, which gives
// callers the same all-or-nothing outcome as a database transaction.
type Store struct {
	mu sync.RWMutex

	lastID map[string]int64

	staff          map[int64]domain.StaffMember
	inventory      map[int64]domain.InventoryItem
	inventoryLogs  []domain.InventoryLogEntry
	orders         map[int64]domain.Order
	orderNumbers   map[string]int64
	purchaseOrders map[int64]domain.PurchaseOrder
	invoices       map[int64]domain.Invoice
	sequences      map[string]int64
	shifts         map[int64]domain.Shift
	activeShift    map[int64]int64
	auditLogs      []domain.AuditLog

	now func() time.Time
}

func New() *Store {
	return &Store{
		lastID:         make(map[string]int64),
		staff:          make(map[int64]domain.StaffMember),
		inventory:      make(map[int64]domain.InventoryItem),
		inventoryLogs:  make([]domain.InventoryLogEntry, 0, 64),
		orders:         make(map[int64]domain.Order),
		orderNumbers:   make(map[string]int64),
		purchaseOrders: make(map[int64]domain.PurchaseOrder),
		invoices:       make(map[int64]domain.Invoice),
		sequences:      make(map[string]int64),
		shifts:         make(map[int64]domain.Shift),
		activeShift:    make(map[int64]int64),
		auditLogs:      make([]domain.AuditLog, 0, 64),
		now:            func() time.Time { return time.Now().UTC() },
	}
}

// NewSeeded returns a store with demo staff and inventory for dev mode.
// Passwords come from SEED_ADMIN_PASSWORD and SEED_MANAGER_PASSWORD, falling
// back to dev defaults with a warning. Postgres is used whenever DATABASE_URL
// is set, so these accounts never reach production.
func NewSeeded() *Store {
	s := New()
	if os.Getenv("SEED_ADMIN_PASSWORD") == "" || os.Getenv("SEED_MANAGER_PASSWORD") == "" {
		log.Warn().Msg("memory store: using default dev credentials; set SEED_ADMIN_PASSWORD and SEED_MANAGER_PASSWORD to override")
	}

	seedStaff := []struct {
		username, name, role, pin, password string
	}{
		{"admin", "Administrator", domain.RoleAdmin, "739154", envOr("SEED_ADMIN_PASSWORD", "admin123")},
		{"manager", "Duty Manager", domain.RoleManager, "482913", envOr("SEED_MANAGER_PASSWORD", "manager123")},
		{"rina", "Rina", domain.RoleWaiter, "2580", ""},
		{"dapur", "Kitchen Crew", domain.RoleKitchenStaff, "3691", "kitchen123"},
		{"frontdesk", "Front Desk", domain.RoleReceptionist, "1470", "frontdesk123"},
	}
	ctx := context.Background()
	for i, seed := range seedStaff {
		member := domain.StaffMember{
			EmployeeID: fmt.Sprintf("EMP-%03d", i+1),
			Username:   seed.username,
			Name:       seed.name,
			Role:       seed.role,
			PIN:        seed.pin,
			Active:     true,
		}
		if seed.password != "" {
			hash, err := identity.HashSecret(seed.password)
			if err != nil {
				log.Fatal().Err(err).Str("username", seed.username).Msg("memory store: hash seed password")
			}
			member.PasswordHash = hash
		}
		_, _ = s.CreateStaff(ctx, member)
	}

	seedItems := []domain.InventoryItem{
		{Name: "House Lager 330ml", Unit: "bottle", CurrentStock: decimal.NewFromInt(48), MinimumStock: decimal.NewFromInt(12), CostPerUnit: decimal.RequireFromString("1.80"), InventoryType: domain.InventoryBar},
		{Name: "Red Wine 750ml", Unit: "bottle", CurrentStock: decimal.NewFromInt(24), MinimumStock: decimal.NewFromInt(6), CostPerUnit: decimal.RequireFromString("9.50"), InventoryType: domain.InventoryBar},
		{Name: "Jasmine Rice", Unit: "kg", CurrentStock: decimal.NewFromInt(50), MinimumStock: decimal.NewFromInt(10), CostPerUnit: decimal.RequireFromString("1.10"), InventoryType: domain.InventoryKitchen},
		{Name: "Bath Towel", Unit: "piece", CurrentStock: decimal.NewFromInt(120), MinimumStock: decimal.NewFromInt(40), CostPerUnit: decimal.RequireFromString("4.00"), InventoryType: domain.InventoryHousekeeping},
		{Name: "Mineral Water 600ml", Unit: "bottle", CurrentStock: decimal.NewFromInt(200), MinimumStock: decimal.NewFromInt(50), CostPerUnit: decimal.RequireFromString("0.30"), InventoryType: domain.InventoryMinibar},
	}
	for _, item := range seedItems {
		item.Active = true
		_, _ = s.CreateInventoryItem(ctx, item)
	}
	return s
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func (s *Store) nextID(entity string) int64 {
	s.lastID[entity]++
	return s.lastID[entity]
}

func (s *Store) CreateStaff(_ context.Context, member domain.StaffMember) (*domain.StaffMember, error) {
	member.Username = identity.NormalizeUsername(member.Username)
	if member.Username == "" || strings.TrimSpace(member.Name) == "" || member.Role == "" {
		return nil, store.ErrValidation
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	for _, existing := range s.staff {
		if existing.Username == member.Username {
			return nil, fmt.Errorf("%w: username %s already exists", store.ErrConflict, member.Username)
		}
	}
	member.ID = s.nextID("staff")
	if member.CreatedAt.IsZero() {
		member.CreatedAt = s.now()
	}
	s.staff[member.ID] = member
	saved := member
	return &saved, nil
}

func (s *Store) GetActiveStaffByUsername(_ context.Context, username string) (*domain.StaffMember, error) {
	username = identity.NormalizeUsername(username)

	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, member := range s.staff {
		if member.Username == username && member.Active {
			found := member
			return &found, nil
		}
	}
	return nil, store.ErrNotFound
}

func (s *Store) ListStaff(_ context.Context) ([]domain.StaffMember, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]domain.StaffMember, 0, len(s.staff))
	for _, member := range s.staff {
		out = append(out, member)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Username < out[j].Username })
	return out, nil
}

func (s *Store) DeactivateStaff(_ context.Context, id int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	member, ok := s.staff[id]
	if !ok {
		return store.ErrNotFound
	}
	member.Active = false
	s.staff[id] = member
	return nil
}

func (s *Store) CreateInventoryItem(_ context.Context, item domain.InventoryItem) (*domain.InventoryItem, error) {
	if strings.TrimSpace(item.Name) == "" || item.InventoryType == "" {
		return nil, store.ErrValidation
	}
	if _, err := ledger.Set(item.CurrentStock); err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	item.ID = s.nextID("inventory")
	item.UpdatedAt = s.now()
	s.inventory[item.ID] = item
	saved := item
	return &saved, nil
}

func (s *Store) GetInventoryItem(_ context.Context, id int64) (*domain.InventoryItem, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	item, ok := s.inventory[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	return &item, nil
}

func (s *Store) ListInventoryItems(_ context.Context, inventoryType string) ([]domain.InventoryItem, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]domain.InventoryItem, 0, len(s.inventory))
	for _, item := range s.inventory {
		if !item.Active {
			continue
		}
		if inventoryType != "" && item.InventoryType != inventoryType {
			continue
		}
		out = append(out, item)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (s *Store) SetInventoryStock(_ context.Context, id int64, stock decimal.Decimal, loggedBy string) (*domain.InventoryItem, error) {
	next, err := ledger.Set(stock)
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	item, ok := s.inventory[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	change := next.Sub(item.CurrentStock)
	item.CurrentStock = next
	item.UpdatedAt = s.now()
	s.inventory[id] = item
	s.appendLog(id, domain.LogActionStockAdjusted, change, nil, "", loggedBy)
	saved := item
	return &saved, nil
}

func (s *Store) ListInventoryLogs(_ context.Context, itemID int64, limit int) ([]domain.InventoryLogEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]domain.InventoryLogEntry, 0, 16)
	for i := len(s.inventoryLogs) - 1; i >= 0; i-- {
		entry := s.inventoryLogs[i]
		if itemID > 0 && entry.InventoryItemID != itemID {
			continue
		}
		out = append(out, entry)
		if limit > 0 && len(out) >= limit {
			break
		}
	}
	return out, nil
}

// appendLog must be called with the write lock held.
func (s *Store) appendLog(itemID int64, action string, change decimal.Decimal, refID *int64, refType string, loggedBy string) {
	s.inventoryLogs = append(s.inventoryLogs, domain.InventoryLogEntry{
		ID:              s.nextID("inventory_log"),
		InventoryItemID: itemID,
		Action:          action,
		QuantityChange:  change,
		ReferenceID:     refID,
		ReferenceType:   refType,
		LoggedBy:        defaultString(loggedBy, "system"),
		CreatedAt:       s.now(),
	})
}

func (s *Store) OpenShift(_ context.Context, shift domain.Shift) (*domain.Shift, error) {
	if shift.StaffID == 0 {
		return nil, store.ErrValidation
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, open := s.activeShift[shift.StaffID]; open {
		return nil, fmt.Errorf("%w: shift already open", store.ErrConflict)
	}
	shift.ID = s.nextID("shift")
	shift.Status = domain.ShiftStatusOpen
	if shift.OpenedAt.IsZero() {
		shift.OpenedAt = s.now()
	}
	shift.ClosedAt = nil
	s.shifts[shift.ID] = shift
	s.activeShift[shift.StaffID] = shift.ID
	saved := shift
	return &saved, nil
}

func (s *Store) CloseActiveShift(_ context.Context, staffID int64, closingCash decimal.Decimal, closedAt time.Time) (*domain.Shift, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	shiftID, ok := s.activeShift[staffID]
	if !ok {
		return nil, store.ErrNotFound
	}
	if closedAt.IsZero() {
		closedAt = s.now()
	}
	shift := s.shifts[shiftID]
	shift.Status = domain.ShiftStatusClosed
	shift.ClosingCash = closingCash
	shift.ClosedAt = &closedAt
	s.shifts[shiftID] = shift
	delete(s.activeShift, staffID)
	saved := shift
	return &saved, nil
}

func (s *Store) GetActiveShift(_ context.Context, staffID int64) (*domain.Shift, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	shiftID, ok := s.activeShift[staffID]
	if !ok {
		return nil, store.ErrNotFound
	}
	shift := s.shifts[shiftID]
	return &shift, nil
}

func (s *Store) CreateAuditLog(_ context.Context, entry domain.AuditLog) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	entry.ID = s.nextID("audit")
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = s.now()
	}
	s.auditLogs = append(s.auditLogs, entry)
	return nil
}

func (s *Store) ListAuditLogs(_ context.Context, limit int) ([]domain.AuditLog, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]domain.AuditLog, 0, 32)
	for i := len(s.auditLogs) - 1; i >= 0; i-- {
		out = append(out, s.auditLogs[i])
		if limit > 0 && len(out) >= limit {
			break
		}
	}
	return out, nil
}

func defaultString(value string, fallback string) string {
	if strings.TrimSpace(value) == "" {
		return fallback
	}
	return value
}
