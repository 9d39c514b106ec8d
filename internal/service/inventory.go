package service

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"hotelpos/backend/internal/domain"
	"hotelpos/backend/internal/store"
)

func (s *Service) CreateInventoryItem(ctx context.Context, req domain.InventoryItemCreateRequest) (*domain.InventoryItem, error) {
	actor, err := requireActor(ctx)
	if err != nil {
		return nil, err
	}
	req.Name = strings.TrimSpace(req.Name)
	req.Unit = strings.TrimSpace(req.Unit)
	if err := s.check(req); err != nil {
		return nil, err
	}
	if !domain.CanAdjustInventory(actor.Role, req.InventoryType) {
		return nil, fmt.Errorf("%w: role %s cannot manage %s inventory", store.ErrForbidden, actor.Role, req.InventoryType)
	}

	created, err := s.repo.CreateInventoryItem(ctx, domain.InventoryItem{
		Name:          req.Name,
		Unit:          req.Unit,
		CurrentStock:  req.CurrentStock,
		MinimumStock:  req.MinimumStock,
		CostPerUnit:   req.CostPerUnit,
		SupplierID:    req.SupplierID,
		InventoryType: req.InventoryType,
		Active:        true,
	})
	if err != nil {
		return nil, err
	}
	s.logAudit(ctx, "inventory_create", "inventory_item", strconv.FormatInt(created.ID, 10),
		fmt.Sprintf("name=%s,type=%s,stock=%s", created.Name, created.InventoryType, created.CurrentStock))
	return created, nil
}

func (s *Service) ListInventory(ctx context.Context, inventoryType string) ([]domain.InventoryItem, error) {
	if inventoryType != "" && !isInventoryType(inventoryType) {
		return nil, fmt.Errorf("%w: unknown inventory type %q", store.ErrValidation, inventoryType)
	}
	return s.repo.ListInventoryItems(ctx, inventoryType)
}

func (s *Service) GetInventoryItem(ctx context.Context, id int64) (*domain.InventoryItem, error) {
	return s.repo.GetInventoryItem(ctx, id)
}

func (s *Service) ListInventoryLogs(ctx context.Context, id int64, limit int) ([]domain.InventoryLogEntry, error) {
	if _, err := s.repo.GetInventoryItem(ctx, id); err != nil {
		return nil, err
	}
	return s.repo.ListInventoryLogs(ctx, id, limit)
}

// UpdateStock sets a counted stock level. Which inventory types a role may
// touch is decided per item, so the item is loaded before the check.
func (s *Service) UpdateStock(ctx context.Context, id int64, req domain.StockUpdateRequest) (*domain.InventoryItem, error) {
	actor, err := requireActor(ctx)
	if err != nil {
		return nil, err
	}
	if req.CurrentStock == nil {
		return nil, fmt.Errorf("%w: current_stock is required", store.ErrValidation)
	}
	if req.CurrentStock.IsNegative() {
		return nil, fmt.Errorf("%w: current_stock must not be negative", store.ErrValidation)
	}
	if !domain.FitsQuantityScale(*req.CurrentStock) {
		return nil, fmt.Errorf("%w: current_stock must have at most %d decimal places", store.ErrValidation, domain.QuantityScale)
	}

	item, err := s.repo.GetInventoryItem(ctx, id)
	if err != nil {
		return nil, err
	}
	if !domain.CanAdjustInventory(actor.Role, item.InventoryType) {
		return nil, fmt.Errorf("%w: role %s cannot adjust %s inventory", store.ErrForbidden, actor.Role, item.InventoryType)
	}

	updated, err := s.repo.SetInventoryStock(ctx, id, *req.CurrentStock, actor.Username)
	if err != nil {
		return nil, err
	}
	s.logAudit(ctx, "inventory_stock_set", "inventory_item", strconv.FormatInt(id, 10),
		fmt.Sprintf("from=%s,to=%s", item.CurrentStock, updated.CurrentStock))
	return updated, nil
}

func isInventoryType(value string) bool {
	switch value {
	case domain.InventoryKitchen, domain.InventoryBar, domain.InventoryHousekeeping, domain.InventoryMinibar:
		return true
	}
	return false
}
