package domain

// inventoryRoleScopes lists which inventory types each non-admin role may
// adjust by hand. Admin and manager are unrestricted.
var inventoryRoleScopes = map[string][]string{
	RoleKitchenStaff: {InventoryKitchen},
	RoleReceptionist: {InventoryBar, InventoryHousekeeping, InventoryMinibar},
}

func CanAdjustInventory(role string, inventoryType string) bool {
	if role == RoleAdmin || role == RoleManager {
		return true
	}
	for _, allowed := range inventoryRoleScopes[role] {
		if allowed == inventoryType {
			return true
		}
	}
	return false
}

func CanChangeOrderStatus(role string) bool {
	return role == RoleKitchenStaff || role == RoleAdmin || role == RoleManager
}

var orderTransitions = map[string][]string{
	OrderStatusPending:   {OrderStatusPreparing, OrderStatusCancelled},
	OrderStatusPreparing: {OrderStatusReady, OrderStatusCancelled},
	OrderStatusReady:     {OrderStatusCompleted, OrderStatusCancelled},
}

func CanTransitionOrder(from string, to string) bool {
	for _, next := range orderTransitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

func IsTerminalOrderStatus(status string) bool {
	return status == OrderStatusCompleted || status == OrderStatusCancelled
}

// DefaultOrderStatus is the status a new order starts in. Counter sales are
// handed over immediately; everything else goes through the kitchen.
func DefaultOrderStatus(orderType string) string {
	switch orderType {
	case OrderTypeBarSale, OrderTypeQuickSale:
		return OrderStatusCompleted
	default:
		return OrderStatusPending
	}
}

var invoiceTransitions = map[string][]string{
	InvoiceStatusUnpaid: {InvoiceStatusPaid, InvoiceStatusVoid},
}

func CanTransitionInvoice(from string, to string) bool {
	for _, next := range invoiceTransitions[from] {
		if next == to {
			return true
		}
	}
	return false
}
