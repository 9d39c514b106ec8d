package httpapi

import (
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog/log"

	"hotelpos/backend/internal/domain"
	"hotelpos/backend/internal/service"
)

type API struct {
	service       *service.Service
	auth          *AuthManager
	allowedOrigin string
	development   bool
	loginLimiter  *attemptLimiter
	pinLimiter    *attemptLimiter
	orderLimiter  *attemptLimiter
}

type Options struct {
	AllowedOrigin string
	// Development puts raw error text in 5xx bodies.
	Development bool
}

func New(svc *service.Service, auth *AuthManager, opts Options) *API {
	return &API{
		service:       svc,
		auth:          auth,
		allowedOrigin: opts.AllowedOrigin,
		development:   opts.Development,
		loginLimiter:  newAttemptLimiter(5, time.Minute),
		pinLimiter:    newAttemptLimiter(8, time.Minute),
		orderLimiter:  newAttemptLimiter(120, time.Minute),
	}
}

const (
	managers  = domain.RoleManager
	admins    = domain.RoleAdmin
	kitchen   = domain.RoleKitchenStaff
	reception = domain.RoleReceptionist
	cashier   = domain.RoleCashier
)

func (a *API) Handler() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /healthz", a.handleHealth)
	mux.HandleFunc("POST /api/auth/login", a.handleLogin)
	mux.HandleFunc("POST /api/staff/validate-pin", a.handleValidatePIN)

	mux.HandleFunc("GET /api/staff", a.requireAuth(a.handleListStaff, admins, managers))
	mux.HandleFunc("POST /api/staff", a.requireAuth(a.handleCreateStaff, admins))
	mux.HandleFunc("DELETE /api/staff/{id}", a.requireAuth(a.handleDeactivateStaff, admins))

	mux.HandleFunc("GET /api/inventory", a.requireAuth(a.handleListInventory))
	mux.HandleFunc("POST /api/inventory", a.requireAuth(a.handleCreateInventoryItem, admins, managers, kitchen, reception))
	mux.HandleFunc("GET /api/inventory/{id}", a.requireAuth(a.handleGetInventoryItem))
	mux.HandleFunc("GET /api/inventory/{id}/logs", a.requireAuth(a.handleInventoryLogs))
	mux.HandleFunc("PUT /api/inventory/{id}/stock", a.requireAuth(a.handleUpdateStock, admins, managers, kitchen, reception))

	// Orders carry their own staff PIN, so creating one needs no session.
	mux.HandleFunc("POST /api/orders", a.handleCreateOrder)
	mux.HandleFunc("GET /api/orders", a.requireAuth(a.handleListOrders))
	mux.HandleFunc("GET /api/orders/{id}", a.requireAuth(a.handleGetOrder))
	mux.HandleFunc("PATCH /api/orders/{id}/status", a.requireAuth(a.handleUpdateOrderStatus))

	mux.HandleFunc("GET /api/purchase-orders", a.requireAuth(a.handleListPurchaseOrders, admins, managers))
	mux.HandleFunc("POST /api/purchase-orders", a.requireAuth(a.handleCreatePurchaseOrder, admins, managers))
	mux.HandleFunc("GET /api/purchase-orders/{id}", a.requireAuth(a.handleGetPurchaseOrder, admins, managers))
	mux.HandleFunc("POST /api/purchase-orders/{id}/receive", a.requireAuth(a.handleReceivePurchaseOrder, admins, managers))
	mux.HandleFunc("POST /api/purchase-orders/{id}/cancel", a.requireAuth(a.handleCancelPurchaseOrder, admins, managers))

	mux.HandleFunc("POST /api/invoices", a.requireAuth(a.handleCreateInvoice, admins, managers, reception, cashier))
	mux.HandleFunc("GET /api/invoices/{id}", a.requireAuth(a.handleGetInvoice, admins, managers, reception, cashier))
	mux.HandleFunc("PATCH /api/invoices/{id}/status", a.requireAuth(a.handleUpdateInvoiceStatus, admins, managers, reception, cashier))

	mux.HandleFunc("POST /api/shifts/open", a.requireAuth(a.handleShiftOpen))
	mux.HandleFunc("POST /api/shifts/close", a.requireAuth(a.handleShiftClose))
	mux.HandleFunc("GET /api/shifts/active", a.requireAuth(a.handleShiftActive))

	mux.HandleFunc("GET /api/audit-logs", a.requireAuth(a.handleAuditLogs, admins))

	return a.withMiddleware(mux)
}

func (a *API) requireAuth(next http.HandlerFunc, roles ...string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		authorization := strings.TrimSpace(r.Header.Get("Authorization"))
		if !strings.HasPrefix(strings.ToLower(authorization), "bearer ") {
			a.fail(w, r, http.StatusUnauthorized, errMissingToken)
			return
		}

		token := strings.TrimSpace(authorization[len("Bearer "):])
		actor, err := a.auth.ParseToken(token)
		if err != nil {
			a.fail(w, r, http.StatusUnauthorized, err)
			return
		}

		if len(roles) > 0 && !isRoleAllowed(actor.Role, roles) {
			a.fail(w, r, http.StatusForbidden, errForbiddenRole)
			return
		}

		next(w, r.WithContext(service.WithActor(r.Context(), actor)))
	}
}

func isRoleAllowed(role string, allowed []string) bool {
	for _, allow := range allowed {
		if role == allow {
			return true
		}
	}
	return false
}

// handleHealth fails only when the store is down. A broken kitchen broadcast
// is reported but orders still go through without it.
func (a *API) handleHealth(w http.ResponseWriter, r *http.Request) {
	broadcast := "ok"
	if err := a.service.PingBroadcaster(r.Context()); err != nil {
		log.Warn().Err(err).Msg("health: kitchen broadcast unreachable")
		broadcast = "unavailable"
	}

	status, ok := http.StatusOK, true
	if err := a.service.Ping(r.Context()); err != nil {
		log.Error().Err(err).Msg("health: store unreachable")
		status, ok = http.StatusServiceUnavailable, false
	}
	writeJSON(w, status, map[string]any{
		"ok":                ok,
		"kitchen_broadcast": broadcast,
		"at":                time.Now().UTC().Format(time.RFC3339),
	})
}
