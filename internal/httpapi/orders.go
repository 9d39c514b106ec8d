package httpapi

import (
	"net/http"

	"hotelpos/backend/internal/domain"
)

func (a *API) handleCreateOrder(w http.ResponseWriter, r *http.Request) {
	if !a.orderLimiter.Allow(clientKey(r)) {
		a.fail(w, r, http.StatusTooManyRequests, errRateLimited)
		return
	}

	var req domain.CreateOrderRequest
	if err := decodeJSON(r, &req); err != nil {
		a.writeError(w, r, err)
		return
	}

	resp, err := a.service.CreateOrder(r.Context(), req)
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, resp)
}

func (a *API) handleListOrders(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()
	orders, err := a.service.ListOrders(r.Context(), query.Get("status"), parsePositiveLimit(query.Get("limit"), 50, 200))
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"orders": orders})
}

func (a *API) handleGetOrder(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	order, err := a.service.GetOrder(r.Context(), id)
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"order": order})
}

func (a *API) handleUpdateOrderStatus(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	var req domain.OrderStatusRequest
	if err := decodeJSON(r, &req); err != nil {
		a.writeError(w, r, err)
		return
	}

	order, err := a.service.UpdateOrderStatus(r.Context(), id, req)
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"order": order})
}
