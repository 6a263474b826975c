package httpx

import (
	"context"
	"github.com/ariefcatur/go-realtime-market/internal/apperr"
	"github.com/ariefcatur/go-realtime-market/internal/orders"
	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"
	"net/http"
)

type OrdersHandler struct {
	Orders *orders.Manager
	Log    *zap.Logger
}

type PaymentReq struct {
	TransactionRef string `json:"transaction_ref"`
}

func (h *OrdersHandler) Register(r chi.Router) {
	r.Post("/orders", h.createOrder)
	r.Get("/orders", h.listByStatus)
	r.Get("/orders/{id}", h.getOrder)
	r.Post("/orders/{id}/payment", h.processPayment)
	r.Post("/orders/{id}/confirm", transitionHandler(h.Log, h.Orders.ConfirmOrder))
	r.Post("/orders/{id}/ship", transitionHandler(h.Log, h.Orders.ShipOrder))
	r.Post("/orders/{id}/deliver", transitionHandler(h.Log, h.Orders.DeliverOrder))
	r.Post("/orders/{id}/cancel", transitionHandler(h.Log, h.Orders.CancelOrder))
	r.Get("/users/{id}/orders", h.listUserOrders)
}

func (h *OrdersHandler) createOrder(w http.ResponseWriter, r *http.Request) {
	var req orders.CreateOrderRequest
	if err := decode(r, &req); err != nil {
		writeError(w, h.Log, err)
		return
	}
	ctx, cancel := withTimeout(r)
	defer cancel()

	o, err := h.Orders.CreateOrder(ctx, req)
	if err != nil {
		writeError(w, h.Log, err)
		return
	}
	writeJSON(w, http.StatusCreated, o)
}

func (h *OrdersHandler) getOrder(w http.ResponseWriter, r *http.Request) {
	id, err := idParam(r, "id")
	if err != nil {
		writeError(w, h.Log, err)
		return
	}
	ctx, cancel := withTimeout(r)
	defer cancel()

	o, err := h.Orders.GetOrder(ctx, id)
	if err != nil {
		writeError(w, h.Log, err)
		return
	}
	writeJSON(w, http.StatusOK, o)
}

func (h *OrdersHandler) listByStatus(w http.ResponseWriter, r *http.Request) {
	status := r.URL.Query().Get("status")
	if status == "" {
		writeError(w, h.Log, apperr.Validation("status query parameter is required"))
		return
	}
	ctx, cancel := withTimeout(r)
	defer cancel()

	os, err := h.Orders.ListOrdersByStatus(ctx, orders.Status(status))
	if err != nil {
		writeError(w, h.Log, err)
		return
	}
	writeJSON(w, http.StatusOK, os)
}

func (h *OrdersHandler) listUserOrders(w http.ResponseWriter, r *http.Request) {
	id, err := idParam(r, "id")
	if err != nil {
		writeError(w, h.Log, err)
		return
	}
	ctx, cancel := withTimeout(r)
	defer cancel()

	os, err := h.Orders.ListUserOrders(ctx, id)
	if err != nil {
		writeError(w, h.Log, err)
		return
	}
	writeJSON(w, http.StatusOK, os)
}

func (h *OrdersHandler) processPayment(w http.ResponseWriter, r *http.Request) {
	id, err := idParam(r, "id")
	if err != nil {
		writeError(w, h.Log, err)
		return
	}
	var req PaymentReq
	if err := decode(r, &req); err != nil {
		writeError(w, h.Log, err)
		return
	}
	ctx, cancel := withTimeout(r)
	defer cancel()

	o, err := h.Orders.ProcessPayment(ctx, id, req.TransactionRef)
	if err != nil {
		writeError(w, h.Log, err)
		return
	}
	writeJSON(w, http.StatusOK, o)
}

// transitionHandler serves the bool-returning transitions as {"changed": bool}.
func transitionHandler(log *zap.Logger, fn func(ctx context.Context, id int64) (bool, error)) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := idParam(r, "id")
		if err != nil {
			writeError(w, log, err)
			return
		}
		ctx, cancel := withTimeout(r)
		defer cancel()

		changed, err := fn(ctx, id)
		if err != nil {
			writeError(w, log, err)
			return
		}
		writeJSON(w, http.StatusOK, changedResp{Changed: changed})
	}
}
