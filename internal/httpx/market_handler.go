package httpx

import (
	"github.com/ariefcatur/go-realtime-market/internal/apperr"
	"github.com/ariefcatur/go-realtime-market/internal/market"
	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"
	"net/http"
)

type MarketHandler struct {
	Market *market.Manager
	Log    *zap.Logger
}

type CancelListingReq struct {
	SellerID int64 `json:"seller_id"`
}

type PlaceOrderReq struct {
	BuyerID  int64 `json:"buyer_id"`
	Quantity int   `json:"quantity"`
}

func (h *MarketHandler) Register(r chi.Router) {
	r.Post("/listings", h.createListing)
	r.Get("/listings", h.listListings)
	r.Get("/listings/{id}", h.getListing)
	r.Patch("/listings/{id}", h.updateListing)
	r.Post("/listings/{id}/cancel", h.cancelListing)
	r.Post("/listings/{id}/orders", h.placeOrder)
	r.Get("/sellers/{id}/listings", h.sellerListings)

	r.Get("/market-orders", h.ordersByStatus)
	r.Get("/market-orders/{id}", h.getOrder)
	r.Post("/market-orders/{id}/confirm", transitionHandler(h.Log, h.Market.ConfirmOrder))
	r.Post("/market-orders/{id}/complete", transitionHandler(h.Log, h.Market.CompleteOrder))
	r.Post("/market-orders/{id}/cancel", transitionHandler(h.Log, h.Market.CancelOrder))
	r.Get("/buyers/{id}/market-orders", h.buyerOrders)
	r.Get("/sellers/{id}/market-orders", h.sellerOrders)
}

func (h *MarketHandler) createListing(w http.ResponseWriter, r *http.Request) {
	var req market.CreateListingRequest
	if err := decode(r, &req); err != nil {
		writeError(w, h.Log, err)
		return
	}
	ctx, cancel := withTimeout(r)
	defer cancel()

	l, err := h.Market.CreateListing(ctx, req)
	if err != nil {
		writeError(w, h.Log, err)
		return
	}
	writeJSON(w, http.StatusCreated, l)
}

func (h *MarketHandler) getListing(w http.ResponseWriter, r *http.Request) {
	id, err := idParam(r, "id")
	if err != nil {
		writeError(w, h.Log, err)
		return
	}
	ctx, cancel := withTimeout(r)
	defer cancel()

	l, err := h.Market.GetListing(ctx, id)
	if err != nil {
		writeError(w, h.Log, err)
		return
	}
	writeJSON(w, http.StatusOK, l)
}

func (h *MarketHandler) listListings(w http.ResponseWriter, r *http.Request) {
	status := market.ListingActive
	if s := r.URL.Query().Get("status"); s != "" {
		status = market.ListingStatus(s)
	}
	ctx, cancel := withTimeout(r)
	defer cancel()

	ls, err := h.Market.ListListingsByStatus(ctx, status)
	if err != nil {
		writeError(w, h.Log, err)
		return
	}
	writeJSON(w, http.StatusOK, ls)
}

func (h *MarketHandler) sellerListings(w http.ResponseWriter, r *http.Request) {
	id, err := idParam(r, "id")
	if err != nil {
		writeError(w, h.Log, err)
		return
	}
	ctx, cancel := withTimeout(r)
	defer cancel()

	ls, err := h.Market.ListSellerListings(ctx, id)
	if err != nil {
		writeError(w, h.Log, err)
		return
	}
	writeJSON(w, http.StatusOK, ls)
}

func (h *MarketHandler) updateListing(w http.ResponseWriter, r *http.Request) {
	id, err := idParam(r, "id")
	if err != nil {
		writeError(w, h.Log, err)
		return
	}
	var req market.UpdateListingRequest
	if err := decode(r, &req); err != nil {
		writeError(w, h.Log, err)
		return
	}
	ctx, cancel := withTimeout(r)
	defer cancel()

	l, err := h.Market.UpdateListing(ctx, id, req)
	if err != nil {
		writeError(w, h.Log, err)
		return
	}
	writeJSON(w, http.StatusOK, l)
}

func (h *MarketHandler) cancelListing(w http.ResponseWriter, r *http.Request) {
	id, err := idParam(r, "id")
	if err != nil {
		writeError(w, h.Log, err)
		return
	}
	var req CancelListingReq
	if err := decode(r, &req); err != nil {
		writeError(w, h.Log, err)
		return
	}
	ctx, cancel := withTimeout(r)
	defer cancel()

	l, err := h.Market.CancelListing(ctx, id, req.SellerID)
	if err != nil {
		writeError(w, h.Log, err)
		return
	}
	writeJSON(w, http.StatusOK, l)
}

func (h *MarketHandler) placeOrder(w http.ResponseWriter, r *http.Request) {
	id, err := idParam(r, "id")
	if err != nil {
		writeError(w, h.Log, err)
		return
	}
	var req PlaceOrderReq
	if err := decode(r, &req); err != nil {
		writeError(w, h.Log, err)
		return
	}
	ctx, cancel := withTimeout(r)
	defer cancel()

	o, err := h.Market.CreateOrder(ctx, id, req.BuyerID, req.Quantity)
	if err != nil {
		writeError(w, h.Log, err)
		return
	}
	writeJSON(w, http.StatusCreated, o)
}

func (h *MarketHandler) getOrder(w http.ResponseWriter, r *http.Request) {
	id, err := idParam(r, "id")
	if err != nil {
		writeError(w, h.Log, err)
		return
	}
	ctx, cancel := withTimeout(r)
	defer cancel()

	o, err := h.Market.GetOrder(ctx, id)
	if err != nil {
		writeError(w, h.Log, err)
		return
	}
	writeJSON(w, http.StatusOK, o)
}

func (h *MarketHandler) ordersByStatus(w http.ResponseWriter, r *http.Request) {
	status := r.URL.Query().Get("status")
	if status == "" {
		writeError(w, h.Log, apperr.Validation("status query parameter is required"))
		return
	}
	ctx, cancel := withTimeout(r)
	defer cancel()

	os, err := h.Market.ListOrdersByStatus(ctx, market.OrderStatus(status))
	if err != nil {
		writeError(w, h.Log, err)
		return
	}
	writeJSON(w, http.StatusOK, os)
}

func (h *MarketHandler) buyerOrders(w http.ResponseWriter, r *http.Request) {
	id, err := idParam(r, "id")
	if err != nil {
		writeError(w, h.Log, err)
		return
	}
	ctx, cancel := withTimeout(r)
	defer cancel()

	os, err := h.Market.ListBuyerOrders(ctx, id)
	if err != nil {
		writeError(w, h.Log, err)
		return
	}
	writeJSON(w, http.StatusOK, os)
}

func (h *MarketHandler) sellerOrders(w http.ResponseWriter, r *http.Request) {
	id, err := idParam(r, "id")
	if err != nil {
		writeError(w, h.Log, err)
		return
	}
	ctx, cancel := withTimeout(r)
	defer cancel()

	os, err := h.Market.ListSellerOrders(ctx, id)
	if err != nil {
		writeError(w, h.Log, err)
		return
	}
	writeJSON(w, http.StatusOK, os)
}
