package handler

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"

	"github.com/efreitasn/predictx/internal/domain"
	"github.com/efreitasn/predictx/internal/engine"
	"github.com/efreitasn/predictx/internal/service"
	"github.com/go-chi/chi/v5"
)

// OrderHandler handles HTTP requests for order endpoints.
type OrderHandler struct {
	orderSvc *service.OrderService
}

// NewOrderHandler creates a new OrderHandler.
func NewOrderHandler(orderSvc *service.OrderService) *OrderHandler {
	return &OrderHandler{orderSvc: orderSvc}
}

// placeOrderRequest is the JSON request body for POST /orders.
type placeOrderRequest struct {
	MarketID string `json:"marketId"`
	Side     string `json:"side"`
	Quantity int64  `json:"quantity"`
	Price    int64  `json:"price"`
}

type orderResponse struct {
	OrderID           string `json:"orderId"`
	UserID            string `json:"userId"`
	MarketID          string `json:"marketId"`
	Side              string `json:"side"`
	Quantity          int64  `json:"quantity"`
	Price             int64  `json:"price"`
	FilledQuantity    int64  `json:"filledQuantity"`
	RemainingQuantity int64  `json:"remainingQuantity"`
	Status            string `json:"status"`
	CreatedAt         string `json:"createdAt"`
	UpdatedAt         string `json:"updatedAt"`
}

// tradeResponse is one trade; Price is the YES-side price.
type tradeResponse struct {
	TradeID    string `json:"tradeId"`
	MarketID   string `json:"marketId"`
	YesOrderID string `json:"yesOrderId"`
	NoOrderID  string `json:"noOrderId"`
	YesUserID  string `json:"yesUserId"`
	NoUserID   string `json:"noUserId"`
	Quantity   int64  `json:"quantity"`
	Price      int64  `json:"price"`
	Status     string `json:"status"`
	CreatedAt  string `json:"createdAt"`
}

type placeOrderResponse struct {
	Success     bool            `json:"success"`
	Order       orderResponse   `json:"order"`
	Trades      []tradeResponse `json:"trades"`
	TotalFilled int64           `json:"totalFilled"`
	Message     string          `json:"message"`
}

type orderDetailResponse struct {
	Success bool            `json:"success"`
	Order   orderResponse   `json:"order"`
	Trades  []tradeResponse `json:"trades"`
}

type orderListResponse struct {
	Success bool            `json:"success"`
	Orders  []orderResponse `json:"orders"`
	Total   int             `json:"total"`
	Page    int             `json:"page"`
	Limit   int             `json:"limit"`
}

// Place handles POST /orders.
func (h *OrderHandler) Place(w http.ResponseWriter, r *http.Request) {
	var req placeOrderRequest
	if err := ParseJSON(r, &req); err != nil {
		WriteError(w, http.StatusBadRequest, "invalid_request", err.Error())
		return
	}

	p, err := h.orderSvc.Place(r.Context(), engine.PlaceRequest{
		UserID:   userID(r),
		MarketID: req.MarketID,
		Side:     domain.Side(req.Side),
		Quantity: req.Quantity,
		Price:    req.Price,
	})
	if err != nil {
		mapOrderError(w, err)
		return
	}

	WriteJSON(w, http.StatusCreated, placeOrderResponse{
		Success:     true,
		Order:       buildOrderResponse(p.Order),
		Trades:      buildTradeResponses(p.Trades),
		TotalFilled: p.TotalFilled,
		Message:     placementMessage(p),
	})
}

func placementMessage(p *engine.Placement) string {
	switch p.Status() {
	case domain.OrderStatusFilled:
		return fmt.Sprintf("Order filled: %d shares matched", p.TotalFilled)
	case domain.OrderStatusPartial:
		return fmt.Sprintf("Order partially filled: %d of %d shares matched, remainder resting", p.TotalFilled, p.Order.Quantity)
	default:
		return "Order placed: no matching order, resting on the book"
	}
}

// Get handles GET /orders/{order_id}.
func (h *OrderHandler) Get(w http.ResponseWriter, r *http.Request) {
	d, err := h.orderSvc.Get(r.Context(), userID(r), chi.URLParam(r, "order_id"))
	if err != nil {
		mapOrderError(w, err)
		return
	}

	WriteJSON(w, http.StatusOK, orderDetailResponse{
		Success: true,
		Order:   buildOrderResponse(d.Order),
		Trades:  buildTradeResponses(d.Trades),
	})
}

// ListMine handles GET /users/me/orders?status=&page=&limit=.
func (h *OrderHandler) ListMine(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	page, err := intParam(q.Get("page"), "page", 1)
	if err != nil {
		mapOrderError(w, err)
		return
	}
	limit, err := intParam(q.Get("limit"), "limit", service.DefaultPageLimit)
	if err != nil {
		mapOrderError(w, err)
		return
	}

	orders, total, err := h.orderSvc.ListOrders(r.Context(), userID(r), domain.OrderStatus(q.Get("status")), page, limit)
	if err != nil {
		mapOrderError(w, err)
		return
	}

	resp := orderListResponse{
		Success: true,
		Orders:  make([]orderResponse, len(orders)),
		Total:   total,
		Page:    page,
		Limit:   limit,
	}
	for i, o := range orders {
		resp.Orders[i] = buildOrderResponse(o)
	}
	WriteJSON(w, http.StatusOK, resp)
}

// intParam parses an optional integer query parameter.
func intParam(raw, field string, def int) (int, error) {
	if raw == "" {
		return def, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return 0, &domain.ValidationError{Field: field, Message: field + " must be an integer"}
	}
	return n, nil
}

func buildOrderResponse(o *domain.Order) orderResponse {
	return orderResponse{
		OrderID:           o.OrderID,
		UserID:            o.UserID,
		MarketID:          o.MarketID,
		Side:              string(o.Side),
		Quantity:          o.Quantity,
		Price:             o.Price,
		FilledQuantity:    o.FilledQuantity,
		RemainingQuantity: o.Remaining(),
		Status:            string(o.Status),
		CreatedAt:         o.CreatedAt.UTC().Format(formatTime),
		UpdatedAt:         o.UpdatedAt.UTC().Format(formatTime),
	}
}

// buildTradeResponses converts domain trades to response trades.
func buildTradeResponses(trades []*domain.Trade) []tradeResponse {
	result := make([]tradeResponse, len(trades))
	for i, t := range trades {
		result[i] = tradeResponse{
			TradeID:    t.TradeID,
			MarketID:   t.MarketID,
			YesOrderID: t.YesOrderID,
			NoOrderID:  t.NoOrderID,
			YesUserID:  t.YesUserID,
			NoUserID:   t.NoUserID,
			Quantity:   t.Quantity,
			Price:      t.Price,
			Status:     string(t.Status),
			CreatedAt:  t.CreatedAt.UTC().Format(formatTime),
		}
	}
	return result
}

// mapOrderError maps domain errors to HTTP responses for order endpoints.
func mapOrderError(w http.ResponseWriter, err error) {
	if writeDomainError(w, err) {
		return
	}

	switch {
	case errors.Is(err, domain.ErrOrderNotFound):
		WriteError(w, http.StatusNotFound, "order_not_found", "Order not found")
	case errors.Is(err, domain.ErrMarketNotFound):
		WriteError(w, http.StatusNotFound, "market_not_found", "Market not found")
	case errors.Is(err, domain.ErrMarketNotActive):
		WriteError(w, http.StatusConflict, "market_not_active", "Market is not accepting orders")
	case errors.Is(err, domain.ErrLockTimeout):
		WriteError(w, http.StatusServiceUnavailable, "market_busy", "Market is busy, retry the order")
	default:
		writeInternalError(w)
	}
}
