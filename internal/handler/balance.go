package handler

import (
	"errors"
	"net/http"

	"github.com/efreitasn/predictx/internal/domain"
	"github.com/efreitasn/predictx/internal/service"
)

// BalanceHandler handles HTTP requests for the caller's balance.
type BalanceHandler struct {
	balanceSvc *service.BalanceService
}

// NewBalanceHandler creates a new BalanceHandler.
func NewBalanceHandler(balanceSvc *service.BalanceService) *BalanceHandler {
	return &BalanceHandler{balanceSvc: balanceSvc}
}

type amountRequest struct {
	Amount float64 `json:"amount"`
}

// balanceResponse reports money in dollars.
type balanceResponse struct {
	Success         bool    `json:"success"`
	UserID          string  `json:"userId"`
	Available       float64 `json:"availableBalance"`
	Locked          float64 `json:"lockedBalance"`
	Total           float64 `json:"totalBalance"`
	TotalDeposited  float64 `json:"totalDeposited"`
	TotalWithdrawn  float64 `json:"totalWithdrawn"`
	TotalTrades     int64   `json:"totalTrades"`
	WinningTrades   int64   `json:"winningTrades"`
	TotalVolume     int64   `json:"totalVolume"`
	TotalProfitLoss float64 `json:"totalProfitLoss"`
	UpdatedAt       string  `json:"updatedAt"`
}

// Get handles GET /users/me/balance.
func (h *BalanceHandler) Get(w http.ResponseWriter, r *http.Request) {
	b, err := h.balanceSvc.Get(r.Context(), userID(r))
	if err != nil {
		mapBalanceError(w, err)
		return
	}
	WriteJSON(w, http.StatusOK, buildBalanceResponse(b))
}

// Deposit handles POST /users/me/deposits.
func (h *BalanceHandler) Deposit(w http.ResponseWriter, r *http.Request) {
	var req amountRequest
	if err := ParseJSON(r, &req); err != nil {
		WriteError(w, http.StatusBadRequest, "invalid_request", err.Error())
		return
	}
	b, err := h.balanceSvc.Deposit(r.Context(), userID(r), req.Amount)
	if err != nil {
		mapBalanceError(w, err)
		return
	}
	WriteJSON(w, http.StatusOK, buildBalanceResponse(b))
}

// Withdraw handles POST /users/me/withdrawals.
func (h *BalanceHandler) Withdraw(w http.ResponseWriter, r *http.Request) {
	var req amountRequest
	if err := ParseJSON(r, &req); err != nil {
		WriteError(w, http.StatusBadRequest, "invalid_request", err.Error())
		return
	}
	b, err := h.balanceSvc.Withdraw(r.Context(), userID(r), req.Amount)
	if err != nil {
		mapBalanceError(w, err)
		return
	}
	WriteJSON(w, http.StatusOK, buildBalanceResponse(b))
}

func buildBalanceResponse(b *domain.UserBalance) balanceResponse {
	return balanceResponse{
		Success:         true,
		UserID:          b.UserID,
		Available:       domain.CentsToDollars(b.Available),
		Locked:          domain.CentsToDollars(b.Locked),
		Total:           domain.CentsToDollars(b.Total()),
		TotalDeposited:  domain.CentsToDollars(b.TotalDeposited),
		TotalWithdrawn:  domain.CentsToDollars(b.TotalWithdrawn),
		TotalTrades:     b.TotalTrades,
		WinningTrades:   b.WinningTrades,
		TotalVolume:     b.TotalVolume,
		TotalProfitLoss: domain.CentsToDollars(b.TotalProfitLoss),
		UpdatedAt:       b.UpdatedAt.UTC().Format(formatTime),
	}
}

func mapBalanceError(w http.ResponseWriter, err error) {
	if writeDomainError(w, err) {
		return
	}
	if errors.Is(err, domain.ErrBalanceNotFound) {
		WriteError(w, http.StatusNotFound, "balance_not_found", "No balance yet: place an order or make a deposit first")
		return
	}
	writeInternalError(w)
}
