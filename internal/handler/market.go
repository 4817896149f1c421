package handler

import (
	"errors"
	"net/http"

	"github.com/efreitasn/predictx/internal/domain"
	"github.com/efreitasn/predictx/internal/service"
	"github.com/go-chi/chi/v5"
)

// MarketHandler handles HTTP requests for market endpoints.
type MarketHandler struct {
	marketSvc *service.MarketService
}

// NewMarketHandler creates a new MarketHandler.
func NewMarketHandler(marketSvc *service.MarketService) *MarketHandler {
	return &MarketHandler{marketSvc: marketSvc}
}

type createMarketRequest struct {
	ID    string `json:"id"`
	Title string `json:"title"`
}

type marketResponse struct {
	MarketID  string  `json:"marketId"`
	Title     string  `json:"title"`
	Status    string  `json:"status"`
	YesVolume int64   `json:"yesVolume"`
	NoVolume  int64   `json:"noVolume"`
	Escrow    float64 `json:"escrow"`
	Outcome   *string `json:"outcome"`
	CreatedAt string  `json:"createdAt"`
}

type bookLevelResponse struct {
	Price         int64 `json:"price"`
	TotalQuantity int64 `json:"totalQuantity"`
	OrderCount    int   `json:"orderCount"`
}

type bookResponse struct {
	Success    bool                `json:"success"`
	MarketID   string              `json:"marketId"`
	Yes        []bookLevelResponse `json:"yes"`
	No         []bookLevelResponse `json:"no"`
	SnapshotAt string              `json:"snapshotAt"`
}

// Create handles POST /markets.
func (h *MarketHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req createMarketRequest
	if err := ParseJSON(r, &req); err != nil {
		WriteError(w, http.StatusBadRequest, "invalid_request", err.Error())
		return
	}
	m, err := h.marketSvc.Create(r.Context(), req.ID, req.Title)
	if err != nil {
		mapMarketError(w, err)
		return
	}
	WriteJSON(w, http.StatusCreated, map[string]any{"success": true, "market": buildMarketResponse(m)})
}

// List handles GET /markets.
func (h *MarketHandler) List(w http.ResponseWriter, r *http.Request) {
	markets, err := h.marketSvc.List(r.Context())
	if err != nil {
		mapMarketError(w, err)
		return
	}
	out := make([]marketResponse, len(markets))
	for i, m := range markets {
		out[i] = buildMarketResponse(m)
	}
	WriteJSON(w, http.StatusOK, map[string]any{"success": true, "markets": out})
}

// Get handles GET /markets/{market_id}.
func (h *MarketHandler) Get(w http.ResponseWriter, r *http.Request) {
	m, err := h.marketSvc.Get(r.Context(), chi.URLParam(r, "market_id"))
	if err != nil {
		mapMarketError(w, err)
		return
	}
	WriteJSON(w, http.StatusOK, map[string]any{"success": true, "market": buildMarketResponse(m)})
}

// Book handles GET /markets/{market_id}/book.
func (h *MarketHandler) Book(w http.ResponseWriter, r *http.Request) {
	book, err := h.marketSvc.Book(r.Context(), chi.URLParam(r, "market_id"))
	if err != nil {
		mapMarketError(w, err)
		return
	}
	WriteJSON(w, http.StatusOK, bookResponse{
		Success:    true,
		MarketID:   book.MarketID,
		Yes:        buildLevels(book.Yes),
		No:         buildLevels(book.No),
		SnapshotAt: book.SnapshotAt.UTC().Format(formatTime),
	})
}

// Trades handles GET /markets/{market_id}/trades?limit=.
func (h *MarketHandler) Trades(w http.ResponseWriter, r *http.Request) {
	limit, err := intParam(r.URL.Query().Get("limit"), "limit", service.DefaultTradeLimit)
	if err != nil {
		mapMarketError(w, err)
		return
	}
	trades, err := h.marketSvc.Trades(r.Context(), chi.URLParam(r, "market_id"), limit)
	if err != nil {
		mapMarketError(w, err)
		return
	}
	WriteJSON(w, http.StatusOK, map[string]any{"success": true, "trades": buildTradeResponses(trades)})
}

func buildMarketResponse(m *domain.Market) marketResponse {
	resp := marketResponse{
		MarketID:  m.MarketID,
		Title:     m.Title,
		Status:    string(m.Status),
		YesVolume: m.YesVolume,
		NoVolume:  m.NoVolume,
		Escrow:    domain.CentsToDollars(m.Escrow()),
		CreatedAt: m.CreatedAt.UTC().Format(formatTime),
	}
	if m.Outcome != nil {
		s := string(*m.Outcome)
		resp.Outcome = &s
	}
	return resp
}

func buildLevels(levels []service.BookLevel) []bookLevelResponse {
	out := make([]bookLevelResponse, len(levels))
	for i, l := range levels {
		out[i] = bookLevelResponse{Price: l.Price, TotalQuantity: l.TotalQuantity, OrderCount: l.OrderCount}
	}
	return out
}

func mapMarketError(w http.ResponseWriter, err error) {
	if writeDomainError(w, err) {
		return
	}
	switch {
	case errors.Is(err, domain.ErrMarketNotFound):
		WriteError(w, http.StatusNotFound, "market_not_found", "Market not found")
	case errors.Is(err, domain.ErrMarketAlreadyExists):
		WriteError(w, http.StatusConflict, "market_already_exists", "Market already exists")
	default:
		writeInternalError(w)
	}
}
