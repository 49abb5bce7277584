package handlers

import (
	"encoding/json"
	"net/http"

	"fundingarb/internal/service"
)

// OpportunityResponse - ответ с одной арбитражной возможностью
type OpportunityResponse struct {
	Symbol           string  `json:"symbol"`
	LongExchange     string  `json:"long_exchange"`
	ShortExchange    string  `json:"short_exchange"`
	SpreadPercent    string  `json:"spread_percent"`
	AnnualizedReturn string  `json:"annualized_return"`
	NetReturn        string  `json:"net_return"`
	FirstSeenAt      string  `json:"first_seen_at"`
	LastSeenAt       string  `json:"last_seen_at"`
}

// OpportunityHandler отдает снимок текущих активных возможностей
// фандинг-арбитража, отслеживаемых торговым движком.
//
// Endpoints:
// - GET /api/v1/opportunities - список активных возможностей
type OpportunityHandler struct {
	arbitrageService *service.ArbitrageService
}

// NewOpportunityHandler создает новый OpportunityHandler
func NewOpportunityHandler(arbitrageService *service.ArbitrageService) *OpportunityHandler {
	return &OpportunityHandler{arbitrageService: arbitrageService}
}

// ListOpportunities возвращает все активные возможности; порядок элементов
// не определен (движок не сортирует их).
// GET /api/v1/opportunities
//
// Ответ:
//
//	[
//	  {
//	    "symbol": "BTCUSDT",
//	    "long_exchange": "okx",
//	    "short_exchange": "binance",
//	    "spread_percent": "0.042",
//	    "annualized_return": "15.3",
//	    "net_return": "0.031",
//	    "first_seen_at": "...",
//	    "last_seen_at": "..."
//	  }
//	]
func (h *OpportunityHandler) ListOpportunities(w http.ResponseWriter, r *http.Request) {
	opportunities := h.arbitrageService.ActiveOpportunities()

	response := make([]OpportunityResponse, 0, len(opportunities))
	for _, o := range opportunities {
		response = append(response, OpportunityResponse{
			Symbol:           string(o.Symbol),
			LongExchange:     string(o.LongExchange),
			ShortExchange:    string(o.ShortExchange),
			SpreadPercent:    o.SpreadPercent.String(),
			AnnualizedReturn: o.AnnualizedReturn.String(),
			NetReturn:        o.NetReturn.String(),
			FirstSeenAt:      o.FirstSeenAt.Format(httpTimeLayout),
			LastSeenAt:       o.LastSeenAt.Format(httpTimeLayout),
		})
	}

	h.respondWithJSON(w, http.StatusOK, response)
}

const httpTimeLayout = "2006-01-02T15:04:05Z07:00"

func (h *OpportunityHandler) respondWithJSON(w http.ResponseWriter, code int, payload interface{}) {
	response, err := json.Marshal(payload)
	if err != nil {
		w.WriteHeader(http.StatusInternalServerError)
		_, _ = w.Write([]byte(`{"error":"Failed to marshal response"}`))
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_, _ = w.Write(response)
}
