package handlers

import (
	"encoding/json"
	"net/http"
	"strings"

	"fundingarb/internal/models"
	"fundingarb/internal/service"
)

// MarketDataHandler обслуживает ручной REST-рефреш ставок фандинга, минуя
// WS-кэш Funding Rate Tracker-а - для случаев, когда пользователь хочет
// актуальную ставку сразу, не дожидаясь очередного фрейма.
//
// Endpoints:
// - POST /api/v1/market-data/refresh - рефреш ставок по символу
type MarketDataHandler struct {
	arbitrageService *service.ArbitrageService
}

// NewMarketDataHandler создает новый MarketDataHandler
func NewMarketDataHandler(arbitrageService *service.ArbitrageService) *MarketDataHandler {
	return &MarketDataHandler{arbitrageService: arbitrageService}
}

// Refresh запрашивает свежую ставку фандинга по символу у указанных бирж
// (или у всех подключенных, если exchanges не задан).
// POST /api/v1/market-data/refresh?symbol=BTCUSDT&exchanges=binance,okx
func (h *MarketDataHandler) Refresh(w http.ResponseWriter, r *http.Request) {
	symbol := r.URL.Query().Get("symbol")
	if symbol == "" {
		h.respondWithError(w, http.StatusBadRequest, "symbol is required", "")
		return
	}

	var exchanges []models.Exchange
	if raw := r.URL.Query().Get("exchanges"); raw != "" {
		for _, name := range strings.Split(raw, ",") {
			name = strings.TrimSpace(name)
			if name != "" {
				exchanges = append(exchanges, models.Exchange(name))
			}
		}
	}

	rates, err := h.arbitrageService.RefreshMarketData(r.Context(), models.Symbol(symbol), exchanges)
	if err != nil {
		h.respondWithError(w, http.StatusBadGateway, "Failed to refresh market data", err.Error())
		return
	}

	response := make(map[string]FundingRateResponse, len(rates))
	for exch, rec := range rates {
		normalized := make(map[string]string, 4)
		for interval, rate := range rec.Normalized() {
			normalized[string(interval)] = rate.String()
		}
		response[string(exch)] = FundingRateResponse{
			Rate:           rec.Rate.String(),
			Interval:       string(rec.Interval),
			MarkPrice:      rec.MarkPrice.String(),
			NextSettlement: rec.NextSettlement.Format(httpTimeLayout),
			UpdatedAt:      rec.UpdatedAt.Format(httpTimeLayout),
			Normalized:     normalized,
		}
	}

	h.respondWithJSON(w, http.StatusOK, response)
}

func (h *MarketDataHandler) respondWithJSON(w http.ResponseWriter, code int, payload interface{}) {
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

func (h *MarketDataHandler) respondWithError(w http.ResponseWriter, code int, message string, details string) {
	h.respondWithJSON(w, code, ErrorResponse{
		Error:   message,
		Details: details,
	})
}
