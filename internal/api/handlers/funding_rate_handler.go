package handlers

import (
	"encoding/json"
	"net/http"

	"fundingarb/internal/service"
)

// FundingRateEntryResponse - снимок ставок фандинга по одному символу на всех
// биржах, где он отслеживается, вместе с пересчетом на канонические интервалы.
type FundingRateEntryResponse struct {
	Symbol   string                        `json:"symbol"`
	Rates    map[string]FundingRateResponse `json:"rates"`
	BestPair *FundingPairResponse          `json:"best_pair,omitempty"`
}

// FundingRateResponse - одна ставка фандинга с нормализованными вариантами.
type FundingRateResponse struct {
	Rate           string            `json:"rate"`
	Interval       string            `json:"interval"`
	MarkPrice      string            `json:"mark_price"`
	NextSettlement string            `json:"next_settlement"`
	UpdatedAt      string            `json:"updated_at"`
	Normalized     map[string]string `json:"normalized"`
}

// FundingPairResponse - лучшая связка long/short по символу на момент запроса.
type FundingPairResponse struct {
	LongExchange     string `json:"long_exchange"`
	ShortExchange    string `json:"short_exchange"`
	SpreadPercent    string `json:"spread_percent"`
	AnnualizedReturn string `json:"annualized_return"`
	NetReturn        string `json:"net_return"`
}

// FundingRateHandler отдает публичный снимок последних известных ставок
// фандинга по всем отслеживаемым символам.
//
// Endpoints:
// - GET /funding-rates - снимок ставок по всем символам
type FundingRateHandler struct {
	arbitrageService *service.ArbitrageService
}

// NewFundingRateHandler создает новый FundingRateHandler
func NewFundingRateHandler(arbitrageService *service.ArbitrageService) *FundingRateHandler {
	return &FundingRateHandler{arbitrageService: arbitrageService}
}

// ListFundingRates возвращает снимок ставок фандинга по каждому отслеживаемому
// символу: последнюю известную ставку на каждой бирже, нормализованную на
// {1h,4h,8h,24h}, и текущий лучший long/short пара по Funding Pair Engine.
// GET /funding-rates
func (h *FundingRateHandler) ListFundingRates(w http.ResponseWriter, r *http.Request) {
	snapshot := h.arbitrageService.FundingRatesSnapshot()

	response := make([]FundingRateEntryResponse, 0, len(snapshot))
	for _, entry := range snapshot {
		rates := make(map[string]FundingRateResponse, len(entry.Rates))
		for exch, rec := range entry.Rates {
			normalized := make(map[string]string, 4)
			for interval, rate := range rec.Normalized() {
				normalized[string(interval)] = rate.String()
			}
			rates[string(exch)] = FundingRateResponse{
				Rate:           rec.Rate.String(),
				Interval:       string(rec.Interval),
				MarkPrice:      rec.MarkPrice.String(),
				NextSettlement: rec.NextSettlement.Format(httpTimeLayout),
				UpdatedAt:      rec.UpdatedAt.Format(httpTimeLayout),
				Normalized:     normalized,
			}
		}

		item := FundingRateEntryResponse{
			Symbol: string(entry.Symbol),
			Rates:  rates,
		}
		if entry.BestPair != nil {
			item.BestPair = &FundingPairResponse{
				LongExchange:     string(entry.BestPair.LongExchange),
				ShortExchange:    string(entry.BestPair.ShortExchange),
				SpreadPercent:    entry.BestPair.SpreadPercent.String(),
				AnnualizedReturn: entry.BestPair.AnnualizedReturn.String(),
				NetReturn:        entry.BestPair.NetReturn.String(),
			}
		}
		response = append(response, item)
	}

	h.respondWithJSON(w, http.StatusOK, response)
}

func (h *FundingRateHandler) respondWithJSON(w http.ResponseWriter, code int, payload interface{}) {
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
