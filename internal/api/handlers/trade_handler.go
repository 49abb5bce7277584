package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/gorilla/mux"

	"fundingarb/internal/api/middleware"
	"fundingarb/internal/models"
	"fundingarb/internal/repository"
	"fundingarb/internal/service"
)

// TradeResponse - ответ с одной завершенной сделкой
type TradeResponse struct {
	ID             int64  `json:"id"`
	PositionID     string `json:"position_id"`
	Symbol         string `json:"symbol"`
	LongExchange   string `json:"long_exchange"`
	ShortExchange  string `json:"short_exchange"`
	Quantity       string `json:"quantity"`
	PriceDiffPnl   string `json:"price_diff_pnl"`
	FundingRatePnl string `json:"funding_rate_pnl"`
	Fees           string `json:"fees"`
	TotalPnl       string `json:"total_pnl"`
	Margin         string `json:"margin"`
	Roi            string `json:"roi"`
	CloseReason    string `json:"close_reason"`
	ClosedAt       string `json:"closed_at"`
}

// FundingPaymentResponse - одно начисление фандинга по ноге сделки
type FundingPaymentResponse struct {
	Exchange string `json:"exchange"`
	Rate     string `json:"rate"`
	Amount   string `json:"amount"`
	PaidAt   string `json:"paid_at"`
}

// TradeFundingDetailsResponse - сделка вместе с начислениями фандинга по обеим
// ногам за время жизни позиции.
type TradeFundingDetailsResponse struct {
	Trade         TradeResponse             `json:"trade"`
	LongPayments  []FundingPaymentResponse `json:"long_payments"`
	ShortPayments []FundingPaymentResponse `json:"short_payments"`
}

// TradeHandler отдает историю завершенных сделок пользователя и детализацию
// начислений фандинга по каждой сделке.
//
// Endpoints:
// - GET /api/v1/trades - история сделок пользователя
// - GET /api/v1/trades/{id}/funding-details - начисления фандинга по сделке
type TradeHandler struct {
	arbitrageService *service.ArbitrageService
}

// NewTradeHandler создает новый TradeHandler
func NewTradeHandler(arbitrageService *service.ArbitrageService) *TradeHandler {
	return &TradeHandler{arbitrageService: arbitrageService}
}

// ListTrades возвращает страницу истории сделок пользователя, новые первыми,
// опционально ограниченную символом.
// GET /api/v1/trades?limit=&offset=&symbol=
func (h *TradeHandler) ListTrades(w http.ResponseWriter, r *http.Request) {
	userID := middleware.UserIDFromContext(r.Context())

	limit := 50
	if raw := r.URL.Query().Get("limit"); raw != "" {
		if v, err := strconv.Atoi(raw); err == nil && v > 0 {
			limit = v
		}
	}
	offset := 0
	if raw := r.URL.Query().Get("offset"); raw != "" {
		if v, err := strconv.Atoi(raw); err == nil && v >= 0 {
			offset = v
		}
	}
	symbol := r.URL.Query().Get("symbol")

	trades, err := h.arbitrageService.Trades(r.Context(), userID, limit, offset, symbol)
	if err != nil {
		h.respondWithError(w, http.StatusInternalServerError, "Failed to list trades", err.Error())
		return
	}

	response := make([]TradeResponse, 0, len(trades))
	for _, t := range trades {
		response = append(response, toTradeResponse(t))
	}

	h.respondWithJSON(w, http.StatusOK, response)
}

// GetFundingDetails возвращает сделку вместе с начислениями фандинга по обеим
// ногам за время жизни позиции.
// GET /api/v1/trades/{id}/funding-details
//
// Ответы:
// - 403 Forbidden: сделка принадлежит другому пользователю
// - 404 Not Found: сделка не найдена
func (h *TradeHandler) GetFundingDetails(w http.ResponseWriter, r *http.Request) {
	userID := middleware.UserIDFromContext(r.Context())

	id, err := strconv.ParseInt(mux.Vars(r)["id"], 10, 64)
	if err != nil {
		h.respondWithError(w, http.StatusBadRequest, "id must be numeric", "")
		return
	}

	details, err := h.arbitrageService.TradeFundingDetails(r.Context(), userID, id)
	if err != nil {
		switch {
		case errors.Is(err, repository.ErrTradeNotFound):
			h.respondWithError(w, http.StatusNotFound, "Trade not found", "")
		case errors.Is(err, service.ErrTradeNotOwned):
			h.respondWithError(w, http.StatusForbidden, "Trade does not belong to this user", "")
		default:
			h.respondWithError(w, http.StatusInternalServerError, "Failed to load funding details", err.Error())
		}
		return
	}

	h.respondWithJSON(w, http.StatusOK, TradeFundingDetailsResponse{
		Trade:         toTradeResponse(details.Trade),
		LongPayments:  toFundingPaymentResponses(details.LongPayments),
		ShortPayments: toFundingPaymentResponses(details.ShortPayments),
	})
}

func toTradeResponse(t *models.Trade) TradeResponse {
	return TradeResponse{
		ID:             t.ID,
		PositionID:     t.PositionID,
		Symbol:         string(t.Symbol),
		LongExchange:   string(t.LongExchange),
		ShortExchange:  string(t.ShortExchange),
		Quantity:       t.Quantity.String(),
		PriceDiffPnl:   t.PriceDiffPnl.String(),
		FundingRatePnl: t.FundingRatePnl.String(),
		Fees:           t.Fees.String(),
		TotalPnl:       t.TotalPnl.String(),
		Margin:         t.Margin.String(),
		Roi:            t.Roi.String(),
		CloseReason:    string(t.CloseReason),
		ClosedAt:       t.ClosedAt.Format(httpTimeLayout),
	}
}

func toFundingPaymentResponses(payments []*models.FundingPayment) []FundingPaymentResponse {
	out := make([]FundingPaymentResponse, 0, len(payments))
	for _, p := range payments {
		out = append(out, FundingPaymentResponse{
			Exchange: string(p.Exchange),
			Rate:     p.Rate.String(),
			Amount:   p.Amount.String(),
			PaidAt:   p.PaidAt.Format(httpTimeLayout),
		})
	}
	return out
}

func (h *TradeHandler) respondWithJSON(w http.ResponseWriter, code int, payload interface{}) {
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

func (h *TradeHandler) respondWithError(w http.ResponseWriter, code int, message string, details string) {
	h.respondWithJSON(w, code, ErrorResponse{
		Error:   message,
		Details: details,
	})
}
