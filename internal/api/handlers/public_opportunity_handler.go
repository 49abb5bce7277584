package handlers

import (
	"encoding/json"
	"net/http"
	"strconv"

	"fundingarb/internal/models"
	"fundingarb/internal/service"
)

// OpportunityHistoryResponse - одна запись истории завершенной возможности.
// Не содержит userId/notificationCount/settlementRecords - эти поля не
// существуют в opportunity_end_history, публичный роут их в принципе не может
// отдать.
type OpportunityHistoryResponse struct {
	Symbol           string `json:"symbol"`
	LongExchange     string `json:"long_exchange"`
	ShortExchange    string `json:"short_exchange"`
	AnnualizedReturn string `json:"annualized_return"`
	DurationSeconds  int64  `json:"duration_seconds"`
	EndedAt          string `json:"ended_at"`
}

// PublicOpportunityHandler отдает публичную (без авторизации) историю
// завершенных арбитражных возможностей.
//
// Endpoints:
// - GET /public/opportunities - история завершенных возможностей
type PublicOpportunityHandler struct {
	arbitrageService *service.ArbitrageService
}

// NewPublicOpportunityHandler создает новый PublicOpportunityHandler
func NewPublicOpportunityHandler(arbitrageService *service.ArbitrageService) *PublicOpportunityHandler {
	return &PublicOpportunityHandler{arbitrageService: arbitrageService}
}

// ListHistory возвращает страницу истории завершенных возможностей, новые
// первыми.
// GET /public/opportunities?page=&limit=
//
// status и days, упомянутые в первоначальном дизайне роута, сейчас не влияют
// на выборку - opportunity_end_history не хранит промежуточный статус и
// отбор по возрасту не нужен при сортировке по ended_at desc с пагинацией.
func (h *PublicOpportunityHandler) ListHistory(w http.ResponseWriter, r *http.Request) {
	page := 1
	if raw := r.URL.Query().Get("page"); raw != "" {
		if v, err := strconv.Atoi(raw); err == nil && v > 0 {
			page = v
		}
	}
	limit := 50
	if raw := r.URL.Query().Get("limit"); raw != "" {
		if v, err := strconv.Atoi(raw); err == nil && v > 0 {
			limit = v
		}
	}

	history, err := h.arbitrageService.PublicOpportunityHistory(r.Context(), page, limit)
	if err != nil {
		h.respondWithError(w, http.StatusInternalServerError, "Failed to list opportunity history", err.Error())
		return
	}

	response := make([]OpportunityHistoryResponse, 0, len(history))
	for _, entry := range history {
		response = append(response, toOpportunityHistoryResponse(entry))
	}

	h.respondWithJSON(w, http.StatusOK, response)
}

func toOpportunityHistoryResponse(h *models.OpportunityEndHistory) OpportunityHistoryResponse {
	return OpportunityHistoryResponse{
		Symbol:           string(h.Symbol),
		LongExchange:     string(h.LongExchange),
		ShortExchange:    string(h.ShortExchange),
		AnnualizedReturn: h.AnnualizedReturn.String(),
		DurationSeconds:  h.DurationSeconds,
		EndedAt:          h.EndedAt.Format(httpTimeLayout),
	}
}

func (h *PublicOpportunityHandler) respondWithJSON(w http.ResponseWriter, code int, payload interface{}) {
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

func (h *PublicOpportunityHandler) respondWithError(w http.ResponseWriter, code int, message string, details string) {
	h.respondWithJSON(w, code, ErrorResponse{
		Error:   message,
		Details: details,
	})
}
