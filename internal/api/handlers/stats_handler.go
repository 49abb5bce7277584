package handlers

import (
	"encoding/json"
	"net/http"

	"fundingarb/internal/api/middleware"
	"fundingarb/internal/models"
	"fundingarb/internal/service"
)

// StatsHandler обрабатывает HTTP запросы для статистики торговли пользователя.
//
// Endpoints:
// - GET /api/v1/stats - получить агрегированную статистику
// - GET /api/v1/stats/top-pairs?metric=trades|profit|loss - топ символов по метрике
// - POST /api/v1/stats/reset - сброс счетчиков срабатываний
//
// Статистика включает:
// - Количество завершенных арбитражей (день/неделя/месяц/всего) и PNL
// - Срабатывания условных ордеров (SL/TP) с деталями
// - Провалы открытия второй ноги с деталями
// - Топ символов по разным метрикам
type StatsHandler struct {
	statsService *service.StatsService
}

// NewStatsHandler создает новый StatsHandler с внедрением зависимостей.
func NewStatsHandler(statsService *service.StatsService) *StatsHandler {
	return &StatsHandler{statsService: statsService}
}

// GetStats возвращает агрегированную статистику пользователя.
// GET /api/v1/stats
func (h *StatsHandler) GetStats(w http.ResponseWriter, r *http.Request) {
	userID := middleware.UserIDFromContext(r.Context())

	stats, err := h.statsService.GetStats(userID)
	if err != nil {
		h.respondWithError(w, http.StatusInternalServerError, "failed to get stats", err.Error())
		return
	}

	if stats.TopPairsByTrades == nil {
		stats.TopPairsByTrades = []models.PairStat{}
	}
	if stats.TopPairsByProfit == nil {
		stats.TopPairsByProfit = []models.PairStat{}
	}
	if stats.TopPairsByLoss == nil {
		stats.TopPairsByLoss = []models.PairStat{}
	}
	if stats.ConditionalTriggers.Events == nil {
		stats.ConditionalTriggers.Events = []models.ConditionalTriggerEvent{}
	}
	if stats.SecondLegFailures.Events == nil {
		stats.SecondLegFailures.Events = []models.SecondLegFailureEvent{}
	}

	h.respondWithJSON(w, http.StatusOK, stats)
}

// GetTopPairs возвращает топ символов по указанной метрике.
// GET /api/v1/stats/top-pairs?metric=trades|profit|loss
//
// Query Parameters:
// - metric (optional): "trades" (default), "profit", или "loss"
func (h *StatsHandler) GetTopPairs(w http.ResponseWriter, r *http.Request) {
	userID := middleware.UserIDFromContext(r.Context())

	metric := r.URL.Query().Get("metric")
	if metric == "" {
		metric = "trades"
	}
	if metric != "trades" && metric != "profit" && metric != "loss" {
		h.respondWithJSON(w, http.StatusBadRequest, map[string]interface{}{
			"error":         "invalid metric",
			"valid_metrics": []string{"trades", "profit", "loss"},
		})
		return
	}

	topPairs, err := h.statsService.GetTopPairs(userID, metric)
	if err != nil {
		h.respondWithError(w, http.StatusInternalServerError, "failed to get top pairs", err.Error())
		return
	}
	if topPairs == nil {
		topPairs = []models.PairStat{}
	}

	h.respondWithJSON(w, http.StatusOK, topPairs)
}

// ResetStats сбрасывает счетчики срабатываний условных ордеров и провалов
// второй ноги пользователя. История сделок в trades не затрагивается.
// POST /api/v1/stats/reset
func (h *StatsHandler) ResetStats(w http.ResponseWriter, r *http.Request) {
	userID := middleware.UserIDFromContext(r.Context())

	if err := h.statsService.ResetStats(userID); err != nil {
		h.respondWithError(w, http.StatusInternalServerError, "failed to reset stats", err.Error())
		return
	}

	h.respondWithJSON(w, http.StatusOK, SuccessResponse{Message: "stats reset successfully"})
}

func (h *StatsHandler) respondWithJSON(w http.ResponseWriter, code int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(payload)
}

func (h *StatsHandler) respondWithError(w http.ResponseWriter, code int, message, details string) {
	h.respondWithJSON(w, code, ErrorResponse{Error: message, Details: details})
}
