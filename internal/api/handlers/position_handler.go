package handlers

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/gorilla/mux"
	"github.com/shopspring/decimal"

	"fundingarb/internal/api/middleware"
	"fundingarb/internal/bot"
	"fundingarb/internal/models"
	"fundingarb/internal/repository"
	"fundingarb/internal/service"
)

// OpenPositionRequest - тело запроса на открытие хедж-позиции по возможности
type OpenPositionRequest struct {
	Symbol        string `json:"symbol"`
	OpportunityID string `json:"opportunity_id"`
	LongExchange  string `json:"long_exchange"`
	ShortExchange string `json:"short_exchange"`
	Quantity      string `json:"quantity"`
	Leverage      int    `json:"leverage"`
	StopLossPct   string `json:"stop_loss_pct,omitempty"`
	TakeProfitPct string `json:"take_profit_pct,omitempty"`
}

// PositionLegResponse - ответ с одной стороной хедж-позиции
type PositionLegResponse struct {
	Exchange        string `json:"exchange"`
	Side            string `json:"side"`
	EntryPrice      string `json:"entry_price"`
	Quantity        string `json:"quantity"`
	ExchangeOrderID string `json:"exchange_order_id,omitempty"`
}

// PositionResponse - ответ с состоянием позиции
type PositionResponse struct {
	ID                     string               `json:"id"`
	GroupID                string               `json:"group_id"`
	Symbol                 string               `json:"symbol"`
	Status                 string               `json:"status"`
	ConditionalOrderStatus string               `json:"conditional_order_status"`
	Long                   PositionLegResponse  `json:"long"`
	Short                  PositionLegResponse  `json:"short"`
	RealizedPnl            string               `json:"realized_pnl"`
	CloseReason            string               `json:"close_reason,omitempty"`
	FailureReason          string               `json:"failure_reason,omitempty"`
}

// BatchCloseResponse - ответ на пакетное закрытие группы позиций
type BatchCloseResponse struct {
	Closed []string          `json:"closed"`
	Failed map[string]string `json:"failed"`
}

// PositionHandler управляет жизненным циклом хедж-позиций: открытие по
// обнаруженной возможности, просмотр и пакетное закрытие группы.
//
// Endpoints:
// - POST /api/v1/positions - открыть позицию по возможности
// - GET /api/v1/positions - список позиций пользователя
// - GET /api/v1/positions/{id} - одна позиция
// - POST /api/v1/positions/group/{groupId}/close - закрыть все открытые позиции группы
type PositionHandler struct {
	arbitrageService *service.ArbitrageService
}

// NewPositionHandler создает новый PositionHandler
func NewPositionHandler(arbitrageService *service.ArbitrageService) *PositionHandler {
	return &PositionHandler{arbitrageService: arbitrageService}
}

// OpenPosition открывает хедж-позицию: маркет-ордер на обеих биржах возможности
// POST /api/v1/positions
//
// Ответы:
// - 201 Created: позиция открыта, обе ноги исполнены
// - 400 Bad Request: некорректные данные
// - 502 Bad Gateway: позицию открыть не удалось, в том числе когда исполнилась
//   только одна нога (она откатывается компенсирующим ордером)
func (h *PositionHandler) OpenPosition(w http.ResponseWriter, r *http.Request) {
	userID := middleware.UserIDFromContext(r.Context())

	r.Body = http.MaxBytesReader(w, r.Body, MaxRequestBodySize)
	var req OpenPositionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.respondWithError(w, http.StatusBadRequest, "Invalid request body", err.Error())
		return
	}

	if req.Symbol == "" || req.OpportunityID == "" || req.LongExchange == "" || req.ShortExchange == "" {
		h.respondWithError(w, http.StatusBadRequest, "symbol, opportunity_id, long_exchange and short_exchange are required", "")
		return
	}
	if req.Leverage <= 0 {
		h.respondWithError(w, http.StatusBadRequest, "leverage must be positive", "")
		return
	}

	quantity, err := decimal.NewFromString(req.Quantity)
	if err != nil || quantity.LessThanOrEqual(decimal.Zero) {
		h.respondWithError(w, http.StatusBadRequest, "quantity must be a positive number", "")
		return
	}

	stopLossPct := decimal.Zero
	if req.StopLossPct != "" {
		stopLossPct, err = decimal.NewFromString(req.StopLossPct)
		if err != nil {
			h.respondWithError(w, http.StatusBadRequest, "stop_loss_pct must be a number", "")
			return
		}
	}
	takeProfitPct := decimal.Zero
	if req.TakeProfitPct != "" {
		takeProfitPct, err = decimal.NewFromString(req.TakeProfitPct)
		if err != nil {
			h.respondWithError(w, http.StatusBadRequest, "take_profit_pct must be a number", "")
			return
		}
	}

	params := bot.OpenPairParams{
		UserID:        userID,
		Symbol:        models.Symbol(req.Symbol),
		OpportunityID: req.OpportunityID,
		LongExchange:  models.Exchange(req.LongExchange),
		ShortExchange: models.Exchange(req.ShortExchange),
		Quantity:      quantity,
		Leverage:      req.Leverage,
		StopLossPct:   stopLossPct,
		TakeProfitPct: takeProfitPct,
	}

	position, err := h.arbitrageService.OpenPosition(r.Context(), params)
	if err != nil {
		h.respondWithError(w, http.StatusBadGateway, "Failed to open position", err.Error())
		return
	}

	h.respondWithJSON(w, http.StatusCreated, toPositionResponse(position))
}

// ListPositions возвращает все позиции текущего пользователя, новые первыми
// GET /api/v1/positions
func (h *PositionHandler) ListPositions(w http.ResponseWriter, r *http.Request) {
	userID := middleware.UserIDFromContext(r.Context())

	positions, err := h.arbitrageService.ListPositions(r.Context(), userID)
	if err != nil {
		h.respondWithError(w, http.StatusInternalServerError, "Failed to list positions", err.Error())
		return
	}

	response := make([]PositionResponse, 0, len(positions))
	for _, p := range positions {
		response = append(response, toPositionResponse(p))
	}

	h.respondWithJSON(w, http.StatusOK, response)
}

// GetPosition возвращает одну позицию по ID
// GET /api/v1/positions/{id}
//
// Ответы:
// - 403 Forbidden: позиция принадлежит другому пользователю
// - 404 Not Found: позиция не найдена
func (h *PositionHandler) GetPosition(w http.ResponseWriter, r *http.Request) {
	userID := middleware.UserIDFromContext(r.Context())
	id := mux.Vars(r)["id"]

	position, err := h.arbitrageService.GetPosition(r.Context(), userID, id)
	if err != nil {
		switch {
		case errors.Is(err, repository.ErrPositionNotFound):
			h.respondWithError(w, http.StatusNotFound, "Position not found", "")
		case errors.Is(err, service.ErrPositionNotOwned):
			h.respondWithError(w, http.StatusForbidden, "Position does not belong to this user", "")
		default:
			h.respondWithError(w, http.StatusInternalServerError, "Failed to get position", err.Error())
		}
		return
	}

	h.respondWithJSON(w, http.StatusOK, toPositionResponse(position))
}

// CloseGroup закрывает все открытые позиции группы (обе ноги хеджа)
// POST /api/v1/positions/group/{groupId}/close
//
// Ответ:
//
//	{"closed": ["pos-1", "pos-2"], "failed": {"pos-3": "order rejected"}}
func (h *PositionHandler) CloseGroup(w http.ResponseWriter, r *http.Request) {
	groupID := mux.Vars(r)["groupId"]

	result, err := h.arbitrageService.CloseGroup(r.Context(), groupID)
	if err != nil {
		h.respondWithError(w, http.StatusInternalServerError, "Failed to close position group", err.Error())
		return
	}

	h.respondWithJSON(w, http.StatusOK, BatchCloseResponse{Closed: result.Closed, Failed: result.Failed})
}

// ClosePosition закрывает обе ноги одной позиции по требованию пользователя
// POST /api/v1/positions/{id}/close
//
// В отличие от CloseGroup работает с одной позицией и безопасен для PARTIAL -
// ClosePosition у координатора закрывает только еще не закрытые ноги.
func (h *PositionHandler) ClosePosition(w http.ResponseWriter, r *http.Request) {
	userID := middleware.UserIDFromContext(r.Context())
	id := mux.Vars(r)["id"]

	position, err := h.arbitrageService.ClosePosition(r.Context(), userID, id)
	if err != nil {
		switch {
		case errors.Is(err, repository.ErrPositionNotFound):
			h.respondWithError(w, http.StatusNotFound, "Position not found", "")
		case errors.Is(err, service.ErrPositionNotOwned):
			h.respondWithError(w, http.StatusForbidden, "Position does not belong to this user", "")
		default:
			h.respondWithError(w, http.StatusBadGateway, "Failed to close position", err.Error())
		}
		return
	}

	h.respondWithJSON(w, http.StatusOK, toPositionResponse(position))
}

// MarkGroupClosed принудительно переводит все незавершенные позиции группы в
// CLOSED без рыночных ордеров - административный override для застрявших
// позиций, минующий Position Coordinator.
// PATCH /api/v1/positions/group/{groupId}/mark-closed
func (h *PositionHandler) MarkGroupClosed(w http.ResponseWriter, r *http.Request) {
	groupID := mux.Vars(r)["groupId"]

	ids, err := h.arbitrageService.MarkGroupClosed(r.Context(), groupID)
	if err != nil {
		h.respondWithError(w, http.StatusInternalServerError, "Failed to mark group closed", err.Error())
		return
	}

	h.respondWithJSON(w, http.StatusOK, SuccessResponse{
		Message: "positions marked closed",
		Data:    ids,
	})
}

func toPositionResponse(p *models.Position) PositionResponse {
	return PositionResponse{
		ID:                     p.ID,
		GroupID:                p.GroupID,
		Symbol:                 string(p.Symbol),
		Status:                 string(p.Status),
		ConditionalOrderStatus: string(p.ConditionalOrderStatus),
		Long: PositionLegResponse{
			Exchange:        string(p.LongLeg.Exchange),
			Side:            p.LongLeg.Side,
			EntryPrice:      p.LongLeg.EntryPrice.String(),
			Quantity:        p.LongLeg.Quantity.String(),
			ExchangeOrderID: p.LongLeg.ExchangeOrderID,
		},
		Short: PositionLegResponse{
			Exchange:        string(p.ShortLeg.Exchange),
			Side:            p.ShortLeg.Side,
			EntryPrice:      p.ShortLeg.EntryPrice.String(),
			Quantity:        p.ShortLeg.Quantity.String(),
			ExchangeOrderID: p.ShortLeg.ExchangeOrderID,
		},
		RealizedPnl:    p.RealizedPnl.String(),
		CloseReason:    string(p.CloseReason),
		FailureReason:  p.FailureReason,
	}
}

func (h *PositionHandler) respondWithJSON(w http.ResponseWriter, code int, payload interface{}) {
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

func (h *PositionHandler) respondWithError(w http.ResponseWriter, code int, message string, details string) {
	h.respondWithJSON(w, code, ErrorResponse{
		Error:   message,
		Details: details,
	})
}
