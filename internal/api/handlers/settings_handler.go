package handlers

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/shopspring/decimal"

	"fundingarb/internal/api/middleware"
	"fundingarb/internal/models"
	"fundingarb/internal/service"
)

// SettingsHandler отвечает за управление пользовательскими настройками бота.
//
// Endpoints:
// - GET /api/v1/settings - получение настроек пользователя
// - PATCH /api/v1/settings - обновление настроек
//
// Настройки включают:
// - min_net_return: минимальный чистый доход для авто-входа в возможность
// - max_concurrent_trades: ограничение на количество одновременных позиций (null = без ограничений)
// - notification_prefs: настройки отображения типов уведомлений
type SettingsHandler struct {
	settingsService *service.SettingsService
}

// NewSettingsHandler создает новый SettingsHandler с внедрением зависимостей.
func NewSettingsHandler(settingsService *service.SettingsService) *SettingsHandler {
	return &SettingsHandler{settingsService: settingsService}
}

// NotificationPrefsUpdate представляет обновление настроек уведомлений.
// Все поля опциональны для частичного обновления.
type NotificationPrefsUpdate struct {
	OpportunityFound   *bool `json:"opportunity_found,omitempty"`
	OpportunityEnded   *bool `json:"opportunity_ended,omitempty"`
	PositionOpened     *bool `json:"position_opened,omitempty"`
	PositionClosed     *bool `json:"position_closed,omitempty"`
	APIError           *bool `json:"api_error,omitempty"`
	ConditionalTrigger *bool `json:"conditional_trigger,omitempty"`
	SecondLegFail      *bool `json:"second_leg_fail,omitempty"`
}

// UpdateSettingsRequest представляет тело запроса на обновление настроек.
// Все поля опциональны - обновляются только переданные.
type UpdateSettingsRequest struct {
	MinNetReturn             *decimal.Decimal         `json:"min_net_return,omitempty"`
	MaxConcurrentTrades      *int                     `json:"max_concurrent_trades,omitempty"`
	NotificationPrefs        *NotificationPrefsUpdate `json:"notification_prefs,omitempty"`
	ClearMaxConcurrentTrades bool                     `json:"clear_max_concurrent_trades,omitempty"`
}

// GetSettings возвращает текущие настройки пользователя (дефолтные, если запись
// еще не создана).
// GET /api/v1/settings
//
// Response 200 OK:
//
//	{
//	  "user_id": "user-1",
//	  "min_net_return": "0.001",
//	  "max_concurrent_trades": null,
//	  "notification_prefs": {
//	    "opportunity_found": true,
//	    "opportunity_ended": true,
//	    "position_opened": true,
//	    "position_closed": true,
//	    "api_error": true,
//	    "conditional_trigger": true,
//	    "second_leg_fail": true
//	  },
//	  "updated_at": "2025-12-01T12:00:00Z"
//	}
func (h *SettingsHandler) GetSettings(w http.ResponseWriter, r *http.Request) {
	userID := middleware.UserIDFromContext(r.Context())

	settings, err := h.settingsService.GetSettings(userID)
	if err != nil {
		h.respondWithError(w, http.StatusInternalServerError, "failed to get settings", err.Error())
		return
	}

	h.respondWithJSON(w, http.StatusOK, settings)
}

// UpdateSettings применяет частичное обновление настроек пользователя.
// PATCH /api/v1/settings
//
// Request Body (все поля опциональны):
//
//	{
//	  "min_net_return": "0.002",
//	  "max_concurrent_trades": 5,
//	  "notification_prefs": {"opportunity_found": false},
//	  "clear_max_concurrent_trades": false
//	}
//
// Response 400 Bad Request:
//
//	{"error": "validation error", "details": "min_net_return cannot be negative"}
func (h *SettingsHandler) UpdateSettings(w http.ResponseWriter, r *http.Request) {
	userID := middleware.UserIDFromContext(r.Context())

	var req UpdateSettingsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.respondWithError(w, http.StatusBadRequest, "invalid request body", err.Error())
		return
	}

	updateReq := &service.UpdateSettingsRequest{
		MinNetReturn:             req.MinNetReturn,
		MaxConcurrentTrades:      req.MaxConcurrentTrades,
		ClearMaxConcurrentTrades: req.ClearMaxConcurrentTrades,
	}

	if req.NotificationPrefs != nil {
		current, err := h.settingsService.GetSettings(userID)
		if err != nil {
			h.respondWithError(w, http.StatusInternalServerError, "failed to get current settings", err.Error())
			return
		}
		prefs := current.NotificationPrefs
		applyNotificationPrefsUpdate(&prefs, req.NotificationPrefs)
		updateReq.NotificationPrefs = &prefs
	}

	updatedSettings, err := h.settingsService.UpdateSettings(userID, updateReq)
	if err != nil {
		switch {
		case errors.Is(err, service.ErrInvalidMinNetReturn), errors.Is(err, service.ErrInvalidMaxConcurrentTrades):
			h.respondWithError(w, http.StatusBadRequest, "validation error", err.Error())
		default:
			h.respondWithError(w, http.StatusInternalServerError, "failed to update settings", err.Error())
		}
		return
	}

	h.respondWithJSON(w, http.StatusOK, updatedSettings)
}

func applyNotificationPrefsUpdate(prefs *models.NotificationPreferences, update *NotificationPrefsUpdate) {
	if update.OpportunityFound != nil {
		prefs.OpportunityFound = *update.OpportunityFound
	}
	if update.OpportunityEnded != nil {
		prefs.OpportunityEnded = *update.OpportunityEnded
	}
	if update.PositionOpened != nil {
		prefs.PositionOpened = *update.PositionOpened
	}
	if update.PositionClosed != nil {
		prefs.PositionClosed = *update.PositionClosed
	}
	if update.APIError != nil {
		prefs.APIError = *update.APIError
	}
	if update.ConditionalTrigger != nil {
		prefs.ConditionalTrigger = *update.ConditionalTrigger
	}
	if update.SecondLegFail != nil {
		prefs.SecondLegFail = *update.SecondLegFail
	}
}

func (h *SettingsHandler) respondWithJSON(w http.ResponseWriter, code int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(payload)
}

func (h *SettingsHandler) respondWithError(w http.ResponseWriter, code int, message, details string) {
	h.respondWithJSON(w, code, ErrorResponse{Error: message, Details: details})
}
