package handlers

import (
	"encoding/json"
	"net/http"

	"fundingarb/internal/service"
)

// MonitorStatusResponse - состояние Conditional-Order Monitor-а
type MonitorStatusResponse struct {
	Initialized bool  `json:"initialized"`
	IsRunning   bool  `json:"is_running"`
	IntervalMs  int64 `json:"interval_ms"`
}

// WSConnectionStatusResponse - состояние одного WS-подключения к бирже
type WSConnectionStatusResponse struct {
	Exchange    string `json:"exchange"`
	State       string `json:"state"`
	IsConnected bool   `json:"is_connected"`
	RetryCount  int    `json:"retry_count"`
}

// MonitorHandler отдает состояние процессов движка, не привязанных к
// конкретному пользователю: Conditional-Order Monitor и WS-подключения к
// биржам.
//
// Endpoints:
// - GET /monitor/status - состояние Conditional-Order Monitor-а
// - GET /ws-status - состояние WS-подключений по биржам
type MonitorHandler struct {
	arbitrageService *service.ArbitrageService
}

// NewMonitorHandler создает новый MonitorHandler
func NewMonitorHandler(arbitrageService *service.ArbitrageService) *MonitorHandler {
	return &MonitorHandler{arbitrageService: arbitrageService}
}

// Status возвращает состояние Conditional-Order Monitor-а.
// GET /monitor/status
func (h *MonitorHandler) Status(w http.ResponseWriter, r *http.Request) {
	status := h.arbitrageService.MonitorStatus()
	h.respondWithJSON(w, http.StatusOK, MonitorStatusResponse{
		Initialized: status.Initialized,
		IsRunning:   status.IsRunning,
		IntervalMs:  status.IntervalMs,
	})
}

// WSStatus возвращает состояние WS-подключений по каждой бирже.
// GET /ws-status
func (h *MonitorHandler) WSStatus(w http.ResponseWriter, r *http.Request) {
	statuses := h.arbitrageService.WSStatus()

	response := make([]WSConnectionStatusResponse, 0, len(statuses))
	for _, s := range statuses {
		response = append(response, WSConnectionStatusResponse{
			Exchange:    string(s.Exchange),
			State:       s.State,
			IsConnected: s.IsConnected,
			RetryCount:  s.RetryCount,
		})
	}

	h.respondWithJSON(w, http.StatusOK, response)
}

func (h *MonitorHandler) respondWithJSON(w http.ResponseWriter, code int, payload interface{}) {
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
