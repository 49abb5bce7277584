package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"fundingarb/internal/api/middleware"
	"fundingarb/internal/exchange"
	"fundingarb/internal/models"
	"fundingarb/internal/service"

	"github.com/gorilla/mux"
)

// ConnectExchangeRequest - тело запроса для подключения биржи
type ConnectExchangeRequest struct {
	Environment string `json:"environment,omitempty"` // mainnet (default) или testnet
	APIKey      string `json:"api_key"`
	SecretKey   string `json:"secret_key"`
	Passphrase  string `json:"passphrase,omitempty"` // для OKX
}

// ExchangeResponse - ответ с информацией об учетной записи биржи
type ExchangeResponse struct {
	Exchange    string  `json:"exchange"`
	Environment string  `json:"environment"`
	Connected   bool    `json:"connected"`
	Balance     float64 `json:"balance"`
	LastError   string  `json:"last_error,omitempty"`
}

// BalanceResponse - ответ с балансом биржи
type BalanceResponse struct {
	Exchange string  `json:"exchange"`
	Balance  float64 `json:"balance"`
	Currency string  `json:"currency"`
}

// MaxRequestBodySize ограничение размера тела запроса (1 MB)
const MaxRequestBodySize = 1 << 20 // 1 MB

// ExchangeHandler отвечает за управление биржевыми учетными записями пользователя
//
// Endpoints:
// - POST /api/v1/exchanges/{name}/connect - подключение биржи
// - DELETE /api/v1/exchanges/{name}/connect - отключение биржи
// - GET /api/v1/exchanges - список учетных записей пользователя
// - GET /api/v1/exchanges/{name}/balance - обновление баланса биржи
type ExchangeHandler struct {
	exchangeService *service.ExchangeService
}

// NewExchangeHandler создает новый ExchangeHandler
func NewExchangeHandler(exchangeService *service.ExchangeService) *ExchangeHandler {
	return &ExchangeHandler{exchangeService: exchangeService}
}

func accountEnvironment(raw string) models.CredentialEnvironment {
	if strings.ToLower(raw) == string(models.EnvironmentTestnet) {
		return models.EnvironmentTestnet
	}
	return models.EnvironmentMainnet
}

// ConnectExchange подключает биржу пользователя с указанными API ключами
// POST /api/v1/exchanges/{name}/connect
//
// Тело запроса:
//
//	{
//	  "environment": "mainnet",
//	  "api_key": "your-api-key",
//	  "secret_key": "your-secret-key",
//	  "passphrase": "optional-passphrase" // для OKX
//	}
//
// Ответы:
// - 200 OK: биржа успешно подключена
// - 400 Bad Request: некорректные данные
// - 401 Unauthorized: неверные API ключи
// - 409 Conflict: биржа уже подключена
// - 502 Bad Gateway: тестовый запрос баланса не прошел
func (h *ExchangeHandler) ConnectExchange(w http.ResponseWriter, r *http.Request) {
	userID := middleware.UserIDFromContext(r.Context())

	vars := mux.Vars(r)
	exchangeName := strings.ToLower(vars["name"])

	if !exchange.IsSupported(exchangeName) {
		h.respondWithError(w, http.StatusBadRequest, "Unsupported exchange", "Supported exchanges: "+strings.Join(exchange.SupportedExchanges, ", "))
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, MaxRequestBodySize)
	var req ConnectExchangeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.respondWithError(w, http.StatusBadRequest, "Invalid request body", err.Error())
		return
	}

	if req.APIKey == "" {
		h.respondWithError(w, http.StatusBadRequest, "API key is required", "")
		return
	}
	if req.SecretKey == "" {
		h.respondWithError(w, http.StatusBadRequest, "Secret key is required", "")
		return
	}
	if exchangeName == "okx" && req.Passphrase == "" {
		h.respondWithError(w, http.StatusBadRequest, "Passphrase is required for OKX", "")
		return
	}

	env := accountEnvironment(req.Environment)

	account, err := h.exchangeService.ConnectExchange(r.Context(), userID, exchangeName, env, req.APIKey, req.SecretKey, req.Passphrase)
	if err != nil {
		switch {
		case errors.Is(err, service.ErrExchangeNotSupported):
			h.respondWithError(w, http.StatusBadRequest, "Exchange not supported", err.Error())
		case errors.Is(err, service.ErrExchangeAlreadyConnected):
			h.respondWithError(w, http.StatusConflict, "Exchange is already connected", "Disconnect first to change credentials")
		case errors.Is(err, service.ErrInvalidCredentials):
			h.respondWithError(w, http.StatusUnauthorized, "Invalid API credentials", err.Error())
		case errors.Is(err, service.ErrConnectionFailed):
			h.respondWithError(w, http.StatusBadGateway, "Failed to connect to exchange", err.Error())
		default:
			h.respondWithError(w, http.StatusInternalServerError, "Internal server error", err.Error())
		}
		return
	}

	h.respondWithJSON(w, http.StatusOK, ExchangeResponse{
		Exchange:    string(account.Exchange),
		Environment: string(account.Environment),
		Connected:   account.Connected,
		Balance:     account.Balance,
		LastError:   account.LastError,
	})
}

// DisconnectExchange отключает биржу пользователя (закрывает живое соединение,
// оставляет зашифрованные ключи для повторного подключения)
// DELETE /api/v1/exchanges/{name}/connect
//
// Ответы:
// - 200 OK: биржа отключена
// - 400 Bad Request: биржа не поддерживается
// - 404 Not Found: биржа не подключена
func (h *ExchangeHandler) DisconnectExchange(w http.ResponseWriter, r *http.Request) {
	userID := middleware.UserIDFromContext(r.Context())

	vars := mux.Vars(r)
	exchangeName := strings.ToLower(vars["name"])

	if !exchange.IsSupported(exchangeName) {
		h.respondWithError(w, http.StatusBadRequest, "Unsupported exchange", "Supported exchanges: "+strings.Join(exchange.SupportedExchanges, ", "))
		return
	}

	env := accountEnvironment(r.URL.Query().Get("environment"))

	err := h.exchangeService.DisconnectExchange(r.Context(), userID, exchangeName, env)
	if err != nil {
		switch {
		case errors.Is(err, service.ErrExchangeNotConnected):
			h.respondWithError(w, http.StatusNotFound, "Exchange is not connected", "")
		default:
			h.respondWithError(w, http.StatusInternalServerError, "Internal server error", err.Error())
		}
		return
	}

	h.respondWithJSON(w, http.StatusOK, SuccessResponse{Message: "Exchange disconnected successfully"})
}

// GetExchanges возвращает список учетных записей бирж текущего пользователя
// GET /api/v1/exchanges
//
// Ответ:
//
//	[
//	  {"exchange": "binance", "environment": "mainnet", "connected": true, "balance": 1500.00},
//	  ...
//	]
func (h *ExchangeHandler) GetExchanges(w http.ResponseWriter, r *http.Request) {
	userID := middleware.UserIDFromContext(r.Context())

	accounts, err := h.exchangeService.ListAccounts(userID)
	if err != nil {
		h.respondWithError(w, http.StatusInternalServerError, "Failed to get exchanges", err.Error())
		return
	}

	response := make([]ExchangeResponse, 0, len(accounts))
	for _, account := range accounts {
		response = append(response, ExchangeResponse{
			Exchange:    string(account.Exchange),
			Environment: string(account.Environment),
			Connected:   account.Connected,
			Balance:     account.Balance,
			LastError:   account.LastError,
		})
	}

	h.respondWithJSON(w, http.StatusOK, response)
}

// GetExchangeBalance запрашивает через API и возвращает актуальный баланс биржи
// GET /api/v1/exchanges/{name}/balance
//
// Ответ:
//
//	{"exchange": "binance", "balance": 1500.00, "currency": "USDT"}
func (h *ExchangeHandler) GetExchangeBalance(w http.ResponseWriter, r *http.Request) {
	userID := middleware.UserIDFromContext(r.Context())

	vars := mux.Vars(r)
	exchangeName := strings.ToLower(vars["name"])

	if !exchange.IsSupported(exchangeName) {
		h.respondWithError(w, http.StatusBadRequest, "Unsupported exchange", "Supported exchanges: "+strings.Join(exchange.SupportedExchanges, ", "))
		return
	}

	env := accountEnvironment(r.URL.Query().Get("environment"))

	accounts, err := h.exchangeService.ListAccounts(userID)
	if err != nil {
		h.respondWithError(w, http.StatusInternalServerError, "Failed to get exchanges", err.Error())
		return
	}
	var account *models.ExchangeAccount
	for _, a := range accounts {
		if string(a.Exchange) == exchangeName && a.Environment == env {
			account = a
			break
		}
	}
	if account == nil {
		h.respondWithError(w, http.StatusNotFound, "Exchange is not connected", "Connect the exchange first")
		return
	}

	balance, err := h.exchangeService.UpdateBalance(r.Context(), account)
	if err != nil {
		switch {
		case errors.Is(err, service.ErrExchangeNotConnected):
			h.respondWithError(w, http.StatusNotFound, "Exchange is not connected", "Connect the exchange first")
		default:
			h.respondWithError(w, http.StatusBadGateway, "Failed to get balance from exchange", err.Error())
		}
		return
	}

	h.respondWithJSON(w, http.StatusOK, BalanceResponse{
		Exchange: exchangeName,
		Balance:  balance,
		Currency: "USDT",
	})
}

// respondWithJSON отправляет JSON ответ
func (h *ExchangeHandler) respondWithJSON(w http.ResponseWriter, code int, payload interface{}) {
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

// respondWithError отправляет JSON ответ с ошибкой
func (h *ExchangeHandler) respondWithError(w http.ResponseWriter, code int, message string, details string) {
	h.respondWithJSON(w, code, ErrorResponse{
		Error:   message,
		Details: details,
	})
}
