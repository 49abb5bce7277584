package handlers

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"

	"fundingarb/internal/repository"
	"fundingarb/internal/service"
)

func newNotificationHandlerForTest(t *testing.T) (*NotificationHandler, sqlmock.Sqlmock) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("failed to create mock: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	notifRepo := repository.NewNotificationRepository(db)
	settingsRepo := repository.NewSettingsRepository(db)
	svc := service.NewNotificationService(notifRepo, settingsRepo)
	return NewNotificationHandler(svc), mock
}

func TestNotificationHandler_GetNotifications(t *testing.T) {
	t.Run("returns empty list when no notifications", func(t *testing.T) {
		handler, mock := newNotificationHandlerForTest(t)

		mock.ExpectQuery(`SELECT .+ FROM notifications WHERE user_id = \$1`).
			WithArgs("user-1", 100).
			WillReturnRows(sqlmock.NewRows([]string{"id", "type", "severity", "user_id", "position_id", "message", "meta", "timestamp"}))

		req := authedRequest(http.MethodGet, "/api/v1/notifications", nil)
		w := httptest.NewRecorder()

		handler.GetNotifications(w, req)

		if w.Code != http.StatusOK {
			t.Fatalf("expected status %d, got %d: %s", http.StatusOK, w.Code, w.Body.String())
		}

		var response GetNotificationsResponse
		if err := json.NewDecoder(w.Body).Decode(&response); err != nil {
			t.Fatalf("failed to decode response: %v", err)
		}
		if response.Total != 0 {
			t.Errorf("expected total 0, got %d", response.Total)
		}
	})

	t.Run("returns existing notifications", func(t *testing.T) {
		handler, mock := newNotificationHandlerForTest(t)

		now := time.Now()
		rows := sqlmock.NewRows([]string{"id", "type", "severity", "user_id", "position_id", "message", "meta", "timestamp"}).
			AddRow(1, "position_opened", "info", "user-1", nil, "opened BTCUSDT", []byte("{}"), now).
			AddRow(2, "api_error", "error", "user-1", nil, "rate limited", []byte("{}"), now)
		mock.ExpectQuery(`SELECT .+ FROM notifications WHERE user_id = \$1`).
			WithArgs("user-1", 100).
			WillReturnRows(rows)

		req := authedRequest(http.MethodGet, "/api/v1/notifications", nil)
		w := httptest.NewRecorder()

		handler.GetNotifications(w, req)

		var response GetNotificationsResponse
		if err := json.NewDecoder(w.Body).Decode(&response); err != nil {
			t.Fatalf("failed to decode response: %v", err)
		}
		if response.Total != 2 {
			t.Errorf("expected total 2, got %d", response.Total)
		}
	})

	t.Run("filters by types", func(t *testing.T) {
		handler, mock := newNotificationHandlerForTest(t)

		rows := sqlmock.NewRows([]string{"id", "type", "severity", "user_id", "position_id", "message", "meta", "timestamp"}).
			AddRow(1, "position_opened", "info", "user-1", nil, "opened BTCUSDT", []byte("{}"), time.Now())
		mock.ExpectQuery(`SELECT .+ FROM notifications WHERE user_id = \$1 AND type = ANY\(\$2\)`).
			WithArgs("user-1", sqlmock.AnyArg(), 100).
			WillReturnRows(rows)

		req := authedRequest(http.MethodGet, "/api/v1/notifications?types=position_opened,position_closed", nil)
		w := httptest.NewRecorder()

		handler.GetNotifications(w, req)

		if w.Code != http.StatusOK {
			t.Fatalf("expected status %d, got %d: %s", http.StatusOK, w.Code, w.Body.String())
		}

		var response GetNotificationsResponse
		if err := json.NewDecoder(w.Body).Decode(&response); err != nil {
			t.Fatalf("failed to decode response: %v", err)
		}
		if response.Total != 1 {
			t.Errorf("expected total 1, got %d", response.Total)
		}
	})

	t.Run("respects limit parameter", func(t *testing.T) {
		handler, mock := newNotificationHandlerForTest(t)

		mock.ExpectQuery(`SELECT .+ FROM notifications WHERE user_id = \$1`).
			WithArgs("user-1", 5).
			WillReturnRows(sqlmock.NewRows([]string{"id", "type", "severity", "user_id", "position_id", "message", "meta", "timestamp"}))

		req := authedRequest(http.MethodGet, "/api/v1/notifications?limit=5", nil)
		w := httptest.NewRecorder()

		handler.GetNotifications(w, req)

		if w.Code != http.StatusOK {
			t.Fatalf("expected status %d, got %d: %s", http.StatusOK, w.Code, w.Body.String())
		}
	})
}

func TestNotificationHandler_ClearNotifications(t *testing.T) {
	t.Run("successfully clears notifications", func(t *testing.T) {
		handler, mock := newNotificationHandlerForTest(t)

		mock.ExpectExec(`DELETE FROM notifications WHERE user_id = \$1`).
			WithArgs("user-1").
			WillReturnResult(sqlmock.NewResult(0, 2))

		req := authedRequest(http.MethodDelete, "/api/v1/notifications", nil)
		w := httptest.NewRecorder()

		handler.ClearNotifications(w, req)

		if w.Code != http.StatusOK {
			t.Fatalf("expected status %d, got %d: %s", http.StatusOK, w.Code, w.Body.String())
		}

		var response SuccessResponse
		if err := json.NewDecoder(w.Body).Decode(&response); err != nil {
			t.Fatalf("failed to decode response: %v", err)
		}
		if response.Message == "" {
			t.Error("expected non-empty message")
		}
	})
}
