package service

import (
	"errors"
	"testing"

	"fundingarb/internal/models"
)

func TestNotificationService_Notify(t *testing.T) {
	tests := []struct {
		name          string
		notifType     string
		setupSettings func(*MockSettingsRepository)
		setupNotif    func(*MockNotificationRepository)
		wantErr       bool
		wantSkipped   bool
	}{
		{
			name:      "успешное создание уведомления",
			notifType: models.NotificationTypeOpportunityFound,
		},
		{
			name:      "уведомление отключено в настройках",
			notifType: models.NotificationTypeOpportunityFound,
			setupSettings: func(m *MockSettingsRepository) {
				m.settings.NotificationPrefs.OpportunityFound = false
			},
			wantSkipped: true,
		},
		{
			name:      "уведомление о провале второй ноги",
			notifType: models.NotificationTypeSecondLegFail,
		},
		{
			name:      "ошибка создания",
			notifType: models.NotificationTypeOpportunityFound,
			setupNotif: func(m *MockNotificationRepository) {
				m.createErr = errors.New("create error")
			},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mockNotifRepo := NewMockNotificationRepository()
			mockSettingsRepo := NewMockSettingsRepository()
			mockWsHub := NewMockWebSocketBroadcaster()

			if tt.setupSettings != nil {
				tt.setupSettings(mockSettingsRepo)
			}
			if tt.setupNotif != nil {
				tt.setupNotif(mockNotifRepo)
			}

			svc := NewNotificationService(mockNotifRepo, mockSettingsRepo)
			svc.SetWebSocketHub(mockWsHub)

			notif, err := svc.Notify("user-1", tt.notifType, models.SeverityInfo, "тест", nil, nil)

			if tt.wantErr {
				if err == nil {
					t.Error("expected error, got nil")
				}
				return
			}

			if err != nil {
				t.Errorf("unexpected error: %v", err)
				return
			}

			if tt.wantSkipped {
				if notif != nil {
					t.Error("expected notification to be skipped")
				}
				return
			}

			if notif == nil {
				t.Error("expected notification, got nil")
			}
			if len(mockWsHub.notifications) == 0 {
				t.Error("expected broadcast, got none")
			}
		})
	}
}

func TestNotificationService_NotifyConditionalOrderFailure(t *testing.T) {
	mockNotifRepo := NewMockNotificationRepository()
	mockSettingsRepo := NewMockSettingsRepository()
	mockWsHub := NewMockWebSocketBroadcaster()

	svc := NewNotificationService(mockNotifRepo, mockSettingsRepo)
	svc.SetWebSocketHub(mockWsHub)

	position := &models.Position{ID: "pos-1", UserID: "user-1"}
	svc.NotifyConditionalOrderFailure(position, "short", "order not found")

	if len(mockWsHub.notifications) != 1 {
		t.Fatalf("expected 1 broadcast, got %d", len(mockWsHub.notifications))
	}
	if mockWsHub.notifications[0].Type != models.NotificationTypeSecondLegFail {
		t.Errorf("expected type %s, got %s", models.NotificationTypeSecondLegFail, mockWsHub.notifications[0].Type)
	}
}

func TestNotificationService_GetRecent(t *testing.T) {
	mockNotifRepo := NewMockNotificationRepository()
	mockNotifRepo.notifications = []*models.Notification{
		{ID: 1, UserID: "user-1", Type: models.NotificationTypeOpportunityFound},
		{ID: 2, UserID: "user-1", Type: models.NotificationTypePositionClosed},
		{ID: 3, UserID: "user-2", Type: models.NotificationTypeOpportunityFound},
	}

	svc := NewNotificationService(mockNotifRepo, NewMockSettingsRepository())
	got, err := svc.GetRecent("user-1", 0)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(got) != 2 {
		t.Errorf("expected 2 notifications, got %d", len(got))
	}
}

func TestNotificationService_ClearNotifications(t *testing.T) {
	mockNotifRepo := NewMockNotificationRepository()
	mockNotifRepo.notifications = []*models.Notification{
		{ID: 1, UserID: "user-1"},
		{ID: 2, UserID: "user-2"},
	}

	svc := NewNotificationService(mockNotifRepo, NewMockSettingsRepository())
	if err := svc.ClearNotifications("user-1"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(mockNotifRepo.notifications) != 1 {
		t.Errorf("expected 1 remaining notification, got %d", len(mockNotifRepo.notifications))
	}
}
