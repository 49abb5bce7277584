package service

import (
	"errors"
	"testing"

	"github.com/shopspring/decimal"

	"fundingarb/internal/models"
	"fundingarb/internal/repository"
)

// TestableSettingsService - версия сервиса для тестирования с mock-репозиторием
type TestableSettingsService struct {
	settingsRepo SettingsRepositoryInterface
}

func newTestableSettingsService(repo SettingsRepositoryInterface) *TestableSettingsService {
	return &TestableSettingsService{settingsRepo: repo}
}

func (s *TestableSettingsService) GetSettings(userID string) (*models.UserSettings, error) {
	settings, err := s.settingsRepo.Get(userID)
	if err != nil {
		return nil, err
	}
	return settings, nil
}

func (s *TestableSettingsService) UpdateSettings(userID string, req *UpdateSettingsRequest) (*models.UserSettings, error) {
	settings, err := s.GetSettings(userID)
	if err != nil {
		return nil, err
	}

	if req.MinNetReturn != nil {
		if req.MinNetReturn.IsNegative() {
			return nil, ErrInvalidMinNetReturn
		}
		settings.MinNetReturn = *req.MinNetReturn
	}

	if req.ClearMaxConcurrentTrades {
		settings.MaxConcurrentTrades = nil
	} else if req.MaxConcurrentTrades != nil {
		if *req.MaxConcurrentTrades < 1 {
			return nil, ErrInvalidMaxConcurrentTrades
		}
		settings.MaxConcurrentTrades = req.MaxConcurrentTrades
	}

	if req.NotificationPrefs != nil {
		settings.NotificationPrefs = *req.NotificationPrefs
	}

	if err := s.settingsRepo.Upsert(settings); err != nil {
		return nil, err
	}
	return settings, nil
}

func (s *TestableSettingsService) UpdateNotificationPrefs(userID string, prefs models.NotificationPreferences) error {
	return s.settingsRepo.UpdateNotificationPrefs(userID, prefs)
}

// ============ ТЕСТЫ ============

func TestSettingsService_GetSettings(t *testing.T) {
	tests := []struct {
		name    string
		setup   func(*MockSettingsRepository)
		wantErr bool
	}{
		{name: "успешное получение настроек"},
		{
			name: "ошибка базы данных",
			setup: func(m *MockSettingsRepository) {
				m.getErr = errors.New("db error")
			},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mockRepo := NewMockSettingsRepository()
			if tt.setup != nil {
				tt.setup(mockRepo)
			}

			svc := newTestableSettingsService(mockRepo)
			settings, err := svc.GetSettings("user-1")

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

			if settings == nil {
				t.Error("expected settings, got nil")
			}
		})
	}
}

func TestSettingsService_UpdateSettings(t *testing.T) {
	minReturn := decimal.NewFromFloat(0.001)
	negativeReturn := decimal.NewFromFloat(-0.001)

	tests := []struct {
		name    string
		req     *UpdateSettingsRequest
		setup   func(*MockSettingsRepository)
		check   func(*testing.T, *models.UserSettings)
		wantErr error
	}{
		{
			name: "обновление min_net_return",
			req:  &UpdateSettingsRequest{MinNetReturn: &minReturn},
			check: func(t *testing.T, s *models.UserSettings) {
				if !s.MinNetReturn.Equal(minReturn) {
					t.Errorf("expected MinNetReturn %s, got %s", minReturn, s.MinNetReturn)
				}
			},
		},
		{
			name: "обновление max_concurrent_trades",
			req:  &UpdateSettingsRequest{MaxConcurrentTrades: intPtr(5)},
			check: func(t *testing.T, s *models.UserSettings) {
				if s.MaxConcurrentTrades == nil || *s.MaxConcurrentTrades != 5 {
					t.Error("expected MaxConcurrentTrades to be 5")
				}
			},
		},
		{
			name: "сброс max_concurrent_trades",
			req:  &UpdateSettingsRequest{ClearMaxConcurrentTrades: true},
			setup: func(m *MockSettingsRepository) {
				m.settings.MaxConcurrentTrades = intPtr(10)
			},
			check: func(t *testing.T, s *models.UserSettings) {
				if s.MaxConcurrentTrades != nil {
					t.Error("expected MaxConcurrentTrades to be nil")
				}
			},
		},
		{
			name: "обновление notification_prefs",
			req: &UpdateSettingsRequest{
				NotificationPrefs: &models.NotificationPreferences{
					OpportunityFound: false,
					PositionClosed:   false,
				},
			},
			check: func(t *testing.T, s *models.UserSettings) {
				if s.NotificationPrefs.OpportunityFound {
					t.Error("expected OpportunityFound to be false")
				}
				if s.NotificationPrefs.PositionClosed {
					t.Error("expected PositionClosed to be false")
				}
			},
		},
		{
			name:    "невалидный max_concurrent_trades (0)",
			req:     &UpdateSettingsRequest{MaxConcurrentTrades: intPtr(0)},
			wantErr: ErrInvalidMaxConcurrentTrades,
		},
		{
			name:    "невалидный min_net_return (отрицательный)",
			req:     &UpdateSettingsRequest{MinNetReturn: &negativeReturn},
			wantErr: ErrInvalidMinNetReturn,
		},
		{
			name: "ошибка получения настроек",
			req:  &UpdateSettingsRequest{},
			setup: func(m *MockSettingsRepository) {
				m.getErr = errors.New("db error")
			},
			wantErr: errors.New("db error"),
		},
		{
			name: "ошибка обновления",
			req:  &UpdateSettingsRequest{MaxConcurrentTrades: intPtr(3)},
			setup: func(m *MockSettingsRepository) {
				m.updateErr = errors.New("update error")
			},
			wantErr: errors.New("update error"),
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mockRepo := NewMockSettingsRepository()
			if tt.setup != nil {
				tt.setup(mockRepo)
			}

			svc := newTestableSettingsService(mockRepo)
			settings, err := svc.UpdateSettings("user-1", tt.req)

			if tt.wantErr != nil {
				if err == nil {
					t.Errorf("expected error %v, got nil", tt.wantErr)
					return
				}
				if tt.wantErr.Error() != err.Error() {
					t.Errorf("expected error %v, got %v", tt.wantErr, err)
				}
				return
			}

			if err != nil {
				t.Errorf("unexpected error: %v", err)
				return
			}

			if tt.check != nil {
				tt.check(t, settings)
			}
		})
	}
}

func TestSettingsService_UpdateNotificationPrefs(t *testing.T) {
	tests := []struct {
		name    string
		prefs   models.NotificationPreferences
		setup   func(*MockSettingsRepository)
		wantErr bool
	}{
		{
			name: "успешное обновление",
			prefs: models.NotificationPreferences{
				OpportunityFound: false,
				SecondLegFail:    true,
			},
		},
		{
			name: "все уведомления включены",
			prefs: models.NotificationPreferences{
				OpportunityFound:   true,
				OpportunityEnded:   true,
				PositionOpened:     true,
				PositionClosed:     true,
				APIError:           true,
				ConditionalTrigger: true,
				SecondLegFail:      true,
			},
		},
		{
			name:  "ошибка обновления",
			prefs: models.NotificationPreferences{},
			setup: func(m *MockSettingsRepository) {
				m.updateErr = errors.New("update error")
			},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mockRepo := NewMockSettingsRepository()
			if tt.setup != nil {
				tt.setup(mockRepo)
			}

			svc := newTestableSettingsService(mockRepo)
			err := svc.UpdateNotificationPrefs("user-1", tt.prefs)

			if tt.wantErr {
				if err == nil {
					t.Error("expected error, got nil")
				}
				return
			}

			if err != nil {
				t.Errorf("unexpected error: %v", err)
			}
		})
	}
}

func TestSettingsService_DefaultValues(t *testing.T) {
	mockRepo := NewMockSettingsRepository()
	mockRepo.getErr = repository.ErrSettingsNotFound
	svc := NewSettingsService(mockRepo)

	settings, err := svc.GetSettings("user-1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if settings.MaxConcurrentTrades != nil {
		t.Error("default MaxConcurrentTrades should be nil")
	}

	prefs := settings.NotificationPrefs
	if !prefs.OpportunityFound || !prefs.OpportunityEnded || !prefs.PositionOpened ||
		!prefs.PositionClosed || !prefs.APIError || !prefs.ConditionalTrigger || !prefs.SecondLegFail {
		t.Error("all notification types should be enabled by default")
	}
}

func intPtr(i int) *int {
	return &i
}
