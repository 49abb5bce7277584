package service

import (
	"errors"

	"github.com/shopspring/decimal"

	"fundingarb/internal/models"
	"fundingarb/internal/repository"
)

// Ошибки сервиса настроек
var (
	ErrInvalidMaxConcurrentTrades = errors.New("max_concurrent_trades must be >= 1 or null")
	ErrInvalidMinNetReturn        = errors.New("min_net_return cannot be negative")
)

// SettingsService предоставляет бизнес-логику для управления пользовательскими
// настройками: минимальный net return для авто-входа, лимит одновременных
// позиций, предпочтения уведомлений.
type SettingsService struct {
	settingsRepo SettingsRepositoryInterface
}

// NewSettingsService создает новый экземпляр SettingsService.
func NewSettingsService(settingsRepo SettingsRepositoryInterface) *SettingsService {
	return &SettingsService{settingsRepo: settingsRepo}
}

// GetSettings возвращает настройки пользователя, либо дефолтные значения,
// если запись еще не создана.
func (s *SettingsService) GetSettings(userID string) (*models.UserSettings, error) {
	settings, err := s.settingsRepo.Get(userID)
	if errors.Is(err, repository.ErrSettingsNotFound) {
		return defaultSettings(userID), nil
	}
	return settings, err
}

func defaultSettings(userID string) *models.UserSettings {
	return &models.UserSettings{
		UserID:       userID,
		MinNetReturn: decimal.Zero,
		NotificationPrefs: models.NotificationPreferences{
			OpportunityFound:   true,
			OpportunityEnded:   true,
			PositionOpened:     true,
			PositionClosed:     true,
			APIError:           true,
			ConditionalTrigger: true,
			SecondLegFail:      true,
		},
	}
}

// UpdateSettingsRequest представляет запрос на обновление настроек.
// Все поля опциональны - обновляются только переданные.
type UpdateSettingsRequest struct {
	MinNetReturn             *decimal.Decimal         `json:"min_net_return,omitempty"`
	MaxConcurrentTrades      *int                     `json:"max_concurrent_trades,omitempty"`
	NotificationPrefs        *models.NotificationPreferences `json:"notification_prefs,omitempty"`
	ClearMaxConcurrentTrades bool                     `json:"clear_max_concurrent_trades,omitempty"`
}

// UpdateSettings применяет частичное обновление настроек пользователя,
// создавая запись с дефолтами, если она еще не существует.
func (s *SettingsService) UpdateSettings(userID string, req *UpdateSettingsRequest) (*models.UserSettings, error) {
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

// UpdateNotificationPrefs обновляет только настройки уведомлений пользователя.
func (s *SettingsService) UpdateNotificationPrefs(userID string, prefs models.NotificationPreferences) error {
	return s.settingsRepo.UpdateNotificationPrefs(userID, prefs)
}
