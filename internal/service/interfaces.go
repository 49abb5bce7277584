package service

import (
	"time"

	"fundingarb/internal/models"
	"fundingarb/internal/repository"
)

// BlacklistRepositoryInterface определяет интерфейс репозитория черного списка
type BlacklistRepositoryInterface interface {
	Create(entry *models.BlacklistEntry) error
	GetAll() ([]*models.BlacklistEntry, error)
	GetBySymbol(symbol string) (*models.BlacklistEntry, error)
	Delete(symbol string) error
	Exists(symbol string) (bool, error)
	UpdateReason(symbol, reason string) error
	Count() (int, error)
	DeleteAll() error
	Search(query string) ([]*models.BlacklistEntry, error)
}

// SettingsRepositoryInterface определяет интерфейс репозитория настроек пользователя
type SettingsRepositoryInterface interface {
	Get(userID string) (*models.UserSettings, error)
	Upsert(settings *models.UserSettings) error
	UpdateNotificationPrefs(userID string, prefs models.NotificationPreferences) error
}

// NotificationRepositoryInterface определяет интерфейс репозитория уведомлений
type NotificationRepositoryInterface interface {
	Create(notif *models.Notification) error
	GetRecent(userID string, limit int) ([]*models.Notification, error)
	GetByTypes(userID string, types []string, limit int) ([]*models.Notification, error)
	DeleteAll(userID string) error
	DeleteOlderThan(cutoff time.Time) (int64, error)
}

// StatsRepositoryInterface определяет интерфейс репозитория статистики
type StatsRepositoryInterface interface {
	GetStats(userID string) (*models.Stats, error)
	RecordConditionalTrigger(userID string, e models.ConditionalTriggerEvent) error
	RecordSecondLegFailure(userID string, e models.SecondLegFailureEvent) error
	ResetCounters(userID string) error
}

// Проверяем, что реальные репозитории реализуют интерфейсы
var _ BlacklistRepositoryInterface = (*repository.BlacklistRepository)(nil)
var _ SettingsRepositoryInterface = (*repository.SettingsRepository)(nil)
var _ NotificationRepositoryInterface = (*repository.NotificationRepository)(nil)
var _ StatsRepositoryInterface = (*repository.StatsRepository)(nil)
