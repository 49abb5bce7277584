package repository

import (
	"database/sql"
	"encoding/json"
	"errors"
	"time"

	"fundingarb/internal/models"
)

// ErrSettingsNotFound возвращается, когда для пользователя еще нет записи настроек.
var ErrSettingsNotFound = errors.New("settings not found")

// SettingsRepository - работа с таблицей settings, персонализированными
// параметрами отбора возможностей и предпочтениями уведомлений.
type SettingsRepository struct {
	db *sql.DB
}

// NewSettingsRepository создает новый экземпляр репозитория
func NewSettingsRepository(db *sql.DB) *SettingsRepository {
	return &SettingsRepository{db: db}
}

// Get возвращает настройки пользователя.
func (r *SettingsRepository) Get(userID string) (*models.UserSettings, error) {
	query := `
		SELECT user_id, min_net_return, max_concurrent_trades, notification_prefs, updated_at
		FROM settings
		WHERE user_id = $1`

	s := &models.UserSettings{}
	var prefs []byte
	err := r.db.QueryRow(query, userID).Scan(&s.UserID, &s.MinNetReturn, &s.MaxConcurrentTrades, &prefs, &s.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrSettingsNotFound
	}
	if err != nil {
		return nil, err
	}
	if len(prefs) > 0 {
		if err := json.Unmarshal(prefs, &s.NotificationPrefs); err != nil {
			return nil, err
		}
	}
	return s, nil
}

// Upsert создает или обновляет настройки пользователя целиком.
func (r *SettingsRepository) Upsert(s *models.UserSettings) error {
	prefs, err := json.Marshal(s.NotificationPrefs)
	if err != nil {
		return err
	}

	s.UpdatedAt = time.Now()

	query := `
		INSERT INTO settings (user_id, min_net_return, max_concurrent_trades, notification_prefs, updated_at)
		VALUES ($1,$2,$3,$4,$5)
		ON CONFLICT (user_id) DO UPDATE SET
			min_net_return = EXCLUDED.min_net_return,
			max_concurrent_trades = EXCLUDED.max_concurrent_trades,
			notification_prefs = EXCLUDED.notification_prefs,
			updated_at = EXCLUDED.updated_at`

	_, err = r.db.Exec(query, s.UserID, s.MinNetReturn, s.MaxConcurrentTrades, prefs, s.UpdatedAt)
	return err
}

// UpdateNotificationPrefs обновляет только предпочтения уведомлений пользователя.
func (r *SettingsRepository) UpdateNotificationPrefs(userID string, prefs models.NotificationPreferences) error {
	data, err := json.Marshal(prefs)
	if err != nil {
		return err
	}

	query := `
		UPDATE settings
		SET notification_prefs = $1, updated_at = $2
		WHERE user_id = $3`

	result, err := r.db.Exec(query, data, time.Now(), userID)
	if err != nil {
		return err
	}
	return checkRowsAffected(result, ErrSettingsNotFound)
}
