package repository

import (
	"database/sql"
	"encoding/json"
	"time"

	"fundingarb/internal/models"

	"github.com/lib/pq"
)

// NotificationRepository - работа с таблицей notifications, журналом событий
// жизненного цикла позиций и возможностей, показываемым на фронтенде.
type NotificationRepository struct {
	db *sql.DB
}

// NewNotificationRepository создает новый экземпляр репозитория
func NewNotificationRepository(db *sql.DB) *NotificationRepository {
	return &NotificationRepository{db: db}
}

// Create сохраняет новое уведомление.
func (r *NotificationRepository) Create(n *models.Notification) error {
	meta, err := json.Marshal(n.Meta)
	if err != nil {
		return err
	}

	n.Timestamp = time.Now()

	query := `
		INSERT INTO notifications (type, severity, user_id, position_id, message, meta, timestamp)
		VALUES ($1,$2,$3,$4,$5,$6,$7)
		RETURNING id`

	return r.db.QueryRow(
		query, n.Type, n.Severity, n.UserID, n.PositionID, n.Message, meta, n.Timestamp,
	).Scan(&n.ID)
}

// GetRecent возвращает последние N уведомлений пользователя.
func (r *NotificationRepository) GetRecent(userID string, limit int) ([]*models.Notification, error) {
	query := `
		SELECT id, type, severity, user_id, position_id, message, meta, timestamp
		FROM notifications
		WHERE user_id = $1
		ORDER BY timestamp DESC
		LIMIT $2`

	rows, err := r.db.Query(query, userID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return scanNotifications(rows)
}

// GetByTypes возвращает уведомления пользователя заданных типов.
func (r *NotificationRepository) GetByTypes(userID string, types []string, limit int) ([]*models.Notification, error) {
	query := `
		SELECT id, type, severity, user_id, position_id, message, meta, timestamp
		FROM notifications
		WHERE user_id = $1 AND type = ANY($2)
		ORDER BY timestamp DESC
		LIMIT $3`

	rows, err := r.db.Query(query, userID, pq.Array(types), limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return scanNotifications(rows)
}

// DeleteAll очищает журнал уведомлений пользователя.
func (r *NotificationRepository) DeleteAll(userID string) error {
	_, err := r.db.Exec(`DELETE FROM notifications WHERE user_id = $1`, userID)
	return err
}

// DeleteOlderThan удаляет уведомления старше заданного момента (автоочистка).
func (r *NotificationRepository) DeleteOlderThan(cutoff time.Time) (int64, error) {
	result, err := r.db.Exec(`DELETE FROM notifications WHERE timestamp < $1`, cutoff)
	if err != nil {
		return 0, err
	}
	return result.RowsAffected()
}

func scanNotifications(rows *sql.Rows) ([]*models.Notification, error) {
	var notifications []*models.Notification
	for rows.Next() {
		n := &models.Notification{}
		var meta []byte
		if err := rows.Scan(&n.ID, &n.Type, &n.Severity, &n.UserID, &n.PositionID, &n.Message, &meta, &n.Timestamp); err != nil {
			return nil, err
		}
		if len(meta) > 0 {
			if err := json.Unmarshal(meta, &n.Meta); err != nil {
				return nil, err
			}
		}
		notifications = append(notifications, n)
	}
	return notifications, rows.Err()
}
