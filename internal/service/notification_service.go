package service

import (
	"fundingarb/internal/models"
)

// NotificationBroadcaster - интерфейс для отправки уведомлений через WebSocket
type NotificationBroadcaster interface {
	BroadcastNotification(notification *models.Notification)
}

// NotificationService создает и раздает уведомления о событиях жизненного цикла
// позиций и возможностей, уважая предпочтения пользователя по каждому типу.
type NotificationService struct {
	notificationRepo NotificationRepositoryInterface
	settingsRepo     SettingsRepositoryInterface
	wsHub            NotificationBroadcaster
}

// NewNotificationService создает новый экземпляр NotificationService.
func NewNotificationService(notificationRepo NotificationRepositoryInterface, settingsRepo SettingsRepositoryInterface) *NotificationService {
	return &NotificationService{
		notificationRepo: notificationRepo,
		settingsRepo:     settingsRepo,
	}
}

// SetWebSocketHub устанавливает WebSocket hub для broadcast уведомлений.
func (s *NotificationService) SetWebSocketHub(hub NotificationBroadcaster) {
	s.wsHub = hub
}

// Notify создает уведомление, если пользователь не отключил этот тип в
// настройках, сохраняет его и отправляет broadcast через WebSocket.
func (s *NotificationService) Notify(userID, notifType, severity, message string, positionID *string, meta map[string]interface{}) (*models.Notification, error) {
	if s.settingsRepo != nil {
		settings, err := s.settingsRepo.Get(userID)
		if err == nil && !notificationTypeEnabled(settings.NotificationPrefs, notifType) {
			return nil, nil
		}
	}

	notif := &models.Notification{
		Type:       notifType,
		Severity:   severity,
		UserID:     userID,
		PositionID: positionID,
		Message:    message,
		Meta:       meta,
	}

	if err := s.notificationRepo.Create(notif); err != nil {
		return nil, err
	}

	if s.wsHub != nil {
		s.wsHub.BroadcastNotification(notif)
	}

	return notif, nil
}

// GetRecent возвращает последние N уведомлений пользователя.
func (s *NotificationService) GetRecent(userID string, limit int) ([]*models.Notification, error) {
	if limit <= 0 {
		limit = 50
	}
	return s.notificationRepo.GetRecent(userID, limit)
}

// GetNotifications возвращает уведомления пользователя, опционально
// отфильтрованные по типам. Пустой список типов означает "без фильтра".
func (s *NotificationService) GetNotifications(userID string, types []string, limit int) ([]*models.Notification, error) {
	if limit <= 0 {
		limit = 100
	}
	if len(types) == 0 {
		return s.notificationRepo.GetRecent(userID, limit)
	}
	return s.notificationRepo.GetByTypes(userID, types, limit)
}

// ClearNotifications очищает журнал уведомлений пользователя.
func (s *NotificationService) ClearNotifications(userID string) error {
	return s.notificationRepo.DeleteAll(userID)
}

// NotifyConditionalOrderFailure реализует bot.Notifier: экстренное уведомление,
// когда закрытие противоположной ноги после срабатывания SL/TP не удалось и
// позиция осталась в PARTIAL без автоматического восстановления.
func (s *NotificationService) NotifyConditionalOrderFailure(position *models.Position, side, reason string) {
	positionID := position.ID
	_, _ = s.Notify(
		position.UserID,
		models.NotificationTypeSecondLegFail,
		models.SeverityError,
		"failed to close "+side+" leg after conditional order trigger: "+reason,
		&positionID,
		map[string]interface{}{"position_id": position.ID, "side": side},
	)
}

func notificationTypeEnabled(prefs models.NotificationPreferences, notifType string) bool {
	switch notifType {
	case models.NotificationTypeOpportunityFound:
		return prefs.OpportunityFound
	case models.NotificationTypeOpportunityEnded:
		return prefs.OpportunityEnded
	case models.NotificationTypePositionOpened, models.NotificationTypePositionPartial:
		return prefs.PositionOpened
	case models.NotificationTypePositionClosed:
		return prefs.PositionClosed
	case models.NotificationTypeAPIError:
		return prefs.APIError
	case models.NotificationTypeConditionalTrigger:
		return prefs.ConditionalTrigger
	case models.NotificationTypeSecondLegFail:
		return prefs.SecondLegFail
	default:
		return true
	}
}
