package models

import "time"

// Notification представляет уведомление о событии жизненного цикла позиции или возможности
type Notification struct {
	ID         int                    `json:"id" db:"id"`
	Timestamp  time.Time              `json:"timestamp" db:"timestamp"`
	Type       string                 `json:"type" db:"type"` // OPPORTUNITY_FOUND, OPPORTUNITY_ENDED, POSITION_OPENED, POSITION_PARTIAL, POSITION_CLOSED, CONDITIONAL_TRIGGER, API_ERROR, SECOND_LEG_FAIL
	Severity   string                 `json:"severity" db:"severity"`
	UserID     string                 `json:"user_id,omitempty" db:"user_id"`
	PositionID *string                `json:"position_id,omitempty" db:"position_id"`
	Message    string                 `json:"message" db:"message"`
	Meta       map[string]interface{} `json:"meta,omitempty" db:"meta"`
}

// Типы уведомлений
const (
	NotificationTypeOpportunityFound  = "OPPORTUNITY_FOUND"
	NotificationTypeOpportunityEnded  = "OPPORTUNITY_ENDED"
	NotificationTypePositionOpened    = "POSITION_OPENED"
	NotificationTypePositionPartial   = "POSITION_PARTIAL"
	NotificationTypePositionClosed    = "POSITION_CLOSED"
	NotificationTypeConditionalTrigger = "CONDITIONAL_TRIGGER"
	NotificationTypeAPIError          = "API_ERROR"
	NotificationTypeSecondLegFail     = "SECOND_LEG_FAIL"
)

// Уровни важности
const (
	SeverityInfo  = "info"
	SeverityWarn  = "warn"
	SeverityError = "error"
)
