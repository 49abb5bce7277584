package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// UserSettings представляет пользовательские настройки арбитражного движка.
// Поле ConsiderFunding в исходной версии было задумано как задел под учет
// фандинга в будущем - здесь фандинг стал основным критерием, поэтому поле
// заменяется MinNetReturn, прямым порогом отбора возможностей.
type UserSettings struct {
	UserID              string                  `json:"user_id" db:"user_id"`
	MinNetReturn        decimal.Decimal         `json:"min_net_return" db:"min_net_return"` // минимальный net return для авто-входа
	MaxConcurrentTrades *int                    `json:"max_concurrent_trades" db:"max_concurrent_trades"`
	NotificationPrefs   NotificationPreferences `json:"notification_prefs" db:"notification_prefs"`
	UpdatedAt           time.Time               `json:"updated_at" db:"updated_at"`
}

// NotificationPreferences представляет настройки уведомлений
type NotificationPreferences struct {
	OpportunityFound  bool `json:"opportunity_found"`
	OpportunityEnded  bool `json:"opportunity_ended"`
	PositionOpened    bool `json:"position_opened"`
	PositionClosed    bool `json:"position_closed"`
	APIError          bool `json:"api_error"`
	ConditionalTrigger bool `json:"conditional_trigger"`
	SecondLegFail     bool `json:"second_leg_fail"`
}
