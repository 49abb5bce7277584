package service

import (
	"time"

	"fundingarb/internal/models"
	"fundingarb/internal/repository"
)

// ============ Mock BlacklistRepository ============

type MockBlacklistRepository struct {
	entries   map[string]*models.BlacklistEntry
	createErr error
	getErr    error
	deleteErr error
	existsErr error
	updateErr error
	searchErr error
	nextID    int
}

func NewMockBlacklistRepository() *MockBlacklistRepository {
	return &MockBlacklistRepository{
		entries: make(map[string]*models.BlacklistEntry),
		nextID:  1,
	}
}

func (m *MockBlacklistRepository) Create(entry *models.BlacklistEntry) error {
	if m.createErr != nil {
		return m.createErr
	}
	if _, exists := m.entries[entry.Symbol]; exists {
		return repository.ErrBlacklistEntryExists
	}
	entry.ID = m.nextID
	m.nextID++
	entry.CreatedAt = time.Now()
	m.entries[entry.Symbol] = entry
	return nil
}

func (m *MockBlacklistRepository) GetAll() ([]*models.BlacklistEntry, error) {
	if m.getErr != nil {
		return nil, m.getErr
	}
	result := make([]*models.BlacklistEntry, 0, len(m.entries))
	for _, e := range m.entries {
		result = append(result, e)
	}
	return result, nil
}

func (m *MockBlacklistRepository) GetBySymbol(symbol string) (*models.BlacklistEntry, error) {
	if m.getErr != nil {
		return nil, m.getErr
	}
	if entry, exists := m.entries[symbol]; exists {
		return entry, nil
	}
	return nil, repository.ErrBlacklistEntryNotFound
}

func (m *MockBlacklistRepository) Delete(symbol string) error {
	if m.deleteErr != nil {
		return m.deleteErr
	}
	if _, exists := m.entries[symbol]; !exists {
		return repository.ErrBlacklistEntryNotFound
	}
	delete(m.entries, symbol)
	return nil
}

func (m *MockBlacklistRepository) Exists(symbol string) (bool, error) {
	if m.existsErr != nil {
		return false, m.existsErr
	}
	_, exists := m.entries[symbol]
	return exists, nil
}

func (m *MockBlacklistRepository) UpdateReason(symbol, reason string) error {
	if m.updateErr != nil {
		return m.updateErr
	}
	if entry, exists := m.entries[symbol]; exists {
		entry.Reason = reason
		return nil
	}
	return repository.ErrBlacklistEntryNotFound
}

func (m *MockBlacklistRepository) Count() (int, error) {
	if m.getErr != nil {
		return 0, m.getErr
	}
	return len(m.entries), nil
}

func (m *MockBlacklistRepository) DeleteAll() error {
	if m.deleteErr != nil {
		return m.deleteErr
	}
	m.entries = make(map[string]*models.BlacklistEntry)
	return nil
}

func (m *MockBlacklistRepository) Search(query string) ([]*models.BlacklistEntry, error) {
	if m.searchErr != nil {
		return nil, m.searchErr
	}
	var result []*models.BlacklistEntry
	for symbol, entry := range m.entries {
		if containsIgnoreCase(symbol, query) {
			result = append(result, entry)
		}
	}
	return result, nil
}

// ============ Mock SettingsRepository ============

type MockSettingsRepository struct {
	settings  *models.UserSettings
	getErr    error
	updateErr error
}

func NewMockSettingsRepository() *MockSettingsRepository {
	return &MockSettingsRepository{
		settings: &models.UserSettings{
			UserID: "user-1",
			NotificationPrefs: models.NotificationPreferences{
				OpportunityFound:   true,
				OpportunityEnded:   true,
				PositionOpened:     true,
				PositionClosed:     true,
				APIError:           true,
				ConditionalTrigger: true,
				SecondLegFail:      true,
			},
		},
	}
}

func (m *MockSettingsRepository) Get(userID string) (*models.UserSettings, error) {
	if m.getErr != nil {
		return nil, m.getErr
	}
	return m.settings, nil
}

func (m *MockSettingsRepository) Upsert(settings *models.UserSettings) error {
	if m.updateErr != nil {
		return m.updateErr
	}
	m.settings = settings
	return nil
}

func (m *MockSettingsRepository) UpdateNotificationPrefs(userID string, prefs models.NotificationPreferences) error {
	if m.updateErr != nil {
		return m.updateErr
	}
	m.settings.NotificationPrefs = prefs
	return nil
}

// ============ Mock NotificationRepository ============

type MockNotificationRepository struct {
	notifications []*models.Notification
	createErr     error
	getErr        error
	deleteErr     error
	nextID        int
}

func NewMockNotificationRepository() *MockNotificationRepository {
	return &MockNotificationRepository{
		notifications: make([]*models.Notification, 0),
		nextID:        1,
	}
}

func (m *MockNotificationRepository) Create(notif *models.Notification) error {
	if m.createErr != nil {
		return m.createErr
	}
	notif.ID = m.nextID
	m.nextID++
	notif.Timestamp = time.Now()
	m.notifications = append(m.notifications, notif)
	return nil
}

func (m *MockNotificationRepository) GetRecent(userID string, limit int) ([]*models.Notification, error) {
	if m.getErr != nil {
		return nil, m.getErr
	}
	var filtered []*models.Notification
	for _, n := range m.notifications {
		if n.UserID == userID {
			filtered = append(filtered, n)
		}
	}
	if limit <= 0 || limit > len(filtered) {
		limit = len(filtered)
	}
	start := len(filtered) - limit
	if start < 0 {
		start = 0
	}
	return filtered[start:], nil
}

func (m *MockNotificationRepository) GetByTypes(userID string, types []string, limit int) ([]*models.Notification, error) {
	if m.getErr != nil {
		return nil, m.getErr
	}
	typeSet := make(map[string]bool)
	for _, t := range types {
		typeSet[t] = true
	}
	var result []*models.Notification
	for _, n := range m.notifications {
		if n.UserID == userID && typeSet[n.Type] {
			result = append(result, n)
		}
	}
	if limit > 0 && len(result) > limit {
		result = result[:limit]
	}
	return result, nil
}

func (m *MockNotificationRepository) DeleteAll(userID string) error {
	if m.deleteErr != nil {
		return m.deleteErr
	}
	var kept []*models.Notification
	for _, n := range m.notifications {
		if n.UserID != userID {
			kept = append(kept, n)
		}
	}
	m.notifications = kept
	return nil
}

func (m *MockNotificationRepository) DeleteOlderThan(cutoff time.Time) (int64, error) {
	if m.deleteErr != nil {
		return 0, m.deleteErr
	}
	var kept []*models.Notification
	var deleted int64
	for _, n := range m.notifications {
		if n.Timestamp.After(cutoff) {
			kept = append(kept, n)
		} else {
			deleted++
		}
	}
	m.notifications = kept
	return deleted, nil
}

// ============ Mock StatsRepository ============

type MockStatsRepository struct {
	stats     *models.Stats
	getErr    error
	deleteErr error
}

func NewMockStatsRepository() *MockStatsRepository {
	return &MockStatsRepository{
		stats: &models.Stats{},
	}
}

func (m *MockStatsRepository) GetStats(userID string) (*models.Stats, error) {
	if m.getErr != nil {
		return nil, m.getErr
	}
	return m.stats, nil
}

func (m *MockStatsRepository) RecordConditionalTrigger(userID string, e models.ConditionalTriggerEvent) error {
	m.stats.ConditionalTriggers.Events = append(m.stats.ConditionalTriggers.Events, e)
	return nil
}

func (m *MockStatsRepository) RecordSecondLegFailure(userID string, e models.SecondLegFailureEvent) error {
	m.stats.SecondLegFailures.Events = append(m.stats.SecondLegFailures.Events, e)
	return nil
}

func (m *MockStatsRepository) ResetCounters(userID string) error {
	if m.deleteErr != nil {
		return m.deleteErr
	}
	m.stats.ConditionalTriggers = models.ConditionalTriggerStats{}
	m.stats.SecondLegFailures = models.SecondLegFailureStats{}
	return nil
}

// ============ Mock WebSocket Broadcaster ============

type MockWebSocketBroadcaster struct {
	notifications []*models.Notification
}

func NewMockWebSocketBroadcaster() *MockWebSocketBroadcaster {
	return &MockWebSocketBroadcaster{
		notifications: make([]*models.Notification, 0),
	}
}

func (m *MockWebSocketBroadcaster) BroadcastNotification(notif *models.Notification) {
	m.notifications = append(m.notifications, notif)
}

// ============ Mock Stats Broadcaster ============

type MockStatsBroadcaster struct {
	updates []*models.Stats
}

func NewMockStatsBroadcaster() *MockStatsBroadcaster {
	return &MockStatsBroadcaster{
		updates: make([]*models.Stats, 0),
	}
}

func (m *MockStatsBroadcaster) BroadcastStatsUpdate(stats *models.Stats) {
	m.updates = append(m.updates, stats)
}

// ============ Helper functions ============

func containsIgnoreCase(s, substr string) bool {
	return len(s) >= len(substr) && (s == substr || len(substr) == 0 ||
		(len(s) > 0 && len(substr) > 0 && contains(toLower(s), toLower(substr))))
}

func toLower(s string) string {
	b := make([]byte, len(s))
	for i := 0; i < len(s); i++ {
		c := s[i]
		if c >= 'A' && c <= 'Z' {
			c += 'a' - 'A'
		}
		b[i] = c
	}
	return string(b)
}

func contains(s, substr string) bool {
	for i := 0; i <= len(s)-len(substr); i++ {
		if s[i:i+len(substr)] == substr {
			return true
		}
	}
	return false
}
