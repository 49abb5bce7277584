package repository

import (
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/lib/pq"

	"fundingarb/internal/models"
)

func TestNewNotificationRepository(t *testing.T) {
	db, _, err := sqlmock.New()
	if err != nil {
		t.Fatalf("failed to create mock: %v", err)
	}
	defer db.Close()

	repo := NewNotificationRepository(db)
	if repo == nil {
		t.Fatal("NewNotificationRepository returned nil")
	}
	if repo.db != db {
		t.Error("db not set correctly")
	}
}

func TestNotificationRepositoryCreate(t *testing.T) {
	posID := "pos-1"

	tests := []struct {
		name        string
		notif       *models.Notification
		mockSetup   func(mock sqlmock.Sqlmock)
		expectError bool
	}{
		{
			name: "success without meta",
			notif: &models.Notification{
				Type:       models.NotificationTypePositionOpened,
				Severity:   models.SeverityInfo,
				UserID:     "user-1",
				PositionID: &posID,
				Message:    "position opened",
			},
			mockSetup: func(mock sqlmock.Sqlmock) {
				mock.ExpectQuery(`INSERT INTO notifications`).
					WithArgs(models.NotificationTypePositionOpened, models.SeverityInfo, "user-1", &posID, "position opened", []byte("null"), sqlmock.AnyArg()).
					WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(1))
			},
		},
		{
			name: "success with meta",
			notif: &models.Notification{
				Type:     models.NotificationTypeAPIError,
				Severity: models.SeverityError,
				UserID:   "user-1",
				Message:  "api error",
				Meta:     map[string]interface{}{"code": 400, "exchange": "okx"},
			},
			mockSetup: func(mock sqlmock.Sqlmock) {
				mock.ExpectQuery(`INSERT INTO notifications`).
					WithArgs(models.NotificationTypeAPIError, models.SeverityError, "user-1", (*string)(nil), "api error", sqlmock.AnyArg(), sqlmock.AnyArg()).
					WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(2))
			},
		},
		{
			name: "database error",
			notif: &models.Notification{
				Type:     models.NotificationTypeSecondLegFail,
				Severity: models.SeverityWarn,
				UserID:   "user-1",
				Message:  "second leg failed",
			},
			mockSetup: func(mock sqlmock.Sqlmock) {
				mock.ExpectQuery(`INSERT INTO notifications`).
					WithArgs(models.NotificationTypeSecondLegFail, models.SeverityWarn, "user-1", (*string)(nil), "second leg failed", []byte("null"), sqlmock.AnyArg()).
					WillReturnError(errors.New("database error"))
			},
			expectError: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			db, mock, err := sqlmock.New()
			if err != nil {
				t.Fatalf("failed to create mock: %v", err)
			}
			defer db.Close()

			tt.mockSetup(mock)

			repo := NewNotificationRepository(db)
			err = repo.Create(tt.notif)

			if tt.expectError {
				if err == nil {
					t.Error("expected error, got nil")
				}
			} else if err != nil {
				t.Errorf("unexpected error: %v", err)
			}

			if err := mock.ExpectationsWereMet(); err != nil {
				t.Errorf("unfulfilled expectations: %v", err)
			}
		})
	}
}

func TestNotificationRepositoryGetRecent(t *testing.T) {
	now := time.Now()

	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("failed to create mock: %v", err)
	}
	defer db.Close()

	rows := sqlmock.NewRows([]string{"id", "type", "severity", "user_id", "position_id", "message", "meta", "timestamp"}).
		AddRow(2, models.NotificationTypePositionClosed, models.SeverityInfo, "user-1", nil, "position closed", nil, now).
		AddRow(1, models.NotificationTypePositionOpened, models.SeverityInfo, "user-1", nil, "position opened", nil, now.Add(-time.Hour))
	mock.ExpectQuery(`SELECT .+ FROM notifications WHERE user_id = \$1 ORDER BY timestamp DESC LIMIT \$2`).
		WithArgs("user-1", 10).
		WillReturnRows(rows)

	repo := NewNotificationRepository(db)
	result, err := repo.GetRecent("user-1", 10)

	if err != nil {
		t.Errorf("unexpected error: %v", err)
	}
	if len(result) != 2 {
		t.Errorf("expected 2 notifications, got %d", len(result))
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unfulfilled expectations: %v", err)
	}
}

func TestNotificationRepositoryGetRecentWithMeta(t *testing.T) {
	now := time.Now()
	metaJSON, _ := json.Marshal(map[string]interface{}{"code": 400})

	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("failed to create mock: %v", err)
	}
	defer db.Close()

	rows := sqlmock.NewRows([]string{"id", "type", "severity", "user_id", "position_id", "message", "meta", "timestamp"}).
		AddRow(1, models.NotificationTypeAPIError, models.SeverityError, "user-1", nil, "api error", metaJSON, now)
	mock.ExpectQuery(`SELECT .+ FROM notifications WHERE user_id = \$1 ORDER BY timestamp DESC LIMIT \$2`).
		WithArgs("user-1", 5).
		WillReturnRows(rows)

	repo := NewNotificationRepository(db)
	result, err := repo.GetRecent("user-1", 5)

	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(result) != 1 {
		t.Fatalf("expected 1 notification, got %d", len(result))
	}
	if result[0].Meta["code"] != float64(400) {
		t.Errorf("expected meta code=400, got %v", result[0].Meta["code"])
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unfulfilled expectations: %v", err)
	}
}

func TestNotificationRepositoryGetByTypes(t *testing.T) {
	now := time.Now()

	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("failed to create mock: %v", err)
	}
	defer db.Close()

	types := []string{models.NotificationTypeAPIError, models.NotificationTypeSecondLegFail}
	rows := sqlmock.NewRows([]string{"id", "type", "severity", "user_id", "position_id", "message", "meta", "timestamp"}).
		AddRow(1, models.NotificationTypeAPIError, models.SeverityError, "user-1", nil, "api error", nil, now)
	mock.ExpectQuery(`SELECT .+ FROM notifications WHERE user_id = \$1 AND type = ANY\(\$2\) ORDER BY timestamp DESC LIMIT \$3`).
		WithArgs("user-1", pq.Array(types), 10).
		WillReturnRows(rows)

	repo := NewNotificationRepository(db)
	result, err := repo.GetByTypes("user-1", types, 10)

	if err != nil {
		t.Errorf("unexpected error: %v", err)
	}
	if len(result) != 1 {
		t.Errorf("expected 1 notification, got %d", len(result))
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unfulfilled expectations: %v", err)
	}
}

func TestNotificationRepositoryDeleteAll(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("failed to create mock: %v", err)
	}
	defer db.Close()

	mock.ExpectExec(`DELETE FROM notifications WHERE user_id = \$1`).
		WithArgs("user-1").
		WillReturnResult(sqlmock.NewResult(0, 100))

	repo := NewNotificationRepository(db)
	err = repo.DeleteAll("user-1")

	if err != nil {
		t.Errorf("unexpected error: %v", err)
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unfulfilled expectations: %v", err)
	}
}

func TestNotificationRepositoryDeleteOlderThan(t *testing.T) {
	threshold := time.Now().AddDate(0, 0, -30)

	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("failed to create mock: %v", err)
	}
	defer db.Close()

	mock.ExpectExec(`DELETE FROM notifications WHERE timestamp < \$1`).
		WithArgs(threshold).
		WillReturnResult(sqlmock.NewResult(0, 50))

	repo := NewNotificationRepository(db)
	deleted, err := repo.DeleteOlderThan(threshold)

	if err != nil {
		t.Errorf("unexpected error: %v", err)
	}
	if deleted != 50 {
		t.Errorf("expected 50 deleted, got %d", deleted)
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unfulfilled expectations: %v", err)
	}
}
