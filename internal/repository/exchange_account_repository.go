package repository

import (
	"database/sql"
	"errors"
	"strings"
	"time"

	"fundingarb/internal/models"
)

// Ошибки репозитория учетных записей бирж
var (
	ErrExchangeAccountNotFound = errors.New("exchange account not found")
	ErrExchangeAccountExists   = errors.New("exchange account already exists for this user/exchange/environment")
)

// ExchangeAccountRepository - работа с таблицей exchange_accounts, хранящей
// зашифрованные API-ключи пользователей для каждой подключенной биржи.
type ExchangeAccountRepository struct {
	db *sql.DB
}

// NewExchangeAccountRepository создает новый экземпляр репозитория
func NewExchangeAccountRepository(db *sql.DB) *ExchangeAccountRepository {
	return &ExchangeAccountRepository{db: db}
}

// Create сохраняет новую учетную запись биржи.
func (r *ExchangeAccountRepository) Create(account *models.ExchangeAccount) error {
	query := `
		INSERT INTO exchange_accounts (
			user_id, exchange, environment, api_key_enc, secret_key_enc, passphrase_enc,
			connected, balance, last_error, updated_at, created_at
		) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11)
		RETURNING id`

	now := time.Now()
	account.UpdatedAt = now
	account.CreatedAt = now

	err := r.db.QueryRow(
		query,
		account.UserID, string(account.Exchange), string(account.Environment),
		account.APIKeyEnc, account.SecretKeyEnc, account.PassphraseEnc,
		account.Connected, account.Balance, account.LastError,
		account.UpdatedAt, account.CreatedAt,
	).Scan(&account.ID)

	if err != nil {
		if isExchangeAccountUniqueViolation(err) {
			return ErrExchangeAccountExists
		}
		return err
	}

	return nil
}

// GetByUserAndExchange возвращает учетную запись пользователя для конкретной биржи/среды.
func (r *ExchangeAccountRepository) GetByUserAndExchange(userID string, exch models.Exchange, env models.CredentialEnvironment) (*models.ExchangeAccount, error) {
	query := `
		SELECT id, user_id, exchange, environment, api_key_enc, secret_key_enc, passphrase_enc,
			connected, balance, last_error, updated_at, created_at
		FROM exchange_accounts
		WHERE user_id = $1 AND exchange = $2 AND environment = $3`

	return scanExchangeAccount(r.db.QueryRow(query, userID, string(exch), string(env)))
}

// ListByUser возвращает все учетные записи бирж пользователя.
func (r *ExchangeAccountRepository) ListByUser(userID string) ([]*models.ExchangeAccount, error) {
	query := `
		SELECT id, user_id, exchange, environment, api_key_enc, secret_key_enc, passphrase_enc,
			connected, balance, last_error, updated_at, created_at
		FROM exchange_accounts
		WHERE user_id = $1
		ORDER BY exchange`

	rows, err := r.db.Query(query, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var accounts []*models.ExchangeAccount
	for rows.Next() {
		account, err := scanExchangeAccount(rows)
		if err != nil {
			return nil, err
		}
		accounts = append(accounts, account)
	}
	return accounts, rows.Err()
}

// ListConnected возвращает все учетные записи со статусом connected=true,
// используется при старте бота для восстановления пула подключений к биржам.
func (r *ExchangeAccountRepository) ListConnected() ([]*models.ExchangeAccount, error) {
	query := `
		SELECT id, user_id, exchange, environment, api_key_enc, secret_key_enc, passphrase_enc,
			connected, balance, last_error, updated_at, created_at
		FROM exchange_accounts
		WHERE connected = true`

	rows, err := r.db.Query(query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var accounts []*models.ExchangeAccount
	for rows.Next() {
		account, err := scanExchangeAccount(rows)
		if err != nil {
			return nil, err
		}
		accounts = append(accounts, account)
	}
	return accounts, rows.Err()
}

// UpdateConnectionState обновляет статус подключения и последнюю ошибку.
func (r *ExchangeAccountRepository) UpdateConnectionState(id int, connected bool, lastError string) error {
	query := `
		UPDATE exchange_accounts
		SET connected = $1, last_error = $2, updated_at = $3
		WHERE id = $4`

	result, err := r.db.Exec(query, connected, lastError, time.Now(), id)
	if err != nil {
		return err
	}
	return checkRowsAffected(result, ErrExchangeAccountNotFound)
}

// UpdateBalance обновляет последний известный баланс биржи.
func (r *ExchangeAccountRepository) UpdateBalance(id int, balance float64) error {
	query := `UPDATE exchange_accounts SET balance = $1, updated_at = $2 WHERE id = $3`

	result, err := r.db.Exec(query, balance, time.Now(), id)
	if err != nil {
		return err
	}
	return checkRowsAffected(result, ErrExchangeAccountNotFound)
}

// UpdateCredentials заменяет зашифрованные ключи учетной записи.
func (r *ExchangeAccountRepository) UpdateCredentials(id int, apiKeyEnc, secretKeyEnc, passphraseEnc string) error {
	query := `
		UPDATE exchange_accounts
		SET api_key_enc = $1, secret_key_enc = $2, passphrase_enc = $3, updated_at = $4
		WHERE id = $5`

	result, err := r.db.Exec(query, apiKeyEnc, secretKeyEnc, passphraseEnc, time.Now(), id)
	if err != nil {
		return err
	}
	return checkRowsAffected(result, ErrExchangeAccountNotFound)
}

// Delete удаляет учетную запись биржи.
func (r *ExchangeAccountRepository) Delete(id int) error {
	result, err := r.db.Exec(`DELETE FROM exchange_accounts WHERE id = $1`, id)
	if err != nil {
		return err
	}
	return checkRowsAffected(result, ErrExchangeAccountNotFound)
}

func checkRowsAffected(result sql.Result, notFoundErr error) error {
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if rowsAffected == 0 {
		return notFoundErr
	}
	return nil
}

func scanExchangeAccount(row rowScanner) (*models.ExchangeAccount, error) {
	account := &models.ExchangeAccount{}
	var exch, env string

	err := row.Scan(
		&account.ID, &account.UserID, &exch, &env,
		&account.APIKeyEnc, &account.SecretKeyEnc, &account.PassphraseEnc,
		&account.Connected, &account.Balance, &account.LastError,
		&account.UpdatedAt, &account.CreatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrExchangeAccountNotFound
	}
	if err != nil {
		return nil, err
	}

	account.Exchange = models.Exchange(exch)
	account.Environment = models.CredentialEnvironment(env)
	return account, nil
}

func isExchangeAccountUniqueViolation(err error) bool {
	if err == nil {
		return false
	}
	errStr := err.Error()
	return strings.Contains(errStr, "duplicate key") || strings.Contains(errStr, "23505")
}
