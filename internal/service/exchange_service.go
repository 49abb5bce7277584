package service

import (
	"context"
	"errors"
	"strings"
	"sync"

	"fundingarb/internal/exchange"
	"fundingarb/internal/models"
	"fundingarb/internal/repository"
	"fundingarb/pkg/crypto"
)

// Ошибки сервиса
var (
	ErrExchangeNotSupported     = errors.New("exchange is not supported")
	ErrExchangeAlreadyConnected = errors.New("exchange is already connected")
	ErrExchangeNotConnected     = errors.New("exchange is not connected")
	ErrInvalidCredentials       = errors.New("invalid API credentials")
	ErrConnectionFailed         = errors.New("failed to connect to exchange")
)

// BalanceBroadcaster - интерфейс для отправки обновлений балансов через WebSocket
type BalanceBroadcaster interface {
	BroadcastBalanceUpdate(exchange string, balance float64)
	BroadcastAllBalances(balances map[string]float64)
}

// connKey идентифицирует кэшированное соединение с биржей: один пользователь
// может подключить одну и ту же биржу в mainnet и testnet одновременно.
type connKey struct {
	userID string
	name   models.Exchange
	env    models.CredentialEnvironment
}

// ExchangeService - бизнес-логика подключения пользовательских бирж: шифрование
// и хранение ключей, тестовое подключение, кэш живых соединений, обновление балансов.
type ExchangeService struct {
	accountRepo   *repository.ExchangeAccountRepository
	encryptionKey []byte

	connections   map[connKey]exchange.Exchange
	connectionsMu sync.RWMutex

	wsHub BalanceBroadcaster
}

// NewExchangeService создает новый экземпляр сервиса
func NewExchangeService(accountRepo *repository.ExchangeAccountRepository, encryptionKey string) *ExchangeService {
	return &ExchangeService{
		accountRepo:   accountRepo,
		encryptionKey: []byte(encryptionKey),
		connections:   make(map[connKey]exchange.Exchange),
	}
}

// SetWebSocketHub устанавливает WebSocket hub для broadcast балансов.
func (s *ExchangeService) SetWebSocketHub(hub BalanceBroadcaster) {
	s.wsHub = hub
}

// ConnectExchange подключает биржу пользователя с указанными API ключами:
// проверяет поддержку биржи, делает тестовое подключение и запрос баланса,
// шифрует ключи и сохраняет/обновляет учетную запись.
func (s *ExchangeService) ConnectExchange(ctx context.Context, userID, name string, env models.CredentialEnvironment, apiKey, secretKey, passphrase string) (*models.ExchangeAccount, error) {
	name = strings.ToLower(name)

	if !exchange.IsSupported(name) {
		return nil, ErrExchangeNotSupported
	}
	exchName := models.Exchange(name)

	existing, err := s.accountRepo.GetByUserAndExchange(userID, exchName, env)
	if err != nil && !errors.Is(err, repository.ErrExchangeAccountNotFound) {
		return nil, err
	}
	if existing != nil && existing.Connected {
		return nil, ErrExchangeAlreadyConnected
	}

	exch, err := exchange.NewExchange(name)
	if err != nil {
		return nil, err
	}

	if err := exch.Connect(ctx, apiKey, secretKey, passphrase); err != nil {
		_ = exch.Close()
		return nil, errors.Join(ErrInvalidCredentials, err)
	}

	balance, err := exch.GetBalance(ctx)
	if err != nil {
		_ = exch.Close()
		return nil, errors.Join(ErrConnectionFailed, err)
	}

	apiKeyEnc, err := crypto.Encrypt(apiKey, s.encryptionKey)
	if err != nil {
		_ = exch.Close()
		return nil, err
	}
	secretKeyEnc, err := crypto.Encrypt(secretKey, s.encryptionKey)
	if err != nil {
		_ = exch.Close()
		return nil, err
	}
	var passphraseEnc string
	if passphrase != "" {
		passphraseEnc, err = crypto.Encrypt(passphrase, s.encryptionKey)
		if err != nil {
			_ = exch.Close()
			return nil, err
		}
	}

	account := existing
	if account == nil {
		account = &models.ExchangeAccount{
			UserID:      userID,
			Exchange:    exchName,
			Environment: env,
		}
	}
	account.APIKeyEnc = apiKeyEnc
	account.SecretKeyEnc = secretKeyEnc
	account.PassphraseEnc = passphraseEnc
	account.Connected = true
	account.Balance = balance.InexactFloat64()
	account.LastError = ""

	if existing == nil {
		if err := s.accountRepo.Create(account); err != nil {
			_ = exch.Close()
			return nil, err
		}
	} else {
		if err := s.accountRepo.UpdateCredentials(account.ID, apiKeyEnc, secretKeyEnc, passphraseEnc); err != nil {
			_ = exch.Close()
			return nil, err
		}
		if err := s.accountRepo.UpdateConnectionState(account.ID, true, ""); err != nil {
			_ = exch.Close()
			return nil, err
		}
	}

	key := connKey{userID: userID, name: exchName, env: env}
	s.connectionsMu.Lock()
	s.connections[key] = exch
	s.connectionsMu.Unlock()

	return account, nil
}

// DisconnectExchange отключает биржу пользователя: закрывает кэшированное
// соединение и помечает учетную запись отключенной, сохраняя ключи для
// последующего повторного подключения.
func (s *ExchangeService) DisconnectExchange(ctx context.Context, userID, name string, env models.CredentialEnvironment) error {
	name = strings.ToLower(name)
	exchName := models.Exchange(name)

	account, err := s.accountRepo.GetByUserAndExchange(userID, exchName, env)
	if err != nil {
		if errors.Is(err, repository.ErrExchangeAccountNotFound) {
			return ErrExchangeNotConnected
		}
		return err
	}
	if !account.Connected {
		return ErrExchangeNotConnected
	}

	key := connKey{userID: userID, name: exchName, env: env}
	s.connectionsMu.Lock()
	if conn, exists := s.connections[key]; exists {
		_ = conn.Close()
		delete(s.connections, key)
	}
	s.connectionsMu.Unlock()

	return s.accountRepo.UpdateConnectionState(account.ID, false, "")
}

// UpdateBalance запрашивает актуальный баланс биржи через API и отправляет
// broadcast через WebSocket после успешного обновления.
func (s *ExchangeService) UpdateBalance(ctx context.Context, account *models.ExchangeAccount) (float64, error) {
	if !account.Connected {
		return 0, ErrExchangeNotConnected
	}

	conn, err := s.getOrCreateConnection(ctx, account)
	if err != nil {
		_ = s.accountRepo.UpdateConnectionState(account.ID, account.Connected, err.Error())
		return 0, err
	}

	balanceDec, err := conn.GetBalance(ctx)
	if err != nil {
		_ = s.accountRepo.UpdateConnectionState(account.ID, account.Connected, err.Error())
		return 0, err
	}
	balance := balanceDec.InexactFloat64()

	if err := s.accountRepo.UpdateBalance(account.ID, balance); err != nil {
		return balance, err
	}

	if s.wsHub != nil {
		s.wsHub.BroadcastBalanceUpdate(string(account.Exchange), balance)
	}

	return balance, nil
}

// ListAccounts возвращает все учетные записи бирж пользователя.
func (s *ExchangeService) ListAccounts(userID string) ([]*models.ExchangeAccount, error) {
	return s.accountRepo.ListByUser(userID)
}

// GetConnection возвращает активное соединение с биржей пользователя,
// используется торговым движком для выполнения операций.
func (s *ExchangeService) GetConnection(ctx context.Context, userID, name string, env models.CredentialEnvironment) (exchange.Exchange, error) {
	name = strings.ToLower(name)
	exchName := models.Exchange(name)

	key := connKey{userID: userID, name: exchName, env: env}
	s.connectionsMu.RLock()
	conn, exists := s.connections[key]
	s.connectionsMu.RUnlock()
	if exists {
		return conn, nil
	}

	account, err := s.accountRepo.GetByUserAndExchange(userID, exchName, env)
	if err != nil {
		return nil, err
	}
	if !account.Connected {
		return nil, ErrExchangeNotConnected
	}

	return s.getOrCreateConnection(ctx, account)
}

// UpdateAllBalances обновляет балансы всех подключенных бирж пользователя и
// отправляет их одним broadcast-сообщением для начальной загрузки UI.
func (s *ExchangeService) UpdateAllBalances(ctx context.Context, userID string) map[string]float64 {
	result := make(map[string]float64)

	accounts, err := s.accountRepo.ListByUser(userID)
	if err != nil {
		return result
	}

	for _, account := range accounts {
		if !account.Connected {
			continue
		}
		balance, err := s.UpdateBalance(ctx, account)
		if err != nil {
			continue
		}
		result[string(account.Exchange)] = balance
	}

	if s.wsHub != nil && len(result) > 0 {
		s.wsHub.BroadcastAllBalances(result)
	}

	return result
}

// getOrCreateConnection получает соединение из кэша или создает новое,
// расшифровывая сохраненные ключи.
func (s *ExchangeService) getOrCreateConnection(ctx context.Context, account *models.ExchangeAccount) (exchange.Exchange, error) {
	key := connKey{userID: account.UserID, name: account.Exchange, env: account.Environment}

	s.connectionsMu.RLock()
	conn, exists := s.connections[key]
	s.connectionsMu.RUnlock()
	if exists {
		return conn, nil
	}

	apiKey, err := crypto.Decrypt(account.APIKeyEnc, s.encryptionKey)
	if err != nil {
		return nil, err
	}
	secretKey, err := crypto.Decrypt(account.SecretKeyEnc, s.encryptionKey)
	if err != nil {
		return nil, err
	}
	var passphrase string
	if account.PassphraseEnc != "" {
		passphrase, err = crypto.Decrypt(account.PassphraseEnc, s.encryptionKey)
		if err != nil {
			return nil, err
		}
	}

	conn, err = exchange.NewExchange(string(account.Exchange))
	if err != nil {
		return nil, err
	}

	if err := conn.Connect(ctx, apiKey, secretKey, passphrase); err != nil {
		return nil, err
	}

	s.connectionsMu.Lock()
	s.connections[key] = conn
	s.connectionsMu.Unlock()

	return conn, nil
}

// Close закрывает все соединения с биржами. Вызывается при graceful shutdown.
func (s *ExchangeService) Close() error {
	s.connectionsMu.Lock()
	defer s.connectionsMu.Unlock()

	for key, conn := range s.connections {
		_ = conn.Close()
		delete(s.connections, key)
	}
	return nil
}

// HasMinimumExchanges проверяет, подключено ли у пользователя минимум 2 биржи -
// необходимое условие для межбиржевого арбитража.
func (s *ExchangeService) HasMinimumExchanges(userID string) (bool, error) {
	accounts, err := s.accountRepo.ListByUser(userID)
	if err != nil {
		return false, err
	}
	count := 0
	for _, a := range accounts {
		if a.Connected {
			count++
		}
	}
	return count >= 2, nil
}
