package exchange

import (
	"fmt"
	"strings"

	"fundingarb/internal/models"
)

// SupportedExchanges - список бирж, поддерживаемых движком фандинг-арбитража
var SupportedExchanges = []string{
	string(models.ExchangeBinance),
	string(models.ExchangeOKX),
	string(models.ExchangeGateIO),
	string(models.ExchangeMEXC),
	string(models.ExchangeBingX),
}

// NewExchange создает новый экземпляр биржи по имени
func NewExchange(name string) (Exchange, error) {
	name = strings.ToLower(name)

	switch name {
	case string(models.ExchangeBinance):
		return NewBinance(), nil
	case string(models.ExchangeOKX):
		return NewOKX(), nil
	case string(models.ExchangeGateIO):
		return NewGate(), nil
	case string(models.ExchangeMEXC):
		return NewMEXC(), nil
	case string(models.ExchangeBingX):
		return NewBingX(), nil
	default:
		return nil, fmt.Errorf("unsupported exchange: %s", name)
	}
}

// IsSupported проверяет, поддерживается ли биржа
func IsSupported(name string) bool {
	name = strings.ToLower(name)
	for _, supported := range SupportedExchanges {
		if name == supported {
			return true
		}
	}
	return false
}
