package service

import (
	"fundingarb/internal/models"
)

// StatsBroadcaster - интерфейс для отправки обновлений статистики через WebSocket
type StatsBroadcaster interface {
	BroadcastStatsUpdate(stats *models.Stats)
}

// StatsService предоставляет агрегированную статистику пользователя: счетчики
// и PNL по периодам, срабатывания условных ордеров, провалы второй ноги, топ
// символов по сделкам/прибыли/убыткам.
type StatsService struct {
	statsRepo StatsRepositoryInterface
	wsHub     StatsBroadcaster
}

// NewStatsService создает новый экземпляр StatsService
func NewStatsService(statsRepo StatsRepositoryInterface) *StatsService {
	return &StatsService{statsRepo: statsRepo}
}

// SetWebSocketHub устанавливает WebSocket hub для broadcast статистики.
func (s *StatsService) SetWebSocketHub(hub StatsBroadcaster) {
	s.wsHub = hub
}

// GetStats возвращает полную агрегированную статистику пользователя.
func (s *StatsService) GetStats(userID string) (*models.Stats, error) {
	return s.statsRepo.GetStats(userID)
}

// GetTopPairs возвращает топ символов по указанной метрике ("trades", "profit", "loss").
func (s *StatsService) GetTopPairs(userID, metric string) ([]models.PairStat, error) {
	stats, err := s.statsRepo.GetStats(userID)
	if err != nil {
		return nil, err
	}

	switch metric {
	case "profit":
		return stats.TopPairsByProfit, nil
	case "loss":
		return stats.TopPairsByLoss, nil
	default:
		return stats.TopPairsByTrades, nil
	}
}

// ResetStats очищает журналы срабатываний условных ордеров и провалов второй
// ноги пользователя (история сделок в trades не затрагивается) и отправляет
// обновленную статистику через WebSocket.
func (s *StatsService) ResetStats(userID string) error {
	if err := s.statsRepo.ResetCounters(userID); err != nil {
		return err
	}
	s.broadcastUpdated(userID)
	return nil
}

// RecordConditionalTrigger фиксирует срабатывание условного ордера и публикует
// обновленную статистику через WebSocket.
func (s *StatsService) RecordConditionalTrigger(userID string, e models.ConditionalTriggerEvent) error {
	if err := s.statsRepo.RecordConditionalTrigger(userID, e); err != nil {
		return err
	}
	s.broadcastUpdated(userID)
	return nil
}

// RecordSecondLegFailure фиксирует провал открытия второй ноги и публикует
// обновленную статистику через WebSocket.
func (s *StatsService) RecordSecondLegFailure(userID string, e models.SecondLegFailureEvent) error {
	if err := s.statsRepo.RecordSecondLegFailure(userID, e); err != nil {
		return err
	}
	s.broadcastUpdated(userID)
	return nil
}

func (s *StatsService) broadcastUpdated(userID string) {
	if s.wsHub == nil {
		return
	}
	stats, err := s.statsRepo.GetStats(userID)
	if err == nil && stats != nil {
		s.wsHub.BroadcastStatsUpdate(stats)
	}
}
