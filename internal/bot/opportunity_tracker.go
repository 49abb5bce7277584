package bot

import (
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"fundingarb/internal/models"
)

// ValidTransitions определяет допустимые переходы статуса возможности.
// ACTIVE может только завершиться; ENDED - терминальный статус.
var ValidTransitions = map[models.OpportunityStatus][]models.OpportunityStatus{
	models.OpportunityStatusActive: {models.OpportunityStatusEnded},
	models.OpportunityStatusEnded:  {},
}

// CanTransition проверяет допустимость перехода статуса возможности.
func CanTransition(from, to models.OpportunityStatus) bool {
	allowed, ok := ValidTransitions[from]
	if !ok {
		return false
	}
	for _, s := range allowed {
		if s == to {
			return true
		}
	}
	return false
}

// trackedOpportunity хранит дополнительное состояние возможности, не подлежащее
// персистентности как есть: пик спреда за время жизни и выборки annualizedReturn
// для расчета realizedAPY на момент завершения.
type trackedOpportunity struct {
	opportunity       *models.ArbitrageOpportunity
	detectedAt        time.Time
	maxSpread         decimal.Decimal
	maxSpreadAt       time.Time
	annualizedSamples []decimal.Decimal
}

// OpportunityTracker владеет жизненным циклом ArbitrageOpportunity: апсертом
// по детекции от Funding Pair Engine и периодической разверткой, закрывающей
// возможности, исчезнувшие из последнего цикла детекции.
type OpportunityTracker struct {
	mu     sync.Mutex
	active map[models.OpportunityKey]*trackedOpportunity
}

func NewOpportunityTracker() *OpportunityTracker {
	return &OpportunityTracker{active: make(map[models.OpportunityKey]*trackedOpportunity)}
}

// Upsert применяет правило апсерта из детекции C4: обновляет существующую
// ACTIVE возможность или создает новую. Возвращает актуальное состояние и
// флаг, была ли возможность создана в этом вызове.
func (t *OpportunityTracker) Upsert(pair *models.FundingRatePair, detectedAt time.Time) (*models.ArbitrageOpportunity, bool) {
	key := models.OpportunityKey{Symbol: pair.Symbol, LongExchange: pair.LongExchange, ShortExchange: pair.ShortExchange}

	t.mu.Lock()
	defer t.mu.Unlock()

	tracked, exists := t.active[key]
	if !exists {
		tracked = &trackedOpportunity{
			opportunity: &models.ArbitrageOpportunity{
				ID:               uuid.NewString(),
				Symbol:           pair.Symbol,
				LongExchange:     pair.LongExchange,
				ShortExchange:    pair.ShortExchange,
				SpreadPercent:    pair.SpreadPercent,
				AnnualizedReturn: pair.AnnualizedReturn,
				NetReturn:        pair.NetReturn,
				Status:           models.OpportunityStatusActive,
				FirstSeenAt:      detectedAt,
				LastSeenAt:       detectedAt,
			},
			detectedAt:        detectedAt,
			maxSpread:         pair.SpreadPercent,
			maxSpreadAt:       detectedAt,
			annualizedSamples: []decimal.Decimal{pair.AnnualizedReturn},
		}
		t.active[key] = tracked
		return tracked.opportunity, true
	}

	tracked.opportunity.SpreadPercent = pair.SpreadPercent
	tracked.opportunity.AnnualizedReturn = pair.AnnualizedReturn
	tracked.opportunity.NetReturn = pair.NetReturn
	tracked.opportunity.LastSeenAt = detectedAt
	tracked.annualizedSamples = append(tracked.annualizedSamples, pair.AnnualizedReturn)

	if pair.SpreadPercent.GreaterThan(tracked.maxSpread) {
		tracked.maxSpread = pair.SpreadPercent
		tracked.maxSpreadAt = detectedAt
	}

	return tracked.opportunity, false
}

// Sweep реализует правило исчезновения: любая ACTIVE возможность, не
// упомянутая в последнем цикле детекции (seenInCycle), переводится в ENDED.
// Возвращает исторические записи для персистентности.
func (t *OpportunityTracker) Sweep(seenInCycle map[models.OpportunityKey]struct{}, now time.Time) []*models.OpportunityEndHistory {
	t.mu.Lock()
	defer t.mu.Unlock()

	var ended []*models.OpportunityEndHistory

	for key, tracked := range t.active {
		if _, seen := seenInCycle[key]; seen {
			continue
		}

		tracked.opportunity.Status = models.OpportunityStatusEnded
		tracked.opportunity.EndedAt = &now

		ended = append(ended, &models.OpportunityEndHistory{
			OpportunityID:    tracked.opportunity.ID,
			Symbol:           tracked.opportunity.Symbol,
			LongExchange:     tracked.opportunity.LongExchange,
			ShortExchange:    tracked.opportunity.ShortExchange,
			AnnualizedReturn: meanDecimal(tracked.annualizedSamples),
			DurationSeconds:  int64(now.Sub(tracked.detectedAt).Seconds()),
			EndedAt:          now,
		})

		delete(t.active, key)
	}

	return ended
}

// Active возвращает снимок всех активных возможностей.
func (t *OpportunityTracker) Active() []*models.ArbitrageOpportunity {
	t.mu.Lock()
	defer t.mu.Unlock()

	out := make([]*models.ArbitrageOpportunity, 0, len(t.active))
	for _, tracked := range t.active {
		out = append(out, tracked.opportunity)
	}
	return out
}

func meanDecimal(samples []decimal.Decimal) decimal.Decimal {
	if len(samples) == 0 {
		return decimal.Zero
	}
	sum := decimal.Zero
	for _, s := range samples {
		sum = sum.Add(s)
	}
	return sum.Div(decimal.NewFromInt(int64(len(samples))))
}
