package bot

import (
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"fundingarb/internal/models"
)

// ============ ОПТИМИЗАЦИЯ: Inline FNV-1a hash без аллокаций ============
const (
	fnvOffset32 = uint32(2166136261)
	fnvPrime32  = uint32(16777619)
)

// fnvHash вычисляет FNV-1a hash строки без аллокаций на куче.
func fnvHash(s string) uint32 {
	h := fnvOffset32
	for i := 0; i < len(s); i++ {
		h ^= uint32(s[i])
		h *= fnvPrime32
	}
	return h
}

// totalCostRate - совокупная стоимость открытия и закрытия обеих ног:
// 4 тейкер-сделки по 0.05% (0.2%) + проскальзывание 0.1% + конвергенция цены 0.15% + запас 0.05%.
var totalCostRate = decimal.NewFromFloat(0.005)

// priceDirectionTolerance - допустимое превышение цены long-ноги над short-ногой.
var priceDirectionTolerance = decimal.NewFromFloat(0.0005)

// FundingRateTracker - шардированное хранилище последних известных ставок
// фандинга по каждой паре (symbol, exchange).
//
// Архитектура унаследована от трекера лучших бид/аск цен: шардирование по
// символу разносит несвязанные символы по разным мьютексам. Индекс
// symbol → []exchange пополняется в Update, но при пересчёте лучшей пары
// не читается: перебираются записи снимка rates[symbol].
type FundingRateTracker struct {
	shards    []*rateShard
	numShards uint32
}

type rateShard struct {
	mu sync.RWMutex
	// rates[symbol][exchange] = последняя известная ставка
	rates map[string]map[models.Exchange]*models.FundingRateRecord
	// symbolIndex - биржи, по которым для символа получена хотя бы одна ставка
	symbolIndex map[string][]models.Exchange
}

// NewFundingRateTracker создаёт шардированный трекер. numShards обычно
// соответствует числу воркеров движка.
func NewFundingRateTracker(numShards int) *FundingRateTracker {
	if numShards <= 0 {
		numShards = 16
	}
	t := &FundingRateTracker{shards: make([]*rateShard, numShards), numShards: uint32(numShards)}
	for i := 0; i < numShards; i++ {
		t.shards[i] = &rateShard{
			rates:       make(map[string]map[models.Exchange]*models.FundingRateRecord),
			symbolIndex: make(map[string][]models.Exchange),
		}
	}
	return t
}

func (t *FundingRateTracker) getShard(symbol models.Symbol) *rateShard {
	idx := fnvHash(string(symbol)) % t.numShards
	return t.shards[idx]
}

// Update записывает последнюю ставку фандинга и возвращает снимок всех
// известных ставок по символу после обновления (для немедленного пересчёта пары).
func (t *FundingRateTracker) Update(rec *models.FundingRateRecord) map[models.Exchange]*models.FundingRateRecord {
	shard := t.getShard(rec.Symbol)
	symbol := string(rec.Symbol)

	shard.mu.Lock()
	defer shard.mu.Unlock()

	byExchange, ok := shard.rates[symbol]
	if !ok {
		byExchange = make(map[models.Exchange]*models.FundingRateRecord)
		shard.rates[symbol] = byExchange
	}
	if _, exists := byExchange[rec.Exchange]; !exists {
		shard.symbolIndex[symbol] = append(shard.symbolIndex[symbol], rec.Exchange)
	}
	byExchange[rec.Exchange] = rec

	snapshot := make(map[models.Exchange]*models.FundingRateRecord, len(byExchange))
	for ex, r := range byExchange {
		snapshot[ex] = r
	}
	return snapshot
}

// Snapshot возвращает копию известных ставок для символа.
func (t *FundingRateTracker) Snapshot(symbol models.Symbol) map[models.Exchange]*models.FundingRateRecord {
	shard := t.getShard(symbol)
	shard.mu.RLock()
	defer shard.mu.RUnlock()

	byExchange := shard.rates[string(symbol)]
	snapshot := make(map[models.Exchange]*models.FundingRateRecord, len(byExchange))
	for ex, r := range byExchange {
		snapshot[ex] = r
	}
	return snapshot
}

// Symbols возвращает список символов, по которым есть хотя бы одна ставка,
// во всех шардах. Используется периодической разверткой Opportunity Tracker.
func (t *FundingRateTracker) Symbols() []models.Symbol {
	var out []models.Symbol
	for _, shard := range t.shards {
		shard.mu.RLock()
		for symbol := range shard.rates {
			out = append(out, models.Symbol(symbol))
		}
		shard.mu.RUnlock()
	}
	return out
}

// PairEngine реализует алгоритм Funding Pair Engine: по каждому символу
// перебирает все упорядоченные пары бирж и выбирает лучшую по netReturn.
type PairEngine struct {
	tracker *FundingRateTracker
}

func NewPairEngine(tracker *FundingRateTracker) *PairEngine {
	return &PairEngine{tracker: tracker}
}

// minInterval возвращает меньший из двух интервалов фандинга (чаще начисляемый).
func minInterval(a, b models.FundingInterval) models.FundingInterval {
	if a.SettlementsPerYear() >= b.SettlementsPerYear() {
		return a
	}
	return b
}

// BestPair пересчитывает лучшую пару бирж для символа на основе текущего
// снимка ставок. Возвращает nil, если данных меньше чем по двум биржам.
func (e *PairEngine) BestPair(symbol models.Symbol, rates map[models.Exchange]*models.FundingRateRecord) *models.FundingRatePair {
	if len(rates) < 2 {
		return nil
	}

	var best *models.FundingRatePair

	// Шаг 1: перебор всех N*(N-1) упорядоченных пар (longEx, shortEx), longEx != shortEx.
	for longEx, longRate := range rates {
		for shortEx, shortRate := range rates {
			if longEx == shortEx {
				continue
			}

			pair := e.evaluatePair(symbol, longEx, longRate, shortEx, shortRate)
			if best == nil || isBetterPair(pair, best) {
				best = pair
			}
		}
	}

	return best
}

// evaluatePair вычисляет метрики одной направленной пары (шаги 2-4 алгоритма).
func (e *PairEngine) evaluatePair(
	symbol models.Symbol,
	longEx models.Exchange, longRate *models.FundingRateRecord,
	shortEx models.Exchange, shortRate *models.FundingRateRecord,
) *models.FundingRatePair {
	spread := shortRate.Rate.Sub(longRate.Rate)
	spreadPercent := spread.Mul(decimal.NewFromInt(100))

	interval := minInterval(longRate.Interval, shortRate.Interval)
	settlementsPerYear := decimal.NewFromFloat(interval.SettlementsPerYear())
	annualizedReturn := spread.Mul(settlementsPerYear)
	netReturn := spread.Sub(totalCostRate)

	// isPriceDirectionCorrect: long-нога не должна быть заметно дороже short-ноги.
	priceDirectionOK := true
	if !longRate.MarkPrice.IsZero() && !shortRate.MarkPrice.IsZero() {
		threshold := longRate.MarkPrice.Mul(priceDirectionTolerance)
		priceDirectionOK = shortRate.MarkPrice.GreaterThanOrEqual(longRate.MarkPrice.Sub(threshold))
	}

	return &models.FundingRatePair{
		Symbol:           symbol,
		LongExchange:     longEx,
		ShortExchange:    shortEx,
		SpreadPercent:    spreadPercent,
		AnnualizedReturn: annualizedReturn,
		NetReturn:        netReturn,
		PriceDirectionOK: priceDirectionOK,
	}
}

// isBetterPair реализует правило выбора лучшей пары: наибольший netReturn,
// при равенстве - наибольший annualizedReturn, затем лексикографически
// меньшая longExchange, затем shortExchange.
func isBetterPair(candidate, current *models.FundingRatePair) bool {
	if !candidate.NetReturn.Equal(current.NetReturn) {
		return candidate.NetReturn.GreaterThan(current.NetReturn)
	}
	if !candidate.AnnualizedReturn.Equal(current.AnnualizedReturn) {
		return candidate.AnnualizedReturn.GreaterThan(current.AnnualizedReturn)
	}
	if candidate.LongExchange != current.LongExchange {
		return candidate.LongExchange < current.LongExchange
	}
	return candidate.ShortExchange < current.ShortExchange
}

// OpportunityDetected - событие, эмитируемое движком когда лучшая пара по
// символу превышает минимальный порог доходности и направление цены корректно.
type OpportunityDetected struct {
	Pair      *models.FundingRatePair
	DetectedAt time.Time
}

// Evaluate выполняет полный цикл для символа (шаги 1-6 алгоритма) и
// возвращает событие обнаружения, если лучшая пара проходит порог.
func (e *PairEngine) Evaluate(symbol models.Symbol, minProfitThreshold decimal.Decimal) *OpportunityDetected {
	rates := e.tracker.Snapshot(symbol)
	best := e.BestPair(symbol, rates)
	if best == nil {
		return nil
	}
	if !best.PriceDirectionOK {
		return nil
	}
	if best.NetReturn.LessThanOrEqual(minProfitThreshold) {
		return nil
	}
	return &OpportunityDetected{Pair: best, DetectedAt: time.Now()}
}
