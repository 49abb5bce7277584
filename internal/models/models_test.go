package models

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
)

func TestFundingIntervalSettlementsPerYear(t *testing.T) {
	assert.Equal(t, 24*365.0, FundingInterval1h.SettlementsPerYear())
	assert.Equal(t, 3*365.0, FundingInterval8h.SettlementsPerYear())
	assert.Equal(t, 365.0, FundingInterval24h.SettlementsPerYear())
}

func TestFundingRateRecordAnnualizedRate(t *testing.T) {
	r := &FundingRateRecord{
		Rate:     decimal.NewFromFloat(0.0001),
		Interval: FundingInterval8h,
	}
	got := r.AnnualizedRate()
	want := decimal.NewFromFloat(0.0001 * 3 * 365)
	assert.True(t, got.Equal(want), "got %s want %s", got, want)
}

func TestCanTransition(t *testing.T) {
	assert.True(t, CanTransition(PositionStatusPending, PositionStatusOpen))
	assert.True(t, CanTransition(PositionStatusPending, PositionStatusPartial))
	assert.False(t, CanTransition(PositionStatusClosed, PositionStatusOpen))
	assert.False(t, CanTransition(PositionStatusOpen, PositionStatusPending))
}

func TestPositionIsSingleLegged(t *testing.T) {
	now := time.Now()
	p := &Position{
		LongLeg:  PositionLeg{FilledAt: &now},
		ShortLeg: PositionLeg{},
	}
	assert.True(t, p.IsSingleLegged())
	assert.True(t, p.HasOpenLeg())
}
