package usecase

import (
	"context"
	"errors"
	"testing"

	"isp-portal/internal/data/entity"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTierForPoints(t *testing.T) {
	tests := []struct {
		points int64
		want   entity.LoyaltyTier
	}{
		{0, entity.TierBronze},
		{999, entity.TierBronze},
		{1000, entity.TierSilver},
		{4999, entity.TierSilver},
		{5000, entity.TierGold},
		{10000, entity.TierPlatinum},
		{25000, entity.TierDiamond},
		{50000, entity.TierVIP},
		{100000, entity.TierElite},
		{5_000_000, entity.TierElite},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.want, TierForPoints(tt.points), "points=%d", tt.points)
	}
}

func TestPointsFor(t *testing.T) {
	tests := []struct {
		name   string
		amount string
		tier   entity.LoyaltyTier
		want   int64
	}{
		{"bronze has no bonus", "2000", entity.TierBronze, 20},
		{"partial hundreds drop", "2099.99", entity.TierBronze, 20},
		{"silver five percent", "3000", entity.TierSilver, 31},
		{"gold ten percent", "10000", entity.TierGold, 110},
		{"elite thirty percent", "1000", entity.TierElite, 13},
		{"below one unit", "99", entity.TierVIP, 0},
		{"negative amount", "-500", entity.TierBronze, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, PointsFor(decimal.RequireFromString(tt.amount), tt.tier))
		})
	}
}

func TestAwardPoints_AccumulatesAndPromotes(t *testing.T) {
	f := newFixture()
	ctx := context.Background()

	first, err := f.svc.Loyalty.AwardPoints(ctx, "0766123456", "ORDER-1", decimal.NewFromInt(100000))
	require.NoError(t, err)
	assert.Equal(t, int64(1000), first.Points)
	assert.Equal(t, entity.TierBronze, first.TierBefore)
	assert.Equal(t, entity.TierSilver, first.TierAfter)

	// silver bonus applies from the next award on
	second, err := f.svc.Loyalty.AwardPoints(ctx, "255766123456", "ORDER-2", decimal.NewFromInt(10000))
	require.NoError(t, err)
	assert.Equal(t, int64(105), second.Points)
	assert.Equal(t, int64(1105), second.TotalPoints)

	account, err := f.svc.Loyalty.GetLoyalty(ctx, testPhone)
	require.NoError(t, err)
	assert.Equal(t, entity.TierSilver, account.Tier)
	assert.Equal(t, 5, account.TierBonusPercent)
	assert.Equal(t, 2, account.TotalTransactions)
	assert.True(t, account.LifetimeSpend.Equal(decimal.NewFromInt(110000)))
	assert.True(t, account.AverageTransactionValue.Equal(decimal.NewFromInt(55000)))
	assert.True(t, account.IsHighValue)
	assert.False(t, account.IsVIP)
	require.NotNil(t, account.NextTier)
	assert.Equal(t, entity.TierGold, *account.NextTier)
	assert.Equal(t, int64(5000-1105), account.PointsToNextTier)
}

func TestAwardPoints_DuplicateOrderIgnored(t *testing.T) {
	f := newFixture()
	ctx := context.Background()

	_, err := f.svc.Loyalty.AwardPoints(ctx, testPhone, "ORDER-1", decimal.NewFromInt(5000))
	require.NoError(t, err)

	again, err := f.svc.Loyalty.AwardPoints(ctx, testPhone, "ORDER-1", decimal.NewFromInt(5000))
	require.NoError(t, err)
	assert.True(t, again.Duplicate)
	assert.Zero(t, again.Points)
	assert.Equal(t, int64(50), again.TotalPoints)
}

func TestGetLoyalty_UnknownPhoneStartsAtBronze(t *testing.T) {
	f := newFixture()

	account, err := f.svc.Loyalty.GetLoyalty(context.Background(), testPhone)
	require.NoError(t, err)
	assert.Equal(t, entity.TierBronze, account.Tier)
	assert.Zero(t, account.TotalPoints)
	require.NotNil(t, account.NextTier)
	assert.Equal(t, int64(1000), account.PointsToNextTier)
}

func TestGetLoyalty_InvalidPhone(t *testing.T) {
	f := newFixture()

	_, err := f.svc.Loyalty.GetLoyalty(context.Background(), "12")

	var verr *ValidationError
	require.True(t, errors.As(err, &verr))
	assert.Equal(t, CodeInvalidMsisdn, verr.Code)
}
