package usecase

import (
	"context"
	"fmt"
	"time"

	"isp-portal/internal/data/entity"
	"isp-portal/internal/data/repository"
	"isp-portal/internal/dto/response"
	"isp-portal/pkg/utils"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

type tierRule struct {
	tier      entity.LoyaltyTier
	threshold int64
	bonus     int
}

// ascending by threshold
var tierRules = []tierRule{
	{entity.TierBronze, 0, 0},
	{entity.TierSilver, 1000, 5},
	{entity.TierGold, 5000, 10},
	{entity.TierPlatinum, 10000, 15},
	{entity.TierDiamond, 25000, 20},
	{entity.TierVIP, 50000, 25},
	{entity.TierElite, 100000, 30},
}

var (
	pointsUnit        = decimal.NewFromInt(100)
	highValueSpend    = decimal.NewFromInt(100_000)
	vipSpend          = decimal.NewFromInt(500_000)
	platinumSpend     = decimal.NewFromInt(1_000_000)
	oneHundredPercent = decimal.NewFromInt(100)
)

// TierForPoints returns the highest tier whose threshold points reaches.
func TierForPoints(points int64) entity.LoyaltyTier {
	tier := entity.TierBronze
	for _, r := range tierRules {
		if points >= r.threshold {
			tier = r.tier
		}
	}
	return tier
}

func TierBonus(tier entity.LoyaltyTier) int {
	for _, r := range tierRules {
		if r.tier == tier {
			return r.bonus
		}
	}
	return 0
}

// PointsFor is floor(amount/100) boosted by the tier bonus, rounded down.
func PointsFor(amount decimal.Decimal, tier entity.LoyaltyTier) int64 {
	base := amount.Div(pointsUnit).Floor()
	if base.IsNegative() {
		return 0
	}
	multiplier := oneHundredPercent.Add(decimal.NewFromInt(int64(TierBonus(tier)))).Div(oneHundredPercent)
	return base.Mul(multiplier).Floor().IntPart()
}

func nextTier(points int64) (*entity.LoyaltyTier, int64) {
	for _, r := range tierRules {
		if r.threshold > points {
			t := r.tier
			return &t, r.threshold - points
		}
	}
	return nil, 0
}

type LoyaltyService interface {
	AwardPoints(ctx context.Context, phone, orderID string, amount decimal.Decimal) (*response.LoyaltyAwardResponse, error)
	GetLoyalty(ctx context.Context, phone string) (*response.LoyaltyResponse, error)
}

type loyaltyService struct {
	repo *repository.Repository
	log  *zap.Logger
}

func NewLoyaltyService(repo *repository.Repository, log *zap.Logger) LoyaltyService {
	return &loyaltyService{
		repo: repo,
		log:  log.With(zap.String("service", "loyalty")),
	}
}

func (s *loyaltyService) AwardPoints(ctx context.Context, phone, orderID string, amount decimal.Decimal) (*response.LoyaltyAwardResponse, error) {
	phone = utils.NormalizePhone(phone)
	var result *response.LoyaltyAwardResponse

	err := s.repo.Tx.WithinTx(ctx, func(tx *repository.Repository) error {
		now := time.Now()

		// a first award must still lock a row, or concurrent awards for a
		// new phone overwrite each other
		if err := tx.Loyalty.EnsureAccount(ctx, phone, now); err != nil {
			return err
		}
		account, err := tx.Loyalty.FindByPhoneForUpdate(ctx, phone)
		if err != nil {
			return err
		}
		if account == nil {
			return fmt.Errorf("loyalty account %s missing after seed", phone)
		}
		if account.Tier == "" {
			account.Tier = TierForPoints(account.TotalPoints)
		}

		// bonus uses the tier held before this award
		before := account.Tier
		points := PointsFor(amount, before)

		inserted, err := tx.Loyalty.InsertTransaction(ctx, &entity.LoyaltyTransaction{
			ID:          utils.GenerateUUID(),
			OrderID:     orderID,
			PhoneNumber: phone,
			Amount:      amount,
			Points:      points,
			TierAtAward: before,
			CreatedAt:   now,
		})
		if err != nil {
			return err
		}
		if !inserted {
			result = &response.LoyaltyAwardResponse{
				OrderID:     orderID,
				TierBefore:  before,
				TierAfter:   account.Tier,
				TotalPoints: account.TotalPoints,
				Duplicate:   true,
			}
			return nil
		}

		account.TotalPoints += points
		account.PointsEarnedTotal += points
		account.LifetimeSpend = account.LifetimeSpend.Add(amount)
		account.TotalTransactions++
		account.AverageTransactionValue = account.LifetimeSpend.
			Div(decimal.NewFromInt(int64(account.TotalTransactions))).
			Round(2)
		account.Tier = TierForPoints(account.TotalPoints)
		account.IsHighValue = account.LifetimeSpend.GreaterThanOrEqual(highValueSpend)
		account.IsVIP = account.LifetimeSpend.GreaterThanOrEqual(vipSpend)
		account.IsPlatinum = account.LifetimeSpend.GreaterThanOrEqual(platinumSpend)
		account.LastTransactionAt = &now
		account.UpdatedAt = now

		if err := tx.Loyalty.Save(ctx, account); err != nil {
			return err
		}

		result = &response.LoyaltyAwardResponse{
			OrderID:     orderID,
			Points:      points,
			TierBefore:  before,
			TierAfter:   account.Tier,
			TotalPoints: account.TotalPoints,
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	if result.Duplicate {
		s.log.Debug("Loyalty award already recorded", zap.String("order_id", orderID))
	} else {
		s.log.Info("Loyalty points awarded",
			zap.String("order_id", orderID),
			zap.Int64("points", result.Points),
			zap.String("tier", string(result.TierAfter)),
		)
	}
	return result, nil
}

func (s *loyaltyService) GetLoyalty(ctx context.Context, phone string) (*response.LoyaltyResponse, error) {
	if !utils.IsValidMSISDN(phone) {
		return nil, newValidationError(CodeInvalidMsisdn, "phone", "Phone number must have 9 to 15 digits")
	}
	phone = utils.NormalizePhone(phone)

	account, err := s.repo.Loyalty.FindByPhone(ctx, phone)
	if err != nil {
		return nil, err
	}
	if account == nil {
		account = &entity.CustomerLoyalty{
			PhoneNumber:             phone,
			Tier:                    entity.TierBronze,
			LifetimeSpend:           decimal.Zero,
			AverageTransactionValue: decimal.Zero,
		}
	}

	next, toNext := nextTier(account.TotalPoints)

	return &response.LoyaltyResponse{
		PhoneNumber:             account.PhoneNumber,
		TotalPoints:             account.TotalPoints,
		PointsEarnedTotal:       account.PointsEarnedTotal,
		Tier:                    account.Tier,
		TierBonusPercent:        TierBonus(account.Tier),
		NextTier:                next,
		PointsToNextTier:        toNext,
		LifetimeSpend:           account.LifetimeSpend,
		TotalTransactions:       account.TotalTransactions,
		AverageTransactionValue: account.AverageTransactionValue,
		IsHighValue:             account.IsHighValue,
		IsVIP:                   account.IsVIP,
		IsPlatinum:              account.IsPlatinum,
		LastTransactionAt:       account.LastTransactionAt,
	}, nil
}
