package response

import (
	"time"

	"isp-portal/internal/data/entity"

	"github.com/shopspring/decimal"
)

type LoyaltyResponse struct {
	PhoneNumber             string              `json:"phone_number"`
	TotalPoints             int64               `json:"total_points"`
	PointsEarnedTotal       int64               `json:"points_earned_total"`
	Tier                    entity.LoyaltyTier  `json:"tier"`
	TierBonusPercent        int                 `json:"tier_bonus_percent"`
	NextTier                *entity.LoyaltyTier `json:"next_tier,omitempty"`
	PointsToNextTier        int64               `json:"points_to_next_tier"`
	LifetimeSpend           decimal.Decimal     `json:"lifetime_spend"`
	TotalTransactions       int                 `json:"total_transactions"`
	AverageTransactionValue decimal.Decimal     `json:"average_transaction_value"`
	IsHighValue             bool                `json:"is_high_value"`
	IsVIP                   bool                `json:"is_vip"`
	IsPlatinum              bool                `json:"is_platinum"`
	LastTransactionAt       *time.Time          `json:"last_transaction_at,omitempty"`
}

// LoyaltyAwardResponse describes one award, returned to the task handler.
type LoyaltyAwardResponse struct {
	OrderID     string             `json:"order_id"`
	Points      int64              `json:"points"`
	TierBefore  entity.LoyaltyTier `json:"tier_before"`
	TierAfter   entity.LoyaltyTier `json:"tier_after"`
	TotalPoints int64              `json:"total_points"`
	Duplicate   bool               `json:"duplicate"`
}
