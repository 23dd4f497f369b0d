package entity

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

type LoyaltyTier string

const (
	TierBronze   LoyaltyTier = "BRONZE"
	TierSilver   LoyaltyTier = "SILVER"
	TierGold     LoyaltyTier = "GOLD"
	TierPlatinum LoyaltyTier = "PLATINUM"
	TierDiamond  LoyaltyTier = "DIAMOND"
	TierVIP      LoyaltyTier = "VIP"
	TierElite    LoyaltyTier = "ELITE"
)

type CustomerLoyalty struct {
	PhoneNumber             string          `db:"phone_number"`
	TotalPoints             int64           `db:"total_points"`
	PointsEarnedTotal       int64           `db:"points_earned_total"`
	Tier                    LoyaltyTier     `db:"tier"`
	LifetimeSpend           decimal.Decimal `db:"lifetime_spend"`
	TotalTransactions       int             `db:"total_transactions"`
	AverageTransactionValue decimal.Decimal `db:"average_transaction_value"`
	IsHighValue             bool            `db:"is_high_value"`
	IsVIP                   bool            `db:"is_vip"`
	IsPlatinum              bool            `db:"is_platinum"`
	LastTransactionAt       *time.Time      `db:"last_transaction_at"`
	CreatedAt               time.Time       `db:"created_at"`
	UpdatedAt               time.Time       `db:"updated_at"`
}

type LoyaltyTransaction struct {
	ID          uuid.UUID       `db:"id"`
	OrderID     string          `db:"order_id"`
	PhoneNumber string          `db:"phone_number"`
	Amount      decimal.Decimal `db:"amount"`
	Points      int64           `db:"points"`
	TierAtAward LoyaltyTier     `db:"tier_at_award"`
	CreatedAt   time.Time       `db:"created_at"`
}
