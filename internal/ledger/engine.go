package ledger

import (
	"github.com/shopspring/decimal"

	"github.com/tallyops/settlebook/pkg/money"
)

var one = decimal.NewFromInt(1)

// ConvertDeposit converts a raw deposit into the settlement currency:
// trunc2(raw * (1 - deposit_rate) / deposit_fx). Truncation never rounds
// up, so the credited amount never exceeds what was received.
func ConvertDeposit(raw decimal.Decimal, cfg *GroupConfig) (decimal.Decimal, error) {
	if cfg.DepositFX.Sign() == 0 {
		return decimal.Zero, ErrNotConfigured
	}
	return money.Trunc2(raw.Mul(one.Sub(cfg.DepositRate)).Div(cfg.DepositFX)), nil
}

// ConvertWithdrawal converts a raw withdrawal into the settlement
// currency: round2(raw * (1 + withdrawal_rate) / withdrawal_fx).
func ConvertWithdrawal(raw decimal.Decimal, cfg *GroupConfig) (decimal.Decimal, error) {
	if cfg.WithdrawalFX.Sign() == 0 {
		return decimal.Zero, ErrNotConfigured
	}
	return money.Round2(raw.Mul(one.Add(cfg.WithdrawalRate)).Div(cfg.WithdrawalFX)), nil
}

// ConvertDisbursement passes the signed settlement amount straight
// through, rounded to the ledger's 2-decimal grain. A negative value
// retracts an earlier positive disbursement.
func ConvertDisbursement(signed decimal.Decimal) (decimal.Decimal, error) {
	if signed.Sign() == 0 {
		return decimal.Zero, ErrInvalidAmount
	}
	return money.Round2(signed), nil
}
