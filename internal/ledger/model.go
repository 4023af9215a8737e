package ledger

import (
	"time"

	"github.com/shopspring/decimal"
)

// Kind classifies a money movement.
type Kind string

const (
	// KindDeposit is inbound money converted at a discount rate,
	// truncated in the house's favor.
	KindDeposit Kind = "deposit"
	// KindWithdrawal is outbound money converted at a surcharge rate,
	// rounded normally.
	KindWithdrawal Kind = "withdrawal"
	// KindDisbursement is a direct settlement-currency payout, signed so
	// a negative record retracts an earlier positive one.
	KindDisbursement Kind = "disbursement"
)

// Valid reports whether k is a known kind.
func (k Kind) Valid() bool {
	switch k {
	case KindDeposit, KindWithdrawal, KindDisbursement:
		return true
	}
	return false
}

// DefaultTag groups transactions recorded without an explicit label.
const DefaultTag = "general"

// Canonical quick-setup rates applied by the reset-defaults operation.
var (
	DefaultDepositRate    = decimal.RequireFromString("0.10")
	DefaultDepositFX      = decimal.RequireFromString("153")
	DefaultWithdrawalRate = decimal.RequireFromString("0.02")
	DefaultWithdrawalFX   = decimal.RequireFromString("137")
)

// Transaction is one immutable ledger record. After creation the only
// permitted changes are the one-time external reference attachment and
// deletion through undo or period reset.
type Transaction struct {
	ID           int64           `json:"id"`
	ChatID       int64           `json:"chat_id"`
	Kind         Kind            `json:"kind"`
	RawAmount    decimal.Decimal `json:"raw_amount"`
	Rate         decimal.Decimal `json:"rate"`
	FX           decimal.Decimal `json:"fx"`
	Converted    decimal.Decimal `json:"converted_amount"`
	Tag          string          `json:"tag"`
	CreatedAt    time.Time       `json:"created_at"`
	OperatorID   int64           `json:"operator_id"`
	OperatorName string          `json:"operator_name"`
	ExternalRef  *string         `json:"external_ref,omitempty"`
}

// Validate checks the record invariants before it reaches a store.
func (t *Transaction) Validate() error {
	if !t.Kind.Valid() {
		return ErrInvalidKind
	}
	if t.RawAmount.Sign() <= 0 {
		return ErrInvalidAmount
	}
	if t.Kind == KindDisbursement {
		if t.Converted.Sign() == 0 {
			return ErrInvalidAmount
		}
		if !t.Converted.Abs().Equal(t.RawAmount) {
			return ErrInvalidAmount
		}
	}
	return nil
}

// Operator identifies who issued a command. The engine trusts its caller
// to have authorized the operator already.
type Operator struct {
	ID   int64
	Name string
}

// GroupConfig holds one chat group's fee-rate and fixed-exchange-rate
// settings. A zero fx means "not yet configured".
type GroupConfig struct {
	ChatID         int64           `json:"chat_id"`
	DepositRate    decimal.Decimal `json:"deposit_rate"`
	DepositFX      decimal.Decimal `json:"deposit_fx"`
	WithdrawalRate decimal.Decimal `json:"withdrawal_rate"`
	WithdrawalFX   decimal.Decimal `json:"withdrawal_fx"`
	DisplayName    string          `json:"display_name"`
}

// DefaultGroupConfig is the zero-valued config created on first access.
func DefaultGroupConfig(chatID int64) *GroupConfig {
	return &GroupConfig{
		ChatID:         chatID,
		DepositRate:    decimal.Zero,
		DepositFX:      decimal.Zero,
		WithdrawalRate: decimal.Zero,
		WithdrawalFX:   decimal.Zero,
	}
}

// ConfigPatch carries the fields of a partial config update; nil fields
// are left untouched by Apply.
type ConfigPatch struct {
	DepositRate    *decimal.Decimal
	DepositFX      *decimal.Decimal
	WithdrawalRate *decimal.Decimal
	WithdrawalFX   *decimal.Decimal
	DisplayName    *string
}

// Apply merges the patch into c.
func (c *GroupConfig) Apply(p ConfigPatch) {
	if p.DepositRate != nil {
		c.DepositRate = *p.DepositRate
	}
	if p.DepositFX != nil {
		c.DepositFX = *p.DepositFX
	}
	if p.WithdrawalRate != nil {
		c.WithdrawalRate = *p.WithdrawalRate
	}
	if p.WithdrawalFX != nil {
		c.WithdrawalFX = *p.WithdrawalFX
	}
	if p.DisplayName != nil {
		c.DisplayName = *p.DisplayName
	}
}

// Admin is one entry of the installation-wide admin set. The set is
// consulted by the transport layer, never by the engine itself.
type Admin struct {
	UserID      int64  `json:"user_id"`
	Username    string `json:"username"`
	DisplayName string `json:"display_name"`
	IsOwner     bool   `json:"is_owner"`
}

// KindStats is the count and converted-amount sum for one kind.
type KindStats struct {
	Count  int             `json:"count"`
	Amount decimal.Decimal `json:"amount"`
}

// ResetStats reports what a period reset removed, grouped by kind.
type ResetStats struct {
	Deposit      KindStats `json:"deposit"`
	Withdrawal   KindStats `json:"withdrawal"`
	Disbursement KindStats `json:"disbursement"`
}

// Total is the number of removed records across all kinds.
func (s *ResetStats) Total() int {
	return s.Deposit.Count + s.Withdrawal.Count + s.Disbursement.Count
}

// OperatorStats is the per-operator audit breakdown within a period.
type OperatorStats struct {
	OperatorID         int64           `json:"operator_id"`
	OperatorName       string          `json:"operator_name"`
	DepositCount       int             `json:"deposit_count"`
	DepositAmount      decimal.Decimal `json:"deposit_amount"`
	WithdrawalCount    int             `json:"withdrawal_count"`
	WithdrawalAmount   decimal.Decimal `json:"withdrawal_amount"`
	DisbursementCount  int             `json:"disbursement_count"`
	DisbursementAmount decimal.Decimal `json:"disbursement_amount"`
}
