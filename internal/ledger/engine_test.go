package ledger

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func configuredGroup(chatID int64) *GroupConfig {
	return &GroupConfig{
		ChatID:         chatID,
		DepositRate:    dec("0.20"),
		DepositFX:      dec("153"),
		WithdrawalRate: dec("0.02"),
		WithdrawalFX:   dec("137"),
	}
}

func TestConvertDeposit_TruncatesTowardZero(t *testing.T) {
	cfg := configuredGroup(1)

	// 10000 * 0.8 / 153 = 52.2875... -> 52.28, never 52.29
	got, err := ConvertDeposit(dec("10000"), cfg)
	require.NoError(t, err)
	assert.True(t, got.Equal(dec("52.28")), "got %s", got)
}

func TestConvertDeposit_ExactResultUnchanged(t *testing.T) {
	cfg := &GroupConfig{DepositRate: dec("0"), DepositFX: dec("100")}

	got, err := ConvertDeposit(dec("5000"), cfg)
	require.NoError(t, err)
	assert.True(t, got.Equal(dec("50")), "got %s", got)
}

func TestConvertWithdrawal_RoundsHalfUp(t *testing.T) {
	cfg := configuredGroup(1)

	// 5000 * 1.02 / 137 = 37.2262... -> 37.23
	got, err := ConvertWithdrawal(dec("5000"), cfg)
	require.NoError(t, err)
	assert.True(t, got.Equal(dec("37.23")), "got %s", got)
}

func TestConvert_UnconfiguredFX(t *testing.T) {
	cfg := DefaultGroupConfig(1)

	_, err := ConvertDeposit(dec("100"), cfg)
	assert.ErrorIs(t, err, ErrNotConfigured)

	_, err = ConvertWithdrawal(dec("100"), cfg)
	assert.ErrorIs(t, err, ErrNotConfigured)
}

func TestConvertDisbursement_KeepsSign(t *testing.T) {
	pos, err := ConvertDisbursement(dec("35.04"))
	require.NoError(t, err)
	assert.True(t, pos.Equal(dec("35.04")))

	neg, err := ConvertDisbursement(dec("-35.04"))
	require.NoError(t, err)
	assert.True(t, neg.Equal(dec("-35.04")))

	_, err = ConvertDisbursement(decimal.Zero)
	assert.ErrorIs(t, err, ErrInvalidAmount)
}

func TestTransactionValidate(t *testing.T) {
	tx := &Transaction{Kind: KindDeposit, RawAmount: dec("10"), Converted: dec("8")}
	assert.NoError(t, tx.Validate())

	tx = &Transaction{Kind: Kind("refund"), RawAmount: dec("10")}
	assert.ErrorIs(t, tx.Validate(), ErrInvalidKind)

	tx = &Transaction{Kind: KindDeposit, RawAmount: dec("-1")}
	assert.ErrorIs(t, tx.Validate(), ErrInvalidAmount)

	// Disbursement raw must be abs(converted)
	tx = &Transaction{Kind: KindDisbursement, RawAmount: dec("35.04"), Converted: dec("-35.04")}
	assert.NoError(t, tx.Validate())

	tx = &Transaction{Kind: KindDisbursement, RawAmount: dec("35.04"), Converted: dec("-36")}
	assert.ErrorIs(t, tx.Validate(), ErrInvalidAmount)
}

func TestGroupConfigApply_MergesOnlyGivenFields(t *testing.T) {
	cfg := configuredGroup(7)

	newFX := dec("160")
	name := "Tokyo desk"
	cfg.Apply(ConfigPatch{DepositFX: &newFX, DisplayName: &name})

	assert.True(t, cfg.DepositFX.Equal(dec("160")))
	assert.Equal(t, "Tokyo desk", cfg.DisplayName)
	// Untouched fields survive the merge.
	assert.True(t, cfg.DepositRate.Equal(dec("0.20")))
	assert.True(t, cfg.WithdrawalFX.Equal(dec("137")))
}
