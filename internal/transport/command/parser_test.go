package command

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func TestParse_Deposit(t *testing.T) {
	cmd, ok := Parse("+100")
	require.True(t, ok)
	d, ok := cmd.(Deposit)
	require.True(t, ok)
	assert.True(t, d.Amount.Equal(dec("100")))
	assert.Empty(t, d.Tag)

	cmd, ok = Parse("+100.50 / jp")
	require.True(t, ok)
	d = cmd.(Deposit)
	assert.True(t, d.Amount.Equal(dec("100.50")))
	assert.Equal(t, "jp", d.Tag)
}

func TestParse_Withdrawal(t *testing.T) {
	cmd, ok := Parse("-250.5")
	require.True(t, ok)
	w, ok := cmd.(Withdrawal)
	require.True(t, ok)
	assert.True(t, w.Amount.Equal(dec("250.5")))

	cmd, ok = Parse("-250.5 / us")
	require.True(t, ok)
	w = cmd.(Withdrawal)
	assert.Equal(t, "us", w.Tag)
}

func TestParse_Payout(t *testing.T) {
	cmd, ok := Parse("payout 35.04")
	require.True(t, ok)
	p := cmd.(Payout)
	assert.True(t, p.Amount.Equal(dec("35.04")))

	cmd, ok = Parse("payout -35.04")
	require.True(t, ok)
	p = cmd.(Payout)
	assert.True(t, p.Amount.Equal(dec("-35.04")), "retractions keep their sign")

	_, ok = Parse("payout 0")
	assert.False(t, ok, "zero payout is meaningless")
}

func TestParse_Keywords(t *testing.T) {
	cmd, ok := Parse("summary")
	require.True(t, ok)
	assert.False(t, cmd.(ShowSummary).Full)

	cmd, ok = Parse("Full Summary")
	require.True(t, ok)
	assert.True(t, cmd.(ShowSummary).Full)

	_, ok = Parse("undo")
	assert.True(t, ok)

	cmd, ok = Parse("clear today")
	require.True(t, ok)
	assert.IsType(t, ClearPeriod{}, cmd)

	cmd, ok = Parse("reset defaults")
	require.True(t, ok)
	assert.IsType(t, ResetDefaults{}, cmd)

	_, ok = Parse("help")
	assert.True(t, ok)
}

func TestParse_SetRates(t *testing.T) {
	cmd, ok := Parse("set deposit rate 10%")
	require.True(t, ok)
	sr := cmd.(SetRates)
	require.NotNil(t, sr.Patch.DepositRate)
	assert.True(t, sr.Patch.DepositRate.Equal(dec("0.1")))
	assert.Nil(t, sr.Patch.DepositFX)

	cmd, ok = Parse("set deposit fx 153")
	require.True(t, ok)
	sr = cmd.(SetRates)
	require.NotNil(t, sr.Patch.DepositFX)
	assert.True(t, sr.Patch.DepositFX.Equal(dec("153")))

	cmd, ok = Parse("set withdrawal rate 0.02")
	require.True(t, ok)
	sr = cmd.(SetRates)
	require.NotNil(t, sr.Patch.WithdrawalRate)
	assert.True(t, sr.Patch.WithdrawalRate.Equal(dec("0.02")))

	cmd, ok = Parse("set withdrawal fx 137")
	require.True(t, ok)
	sr = cmd.(SetRates)
	require.NotNil(t, sr.Patch.WithdrawalFX)
	assert.True(t, sr.Patch.WithdrawalFX.Equal(dec("137")))
}

func TestParse_NotACommand(t *testing.T) {
	for _, text := range []string{
		"",
		"hello everyone",
		"+",
		"+abc",
		"+0",
		"-0",
		"--5",
		"payout abc",
		"set deposit rate abc",
		"set deposit rate 150",
		"set sideways fx 10",
		"summarize",
	} {
		_, ok := Parse(text)
		assert.False(t, ok, "%q must not parse", text)
	}
}
