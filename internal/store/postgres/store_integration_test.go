//go:build integration

package postgres

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tallyops/settlebook/internal/ledger"
	"github.com/tallyops/settlebook/testutil/testdb"
)

var testDB *testdb.TestDB

func TestMain(m *testing.M) {
	ctx := context.Background()

	var err error
	testDB, err = testdb.NewTestDB(ctx)
	if err != nil {
		panic("failed to create test database: " + err.Error())
	}

	code := m.Run()

	testDB.Close(ctx)
	if code != 0 {
		panic("tests failed")
	}
}

func setupTest(t *testing.T) (*Store, context.Context) {
	ctx := context.Background()
	require.NoError(t, testDB.Reset(ctx))

	return NewStore(testDB.Pool), ctx
}

func dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func testTx(chatID int64, kind ledger.Kind, converted string) *ledger.Transaction {
	c := dec(converted)
	raw := c.Abs()
	if kind != ledger.KindDisbursement {
		raw = dec("10000")
	}
	return &ledger.Transaction{
		ChatID:       chatID,
		Kind:         kind,
		RawAmount:    raw,
		Rate:         dec("0.20"),
		FX:           dec("153"),
		Converted:    c,
		Tag:          ledger.DefaultTag,
		CreatedAt:    time.Now().UTC(),
		OperatorID:   42,
		OperatorName: "alice",
	}
}

func TestStore_AppendAndList(t *testing.T) {
	store, ctx := setupTest(t)

	id1, err := store.Append(ctx, testTx(1, ledger.KindDeposit, "52.28"))
	require.NoError(t, err)
	id2, err := store.Append(ctx, testTx(1, ledger.KindWithdrawal, "37.23"))
	require.NoError(t, err)
	assert.Greater(t, id2, id1)

	// Another chat's records stay out of the listing.
	_, err = store.Append(ctx, testTx(2, ledger.KindDeposit, "1.00"))
	require.NoError(t, err)

	txs, err := store.List(ctx, 1, nil)
	require.NoError(t, err)
	require.Len(t, txs, 2)
	assert.Equal(t, id1, txs[0].ID)
	assert.Equal(t, ledger.KindDeposit, txs[0].Kind)
	assert.True(t, txs[0].Converted.Equal(dec("52.28")), "converted %s", txs[0].Converted)
	assert.True(t, txs[0].RawAmount.Equal(dec("10000")))
}

func TestStore_List_SinceFilter(t *testing.T) {
	store, ctx := setupTest(t)

	cutoff := time.Now().UTC()

	early := testTx(1, ledger.KindDeposit, "1.00")
	early.CreatedAt = cutoff.Add(-time.Hour)
	_, err := store.Append(ctx, early)
	require.NoError(t, err)

	late := testTx(1, ledger.KindWithdrawal, "2.00")
	late.CreatedAt = cutoff.Add(time.Hour)
	_, err = store.Append(ctx, late)
	require.NoError(t, err)

	scoped, err := store.List(ctx, 1, &cutoff)
	require.NoError(t, err)
	require.Len(t, scoped, 1)
	assert.Equal(t, ledger.KindWithdrawal, scoped[0].Kind)
}

func TestStore_AttachExternalRef(t *testing.T) {
	store, ctx := setupTest(t)

	id1, err := store.Append(ctx, testTx(1, ledger.KindDeposit, "52.28"))
	require.NoError(t, err)
	id2, err := store.Append(ctx, testTx(1, ledger.KindDeposit, "52.28"))
	require.NoError(t, err)

	require.NoError(t, store.AttachExternalRef(ctx, id1, "msg-1"))
	assert.NoError(t, store.AttachExternalRef(ctx, id1, "msg-1"), "same ref is idempotent")
	assert.ErrorIs(t, store.AttachExternalRef(ctx, id1, "msg-2"), ledger.ErrRefConflict)
	assert.ErrorIs(t, store.AttachExternalRef(ctx, id2, "msg-1"), ledger.ErrRefConflict,
		"a ref bound to another transaction must not be reused")
	assert.ErrorIs(t, store.AttachExternalRef(ctx, 99999, "msg-3"), ledger.ErrNotFound)
}

func TestStore_RemoveByExternalRef(t *testing.T) {
	store, ctx := setupTest(t)

	id, err := store.Append(ctx, testTx(1, ledger.KindDeposit, "52.28"))
	require.NoError(t, err)
	require.NoError(t, store.AttachExternalRef(ctx, id, "msg-1"))

	removed, err := store.RemoveByExternalRef(ctx, "msg-1")
	require.NoError(t, err)
	require.NotNil(t, removed)
	assert.Equal(t, id, removed.ID)
	require.NotNil(t, removed.ExternalRef)
	assert.Equal(t, "msg-1", *removed.ExternalRef)

	// Second removal finds nothing.
	removed, err = store.RemoveByExternalRef(ctx, "msg-1")
	require.NoError(t, err)
	assert.Nil(t, removed)

	txs, err := store.List(ctx, 1, nil)
	require.NoError(t, err)
	assert.Empty(t, txs)
}

func TestStore_DeleteInPeriod(t *testing.T) {
	store, ctx := setupTest(t)

	from := time.Now().UTC().Add(-time.Hour)
	to := time.Now().UTC()

	before := testTx(1, ledger.KindDeposit, "1.00")
	before.CreatedAt = from.Add(-time.Minute)
	_, err := store.Append(ctx, before)
	require.NoError(t, err)

	inside := testTx(1, ledger.KindWithdrawal, "2.00")
	inside.CreatedAt = from.Add(30 * time.Minute)
	_, err = store.Append(ctx, inside)
	require.NoError(t, err)

	removed, err := store.DeleteInPeriod(ctx, 1, from, to)
	require.NoError(t, err)
	require.Len(t, removed, 1)
	assert.Equal(t, ledger.KindWithdrawal, removed[0].Kind)

	remaining, err := store.List(ctx, 1, nil)
	require.NoError(t, err)
	require.Len(t, remaining, 1)
	assert.Equal(t, ledger.KindDeposit, remaining[0].Kind)
}

func TestStore_DeleteInPeriod_NothingMatched(t *testing.T) {
	store, ctx := setupTest(t)

	removed, err := store.DeleteInPeriod(ctx, 1, time.Now().Add(-time.Hour), time.Now())
	require.NoError(t, err)
	assert.Empty(t, removed)
}

func TestStore_GroupConfig_Lifecycle(t *testing.T) {
	store, ctx := setupTest(t)

	cfg, err := store.GroupConfig(ctx, 7)
	require.NoError(t, err)
	assert.Equal(t, int64(7), cfg.ChatID)
	assert.True(t, cfg.DepositFX.IsZero(), "fresh chats are unconfigured")

	depositRate := dec("0.20")
	depositFX := dec("153")
	name := "Tokyo desk"
	updated, err := store.UpdateGroupConfig(ctx, 7, ledger.ConfigPatch{
		DepositRate: &depositRate,
		DepositFX:   &depositFX,
		DisplayName: &name,
	})
	require.NoError(t, err)
	assert.True(t, updated.DepositRate.Equal(dec("0.20")))
	assert.True(t, updated.DepositFX.Equal(dec("153")))
	assert.Equal(t, "Tokyo desk", updated.DisplayName)

	// Partial patch leaves other fields untouched.
	withdrawalFX := dec("137")
	updated, err = store.UpdateGroupConfig(ctx, 7, ledger.ConfigPatch{WithdrawalFX: &withdrawalFX})
	require.NoError(t, err)
	assert.True(t, updated.DepositFX.Equal(dec("153")))
	assert.True(t, updated.WithdrawalFX.Equal(dec("137")))
}

func TestStore_AdminSet(t *testing.T) {
	store, ctx := setupTest(t)

	require.NoError(t, store.AddAdmin(ctx, &ledger.Admin{UserID: 1, Username: "alice", IsOwner: true}))
	require.NoError(t, store.AddAdmin(ctx, &ledger.Admin{UserID: 2, Username: "bob"}))

	// Re-adding refreshes the entry instead of failing.
	require.NoError(t, store.AddAdmin(ctx, &ledger.Admin{UserID: 2, Username: "bobby"}))

	admins, err := store.ListAdmins(ctx)
	require.NoError(t, err)
	require.Len(t, admins, 2)
	assert.Equal(t, "bobby", admins[1].Username)

	ok, err := store.IsAdmin(ctx, 2)
	require.NoError(t, err)
	assert.True(t, ok)

	require.NoError(t, store.RemoveAdmin(ctx, 2))
	ok, err = store.IsAdmin(ctx, 2)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestStore_ServiceRoundTrip(t *testing.T) {
	store, ctx := setupTest(t)

	// The engine's aggregates come out of persisted rows, so decimal
	// precision must survive the NUMERIC round trip exactly.
	_, err := store.Append(ctx, testTx(1, ledger.KindDeposit, "52.28"))
	require.NoError(t, err)
	_, err = store.Append(ctx, testTx(1, ledger.KindDisbursement, "-35.04"))
	require.NoError(t, err)

	txs, err := store.List(ctx, 1, nil)
	require.NoError(t, err)
	require.Len(t, txs, 2)

	s := ledger.BuildSummary(1, txs)
	assert.True(t, s.ShouldSend.Equal(dec("52.28")))
	assert.True(t, s.Sent.Equal(dec("-35.04")))
}
