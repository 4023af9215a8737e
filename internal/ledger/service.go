package ledger

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/tallyops/settlebook/pkg/logger"
)

// DefaultLockWait bounds how long a writer waits for its chat's slot.
const DefaultLockWait = 2 * time.Second

// Service is the ledger engine: it converts raw amounts using the chat's
// rate configuration, appends immutable records, and serves the
// settlement aggregates. Writers for the same chat are serialized with a
// bounded wait; different chats never block each other.
type Service struct {
	store    Store
	locks    *chatLocks
	lockWait time.Duration
	log      *logger.Logger
}

// NewService creates a ledger service over the given store.
func NewService(store Store, log *logger.Logger, lockWait time.Duration) *Service {
	if lockWait <= 0 {
		lockWait = DefaultLockWait
	}
	return &Service{
		store:    store,
		locks:    newChatLocks(),
		lockWait: lockWait,
		log:      log.WithField("component", "ledger"),
	}
}

// RecordDeposit converts raw at the chat's deposit rate/fx and appends
// the record. raw must be a positive, already-parsed amount.
func (s *Service) RecordDeposit(ctx context.Context, chatID int64, raw decimal.Decimal, tag string, op Operator) (*Transaction, error) {
	if raw.Sign() <= 0 {
		return nil, ErrInvalidAmount
	}

	release, err := s.locks.acquire(ctx, chatID, s.lockWait)
	if err != nil {
		return nil, err
	}
	defer release()

	cfg, err := s.store.GroupConfig(ctx, chatID)
	if err != nil {
		return nil, fmt.Errorf("load group config: %w", err)
	}

	converted, err := ConvertDeposit(raw, cfg)
	if err != nil {
		return nil, err
	}

	tx := &Transaction{
		ChatID:       chatID,
		Kind:         KindDeposit,
		RawAmount:    raw,
		Rate:         cfg.DepositRate,
		FX:           cfg.DepositFX,
		Converted:    converted,
		Tag:          normalizeTag(tag),
		CreatedAt:    time.Now(),
		OperatorID:   op.ID,
		OperatorName: op.Name,
	}
	return s.append(ctx, tx)
}

// RecordWithdrawal converts raw at the chat's withdrawal rate/fx and
// appends the record.
func (s *Service) RecordWithdrawal(ctx context.Context, chatID int64, raw decimal.Decimal, tag string, op Operator) (*Transaction, error) {
	if raw.Sign() <= 0 {
		return nil, ErrInvalidAmount
	}

	release, err := s.locks.acquire(ctx, chatID, s.lockWait)
	if err != nil {
		return nil, err
	}
	defer release()

	cfg, err := s.store.GroupConfig(ctx, chatID)
	if err != nil {
		return nil, fmt.Errorf("load group config: %w", err)
	}

	converted, err := ConvertWithdrawal(raw, cfg)
	if err != nil {
		return nil, err
	}

	tx := &Transaction{
		ChatID:       chatID,
		Kind:         KindWithdrawal,
		RawAmount:    raw,
		Rate:         cfg.WithdrawalRate,
		FX:           cfg.WithdrawalFX,
		Converted:    converted,
		Tag:          normalizeTag(tag),
		CreatedAt:    time.Now(),
		OperatorID:   op.ID,
		OperatorName: op.Name,
	}
	return s.append(ctx, tx)
}

// RecordDisbursement records a signed settlement-currency payout. A
// negative amount retracts an earlier disbursement; the stored raw
// amount keeps the absolute value for display.
func (s *Service) RecordDisbursement(ctx context.Context, chatID int64, signed decimal.Decimal, op Operator) (*Transaction, error) {
	converted, err := ConvertDisbursement(signed)
	if err != nil {
		return nil, err
	}

	release, err := s.locks.acquire(ctx, chatID, s.lockWait)
	if err != nil {
		return nil, err
	}
	defer release()

	tx := &Transaction{
		ChatID:       chatID,
		Kind:         KindDisbursement,
		RawAmount:    converted.Abs(),
		Rate:         decimal.Zero,
		FX:           decimal.Zero,
		Converted:    converted,
		Tag:          DefaultTag,
		CreatedAt:    time.Now(),
		OperatorID:   op.ID,
		OperatorName: op.Name,
	}
	return s.append(ctx, tx)
}

func (s *Service) append(ctx context.Context, tx *Transaction) (*Transaction, error) {
	if err := tx.Validate(); err != nil {
		return nil, err
	}

	id, err := s.store.Append(ctx, tx)
	if err != nil {
		return nil, fmt.Errorf("append transaction: %w", err)
	}
	tx.ID = id

	s.log.WithChat(tx.ChatID).Info("transaction recorded",
		"id", tx.ID,
		"kind", tx.Kind,
		"raw", tx.RawAmount.String(),
		"converted", tx.Converted.String(),
		"operator_id", tx.OperatorID,
	)
	return tx, nil
}

// AttachReference binds the presentation-layer reference (e.g. the chat
// message id) to a recorded transaction for later undo. Attaching the
// same reference twice is a no-op; a different one is a caller bug and
// surfaces as ErrRefConflict.
func (s *Service) AttachReference(ctx context.Context, id int64, ref string) error {
	err := s.store.AttachExternalRef(ctx, id, ref)
	if errors.Is(err, ErrRefConflict) {
		// Double-attach indicates a caller bug; keep it loud in the logs.
		s.log.Error("external reference conflict", "id", id, "ref", ref)
	}
	return err
}

// Undo deletes the transaction carrying ref and returns it for a
// compensating display. An unknown or already-undone reference yields
// ErrNotFound with no mutation.
func (s *Service) Undo(ctx context.Context, ref string) (*Transaction, error) {
	removed, err := s.store.RemoveByExternalRef(ctx, ref)
	if err != nil {
		return nil, fmt.Errorf("remove by reference: %w", err)
	}
	if removed == nil {
		return nil, ErrNotFound
	}

	s.log.WithChat(removed.ChatID).Info("transaction undone",
		"id", removed.ID,
		"kind", removed.Kind,
		"converted", removed.Converted.String(),
	)
	return removed, nil
}

// Summary recomputes the settlement aggregate for the chat's active
// period from the stored log. periodStart is supplied by the caller so
// the engine stays timezone-agnostic.
func (s *Service) Summary(ctx context.Context, chatID int64, periodStart time.Time) (*Summary, error) {
	txs, err := s.store.List(ctx, chatID, &periodStart)
	if err != nil {
		return nil, fmt.Errorf("list transactions: %w", err)
	}
	return BuildSummary(chatID, txs), nil
}

// ListTransactions returns the chat's raw records, insertion-ordered,
// optionally restricted to created_at >= since.
func (s *Service) ListTransactions(ctx context.Context, chatID int64, since *time.Time) ([]*Transaction, error) {
	return s.store.List(ctx, chatID, since)
}

// ResetPeriod deletes every transaction of the chat in [periodStart,
// now) and returns per-kind removal stats. Nothing matching is not an
// error: the stats are simply all zero.
func (s *Service) ResetPeriod(ctx context.Context, chatID int64, periodStart time.Time) (*ResetStats, error) {
	release, err := s.locks.acquire(ctx, chatID, s.lockWait)
	if err != nil {
		return nil, err
	}
	defer release()

	removed, err := s.store.DeleteInPeriod(ctx, chatID, periodStart, time.Now())
	if err != nil {
		return nil, fmt.Errorf("delete period: %w", err)
	}

	stats := buildResetStats(removed)
	s.log.WithChat(chatID).Info("period reset",
		"removed", stats.Total(),
		"period_start", periodStart,
	)
	return stats, nil
}

// GetConfig returns the chat's rate configuration, creating the
// zero-valued default on first access.
func (s *Service) GetConfig(ctx context.Context, chatID int64) (*GroupConfig, error) {
	return s.store.GroupConfig(ctx, chatID)
}

// SetConfig merges the given fields into the chat's configuration,
// leaving absent fields untouched.
func (s *Service) SetConfig(ctx context.Context, chatID int64, patch ConfigPatch) (*GroupConfig, error) {
	release, err := s.locks.acquire(ctx, chatID, s.lockWait)
	if err != nil {
		return nil, err
	}
	defer release()

	return s.store.UpdateGroupConfig(ctx, chatID, patch)
}

// ResetDefaults writes the canonical quick-setup rates: deposit 10% at
// fx 153, withdrawal 2% at fx 137.
func (s *Service) ResetDefaults(ctx context.Context, chatID int64) (*GroupConfig, error) {
	depositRate := DefaultDepositRate
	depositFX := DefaultDepositFX
	withdrawalRate := DefaultWithdrawalRate
	withdrawalFX := DefaultWithdrawalFX

	return s.SetConfig(ctx, chatID, ConfigPatch{
		DepositRate:    &depositRate,
		DepositFX:      &depositFX,
		WithdrawalRate: &withdrawalRate,
		WithdrawalFX:   &withdrawalFX,
	})
}

func normalizeTag(tag string) string {
	if tag == "" {
		return DefaultTag
	}
	return tag
}
