package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/tallyops/settlebook/internal/ledger"
)

const uniqueViolation = "23505"

// Store implements the ledger persistence port on PostgreSQL. Record
// ids come from a BIGSERIAL sequence, so they are monotonic across
// restarts without any in-process state.
type Store struct {
	pool *pgxpool.Pool
}

// NewStore creates a PostgreSQL-backed ledger store.
func NewStore(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

const txColumns = `id, chat_id, kind, raw_amount::text, fee_rate::text, exchange_rate::text, converted::text, tag, operator_id, operator_name, external_ref, created_at`

// Append persists the record and returns its assigned id.
func (s *Store) Append(ctx context.Context, tx *ledger.Transaction) (int64, error) {
	if err := tx.Validate(); err != nil {
		return 0, err
	}

	query := `
		INSERT INTO transactions (chat_id, kind, raw_amount, fee_rate, exchange_rate, converted, tag, operator_id, operator_name, external_ref, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		RETURNING id
	`

	var id int64
	err := s.pool.QueryRow(ctx, query,
		tx.ChatID,
		string(tx.Kind),
		tx.RawAmount.String(),
		tx.Rate.String(),
		tx.FX.String(),
		tx.Converted.String(),
		tx.Tag,
		tx.OperatorID,
		tx.OperatorName,
		tx.ExternalRef,
		tx.CreatedAt,
	).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("failed to insert transaction: %w", err)
	}

	tx.ID = id
	return id, nil
}

// AttachExternalRef binds ref to the transaction. The update only
// touches rows whose ref is absent or already equal, which makes the
// retry path idempotent.
func (s *Store) AttachExternalRef(ctx context.Context, id int64, ref string) error {
	query := `
		UPDATE transactions
		SET external_ref = $2
		WHERE id = $1 AND (external_ref IS NULL OR external_ref = $2)
	`

	tag, err := s.pool.Exec(ctx, query, id, ref)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
			// The ref is already bound to a different transaction.
			return ledger.ErrRefConflict
		}
		return fmt.Errorf("failed to attach external ref: %w", err)
	}
	if tag.RowsAffected() > 0 {
		return nil
	}

	var exists bool
	err = s.pool.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM transactions WHERE id = $1)`, id).Scan(&exists)
	if err != nil {
		return fmt.Errorf("failed to check transaction: %w", err)
	}
	if !exists {
		return ledger.ErrNotFound
	}
	return ledger.ErrRefConflict
}

// RemoveByExternalRef deletes at most one transaction carrying ref and
// returns it, or (nil, nil) when nothing matches.
func (s *Store) RemoveByExternalRef(ctx context.Context, ref string) (*ledger.Transaction, error) {
	query := `
		DELETE FROM transactions
		WHERE external_ref = $1
		RETURNING ` + txColumns

	tx, err := scanTransaction(s.pool.QueryRow(ctx, query, ref))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to remove by external ref: %w", err)
	}
	return tx, nil
}

// List returns a chat's transactions in insertion order. A non-nil
// since restricts the result to created_at >= since.
func (s *Store) List(ctx context.Context, chatID int64, since *time.Time) ([]*ledger.Transaction, error) {
	query := `
		SELECT ` + txColumns + `
		FROM transactions
		WHERE chat_id = $1
	`
	args := []any{chatID}
	if since != nil {
		query += " AND created_at >= $2"
		args = append(args, *since)
	}
	query += " ORDER BY id ASC"

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query transactions: %w", err)
	}
	defer rows.Close()

	var txs []*ledger.Transaction
	for rows.Next() {
		tx, err := scanTransaction(rows)
		if err != nil {
			return nil, err
		}
		txs = append(txs, tx)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating transactions: %w", err)
	}

	return txs, nil
}

// DeleteInPeriod removes every transaction of the chat with created_at
// in [from, to) and returns the removed records.
func (s *Store) DeleteInPeriod(ctx context.Context, chatID int64, from, to time.Time) ([]*ledger.Transaction, error) {
	query := `
		DELETE FROM transactions
		WHERE chat_id = $1 AND created_at >= $2 AND created_at < $3
		RETURNING ` + txColumns

	rows, err := s.pool.Query(ctx, query, chatID, from, to)
	if err != nil {
		return nil, fmt.Errorf("failed to delete transactions: %w", err)
	}
	defer rows.Close()

	var removed []*ledger.Transaction
	for rows.Next() {
		tx, err := scanTransaction(rows)
		if err != nil {
			return nil, err
		}
		removed = append(removed, tx)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating deleted transactions: %w", err)
	}

	return removed, nil
}

// GroupConfig returns the chat's config, creating the zero-valued
// default row on first access.
func (s *Store) GroupConfig(ctx context.Context, chatID int64) (*ledger.GroupConfig, error) {
	insertQuery := `
		INSERT INTO group_configs (chat_id) VALUES ($1)
		ON CONFLICT (chat_id) DO NOTHING
	`
	if _, err := s.pool.Exec(ctx, insertQuery, chatID); err != nil {
		return nil, fmt.Errorf("failed to ensure group config: %w", err)
	}

	return s.getGroupConfig(ctx, s.pool, chatID, false)
}

// UpdateGroupConfig merges patch into the chat's config inside a
// database transaction and returns the result.
func (s *Store) UpdateGroupConfig(ctx context.Context, chatID int64, patch ledger.ConfigPatch) (*ledger.GroupConfig, error) {
	dbTx, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer dbTx.Rollback(ctx)

	insertQuery := `
		INSERT INTO group_configs (chat_id) VALUES ($1)
		ON CONFLICT (chat_id) DO NOTHING
	`
	if _, err := dbTx.Exec(ctx, insertQuery, chatID); err != nil {
		return nil, fmt.Errorf("failed to ensure group config: %w", err)
	}

	cfg, err := s.getGroupConfig(ctx, dbTx, chatID, true)
	if err != nil {
		return nil, err
	}
	cfg.Apply(patch)

	updateQuery := `
		UPDATE group_configs
		SET deposit_rate = $2, deposit_fx = $3, withdrawal_rate = $4, withdrawal_fx = $5, display_name = $6, updated_at = now()
		WHERE chat_id = $1
	`
	_, err = dbTx.Exec(ctx, updateQuery,
		chatID,
		cfg.DepositRate.String(),
		cfg.DepositFX.String(),
		cfg.WithdrawalRate.String(),
		cfg.WithdrawalFX.String(),
		cfg.DisplayName,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to update group config: %w", err)
	}

	if err := dbTx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("failed to commit group config: %w", err)
	}

	return cfg, nil
}

// AddAdmin inserts or refreshes an admin entry.
func (s *Store) AddAdmin(ctx context.Context, admin *ledger.Admin) error {
	query := `
		INSERT INTO admins (user_id, username, display_name, is_owner)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (user_id)
		DO UPDATE SET
			username = EXCLUDED.username,
			display_name = EXCLUDED.display_name,
			is_owner = EXCLUDED.is_owner
	`

	_, err := s.pool.Exec(ctx, query, admin.UserID, admin.Username, admin.DisplayName, admin.IsOwner)
	if err != nil {
		return fmt.Errorf("failed to add admin: %w", err)
	}
	return nil
}

// RemoveAdmin deletes an admin entry; removing a non-admin is a no-op.
func (s *Store) RemoveAdmin(ctx context.Context, userID int64) error {
	_, err := s.pool.Exec(ctx, `DELETE FROM admins WHERE user_id = $1`, userID)
	if err != nil {
		return fmt.Errorf("failed to remove admin: %w", err)
	}
	return nil
}

// ListAdmins returns all admin entries ordered by user id.
func (s *Store) ListAdmins(ctx context.Context) ([]*ledger.Admin, error) {
	query := `
		SELECT user_id, username, display_name, is_owner
		FROM admins
		ORDER BY user_id ASC
	`

	rows, err := s.pool.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to query admins: %w", err)
	}
	defer rows.Close()

	var admins []*ledger.Admin
	for rows.Next() {
		var a ledger.Admin
		if err := rows.Scan(&a.UserID, &a.Username, &a.DisplayName, &a.IsOwner); err != nil {
			return nil, fmt.Errorf("failed to scan admin: %w", err)
		}
		admins = append(admins, &a)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating admins: %w", err)
	}

	return admins, nil
}

// IsAdmin reports whether userID is in the admin set.
func (s *Store) IsAdmin(ctx context.Context, userID int64) (bool, error) {
	var exists bool
	err := s.pool.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM admins WHERE user_id = $1)`, userID).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("failed to check admin: %w", err)
	}
	return exists, nil
}

type queryer interface {
	Exec(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

func (s *Store) getGroupConfig(ctx context.Context, q queryer, chatID int64, forUpdate bool) (*ledger.GroupConfig, error) {
	query := `
		SELECT chat_id, deposit_rate::text, deposit_fx::text, withdrawal_rate::text, withdrawal_fx::text, display_name
		FROM group_configs
		WHERE chat_id = $1
	`
	if forUpdate {
		query += " FOR UPDATE"
	}

	var cfg ledger.GroupConfig
	var depositRate, depositFX, withdrawalRate, withdrawalFX string

	err := q.QueryRow(ctx, query, chatID).Scan(
		&cfg.ChatID,
		&depositRate,
		&depositFX,
		&withdrawalRate,
		&withdrawalFX,
		&cfg.DisplayName,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to get group config: %w", err)
	}

	if cfg.DepositRate, err = decimal.NewFromString(depositRate); err != nil {
		return nil, fmt.Errorf("failed to parse deposit_rate: %w", err)
	}
	if cfg.DepositFX, err = decimal.NewFromString(depositFX); err != nil {
		return nil, fmt.Errorf("failed to parse deposit_fx: %w", err)
	}
	if cfg.WithdrawalRate, err = decimal.NewFromString(withdrawalRate); err != nil {
		return nil, fmt.Errorf("failed to parse withdrawal_rate: %w", err)
	}
	if cfg.WithdrawalFX, err = decimal.NewFromString(withdrawalFX); err != nil {
		return nil, fmt.Errorf("failed to parse withdrawal_fx: %w", err)
	}

	return &cfg, nil
}

func scanTransaction(row pgx.Row) (*ledger.Transaction, error) {
	var tx ledger.Transaction
	var kind string
	var rawAmount, feeRate, exchangeRate, converted string
	var externalRef sql.NullString

	err := row.Scan(
		&tx.ID,
		&tx.ChatID,
		&kind,
		&rawAmount,
		&feeRate,
		&exchangeRate,
		&converted,
		&tx.Tag,
		&tx.OperatorID,
		&tx.OperatorName,
		&externalRef,
		&tx.CreatedAt,
	)
	if err != nil {
		return nil, err
	}

	tx.Kind = ledger.Kind(kind)
	if externalRef.Valid {
		tx.ExternalRef = &externalRef.String
	}

	if tx.RawAmount, err = decimal.NewFromString(rawAmount); err != nil {
		return nil, fmt.Errorf("failed to parse raw_amount: %w", err)
	}
	if tx.Rate, err = decimal.NewFromString(feeRate); err != nil {
		return nil, fmt.Errorf("failed to parse fee_rate: %w", err)
	}
	if tx.FX, err = decimal.NewFromString(exchangeRate); err != nil {
		return nil, fmt.Errorf("failed to parse exchange_rate: %w", err)
	}
	if tx.Converted, err = decimal.NewFromString(converted); err != nil {
		return nil, fmt.Errorf("failed to parse converted: %w", err)
	}

	return &tx, nil
}
