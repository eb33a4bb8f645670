package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/sethvargo/go-retry"

	"sikabot/internal/model"
)

var (
	ErrInsufficientFunds = errors.New("insufficient wallet balance")
	ErrAlreadyProcessed  = errors.New("reference already processed (idempotency)")
	ErrInvalidAmount     = errors.New("amount must be positive")
)

// WalletRepo owns wallet balances and the append-only transactions
// ledger. Every mutation runs in one database transaction that locks
// the wallet row, so concurrent credits/debits for the same user
// serialize instead of losing updates.
type WalletRepo struct {
	dbPool *pgxpool.Pool
}

func NewWalletRepo(db *pgxpool.Pool) *WalletRepo {
	return &WalletRepo{dbPool: db}
}

// GetBalance returns the current balance, or 0 for users with no
// wallet row yet. It never reports absence as an error.
func (r *WalletRepo) GetBalance(ctx context.Context, userID string) (model.Pesewas, error) {
	var balance int64
	err := r.dbPool.QueryRow(ctx,
		`SELECT balance FROM wallets WHERE user_id = $1`, userID).Scan(&balance)
	if errors.Is(err, pgx.ErrNoRows) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("query balance: %w", err)
	}
	return model.Pesewas(balance), nil
}

// Credit adds amount to the wallet and appends the matching ledger
// entry. The unique index on transactions.reference is the replay
// guard: a reference that was already consumed aborts the whole
// transaction with ErrAlreadyProcessed and leaves the balance alone.
func (r *WalletRepo) Credit(ctx context.Context, userID string, amount model.Pesewas, txType model.TxType, reference, description string) (model.Pesewas, error) {
	if amount <= 0 {
		return 0, ErrInvalidAmount
	}
	return r.mutate(ctx, userID, amount, txType, reference, description)
}

// Debit subtracts amount from the wallet, failing with
// ErrInsufficientFunds (and no mutation) if the balance is too low.
func (r *WalletRepo) Debit(ctx context.Context, userID string, amount model.Pesewas, txType model.TxType, reference, description string) (model.Pesewas, error) {
	if amount <= 0 {
		return 0, ErrInvalidAmount
	}
	return r.mutate(ctx, userID, -amount, txType, reference, description)
}

func (r *WalletRepo) mutate(ctx context.Context, userID string, delta model.Pesewas, txType model.TxType, reference, description string) (model.Pesewas, error) {
	var newBalance model.Pesewas

	// Row-lock conflicts between concurrent mutations can deadlock;
	// those SQLSTATEs are transient, so retry with backoff.
	backoff := retry.WithMaxRetries(3, retry.NewExponential(50*time.Millisecond))
	err := retry.Do(ctx, backoff, func(ctx context.Context) error {
		bal, err := r.mutateOnce(ctx, userID, delta, txType, reference, description)
		if isTransientPgErr(err) {
			return retry.RetryableError(err)
		}
		if err != nil {
			return err
		}
		newBalance = bal
		return nil
	})
	if err != nil {
		return 0, err
	}
	return newBalance, nil
}

func (r *WalletRepo) mutateOnce(ctx context.Context, userID string, delta model.Pesewas, txType model.TxType, reference, description string) (model.Pesewas, error) {
	tx, err := r.dbPool.Begin(ctx)
	if err != nil {
		return 0, fmt.Errorf("begin: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	// Ensure the wallet row exists, then take the row lock.
	if _, err := tx.Exec(ctx,
		`INSERT INTO wallets (user_id, balance) VALUES ($1, 0)
		 ON CONFLICT (user_id) DO NOTHING`, userID); err != nil {
		return 0, fmt.Errorf("ensure wallet: %w", err)
	}

	var balance int64
	if err := tx.QueryRow(ctx,
		`SELECT balance FROM wallets WHERE user_id = $1 FOR UPDATE`, userID).Scan(&balance); err != nil {
		return 0, fmt.Errorf("lock wallet: %w", err)
	}

	previous := model.Pesewas(balance)
	next := previous + delta
	if next < 0 {
		return 0, ErrInsufficientFunds
	}

	if _, err := tx.Exec(ctx,
		`UPDATE wallets SET balance = $1, updated_at = now() WHERE user_id = $2`,
		int64(next), userID); err != nil {
		return 0, fmt.Errorf("update balance: %w", err)
	}

	amount := delta
	if amount < 0 {
		amount = -amount
	}
	if _, err := tx.Exec(ctx,
		`INSERT INTO transactions (user_id, reference, type, status, amount, previous_balance, new_balance, description)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		userID, reference, string(txType), string(model.TxSuccess),
		int64(amount), int64(previous), int64(next), description); err != nil {
		if isUniqueViolation(err) {
			return 0, ErrAlreadyProcessed
		}
		return 0, fmt.Errorf("append transaction: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return 0, fmt.Errorf("commit: %w", err)
	}
	return next, nil
}

// Record appends a ledger entry that does not touch the balance:
// gateway-paid sales and the paid-but-not-delivered trail, which must
// never be silently swallowed.
func (r *WalletRepo) Record(ctx context.Context, userID string, amount model.Pesewas, txType model.TxType, status model.TxStatus, reference, description string) error {
	balance, err := r.GetBalance(ctx, userID)
	if err != nil {
		return err
	}
	_, err = r.dbPool.Exec(ctx,
		`INSERT INTO transactions (user_id, reference, type, status, amount, previous_balance, new_balance, description)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		userID, reference, string(txType), string(status),
		int64(amount), int64(balance), int64(balance), description)
	if isUniqueViolation(err) {
		return ErrAlreadyProcessed
	}
	if err != nil {
		return fmt.Errorf("record failure: %w", err)
	}
	return nil
}

// ReferenceSeen reports whether any ledger entry exists for the
// reference. Lets the engine short-circuit replays before calling out
// to the gateway.
func (r *WalletRepo) ReferenceSeen(ctx context.Context, reference string) (bool, error) {
	var exists bool
	err := r.dbPool.QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM transactions WHERE reference = $1)`, reference).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("check reference: %w", err)
	}
	return exists, nil
}

// Transactions returns the most recent ledger entries for a user.
func (r *WalletRepo) Transactions(ctx context.Context, userID string, limit int) ([]model.Transaction, error) {
	rows, err := r.dbPool.Query(ctx,
		`SELECT id, user_id, reference, type, status, amount, previous_balance, new_balance, description, created_at
		 FROM transactions WHERE user_id = $1 ORDER BY created_at DESC LIMIT $2`,
		userID, limit)
	if err != nil {
		return nil, fmt.Errorf("query transactions: %w", err)
	}
	defer rows.Close()

	var out []model.Transaction
	for rows.Next() {
		var t model.Transaction
		var txType, status string
		var amount, prev, next int64
		if err := rows.Scan(&t.ID, &t.UserID, &t.Reference, &txType, &status,
			&amount, &prev, &next, &t.Description, &t.CreatedAt); err != nil {
			return nil, err
		}
		t.Type = model.TxType(txType)
		t.Status = model.TxStatus(status)
		t.Amount = model.Pesewas(amount)
		t.PreviousBalance = model.Pesewas(prev)
		t.NewBalance = model.Pesewas(next)
		out = append(out, t)
	}
	return out, rows.Err()
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}

func isTransientPgErr(err error) bool {
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) {
		return false
	}
	// 40001 serialization_failure, 40P01 deadlock_detected
	return pgErr.Code == "40001" || pgErr.Code == "40P01"
}
