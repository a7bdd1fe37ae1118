/**
 * @description
 * This file implements the transactional unit of work for an overseas transfer:
 * the sender debit, the transaction record, and the hash-chained ledger append
 * all commit or roll back together inside a single database transaction.
 *
 * Isolation strategy: the sender's account row and the ledger tail row are both
 * locked with FOR UPDATE, so concurrent transfers serialize at the database.
 * A unique index on ledger_blocks.previous_hash backstops the tail lock for
 * the empty-chain case, where there is no row to lock yet; the loser of that
 * race surfaces ErrConcurrentModification and nothing it did is kept.
 *
 * @dependencies
 * - github.com/jackc/pgx/v5: Transaction control and row scanning.
 * - internal/ledger: The block hash computation.
 */

package store

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/meridianbank/atm-service/internal/domain"
	"github.com/meridianbank/atm-service/internal/ledger"
)

// ExecuteTransfer runs the commit phase of an overseas transfer atomically.
func (r *PostgresRepository) ExecuteTransfer(ctx context.Context, params ExecuteTransferParams) (*ExecuteTransferResult, error) {
	txn := params.Transaction

	tx, err := r.db.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	// Lock the sender row and re-check funds under the lock. The fast-path
	// balance read in the service layer is advisory only.
	var balance int64
	err = tx.QueryRow(ctx,
		`SELECT balance FROM accounts WHERE account_no = $1 FOR UPDATE`,
		txn.SenderAccountNo,
	).Scan(&balance)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, ErrAccountNotFound
		}
		return nil, fmt.Errorf("failed to lock sender account: %w", err)
	}
	if balance < txn.Amount {
		return nil, ErrInsufficientFunds
	}

	_, err = tx.Exec(ctx,
		`UPDATE accounts SET balance = balance - $2, updated_at = NOW() WHERE account_no = $1`,
		txn.SenderAccountNo, txn.Amount,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to debit sender account: %w", err)
	}

	// Insert the transaction record first; its block link is filled in once
	// the block exists.
	err = tx.QueryRow(ctx, `
		INSERT INTO transactions (id, sender_account_no, receiver_account_no, bank_id,
		                          amount, currency, exchange_rate, total_converted, txn_type)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		RETURNING created_at
	`,
		txn.ID, txn.SenderAccountNo, txn.ReceiverAccountNo, txn.BankID,
		txn.Amount, txn.Currency, txn.ExchangeRate, txn.TotalConverted, txn.TxnType,
	).Scan(&txn.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("failed to insert transaction record: %w", err)
	}

	// Lock the chain tail so the previous-hash link is read and extended under
	// the same lock. An empty chain has no tail row; the unique index on
	// previous_hash then decides the race between two genesis appends.
	previousHash := domain.GenesisHash
	var tailHash string
	err = tx.QueryRow(ctx,
		`SELECT current_hash FROM ledger_blocks ORDER BY block_id DESC LIMIT 1 FOR UPDATE`,
	).Scan(&tailHash)
	switch {
	case err == nil:
		previousHash = tailHash
	case err == pgx.ErrNoRows:
		// first block, keep the genesis sentinel
	default:
		return nil, fmt.Errorf("failed to read ledger tail: %w", err)
	}

	block := domain.LedgerBlock{
		PreviousHash:    previousHash,
		CurrentHash:     ledger.ComputeBlockHash(params.Payload),
		TransactionData: string(params.Payload),
		ValidatedBy:     params.ValidatedBy,
	}
	err = tx.QueryRow(ctx, `
		INSERT INTO ledger_blocks (previous_hash, current_hash, transaction_data, validated_by)
		VALUES ($1, $2, $3, $4)
		RETURNING block_id, created_at
	`,
		block.PreviousHash, block.CurrentHash, block.TransactionData, block.ValidatedBy,
	).Scan(&block.BlockID, &block.CreatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, ErrConcurrentModification
		}
		return nil, fmt.Errorf("failed to append ledger block: %w", err)
	}

	txn.BlockID = &block.BlockID
	tag, err := tx.Exec(ctx,
		`UPDATE transactions SET block_id = $2 WHERE id = $1`,
		txn.ID, block.BlockID,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to link transaction to block: %w", err)
	}
	if tag.RowsAffected() != 1 {
		return nil, fmt.Errorf("transaction %s vanished before block link", txn.ID)
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("failed to commit transfer: %w", err)
	}

	return &ExecuteTransferResult{Transaction: txn, Block: block}, nil
}
