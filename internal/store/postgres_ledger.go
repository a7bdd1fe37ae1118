/**
 * @description
 * This file implements the read side of the hash-chained ledger: the ordered
 * block listing used by the verification replay, and the tail lookup.
 */

package store

import (
	"context"

	"github.com/jackc/pgx/v5"

	"github.com/meridianbank/atm-service/internal/domain"
)

// ListLedgerBlocks returns all ledger blocks in chain order.
func (r *PostgresRepository) ListLedgerBlocks(ctx context.Context) ([]domain.LedgerBlock, error) {
	query := `
		SELECT block_id, previous_hash, current_hash, transaction_data, validated_by, created_at
		FROM ledger_blocks
		ORDER BY block_id ASC
	`
	rows, err := r.db.Query(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var blocks []domain.LedgerBlock
	for rows.Next() {
		var block domain.LedgerBlock
		if err := rows.Scan(
			&block.BlockID, &block.PreviousHash, &block.CurrentHash,
			&block.TransactionData, &block.ValidatedBy, &block.CreatedAt,
		); err != nil {
			return nil, err
		}
		blocks = append(blocks, block)
	}
	return blocks, rows.Err()
}

// TailLedgerBlock returns the newest block, or nil when the chain is empty.
func (r *PostgresRepository) TailLedgerBlock(ctx context.Context) (*domain.LedgerBlock, error) {
	var block domain.LedgerBlock
	err := r.db.QueryRow(ctx, `
		SELECT block_id, previous_hash, current_hash, transaction_data, validated_by, created_at
		FROM ledger_blocks
		ORDER BY block_id DESC
		LIMIT 1
	`).Scan(
		&block.BlockID, &block.PreviousHash, &block.CurrentHash,
		&block.TransactionData, &block.ValidatedBy, &block.CreatedAt,
	)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, nil
		}
		return nil, err
	}
	return &block, nil
}
