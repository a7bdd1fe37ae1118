/**
 * @description
 * This file defines the `Repository` interface, which specifies the contract for all
 * data access operations required by the atm-service. By defining an interface,
 * we decouple the application's business logic from the specific database
 * implementation (PostgreSQL), making the code more modular and easier to test.
 *
 * @dependencies
 * - context: Standard Go library.
 * - internal/domain: For the service's domain models.
 */

package store

import (
	"context"

	"github.com/meridianbank/atm-service/internal/domain"
)

// Repository defines the set of methods for interacting with the database.
type Repository interface {
	// User methods
	CreateUser(ctx context.Context, user *domain.User) (*domain.User, error)
	FindUserByID(ctx context.Context, userID int64) (*domain.User, error)
	FindUserByEmail(ctx context.Context, email string) (*domain.User, error)

	// Account methods
	CreateAccount(ctx context.Context, account *domain.Account) (*domain.Account, error)
	FindAccountsByUserID(ctx context.Context, userID int64) ([]domain.Account, error)
	GetBalance(ctx context.Context, accountNo int64) (int64, error)
	// Debit atomically subtracts amount from the account balance. It returns
	// false without mutating anything when the account does not exist or the
	// guarded update would not affect exactly one row.
	Debit(ctx context.Context, accountNo int64, amount int64) (bool, error)
	// Credit is the symmetric inverse of Debit; it carries no balance guard.
	Credit(ctx context.Context, accountNo int64, amount int64) (bool, error)

	// Card methods
	CreateCard(ctx context.Context, card *domain.Card) (*domain.Card, error)
	FindCardsByUserID(ctx context.Context, userID int64) ([]domain.Card, error)
	UpdateCardStatus(ctx context.Context, cardNo string, status string) error

	// Bank reference methods
	ListCountries(ctx context.Context) ([]string, error)
	FindBanksByCountry(ctx context.Context, country string) ([]domain.Bank, error)

	// Blockchain verification methods
	CreateBlockchainUser(ctx context.Context, user *domain.BlockchainUser) error
	IdentityHashExists(ctx context.Context, identityHash string) (bool, error)

	// Ledger methods
	ListLedgerBlocks(ctx context.Context) ([]domain.LedgerBlock, error)
	// TailLedgerBlock returns the newest block, or nil when the chain is empty.
	TailLedgerBlock(ctx context.Context) (*domain.LedgerBlock, error)

	// Transfer unit of work. Executes the debit, the transaction record, and
	// the ledger append as one atomic, isolated operation.
	ExecuteTransfer(ctx context.Context, params ExecuteTransferParams) (*ExecuteTransferResult, error)

	// Transaction history methods
	FindTransactionsByAccount(ctx context.Context, accountNo int64) ([]domain.Transaction, error)
}

// ExecuteTransferParams carries everything the transactional commit phase of an
// overseas transfer needs. Validation, receiver verification, and the rate
// lookup have already happened by the time these reach the store.
type ExecuteTransferParams struct {
	Transaction domain.Transaction
	// Payload is the serialized transfer data sealed into the ledger block.
	// Its exact bytes are the hashing input and are stored verbatim.
	Payload []byte
	// ValidatedBy names the validator recorded on the block.
	ValidatedBy string
}

// ExecuteTransferResult reports the committed state of the unit of work.
type ExecuteTransferResult struct {
	Transaction domain.Transaction
	Block       domain.LedgerBlock
}
