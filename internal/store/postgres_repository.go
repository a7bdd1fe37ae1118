/**
 * @description
 * This file provides the PostgreSQL implementation of the `Repository` interface.
 * It contains the SQL for users, accounts, cards, banks, blockchain verification
 * records, and the atomic balance primitives. The transfer unit of work and the
 * ledger queries live in postgres_transfer.go and postgres_ledger.go.
 *
 * @dependencies
 * - context, errors: Standard Go libraries.
 * - github.com/jackc/pgx/v5: The PostgreSQL driver for database operations.
 * - internal/domain: Contains the domain models used for data transfer.
 */

package store

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/meridianbank/atm-service/internal/domain"
)

var (
	ErrUserNotFound           = errors.New("user not found")
	ErrAccountNotFound        = errors.New("account not found")
	ErrCardNotFound           = errors.New("card not found")
	ErrInsufficientFunds      = errors.New("insufficient funds")
	ErrDuplicateIdentity      = errors.New("identity already registered")
	ErrDuplicateEmail         = errors.New("email already registered")
	ErrConcurrentModification = errors.New("concurrent ledger modification")
)

const pgUniqueViolation = "23505"

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == pgUniqueViolation
}

// PostgresRepository is a concrete implementation of the Repository interface for PostgreSQL.
type PostgresRepository struct {
	db *pgxpool.Pool
}

// NewPostgresRepository creates a new instance of PostgresRepository.
func NewPostgresRepository(db *pgxpool.Pool) *PostgresRepository {
	return &PostgresRepository{db: db}
}

// CreateUser inserts a new user and returns the stored row.
func (r *PostgresRepository) CreateUser(ctx context.Context, user *domain.User) (*domain.User, error) {
	query := `
		INSERT INTO users (full_name, email)
		VALUES ($1, $2)
		RETURNING id, full_name, email, created_at
	`
	var created domain.User
	err := r.db.QueryRow(ctx, query, user.FullName, user.Email).Scan(
		&created.ID, &created.FullName, &created.Email, &created.CreatedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, ErrDuplicateEmail
		}
		return nil, err
	}
	return &created, nil
}

// FindUserByID retrieves a user by their internal id.
func (r *PostgresRepository) FindUserByID(ctx context.Context, userID int64) (*domain.User, error) {
	var user domain.User
	query := `SELECT id, full_name, email, created_at FROM users WHERE id = $1`
	err := r.db.QueryRow(ctx, query, userID).Scan(&user.ID, &user.FullName, &user.Email, &user.CreatedAt)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, ErrUserNotFound
		}
		return nil, err
	}
	return &user, nil
}

// FindUserByEmail retrieves a user by email, case-insensitively.
func (r *PostgresRepository) FindUserByEmail(ctx context.Context, email string) (*domain.User, error) {
	var user domain.User
	query := `SELECT id, full_name, email, created_at FROM users WHERE lower(email) = lower(btrim($1))`
	err := r.db.QueryRow(ctx, query, email).Scan(&user.ID, &user.FullName, &user.Email, &user.CreatedAt)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, ErrUserNotFound
		}
		return nil, err
	}
	return &user, nil
}

// CreateAccount inserts a new account and returns it with the generated account number.
func (r *PostgresRepository) CreateAccount(ctx context.Context, account *domain.Account) (*domain.Account, error) {
	query := `
		INSERT INTO accounts (user_id, account_type, balance)
		VALUES ($1, $2, $3)
		RETURNING account_no, user_id, account_type, balance, created_at, updated_at
	`
	var created domain.Account
	err := r.db.QueryRow(ctx, query, account.UserID, account.AccountType, account.Balance).Scan(
		&created.AccountNo, &created.UserID, &created.AccountType,
		&created.Balance, &created.CreatedAt, &created.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &created, nil
}

// FindAccountsByUserID retrieves all accounts owned by a user.
func (r *PostgresRepository) FindAccountsByUserID(ctx context.Context, userID int64) ([]domain.Account, error) {
	query := `
		SELECT account_no, user_id, account_type, balance, created_at, updated_at
		FROM accounts
		WHERE user_id = $1
		ORDER BY account_no
	`
	rows, err := r.db.Query(ctx, query, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var accounts []domain.Account
	for rows.Next() {
		var account domain.Account
		if err := rows.Scan(
			&account.AccountNo, &account.UserID, &account.AccountType,
			&account.Balance, &account.CreatedAt, &account.UpdatedAt,
		); err != nil {
			return nil, err
		}
		accounts = append(accounts, account)
	}
	return accounts, rows.Err()
}

// GetBalance returns the current balance in cents for an account.
func (r *PostgresRepository) GetBalance(ctx context.Context, accountNo int64) (int64, error) {
	var balance int64
	err := r.db.QueryRow(ctx, `SELECT balance FROM accounts WHERE account_no = $1`, accountNo).Scan(&balance)
	if err != nil {
		if err == pgx.ErrNoRows {
			return 0, ErrAccountNotFound
		}
		return 0, err
	}
	return balance, nil
}

// Debit performs the compare-and-set balance subtraction in a single guarded
// statement. The balance condition makes the update a no-op when funds are
// insufficient, so concurrent debits can never drive the balance negative.
func (r *PostgresRepository) Debit(ctx context.Context, accountNo int64, amount int64) (bool, error) {
	tag, err := r.db.Exec(ctx,
		`UPDATE accounts SET balance = balance - $2, updated_at = NOW() WHERE account_no = $1 AND balance >= $2`,
		accountNo, amount,
	)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() == 1, nil
}

// Credit performs the atomic balance addition for an account.
func (r *PostgresRepository) Credit(ctx context.Context, accountNo int64, amount int64) (bool, error) {
	tag, err := r.db.Exec(ctx,
		`UPDATE accounts SET balance = balance + $2, updated_at = NOW() WHERE account_no = $1`,
		accountNo, amount,
	)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() == 1, nil
}

// CreateCard inserts a new card row.
func (r *PostgresRepository) CreateCard(ctx context.Context, card *domain.Card) (*domain.Card, error) {
	query := `
		INSERT INTO cards (card_no, user_id, account_no, status)
		VALUES ($1, $2, $3, $4)
		RETURNING card_no, user_id, account_no, status, created_at
	`
	var created domain.Card
	err := r.db.QueryRow(ctx, query, card.CardNo, card.UserID, card.AccountNo, card.Status).Scan(
		&created.CardNo, &created.UserID, &created.AccountNo, &created.Status, &created.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &created, nil
}

// FindCardsByUserID retrieves all cards issued to a user.
func (r *PostgresRepository) FindCardsByUserID(ctx context.Context, userID int64) ([]domain.Card, error) {
	query := `
		SELECT card_no, user_id, account_no, status, created_at
		FROM cards
		WHERE user_id = $1
		ORDER BY created_at DESC
	`
	rows, err := r.db.Query(ctx, query, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var cards []domain.Card
	for rows.Next() {
		var card domain.Card
		if err := rows.Scan(&card.CardNo, &card.UserID, &card.AccountNo, &card.Status, &card.CreatedAt); err != nil {
			return nil, err
		}
		cards = append(cards, card)
	}
	return cards, rows.Err()
}

// UpdateCardStatus changes a card's status (active/frozen/cancelled).
func (r *PostgresRepository) UpdateCardStatus(ctx context.Context, cardNo string, status string) error {
	tag, err := r.db.Exec(ctx, `UPDATE cards SET status = $2 WHERE card_no = $1`, cardNo, status)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrCardNotFound
	}
	return nil
}

// ListCountries returns the distinct countries with at least one known bank.
func (r *PostgresRepository) ListCountries(ctx context.Context) ([]string, error) {
	rows, err := r.db.Query(ctx, `SELECT DISTINCT country FROM banks ORDER BY country`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var countries []string
	for rows.Next() {
		var country string
		if err := rows.Scan(&country); err != nil {
			return nil, err
		}
		countries = append(countries, country)
	}
	return countries, rows.Err()
}

// FindBanksByCountry returns the known banks for a country.
func (r *PostgresRepository) FindBanksByCountry(ctx context.Context, country string) ([]domain.Bank, error) {
	query := `SELECT bank_id, name, country FROM banks WHERE lower(country) = lower(btrim($1)) ORDER BY name`
	rows, err := r.db.Query(ctx, query, country)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var banks []domain.Bank
	for rows.Next() {
		var bank domain.Bank
		if err := rows.Scan(&bank.BankID, &bank.Name, &bank.Country); err != nil {
			return nil, err
		}
		banks = append(banks, bank)
	}
	return banks, rows.Err()
}

// CreateBlockchainUser inserts a verification membership record. The identity
// hash is unique; re-registering the same identity is rejected.
func (r *PostgresRepository) CreateBlockchainUser(ctx context.Context, user *domain.BlockchainUser) error {
	query := `
		INSERT INTO blockchain_users (account_no, bank_name, country, identity_hash, verified_by_bank_id)
		VALUES ($1, $2, $3, $4, $5)
	`
	_, err := r.db.Exec(ctx, query,
		user.AccountNo, user.BankName, user.Country, user.IdentityHash, user.VerifiedByBankID,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return ErrDuplicateIdentity
		}
		return err
	}
	return nil
}

// IdentityHashExists reports whether a receiver identity hash is registered.
func (r *PostgresRepository) IdentityHashExists(ctx context.Context, identityHash string) (bool, error) {
	var exists bool
	err := r.db.QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM blockchain_users WHERE identity_hash = $1)`,
		identityHash,
	).Scan(&exists)
	if err != nil {
		return false, err
	}
	return exists, nil
}

// FindTransactionsByAccount retrieves transactions where the account is the sender.
func (r *PostgresRepository) FindTransactionsByAccount(ctx context.Context, accountNo int64) ([]domain.Transaction, error) {
	query := `
		SELECT id, sender_account_no, receiver_account_no, bank_id, amount, currency,
		       exchange_rate, total_converted, txn_type, block_id, created_at
		FROM transactions
		WHERE sender_account_no = $1
		ORDER BY created_at DESC
	`
	rows, err := r.db.Query(ctx, query, accountNo)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var transactions []domain.Transaction
	for rows.Next() {
		var tx domain.Transaction
		if err := rows.Scan(
			&tx.ID, &tx.SenderAccountNo, &tx.ReceiverAccountNo, &tx.BankID,
			&tx.Amount, &tx.Currency, &tx.ExchangeRate, &tx.TotalConverted,
			&tx.TxnType, &tx.BlockID, &tx.CreatedAt,
		); err != nil {
			return nil, err
		}
		transactions = append(transactions, tx)
	}
	return transactions, rows.Err()
}
