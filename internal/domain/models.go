/**
 * @description
 * This file defines the core domain models for the atm-service. These structs
 * represent the main entities and data transfer objects (DTOs) used throughout
 * the service's business logic, database interactions, and API layers.
 *
 * @notes
 * - Using distinct types for API requests, database models, and external service
 *   payloads ensures clear separation of concerns and type safety.
 * - Amounts are stored as `int64` to represent the value in the smallest currency
 *   unit (cents), which avoids floating-point inaccuracies with financial data.
 */

package domain

import (
	"time"

	"github.com/google/uuid"
)

// GenesisHash is the sentinel previous-hash value of the first ledger block.
const GenesisHash = "GENESIS"

// Account represents a customer account. Balances are mutated only through the
// debit/credit primitives in the store, never by direct assignment.
type Account struct {
	AccountNo   int64     `json:"account_no"`
	UserID      int64     `json:"user_id"`
	AccountType string    `json:"account_type"` // e.g., 'savings', 'current'
	Balance     int64     `json:"balance"`      // in cents
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// User represents a customer of the bank.
type User struct {
	ID        int64     `json:"id"`
	FullName  string    `json:"full_name"`
	Email     string    `json:"email"`
	CreatedAt time.Time `json:"created_at"`
}

// Card represents an ATM card tied to a user's account.
type Card struct {
	CardNo    string    `json:"card_no"`
	UserID    int64     `json:"user_id"`
	AccountNo int64     `json:"account_no"`
	Status    string    `json:"status"` // 'active', 'frozen', 'cancelled'
	CreatedAt time.Time `json:"created_at"`
}

// Bank is a reference row used to resolve overseas receiver banks.
type Bank struct {
	BankID  int64  `json:"bank_id"`
	Name    string `json:"name"`
	Country string `json:"country"`
}

// Transaction is the immutable record created for every overseas transfer
// that reaches the commit point. BlockID links it to the ledger block that
// sealed it and is filled in within the same unit of work.
type Transaction struct {
	ID                uuid.UUID `json:"id"`
	SenderAccountNo   int64     `json:"sender_account_no"`
	ReceiverAccountNo string    `json:"receiver_account_no"`
	BankID            int64     `json:"bank_id"`
	Amount            int64     `json:"amount"` // in cents, always positive; direction is debit-from-sender
	Currency          string    `json:"currency"`
	ExchangeRate      float64   `json:"exchange_rate"`
	TotalConverted    int64     `json:"total_converted"` // in cents of the target currency
	TxnType           string    `json:"txn_type"`        // e.g., 'overseas'
	BlockID           *int64    `json:"block_id,omitempty"`
	CreatedAt         time.Time `json:"created_at"`
}

// LedgerBlock is one entry in the hash-chained append-only log. Blocks are
// never mutated or deleted after insertion.
type LedgerBlock struct {
	BlockID         int64     `json:"block_id"`
	PreviousHash    string    `json:"previous_hash"`
	CurrentHash     string    `json:"current_hash"`
	TransactionData string    `json:"transaction_data"`
	ValidatedBy     string    `json:"validated_by"`
	CreatedAt       time.Time `json:"created_at"`
}

// BlockchainUser is a verification membership record for overseas receivers.
// Created once at registration, read-only afterwards.
type BlockchainUser struct {
	AccountNo        string    `json:"account_no"`
	BankName         string    `json:"bank_name"`
	Country          string    `json:"country"`
	IdentityHash     string    `json:"identity_hash"`
	VerifiedByBankID *int64    `json:"verified_by_bank_id,omitempty"`
	CreatedAt        time.Time `json:"created_at"`
}

// OverseasTransferRequest is the DTO for incoming overseas transfer API requests.
// Amount is a decimal string with at most two fractional digits.
type OverseasTransferRequest struct {
	SenderAccountNo   int64  `json:"sender_account_no"`
	ReceiverAccountNo string `json:"receiver_account_no"`
	ReceiverBankID    int64  `json:"receiver_bank_id"`
	ReceiverBankName  string `json:"receiver_bank_name"`
	ReceiverCountry   string `json:"receiver_country"`
	Amount            string `json:"amount"`
	FromCurrency      string `json:"from_currency"`
	ToCurrency        string `json:"to_currency"`
}

// OverseasTransferResult is returned to the caller after a committed transfer.
type OverseasTransferResult struct {
	TransactionID   uuid.UUID `json:"transaction_id"`
	ConvertedAmount string    `json:"converted_amount"` // formatted with two decimal places
	Currency        string    `json:"currency"`
	ExchangeRate    float64   `json:"exchange_rate"`
	BlockID         int64     `json:"block_id"`
	BlockHash       string    `json:"block_hash"`
}

// BlockPayload is the transfer payload serialized into a ledger block's
// transaction data. The stored bytes are the hashing input, so the struct is
// only ever marshalled once, inside the unit of work that seals the block.
type BlockPayload struct {
	TransactionID     uuid.UUID `json:"transaction_id"`
	SenderAccountNo   int64     `json:"sender_account_no"`
	ReceiverAccountNo string    `json:"receiver_account_no"`
	BankID            int64     `json:"bank_id"`
	Amount            int64     `json:"amount"`
	Currency          string    `json:"currency"`
	ExchangeRate      float64   `json:"exchange_rate"`
	TotalConverted    int64     `json:"total_converted"`
	TxnType           string    `json:"txn_type"`
	InitiatedAt       time.Time `json:"initiated_at"`
}

// RegisterBlockchainUserRequest is the DTO for registering a verified receiver.
type RegisterBlockchainUserRequest struct {
	AccountNo        string `json:"account_no"`
	BankName         string `json:"bank_name"`
	Country          string `json:"country"`
	VerifiedByBankID *int64 `json:"verified_by_bank_id,omitempty"`
}

// CreateUserRequest is the DTO for creating a user.
type CreateUserRequest struct {
	FullName string `json:"full_name"`
	Email    string `json:"email"`
}

// CreateAccountRequest is the DTO for opening an account.
type CreateAccountRequest struct {
	UserID         int64  `json:"user_id"`
	AccountType    string `json:"account_type"`
	OpeningBalance string `json:"opening_balance"` // decimal string, e.g. "100.00"
}

// CreateCardRequest is the DTO for issuing a card against an account.
type CreateCardRequest struct {
	UserID    int64 `json:"user_id"`
	AccountNo int64 `json:"account_no"`
}

// LedgerVerificationReport summarizes an offline replay of the hash chain.
type LedgerVerificationReport struct {
	Valid       bool   `json:"valid"`
	BlockCount  int    `json:"block_count"`
	FailedBlock *int64 `json:"failed_block,omitempty"`
	Reason      string `json:"reason,omitempty"`
}
