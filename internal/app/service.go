/**
 * @description
 * This file contains the core business logic for the atm-service. The `Service`
 * struct orchestrates all money movement operations, coordinating between the
 * database repository, the exchange-rate provider, and the message broker.
 *
 * Key features:
 * - Implements the overseas transfer use case: validation, receiver identity
 *   verification, rate lookup, and the atomic commit of the debit plus the
 *   hash-chained ledger append.
 * - Implements the ledger verification replay used by auditors.
 * - Publishes events to RabbitMQ for asynchronous processing by other services.
 *
 * @dependencies
 * - context, errors, fmt, log, time: Standard Go libraries.
 * - github.com/google/uuid: For transaction id generation.
 * - internal/domain, internal/ledger, internal/store: Domain models, hash
 *   chain rules, and data access.
 * - pkg/rabbitmq: For event publication.
 */

package app

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/meridianbank/atm-service/internal/domain"
	"github.com/meridianbank/atm-service/internal/ledger"
	"github.com/meridianbank/atm-service/internal/store"
	"github.com/meridianbank/atm-service/pkg/rabbitmq"
)

const overseasTxnType = "overseas"

// LedgerValidator is the validator name recorded on every block this node seals.
const LedgerValidator = "atm-service"

var (
	// ErrInvalidInput is returned for malformed or incomplete request fields.
	ErrInvalidInput = errors.New("invalid input")

	// ErrReceiverNotVerified is returned when the receiver's identity hash is
	// not registered in the verification store. No balance is read and nothing
	// is debited in this case.
	ErrReceiverNotVerified = errors.New("receiver identity is not verified")

	// ErrRateUnavailable is returned when the exchange-rate provider fails or
	// returns an unusable rate. The transfer is aborted before any mutation.
	ErrRateUnavailable = errors.New("exchange rate unavailable")

	// ErrLedgerCorruption is returned when the verification replay finds a
	// block whose hash or link does not match the recomputation.
	ErrLedgerCorruption = errors.New("ledger chain verification failed")
)

// RateProvider is the outbound boundary to the exchange-rate service.
type RateProvider interface {
	GetRate(ctx context.Context, fromCurrency, toCurrency string) (float64, error)
}

// Service provides the core business logic for the atm-service.
type Service struct {
	repo          store.Repository
	rates         RateProvider
	eventProducer rabbitmq.Publisher
}

// NewService creates a new atm service instance.
func NewService(repo store.Repository, rates RateProvider, producer rabbitmq.Publisher) *Service {
	return &Service{
		repo:          repo,
		rates:         rates,
		eventProducer: producer,
	}
}

// ProcessOverseasTransfer handles the full overseas transfer flow. Validation,
// receiver verification, and the rate lookup happen before any mutation; the
// debit, transaction record, and ledger append then commit atomically in the
// store. A failure at any step leaves balances and the ledger untouched.
func (s *Service) ProcessOverseasTransfer(ctx context.Context, req domain.OverseasTransferRequest) (*domain.OverseasTransferResult, error) {
	// 1. Validate the amount before touching anything else.
	amount, err := domain.ParseAmount(req.Amount)
	if err != nil {
		return nil, err
	}
	if err := validateTransferRequest(req); err != nil {
		return nil, err
	}

	// 2. Verify the receiver's identity membership. This happens before the
	// balance read so an unverified receiver is rejected regardless of funds.
	identityHash := ledger.IdentityHash(req.ReceiverAccountNo, req.ReceiverBankName, req.ReceiverCountry)
	verified, err := s.repo.IdentityHashExists(ctx, identityHash)
	if err != nil {
		return nil, fmt.Errorf("failed to check receiver identity: %w", err)
	}
	if !verified {
		log.Printf("level=warn component=transfer_service msg=\"receiver not verified\" sender=%d receiver_hash=%s", req.SenderAccountNo, identityHash)
		return nil, ErrReceiverNotVerified
	}

	// 3. Fast-path funds check. Advisory only; the authoritative check runs
	// under the row lock inside the store.
	balance, err := s.repo.GetBalance(ctx, req.SenderAccountNo)
	if err != nil {
		return nil, err
	}
	if balance < amount {
		return nil, store.ErrInsufficientFunds
	}

	// 4. Fetch the exchange rate. Any provider failure aborts the transfer
	// before the commit phase starts.
	rate, err := s.rates.GetRate(ctx, req.FromCurrency, req.ToCurrency)
	if err != nil {
		log.Printf("level=warn component=transfer_service msg=\"rate lookup failed\" pair=%s/%s err=%v", req.FromCurrency, req.ToCurrency, err)
		return nil, fmt.Errorf("%w: %v", ErrRateUnavailable, err)
	}

	totalConverted, err := domain.ConvertAmount(amount, rate)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidInput, err)
	}

	txn := domain.Transaction{
		ID:                uuid.New(),
		SenderAccountNo:   req.SenderAccountNo,
		ReceiverAccountNo: req.ReceiverAccountNo,
		BankID:            req.ReceiverBankID,
		Amount:            amount,
		Currency:          req.FromCurrency,
		ExchangeRate:      rate,
		TotalConverted:    totalConverted,
		TxnType:           overseasTxnType,
	}

	payload, err := json.Marshal(domain.BlockPayload{
		TransactionID:     txn.ID,
		SenderAccountNo:   txn.SenderAccountNo,
		ReceiverAccountNo: txn.ReceiverAccountNo,
		BankID:            txn.BankID,
		Amount:            txn.Amount,
		Currency:          txn.Currency,
		ExchangeRate:      txn.ExchangeRate,
		TotalConverted:    txn.TotalConverted,
		TxnType:           txn.TxnType,
		InitiatedAt:       time.Now().UTC(),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal block payload: %w", err)
	}

	// 5. Commit phase: debit + transaction record + ledger append, atomically.
	result, err := s.repo.ExecuteTransfer(ctx, store.ExecuteTransferParams{
		Transaction: txn,
		Payload:     payload,
		ValidatedBy: LedgerValidator,
	})
	if err != nil {
		return nil, err
	}

	log.Printf("level=info component=transfer_service msg=\"overseas transfer committed\" transaction_id=%s sender=%d amount=%d block_id=%d",
		result.Transaction.ID, result.Transaction.SenderAccountNo, result.Transaction.Amount, result.Block.BlockID)

	// 6. Publish the completion event. Best-effort; the transfer has already
	// committed and is not rolled back for a broker failure.
	if s.eventProducer != nil {
		event := rabbitmq.TransferCompletedEvent{
			TransactionID:   result.Transaction.ID,
			SenderAccountNo: result.Transaction.SenderAccountNo,
			Amount:          result.Transaction.Amount,
			Currency:        result.Transaction.Currency,
			TotalConverted:  result.Transaction.TotalConverted,
			ToCurrency:      req.ToCurrency,
			BlockID:         result.Block.BlockID,
			Timestamp:       time.Now().UTC(),
		}
		if err := s.eventProducer.PublishTransferCompletedEvent(ctx, event); err != nil {
			log.Printf("level=warn component=transfer_service msg=\"failed to publish transfer completed event\" transaction_id=%s err=%v", result.Transaction.ID, err)
		}
	}

	return &domain.OverseasTransferResult{
		TransactionID:   result.Transaction.ID,
		ConvertedAmount: domain.FormatAmount(result.Transaction.TotalConverted),
		Currency:        req.ToCurrency,
		ExchangeRate:    result.Transaction.ExchangeRate,
		BlockID:         result.Block.BlockID,
		BlockHash:       result.Block.CurrentHash,
	}, nil
}

func validateTransferRequest(req domain.OverseasTransferRequest) error {
	if req.SenderAccountNo <= 0 {
		return fmt.Errorf("%w: sender account number is required", ErrInvalidInput)
	}
	if strings.TrimSpace(req.ReceiverAccountNo) == "" {
		return fmt.Errorf("%w: receiver account number is required", ErrInvalidInput)
	}
	if strings.TrimSpace(req.ReceiverBankName) == "" {
		return fmt.Errorf("%w: receiver bank name is required", ErrInvalidInput)
	}
	if strings.TrimSpace(req.ReceiverCountry) == "" {
		return fmt.Errorf("%w: receiver country is required", ErrInvalidInput)
	}
	if strings.TrimSpace(req.FromCurrency) == "" || strings.TrimSpace(req.ToCurrency) == "" {
		return fmt.Errorf("%w: both currencies are required", ErrInvalidInput)
	}
	return nil
}

// GetExchangeRate exposes the rate provider lookup for the quote endpoint.
func (s *Service) GetExchangeRate(ctx context.Context, fromCurrency, toCurrency string) (float64, error) {
	rate, err := s.rates.GetRate(ctx, fromCurrency, toCurrency)
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrRateUnavailable, err)
	}
	return rate, nil
}

// RegisterBlockchainUser creates a verification membership record for an
// overseas receiver. The identity hash binds account number, bank name, and
// country together; changing any of the three yields a different identity.
func (s *Service) RegisterBlockchainUser(ctx context.Context, req domain.RegisterBlockchainUserRequest) (*domain.BlockchainUser, error) {
	accountNo := strings.TrimSpace(req.AccountNo)
	bankName := strings.TrimSpace(req.BankName)
	country := strings.TrimSpace(req.Country)
	if accountNo == "" || bankName == "" || country == "" {
		return nil, fmt.Errorf("%w: account number, bank name, and country are required", ErrInvalidInput)
	}

	user := &domain.BlockchainUser{
		AccountNo:        accountNo,
		BankName:         bankName,
		Country:          country,
		IdentityHash:     ledger.IdentityHash(accountNo, bankName, country),
		VerifiedByBankID: req.VerifiedByBankID,
	}
	if err := s.repo.CreateBlockchainUser(ctx, user); err != nil {
		return nil, err
	}
	return user, nil
}

// VerifyReceiver reports whether a receiver identity is registered.
func (s *Service) VerifyReceiver(ctx context.Context, accountNo, bankName, country string) (bool, error) {
	return s.repo.IdentityHashExists(ctx, ledger.IdentityHash(accountNo, bankName, country))
}

// ListLedgerBlocks returns the full chain in order.
func (s *Service) ListLedgerBlocks(ctx context.Context) ([]domain.LedgerBlock, error) {
	return s.repo.ListLedgerBlocks(ctx)
}

// GetLedgerTail returns the newest sealed block. On an empty chain it returns
// a synthetic block carrying the genesis sentinel, which is the hash the next
// appended block will link to.
func (s *Service) GetLedgerTail(ctx context.Context) (*domain.LedgerBlock, error) {
	tail, err := s.repo.TailLedgerBlock(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to load ledger tail: %w", err)
	}
	if tail == nil {
		return &domain.LedgerBlock{CurrentHash: domain.GenesisHash}, nil
	}
	return tail, nil
}

// VerifyLedger replays the whole chain offline: every block's hash is
// recomputed from its stored payload and every link is checked back to the
// genesis sentinel.
func (s *Service) VerifyLedger(ctx context.Context) (*domain.LedgerVerificationReport, error) {
	blocks, err := s.repo.ListLedgerBlocks(ctx)
	if err != nil {
		return nil, err
	}

	report := &domain.LedgerVerificationReport{Valid: true, BlockCount: len(blocks)}
	if err := ledger.VerifyChain(blocks); err != nil {
		report.Valid = false
		var corruption *ledger.CorruptionError
		if errors.As(err, &corruption) {
			failed := corruption.BlockID
			report.FailedBlock = &failed
			report.Reason = corruption.Reason
		} else {
			report.Reason = err.Error()
		}
		log.Printf("level=error component=ledger_service msg=\"ledger verification failed\" block_count=%d err=%v", len(blocks), err)
		return report, ErrLedgerCorruption
	}
	return report, nil
}

// CreateUser registers a new bank customer.
func (s *Service) CreateUser(ctx context.Context, req domain.CreateUserRequest) (*domain.User, error) {
	fullName := strings.TrimSpace(req.FullName)
	email := strings.TrimSpace(req.Email)
	if fullName == "" || email == "" {
		return nil, fmt.Errorf("%w: full name and email are required", ErrInvalidInput)
	}
	return s.repo.CreateUser(ctx, &domain.User{FullName: fullName, Email: email})
}

// GetUser retrieves a customer by id.
func (s *Service) GetUser(ctx context.Context, userID int64) (*domain.User, error) {
	return s.repo.FindUserByID(ctx, userID)
}

// FindUserByEmail retrieves a customer by email.
func (s *Service) FindUserByEmail(ctx context.Context, email string) (*domain.User, error) {
	if strings.TrimSpace(email) == "" {
		return nil, fmt.Errorf("%w: email is required", ErrInvalidInput)
	}
	return s.repo.FindUserByEmail(ctx, email)
}

// CreateAccount opens a new account for a customer.
func (s *Service) CreateAccount(ctx context.Context, req domain.CreateAccountRequest) (*domain.Account, error) {
	if _, err := s.repo.FindUserByID(ctx, req.UserID); err != nil {
		return nil, err
	}
	opening := int64(0)
	if strings.TrimSpace(req.OpeningBalance) != "" {
		parsed, err := domain.ParseAmount(req.OpeningBalance)
		if err != nil {
			return nil, err
		}
		opening = parsed
	}
	accountType := strings.TrimSpace(req.AccountType)
	if accountType == "" {
		accountType = "savings"
	}
	return s.repo.CreateAccount(ctx, &domain.Account{
		UserID:      req.UserID,
		AccountType: accountType,
		Balance:     opening,
	})
}

// GetUserAccounts lists a customer's accounts.
func (s *Service) GetUserAccounts(ctx context.Context, userID int64) ([]domain.Account, error) {
	return s.repo.FindAccountsByUserID(ctx, userID)
}

// GetAccountBalance returns the formatted balance for an account.
func (s *Service) GetAccountBalance(ctx context.Context, accountNo int64) (string, error) {
	balance, err := s.repo.GetBalance(ctx, accountNo)
	if err != nil {
		return "", err
	}
	return domain.FormatAmount(balance), nil
}

// Deposit credits cash into an account through the single-statement primitive.
func (s *Service) Deposit(ctx context.Context, accountNo int64, amount string) (string, error) {
	cents, err := domain.ParseAmount(amount)
	if err != nil {
		return "", err
	}
	ok, err := s.repo.Credit(ctx, accountNo, cents)
	if err != nil {
		return "", fmt.Errorf("failed to credit account: %w", err)
	}
	if !ok {
		return "", store.ErrAccountNotFound
	}
	log.Printf("level=info component=account_service msg=\"deposit applied\" account_no=%d amount=%d", accountNo, cents)
	return s.GetAccountBalance(ctx, accountNo)
}

// Withdraw debits cash from an account. The guarded update makes the funds
// check and the debit one atomic step, so concurrent withdrawals can never
// drive the balance negative.
func (s *Service) Withdraw(ctx context.Context, accountNo int64, amount string) (string, error) {
	cents, err := domain.ParseAmount(amount)
	if err != nil {
		return "", err
	}
	ok, err := s.repo.Debit(ctx, accountNo, cents)
	if err != nil {
		return "", fmt.Errorf("failed to debit account: %w", err)
	}
	if !ok {
		// The guard rejects both a missing account and insufficient funds;
		// a balance read tells the two apart.
		if _, balErr := s.repo.GetBalance(ctx, accountNo); balErr != nil {
			return "", balErr
		}
		return "", store.ErrInsufficientFunds
	}
	log.Printf("level=info component=account_service msg=\"withdrawal applied\" account_no=%d amount=%d", accountNo, cents)
	return s.GetAccountBalance(ctx, accountNo)
}

// IssueCard issues a new card against one of the user's accounts.
func (s *Service) IssueCard(ctx context.Context, req domain.CreateCardRequest) (*domain.Card, error) {
	accounts, err := s.repo.FindAccountsByUserID(ctx, req.UserID)
	if err != nil {
		return nil, err
	}
	owned := false
	for _, account := range accounts {
		if account.AccountNo == req.AccountNo {
			owned = true
			break
		}
	}
	if !owned {
		return nil, store.ErrAccountNotFound
	}
	return s.repo.CreateCard(ctx, &domain.Card{
		CardNo:    generateCardNumber(),
		UserID:    req.UserID,
		AccountNo: req.AccountNo,
		Status:    "active",
	})
}

// GetUserCards lists the cards issued to a customer.
func (s *Service) GetUserCards(ctx context.Context, userID int64) ([]domain.Card, error) {
	return s.repo.FindCardsByUserID(ctx, userID)
}

// UpdateCardStatus freezes, unfreezes, or cancels a card.
func (s *Service) UpdateCardStatus(ctx context.Context, cardNo, status string) error {
	switch status {
	case "active", "frozen", "cancelled":
	default:
		return fmt.Errorf("%w: invalid card status %q", ErrInvalidInput, status)
	}
	return s.repo.UpdateCardStatus(ctx, cardNo, status)
}

// ListCountries returns the countries with known receiver banks.
func (s *Service) ListCountries(ctx context.Context) ([]string, error) {
	return s.repo.ListCountries(ctx)
}

// GetBanksByCountry returns the receiver banks for a country.
func (s *Service) GetBanksByCountry(ctx context.Context, country string) ([]domain.Bank, error) {
	return s.repo.FindBanksByCountry(ctx, country)
}

// GetAccountTransactions lists an account's transfer history.
func (s *Service) GetAccountTransactions(ctx context.Context, accountNo int64) ([]domain.Transaction, error) {
	return s.repo.FindTransactionsByAccount(ctx, accountNo)
}
