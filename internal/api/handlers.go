/**
 * @description
 * This file contains the HTTP handlers for the atm-service's API endpoints.
 * Handlers are responsible for parsing incoming requests, calling the
 * appropriate methods on the application service, and writing the HTTP
 * response. They act as the bridge between the web layer and the business
 * logic layer.
 *
 * @dependencies
 * - encoding/json, log, net/http: Standard Go libraries.
 * - github.com/go-chi/chi/v5: URL parameter extraction.
 * - internal/app, internal/domain, internal/store: For service logic, models, and custom errors.
 */

package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/meridianbank/atm-service/internal/app"
	"github.com/meridianbank/atm-service/internal/domain"
	"github.com/meridianbank/atm-service/internal/ledger"
	"github.com/meridianbank/atm-service/internal/store"
)

// ATMHandlers holds the application services that handlers will use.
type ATMHandlers struct {
	service *app.Service
	otp     *app.OTPService
}

// NewATMHandlers creates a new instance of ATMHandlers.
func NewATMHandlers(service *app.Service, otp *app.OTPService) *ATMHandlers {
	return &ATMHandlers{service: service, otp: otp}
}

func (h *ATMHandlers) writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if data != nil {
		json.NewEncoder(w).Encode(data)
	}
}

func (h *ATMHandlers) writeError(w http.ResponseWriter, status int, message string) {
	h.writeJSON(w, status, map[string]string{"error": message})
}

// writeServiceError maps service and store errors onto HTTP status codes.
func (h *ATMHandlers) writeServiceError(w http.ResponseWriter, endpoint string, err error) {
	switch {
	case errors.Is(err, app.ErrInvalidInput), errors.Is(err, domain.ErrInvalidAmount):
		h.writeError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, store.ErrInsufficientFunds):
		h.writeError(w, http.StatusBadRequest, "Insufficient funds")
	case errors.Is(err, app.ErrReceiverNotVerified):
		h.writeError(w, http.StatusForbidden, "Receiver identity is not verified")
	case errors.Is(err, store.ErrUserNotFound):
		h.writeError(w, http.StatusNotFound, "User not found")
	case errors.Is(err, store.ErrAccountNotFound):
		h.writeError(w, http.StatusNotFound, "Account not found")
	case errors.Is(err, store.ErrCardNotFound):
		h.writeError(w, http.StatusNotFound, "Card not found")
	case errors.Is(err, store.ErrDuplicateIdentity):
		h.writeError(w, http.StatusConflict, "Identity is already registered")
	case errors.Is(err, store.ErrDuplicateEmail):
		h.writeError(w, http.StatusConflict, "Email is already registered")
	case errors.Is(err, store.ErrConcurrentModification):
		h.writeError(w, http.StatusConflict, "Concurrent modification, please retry")
	case errors.Is(err, app.ErrRateUnavailable):
		h.writeError(w, http.StatusBadGateway, "Exchange rate is unavailable")
	case errors.Is(err, app.ErrLedgerCorruption):
		h.writeError(w, http.StatusInternalServerError, "Ledger verification failed")
	default:
		log.Printf("level=error component=api endpoint=%s msg=\"unhandled error\" err=%v", endpoint, err)
		h.writeError(w, http.StatusInternalServerError, "Internal server error")
	}
}

// OverseasTransferHandler handles requests for overseas transfers.
func (h *ATMHandlers) OverseasTransferHandler(w http.ResponseWriter, r *http.Request) {
	var req domain.OverseasTransferRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		log.Printf("level=warn component=api endpoint=overseas_transfer outcome=reject reason=invalid_json err=%v", err)
		h.writeError(w, http.StatusBadRequest, fmt.Sprintf("Invalid request body: %v", err))
		return
	}

	result, err := h.service.ProcessOverseasTransfer(r.Context(), req)
	if err != nil {
		log.Printf("level=warn component=api endpoint=overseas_transfer outcome=failed sender=%d err=%v", req.SenderAccountNo, err)
		h.writeServiceError(w, "overseas_transfer", err)
		return
	}

	log.Printf("level=info component=api endpoint=overseas_transfer outcome=committed transaction_id=%s block_id=%d", result.TransactionID, result.BlockID)
	h.writeJSON(w, http.StatusCreated, result)
}

// ListLedgerBlocksHandler returns the full block chain in order.
func (h *ATMHandlers) ListLedgerBlocksHandler(w http.ResponseWriter, r *http.Request) {
	blocks, err := h.service.ListLedgerBlocks(r.Context())
	if err != nil {
		h.writeServiceError(w, "ledger_blocks", err)
		return
	}
	if blocks == nil {
		blocks = []domain.LedgerBlock{}
	}
	h.writeJSON(w, http.StatusOK, blocks)
}

// GetLedgerTailHandler returns the newest block, or the genesis sentinel for
// an empty chain.
func (h *ATMHandlers) GetLedgerTailHandler(w http.ResponseWriter, r *http.Request) {
	tail, err := h.service.GetLedgerTail(r.Context())
	if err != nil {
		h.writeServiceError(w, "ledger_tail", err)
		return
	}
	h.writeJSON(w, http.StatusOK, tail)
}

// VerifyLedgerHandler replays the chain and reports its integrity.
func (h *ATMHandlers) VerifyLedgerHandler(w http.ResponseWriter, r *http.Request) {
	report, err := h.service.VerifyLedger(r.Context())
	if err != nil {
		if errors.Is(err, app.ErrLedgerCorruption) && report != nil {
			// The report carries the failing block; surface it with the error status.
			h.writeJSON(w, http.StatusInternalServerError, report)
			return
		}
		h.writeServiceError(w, "ledger_verify", err)
		return
	}
	h.writeJSON(w, http.StatusOK, report)
}

// GetExchangeRateHandler returns the current conversion rate for a pair.
func (h *ATMHandlers) GetExchangeRateHandler(w http.ResponseWriter, r *http.Request) {
	from := strings.ToUpper(strings.TrimSpace(r.URL.Query().Get("from")))
	to := strings.ToUpper(strings.TrimSpace(r.URL.Query().Get("to")))
	if from == "" || to == "" {
		h.writeError(w, http.StatusBadRequest, "Query parameters 'from' and 'to' are required")
		return
	}

	rate, err := h.service.GetExchangeRate(r.Context(), from, to)
	if err != nil {
		h.writeServiceError(w, "exchange_rate", err)
		return
	}
	h.writeJSON(w, http.StatusOK, map[string]interface{}{
		"from": from,
		"to":   to,
		"rate": rate,
	})
}

// RegisterBlockchainUserHandler registers a verified overseas receiver.
func (h *ATMHandlers) RegisterBlockchainUserHandler(w http.ResponseWriter, r *http.Request) {
	var req domain.RegisterBlockchainUserRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, fmt.Sprintf("Invalid request body: %v", err))
		return
	}

	user, err := h.service.RegisterBlockchainUser(r.Context(), req)
	if err != nil {
		h.writeServiceError(w, "register_blockchain_user", err)
		return
	}
	h.writeJSON(w, http.StatusCreated, user)
}

// VerifyReceiverHandler reports whether a receiver identity is registered.
func (h *ATMHandlers) VerifyReceiverHandler(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()
	accountNo := query.Get("account_no")
	bankName := query.Get("bank_name")
	country := query.Get("country")
	if accountNo == "" || bankName == "" || country == "" {
		h.writeError(w, http.StatusBadRequest, "Query parameters 'account_no', 'bank_name', and 'country' are required")
		return
	}

	verified, err := h.service.VerifyReceiver(r.Context(), accountNo, bankName, country)
	if err != nil {
		h.writeServiceError(w, "verify_receiver", err)
		return
	}
	h.writeJSON(w, http.StatusOK, map[string]interface{}{
		"verified":      verified,
		"identity_hash": ledger.IdentityHash(accountNo, bankName, country),
	})
}

// CreateUserHandler registers a new customer.
func (h *ATMHandlers) CreateUserHandler(w http.ResponseWriter, r *http.Request) {
	var req domain.CreateUserRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, fmt.Sprintf("Invalid request body: %v", err))
		return
	}

	user, err := h.service.CreateUser(r.Context(), req)
	if err != nil {
		h.writeServiceError(w, "create_user", err)
		return
	}
	h.writeJSON(w, http.StatusCreated, user)
}

// GetUserHandler retrieves a customer by id.
func (h *ATMHandlers) GetUserHandler(w http.ResponseWriter, r *http.Request) {
	userID, ok := h.parseIDParam(w, r, "userID")
	if !ok {
		return
	}
	user, err := h.service.GetUser(r.Context(), userID)
	if err != nil {
		h.writeServiceError(w, "get_user", err)
		return
	}
	h.writeJSON(w, http.StatusOK, user)
}

// CreateAccountHandler opens a new account.
func (h *ATMHandlers) CreateAccountHandler(w http.ResponseWriter, r *http.Request) {
	var req domain.CreateAccountRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, fmt.Sprintf("Invalid request body: %v", err))
		return
	}

	account, err := h.service.CreateAccount(r.Context(), req)
	if err != nil {
		h.writeServiceError(w, "create_account", err)
		return
	}
	h.writeJSON(w, http.StatusCreated, account)
}

// GetUserAccountsHandler lists a customer's accounts.
func (h *ATMHandlers) GetUserAccountsHandler(w http.ResponseWriter, r *http.Request) {
	userID, ok := h.parseIDParam(w, r, "userID")
	if !ok {
		return
	}
	accounts, err := h.service.GetUserAccounts(r.Context(), userID)
	if err != nil {
		h.writeServiceError(w, "list_accounts", err)
		return
	}
	if accounts == nil {
		accounts = []domain.Account{}
	}
	h.writeJSON(w, http.StatusOK, accounts)
}

// GetAccountBalanceHandler returns the formatted balance of an account.
func (h *ATMHandlers) GetAccountBalanceHandler(w http.ResponseWriter, r *http.Request) {
	accountNo, ok := h.parseIDParam(w, r, "accountNo")
	if !ok {
		return
	}
	balance, err := h.service.GetAccountBalance(r.Context(), accountNo)
	if err != nil {
		h.writeServiceError(w, "account_balance", err)
		return
	}
	h.writeJSON(w, http.StatusOK, map[string]string{"balance": balance})
}

// DepositHandler credits cash into an account.
func (h *ATMHandlers) DepositHandler(w http.ResponseWriter, r *http.Request) {
	h.handleCashMovement(w, r, h.service.Deposit, "deposit")
}

// WithdrawHandler debits cash from an account.
func (h *ATMHandlers) WithdrawHandler(w http.ResponseWriter, r *http.Request) {
	h.handleCashMovement(w, r, h.service.Withdraw, "withdraw")
}

func (h *ATMHandlers) handleCashMovement(w http.ResponseWriter, r *http.Request, op func(context.Context, int64, string) (string, error), endpoint string) {
	accountNo, ok := h.parseIDParam(w, r, "accountNo")
	if !ok {
		return
	}
	var req struct {
		Amount string `json:"amount"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, fmt.Sprintf("Invalid request body: %v", err))
		return
	}

	balance, err := op(r.Context(), accountNo, req.Amount)
	if err != nil {
		h.writeServiceError(w, endpoint, err)
		return
	}
	h.writeJSON(w, http.StatusOK, map[string]string{"balance": balance})
}

// FindUserByEmailHandler retrieves a customer by email.
func (h *ATMHandlers) FindUserByEmailHandler(w http.ResponseWriter, r *http.Request) {
	email := strings.TrimSpace(r.URL.Query().Get("email"))
	if email == "" {
		h.writeError(w, http.StatusBadRequest, "Query parameter 'email' is required")
		return
	}
	user, err := h.service.FindUserByEmail(r.Context(), email)
	if err != nil {
		h.writeServiceError(w, "find_user_by_email", err)
		return
	}
	h.writeJSON(w, http.StatusOK, user)
}

// GetAccountTransactionsHandler lists an account's transfer history.
func (h *ATMHandlers) GetAccountTransactionsHandler(w http.ResponseWriter, r *http.Request) {
	accountNo, ok := h.parseIDParam(w, r, "accountNo")
	if !ok {
		return
	}
	transactions, err := h.service.GetAccountTransactions(r.Context(), accountNo)
	if err != nil {
		h.writeServiceError(w, "account_transactions", err)
		return
	}
	if transactions == nil {
		transactions = []domain.Transaction{}
	}
	h.writeJSON(w, http.StatusOK, transactions)
}

// IssueCardHandler issues a new card against an account.
func (h *ATMHandlers) IssueCardHandler(w http.ResponseWriter, r *http.Request) {
	var req domain.CreateCardRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, fmt.Sprintf("Invalid request body: %v", err))
		return
	}

	card, err := h.service.IssueCard(r.Context(), req)
	if err != nil {
		h.writeServiceError(w, "issue_card", err)
		return
	}
	h.writeJSON(w, http.StatusCreated, card)
}

// GetUserCardsHandler lists a customer's cards.
func (h *ATMHandlers) GetUserCardsHandler(w http.ResponseWriter, r *http.Request) {
	userID, ok := h.parseIDParam(w, r, "userID")
	if !ok {
		return
	}
	cards, err := h.service.GetUserCards(r.Context(), userID)
	if err != nil {
		h.writeServiceError(w, "list_cards", err)
		return
	}
	if cards == nil {
		cards = []domain.Card{}
	}
	h.writeJSON(w, http.StatusOK, cards)
}

// UpdateCardStatusHandler freezes, unfreezes, or cancels a card.
func (h *ATMHandlers) UpdateCardStatusHandler(w http.ResponseWriter, r *http.Request) {
	cardNo := chi.URLParam(r, "cardNo")
	var req struct {
		Status string `json:"status"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, fmt.Sprintf("Invalid request body: %v", err))
		return
	}

	if err := h.service.UpdateCardStatus(r.Context(), cardNo, req.Status); err != nil {
		h.writeServiceError(w, "update_card_status", err)
		return
	}
	h.writeJSON(w, http.StatusOK, map[string]string{"card_no": cardNo, "status": req.Status})
}

// ListCountriesHandler lists the countries with known receiver banks.
func (h *ATMHandlers) ListCountriesHandler(w http.ResponseWriter, r *http.Request) {
	countries, err := h.service.ListCountries(r.Context())
	if err != nil {
		h.writeServiceError(w, "list_countries", err)
		return
	}
	if countries == nil {
		countries = []string{}
	}
	h.writeJSON(w, http.StatusOK, countries)
}

// ListBanksHandler lists the receiver banks for a country.
func (h *ATMHandlers) ListBanksHandler(w http.ResponseWriter, r *http.Request) {
	country := strings.TrimSpace(r.URL.Query().Get("country"))
	if country == "" {
		h.writeError(w, http.StatusBadRequest, "Query parameter 'country' is required")
		return
	}
	banks, err := h.service.GetBanksByCountry(r.Context(), country)
	if err != nil {
		h.writeServiceError(w, "list_banks", err)
		return
	}
	if banks == nil {
		banks = []domain.Bank{}
	}
	h.writeJSON(w, http.StatusOK, banks)
}

// SendOTPHandler issues a one-time password for an email.
func (h *ATMHandlers) SendOTPHandler(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Email string `json:"email"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, fmt.Sprintf("Invalid request body: %v", err))
		return
	}

	retryAfter, err := h.otp.IssueOTP(r.Context(), req.Email)
	if err != nil {
		if errors.Is(err, app.ErrOTPRateLimited) {
			w.Header().Set("Retry-After", strconv.Itoa(retryAfter))
			h.writeError(w, http.StatusTooManyRequests, "Too many OTP requests, please wait")
			return
		}
		if errors.Is(err, app.ErrOTPUnavailable) {
			h.writeError(w, http.StatusServiceUnavailable, "OTP service is unavailable")
			return
		}
		h.writeServiceError(w, "send_otp", err)
		return
	}
	h.writeJSON(w, http.StatusAccepted, map[string]string{"status": "sent"})
}

// VerifyOTPHandler checks and consumes a one-time password.
func (h *ATMHandlers) VerifyOTPHandler(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Email string `json:"email"`
		Code  string `json:"code"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, fmt.Sprintf("Invalid request body: %v", err))
		return
	}

	if retryAfter, err := h.otp.VerifyOTP(r.Context(), req.Email, req.Code); err != nil {
		switch {
		case errors.Is(err, app.ErrOTPInvalid):
			h.writeError(w, http.StatusUnauthorized, "Invalid OTP code")
		case errors.Is(err, app.ErrOTPExpired):
			h.writeError(w, http.StatusGone, "OTP code has expired")
		case errors.Is(err, app.ErrOTPRateLimited):
			w.Header().Set("Retry-After", strconv.Itoa(retryAfter))
			h.writeError(w, http.StatusTooManyRequests, "Too many OTP attempts, please wait")
		case errors.Is(err, app.ErrOTPUnavailable):
			h.writeError(w, http.StatusServiceUnavailable, "OTP service is unavailable")
		default:
			h.writeServiceError(w, "verify_otp", err)
		}
		return
	}
	h.writeJSON(w, http.StatusOK, map[string]string{"status": "verified"})
}

func (h *ATMHandlers) parseIDParam(w http.ResponseWriter, r *http.Request, name string) (int64, bool) {
	raw := chi.URLParam(r, name)
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id <= 0 {
		h.writeError(w, http.StatusBadRequest, fmt.Sprintf("Invalid %s", name))
		return 0, false
	}
	return id, true
}
