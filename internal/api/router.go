/**
 * @description
 * This file sets up the HTTP router for the atm-service. It defines the API
 * endpoints, associates them with their corresponding handlers, and applies any
 * necessary middleware, such as for authentication.
 *
 * @dependencies
 * - net/http: Standard Go library for HTTP functionality.
 * - github.com/go-chi/chi/v5: A lightweight and idiomatic router for Go.
 */

package api

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

// ATMRoutes creates and returns a new router for the atm service.
func ATMRoutes(h *ATMHandlers, jwtSecret string) http.Handler {
	r := chi.NewRouter()

	// Add standard middleware for logging, panic recovery, and timeouts.
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(60 * time.Second))

	// Health check endpoint
	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("healthy"))
	})

	// OTP endpoints are unauthenticated; they gate login itself.
	r.Post("/otp/send", h.SendOTPHandler)
	r.Post("/otp/verify", h.VerifyOTPHandler)

	// Reference lookups carry no account data and stay open.
	r.Get("/rates", h.GetExchangeRateHandler)
	r.Get("/banks/countries", h.ListCountriesHandler)
	r.Get("/banks", h.ListBanksHandler)

	// Group routes that require authentication.
	r.Group(func(r chi.Router) {
		r.Use(AuthMiddleware(jwtSecret))

		// Transfers and the ledger
		r.Post("/transfers/overseas", h.OverseasTransferHandler)
		r.Get("/ledger/blocks", h.ListLedgerBlocksHandler)
		r.Get("/ledger/tail", h.GetLedgerTailHandler)
		r.Get("/ledger/verify", h.VerifyLedgerHandler)

		// Receiver identity verification
		r.Post("/blockchain/users", h.RegisterBlockchainUserHandler)
		r.Get("/blockchain/users/verify", h.VerifyReceiverHandler)

		// Customer and account management
		r.Post("/users", h.CreateUserHandler)
		r.Get("/users", h.FindUserByEmailHandler)
		r.Get("/users/{userID}", h.GetUserHandler)
		r.Get("/users/{userID}/accounts", h.GetUserAccountsHandler)
		r.Get("/users/{userID}/cards", h.GetUserCardsHandler)
		r.Post("/accounts", h.CreateAccountHandler)
		r.Get("/accounts/{accountNo}/balance", h.GetAccountBalanceHandler)
		r.Get("/accounts/{accountNo}/transactions", h.GetAccountTransactionsHandler)
		r.Post("/accounts/{accountNo}/deposit", h.DepositHandler)
		r.Post("/accounts/{accountNo}/withdraw", h.WithdrawHandler)
		r.Post("/cards", h.IssueCardHandler)
		r.Put("/cards/{cardNo}/status", h.UpdateCardStatusHandler)
	})

	return r
}
