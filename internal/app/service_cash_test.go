package app

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/meridianbank/atm-service/internal/domain"
	"github.com/meridianbank/atm-service/internal/store"
)

func TestDepositAndWithdraw(t *testing.T) {
	repo := newMemRepo()
	repo.balances[1001] = 5000
	svc := NewService(repo, &stubRates{rate: 1}, nil)

	balance, err := svc.Deposit(context.Background(), 1001, "25.50")
	if err != nil {
		t.Fatalf("deposit failed: %v", err)
	}
	if balance != "75.50" {
		t.Errorf("expected balance 75.50 after deposit, got %s", balance)
	}

	balance, err = svc.Withdraw(context.Background(), 1001, "70.00")
	if err != nil {
		t.Fatalf("withdraw failed: %v", err)
	}
	if balance != "5.50" {
		t.Errorf("expected balance 5.50 after withdrawal, got %s", balance)
	}
}

func TestWithdrawInsufficientFunds(t *testing.T) {
	repo := newMemRepo()
	repo.balances[1001] = 5000
	svc := NewService(repo, &stubRates{rate: 1}, nil)

	if _, err := svc.Withdraw(context.Background(), 1001, "50.01"); !errors.Is(err, store.ErrInsufficientFunds) {
		t.Fatalf("expected ErrInsufficientFunds, got %v", err)
	}
	if repo.balances[1001] != 5000 {
		t.Errorf("balance mutated on failed withdrawal: %d", repo.balances[1001])
	}
}

func TestCashMovementUnknownAccount(t *testing.T) {
	repo := newMemRepo()
	svc := NewService(repo, &stubRates{rate: 1}, nil)

	if _, err := svc.Deposit(context.Background(), 9999, "10.00"); !errors.Is(err, store.ErrAccountNotFound) {
		t.Errorf("deposit: expected ErrAccountNotFound, got %v", err)
	}
	if _, err := svc.Withdraw(context.Background(), 9999, "10.00"); !errors.Is(err, store.ErrAccountNotFound) {
		t.Errorf("withdraw: expected ErrAccountNotFound, got %v", err)
	}
}

func TestCashMovementRejectsMalformedAmount(t *testing.T) {
	repo := newMemRepo()
	repo.balances[1001] = 5000
	svc := NewService(repo, &stubRates{rate: 1}, nil)

	if _, err := svc.Withdraw(context.Background(), 1001, "10.005"); !errors.Is(err, domain.ErrInvalidAmount) {
		t.Fatalf("expected ErrInvalidAmount, got %v", err)
	}
	// A whole part that would wrap int64 cents is rejected, not truncated.
	if _, err := svc.Withdraw(context.Background(), 1001, "184467440737095517.00"); !errors.Is(err, domain.ErrInvalidAmount) {
		t.Fatalf("expected ErrInvalidAmount for wrapping amount, got %v", err)
	}
	if repo.balances[1001] != 5000 {
		t.Errorf("rejected withdrawals mutated the balance: %d", repo.balances[1001])
	}
}

func TestConcurrentWithdrawalsNeverOverdraw(t *testing.T) {
	repo := newMemRepo()
	repo.balances[1001] = 10000
	svc := NewService(repo, &stubRates{rate: 1}, nil)

	const attempts = 10
	var wg sync.WaitGroup
	errs := make([]error, attempts)
	for i := 0; i < attempts; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = svc.Withdraw(context.Background(), 1001, "30.00")
		}(i)
	}
	wg.Wait()

	succeeded := 0
	for _, err := range errs {
		if err == nil {
			succeeded++
		} else if !errors.Is(err, store.ErrInsufficientFunds) {
			t.Errorf("unexpected error: %v", err)
		}
	}
	if succeeded != 3 {
		t.Fatalf("expected exactly 3 successful withdrawals of 30.00 from 100.00, got %d", succeeded)
	}
	if repo.balances[1001] != 1000 {
		t.Errorf("expected final balance 1000, got %d", repo.balances[1001])
	}
}
