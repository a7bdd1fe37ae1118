package app

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"

	"github.com/meridianbank/atm-service/internal/domain"
	"github.com/meridianbank/atm-service/internal/ledger"
	"github.com/meridianbank/atm-service/internal/store"
	"github.com/meridianbank/atm-service/pkg/rabbitmq"
)

// memRepo is an in-memory Repository that mirrors the transactional semantics
// of the Postgres implementation: ExecuteTransfer re-checks funds under the
// lock, and the chain can only be extended from its current tail.
type memRepo struct {
	store.Repository

	mu           sync.Mutex
	balances     map[int64]int64
	identities   map[string]bool
	blocks       []domain.LedgerBlock
	transactions []domain.Transaction
	usedPrevHash map[string]bool

	balanceReads int
}

func newMemRepo() *memRepo {
	return &memRepo{
		balances:     make(map[int64]int64),
		identities:   make(map[string]bool),
		usedPrevHash: make(map[string]bool),
	}
}

func (m *memRepo) IdentityHashExists(ctx context.Context, identityHash string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.identities[identityHash], nil
}

func (m *memRepo) GetBalance(ctx context.Context, accountNo int64) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.balanceReads++
	balance, ok := m.balances[accountNo]
	if !ok {
		return 0, store.ErrAccountNotFound
	}
	return balance, nil
}

func (m *memRepo) Debit(ctx context.Context, accountNo int64, amount int64) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	balance, ok := m.balances[accountNo]
	if !ok || balance < amount {
		return false, nil
	}
	m.balances[accountNo] = balance - amount
	return true, nil
}

func (m *memRepo) Credit(ctx context.Context, accountNo int64, amount int64) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.balances[accountNo]; !ok {
		return false, nil
	}
	m.balances[accountNo] += amount
	return true, nil
}

func (m *memRepo) ListLedgerBlocks(ctx context.Context) ([]domain.LedgerBlock, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]domain.LedgerBlock, len(m.blocks))
	copy(out, m.blocks)
	return out, nil
}

func (m *memRepo) TailLedgerBlock(ctx context.Context) (*domain.LedgerBlock, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.blocks) == 0 {
		return nil, nil
	}
	tail := m.blocks[len(m.blocks)-1]
	return &tail, nil
}

func (m *memRepo) ExecuteTransfer(ctx context.Context, params store.ExecuteTransferParams) (*store.ExecuteTransferResult, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	txn := params.Transaction
	balance, ok := m.balances[txn.SenderAccountNo]
	if !ok {
		return nil, store.ErrAccountNotFound
	}
	if balance < txn.Amount {
		return nil, store.ErrInsufficientFunds
	}

	previousHash := domain.GenesisHash
	if len(m.blocks) > 0 {
		previousHash = m.blocks[len(m.blocks)-1].CurrentHash
	}
	if m.usedPrevHash[previousHash] {
		return nil, store.ErrConcurrentModification
	}

	m.balances[txn.SenderAccountNo] = balance - txn.Amount
	m.usedPrevHash[previousHash] = true

	block := domain.LedgerBlock{
		BlockID:         int64(len(m.blocks) + 1),
		PreviousHash:    previousHash,
		CurrentHash:     ledger.ComputeBlockHash(params.Payload),
		TransactionData: string(params.Payload),
		ValidatedBy:     params.ValidatedBy,
	}
	m.blocks = append(m.blocks, block)
	txn.BlockID = &block.BlockID
	m.transactions = append(m.transactions, txn)

	return &store.ExecuteTransferResult{Transaction: txn, Block: block}, nil
}

type stubRates struct {
	rate float64
	err  error
}

func (s *stubRates) GetRate(ctx context.Context, fromCurrency, toCurrency string) (float64, error) {
	if s.err != nil {
		return 0, s.err
	}
	return s.rate, nil
}

type recordingProducer struct {
	mu        sync.Mutex
	transfers []rabbitmq.TransferCompletedEvent
}

func (p *recordingProducer) Publish(ctx context.Context, exchange, routingKey string, body interface{}) error {
	return nil
}

func (p *recordingProducer) PublishTransferCompletedEvent(ctx context.Context, event rabbitmq.TransferCompletedEvent) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.transfers = append(p.transfers, event)
	return nil
}

func (p *recordingProducer) PublishOTPIssuedEvent(ctx context.Context, event rabbitmq.OTPIssuedEvent) error {
	return nil
}

func (p *recordingProducer) Close() {}

func registerReceiver(repo *memRepo, accountNo, bankName, country string) {
	repo.identities[ledger.IdentityHash(accountNo, bankName, country)] = true
}

func baseRequest() domain.OverseasTransferRequest {
	return domain.OverseasTransferRequest{
		SenderAccountNo:   1001,
		ReceiverAccountNo: "MY-778899",
		ReceiverBankID:    7,
		ReceiverBankName:  "Maybank",
		ReceiverCountry:   "Malaysia",
		Amount:            "40.00",
		FromCurrency:      "SGD",
		ToCurrency:        "MYR",
	}
}

func TestProcessOverseasTransferHappyPath(t *testing.T) {
	repo := newMemRepo()
	repo.balances[1001] = 10000 // 100.00
	registerReceiver(repo, "MY-778899", "Maybank", "Malaysia")
	producer := &recordingProducer{}
	svc := NewService(repo, &stubRates{rate: 3.2}, producer)

	result, err := svc.ProcessOverseasTransfer(context.Background(), baseRequest())
	if err != nil {
		t.Fatalf("transfer failed: %v", err)
	}

	if result.ConvertedAmount != "128.00" {
		t.Errorf("expected converted amount 128.00, got %s", result.ConvertedAmount)
	}
	if result.Currency != "MYR" {
		t.Errorf("expected currency MYR, got %s", result.Currency)
	}
	if repo.balances[1001] != 6000 {
		t.Errorf("expected balance 6000 after debit, got %d", repo.balances[1001])
	}
	if len(repo.transactions) != 1 || len(repo.blocks) != 1 {
		t.Fatalf("expected exactly one transaction and one block, got %d/%d", len(repo.transactions), len(repo.blocks))
	}
	block := repo.blocks[0]
	if block.PreviousHash != domain.GenesisHash {
		t.Errorf("expected genesis previous hash, got %s", block.PreviousHash)
	}
	if got := ledger.ComputeBlockHash([]byte(block.TransactionData)); got != block.CurrentHash {
		t.Errorf("block hash does not match recomputation")
	}
	if repo.transactions[0].BlockID == nil || *repo.transactions[0].BlockID != block.BlockID {
		t.Errorf("transaction not linked to its block")
	}
	if len(producer.transfers) != 1 {
		t.Errorf("expected one transfer completed event, got %d", len(producer.transfers))
	}
}

func TestProcessOverseasTransferInsufficientFunds(t *testing.T) {
	repo := newMemRepo()
	repo.balances[1001] = 10000 // 100.00
	registerReceiver(repo, "MY-778899", "Maybank", "Malaysia")
	svc := NewService(repo, &stubRates{rate: 3.2}, nil)

	req := baseRequest()
	req.Amount = "150.00"
	_, err := svc.ProcessOverseasTransfer(context.Background(), req)
	if !errors.Is(err, store.ErrInsufficientFunds) {
		t.Fatalf("expected ErrInsufficientFunds, got %v", err)
	}
	if repo.balances[1001] != 10000 {
		t.Errorf("balance mutated on failed transfer: %d", repo.balances[1001])
	}
	if len(repo.transactions) != 0 || len(repo.blocks) != 0 {
		t.Errorf("failed transfer left records behind: %d/%d", len(repo.transactions), len(repo.blocks))
	}
}

func TestProcessOverseasTransferUnverifiedReceiver(t *testing.T) {
	repo := newMemRepo()
	repo.balances[1001] = 10000
	svc := NewService(repo, &stubRates{rate: 3.2}, nil)

	_, err := svc.ProcessOverseasTransfer(context.Background(), baseRequest())
	if !errors.Is(err, ErrReceiverNotVerified) {
		t.Fatalf("expected ErrReceiverNotVerified, got %v", err)
	}
	if repo.balanceReads != 0 {
		t.Errorf("balance was read before receiver verification")
	}
	if repo.balances[1001] != 10000 {
		t.Errorf("balance mutated on rejected transfer")
	}
}

func TestProcessOverseasTransferRateUnavailable(t *testing.T) {
	repo := newMemRepo()
	repo.balances[1001] = 10000
	registerReceiver(repo, "MY-778899", "Maybank", "Malaysia")
	svc := NewService(repo, &stubRates{err: errors.New("provider timeout")}, nil)

	_, err := svc.ProcessOverseasTransfer(context.Background(), baseRequest())
	if !errors.Is(err, ErrRateUnavailable) {
		t.Fatalf("expected ErrRateUnavailable, got %v", err)
	}
	if repo.balances[1001] != 10000 || len(repo.blocks) != 0 {
		t.Errorf("rate failure mutated state")
	}
}

func TestProcessOverseasTransferRejectsMalformedAmounts(t *testing.T) {
	repo := newMemRepo()
	repo.balances[1001] = 10000
	registerReceiver(repo, "MY-778899", "Maybank", "Malaysia")
	svc := NewService(repo, &stubRates{rate: 3.2}, nil)

	for _, amount := range []string{"40.123", "-40.00", "0.00", "40,00", "", "184467440737095517.00"} {
		req := baseRequest()
		req.Amount = amount
		if _, err := svc.ProcessOverseasTransfer(context.Background(), req); !errors.Is(err, domain.ErrInvalidAmount) {
			t.Errorf("amount %q: expected ErrInvalidAmount, got %v", amount, err)
		}
	}
	if repo.balanceReads != 0 {
		t.Errorf("balance read for malformed input")
	}
}

func TestConcurrentTransfersNeverOverdraw(t *testing.T) {
	repo := newMemRepo()
	repo.balances[1001] = 5000 // 50.00, enough for one 40.00 transfer
	registerReceiver(repo, "MY-778899", "Maybank", "Malaysia")
	svc := NewService(repo, &stubRates{rate: 3.2}, nil)

	const attempts = 8
	var wg sync.WaitGroup
	errs := make([]error, attempts)
	for i := 0; i < attempts; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = svc.ProcessOverseasTransfer(context.Background(), baseRequest())
		}(i)
	}
	wg.Wait()

	succeeded := 0
	for _, err := range errs {
		if err == nil {
			succeeded++
		} else if !errors.Is(err, store.ErrInsufficientFunds) && !errors.Is(err, store.ErrConcurrentModification) {
			t.Errorf("unexpected error: %v", err)
		}
	}
	if succeeded != 1 {
		t.Fatalf("expected exactly one successful transfer, got %d", succeeded)
	}
	if repo.balances[1001] != 1000 {
		t.Errorf("expected balance 1000 after one debit, got %d", repo.balances[1001])
	}
	if len(repo.blocks) != 1 {
		t.Errorf("expected one ledger block, got %d", len(repo.blocks))
	}
}

func TestSequentialTransfersFormValidChain(t *testing.T) {
	repo := newMemRepo()
	repo.balances[1001] = 100000
	registerReceiver(repo, "MY-778899", "Maybank", "Malaysia")
	svc := NewService(repo, &stubRates{rate: 1.5}, nil)

	for i := 0; i < 5; i++ {
		if _, err := svc.ProcessOverseasTransfer(context.Background(), baseRequest()); err != nil {
			t.Fatalf("transfer %d failed: %v", i, err)
		}
	}

	report, err := svc.VerifyLedger(context.Background())
	if err != nil {
		t.Fatalf("verification failed on a clean chain: %v", err)
	}
	if !report.Valid || report.BlockCount != 5 {
		t.Errorf("unexpected report: %+v", report)
	}
	for i := 1; i < len(repo.blocks); i++ {
		if repo.blocks[i].PreviousHash != repo.blocks[i-1].CurrentHash {
			t.Errorf("chain link broken at block %d", repo.blocks[i].BlockID)
		}
	}
}

func TestLedgerTail(t *testing.T) {
	repo := newMemRepo()
	repo.balances[1001] = 100000
	registerReceiver(repo, "MY-778899", "Maybank", "Malaysia")
	svc := NewService(repo, &stubRates{rate: 1.5}, nil)

	// An empty chain reports the genesis sentinel: the hash the first
	// appended block will link to.
	tail, err := svc.GetLedgerTail(context.Background())
	if err != nil {
		t.Fatalf("tail lookup on empty chain failed: %v", err)
	}
	if tail == nil || tail.CurrentHash != domain.GenesisHash {
		t.Fatalf("expected genesis sentinel tail, got %+v", tail)
	}

	result, err := svc.ProcessOverseasTransfer(context.Background(), baseRequest())
	if err != nil {
		t.Fatalf("transfer failed: %v", err)
	}

	tail, err = svc.GetLedgerTail(context.Background())
	if err != nil {
		t.Fatalf("tail lookup failed: %v", err)
	}
	if tail.BlockID != result.BlockID || tail.CurrentHash != result.BlockHash {
		t.Errorf("tail does not match the newest sealed block: %+v", tail)
	}
	if tail.PreviousHash != domain.GenesisHash {
		t.Errorf("first block should link to the genesis sentinel, got %q", tail.PreviousHash)
	}
}

func TestVerifyLedgerDetectsTampering(t *testing.T) {
	repo := newMemRepo()
	repo.balances[1001] = 100000
	registerReceiver(repo, "MY-778899", "Maybank", "Malaysia")
	svc := NewService(repo, &stubRates{rate: 1.5}, nil)

	for i := 0; i < 3; i++ {
		if _, err := svc.ProcessOverseasTransfer(context.Background(), baseRequest()); err != nil {
			t.Fatalf("transfer %d failed: %v", i, err)
		}
	}

	// Rewrite the amount inside the second block's stored payload.
	repo.blocks[1].TransactionData = fmt.Sprintf("%s ", repo.blocks[1].TransactionData)

	report, err := svc.VerifyLedger(context.Background())
	if !errors.Is(err, ErrLedgerCorruption) {
		t.Fatalf("expected ErrLedgerCorruption, got %v", err)
	}
	if report.Valid {
		t.Errorf("report claims a tampered chain is valid")
	}
	if report.FailedBlock == nil || *report.FailedBlock != repo.blocks[1].BlockID {
		t.Errorf("expected failure at block %d, got %+v", repo.blocks[1].BlockID, report.FailedBlock)
	}
}
