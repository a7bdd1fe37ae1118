package ledger

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"testing"

	"github.com/meridianbank/atm-service/internal/domain"
)

func buildChain(payloads ...string) []domain.LedgerBlock {
	blocks := make([]domain.LedgerBlock, 0, len(payloads))
	prev := domain.GenesisHash
	for i, p := range payloads {
		curr := ComputeBlockHash([]byte(p))
		blocks = append(blocks, domain.LedgerBlock{
			BlockID:         int64(i + 1),
			PreviousHash:    prev,
			CurrentHash:     curr,
			TransactionData: p,
		})
		prev = curr
	}
	return blocks
}

func TestComputeBlockHash(t *testing.T) {
	payload := []byte(`{"transaction_id":"abc","amount":4000}`)
	sum := sha256.Sum256(payload)
	want := hex.EncodeToString(sum[:])

	if got := ComputeBlockHash(payload); got != want {
		t.Fatalf("ComputeBlockHash = %s, want %s", got, want)
	}
	// Deterministic across calls.
	if ComputeBlockHash(payload) != ComputeBlockHash(payload) {
		t.Fatal("expected identical digests for identical payloads")
	}
}

func TestIdentityHashBindsAllFields(t *testing.T) {
	base := IdentityHash("12345", "Maybank", "Malaysia")
	if len(base) != 64 {
		t.Fatalf("expected 64 hex characters, got %d", len(base))
	}
	if IdentityHash("12345", "Maybank", "Malaysia") != base {
		t.Fatal("identity hash must be deterministic")
	}
	for _, other := range []string{
		IdentityHash("12346", "Maybank", "Malaysia"),
		IdentityHash("12345", "CIMB", "Malaysia"),
		IdentityHash("12345", "Maybank", "Singapore"),
	} {
		if other == base {
			t.Fatal("changing any field must change the identity hash")
		}
	}
}

func TestVerifyChain_EmptyChainIsValid(t *testing.T) {
	if err := VerifyChain(nil); err != nil {
		t.Fatalf("expected nil for empty chain, got %v", err)
	}
}

func TestVerifyChain_ValidChain(t *testing.T) {
	payloads := make([]string, 5)
	for i := range payloads {
		payloads[i] = fmt.Sprintf(`{"seq":%d}`, i)
	}
	if err := VerifyChain(buildChain(payloads...)); err != nil {
		t.Fatalf("expected valid chain, got %v", err)
	}
}

func TestVerifyChain_DetectsTamperedPayload(t *testing.T) {
	blocks := buildChain(`{"seq":0}`, `{"seq":1}`, `{"seq":2}`)
	blocks[1].TransactionData = `{"seq":1,"amount":999999}`

	err := VerifyChain(blocks)
	var corruption *CorruptionError
	if !errors.As(err, &corruption) {
		t.Fatalf("expected CorruptionError, got %v", err)
	}
	if corruption.BlockID != 2 {
		t.Fatalf("expected corruption reported at block 2, got %d", corruption.BlockID)
	}
}

func TestVerifyChain_DetectsBrokenLink(t *testing.T) {
	blocks := buildChain(`{"seq":0}`, `{"seq":1}`)
	blocks[1].PreviousHash = ComputeBlockHash([]byte("unrelated"))

	err := VerifyChain(blocks)
	var corruption *CorruptionError
	if !errors.As(err, &corruption) {
		t.Fatalf("expected CorruptionError, got %v", err)
	}
	if corruption.BlockID != 2 {
		t.Fatalf("expected corruption reported at block 2, got %d", corruption.BlockID)
	}
}

func TestVerifyChain_DetectsBadGenesis(t *testing.T) {
	blocks := buildChain(`{"seq":0}`)
	blocks[0].PreviousHash = "not-genesis"

	err := VerifyChain(blocks)
	var corruption *CorruptionError
	if !errors.As(err, &corruption) {
		t.Fatalf("expected CorruptionError, got %v", err)
	}
	if corruption.BlockID != 1 {
		t.Fatalf("expected corruption reported at block 1, got %d", corruption.BlockID)
	}
}
