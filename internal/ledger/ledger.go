/**
 * @description
 * This package contains the pure hash-chain logic of the ledger: block hash
 * computation, identity hash derivation for receiver verification, and the
 * offline chain verifier. Persistence of blocks lives in internal/store; this
 * package has no I/O so the invariants can be checked anywhere, including
 * against a chain replayed from a database dump.
 *
 * @dependencies
 * - crypto/sha256, encoding/hex: Standard Go libraries for hashing.
 * - internal/domain: The LedgerBlock model and the genesis sentinel.
 */

package ledger

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"

	"github.com/meridianbank/atm-service/internal/domain"
)

// ComputeBlockHash returns the lowercase hex SHA-256 digest of a block's
// serialized transaction data. A stored block is valid only if its
// current_hash equals this digest recomputed from its own payload.
func ComputeBlockHash(transactionData []byte) string {
	sum := sha256.Sum256(transactionData)
	return hex.EncodeToString(sum[:])
}

// IdentityHash derives the verification membership token for a receiver,
// binding account number, bank name, and country into one digest.
func IdentityHash(accountNo, bankName, country string) string {
	raw := accountNo + "-" + bankName + "-" + country
	sum := sha256.Sum256([]byte(raw))
	return hex.EncodeToString(sum[:])
}

// CorruptionError reports the first block at which the chain fails verification.
type CorruptionError struct {
	BlockID int64
	Reason  string
}

func (e *CorruptionError) Error() string {
	return fmt.Sprintf("ledger corruption at block %d: %s", e.BlockID, e.Reason)
}

// VerifyChain replays blocks in order and checks both chain invariants:
// every current_hash must equal the digest recomputed from the stored
// payload, and every previous_hash must equal the prior block's current_hash
// (or the genesis sentinel for the first block). Blocks must be passed in
// ascending block order. Returns nil for an empty chain.
func VerifyChain(blocks []domain.LedgerBlock) error {
	prevHash := domain.GenesisHash
	for i, b := range blocks {
		if recomputed := ComputeBlockHash([]byte(b.TransactionData)); recomputed != b.CurrentHash {
			return &CorruptionError{
				BlockID: b.BlockID,
				Reason:  fmt.Sprintf("stored hash %s does not match recomputed payload hash %s", b.CurrentHash, recomputed),
			}
		}
		if b.PreviousHash != prevHash {
			return &CorruptionError{
				BlockID: b.BlockID,
				Reason:  fmt.Sprintf("previous hash %s does not match prior block hash %s", b.PreviousHash, prevHash),
			}
		}
		if i > 0 && b.BlockID <= blocks[i-1].BlockID {
			return &CorruptionError{
				BlockID: b.BlockID,
				Reason:  "block ids are not strictly increasing",
			}
		}
		prevHash = b.CurrentHash
	}
	return nil
}
