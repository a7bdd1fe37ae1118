package app

import (
	"crypto/rand"
	"math/big"
)

// Issuer identification prefix for cards generated by this service.
const cardIssuerPrefix = "5399"

// generateCardNumber produces a 16-digit card number with a random body.
// Uniqueness is enforced by the cards table primary key; a collision would
// surface as an insert error and is vanishingly unlikely in practice.
func generateCardNumber() string {
	digits := []byte(cardIssuerPrefix)
	for len(digits) < 16 {
		n, err := rand.Int(rand.Reader, big.NewInt(10))
		if err != nil {
			// crypto/rand only fails if the OS entropy source is broken
			panic(err)
		}
		digits = append(digits, byte('0'+n.Int64()))
	}
	return string(digits)
}
