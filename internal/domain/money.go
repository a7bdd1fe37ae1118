/**
 * @description
 * Fixed-point money helpers. The service stores every amount as int64 cents;
 * API payloads carry decimal strings with at most two fractional digits.
 * Parsing is strict: anything that is not a plain positive decimal with up to
 * two decimal places is rejected before any mutation happens.
 */

package domain

import (
	"errors"
	"fmt"
	"math"
	"regexp"
	"strconv"
	"strings"
)

var (
	ErrInvalidAmount = errors.New("invalid amount")

	// Mirrors the wire contract: digits, optionally a dot and one or two decimals.
	amountPattern = regexp.MustCompile(`^\d+(\.\d{1,2})?$`)
)

// maxWholeUnits bounds the whole part so units*100+99 still fits in int64.
const maxWholeUnits = math.MaxInt64/100 - 1

// ParseAmount converts a decimal string such as "40.00" into cents. It returns
// ErrInvalidAmount for malformed input, more than two decimal places, or a
// non-positive value.
func ParseAmount(s string) (int64, error) {
	trimmed := strings.TrimSpace(s)
	if !amountPattern.MatchString(trimmed) {
		return 0, fmt.Errorf("%w: %q", ErrInvalidAmount, s)
	}

	whole, frac := trimmed, ""
	if idx := strings.IndexByte(trimmed, '.'); idx >= 0 {
		whole, frac = trimmed[:idx], trimmed[idx+1:]
	}
	for len(frac) < 2 {
		frac += "0"
	}

	units, err := strconv.ParseInt(whole, 10, 64)
	if err != nil || units > maxWholeUnits {
		return 0, fmt.Errorf("%w: %q", ErrInvalidAmount, s)
	}
	cents, err := strconv.ParseInt(frac, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("%w: %q", ErrInvalidAmount, s)
	}

	total := units*100 + cents
	if total <= 0 {
		return 0, fmt.Errorf("%w: amount must be greater than zero", ErrInvalidAmount)
	}
	return total, nil
}

// FormatAmount renders cents as a decimal string with exactly two decimal places.
func FormatAmount(cents int64) string {
	sign := ""
	if cents < 0 {
		sign = "-"
		cents = -cents
	}
	return fmt.Sprintf("%s%d.%02d", sign, cents/100, cents%100)
}

// ConvertAmount applies an exchange rate to an amount in cents and rounds the
// result half away from zero to the nearest cent of the target currency. It
// returns ErrInvalidAmount when the product is non-positive or does not fit
// in int64.
func ConvertAmount(cents int64, rate float64) (int64, error) {
	product := float64(cents) * rate
	if math.IsNaN(product) || product <= 0 || product >= float64(math.MaxInt64) {
		return 0, fmt.Errorf("%w: conversion result out of range", ErrInvalidAmount)
	}
	return int64(math.Round(product)), nil
}
