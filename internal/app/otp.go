/**
 * @description
 * One-time password issuance and verification for sensitive operations. Codes
 * are six digits, expire after a configurable window, and are consumed on the
 * first correct verification. Issuance is rate limited per email so the
 * endpoint cannot be used to spam a mailbox, and verification attempts are
 * bounded per email so a live code cannot be brute forced within its TTL.
 *
 * The service only generates and checks codes; delivery is handled by the
 * notification consumer of the otp.issued event.
 */

package app

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"log"
	"math/big"
	"strings"
	"time"

	"github.com/meridianbank/atm-service/pkg/rabbitmq"
)

// OTPVerdict is the outcome of a verification attempt.
type OTPVerdict int

const (
	OTPError OTPVerdict = iota
	OTPMatch
	OTPMismatch
	OTPExpired
)

var (
	// ErrOTPInvalid is returned when the supplied code does not match.
	ErrOTPInvalid = errors.New("otp code is invalid")

	// ErrOTPExpired is returned when no live code exists for the email.
	ErrOTPExpired = errors.New("otp code has expired or was never issued")

	// ErrOTPRateLimited is returned when issuance exceeds the per-email limit.
	ErrOTPRateLimited = errors.New("otp requests are rate limited")

	// ErrOTPUnavailable is returned when no backing store is configured.
	ErrOTPUnavailable = errors.New("otp storage is unavailable")
)

// OTPStore abstracts the storage of live codes.
type OTPStore interface {
	Save(ctx context.Context, email, code string, ttl time.Duration) error
	Consume(ctx context.Context, email, code string) (OTPVerdict, error)
}

// RateLimiter is the limiter boundary used by OTP issuance.
type RateLimiter interface {
	ConsumeRateLimit(ctx context.Context, scope, subject string, limit int, window time.Duration) (count int, retryAfterSeconds int, err error)
}

// OTPService issues and verifies one-time passwords.
type OTPService struct {
	store         OTPStore
	limiter       RateLimiter
	eventProducer rabbitmq.Publisher
	ttl           time.Duration
	issueLimit    int
	issueWindow   time.Duration
	verifyLimit   int
}

// NewOTPService creates a new OTP service instance. A nil limiter disables
// rate limiting; verifyLimit bounds guesses per email over the code TTL and
// a non-positive value disables the bound.
func NewOTPService(store OTPStore, limiter RateLimiter, producer rabbitmq.Publisher, ttl time.Duration, issueLimit int, issueWindow time.Duration, verifyLimit int) *OTPService {
	if ttl <= 0 {
		ttl = 15 * time.Minute
	}
	return &OTPService{
		store:         store,
		limiter:       limiter,
		eventProducer: producer,
		ttl:           ttl,
		issueLimit:    issueLimit,
		issueWindow:   issueWindow,
		verifyLimit:   verifyLimit,
	}
}

// IssueOTP generates a fresh six-digit code for the email, replacing any
// previous one, and publishes the otp.issued event for delivery. It returns
// the retry delay in seconds when the caller is rate limited.
func (s *OTPService) IssueOTP(ctx context.Context, email string) (retryAfterSeconds int, err error) {
	if s.store == nil {
		return 0, ErrOTPUnavailable
	}
	email = strings.ToLower(strings.TrimSpace(email))
	if email == "" || !strings.Contains(email, "@") {
		return 0, fmt.Errorf("%w: a valid email is required", ErrInvalidInput)
	}

	if s.limiter != nil {
		count, retryAfter, limitErr := s.limiter.ConsumeRateLimit(ctx, "otp_issue", email, s.issueLimit, s.issueWindow)
		if limitErr != nil {
			// Degraded limiter should not block OTP delivery.
			log.Printf("level=warn component=otp_service msg=\"rate limiter unavailable\" err=%v", limitErr)
		} else if s.issueLimit > 0 && count > s.issueLimit {
			return retryAfter, ErrOTPRateLimited
		}
	}

	code, err := generateOTPCode()
	if err != nil {
		return 0, fmt.Errorf("failed to generate otp code: %w", err)
	}
	if err := s.store.Save(ctx, email, code, s.ttl); err != nil {
		return 0, fmt.Errorf("failed to store otp code: %w", err)
	}

	if s.eventProducer != nil {
		event := rabbitmq.OTPIssuedEvent{
			Email:     email,
			Code:      code,
			ExpiresAt: time.Now().UTC().Add(s.ttl),
			Timestamp: time.Now().UTC(),
		}
		if err := s.eventProducer.PublishOTPIssuedEvent(ctx, event); err != nil {
			log.Printf("level=warn component=otp_service msg=\"failed to publish otp issued event\" err=%v", err)
		}
	}

	log.Printf("level=info component=otp_service msg=\"otp issued\" email=%s ttl=%s", email, s.ttl)
	return 0, nil
}

// VerifyOTP checks and consumes the code for an email. A correct code is
// usable exactly once; a wrong code leaves the stored one intact but counts
// against the per-email attempt bound. It returns the retry delay in seconds
// when the caller has exhausted their attempts.
func (s *OTPService) VerifyOTP(ctx context.Context, email, code string) (retryAfterSeconds int, err error) {
	if s.store == nil {
		return 0, ErrOTPUnavailable
	}
	email = strings.ToLower(strings.TrimSpace(email))
	code = strings.TrimSpace(code)
	if email == "" || code == "" {
		return 0, fmt.Errorf("%w: email and code are required", ErrInvalidInput)
	}

	// Every attempt, right or wrong, spends one unit of the attempt budget.
	// The window matches the code TTL so the bound covers a code's lifetime.
	if s.limiter != nil && s.verifyLimit > 0 {
		count, retryAfter, limitErr := s.limiter.ConsumeRateLimit(ctx, "otp_verify", email, s.verifyLimit, s.ttl)
		if limitErr != nil {
			log.Printf("level=warn component=otp_service msg=\"rate limiter unavailable\" err=%v", limitErr)
		} else if count > s.verifyLimit {
			log.Printf("level=warn component=otp_service msg=\"otp verification attempts exhausted\" email=%s", email)
			return retryAfter, ErrOTPRateLimited
		}
	}

	verdict, err := s.store.Consume(ctx, email, code)
	if err != nil {
		return 0, fmt.Errorf("failed to verify otp code: %w", err)
	}
	switch verdict {
	case OTPMatch:
		return 0, nil
	case OTPMismatch:
		return 0, ErrOTPInvalid
	default:
		return 0, ErrOTPExpired
	}
}

// generateOTPCode returns a uniformly random six-digit code, zero-padded.
func generateOTPCode() (string, error) {
	n, err := rand.Int(rand.Reader, big.NewInt(1000000))
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("%06d", n.Int64()), nil
}
