/**
 * @description
 * Redis-backed storage for one-time passwords. Codes live under a per-email
 * key with a TTL, so expiry needs no sweeper. Verification runs a
 * compare-and-delete script atomically: a correct code is consumed in the
 * same step it is checked, while a wrong guess leaves the stored code intact
 * until it expires.
 *
 * @dependencies
 * - github.com/redis/go-redis/v9: The Redis client library.
 */

package app

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

var otpCompareAndDeleteScript = redis.NewScript(`
local stored = redis.call("GET", KEYS[1])
if stored == false then
  return -1
end
if stored == ARGV[1] then
  redis.call("DEL", KEYS[1])
  return 1
end
return 0
`)

// RedisOTPStore implements OTPStore on Redis.
type RedisOTPStore struct {
	client redis.UniversalClient
	prefix string
}

func NewRedisOTPStore(client redis.UniversalClient, prefix string) *RedisOTPStore {
	trimmedPrefix := strings.TrimSpace(prefix)
	if trimmedPrefix == "" {
		trimmedPrefix = "atm:otp"
	}
	trimmedPrefix = strings.TrimSuffix(trimmedPrefix, ":")

	return &RedisOTPStore{
		client: client,
		prefix: trimmedPrefix,
	}
}

func (s *RedisOTPStore) key(email string) string {
	return fmt.Sprintf("%s:%s", s.prefix, strings.ToLower(strings.TrimSpace(email)))
}

// Save stores the code for an email, replacing any previous code.
func (s *RedisOTPStore) Save(ctx context.Context, email, code string, ttl time.Duration) error {
	return s.client.Set(ctx, s.key(email), code, ttl).Err()
}

// Consume atomically checks the code and deletes it on a match. A mismatch
// keeps the stored code, and an absent or expired code reports as expired.
func (s *RedisOTPStore) Consume(ctx context.Context, email, code string) (OTPVerdict, error) {
	result, err := otpCompareAndDeleteScript.Run(ctx, s.client, []string{s.key(email)}, code).Int64()
	if err != nil {
		return OTPError, err
	}
	switch result {
	case 1:
		return OTPMatch, nil
	case 0:
		return OTPMismatch, nil
	default:
		return OTPExpired, nil
	}
}
