// Package pin issues and verifies the six-digit delivery PINs that gate
// artifact downloads. PIN records live in Redis with an absolute expiry so
// they survive process restarts and vanish on schedule.
package pin

import (
	"context"
	"crypto/rand"
	"crypto/subtle"
	"fmt"
	"math/big"
	"time"

	"github.com/redis/go-redis/v9"
)

// Digits is the PIN length.
const Digits = 6

// VerifyOutcome classifies the result of a PIN check.
type VerifyOutcome int

const (
	// OutcomeOK means the candidate matched; the attempt budget was reset.
	OutcomeOK VerifyOutcome = iota

	// OutcomeMismatch means the candidate did not match; attempts remain.
	OutcomeMismatch

	// OutcomeLocked means the attempt budget is exhausted.
	OutcomeLocked

	// OutcomeNotFound means no PIN record exists (never issued or expired).
	OutcomeNotFound
)

// VerifyResult carries the outcome of a verification together with the
// remaining attempt budget and a human-readable message.
type VerifyResult struct {
	Outcome   VerifyOutcome
	Remaining int
	Message   string
}

// OK reports whether the verification succeeded.
func (r VerifyResult) OK() bool { return r.Outcome == OutcomeOK }

// Store manages PIN records in Redis. All per-key operations are atomic:
// the attempt counter is mutated by a server-side script so concurrent
// verifiers cannot overspend the budget.
type Store struct {
	rdb         redis.UniversalClient
	ttl         time.Duration
	maxAttempts int
}

// NewStore creates a Store issuing PINs that expire after ttl and lock
// after maxAttempts failed verifications.
func NewStore(rdb redis.UniversalClient, ttl time.Duration, maxAttempts int) *Store {
	return &Store{rdb: rdb, ttl: ttl, maxAttempts: maxAttempts}
}

func key(jobID string) string {
	return "talkdub:pin:" + jobID
}

// Generate produces six cryptographically-random decimal digits for the
// job, overwriting any prior entry and resetting the attempt counter. The
// record self-expires after the configured lifetime.
func (s *Store) Generate(ctx context.Context, jobID string) (string, error) {
	code, err := randomPIN()
	if err != nil {
		return "", fmt.Errorf("pin: generate: %w", err)
	}
	pipe := s.rdb.TxPipeline()
	pipe.HSet(ctx, key(jobID), "pin", code, "attempts", 0, "created_at", time.Now().UTC().Format(time.RFC3339))
	pipe.Expire(ctx, key(jobID), s.ttl)
	if _, err := pipe.Exec(ctx); err != nil {
		return "", fmt.Errorf("pin: store for %s: %w", jobID, err)
	}
	return code, nil
}

func randomPIN() (string, error) {
	max := big.NewInt(1_000_000)
	n, err := rand.Int(rand.Reader, max)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("%06d", n.Int64()), nil
}

// chargeScript atomically reads the stored PIN and spends one attempt.
// Returns {pin, attempts} after the increment, "locked" when the budget was
// already exhausted, or "missing" when no record exists. KEYS[1] = record,
// ARGV[1] = max attempts.
var chargeScript = redis.NewScript(`
if redis.call("EXISTS", KEYS[1]) == 0 then
  return "missing"
end
local attempts = tonumber(redis.call("HGET", KEYS[1], "attempts") or "0")
if attempts >= tonumber(ARGV[1]) then
  return "locked"
end
local pin = redis.call("HGET", KEYS[1], "pin")
attempts = redis.call("HINCRBY", KEYS[1], "attempts", 1)
return {pin, attempts}
`)

// Verify checks candidate against the stored PIN. One attempt is charged
// atomically before comparison; on a match the counter resets to zero so
// the permitted re-download budget is restored. Comparison is constant-time.
func (s *Store) Verify(ctx context.Context, jobID, candidate string) (VerifyResult, error) {
	res, err := chargeScript.Run(ctx, s.rdb, []string{key(jobID)}, s.maxAttempts).Result()
	if err != nil {
		return VerifyResult{}, fmt.Errorf("pin: verify %s: %w", jobID, err)
	}

	switch v := res.(type) {
	case string:
		switch v {
		case "missing":
			return VerifyResult{
				Outcome: OutcomeNotFound,
				Message: "no PIN on record; it may have expired",
			}, nil
		case "locked":
			return VerifyResult{
				Outcome: OutcomeLocked,
				Message: "too many failed attempts; request a new PIN email",
			}, nil
		}
	case []any:
		stored, _ := v[0].(string)
		attempts, _ := v[1].(int64)
		remaining := s.maxAttempts - int(attempts)

		if subtle.ConstantTimeCompare([]byte(stored), []byte(candidate)) == 1 {
			if err := s.rdb.HSet(ctx, key(jobID), "attempts", 0).Err(); err != nil {
				return VerifyResult{}, fmt.Errorf("pin: reset attempts for %s: %w", jobID, err)
			}
			return VerifyResult{Outcome: OutcomeOK, Remaining: s.maxAttempts, Message: "ok"}, nil
		}
		if remaining <= 0 {
			return VerifyResult{
				Outcome: OutcomeLocked,
				Message: "too many failed attempts; request a new PIN email",
			}, nil
		}
		return VerifyResult{
			Outcome:   OutcomeMismatch,
			Remaining: remaining,
			Message:   fmt.Sprintf("incorrect PIN; %d attempts remaining", remaining),
		}, nil
	}
	return VerifyResult{}, fmt.Errorf("pin: verify %s: unexpected script result %v", jobID, res)
}

// Delete removes the PIN record for the job, if any.
func (s *Store) Delete(ctx context.Context, jobID string) error {
	if err := s.rdb.Del(ctx, key(jobID)).Err(); err != nil {
		return fmt.Errorf("pin: delete for %s: %w", jobID, err)
	}
	return nil
}

// CleanupExpired is a safety sweep for backends without native expiry. With
// Redis the TTL set at generation already removes stale records, so this
// only reports the current record count.
func (s *Store) CleanupExpired(ctx context.Context) (int, error) {
	var count int
	iter := s.rdb.Scan(ctx, 0, key("*"), 100).Iterator()
	for iter.Next(ctx) {
		count++
	}
	if err := iter.Err(); err != nil {
		return 0, fmt.Errorf("pin: scan: %w", err)
	}
	return count, nil
}
