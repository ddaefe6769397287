package ratelimit

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/amirk1998/car-rental-client/pkg/errors"
)

// Operation names a throttled client action.
type Operation string

const (
	OpLogin    Operation = "login"
	OpRegister Operation = "register"
	OpBooking  Operation = "booking"
)

// Key selects a token bucket. A key with a Subject is also charged against
// the bucket of its bare operation, so spreading attempts over many cars or
// usernames does not lift the overall cap.
type Key struct {
	Op      Operation
	Subject string
}

func (k Key) String() string {
	if k.Subject == "" {
		return string(k.Op)
	}
	return string(k.Op) + ":" + k.Subject
}

// CarKey throttles booking submissions for one car.
func CarKey(carID int64) Key {
	return Key{Op: OpBooking, Subject: "car-" + strconv.FormatInt(carID, 10)}
}

// UserKey throttles op for one username.
func UserKey(op Operation, username string) Key {
	return Key{Op: op, Subject: "user-" + strings.ToLower(username)}
}

// Limit is the refill rate and size of one bucket.
type Limit struct {
	Every rate.Limit
	Burst int
}

// PerMinute allows n operations a minute, all of them at once.
func PerMinute(n int) Limit {
	if n <= 0 {
		return Limit{}
	}
	return Limit{Every: rate.Every(time.Minute / time.Duration(n)), Burst: n}
}

// Policy sets the buckets of one operation. A zero PerSubject leaves
// subjects unthrottled beyond Overall.
type Policy struct {
	Overall    Limit
	PerSubject Limit
}

type RateLimiter struct {
	mu       sync.Mutex
	buckets  map[Key]*rate.Limiter
	fallback Policy
	policies map[Operation]Policy
}

// NewRateLimiter creates a limiter whose operation buckets refill at rps per
// second up to burst. A single car or username gets half of that burst,
// unless SetPolicy overrides the operation.
func NewRateLimiter(rps int, burst int) *RateLimiter {
	return &RateLimiter{
		buckets: make(map[Key]*rate.Limiter),
		fallback: Policy{
			Overall:    Limit{Every: rate.Limit(rps), Burst: burst},
			PerSubject: Limit{Every: rate.Limit(rps), Burst: max(burst/2, 1)},
		},
		policies: make(map[Operation]Policy),
	}
}

// SetPolicy overrides the buckets of op. Buckets already handed out keep
// their settings until Cleanup drops them.
func (rl *RateLimiter) SetPolicy(op Operation, policy Policy) {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	rl.policies[op] = policy
}

// chain returns the buckets charged for key, operation-wide first.
func (rl *RateLimiter) chain(key Key) []*rate.Limiter {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	policy, ok := rl.policies[key.Op]
	if !ok {
		policy = rl.fallback
	}

	chain := []*rate.Limiter{rl.bucket(Key{Op: key.Op}, policy.Overall)}
	if key.Subject != "" && policy.PerSubject != (Limit{}) {
		chain = append(chain, rl.bucket(key, policy.PerSubject))
	}
	return chain
}

func (rl *RateLimiter) bucket(key Key, limit Limit) *rate.Limiter {
	limiter, ok := rl.buckets[key]
	if !ok {
		limiter = rate.NewLimiter(limit.Every, limit.Burst)
		rl.buckets[key] = limiter
	}
	return limiter
}

// CheckLimit takes one token from every bucket of key, or none of them. When
// a bucket is empty it returns ErrRateLimitExceeded with the wait in the user
// message.
func (rl *RateLimiter) CheckLimit(key Key) error {
	now := time.Now()
	var taken []*rate.Reservation

	for _, limiter := range rl.chain(key) {
		r := limiter.ReserveN(now, 1)
		if delay := r.DelayFrom(now); !r.OK() || delay > 0 {
			r.CancelAt(now)
			for _, t := range taken {
				t.CancelAt(now)
			}
			return exceeded(key, delay)
		}
		taken = append(taken, r)
	}
	return nil
}

// Wait blocks until every bucket of key has a token or ctx is done.
func (rl *RateLimiter) Wait(ctx context.Context, key Key) error {
	for _, limiter := range rl.chain(key) {
		if err := limiter.Wait(ctx); err != nil {
			return fmt.Errorf("rate limit wait for %s failed: %w", key, err)
		}
	}
	return nil
}

func exceeded(key Key, delay time.Duration) error {
	msg := fmt.Sprintf("Too many %s attempts, please try again later", key.Op)
	if delay != rate.InfDuration {
		msg = fmt.Sprintf("Too many %s attempts, please wait %s", key.Op, max(delay.Round(time.Second), time.Second))
	}
	return errors.NewAppError(fmt.Errorf("%w: %s", errors.ErrRateLimitExceeded, key), msg, 0)
}

// Cleanup drops buckets that have refilled; they carry no state.
func (rl *RateLimiter) Cleanup() {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	for key, limiter := range rl.buckets {
		if limiter.Tokens() >= float64(limiter.Burst()) {
			delete(rl.buckets, key)
		}
	}
}

// StartCleanupWorker runs Cleanup every interval until ctx is done.
func (rl *RateLimiter) StartCleanupWorker(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			rl.Cleanup()
		}
	}
}

// Len returns the number of live buckets.
func (rl *RateLimiter) Len() int {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	return len(rl.buckets)
}
