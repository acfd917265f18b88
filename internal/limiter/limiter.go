// Package limiter throttles login attempts per account and source address.
package limiter

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"time"
)

// Limiter controls login attempts and temporary lockouts. Implementations
// key on the (email, ip) pair so one noisy address cannot lock an account
// for everyone else.
type Limiter interface {
	// Allow reports whether a login attempt may proceed and, when blocked,
	// how long until the next attempt is allowed.
	Allow(ctx context.Context, email, ip string) (bool, time.Duration, error)
	// Success resets counters after a successful login.
	Success(ctx context.Context, email, ip string) error
	// Failure records a failed attempt; reports whether this attempt
	// triggered a block.
	Failure(ctx context.Context, email, ip string) (bool, time.Duration, error)
}

// identity folds the pair into a fixed-size key so raw addresses never
// appear in storage.
func identity(email, ip string) string {
	h := sha256.Sum256([]byte(email + "|" + ip))
	return hex.EncodeToString(h[:])
}

// Noop allows everything. Wired when throttling is disabled by config.
type Noop struct{}

func (Noop) Allow(context.Context, string, string) (bool, time.Duration, error) {
	return true, 0, nil
}

func (Noop) Success(context.Context, string, string) error { return nil }

func (Noop) Failure(context.Context, string, string) (bool, time.Duration, error) {
	return false, 0, nil
}
