package session

import (
	"time"
)

// Reset reasons, stable tokens for logs and metrics.
const (
	ResetDailyReset  = "daily_reset"
	ResetIdleTimeout = "idle_timeout"
	ResetMaxTurns    = "max_turns"
)

// Policy configures when a session is reset. Each rule is independently
// disabled by its zero value.
type Policy struct {
	// DailyResetHour resets sessions whose last activity predates today's
	// boundary at this UTC hour (0 = disabled).
	DailyResetHour int

	// IdleTimeout resets sessions idle longer than this.
	IdleTimeout time.Duration

	// MaxTurns resets sessions that reach this many turns.
	MaxTurns int
}

// Lifecycle evaluates a reset policy. Reset means the caller allocates a new
// session identity; transcripts and memories of the old session are kept.
type Lifecycle struct {
	Policy Policy

	// Now is replaceable for tests; nil means time.Now.
	Now func() time.Time
}

// NewLifecycle creates a lifecycle checker for the policy.
func NewLifecycle(policy Policy) *Lifecycle {
	return &Lifecycle{Policy: policy}
}

// ShouldReset checks all configured rules and returns the first matching
// reason token, or (false, ""). A session that has never recorded activity
// is aged from createdAt instead.
func (l *Lifecycle) ShouldReset(createdAt, lastActiveAt time.Time, turnCount int) (bool, string) {
	now := time.Now().UTC()
	if l.Now != nil {
		now = l.Now().UTC()
	}
	if lastActiveAt.IsZero() {
		lastActiveAt = createdAt
	}

	if l.Policy.DailyResetHour > 0 && !lastActiveAt.IsZero() {
		boundary := time.Date(now.Year(), now.Month(), now.Day(),
			l.Policy.DailyResetHour, 0, 0, 0, time.UTC)
		if !now.Before(boundary) && lastActiveAt.UTC().Before(boundary) {
			return true, ResetDailyReset
		}
	}

	if l.Policy.IdleTimeout > 0 && !lastActiveAt.IsZero() {
		if now.Sub(lastActiveAt.UTC()) > l.Policy.IdleTimeout {
			return true, ResetIdleTimeout
		}
	}

	if l.Policy.MaxTurns > 0 && turnCount >= l.Policy.MaxTurns {
		return true, ResetMaxTurns
	}

	return false, ""
}

// SessionKey maps a communication endpoint to a canonical session key:
// platform-sender for direct messages, platform-sender-thread inside a
// thread.
func SessionKey(platform, senderID, threadID string) string {
	key := platform + "-" + senderID
	if threadID != "" {
		key += "-" + threadID
	}
	return key
}
