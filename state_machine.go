package auth

import (
	"math"
	"time"
)

// DefaultMaxLoginAttempts is the number of consecutive failures that locks
// an account.
const DefaultMaxLoginAttempts = 5

// DefaultLockoutWindow is how long a locked account stays locked.
const DefaultLockoutWindow = 30 * time.Minute

// LockoutState is the per-user failure counter and lockout window expressed
// as an explicit state, so transitions happen through the pure functions
// below rather than ad hoc field mutation. The repository applies the result
// with a conditional update, see Users.SaveLockout.
type LockoutState struct {
	Attempts    int
	Locked      bool
	LockedUntil *time.Time
}

// LockoutPolicy configures the failure threshold and lockout window.
type LockoutPolicy struct {
	MaxAttempts int
	Window      time.Duration
}

// DefaultLockoutPolicy locks after 5 failures for 30 minutes.
func DefaultLockoutPolicy() LockoutPolicy {
	return LockoutPolicy{
		MaxAttempts: DefaultMaxLoginAttempts,
		Window:      DefaultLockoutWindow,
	}
}

func (p LockoutPolicy) maxAttempts() int {
	if p.MaxAttempts <= 0 {
		return DefaultMaxLoginAttempts
	}
	return p.MaxAttempts
}

func (p LockoutPolicy) window() time.Duration {
	if p.Window <= 0 {
		return DefaultLockoutWindow
	}
	return p.Window
}

// Observe lazily clears an expired lockout. The lock flag is authoritative
// only until LockedUntil passes; past that the state reads as unlocked with
// a zero counter. The second return is true when the state changed and the
// caller should persist it.
func (s LockoutState) Observe(p LockoutPolicy, now time.Time) (LockoutState, bool) {
	if !s.Locked {
		return s, false
	}
	if s.LockedUntil != nil && s.LockedUntil.After(now) {
		return s, false
	}
	return LockoutState{}, true
}

// OnFailure transitions the state for one failed attempt. Reaching the
// threshold moves Unlocked(n) to Locked(now+window).
func (s LockoutState) OnFailure(p LockoutPolicy, now time.Time) LockoutState {
	next := LockoutState{Attempts: s.Attempts + 1}
	if next.Attempts >= p.maxAttempts() {
		until := now.Add(p.window())
		next.Locked = true
		next.LockedUntil = &until
	}
	return next
}

// OnSuccess resets the machine to Unlocked(0) regardless of prior state.
func (s LockoutState) OnSuccess() LockoutState {
	return LockoutState{}
}

// IsLocked reports whether the lockout window is in effect at now.
func (s LockoutState) IsLocked(now time.Time) bool {
	if !s.Locked {
		return false
	}
	return s.LockedUntil == nil || s.LockedUntil.After(now)
}

// MinutesRemaining returns the whole minutes left in the lockout window,
// rounded up. Zero when not locked.
func (s LockoutState) MinutesRemaining(now time.Time) int {
	if !s.IsLocked(now) || s.LockedUntil == nil {
		return 0
	}
	return int(math.Ceil(s.LockedUntil.Sub(now).Minutes()))
}

// ValidStatusTransitions enumerates the allowed admin status changes. Any
// status can be restored to active; active accounts can be deactivated or
// suspended.
var ValidStatusTransitions = map[UserStatus]map[UserStatus]struct{}{
	UserStatusActive: {
		UserStatusInactive:  {},
		UserStatusSuspended: {},
	},
	UserStatusInactive: {
		UserStatusActive:    {},
		UserStatusSuspended: {},
	},
	UserStatusSuspended: {
		UserStatusActive:   {},
		UserStatusInactive: {},
	},
}

// CanTransitionStatus reports whether a status change is allowed. Identity
// transitions are allowed and are no-ops.
func CanTransitionStatus(from, to UserStatus) bool {
	if from == to {
		return true
	}
	allowed, ok := ValidStatusTransitions[from]
	if !ok {
		return false
	}
	_, ok = allowed[to]
	return ok
}

// RevokesSessions reports whether entering the status must bulk revoke the
// user's refresh tokens.
func RevokesSessions(status UserStatus) bool {
	return status == UserStatusSuspended || status == UserStatusInactive
}
