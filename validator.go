package memflow

import "time"

// ValidityToken is an opaque freshness marker a Validator stamps onto a
// cache line at install time. Its concrete type is owned entirely by the
// Validator implementation; callers never inspect it.
type ValidityToken any

// Validator is a freshness oracle for one cache line (spec.md §3). The page
// cache and translation cache each own one. A time-based, a
// generation-counter-based, or an always-valid validator all satisfy the
// contract equally — nothing in this package hard-codes time.
type Validator interface {
	// NewToken produces a token stamped for "now" (whatever "now" means to
	// this validator), called when a cache line is installed.
	NewToken() ValidityToken

	// IsValid reports whether token is still fresh. Called on every cache
	// hit.
	IsValid(token ValidityToken) bool
}

// TimeValidator is the canonical Validator: tokens are creation timestamps,
// and a token is valid while now-token <= Window (spec.md §3).
type TimeValidator struct {
	Window time.Duration
	now    func() time.Time
}

// NewTimeValidator returns a TimeValidator with the given freshness window.
func NewTimeValidator(window time.Duration) *TimeValidator {
	return &TimeValidator{Window: window, now: time.Now}
}

func (v *TimeValidator) NewToken() ValidityToken { return v.now() }

func (v *TimeValidator) IsValid(token ValidityToken) bool {
	t, ok := token.(time.Time)
	if !ok {
		return false
	}
	return v.now().Sub(t) <= v.Window
}

// AlwaysValidValidator never expires a cache line; useful for a provider
// backed by memory that cannot change out from under the cache (e.g. a
// crash dump).
type AlwaysValidValidator struct{}

func (AlwaysValidValidator) NewToken() ValidityToken { return struct{}{} }
func (AlwaysValidValidator) IsValid(ValidityToken) bool { return true }

// GenerationValidator expires every line whenever Bump is called,
// regardless of elapsed time — useful for tests that want deterministic
// invalidation instead of racing a clock.
type GenerationValidator struct {
	gen int64
}

func (v *GenerationValidator) Bump() { v.gen++ }

func (v *GenerationValidator) NewToken() ValidityToken { return v.gen }

func (v *GenerationValidator) IsValid(token ValidityToken) bool {
	g, ok := token.(int64)
	if !ok {
		return false
	}
	return g == v.gen
}
