package irc

import "time"

// Backoff is the reconnect wait policy: Base after the first failure,
// doubling after each consecutive failure, back to Base after Reset.
// It has no upper bound; reconnection is retried forever.
type Backoff struct {
	Base time.Duration
	next time.Duration
}

// NewBackoff returns a Backoff starting at base.
func NewBackoff(base time.Duration) *Backoff {
	return &Backoff{Base: base, next: base}
}

// Next returns the wait before the next attempt and doubles the one after.
func (b *Backoff) Next() time.Duration {
	if b.next <= 0 {
		b.next = b.Base
	}
	wait := b.next
	if doubled := b.next * 2; doubled > b.next {
		b.next = doubled
	}
	return wait
}

// Reset returns the policy to its base interval after a successful attempt.
func (b *Backoff) Reset() {
	b.next = b.Base
}
