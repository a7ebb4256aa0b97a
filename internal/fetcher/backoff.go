package fetcher

import "time"

type backoff struct {
	cur time.Duration
	max time.Duration
}

// newBackoff starts at base and doubles up to max.
func newBackoff(base, max time.Duration) *backoff {
	if base <= 0 {
		base = time.Second
	}
	if max < base {
		max = base
	}
	return &backoff{cur: base, max: max}
}

// Next returns the delay before the next attempt and advances the window.
func (b *backoff) Next() time.Duration {
	d := b.cur
	b.cur *= 2
	if b.cur > b.max {
		b.cur = b.max
	}
	return d
}
