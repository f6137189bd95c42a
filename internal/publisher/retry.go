package publisher

import "time"

// RetryPolicy bounds how often and how patiently Connect retries.
type RetryPolicy struct {
	Attempts int
	Base     time.Duration
	Cap      time.Duration
}

func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{Attempts: 3, Base: time.Second, Cap: 30 * time.Second}
}

// Delay is the wait before retry n (n starts at 1): Base doubled n-1 times, never above Cap.
func (p RetryPolicy) Delay(n int) time.Duration {
	if n < 1 {
		return 0
	}
	d := p.Base
	for i := 1; i < n; i++ {
		if p.Cap > 0 && d >= p.Cap {
			break
		}
		d *= 2
	}
	if p.Cap > 0 && d > p.Cap {
		d = p.Cap
	}
	return d
}
