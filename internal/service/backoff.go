package service

import "time"

// Backoff computes retry delays: min(Base * 2^retry, Max).
type Backoff struct {
	Base time.Duration
	Max  time.Duration
}

// Delay returns the wait before the attempt following retry number retry.
// The result is non-decreasing in retry and never exceeds Max.
func (b Backoff) Delay(retry int) time.Duration {
	if b.Base <= 0 {
		return 0
	}
	if retry < 0 {
		retry = 0
	}
	d := b.Base
	for i := 0; i < retry; i++ {
		if b.Max > 0 && d >= b.Max {
			return b.Max
		}
		// Doubling past half the int64 range would overflow.
		if d >= time.Duration(1<<62) {
			d = time.Duration(1<<63 - 1)
			break
		}
		d *= 2
	}
	if b.Max > 0 && d > b.Max {
		return b.Max
	}
	return d
}
