package service

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestBackoff_Delay(t *testing.T) {
	b := Backoff{Base: time.Second, Max: time.Minute}

	tests := []struct {
		retry int
		want  time.Duration
	}{
		{retry: -1, want: time.Second},
		{retry: 0, want: time.Second},
		{retry: 1, want: 2 * time.Second},
		{retry: 3, want: 8 * time.Second},
		{retry: 5, want: 32 * time.Second},
		{retry: 6, want: time.Minute},
		{retry: 500, want: time.Minute},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.want, b.Delay(tt.retry), "retry %d", tt.retry)
	}
}

func TestBackoff_NonDecreasing(t *testing.T) {
	for _, b := range []Backoff{
		{Base: 250 * time.Millisecond, Max: 5 * time.Minute},
		{Base: time.Second},
		{Base: 3 * time.Second, Max: time.Second},
	} {
		prev := time.Duration(0)
		for retry := 0; retry < 100; retry++ {
			d := b.Delay(retry)
			assert.GreaterOrEqual(t, d, prev, "base %v retry %d", b.Base, retry)
			if b.Max > 0 {
				assert.LessOrEqual(t, d, b.Max)
			}
			prev = d
		}
	}
}

func TestBackoff_ZeroBase(t *testing.T) {
	assert.Zero(t, Backoff{}.Delay(4))
}
