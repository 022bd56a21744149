package dispatcher

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestBackoffDelaySchedule(t *testing.T) {
	b := DefaultBackoff()
	cases := []struct {
		attempt int
		want    time.Duration
	}{
		{0, 250 * time.Millisecond},
		{1, 500 * time.Millisecond},
		{2, 1 * time.Second},
		{3, 2 * time.Second},
		{4, 4 * time.Second},
		{5, 4 * time.Second},
		{10, 4 * time.Second},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.want, b.Delay(tc.attempt), "attempt %d", tc.attempt)
	}
}

func TestBackoffMaxAttempts(t *testing.T) {
	b := DefaultBackoff()
	assert.Equal(t, 5, b.MaxAttempts)
}
