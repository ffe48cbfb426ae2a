package irc

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestBackoff(t *testing.T) {
	b := NewBackoff(5 * time.Second)

	var waits []time.Duration
	for i := 0; i < 4; i++ {
		waits = append(waits, b.Next())
	}
	assert.Equal(t, []time.Duration{5 * time.Second, 10 * time.Second, 20 * time.Second, 40 * time.Second}, waits)

	b.Reset()
	assert.Equal(t, 5*time.Second, b.Next())
}

func TestBackoffDoesNotOverflow(t *testing.T) {
	b := NewBackoff(time.Duration(1) << 62)
	b.Next()
	assert.Equal(t, time.Duration(1)<<62, b.Next())
	assert.Positive(t, b.Next())
}
