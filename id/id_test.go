package id

import (
	"testing"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewIsMonotonic(t *testing.T) {
	t.Parallel()

	prev := New()
	for i := 0; i < 100; i++ {
		next := New()
		assert.Less(t, prev, next)
		prev = next
	}
}

func TestAtEncodesTimestamp(t *testing.T) {
	t.Parallel()

	at := time.Date(2025, 3, 4, 9, 31, 0, 0, time.UTC)
	v, err := ulid.Parse(At(at))
	require.NoError(t, err)
	assert.Equal(t, ulid.Timestamp(at), v.Time())
}
