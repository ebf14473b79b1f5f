package gateway

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestBreaker_OpensAfterThreshold(t *testing.T) {
	b := NewBreaker(3, time.Hour)

	b.Failure()
	b.Failure()
	assert.True(t, b.Allow())
	assert.False(t, b.Open())

	b.Failure()
	assert.True(t, b.Open())
	assert.False(t, b.Allow())
}

func TestBreaker_SuccessResetsFailureCount(t *testing.T) {
	b := NewBreaker(3, time.Hour)

	b.Failure()
	b.Failure()
	b.Success()
	b.Failure()
	b.Failure()

	//連続ではないので開かない
	assert.False(t, b.Open())
	assert.True(t, b.Allow())
}

func TestBreaker_HalfOpenAllowsSingleProbe(t *testing.T) {
	b := NewBreaker(1, 10*time.Millisecond)

	b.Failure()
	assert.False(t, b.Allow())

	time.Sleep(20 * time.Millisecond)

	//cooldown後は1本だけ通す
	assert.True(t, b.Allow())
	assert.False(t, b.Allow())
}

func TestBreaker_ProbeSuccessCloses(t *testing.T) {
	b := NewBreaker(1, 10*time.Millisecond)

	b.Failure()
	time.Sleep(20 * time.Millisecond)
	assert.True(t, b.Allow())

	b.Success()
	assert.False(t, b.Open())
	assert.True(t, b.Allow())
	assert.True(t, b.Allow())
}

func TestBreaker_ProbeFailureReopens(t *testing.T) {
	b := NewBreaker(1, 10*time.Millisecond)

	b.Failure()
	time.Sleep(20 * time.Millisecond)
	assert.True(t, b.Allow())

	b.Failure()
	assert.True(t, b.Open())
	assert.False(t, b.Allow())
}
