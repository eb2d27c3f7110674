package circuitbreaker

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeClock struct {
	now time.Time
}

func (c *fakeClock) Now() time.Time { return c.now }

var errBoom = errors.New("boom")

func TestBreakerOpensAfterThreshold(t *testing.T) {
	clock := &fakeClock{now: time.Unix(1_700_000_000, 0)}
	var transitions []State
	b := New("oracle", Config{
		FailureThreshold: 2,
		OpenTimeout:      time.Minute,
		Clock:            clock.Now,
		OnStateChange: func(name string, from, to State) {
			transitions = append(transitions, to)
		},
	})

	assert.ErrorIs(t, b.Execute(func() error { return errBoom }), errBoom)
	assert.Equal(t, StateClosed, b.State())
	assert.ErrorIs(t, b.Execute(func() error { return errBoom }), errBoom)
	assert.Equal(t, StateOpen, b.State())

	called := false
	err := b.Execute(func() error { called = true; return nil })
	assert.ErrorIs(t, err, ErrCircuitOpen)
	assert.False(t, called)
	assert.Equal(t, []State{StateOpen}, transitions)
}

func TestBreakerHalfOpenRecovers(t *testing.T) {
	clock := &fakeClock{now: time.Unix(1_700_000_000, 0)}
	b := New("oracle", Config{FailureThreshold: 1, OpenTimeout: time.Minute, Clock: clock.Now})

	require.Error(t, b.Execute(func() error { return errBoom }))
	require.Equal(t, StateOpen, b.State())

	clock.now = clock.now.Add(time.Minute)
	assert.Equal(t, StateHalfOpen, b.State())

	require.NoError(t, b.Execute(func() error { return nil }))
	assert.Equal(t, StateClosed, b.State())
}

func TestBreakerHalfOpenFailureReopens(t *testing.T) {
	clock := &fakeClock{now: time.Unix(1_700_000_000, 0)}
	b := New("oracle", Config{FailureThreshold: 1, OpenTimeout: time.Minute, Clock: clock.Now})

	require.Error(t, b.Execute(func() error { return errBoom }))
	clock.now = clock.now.Add(2 * time.Minute)

	require.Error(t, b.Execute(func() error { return errBoom }))
	assert.Equal(t, StateOpen, b.State())
}

func TestBreakerIgnoresNonFailures(t *testing.T) {
	ignored := errors.New("bad input")
	b := New("oracle", Config{
		FailureThreshold: 1,
		IsFailure:        func(err error) bool { return !errors.Is(err, ignored) },
	})

	for i := 0; i < 3; i++ {
		assert.ErrorIs(t, b.Execute(func() error { return ignored }), ignored)
	}
	assert.Equal(t, StateClosed, b.State())
}

func TestBreakerSuccessResetsFailures(t *testing.T) {
	b := New("oracle", Config{FailureThreshold: 2})

	require.Error(t, b.Execute(func() error { return errBoom }))
	require.NoError(t, b.Execute(func() error { return nil }))
	require.Error(t, b.Execute(func() error { return errBoom }))

	assert.Equal(t, StateClosed, b.State())
}
