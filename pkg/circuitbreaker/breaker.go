package circuitbreaker

import (
	"errors"
	"sync"
	"time"

	"go.uber.org/zap"
)

var (
	ErrCircuitOpen     = errors.New("circuit breaker is open")
	ErrTooManyRequests = errors.New("too many requests in half-open state")
)

type State int

const (
	StateClosed State = iota
	StateHalfOpen
	StateOpen
)

func (s State) String() string {
	switch s {
	case StateClosed:
		return "closed"
	case StateHalfOpen:
		return "half-open"
	case StateOpen:
		return "open"
	default:
		return "unknown"
	}
}

type Config struct {
	// HalfOpenProbes is the number of calls admitted while half-open.
	HalfOpenProbes   uint32
	OpenTimeout      time.Duration
	FailureThreshold uint32
	SuccessThreshold uint32
	// IsFailure decides whether an error counts against the breaker. Nil
	// counts every error.
	IsFailure     func(error) bool
	OnStateChange func(name string, from, to State)
	Logger        *zap.Logger
	Clock         func() time.Time
}

type Breaker struct {
	name string
	cfg  Config

	mu         sync.Mutex
	state      State
	generation uint64
	inFlight   uint32
	failures   uint32
	successes  uint32
	openUntil  time.Time
}

func New(name string, cfg Config) *Breaker {
	if cfg.HalfOpenProbes == 0 {
		cfg.HalfOpenProbes = 1
	}
	if cfg.OpenTimeout <= 0 {
		cfg.OpenTimeout = 30 * time.Second
	}
	if cfg.FailureThreshold == 0 {
		cfg.FailureThreshold = 5
	}
	if cfg.SuccessThreshold == 0 {
		cfg.SuccessThreshold = 1
	}
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}
	if cfg.Clock == nil {
		cfg.Clock = time.Now
	}

	return &Breaker{name: name, cfg: cfg}
}

func (b *Breaker) Name() string {
	return b.name
}

// Execute runs fn unless the breaker is open. A panic in fn is recorded as a
// failure and re-raised.
func (b *Breaker) Execute(fn func() error) error {
	generation, err := b.admit()
	if err != nil {
		return err
	}

	defer func() {
		if r := recover(); r != nil {
			b.record(generation, false)
			panic(r)
		}
	}()

	err = fn()
	b.record(generation, err == nil || (b.cfg.IsFailure != nil && !b.cfg.IsFailure(err)))
	return err
}

func (b *Breaker) State() State {
	b.mu.Lock()
	defer b.mu.Unlock()

	return b.current(b.cfg.Clock())
}

func (b *Breaker) admit() (uint64, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	switch b.current(b.cfg.Clock()) {
	case StateOpen:
		return b.generation, ErrCircuitOpen
	case StateHalfOpen:
		if b.inFlight >= b.cfg.HalfOpenProbes {
			return b.generation, ErrTooManyRequests
		}
	}

	b.inFlight++
	return b.generation, nil
}

func (b *Breaker) record(generation uint64, ok bool) {
	b.mu.Lock()
	defer b.mu.Unlock()

	state := b.current(b.cfg.Clock())
	if generation != b.generation {
		return
	}
	if b.inFlight > 0 {
		b.inFlight--
	}

	if ok {
		b.failures = 0
		b.successes++
		if state == StateHalfOpen && b.successes >= b.cfg.SuccessThreshold {
			b.transition(StateClosed)
		}
		return
	}

	b.successes = 0
	b.failures++
	if state == StateHalfOpen || b.failures >= b.cfg.FailureThreshold {
		b.transition(StateOpen)
	}
}

func (b *Breaker) current(now time.Time) State {
	if b.state == StateOpen && !now.Before(b.openUntil) {
		b.transition(StateHalfOpen)
	}
	return b.state
}

func (b *Breaker) transition(to State) {
	from := b.state
	if from == to {
		return
	}

	b.state = to
	b.generation++
	b.inFlight = 0
	b.failures = 0
	b.successes = 0
	if to == StateOpen {
		b.openUntil = b.cfg.Clock().Add(b.cfg.OpenTimeout)
	}

	b.cfg.Logger.Info("Circuit breaker state changed",
		zap.String("name", b.name),
		zap.String("from", from.String()),
		zap.String("to", to.String()),
	)

	if b.cfg.OnStateChange != nil {
		b.cfg.OnStateChange(b.name, from, to)
	}
}
