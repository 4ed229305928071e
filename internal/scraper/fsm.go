package scraper

import (
	"errors"
	"sync"

	"go.uber.org/zap"
)

var (
	ErrInvalidTransition = errors.New("invalid state transition")
)

type State string

const (
	StateCreated  State = "created"
	StateScraping State = "scraping"
	// StateExhausted means the listing has no further pages and the index
	// is complete.
	StateExhausted State = "exhausted"
	StateStopped   State = "stopped"
	StateFailed    State = "failed"
)

// FSM tracks a single scrape invocation.
type FSM struct {
	mu          sync.Mutex
	Transitions map[State]map[State]struct{}

	current State
	logger  *zap.Logger
}

type FSMOption func(*FSM)

func FSMWithLogger(logger *zap.Logger) FSMOption {
	return func(f *FSM) {
		f.logger = logger
	}
}

func NewFSM(opts ...FSMOption) *FSM {
	f := &FSM{
		current: StateCreated,
		logger:  zap.NewNop(),

		Transitions: map[State]map[State]struct{}{
			StateCreated: {
				StateScraping: {},
				StateStopped:  {}, // index already complete
				StateFailed:   {},
			},
			StateScraping: {
				StateExhausted: {},
				StateStopped:   {},
				StateFailed:    {},
			},
		},
	}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

func (f *FSM) Current() State {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.current
}

// Done reports whether the invocation has reached a terminal state.
func (f *FSM) Done() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.Transitions[f.current]) == 0
}

func (f *FSM) Transition(to State) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if _, ok := f.Transitions[f.current][to]; !ok {
		f.logger.Error("Invalid state transition",
			zap.String("from", string(f.current)),
			zap.String("to", string(to)),
		)
		return ErrInvalidTransition
	}
	previous := f.current
	f.current = to

	f.logger.Debug("State transitioned",
		zap.String("state", string(f.current)),
		zap.String("from", string(previous)),
	)
	return nil
}
