// Package resilience holds the cross-cycle source breakers and the retry
// helper used for store writes.
package resilience

import (
	"sort"
	"sync"
	"time"

	"github.com/rotisserie/eris"
)

// State is a breaker state.
type State int

const (
	// Closed lets attempts through.
	Closed State = iota
	// Open rejects attempts until the cool-down elapses.
	Open
	// HalfOpen lets one probe through.
	HalfOpen
)

func (s State) String() string {
	switch s {
	case Closed:
		return "closed"
	case Open:
		return "open"
	case HalfOpen:
		return "half-open"
	default:
		return "unknown"
	}
}

// ErrOpen is returned by Allow while a breaker is open.
var ErrOpen = eris.New("circuit open")

// BreakerConfig controls a Breaker.
type BreakerConfig struct {
	// Threshold is the number of consecutive failed cycles that opens the
	// breaker. Default: 3.
	Threshold int
	// Cooldown is how long an open breaker skips its source. Default: 10m.
	Cooldown time.Duration
	// OnStateChange is called with the breaker's name on every transition.
	OnStateChange func(name string, from, to State)
}

func (c BreakerConfig) withDefaults() BreakerConfig {
	if c.Threshold <= 0 {
		c.Threshold = 3
	}
	if c.Cooldown <= 0 {
		c.Cooldown = 10 * time.Minute
	}
	return c
}

// Breaker tracks consecutive failures of one source across cycles.
type Breaker struct {
	name string
	cfg  BreakerConfig

	mu       sync.Mutex
	state    State
	failures int
	openedAt time.Time
	probing  bool

	nowFunc func() time.Time
}

// NewBreaker creates a closed breaker.
func NewBreaker(name string, cfg BreakerConfig) *Breaker {
	return &Breaker{name: name, cfg: cfg.withDefaults(), nowFunc: time.Now}
}

// Allow reports whether the source may run now. An open breaker whose
// cool-down has elapsed moves to half-open and admits a single probe.
func (b *Breaker) Allow() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	switch b.state {
	case Open:
		if b.nowFunc().Sub(b.openedAt) < b.cfg.Cooldown {
			return ErrOpen
		}
		b.transition(HalfOpen)
		b.probing = true
		return nil
	case HalfOpen:
		if b.probing {
			return ErrOpen
		}
		b.probing = true
		return nil
	default:
		return nil
	}
}

// Record feeds the outcome of an allowed attempt.
func (b *Breaker) Record(ok bool) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.probing = false
	if ok {
		b.failures = 0
		if b.state != Closed {
			b.transition(Closed)
		}
		return
	}

	b.failures++
	switch b.state {
	case Closed:
		if b.failures >= b.cfg.Threshold {
			b.openedAt = b.nowFunc()
			b.transition(Open)
		}
	case HalfOpen:
		b.openedAt = b.nowFunc()
		b.transition(Open)
	}
}

// State returns the current state without side effects.
func (b *Breaker) State() State {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.state == Open && b.nowFunc().Sub(b.openedAt) >= b.cfg.Cooldown {
		return HalfOpen
	}
	return b.state
}

// Failures returns the consecutive failure count.
func (b *Breaker) Failures() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.failures
}

func (b *Breaker) transition(to State) {
	from := b.state
	b.state = to
	if b.cfg.OnStateChange != nil {
		b.cfg.OnStateChange(b.name, from, to)
	}
}

// Breakers is a lazily populated set of per-source breakers.
type Breakers struct {
	cfg BreakerConfig

	mu       sync.RWMutex
	breakers map[string]*Breaker
	nowFunc  func() time.Time
}

// NewBreakers creates an empty set sharing cfg.
func NewBreakers(cfg BreakerConfig) *Breakers {
	return &Breakers{cfg: cfg, breakers: make(map[string]*Breaker), nowFunc: time.Now}
}

// Get returns the breaker for name, creating it if needed.
func (bs *Breakers) Get(name string) *Breaker {
	bs.mu.RLock()
	b, ok := bs.breakers[name]
	bs.mu.RUnlock()
	if ok {
		return b
	}

	bs.mu.Lock()
	defer bs.mu.Unlock()
	if b, ok = bs.breakers[name]; ok {
		return b
	}
	b = NewBreaker(name, bs.cfg)
	b.nowFunc = bs.nowFunc
	bs.breakers[name] = b
	return b
}

// BreakerStatus is a point-in-time view of one breaker.
type BreakerStatus struct {
	Name     string `json:"name"`
	State    string `json:"state"`
	Failures int    `json:"failures"`
}

// Snapshot returns every breaker's status sorted by name.
func (bs *Breakers) Snapshot() []BreakerStatus {
	bs.mu.RLock()
	defer bs.mu.RUnlock()

	out := make([]BreakerStatus, 0, len(bs.breakers))
	for name, b := range bs.breakers {
		out = append(out, BreakerStatus{Name: name, State: b.State().String(), Failures: b.Failures()})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}
