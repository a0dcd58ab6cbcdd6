package session

import "sync"

// AppState is the application visibility state.
type AppState int

const (
	StateForeground AppState = iota + 1
	StateBackground
)

func (s AppState) String() string {
	switch s {
	case StateForeground:
		return "foreground"
	case StateBackground:
		return "background"
	default:
		return "unknown"
	}
}

// Lifecycle publishes foreground/background transitions to subscribers.
// It starts in the foreground.
type Lifecycle struct {
	mu    sync.Mutex
	state AppState
	next  uint64
	subs  map[uint64]func(AppState)
}

// NewLifecycle returns a Lifecycle in the foreground state.
func NewLifecycle() *Lifecycle {
	return &Lifecycle{state: StateForeground, subs: make(map[uint64]func(AppState))}
}

// State returns the current state.
func (l *Lifecycle) State() AppState {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.state
}

// Subscribe registers fn for future transitions. The returned func
// removes it and is safe to call more than once.
func (l *Lifecycle) Subscribe(fn func(AppState)) (unsubscribe func()) {
	l.mu.Lock()
	id := l.next
	l.next++
	l.subs[id] = fn
	l.mu.Unlock()

	return func() {
		l.mu.Lock()
		delete(l.subs, id)
		l.mu.Unlock()
	}
}

// Set moves to s and notifies subscribers when the state changed.
// Subscribers run synchronously, in no particular order.
func (l *Lifecycle) Set(s AppState) {
	l.mu.Lock()
	if l.state == s {
		l.mu.Unlock()
		return
	}
	l.state = s
	fns := make([]func(AppState), 0, len(l.subs))
	for _, fn := range l.subs {
		fns = append(fns, fn)
	}
	l.mu.Unlock()

	for _, fn := range fns {
		fn(s)
	}
}

// Foreground is shorthand for Set(StateForeground).
func (l *Lifecycle) Foreground() { l.Set(StateForeground) }

// Background is shorthand for Set(StateBackground).
func (l *Lifecycle) Background() { l.Set(StateBackground) }
