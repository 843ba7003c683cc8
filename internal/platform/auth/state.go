package auth

import (
	"sync"
	"time"
)

// StateKind classifies an authentication state change.
type StateKind string

const (
	// StateVerified is published the first time an admin identity is verified.
	StateVerified StateKind = "verified"
	// StateRejected is published whenever a presented token is refused.
	StateRejected StateKind = "rejected"
)

// StateChange describes a single authentication outcome.
type StateChange struct {
	Kind   StateKind
	UID    string
	Email  string
	Reason string
	At     time.Time
}

// StateNotifier fans authentication state changes out to subscribers.
// Subscribers run synchronously on the publishing goroutine and must not block.
type StateNotifier struct {
	mu     sync.RWMutex
	nextID int
	subs   map[int]func(StateChange)
	seen   sync.Map
}

// NewStateNotifier constructs an empty notifier.
func NewStateNotifier() *StateNotifier {
	return &StateNotifier{subs: make(map[int]func(StateChange))}
}

// Subscribe registers fn and returns a function that removes it. The returned
// function is safe to call more than once.
func (n *StateNotifier) Subscribe(fn func(StateChange)) (unsubscribe func()) {
	if n == nil || fn == nil {
		return func() {}
	}
	n.mu.Lock()
	id := n.nextID
	n.nextID++
	n.subs[id] = fn
	n.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			n.mu.Lock()
			delete(n.subs, id)
			n.mu.Unlock()
		})
	}
}

// Publish delivers change to every current subscriber.
func (n *StateNotifier) Publish(change StateChange) {
	if n == nil {
		return
	}
	n.mu.RLock()
	subs := make([]func(StateChange), 0, len(n.subs))
	for _, fn := range n.subs {
		subs = append(subs, fn)
	}
	n.mu.RUnlock()

	for _, fn := range subs {
		fn(change)
	}
}

// verified publishes a StateVerified change only for the first verification of uid.
func (n *StateNotifier) verified(uid, email string, at time.Time) {
	if n == nil || uid == "" {
		return
	}
	if _, loaded := n.seen.LoadOrStore(uid, struct{}{}); loaded {
		return
	}
	n.Publish(StateChange{Kind: StateVerified, UID: uid, Email: email, At: at})
}

func (n *StateNotifier) rejected(uid, reason string, at time.Time) {
	if n == nil {
		return
	}
	n.Publish(StateChange{Kind: StateRejected, UID: uid, Reason: reason, At: at})
}
