package selection

import (
	"sync"
	"time"
)

// Kind describes how a navigation entry was produced
type Kind string

const (
	// KindInitial is the entry a navigator starts from
	KindInitial Kind = "initial"
	// KindPush is a shallow push of a new key (a new history step)
	KindPush Kind = "push"
	// KindReplace swaps the current step without adding to the stack
	KindReplace Kind = "replace"
	// KindBack moves one step back in the stack
	KindBack Kind = "back"
	// KindForward moves one step forward in the stack
	KindForward Kind = "forward"
)

// Entry is one immutable navigation step
type Entry struct {
	Version uint64    `json:"version"`
	Kind    Kind      `json:"kind"`
	Key     Key       `json:"-"`
	Query   string    `json:"query"`
	At      time.Time `json:"at"`
}

// Listener is notified after every navigation change
type Listener func(Entry)

// Navigator is the navigation state of one mounted view: a browser-like
// back/forward stack of keys plus an append-only log of every change.
// Versions increase strictly, so the latest entry identifies the key a fetch
// was issued for.
type Navigator struct {
	mu        sync.Mutex
	stack     []Key
	cursor    int
	log       []Entry
	version   uint64
	listeners []Listener
	now       func() time.Time
}

// NewNavigator creates a navigator positioned at initial
func NewNavigator(initial Key) *Navigator {
	n := &Navigator{
		stack: []Key{initial},
		now:   time.Now,
	}
	n.record(KindInitial, initial)
	return n
}

// OnChange registers a listener called after each push, replace, back or forward
func (n *Navigator) OnChange(l Listener) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.listeners = append(n.listeners, l)
}

// Current returns the latest navigation entry
func (n *Navigator) Current() Entry {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.log[len(n.log)-1]
}

// Key returns the current key
func (n *Navigator) Key() Key {
	return n.Current().Key
}

// Push adds key as a new history step, dropping any forward steps
func (n *Navigator) Push(key Key) Entry {
	n.mu.Lock()
	e := n.pushLocked(key)
	listeners := n.snapshotListeners()
	n.mu.Unlock()

	notify(listeners, e)
	return e
}

// pushLocked adds a history step; the caller holds n.mu
func (n *Navigator) pushLocked(key Key) Entry {
	n.stack = append(n.stack[:n.cursor+1], key)
	n.cursor++
	return n.record(KindPush, key)
}

// Replace swaps the current history step for key
func (n *Navigator) Replace(key Key) Entry {
	n.mu.Lock()
	n.stack[n.cursor] = key
	e := n.record(KindReplace, key)
	listeners := n.snapshotListeners()
	n.mu.Unlock()

	notify(listeners, e)
	return e
}

// SetField applies the cascading mutation to the current key and pushes the
// result. Reading the current key and pushing happen atomically, so
// concurrent calls never start from the same base key.
func (n *Navigator) SetField(field, value string) (Entry, error) {
	n.mu.Lock()
	next, err := n.log[len(n.log)-1].Key.Set(field, value)
	if err != nil {
		n.mu.Unlock()
		return Entry{}, err
	}
	e := n.pushLocked(next)
	listeners := n.snapshotListeners()
	n.mu.Unlock()

	notify(listeners, e)
	return e, nil
}

// Back moves one step back. It returns false when already at the first step.
func (n *Navigator) Back() (Entry, bool) {
	return n.move(-1, KindBack)
}

// Forward moves one step forward. It returns false when at the last step.
func (n *Navigator) Forward() (Entry, bool) {
	return n.move(1, KindForward)
}

func (n *Navigator) move(delta int, kind Kind) (Entry, bool) {
	n.mu.Lock()
	target := n.cursor + delta
	if target < 0 || target >= len(n.stack) {
		e := n.log[len(n.log)-1]
		n.mu.Unlock()
		return e, false
	}
	n.cursor = target
	e := n.record(kind, n.stack[target])
	listeners := n.snapshotListeners()
	n.mu.Unlock()

	notify(listeners, e)
	return e, true
}

// CanGoBack reports whether Back would move
func (n *Navigator) CanGoBack() bool {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.cursor > 0
}

// CanGoForward reports whether Forward would move
func (n *Navigator) CanGoForward() bool {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.cursor < len(n.stack)-1
}

// Log returns a copy of every entry recorded so far, oldest first
func (n *Navigator) Log() []Entry {
	n.mu.Lock()
	defer n.mu.Unlock()
	cp := make([]Entry, len(n.log))
	copy(cp, n.log)
	return cp
}

// record appends an entry; the caller holds n.mu
func (n *Navigator) record(kind Kind, key Key) Entry {
	n.version++
	e := Entry{
		Version: n.version,
		Kind:    kind,
		Key:     key,
		Query:   key.Encode(),
		At:      n.now(),
	}
	n.log = append(n.log, e)
	return e
}

func (n *Navigator) snapshotListeners() []Listener {
	cp := make([]Listener, len(n.listeners))
	copy(cp, n.listeners)
	return cp
}

func notify(listeners []Listener, e Entry) {
	for _, l := range listeners {
		l(e)
	}
}
