package service

import (
	"sync"

	"offline-sync-engine/internal/domain"
)

type ListenerID uint64

type Listener func(domain.StatusSnapshot)

type listenerEntry struct {
	id ListenerID
	fn Listener
}

// Listeners is an ordered observer registry. Notify calls every listener
// synchronously in registration order.
type Listeners struct {
	mu      sync.Mutex
	nextID  ListenerID
	entries []listenerEntry
}

func (l *Listeners) Add(fn Listener) ListenerID {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.nextID++
	l.entries = append(l.entries, listenerEntry{id: l.nextID, fn: fn})
	return l.nextID
}

func (l *Listeners) Remove(id ListenerID) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	for i, e := range l.entries {
		if e.id == id {
			l.entries = append(l.entries[:i:i], l.entries[i+1:]...)
			return true
		}
	}
	return false
}

func (l *Listeners) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.entries)
}

func (l *Listeners) Notify(status domain.StatusSnapshot) {
	l.mu.Lock()
	entries := make([]listenerEntry, len(l.entries))
	copy(entries, l.entries)
	l.mu.Unlock()

	// Called outside the lock so a listener may add or remove listeners.
	for _, e := range entries {
		e.fn(status)
	}
}
