// Package core implements tools shared by the components of the ensemble.
package core

import "sync"

// Observer is the interface to implement to watch events.
type Observer interface {
	NotifyCallback(event interface{})
}

// Observable provides primitives to add and remove observers and to notify
// them of new events.
type Observable interface {
	Add(observer Observer)
	Remove(observer Observer)
	Notify(event interface{})
}

// Watcher is an implementation of the Observable interface. Observers are
// notified in the order they were added.
//
// - implements core.Observable
type Watcher struct {
	sync.RWMutex

	observers []Observer
}

// NewWatcher creates a new empty watcher.
func NewWatcher() *Watcher {
	return &Watcher{}
}

// Len returns the number of observers.
func (w *Watcher) Len() int {
	w.RLock()
	defer w.RUnlock()

	return len(w.observers)
}

// Add implements core.Observable. It appends the observer to the list unless
// it is already there.
func (w *Watcher) Add(observer Observer) {
	w.Lock()
	defer w.Unlock()

	if w.index(observer) >= 0 {
		return
	}

	w.observers = append(w.observers, observer)
}

// Remove implements core.Observable. It removes the observer from the list and
// keeps the order of the others.
func (w *Watcher) Remove(observer Observer) {
	w.Lock()
	defer w.Unlock()

	i := w.index(observer)
	if i < 0 {
		return
	}

	w.observers = append(w.observers[:i], w.observers[i+1:]...)
}

// Notify implements core.Observable. It notifies the observers one after the
// other. The list is read once so that the callbacks can add or remove
// observers.
func (w *Watcher) Notify(event interface{}) {
	w.RLock()
	observers := append([]Observer{}, w.observers...)
	w.RUnlock()

	for _, obs := range observers {
		obs.NotifyCallback(event)
	}
}

func (w *Watcher) index(observer Observer) int {
	for i, obs := range w.observers {
		if obs == observer {
			return i
		}
	}

	return -1
}
