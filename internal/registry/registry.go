// Package registry tracks the theatres a monitoring session has already
// announced. Entries are added once and never updated or removed.
package registry

import (
	"sync"

	"showtime-notifier/internal/model"
)

type Registry struct {
	mu      sync.Mutex
	entries map[string][]string
	order   []string
}

func New() *Registry {
	return &Registry{entries: make(map[string][]string)}
}

// DiffAndAbsorb returns the theatres in current whose names are not yet
// registered, in input order, and registers them. A name is returned by at
// most one call over the registry's lifetime; showtimes of a known theatre
// are left as they were first captured.
func (r *Registry) DiffAndAbsorb(current []model.Theatre) []model.Theatre {
	r.mu.Lock()
	defer r.mu.Unlock()

	var fresh []model.Theatre
	for _, theatre := range current {
		if _, known := r.entries[theatre.Name]; known {
			continue
		}
		showtimes := append([]string(nil), theatre.Showtimes...)
		r.entries[theatre.Name] = showtimes
		r.order = append(r.order, theatre.Name)
		fresh = append(fresh, model.Theatre{Name: theatre.Name, Showtimes: append([]string(nil), showtimes...)})
	}
	return fresh
}

// Snapshot returns a copy of every registered theatre in first-seen order.
func (r *Registry) Snapshot() []model.Theatre {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make([]model.Theatre, 0, len(r.order))
	for _, name := range r.order {
		out = append(out, model.Theatre{Name: name, Showtimes: append([]string(nil), r.entries[name]...)})
	}
	return out
}

func (r *Registry) Showtimes(name string) ([]string, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	showtimes, ok := r.entries[name]
	if !ok {
		return nil, false
	}
	return append([]string(nil), showtimes...), true
}

func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.order)
}
