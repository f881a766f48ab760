package storage

import "sync"

// ChangeKind says which part of a profile's data was written.
type ChangeKind string

const (
	ChangeProfile ChangeKind = "profile"
	ChangeHabits  ChangeKind = "habits"
	ChangeStatus  ChangeKind = "status"
	// ChangeAll is published by resets and restores.
	ChangeAll ChangeKind = "all"
)

// Change describes a committed write. An empty ProfileID means every profile.
type Change struct {
	Kind      ChangeKind `json:"kind"`
	ProfileID string     `json:"profile_id,omitempty"`
}

func (c Change) matchesProfile(id string) bool {
	return c.ProfileID == "" || id == "" || c.ProfileID == id
}

// AffectsProfiles reports whether the profile list (which embeds habits) changed.
func (c Change) AffectsProfiles() bool {
	return c.Kind != ChangeStatus
}

// AffectsHabits reports whether the habits of profileID changed.
func (c Change) AffectsHabits(profileID string) bool {
	return c.Kind != ChangeStatus && c.matchesProfile(profileID)
}

// AffectsStatus reports whether the cached statistics of profileID changed.
func (c Change) AffectsStatus(profileID string) bool {
	return (c.Kind == ChangeStatus || c.Kind == ChangeAll) && c.matchesProfile(profileID)
}

type hubSubscriber struct {
	filter func(Change) bool
	ch     chan struct{}
}

// Hub fans committed changes out to live subscriptions. Signals are
// coalesced: a subscriber that is busy reloading sees one pending signal no
// matter how many changes arrived meanwhile.
type Hub struct {
	mu   sync.Mutex
	next int
	subs map[int]hubSubscriber
}

func NewHub() *Hub {
	return &Hub{subs: make(map[int]hubSubscriber)}
}

// Subscribe registers filter and returns the signal channel and a release func.
func (h *Hub) Subscribe(filter func(Change) bool) (<-chan struct{}, func()) {
	h.mu.Lock()
	defer h.mu.Unlock()

	id := h.next
	h.next++
	ch := make(chan struct{}, 1)
	h.subs[id] = hubSubscriber{filter: filter, ch: ch}

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			h.mu.Lock()
			delete(h.subs, id)
			h.mu.Unlock()
		})
	}
}

// Publish signals every subscriber whose filter accepts c. It never blocks.
func (h *Hub) Publish(changes ...Change) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for _, s := range h.subs {
		for _, c := range changes {
			if !s.filter(c) {
				continue
			}
			select {
			case s.ch <- struct{}{}:
			default:
			}
			break
		}
	}
}

// Len returns the number of live subscribers.
func (h *Hub) Len() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.subs)
}
