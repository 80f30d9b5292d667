package events

import "sync"

// Snapshot is a copy of the feed, newest first within each kind.
type Snapshot struct {
	Listed    []*Listed    `json:"listed"`
	Sold      []*Sold      `json:"sold"`
	Cancelled []*Cancelled `json:"cancelled"`
}

// Len is the number of records across kinds.
func (s Snapshot) Len() int {
	return len(s.Listed) + len(s.Sold) + len(s.Cancelled)
}

// Feed keeps decoded records in memory. With a positive capacity each kind
// keeps at most that many records, dropping the oldest.
type Feed struct {
	mu       sync.RWMutex
	capacity int
	listed   []*Listed
	sold     []*Sold
	cancel   []*Cancelled
}

func NewFeed(capacity int) *Feed {
	return &Feed{capacity: capacity}
}

func prepend[T any](list []T, v T, capacity int) []T {
	list = append([]T{v}, list...)
	if capacity > 0 && len(list) > capacity {
		list = list[:capacity]
	}
	return list
}

// Add stores r at the front of its kind.
func (f *Feed) Add(r Record) {
	f.mu.Lock()
	defer f.mu.Unlock()

	switch r := r.(type) {
	case *Listed:
		f.listed = prepend(f.listed, r, f.capacity)
	case *Sold:
		f.sold = prepend(f.sold, r, f.capacity)
	case *Cancelled:
		f.cancel = prepend(f.cancel, r, f.capacity)
	}
}

// Clear empties the feed.
func (f *Feed) Clear() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.listed, f.sold, f.cancel = nil, nil, nil
}

func (f *Feed) Snapshot() Snapshot {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return Snapshot{
		Listed:    append([]*Listed{}, f.listed...),
		Sold:      append([]*Sold{}, f.sold...),
		Cancelled: append([]*Cancelled{}, f.cancel...),
	}
}
