// Package changefeed mirrors datastore writes to in-process subscribers keyed
// by table name. It backs the legacy table:<name> realtime channel.
package changefeed

import (
	"sync"
	"time"
)

type EventType string

const (
	EventInsert EventType = "INSERT"
	EventUpdate EventType = "UPDATE"
	EventDelete EventType = "DELETE"
)

// Change is one committed row mutation. Only mutations committed outside a
// caller-managed transaction are observed.
type Change struct {
	Table           string      `json:"table"`
	EventType       EventType   `json:"eventType"`
	New             interface{} `json:"new,omitempty"`
	Old             interface{} `json:"old,omitempty"`
	CommitTimestamp time.Time   `json:"commit_timestamp"`
}

type Handler func(Change)

// Feed fans changes out to per-table handlers.
type Feed struct {
	mu       sync.RWMutex
	nextID   uint64
	handlers map[string]map[uint64]Handler
}

func NewFeed() *Feed {
	return &Feed{handlers: make(map[string]map[uint64]Handler)}
}

// Subscribe registers handler for table. The returned cancel func is safe to
// call more than once.
func (f *Feed) Subscribe(table string, handler Handler) (cancel func()) {
	f.mu.Lock()
	f.nextID++
	id := f.nextID
	if f.handlers[table] == nil {
		f.handlers[table] = make(map[uint64]Handler)
	}
	f.handlers[table][id] = handler
	f.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			f.mu.Lock()
			defer f.mu.Unlock()
			if hs, ok := f.handlers[table]; ok {
				delete(hs, id)
				if len(hs) == 0 {
					delete(f.handlers, table)
				}
			}
		})
	}
}

// Publish delivers c to every handler subscribed to c.Table and returns how
// many handlers were invoked. Handlers run outside the feed lock.
func (f *Feed) Publish(c Change) int {
	if c.CommitTimestamp.IsZero() {
		c.CommitTimestamp = time.Now().UTC()
	}

	f.mu.RLock()
	hs := make([]Handler, 0, len(f.handlers[c.Table]))
	for _, h := range f.handlers[c.Table] {
		hs = append(hs, h)
	}
	f.mu.RUnlock()

	for _, h := range hs {
		h(c)
	}
	return len(hs)
}

// SubscriberCount reports the number of handlers on table.
func (f *Feed) SubscriberCount(table string) int {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return len(f.handlers[table])
}
