package testfixtures

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/example/cleaning-dispatch/internal/calendarsync"
)

// FakeCalendar is an in-memory external calendar. Calls can be made to fail a
// configurable number of times to exercise retry paths.
type FakeCalendar struct {
	mu       sync.Mutex
	events   map[string]calendarsync.Event
	counter  int
	failures map[string]int
	calls    map[string]int
}

// NewFakeCalendar returns an empty fake calendar.
func NewFakeCalendar() *FakeCalendar {
	return &FakeCalendar{
		events:   make(map[string]calendarsync.Event),
		failures: make(map[string]int),
		calls:    make(map[string]int),
	}
}

// FailNext makes the named operation ("list", "create", "update", "delete")
// fail the next n times it is invoked.
func (c *FakeCalendar) FailNext(operation string, n int) {
	c.mu.Lock()
	c.failures[operation] = n
	c.mu.Unlock()
}

// Calls reports how many times the named operation was invoked.
func (c *FakeCalendar) Calls(operation string) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.calls[operation]
}

// Put inserts or replaces an event directly, bypassing failure injection.
func (c *FakeCalendar) Put(event calendarsync.Event) {
	c.mu.Lock()
	c.events[event.ID] = event
	c.mu.Unlock()
}

// Remove deletes an event directly, bypassing failure injection.
func (c *FakeCalendar) Remove(id string) {
	c.mu.Lock()
	delete(c.events, id)
	c.mu.Unlock()
}

// Event returns the stored event and whether it exists.
func (c *FakeCalendar) Event(id string) (calendarsync.Event, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	event, ok := c.events[id]
	return event, ok
}

// Len reports the number of stored events.
func (c *FakeCalendar) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.events)
}

func (c *FakeCalendar) ListEvents(_ context.Context, from, to time.Time) ([]calendarsync.Event, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.maybeFailLocked("list"); err != nil {
		return nil, err
	}
	events := make([]calendarsync.Event, 0, len(c.events))
	for _, event := range c.events {
		if event.Start.Before(from) || !event.Start.Before(to) {
			continue
		}
		events = append(events, event)
	}
	sort.Slice(events, func(i, j int) bool { return events[i].ID < events[j].ID })
	return events, nil
}

func (c *FakeCalendar) CreateEvent(_ context.Context, event calendarsync.Event) (calendarsync.Event, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.maybeFailLocked("create"); err != nil {
		return calendarsync.Event{}, err
	}
	c.counter++
	event.ID = fmt.Sprintf("event-%d", c.counter)
	c.events[event.ID] = event
	return event, nil
}

func (c *FakeCalendar) UpdateEvent(_ context.Context, event calendarsync.Event) (calendarsync.Event, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.maybeFailLocked("update"); err != nil {
		return calendarsync.Event{}, err
	}
	if _, ok := c.events[event.ID]; !ok {
		return calendarsync.Event{}, calendarsync.ErrEventNotFound
	}
	c.events[event.ID] = event
	return event, nil
}

func (c *FakeCalendar) DeleteEvent(_ context.Context, id string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.maybeFailLocked("delete"); err != nil {
		return err
	}
	if _, ok := c.events[id]; !ok {
		return calendarsync.ErrEventNotFound
	}
	delete(c.events, id)
	return nil
}

func (c *FakeCalendar) maybeFailLocked(operation string) error {
	c.calls[operation]++
	if c.failures[operation] > 0 {
		c.failures[operation]--
		return fmt.Errorf("calendar %s unavailable", operation)
	}
	return nil
}
