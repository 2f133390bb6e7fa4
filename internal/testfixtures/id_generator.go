package testfixtures

import (
	"fmt"
	"sync"
)

// IDSequence hands out "prefix-1", "prefix-2", ... so assertions can name the
// records a service created. Services take their ids as a generator func, so
// tests hand them NextFunc.
type IDSequence struct {
	mu      sync.Mutex
	prefix  string
	counter uint64
}

// NewIDSequence starts a sequence with the given prefix, or "id" when the
// prefix is empty.
func NewIDSequence(prefix string) *IDSequence {
	if prefix == "" {
		prefix = "id"
	}
	return &IDSequence{prefix: prefix}
}

// Next returns the next identifier in the sequence.
func (g *IDSequence) Next() string {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.counter++
	return fmt.Sprintf("%s-%d", g.prefix, g.counter)
}

// NextFunc adapts the sequence to the generator func the services expect. A
// nil sequence yields empty identifiers.
func (g *IDSequence) NextFunc() func() string {
	if g == nil {
		return func() string { return "" }
	}
	return g.Next
}

// Reset rewinds the counter so the next identifier is prefix-(counter+1).
func (g *IDSequence) Reset(counter uint64) {
	g.mu.Lock()
	g.counter = counter
	g.mu.Unlock()
}
