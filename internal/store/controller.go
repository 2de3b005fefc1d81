package store

import (
	"sync"

	"github.com/trivia-pay/internal/logging"
)

// Listener is notified with a snapshot after every applied batch
type Listener func(State)

// Controller owns the live State. It is the only way to change it.
type Controller struct {
	mu        sync.Mutex
	state     State
	version   uint64
	listeners map[int]Listener
	nextID    int
	logger    *logging.Logger
}

// NewController creates a controller holding initial
func NewController(initial State) *Controller {
	return &Controller{
		state:     initial.Clone(),
		listeners: make(map[int]Listener),
		logger:    logging.WithComponent("store"),
	}
}

// State returns a deep copy of the current state
func (c *Controller) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state.Clone()
}

// Version returns the number of batches applied so far
func (c *Controller) Version() uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.version
}

// Dispatch applies actions in order as one atomic batch and returns the
// resulting snapshot. Readers never observe a partially applied batch.
func (c *Controller) Dispatch(actions ...Action) State {
	return c.Apply(func(State) []Action { return actions })
}

// Apply computes a batch from the current state and applies it under the same
// lock, so decisions based on the state cannot race with other dispatches.
func (c *Controller) Apply(build func(current State) []Action) State {
	c.mu.Lock()
	actions := build(c.state.Clone())
	if len(actions) == 0 {
		snapshot := c.state.Clone()
		c.mu.Unlock()
		return snapshot
	}

	next := c.state
	names := make([]string, 0, len(actions))
	for _, action := range actions {
		if action == nil {
			continue
		}
		next = Reduce(next, action)
		names = append(names, action.Name())
	}
	c.state = next
	c.version++
	snapshot := c.state.Clone()
	listeners := make([]Listener, 0, len(c.listeners))
	for _, l := range c.listeners {
		listeners = append(listeners, l)
	}
	c.mu.Unlock()

	c.logger.WithField("actions", names).Debug("State updated")

	for _, l := range listeners {
		l(snapshot.Clone())
	}
	return snapshot
}

// Subscribe registers a listener and returns a function that removes it
func (c *Controller) Subscribe(l Listener) func() {
	c.mu.Lock()
	defer c.mu.Unlock()

	id := c.nextID
	c.nextID++
	c.listeners[id] = l

	return func() {
		c.mu.Lock()
		defer c.mu.Unlock()
		delete(c.listeners, id)
	}
}
