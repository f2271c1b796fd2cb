package session

import (
	"context"
	"sync"
)

// Confirmer implements a two-step confirm/commit protocol: a consequential
// action (submit, discard) is staged with Request and only runs when the
// caller explicitly confirms it. The presentation layer decides how the
// question is asked; the protocol itself is UI-agnostic.
type Confirmer struct {
	mu     sync.Mutex
	label  string
	action func(ctx context.Context) error
}

// NewConfirmer returns an empty confirmer.
func NewConfirmer() *Confirmer {
	return &Confirmer{}
}

// Request stages an action, replacing any previously staged one.
func (c *Confirmer) Request(label string, action func(ctx context.Context) error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.label = label
	c.action = action
}

// Pending returns the label of the staged action, if any.
func (c *Confirmer) Pending() (string, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.label, c.action != nil
}

// Confirm runs and clears the staged action. Returns ErrNoPendingAction
// when nothing is staged. The action is cleared before it runs so a slow
// action cannot be committed twice.
func (c *Confirmer) Confirm(ctx context.Context) error {
	c.mu.Lock()
	action := c.action
	c.label = ""
	c.action = nil
	c.mu.Unlock()

	if action == nil {
		return ErrNoPendingAction
	}
	return action(ctx)
}

// Cancel discards the staged action. Reports whether one was pending.
func (c *Confirmer) Cancel() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	pending := c.action != nil
	c.label = ""
	c.action = nil
	return pending
}
