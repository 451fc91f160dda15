package history

import (
	"fmt"
)

// Changeable is an entity whose state is mutated through Changes.
// ChangeKey identifies the entity; two values with the same key are the
// same entity for revert and apply.
type Changeable interface {
	ChangeKey() string
}

// Change is one reversible mutation. ApplyFor and RevertFor replay the
// mutation against an entity of the target's type and do nothing otherwise.
type Change interface {
	Target() Changeable
	Kind() string
	ApplyFor(c Changeable)
	RevertFor(c Changeable)
	// Payload is a flat description for logs and persistence.
	Payload() map[string]interface{}
}

// Typed is a Change over a concrete entity type T.
type Typed[T Changeable] struct {
	target  T
	kind    string
	apply   func(T)
	revert  func(T)
	payload map[string]interface{}
}

// New builds a typed change. apply and revert must be exact inverses.
func New[T Changeable](target T, kind string, apply, revert func(T), payload map[string]interface{}) *Typed[T] {
	return &Typed[T]{target: target, kind: kind, apply: apply, revert: revert, payload: payload}
}

func (c *Typed[T]) Target() Changeable { return c.target }
func (c *Typed[T]) Kind() string { return c.kind }

func (c *Typed[T]) ApplyFor(x Changeable) {
	if t, ok := x.(T); ok {
		c.apply(t)
	}
}

func (c *Typed[T]) RevertFor(x Changeable) {
	if t, ok := x.(T); ok {
		c.revert(t)
	}
}

func (c *Typed[T]) Payload() map[string]interface{} {
	out := make(map[string]interface{}, len(c.payload))
	for k, v := range c.payload {
		out[k] = v
	}
	return out
}

func (c *Typed[T]) String() string {
	return fmt.Sprintf("%s on %s", c.kind, c.target.ChangeKey())
}

// SameTarget reports whether a change targets the entity keyed like c.
func SameTarget(ch Change, c Changeable) bool {
	return ch.Target().ChangeKey() == c.ChangeKey()
}
