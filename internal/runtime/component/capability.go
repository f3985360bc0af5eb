package component

import (
	"sort"

	"github.com/drblury/nether/internal/runtime/message"
)

// Capability is the explicit set of message types a component accepts.
// The zero value accepts nothing.
type Capability struct {
	types map[message.Type]struct{}
}

// NeverMatch is the capability of a component that declared nothing usable.
// It matches no message, never every message.
var NeverMatch = Capability{}

// Accepts builds a capability from the given message types. Empty names are
// ignored; a capability with no names left is NeverMatch.
func Accepts(types ...message.Type) Capability {
	set := make(map[message.Type]struct{}, len(types))
	for _, t := range types {
		if t == "" {
			continue
		}
		set[t] = struct{}{}
	}
	if len(set) == 0 {
		return NeverMatch
	}
	return Capability{types: set}
}

// AcceptsMessages builds a capability from sample values, using their Type.
func AcceptsMessages(samples ...message.Message) Capability {
	types := make([]message.Type, 0, len(samples))
	for _, s := range samples {
		if s == nil {
			continue
		}
		types = append(types, s.Type())
	}
	return Accepts(types...)
}

// Matches reports whether msg's concrete type is part of the capability.
func (c Capability) Matches(msg message.Message) bool {
	if msg == nil || len(c.types) == 0 {
		return false
	}
	_, ok := c.types[msg.Type()]
	return ok
}

// IsNever reports whether the capability matches nothing.
func (c Capability) IsNever() bool {
	return len(c.types) == 0
}

// Types lists the accepted types in lexical order.
func (c Capability) Types() []message.Type {
	out := make([]message.Type, 0, len(c.types))
	for t := range c.types {
		out = append(out, t)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}
