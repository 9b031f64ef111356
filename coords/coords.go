// Package coords implements DataCoordinates: a small, ordered, hashable
// identifier for one point in an N-dimensional experimental space.
package coords

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
)

// Value is an axis value: either an integer or a string.
type Value struct {
	isInt bool
	i     int64
	s     string
}

// Int constructs an integer axis value.
func Int(v int64) Value { return Value{isInt: true, i: v} }

// String constructs a string axis value.
func String(v string) Value { return Value{s: v} }

// IsInt reports whether the value was constructed with Int.
func (v Value) IsInt() bool { return v.isInt }

// Int64 returns the integer payload (zero if the value is a string).
func (v Value) Int64() int64 { return v.i }

// Str returns the string payload (empty if the value is an integer).
func (v Value) Str() string { return v.s }

func (v Value) String() string {
	if v.isInt {
		return strconv.FormatInt(v.i, 10)
	}
	return v.s
}

// key returns a representation suitable for map/equality comparisons that
// cannot collide between an int and a string with the same text.
func (v Value) key() string {
	if v.isInt {
		return "i:" + strconv.FormatInt(v.i, 10)
	}
	return "s:" + v.s
}

// axis is one (name, value) pair, order of insertion preserved.
type axis struct {
	name  string
	value Value
}

// Coordinates is an ordered mapping from axis name to axis value.
//
// Equality and hashing are defined over the multiset of (name, value)
// pairs; insertion order is preserved for display/iteration but is not
// significant for identity. The zero value is an empty,
// usable Coordinates.
type Coordinates struct {
	axes []axis
}

// New builds Coordinates from name/value pairs in the given order.
func New(pairs ...Pair) Coordinates {
	c := Coordinates{axes: make([]axis, 0, len(pairs))}
	for _, p := range pairs {
		c = c.With(p.Name, p.Value)
	}
	return c
}

// Pair is a convenience constructor argument for New.
type Pair struct {
	Name  string
	Value Value
}

// Axis builds a Pair.
func Axis(name string, value Value) Pair { return Pair{Name: name, Value: value} }

// With returns a copy of c with axis name set to value, added at the end if
// new or updated in place if it already exists. Coordinates are immutable
// from the caller's perspective; With never mutates the receiver's backing
// array in a way visible to other copies.
func (c Coordinates) With(name string, value Value) Coordinates {
	out := make([]axis, len(c.axes), len(c.axes)+1)
	copy(out, c.axes)
	for i := range out {
		if out[i].name == name {
			out[i].value = value
			return Coordinates{axes: out}
		}
	}
	out = append(out, axis{name: name, value: value})
	return Coordinates{axes: out}
}

// Get returns the value bound to name and whether it was present.
func (c Coordinates) Get(name string) (Value, bool) {
	for _, a := range c.axes {
		if a.name == name {
			return a.value, true
		}
	}
	return Value{}, false
}

// Names returns axis names in insertion order.
func (c Coordinates) Names() []string {
	out := make([]string, len(c.axes))
	for i, a := range c.axes {
		out[i] = a.name
	}
	return out
}

// Len returns the number of axes.
func (c Coordinates) Len() int { return len(c.axes) }

// Key returns a string that is equal for two Coordinates iff they are Equal.
// It is the hash/equality surrogate used as a Go map key.
func (c Coordinates) Key() string {
	sorted := make([]axis, len(c.axes))
	copy(sorted, c.axes)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].name < sorted[j].name })
	var b strings.Builder
	for i, a := range sorted {
		if i > 0 {
			b.WriteByte('\x1f')
		}
		b.WriteString(a.name)
		b.WriteByte('=')
		b.WriteString(a.value.key())
	}
	return b.String()
}

// Equal reports whether c and other identify the same point, ignoring
// insertion order.
func (c Coordinates) Equal(other Coordinates) bool {
	return c.Key() == other.Key()
}

// ToMap serializes c to a plain map; ToMap/FromMap round-trips identity,
// modulo insertion order which FromMap reconstructs by sorted key for
// determinism.
func (c Coordinates) ToMap() map[string]Value {
	m := make(map[string]Value, len(c.axes))
	for _, a := range c.axes {
		m[a.name] = a.value
	}
	return m
}

// FromMap deserializes a plain map into Coordinates. Axis order is the
// sorted order of names, since a Go map carries no order of its own.
func FromMap(m map[string]Value) Coordinates {
	names := make([]string, 0, len(m))
	for k := range m {
		names = append(names, k)
	}
	sort.Strings(names)
	c := Coordinates{axes: make([]axis, 0, len(names))}
	for _, n := range names {
		c.axes = append(c.axes, axis{name: n, value: m[n]})
	}
	return c
}

func (c Coordinates) String() string {
	var b strings.Builder
	b.WriteByte('{')
	for i, a := range c.axes {
		if i > 0 {
			b.WriteString(", ")
		}
		fmt.Fprintf(&b, "%s=%s", a.name, a.value)
	}
	b.WriteByte('}')
	return b.String()
}
