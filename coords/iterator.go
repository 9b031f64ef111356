package coords

// Iterator is a lazy sequence of Coordinates, finite or infinite.
//
// Next returns the next Coordinates in the sequence and true, or a zero
// value and false once the sequence is exhausted (never, for an infinite
// iterator).
type Iterator interface {
	// Next advances the iterator and returns the next Coordinates.
	Next() (Coordinates, bool)

	// MayProduce reports whether c could appear later in the sequence,
	// without forcing enumeration past already-seen entries.
	MayProduce(c Coordinates) bool

	// IsFinite reports whether the sequence is known to terminate.
	IsFinite() bool

	// Length returns the total count and true if known (only meaningful
	// when IsFinite reports true); otherwise (0, false).
	Length() (int, bool)
}

// Slice returns a finite Iterator that yields exactly the given
// Coordinates, in order. MayProduce reports true for every member of
// the slice, whether or not Next has already yielded it: it answers
// "could appear" rather than "has not yet appeared".
func Slice(cs []Coordinates) Iterator {
	set := make(map[string]struct{}, len(cs))
	for _, c := range cs {
		set[c.Key()] = struct{}{}
	}
	return &sliceIterator{items: cs, set: set}
}

type sliceIterator struct {
	items []Coordinates
	pos   int
	set   map[string]struct{}
}

func (it *sliceIterator) Next() (Coordinates, bool) {
	if it.pos >= len(it.items) {
		return Coordinates{}, false
	}
	c := it.items[it.pos]
	it.pos++
	return c, true
}

func (it *sliceIterator) MayProduce(c Coordinates) bool {
	_, ok := it.set[c.Key()]
	return ok
}

func (it *sliceIterator) IsFinite() bool { return true }

func (it *sliceIterator) Length() (int, bool) { return len(it.items), true }

// Predicate is a reusable building block for hand-written MayProduce
// implementations over a single axis, composed with And/Or.
type Predicate func(c Coordinates) bool

// Exact matches Coordinates carrying axis==value.
func Exact(axisName string, value Value) Predicate {
	return func(c Coordinates) bool {
		v, ok := c.Get(axisName)
		return ok && v.key() == value.key()
	}
}

// Range matches integer axis values in [lo, hi] inclusive.
func Range(axisName string, lo, hi int64) Predicate {
	return func(c Coordinates) bool {
		v, ok := c.Get(axisName)
		return ok && v.IsInt() && v.Int64() >= lo && v.Int64() <= hi
	}
}

// And combines predicates with logical AND.
func And(preds ...Predicate) Predicate {
	return func(c Coordinates) bool {
		for _, p := range preds {
			if !p(c) {
				return false
			}
		}
		return true
	}
}

// Or combines predicates with logical OR.
func Or(preds ...Predicate) Predicate {
	return func(c Coordinates) bool {
		for _, p := range preds {
			if p(c) {
				return true
			}
		}
		return false
	}
}

// Lazy wraps a generator function and a hand-written MayProduce predicate
// into an Iterator usable for infinite or open-ended sequences, e.g. a
// live acquisition whose time axis has no known upper bound.
func Lazy(next func() (Coordinates, bool), mayProduce Predicate, finite bool, length func() (int, bool)) Iterator {
	return &lazyIterator{next: next, mayProduce: mayProduce, finite: finite, length: length}
}

type lazyIterator struct {
	next       func() (Coordinates, bool)
	mayProduce Predicate
	finite     bool
	length     func() (int, bool)
}

func (it *lazyIterator) Next() (Coordinates, bool) { return it.next() }

func (it *lazyIterator) MayProduce(c Coordinates) bool {
	if it.mayProduce == nil {
		return true
	}
	return it.mayProduce(c)
}

func (it *lazyIterator) IsFinite() bool { return it.finite }

func (it *lazyIterator) Length() (int, bool) {
	if it.length == nil {
		return 0, false
	}
	return it.length()
}
