package bytestream

import "io"

// Dependency holds a sink/source that a reader or writer either owns (and
// must Close transitively) or merely borrows (and must leave untouched).
// It is the Go collapse of the C++ library's heavy template
// parameterization over dependency kinds (spec.md §9).
type Dependency[T io.Closer] struct {
	value  T
	owned  bool
	closed bool
}

// Owned wraps value as an owned dependency: Close will close it.
func Owned[T io.Closer](value T) Dependency[T] {
	return Dependency[T]{value: value, owned: true}
}

// Borrowed wraps value as a borrowed dependency: Close leaves it open.
func Borrowed[T io.Closer](value T) Dependency[T] {
	return Dependency[T]{value: value, owned: false}
}

// Get returns the underlying value.
func (d *Dependency[T]) Get() T { return d.value }

// IsOwned reports whether Close will close the underlying value.
func (d *Dependency[T]) IsOwned() bool { return d.owned }

// Close closes the underlying value if it is owned. Idempotent.
func (d *Dependency[T]) Close() error {
	if d.closed || !d.owned {
		d.closed = true
		return nil
	}
	d.closed = true
	return d.value.Close()
}
