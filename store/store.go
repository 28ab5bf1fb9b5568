// Package store defines the typed key-value Store and its backends.
package store

import "context"

// Kind is the variant tag of a stored entry. A key's kind is fixed by the
// operation that created it.
type Kind int

const (
	KindNone Kind = iota
	KindCounter
	KindScalar
	KindList
	KindSet
)

func (k Kind) String() string {
	switch k {
	case KindCounter:
		return "counter"
	case KindScalar:
		return "scalar"
	case KindList:
		return "list"
	case KindSet:
		return "set"
	default:
		return "none"
	}
}

type Store interface {
	// Get returns the scalar stored at key.
	Get(ctx context.Context, key string) (string, error)

	// Set creates or overwrites the scalar stored at key.
	Set(ctx context.Context, key, value string) error

	// AtomicAdd adds delta to the counter at key, creating it at zero, and
	// returns the new total.
	AtomicAdd(ctx context.Context, key string, delta int64) (int64, error)

	// DelKey removes key whatever it holds. Missing keys are not an error.
	DelKey(ctx context.Context, key string) error

	// Exists reports whether key holds any entry.
	Exists(ctx context.Context, key string) (bool, error)

	// ListAdd appends item and returns the new list length.
	ListAdd(ctx context.Context, key, item string) (int, error)

	// ListDelItem removes every occurrence of item and returns how many
	// were removed.
	ListDelItem(ctx context.Context, key, item string) (int, error)

	// ListRange returns the elements between start and stop inclusive.
	// Negative indices count from the end of the list.
	ListRange(ctx context.Context, key string, start, stop int) ([]string, error)

	// ListClear removes the list at key.
	ListClear(ctx context.Context, key string) error

	// SetAdd adds value and returns the set cardinality.
	SetAdd(ctx context.Context, key, value string) (int, error)

	// SetRemove removes value and returns the remaining cardinality.
	SetRemove(ctx context.Context, key, value string) (int, error)

	// SetMembers returns the members of the set at key.
	SetMembers(ctx context.Context, key string) ([]string, error)

	// SetUnion returns the union of the named sets. Keys that are missing
	// or hold another kind contribute nothing.
	SetUnion(ctx context.Context, keys ...string) ([]string, error)

	// SetIntersect returns the members common to every named set. Keys that
	// are missing or hold another kind make the result empty.
	SetIntersect(ctx context.Context, keys ...string) ([]string, error)

	// Close releases backend resources.
	Close() error
}
