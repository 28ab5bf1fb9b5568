package store

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	bolt "go.etcd.io/bbolt"
)

const (
	// DefaultDiskStorePath is used when no path is configured.
	DefaultDiskStorePath = "keyvalue.db"

	diskBucket = "keyvalue"
)

// DiskStore is a persistent Store backed by a BoltDB file. Each value is
// stored as one kind byte followed by the JSON payload.
//
// Bolt runs one write transaction at a time, so every mutation is atomic
// without further locking. Reads run in shared read transactions and set
// algebra sees a single snapshot of all named keys.
type DiskStore struct {
	path   string
	handle *bolt.DB
}

// NewDiskStore opens (creating if needed) the BoltDB file at path.
func NewDiskStore(path string) (*DiskStore, error) {
	if path == "" {
		path = DefaultDiskStorePath
	}
	path = filepath.Clean(path)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}

	handle, err := bolt.Open(path, 0o600, &bolt.Options{Timeout: time.Second})
	if err != nil {
		return nil, fmt.Errorf("failed to open disk store %q: %w", path, err)
	}

	err = handle.Update(func(tx *bolt.Tx) error {
		if _, err := tx.CreateBucketIfNotExists([]byte(diskBucket)); err != nil {
			return fmt.Errorf("failed to create internal bucket %q: %w", diskBucket, err)
		}
		return nil
	})
	if err != nil {
		_ = handle.Close()
		return nil, err
	}

	return &DiskStore{path: path, handle: handle}, nil
}

// Path returns the database file in use.
func (s *DiskStore) Path() string {
	return s.path
}

// decodeDisk splits a stored value into its kind and payload. The returned
// payload does not alias Bolt's memory.
func decodeDisk(key string, raw []byte) (Kind, *payload, error) {
	if len(raw) == 0 {
		return KindNone, nil, fmt.Errorf("decode %q: empty value", key)
	}
	kind := Kind(raw[0])
	p, err := decodePayload(key, kind, raw[1:])
	return kind, p, err
}

func encodeDisk(kind Kind, p *payload) ([]byte, error) {
	body, err := p.encode(kind)
	if err != nil {
		return nil, err
	}
	return append([]byte{byte(kind)}, body...), nil
}

// view loads key in a read transaction and checks its kind. A missing key
// yields (nil, nil).
func (s *DiskStore) view(ctx context.Context, key string, want Kind) (*payload, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	var p *payload
	err := s.handle.View(func(tx *bolt.Tx) error {
		raw := tx.Bucket([]byte(diskBucket)).Get([]byte(key))
		if raw == nil {
			return nil
		}
		kind, decoded, err := decodeDisk(key, raw)
		if err != nil {
			return err
		}
		if kind != want {
			return mismatch(key, want, kind)
		}
		p = decoded
		return nil
	})
	return p, err
}

// update runs fn against key in a write transaction. When create is set, a
// missing key starts as an empty payload of kind want; otherwise fn is not
// called for a missing key. The key is deleted when fn reports !keep.
func (s *DiskStore) update(ctx context.Context, key string, want Kind, create bool, fn mutation) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return s.handle.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket([]byte(diskBucket))
		p := &payload{}
		if raw := b.Get([]byte(key)); raw != nil {
			kind, decoded, err := decodeDisk(key, raw)
			if err != nil {
				return err
			}
			if kind != want {
				return mismatch(key, want, kind)
			}
			p = decoded
		} else if !create {
			return nil
		}

		keep, err := fn(p)
		if err != nil {
			return err
		}
		if !keep {
			return b.Delete([]byte(key))
		}
		value, err := encodeDisk(want, p)
		if err != nil {
			return err
		}
		return b.Put([]byte(key), value)
	})
}

func (s *DiskStore) Get(ctx context.Context, key string) (string, error) {
	if err := validateKey(key); err != nil {
		return "", err
	}
	p, err := s.view(ctx, key, KindScalar)
	if err != nil {
		return "", err
	}
	if p == nil {
		return "", notFound(key)
	}
	return p.Scalar, nil
}

func (s *DiskStore) Set(ctx context.Context, key, value string) error {
	if err := validateKey(key); err != nil {
		return err
	}
	return s.update(ctx, key, KindScalar, true, func(p *payload) (bool, error) {
		p.Scalar = value
		return true, nil
	})
}

func (s *DiskStore) AtomicAdd(ctx context.Context, key string, delta int64) (int64, error) {
	if err := validateKey(key); err != nil {
		return 0, err
	}
	var total int64
	err := s.update(ctx, key, KindCounter, true, func(p *payload) (bool, error) {
		sum, ok := addInt64(p.Counter, delta)
		if !ok {
			return false, fmt.Errorf("%w: adding %d to counter %q overflows", ErrInvalidArgument, delta, key)
		}
		p.Counter = sum
		total = sum
		return true, nil
	})
	return total, err
}

func (s *DiskStore) DelKey(ctx context.Context, key string) error {
	if err := validateKey(key); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	return s.handle.Update(func(tx *bolt.Tx) error {
		return tx.Bucket([]byte(diskBucket)).Delete([]byte(key))
	})
}

func (s *DiskStore) Exists(ctx context.Context, key string) (bool, error) {
	if err := validateKey(key); err != nil {
		return false, err
	}
	if err := ctx.Err(); err != nil {
		return false, err
	}
	var found bool
	err := s.handle.View(func(tx *bolt.Tx) error {
		found = tx.Bucket([]byte(diskBucket)).Get([]byte(key)) != nil
		return nil
	})
	return found, err
}

func (s *DiskStore) ListAdd(ctx context.Context, key, item string) (int, error) {
	if err := validateKey(key); err != nil {
		return 0, err
	}
	var n int
	err := s.update(ctx, key, KindList, true, func(p *payload) (bool, error) {
		p.Items = append(p.Items, item)
		n = len(p.Items)
		return true, nil
	})
	return n, err
}

func (s *DiskStore) ListDelItem(ctx context.Context, key, item string) (int, error) {
	if err := validateKey(key); err != nil {
		return 0, err
	}
	var removed int
	err := s.update(ctx, key, KindList, false, func(p *payload) (bool, error) {
		p.Items, removed = removeAll(p.Items, item)
		return len(p.Items) > 0, nil
	})
	return removed, err
}

func (s *DiskStore) ListRange(ctx context.Context, key string, start, stop int) ([]string, error) {
	if err := validateKey(key); err != nil {
		return nil, err
	}
	p, err := s.view(ctx, key, KindList)
	if err != nil {
		return nil, err
	}
	if p == nil {
		return []string{}, nil
	}
	from, to, ok := clampRange(start, stop, len(p.Items))
	if !ok {
		return []string{}, nil
	}
	return p.Items[from : to+1], nil
}

func (s *DiskStore) ListClear(ctx context.Context, key string) error {
	if err := validateKey(key); err != nil {
		return err
	}
	return s.update(ctx, key, KindList, false, func(*payload) (bool, error) {
		return false, nil
	})
}

func (s *DiskStore) SetAdd(ctx context.Context, key, value string) (int, error) {
	if err := validateKey(key); err != nil {
		return 0, err
	}
	var n int
	err := s.update(ctx, key, KindSet, true, func(p *payload) (bool, error) {
		n = p.addMember(value)
		return true, nil
	})
	return n, err
}

func (s *DiskStore) SetRemove(ctx context.Context, key, value string) (int, error) {
	if err := validateKey(key); err != nil {
		return 0, err
	}
	var n int
	err := s.update(ctx, key, KindSet, false, func(p *payload) (bool, error) {
		n = p.removeMember(value)
		return n > 0, nil
	})
	return n, err
}

func (s *DiskStore) SetMembers(ctx context.Context, key string) ([]string, error) {
	if err := validateKey(key); err != nil {
		return nil, err
	}
	p, err := s.view(ctx, key, KindSet)
	if err != nil {
		return nil, err
	}
	if p == nil {
		return []string{}, nil
	}
	return p.Items, nil
}

// loadSets returns, in key order, the members of each named key and whether
// that key holds a set. All keys are read from one snapshot.
func (s *DiskStore) loadSets(ctx context.Context, keys []string) ([][]string, []bool, error) {
	if err := ctx.Err(); err != nil {
		return nil, nil, err
	}
	groups := make([][]string, len(keys))
	isSet := make([]bool, len(keys))
	err := s.handle.View(func(tx *bolt.Tx) error {
		b := tx.Bucket([]byte(diskBucket))
		for i, key := range keys {
			raw := b.Get([]byte(key))
			if len(raw) == 0 || Kind(raw[0]) != KindSet {
				continue
			}
			_, p, err := decodeDisk(key, raw)
			if err != nil {
				return err
			}
			groups[i], isSet[i] = p.Items, true
		}
		return nil
	})
	return groups, isSet, err
}

func (s *DiskStore) SetUnion(ctx context.Context, keys ...string) ([]string, error) {
	if err := validateKeys(keys); err != nil {
		return nil, err
	}
	groups, isSet, err := s.loadSets(ctx, keys)
	if err != nil {
		return nil, err
	}
	sets := make([][]string, 0, len(groups))
	for i, members := range groups {
		if isSet[i] {
			sets = append(sets, members)
		}
	}
	return unionOf(sets), nil
}

func (s *DiskStore) SetIntersect(ctx context.Context, keys ...string) ([]string, error) {
	if err := validateKeys(keys); err != nil {
		return nil, err
	}
	groups, isSet, err := s.loadSets(ctx, keys)
	if err != nil {
		return nil, err
	}
	for _, ok := range isSet {
		if !ok {
			return []string{}, nil
		}
	}
	return intersectOf(groups), nil
}

// Close closes the database file.
func (s *DiskStore) Close() error {
	return s.handle.Close()
}
