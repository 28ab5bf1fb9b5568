package store

import (
	"encoding/json"
	"fmt"
	"slices"
)

// payload is the decoded value of a persisted entry. Only the field matching
// the entry's kind is meaningful. Set members are kept sorted.
type payload struct {
	Counter int64
	Scalar  string
	Items   []string
}

func (p *payload) encode(kind Kind) ([]byte, error) {
	var v any
	switch kind {
	case KindCounter:
		v = p.Counter
	case KindScalar:
		v = p.Scalar
	default:
		if p.Items == nil {
			p.Items = []string{}
		}
		v = p.Items
	}
	return json.Marshal(v)
}

func decodePayload(key string, kind Kind, data []byte) (*payload, error) {
	p := &payload{}
	var err error
	switch kind {
	case KindCounter:
		err = json.Unmarshal(data, &p.Counter)
	case KindScalar:
		err = json.Unmarshal(data, &p.Scalar)
	default:
		err = json.Unmarshal(data, &p.Items)
	}
	if err != nil {
		return nil, fmt.Errorf("decode %s at %q: %w", kind, key, err)
	}
	return p, nil
}

// addMember inserts value into the sorted member list and returns the
// cardinality.
func (p *payload) addMember(value string) int {
	if i, found := slices.BinarySearch(p.Items, value); !found {
		p.Items = slices.Insert(p.Items, i, value)
	}
	return len(p.Items)
}

// removeMember drops value from the sorted member list and returns the
// cardinality.
func (p *payload) removeMember(value string) int {
	if i, found := slices.BinarySearch(p.Items, value); found {
		p.Items = slices.Delete(p.Items, i, i+1)
	}
	return len(p.Items)
}
