// Package store is the key-value view of the realtime database that holds
// device and account records. Records are untyped bags; only the packages
// that interpret them know their fields.
package store

import (
	"context"
	"errors"
	"reflect"
	"sort"
)

type Record map[string]any

// Snapshot is every record of a collection keyed by id.
type Snapshot map[string]Record

type Store interface {
	Get(ctx context.Context, id string) (Record, bool, error)
	List(ctx context.Context) (Snapshot, error)
	Set(ctx context.Context, id string, rec Record) error
	Remove(ctx context.Context, id string) error
	// Subscribe calls onChange with the current snapshot and again after each
	// change until the returned func is called or ctx ends.
	Subscribe(ctx context.Context, onChange func(Snapshot)) (func(), error)
}

var ErrInvalidID = errors.New("record id must be non-empty")

// IDs returns the snapshot keys in sorted order.
func (s Snapshot) IDs() []string {
	ids := make([]string, 0, len(s))
	for id := range s {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

func (s Snapshot) clone() Snapshot {
	out := make(Snapshot, len(s))
	for id, rec := range s {
		out[id] = rec.Clone()
	}
	return out
}

// Clone copies the top level of the record.
func (r Record) Clone() Record {
	if r == nil {
		return nil
	}
	out := make(Record, len(r))
	for k, v := range r {
		out[k] = v
	}
	return out
}

func sameSnapshot(a, b Snapshot) bool {
	return reflect.DeepEqual(a, b)
}
