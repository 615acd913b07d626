package device

import (
	"context"
	"errors"
	"fmt"

	"github.com/example/sems-monitoring/internal/store"
)

var ErrNotFound = errors.New("device not found")

// Registry is the device view over the devices collection.
type Registry struct {
	store store.Store
}

func NewRegistry(s store.Store) *Registry {
	return &Registry{store: s}
}

func (r *Registry) Get(ctx context.Context, id string) (Device, error) {
	rec, ok, err := r.store.Get(ctx, id)
	if err != nil {
		return Device{}, fmt.Errorf("fetch device: %w", err)
	}
	if !ok {
		return Device{}, ErrNotFound
	}
	return FromRecord(id, rec), nil
}

func (r *Registry) List(ctx context.Context) ([]Device, error) {
	snap, err := r.store.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("list devices: %w", err)
	}
	return FromSnapshot(snap), nil
}

// Watch calls fn with the full device list on every change.
func (r *Registry) Watch(ctx context.Context, fn func([]Device)) (func(), error) {
	return r.store.Subscribe(ctx, func(snap store.Snapshot) {
		fn(FromSnapshot(snap))
	})
}

// CreateOwner stores a new owner keyed by contact number and returns the id.
func (r *Registry) CreateOwner(ctx context.Context, in OwnerInput) (string, error) {
	if err := in.Validate(); err != nil {
		return "", err
	}
	id := in.ContactNumber
	if err := r.store.Set(ctx, id, in.Record()); err != nil {
		return "", fmt.Errorf("create owner: %w", err)
	}
	return id, nil
}

func (r *Registry) UpdateOwner(ctx context.Context, id string, in OwnerInput) error {
	if err := in.Validate(); err != nil {
		return err
	}
	if _, ok, err := r.store.Get(ctx, id); err != nil {
		return fmt.Errorf("fetch device: %w", err)
	} else if !ok {
		return ErrNotFound
	}
	if err := r.store.Set(ctx, id, in.Record()); err != nil {
		return fmt.Errorf("update owner: %w", err)
	}
	return nil
}

func (r *Registry) DeleteOwner(ctx context.Context, id string) error {
	if err := r.store.Remove(ctx, id); err != nil {
		return fmt.Errorf("delete owner: %w", err)
	}
	return nil
}
