package store

import (
	"context"
	"sync"
)

// MemoryStore keeps records in process. It backs tests and local runs.
type MemoryStore struct {
	mu      sync.Mutex
	records Snapshot
	nextSub int
	subs    map[int]func(Snapshot)
}

func NewMemoryStore(seed Snapshot) *MemoryStore {
	records := Snapshot{}
	for id, rec := range seed {
		records[id] = rec.Clone()
	}
	return &MemoryStore{records: records, subs: map[int]func(Snapshot){}}
}

func (m *MemoryStore) Get(_ context.Context, id string) (Record, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	rec, ok := m.records[id]
	if !ok {
		return nil, false, nil
	}
	return rec.Clone(), true, nil
}

func (m *MemoryStore) List(_ context.Context) (Snapshot, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.records.clone(), nil
}

func (m *MemoryStore) Set(_ context.Context, id string, rec Record) error {
	if id == "" {
		return ErrInvalidID
	}
	m.mu.Lock()
	m.records[id] = rec.Clone()
	m.mu.Unlock()
	m.notify()
	return nil
}

func (m *MemoryStore) Remove(_ context.Context, id string) error {
	if id == "" {
		return ErrInvalidID
	}
	m.mu.Lock()
	delete(m.records, id)
	m.mu.Unlock()
	m.notify()
	return nil
}

func (m *MemoryStore) Subscribe(ctx context.Context, onChange func(Snapshot)) (func(), error) {
	m.mu.Lock()
	id := m.nextSub
	m.nextSub++
	m.subs[id] = onChange
	snap := m.records.clone()
	m.mu.Unlock()

	onChange(snap)

	var once sync.Once
	stop := make(chan struct{})
	unsubscribe := func() {
		once.Do(func() {
			m.mu.Lock()
			delete(m.subs, id)
			m.mu.Unlock()
			close(stop)
		})
	}
	if done := ctx.Done(); done != nil {
		go func() {
			select {
			case <-done:
				unsubscribe()
			case <-stop:
			}
		}()
	}
	return unsubscribe, nil
}

// notify runs subscribers outside the lock so they may read the store.
func (m *MemoryStore) notify() {
	m.mu.Lock()
	subs := make([]func(Snapshot), 0, len(m.subs))
	for _, fn := range m.subs {
		subs = append(subs, fn)
	}
	snap := m.records.clone()
	m.mu.Unlock()

	for _, fn := range subs {
		fn(snap.clone())
	}
}
