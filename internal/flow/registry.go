package flow

import (
	"sync"
	"time"
)

// Kind separates the alert form from the billing form of the same device.
type Kind string

const (
	KindAlert   Kind = "alert"
	KindBilling Kind = "billing"
)

type key struct {
	session string
	device  string
	kind    Kind
}

type entry struct {
	flow     *Flow
	lastUsed time.Time
}

// Registry hands out one Flow per session, device and kind. Flows idle for
// longer than ttl are dropped on the next lookup.
type Registry struct {
	mu     sync.Mutex
	flows  map[key]*entry
	sender Sender
	ttl    time.Duration
	now    func() time.Time
}

func NewRegistry(sender Sender, ttl time.Duration) *Registry {
	if ttl <= 0 {
		ttl = 30 * time.Minute
	}
	return &Registry{
		flows:  make(map[key]*entry),
		sender: sender,
		ttl:    ttl,
		now:    time.Now,
	}
}

func (r *Registry) Get(session, device string, kind Kind) *Flow {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := r.now()
	r.evict(now)

	k := key{session: session, device: device, kind: kind}
	e, ok := r.flows[k]
	if !ok {
		e = &entry{flow: New(r.sender)}
		r.flows[k] = e
	}
	e.lastUsed = now
	return e.flow
}

func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.flows)
}

func (r *Registry) evict(now time.Time) {
	for k, e := range r.flows {
		if now.Sub(e.lastUsed) > r.ttl {
			delete(r.flows, k)
		}
	}
}
