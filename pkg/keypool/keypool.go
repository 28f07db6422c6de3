package keypool

import (
	"fmt"
	"maps"
	"slices"
)

type entry[V any] struct {
	value V
	set   bool
}

type options struct {
	ceiling  Handle
	capacity int
}

// Option configures a Pool.
type Option func(*options)

// WithCeiling bounds the domain to [0, ceiling]. Allocation fails with
// ErrPoolExhausted once every handle of the domain is taken.
func WithCeiling(ceiling Handle) Option {
	return func(o *options) {
		o.ceiling = ceiling
	}
}

// WithCapacity pre-sizes the value map for n live handles.
func WithCapacity(n int) Option {
	return func(o *options) {
		if n > 0 {
			o.capacity = n
		}
	}
}

// Pool allocates handles and associates an optional value with each one.
//
// Every handle of the domain is either free (covered by the RangeSet) or
// allocated (a key of the value map). Assign is the only operation able to
// break that partition, see its documentation.
type Pool[V any] struct {
	free *RangeSet
	data map[Handle]entry[V]
}

// New returns a pool whose whole domain is free.
func New[V any](opts ...Option) *Pool[V] {
	o := options{ceiling: Unbounded}
	for _, opt := range opts {
		opt(&o)
	}
	return &Pool[V]{
		free: NewRangeSet(o.ceiling),
		data: make(map[Handle]entry[V], o.capacity),
	}
}

// Allocate takes the lowest free handle. The handle has no value yet.
func (p *Pool[V]) Allocate() (Handle, error) {
	h, err := p.free.TakeLowest()
	if err != nil {
		return 0, fmt.Errorf("keypool: allocate: %w", err)
	}
	p.data[h] = entry[V]{}
	return h, nil
}

// AllocateWith takes the lowest free handle and associates v with it.
func (p *Pool[V]) AllocateWith(v V) (Handle, error) {
	h, err := p.free.TakeLowest()
	if err != nil {
		return 0, fmt.Errorf("keypool: allocate: %w", err)
	}
	p.data[h] = entry[V]{value: v, set: true}
	return h, nil
}

// Reserve allocates the caller-chosen handle h. It fails with ErrInvalidKey
// when h is not free.
func (p *Pool[V]) Reserve(h Handle) error {
	if err := p.free.Reserve(h); err != nil {
		return err
	}
	if _, ok := p.data[h]; !ok {
		p.data[h] = entry[V]{}
	}
	return nil
}

// Assign associates v with h whether h is allocated or not. It only fails
// for handles outside the domain.
//
// Assign does not consult the free ranges. Assigning to a handle that is
// still free leaves it both free and allocated, and a later Allocate may
// return it a second time. Callers wanting well-known handle numbers must
// Reserve them first.
func (p *Pool[V]) Assign(h Handle, v V) error {
	if !p.free.inDomain(h) {
		return keyErr("assign", h, ErrInvalidKey)
	}
	p.data[h] = entry[V]{value: v, set: true}
	return nil
}

// Get returns the value associated with h. The second result is false when
// h is free or has no value yet.
func (p *Pool[V]) Get(h Handle) (V, bool) {
	e, ok := p.data[h]
	if !ok || !e.set {
		var zero V
		return zero, false
	}
	return e.value, true
}

// IsAllocated reports whether h is currently held.
func (p *Pool[V]) IsAllocated(h Handle) bool {
	_, ok := p.data[h]
	return ok
}

// Release frees h. Releasing a handle that is not allocated fails with
// ErrInvalidKey and changes nothing.
func (p *Pool[V]) Release(h Handle) error {
	if _, ok := p.data[h]; !ok {
		return keyErr("release", h, ErrInvalidKey)
	}
	// assigned without a reservation: already free, only the value goes
	if p.free.IsFree(h) {
		delete(p.data, h)
		return nil
	}
	if err := p.free.GiveBack(h); err != nil {
		return err
	}
	delete(p.data, h)
	return nil
}

// Len returns the number of allocated handles.
func (p *Pool[V]) Len() int {
	return len(p.data)
}

// Handles returns the allocated handles in ascending order.
func (p *Pool[V]) Handles() []Handle {
	return slices.Sorted(maps.Keys(p.data))
}

// Range calls fn for every allocated handle in ascending order until fn
// returns false. It iterates over a snapshot, so fn may allocate or release.
func (p *Pool[V]) Range(fn func(h Handle, v V) bool) {
	for _, h := range p.Handles() {
		e, ok := p.data[h]
		if !ok {
			continue
		}
		if !fn(h, e.value) {
			return
		}
	}
}

// FreeRanges returns the free ranges in ascending order.
func (p *Pool[V]) FreeRanges() []Range {
	return p.free.Ranges()
}

// LowestFree returns the handle the next Allocate would return.
func (p *Pool[V]) LowestFree() (Handle, bool) {
	return p.free.LowestFree()
}

// IsFree reports whether h is covered by the free ranges.
func (p *Pool[V]) IsFree(h Handle) bool {
	return p.free.IsFree(h)
}

// Ceiling returns the highest handle of the domain.
func (p *Pool[V]) Ceiling() Handle {
	return p.free.Ceiling()
}
