// Package pool implements the bounded, thread-safe object pool (spec C2)
// shared by executor pools and interpreter-VM pools. It is grounded on
// original_source/common/src/collection/pool.rs's OwnedPool: a mutex-guarded
// FIFO of idle resources plus an outstanding counter, a generator function
// called under the lock, and borrow handles that return-or-discard exactly
// once.
package pool

import (
	"fmt"
	"sync"

	"github.com/ErlanBelekov/dist-job-scheduler/internal/apperr"
)

// Generator produces one resource of type T from a parameter of type P. A
// nil error with a zero value is not valid — return a non-nil error instead.
type Generator[T any, P any] func(param P) (T, error)

// Pool is a generic, non-blocking, bounded pool. Two specializations are
// used in the rest of the module: Pool[executor.Resource, context.Context]
// and Pool[script.Runtime, context.Context], per spec §9's design note that the core only
// needs the two monomorphizations even though the pool itself is generic.
type Pool[T any, P any] struct {
	name string
	gen  Generator[T, P]
	max  int

	mu         sync.Mutex
	idle       []T
	outstanding int
}

// New constructs a Pool with the given generator and max size. maxSize == 0
// means every acquire fails with KindMaxSize (spec §8 boundary case).
func New[T any, P any](name string, gen Generator[T, P], maxSize int) *Pool[T, P] {
	return &Pool[T, P]{name: name, gen: gen, max: maxSize}
}

// Capacity returns max_size.
func (p *Pool[T, P]) Capacity() int { return p.max }

// Size returns the current outstanding count (borrowed + idle).
func (p *Pool[T, P]) Size() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.outstanding
}

// Acquire borrows a resource, generating one if idle is empty and capacity
// allows. The generator runs with the pool mutex held: generation is
// expected to be dominated by network I/O, which is bounded by max_size
// concurrent attempts.
func (p *Pool[T, P]) Acquire(param P) (*Handle[T, P], error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if len(p.idle) > 0 {
		v := p.idle[0]
		p.idle = p.idle[1:]
		return newHandle(p, v), nil
	}

	if p.outstanding >= p.max {
		return nil, apperr.New(apperr.KindMaxSize, "pool.Acquire",
			fmt.Sprintf("pool %q at capacity (%d)", p.name, p.max))
	}

	v, err := p.gen(param)
	if err != nil {
		return nil, apperr.Wrap(apperr.KindGenFailed, "pool.Acquire", err)
	}
	p.outstanding++
	return newHandle(p, v), nil
}

// returnResource puts v back on the idle FIFO's tail. outstanding is
// unchanged — it already counts idle + borrowed.
func (p *Pool[T, P]) returnResource(v T) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.idle = append(p.idle, v)
}

// discardResource drops v and decrements outstanding.
func (p *Pool[T, P]) discardResource() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.outstanding--
}

// Handle is a scoped, single-owner borrow of one resource. Exactly one of
// Return/Discard has an observable effect; later calls, and a Release on
// scope exit via a deferred call site, are no-ops (spec §4.1 handle
// discipline).
type Handle[T any, P any] struct {
	pool *Pool[T, P]
	val  T
	done bool
	mu   sync.Mutex
}

func newHandle[T any, P any](p *Pool[T, P], v T) *Handle[T, P] {
	return &Handle[T, P]{pool: p, val: v}
}

// Value returns the borrowed resource.
func (h *Handle[T, P]) Value() T { return h.val }

// Return gives the resource back to the pool's idle set. Idempotent.
func (h *Handle[T, P]) Return() {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.done {
		return
	}
	h.done = true
	h.pool.returnResource(h.val)
}

// Discard destroys the resource and frees its capacity slot. Idempotent.
func (h *Handle[T, P]) Discard() {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.done {
		return
	}
	h.done = true
	h.pool.discardResource()
}

// Release implements the "on scope exit without explicit action, behavior is
// return" rule — call it via defer immediately after a successful Acquire.
func (h *Handle[T, P]) Release() {
	h.Return()
}
