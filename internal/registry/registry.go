// Package registry implements the process-wide store of executor pools,
// interpreter pools, plans and cached script sources (spec C4), grounded on
// original_source/mypipline/src/global.rs's GlobalStore/GlobalLayout: a
// once-flag guarding first Initialize, an RWMutex-guarded store, and a
// reset() that merges in newly-discovered connections/plans without ever
// invalidating pool references already handed out to callers.
package registry

import (
	"context"
	"sync"

	"github.com/ErlanBelekov/dist-job-scheduler/internal/apperr"
	"github.com/ErlanBelekov/dist-job-scheduler/internal/executor"
	"github.com/ErlanBelekov/dist-job-scheduler/internal/executor/cmdexec"
	"github.com/ErlanBelekov/dist-job-scheduler/internal/executor/duckdbexec"
	"github.com/ErlanBelekov/dist-job-scheduler/internal/executor/odbcexec"
	"github.com/ErlanBelekov/dist-job-scheduler/internal/executor/postgresexec"
	"github.com/ErlanBelekov/dist-job-scheduler/internal/executor/redisexec"
	"github.com/ErlanBelekov/dist-job-scheduler/internal/executor/scyllaexec"
	"github.com/ErlanBelekov/dist-job-scheduler/internal/loader"
	"github.com/ErlanBelekov/dist-job-scheduler/internal/plan"
	"github.com/ErlanBelekov/dist-job-scheduler/internal/pool"
	"github.com/ErlanBelekov/dist-job-scheduler/internal/script"
)

// ExecutorPool is the first of the two Pool monomorphizations spec §9 calls
// for: one bounded pool of live backend connections per [connection.<name>]
// entry.
type ExecutorPool = pool.Pool[executor.Resource, context.Context]

// InterpreterPool is the second: one bounded pool of script runtimes per
// language.
type InterpreterPool = pool.Pool[script.Runtime, context.Context]

type store struct {
	execPools   map[string]*ExecutorPool
	interpPools map[string]*InterpreterPool
	plans       map[string]plan.Plan
	scripts     map[string]string
}

// Registry is the process-wide handle. The zero value is not usable;
// construct with New.
type Registry struct {
	mu    sync.RWMutex
	store store

	initMu sync.Mutex
	once   bool

	ldr loader.Loader

	// newInterpreterPool lets callers (cmd/mypipline's wiring) register how
	// to build a language's interpreter pool without this package importing
	// internal/script/luavm and internal/script/pyvm directly — those
	// packages would otherwise import internal/registry's executor-pool
	// accessor to implement pair_conn_exec, creating an import cycle.
	newInterpreterPool map[string]func(maxSize int) *InterpreterPool
}

// New constructs an uninitialized Registry. interpreterFactories maps
// language name ("lua", "python") to a constructor for that language's
// pool, supplied by the caller to avoid a registry<->script import cycle.
func New(interpreterFactories map[string]func(maxSize int) *InterpreterPool) *Registry {
	return &Registry{
		store: store{
			execPools:   make(map[string]*ExecutorPool),
			interpPools: make(map[string]*InterpreterPool),
			plans:       make(map[string]plan.Plan),
			scripts:     make(map[string]string),
		},
		newInterpreterPool: interpreterFactories,
	}
}

// Initialize loads the registry's first snapshot from ldr. Calling it twice
// returns KindAlreadyInitialized, matching the original's once-flag guard.
func (r *Registry) Initialize(ldr loader.Loader) error {
	r.initMu.Lock()
	defer r.initMu.Unlock()

	if r.once {
		return apperr.New(apperr.KindAlreadyInitialized, "registry.Initialize", "registry already initialized")
	}
	r.ldr = ldr

	if err := r.resetLocked(); err != nil {
		return apperr.Wrap(apperr.KindInitFailed, "registry.Initialize", err)
	}

	for lang, factory := range r.newInterpreterPool {
		r.mu.Lock()
		r.store.interpPools[lang] = factory(100)
		r.mu.Unlock()
	}

	r.once = true
	return nil
}

func (r *Registry) requireInitialized(op string) error {
	if !r.once {
		return apperr.New(apperr.KindNotInitialized, op, "registry not initialized")
	}
	return nil
}

// Reset re-reads connections and plans from the loader and merges new
// entries in. Existing executor pools are left untouched — any Handle
// already borrowed from them stays valid (spec §4.2's "reset never
// invalidates outstanding borrows" invariant). Plans are taken from the new
// load: present ones are upserted, absent or disabled ones are dropped.
func (r *Registry) Reset() error {
	if err := r.requireInitialized("registry.Reset"); err != nil {
		return err
	}
	return r.resetLocked()
}

func (r *Registry) resetLocked() error {
	if err := r.resetExecutorPools(); err != nil {
		return err
	}
	return r.resetPlans()
}

func (r *Registry) resetExecutorPools() error {
	conns, err := r.ldr.LoadConnections()
	if err != nil {
		return apperr.Wrap(apperr.KindInvalidApiCall, "registry.resetExecutorPools", err)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	for name, info := range conns {
		if _, exists := r.store.execPools[name]; exists {
			continue
		}
		factory, err := factoryFor(info)
		if err != nil {
			return err
		}
		r.store.execPools[name] = pool.New[executor.Resource, context.Context](name, factory, info.MaxSize)
	}
	return nil
}

func factoryFor(info plan.ConnectionInfo) (executor.Factory, error) {
	switch info.Type {
	case "postgres":
		return postgresexec.NewFactory(info), nil
	case "scylla":
		return scyllaexec.NewFactory(info), nil
	case "duckdb":
		return duckdbexec.NewFactory(info), nil
	case "redis":
		return redisexec.NewFactory(info), nil
	case "odbc":
		return odbcexec.NewFactory(info), nil
	case "cmd":
		return cmdexec.NewFactory(info), nil
	default:
		return nil, apperr.New(apperr.KindNoSupport, "registry.factoryFor", "not support "+info.Type)
	}
}

// resetPlans merges the loader's snapshot in, keeping only enabled plans.
// loader.Loader is contractually enabled-only already (tomlloader filters at
// the source), but a plan flipped to enable = false between resets must still
// disappear here rather than linger as a stale enabled copy, so disabled
// entries are treated as absent on both the deletion and upsert passes.
func (r *Registry) resetPlans() error {
	plans, err := r.ldr.LoadPlans()
	if err != nil {
		return apperr.Wrap(apperr.KindInvalidApiCall, "registry.resetPlans", err)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	for name := range r.store.plans {
		p, stillPresent := plans[name]
		if !stillPresent || !p.Enable {
			delete(r.store.plans, name)
		}
	}
	for name, p := range plans {
		if !p.Enable {
			continue
		}
		r.store.plans[name] = p
	}
	return nil
}

// GetExecutorPool returns the named connection's pool.
func (r *Registry) GetExecutorPool(name string) (*ExecutorPool, error) {
	if err := r.requireInitialized("registry.GetExecutorPool"); err != nil {
		return nil, err
	}
	r.mu.RLock()
	defer r.mu.RUnlock()

	p, ok := r.store.execPools[name]
	if !ok {
		return nil, apperr.New(apperr.KindNoData, "registry.GetExecutorPool", "not exists "+name)
	}
	return p, nil
}

// GetInterpreterPool returns the named language's script VM pool.
func (r *Registry) GetInterpreterPool(lang string) (*InterpreterPool, error) {
	if err := r.requireInitialized("registry.GetInterpreterPool"); err != nil {
		return nil, err
	}
	r.mu.RLock()
	defer r.mu.RUnlock()

	p, ok := r.store.interpPools[lang]
	if !ok {
		return nil, apperr.New(apperr.KindNoData, "registry.GetInterpreterPool", "not exists "+lang)
	}
	return p, nil
}

// Plans returns a snapshot copy of every enabled plan. Disabled plans are
// filtered at the loader and never enter r.store.plans in the first place;
// the check here is belt-and-suspenders so the snapshot stays enabled-only
// even if a future Loader implementation forgets to filter.
func (r *Registry) Plans() (map[string]plan.Plan, error) {
	if err := r.requireInitialized("registry.Plans"); err != nil {
		return nil, err
	}
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make(map[string]plan.Plan, len(r.store.plans))
	for k, v := range r.store.plans {
		if !v.Enable {
			continue
		}
		out[k] = v
	}
	return out, nil
}

// ScriptSource returns a plan's script body, loading and caching it on
// first use.
func (r *Registry) ScriptSource(file string) (string, error) {
	if err := r.requireInitialized("registry.ScriptSource"); err != nil {
		return "", err
	}

	r.mu.RLock()
	if cached, ok := r.store.scripts[file]; ok {
		r.mu.RUnlock()
		return cached, nil
	}
	r.mu.RUnlock()

	src, err := r.ldr.LoadScriptSource(file)
	if err != nil {
		return "", err
	}

	r.mu.Lock()
	r.store.scripts[file] = src
	r.mu.Unlock()
	return src, nil
}

// ConnectionNames returns the names of every connection the registry
// currently holds an executor pool for, for the admin HTTP surface's
// readiness check (spec §5.x).
func (r *Registry) ConnectionNames() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.store.execPools))
	for name := range r.store.execPools {
		names = append(names, name)
	}
	return names
}

// Ping borrows the named connection's pool and asks its CurrentTime, as a
// cheap reachability probe for health.Checker.
func (r *Registry) Ping(ctx context.Context, name string) error {
	p, err := r.GetExecutorPool(name)
	if err != nil {
		return err
	}
	h, err := p.Acquire(ctx)
	if err != nil {
		return apperr.Wrap(apperr.KindConnectionLost, "registry.Ping", err)
	}
	_, err = h.Value().CurrentTime(ctx)
	if err != nil {
		h.Discard()
		return apperr.Wrap(apperr.KindConnectionLost, "registry.Ping", err)
	}
	h.Release()
	return nil
}

// Close tears the registry down by clearing the pool, plan and script maps.
// Pooled resources are not closed: Resource.Close is not called on idle or
// borrowed connections. Calling Close before Initialize returns
// KindNotInitialized; a second Close clears the already-empty maps and
// returns nil.
func (r *Registry) Close() error {
	if err := r.requireInitialized("registry.Close"); err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	r.store.execPools = make(map[string]*ExecutorPool)
	r.store.interpPools = make(map[string]*InterpreterPool)
	r.store.plans = make(map[string]plan.Plan)
	r.store.scripts = make(map[string]string)
	return nil
}
