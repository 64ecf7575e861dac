// Package chain implements the chain engine (spec C7 / §4.4): a plan's
// chain steps run in sequence, each one's literal args and bound references
// to prior steps' results assembled into a positional argument vector by
// idx, grounded on original_source's two QueryExecutorBindBuilder variants
// (mypipline/src/thread/query_executor.rs and pipline/thread/src/
// query_executor.rs) — the idx-1 positional array build-up and
// Null-on-out-of-range behavior come from the latter's
// create_query_bind_array.
package chain

import (
	"context"
	"fmt"
	"time"

	"github.com/ErlanBelekov/dist-job-scheduler/internal/apperr"
	"github.com/ErlanBelekov/dist-job-scheduler/internal/executor"
	"github.com/ErlanBelekov/dist-job-scheduler/internal/metrics"
	"github.com/ErlanBelekov/dist-job-scheduler/internal/plan"
	"github.com/ErlanBelekov/dist-job-scheduler/internal/pool"
	"github.com/ErlanBelekov/dist-job-scheduler/internal/valuemodel"
)

// ExecutorPool is the pool shape the chain engine borrows connections
// from — kept as a type alias rather than an import of internal/registry
// to avoid a registry<->chain import cycle.
type ExecutorPool = pool.Pool[executor.Resource, context.Context]

// PoolGetter is the slice of registry.Registry the chain engine needs.
type PoolGetter interface {
	GetExecutorPool(name string) (*ExecutorPool, error)
}

// Results accumulates one step's column-oriented output per step id, for
// later steps' bind references (spec §4.4's "results by id" contract).
type Results map[string]valuemodel.Value

// Run executes every step of a plan's chain in order against pools, per
// spec §4.4: the first step's argument vector is built from args alone;
// later steps additionally read bind entries off of Results, fanning out
// once per row of whichever referenced prior step has the most rows, and
// keeping only the last iteration's result under that step's id.
func Run(ctx context.Context, steps []plan.ChainStep, pools PoolGetter) (Results, error) {
	results := make(Results)

	for i, step := range steps {
		if err := checkIdxConflicts(step); err != nil {
			return results, err
		}

		p, err := pools.GetExecutorPool(step.Connection)
		if err != nil {
			return results, apperr.Wrap(apperr.KindInvalidApiCall, "chain.Run", err)
		}

		n := 1
		if i > 0 {
			n = fanOutCount(step, results)
		}
		metrics.ChainStepFanOut.WithLabelValues(step.ID).Observe(float64(n))

		var last valuemodel.Value
		for row := 0; row < n; row++ {
			args, err := buildArgs(step, results, row)
			if err != nil {
				return results, err
			}

			h, err := p.Acquire(ctx)
			if err != nil {
				return results, apperr.Wrap(apperr.KindInvalidApiCall, "chain.Run", err)
			}

			start := time.Now()
			v, err := h.Value().Execute(ctx, step.Query, args)
			metrics.ChainStepDuration.WithLabelValues(step.Connection).Observe(time.Since(start).Seconds())
			if err != nil {
				h.Discard()
				return results, apperr.Wrap(apperr.KindExecuteFail, "chain.Run", err)
			}
			h.Release()
			last = v
		}

		results[step.ID] = last
	}

	return results, nil
}

// checkIdxConflicts rejects a step whose args and bind entries claim the
// same positional idx (spec §4.4's conflict check -> InvalidApiCall).
func checkIdxConflicts(step plan.ChainStep) error {
	seen := make(map[int]bool, len(step.Args)+len(step.Bind))
	for _, a := range step.Args {
		if seen[a.Idx] {
			return apperr.New(apperr.KindInvalidApiCall, "chain.checkIdxConflicts",
				fmt.Sprintf("step %q: duplicate idx %d", step.ID, a.Idx))
		}
		seen[a.Idx] = true
	}
	for _, b := range step.Bind {
		if seen[b.Idx] {
			return apperr.New(apperr.KindInvalidApiCall, "chain.checkIdxConflicts",
				fmt.Sprintf("step %q: duplicate idx %d", step.ID, b.Idx))
		}
		seen[b.Idx] = true
	}
	return nil
}

// fanOutCount is N = max(fan_out_count) over every step this one binds
// from, where a referenced step's fan_out_count is the row count of its
// cached column-oriented result (spec §4.4). A step with no bind entries
// fans out once.
func fanOutCount(step plan.ChainStep, results Results) int {
	if len(step.Bind) == 0 {
		return 1
	}
	n := 0
	for _, b := range step.Bind {
		ref, ok := results[b.RefID]
		if !ok {
			continue
		}
		if c := ref.FanOutCount(); c > n {
			n = c
		}
	}
	return n
}

// buildArgs assembles the positional argument vector for one fan-out
// iteration of step, per spec §4.4: literal args fill their idx directly;
// bind entries read row `row` (or their own fixed row, if set) of the
// column named key on the referenced step's result, resolving to Null when
// the referenced step, column or row is absent.
func buildArgs(step plan.ChainStep, results Results, row int) ([]valuemodel.Value, error) {
	maxIdx := 0
	for _, a := range step.Args {
		if a.Idx > maxIdx {
			maxIdx = a.Idx
		}
	}
	for _, b := range step.Bind {
		if b.Idx > maxIdx {
			maxIdx = b.Idx
		}
	}

	args := make([]valuemodel.Value, maxIdx)
	for i := range args {
		args[i] = valuemodel.Null()
	}

	for _, a := range step.Args {
		args[a.Idx-1] = valuemodel.NewString(a.Data)
	}

	for _, b := range step.Bind {
		r := row
		if b.Row != nil {
			r = *b.Row
		}
		args[b.Idx-1] = resolveBind(results, b, r)
	}

	return args, nil
}

func resolveBind(results Results, b plan.ChainBind, row int) valuemodel.Value {
	ref, ok := results[b.RefID]
	if !ok {
		return valuemodel.Null()
	}
	return ref.ColumnRow(b.Key, row)
}
