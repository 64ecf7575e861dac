package scheduler

import (
	"context"
	"time"

	"github.com/ErlanBelekov/dist-job-scheduler/internal/apperr"
	"github.com/ErlanBelekov/dist-job-scheduler/internal/chain"
	"github.com/ErlanBelekov/dist-job-scheduler/internal/metrics"
	"github.com/ErlanBelekov/dist-job-scheduler/internal/plan"
	"github.com/ErlanBelekov/dist-job-scheduler/internal/valuemodel"
)

// dispatch runs one tick of a plan: the chain engine for a "query" plan,
// or the script host for a "script" plan (spec §4.3/§4.4/§4.5).
func (s *Scheduler) dispatch(ctx context.Context, name string, p plan.Plan) error {
	if p.IsScript() {
		return s.dispatchScript(ctx, name, p)
	}
	_, err := chain.Run(ctx, p.Chain, s.reg)
	return err
}

func (s *Scheduler) dispatchScript(ctx context.Context, name string, p plan.Plan) error {
	if p.Script == nil {
		return apperr.New(apperr.KindInvalidApiCall, "scheduler.dispatchScript", "script plan missing [script] section")
	}

	source, err := s.reg.ScriptSource(p.Script.File)
	if err != nil {
		return apperr.Wrap(apperr.KindNoData, "scheduler.dispatchScript", err)
	}

	interp, err := s.reg.GetInterpreterPool(p.Script.Lang)
	if err != nil {
		return apperr.Wrap(apperr.KindNoSupport, "scheduler.dispatchScript", err)
	}

	h, err := interp.Acquire(ctx)
	if err != nil {
		return apperr.Wrap(apperr.KindGenFailed, "scheduler.dispatchScript", err)
	}

	start := time.Now()
	_, err = h.Value().Run(ctx, source, nil, s.connExec(ctx))
	elapsed := time.Since(start)
	if err != nil {
		h.Discard()
		metrics.ScriptRunDuration.WithLabelValues(p.Script.Lang, "failure").Observe(elapsed.Seconds())
		metrics.ScriptRunsTotal.WithLabelValues(p.Script.Lang, "failure").Inc()
		return apperr.Wrap(apperr.KindExecuteFail, "scheduler.dispatchScript", err)
	}
	h.Release()
	metrics.ScriptRunDuration.WithLabelValues(p.Script.Lang, "success").Observe(elapsed.Seconds())
	metrics.ScriptRunsTotal.WithLabelValues(p.Script.Lang, "success").Inc()
	return nil
}

// connExec backs a script's pair_conn_exec builtin: borrow
// the named connection's pool, run cmd, return or discard the handle based
// on success (spec §4.5).
func (s *Scheduler) connExec(parent context.Context) func(ctx context.Context, connName, cmd string, args []valuemodel.Value) (valuemodel.Value, error) {
	return func(ctx context.Context, connName, cmd string, args []valuemodel.Value) (valuemodel.Value, error) {
		p, err := s.reg.GetExecutorPool(connName)
		if err != nil {
			return valuemodel.Value{}, apperr.Wrap(apperr.KindInvalidApiCall, "scheduler.connExec", err)
		}
		h, err := p.Acquire(ctx)
		if err != nil {
			return valuemodel.Value{}, apperr.Wrap(apperr.KindGenFailed, "scheduler.connExec", err)
		}
		v, err := h.Value().Execute(ctx, cmd, args)
		if err != nil {
			h.Discard()
			return valuemodel.Value{}, apperr.Wrap(apperr.KindExecuteFail, "scheduler.connExec", err)
		}
		h.Release()
		return v, nil
	}
}
