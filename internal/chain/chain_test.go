package chain_test

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/ErlanBelekov/dist-job-scheduler/internal/apperr"
	"github.com/ErlanBelekov/dist-job-scheduler/internal/chain"
	"github.com/ErlanBelekov/dist-job-scheduler/internal/executor"
	"github.com/ErlanBelekov/dist-job-scheduler/internal/plan"
	"github.com/ErlanBelekov/dist-job-scheduler/internal/pool"
	"github.com/ErlanBelekov/dist-job-scheduler/internal/valuemodel"
)

// fakeResource replays a fixed Value per query string and records every
// (cmd, params) pair it was asked to execute, so tests can assert fan-out
// iterated the expected number of times with the expected bound values.
type fakeResource struct {
	results map[string]valuemodel.Value
	calls   *[]call
}

type call struct {
	cmd    string
	params []valuemodel.Value
}

func (f *fakeResource) Execute(_ context.Context, cmd string, params []valuemodel.Value) (valuemodel.Value, error) {
	*f.calls = append(*f.calls, call{cmd: cmd, params: params})
	v, ok := f.results[cmd]
	if !ok {
		return valuemodel.Value{}, fmt.Errorf("no fixture for query %q", cmd)
	}
	return v, nil
}
func (f *fakeResource) CurrentTime(context.Context) (time.Duration, error) { return 0, nil }
func (f *fakeResource) Close() error                                      { return nil }

type fakeGetter struct {
	pools map[string]*chain.ExecutorPool
}

func (g *fakeGetter) GetExecutorPool(name string) (*chain.ExecutorPool, error) {
	p, ok := g.pools[name]
	if !ok {
		return nil, apperr.New(apperr.KindNoData, "fakeGetter.GetExecutorPool", "unknown "+name)
	}
	return p, nil
}

func newFakeGetter(results map[string]valuemodel.Value, calls *[]call) *fakeGetter {
	p := pool.New[executor.Resource, context.Context]("conn", func(context.Context) (executor.Resource, error) {
		return &fakeResource{results: results, calls: calls}, nil
	}, 4)
	return &fakeGetter{pools: map[string]*chain.ExecutorPool{"conn": p}}
}

func columnResult(col string, rows []string) valuemodel.Value {
	vals := make([]valuemodel.Value, len(rows))
	for i, r := range rows {
		vals[i] = valuemodel.NewString(r)
	}
	return valuemodel.NewMap([]valuemodel.KV{{Key: col, Value: valuemodel.NewArray(vals)}})
}

func TestFirstStepUsesArgsOnly(t *testing.T) {
	var calls []call
	results := map[string]valuemodel.Value{
		"select 1 from t where x = $1": columnResult("id", []string{"a"}),
	}
	getter := newFakeGetter(results, &calls)

	steps := []plan.ChainStep{
		{
			ID:         "s1",
			Connection: "conn",
			Query:      "select 1 from t where x = $1",
			Args:       []plan.ChainArg{{Idx: 1, Data: "lit"}},
		},
	}

	out, err := chain.Run(context.Background(), steps, getter)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if len(calls) != 1 {
		t.Fatalf("want 1 call, got %d", len(calls))
	}
	if calls[0].params[0].Str != "lit" {
		t.Fatalf("want arg %q, got %q", "lit", calls[0].params[0].Str)
	}
	if out["s1"].Kind != valuemodel.KindMap {
		t.Fatalf("expected map result for s1")
	}
}

func TestFanOutOverPriorStepRows(t *testing.T) {
	var calls []call
	results := map[string]valuemodel.Value{
		"select ids":              columnResult("id", []string{"a", "b", "c"}),
		"select 1 where id = $1":  valuemodel.NewMap(nil),
	}
	getter := newFakeGetter(results, &calls)

	steps := []plan.ChainStep{
		{ID: "s1", Connection: "conn", Query: "select ids"},
		{
			ID:         "s2",
			Connection: "conn",
			Query:      "select 1 where id = $1",
			Bind:       []plan.ChainBind{{Idx: 1, RefID: "s1", Key: "id"}},
		},
	}

	_, err := chain.Run(context.Background(), steps, getter)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	// one call for s1, three for s2 (one per row of s1's id column)
	if len(calls) != 4 {
		t.Fatalf("want 4 calls, got %d", len(calls))
	}
	want := []string{"a", "b", "c"}
	for i, w := range want {
		got := calls[i+1].params[0].Str
		if got != w {
			t.Fatalf("call %d: want bound value %q, got %q", i+1, w, got)
		}
	}
}

func TestMissingRowResolvesToNull(t *testing.T) {
	var calls []call
	results := map[string]valuemodel.Value{
		"select ids":   columnResult("id", []string{"a"}),
		"use $1 and $2": valuemodel.NewMap(nil),
	}
	getter := newFakeGetter(results, &calls)

	row := 5
	steps := []plan.ChainStep{
		{ID: "s1", Connection: "conn", Query: "select ids"},
		{
			ID:         "s2",
			Connection: "conn",
			Query:      "use $1 and $2",
			Bind: []plan.ChainBind{
				{Idx: 1, RefID: "s1", Key: "id"},
				{Idx: 2, RefID: "s1", Key: "id", Row: &row},
			},
		},
	}

	_, err := chain.Run(context.Background(), steps, getter)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	last := calls[len(calls)-1]
	if !last.params[1].IsNull() {
		t.Fatalf("expected out-of-range row to resolve to Null, got %+v", last.params[1])
	}
}

func TestDuplicateIdxIsInvalidApiCall(t *testing.T) {
	var calls []call
	getter := newFakeGetter(nil, &calls)

	steps := []plan.ChainStep{
		{
			ID:         "s1",
			Connection: "conn",
			Query:      "q",
			Args:       []plan.ChainArg{{Idx: 1, Data: "x"}},
			Bind:       []plan.ChainBind{{Idx: 1, RefID: "other", Key: "k"}},
		},
	}

	_, err := chain.Run(context.Background(), steps, getter)
	if !apperr.Is(err, apperr.KindInvalidApiCall) {
		t.Fatalf("want KindInvalidApiCall, got %v", err)
	}
}

func TestOnlyLastIterationResultIsKept(t *testing.T) {
	var calls []call
	results := map[string]valuemodel.Value{
		"select ids":  columnResult("id", []string{"a", "b"}),
		"echo $1":     columnResult("echoed", []string{"whatever"}),
	}
	getter := newFakeGetter(results, &calls)

	steps := []plan.ChainStep{
		{ID: "s1", Connection: "conn", Query: "select ids"},
		{
			ID:         "s2",
			Connection: "conn",
			Query:      "echo $1",
			Bind:       []plan.ChainBind{{Idx: 1, RefID: "s1", Key: "id"}},
		},
	}

	out, err := chain.Run(context.Background(), steps, getter)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if out["s2"].Kind != valuemodel.KindMap {
		t.Fatalf("expected s2's kept result to be the fixture map")
	}
}
