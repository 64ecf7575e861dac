// Package pyvm implements the Python script.Runtime using go-python/gpython,
// grounded on original_source's pipline/interpreter/src/interpreter/py's
// PY_INIT_CODE: a module-scoped worker pool bounded at python_worker_count
// (default 100) concurrent script bodies, a job map keyed by a generated id, and a poll loop that
// checks job completion rather than blocking the caller goroutine directly
// (the original used a ThreadPoolExecutor + uuid future map under the GIL;
// panjf2000/ants/v2 plays the same "bounded worker pool of script bodies"
// role here, since gpython scripts need no GIL serialization of their own).
package pyvm

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/panjf2000/ants/v2"

	"github.com/go-python/gpython/py"
	_ "github.com/go-python/gpython/stdlib"

	"github.com/ErlanBelekov/dist-job-scheduler/internal/apperr"
	"github.com/ErlanBelekov/dist-job-scheduler/internal/pool"
	"github.com/ErlanBelekov/dist-job-scheduler/internal/script"
	"github.com/ErlanBelekov/dist-job-scheduler/internal/valuemodel"
)

const (
	pollInterval = 50 * time.Millisecond
	maxRedirects = 10
)

// sharedWorkers is the module-scoped worker pool every VM submits script
// bodies to, mirroring PY_INIT_CODE's single te = ThreadPoolExecutor(
// max_workers=100) shared across the whole interpreter rather than
// per-VM-instance.
var (
	sharedWorkers     *ants.Pool
	sharedWorkersOnce sync.Once
)

func workers(maxWorkers int) *ants.Pool {
	sharedWorkersOnce.Do(func() {
		sharedWorkers, _ = ants.NewPool(maxWorkers)
	})
	return sharedWorkers
}

type pendingJob struct {
	done   atomic.Bool
	result valuemodel.Value
	err    error
}

// VM is one Python interpreter instance. Its globals persist across Run
// calls the way the original's global_map did.
type VM struct {
	globals py.StringDict
	jobs    sync.Map // string -> *pendingJob
	workers *ants.Pool
}

// New builds a Python interpreter rooted at scriptLib: if non-empty, it is
// prepended to sys.path the way PyInterpreterInitialization::init() adds
// "<lib>/python" (spec §4.5).
func New(scriptLib string, maxWorkers int) (*VM, error) {
	globals := py.NewStringDict()
	if scriptLib != "" {
		sysMod, err := py.Import(py.NewContext(py.DefaultContextOpts()), "sys")
		if err == nil {
			if pathAttr, err := py.GetAttrString(sysMod, "path"); err == nil {
				if pathList, ok := pathAttr.(*py.List); ok {
					pathList.Insert(0, py.String(scriptLib+"/python"))
				}
			}
		}
	}

	return &VM{globals: globals, workers: workers(maxWorkers)}, nil
}

func (v *VM) Close() error { return nil }

// Run submits source to the shared worker pool and polls every 50ms for
// completion, matching __internal_run_eval/__internal_await_done's async
// submit-then-poll shape — but surfaced synchronously here since
// script.Runtime.Run is a blocking call.
func (v *VM) Run(ctx context.Context, source string, args []valuemodel.Value, conn script.ConnExecFunc) (valuemodel.Value, error) {
	id := uuid.NewString()
	j := &pendingJob{}
	v.jobs.Store(id, j)
	defer v.jobs.Delete(id)

	v.globals["args"] = toPyList(args)
	v.globals["pair_conn_exec"] = py.MustNewMethod("pair_conn_exec", pairConnExec(ctx, conn), 0, "")
	v.globals["http_exec"] = py.MustNewMethod("http_exec", httpExec(ctx), 0, "")

	submitErr := v.workers.Submit(func() {
		pyCtx := py.NewContext(py.DefaultContextOpts())
		res, err := py.RunString(source, "<script>", py.ExecMode, v.globals, pyCtx)
		if err != nil {
			j.err = apperr.Wrap(apperr.KindThirdLibCallFail, "pyvm.Run", err)
			j.done.Store(true)
			return
		}
		j.result = fromPy(res)
		j.done.Store(true)
	})
	if submitErr != nil {
		return valuemodel.Value{}, apperr.Wrap(apperr.KindThirdLibCallFail, "pyvm.Run", submitErr)
	}

	ticker := time.NewTicker(pollInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return valuemodel.Value{}, apperr.Wrap(apperr.KindConnectionLost, "pyvm.Run", ctx.Err())
		case <-ticker.C:
			if j.done.Load() {
				return j.result, j.err
			}
		}
	}
}

func pairConnExec(ctx context.Context, conn script.ConnExecFunc) func(py.Tuple) (py.Object, error) {
	return func(args py.Tuple) (py.Object, error) {
		if len(args) < 2 {
			return nil, fmt.Errorf("pair_conn_exec requires (conn_name, cmd, args?)")
		}
		connName := fmt.Sprintf("%v", args[0])
		cmd := fmt.Sprintf("%v", args[1])

		var params []valuemodel.Value
		if len(args) > 2 {
			params = fromPyAny(args[2])
		}

		v, err := conn(ctx, connName, cmd, params)
		if err != nil {
			return nil, err
		}
		return toPyObject(v), nil
	}
}

// httpExec backs http_exec(method, url, headers=None, body=None), the same
// builtin luavm.httpExec injects, capped at the same 10 redirects (spec §10
// supplement) so both VM languages share one outbound-HTTP contract. headers
// is either a list of raw "Name: Value" strings or a name -> value dict.
func httpExec(ctx context.Context) func(py.Tuple) (py.Object, error) {
	return func(args py.Tuple) (py.Object, error) {
		if len(args) < 2 {
			return nil, fmt.Errorf("http_exec requires (method, url, headers?, body?)")
		}
		method := strings.ToUpper(fmt.Sprintf("%v", args[0]))
		url := fmt.Sprintf("%v", args[1])

		var bodyReader io.Reader
		if len(args) > 3 {
			if body, ok := args[3].(py.String); ok && len(body) > 0 {
				bodyReader = strings.NewReader(string(body))
			}
		}

		req, err := http.NewRequestWithContext(ctx, method, url, bodyReader)
		if err != nil {
			return nil, fmt.Errorf("http_exec: %w", err)
		}

		if len(args) > 2 {
			switch headers := args[2].(type) {
			case py.StringDict:
				for k, v := range headers {
					req.Header.Set(k, fmt.Sprintf("%v", v))
				}
			case *py.List:
				for _, e := range headers.Items {
					if name, val, ok := strings.Cut(fmt.Sprintf("%v", e), ":"); ok {
						req.Header.Set(strings.TrimSpace(name), strings.TrimSpace(val))
					}
				}
			}
		}

		client := &http.Client{
			CheckRedirect: func(_ *http.Request, via []*http.Request) error {
				if len(via) >= maxRedirects {
					return http.ErrUseLastResponse
				}
				return nil
			},
		}
		resp, err := client.Do(req)
		if err != nil {
			return nil, fmt.Errorf("http_exec: %w", err)
		}
		defer resp.Body.Close()

		data, err := io.ReadAll(resp.Body)
		if err != nil {
			return nil, fmt.Errorf("http_exec: %w", err)
		}

		return py.Tuple{py.Int(resp.StatusCode), py.String(data)}, nil
	}
}

func toPyList(vs []valuemodel.Value) py.Object {
	l := py.NewList()
	for _, v := range vs {
		l.Append(toPyObject(v))
	}
	return l
}

func toPyObject(v valuemodel.Value) py.Object {
	switch v.Kind {
	case valuemodel.KindNull:
		return py.None
	case valuemodel.KindBool:
		return py.Bool(v.Bool)
	case valuemodel.KindInt:
		return py.Int(v.Int)
	case valuemodel.KindBigInt:
		return py.Int(v.BigInt)
	case valuemodel.KindFloat:
		return py.Float(v.Float)
	case valuemodel.KindDouble:
		return py.Float(v.Double)
	case valuemodel.KindString:
		return py.String(v.Str)
	case valuemodel.KindBinary:
		return py.String(string(v.Bin))
	case valuemodel.KindArray:
		l := py.NewList()
		for _, e := range v.Arr {
			l.Append(toPyObject(e))
		}
		return l
	case valuemodel.KindMap:
		d := py.NewStringDict()
		for _, kv := range v.Map {
			d[kv.Key] = toPyObject(kv.Value)
		}
		return d
	default:
		return py.None
	}
}

func fromPy(o py.Object) valuemodel.Value {
	switch val := o.(type) {
	case py.NoneType:
		return valuemodel.Null()
	case py.Bool:
		return valuemodel.NewBool(bool(val))
	case py.Int:
		return valuemodel.NewBigInt(int64(val))
	case py.Float:
		return valuemodel.NewDouble(float64(val))
	case py.String:
		return valuemodel.NewString(string(val))
	case *py.List:
		vals := make([]valuemodel.Value, 0, val.Len())
		for _, e := range val.Items {
			vals = append(vals, fromPy(e))
		}
		return valuemodel.NewArray(vals)
	case py.StringDict:
		var kvs []valuemodel.KV
		for k, e := range val {
			kvs = append(kvs, valuemodel.KV{Key: k, Value: fromPy(e)})
		}
		return valuemodel.NewMap(kvs)
	default:
		return valuemodel.NewString(fmt.Sprintf("%v", o))
	}
}

func fromPyAny(o py.Object) []valuemodel.Value {
	if l, ok := o.(*py.List); ok {
		vals := make([]valuemodel.Value, 0, l.Len())
		for _, e := range l.Items {
			vals = append(vals, fromPy(e))
		}
		return vals
	}
	return []valuemodel.Value{fromPy(o)}
}

// Pool is the Python specialization of the interpreter pool (spec §9).
type Pool = pool.Pool[script.Runtime, context.Context]

// NewPool builds a bounded pool of Python VMs rooted at scriptLib, for
// registry.New's interpreterFactories map.
func NewPool(scriptLib string, maxWorkers, maxSize int) *Pool {
	gen := func(context.Context) (script.Runtime, error) {
		return New(scriptLib, maxWorkers)
	}
	return pool.New[script.Runtime, context.Context]("python", gen, maxSize)
}
