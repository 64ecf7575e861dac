// Package luavm implements the Lua script.Runtime using yuin/gopher-lua,
// grounded on original_source's mypipline/src/interpreter/lua.rs
// (mlua-based): an injected connection-exec builtin plus a value
// conversion layer between the host's tagged Value and the VM's native
// values. gopher-lua stands in for mlua as the Go-ecosystem embedded Lua
// implementation.
package luavm

import (
	"context"
	"net/http"
	"io"
	"path/filepath"
	"strings"

	lua "github.com/yuin/gopher-lua"

	"github.com/ErlanBelekov/dist-job-scheduler/internal/apperr"
	"github.com/ErlanBelekov/dist-job-scheduler/internal/pool"
	"github.com/ErlanBelekov/dist-job-scheduler/internal/script"
	"github.com/ErlanBelekov/dist-job-scheduler/internal/valuemodel"
)

// Pool is the Lua specialization of the interpreter pool (spec §9).
type Pool = pool.Pool[script.Runtime, context.Context]

// NewPool builds a bounded pool of Lua VMs rooted at scriptDir, for
// registry.New's interpreterFactories map.
func NewPool(scriptDir string, maxSize int) *Pool {
	gen := func(context.Context) (script.Runtime, error) {
		return New(scriptDir)
	}
	return pool.New[script.Runtime, context.Context]("lua", gen, maxSize)
}

const (
	fnPairConnExec = "pair_conn_exec"
	fnHTTPExec     = "http_exec"
	maxRedirects   = 10
)

// VM is one Lua interpreter instance, one per pool.Handle borrow.
type VM struct {
	l         *lua.LState
	scriptDir string
}

// New builds a fresh Lua state with the package search path extended with
// <scriptDir>/lua/?.lua, matching the original interpreter's package-path
// setup for shared Lua modules. pair_conn_exec/http_exec are injected by
// each Run call, not here.
func New(scriptDir string) (*VM, error) {
	l := lua.NewState()

	if scriptDir != "" {
		pkg := l.GetField(l.Get(lua.EnvironIndex), "package")
		path := l.GetField(pkg, "path")
		extended := path.String() + ";" + filepath.Join(scriptDir, "lua", "?.lua")
		l.SetField(pkg, "path", lua.LString(extended))
	}

	return &VM{l: l, scriptDir: scriptDir}, nil
}

func (v *VM) Close() error {
	v.l.Close()
	return nil
}

// Run executes source as a Lua chunk against args (bound as the global
// table "args"), with conn backing pair_conn_exec and a plain net/http
// client backing http_exec. The chunk's return value is converted back to
// a Value.
func (v *VM) Run(ctx context.Context, source string, args []valuemodel.Value, conn script.ConnExecFunc) (valuemodel.Value, error) {
	v.l.SetGlobal("args", toLuaArray(v.l, args))
	v.l.SetGlobal(fnPairConnExec, v.l.NewFunction(pairConnExec(ctx, conn)))
	v.l.SetGlobal(fnHTTPExec, v.l.NewFunction(httpExec(ctx)))

	if err := v.l.DoString(source); err != nil {
		return valuemodel.Value{}, apperr.Wrap(apperr.KindThirdLibCallFail, "luavm.Run", err)
	}

	top := v.l.GetTop()
	if top == 0 {
		return valuemodel.Null(), nil
	}
	ret := v.l.Get(top)
	v.l.Pop(top)
	return fromLua(ret), nil
}

// pairConnExec backs pair_conn_exec(conn_name, cmd, args): it calls back
// into the registry through conn and returns the column-oriented result as
// a Lua table.
func pairConnExec(ctx context.Context, conn script.ConnExecFunc) lua.LGFunction {
	return func(l *lua.LState) int {
		connName := l.CheckString(1)
		cmd := l.CheckString(2)
		argTable := l.OptTable(3, l.NewTable())

		var args []valuemodel.Value
		argTable.ForEach(func(_, v lua.LValue) { args = append(args, fromLua(v)) })

		v, err := conn(ctx, connName, cmd, args)
		if err != nil {
			l.RaiseError("pair_conn_exec: %s", err.Error())
			return 0
		}
		l.Push(toLua(l, v))
		return 1
	}
}

// httpExec backs http_exec(method, url, headers?, body?), mirroring the
// 10-redirect cap the teacher's executor.go applies to outbound HTTP
// calls (spec §10 supplement). headers is either a list of raw
// "Name: Value" strings or a name -> value table.
func httpExec(ctx context.Context) lua.LGFunction {
	return func(l *lua.LState) int {
		method := strings.ToUpper(l.CheckString(1))
		url := l.CheckString(2)

		var bodyReader io.Reader
		if body := l.OptString(4, ""); body != "" {
			bodyReader = strings.NewReader(body)
		}

		req, err := http.NewRequestWithContext(ctx, method, url, bodyReader)
		if err != nil {
			l.RaiseError("http_exec: %s", err.Error())
			return 0
		}

		if headers := l.OptTable(3, nil); headers != nil {
			headers.ForEach(func(k, v lua.LValue) {
				if _, isIdx := k.(lua.LNumber); isIdx {
					if name, val, ok := strings.Cut(v.String(), ":"); ok {
						req.Header.Set(strings.TrimSpace(name), strings.TrimSpace(val))
					}
					return
				}
				req.Header.Set(k.String(), v.String())
			})
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
			l.RaiseError("http_exec: %s", err.Error())
			return 0
		}
		defer resp.Body.Close()

		data, err := io.ReadAll(resp.Body)
		if err != nil {
			l.RaiseError("http_exec: %s", err.Error())
			return 0
		}

		l.Push(lua.LNumber(resp.StatusCode))
		l.Push(lua.LString(data))
		return 2
	}
}

func toLuaArray(l *lua.LState, vs []valuemodel.Value) *lua.LTable {
	t := l.NewTable()
	for _, v := range vs {
		t.Append(toLua(l, v))
	}
	return t
}

func toLua(l *lua.LState, v valuemodel.Value) lua.LValue {
	switch v.Kind {
	case valuemodel.KindNull:
		return lua.LNil
	case valuemodel.KindBool:
		return lua.LBool(v.Bool)
	case valuemodel.KindInt:
		return lua.LNumber(v.Int)
	case valuemodel.KindBigInt:
		return lua.LNumber(v.BigInt)
	case valuemodel.KindFloat:
		return lua.LNumber(v.Float)
	case valuemodel.KindDouble:
		return lua.LNumber(v.Double)
	case valuemodel.KindString:
		return lua.LString(v.Str)
	case valuemodel.KindBinary:
		return lua.LString(string(v.Bin))
	case valuemodel.KindArray:
		t := l.NewTable()
		for _, e := range v.Arr {
			t.Append(toLua(l, e))
		}
		return t
	case valuemodel.KindMap:
		t := l.NewTable()
		for _, kv := range v.Map {
			t.RawSetString(kv.Key, toLua(l, kv.Value))
		}
		return t
	default:
		return lua.LNil
	}
}

func fromLua(lv lua.LValue) valuemodel.Value {
	switch val := lv.(type) {
	case *lua.LNilType:
		return valuemodel.Null()
	case lua.LBool:
		return valuemodel.NewBool(bool(val))
	case lua.LNumber:
		return valuemodel.NewDouble(float64(val))
	case lua.LString:
		return valuemodel.NewString(string(val))
	case *lua.LTable:
		return fromLuaTable(val)
	default:
		return valuemodel.NewString(lv.String())
	}
}

// fromLuaTable distinguishes an array-shaped table (1..n contiguous keys)
// from a map-shaped one, since Lua has only one table type for both.
func fromLuaTable(t *lua.LTable) valuemodel.Value {
	n := t.Len()
	isArray := n > 0
	t.ForEach(func(k, _ lua.LValue) {
		if num, ok := k.(lua.LNumber); !ok || int(num) < 1 || int(num) > n {
			isArray = false
		}
	})

	if isArray {
		vals := make([]valuemodel.Value, n)
		for i := 1; i <= n; i++ {
			vals[i-1] = fromLua(t.RawGetInt(i))
		}
		return valuemodel.NewArray(vals)
	}

	var kvs []valuemodel.KV
	t.ForEach(func(k, v lua.LValue) {
		kvs = append(kvs, valuemodel.KV{Key: k.String(), Value: fromLua(v)})
	})
	return valuemodel.NewMap(kvs)
}
