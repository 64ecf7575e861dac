package luavm_test

import (
	"context"
	"testing"

	"github.com/ErlanBelekov/dist-job-scheduler/internal/apperr"
	"github.com/ErlanBelekov/dist-job-scheduler/internal/script/luavm"
	"github.com/ErlanBelekov/dist-job-scheduler/internal/valuemodel"
)

func TestRunReturnsLastExpressionValue(t *testing.T) {
	vm, err := luavm.New("")
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer vm.Close()

	v, err := vm.Run(context.Background(), "return 1 + 1", nil, nil)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if v.Kind != valuemodel.KindDouble || v.Double != 2 {
		t.Fatalf("expected double 2, got %+v", v)
	}
}

func TestRunExposesArgsGlobal(t *testing.T) {
	vm, err := luavm.New("")
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer vm.Close()

	args := []valuemodel.Value{valuemodel.NewString("hello")}
	v, err := vm.Run(context.Background(), "return args[1]", args, nil)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if v.Kind != valuemodel.KindString || v.Str != "hello" {
		t.Fatalf("expected string hello, got %+v", v)
	}
}

func TestPairConnExecCallsBackIntoConn(t *testing.T) {
	vm, err := luavm.New("")
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer vm.Close()

	var gotConn, gotCmd string
	conn := func(_ context.Context, connName, cmd string, args []valuemodel.Value) (valuemodel.Value, error) {
		gotConn = connName
		gotCmd = cmd
		return valuemodel.NewString("ok"), nil
	}

	v, err := vm.Run(context.Background(), `return pair_conn_exec("warehouse", "select 1")`, nil, conn)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if gotConn != "warehouse" || gotCmd != "select 1" {
		t.Fatalf("conn callback got wrong args: conn=%q cmd=%q", gotConn, gotCmd)
	}
	if v.Kind != valuemodel.KindString || v.Str != "ok" {
		t.Fatalf("expected string ok, got %+v", v)
	}
}

func TestRunSyntaxErrorIsThirdLibCallFail(t *testing.T) {
	vm, err := luavm.New("")
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer vm.Close()

	_, err = vm.Run(context.Background(), "this is not lua {{{", nil, nil)
	if !apperr.Is(err, apperr.KindThirdLibCallFail) {
		t.Fatalf("expected a KindThirdLibCallFail error for invalid Lua source, got %v", err)
	}
}
