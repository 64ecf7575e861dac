package pyvm_test

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/ErlanBelekov/dist-job-scheduler/internal/apperr"
	"github.com/ErlanBelekov/dist-job-scheduler/internal/script/pyvm"
	"github.com/ErlanBelekov/dist-job-scheduler/internal/valuemodel"
)

func TestRunExecutesWithoutError(t *testing.T) {
	vm, err := pyvm.New("", 4)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer vm.Close()

	if _, err := vm.Run(context.Background(), "1 + 1", nil, nil); err != nil {
		t.Fatalf("Run: %v", err)
	}
}

func TestRunExposesArgsGlobal(t *testing.T) {
	vm, err := pyvm.New("", 4)
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

	args := []valuemodel.Value{valuemodel.NewString("hello")}
	_, err = vm.Run(context.Background(), `pair_conn_exec("warehouse", args[0])`, args, conn)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if gotConn != "warehouse" || gotCmd != "hello" {
		t.Fatalf("conn callback got wrong args: conn=%q cmd=%q", gotConn, gotCmd)
	}
}

func TestPairConnExecCallsBackIntoConn(t *testing.T) {
	vm, err := pyvm.New("", 4)
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

	_, err = vm.Run(context.Background(), `pair_conn_exec("warehouse", "select 1")`, nil, conn)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if gotConn != "warehouse" || gotCmd != "select 1" {
		t.Fatalf("conn callback got wrong args: conn=%q cmd=%q", gotConn, gotCmd)
	}
}

func TestRunSyntaxErrorIsThirdLibCallFail(t *testing.T) {
	vm, err := pyvm.New("", 4)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer vm.Close()

	_, err = vm.Run(context.Background(), "this is not ( python {{{", nil, nil)
	if !apperr.Is(err, apperr.KindThirdLibCallFail) {
		t.Fatalf("expected a KindThirdLibCallFail error for invalid Python source, got %v", err)
	}
}

func TestHTTPExecRoundTrips(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTeapot)
		fmt.Fprint(w, "brewed")
	}))
	defer srv.Close()

	vm, err := pyvm.New("", 4)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer vm.Close()

	var gotCmd string
	conn := func(_ context.Context, _ string, cmd string, _ []valuemodel.Value) (valuemodel.Value, error) {
		gotCmd = cmd
		return valuemodel.NewString("ok"), nil
	}

	source := fmt.Sprintf(`
status, body = http_exec("GET", %q)
pair_conn_exec("probe", str(status) + ":" + body)
`, srv.URL)

	_, err = vm.Run(context.Background(), source, nil, conn)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if gotCmd != "418:brewed" {
		t.Fatalf("expected http_exec result %q, got %q", "418:brewed", gotCmd)
	}
}
