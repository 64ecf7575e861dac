// Package script defines the VM abstraction shared by the Lua and Python
// hosts (spec C8 / §4.5): something that can run one plan's script body
// against the injected pair_conn_exec/http_exec globals and return its
// result as a single valuemodel.Value.
package script

import (
	"context"

	"github.com/ErlanBelekov/dist-job-scheduler/internal/valuemodel"
)

// Runtime is a single script execution environment, pooled like an
// executor.Resource (internal/pool.Pool[Runtime, context.Context]).
type Runtime interface {
	// Run executes source against args, with conn giving the script's
	// pair_conn_exec builtin access to the registry's executor pools by
	// connection name.
	Run(ctx context.Context, source string, args []valuemodel.Value, conn ConnExecFunc) (valuemodel.Value, error)
	Close() error
}

// ConnExecFunc is the pair_conn_exec(conn_name, cmd, args) builtin's Go
// backing implementation, supplied by whatever wires the script host to
// the registry (spec §4.5).
type ConnExecFunc func(ctx context.Context, connName, cmd string, args []valuemodel.Value) (valuemodel.Value, error)
