// Package executor defines the uniform backend contract (spec C3 / C6): one
// execute(cmd, params) -> column-oriented Value, and one current_time() used
// by plans whose clock is the backend's own clock rather than wall-clock.
package executor

import (
	"context"
	"time"

	"github.com/ErlanBelekov/dist-job-scheduler/internal/valuemodel"
)

// Resource is one pooled backend connection/client. Implementations live in
// the postgresexec/scyllaexec/duckdbexec/redisexec/odbcexec/cmdexec
// sub-packages, one per conn_type in spec §4.2.
type Resource interface {
	// Execute runs cmd with positional params and returns a column-oriented
	// Map(column -> Array(rows)) value (redisexec returns its scalar reply
	// instead). Fails with ConnectionLost, CommandRun, ResponseScan or
	// NotMatchArgs; an unsupported column type is reported as ResponseScan.
	Execute(ctx context.Context, cmd string, params []valuemodel.Value) (valuemodel.Value, error)

	// CurrentTime returns the backend's own clock as a duration since the
	// Unix epoch, for plans whose interval.clock_source names this
	// connection.
	CurrentTime(ctx context.Context) (time.Duration, error)

	// Close releases the underlying client/connection. Called when a pool
	// discards this resource.
	Close() error
}

// Factory builds one Resource from a param; it is the shape pool.Generator
// specializes to for executor pools (spec §9's "executor pools produce
// executor resources from unit input").
type Factory func(ctx context.Context) (Resource, error)
