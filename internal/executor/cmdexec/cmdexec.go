// Package cmdexec implements the conn_type="cmd" executor.Resource: cmd is a
// shell command line run via os/exec rather than a query sent to a database
// (grounded on original_source's executor/types.rs, which pools a
// ShellSplit executor alongside the relational ones under the same trait).
// Output is reported as a single-column Map whose "stdout" array holds one
// String entry per line, so chain steps can bind against it like any other
// backend's result.
package cmdexec

import (
	"bufio"
	"bytes"
	"context"
	"os/exec"
	"strconv"
	"strings"
	"time"

	"github.com/ErlanBelekov/dist-job-scheduler/internal/apperr"
	"github.com/ErlanBelekov/dist-job-scheduler/internal/executor"
	"github.com/ErlanBelekov/dist-job-scheduler/internal/plan"
	"github.com/ErlanBelekov/dist-job-scheduler/internal/valuemodel"
)

type resource struct {
	shell string
}

// NewFactory builds an executor.Factory for the "cmd" backend. Addr names
// the shell to invoke commands through (e.g. "/bin/sh"); it is not dialed,
// so the factory never fails on its own.
func NewFactory(info plan.ConnectionInfo) executor.Factory {
	shell := info.Addr
	if shell == "" {
		shell = "/bin/sh"
	}
	return func(_ context.Context) (executor.Resource, error) {
		return &resource{shell: shell}, nil
	}
}

func (r *resource) Close() error { return nil }

func (r *resource) CurrentTime(_ context.Context) (time.Duration, error) {
	return time.Duration(time.Now().UnixNano()), nil
}

// Execute substitutes each "?" token in cmd, in order, with the shell-quoted
// form of the corresponding param and runs the result through r.shell -c.
func (r *resource) Execute(ctx context.Context, cmd string, params []valuemodel.Value) (valuemodel.Value, error) {
	line, err := bindPlaceholders(cmd, params)
	if err != nil {
		return valuemodel.Value{}, err
	}

	c := exec.CommandContext(ctx, r.shell, "-c", line)
	var stdout, stderr bytes.Buffer
	c.Stdout = &stdout
	c.Stderr = &stderr

	if err := c.Run(); err != nil {
		return valuemodel.Value{}, apperr.Wrap(apperr.KindCommandRun, "cmdexec.Execute",
			errWithStderr(err, stderr.String()))
	}

	var lines []valuemodel.Value
	sc := bufio.NewScanner(&stdout)
	for sc.Scan() {
		lines = append(lines, valuemodel.NewString(sc.Text()))
	}

	return valuemodel.NewMap([]valuemodel.KV{
		{Key: "stdout", Value: valuemodel.NewArray(lines)},
	}), nil
}

func bindPlaceholders(cmd string, params []valuemodel.Value) (string, error) {
	var b strings.Builder
	next := 0
	for i := 0; i < len(cmd); i++ {
		if cmd[i] == '?' {
			if next >= len(params) {
				return "", apperr.New(apperr.KindNotMatchArgs, "cmdexec.bindPlaceholders",
					"not enough params for placeholders")
			}
			b.WriteString(shellQuote(valueToString(params[next])))
			next++
			continue
		}
		b.WriteByte(cmd[i])
	}
	return b.String(), nil
}

func shellQuote(s string) string {
	return "'" + strings.ReplaceAll(s, "'", `'\''`) + "'"
}

func valueToString(v valuemodel.Value) string {
	switch v.Kind {
	case valuemodel.KindNull:
		return ""
	case valuemodel.KindBool:
		if v.Bool {
			return "true"
		}
		return "false"
	case valuemodel.KindInt:
		return intToString(int64(v.Int))
	case valuemodel.KindBigInt:
		return intToString(v.BigInt)
	case valuemodel.KindString:
		return v.Str
	default:
		return ""
	}
}

func intToString(n int64) string {
	return strconv.FormatInt(n, 10)
}

func errWithStderr(err error, stderr string) error {
	if stderr == "" {
		return err
	}
	return &stderrError{err: err, stderr: stderr}
}

type stderrError struct {
	err    error
	stderr string
}

func (e *stderrError) Error() string { return e.err.Error() + ": " + strings.TrimSpace(e.stderr) }
func (e *stderrError) Unwrap() error { return e.err }
