// Package scyllaexec implements the Scylla/Cassandra-like executor.Resource
// using gocql, per spec §4.6's cast rules (INT/TINYINT->Int, BIGINT->BigInt,
// BOOLEAN->Bool, BLOB->Binary, TEXT->String, FLOAT->Float, DOUBLE->Double;
// "?" positional binding).
package scyllaexec

import (
	"context"
	"fmt"
	"time"

	"github.com/gocql/gocql"

	"github.com/ErlanBelekov/dist-job-scheduler/internal/apperr"
	"github.com/ErlanBelekov/dist-job-scheduler/internal/executor"
	"github.com/ErlanBelekov/dist-job-scheduler/internal/plan"
	"github.com/ErlanBelekov/dist-job-scheduler/internal/valuemodel"
)

type resource struct {
	session *gocql.Session
}

// NewFactory builds an executor.Factory that opens one gocql session per
// call against the connection's configured host.
func NewFactory(info plan.ConnectionInfo) executor.Factory {
	return func(_ context.Context) (executor.Resource, error) {
		cluster := gocql.NewCluster(info.Addr)
		cluster.Keyspace = info.ConnName
		if info.User != "" {
			cluster.Authenticator = gocql.PasswordAuthenticator{
				Username: info.User,
				Password: info.Password,
			}
		}
		if info.TimeoutSec > 0 {
			cluster.Timeout = time.Duration(info.TimeoutSec) * time.Second
		}

		session, err := cluster.CreateSession()
		if err != nil {
			return nil, apperr.Wrap(apperr.KindConnectionLost, "scyllaexec.NewFactory", err)
		}
		return &resource{session: session}, nil
	}
}

func (r *resource) Close() error {
	r.session.Close()
	return nil
}

func (r *resource) CurrentTime(ctx context.Context) (time.Duration, error) {
	var ts int64
	if err := r.session.Query("SELECT toUnixTimestamp(now()) FROM system.local").
		WithContext(ctx).Scan(&ts); err != nil {
		return 0, apperr.Wrap(apperr.KindCommandRun, "scyllaexec.CurrentTime", err)
	}
	return time.Duration(ts) * time.Millisecond, nil
}

func (r *resource) Execute(ctx context.Context, cmd string, params []valuemodel.Value) (valuemodel.Value, error) {
	args := toCQLArgs(params)

	iter := r.session.Query(cmd, args...).WithContext(ctx).Iter()
	cols := iter.Columns()

	columns := make([][]valuemodel.Value, len(cols))
	row := make(map[string]any)
	for iter.MapScan(row) {
		for i, c := range cols {
			cv, err := castColumn(c.TypeInfo.Type(), row[c.Name])
			if err != nil {
				_ = iter.Close()
				return valuemodel.Value{}, apperr.Wrap(apperr.KindResponseScan, "scyllaexec.Execute", err)
			}
			columns[i] = append(columns[i], cv)
		}
		row = make(map[string]any)
	}
	if err := iter.Close(); err != nil {
		return valuemodel.Value{}, apperr.Wrap(apperr.KindCommandRun, "scyllaexec.Execute", err)
	}

	kv := make([]valuemodel.KV, len(cols))
	for i, c := range cols {
		kv[i] = valuemodel.KV{Key: c.Name, Value: valuemodel.NewArray(columns[i])}
	}
	return valuemodel.NewMap(kv), nil
}

func toCQLArgs(params []valuemodel.Value) []any {
	args := make([]any, len(params))
	for i, p := range params {
		switch p.Kind {
		case valuemodel.KindNull:
			args[i] = nil
		case valuemodel.KindBool:
			args[i] = p.Bool
		case valuemodel.KindInt:
			args[i] = p.Int
		case valuemodel.KindBigInt:
			args[i] = p.BigInt
		case valuemodel.KindFloat:
			args[i] = p.Float
		case valuemodel.KindDouble:
			args[i] = p.Double
		case valuemodel.KindString:
			args[i] = p.Str
		case valuemodel.KindBinary:
			args[i] = p.Bin
		default:
			args[i] = nil
		}
	}
	return args
}

func castColumn(t gocql.Type, v any) (valuemodel.Value, error) {
	if v == nil {
		return valuemodel.Null(), nil
	}
	switch t {
	case gocql.TypeInt, gocql.TypeTinyInt, gocql.TypeSmallInt:
		i, _ := toInt64(v)
		return valuemodel.NewInt(int32(i)), nil
	case gocql.TypeBigInt, gocql.TypeCounter, gocql.TypeVarint:
		i, _ := toInt64(v)
		return valuemodel.NewBigInt(i), nil
	case gocql.TypeBoolean:
		b, _ := v.(bool)
		return valuemodel.NewBool(b), nil
	case gocql.TypeBlob:
		b, _ := v.([]byte)
		return valuemodel.NewBinary(b), nil
	case gocql.TypeText, gocql.TypeVarchar, gocql.TypeAscii:
		s, _ := v.(string)
		return valuemodel.NewString(s), nil
	case gocql.TypeFloat:
		f, _ := v.(float32)
		return valuemodel.NewFloat(f), nil
	case gocql.TypeDouble:
		d, _ := v.(float64)
		return valuemodel.NewDouble(d), nil
	default:
		return valuemodel.Value{}, apperr.New(apperr.KindResponseScan, "scyllaexec.castColumn",
			fmt.Sprintf("unsupported cql type %v", t))
	}
}

func toInt64(v any) (int64, bool) {
	switch n := v.(type) {
	case int8:
		return int64(n), true
	case int16:
		return int64(n), true
	case int32:
		return int64(n), true
	case int64:
		return n, true
	case int:
		return int64(n), true
	default:
		return 0, false
	}
}
