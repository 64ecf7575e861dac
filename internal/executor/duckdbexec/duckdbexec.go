// Package duckdbexec implements the DuckDB-like executor.Resource over
// database/sql using the marcboeker/go-duckdb driver (grounded on
// other_examples' apecloud-myduckserver duck_handler.go, which drives the
// same driver directly rather than through an ORM).
package duckdbexec

import (
	"context"
	"database/sql"
	"strings"
	"time"

	_ "github.com/marcboeker/go-duckdb"

	"github.com/ErlanBelekov/dist-job-scheduler/internal/apperr"
	"github.com/ErlanBelekov/dist-job-scheduler/internal/executor"
	"github.com/ErlanBelekov/dist-job-scheduler/internal/plan"
	"github.com/ErlanBelekov/dist-job-scheduler/internal/valuemodel"
)

type resource struct {
	db *sql.DB
}

// NewFactory builds an executor.Factory that opens one DuckDB handle per
// call. Addr is the database file path (":memory:" for an ephemeral plan).
func NewFactory(info plan.ConnectionInfo) executor.Factory {
	return func(ctx context.Context) (executor.Resource, error) {
		db, err := sql.Open("duckdb", info.Addr)
		if err != nil {
			return nil, apperr.Wrap(apperr.KindConnectionLost, "duckdbexec.NewFactory", err)
		}
		if err := db.PingContext(ctx); err != nil {
			_ = db.Close()
			return nil, apperr.Wrap(apperr.KindConnectionLost, "duckdbexec.NewFactory", err)
		}
		return &resource{db: db}, nil
	}
}

func (r *resource) Close() error { return r.db.Close() }

func (r *resource) CurrentTime(ctx context.Context) (time.Duration, error) {
	var t time.Time
	if err := r.db.QueryRowContext(ctx, "SELECT now()").Scan(&t); err != nil {
		return 0, apperr.Wrap(apperr.KindCommandRun, "duckdbexec.CurrentTime", err)
	}
	return time.Duration(t.UnixNano()), nil
}

func (r *resource) Execute(ctx context.Context, cmd string, params []valuemodel.Value) (valuemodel.Value, error) {
	args := toSQLArgs(params)

	rows, err := r.db.QueryContext(ctx, cmd, args...)
	if err != nil {
		return valuemodel.Value{}, apperr.Wrap(apperr.KindCommandRun, "duckdbexec.Execute", err)
	}
	defer rows.Close()

	colTypes, err := rows.ColumnTypes()
	if err != nil {
		return valuemodel.Value{}, apperr.Wrap(apperr.KindResponseScan, "duckdbexec.Execute", err)
	}
	names, err := rows.Columns()
	if err != nil {
		return valuemodel.Value{}, apperr.Wrap(apperr.KindResponseScan, "duckdbexec.Execute", err)
	}

	columns := make([][]valuemodel.Value, len(names))
	scanDest := make([]any, len(names))
	for i := range scanDest {
		scanDest[i] = new(any)
	}

	for rows.Next() {
		if err := rows.Scan(scanDest...); err != nil {
			return valuemodel.Value{}, apperr.Wrap(apperr.KindResponseScan, "duckdbexec.Execute", err)
		}
		for i, d := range scanDest {
			v := *(d.(*any))
			cv, err := castColumn(colTypes[i].DatabaseTypeName(), v)
			if err != nil {
				return valuemodel.Value{}, apperr.Wrap(apperr.KindResponseScan, "duckdbexec.Execute", err)
			}
			columns[i] = append(columns[i], cv)
		}
	}
	if err := rows.Err(); err != nil {
		return valuemodel.Value{}, apperr.Wrap(apperr.KindResponseScan, "duckdbexec.Execute", err)
	}

	kv := make([]valuemodel.KV, len(names))
	for i, n := range names {
		kv[i] = valuemodel.KV{Key: n, Value: valuemodel.NewArray(columns[i])}
	}
	return valuemodel.NewMap(kv), nil
}

func toSQLArgs(params []valuemodel.Value) []any {
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

func castColumn(dbType string, v any) (valuemodel.Value, error) {
	if v == nil {
		return valuemodel.Null(), nil
	}
	switch strings.ToUpper(dbType) {
	case "BOOLEAN":
		b, _ := v.(bool)
		return valuemodel.NewBool(b), nil
	case "VARCHAR", "TEXT":
		s, _ := v.(string)
		return valuemodel.NewString(s), nil
	case "FLOAT":
		f, _ := v.(float32)
		return valuemodel.NewFloat(f), nil
	case "DOUBLE", "DECIMAL", "NUMERIC":
		d, _ := toFloat64(v)
		return valuemodel.NewDouble(d), nil
	case "TINYINT", "SMALLINT", "INTEGER":
		i, _ := toInt64(v)
		return valuemodel.NewInt(int32(i)), nil
	case "BIGINT", "HUGEINT":
		i, _ := toInt64(v)
		return valuemodel.NewBigInt(i), nil
	case "BLOB":
		b, _ := v.([]byte)
		return valuemodel.NewBinary(b), nil
	default:
		return valuemodel.Value{}, apperr.New(apperr.KindResponseScan, "duckdbexec.castColumn",
			"unsupported duckdb type "+dbType)
	}
}

func toInt64(v any) (int64, bool) {
	switch n := v.(type) {
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

func toFloat64(v any) (float64, bool) {
	switch n := v.(type) {
	case float32:
		return float64(n), true
	case float64:
		return n, true
	default:
		return 0, false
	}
}
