// Package odbcexec implements the ODBC executor.Resource over database/sql
// using alexbrainman/odbc. ODBC has no backend-native "now()" convention, so
// spec §4.2/§6 has connections carry an explicit current_time_query plus the
// column name to read the answer from.
package odbcexec

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	_ "github.com/alexbrainman/odbc"

	"github.com/ErlanBelekov/dist-job-scheduler/internal/apperr"
	"github.com/ErlanBelekov/dist-job-scheduler/internal/executor"
	"github.com/ErlanBelekov/dist-job-scheduler/internal/plan"
	"github.com/ErlanBelekov/dist-job-scheduler/internal/valuemodel"
)

type resource struct {
	db   *sql.DB
	odbc plan.ODBCInfo
}

// NewFactory builds an executor.Factory that opens one ODBC handle per call
// using the connection's driver/server/credentials.
func NewFactory(info plan.ConnectionInfo) executor.Factory {
	return func(ctx context.Context) (executor.Resource, error) {
		if info.ODBC == nil {
			return nil, apperr.New(apperr.KindInvalidApiCall, "odbcexec.NewFactory", "missing [odbc] section")
		}
		dsn := fmt.Sprintf("DRIVER={%s};SERVER=%s;DATABASE=%s;UID=%s;PWD=%s",
			info.ODBC.Driver, info.Addr, info.ConnName, info.User, info.Password)

		db, err := sql.Open("odbc", dsn)
		if err != nil {
			return nil, apperr.Wrap(apperr.KindConnectionLost, "odbcexec.NewFactory", err)
		}
		if err := db.PingContext(ctx); err != nil {
			_ = db.Close()
			return nil, apperr.Wrap(apperr.KindConnectionLost, "odbcexec.NewFactory", err)
		}
		return &resource{db: db, odbc: *info.ODBC}, nil
	}
}

func (r *resource) Close() error { return r.db.Close() }

func (r *resource) CurrentTime(ctx context.Context) (time.Duration, error) {
	if r.odbc.CurrentTimeQuery == "" {
		return time.Duration(time.Now().UnixNano()), nil
	}

	rows, err := r.db.QueryContext(ctx, r.odbc.CurrentTimeQuery)
	if err != nil {
		return 0, apperr.Wrap(apperr.KindCommandRun, "odbcexec.CurrentTime", err)
	}
	defer rows.Close()

	names, err := rows.Columns()
	if err != nil {
		return 0, apperr.Wrap(apperr.KindResponseScan, "odbcexec.CurrentTime", err)
	}
	colIdx := 0
	for i, n := range names {
		if n == r.odbc.CurrentTimeColName {
			colIdx = i
			break
		}
	}

	dest := make([]any, len(names))
	for i := range dest {
		dest[i] = new(any)
	}
	if !rows.Next() {
		return 0, apperr.New(apperr.KindResponseScan, "odbcexec.CurrentTime", "current_time_query returned no rows")
	}
	if err := rows.Scan(dest...); err != nil {
		return 0, apperr.Wrap(apperr.KindResponseScan, "odbcexec.CurrentTime", err)
	}

	v := *(dest[colIdx].(*any))
	switch t := v.(type) {
	case time.Time:
		return time.Duration(t.UnixNano()), nil
	case int64:
		return time.Duration(t) * time.Millisecond, nil
	default:
		return 0, apperr.New(apperr.KindResponseScan, "odbcexec.CurrentTime", "unsupported current_time column type")
	}
}

func (r *resource) Execute(ctx context.Context, cmd string, params []valuemodel.Value) (valuemodel.Value, error) {
	args := toSQLArgs(params)

	rows, err := r.db.QueryContext(ctx, cmd, args...)
	if err != nil {
		return valuemodel.Value{}, apperr.Wrap(apperr.KindCommandRun, "odbcexec.Execute", err)
	}
	defer rows.Close()

	names, err := rows.Columns()
	if err != nil {
		return valuemodel.Value{}, apperr.Wrap(apperr.KindResponseScan, "odbcexec.Execute", err)
	}
	colTypes, err := rows.ColumnTypes()
	if err != nil {
		return valuemodel.Value{}, apperr.Wrap(apperr.KindResponseScan, "odbcexec.Execute", err)
	}

	columns := make([][]valuemodel.Value, len(names))
	dest := make([]any, len(names))
	for i := range dest {
		dest[i] = new(any)
	}

	for rows.Next() {
		if err := rows.Scan(dest...); err != nil {
			return valuemodel.Value{}, apperr.Wrap(apperr.KindResponseScan, "odbcexec.Execute", err)
		}
		for i, d := range dest {
			cv, err := castColumn(colTypes[i].DatabaseTypeName(), *(d.(*any)))
			if err != nil {
				return valuemodel.Value{}, apperr.Wrap(apperr.KindResponseScan, "odbcexec.Execute", err)
			}
			columns[i] = append(columns[i], cv)
		}
	}
	if err := rows.Err(); err != nil {
		return valuemodel.Value{}, apperr.Wrap(apperr.KindResponseScan, "odbcexec.Execute", err)
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
	case "BIT", "BOOLEAN":
		b, _ := v.(bool)
		return valuemodel.NewBool(b), nil
	case "VARCHAR", "CHAR", "TEXT", "NVARCHAR":
		s, _ := v.(string)
		return valuemodel.NewString(s), nil
	case "REAL":
		f, _ := v.(float32)
		return valuemodel.NewFloat(f), nil
	case "FLOAT", "DOUBLE", "DECIMAL", "NUMERIC":
		d, _ := toFloat64(v)
		return valuemodel.NewDouble(d), nil
	case "SMALLINT", "TINYINT", "INTEGER", "INT":
		i, _ := toInt64(v)
		return valuemodel.NewInt(int32(i)), nil
	case "BIGINT":
		i, _ := toInt64(v)
		return valuemodel.NewBigInt(i), nil
	case "BINARY", "VARBINARY":
		b, _ := v.([]byte)
		return valuemodel.NewBinary(b), nil
	default:
		return valuemodel.Value{}, apperr.New(apperr.KindResponseScan, "odbcexec.castColumn",
			"unsupported odbc type "+dbType)
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
