// Package postgresexec implements the Postgres-like executor.Resource using
// pgx/v5, grounded on the teacher's internal/infrastructure/postgres/db.go
// pool-config idiom (timeouts, connect config) but operating one raw
// *pgx.Conn per pooled resource since bounding is handled by
// internal/pool, not by pgxpool's own pool.
package postgresexec

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"

	"github.com/ErlanBelekov/dist-job-scheduler/internal/apperr"
	"github.com/ErlanBelekov/dist-job-scheduler/internal/executor"
	"github.com/ErlanBelekov/dist-job-scheduler/internal/plan"
	"github.com/ErlanBelekov/dist-job-scheduler/internal/valuemodel"
)

type resource struct {
	conn *pgx.Conn
}

// NewFactory builds an executor.Factory that dials one Postgres connection
// per call, per spec §4.6's Postgres-like cast rules ($N binding,
// BOOL/CHAR/VARCHAR/TEXT/FLOAT/NUMERIC/INT2/INT4/INT8/BYTEA).
func NewFactory(info plan.ConnectionInfo) executor.Factory {
	return func(ctx context.Context) (executor.Resource, error) {
		cfg, err := pgx.ParseConfig(fmt.Sprintf(
			"postgres://%s:%s@%s/%s",
			info.User, info.Password, info.Addr, info.ConnName,
		))
		if err != nil {
			return nil, apperr.Wrap(apperr.KindConnectionLost, "postgresexec.NewFactory", err)
		}
		if info.TimeoutSec > 0 {
			cfg.ConnectTimeout = time.Duration(info.TimeoutSec) * time.Second
		}

		conn, err := pgx.ConnectConfig(ctx, cfg)
		if err != nil {
			return nil, apperr.Wrap(apperr.KindConnectionLost, "postgresexec.NewFactory", err)
		}
		return &resource{conn: conn}, nil
	}
}

func (r *resource) Close() error { return r.conn.Close(context.Background()) }

func (r *resource) CurrentTime(ctx context.Context) (time.Duration, error) {
	var t time.Time
	if err := r.conn.QueryRow(ctx, "SELECT now()").Scan(&t); err != nil {
		return 0, apperr.Wrap(apperr.KindCommandRun, "postgresexec.CurrentTime", err)
	}
	return time.Duration(t.UnixNano()), nil
}

func (r *resource) Execute(ctx context.Context, cmd string, params []valuemodel.Value) (valuemodel.Value, error) {
	args := toPgArgs(params)

	rows, err := r.conn.Query(ctx, cmd, args...)
	if err != nil {
		return valuemodel.Value{}, apperr.Wrap(apperr.KindCommandRun, "postgresexec.Execute", err)
	}
	defer rows.Close()

	fields := rows.FieldDescriptions()
	columns := make([][]valuemodel.Value, len(fields))

	for rows.Next() {
		vals, err := rows.Values()
		if err != nil {
			return valuemodel.Value{}, apperr.Wrap(apperr.KindResponseScan, "postgresexec.Execute", err)
		}
		for i, v := range vals {
			cv, err := castColumn(fields[i].DataTypeOID, v)
			if err != nil {
				return valuemodel.Value{}, apperr.Wrap(apperr.KindResponseScan, "postgresexec.Execute", err)
			}
			columns[i] = append(columns[i], cv)
		}
	}
	if err := rows.Err(); err != nil {
		return valuemodel.Value{}, apperr.Wrap(apperr.KindResponseScan, "postgresexec.Execute", err)
	}

	kv := make([]valuemodel.KV, len(fields))
	for i, f := range fields {
		kv[i] = valuemodel.KV{Key: string(f.Name), Value: valuemodel.NewArray(columns[i])}
	}
	return valuemodel.NewMap(kv), nil
}

func toPgArgs(params []valuemodel.Value) []any {
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

// castColumn maps a pgx OID to a Value per spec §4.6's Postgres cast table.
func castColumn(oid uint32, v any) (valuemodel.Value, error) {
	if v == nil {
		return valuemodel.Null(), nil
	}
	switch oid {
	case pgtype.BoolOID:
		b, _ := v.(bool)
		return valuemodel.NewBool(b), nil
	case pgtype.BPCharOID, pgtype.VarcharOID, pgtype.TextOID:
		s, _ := v.(string)
		return valuemodel.NewString(s), nil
	case pgtype.Float4OID:
		f, _ := v.(float32)
		return valuemodel.NewDouble(float64(f)), nil
	case pgtype.Float8OID, pgtype.NumericOID:
		d, _ := toFloat64(v)
		return valuemodel.NewDouble(d), nil
	case pgtype.Int2OID, pgtype.Int4OID:
		i, _ := toInt64(v)
		return valuemodel.NewInt(int32(i)), nil
	case pgtype.Int8OID:
		i, _ := toInt64(v)
		return valuemodel.NewBigInt(i), nil
	case pgtype.ByteaOID:
		b, _ := v.([]byte)
		return valuemodel.NewBinary(b), nil
	default:
		return valuemodel.Value{}, apperr.New(apperr.KindResponseScan, "postgresexec.castColumn",
			fmt.Sprintf("unsupported oid %d", oid))
	}
}

func toInt64(v any) (int64, bool) {
	switch n := v.(type) {
	case int16:
		return int64(n), true
	case int32:
		return int64(n), true
	case int64:
		return n, true
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
