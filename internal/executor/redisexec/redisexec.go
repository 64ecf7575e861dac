// Package redisexec implements the Redis-like executor.Resource using
// go-redis/v8 (grounded on oriys-nova's go.mod, which pins the same
// client). Unlike the SQL-shaped backends, a Redis command returns a scalar
// reply, not a column-oriented Map — chain steps that bind FROM a redis
// result are therefore not meaningful (spec §4.4 requires the bind source
// to be a Map); Redis steps are used as fan-out write targets instead
// (spec §8 scenario 3).
package redisexec

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/go-redis/redis/v8"

	"github.com/ErlanBelekov/dist-job-scheduler/internal/apperr"
	"github.com/ErlanBelekov/dist-job-scheduler/internal/executor"
	"github.com/ErlanBelekov/dist-job-scheduler/internal/plan"
	"github.com/ErlanBelekov/dist-job-scheduler/internal/valuemodel"
)

type resource struct {
	client *redis.Client
}

// NewFactory builds an executor.Factory that opens one redis.Client per
// call against the connection's addr/password.
func NewFactory(info plan.ConnectionInfo) executor.Factory {
	return func(ctx context.Context) (executor.Resource, error) {
		opts := &redis.Options{
			Addr:     info.Addr,
			Password: info.Password,
		}
		if info.TimeoutSec > 0 {
			opts.DialTimeout = time.Duration(info.TimeoutSec) * time.Second
		}
		client := redis.NewClient(opts)
		if err := client.Ping(ctx).Err(); err != nil {
			return nil, apperr.Wrap(apperr.KindConnectionLost, "redisexec.NewFactory", err)
		}
		return &resource{client: client}, nil
	}
}

func (r *resource) Close() error { return r.client.Close() }

func (r *resource) CurrentTime(ctx context.Context) (time.Duration, error) {
	t, err := r.client.Time(ctx).Result()
	if err != nil {
		return 0, apperr.Wrap(apperr.KindCommandRun, "redisexec.CurrentTime", err)
	}
	return time.Duration(t.UnixNano()), nil
}

// Execute tokenizes cmd on whitespace and substitutes each "?" placeholder,
// in order, with the next element of params — mirroring spec §4.6's "?"
// positional binding convention for this family of backends.
func (r *resource) Execute(ctx context.Context, cmd string, params []valuemodel.Value) (valuemodel.Value, error) {
	tokens := strings.Fields(cmd)
	args := make([]any, 0, len(tokens))
	next := 0
	for _, tok := range tokens {
		if tok == "?" {
			if next >= len(params) {
				return valuemodel.Value{}, apperr.New(apperr.KindNotMatchArgs, "redisexec.Execute",
					"not enough params for placeholders")
			}
			args = append(args, valueToRedisArg(params[next]))
			next++
			continue
		}
		args = append(args, tok)
	}

	reply, err := r.client.Do(ctx, args...).Result()
	if err != nil && err != redis.Nil {
		return valuemodel.Value{}, apperr.Wrap(apperr.KindCommandRun, "redisexec.Execute", err)
	}
	if err == redis.Nil {
		return valuemodel.Null(), nil
	}
	return replyToValue(reply), nil
}

func valueToRedisArg(v valuemodel.Value) any {
	switch v.Kind {
	case valuemodel.KindNull:
		return nil
	case valuemodel.KindBool:
		return v.Bool
	case valuemodel.KindInt:
		return v.Int
	case valuemodel.KindBigInt:
		return v.BigInt
	case valuemodel.KindFloat:
		return v.Float
	case valuemodel.KindDouble:
		return v.Double
	case valuemodel.KindString:
		return v.Str
	case valuemodel.KindBinary:
		return v.Bin
	default:
		return nil
	}
}

func replyToValue(reply any) valuemodel.Value {
	switch r := reply.(type) {
	case nil:
		return valuemodel.Null()
	case int64:
		return valuemodel.NewBigInt(r)
	case string:
		return valuemodel.NewString(r)
	case []byte:
		return valuemodel.NewBinary(r)
	case float64:
		return valuemodel.NewDouble(r)
	case []any:
		vals := make([]valuemodel.Value, len(r))
		for i, e := range r {
			vals[i] = replyToValue(e)
		}
		return valuemodel.NewArray(vals)
	default:
		return valuemodel.NewString(fmt.Sprintf("%v", r))
	}
}
