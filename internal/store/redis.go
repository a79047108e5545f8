package store

import (
	"context"
	"time"

	goredis "github.com/redis/go-redis/v9"
	"github.com/vmihailenco/msgpack/v5"

	"botkv/pkg/logx"
)

// redisDriver keeps one hash per table under "<prefix>:<table>". Hash
// fields hold a small msgpack envelope around the value bytes so the
// stored-at instant survives alongside the payload.
type redisDriver struct {
	log    logx.Logger
	rdb    goredis.UniversalClient
	prefix string

	// closeClient is set only when this driver exclusively owns the
	// client.
	closeClient bool
}

type redisEnvelope struct {
	Value    []byte `msgpack:"v"`
	StoredAt int64  `msgpack:"at"` // unix milli
}

func newRedisDriver(rdb goredis.UniversalClient, prefix string, closeClient bool, log logx.Logger) *redisDriver {
	if prefix == "" {
		prefix = "botkv"
	}
	return &redisDriver{log: log, rdb: rdb, prefix: prefix, closeClient: closeClient}
}

func (d *redisDriver) Name() string { return "redis" }

func (d *redisDriver) hashKey(table string) string {
	return d.prefix + ":" + table
}

// Connect only verifies reachability; hashes materialize on first write.
func (d *redisDriver) Connect(ctx context.Context, _ []string) error {
	return d.rdb.Ping(ctx).Err()
}

func (d *redisDriver) Read(ctx context.Context, table, key string) ([]byte, bool, error) {
	b, err := d.rdb.HGet(ctx, d.hashKey(table), key).Bytes()
	if err == goredis.Nil {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	var env redisEnvelope
	if err := msgpack.Unmarshal(b, &env); err != nil {
		return nil, false, err
	}
	return env.Value, true, nil
}

func (d *redisDriver) ReadAll(ctx context.Context, table string) (map[string][]byte, error) {
	fields, err := d.rdb.HGetAll(ctx, d.hashKey(table)).Result()
	if err != nil {
		return nil, err
	}
	out := make(map[string][]byte, len(fields))
	for k, raw := range fields {
		var env redisEnvelope
		if err := msgpack.Unmarshal([]byte(raw), &env); err != nil {
			// Foreign or corrupt field; skip it rather than fail the scan.
			d.log.Warn("skipping undecodable hash field",
				logx.String("table", table), logx.String("key", k), logx.Err(err))
			continue
		}
		out[k] = env.Value
	}
	return out, nil
}

func (d *redisDriver) Write(ctx context.Context, table, key string, value []byte) error {
	b, err := msgpack.Marshal(redisEnvelope{Value: value, StoredAt: time.Now().UnixMilli()})
	if err != nil {
		return err
	}
	return d.rdb.HSet(ctx, d.hashKey(table), key, b).Err()
}

func (d *redisDriver) Remove(ctx context.Context, table string, keys []string) error {
	if len(keys) == 0 {
		return nil
	}
	return d.rdb.HDel(ctx, d.hashKey(table), keys...).Err()
}

func (d *redisDriver) RemoveAll(ctx context.Context, table string) error {
	return d.rdb.Del(ctx, d.hashKey(table)).Err()
}

func (d *redisDriver) Close() error {
	if d.closeClient {
		return d.rdb.Close()
	}
	return nil
}
