package table

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

// keySep joins key parts inside Redis keys and sorted-set members. It cannot
// appear in ids typed by a person.
const keySep = "\x1f"

const maxTxRetries = 3

type RedisConfig struct {
	Addr         string
	Password     string
	DB           int
	PoolSize     int
	MinIdleConns int
	MaxRetries   int
	DialTimeout  time.Duration
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	// KeyPrefix namespaces every key written for this table.
	KeyPrefix string
	// OpTimeout bounds a single backend call.
	OpTimeout time.Duration
}

func DefaultRedisConfig() *RedisConfig {
	return &RedisConfig{
		Addr:         "localhost:6379",
		Password:     "",
		DB:           0,
		PoolSize:     10,
		MinIdleConns: 5,
		MaxRetries:   3,
		DialTimeout:  5 * time.Second,
		ReadTimeout:  3 * time.Second,
		WriteTimeout: 3 * time.Second,
		KeyPrefix:    "mission-control",
		OpTimeout:    5 * time.Second,
	}
}

// NewRedisClient builds a client from config, shared by the backend and the
// job worker.
func NewRedisClient(config *RedisConfig) *redis.Client {
	if config == nil {
		config = DefaultRedisConfig()
	}
	return redis.NewClient(&redis.Options{
		Addr:         config.Addr,
		Password:     config.Password,
		DB:           config.DB,
		PoolSize:     config.PoolSize,
		MinIdleConns: config.MinIdleConns,
		MaxRetries:   config.MaxRetries,
		DialTimeout:  config.DialTimeout,
		ReadTimeout:  config.ReadTimeout,
		WriteTimeout: config.WriteTimeout,
	})
}

// RedisBackend stores each item as a hash. Every index partition is a sorted
// set whose members sort lexicographically by range value, and a registry
// set lists all item keys so scans never need KEYS.
//
// Writes run under WATCH/MULTI so the hash and its index members change
// together.
type RedisBackend struct {
	client  *redis.Client
	prefix  string
	timeout time.Duration
	indexes map[string]Index
}

func NewRedisBackend(config *RedisConfig, indexes ...Index) *RedisBackend {
	if config == nil {
		config = DefaultRedisConfig()
	}
	return NewRedisBackendWithClient(NewRedisClient(config), config.KeyPrefix, config.OpTimeout, indexes...)
}

func NewRedisBackendWithClient(client *redis.Client, prefix string, timeout time.Duration, indexes ...Index) *RedisBackend {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &RedisBackend{
		client:  client,
		prefix:  prefix,
		timeout: timeout,
		indexes: indexByName(indexes),
	}
}

func (r *RedisBackend) itemKey(key Key) string {
	return r.prefix + ":item:" + key.PK + keySep + key.SK
}

func (r *RedisBackend) registryKey() string {
	return r.prefix + ":keys"
}

func (r *RedisBackend) indexKey(ix Index, hash string) string {
	return r.prefix + ":idx:" + ix.Name + ":" + hash
}

func registryMember(key Key) string {
	return key.PK + keySep + key.SK
}

func indexMember(rng string, key Key) string {
	return rng + keySep + key.PK + keySep + key.SK
}

func parseIndexMember(member string) (Key, bool) {
	parts := strings.Split(member, keySep)
	if len(parts) < 3 {
		return Key{}, false
	}
	return Key{PK: parts[len(parts)-2], SK: parts[len(parts)-1]}, true
}

func (r *RedisBackend) Get(ctx context.Context, key Key) (Item, error) {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	data, err := r.client.HGetAll(ctx, r.itemKey(key)).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to get item: %w", err)
	}
	if len(data) == 0 {
		return nil, ErrItemNotFound
	}
	return Item(data), nil
}

func (r *RedisBackend) Put(ctx context.Context, item Item, cond Condition) error {
	if !item.valid() {
		return ErrInvalidItem
	}
	_, err := r.write(ctx, item.Key(), func(old Item) (Item, error) {
		if err := cond.check(old != nil); err != nil {
			return nil, err
		}
		return item.Clone(), nil
	})
	return err
}

func (r *RedisBackend) Update(ctx context.Context, key Key, set Item, remove []string) (Item, error) {
	return r.write(ctx, key, func(old Item) (Item, error) {
		if old == nil {
			return nil, ErrItemNotFound
		}
		return mergeItem(old, set, remove), nil
	})
}

func (r *RedisBackend) Delete(ctx context.Context, key Key) (bool, error) {
	existed := false
	_, err := r.write(ctx, key, func(old Item) (Item, error) {
		existed = old != nil
		return nil, nil
	})
	if err != nil {
		return false, err
	}
	return existed, nil
}

// write replaces the item at key with whatever fn returns (nil deletes) and
// moves its index members in the same MULTI block.
func (r *RedisBackend) write(ctx context.Context, key Key, fn func(old Item) (Item, error)) (Item, error) {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	ik := r.itemKey(key)
	var result Item

	txf := func(tx *redis.Tx) error {
		data, err := tx.HGetAll(ctx, ik).Result()
		if err != nil {
			return err
		}
		var old Item
		if len(data) > 0 {
			old = Item(data)
		}

		next, err := fn(old)
		if err != nil {
			return err
		}

		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			r.unindex(ctx, pipe, key, old)
			pipe.Del(ctx, ik)
			if next == nil {
				pipe.ZRem(ctx, r.registryKey(), registryMember(key))
				return nil
			}
			fields := make(map[string]interface{}, len(next))
			for k, v := range next {
				fields[k] = v
			}
			pipe.HSet(ctx, ik, fields)
			pipe.ZAdd(ctx, r.registryKey(), redis.Z{Member: registryMember(key)})
			r.index(ctx, pipe, key, next)
			return nil
		})
		if err == nil {
			result = next
		}
		return err
	}

	for i := 0; i < maxTxRetries; i++ {
		err := r.client.Watch(ctx, txf, ik)
		if errors.Is(err, redis.TxFailedErr) {
			continue
		}
		if err != nil {
			if errors.Is(err, ErrItemNotFound) || errors.Is(err, ErrConditionFailed) {
				return nil, err
			}
			return nil, fmt.Errorf("failed to write item %s: %w", key.PK, err)
		}
		return result.Clone(), nil
	}
	return nil, fmt.Errorf("failed to write item %s: %w", key.PK, redis.TxFailedErr)
}

func (r *RedisBackend) index(ctx context.Context, pipe redis.Pipeliner, key Key, it Item) {
	for _, ix := range r.indexes {
		if hash, rng, ok := ix.entry(it); ok {
			pipe.ZAdd(ctx, r.indexKey(ix, hash), redis.Z{Member: indexMember(rng, key)})
		}
	}
}

func (r *RedisBackend) unindex(ctx context.Context, pipe redis.Pipeliner, key Key, it Item) {
	for _, ix := range r.indexes {
		if hash, rng, ok := ix.entry(it); ok {
			pipe.ZRem(ctx, r.indexKey(ix, hash), indexMember(rng, key))
		}
	}
}

func (r *RedisBackend) Query(ctx context.Context, index string, hashValue string, opts QueryOptions) ([]Item, error) {
	ix, ok := r.indexes[index]
	if !ok {
		return nil, ErrUnknownIndex
	}
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	by := &redis.ZRangeBy{Min: "-", Max: "+"}
	if opts.Limit > 0 {
		by.Count = int64(opts.Limit)
	}
	var members []string
	var err error
	if opts.Descending {
		members, err = r.client.ZRevRangeByLex(ctx, r.indexKey(ix, hashValue), by).Result()
	} else {
		members, err = r.client.ZRangeByLex(ctx, r.indexKey(ix, hashValue), by).Result()
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query index %s: %w", index, err)
	}

	keys := make([]Key, 0, len(members))
	for _, m := range members {
		if k, ok := parseIndexMember(m); ok {
			keys = append(keys, k)
		}
	}
	return r.fetch(ctx, keys)
}

func (r *RedisBackend) Scan(ctx context.Context) ([]Item, error) {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	members, err := r.client.ZRange(ctx, r.registryKey(), 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to scan table: %w", err)
	}
	keys := make([]Key, 0, len(members))
	for _, m := range members {
		pk, sk, ok := strings.Cut(m, keySep)
		if !ok {
			continue
		}
		keys = append(keys, Key{PK: pk, SK: sk})
	}
	return r.fetch(ctx, keys)
}

// fetch loads items in one pipeline. Keys whose hash vanished between the
// index read and the fetch are skipped.
func (r *RedisBackend) fetch(ctx context.Context, keys []Key) ([]Item, error) {
	if len(keys) == 0 {
		return nil, nil
	}
	cmds := make([]*redis.MapStringStringCmd, len(keys))
	_, err := r.client.Pipelined(ctx, func(pipe redis.Pipeliner) error {
		for i, k := range keys {
			cmds[i] = pipe.HGetAll(ctx, r.itemKey(k))
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to fetch items: %w", err)
	}

	out := make([]Item, 0, len(keys))
	for _, cmd := range cmds {
		data, err := cmd.Result()
		if err != nil {
			return nil, fmt.Errorf("failed to fetch item: %w", err)
		}
		if len(data) > 0 {
			out = append(out, Item(data))
		}
	}
	return out, nil
}

func (r *RedisBackend) Ping(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()

	return r.client.Ping(ctx).Err()
}

func (r *RedisBackend) Close() error {
	return r.client.Close()
}
