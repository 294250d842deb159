package state

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"catalogsync-backend/internal/catalog"

	"github.com/redis/go-redis/v9"
)

// Redis stores state as json values under a common key prefix.
type Redis struct {
	client *redis.Client
	prefix string
}

type RedisConfig struct {
	Addr     string `json:"addr"`
	Password string `json:"password"`
	DB       int    `json:"db"`
	Prefix   string `json:"prefix"`
}

func NewRedis(ctx context.Context, config RedisConfig) (*Redis, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     config.Addr,
		Password: config.Password,
		DB:       config.DB,
	})
	err := client.Ping(ctx).Err()
	if err != nil {
		client.Close()
		return nil, fmt.Errorf("ping redis: %w", err)
	}
	prefix := config.Prefix
	if prefix == "" {
		prefix = "catalogsync"
	}
	return &Redis{client: client, prefix: prefix}, nil
}

func (r *Redis) stateKey(key catalog.ProductKey) string {
	kind := "sku"
	if key.Derived {
		kind = "url"
	}
	return fmt.Sprintf("%s:state:%s:%s", r.prefix, kind, key.ID)
}

func (r *Redis) imageKey(sha256 string) string {
	return fmt.Sprintf("%s:image:%s", r.prefix, sha256)
}

func getJSON[T any](ctx context.Context, client *redis.Client, key string) (*T, error) {
	data, err := client.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var out T
	err = json.Unmarshal(data, &out)
	if err != nil {
		return nil, fmt.Errorf("decode %s: %w", key, err)
	}
	return &out, nil
}

func setJSON(ctx context.Context, client *redis.Client, key string, value any) error {
	data, err := json.Marshal(value)
	if err != nil {
		return err
	}
	return client.Set(ctx, key, data, 0).Err()
}

func (r *Redis) GetState(ctx context.Context, key catalog.ProductKey) (*catalog.StateRecord, error) {
	record, err := getJSON[catalog.StateRecord](ctx, r.client, r.stateKey(key))
	if record != nil {
		record.LastSeen = record.LastSeen.UTC()
	}
	return record, err
}

func (r *Redis) PutState(ctx context.Context, record catalog.StateRecord) error {
	return setJSON(ctx, r.client, r.stateKey(record.Key), record)
}

func (r *Redis) GetImageCache(ctx context.Context, sha256 string) (*catalog.ImageCacheEntry, error) {
	return getJSON[catalog.ImageCacheEntry](ctx, r.client, r.imageKey(sha256))
}

func (r *Redis) PutImageCache(ctx context.Context, entry catalog.ImageCacheEntry) error {
	return setJSON(ctx, r.client, r.imageKey(entry.SHA256), entry)
}

func (r *Redis) Close() error {
	return r.client.Close()
}
