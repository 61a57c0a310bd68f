package imagecache

import (
	"context"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/renix-codex/feedsync/internal/logger"
)

const redisKeyPrefix = "feedsync:img:"

// RedisStorage shares images between processes. Each image is a hash with
// the content type and bytes, expiring after ttl.
type RedisStorage struct {
	client *redis.Client
	ttl    time.Duration
}

func NewRedisStorage(client *redis.Client, ttl time.Duration) *RedisStorage {
	return &RedisStorage{client: client, ttl: ttl}
}

// DialRedis connects and pings the server at addr.
func DialRedis(ctx context.Context, addr, password string, db int) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, err
	}
	return client, nil
}

func (s *RedisStorage) Get(ctx context.Context, url string) (Image, bool) {
	fields, err := s.client.HGetAll(ctx, redisKeyPrefix+url).Result()
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			logger.WarnCtx(ctx, "redis image lookup failed", logger.URL(url), logger.Err(err))
		}
		return Image{}, false
	}
	data, ok := fields["data"]
	if !ok {
		return Image{}, false
	}
	return Image{URL: url, Data: []byte(data), ContentType: fields["content_type"]}, true
}

func (s *RedisStorage) Set(ctx context.Context, img Image) {
	key := redisKeyPrefix + img.URL
	_, err := s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.HSet(ctx, key, "content_type", img.ContentType, "data", img.Data)
		if s.ttl > 0 {
			pipe.Expire(ctx, key, s.ttl)
		}
		return nil
	})
	if err != nil {
		logger.WarnCtx(ctx, "redis image store failed", logger.URL(img.URL), logger.Err(err))
	}
}

func (s *RedisStorage) Close() error {
	return s.client.Close()
}
