package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
)

// ErrInvalidTTL 写入时未给出正的过期时间
var ErrInvalidTTL = errors.New("缓存过期时间必须大于0")

// Store 基于Redis的键值缓存，值以JSON保存
type Store struct {
	client *redis.Client
	prefix string
}

// Config Redis配置
type Config struct {
	Host     string
	Port     int
	Password string
	DB       int
	Prefix   string
}

// NewClient 创建Redis客户端
func NewClient(config *Config) *redis.Client {
	return redis.NewClient(&redis.Options{
		Addr:     fmt.Sprintf("%s:%d", config.Host, config.Port),
		Password: config.Password,
		DB:       config.DB,
	})
}

// NewStore 基于已有客户端创建缓存
func NewStore(client *redis.Client, prefix string) *Store {
	if prefix == "" {
		prefix = "tecnodash"
	}
	return &Store{
		client: client,
		prefix: prefix,
	}
}

// Close 关闭Redis连接
func (s *Store) Close() error {
	return s.client.Close()
}

// Ping 测试Redis连接
func (s *Store) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}

// Get 读取并反序列化，键不存在时返回 false
func (s *Store) Get(ctx context.Context, key string, dest interface{}) (bool, error) {
	data, err := s.client.Get(ctx, s.key(key)).Bytes()
	if errors.Is(err, redis.Nil) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("读取缓存失败 (key: %s): %w", key, err)
	}
	if err := json.Unmarshal(data, dest); err != nil {
		return false, fmt.Errorf("解析缓存内容失败 (key: %s): %w", key, err)
	}
	return true, nil
}

// Set 写入并设置过期时间，ttl 必须大于0
func (s *Store) Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error {
	if ttl <= 0 {
		return fmt.Errorf("%w (key: %s, ttl: %s)", ErrInvalidTTL, key, ttl)
	}
	data, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("序列化缓存内容失败: %w", err)
	}
	if err := s.client.Set(ctx, s.key(key), data, ttl).Err(); err != nil {
		return fmt.Errorf("写入缓存失败 (key: %s): %w", key, err)
	}
	return nil
}

// Update 覆盖已有键并保留剩余TTL，键不存在或已过期时返回 false
func (s *Store) Update(ctx context.Context, key string, value interface{}) (bool, error) {
	data, err := json.Marshal(value)
	if err != nil {
		return false, fmt.Errorf("序列化缓存内容失败: %w", err)
	}
	// SET key value KEEPTTL XX
	ok, err := s.client.SetXX(ctx, s.key(key), data, redis.KeepTTL).Result()
	if err != nil {
		return false, fmt.Errorf("更新缓存失败 (key: %s): %w", key, err)
	}
	return ok, nil
}

// Delete 删除键，返回是否确实删除了内容
func (s *Store) Delete(ctx context.Context, key string) (bool, error) {
	n, err := s.client.Del(ctx, s.key(key)).Result()
	if err != nil {
		return false, fmt.Errorf("删除缓存失败 (key: %s): %w", key, err)
	}
	return n > 0, nil
}

// TTL 剩余有效期，键不存在时返回 -2ns，没有过期时间时返回 -1ns
func (s *Store) TTL(ctx context.Context, key string) (time.Duration, error) {
	return s.client.TTL(ctx, s.key(key)).Result()
}

// GetClient 获取Redis客户端（用于高级操作）
func (s *Store) GetClient() *redis.Client {
	return s.client
}

func (s *Store) key(key string) string {
	return fmt.Sprintf("%s:%s", s.prefix, key)
}
