package database

import (
	"sync"

	"tecnodash/pkg/cache"
	"tecnodash/pkg/config"
)

var (
	cacheInstance *cache.Store
	cacheOnce     sync.Once
)

// GetCache 获取Redis缓存的单例实例
func GetCache() *cache.Store {
	cacheOnce.Do(func() {
		cfg := config.GetConfig()
		client := cache.NewClient(&cache.Config{
			Host:     cfg.Redis.Host,
			Port:     cfg.Redis.Port,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		cacheInstance = cache.NewStore(client, cfg.Redis.Prefix)
	})
	return cacheInstance
}

// CloseCache 关闭Redis连接
func CloseCache() error {
	if cacheInstance != nil {
		return cacheInstance.Close()
	}
	return nil
}
