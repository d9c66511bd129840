/*
 * @Description: 内存缓存服务实现（用于 Redis 不可用时的降级方案）
 * @Author: 安知鱼
 * @Date: 2025-10-05 00:00:00
 * @LastEditTime: 2026-10-14 15:22:37
 * @LastEditors: 安知鱼
 */
package utility

import (
	"context"
	"fmt"
	"sync"
	"time"
)

// cacheItem 缓存项结构
type cacheItem struct {
	value      string
	expiration time.Time
	hasExpiry  bool
}

// isExpired 检查是否过期
func (item *cacheItem) isExpired(now time.Time) bool {
	if !item.hasExpiry {
		return false
	}
	return now.After(item.expiration)
}

// memoryCacheService 是基于内存的缓存服务实现
type memoryCacheService struct {
	data     sync.Map
	ticker   *time.Ticker
	done     chan struct{}
	stopOnce sync.Once
	now      func() time.Time
}

// NewMemoryCacheService 创建内存缓存服务实例
func NewMemoryCacheService() CacheService {
	return newMemoryCacheService(time.Minute)
}

func newMemoryCacheService(cleanupInterval time.Duration) *memoryCacheService {
	svc := &memoryCacheService{
		ticker: time.NewTicker(cleanupInterval),
		done:   make(chan struct{}),
		now:    time.Now,
	}

	// 启动后台清理任务
	go svc.cleanupExpired()

	return svc
}

// cleanupExpired 定期清理过期的缓存项
func (s *memoryCacheService) cleanupExpired() {
	for {
		select {
		case <-s.ticker.C:
			s.purge()
		case <-s.done:
			return
		}
	}
}

func (s *memoryCacheService) purge() {
	now := s.now()
	s.data.Range(func(key, value interface{}) bool {
		if item, ok := value.(*cacheItem); ok && item.isExpired(now) {
			s.data.Delete(key)
		}
		return true
	})
}

// Stop 停止清理任务
func (s *memoryCacheService) Stop() {
	s.stopOnce.Do(func() {
		s.ticker.Stop()
		close(s.done)
	})
}

// Set 设置缓存
func (s *memoryCacheService) Set(ctx context.Context, key string, value interface{}, expiration time.Duration) error {
	var str string
	switch v := value.(type) {
	case string:
		str = v
	case []byte:
		str = string(v)
	default:
		str = fmt.Sprintf("%v", value)
	}

	item := &cacheItem{
		value:     str,
		hasExpiry: expiration > 0,
	}
	if expiration > 0 {
		item.expiration = s.now().Add(expiration)
	}

	s.data.Store(key, item)
	return nil
}

// Get 获取缓存
func (s *memoryCacheService) Get(ctx context.Context, key string) (string, error) {
	value, ok := s.data.Load(key)
	if !ok {
		return "", nil // Key 不存在，返回空字符串
	}

	item, ok := value.(*cacheItem)
	if !ok {
		return "", nil
	}

	// 检查是否过期
	if item.isExpired(s.now()) {
		s.data.Delete(key)
		return "", nil
	}

	return item.value, nil
}

// Delete 删除缓存
func (s *memoryCacheService) Delete(ctx context.Context, keys ...string) error {
	for _, key := range keys {
		s.data.Delete(key)
	}
	return nil
}
