package auth

import (
	"context"
	"fmt"
	"sync"
	"time"
)

// PermissionCache 权限缓存
type PermissionCache struct {
	cache *sync.Map
	ttl   time.Duration
}

// cacheEntry 缓存条目
type cacheEntry struct {
	value     bool
	expiresAt time.Time
}

// NewPermissionCache 创建权限缓存
func NewPermissionCache(ttl time.Duration) *PermissionCache {
	return &PermissionCache{
		cache: &sync.Map{},
		ttl:   ttl,
	}
}

// Get 获取缓存
func (c *PermissionCache) Get(key string) (bool, bool) {
	val, found := c.cache.Load(key)
	if !found {
		return false, false
	}

	entry := val.(*cacheEntry)
	if time.Now().After(entry.expiresAt) {
		c.cache.Delete(key)
		return false, false
	}
	return entry.value, true
}

// Set 设置缓存
func (c *PermissionCache) Set(key string, value bool) {
	c.cache.Store(key, &cacheEntry{
		value:     value,
		expiresAt: time.Now().Add(c.ttl),
	})
}

// Delete 删除缓存
func (c *PermissionCache) Delete(key string) {
	c.cache.Delete(key)
}

// Clear 清空缓存
func (c *PermissionCache) Clear() {
	c.cache.Range(func(key, value interface{}) bool {
		c.cache.Delete(key)
		return true
	})
}

// CachedOpenFGAClient 带缓存的归属关系客户端
// 只缓存肯定结果，新建订单后的首次查询不会读到过期的否定结果
type CachedOpenFGAClient struct {
	client RelationStore
	cache  *PermissionCache
}

// NewCachedOpenFGAClient 创建带缓存的客户端
func NewCachedOpenFGAClient(client RelationStore, cache *PermissionCache) *CachedOpenFGAClient {
	return &CachedOpenFGAClient{
		client: client,
		cache:  cache,
	}
}

func cacheKey(userID, relation, objectType, objectID string) string {
	return fmt.Sprintf("user:%s:%s:%s:%s", userID, relation, objectType, objectID)
}

// CheckPermission 检查关系（带缓存）
func (c *CachedOpenFGAClient) CheckPermission(ctx context.Context, userID, relation, objectType, objectID string) (bool, error) {
	key := cacheKey(userID, relation, objectType, objectID)
	if value, found := c.cache.Get(key); found {
		return value, nil
	}

	allowed, err := c.client.CheckPermission(ctx, userID, relation, objectType, objectID)
	if err != nil {
		return false, err
	}
	if allowed {
		c.cache.Set(key, true)
	}
	return allowed, nil
}

// SetRelation 写入关系并更新缓存
func (c *CachedOpenFGAClient) SetRelation(ctx context.Context, userID, relation, objectType, objectID string) error {
	if err := c.client.SetRelation(ctx, userID, relation, objectType, objectID); err != nil {
		return err
	}
	c.cache.Set(cacheKey(userID, relation, objectType, objectID), true)
	return nil
}

// DeleteRelation 删除关系并清除缓存
func (c *CachedOpenFGAClient) DeleteRelation(ctx context.Context, userID, relation, objectType, objectID string) error {
	if err := c.client.DeleteRelation(ctx, userID, relation, objectType, objectID); err != nil {
		return err
	}
	c.cache.Delete(cacheKey(userID, relation, objectType, objectID))
	return nil
}
