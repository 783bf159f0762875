package redis

import (
	"context"
	"fmt"
	"time"

	goredis "github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"classpilot/backend/config"
)

// Client Redis 客户端封装
// 当前用于确认提交的资源互斥锁；后续可扩展缓存等场景
type Client struct {
	rdb    *goredis.Client
	logger *zap.Logger
}

// NewClient 创建 Redis 连接并执行 Ping 健康检查
func NewClient(cfg *config.RedisConfig, logger *zap.Logger) (*Client, error) {
	rdb := goredis.NewClient(&goredis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := rdb.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("Redis 连接失败: %w", err)
	}

	logger.Info("Redis 连接成功", zap.String("addr", cfg.Addr))

	return &Client{rdb: rdb, logger: logger}, nil
}

// ── 确认提交资源锁 ──
//
// 确认一个候选组会预订教师与教室，真正的排他性由数据库的排它约束保证；
// 这里的锁只是快速失败通道：避免两个操作员同时走进事务后才发现冲突。

const confirmLockPrefix = "confirm:lock:"

// AcquireLock 尝试获取资源锁（SET NX），成功返回 true
func (c *Client) AcquireLock(ctx context.Context, resource string, ttl time.Duration) (bool, error) {
	return c.rdb.SetNX(ctx, confirmLockPrefix+resource, "1", ttl).Result()
}

// ReleaseLock 释放资源锁
func (c *Client) ReleaseLock(ctx context.Context, resource string) error {
	return c.rdb.Del(ctx, confirmLockPrefix+resource).Err()
}

// ── 速率限制 ──

// CheckRateLimit 固定窗口计数限流：窗口内第 limit+1 个请求开始拒绝
func (c *Client) CheckRateLimit(ctx context.Context, key string, limit int, window time.Duration) (bool, error) {
	count, err := c.rdb.Incr(ctx, key).Result()
	if err != nil {
		return false, err
	}
	if count == 1 {
		if err := c.rdb.Expire(ctx, key, window).Err(); err != nil {
			return false, err
		}
	}
	return count <= int64(limit), nil
}

// Close 关闭 Redis 连接
func (c *Client) Close() error {
	return c.rdb.Close()
}
