package repository

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/lvdashuaibi/pollchain/config"
	"github.com/lvdashuaibi/pollchain/internal/model"
)

const (
	// Redis键前缀
	ReceiptKey       = "receipt:"
	SummaryKey       = "integrity:summary:"
	AppendCounterKey = "integrity:appends:"

	// Lua脚本：原子地失效健康摘要缓存并累加追加计数，
	// 返回该投票活动自进程可见以来的追加总数
	InvalidateSummaryScript = `
		redis.call('DEL', KEYS[1])
		local count = redis.call('INCR', KEYS[2])
		return count
	`
)

type RedisRepository struct {
	client       *redis.Client
	ctx          context.Context
	scriptHashes map[string]string // 存储脚本SHA1哈希值
}

func NewRedisRepository() (*RedisRepository, error) {
	ctx := context.Background()

	client := redis.NewClient(&redis.Options{
		Addr:         config.AppConfig.Redis.DataAddress,
		Password:     config.AppConfig.Redis.Password,
		DB:           config.AppConfig.Redis.DB,
		PoolSize:     config.AppConfig.Redis.PoolSize,
		MaxRetries:   config.AppConfig.Redis.MaxRetries,
		DialTimeout:  config.AppConfig.Redis.Timeout,
		ReadTimeout:  config.AppConfig.Redis.Timeout,
		WriteTimeout: config.AppConfig.Redis.Timeout,
	})

	// 测试连接
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("Redis数据节点连接测试失败: %w", err)
	}

	repo := &RedisRepository{
		client:       client,
		ctx:          ctx,
		scriptHashes: make(map[string]string),
	}

	// 预加载Lua脚本
	if err := repo.preloadScripts(); err != nil {
		return nil, fmt.Errorf("预加载Lua脚本失败: %w", err)
	}

	return repo, nil
}

// preloadScripts 预加载所有Lua脚本
func (r *RedisRepository) preloadScripts() error {
	sha1, err := r.client.ScriptLoad(r.ctx, InvalidateSummaryScript).Result()
	if err != nil {
		return fmt.Errorf("加载摘要失效脚本失败: %w", err)
	}
	r.scriptHashes["invalidateSummary"] = sha1

	return nil
}

// GetReceipt 从缓存获取回执
func (r *RedisRepository) GetReceipt(receiptCode string) (*model.Receipt, bool, error) {
	key := ReceiptKey + receiptCode
	data, err := r.client.Get(r.ctx, key).Result()
	if err != nil {
		if err == redis.Nil {
			return nil, false, nil // 缓存未命中
		}
		return nil, false, fmt.Errorf("获取回执缓存失败: %w", err)
	}

	var receipt model.Receipt
	if err := json.Unmarshal([]byte(data), &receipt); err != nil {
		return nil, false, fmt.Errorf("解析回执缓存失败: %w", err)
	}

	return &receipt, true, nil
}

// SetReceipt 设置回执缓存。回执内容不可变，有效期1小时只为控制内存
func (r *RedisRepository) SetReceipt(receipt *model.Receipt) error {
	key := ReceiptKey + receipt.ReceiptCode
	data, err := json.Marshal(receipt)
	if err != nil {
		return fmt.Errorf("序列化回执失败: %w", err)
	}

	if err := r.client.Set(r.ctx, key, data, time.Hour).Err(); err != nil {
		return fmt.Errorf("设置回执缓存失败: %w", err)
	}

	return nil
}

// GetPollSummary 从缓存获取健康摘要
func (r *RedisRepository) GetPollSummary(pollID int64) (*model.HealthSummary, bool, error) {
	key := fmt.Sprintf("%s%d", SummaryKey, pollID)
	data, err := r.client.Get(r.ctx, key).Result()
	if err != nil {
		if err == redis.Nil {
			return nil, false, nil // 缓存未命中
		}
		return nil, false, fmt.Errorf("获取健康摘要缓存失败: %w", err)
	}

	var summary model.HealthSummary
	if err := json.Unmarshal([]byte(data), &summary); err != nil {
		return nil, false, fmt.Errorf("解析健康摘要缓存失败: %w", err)
	}

	return &summary, true, nil
}

// SetPollSummary 设置健康摘要缓存，TTL由配置决定
func (r *RedisRepository) SetPollSummary(summary *model.HealthSummary) error {
	key := fmt.Sprintf("%s%d", SummaryKey, summary.PollID)
	data, err := json.Marshal(summary)
	if err != nil {
		return fmt.Errorf("序列化健康摘要失败: %w", err)
	}

	ttl := config.AppConfig.Integrity.SummaryCacheTTL
	if ttl <= 0 {
		ttl = 30 * time.Second
	}

	if err := r.client.Set(r.ctx, key, data, ttl).Err(); err != nil {
		return fmt.Errorf("设置健康摘要缓存失败: %w", err)
	}

	return nil
}

// InvalidatePollSummary 使用预加载的Lua脚本原子失效摘要缓存并累加追加计数
func (r *RedisRepository) InvalidatePollSummary(pollID int64) (int64, error) {
	summaryKey := fmt.Sprintf("%s%d", SummaryKey, pollID)
	counterKey := fmt.Sprintf("%s%d", AppendCounterKey, pollID)

	sha1, ok := r.scriptHashes["invalidateSummary"]
	if !ok {
		return 0, fmt.Errorf("脚本未预加载")
	}

	result, err := r.client.EvalSha(r.ctx, sha1, []string{summaryKey, counterKey}).Result()
	if err != nil {
		// 如果脚本不存在，重新加载并再次尝试
		if err.Error() == "NOSCRIPT No matching script. Please use EVAL." {
			sha1, err = r.client.ScriptLoad(r.ctx, InvalidateSummaryScript).Result()
			if err != nil {
				return 0, fmt.Errorf("重新加载摘要失效脚本失败: %w", err)
			}
			r.scriptHashes["invalidateSummary"] = sha1

			result, err = r.client.EvalSha(r.ctx, sha1, []string{summaryKey, counterKey}).Result()
			if err != nil {
				return 0, fmt.Errorf("执行摘要失效脚本失败: %w", err)
			}
		} else {
			return 0, fmt.Errorf("执行摘要失效脚本失败: %w", err)
		}
	}

	count, ok := result.(int64)
	if !ok {
		return 0, fmt.Errorf("LUA脚本返回类型错误")
	}

	return count, nil
}

// Close 关闭Redis连接
func (r *RedisRepository) Close() error {
	return r.client.Close()
}
