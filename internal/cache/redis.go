package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/Domenick1991/railbooking/config"
	"github.com/Domenick1991/railbooking/internal/domain"
	"github.com/redis/go-redis/v9"
)

// RedisCache holds catalog reads. Seat counters never go through it.
type RedisCache struct {
	client     *redis.Client
	catalogTTL time.Duration
}

func NewRedisClient(cfg config.RedisConfig) *redis.Client {
	return redis.NewClient(&redis.Options{Addr: cfg.Addr, Password: cfg.Password, DB: cfg.DB})
}

func NewRedisCache(client *redis.Client, catalogTTL time.Duration) *RedisCache {
	return &RedisCache{
		client:     client,
		catalogTTL: catalogTTL,
	}
}

// GetTrainClasses returns nil, nil on a cache miss.
func (c *RedisCache) GetTrainClasses(ctx context.Context, trainID int64) ([]domain.TrainClass, error) {
	data, err := c.client.Get(ctx, trainClassesKey(trainID)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, nil
		}
		return nil, err
	}

	var classes []domain.TrainClass
	if err := json.Unmarshal(data, &classes); err != nil {
		return nil, err
	}
	return classes, nil
}

func (c *RedisCache) SetTrainClasses(ctx context.Context, trainID int64, classes []domain.TrainClass) error {
	payload, err := json.Marshal(classes)
	if err != nil {
		return err
	}
	return c.client.Set(ctx, trainClassesKey(trainID), payload, c.catalogTTL).Err()
}

func (c *RedisCache) InvalidateTrain(ctx context.Context, trainID int64) error {
	return c.client.Del(ctx, trainClassesKey(trainID)).Err()
}

func trainClassesKey(trainID int64) string {
	return fmt.Sprintf("cache:train:%d:classes", trainID)
}
