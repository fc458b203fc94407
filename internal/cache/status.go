// Package cache keeps terminal job views in Redis so repeated status polls
// skip the database.
package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/spigell/cv-evaluator/internal/evaluation"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

const (
	DefaultTTL = 10 * time.Minute
	keyPrefix  = "cv-evaluator:status:"
)

type Config struct {
	Enabled  bool          `mapstructure:"enabled"`
	Address  string        `mapstructure:"address"`
	Password string        `mapstructure:"password"`
	DB       int           `mapstructure:"db"`
	TTL      time.Duration `mapstructure:"ttl"`
}

// NewClient builds a Redis client from cfg and checks that it answers.
func NewClient(ctx context.Context, cfg Config) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{
		Addr:         cfg.Address,
		Password:     cfg.Password,
		DB:           cfg.DB,
		DialTimeout:  5 * time.Second,
		ReadTimeout:  3 * time.Second,
		WriteTimeout: 3 * time.Second,
	})

	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("redis ping failed: %w", err)
	}
	return client, nil
}

// StatusCache stores terminal views under a fixed key prefix.
type StatusCache struct {
	client redis.Cmdable
	ttl    time.Duration
	logger *zap.Logger
}

var _ evaluation.StatusCache = (*StatusCache)(nil)

func NewStatusCache(client redis.Cmdable, ttl time.Duration, log *zap.Logger) *StatusCache {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &StatusCache{client: client, ttl: ttl, logger: log}
}

func Key(id string) string {
	return keyPrefix + id
}

func (c *StatusCache) Get(ctx context.Context, id string) (evaluation.View, bool, error) {
	raw, err := c.client.Get(ctx, Key(id)).Bytes()
	if errors.Is(err, redis.Nil) {
		return evaluation.View{}, false, nil
	}
	if err != nil {
		return evaluation.View{}, false, fmt.Errorf("redis get %s: %w", id, err)
	}

	var view evaluation.View
	if err := json.Unmarshal(raw, &view); err != nil {
		return evaluation.View{}, false, fmt.Errorf("decode cached view %s: %w", id, err)
	}
	return view, true, nil
}

// Set caches view when it is terminal. Other views are ignored.
func (c *StatusCache) Set(ctx context.Context, view evaluation.View) error {
	if !view.Status.Terminal() || view.IsUnknown() {
		return nil
	}

	raw, err := json.Marshal(view)
	if err != nil {
		return fmt.Errorf("encode view %s: %w", view.ID, err)
	}
	if err := c.client.Set(ctx, Key(view.ID), raw, c.ttl).Err(); err != nil {
		return fmt.Errorf("redis set %s: %w", view.ID, err)
	}

	c.logger.Debug("cached terminal view", zap.String("job_id", view.ID), zap.String("status", string(view.Status)))
	return nil
}
