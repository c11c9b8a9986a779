// FilePath: internal/repository/redis/redis.mirror.go
package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/itsatony/emhub/internal/config"
	"github.com/itsatony/emhub/internal/models"
	goredis "github.com/redis/go-redis/v9"
	nuts "github.com/vaudience/go-nuts"
)

// Mirror keeps the latest reading and device address in Redis so a restart
// does not start from zero values.
type Mirror struct {
	client *goredis.Client
	prefix string
}

// NewMirror connects to Redis and verifies the connection.
func NewMirror(ctx context.Context, cfg config.RedisConfig) (*Mirror, error) {
	client := goredis.NewClient(&goredis.Options{
		Addr:     fmt.Sprintf("%s:%d", cfg.Host, cfg.Port),
		Password: cfg.Password,
		DB:       cfg.DB,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("error connecting to Redis: %w", err)
	}
	nuts.L.Infof("[Redis] Connected to %s:%d/%d", cfg.Host, cfg.Port, cfg.DB)
	return &Mirror{client: client, prefix: cfg.KeyPrefix}, nil
}

func (m *Mirror) key(name string) string {
	return m.prefix + name
}

func (m *Mirror) SaveSnapshot(ctx context.Context, r models.Reading) error {
	raw, err := json.Marshal(r)
	if err != nil {
		return err
	}
	return m.client.Set(ctx, m.key("snapshot"), raw, 0).Err()
}

func (m *Mirror) LoadSnapshot(ctx context.Context) (*models.Reading, error) {
	raw, err := m.client.Get(ctx, m.key("snapshot")).Bytes()
	if errors.Is(err, goredis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	r := &models.Reading{}
	if err := json.Unmarshal(raw, r); err != nil {
		return nil, fmt.Errorf("decode snapshot: %w", err)
	}
	return r, nil
}

func (m *Mirror) SaveDeviceAddress(ctx context.Context, addr string) error {
	return m.client.Set(ctx, m.key("device_address"), addr, 0).Err()
}

func (m *Mirror) LoadDeviceAddress(ctx context.Context) (string, error) {
	addr, err := m.client.Get(ctx, m.key("device_address")).Result()
	if errors.Is(err, goredis.Nil) {
		return "", nil
	}
	return addr, err
}

func (m *Mirror) Ping(ctx context.Context) error {
	return m.client.Ping(ctx).Err()
}

func (m *Mirror) Close() error {
	return m.client.Close()
}
