package infrastructure

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"orderflow/internal/config"
	"orderflow/internal/infrastructure/postgres"
	"orderflow/internal/infrastructure/rabbit"
	"orderflow/internal/infrastructure/redis"

	"github.com/jackc/pgx/v5/pgxpool"
	go_redis "github.com/redis/go-redis/v9"
)

type Factory struct {
	cfg      *config.Config
	pgPool   *pgxpool.Pool
	redisCli *go_redis.Client
	rabbit   *rabbit.Client
}

func NewFactory(cfg *config.Config) *Factory {
	return &Factory{cfg: cfg}
}

// Postgres returns the shared pool, connecting with retries and creating
// the schema on first use.
func (f *Factory) Postgres(ctx context.Context) (*pgxpool.Pool, error) {
	if f.pgPool != nil {
		return f.pgPool, nil
	}

	var pool *pgxpool.Pool
	var err error

	for i := 0; i < 5; i++ {
		pool, err = postgres.NewClient(ctx, postgres.Config{
			Host:     f.cfg.Postgres.Host,
			Port:     f.cfg.Postgres.Port,
			User:     f.cfg.Postgres.User,
			Password: f.cfg.Postgres.Password,
			DBName:   f.cfg.Postgres.DBName,
		})
		if err == nil {
			break
		}
		slog.Warn("postgres connect failed, retrying", "attempt", i+1, "error", err)
		time.Sleep(2 * time.Second)
	}
	if err != nil {
		return nil, fmt.Errorf("init postgres after retries: %w", err)
	}

	if err := postgres.InitSchema(ctx, pool); err != nil {
		pool.Close()
		return nil, err
	}

	f.pgPool = pool
	return pool, nil
}

func (f *Factory) Redis(ctx context.Context) (*go_redis.Client, error) {
	if f.redisCli != nil {
		return f.redisCli, nil
	}

	client, err := redis.NewClient(ctx, redis.Config{
		Addr: f.cfg.Redis.Addr,
	})
	if err != nil {
		return nil, fmt.Errorf("init redis: %w", err)
	}

	f.redisCli = client
	return client, nil
}

// Rabbit returns the process-wide broker client with topology declared.
func (f *Factory) Rabbit(ctx context.Context) (*rabbit.Client, error) {
	if f.rabbit != nil {
		return f.rabbit, nil
	}

	client, err := rabbit.Connect(ctx, f.cfg.Rabbit.URL)
	if err != nil {
		return nil, err
	}

	f.rabbit = client
	return client, nil
}

func (f *Factory) Close() {
	if f.pgPool != nil {
		f.pgPool.Close()
	}
	if f.redisCli != nil {
		f.redisCli.Close()
	}
	if f.rabbit != nil {
		f.rabbit.Close()
	}
}
