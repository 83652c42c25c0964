// Package locks provee el candado exclusivo de las operaciones de reparación:
// Redis (bsm/redislock) cuando hay Redis configurado y un candado en proceso si no.
package locks

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/bsm/redislock"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/jhoicas/stock-ledger/internal/domain"
	"github.com/jhoicas/stock-ledger/pkg/config"
)

const keyPrefix = "stock-ledger:repair:"

// RedisLocker candado distribuido. Mientras se tiene, se renueva cada ttl/3; el TTL solo
// acota cuánto sobrevive el candado si el proceso muere.
type RedisLocker struct {
	client *redislock.Client
	ttl    time.Duration
	log    zerolog.Logger
}

// NewRedisLocker construye el candado sobre un cliente go-redis ya conectado.
func NewRedisLocker(rdb *redis.Client, ttl time.Duration, log zerolog.Logger) *RedisLocker {
	return &RedisLocker{client: redislock.New(rdb), ttl: ttl, log: log}
}

// Acquire obtiene el candado name sin esperar. Ocupado = domain.ErrRepairInProgress.
func (l *RedisLocker) Acquire(ctx context.Context, name string) (func(ctx context.Context) error, error) {
	lock, err := l.client.Obtain(ctx, keyPrefix+name, l.ttl, nil)
	if errors.Is(err, redislock.ErrNotObtained) {
		return nil, fmt.Errorf("%s: %w", name, domain.ErrRepairInProgress)
	}
	if err != nil {
		return nil, fmt.Errorf("obtain redis lock: %w", err)
	}

	stop := make(chan struct{})
	done := make(chan struct{})
	go l.keepAlive(name, lock, stop, done)

	var once sync.Once
	return func(ctx context.Context) error {
		once.Do(func() {
			close(stop)
			<-done
		})
		if err := lock.Release(ctx); err != nil && !errors.Is(err, redislock.ErrLockNotHeld) {
			return fmt.Errorf("release redis lock: %w", err)
		}
		return nil
	}, nil
}

// keepAlive renueva el TTL hasta que se cierre stop. Si una renovación falla el candado
// puede haberse perdido: se registra y se deja de renovar.
func (l *RedisLocker) keepAlive(name string, lock *redislock.Lock, stop <-chan struct{}, done chan<- struct{}) {
	defer close(done)
	interval := l.ttl / 3
	if interval <= 0 {
		interval = time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			ctx, cancel := context.WithTimeout(context.Background(), interval)
			err := lock.Refresh(ctx, l.ttl, nil)
			cancel()
			if err != nil {
				l.log.Error().Err(err).Str("lock", name).Msg("no se pudo renovar el candado de reparación")
				return
			}
		}
	}
}

// LocalLocker candado en proceso para una sola instancia (o sin Redis).
type LocalLocker struct {
	mu   sync.Mutex
	held map[string]bool
}

func NewLocalLocker() *LocalLocker {
	return &LocalLocker{held: make(map[string]bool)}
}

func (l *LocalLocker) Acquire(_ context.Context, name string) (func(ctx context.Context) error, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.held[name] {
		return nil, fmt.Errorf("%s: %w", name, domain.ErrRepairInProgress)
	}
	l.held[name] = true
	var once sync.Once
	return func(context.Context) error {
		once.Do(func() {
			l.mu.Lock()
			delete(l.held, name)
			l.mu.Unlock()
		})
		return nil
	}, nil
}

// NewRedisClient conecta a Redis y verifica con Ping. Dirección vacía = nil (sin Redis).
func NewRedisClient(ctx context.Context, cfg config.RedisConfig) (*redis.Client, error) {
	if cfg.Address == "" {
		return nil, nil
	}
	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.Address,
		Password: cfg.Password,
		DB:       cfg.DB,
	})
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("ping redis %s: %w", cfg.Address, err)
	}
	return rdb, nil
}
