package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/jwebster45206/npc-quest-engine/internal/config"
	"github.com/jwebster45206/npc-quest-engine/pkg/state"
)

const (
	interactionKeyPrefix        = "interaction:"
	interactionVersionKeyPrefix = "interaction-version:"
)

// RedisStorage keeps one JSON document per user under interaction:{userID},
// and the last version issued under interaction-version:{userID}, which
// outlives a clear. Writes go through WATCH/MULTI on both keys so concurrent
// writers from several processes cannot lose updates.
type RedisStorage struct {
	client *redis.Client
	logger *slog.Logger
}

// Ensure RedisStorage implements Storage interface
var _ Storage = (*RedisStorage)(nil)

// NewRedisStorage creates a new Redis storage instance. redisURL may be a
// redis:// URL or a bare host:port.
func NewRedisStorage(redisURL string, logger *slog.Logger) (*RedisStorage, error) {
	opts, err := config.RedisOptions(redisURL)
	if err != nil {
		return nil, err
	}

	return &RedisStorage{
		client: redis.NewClient(opts),
		logger: logger,
	}, nil
}

func interactionKey(userID string) string {
	return interactionKeyPrefix + userID
}

func interactionVersionKey(userID string) string {
	return interactionVersionKeyPrefix + userID
}

// Health and lifecycle methods

func (r *RedisStorage) Ping(ctx context.Context) error {
	if err := r.client.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("%w: redis ping failed: %w", ErrUnavailable, err)
	}
	return nil
}

func (r *RedisStorage) Close() error {
	if err := r.client.Close(); err != nil {
		r.logger.Error("Failed to close Redis connection", "error", err)
		return err
	}
	r.logger.Info("Redis connection closed")
	return nil
}

func (r *RedisStorage) Backend() string { return "redis" }

func (r *RedisStorage) Durable() bool { return true }

// WaitForConnection waits for Redis to become available (used during startup)
func (r *RedisStorage) WaitForConnection(ctx context.Context, maxRetries int, retryDelay time.Duration) error {
	for i := 0; i < maxRetries; i++ {
		if err := r.Ping(ctx); err != nil {
			r.logger.Debug("Redis not ready yet", "error", err, "attempt", i+1)

			select {
			case <-ctx.Done():
				return fmt.Errorf("context cancelled while waiting for redis: %w", ctx.Err())
			case <-time.After(retryDelay):
				continue
			}
		}

		r.logger.Info("Redis connection established")
		return nil
	}

	return fmt.Errorf("%w: redis did not become available after %d attempts", ErrUnavailable, maxRetries)
}

// Interaction operations

type stringGetter interface {
	Get(ctx context.Context, key string) *redis.StringCmd
}

func loadInteraction(ctx context.Context, c stringGetter, key string) (*state.Interaction, error) {
	data, err := c.Get(ctx, key).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, nil // Return nil for not found
		}
		return nil, fmt.Errorf("%w: failed to load interaction: %w", ErrUnavailable, err)
	}

	var in state.Interaction
	if err := json.Unmarshal(data, &in); err != nil {
		return nil, fmt.Errorf("%w: failed to unmarshal interaction: %w", errEncoding, err)
	}
	return &in, nil
}

func loadVersionFloor(ctx context.Context, c stringGetter, key string) (int64, error) {
	v, err := c.Get(ctx, key).Int64()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return 0, nil
		}
		return 0, fmt.Errorf("%w: failed to load interaction version: %w", ErrUnavailable, err)
	}
	return v, nil
}

func (r *RedisStorage) GetInteraction(ctx context.Context, userID string) (*state.Interaction, error) {
	in, err := loadInteraction(ctx, r.client, interactionKey(userID))
	if err != nil {
		r.logger.Error("Failed to load interaction", "user_id", userID, "error", err)
		return nil, err
	}
	return in, nil
}

func (r *RedisStorage) SaveInteraction(ctx context.Context, in *state.Interaction) (*state.Interaction, error) {
	if in == nil {
		return nil, fmt.Errorf("%w: nil record", state.ErrInvalidInteraction)
	}
	return r.update(ctx, in.UserID, saveFunc(in), maxUpdateAttempts)
}

func (r *RedisStorage) PatchInteraction(ctx context.Context, userID string, p state.Patch) (*state.Interaction, error) {
	return r.update(ctx, userID, patchFunc(userID, p), maxUpdateAttempts)
}

func (r *RedisStorage) ClearInteraction(ctx context.Context, userID string) error {
	if _, err := r.update(ctx, userID, clearFunc, maxUpdateAttempts); err != nil {
		r.logger.Error("Failed to clear interaction", "user_id", userID, "error", err)
		return err
	}
	return nil
}

func (r *RedisStorage) SwapInteraction(ctx context.Context, userID string, expectedVersion int64, next *state.Interaction) (*state.Interaction, error) {
	return r.update(ctx, userID, swapFunc(expectedVersion, next), 1)
}

// update runs fn inside a WATCH transaction, retrying up to attempts times
// when another client touches either key first.
func (r *RedisStorage) update(ctx context.Context, userID string, fn updateFunc, attempts int) (*state.Interaction, error) {
	key := interactionKey(userID)
	vkey := interactionVersionKey(userID)

	for i := 0; i < attempts; i++ {
		var stored *state.Interaction

		err := r.client.Watch(ctx, func(tx *redis.Tx) error {
			cur, err := loadInteraction(ctx, tx, key)
			if err != nil {
				return err
			}
			floor, err := loadVersionFloor(ctx, tx, vkey)
			if err != nil {
				return err
			}
			next, err := fn(cur)
			if err != nil {
				return err
			}
			last := lastVersion(cur, floor)
			stored, err = prepare(userID, last, next)
			if err != nil {
				return err
			}

			var data []byte
			if stored != nil {
				if data, err = json.Marshal(stored); err != nil {
					return fmt.Errorf("%w: failed to marshal interaction: %w", errEncoding, err)
				}
			}

			_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
				if stored == nil {
					pipe.Del(ctx, key)
					if last > floor {
						pipe.Set(ctx, vkey, last, 0)
					}
					return nil
				}
				pipe.Set(ctx, key, data, 0)
				pipe.Set(ctx, vkey, stored.Version, 0)
				return nil
			})
			return err
		}, key, vkey)

		switch {
		case err == nil:
			return stored, nil
		case errors.Is(err, redis.TxFailedErr):
			r.logger.Debug("Interaction changed during write, retrying", "user_id", userID, "attempt", i+1)
			continue
		case errors.Is(err, ErrConflict), errors.Is(err, ErrUnavailable),
			errors.Is(err, state.ErrAmbiguousState), errors.Is(err, state.ErrInvalidInteraction),
			errors.Is(err, errEncoding):
			return nil, err
		default:
			r.logger.Error("Failed to write interaction", "user_id", userID, "error", err)
			return nil, fmt.Errorf("%w: failed to write interaction: %w", ErrUnavailable, err)
		}
	}

	return nil, ErrConflict
}
