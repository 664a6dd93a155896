package tokenstore

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	sessionKeyPrefix = "ups"
	deviceKeyPrefix  = "upd"

	// Device records outlive the session that created them; a
	// remembered device is only useful across sign-ins.
	deviceRecordTTL = 0
)

// RedisStore keeps cached sessions and device records in Redis with a
// TTL derived from the session's token expiry.
//
// RedisStore instances are intended to be configured during initialization and then treated as immutable unless documented otherwise.
type RedisStore struct {
	redis  *redis.Client
	prefix string
}

// NewRedisStore creates a [Store] over the given client. prefix scopes
// every key and may be empty.
func NewRedisStore(client *redis.Client, prefix string) *RedisStore {
	return &RedisStore{redis: client, prefix: prefix}
}

func (s *RedisStore) sessionKey(username string) string {
	return s.prefix + sessionKeyPrefix + ":" + username
}

func (s *RedisStore) deviceKey(username string) string {
	return s.prefix + deviceKeyPrefix + ":" + username
}

// Cache describes the cache operation and its observable behavior.
//
// Cache persists the session (and, when present, the device record)
// before returning; a nil error means the handoff is durable.
func (s *RedisStore) Cache(ctx context.Context, session *CachedSession, device *DeviceMetadata) error {
	encoded, err := encodeSession(session)
	if err != nil {
		return err
	}

	ttl := time.Until(time.Unix(session.ExpiresAt, 0))
	if ttl <= 0 {
		ttl = time.Minute
	}

	pipe := s.redis.TxPipeline()
	pipe.Set(ctx, s.sessionKey(session.Username), encoded, ttl)
	if device != nil {
		deviceEncoded, err := encodeDevice(device)
		if err != nil {
			return err
		}
		pipe.Set(ctx, s.deviceKey(session.Username), deviceEncoded, deviceRecordTTL)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("%w: %v", ErrBackendUnavailable, err)
	}
	return nil
}

// Load describes the load operation and its observable behavior.
func (s *RedisStore) Load(ctx context.Context, username string) (*CachedSession, error) {
	data, err := s.redis.Get(ctx, s.sessionKey(username)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, ErrSessionNotCached
		}
		return nil, fmt.Errorf("%w: %v", ErrBackendUnavailable, err)
	}
	return decodeSession(data)
}

// Clear describes the clear operation and its observable behavior.
func (s *RedisStore) Clear(ctx context.Context, username string) error {
	if err := s.redis.Del(ctx, s.sessionKey(username)).Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrBackendUnavailable, err)
	}
	return nil
}

// GetDevice describes the getdevice operation and its observable behavior.
func (s *RedisStore) GetDevice(ctx context.Context, username string) (*DeviceMetadata, error) {
	data, err := s.redis.Get(ctx, s.deviceKey(username)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, ErrDeviceNotFound
		}
		return nil, fmt.Errorf("%w: %v", ErrBackendUnavailable, err)
	}
	return decodeDevice(data)
}

// ForgetDevice describes the forgetdevice operation and its observable behavior.
func (s *RedisStore) ForgetDevice(ctx context.Context, username string) error {
	if err := s.redis.Del(ctx, s.deviceKey(username)).Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrBackendUnavailable, err)
	}
	return nil
}

var _ Store = (*RedisStore)(nil)
