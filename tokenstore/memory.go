package tokenstore

import (
	"context"
	"time"

	"github.com/jellydator/ttlcache/v3"
)

// MemoryStore is an in-process [Store] for embedded callers that do not
// share a cache across processes. Sessions expire at token expiry;
// device records persist until forgotten.
type MemoryStore struct {
	sessions *ttlcache.Cache[string, *CachedSession]
	devices  *ttlcache.Cache[string, *DeviceMetadata]
}

// NewMemoryStore creates a started [MemoryStore]. Call [MemoryStore.Stop]
// when discarding it to release the expiration goroutines.
func NewMemoryStore() *MemoryStore {
	s := &MemoryStore{
		sessions: ttlcache.New[string, *CachedSession](),
		devices:  ttlcache.New[string, *DeviceMetadata](),
	}
	go s.sessions.Start()
	go s.devices.Start()
	return s
}

// Stop describes the stop operation and its observable behavior.
func (s *MemoryStore) Stop() {
	s.sessions.Stop()
	s.devices.Stop()
}

// Cache describes the cache operation and its observable behavior.
func (s *MemoryStore) Cache(_ context.Context, session *CachedSession, device *DeviceMetadata) error {
	ttl := time.Until(time.Unix(session.ExpiresAt, 0))
	if ttl <= 0 {
		ttl = time.Minute
	}
	copied := *session
	s.sessions.Set(session.Username, &copied, ttl)
	if device != nil {
		copiedDevice := *device
		s.devices.Set(session.Username, &copiedDevice, ttlcache.NoTTL)
	}
	return nil
}

// Load describes the load operation and its observable behavior.
func (s *MemoryStore) Load(_ context.Context, username string) (*CachedSession, error) {
	item := s.sessions.Get(username)
	if item == nil {
		return nil, ErrSessionNotCached
	}
	copied := *item.Value()
	return &copied, nil
}

// Clear describes the clear operation and its observable behavior.
func (s *MemoryStore) Clear(_ context.Context, username string) error {
	s.sessions.Delete(username)
	return nil
}

// GetDevice describes the getdevice operation and its observable behavior.
func (s *MemoryStore) GetDevice(_ context.Context, username string) (*DeviceMetadata, error) {
	item := s.devices.Get(username)
	if item == nil {
		return nil, ErrDeviceNotFound
	}
	copied := *item.Value()
	return &copied, nil
}

// ForgetDevice describes the forgetdevice operation and its observable behavior.
func (s *MemoryStore) ForgetDevice(_ context.Context, username string) error {
	s.devices.Delete(username)
	return nil
}

var _ Store = (*MemoryStore)(nil)
