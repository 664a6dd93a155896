package tokenstore

import (
	"context"
	"errors"
)

var (
	// ErrSessionNotCached is an exported constant or variable used by the token store.
	ErrSessionNotCached = errors.New("no cached session for user")
	// ErrDeviceNotFound is an exported constant or variable used by the token store.
	ErrDeviceNotFound = errors.New("no remembered device for user")
	// ErrBackendUnavailable is an exported constant or variable used by the token store.
	ErrBackendUnavailable = errors.New("token store backend unavailable")
	// ErrRecordCorrupt is an exported constant or variable used by the token store.
	ErrRecordCorrupt = errors.New("token store record corrupt")
)

// CachedSession is the durable result of one successful sign-in:
// the token bundle plus the attempt's record metadata.
type CachedSession struct {
	Username     string
	AccessToken  string
	IDToken      string
	RefreshToken string
	TokenType    string

	LoginID      string
	AuthFlowType string

	IssuedAt  int64
	ExpiresAt int64
}

// DeviceMetadata is the per-device secret material that lets a known
// device skip challenges on future sign-ins.
type DeviceMetadata struct {
	DeviceKey      string
	DeviceGroupKey string
	DevicePassword string
	Remembered     bool
}

// Store is what the sign-in engine hands completed credentials to.
// Implementations must persist before returning from Cache.
type Store interface {
	Cache(ctx context.Context, session *CachedSession, device *DeviceMetadata) error
	Load(ctx context.Context, username string) (*CachedSession, error)
	Clear(ctx context.Context, username string) error

	GetDevice(ctx context.Context, username string) (*DeviceMetadata, error)
	ForgetDevice(ctx context.Context, username string) error
}
