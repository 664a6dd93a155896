package userpool

import (
	"errors"
	"strings"
	"time"
)

// Config defines a public type used by userpool APIs.
//
// Config instances are intended to be configured during initialization and then treated as immutable unless documented otherwise.
type Config struct {
	UserPool   UserPoolConfig
	Transport  TransportConfig
	Device     DeviceConfig
	TokenStore TokenStoreConfig
	Events     EventsConfig
	Metrics    MetricsConfig
}

/*
====================================
USER POOL CONFIG
====================================
*/

// UserPoolConfig defines a public type used by userpool APIs.
//
// UserPoolConfig instances are intended to be configured during initialization and then treated as immutable unless documented otherwise.
type UserPoolConfig struct {
	// PoolID is the provider's pool identifier, "<region>_<name>".
	PoolID   string
	ClientID string
	Region   string
	// Endpoint overrides the derived regional endpoint. Required when
	// Region is empty.
	Endpoint string
	// ClientMetadata defaults merged under per-call metadata.
	ClientMetadata map[string]string
}

// TransportConfig defines a public type used by userpool APIs.
//
// TransportConfig instances are intended to be configured during initialization and then treated as immutable unless documented otherwise.
type TransportConfig struct {
	HTTPTimeout time.Duration
	// RetryBaseDelay spaces the single resource-not-found retry.
	RetryBaseDelay time.Duration
}

// DeviceConfig defines a public type used by userpool APIs.
//
// DeviceConfig instances are intended to be configured during initialization and then treated as immutable unless documented otherwise.
type DeviceConfig struct {
	// RememberDevices confirms newly registered devices so future
	// sign-ins can skip device challenges.
	RememberDevices bool
	// NamePrefix prefixes the generated friendly device name.
	NamePrefix string
}

// TokenStoreConfig defines a public type used by userpool APIs.
//
// TokenStoreConfig instances are intended to be configured during initialization and then treated as immutable unless documented otherwise.
type TokenStoreConfig struct {
	RedisPrefix string
}

// EventsConfig defines a public type used by userpool APIs.
//
// EventsConfig instances are intended to be configured during initialization and then treated as immutable unless documented otherwise.
type EventsConfig struct {
	Enabled    bool
	BufferSize int
	DropIfFull bool
}

// MetricsConfig defines a public type used by userpool APIs.
//
// MetricsConfig instances are intended to be configured during initialization and then treated as immutable unless documented otherwise.
type MetricsConfig struct {
	Enabled                 bool
	EnableLatencyHistograms bool
}

/*
====================================
DEFAULT CONFIG
====================================
*/

func defaultConfig() Config {
	return Config{
		Transport: TransportConfig{
			HTTPTimeout:    30 * time.Second,
			RetryBaseDelay: 100 * time.Millisecond,
		},
		Device: DeviceConfig{
			RememberDevices: true,
			NamePrefix:      "userpool",
		},
		TokenStore: TokenStoreConfig{
			RedisPrefix: "up:",
		},
		Events: EventsConfig{
			Enabled:    false,
			BufferSize: 1024,
			DropIfFull: true,
		},
		Metrics: MetricsConfig{
			Enabled:                 false,
			EnableLatencyHistograms: false,
		},
	}
}

func cloneConfig(cfg Config) Config {
	out := cfg
	out.UserPool.ClientMetadata = cloneStringMap(cfg.UserPool.ClientMetadata)
	return out
}

func cloneStringMap(m map[string]string) map[string]string {
	if len(m) == 0 {
		return nil
	}
	out := make(map[string]string, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

/*
====================================
VALIDATION
====================================
*/

// Validate describes the validate operation and its observable behavior.
//
// Validate may return an error when input validation, dependency calls, or security checks fail.
// Validate does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func (c *Config) Validate() error {
	if c.UserPool.PoolID == "" {
		return errors.New("UserPool PoolID is required")
	}
	region, name, found := strings.Cut(c.UserPool.PoolID, "_")
	if !found || region == "" || name == "" {
		return errors.New("UserPool PoolID must have the form <region>_<name>")
	}
	if c.UserPool.ClientID == "" {
		return errors.New("UserPool ClientID is required")
	}
	if c.UserPool.Region == "" && c.UserPool.Endpoint == "" {
		return errors.New("UserPool Region or Endpoint is required")
	}
	if c.UserPool.Region != "" && region != c.UserPool.Region {
		return errors.New("UserPool PoolID region prefix must match Region")
	}

	if c.Transport.HTTPTimeout < 0 {
		return errors.New("Transport HTTPTimeout must be >= 0")
	}
	if c.Transport.RetryBaseDelay < 0 {
		return errors.New("Transport RetryBaseDelay must be >= 0")
	}

	if c.Events.Enabled && c.Events.BufferSize <= 0 {
		return errors.New("Events BufferSize must be > 0 when events are enabled")
	}

	return nil
}

// poolName is the SRP identity scope: the pool ID with its region
// prefix stripped.
func (c *Config) poolName() string {
	_, name, found := strings.Cut(c.UserPool.PoolID, "_")
	if !found {
		return c.UserPool.PoolID
	}
	return name
}

// endpoint resolves the service URL, preferring the explicit override.
func (c *Config) endpoint() string {
	if c.UserPool.Endpoint != "" {
		return c.UserPool.Endpoint
	}
	return "https://cognito-idp." + c.UserPool.Region + ".amazonaws.com/"
}
