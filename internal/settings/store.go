package settings

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/redis/go-redis/v9"
)

// settingsKey is the fixed key for the singleton record. There is exactly one
// policy per deployment.
const settingsKey = "automation:settings"

// Provider resolves the current automation policy.
type Provider interface {
	Get(ctx context.Context) (*AutomationSettings, error)
}

// Store reads the automation settings record from Redis.
type Store struct {
	redis *redis.Client
}

var _ Provider = (*Store)(nil)

// NewStore creates a settings store backed by the given Redis client.
func NewStore(redisClient *redis.Client) *Store {
	if redisClient == nil {
		panic("settings: redis client is required")
	}
	return &Store{redis: redisClient}
}

// Get fetches the settings record. A missing key yields Defaults rather than
// an error; a present but unreadable record is an error so a corrupted write
// cannot silently re-enable or reconfigure automation.
func (s *Store) Get(ctx context.Context) (*AutomationSettings, error) {
	data, err := s.redis.Get(ctx, settingsKey).Result()
	if err == redis.Nil {
		return Defaults(), nil
	}
	if err != nil {
		return nil, fmt.Errorf("settings: get: %w", err)
	}

	var out AutomationSettings
	if err := json.Unmarshal([]byte(data), &out); err != nil {
		return nil, fmt.Errorf("settings: unmarshal: %w", err)
	}
	return &out, nil
}

// Set stores the settings record. Exposed for the operations surface and for
// seeding tests; the engine itself never calls it.
func (s *Store) Set(ctx context.Context, in *AutomationSettings) error {
	data, err := json.Marshal(in)
	if err != nil {
		return fmt.Errorf("settings: marshal: %w", err)
	}
	if err := s.redis.Set(ctx, settingsKey, data, 0).Err(); err != nil {
		return fmt.Errorf("settings: set: %w", err)
	}
	return nil
}

// StaticProvider returns a fixed policy. Used by tests and by the replay
// worker when it needs the same view of the policy for a whole batch.
type StaticProvider struct {
	Settings *AutomationSettings
}

var _ Provider = (*StaticProvider)(nil)

// Get returns the fixed policy, or Defaults when none was set.
func (p *StaticProvider) Get(ctx context.Context) (*AutomationSettings, error) {
	if p.Settings == nil {
		return Defaults(), nil
	}
	return p.Settings, nil
}
