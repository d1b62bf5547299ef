package redisstore

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"time"

	"github.com/goliatone/go-accounts/core"
	"github.com/redis/go-redis/v9"
)

const (
	defaultKeyPrefix = "accounts:oauth:"
	defaultFlowTTL   = 15 * time.Minute
	defaultRetention = time.Hour
	// expiredFlowTTL keeps an already expired flow long enough to report it
	// as expired rather than unknown.
	expiredFlowTTL = time.Second

	consumedMarker = "1"
)

// consumeScript removes a pending flow and leaves a consumed tombstone in one
// step. It returns the flow payload, -1 when the state was already consumed,
// or nil when the state is unknown.
var consumeScript = redis.NewScript(`
local payload = redis.call('GET', KEYS[1])
if payload then
  redis.call('DEL', KEYS[1])
  local retention = tonumber(ARGV[1])
  if retention > 0 then
    redis.call('SET', KEYS[2], ARGV[2], 'PX', retention)
  end
  return payload
end
if redis.call('EXISTS', KEYS[2]) == 1 then
  return -1
end
return false
`)

// Client is the subset of a go-redis client the flow store needs.
type Client interface {
	redis.Scripter
	Get(ctx context.Context, key string) *redis.StringCmd
	Exists(ctx context.Context, keys ...string) *redis.IntCmd
	SetEx(ctx context.Context, key string, value any, expiration time.Duration) *redis.StatusCmd
}

type Option func(*OAuthFlowStore)

func WithKeyPrefix(prefix string) Option {
	return func(s *OAuthFlowStore) {
		if trimmed := strings.TrimSpace(prefix); trimmed != "" {
			s.prefix = trimmed
		}
	}
}

func WithFlowTTL(ttl time.Duration) Option {
	return func(s *OAuthFlowStore) {
		if ttl > 0 {
			s.ttl = ttl
		}
	}
}

// WithConsumedRetention sets how long a consumed state is remembered. Zero
// turns tombstones off.
func WithConsumedRetention(retention time.Duration) Option {
	return func(s *OAuthFlowStore) {
		if retention >= 0 {
			s.retention = retention
		}
	}
}

func WithClock(clock core.Clock) Option {
	return func(s *OAuthFlowStore) {
		if clock != nil {
			s.now = clock
		}
	}
}

// OAuthFlowStore keeps pending OAuth flows in redis so begin and complete can
// land on different processes.
type OAuthFlowStore struct {
	client    Client
	prefix    string
	ttl       time.Duration
	retention time.Duration
	now       core.Clock
}

func NewOAuthFlowStore(client Client, opts ...Option) (*OAuthFlowStore, error) {
	if client == nil {
		return nil, core.NewError(core.ErrorInternal, "redisstore: redis client is required")
	}
	store := &OAuthFlowStore{
		client:    client,
		prefix:    defaultKeyPrefix,
		ttl:       defaultFlowTTL,
		retention: defaultRetention,
		now:       func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		if opt != nil {
			opt(store)
		}
	}
	return store, nil
}

// NewOAuthFlowStoreFromConfig applies the oauth section of cfg.
func NewOAuthFlowStoreFromConfig(client Client, cfg core.OAuthConfig, opts ...Option) (*OAuthFlowStore, error) {
	base := []Option{
		WithFlowTTL(cfg.FlowTTL()),
		WithConsumedRetention(cfg.ConsumedRetention()),
	}
	return NewOAuthFlowStore(client, append(base, opts...)...)
}

// NewClientFromURL parses a redis:// URL and checks the server answers.
func NewClientFromURL(ctx context.Context, redisURL string) (*redis.Client, error) {
	options, err := redis.ParseURL(strings.TrimSpace(redisURL))
	if err != nil {
		return nil, core.WrapError(err, core.ErrorBadInput, "redisstore: invalid redis url")
	}
	client := redis.NewClient(options)
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, core.WrapError(err, core.ErrorNetwork, "redisstore: ping redis")
	}
	return client, nil
}

func (s *OAuthFlowStore) Save(ctx context.Context, flow core.OAuthFlowState) error {
	state := strings.TrimSpace(flow.State)
	if state == "" {
		return core.NewError(core.ErrorBadInput, "redisstore: oauth state is required")
	}

	now := s.now()
	if flow.CreatedAt.IsZero() {
		flow.CreatedAt = now
	}
	if flow.ExpiresAt.IsZero() {
		flow.ExpiresAt = flow.CreatedAt.Add(s.ttl)
	}

	used, err := s.client.Exists(ctx, s.consumedKey(state)).Result()
	if err != nil {
		return redisError(err, "check consumed oauth state")
	}
	if used > 0 {
		return core.NewError(core.ErrorFlowAlreadyConsumed, "redisstore: oauth state was already used")
	}

	ttl := max(flow.ExpiresAt.Sub(now), expiredFlowTTL)
	payload, err := json.Marshal(flow)
	if err != nil {
		return core.WrapError(err, core.ErrorInternal, "redisstore: encode oauth flow")
	}
	if err := s.client.SetEx(ctx, s.flowKey(state), payload, ttl).Err(); err != nil {
		return redisError(err, "save oauth flow")
	}
	return nil
}

func (s *OAuthFlowStore) Lookup(ctx context.Context, state string) (core.OAuthFlowState, error) {
	state = strings.TrimSpace(state)
	if state == "" {
		return core.OAuthFlowState{}, core.NewError(core.ErrorOAuthStateMismatch, "redisstore: oauth state is required")
	}

	payload, err := s.client.Get(ctx, s.flowKey(state)).Result()
	if errors.Is(err, redis.Nil) {
		used, existsErr := s.client.Exists(ctx, s.consumedKey(state)).Result()
		if existsErr != nil {
			return core.OAuthFlowState{}, redisError(existsErr, "check consumed oauth state")
		}
		if used > 0 {
			return core.OAuthFlowState{}, core.NewError(core.ErrorFlowAlreadyConsumed, "redisstore: oauth flow already completed")
		}
		return core.OAuthFlowState{}, core.NewError(core.ErrorOAuthStateMismatch, "redisstore: oauth state does not match any pending flow")
	}
	if err != nil {
		return core.OAuthFlowState{}, redisError(err, "look up oauth flow")
	}
	return s.decode(payload)
}

func (s *OAuthFlowStore) Consume(ctx context.Context, state string) (core.OAuthFlowState, error) {
	state = strings.TrimSpace(state)
	if state == "" {
		return core.OAuthFlowState{}, core.NewError(core.ErrorOAuthStateMismatch, "redisstore: oauth state is required")
	}

	result, err := consumeScript.Run(ctx, s.client,
		[]string{s.flowKey(state), s.consumedKey(state)},
		s.retention.Milliseconds(), consumedMarker,
	).Result()
	if errors.Is(err, redis.Nil) {
		return core.OAuthFlowState{}, core.NewError(core.ErrorOAuthStateMismatch, "redisstore: oauth state does not match any pending flow")
	}
	if err != nil {
		return core.OAuthFlowState{}, redisError(err, "consume oauth flow")
	}

	payload, ok := result.(string)
	if !ok {
		return core.OAuthFlowState{}, core.NewError(core.ErrorFlowAlreadyConsumed, "redisstore: oauth flow already completed")
	}
	return s.decode(payload)
}

func (s *OAuthFlowStore) decode(payload string) (core.OAuthFlowState, error) {
	var flow core.OAuthFlowState
	if err := json.Unmarshal([]byte(payload), &flow); err != nil {
		return core.OAuthFlowState{}, core.WrapError(err, core.ErrorInternal, "redisstore: decode oauth flow")
	}
	if !flow.ExpiresAt.IsZero() && s.now().After(flow.ExpiresAt) {
		return core.OAuthFlowState{}, core.NewError(core.ErrorOAuthStateMismatch, "redisstore: oauth state expired")
	}
	return flow, nil
}

func (s *OAuthFlowStore) flowKey(state string) string {
	return s.prefix + "flow:" + state
}

func (s *OAuthFlowStore) consumedKey(state string) string {
	return s.prefix + "consumed:" + state
}

func redisError(err error, operation string) error {
	return core.WrapError(err, core.ErrorNetwork, "redisstore: "+operation)
}

var _ core.OAuthFlowStore = (*OAuthFlowStore)(nil)
