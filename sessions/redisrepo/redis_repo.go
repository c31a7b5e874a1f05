package redisrepo

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/jrsteele09/go-auth-client/sessions"
	"github.com/redis/go-redis/v9"
)

// Config is loaded from the environment with caarlos0/env
type Config struct {
	ConnectionURL  string        `env:"REDIS_URL" envDefault:"redis://localhost:6379/0"`
	Key            string        `env:"REDIS_SESSION_KEY" envDefault:"billing-console:session"`
	TTL            time.Duration `env:"REDIS_SESSION_TTL" envDefault:"0s"`
	ConnectTimeout time.Duration `env:"REDIS_CONNECT_TIMEOUT" envDefault:"5s"`
}

// ConfigFromEnv parses Config from environment variables
func ConfigFromEnv() (Config, error) {
	cfg, err := env.ParseAs[Config]()
	if err != nil {
		return Config{}, fmt.Errorf("failed to parse redis config: %w", err)
	}
	return cfg, nil
}

var _ sessions.Repo = (*Repo)(nil)

// Repo stores the snapshot as a JSON value under a single key
type Repo struct {
	client redis.Cmdable
	key    string
	ttl    time.Duration
}

// New wraps an existing client. A zero ttl keeps the key until it is deleted.
func New(client redis.Cmdable, key string, ttl time.Duration) *Repo {
	return &Repo{client: client, key: key, ttl: ttl}
}

// Connect creates a client from cfg and verifies it with a ping
func Connect(ctx context.Context, cfg Config) (*redis.Client, error) {
	opts, err := redis.ParseURL(cfg.ConnectionURL)
	if err != nil {
		return nil, fmt.Errorf("invalid redis url: %w", err)
	}
	client := redis.NewClient(opts)

	pingCtx, cancel := context.WithTimeout(ctx, cfg.ConnectTimeout)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}
	return client, nil
}

func (r *Repo) Load(ctx context.Context) (*sessions.Snapshot, error) {
	data, err := r.client.Get(ctx, r.key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, sessions.ErrNoSnapshot
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read session: %w", err)
	}
	return Decode(data)
}

func (r *Repo) Save(ctx context.Context, snapshot *sessions.Snapshot) error {
	data, err := Encode(snapshot)
	if err != nil {
		return err
	}
	if err := r.client.Set(ctx, r.key, data, r.ttl).Err(); err != nil {
		return fmt.Errorf("failed to write session: %w", err)
	}
	return nil
}

func (r *Repo) Delete(ctx context.Context) error {
	if err := r.client.Del(ctx, r.key).Err(); err != nil {
		return fmt.Errorf("failed to delete session: %w", err)
	}
	return nil
}

// Encode is the value format stored in redis
func Encode(snapshot *sessions.Snapshot) ([]byte, error) {
	data, err := json.Marshal(snapshot)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal session: %w", err)
	}
	return data, nil
}

// Decode parses a stored value, rejecting unknown roles
func Decode(data []byte) (*sessions.Snapshot, error) {
	var snapshot sessions.Snapshot
	if err := json.Unmarshal(data, &snapshot); err != nil {
		return nil, fmt.Errorf("failed to parse session: %w", err)
	}
	return &snapshot, nil
}
