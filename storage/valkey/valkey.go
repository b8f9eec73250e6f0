package valkey

import (
	"context"
	"crypto/tls"
	"fmt"
	"log/slog"
	"time"

	valkeygo "github.com/valkey-io/valkey-go"

	"github.com/onedrip/shield/ratelimit"
)

const (
	// DefaultKeyPrefix is the default prefix for all Valkey keys
	DefaultKeyPrefix = "shield:"

	// connectionVerifyTimeout is the timeout for initial connection verification
	connectionVerifyTimeout = 5 * time.Second
)

// Config holds configuration for the Valkey shared rate-limit store.
type Config struct {
	// Address is the Valkey server address (required), e.g., "localhost:6379"
	Address string

	// Password is the optional password for Valkey authentication
	Password string

	// DB is the optional database number (default 0)
	DB int

	// KeyPrefix is the prefix for all keys (default "shield:")
	KeyPrefix string

	// TLS is the optional TLS configuration for encrypted connections
	TLS *tls.Config

	// Logger is the optional structured logger (default: slog.Default())
	Logger *slog.Logger
}

// Store is a Valkey-backed implementation of ratelimit.SharedStore.
type Store struct {
	client valkeygo.Client
	prefix string
	logger *slog.Logger
}

var _ ratelimit.SharedStore = (*Store)(nil)

// New creates a Valkey-backed shared rate-limit store.
// Returns an error if the connection cannot be established.
func New(cfg Config) (*Store, error) {
	if cfg.Address == "" {
		return nil, fmt.Errorf("valkey address is required")
	}

	prefix := cfg.KeyPrefix
	if prefix == "" {
		prefix = DefaultKeyPrefix
	}

	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	opts := valkeygo.ClientOption{
		InitAddress: []string{cfg.Address},
		SelectDB:    cfg.DB,
	}
	if cfg.Password != "" {
		opts.Password = cfg.Password
	}
	if cfg.TLS != nil {
		opts.TLSConfig = cfg.TLS
	}

	client, err := valkeygo.NewClient(opts)
	if err != nil {
		return nil, fmt.Errorf("failed to create valkey client: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), connectionVerifyTimeout)
	defer cancel()

	if err := client.Do(ctx, client.B().Ping().Build()).Error(); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to connect to valkey: %w", err)
	}

	logger.Info("Connected to Valkey rate limit store",
		"address", cfg.Address,
		"db", cfg.DB,
		"prefix", prefix)

	return &Store{
		client: client,
		prefix: prefix,
		logger: logger,
	}, nil
}

// Close closes the Valkey client connection.
func (s *Store) Close() {
	s.client.Close()
	s.logger.Info("Valkey rate limit store connection closed")
}

func (s *Store) key(k string) string {
	return s.prefix + k
}

// IncrWindow increments the window counter for key, creating it with the
// window TTL on first hit. Returns the new count and the remaining TTL.
//
// INCR is atomic, so concurrent callers each see a distinct count. The
// EXPIRE on first hit can be lost if the process dies between the two
// commands; the TTL check below repairs such orphaned counters instead of
// letting them count forever.
func (s *Store) IncrWindow(ctx context.Context, key string, window time.Duration) (int64, time.Duration, error) {
	k := s.key(key)

	count, err := s.client.Do(ctx, s.client.B().Incr().Key(k).Build()).AsInt64()
	if err != nil {
		return 0, 0, fmt.Errorf("failed to increment window counter: %w", err)
	}

	if count == 1 {
		if err := s.client.Do(ctx,
			s.client.B().Pexpire().Key(k).Milliseconds(window.Milliseconds()).Build(),
		).Error(); err != nil {
			return 0, 0, fmt.Errorf("failed to set window TTL: %w", err)
		}
		return count, window, nil
	}

	ttlMillis, err := s.client.Do(ctx, s.client.B().Pttl().Key(k).Build()).AsInt64()
	if err != nil {
		return 0, 0, fmt.Errorf("failed to read window TTL: %w", err)
	}
	if ttlMillis < 0 {
		// Orphaned counter without a TTL: re-arm the window.
		if err := s.client.Do(ctx,
			s.client.B().Pexpire().Key(k).Milliseconds(window.Milliseconds()).Build(),
		).Error(); err != nil {
			return 0, 0, fmt.Errorf("failed to repair window TTL: %w", err)
		}
		return count, window, nil
	}

	return count, time.Duration(ttlMillis) * time.Millisecond, nil
}

// SetBlock marks key as blocked for the given duration.
func (s *Store) SetBlock(ctx context.Context, key string, d time.Duration) error {
	if err := s.client.Do(ctx,
		s.client.B().Set().Key(s.key(key)).Value("1").Px(d).Build(),
	).Error(); err != nil {
		return fmt.Errorf("failed to set block: %w", err)
	}
	return nil
}

// BlockTTL returns the remaining block duration for key, zero when the key
// is not blocked.
func (s *Store) BlockTTL(ctx context.Context, key string) (time.Duration, error) {
	ttlMillis, err := s.client.Do(ctx, s.client.B().Pttl().Key(s.key(key)).Build()).AsInt64()
	if err != nil {
		return 0, fmt.Errorf("failed to read block TTL: %w", err)
	}
	if ttlMillis < 0 {
		// -2: key does not exist; -1: no TTL (treat as unblocked rather
		// than blocking forever on a malformed key)
		return 0, nil
	}
	return time.Duration(ttlMillis) * time.Millisecond, nil
}

// SetFlag raises a suspicious flag on key for the given duration.
func (s *Store) SetFlag(ctx context.Context, key string, d time.Duration) error {
	if err := s.client.Do(ctx,
		s.client.B().Set().Key(s.key(key)).Value("1").Px(d).Build(),
	).Error(); err != nil {
		return fmt.Errorf("failed to set flag: %w", err)
	}
	return nil
}

// HasFlag reports whether key carries an unexpired suspicious flag.
func (s *Store) HasFlag(ctx context.Context, key string) (bool, error) {
	n, err := s.client.Do(ctx, s.client.B().Exists().Key(s.key(key)).Build()).AsInt64()
	if err != nil {
		return false, fmt.Errorf("failed to check flag: %w", err)
	}
	return n > 0, nil
}
