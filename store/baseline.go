package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/evalgate/evalgate/runner"
)

// ErrNotFound is returned when no baseline exists for a suite.
var ErrNotFound = errors.New("store: baseline not found")

// Baseline is the per-case score snapshot of one run.
type Baseline struct {
	// Suite names the suite this baseline belongs to.
	Suite string `json:"suite"`

	// RunID identifies the run the baseline was taken from.
	RunID string `json:"run_id"`

	// Scores maps case ID to the case's aggregate score.
	Scores map[string]float64 `json:"scores"`

	// SavedAt is when the baseline was recorded.
	SavedAt time.Time `json:"saved_at"`
}

// BaselineStore persists and retrieves suite baselines.
type BaselineStore interface {
	// Save records a baseline, replacing any existing one for the suite.
	Save(ctx context.Context, baseline Baseline) error

	// Load returns the stored baseline for a suite, or ErrNotFound.
	Load(ctx context.Context, suite string) (*Baseline, error)

	// Close releases backend resources.
	Close() error
}

// Snapshot builds a baseline from a completed run report.
func Snapshot(report *runner.Report) Baseline {
	scores := make(map[string]float64, len(report.Results))
	for _, r := range report.Results {
		scores[r.CaseID] = r.Score
	}
	return Baseline{
		Suite:   report.Suite,
		RunID:   report.RunID,
		Scores:  scores,
		SavedAt: time.Now().UTC(),
	}
}

// RedisOptions configures the Redis baseline store.
type RedisOptions struct {
	// URL is the Redis connection string (e.g. "redis://localhost:6379").
	URL string

	// ConnectTimeout bounds connection establishment. Default 5s.
	ConnectTimeout time.Duration
}

// RedisStore implements BaselineStore on go-redis/v9. Baselines live
// under "evalgate:baseline:<suite>" with no expiry.
type RedisStore struct {
	client *redis.Client
}

// NewRedisStore connects to Redis and verifies the connection with a ping.
func NewRedisStore(opts RedisOptions) (*RedisStore, error) {
	if opts.URL == "" {
		opts.URL = "redis://localhost:6379"
	}
	if opts.ConnectTimeout == 0 {
		opts.ConnectTimeout = 5 * time.Second
	}

	redisOpts, err := redis.ParseURL(opts.URL)
	if err != nil {
		return nil, fmt.Errorf("parse Redis URL: %w", err)
	}
	redisOpts.DialTimeout = opts.ConnectTimeout

	client := redis.NewClient(redisOpts)

	ctx, cancel := context.WithTimeout(context.Background(), opts.ConnectTimeout)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("connect to Redis: %w", err)
	}

	return &RedisStore{client: client}, nil
}

// NewRedisStoreFromClient wraps an existing client, mainly for tests.
func NewRedisStoreFromClient(client *redis.Client) *RedisStore {
	return &RedisStore{client: client}
}

func baselineKey(suite string) string {
	return "evalgate:baseline:" + suite
}

// Save stores the baseline as JSON under the suite's key.
func (s *RedisStore) Save(ctx context.Context, baseline Baseline) error {
	if baseline.Suite == "" {
		return fmt.Errorf("baseline has no suite name")
	}
	data, err := json.Marshal(baseline)
	if err != nil {
		return fmt.Errorf("marshal baseline: %w", err)
	}
	if err := s.client.Set(ctx, baselineKey(baseline.Suite), data, 0).Err(); err != nil {
		return fmt.Errorf("save baseline for suite %q: %w", baseline.Suite, err)
	}
	return nil
}

// Load fetches and decodes the baseline for a suite.
func (s *RedisStore) Load(ctx context.Context, suite string) (*Baseline, error) {
	data, err := s.client.Get(ctx, baselineKey(suite)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, fmt.Errorf("suite %q: %w", suite, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("load baseline for suite %q: %w", suite, err)
	}

	var baseline Baseline
	if err := json.Unmarshal(data, &baseline); err != nil {
		return nil, fmt.Errorf("decode baseline for suite %q: %w", suite, err)
	}
	return &baseline, nil
}

// Close closes the underlying Redis connection.
func (s *RedisStore) Close() error {
	return s.client.Close()
}
