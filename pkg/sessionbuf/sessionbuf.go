// Package sessionbuf buffers finalized live-transcript segments in Redis so a
// session survives gateway restarts and can be assembled into a full
// transcript at close.
package sessionbuf

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/eq-labs/interactions-gateway/pkg/config"
)

// sessionTTL bounds how long an abandoned session's segments are retained.
const sessionTTL = 24 * time.Hour

// Store is a Redis-backed buffer of per-session transcript segments.
type Store struct {
	client *redis.Client
}

// New connects to Redis using the configured URL.
func New(cfg config.RedisConfig) (*Store, error) {
	opts, err := redis.ParseURL(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("sessionbuf: parse redis url: %w", err)
	}
	return &Store{client: redis.NewClient(opts)}, nil
}

// NewFromClient wraps an existing client. Used by tests.
func NewFromClient(client *redis.Client) *Store {
	if client == nil {
		panic("sessionbuf: client is required")
	}
	return &Store{client: client}
}

// Close releases the underlying connection pool.
func (s *Store) Close() error {
	return s.client.Close()
}

// Ping verifies connectivity.
func (s *Store) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}

func transcriptKey(sessionID string) string {
	return "session:" + sessionID + ":transcript"
}

// Append stores one finalized segment and refreshes the session TTL.
func (s *Store) Append(ctx context.Context, sessionID, text string) error {
	key := transcriptKey(sessionID)
	if err := s.client.RPush(ctx, key, text).Err(); err != nil {
		return fmt.Errorf("sessionbuf: append segment: %w", err)
	}
	if err := s.client.Expire(ctx, key, sessionTTL).Err(); err != nil {
		return fmt.Errorf("sessionbuf: refresh ttl: %w", err)
	}
	return nil
}

// Segments returns all buffered segments for a session in arrival order.
func (s *Store) Segments(ctx context.Context, sessionID string) ([]string, error) {
	segments, err := s.client.LRange(ctx, transcriptKey(sessionID), 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("sessionbuf: read segments: %w", err)
	}
	return segments, nil
}

// FinalTranscript assembles the buffered segments into one transcript, joined
// with single spaces, and deletes the buffer. Returns "" when nothing was
// buffered.
func (s *Store) FinalTranscript(ctx context.Context, sessionID string) (string, error) {
	segments, err := s.Segments(ctx, sessionID)
	if err != nil {
		return "", err
	}
	if err := s.Delete(ctx, sessionID); err != nil {
		return "", err
	}
	return strings.Join(segments, " "), nil
}

// Delete discards a session's buffer.
func (s *Store) Delete(ctx context.Context, sessionID string) error {
	if err := s.client.Del(ctx, transcriptKey(sessionID)).Err(); err != nil {
		return fmt.Errorf("sessionbuf: delete session: %w", err)
	}
	return nil
}
