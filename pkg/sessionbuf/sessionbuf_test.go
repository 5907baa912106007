package sessionbuf

import (
	"context"
	"os"
	"testing"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/eq-labs/interactions-gateway/pkg/config"
)

func TestTranscriptKey(t *testing.T) {
	assert.Equal(t, "session:abc-123:transcript", transcriptKey("abc-123"))
}

func TestNewRejectsBadURL(t *testing.T) {
	_, err := New(config.RedisConfig{URL: "not a url"})
	assert.Error(t, err)
}

// setupStore connects to the Redis named by SESSION_BUFFER_TEST_URL, skipping
// when the env var is unset.
func setupStore(t *testing.T) *Store {
	t.Helper()
	url := os.Getenv("SESSION_BUFFER_TEST_URL")
	if url == "" {
		t.Skip("SESSION_BUFFER_TEST_URL not set")
	}
	opts, err := redis.ParseURL(url)
	require.NoError(t, err)
	store := NewFromClient(redis.NewClient(opts))
	require.NoError(t, store.Ping(context.Background()))
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func TestStore(t *testing.T) {
	store := setupStore(t)
	ctx := context.Background()

	t.Run("append and read segments in order", func(t *testing.T) {
		sessionID := uuid.NewString()
		require.NoError(t, store.Append(ctx, sessionID, "SPEAKER_0: first"))
		require.NoError(t, store.Append(ctx, sessionID, "SPEAKER_1: second"))

		segments, err := store.Segments(ctx, sessionID)
		require.NoError(t, err)
		assert.Equal(t, []string{"SPEAKER_0: first", "SPEAKER_1: second"}, segments)
	})

	t.Run("final transcript joins and clears", func(t *testing.T) {
		sessionID := uuid.NewString()
		require.NoError(t, store.Append(ctx, sessionID, "line one"))
		require.NoError(t, store.Append(ctx, sessionID, "line two"))

		transcript, err := store.FinalTranscript(ctx, sessionID)
		require.NoError(t, err)
		assert.Equal(t, "line one line two", transcript)

		segments, err := store.Segments(ctx, sessionID)
		require.NoError(t, err)
		assert.Empty(t, segments)
	})

	t.Run("final transcript of unknown session is empty", func(t *testing.T) {
		transcript, err := store.FinalTranscript(ctx, uuid.NewString())
		require.NoError(t, err)
		assert.Empty(t, transcript)
	})

	t.Run("delete removes buffer", func(t *testing.T) {
		sessionID := uuid.NewString()
		require.NoError(t, store.Append(ctx, sessionID, "line"))
		require.NoError(t, store.Delete(ctx, sessionID))

		segments, err := store.Segments(ctx, sessionID)
		require.NoError(t, err)
		assert.Empty(t, segments)
	})
}
