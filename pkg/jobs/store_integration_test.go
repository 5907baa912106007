package jobs_test

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/eq-labs/interactions-gateway/pkg/jobs"
	"github.com/eq-labs/interactions-gateway/pkg/services"
	"github.com/eq-labs/interactions-gateway/test/util"
)

// setupStore gives each test its own migrated schema so queue state never
// leaks between tests.
func setupStore(t *testing.T) (*jobs.Store, *pgxpool.Pool) {
	t.Helper()
	client := util.SetupTestDatabase(t)
	return jobs.NewStore(client.Pool()), client.Pool()
}

func createJob(t *testing.T, store *jobs.Store, tenantID uuid.UUID) *jobs.Job {
	t.Helper()
	size := int64(2048)
	job, err := store.Create(context.Background(), jobs.CreateParams{
		TenantID:    tenantID,
		UserID:      "user-1",
		Filename:    "call.wav",
		FileKey:     "tenant/" + tenantID.String() + "/uploads/" + uuid.NewString() + "/call.wav",
		ContentType: "audio/wav",
		SizeBytes:   &size,
		TraceID:     "trace-1",
	})
	require.NoError(t, err)
	return job
}

func enqueue(t *testing.T, store *jobs.Store, tenantID, jobID uuid.UUID) *jobs.Job {
	t.Helper()
	job, err := store.Enqueue(context.Background(), tenantID, jobID)
	require.NoError(t, err)
	return job
}

func TestStoreCreate(t *testing.T) {
	store, _ := setupStore(t)

	job := createJob(t, store, uuid.New())
	assert.Equal(t, jobs.StatusAwaitingUpload, job.Status)
	assert.Equal(t, "call.wav", job.Filename)
	require.NotNil(t, job.SizeBytes)
	assert.EqualValues(t, 2048, *job.SizeBytes)
	assert.Equal(t, jobs.JobTypeAudioTranscription, job.JobType)
	assert.NotEqual(t, uuid.Nil, job.InteractionID)
	assert.Nil(t, job.StartedAt)
}

func TestStoreCreateCarriesIdentity(t *testing.T) {
	store, _ := setupStore(t)

	pgUserID, userName, accountID := "pg-1", "Dana", "acct-3"
	interactionID := uuid.New()
	job, err := store.Create(context.Background(), jobs.CreateParams{
		TenantID:      uuid.New(),
		UserID:        "user-1",
		PgUserID:      &pgUserID,
		UserName:      &userName,
		AccountID:     &accountID,
		Filename:      "call.wav",
		FileKey:       "tenant/t/uploads/" + uuid.NewString() + "/call.wav",
		ContentType:   "audio/wav",
		JobType:       jobs.JobTypeAudioTranscription,
		Metadata:      []byte(`{"deal":"acme"}`),
		InteractionID: interactionID,
		TraceID:       "trace-1",
	})
	require.NoError(t, err)

	assert.Equal(t, interactionID, job.InteractionID)
	require.NotNil(t, job.PgUserID)
	assert.Equal(t, "pg-1", *job.PgUserID)
	require.NotNil(t, job.UserName)
	assert.Equal(t, "Dana", *job.UserName)
	require.NotNil(t, job.AccountID)
	assert.Equal(t, "acct-3", *job.AccountID)
	assert.JSONEq(t, `{"deal":"acme"}`, string(job.Metadata))
}

func TestStoreGetForTenant(t *testing.T) {
	store, _ := setupStore(t)
	ctx := context.Background()

	tenantID := uuid.New()
	job := createJob(t, store, tenantID)

	found, err := store.GetForTenant(ctx, tenantID, job.ID)
	require.NoError(t, err)
	assert.Equal(t, job.ID, found.ID)

	_, err = store.GetForTenant(ctx, uuid.New(), job.ID)
	assert.ErrorIs(t, err, services.ErrNotFound)

	_, err = store.GetForTenant(ctx, tenantID, uuid.New())
	assert.ErrorIs(t, err, services.ErrNotFound)
}

func TestStoreEnqueue(t *testing.T) {
	t.Run("transitions and is idempotent", func(t *testing.T) {
		store, _ := setupStore(t)
		tenantID := uuid.New()
		job := createJob(t, store, tenantID)

		queued := enqueue(t, store, tenantID, job.ID)
		assert.Equal(t, jobs.StatusQueued, queued.Status)

		again := enqueue(t, store, tenantID, job.ID)
		assert.Equal(t, jobs.StatusQueued, again.Status)
	})

	t.Run("resets a failed job", func(t *testing.T) {
		store, _ := setupStore(t)
		ctx := context.Background()
		tenantID := uuid.New()
		job := createJob(t, store, tenantID)
		enqueue(t, store, tenantID, job.ID)

		claimed, err := store.Claim(ctx, "worker-a")
		require.NoError(t, err)
		require.NoError(t, store.MarkFailed(ctx, claimed.ID, jobs.ErrCodeTranscriptionFailed, "boom"))

		requeued := enqueue(t, store, tenantID, job.ID)
		assert.Equal(t, jobs.StatusQueued, requeued.Status)
		assert.Nil(t, requeued.ErrorCode)
		assert.Nil(t, requeued.ClaimedBy)
		assert.Nil(t, requeued.StartedAt)
	})

	t.Run("leaves a succeeded job alone", func(t *testing.T) {
		store, _ := setupStore(t)
		ctx := context.Background()
		tenantID := uuid.New()
		job := createJob(t, store, tenantID)
		enqueue(t, store, tenantID, job.ID)

		claimed, err := store.Claim(ctx, "worker-a")
		require.NoError(t, err)
		require.NoError(t, store.MarkSucceeded(ctx, claimed.ID, "Transcribed 10 chars, cleaned to 9 chars"))

		done := enqueue(t, store, tenantID, job.ID)
		assert.Equal(t, jobs.StatusSucceeded, done.Status)
		assert.Equal(t, job.InteractionID, done.InteractionID)
	})
}

func TestStoreTerminalTransitionsGuarded(t *testing.T) {
	t.Run("reaped job cannot be resurrected by a late success", func(t *testing.T) {
		store, pool := setupStore(t)
		ctx := context.Background()
		tenantID := uuid.New()
		job := createJob(t, store, tenantID)
		enqueue(t, store, tenantID, job.ID)
		claimed, err := store.Claim(ctx, "worker-a")
		require.NoError(t, err)

		_, err = pool.Exec(ctx,
			`UPDATE upload_jobs SET started_at = now() - interval '2 hours' WHERE id = $1`,
			claimed.ID)
		require.NoError(t, err)
		recovered, err := store.RecoverStuck(ctx, 30*time.Minute)
		require.NoError(t, err)
		require.EqualValues(t, 1, recovered)

		// The slow worker finally reports in.
		require.NoError(t, store.MarkSucceeded(ctx, claimed.ID, "late result"))

		final, err := store.GetForTenant(ctx, tenantID, job.ID)
		require.NoError(t, err)
		assert.Equal(t, jobs.StatusFailed, final.Status)
		require.NotNil(t, final.ErrorCode)
		assert.Equal(t, jobs.ErrCodeProcessingTimeout, *final.ErrorCode)
		assert.Nil(t, final.ResultSummary)
	})

	t.Run("succeeded job cannot be marked failed", func(t *testing.T) {
		store, _ := setupStore(t)
		ctx := context.Background()
		tenantID := uuid.New()
		job := createJob(t, store, tenantID)
		enqueue(t, store, tenantID, job.ID)
		claimed, err := store.Claim(ctx, "worker-a")
		require.NoError(t, err)
		require.NoError(t, store.MarkSucceeded(ctx, claimed.ID, "done"))

		require.NoError(t, store.MarkFailed(ctx, claimed.ID, jobs.ErrCodeInternal, "spurious"))

		final, err := store.GetForTenant(ctx, tenantID, job.ID)
		require.NoError(t, err)
		assert.Equal(t, jobs.StatusSucceeded, final.Status)
		assert.Nil(t, final.ErrorCode)
	})
}

func TestStoreClaim(t *testing.T) {
	t.Run("takes oldest queued job once", func(t *testing.T) {
		store, _ := setupStore(t)
		ctx := context.Background()
		tenantID := uuid.New()
		first := createJob(t, store, tenantID)
		second := createJob(t, store, tenantID)
		enqueue(t, store, tenantID, first.ID)
		enqueue(t, store, tenantID, second.ID)

		claimed, err := store.Claim(ctx, "worker-a")
		require.NoError(t, err)
		assert.Equal(t, first.ID, claimed.ID)
		assert.Equal(t, jobs.StatusProcessing, claimed.Status)
		require.NotNil(t, claimed.ClaimedBy)
		assert.Equal(t, "worker-a", *claimed.ClaimedBy)
		assert.NotNil(t, claimed.StartedAt)

		next, err := store.Claim(ctx, "worker-b")
		require.NoError(t, err)
		assert.Equal(t, second.ID, next.ID)

		_, err = store.Claim(ctx, "worker-c")
		assert.ErrorIs(t, err, jobs.ErrNoJobsAvailable)
	})

	t.Run("skips jobs awaiting upload", func(t *testing.T) {
		store, _ := setupStore(t)
		createJob(t, store, uuid.New())
		_, err := store.Claim(context.Background(), "worker-a")
		assert.ErrorIs(t, err, jobs.ErrNoJobsAvailable)
	})
}

func TestStoreRecoverStuck(t *testing.T) {
	t.Run("fails old processing jobs", func(t *testing.T) {
		store, pool := setupStore(t)
		ctx := context.Background()
		tenantID := uuid.New()
		job := createJob(t, store, tenantID)
		enqueue(t, store, tenantID, job.ID)
		claimed, err := store.Claim(ctx, "worker-a")
		require.NoError(t, err)

		// Backdate the claim past the threshold.
		_, err = pool.Exec(ctx,
			`UPDATE upload_jobs SET started_at = now() - interval '2 hours' WHERE id = $1`,
			claimed.ID)
		require.NoError(t, err)

		recovered, err := store.RecoverStuck(ctx, 30*time.Minute)
		require.NoError(t, err)
		assert.EqualValues(t, 1, recovered)

		failed, err := store.GetForTenant(ctx, tenantID, job.ID)
		require.NoError(t, err)
		assert.Equal(t, jobs.StatusFailed, failed.Status)
		require.NotNil(t, failed.ErrorCode)
		assert.Equal(t, jobs.ErrCodeProcessingTimeout, *failed.ErrorCode)
	})

	t.Run("skips fresh processing jobs", func(t *testing.T) {
		store, _ := setupStore(t)
		ctx := context.Background()
		tenantID := uuid.New()
		job := createJob(t, store, tenantID)
		enqueue(t, store, tenantID, job.ID)
		_, err := store.Claim(ctx, "worker-a")
		require.NoError(t, err)

		recovered, err := store.RecoverStuck(ctx, 30*time.Minute)
		require.NoError(t, err)
		assert.Zero(t, recovered)
	})
}

func TestStoreQueueDepth(t *testing.T) {
	store, _ := setupStore(t)
	ctx := context.Background()

	depth, err := store.QueueDepth(ctx)
	require.NoError(t, err)
	assert.Zero(t, depth)

	tenantID := uuid.New()
	job := createJob(t, store, tenantID)
	enqueue(t, store, tenantID, job.ID)

	depth, err = store.QueueDepth(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, depth)
}
