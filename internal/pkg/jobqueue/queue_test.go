package jobqueue

import (
	"context"
	"encoding/json"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewQueueWithClient(t *testing.T) {
	tests := []struct {
		name            string
		workers         int
		expectedWorkers int
	}{
		{"Valid worker count", 5, 5},
		{"Zero workers", 0, 3},
		{"Negative workers", -1, 3},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			queue := NewQueueWithClient(nil, Config{Workers: tt.workers})

			assert.NotNil(t, queue)
			assert.Equal(t, tt.expectedWorkers, queue.workers)
			assert.Equal(t, tt.expectedWorkers, cap(queue.workerPool))
			assert.NotNil(t, queue.stopCh)
			assert.False(t, queue.running)
			assert.Equal(t, time.Second, queue.cfg.PromoteInterval)
		})
	}
}

func TestConstants(t *testing.T) {
	assert.Equal(t, "job:", JobKeyPrefix)
	assert.Equal(t, "job_queue", JobQueueKey)
	assert.Equal(t, "job_processing", JobProcessingKey)
	assert.Equal(t, "job_delayed", JobDelayedKey)
	assert.Equal(t, "job_stats", JobStatsKey)
	assert.Equal(t, 3, DefaultMaxRetries)
	assert.Equal(t, 24*time.Hour, JobTTL)
}

func TestEnqueueDelayedAndPromote(t *testing.T) {
	client := newIsolatedRedisClient(t, isolatedJobQueueTestRedisDB)
	q := NewQueueWithClient(client, Config{Workers: 1, MaxRetries: 3})
	ctx := context.Background()

	job, err := q.EnqueueDelayed(ctx, JobTypeAdvanceOrder, AdvanceOrderPayload{OrderID: "ord-1"}.ToMap(), time.Minute)
	require.NoError(t, err)
	assert.Equal(t, JobStatusScheduled, job.Status)

	delayed, err := q.GetDelayedSize(ctx)
	require.NoError(t, err)
	assert.EqualValues(t, 1, delayed)

	n, err := q.promoteDue(ctx, time.Now())
	require.NoError(t, err)
	assert.Equal(t, 0, n, "job is not due yet")

	n, err = q.promoteDue(ctx, time.Now().Add(2*time.Minute))
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	size, err := q.GetQueueSize(ctx)
	require.NoError(t, err)
	assert.EqualValues(t, 1, size)

	stored, err := q.GetJob(ctx, job.ID)
	require.NoError(t, err)
	assert.Equal(t, JobStatusPending, stored.Status)

	// A second promoter pass finds nothing left.
	n, err = q.promoteDue(ctx, time.Now().Add(2*time.Minute))
	require.NoError(t, err)
	assert.Equal(t, 0, n)
}

func TestProcessJob_RetriesThenFails(t *testing.T) {
	client := newIsolatedRedisClient(t, isolatedJobQueueTestRedisDB)
	q := NewQueueWithClient(client, Config{Workers: 1, MaxRetries: 2, RetryBase: time.Minute, RetryMax: time.Hour})
	ctx := context.Background()

	var calls int32
	q.RegisterHandler(JobTypeAdvanceOrder, func(ctx context.Context, job *Job) error {
		atomic.AddInt32(&calls, 1)
		return errors.New("storage unavailable")
	})

	_, err := q.EnqueueJob(ctx, JobTypeAdvanceOrder, AdvanceOrderPayload{OrderID: "ord-2"}.ToMap())
	require.NoError(t, err)

	job, err := q.dequeueJob(ctx)
	require.NoError(t, err)
	q.processJob(ctx, job)

	stored, err := q.GetJob(ctx, job.ID)
	require.NoError(t, err)
	assert.Equal(t, JobStatusRetrying, stored.Status)
	assert.Equal(t, 1, stored.RetryCount)
	require.NotNil(t, stored.RunAt)

	processing, err := q.GetProcessingSize(ctx)
	require.NoError(t, err)
	assert.EqualValues(t, 0, processing)

	n, err := q.promoteDue(ctx, time.Now().Add(2*time.Minute))
	require.NoError(t, err)
	require.Equal(t, 1, n)

	job, err = q.dequeueJob(ctx)
	require.NoError(t, err)
	q.processJob(ctx, job)

	stored, err = q.GetJob(ctx, job.ID)
	require.NoError(t, err)
	assert.Equal(t, JobStatusFailed, stored.Status)
	assert.Equal(t, 2, stored.RetryCount)
	assert.EqualValues(t, 2, atomic.LoadInt32(&calls))

	delayed, err := q.GetDelayedSize(ctx)
	require.NoError(t, err)
	assert.EqualValues(t, 0, delayed)

	stats, err := q.GetJobStats(ctx)
	require.NoError(t, err)
	assert.EqualValues(t, 1, stats[JobStatusFailed])
	assert.EqualValues(t, 1, stats[JobStatusRetrying])
}

func TestWorkersRunRegisteredHandler(t *testing.T) {
	client := newIsolatedRedisClient(t, isolatedJobQueueTestRedisDB)
	q := NewQueueWithClient(client, Config{Workers: 2, PromoteInterval: 50 * time.Millisecond})
	ctx := context.Background()

	done := make(chan string, 2)
	q.RegisterHandler(JobTypeAdvanceOrder, func(ctx context.Context, job *Job) error {
		p, err := AdvanceOrderPayloadFromMap(job.Payload)
		if err != nil {
			return err
		}
		done <- p.OrderID
		return nil
	})

	q.Start()
	defer q.Stop()

	_, err := q.EnqueueJob(ctx, JobTypeAdvanceOrder, AdvanceOrderPayload{OrderID: "now"}.ToMap())
	require.NoError(t, err)
	_, err = q.EnqueueDelayed(ctx, JobTypeAdvanceOrder, AdvanceOrderPayload{OrderID: "soon"}.ToMap(), 100*time.Millisecond)
	require.NoError(t, err)

	got := map[string]bool{}
	for i := 0; i < 2; i++ {
		select {
		case id := <-done:
			got[id] = true
		case <-time.After(5 * time.Second):
			t.Fatalf("timed out waiting for jobs, got %v", got)
		}
	}
	assert.True(t, got["now"])
	assert.True(t, got["soon"])

	assert.Eventually(t, func() bool {
		stats, err := q.GetJobStats(ctx)
		return err == nil && stats[JobStatusCompleted] == 2
	}, 3*time.Second, 20*time.Millisecond)
}

func TestProcessJobCancelledIsRequeued(t *testing.T) {
	client := newIsolatedRedisClient(t, isolatedJobQueueTestRedisDB)
	q := NewQueueWithClient(client, Config{Workers: 1, MaxRetries: 3})
	ctx := context.Background()

	job, err := q.EnqueueJob(ctx, JobTypeAdvanceOrder, AdvanceOrderPayload{OrderID: "ord-1"}.ToMap())
	require.NoError(t, err)
	job, err = q.dequeueJob(ctx)
	require.NoError(t, err)

	runCtx, cancel := context.WithCancel(ctx)
	q.RegisterHandler(JobTypeAdvanceOrder, func(ctx context.Context, job *Job) error {
		cancel()
		return ctx.Err()
	})
	q.processJob(runCtx, job)

	stored, err := q.GetJob(ctx, job.ID)
	require.NoError(t, err)
	assert.Equal(t, JobStatusPending, stored.Status)
	assert.Equal(t, 0, stored.RetryCount)

	size, err := q.GetQueueSize(ctx)
	require.NoError(t, err)
	assert.EqualValues(t, 1, size)
	processing, err := client.LLen(ctx, JobProcessingKey).Result()
	require.NoError(t, err)
	assert.EqualValues(t, 0, processing)
}

func TestStopCancelsRunningHandler(t *testing.T) {
	client := newIsolatedRedisClient(t, isolatedJobQueueTestRedisDB)
	q := NewQueueWithClient(client, Config{Workers: 1, MaxRetries: 3})
	ctx := context.Background()

	started := make(chan struct{})
	q.RegisterHandler(JobTypeAdvanceOrder, func(ctx context.Context, job *Job) error {
		close(started)
		<-ctx.Done()
		return ctx.Err()
	})
	_, err := q.EnqueueJob(ctx, JobTypeAdvanceOrder, AdvanceOrderPayload{OrderID: "ord-1"}.ToMap())
	require.NoError(t, err)

	q.Start()
	select {
	case <-started:
	case <-time.After(5 * time.Second):
		t.Fatal("handler did not start")
	}

	stopped := make(chan struct{})
	go func() {
		q.Stop()
		close(stopped)
	}()
	select {
	case <-stopped:
	case <-time.After(5 * time.Second):
		t.Fatal("Stop blocked on a running handler")
	}

	size, err := q.GetQueueSize(ctx)
	require.NoError(t, err)
	assert.EqualValues(t, 1, size)
}

func TestRecoverStuck(t *testing.T) {
	client := newIsolatedRedisClient(t, isolatedJobQueueTestRedisDB)
	q := NewQueueWithClient(client, Config{Workers: 1})
	ctx := context.Background()

	started := time.Now().Add(-time.Hour)
	stuck := &Job{ID: "stuck-1", Type: JobTypeAdvanceOrder, Status: JobStatusProcessing, ProcessedAt: &started, UpdatedAt: started}
	fresh := &Job{ID: "fresh-1", Type: JobTypeAdvanceOrder, Status: JobStatusProcessing, UpdatedAt: time.Now()}
	for _, job := range []*Job{stuck, fresh} {
		data, err := json.Marshal(job)
		require.NoError(t, err)
		require.NoError(t, client.Set(ctx, JobKeyPrefix+job.ID, data, JobTTL).Err())
		require.NoError(t, client.LPush(ctx, JobProcessingKey, job.ID).Err())
	}
	require.NoError(t, client.LPush(ctx, JobProcessingKey, "orphan").Err())

	assert.Equal(t, 1, q.recoverStuck(ctx, time.Now(), 10*time.Minute))

	ids, err := client.LRange(ctx, JobQueueKey, 0, -1).Result()
	require.NoError(t, err)
	assert.Equal(t, []string{"stuck-1"}, ids)

	processing, err := client.LRange(ctx, JobProcessingKey, 0, -1).Result()
	require.NoError(t, err)
	assert.Equal(t, []string{"fresh-1"}, processing)
}

func TestSnapshot(t *testing.T) {
	client := newIsolatedRedisClient(t, isolatedJobQueueTestRedisDB)
	q := NewQueueWithClient(client, Config{Workers: 1})
	ctx := context.Background()

	_, err := q.EnqueueJob(ctx, JobTypeAdvanceOrder, AdvanceOrderPayload{OrderID: "a"}.ToMap())
	require.NoError(t, err)
	_, err = q.EnqueueDelayed(ctx, JobTypeAdvanceOrder, AdvanceOrderPayload{OrderID: "b"}.ToMap(), time.Hour)
	require.NoError(t, err)

	s, err := q.Snapshot(ctx)
	require.NoError(t, err)
	assert.EqualValues(t, 1, s.Pending)
	assert.EqualValues(t, 1, s.Delayed)
	assert.EqualValues(t, 0, s.Processing)
	assert.EqualValues(t, 1, s.Totals[JobStatusPending])
	assert.EqualValues(t, 1, s.Totals[JobStatusScheduled])
}
