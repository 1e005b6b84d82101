package scheduler

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sharma-sourabh3435/promptqueue/internal/models"
	"github.com/sharma-sourabh3435/promptqueue/internal/storage"
	"github.com/sharma-sourabh3435/promptqueue/pkg/utils"
)

type harness struct {
	t      *testing.T
	sched  *Scheduler
	clock  *fakeClock
	sender *fakeSender
	opener *fakeOpener
	events *recordingNotifier
	repo   *storage.MemoryStorage
	// highest completed count seen per worker
	completed map[string]int
}

func newHarness(t *testing.T, configure func(*Config)) *harness {
	t.Helper()

	h := &harness{
		t:      t,
		clock:  newFakeClock(),
		sender: &fakeSender{fail: map[string]error{}},
		events: &recordingNotifier{},
		repo:   storage.NewMemoryStorage(),

		completed: make(map[string]int),
	}
	config := Config{
		Storage:                h.repo,
		Sender:                 h.sender,
		Notifier:               h.events,
		Clock:                  h.clock,
		Logger:                 utils.NewTestLogger(),
		ThresholdPercent:       65,
		Pipelining:             true,
		GuardCooldown:          10 * time.Second,
		ThresholdDispatchDelay: 2 * time.Second,
		ErrorRetryDelay:        3 * time.Second,
	}
	if configure != nil {
		configure(&config)
	}
	if opener, ok := config.Opener.(*fakeOpener); ok {
		h.opener = opener
	}

	h.sched = NewScheduler(config)
	t.Cleanup(h.sched.Stop)
	return h
}

func (h *harness) snapshot() *models.Session {
	h.t.Helper()
	session, err := h.sched.Snapshot()
	require.NoError(h.t, err)
	return session
}

func (h *harness) job(seq int) *models.Job {
	h.t.Helper()
	for _, w := range h.snapshot().Workers {
		for _, job := range w.Queue.Jobs {
			if job.SequenceNumber == seq {
				return job
			}
		}
	}
	h.t.Fatalf("no job with sequence %d", seq)
	return nil
}

func (h *harness) status(seq int) models.JobStatus {
	return h.job(seq).Status
}

func (h *harness) waitStatus(seq int, status models.JobStatus) {
	h.t.Helper()
	require.Eventually(h.t, func() bool {
		return h.status(seq) == status
	}, time.Second, 5*time.Millisecond, "job %d never reached %s", seq, status)
}

// checkInvariants asserts that every worker holds at most one job in its
// submission slot with at most one pipelined job trailing it, and that no
// completed count went down since the last check
func (h *harness) checkInvariants() {
	h.t.Helper()
	for _, w := range h.snapshot().Workers {
		inSlot, trailing := 0, 0
		for _, job := range w.Queue.Jobs {
			switch {
			case job.Status.IsInFlight():
				inSlot++
			case job.Status == models.JobStatusDownloading:
				trailing++
			}
		}
		assert.LessOrEqual(h.t, inSlot, 1, "%s has %d jobs in its submission slot", w.ID, inSlot)
		assert.LessOrEqual(h.t, trailing, 1, "%s has %d trailing jobs", w.ID, trailing)

		completed := w.Queue.Completed()
		assert.GreaterOrEqual(h.t, completed, h.completed[w.ID], "%s completed count went down", w.ID)
		h.completed[w.ID] = completed
	}
}

func (h *harness) signal(signal models.Signal) {
	h.t.Helper()
	require.NoError(h.t, h.sched.HandleSignal(context.Background(), signal))
}

func (h *harness) complete(workerID string, seq int) {
	h.t.Helper()
	h.signal(models.Signal{
		WorkerID:       workerID,
		SequenceNumber: seq,
		Kind:           models.SignalCompleted,
		ArtifactURL:    fmt.Sprintf("https://cdn.example.com/%d.mp4", seq),
	})
}

func (h *harness) progress(seq, percent int) {
	h.t.Helper()
	h.signal(models.Signal{
		WorkerID:       "worker-1",
		SequenceNumber: seq,
		Kind:           models.SignalProgress,
		Percent:        percent,
	})
}

func TestSequentialRunCompletesInOrder(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, nil)

	_, err := h.sched.CreateSequentialSession(ctx, []string{"a", "b", "c"}, "morning")
	require.NoError(t, err)
	require.NoError(t, h.sched.Start(ctx))

	for seq := 1; seq <= 3; seq++ {
		h.waitStatus(seq, models.JobStatusProcessing)
		h.checkInvariants()
		// no ref: falls back to the oldest outstanding job
		h.signal(models.Signal{
			WorkerID:    "worker-1",
			Kind:        models.SignalCompleted,
			ArtifactURL: fmt.Sprintf("https://cdn.example.com/%d.mp4", seq),
		})
		h.checkInvariants()
	}

	session := h.snapshot()
	assert.False(t, session.IsRunning)
	assert.NotNil(t, session.FinishedAt)
	assert.Equal(t, 100, session.Percentage())
	assert.Equal(t, 3, session.Workers[0].CompletedCount)
	assert.Equal(t, []string{"a", "b", "c"}, h.sender.Sent())
	assert.Equal(t, "https://cdn.example.com/2.mp4", h.job(2).ResultURL)

	require.Eventually(t, func() bool {
		return h.events.Count(models.EventBatchFinished) == 1
	}, time.Second, 5*time.Millisecond)
	event, _ := h.events.Last(models.EventBatchFinished)
	assert.Equal(t, "morning", event.Label)
}

func TestPartitionPrompts(t *testing.T) {
	tests := []struct {
		total int
		n     int
		sizes []int
	}{
		{5, 3, []int{2, 2, 1}},
		{4, 3, []int{2, 2, 0}},
		{1, 4, []int{1, 0, 0, 0}},
		{6, 1, []int{6}},
		{7, 7, []int{1, 1, 1, 1, 1, 1, 1}},
	}

	for _, tt := range tests {
		t.Run(fmt.Sprintf("%d/%d", tt.total, tt.n), func(t *testing.T) {
			prompts := make([]string, tt.total)
			for i := range prompts {
				prompts[i] = fmt.Sprintf("p%d", i)
			}
			parts := PartitionPrompts(prompts, tt.n)
			require.Len(t, parts, tt.n)
			for i, part := range parts {
				assert.Len(t, part, tt.sizes[i])
			}
		})
	}
}

func TestPartitionKeepsOrderAndCoversPool(t *testing.T) {
	for total := 0; total <= 20; total++ {
		for n := 1; n <= 6; n++ {
			prompts := make([]string, total)
			for i := range prompts {
				prompts[i] = fmt.Sprintf("p%d", i)
			}

			var joined []string
			for _, part := range PartitionPrompts(prompts, n) {
				joined = append(joined, part...)
			}
			assert.Equal(t, len(prompts), len(joined), "total=%d n=%d", total, n)
			if total > 0 {
				assert.Equal(t, prompts, joined, "total=%d n=%d", total, n)
			}
		}
	}
}

func TestCreateParallelSession(t *testing.T) {
	h := newHarness(t, nil)

	session, err := h.sched.CreateParallelSession(context.Background(), []string{"a", "b", "c", "d", "e"}, 3, "")
	require.NoError(t, err)

	require.Len(t, session.Workers, 3)
	assert.Equal(t, models.ModeParallel, session.Mode)
	assert.Equal(t, []string{"a", "b", "c", "d", "e"}, session.Prompts)
	assert.NotEmpty(t, session.Label)

	var seqs [][]int
	for _, w := range session.Workers {
		var s []int
		for _, job := range w.Queue.Jobs {
			s = append(s, job.SequenceNumber)
			assert.Equal(t, models.JobStatusPending, job.Status)
		}
		seqs = append(seqs, s)
	}
	assert.Equal(t, [][]int{{1, 2}, {3, 4}, {5}}, seqs)
	assert.Equal(t, "e", session.Workers[2].Queue.Jobs[0].Prompt)

	stored, err := h.repo.Load(context.Background())
	require.NoError(t, err)
	assert.Equal(t, session.ID, stored.ID)
}

func TestCreateSessionValidation(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, nil)

	_, err := h.sched.CreateSequentialSession(ctx, []string{" ", ""}, "")
	assert.ErrorIs(t, err, ErrNoPrompts)

	_, err = h.sched.CreateParallelSession(ctx, []string{"a"}, 0, "")
	assert.ErrorIs(t, err, ErrInvalidWorkerCount)

	_, err = h.sched.CreateParallelSession(ctx, []string{"a"}, 17, "")
	assert.ErrorIs(t, err, ErrInvalidWorkerCount)

	session, err := h.sched.CreateSession(ctx, models.CreateSessionRequest{Text: "one\n\n two \n"})
	require.NoError(t, err)
	assert.Equal(t, models.ModeSequential, session.Mode)
	assert.Equal(t, 2, session.Workers[0].Queue.Total())

	require.NoError(t, h.sched.Start(ctx))
	_, err = h.sched.CreateSequentialSession(ctx, []string{"x"}, "")
	assert.ErrorIs(t, err, ErrSessionExists)
}

func TestThresholdDispatchesNextExactlyOnce(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, nil)

	_, err := h.sched.CreateSequentialSession(ctx, []string{"a", "b", "c"}, "")
	require.NoError(t, err)
	require.NoError(t, h.sched.Start(ctx))

	h.waitStatus(1, models.JobStatusProcessing)
	h.checkInvariants()
	h.complete("worker-1", 1)
	h.checkInvariants()
	h.waitStatus(2, models.JobStatusProcessing)

	h.progress(2, 70)
	h.checkInvariants()
	h.progress(2, 75)
	h.checkInvariants()
	assert.Len(t, h.sender.Sent(), 2, "nothing is sent before the dispatch delay")
	assert.True(t, h.snapshot().Workers[0].GuardActive(h.clock.Now()))

	h.clock.Advance(2 * time.Second)
	h.waitStatus(3, models.JobStatusProcessing)
	h.checkInvariants()
	assert.Equal(t, models.JobStatusDownloading, h.status(2))
	assert.Equal(t, []string{"a", "b", "c"}, h.sender.Sent())

	// a trailing job and an active guard both suppress further thresholds
	h.progress(3, 90)
	h.checkInvariants()
	h.clock.Advance(2 * time.Second)
	h.checkInvariants()
	assert.Len(t, h.sender.Sent(), 3)

	h.complete("worker-1", 2)
	h.checkInvariants()
	assert.Equal(t, models.JobStatusCompleted, h.status(2))
	assert.Equal(t, models.JobStatusProcessing, h.status(3))
	assert.True(t, h.snapshot().IsRunning)

	h.complete("worker-1", 3)
	h.checkInvariants()
	assert.False(t, h.snapshot().IsRunning)
	assert.Len(t, h.sender.Sent(), 3)
}

func TestCompletionDuringThresholdDelay(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, nil)

	_, err := h.sched.CreateSequentialSession(ctx, []string{"a", "b", "c"}, "")
	require.NoError(t, err)
	require.NoError(t, h.sched.Start(ctx))

	h.waitStatus(1, models.JobStatusProcessing)
	h.progress(1, 80)
	h.complete("worker-1", 1)
	assert.Equal(t, []string{"a"}, h.sender.Sent(), "the scheduled threshold dispatch owns the next send")

	h.clock.Advance(2 * time.Second)
	h.waitStatus(2, models.JobStatusProcessing)
	assert.Equal(t, []string{"a", "b"}, h.sender.Sent())
	assert.Equal(t, models.JobStatusPending, h.status(3))
}

func TestThresholdIgnoredBelowPercentOrWhenDisabled(t *testing.T) {
	ctx := context.Background()

	h := newHarness(t, nil)
	_, err := h.sched.CreateSequentialSession(ctx, []string{"a", "b"}, "")
	require.NoError(t, err)
	require.NoError(t, h.sched.Start(ctx))
	h.waitStatus(1, models.JobStatusProcessing)

	h.progress(1, 50)
	assert.Equal(t, 0, h.clock.Pending())
	assert.Equal(t, 50, h.job(1).Progress)

	off := newHarness(t, func(c *Config) { c.Pipelining = false })
	_, err = off.sched.CreateSequentialSession(ctx, []string{"a", "b"}, "")
	require.NoError(t, err)
	require.NoError(t, off.sched.Start(ctx))
	off.waitStatus(1, models.JobStatusProcessing)

	off.progress(1, 95)
	assert.Equal(t, 0, off.clock.Pending())
	assert.Equal(t, models.JobStatusProcessing, off.status(1))
}

func TestErrorRecordsFailureAndAdvancesAfterDelay(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, nil)

	_, err := h.sched.CreateSequentialSession(ctx, []string{"a", "b", "c"}, "")
	require.NoError(t, err)
	require.NoError(t, h.sched.Start(ctx))

	h.waitStatus(1, models.JobStatusProcessing)
	h.complete("worker-1", 1)
	h.waitStatus(2, models.JobStatusProcessing)

	h.signal(models.Signal{WorkerID: "worker-1", SequenceNumber: 2, Kind: models.SignalError, Message: "x"})
	assert.Equal(t, models.JobStatusError, h.status(2))
	assert.Equal(t, "x", h.job(2).Error)
	assert.Equal(t, models.JobStatusPending, h.status(3))

	failed, err := h.sched.FailedJobs()
	require.NoError(t, err)
	require.Len(t, failed, 1)
	assert.Equal(t, 2, failed[0].SequenceNumber)
	assert.Equal(t, "b", failed[0].Prompt)
	assert.Equal(t, "x", failed[0].Message)

	h.clock.Advance(3 * time.Second)
	h.waitStatus(3, models.JobStatusProcessing)

	assert.ErrorIs(t, h.sched.RetryJob(ctx, h.job(3).ID), ErrInvalidTransition)
	require.NoError(t, h.sched.RetryJob(ctx, failed[0].JobID))
	assert.Equal(t, models.JobStatusPending, h.status(2))
	failed, _ = h.sched.FailedJobs()
	assert.Empty(t, failed)

	h.complete("worker-1", 3)
	h.waitStatus(2, models.JobStatusProcessing)
	h.complete("worker-1", 2)
	assert.False(t, h.snapshot().IsRunning)
	assert.Equal(t, []string{"a", "b", "c", "b"}, h.sender.Sent())
}

func TestOutcomeDuringDelayedSend(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, func(c *Config) { c.SendDelay = 2 * time.Second })

	_, err := h.sched.CreateSequentialSession(ctx, []string{"a", "b", "c"}, "")
	require.NoError(t, err)
	require.NoError(t, h.sched.Start(ctx))
	assert.Equal(t, models.JobStatusSending, h.status(1))

	// the observer saw the page fail before the send was acknowledged
	h.signal(models.Signal{WorkerID: "worker-1", Kind: models.SignalError, Message: "page crashed"})
	assert.Equal(t, models.JobStatusError, h.status(1))
	h.checkInvariants()

	h.clock.Advance(3 * time.Second)
	assert.Equal(t, models.JobStatusSending, h.status(2))

	h.complete("worker-1", 2)
	assert.Equal(t, models.JobStatusCompleted, h.status(2))
	assert.Equal(t, models.JobStatusSending, h.status(3))
	h.checkInvariants()

	h.clock.Advance(2 * time.Second)
	h.waitStatus(3, models.JobStatusProcessing)
	assert.Equal(t, []string{"c"}, h.sender.Sent(), "jobs that already have an outcome are never sent")
	assert.Equal(t, models.JobStatusError, h.status(1))
	assert.Equal(t, models.JobStatusCompleted, h.status(2))
}

func TestPausedWorkerIsSkipped(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, nil)

	_, err := h.sched.CreateParallelSession(ctx, []string{"a", "b", "c", "d"}, 2, "")
	require.NoError(t, err)
	require.NoError(t, h.sched.PauseWorker(ctx, "worker-2"))
	require.NoError(t, h.sched.Start(ctx))

	h.waitStatus(1, models.JobStatusProcessing)
	assert.Equal(t, models.JobStatusPending, h.status(3))
	assert.Equal(t, []string{"a"}, h.sender.Sent())

	require.NoError(t, h.sched.ResumeWorker(ctx, "worker-2"))
	h.waitStatus(3, models.JobStatusProcessing)

	assert.ErrorIs(t, h.sched.PauseWorker(ctx, "worker-9"), ErrWorkerNotFound)
}

func TestDuplicateCompletionIsIgnored(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, nil)

	_, err := h.sched.CreateSequentialSession(ctx, []string{"a", "b", "c"}, "")
	require.NoError(t, err)
	require.NoError(t, h.sched.Start(ctx))
	h.waitStatus(1, models.JobStatusProcessing)

	completed := models.Signal{
		WorkerID:    "worker-1",
		JobID:       h.job(1).ID,
		Kind:        models.SignalCompleted,
		ArtifactURL: "https://cdn.example.com/a.mp4",
	}
	h.signal(completed)
	h.waitStatus(2, models.JobStatusProcessing)
	saves := h.repo.Saves()

	h.signal(completed)
	// same artifact with no job reference
	h.signal(models.Signal{WorkerID: "worker-1", Kind: models.SignalCompleted, ArtifactURL: "https://cdn.example.com/a.mp4"})

	assert.Equal(t, models.JobStatusProcessing, h.status(2))
	assert.Equal(t, []string{"a", "b"}, h.sender.Sent())
	assert.Equal(t, saves, h.repo.Saves())
	assert.Equal(t, 1, h.snapshot().Workers[0].CompletedCount)
}

func TestSendFailureFallsBackToManualPaste(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, nil)
	h.sender.fail["b"] = errTabGone

	_, err := h.sched.CreateSequentialSession(ctx, []string{"a", "b"}, "")
	require.NoError(t, err)
	require.NoError(t, h.sched.Start(ctx))

	h.waitStatus(1, models.JobStatusProcessing)
	h.complete("worker-1", 1)
	h.waitStatus(2, models.JobStatusProcessing)

	session := h.snapshot()
	require.Len(t, session.ManualPaste, 1)
	assert.Equal(t, "b", session.ManualPaste[0].Prompt)
	assert.Equal(t, errTabGone.Error(), session.ManualPaste[0].Reason)

	require.Eventually(t, func() bool {
		return h.events.Count(models.EventManualPaste) == 1
	}, time.Second, 5*time.Millisecond)
	event, _ := h.events.Last(models.EventManualPaste)
	assert.Equal(t, "b", event.Prompt)

	// the operator pasted it; the generation still reports back normally
	h.complete("worker-1", 2)
	assert.False(t, h.snapshot().IsRunning)
}

func TestParallelSessionFinishesOnce(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, nil)

	_, err := h.sched.CreateParallelSession(ctx, []string{"a", "b", "c", "d"}, 3, "")
	require.NoError(t, err)
	require.NoError(t, h.sched.Start(ctx))

	for _, step := range []struct {
		worker string
		seq    int
	}{{"worker-1", 1}, {"worker-2", 3}, {"worker-1", 2}, {"worker-2", 4}} {
		h.waitStatus(step.seq, models.JobStatusProcessing)
		h.complete(step.worker, step.seq)
	}

	session := h.snapshot()
	assert.False(t, session.IsRunning)
	assert.Equal(t, 100, session.Percentage())
	assert.Empty(t, session.Workers[2].Queue.Jobs)

	require.Eventually(t, func() bool {
		return h.events.Count(models.EventBatchFinished) == 1
	}, time.Second, 5*time.Millisecond)
	assert.Equal(t, 4, h.events.Count(models.EventJobCompleted))
}

func TestChannelLifecycle(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, func(c *Config) { c.Opener = &fakeOpener{} })

	_, err := h.sched.CreateParallelSession(ctx, []string{"a", "b"}, 2, "")
	require.NoError(t, err)
	require.NoError(t, h.sched.Start(ctx))

	h.waitStatus(1, models.JobStatusProcessing)
	h.waitStatus(2, models.JobStatusProcessing)
	assert.ElementsMatch(t, []string{"tab-1", "tab-2"}, h.sched.ChannelIDs())

	// signals can address a worker by its channel
	h.signal(models.Signal{ChannelID: "tab-2", SequenceNumber: 2, Kind: models.SignalProgress, Percent: 30})
	assert.Equal(t, 30, h.job(2).Progress)

	require.NoError(t, h.sched.ChannelClosed(ctx, "tab-1"))
	w := h.snapshot().Workers[0]
	assert.Equal(t, models.WorkerStatusError, w.Status)
	assert.Empty(t, w.ChannelID)
	require.Eventually(t, func() bool {
		return h.events.Count(models.EventWorkerClosed) == 1
	}, time.Second, 5*time.Millisecond)

	assert.ErrorIs(t, h.sched.ChannelClosed(ctx, "tab-404"), ErrWorkerNotFound)

	require.NoError(t, h.sched.AttachChannel(ctx, 0, "tab-9"))
	w = h.snapshot().Workers[0]
	assert.Equal(t, "tab-9", w.ChannelID)
	assert.Equal(t, models.WorkerStatusProcessing, w.Status)

	require.NoError(t, h.sched.Clear(ctx))
	assert.ElementsMatch(t, []string{"tab-9", "tab-2"}, h.opener.closed)
	_, err = h.sched.Snapshot()
	assert.ErrorIs(t, err, ErrNoSession)

	stored, err := h.repo.Load(ctx)
	require.NoError(t, err)
	assert.Nil(t, stored)
}

func TestOpenFailureMarksWorkersError(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, func(c *Config) { c.Opener = &fakeOpener{err: errTabGone} })

	_, err := h.sched.CreateSequentialSession(ctx, []string{"a"}, "")
	require.NoError(t, err)
	require.NoError(t, h.sched.Start(ctx))

	require.Eventually(t, func() bool {
		return h.snapshot().Workers[0].Status == models.WorkerStatusError
	}, time.Second, 5*time.Millisecond)
	assert.Equal(t, models.JobStatusPending, h.status(1))
	assert.Empty(t, h.sender.Sent())
}

func TestPauseStopsDispatch(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, nil)

	_, err := h.sched.CreateSequentialSession(ctx, []string{"a", "b"}, "")
	require.NoError(t, err)
	require.NoError(t, h.sched.Start(ctx))
	h.waitStatus(1, models.JobStatusProcessing)

	require.NoError(t, h.sched.Pause(ctx))
	h.complete("worker-1", 1)
	assert.Equal(t, models.JobStatusPending, h.status(2))

	require.NoError(t, h.sched.Start(ctx))
	h.waitStatus(2, models.JobStatusProcessing)

	require.NoError(t, h.sched.ResetSession(ctx))
	session := h.snapshot()
	assert.False(t, session.IsRunning)
	assert.Equal(t, 0, session.Percentage())
	for _, job := range session.Workers[0].Queue.Jobs {
		assert.Equal(t, models.JobStatusPending, job.Status)
	}
}

func TestResetStuckJob(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, nil)

	_, err := h.sched.CreateParallelSession(ctx, []string{"a", "b", "c", "d"}, 2, "")
	require.NoError(t, err)
	require.NoError(t, h.sched.Start(ctx))
	h.waitStatus(1, models.JobStatusProcessing)

	require.NoError(t, h.sched.ResetJob(ctx, h.job(1).ID))
	h.waitStatus(1, models.JobStatusProcessing)
	assert.Equal(t, 2, h.job(1).Attempts)

	assert.ErrorIs(t, h.sched.ResetJob(ctx, "missing"), ErrJobNotFound)

	h.waitStatus(3, models.JobStatusProcessing)
	h.signal(models.Signal{WorkerID: "worker-2", SequenceNumber: 3, Kind: models.SignalError, Message: "quota"})
	h.clock.Advance(3 * time.Second)
	h.waitStatus(4, models.JobStatusProcessing)
	h.signal(models.Signal{WorkerID: "worker-2", SequenceNumber: 4, Kind: models.SignalError, Message: "quota"})

	count, err := h.sched.RetryFailed(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, count)
	h.waitStatus(3, models.JobStatusProcessing)
	assert.Equal(t, models.JobStatusPending, h.status(4))

	require.NoError(t, h.sched.ResetWorker(ctx, "worker-2"))
	h.waitStatus(3, models.JobStatusProcessing)
	failed, _ := h.sched.FailedJobs()
	assert.Empty(t, failed)
}

func TestSignalValidation(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, nil)

	assert.ErrorIs(t, h.sched.HandleSignal(ctx, models.Signal{WorkerID: "worker-1", Kind: models.SignalProgress}), ErrNoSession)

	_, err := h.sched.CreateSequentialSession(ctx, []string{"a"}, "")
	require.NoError(t, err)

	assert.ErrorIs(t, h.sched.HandleSignal(ctx, models.Signal{WorkerID: "worker-7", Kind: models.SignalProgress}), ErrWorkerNotFound)
	assert.ErrorIs(t, h.sched.HandleSignal(ctx, models.Signal{WorkerID: "worker-1", Kind: "paused"}), ErrUnknownSignal)
	// nothing outstanding yet
	assert.NoError(t, h.sched.HandleSignal(ctx, models.Signal{WorkerID: "worker-1", Kind: models.SignalCompleted}))
	assert.Equal(t, models.JobStatusPending, h.status(1))
}
