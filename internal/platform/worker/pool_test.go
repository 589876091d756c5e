package worker

import (
	"context"
	"errors"
	"sort"
	"sync/atomic"
	"testing"
	"time"
)

func warmJob(id string, fn func(ctx context.Context) error) Job {
	return Job{ID: id, Execute: func(ctx context.Context) (any, error) {
		if err := fn(ctx); err != nil {
			return nil, err
		}
		return id, nil
	}}
}

func TestSubmitAndWait_CollectsEveryJob(t *testing.T) {
	pool := NewPoolWithConfig(context.Background(), PoolConfig{Workers: 2, QueueSize: 3})
	defer pool.Close()

	catalogErr := errors.New("catalog backend down")
	jobs := []Job{
		warmJob("products", func(context.Context) error { return nil }),
		warmJob("categories", func(context.Context) error { return nil }),
		warmJob("featured", func(context.Context) error { return catalogErr }),
	}

	results := pool.SubmitAndWait(jobs)
	if len(results) != 3 {
		t.Fatalf("got %d results, want 3", len(results))
	}

	var ids []string
	for _, r := range results {
		ids = append(ids, r.JobID)
		switch r.JobID {
		case "featured":
			if !errors.Is(r.Err, catalogErr) {
				t.Errorf("featured err = %v", r.Err)
			}
		default:
			if r.Err != nil || r.Value != r.JobID {
				t.Errorf("%s: value=%v err=%v", r.JobID, r.Value, r.Err)
			}
		}
	}
	sort.Strings(ids)
	if ids[0] != "categories" || ids[1] != "featured" || ids[2] != "products" {
		t.Errorf("ids = %v", ids)
	}

	t.Log("✓ SubmitAndWait returns one result per job, failures included")
}

func TestSubmitAndWait_StatsAfterDrain(t *testing.T) {
	pool := NewPoolWithConfig(context.Background(), PoolConfig{Workers: 3, QueueSize: 4})

	jobs := make([]Job, 4)
	for i := range jobs {
		fail := i == 0
		jobs[i] = warmJob("page", func(context.Context) error {
			if fail {
				return errors.New("boom")
			}
			return nil
		})
	}
	_ = pool.SubmitAndWait(jobs)
	pool.Close() // waits for workers, counters are final after this

	stats := pool.Stats()
	if stats.JobsSubmitted != 4 || stats.JobsCompleted != 4 || stats.JobsFailed != 1 {
		t.Errorf("stats = %+v", stats)
	}
}

func TestSubmitAndWait_DeadlineCutsWaiting(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
	defer cancel()

	pool := NewPoolWithConfig(ctx, PoolConfig{Workers: 2, QueueSize: 2})
	defer pool.Close()

	jobs := []Job{
		warmJob("fast", func(context.Context) error { return nil }),
		warmJob("stuck", func(ctx context.Context) error {
			<-ctx.Done()
			return ctx.Err()
		}),
	}

	start := time.Now()
	results := pool.SubmitAndWait(jobs)
	if elapsed := time.Since(start); elapsed > time.Second {
		t.Fatalf("SubmitAndWait took %v after the deadline", elapsed)
	}
	for _, r := range results {
		if r.JobID == "stuck" && r.Err == nil {
			t.Error("stuck job should not report success")
		}
	}

	t.Log("✓ SubmitAndWait stops waiting when the pool context ends")
}

func TestSubmitAndWait_JobsSeePoolContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	pool := NewPoolWithConfig(ctx, PoolConfig{Workers: 1, QueueSize: 1})
	defer pool.Close()

	started := make(chan struct{})
	var sawCancel atomic.Bool
	go func() {
		<-started
		cancel()
	}()

	_ = pool.SubmitAndWait([]Job{warmJob("slow", func(ctx context.Context) error {
		close(started)
		select {
		case <-ctx.Done():
			sawCancel.Store(true)
			return ctx.Err()
		case <-time.After(2 * time.Second):
			return nil
		}
	})})

	pool.Close()
	if !sawCancel.Load() {
		t.Error("job did not observe the cancelled context")
	}
}

func TestSubmit_AfterClose(t *testing.T) {
	pool := NewPoolWithConfig(context.Background(), PoolConfig{Workers: 1})
	pool.Close()
	pool.Close() // second close is a no-op

	err := pool.Submit(warmJob("late", func(context.Context) error { return nil }))
	if !errors.Is(err, ErrPoolClosed) {
		t.Errorf("err = %v, want ErrPoolClosed", err)
	}

	results := pool.SubmitAndWait([]Job{warmJob("late", func(context.Context) error { return nil })})
	if len(results) != 1 || !errors.Is(results[0].Err, ErrPoolClosed) {
		t.Errorf("results = %+v", results)
	}
}

func TestNewPoolWithConfig_ClampsSizes(t *testing.T) {
	pool := NewPoolWithConfig(context.Background(), PoolConfig{Workers: 0, QueueSize: -5})
	defer pool.Close()

	// one worker, unbuffered queue: jobs still run
	results := pool.SubmitAndWait([]Job{
		warmJob("a", func(context.Context) error { return nil }),
		warmJob("b", func(context.Context) error { return nil }),
	})
	if len(results) != 2 {
		t.Errorf("got %d results, want 2", len(results))
	}
}
