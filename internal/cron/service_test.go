package cron

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/angelmondragon/vowvendors-backend/pkg/logger"
	"github.com/angelmondragon/vowvendors-backend/pkg/metrics"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

type fakeLock struct {
	acquired bool
	releases int
	err      error
}

func (f *fakeLock) Acquire(context.Context) (bool, error) {
	if f.err != nil {
		return false, f.err
	}
	if f.acquired {
		return false, nil
	}
	f.acquired = true
	return true, nil
}

func (f *fakeLock) Release(context.Context) error {
	f.acquired = false
	f.releases++
	return nil
}

type testJob struct {
	name string
	err  error
	runs int
}

func (t *testJob) Name() string { return t.name }

func (t *testJob) Run(context.Context) error {
	t.runs++
	return t.err
}

func TestServiceRunCycleRunsAllJobsEvenOnFailure(t *testing.T) {
	success := &testJob{name: "success"}
	failure := &testJob{name: "fail", err: errors.New("boom")}
	lock := &fakeLock{}
	reg := prometheus.NewRegistry()
	service, err := NewService(ServiceParams{
		Logger:   logger.Nop(),
		Registry: NewRegistry(success, failure),
		Lock:     lock,
		Metrics:  metrics.NewCronJobMetrics(reg),
	})
	if err != nil {
		t.Fatalf("construct service: %v", err)
	}
	if err := service.runCycle(context.Background()); err != nil {
		t.Fatalf("run cycle: %v", err)
	}
	if success.runs != 1 || failure.runs != 1 {
		t.Fatalf("expected both jobs to run once, got success=%d fail=%d", success.runs, failure.runs)
	}
	if lock.releases != 1 {
		t.Fatalf("expected lock released once, got %d", lock.releases)
	}
	count, err := testutil.GatherAndCount(reg, "vowvendors_job_failure_total", "vowvendors_job_success_total")
	if err != nil {
		t.Fatalf("gather metrics: %v", err)
	}
	if count != 2 {
		t.Fatalf("expected one failure and one success series, got %d", count)
	}
}

func TestServiceRunCycleSkipsWhenLockHeld(t *testing.T) {
	job := &testJob{name: "verify-subscriptions"}
	service, err := NewService(ServiceParams{
		Logger:   logger.Nop(),
		Registry: NewRegistry(job),
		Lock:     &fakeLock{acquired: true},
	})
	if err != nil {
		t.Fatalf("construct service: %v", err)
	}
	if err := service.runCycle(context.Background()); err != nil {
		t.Fatalf("held lock must not be an error: %v", err)
	}
	if job.runs != 0 {
		t.Fatalf("job ran while another instance held the lock")
	}
}

func TestServiceRunCycleLockError(t *testing.T) {
	service, err := NewService(ServiceParams{
		Logger: logger.Nop(),
		Lock:   &fakeLock{err: errors.New("redis down")},
	})
	if err != nil {
		t.Fatalf("construct service: %v", err)
	}
	if err := service.runCycle(context.Background()); err == nil {
		t.Fatalf("expected lock error")
	}
}

func TestServiceSchedule(t *testing.T) {
	cases := []struct {
		spec string
		from time.Time
		want time.Time
	}{
		{
			spec: "",
			from: time.Date(2026, 3, 4, 15, 30, 0, 0, time.UTC),
			want: time.Date(2026, 3, 5, 0, 0, 0, 0, time.UTC),
		},
		{
			spec: "30 2 * * *",
			from: time.Date(2026, 3, 4, 1, 0, 0, 0, time.UTC),
			want: time.Date(2026, 3, 4, 2, 30, 0, 0, time.UTC),
		},
		{
			spec: "@hourly",
			from: time.Date(2026, 3, 4, 1, 15, 0, 0, time.UTC),
			want: time.Date(2026, 3, 4, 2, 0, 0, 0, time.UTC),
		},
	}

	for _, tc := range cases {
		service, err := NewService(ServiceParams{Logger: logger.Nop(), Lock: &fakeLock{}, Schedule: tc.spec})
		if err != nil {
			t.Fatalf("construct service %q: %v", tc.spec, err)
		}
		if got := service.NextRun(tc.from); !got.Equal(tc.want) {
			t.Fatalf("schedule %q: expected %s, got %s", tc.spec, tc.want, got)
		}
	}
}

func TestServiceRejectsInvalidSchedule(t *testing.T) {
	if _, err := NewService(ServiceParams{Logger: logger.Nop(), Lock: &fakeLock{}, Schedule: "every day"}); err == nil {
		t.Fatalf("expected parse error")
	}
}

func TestServiceRunStopsOnCancel(t *testing.T) {
	job := &testJob{name: "verify-subscriptions"}
	service, err := NewService(ServiceParams{
		Logger:     logger.Nop(),
		Registry:   NewRegistry(job),
		Lock:       &fakeLock{},
		RunOnStart: true,
	})
	if err != nil {
		t.Fatalf("construct service: %v", err)
	}
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	if err := service.Run(ctx); !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected deadline exceeded, got %v", err)
	}
	if job.runs != 1 {
		t.Fatalf("expected the start-up run only, got %d", job.runs)
	}
}

func TestWithLockReleasesAfterRun(t *testing.T) {
	lock := &fakeLock{}
	called := false
	err := WithLock(context.Background(), lock, func(context.Context) error {
		called = true
		return nil
	})
	if err != nil || !called {
		t.Fatalf("expected fn to run, err=%v", err)
	}
	if lock.acquired {
		t.Fatalf("lock still held after run")
	}

	lock.acquired = true
	if err := WithLock(context.Background(), lock, func(context.Context) error { return nil }); !errors.Is(err, ErrLockHeld) {
		t.Fatalf("expected ErrLockHeld, got %v", err)
	}
}
