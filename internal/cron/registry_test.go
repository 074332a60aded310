package cron

import (
	"context"
	"testing"
)

type stubJob struct {
	name string
}

func (s *stubJob) Name() string              { return s.name }
func (s *stubJob) Run(context.Context) error { return nil }

func TestRegistryStoresJobs(t *testing.T) {
	registry := NewRegistry()
	jobA := &stubJob{name: "a"}
	jobB := &stubJob{name: "b"}
	if err := registry.Register(jobA); err != nil {
		t.Fatalf("register a: %v", err)
	}
	if err := registry.Register(jobB); err != nil {
		t.Fatalf("register b: %v", err)
	}
	jobs := registry.Jobs()
	if len(jobs) != 2 {
		t.Fatalf("expected 2 jobs, got %d", len(jobs))
	}
	if jobs[0] != jobA || jobs[1] != jobB {
		t.Fatalf("jobs returned out of order")
	}
	jobs[0] = nil
	if registry.Jobs()[0] == nil {
		t.Fatalf("internal slice leaked")
	}
}

func TestRegistryRejectsDuplicateNames(t *testing.T) {
	registry := NewRegistry(&stubJob{name: "verify-subscriptions"}, nil, &stubJob{name: "verify-subscriptions"})
	if got := registry.Names(); len(got) != 1 {
		t.Fatalf("expected one job after dedupe, got %v", got)
	}
	if err := registry.Register(&stubJob{name: "verify-subscriptions"}); err == nil {
		t.Fatalf("expected duplicate registration error")
	}
}
