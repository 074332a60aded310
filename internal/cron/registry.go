package cron

import (
	"context"
	"fmt"
)

// Job represents a scheduled task that runs inside the cron worker.
type Job interface {
	Name() string
	Run(ctx context.Context) error
}

// Registry tracks registered cron jobs.
type Registry struct {
	jobs  []Job
	names map[string]struct{}
}

// NewRegistry builds a registry preloaded with the provided jobs.
// Nil jobs and repeated names are dropped.
func NewRegistry(jobs ...Job) *Registry {
	registry := &Registry{names: map[string]struct{}{}}
	for _, job := range jobs {
		_ = registry.Register(job)
	}
	return registry
}

// Register adds a job to the registry. Names must be unique since they
// label metrics and log lines.
func (r *Registry) Register(job Job) error {
	if job == nil {
		return nil
	}
	if r.names == nil {
		r.names = map[string]struct{}{}
	}
	if _, exists := r.names[job.Name()]; exists {
		return fmt.Errorf("cron job %q already registered", job.Name())
	}
	r.names[job.Name()] = struct{}{}
	r.jobs = append(r.jobs, job)
	return nil
}

// Jobs returns the registered jobs in the order they were added.
func (r *Registry) Jobs() []Job {
	jobs := make([]Job, len(r.jobs))
	copy(jobs, r.jobs)
	return jobs
}

// Names lists job names in registration order.
func (r *Registry) Names() []string {
	names := make([]string, 0, len(r.jobs))
	for _, job := range r.jobs {
		names = append(names, job.Name())
	}
	return names
}
