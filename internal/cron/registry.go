package cron

import (
	"context"
	"time"
)

// Job is a unit of scheduled settlement work.
type Job interface {
	Name() string
	Run(ctx context.Context) error
}

// entry pairs a job with how often it should run. A zero every runs the job
// on each cycle.
type entry struct {
	job   Job
	every time.Duration
}

// Registry tracks jobs in registration order.
type Registry struct {
	entries []entry
}

// NewRegistry builds a registry whose jobs run on every cycle.
func NewRegistry(jobs ...Job) *Registry {
	registry := &Registry{}
	for _, job := range jobs {
		registry.Register(job, 0)
	}
	return registry
}

// Register adds a job that runs at most once per every.
func (r *Registry) Register(job Job, every time.Duration) {
	if job == nil {
		return
	}
	if every < 0 {
		every = 0
	}
	r.entries = append(r.entries, entry{job: job, every: every})
}

// Jobs returns the registered jobs in the order they were added.
func (r *Registry) Jobs() []Job {
	jobs := make([]Job, 0, len(r.entries))
	for _, e := range r.entries {
		jobs = append(jobs, e.job)
	}
	return jobs
}

func (r *Registry) snapshot() []entry {
	out := make([]entry, len(r.entries))
	copy(out, r.entries)
	return out
}
