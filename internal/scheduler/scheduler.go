// internal/scheduler/scheduler.go
package scheduler

import (
	"context"
	"log/slog"
	"time"

	"github.com/robfig/cron/v3"
)

// Job is a named piece of periodic maintenance work.
type Job struct {
	Name     string
	Schedule string
	Run      func(ctx context.Context) error
}

// Scheduler evaluates cron expressions for a fixed set of jobs.
type Scheduler struct {
	jobs    []Job
	cron    *cron.Cron
	timeout time.Duration
	logger  *slog.Logger
}

// cronParser accepts both standard 5-field cron expressions and 6-field
// expressions with an optional seconds field.
var cronParser = cron.NewParser(
	cron.SecondOptional | cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor,
)

// defaultJobTimeout bounds a single job execution.
const defaultJobTimeout = 2 * time.Minute

// New creates a Scheduler for the given jobs.
func New(logger *slog.Logger, jobs ...Job) *Scheduler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Scheduler{
		jobs:    jobs,
		cron:    cron.New(cron.WithParser(cronParser)),
		timeout: defaultJobTimeout,
		logger:  logger,
	}
}

// Validate checks that schedule is a cron expression Start would accept.
func Validate(schedule string) error {
	_, err := cronParser.Parse(schedule)
	return err
}

// Start registers every job that has a schedule and starts the cron ticker.
// Jobs with an invalid schedule are logged and skipped.
func (s *Scheduler) Start() {
	for _, job := range s.jobs {
		if job.Schedule == "" || job.Run == nil {
			continue
		}

		job := job
		_, err := s.cron.AddFunc(job.Schedule, func() {
			s.logger.Debug("cron firing job", "name", job.Name)
			s.run(job)
		})
		if err != nil {
			s.logger.Error("invalid cron schedule", "name", job.Name, "schedule", job.Schedule, "error", err)
			continue
		}
		s.logger.Info("scheduled job", "name", job.Name, "schedule", job.Schedule)
	}

	s.cron.Start()
}

// RunNow executes every job once, synchronously, and returns how many failed.
func (s *Scheduler) RunNow() int {
	failed := 0
	for _, job := range s.jobs {
		if job.Run == nil {
			continue
		}
		if !s.run(job) {
			failed++
		}
	}
	return failed
}

func (s *Scheduler) run(job Job) bool {
	ctx, cancel := context.WithTimeout(context.Background(), s.timeout)
	defer cancel()
	if err := job.Run(ctx); err != nil {
		s.logger.Error("job failed", "name", job.Name, "error", err)
		return false
	}
	return true
}

// Stop stops the cron ticker and waits for running jobs to finish.
func (s *Scheduler) Stop() {
	<-s.cron.Stop().Done()
}
