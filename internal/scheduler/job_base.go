package scheduler

import (
	"context"
	"time"

	"github.com/rs/zerolog"
)

// defaultJobTimeout bounds a single run of a job.
const defaultJobTimeout = 10 * time.Minute

// JobBase carries the logger and run timeout shared by every job.
type JobBase struct {
	log     zerolog.Logger
	timeout time.Duration
}

// SetLogger sets the logger for the job
func (j *JobBase) SetLogger(log zerolog.Logger) {
	j.log = log
}

// SetTimeout overrides the run timeout.
func (j *JobBase) SetTimeout(d time.Duration) {
	j.timeout = d
}

func (j *JobBase) runContext() (context.Context, context.CancelFunc) {
	timeout := j.timeout
	if timeout <= 0 {
		timeout = defaultJobTimeout
	}
	return context.WithTimeout(context.Background(), timeout)
}
