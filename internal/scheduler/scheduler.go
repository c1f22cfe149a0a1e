// Package scheduler runs the periodic maintenance and refresh jobs.
package scheduler

import (
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"
)

// Job represents a scheduled job
type Job interface {
	Run() error
	Name() string
}

var (
	// ErrUnknownJob is returned when no job is registered under a name.
	ErrUnknownJob = errors.New("unknown job")
	// ErrJobRunning is returned when a job is triggered while it is running.
	ErrJobRunning = errors.New("job is already running")
)

// JobInfo describes a registered job.
type JobInfo struct {
	Name     string `json:"name"`
	Schedule string `json:"schedule,omitempty"`
	Running  bool   `json:"running"`
}

// registeredJob serialises runs of one job across cron and manual triggers.
type registeredJob struct {
	job      Job
	schedule string
	mu       sync.Mutex
	running  bool
}

func (r *registeredJob) tryRun() error {
	r.mu.Lock()
	if r.running {
		r.mu.Unlock()
		return ErrJobRunning
	}
	r.running = true
	r.mu.Unlock()

	defer func() {
		r.mu.Lock()
		r.running = false
		r.mu.Unlock()
	}()
	return r.job.Run()
}

func (r *registeredJob) isRunning() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.running
}

// Scheduler manages background jobs
type Scheduler struct {
	cron *cron.Cron
	jobs map[string]*registeredJob
	mu   sync.RWMutex
	wg   sync.WaitGroup
	log  zerolog.Logger
}

// New creates a new scheduler
func New(log zerolog.Logger) *Scheduler {
	log = log.With().Str("component", "scheduler").Logger()
	cronLog := cronLogger{log: log}
	return &Scheduler{
		cron: cron.New(
			cron.WithSeconds(),
			cron.WithLogger(cronLog),
			cron.WithChain(cron.Recover(cronLog)),
		),
		jobs: make(map[string]*registeredJob),
		log:  log,
	}
}

// Start starts the scheduler
func (s *Scheduler) Start() {
	s.cron.Start()
	s.log.Info().Int("jobs", len(s.Jobs())).Msg("Scheduler started")
}

// Stop stops the scheduler and waits for running jobs, scheduled or
// triggered, to finish.
func (s *Scheduler) Stop() {
	ctx := s.cron.Stop()
	<-ctx.Done()
	s.wg.Wait()
	s.log.Info().Msg("Scheduler stopped")
}

// Register makes a job available to RunNow and Trigger without scheduling it.
func (s *Scheduler) Register(job Job) error {
	_, err := s.register(job, "")
	return err
}

func (s *Scheduler) register(job Job, schedule string) (*registeredJob, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.jobs[job.Name()]; exists {
		return nil, fmt.Errorf("job %s is already registered", job.Name())
	}
	entry := &registeredJob{job: job, schedule: schedule}
	s.jobs[job.Name()] = entry
	return entry, nil
}

// AddJob registers a new job with cron schedule
// Schedule examples:
//   - "0 */5 * * * *"      - Every 5 minutes
//   - "@hourly"            - Every hour
//   - "0 0 6 * * *"        - 6 AM daily
//   - "@every 30s"         - Every 30 seconds
func (s *Scheduler) AddJob(schedule string, job Job) error {
	if _, err := cron.NewParser(
		cron.Second | cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor,
	).Parse(schedule); err != nil {
		return fmt.Errorf("invalid schedule %q for %s: %w", schedule, job.Name(), err)
	}

	entry, err := s.register(job, schedule)
	if err != nil {
		return err
	}

	_, err = s.cron.AddFunc(schedule, func() {
		s.execute(entry)
	})
	if err != nil {
		s.mu.Lock()
		delete(s.jobs, job.Name())
		s.mu.Unlock()
		return err
	}

	s.log.Info().
		Str("schedule", schedule).
		Str("job", job.Name()).
		Msg("Job registered")

	return nil
}

func (s *Scheduler) execute(entry *registeredJob) {
	name := entry.job.Name()
	s.log.Debug().Str("job", name).Msg("Running job")

	switch err := entry.tryRun(); {
	case errors.Is(err, ErrJobRunning):
		s.log.Info().Str("job", name).Msg("Job still running, skipped")
	case err != nil:
		s.log.Error().
			Err(err).
			Str("job", name).
			Msg("Job failed")
	default:
		s.log.Debug().Str("job", name).Msg("Job completed")
	}
}

func (s *Scheduler) lookup(name string) (*registeredJob, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	entry, ok := s.jobs[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownJob, name)
	}
	return entry, nil
}

// RunNow executes a registered job immediately (outside schedule) and
// returns its error.
func (s *Scheduler) RunNow(name string) error {
	entry, err := s.lookup(name)
	if err != nil {
		return err
	}
	s.log.Info().Str("job", name).Msg("Running job immediately")
	return entry.tryRun()
}

// Trigger starts a registered job in the background. Stop waits for it.
func (s *Scheduler) Trigger(name string) error {
	entry, err := s.lookup(name)
	if err != nil {
		return err
	}
	if entry.isRunning() {
		return ErrJobRunning
	}

	s.log.Info().Str("job", name).Msg("Job triggered")
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.execute(entry)
	}()
	return nil
}

// Jobs lists the registered jobs sorted by name.
func (s *Scheduler) Jobs() []JobInfo {
	s.mu.RLock()
	defer s.mu.RUnlock()

	infos := make([]JobInfo, 0, len(s.jobs))
	for name, entry := range s.jobs {
		infos = append(infos, JobInfo{
			Name:     name,
			Schedule: entry.schedule,
			Running:  entry.isRunning(),
		})
	}
	sort.Slice(infos, func(i, j int) bool { return infos[i].Name < infos[j].Name })
	return infos
}

// cronLogger routes cron's own messages through zerolog.
type cronLogger struct {
	log zerolog.Logger
}

func (l cronLogger) Info(msg string, keysAndValues ...interface{}) {
	l.log.Debug().Fields(keysAndValues).Msg(msg)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	l.log.Error().Err(err).Fields(keysAndValues).Msg(msg)
}
