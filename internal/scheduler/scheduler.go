package scheduler

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/robfig/cron/v3"
	"go.uber.org/zap"
)

// Job is one scheduled unit of work, such as a retraining run.
type Job func(ctx context.Context) error

type Status struct {
	Running  bool      `json:"running"`
	Schedule string    `json:"schedule"`
	Runs     int       `json:"runs"`
	Skipped  int       `json:"skipped"`
	LastRun  time.Time `json:"last_run"`
	LastErr  string    `json:"last_error,omitempty"`
	NextRun  time.Time `json:"next_run"`
}

// Scheduler runs a Job on a cron schedule. Overlapping runs are skipped.
type Scheduler struct {
	cron     *cron.Cron
	job      Job
	schedule string
	timeout  time.Duration
	clock    clockwork.Clock
	logger   *zap.Logger

	mu      sync.Mutex
	started bool
	busy    bool
	entry   cron.EntryID
	runs    int
	skipped int
	lastRun time.Time
	lastErr error
	wg      sync.WaitGroup
}

// NewScheduler validates schedule (standard five-field cron or a
// descriptor such as "@daily" or "@every 6h").
func NewScheduler(schedule string, job Job, timeout time.Duration, clock clockwork.Clock, logger *zap.Logger) (*Scheduler, error) {
	if _, err := cron.ParseStandard(schedule); err != nil {
		return nil, fmt.Errorf("invalid schedule %q: %w", schedule, err)
	}

	cl := cronLogger{logger.Sugar()}
	return &Scheduler{
		cron:     cron.New(cron.WithLogger(cl), cron.WithChain(cron.Recover(cl))),
		job:      job,
		schedule: schedule,
		timeout:  timeout,
		clock:    clock,
		logger:   logger,
	}, nil
}

func (s *Scheduler) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.started {
		return nil
	}

	id, err := s.cron.AddFunc(s.schedule, func() { s.run(context.Background()) })
	if err != nil {
		return err
	}
	s.entry = id
	s.started = true
	s.cron.Start()

	s.logger.Info("Scheduler started",
		zap.String("schedule", s.schedule),
		zap.Time("next_run", s.cron.Entry(id).Next))
	return nil
}

// Stop halts scheduling and waits for an in-flight run or ctx.
func (s *Scheduler) Stop(ctx context.Context) error {
	s.mu.Lock()
	if !s.started {
		s.mu.Unlock()
		return nil
	}
	s.started = false
	s.cron.Remove(s.entry)
	s.mu.Unlock()

	s.logger.Info("Stopping scheduler")
	cronDone := s.cron.Stop().Done()

	done := make(chan struct{})
	go func() {
		<-cronDone
		s.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// ForceRun triggers a run in the background.
func (s *Scheduler) ForceRun() {
	s.logger.Info("Manually triggering scheduled job")
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.run(context.Background())
	}()
}

// RunNow runs the job synchronously and returns its error. It returns
// false when another run was already in progress.
func (s *Scheduler) RunNow(ctx context.Context) (bool, error) {
	return s.run(ctx)
}

func (s *Scheduler) run(ctx context.Context) (ran bool, err error) {
	s.mu.Lock()
	if s.busy {
		s.skipped++
		s.mu.Unlock()
		s.logger.Warn("Skipping run, previous run still in progress")
		return false, nil
	}
	s.busy = true
	s.mu.Unlock()

	start := s.clock.Now()
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("job panicked: %v", r)
		}

		s.mu.Lock()
		s.busy = false
		s.runs++
		s.lastRun = start
		s.lastErr = err
		s.mu.Unlock()

		if err != nil {
			s.logger.Error("Scheduled job failed", zap.Error(err), zap.Duration("duration", s.clock.Since(start)))
		} else {
			s.logger.Info("Scheduled job completed", zap.Duration("duration", s.clock.Since(start)))
		}
	}()

	if s.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.timeout)
		defer cancel()
	}

	s.logger.Info("Starting scheduled job", zap.Time("start_time", start))
	return true, s.job(ctx)
}

func (s *Scheduler) GetStatus() Status {
	s.mu.Lock()
	defer s.mu.Unlock()

	st := Status{
		Running:  s.busy,
		Schedule: s.schedule,
		Runs:     s.runs,
		Skipped:  s.skipped,
		LastRun:  s.lastRun,
	}
	if s.lastErr != nil {
		st.LastErr = s.lastErr.Error()
	}
	if s.started {
		st.NextRun = s.cron.Entry(s.entry).Next
	}
	return st
}

// Handler serves the status as JSON on GET and triggers a background run
// on POST.
func (s *Scheduler) Handler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		switch r.Method {
		case http.MethodGet:
		case http.MethodPost:
			s.ForceRun()
			w.WriteHeader(http.StatusAccepted)
		default:
			w.Header().Set("Allow", "GET, POST")
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}
		if err := json.NewEncoder(w).Encode(s.GetStatus()); err != nil {
			s.logger.Warn("Failed to write scheduler status", zap.Error(err))
		}
	})
}

// cronLogger adapts zap to cron.Logger.
type cronLogger struct {
	l *zap.SugaredLogger
}

func (c cronLogger) Info(msg string, keysAndValues ...interface{}) {
	c.l.Debugw(msg, keysAndValues...)
}

func (c cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	c.l.Errorw(msg, append(keysAndValues, "error", err)...)
}
