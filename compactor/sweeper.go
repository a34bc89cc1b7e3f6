// Package compactor drives compaction over long-lived ABDs. A Sweeper
// tracks registered ABDs and periodically asks each one to relocate its
// backing storage with TryMove, so the chunk slab can defragment. Moves
// are rate limited to keep a sweep from monopolizing memory bandwidth.
package compactor

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/go-co-op/gocron/v2"
	"github.com/google/uuid"
	"golang.org/x/time/rate"

	"abd"
	"abd/internal/logging"
)

const defaultSchedule = "*/30 * * * * *" // every 30 seconds

// Config configures a Sweeper.
type Config struct {
	// Schedule is the cron expression (with seconds) for background
	// sweeps. Defaults to every 30 seconds.
	Schedule string

	// MinAge skips ABDs whose storage was placed more recently than
	// this. Young ABDs are likely still being filled; moving them buys
	// nothing. Defaults to 5 minutes.
	MinAge time.Duration

	// MoveRate and MoveBurst bound move attempts per second across a
	// sweep. A zero MoveRate means unlimited.
	MoveRate  rate.Limit
	MoveBurst int

	Now func() time.Time

	// Logger for structured logging. If nil, logging is disabled.
	Logger *slog.Logger
}

// Sweeper walks a registry of ABDs and compacts the movable ones.
type Sweeper struct {
	mu      sync.Mutex
	tracked map[uuid.UUID]*abd.ABD

	cfg       Config
	limiter   *rate.Limiter
	scheduler gocron.Scheduler
	started   bool

	attempted atomic.Int64
	moved     atomic.Int64
	refused   atomic.Int64

	logger *slog.Logger
}

// New creates a Sweeper. Start launches the background schedule; SweepNow
// works without it.
func New(cfg Config) (*Sweeper, error) {
	if cfg.Schedule == "" {
		cfg.Schedule = defaultSchedule
	}
	if cfg.MinAge == 0 {
		cfg.MinAge = 5 * time.Minute
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	limit := cfg.MoveRate
	if limit == 0 {
		limit = rate.Inf
	}
	burst := cfg.MoveBurst
	if burst <= 0 {
		burst = 1
	}

	return &Sweeper{
		tracked: make(map[uuid.UUID]*abd.ABD),
		cfg:     cfg,
		limiter: rate.NewLimiter(limit, burst),
		logger:  logging.Default(cfg.Logger).With("component", "compactor"),
	}, nil
}

// Register adds an ABD to the sweep set and returns the handle to
// unregister it with. The caller must Unregister before freeing the ABD.
func (s *Sweeper) Register(a *abd.ABD) uuid.UUID {
	id := uuid.Must(uuid.NewV7())
	s.mu.Lock()
	s.tracked[id] = a
	s.mu.Unlock()
	return id
}

// Unregister removes an ABD from the sweep set. No-op for unknown ids.
func (s *Sweeper) Unregister(id uuid.UUID) {
	s.mu.Lock()
	delete(s.tracked, id)
	s.mu.Unlock()
}

// Tracked returns the number of registered ABDs.
func (s *Sweeper) Tracked() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.tracked)
}

// Start launches the background sweep schedule.
func (s *Sweeper) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.started {
		return fmt.Errorf("compactor: already started")
	}

	sched, err := gocron.NewScheduler()
	if err != nil {
		return fmt.Errorf("create sweep scheduler: %w", err)
	}
	_, err = sched.NewJob(
		gocron.CronJob(s.cfg.Schedule, true),
		gocron.NewTask(func() { s.sweep(context.Background()) }),
		gocron.WithName("compaction-sweep"),
	)
	if err != nil {
		return fmt.Errorf("create sweep job: %w", err)
	}

	s.scheduler = sched
	s.started = true
	sched.Start()
	s.logger.Info("sweeper started", "schedule", s.cfg.Schedule, "minAge", s.cfg.MinAge)
	return nil
}

// Stop shuts down the background schedule and waits for a running sweep.
func (s *Sweeper) Stop() error {
	s.mu.Lock()
	sched := s.scheduler
	s.scheduler = nil
	s.started = false
	s.mu.Unlock()

	if sched == nil {
		return nil
	}
	if err := sched.Shutdown(); err != nil {
		return fmt.Errorf("shut down sweep scheduler: %w", err)
	}
	s.logger.Info("sweeper stopped")
	return nil
}

// SweepResult summarizes one sweep.
type SweepResult struct {
	Eligible int // tracked ABDs old enough to consider
	Moved    int
	Refused  int
}

// SweepNow runs one sweep synchronously.
func (s *Sweeper) SweepNow(ctx context.Context) SweepResult {
	return s.sweep(ctx)
}

func (s *Sweeper) sweep(ctx context.Context) SweepResult {
	// Snapshot the registry so moves run without the sweeper lock.
	s.mu.Lock()
	candidates := make([]*abd.ABD, 0, len(s.tracked))
	for _, a := range s.tracked {
		candidates = append(candidates, a)
	}
	s.mu.Unlock()

	// Freed caches would mask the reclamation the moves are after.
	abd.DrainCaches()

	var res SweepResult
	now := s.cfg.Now()
	for _, a := range candidates {
		if now.Sub(a.CreateTime()) < s.cfg.MinAge {
			continue
		}
		res.Eligible++

		if err := s.limiter.Wait(ctx); err != nil {
			break
		}
		s.attempted.Add(1)
		if a.TryMove() {
			res.Moved++
			s.moved.Add(1)
		} else {
			res.Refused++
			s.refused.Add(1)
		}
	}

	if res.Eligible > 0 {
		s.logger.Info("sweep finished",
			"eligible", res.Eligible,
			"moved", res.Moved,
			"refused", res.Refused,
		)
	}
	return res
}

// SweepStats is a snapshot of lifetime sweeper counters.
type SweepStats struct {
	Attempted int64
	Moved     int64
	Refused   int64
}

// Stats returns the lifetime counters.
func (s *Sweeper) Stats() SweepStats {
	return SweepStats{
		Attempted: s.attempted.Load(),
		Moved:     s.moved.Load(),
		Refused:   s.refused.Load(),
	}
}
