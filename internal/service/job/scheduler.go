package job

import (
	"context"
	"math/rand/v2"
	"sync"
	"time"

	"github.com/tavvarez/whatsapp-bot-resonance/internal/infra/crawler/evasion"
	"github.com/tavvarez/whatsapp-bot-resonance/internal/infra/crawler/types"
	"go.uber.org/zap"
)

// Task is a job run on a fixed interval.
type Task struct {
	Name       string
	Interval   time.Duration
	StartDelay time.Duration
	Run        func(ctx context.Context) error
}

type SchedulerOption func(*Scheduler)

func WithSleep(sleep func(ctx context.Context, d time.Duration) error) SchedulerOption {
	return func(s *Scheduler) {
		s.sleep = sleep
	}
}

func WithNow(now func() time.Time) SchedulerOption {
	return func(s *Scheduler) {
		s.now = now
	}
}

// Scheduler runs each task in its own goroutine: once after its start
// delay, then every interval plus a random jitter. A permanent block from
// any task pauses all of them for the cooldown.
type Scheduler struct {
	tasks     []Task
	jitterMax time.Duration
	cooldown  time.Duration
	sleep     func(ctx context.Context, d time.Duration) error
	now       func() time.Time

	mu           sync.Mutex
	blockedUntil time.Time
}

func NewScheduler(jitterMax, blockCooldown time.Duration, opts ...SchedulerOption) *Scheduler {
	s := &Scheduler{
		jitterMax: jitterMax,
		cooldown:  blockCooldown,
		sleep:     evasion.Sleep,
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *Scheduler) Add(t Task) {
	s.tasks = append(s.tasks, t)
}

// Run blocks until ctx is done and every task loop has returned.
func (s *Scheduler) Run(ctx context.Context) {
	var wg sync.WaitGroup
	for _, t := range s.tasks {
		wg.Add(1)
		go func() {
			defer wg.Done()
			s.loop(ctx, t)
		}()
	}
	zap.L().Info("job: scheduler started", zap.Int("tasks", len(s.tasks)))
	wg.Wait()
	zap.L().Info("job: scheduler stopped")
}

func (s *Scheduler) loop(ctx context.Context, t Task) {
	zap.L().Info("job: task scheduled",
		zap.String("task", t.Name),
		zap.Duration("interval", t.Interval),
		zap.Duration("start_delay", t.StartDelay))
	if err := s.sleep(ctx, t.StartDelay); err != nil {
		return
	}
	for {
		if err := s.sleep(ctx, s.cooldownLeft()); err != nil {
			return
		}
		s.runOnce(ctx, t)
		if err := s.sleep(ctx, t.Interval+s.jitter()); err != nil {
			return
		}
	}
}

func (s *Scheduler) runOnce(ctx context.Context, t Task) {
	start := s.now()
	err := t.Run(ctx)
	switch {
	case err == nil:
		zap.L().Info("job: task done", zap.String("task", t.Name), zap.Duration("took", s.now().Sub(start)))
	case types.IsPermanentBlock(err):
		until := s.block()
		zap.L().Error("job: blocked by site, pausing all tasks",
			zap.String("task", t.Name),
			zap.Time("until", until),
			zap.Error(err))
	case ctx.Err() != nil:
	default:
		zap.L().Error("job: task failed", zap.String("task", t.Name), zap.Error(err))
	}
}

func (s *Scheduler) block() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	if until := s.now().Add(s.cooldown); until.After(s.blockedUntil) {
		s.blockedUntil = until
	}
	return s.blockedUntil
}

func (s *Scheduler) cooldownLeft() time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()
	return max(s.blockedUntil.Sub(s.now()), 0)
}

func (s *Scheduler) jitter() time.Duration {
	if s.jitterMax <= 0 {
		return 0
	}
	return rand.N(s.jitterMax)
}
