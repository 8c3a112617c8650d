package pipeline

import (
	"context"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"
)

type Runner interface {
	RunCycle(ctx context.Context) (Summary, error)
}

// Scheduler runs a cycle right away and then on every tick of its cron
// schedule until the context is cancelled. Ticks that arrive while a cycle
// is still running are skipped.
type Scheduler struct {
	runner Runner
	spec   string
	logger *zap.Logger
}

// NewScheduler uses schedule when set (five-field cron or a descriptor such
// as "@hourly") and "@every <interval>" otherwise.
func NewScheduler(runner Runner, interval time.Duration, schedule string, logger *zap.Logger) (*Scheduler, error) {
	spec := schedule
	if spec == "" {
		if interval <= 0 {
			return nil, fmt.Errorf("scheduler interval must be positive, got %s", interval)
		}
		spec = "@every " + interval.String()
	}
	if _, err := cron.ParseStandard(spec); err != nil {
		return nil, fmt.Errorf("invalid schedule %q: %w", spec, err)
	}
	return &Scheduler{runner: runner, spec: spec, logger: logger}, nil
}

func (s *Scheduler) Spec() string {
	return s.spec
}

func (s *Scheduler) Run(ctx context.Context) error {
	clog := cronLogger{logger: s.logger}
	c := cron.New(
		cron.WithLogger(clog),
		cron.WithChain(cron.Recover(clog), cron.SkipIfStillRunning(clog)),
	)

	id, err := c.AddFunc(s.spec, func() { s.runOnce(ctx) })
	if err != nil {
		return fmt.Errorf("schedule cycle: %w", err)
	}

	s.logger.Info("Scheduler started", zap.String("schedule", s.spec))
	c.Start()

	// first cycle goes through the same chain so a tick cannot overlap it
	c.Entry(id).WrappedJob.Run()

	<-ctx.Done()
	s.logger.Info("Scheduler stopping")
	<-c.Stop().Done()
	return nil
}

func (s *Scheduler) runOnce(ctx context.Context) {
	if ctx.Err() != nil {
		return
	}
	if _, err := s.runner.RunCycle(ctx); err != nil {
		s.logger.Error("Cycle failed", zap.Error(err))
	}
}

// cronLogger routes cron's own logging through zap.
type cronLogger struct {
	logger *zap.Logger
}

func (l cronLogger) Info(msg string, keysAndValues ...interface{}) {
	l.logger.Sugar().Debugw(msg, keysAndValues...)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	l.logger.Sugar().Errorw(msg, append(keysAndValues, "error", err)...)
}
