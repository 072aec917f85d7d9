package renewal

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/fx"
	"go.uber.org/zap"

	"github.com/fatflowers/paydesk/internal/app/service/reconciler"
	"github.com/fatflowers/paydesk/internal/platform/lease"
	"github.com/fatflowers/paydesk/pkg/apperr"
	"github.com/fatflowers/paydesk/pkg/config"
	"github.com/fatflowers/paydesk/pkg/logctx"
	"github.com/fatflowers/paydesk/pkg/tool"
)

const reconcileBatch = 500

// Scheduler triggers the sweep and the pending-order reconciliation on their
// cron schedules, evaluated in the configured renewal timezone.
type Scheduler struct {
	cron       *cron.Cron
	sweeper    *Sweeper
	reconciler *reconciler.Service
	locker     Locker
	cfg        *config.Config
	log        *zap.SugaredLogger
}

func NewScheduler(cfg *config.Config, sweeper *Sweeper, rec *reconciler.Service, locker Locker, log *zap.SugaredLogger) (*Scheduler, error) {
	loc, err := time.LoadLocation(cfg.Renewal.Timezone)
	if err != nil {
		return nil, fmt.Errorf("load renewal timezone: %w", err)
	}
	cl := cronLogger{log: log.Named("cron")}
	s := &Scheduler{
		cron: cron.New(
			cron.WithLocation(loc),
			cron.WithLogger(cl),
			cron.WithChain(cron.Recover(cl), cron.SkipIfStillRunning(cl)),
		),
		sweeper:    sweeper,
		reconciler: rec,
		locker:     locker,
		cfg:        cfg,
		log:        log,
	}
	if cfg.Renewal.Enabled {
		if _, err := s.cron.AddFunc(cfg.Renewal.Schedule, s.runSweep); err != nil {
			return nil, fmt.Errorf("invalid renewal.schedule %q: %w", cfg.Renewal.Schedule, err)
		}
	}
	if cfg.Reconcile.Schedule != "" {
		if _, err := s.cron.AddFunc(cfg.Reconcile.Schedule, s.runReconcile); err != nil {
			return nil, fmt.Errorf("invalid reconcile.schedule %q: %w", cfg.Reconcile.Schedule, err)
		}
	}
	return s, nil
}

// Entries reports how many jobs are scheduled.
func (s *Scheduler) Entries() int {
	return len(s.cron.Entries())
}

func (s *Scheduler) jobContext(job string) (context.Context, context.CancelFunc) {
	traceID := tool.GenerateUUIDV7()
	log := s.log.With("job", job, "trace_id", traceID)
	ctx := logctx.WithTraceID(logctx.WithLogger(context.Background(), log), traceID)
	return context.WithTimeout(ctx, s.cfg.Renewal.LeaseTTL)
}

func (s *Scheduler) runSweep() {
	ctx, cancel := s.jobContext("renewal_sweep")
	defer cancel()
	log := logctx.FromCtx(ctx, s.log)
	if _, err := s.sweeper.Run(ctx); err != nil {
		if errors.Is(err, apperr.ErrLeaseNotAcquired) {
			log.Infow("renewal sweep skipped, another node holds the lease")
			return
		}
		log.Errorw("renewal sweep finished with errors", "err", err)
	}
}

func (s *Scheduler) runReconcile() {
	ctx, cancel := s.jobContext("reconcile_pending")
	defer cancel()
	log := logctx.FromCtx(ctx, s.log)
	le, err := s.locker.Acquire(ctx, ReconcileLease, s.cfg.Renewal.LeaseTTL)
	if err != nil {
		log.Infow("pending reconciliation skipped", "err", err)
		return
	}
	defer func() { _ = le.Release(context.WithoutCancel(ctx)) }()

	if _, err := s.reconciler.ReconcilePending(ctx, s.cfg.Reconcile.PendingAfter, reconcileBatch); err != nil {
		log.Errorw("pending reconciliation finished with errors", "err", err)
	}
}

func (s *Scheduler) Start() {
	s.cron.Start()
}

// Stop stops scheduling and waits for running jobs until ctx is done.
func (s *Scheduler) Stop(ctx context.Context) error {
	select {
	case <-s.cron.Stop().Done():
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

type cronLogger struct {
	log *zap.SugaredLogger
}

func (l cronLogger) Info(msg string, keysAndValues ...any) {
	l.log.Debugw(msg, keysAndValues...)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...any) {
	l.log.Errorw(msg, append(keysAndValues, "err", err)...)
}

func registerScheduler(lc fx.Lifecycle, s *Scheduler, log *zap.SugaredLogger) {
	lc.Append(fx.Hook{
		OnStart: func(context.Context) error {
			log.Infow("scheduler started", "jobs", s.Entries())
			s.Start()
			return nil
		},
		OnStop: func(ctx context.Context) error {
			log.Infow("stopping scheduler")
			return s.Stop(ctx)
		},
	})
}

// Module provides the sweeper. SchedulerModule adds the cron triggers and is
// only used by the long-running server.
var Module = fx.Options(
	fx.Provide(
		NewSweeper,
		func(l *lease.Locker) Locker { return l },
	),
)

var SchedulerModule = fx.Options(
	fx.Provide(NewScheduler),
	fx.Invoke(registerScheduler),
)
