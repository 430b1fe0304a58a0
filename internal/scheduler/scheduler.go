package scheduler

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	alertdomain "github.com/smallbiznis/payoutd/internal/alert/domain"
	"github.com/smallbiznis/payoutd/internal/clock"
	obsmetrics "github.com/smallbiznis/payoutd/internal/observability/metrics"
	paymentdomain "github.com/smallbiznis/payoutd/internal/payment/domain"
	payoutdomain "github.com/smallbiznis/payoutd/internal/payout/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

const (
	JobReplayWebhookEvents = "replay_webhook_events"
	JobStalePayoutSweep    = "stale_payout_sweep"
)

var ErrInvalidConfig = errors.New("scheduler: missing dependency")

type Params struct {
	fx.In

	Log        *zap.Logger
	PaymentSvc paymentdomain.Service
	PayoutSvc  payoutdomain.Service
	AlertSvc   alertdomain.Service
	GenID      *snowflake.Node
	Clock      clock.Clock `optional:"true"`
	Config     Config      `optional:"true"`
}

type Scheduler struct {
	log        *zap.Logger
	cfg        Config
	genID      *snowflake.Node
	clock      clock.Clock
	paymentSvc paymentdomain.Service
	payoutSvc  payoutdomain.Service
	alertSvc   alertdomain.Service
}

func New(p Params) (*Scheduler, error) {
	if p.Log == nil || p.PaymentSvc == nil || p.PayoutSvc == nil || p.AlertSvc == nil || p.GenID == nil {
		return nil, ErrInvalidConfig
	}
	clk := p.Clock
	if clk == nil {
		clk = clock.SystemClock{}
	}
	return &Scheduler{
		log:        p.Log.Named("scheduler").With(zap.String("component", "scheduler")),
		cfg:        p.Config.withDefaults(),
		genID:      p.GenID,
		clock:      clk,
		paymentSvc: p.PaymentSvc,
		payoutSvc:  p.PayoutSvc,
		alertSvc:   p.AlertSvc,
	}, nil
}

func (s *Scheduler) runJob(
	parent context.Context,
	name string,
	batchSize int,
	timeout time.Duration,
	fn func(ctx context.Context) error,
) error {
	start := s.clock.Now()
	ctx, cancel := context.WithTimeout(parent, timeout)
	defer cancel()

	ctx, run, owner := s.ensureJobRun(ctx, name, batchSize)
	if owner {
		s.logJobStart(ctx, run)
	}
	log := s.logger(ctx).With(
		zap.String("job", name),
		zap.String("run_id", run.runID),
	)
	schedMetrics := obsmetrics.Scheduler()
	schedMetrics.IncJobRun(name)

	err := fn(ctx)
	schedMetrics.ObserveJobDuration(name, s.clock.Now().Sub(start))
	schedMetrics.AddProcessed(name, run.processedCount)
	if owner {
		if err != nil && run.errorCount == 0 {
			run.IncError()
		}
		s.logJobFinish(ctx, run)
	}
	if err == nil {
		return nil
	}

	// deadline is a soft timeout; the next tick picks up the rest
	isTimeout := errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled)
	if isTimeout {
		schedMetrics.IncJobTimeout(name)
	}
	schedMetrics.IncJobError(name, err)
	if isTimeout {
		log.Warn("job timed out",
			zap.Duration("timeout", timeout),
			zap.Error(err),
		)
		return nil
	}

	return fmt.Errorf("%s: %w", name, err)
}

func (s *Scheduler) RunOnce(parent context.Context) error {
	var err error

	jobs := []struct {
		Name string
		Run  func(context.Context) error
	}{
		{JobReplayWebhookEvents, s.ReplayWebhookEventsJob},
		{JobStalePayoutSweep, s.StalePayoutSweepJob},
	}

	for _, job := range jobs {
		if !s.isJobEnabled(job.Name) {
			continue
		}
		err = errors.Join(err, s.runJob(parent, job.Name, s.cfg.BatchSize, s.cfg.JobTimeout, job.Run))
	}

	return err
}

func (s *Scheduler) RunForever(ctx context.Context) {
	ticker := time.NewTicker(s.cfg.RunInterval)
	defer ticker.Stop()

	for {
		if err := s.RunOnce(ctx); err != nil {
			s.log.Warn("scheduler run failed", zap.Error(err))
		}

		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

func (s *Scheduler) isJobEnabled(jobName string) bool {
	if len(s.cfg.EnabledJobs) == 0 {
		return true
	}
	for _, enabled := range s.cfg.EnabledJobs {
		if strings.EqualFold(enabled, jobName) {
			return true
		}
	}
	return false
}

// ReplayWebhookEventsJob drains stored webhook events whose handler failed,
// one batch per call.
func (s *Scheduler) ReplayWebhookEventsJob(ctx context.Context) error {
	run := jobRunFromContext(ctx)
	result, err := s.paymentSvc.Replay(ctx, s.cfg.BatchSize)
	if err != nil {
		s.logSchedulerError(ctx, run, "scheduler.replay.failed", JobReplayWebhookEvents, err)
		return err
	}
	run.AddProcessed(result.Processed)
	for i := 0; i < result.Failed; i++ {
		run.IncError()
	}
	return nil
}

// StalePayoutSweepJob raises one operator alert per payout left pending past
// the stale threshold. Alerts dedup on the payout reference.
func (s *Scheduler) StalePayoutSweepJob(ctx context.Context) error {
	run := jobRunFromContext(ctx)
	cutoff := s.clock.Now().Add(-s.cfg.PayoutStaleAfter)

	stale, err := s.payoutSvc.ListStale(ctx, cutoff, s.cfg.BatchSize)
	if err != nil {
		s.logSchedulerError(ctx, run, "scheduler.stale_payouts.failed", JobStalePayoutSweep, err)
		return err
	}

	var jobErr error
	for _, payout := range stale {
		if ctx.Err() != nil {
			return errors.Join(jobErr, ctx.Err())
		}
		raised, err := s.alertSvc.Raise(ctx, alertdomain.RaiseRequest{
			Kind:     alertdomain.KindPayoutStale,
			Severity: alertdomain.SeverityWarning,
			DedupKey: payout.Reference,
			Message: fmt.Sprintf("payout %s for %d %s has been pending since %s",
				payout.Reference, payout.Amount, payout.Currency, payout.CreatedAt.Format(time.RFC3339)),
			Metadata: map[string]any{
				"payout_id": payout.ID.String(),
				"user_id":   payout.UserID.String(),
				"reference": payout.Reference,
				"amount":    payout.Amount,
			},
		})
		if err != nil {
			jobErr = errors.Join(jobErr, err)
			s.logSchedulerError(ctx, run, "scheduler.stale_payout.alert_failed", JobStalePayoutSweep, err,
				zap.String("reference", payout.Reference),
			)
			continue
		}
		if raised {
			run.AddProcessed(1)
		}
	}
	return jobErr
}
