package jobs

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/bsm/redislock"
	"github.com/hibiken/asynq"

	"github.com/odyssey-erp/odyssey-costing/internal/costing"
	jobmetrics "github.com/odyssey-erp/odyssey-costing/internal/jobs"
	"github.com/odyssey-erp/odyssey-costing/internal/sales"
)

var defaultJobMetrics = jobmetrics.NewMetrics(nil)

// PeriodRecoster reprices the draft sales of a billing period.
type PeriodRecoster interface {
	RecostPeriod(ctx context.Context, period costing.Period) (sales.RecostSummary, error)
}

// recostLockTTL bounds how long a crashed worker can block a period.
const recostLockTTL = 5 * time.Minute

// ErrRecostInProgress is returned when another worker holds the period lock.
// Asynq retries the task later.
var ErrRecostInProgress = errors.New("sale recost: period already being recosted")

// SaleRecostJob handles TaskSaleRecost after labor costs for a period change.
type SaleRecostJob struct {
	Sales   PeriodRecoster
	Locker  *redislock.Client
	Logger  *slog.Logger
	Metrics *jobmetrics.Metrics
	// Now resolves the current period for scheduled runs. Defaults to time.Now.
	Now func() time.Time
}

// NewSaleRecostJob wires dependencies for the recost handler. A nil locker
// runs without cross-worker exclusion.
func NewSaleRecostJob(recoster PeriodRecoster, locker *redislock.Client, logger *slog.Logger, metrics *jobmetrics.Metrics) *SaleRecostJob {
	return &SaleRecostJob{Sales: recoster, Locker: locker, Logger: logger, Metrics: metrics}
}

// Handle processes sale recost tasks.
func (j *SaleRecostJob) Handle(ctx context.Context, t *asynq.Task) error {
	if j == nil || j.Sales == nil {
		return errors.New("sale recost: handler not configured")
	}
	payload, err := decodeSaleRecostPayload(t)
	if err != nil {
		return fmt.Errorf("sale recost: decode payload: %w", asynq.SkipRetry)
	}
	period := payload.Period()
	if payload.Current() {
		period = PeriodAt(j.now())
	}
	if !period.Valid() {
		return fmt.Errorf("sale recost: %s: %w", period, asynq.SkipRetry)
	}

	metrics := j.metrics()
	tracker := metrics.Track(TaskSaleRecost)
	var resultErr error
	defer func() {
		resultErr = tracker.End(resultErr)
	}()

	logger := j.logger().With(slog.String("period", period.String()))

	release, err := j.lock(ctx, period)
	if err != nil {
		resultErr = err
		logger.Warn("sale recost lock", slog.Any("error", err))
		return resultErr
	}
	defer release()

	logger.Info("starting sale recost")
	start := time.Now()

	summary, err := j.Sales.RecostPeriod(ctx, period)
	metrics.AddRecost(summary.Recosted, len(summary.Failed))
	if err != nil {
		resultErr = err
		logger.Error("recost period", slog.Int("recosted", summary.Recosted), slog.Any("error", err))
		return resultErr
	}
	if len(summary.Failed) > 0 {
		logger.Warn("sales skipped during recost", slog.Any("sale_ids", summary.Failed))
	}
	logger.Info("completed sale recost", slog.Int("recosted", summary.Recosted), slog.Duration("duration", time.Since(start)))
	return resultErr
}

func (j *SaleRecostJob) lock(ctx context.Context, period costing.Period) (func(), error) {
	if j.Locker == nil {
		return func() {}, nil
	}
	lock, err := j.Locker.Obtain(ctx, "lock:"+TaskSaleRecost+":"+period.String(), recostLockTTL, nil)
	if errors.Is(err, redislock.ErrNotObtained) {
		return nil, ErrRecostInProgress
	}
	if err != nil {
		return nil, fmt.Errorf("sale recost: obtain lock: %w", err)
	}
	return func() {
		// Release uses a fresh context so a cancelled task still frees the period.
		_ = lock.Release(context.Background())
	}, nil
}

func (j *SaleRecostJob) metrics() *jobmetrics.Metrics {
	if j.Metrics != nil {
		return j.Metrics
	}
	return defaultJobMetrics
}

func (j *SaleRecostJob) now() time.Time {
	if j.Now != nil {
		return j.Now()
	}
	return time.Now()
}

func (j *SaleRecostJob) logger() *slog.Logger {
	if j.Logger != nil {
		return j.Logger
	}
	return slog.Default()
}
