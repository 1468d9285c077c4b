package scheduler

import (
	"context"
	"time"

	"github.com/oklog/ulid/v2"
	obslogger "github.com/smallbiznis/stockbook/internal/observability/logger"
	"github.com/smallbiznis/stockbook/pkg/telemetry/correlation"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

const (
	outcomeOK      = "ok"
	outcomeSkipped = "skipped"
	outcomeTimeout = "timeout"
	outcomeError   = "error"
)

// jobRun tallies one execution of a job. Its id doubles as the operation
// id on every log line the run writes.
type jobRun struct {
	job     string
	id      string
	started time.Time
	handled int
	faults  int
}

type jobRunKey struct{}

func (s *Scheduler) beginRun(ctx context.Context, job string) (context.Context, *jobRun) {
	now := s.clock.Now()
	run := &jobRun{
		job:     job,
		id:      ulid.MustNew(ulid.Timestamp(now), ulid.DefaultEntropy()).String(),
		started: now,
	}
	ctx = context.WithValue(ctx, jobRunKey{}, run)
	return correlation.WithID(ctx, run.id), run
}

func currentRun(ctx context.Context) *jobRun {
	run, _ := ctx.Value(jobRunKey{}).(*jobRun)
	return run
}

func (r *jobRun) handledOne() {
	if r != nil {
		r.handled++
	}
}

func (r *jobRun) fault() {
	if r != nil {
		r.faults++
	}
}

func (s *Scheduler) logger(ctx context.Context) *zap.Logger {
	log := obslogger.WithContext(ctx, s.log)
	if run := currentRun(ctx); run != nil {
		log = log.With(zap.String("job", run.job))
	}
	return log
}

func (s *Scheduler) finishRun(ctx context.Context, run *jobRun, outcome string, err error) {
	level := zapcore.InfoLevel
	switch outcome {
	case outcomeSkipped:
		level = zapcore.DebugLevel
	case outcomeTimeout, outcomeError:
		level = zapcore.WarnLevel
	}
	ce := s.logger(ctx).Check(level, "scheduler.job.finish")
	if ce == nil {
		return
	}
	fields := []zap.Field{
		zap.String("outcome", outcome),
		zap.Duration("elapsed", s.clock.Now().Sub(run.started)),
		zap.Int("handled", run.handled),
		zap.Int("faults", run.faults),
	}
	if err != nil && outcome != outcomeSkipped {
		fields = append(fields, zap.Error(err))
	}
	ce.Write(fields...)
}
