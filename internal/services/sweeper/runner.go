package sweeper

import (
	"context"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"
)

var parser = cron.NewParser(cron.SecondOptional | cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor)

// Runner triggers Sweep on a cron schedule until its context is done.
type Runner struct {
	uc   *Usecase
	spec string
	log  *zap.Logger
}

// NewRunner validates spec up front so a typo fails startup instead of the
// first tick.
func NewRunner(uc *Usecase, spec string, log *zap.Logger) (*Runner, error) {
	if _, err := parser.Parse(spec); err != nil {
		return nil, fmt.Errorf("sweeper spec %q: %w", spec, err)
	}
	return &Runner{uc: uc, spec: spec, log: log.With(zap.String("component", "sweeper.cron"))}, nil
}

func (r *Runner) Run(ctx context.Context) error {
	c := cron.New(cron.WithParser(parser), cron.WithLocation(time.UTC))
	_, err := c.AddFunc(r.spec, func() {
		if _, err := r.uc.Sweep(ctx); err != nil && ctx.Err() == nil {
			r.log.Warn("sweep failed", zap.Error(err))
		}
	})
	if err != nil {
		return fmt.Errorf("add sweep schedule: %w", err)
	}
	c.Start()
	r.log.Info("sweeper started", zap.String("spec", r.spec))

	<-ctx.Done()
	<-c.Stop().Done()
	r.log.Info("sweeper stopped")
	return nil
}
