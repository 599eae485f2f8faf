// Package refresh re-runs the current calendar view on a cron schedule so
// reservations made elsewhere show up without user interaction.
package refresh

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	appLog "roomcal/internal/log"
)

// cronLogger routes cron's own logging through internal/log.
type cronLogger struct{}

func (cronLogger) Info(msg string, kv ...any) {
	appLog.Debug("refresh: "+msg, kv...)
}

func (cronLogger) Error(err error, msg string, kv ...any) {
	appLog.Error("refresh: "+msg, err, kv...)
}

// Validate reports whether spec is a usable schedule. Empty is valid and
// means disabled.
func Validate(spec string) error {
	if strings.TrimSpace(spec) == "" {
		return nil
	}
	if _, err := cron.ParseStandard(spec); err != nil {
		return fmt.Errorf("refresh: invalid schedule %q: %w", spec, err)
	}
	return nil
}

// Next returns the first activation of spec after from.
func Next(spec string, from time.Time) (time.Time, error) {
	s, err := cron.ParseStandard(spec)
	if err != nil {
		return time.Time{}, fmt.Errorf("refresh: invalid schedule %q: %w", spec, err)
	}
	return s.Next(from), nil
}

// Start runs job on spec in loc until ctx is done or stop is called. A run
// that is still going when the next one is due is skipped. Each run gets a
// context bounded by timeout. An empty spec disables refresh.
func Start(ctx context.Context, spec string, loc *time.Location, timeout time.Duration, job func(context.Context)) (stop func(), err error) {
	if strings.TrimSpace(spec) == "" {
		appLog.Info("periodic refresh disabled")
		return func() {}, nil
	}
	if loc == nil {
		loc = time.Local
	}

	logger := cronLogger{}
	c := cron.New(
		cron.WithLocation(loc),
		cron.WithLogger(logger),
		cron.WithChain(cron.Recover(logger), cron.SkipIfStillRunning(logger)),
	)
	if _, err := c.AddFunc(spec, func() {
		runCtx, cancel := context.WithTimeout(ctx, timeout)
		defer cancel()
		began := time.Now()
		job(runCtx)
		appLog.Debug("refresh run finished", "elapsed", time.Since(began))
	}); err != nil {
		return nil, fmt.Errorf("refresh: invalid schedule %q: %w", spec, err)
	}

	c.Start()
	next, _ := Next(spec, time.Now().In(loc))
	appLog.Info("periodic refresh scheduled", "schedule", spec, "timezone", loc.String(), "next_run", next.Format(time.RFC3339))

	done := make(chan struct{})
	stopped := make(chan struct{})
	go func() {
		select {
		case <-ctx.Done():
		case <-done:
		}
		<-c.Stop().Done()
		close(stopped)
	}()

	var once sync.Once
	return func() {
		once.Do(func() { close(done) })
		<-stopped
	}, nil
}
