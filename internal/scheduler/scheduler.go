package scheduler

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// Job is one periodic maintenance task. Run is invoked on every tick;
// a returned error is logged and the schedule keeps going.
type Job struct {
	Name     string
	Interval time.Duration
	Run      func(ctx context.Context) error
}

// Runner drives a set of jobs on independent tickers until the context
// is cancelled. A failing job never stops its own schedule or anyone
// else's.
type Runner struct {
	jobs []Job
	log  zerolog.Logger
	wg   sync.WaitGroup
}

func NewRunner(log zerolog.Logger, jobs ...Job) *Runner {
	return &Runner{
		jobs: jobs,
		log:  log.With().Str("component", "scheduler").Logger(),
	}
}

// Start launches one goroutine per job and returns immediately.
func (r *Runner) Start(ctx context.Context) {
	for _, job := range r.jobs {
		r.wg.Add(1)
		go r.loop(ctx, job)
	}
}

// Wait blocks until every job loop has observed cancellation and exited.
func (r *Runner) Wait() {
	r.wg.Wait()
}

func (r *Runner) loop(ctx context.Context, job Job) {
	defer r.wg.Done()

	log := r.log.With().Str("job", job.Name).Logger()
	log.Info().Dur("interval", job.Interval).Msg("job scheduled")

	ticker := time.NewTicker(job.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			log.Info().Msg("job stopped")
			return
		case <-ticker.C:
			if err := job.Run(ctx); err != nil {
				log.Error().Err(err).Msg("job run failed")
			}
		}
	}
}
