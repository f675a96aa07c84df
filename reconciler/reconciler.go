// Package reconciler periodically applies completed checkout sessions that
// were missed by the webhook, so a lost delivery never leaves a paid
// purchase without its coins.
package reconciler

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/reevlo/reevlo-backend/metrics"
	"github.com/robfig/cron/v3"
	"go.vocdoni.io/dvote/log"
)

const (
	// DefaultSchedule runs the reconciliation every ten minutes.
	DefaultSchedule = "@every 10m"
	// DefaultWindow is how far back completed sessions are checked.
	DefaultWindow = 24 * time.Hour
	// DefaultLimit bounds the sessions checked by a single run.
	DefaultLimit = 100
)

// Syncer applies the completed sessions created within a window.
type Syncer interface {
	SyncRecent(window time.Duration, limit int64) (int, error)
}

// Config holds the reconciler settings. Zero values select the defaults.
type Config struct {
	Schedule string
	Window   time.Duration
	Limit    int64
}

// Reconciler runs the Syncer on a cron schedule. Runs never overlap: a run
// still in progress when the next one is due makes the latter skip.
type Reconciler struct {
	config  Config
	syncer  Syncer
	cron    *cron.Cron
	mu      sync.Mutex
	running bool
}

// New creates a reconciler, checking that the schedule can be parsed.
func New(config Config, syncer Syncer) (*Reconciler, error) {
	if syncer == nil {
		return nil, fmt.Errorf("syncer is required")
	}
	if config.Schedule == "" {
		config.Schedule = DefaultSchedule
	}
	if config.Window <= 0 {
		config.Window = DefaultWindow
	}
	if config.Limit <= 0 {
		config.Limit = DefaultLimit
	}
	scheduler := cron.New(
		cron.WithLogger(cronLogger{}),
		cron.WithChain(cron.SkipIfStillRunning(cronLogger{})),
	)
	r := &Reconciler{
		config: config,
		syncer: syncer,
		cron:   scheduler,
	}
	if _, err := r.cron.AddFunc(config.Schedule, r.run); err != nil {
		return nil, fmt.Errorf("invalid reconciler schedule %q: %w", config.Schedule, err)
	}
	return r, nil
}

// Start starts the schedule in the background.
func (r *Reconciler) Start() {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.running {
		return
	}
	r.running = true
	r.cron.Start()
	log.Infow("reconciler started", "schedule", r.config.Schedule, "window", r.config.Window.String())
}

// Stop stops the schedule and waits for a run in progress to finish, or for
// ctx to be done.
func (r *Reconciler) Stop(ctx context.Context) error {
	r.mu.Lock()
	if !r.running {
		r.mu.Unlock()
		return nil
	}
	r.running = false
	r.mu.Unlock()

	select {
	case <-r.cron.Stop().Done():
		log.Infow("reconciler stopped")
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (r *Reconciler) run() {
	if _, err := r.RunOnce("cron"); err != nil {
		log.Warnw("reconciliation failed", "error", err)
	}
}

// RunOnce runs a reconciliation now and returns the number of sessions
// applied. The trigger labels the run in the metrics.
func (r *Reconciler) RunOnce(trigger string) (int, error) {
	start := time.Now()
	applied, err := r.syncer.SyncRecent(r.config.Window, r.config.Limit)
	metrics.RecordSyncRun(trigger, err == nil)
	if applied > 0 {
		log.Infow("reconciliation applied missed sessions", "applied", applied,
			"trigger", trigger, "elapsed", time.Since(start).String())
	} else {
		log.Debugw("reconciliation finished", "trigger", trigger, "elapsed", time.Since(start).String())
	}
	return applied, err
}
