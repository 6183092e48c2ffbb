package usecase

import (
	"context"
	"errors"
	"fmt"
	"time"

	"sidbot/pkg/cache"
	"sidbot/pkg/config"
	applogger "sidbot/pkg/logger"
	"sidbot/pkg/queue"
	"sidbot/pkg/schedule"
	"sidbot/pkg/util"
)

const (
	JobPrep        = "prep"
	JobExecute     = "execute"
	JobExits       = "exits"
	JobMaintenance = "maintenance"
	JobSync        = "sync"
	JobReport      = "report"

	triggerMessage = "job.trigger"
)

var ErrUnknownJob = errors.New("unknown job")

// Runner is one schedulable stage.
type Runner interface {
	Run(ctx context.Context) error
}

// Stages are the lifecycle steps the orchestrator composes into jobs.
type Stages struct {
	Sync        Runner
	Discovery   Runner
	Extremes    Runner
	Gate        Runner
	Scoring     Runner
	Report      Runner
	Entry       Runner
	Exits       Runner
	Maintenance Runner
}

type jobSpec struct {
	run        func(ctx context.Context) error
	marketOnly bool
}

type triggerPayload struct {
	Job string `json:"job"`
}

// Orchestrator is the single writer: scheduled and manually triggered jobs all run on the
// goroutine that calls Run, one at a time.
type Orchestrator struct {
	env   Env
	cfg   config.Schedule
	hours schedule.MarketHours
	sched *schedule.Scheduler
	jobs  map[string]jobSpec
	queue queue.Queue
	locks cache.Service
}

func NewOrchestrator(env Env, cfg config.Schedule, stages Stages, q queue.Queue, locks cache.Service) (*Orchestrator, error) {
	open, err := schedule.ParseTimeOfDay(cfg.MarketOpen)
	if err != nil {
		return nil, err
	}
	closing, err := schedule.ParseTimeOfDay(cfg.MarketClose)
	if err != nil {
		return nil, err
	}
	o := &Orchestrator{
		env:   env,
		cfg:   cfg,
		hours: schedule.MarketHours{Open: open, Close: closing},
		sched: schedule.New(),
		queue: q,
		locks: locks,
	}
	o.jobs = map[string]jobSpec{
		JobPrep: {marketOnly: true, run: o.sequence(JobPrep,
			named{"sync", stages.Sync},
			named{"discovery", stages.Discovery},
			named{"extremes", stages.Extremes},
			named{"gate", stages.Gate},
			named{"scoring", stages.Scoring},
			named{"report", stages.Report},
		)},
		JobExecute:     {marketOnly: true, run: stages.Entry.Run},
		JobExits:       {marketOnly: true, run: stages.Exits.Run},
		JobMaintenance: {run: stages.Maintenance.Run},
		JobSync:        {run: stages.Sync.Run},
		JobReport:      {run: stages.Report.Run},
	}

	now := env.Now()
	for _, d := range []struct {
		job string
		at  string
	}{
		{JobPrep, cfg.PrepAt},
		{JobExecute, cfg.ExecuteAt},
		{JobMaintenance, cfg.MaintenanceAt},
	} {
		at, err := schedule.ParseTimeOfDay(d.at)
		if err != nil {
			return nil, err
		}
		o.sched.Add(d.job, schedule.Daily{At: at}, now)
	}
	o.sched.Add(JobExits, schedule.Every{Interval: cfg.ExitPollInterval}, now)
	return o, nil
}

type named struct {
	name   string
	runner Runner
}

// sequence runs steps in order. A failed step is logged and the rest still run.
func (o *Orchestrator) sequence(job string, steps ...named) func(ctx context.Context) error {
	return func(ctx context.Context) error {
		var errs []error
		for _, s := range steps {
			if err := ctx.Err(); err != nil {
				return err
			}
			start := time.Now()
			err := util.Isolate(func() error { return s.runner.Run(ctx) })
			if err != nil {
				o.env.Log.Error("step failed",
					applogger.String("job", job),
					applogger.String("step", s.name),
					applogger.Error(err),
				)
				errs = append(errs, fmt.Errorf("%s: %w", s.name, err))
				continue
			}
			o.env.Log.Debug("step done",
				applogger.String("job", job),
				applogger.String("step", s.name),
				applogger.Duration("took", time.Since(start)),
			)
		}
		return errors.Join(errs...)
	}
}

// Jobs lists the names accepted by Trigger.
func (o *Orchestrator) Jobs() []string {
	return []string{JobPrep, JobExecute, JobExits, JobMaintenance, JobSync, JobReport}
}

// Trigger queues a manual run. It is safe to call from any goroutine.
func (o *Orchestrator) Trigger(ctx context.Context, job string) (string, error) {
	if _, ok := o.jobs[job]; !ok {
		return "", fmt.Errorf("%w: %q", ErrUnknownJob, job)
	}
	id, err := o.queue.Push(ctx, triggerMessage, triggerPayload{Job: job})
	if err != nil {
		return "", fmt.Errorf("queue %s: %w", job, err)
	}
	o.env.Log.Info("job queued", applogger.String("job", job), applogger.String("id", id))
	return id, nil
}

// Run ticks until ctx is cancelled. A failing tick is logged and the loop pauses before
// resuming.
func (o *Orchestrator) Run(ctx context.Context) error {
	ticker := time.NewTicker(o.cfg.Tick)
	defer ticker.Stop()
	o.env.Log.Info("orchestrator started", applogger.Strings("jobs", o.Jobs()))
	for {
		select {
		case <-ctx.Done():
			o.env.Log.Info("orchestrator stopped")
			return nil
		case <-ticker.C:
		}
		err := util.Isolate(func() error { return o.Tick(ctx) })
		if err == nil || ctx.Err() != nil {
			continue
		}
		o.env.Metrics.RecordError("orchestrator")
		o.env.Log.Error("orchestrator tick failed, pausing",
			applogger.Error(err),
			applogger.Duration("pause", o.cfg.ErrorPause),
		)
		select {
		case <-ctx.Done():
			return nil
		case <-time.After(o.cfg.ErrorPause):
		}
	}
}

// Tick runs every scheduled job that is due, then drains manual triggers.
func (o *Orchestrator) Tick(ctx context.Context) error {
	now := o.env.Now()
	var errs []error
	for _, job := range o.sched.Due(now) {
		def := o.jobs[job]
		if def.marketOnly && !o.hours.IsOpen(now) {
			o.env.Log.Debug("market closed, skipping", applogger.String("job", job))
			continue
		}
		if err := o.runJob(ctx, job); err != nil {
			errs = append(errs, err)
		}
	}
	if err := o.drain(ctx); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}

func (o *Orchestrator) drain(ctx context.Context) error {
	var errs []error
	for ctx.Err() == nil {
		msg, ok, err := o.queue.Pop(ctx)
		if err != nil {
			return fmt.Errorf("pop trigger: %w", err)
		}
		if !ok {
			break
		}
		p, err := queue.ParsePayload[triggerPayload](msg)
		if err == nil {
			if _, known := o.jobs[p.Job]; !known {
				err = fmt.Errorf("%w: %q", ErrUnknownJob, p.Job)
			}
		}
		if err != nil {
			o.env.Log.Warn("dropping bad trigger", applogger.String("id", msg.ID), applogger.Error(err))
			if derr := o.queue.DeadLetter(ctx, msg); derr != nil {
				o.env.Log.Error("dead letter failed", applogger.Error(derr))
			}
			continue
		}
		o.env.Log.Info("running triggered job", applogger.String("job", p.Job), applogger.String("id", msg.ID))
		if err := o.runJob(ctx, p.Job); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// runJob holds a distributed lock for the job's duration so a second replica skips it.
func (o *Orchestrator) runJob(ctx context.Context, job string) error {
	if o.locks != nil {
		key := cache.Key("lock", "job", job)
		ok, err := o.locks.TryLock(ctx, key, o.cfg.LockTTL)
		if err != nil {
			return fmt.Errorf("lock %s: %w", job, err)
		}
		if !ok {
			o.env.Log.Info("job already running elsewhere", applogger.String("job", job))
			return nil
		}
		defer func() {
			if err := o.locks.Unlock(context.WithoutCancel(ctx), key); err != nil {
				o.env.Log.Warn("unlock failed", applogger.String("job", job), applogger.Error(err))
			}
		}()
	}

	start := time.Now()
	err := util.Isolate(func() error { return o.jobs[job].run(ctx) })
	took := time.Since(start)
	o.env.Metrics.RecordJob(job, took.Seconds(), err)
	if err != nil {
		o.env.Log.Error("job failed", applogger.String("job", job), applogger.Duration("took", took), applogger.Error(err))
		return fmt.Errorf("job %s: %w", job, err)
	}
	o.env.Log.Info("job finished", applogger.String("job", job), applogger.Duration("took", took))
	return nil
}
