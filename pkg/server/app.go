package server

import (
	"context"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"sidbot/internal/usecase"
	"sidbot/pkg/config"
	xhttp "sidbot/pkg/http"
	applogger "sidbot/pkg/logger"
)

// Scheduler is the long-running job loop. It returns once ctx is cancelled.
type Scheduler interface {
	Run(ctx context.Context) error
}

// App encapsulates the process lifecycle: the HTTP server and the job orchestrator.
// Infrastructure clients are released by the injector's cleanup.
type App struct {
	cfg        *config.Config
	l          *applogger.Logger
	httpServer *xhttp.Server
	scheduler  Scheduler
}

// New creates a new App instance with all dependencies.
func New(cfg *config.Config, l *applogger.Logger, httpServer *xhttp.Server, orch *usecase.Orchestrator) *App {
	return &App{cfg: cfg, l: l, httpServer: httpServer, scheduler: orch}
}

// Run starts the application and blocks until SIGINT or SIGTERM.
func (a *App) Run() error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	return a.RunContext(ctx)
}

// RunContext starts the application and blocks until ctx is cancelled.
func (a *App) RunContext(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	if err := a.httpServer.Start(); err != nil {
		a.l.Error("http server start error", applogger.Error(err))
		return err
	}

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		if err := a.scheduler.Run(ctx); err != nil {
			a.l.Error("orchestrator error", applogger.Error(err))
		}
	}()
	a.l.Info("sidbot started",
		applogger.Int("port", a.cfg.Server.Port),
		applogger.String("timezone", a.cfg.Schedule.Timezone),
		applogger.Bool("paper", a.cfg.Alpaca.Paper),
	)

	<-ctx.Done()
	a.l.Info("shutdown signal received")
	return a.shutdown(&wg)
}

// shutdown stops accepting requests, then waits for the running job to return.
func (a *App) shutdown(wg *sync.WaitGroup) error {
	err := a.httpServer.Stop(context.Background())
	if err != nil {
		a.l.Error("http shutdown error", applogger.Error(err))
	}
	wg.Wait()
	a.l.Info("shutdown complete")
	return err
}
