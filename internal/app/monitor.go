package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/agbru/taskmaster/internal/cli"
	"github.com/agbru/taskmaster/internal/control"
	apperrors "github.com/agbru/taskmaster/internal/errors"
	"github.com/agbru/taskmaster/internal/logging"
	"github.com/agbru/taskmaster/internal/metrics"
	"github.com/agbru/taskmaster/internal/orchestration"
	"github.com/agbru/taskmaster/internal/server"
	"github.com/agbru/taskmaster/internal/snapshot"
	"github.com/agbru/taskmaster/internal/storage"
	"github.com/agbru/taskmaster/internal/sysmon"
	"github.com/agbru/taskmaster/internal/tracker"
	"github.com/agbru/taskmaster/internal/tui"
)

// observers fans control actions out to every registered observer.
type observers []control.Observer

func (o observers) ControlAction(action string, pid int32, detail string, ok bool) {
	for _, ob := range o {
		ob.ControlAction(action, pid, detail, ok)
	}
}

// monitor is the set of components wired for one run.
type monitor struct {
	sampler  sysmon.Sampler
	tracker  *tracker.Tracker
	poller   *orchestration.Poller
	control  *control.Controller
	registry *metrics.Registry
	store    *storage.Store
	snapshot *snapshot.Logger
	server   *server.Server
}

// newSampler is replaced in tests.
var newSampler = func(diskPath string) sysmon.Sampler {
	return sysmon.NewPsutilSampler(diskPath)
}

// onceWarmup is how long a one-shot run measures CPU before ranking.
var onceWarmup = time.Second

// build wires the tracker, poller, storage, controller and HTTP server. The
// store is only opened when persistence is enabled and the run is not a
// one-shot.
func (a *Application) build(mode string, logger *logging.ZerologAdapter) (*monitor, error) {
	cfg := a.Config
	m := &monitor{registry: metrics.NewRegistry(), sampler: newSampler(cfg.DiskPath)}

	m.tracker = tracker.New(m.sampler,
		tracker.WithLimit(cfg.TopN),
		tracker.WithLogger(logger.With(logging.String("component", "tracker"))),
	)
	m.poller = orchestration.NewPoller(m.tracker,
		orchestration.WithInterval(cfg.Interval),
		orchestration.WithRetryDelay(cfg.RetryDelay),
		orchestration.WithLogger(logger.With(logging.String("component", "poller"))),
		orchestration.WithRecorder(m.registry),
	)
	m.poller.Subscribe(orchestration.ListenerFunc(func(orchestration.Update) {
		m.registry.ObserveView(m.tracker.Len(), m.tracker.System())
	}))

	obs := observers{m.registry}
	if !cfg.NoDB && mode != ModeOnce {
		store, err := storage.Open(cfg.DBPath, storage.WithRunID(uuid.NewString()))
		if err != nil {
			return nil, err
		}
		m.store = store
		m.snapshot = snapshot.New(m.tracker, store,
			snapshot.WithInterval(cfg.LogInterval),
			snapshot.WithCleanup(cfg.CleanupInterval, cfg.Retention()),
			snapshot.WithLogger(logger.With(logging.String("component", "snapshot"))),
			snapshot.WithRecorder(m.registry),
		)
		obs = append(obs, m.snapshot)
	}

	m.control = control.New(
		control.WithLogger(logger.With(logging.String("component", "control"))),
		control.WithObserver(obs),
	)

	if cfg.Listen != "" && mode != ModeOnce {
		sec := server.DefaultSecurityConfig()
		sec.AllowedOrigins = cfg.Origins()
		opts := []server.Option{
			server.WithSecurity(sec),
			server.WithMetrics(server.NewMetricsFor(m.registry)),
			server.WithLogger(logger.With(logging.String("component", "server"))),
			server.WithDisplayCount(cfg.DisplayCount),
			server.WithVersion(Version),
		}
		if m.store != nil {
			opts = append(opts, server.WithHistory(m.store))
		}
		m.server = server.New(cfg.Listen, m.tracker, m.control, opts...)
		m.poller.Subscribe(m.server)
	}
	return m, nil
}

func (m *monitor) close(logger logging.Logger) {
	if m.store == nil {
		return
	}
	if err := m.store.Close(); err != nil {
		logger.Error("closing storage", err)
	}
}

// runMonitor builds the components and runs them alongside the chosen
// presentation until it returns or ctx is done.
func (a *Application) runMonitor(ctx context.Context, out io.Writer, mode string, logger *logging.ZerologAdapter) int {
	m, err := a.build(mode, logger)
	if err != nil {
		fmt.Fprintf(a.ErrWriter, "Error opening snapshot database %s: %v\n", a.Config.DBPath, err)
		return apperrors.ExitErrorStorage
	}
	defer m.close(logger)

	logger.Info("monitor starting",
		logging.String("mode", mode),
		logging.String("version", Version),
		logging.String("config", a.Config.String()))

	if mode == ModeOnce {
		return a.runOnce(ctx, out, m)
	}

	if m.store != nil {
		logger.Info("snapshot storage open",
			logging.String("db", a.Config.DBPath), logging.String("run_id", m.store.RunID()))
	}
	if m.snapshot != nil {
		m.snapshot.RecordEvent(ctx, snapshot.EventMonitorStart, "monitor started", map[string]any{
			"mode": mode, "top": a.Config.TopN, "interval": a.Config.Interval.String(), "version": Version,
		})
		defer m.snapshot.RecordEvent(context.Background(), snapshot.EventMonitorStop, "monitor stopped", map[string]any{"mode": mode})
	}

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	g, gctx := errgroup.WithContext(runCtx)

	// Presenters subscribe before the first cycle.
	present := a.presenter(gctx, out, mode, m)

	g.Go(func() error { return m.poller.Run(gctx) })
	if m.snapshot != nil {
		g.Go(func() error { return m.snapshot.Run(gctx) })
	}
	if m.server != nil {
		g.Go(func() error {
			if err := m.server.Run(gctx); err != nil {
				return fmt.Errorf("http server: %w", err)
			}
			return nil
		})
	}

	code := present()
	cancel()

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		logger.Error("monitor stopped with error", err)
		fmt.Fprintf(a.ErrWriter, "Error: %v\n", err)
		return apperrors.ExitErrorGeneric
	}
	stats := m.tracker.Stats()
	fields := []logging.Field{
		logging.Int("tracked", stats.Tracked),
		logging.Int("last_added", stats.Added),
		logging.Int("last_removed", stats.Removed),
	}
	if m.snapshot != nil {
		fields = append(fields,
			logging.Int("snapshot_writes", int(m.snapshot.Writes())),
			logging.Int("snapshot_failures", int(m.snapshot.Failures())))
	}
	logger.Info("monitor stopped", fields...)
	return code
}

// presenter subscribes the presentation for mode and returns the function
// that runs it until the user leaves or ctx is done.
func (a *Application) presenter(ctx context.Context, out io.Writer, mode string, m *monitor) func() int {
	switch mode {
	case ModeTUI:
		d := tui.New(ctx, m.tracker, m.control, tui.Options{
			Version:      Version,
			DisplayCount: a.Config.DisplayCount,
		})
		m.poller.Subscribe(d.Listener())
		return func() int { return d.Run(ctx) }

	case ModeREPL:
		r := cli.NewREPL(m.tracker, m.control, cli.REPLConfig{DisplayCount: a.Config.DisplayCount})
		r.SetInput(a.in)
		r.SetOutput(out)
		return func() int {
			r.Start(ctx)
			return apperrors.ExitSuccess
		}

	default:
		p := cli.NewPresenter(out, a.ErrWriter, m.tracker, a.Config.DisplayCount)
		m.poller.Subscribe(p)
		return func() int {
			p.Start()
			<-ctx.Done()
			p.Stop()
			return apperrors.ExitSuccess
		}
	}
}

// runOnce warms the sampler, performs one refresh and prints a single
// table.
func (a *Application) runOnce(ctx context.Context, out io.Writer, m *monitor) int {
	if err := sysmon.Warm(ctx, m.sampler, onceWarmup); err != nil {
		fmt.Fprintf(a.ErrWriter, "Error: refresh failed: %v\n", err)
		if apperrors.IsContextError(err) {
			return apperrors.ExitErrorCanceled
		}
		return apperrors.ExitErrorGeneric
	}
	u := m.poller.RunOnce(ctx)
	if u.Err != nil {
		fmt.Fprintf(a.ErrWriter, "Error: refresh failed: %v\n", u.Err)
		if apperrors.IsContextError(u.Err) {
			return apperrors.ExitErrorCanceled
		}
		return apperrors.ExitErrorGeneric
	}
	snap := cli.TakeSnapshot(m.tracker, a.Config.DisplayCount)
	if err := cli.DisplaySnapshotWithConfig(out, snap, cli.OutputConfig{OutputFile: a.Config.Output}); err != nil {
		fmt.Fprintf(a.ErrWriter, "Error saving snapshot: %v\n", err)
		return apperrors.ExitErrorGeneric
	}
	return apperrors.ExitSuccess
}
