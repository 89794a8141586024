package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/kingrea/warden/internal/config"
	"github.com/kingrea/warden/internal/eventbridge"
	"github.com/kingrea/warden/internal/logbook"
	"github.com/kingrea/warden/internal/logging"
	"github.com/kingrea/warden/internal/orchestrator"
	"github.com/kingrea/warden/internal/task"
	"github.com/kingrea/warden/internal/tui"
	"github.com/kingrea/warden/internal/world"
	"github.com/kingrea/warden/plugins"
)

const bridgeShutdownTimeout = 2 * time.Second

func runCmd() *cobra.Command {
	var (
		flagSimulate bool
		flagHeadless bool
		flagLatency  int
	)

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Start the orchestrator, the event bridge and the status board",
		RunE: func(cmd *cobra.Command, args []string) error {
			if !flagSimulate {
				return errors.New("no live world adapter is built in; run with --simulate")
			}
			dir, err := projectDir()
			if err != nil {
				return err
			}
			cfg, err := loadConfig(dir)
			if err != nil {
				return err
			}
			logger, err := openLogger(cfg, flagHeadless, cmd)
			if err != nil {
				return err
			}
			defer logger.Close()

			lb, err := logbook.New(cfg.LogbookPath())
			if err != nil {
				return fmt.Errorf("open logbook: %w", err)
			}

			sim := world.NewSim()
			sim.SetLatency(flagLatency)

			orch, err := newOrchestrator(cfg, sim, logger, lb)
			if err != nil {
				return err
			}
			logics := task.NewRegistry()
			if err := task.RegisterBuiltins(logics); err != nil {
				return err
			}
			names, err := plugins.RegisterTasks(orch, logics, cfg)
			if err != nil {
				return err
			}
			logger.Infof("warden: registered %d tasks: %s", len(names), strings.Join(names, ", "))
			lb.Info("Session opened · %d tasks from %s", len(names), cfg.DefinitionsDir())

			router := eventbridge.NewRouter(orch, eventbridge.RouterWithLogger(logger))
			return serve(cmd.Context(), cfg, orch, router, lb, logger, flagHeadless)
		},
	}

	cmd.Flags().BoolVar(&flagSimulate, "simulate", true, "Drive the in-memory world simulator")
	cmd.Flags().BoolVar(&flagHeadless, "headless", false, "Log to stderr instead of showing the status board")
	cmd.Flags().IntVar(&flagLatency, "latency", 2, "Simulator action latency in ticks")

	return cmd
}

func loadConfig(dir string) (*config.Config, error) {
	cfg, err := config.Load(dir)
	if err != nil {
		return nil, err
	}
	if flagLogLevel != "" {
		cfg.Project.LogLevel = flagLogLevel
	}
	return cfg, nil
}

func openLogger(cfg *config.Config, headless bool, cmd *cobra.Command) (*logging.Logger, error) {
	level, err := logging.ParseLevel(cfg.Project.LogLevel)
	if err != nil {
		return nil, err
	}
	if headless {
		return logging.NewWriter(cmd.ErrOrStderr(), level), nil
	}
	return logging.New(cfg.ProjectDir, level)
}

func newOrchestrator(cfg *config.Config, sim *world.Sim, logger *logging.Logger, lb *logbook.Logbook) (*orchestrator.Orchestrator, error) {
	settings := orchestrator.Settings{
		TickInterval:    cfg.Project.TickInterval,
		MaxAttempts:     cfg.Project.MaxAttempts,
		SoftStopRetry:   cfg.Project.SoftStopRetry,
		HardStopTimeout: cfg.Project.HardStopTimeout,
	}
	return orchestrator.New(sim, sim, settings,
		orchestrator.WithLogger(logger),
		orchestrator.WithHistory(orchestrator.NewRepository(cfg.HistoryPath())),
		orchestrator.WithJournal(lb),
		orchestrator.WithTickHook(sim.Advance),
	)
}

// serve runs the tick loop, the bridge and the status board until the
// board quits or the process is interrupted.
func serve(parent context.Context, cfg *config.Config, orch *orchestrator.Orchestrator, router *eventbridge.Router, lb *logbook.Logbook, logger *logging.Logger, headless bool) error {
	if parent == nil {
		parent = context.Background()
	}
	sigCtx, stop := signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
	defer stop()
	ctx, cancel := context.WithCancel(sigCtx)
	defer cancel()

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return orch.Run(ctx, router.Publish)
	})

	settings := eventbridge.SettingsFromConfig(cfg)
	if settings.Enabled {
		srv := eventbridge.NewServer(settings,
			eventbridge.WithProcessor(router),
			eventbridge.WithReports(router),
			eventbridge.WithLogger(logger),
		)
		if err := srv.Start(ctx); err != nil {
			cancel()
			_ = g.Wait()
			return err
		}
		g.Go(func() error {
			<-ctx.Done()
			shutdownCtx, done := context.WithTimeout(context.Background(), bridgeShutdownTimeout)
			defer done()
			return srv.Shutdown(shutdownCtx)
		})
	}

	if !headless {
		sub := router.Subscribe()
		program := tea.NewProgram(
			tui.New(orch, sub.Reports, tui.WithLogbook(lb)),
			tea.WithAltScreen(),
			tea.WithContext(ctx),
		)
		g.Go(func() error {
			defer sub.Close()
			defer cancel()
			if _, err := program.Run(); err != nil && !errors.Is(err, tea.ErrProgramKilled) {
				return fmt.Errorf("status board: %w", err)
			}
			return nil
		})
	}

	err := g.Wait()
	lb.Info("Session closed")
	return err
}
