// Command modhost boots the kernel on a module directory and runs its tick
// loop until interrupted.
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"golang.org/x/sync/errgroup"

	"modhost/internal/config"
	"modhost/internal/core"
	"modhost/internal/logging"
)

// version is overridden at build time with -ldflags "-X main.version=...".
var version = "dev"

var (
	// Global flags
	verbose    bool
	configPath string
	watch      bool
	maxTicks   uint64
	workers    int

	cfg    *config.Config
	logger *zap.Logger
)

// rootCmd represents the base command
var rootCmd = &cobra.Command{
	Use:   "modhost <module-dir>",
	Short: "modhost - extensible application kernel",
	Long: `modhost loads every module in a directory, orders them by their declared
dependencies and drives their init/update/shutdown lifecycle from a single
tick loop.

Modules find each other through the shared named memory registry, exchange
events over the signal bus and offload work to background jobs.`,
	Args:          cobra.ExactArgs(1),
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		zcfg := zap.NewProductionConfig()
		if verbose {
			zcfg.Level = zap.NewAtomicLevelAt(zapcore.DebugLevel)
		}
		var err error
		logger, err = zcfg.Build()
		if err != nil {
			return fmt.Errorf("failed to initialize logger: %w", err)
		}

		cfg, err = config.Load(configPath)
		if err != nil {
			return err
		}
		if verbose {
			cfg.Logging.Level = "debug"
		}
		if cmd.Flags().Changed("workers") {
			cfg.Jobs.Workers = workers
		}
		if watch {
			cfg.Modules.Watch = true
		}
		if err := cfg.Validate(); err != nil {
			return fmt.Errorf("invalid config %s: %w", configPath, err)
		}
		return logging.Initialize(cfg.Logging.ToLogging())
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		logging.Sync()
		if logger != nil {
			_ = logger.Sync()
		}
	},
	RunE: runKernel,
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable verbose logging")
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", config.DefaultPath, "Config file (missing file = defaults)")

	rootCmd.Flags().BoolVarP(&watch, "watch", "w", false, "Hot reload when module files change")
	rootCmd.Flags().Uint64Var(&maxTicks, "ticks", 0, "Stop after N ticks (0 = run until interrupted)")
	rootCmd.Flags().IntVar(&workers, "workers", 0, "Background worker slots (overrides jobs.workers)")

	rootCmd.AddCommand(inspectCmd)
	rootCmd.AddCommand(versionCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// runKernel boots the kernel on args[0] and runs it until the loop ends or
// the process is interrupted.
func runKernel(cmd *cobra.Command, args []string) error {
	dir := args[0]

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	k, err := core.New(cfg, core.WithMaxTicks(maxTicks))
	if err != nil {
		return err
	}
	defer k.Shutdown()

	logger.Info("Booting kernel", zap.String("modules", dir), zap.String("instance", k.Context().Instance))
	if err := k.Boot(dir); err != nil {
		logger.Error("Boot failed", zap.Error(err))
		return fmt.Errorf("boot failed: %w", err)
	}

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	g, gctx := errgroup.WithContext(runCtx)

	if cfg.Modules.Watch {
		w, err := k.Watch(gctx)
		if err != nil {
			return err
		}
		g.Go(func() error {
			<-gctx.Done()
			w.Stop()
			return nil
		})
	}

	g.Go(func() error {
		defer cancel()
		return k.Run(gctx)
	})

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		logger.Error("Kernel stopped with error", zap.Error(err))
		return err
	}
	logger.Info("Kernel stopped", zap.Uint64("frames", k.Context().Frame))
	return nil
}
