// Command cubed runs the raster data-cube compute server, and offers a
// thin "cubed client" subcommand tree for driving one over HTTP.
//
// Logging:
//   - Base logger is created here with output format and level
//   - Logger is passed to all components via dependency injection
//   - No global slog configuration (no slog.SetDefault)
//   - Components scope loggers with their own attributes
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"time"

	"github.com/spf13/cobra"

	"cubed/cmd/cubed/clientcmd"
	"cubed/internal/cachesweep"
	"cubed/internal/computeserver"
	"cubed/internal/cubefactory"
	"cubed/internal/dircollection"
	"cubed/internal/rastersource"
	"cubed/internal/serverconfig"
	"cubed/internal/spooldir"
	"cubed/internal/warpexec"
)

var version = "dev"

// runtimeOptions carries the flags that configure run's collaborators but
// aren't part of serverconfig.ServerConfig (which only holds what the
// server itself validates and uses).
type runtimeOptions struct {
	collectionGlob string
	warpBinary     string
	sweepInterval  time.Duration
}

func main() {
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelInfo}))

	rootCmd := &cobra.Command{
		Use:     "cubed",
		Short:   "Raster data-cube compute server",
		Version: version,
	}

	versionCmd := &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Println(version)
		},
	}

	rootCmd.AddCommand(newServerCommand(logger), versionCmd, clientcmd.New())

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func newServerCommand(logger *slog.Logger) *cobra.Command {
	defaults := serverconfig.Defaults()

	cmd := &cobra.Command{
		Use:   "server",
		Short: "Start the compute server",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, opts, err := parseServerFlags(cmd, defaults)
			if err != nil {
				return err
			}

			ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
			defer cancel()

			return run(ctx, logger, cfg, opts)
		},
	}

	cmd.Flags().StringP("basepath", "b", defaults.BasePath, "HTTP base path for the API")
	cmd.Flags().IntP("port", "p", defaults.Port, "listen port")
	cmd.Flags().IntP("worker_threads", "t", defaults.WorkerThreads, "max concurrent chunk workers")
	cmd.Flags().StringP("dir", "D", defaults.Dir, "working directory for uploads, spool files, and the collection snapshot")
	cmd.Flags().Bool("ssl", false, "reserved; unimplemented, rejected if set")
	cmd.Flags().Int64("cache-bytes", 0, "chunk cache byte budget (0 means unbounded; negative values are rejected)")
	cmd.Flags().Int("warp-threads", defaults.WarpThreads, "thread count passed to the raster backend's warp options")
	cmd.Flags().String("collection-glob", "", "doublestar glob pattern for the reference image-collection backend")
	cmd.Flags().String("warp-binary", "gdalwarp", "external warp binary invoked per chunk read")
	cmd.Flags().Duration("cache-sweep-interval", time.Minute, "interval between chunk-cache occupancy sweeps")

	return cmd
}

func parseServerFlags(cmd *cobra.Command, defaults serverconfig.ServerConfig) (serverconfig.ServerConfig, runtimeOptions, error) {
	cfg := defaults
	cfg.BasePath, _ = cmd.Flags().GetString("basepath")
	cfg.Port, _ = cmd.Flags().GetInt("port")
	cfg.WorkerThreads, _ = cmd.Flags().GetInt("worker_threads")
	cfg.Dir, _ = cmd.Flags().GetString("dir")
	cfg.SSL, _ = cmd.Flags().GetBool("ssl")
	cfg.CacheBytes, _ = cmd.Flags().GetInt64("cache-bytes")
	cfg.WarpThreads, _ = cmd.Flags().GetInt("warp-threads")

	if err := cfg.Validate(); err != nil {
		return serverconfig.ServerConfig{}, runtimeOptions{}, err
	}

	var opts runtimeOptions
	opts.collectionGlob, _ = cmd.Flags().GetString("collection-glob")
	opts.warpBinary, _ = cmd.Flags().GetString("warp-binary")
	opts.sweepInterval, _ = cmd.Flags().GetDuration("cache-sweep-interval")

	return cfg, opts, nil
}

func run(ctx context.Context, logger *slog.Logger, cfg serverconfig.ServerConfig, opts runtimeOptions) error {
	if err := cfg.EnsureDirExists(); err != nil {
		return fmt.Errorf("ensure working directory: %w", err)
	}
	logger.Info("working directory", "path", cfg.Dir)

	work := spooldir.New(cfg.Dir)
	if err := work.EnsureExists(); err != nil {
		return fmt.Errorf("ensure working subdirectories: %w", err)
	}

	collection, err := dircollection.New(ctx, opts.collectionGlob, logger, dircollection.WithSnapshotPath(work.SnapshotPath()))
	if err != nil {
		return fmt.Errorf("open image collection: %w", err)
	}
	defer collection.Close()

	resolver := rastersource.New(work.SpoolDir(), logger)
	backend := warpexec.New(opts.warpBinary, resolver, logger)

	factory := &cubefactory.Factory{
		Collection: collection,
		Backend:    backend,
		NumThreads: cfg.WarpThreads,
		Logger:     logger,
	}

	srv := computeserver.New(computeserver.Config{
		BasePath:   cfg.BasePath,
		WorkDir:    work.FilesDir(),
		MaxWorkers: cfg.WorkerThreads,
		CacheBytes: cfg.CacheBytes,
		Factory:    factory,
		Logger:     logger,
	})

	sweep, err := cachesweep.New(srv, opts.sweepInterval, logger)
	if err != nil {
		return fmt.Errorf("start cache sweep: %w", err)
	}
	defer func() {
		if err := sweep.Stop(); err != nil {
			logger.Warn("cache sweep stop error", "error", err)
		}
	}()

	addr := fmt.Sprintf(":%d", cfg.Port)
	logger.Info("starting compute server", "addr", addr, "basepath", cfg.BasePath)
	return srv.Run(ctx, addr)
}
