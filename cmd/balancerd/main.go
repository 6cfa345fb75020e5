package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/jonboulle/clockwork"

	"github.com/magickw/linkDAO-sub004/internal/balancer"
	"github.com/magickw/linkDAO-sub004/internal/config"
	"github.com/magickw/linkDAO-sub004/internal/logging"
	"github.com/magickw/linkDAO-sub004/internal/types"
	"github.com/magickw/linkDAO-sub004/internal/version"
	"github.com/magickw/linkDAO-sub004/pkg/api"
)

func main() {
	var (
		configFile  = flag.String("config", "", "Configuration file path")
		showVersion = flag.Bool("version", false, "Show version information")
		validate    = flag.Bool("validate", false, "Validate configuration and exit")
	)
	flag.Parse()

	if *showVersion {
		fmt.Println(version.String())
		os.Exit(0)
	}

	bootLogger := logging.NewNop()
	loader := config.NewLoader(*configFile, bootLogger)
	cfg, err := loader.LoadConfig()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	if *validate {
		fmt.Println("configuration is valid")
		os.Exit(0)
	}

	logger, err := logging.New(cfg.Logging.Level, cfg.Logging.Format)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to initialize logger: %v\n", err)
		os.Exit(1)
	}

	if err := run(cfg, loader, logger); err != nil {
		logger.Error("balancerd exited with error", "error", err)
		os.Exit(1)
	}
}

func run(cfg *types.Config, loader *config.Loader, logger types.Logger) error {
	b := balancer.New(cfg, logger, clockwork.NewRealClock())
	b.Start()
	defer b.Stop()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Hot-apply strategy and scaling-policy changes from the config file.
	watcher, err := config.NewWatcher(loader, logger)
	if err != nil {
		return fmt.Errorf("failed to create config watcher: %w", err)
	}
	if err := watcher.Start(ctx); err != nil {
		logger.Warn("configuration watching disabled", "error", err)
	} else {
		defer watcher.Stop()
		watcher.OnChange(func(newCfg *types.Config) {
			if err := b.SetStrategy(newCfg.LoadBalancing.Strategy); err != nil {
				logger.Error("failed to apply reloaded strategy", "error", err)
			}
			if err := b.SetAutoScalingPolicy(newCfg.AutoScaling.Policy); err != nil {
				logger.Error("failed to apply reloaded scaling policy", "error", err)
			}
		})
	}

	var apiServer *http.Server
	errChan := make(chan error, 1)
	if cfg.API.Enabled {
		handler := api.New(b, logger, cfg)
		apiServer = &http.Server{
			Addr:         cfg.API.Addr,
			Handler:      handler.Router(),
			ReadTimeout:  cfg.API.ReadTimeout,
			WriteTimeout: cfg.API.WriteTimeout,
		}
		go func() {
			logger.Info("starting admin API", "addr", cfg.API.Addr)
			if err := apiServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				errChan <- fmt.Errorf("api server error: %w", err)
			}
		}()
	}

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-sigChan:
		logger.Info("received shutdown signal", "signal", sig.String())
	case err := <-errChan:
		return err
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer shutdownCancel()

	if apiServer != nil {
		if err := apiServer.Shutdown(shutdownCtx); err != nil {
			logger.Error("api server shutdown error", "error", err)
		}
	}

	logger.Info("shutdown completed")
	return nil
}
