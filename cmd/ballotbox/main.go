package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	flag "github.com/spf13/pflag"
	"github.com/vocdoni/ballotbox/db/metadb"
	"github.com/vocdoni/ballotbox/election"
	"github.com/vocdoni/ballotbox/log"
	"github.com/vocdoni/ballotbox/service"
	"github.com/vocdoni/ballotbox/storage"
	"golang.org/x/sync/errgroup"
)

// Services holds all the running services
type Services struct {
	Storage    *storage.Storage
	Controller *election.Controller
	API        *service.APIService
	Monitor    *service.ElectionMonitor
}

func main() {
	cfg, err := loadConfig(os.Args[1:])
	if errors.Is(err, flag.ErrHelp) {
		return
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error loading configuration: %v\n", err)
		os.Exit(1)
	}

	log.Init(cfg.Log.Level, cfg.Log.Output, nil)
	log.Infow("starting ballotbox", "version", Version)

	if err := validateConfig(cfg); err != nil {
		log.Fatalf("invalid configuration: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	services, err := setupServices(cfg)
	if err != nil {
		log.Fatalf("failed to setup services: %v", err)
	}
	defer shutdownServices(services)

	if err := runServices(ctx, cfg, services); err != nil {
		log.Errorw(err, "service failed")
	}
	log.Info("shutting down")
}

// setupServices opens the storage and builds the election controller.
func setupServices(cfg *Config) (*Services, error) {
	services := &Services{}

	dir := filepath.Join(cfg.Datadir, "storage")
	log.Infow("initializing storage", "datadir", dir, "type", cfg.DB.Type)
	database, err := metadb.New(cfg.DB.Type, dir)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize storage: %w", err)
	}
	services.Storage = storage.New(database)

	services.Controller, err = election.New(services.Storage, cfg.OrganizerAddress())
	if err != nil {
		_ = services.Storage.Close()
		return nil, fmt.Errorf("failed to create election controller: %w", err)
	}
	services.API = service.NewAPI(services.Controller, cfg.API.Host, cfg.API.Port, false)
	services.Monitor = service.NewElectionMonitor(services.Controller, cfg.Monitor.Interval)
	return services, nil
}

// runServices starts the API and the election monitor and blocks until ctx
// is canceled or any of them fails to start.
func runServices(ctx context.Context, cfg *Config, services *Services) error {
	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		log.Infow("starting API service", "host", cfg.API.Host, "port", cfg.API.Port)
		if err := services.API.Start(ctx); err != nil {
			return fmt.Errorf("failed to start API service: %w", err)
		}
		<-ctx.Done()
		services.API.Stop()
		return nil
	})
	g.Go(func() error {
		log.Infow("starting election monitor", "interval", cfg.Monitor.Interval.String())
		if err := services.Monitor.Start(ctx); err != nil {
			return fmt.Errorf("failed to start election monitor: %w", err)
		}
		<-ctx.Done()
		services.Monitor.Stop()
		return nil
	})
	return g.Wait()
}

// shutdownServices compacts and closes the storage.
func shutdownServices(services *Services) {
	if services.Storage == nil {
		return
	}
	if err := services.Storage.Compact(); err != nil {
		log.Warnw("failed to compact storage", "error", err.Error())
	}
	if err := services.Storage.Close(); err != nil {
		log.Warnw("failed to close storage", "error", err.Error())
	}
}
