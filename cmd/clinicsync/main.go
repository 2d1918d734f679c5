package main

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"
	"golang.org/x/crypto/bcrypt"

	"github.com/jwalitptl/clinic-sync/internal/config"
	"github.com/jwalitptl/clinic-sync/internal/remote"
	"github.com/jwalitptl/clinic-sync/internal/service/seed"
	syncsvc "github.com/jwalitptl/clinic-sync/internal/service/sync"
	"github.com/jwalitptl/clinic-sync/internal/store"
	"github.com/jwalitptl/clinic-sync/pkg/clock"
	"github.com/jwalitptl/clinic-sync/pkg/logger"
	"github.com/jwalitptl/clinic-sync/pkg/metrics"
	"github.com/jwalitptl/clinic-sync/pkg/security"
)

type app struct {
	cfg     *config.Config
	log     *logger.Logger
	store   *store.Store
	metrics *metrics.Metrics
}

func newApp() (*app, error) {
	cfg, err := config.LoadConfig()
	if err != nil {
		return nil, err
	}

	log := logger.NewLogger(&logger.Config{
		Level:      logger.ParseLevel(cfg.Log.Level),
		TimeFormat: "15:04:05",
		Output:     os.Stdout,
	})

	m := metrics.New("clinicsync")
	if err := m.Register(prometheus.DefaultRegisterer); err != nil {
		return nil, fmt.Errorf("failed to register metrics: %w", err)
	}

	return &app{
		cfg:     cfg,
		log:     log,
		store:   store.New(cfg.Store, log, m),
		metrics: m,
	}, nil
}

func (a *app) coordinator() *syncsvc.Coordinator {
	authority := remote.NewClient(a.cfg.Sync.RemoteURL, a.cfg.Sync.Timeout(), a.log)
	return syncsvc.New(a.store, authority, clock.System(), a.log, a.metrics, syncsvc.Config{
		Interval:        a.cfg.Sync.Interval(),
		BatchSize:       a.cfg.Sync.BatchSize,
		InitiallyOnline: true,
	})
}

func main() {
	root := &cobra.Command{
		Use:   "clinicsync",
		Short: "Offline-first clinic data store with remote reconciliation",
	}

	root.AddCommand(runCmd(), seedCmd(), resetCmd(), syncCmd())

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func runCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "run",
		Short: "Open the store and run the sync coordinator until interrupted",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp()
			if err != nil {
				return err
			}
			defer a.store.Close()

			coordinator := a.coordinator()
			coordinator.Start(cmd.Context())
			defer coordinator.Stop()

			a.log.Info("clinicsync running", "store", a.cfg.Store.Path)

			stop := make(chan os.Signal, 1)
			signal.Notify(stop, os.Interrupt, syscall.SIGTERM)
			<-stop
			a.log.Info("shutting down")
			return nil
		},
	}
}

func seedCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "seed",
		Short: "Install the initial demo dataset (idempotent)",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp()
			if err != nil {
				return err
			}
			defer a.store.Close()

			hasher := security.NewBcryptHasher(bcrypt.DefaultCost)
			return seed.New(a.store, hasher, clock.System(), a.log).Run(cmd.Context())
		},
	}
}

func resetCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "reset",
		Short: "Wipe every collection, the pending queue and session state",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp()
			if err != nil {
				return err
			}
			defer a.store.Close()

			if err := a.store.ClearAll(cmd.Context()); err != nil {
				return err
			}
			a.log.Info("store reset")
			return nil
		},
	}
}

func syncCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "sync",
		Short: "Drain the pending queue once against the remote authority",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp()
			if err != nil {
				return err
			}
			defer a.store.Close()

			if err := a.coordinator().SyncNow(cmd.Context()); err != nil {
				return err
			}
			a.log.Info("sync complete")
			return nil
		},
	}
}
