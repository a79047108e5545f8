package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/coreos/go-systemd/v22/daemon"

	"botkv/internal/config"
	"botkv/internal/eventbus"
	"botkv/internal/maintenance"
	"botkv/internal/store"
	"botkv/internal/timeout"
	"botkv/pkg/logx"
)

func main() {
	var cfgPath string
	flag.StringVar(&cfgPath, "config", "./config.yaml", "path to config file (json or yaml)")
	flag.Parse()

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx, cfgPath); err != nil {
		fmt.Println("fatal:", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, cfgPath string) error {
	boot := logx.NewConsole("info")

	mgr := config.NewManager(cfgPath, boot)
	cfg, err := mgr.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	log, err := logx.New(logx.Config{
		Level:   cfg.Logging.Level,
		Console: cfg.Logging.Console,
		File: logx.FileConfig{
			Enabled: cfg.Logging.File.Enabled,
			Path:    cfg.Logging.File.Path,
		},
	})
	if err != nil {
		return fmt.Errorf("init logging: %w", err)
	}

	busy, err := config.ParseDurationField("storage.busy_timeout", cfg.Storage.BusyTimeout)
	if err != nil {
		return err
	}

	bus := eventbus.New()
	st, err := store.Open(store.Config{
		Driver:      cfg.Storage.Driver,
		Path:        cfg.Storage.Path,
		Addr:        cfg.Storage.Addr,
		Password:    cfg.Storage.Password,
		DB:          cfg.Storage.DB,
		Prefix:      cfg.Storage.Prefix,
		Tables:      cfg.Storage.Tables,
		BusyTimeout: busy,
	}, bus, log)
	if err != nil {
		return err
	}

	// Start before Connect so recovery rides the ready signal.
	tm := timeout.New(st, bus, log)
	tm.Start(ctx)

	if err := st.Connect(ctx); err != nil {
		return err
	}
	_, _ = daemon.SdNotify(false, daemon.SdNotifyReady)

	maint, err := startMaintenance(st, cfg, log)
	if err != nil {
		return err
	}

	if err := mgr.Watch(ctx); err != nil {
		log.Warn("config watch unavailable", logx.Err(err))
	}
	changes := mgr.Subscribe(1)
	defer mgr.Unsubscribe(changes)

	log.Info("botkvd running", logx.String("config", cfgPath))
	for {
		select {
		case <-ctx.Done():
			_, _ = daemon.SdNotify(false, daemon.SdNotifyStopping)
			if maint != nil {
				maint.Stop()
			}
			tm.Stop()
			if err := st.Close(); err != nil {
				log.Warn("store close", logx.Err(err))
			}
			log.Info("botkvd stopped")
			return nil
		case next := <-changes:
			// Storage and logging changes need a restart; maintenance
			// schedules apply live.
			if maint != nil {
				maint.Stop()
			}
			maint, err = startMaintenance(st, next, log)
			if err != nil {
				log.Warn("maintenance not restarted", logx.Err(err))
			}
		}
	}
}

func startMaintenance(st *store.Store, cfg *config.Config, log logx.Logger) (*maintenance.Service, error) {
	mc := cfg.Maintenance
	if mc == nil || !mc.Enabled {
		return nil, nil
	}
	pingEvery, err := config.ParseDurationField("maintenance.ping_every", mc.PingEvery)
	if err != nil {
		return nil, err
	}
	exportEvery, err := config.ParseDurationField("maintenance.export_every", mc.ExportEvery)
	if err != nil {
		return nil, err
	}
	s := maintenance.New(st, maintenance.Config{
		Enabled:      true,
		PingEvery:    pingEvery,
		ExportEvery:  exportEvery,
		ExportDir:    mc.ExportDir,
		ExportTables: mc.ExportTables,
	}, log)
	if err := s.Start(); err != nil {
		return nil, err
	}
	return s, nil
}
