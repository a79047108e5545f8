// Package maintenance runs the store's periodic housekeeping: latency
// pings for diagnostics and scheduled table exports as backups.
package maintenance

import (
	"context"
	"path/filepath"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"botkv/internal/store"
	"botkv/pkg/logx"
)

type Config struct {
	Enabled   bool
	PingEvery time.Duration // 0 means 1m

	// ExportEvery of 0 disables export backups.
	ExportEvery  time.Duration
	ExportDir    string
	ExportTables []string // empty means every declared table
}

type Service struct {
	log logx.Logger
	st  *store.Store
	cfg Config

	mu sync.Mutex
	c  *cron.Cron
}

func New(st *store.Store, cfg Config, log logx.Logger) *Service {
	if log.IsZero() {
		log = logx.Nop()
	}
	if cfg.PingEvery <= 0 {
		cfg.PingEvery = time.Minute
	}
	return &Service{log: log, st: st, cfg: cfg}
}

func (s *Service) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.cfg.Enabled || s.c != nil {
		return nil
	}
	c := cron.New()
	if _, err := c.AddFunc("@every "+s.cfg.PingEvery.String(), s.pingJob); err != nil {
		return err
	}
	if s.cfg.ExportEvery > 0 && s.cfg.ExportDir != "" {
		if _, err := c.AddFunc("@every "+s.cfg.ExportEvery.String(), s.exportJob); err != nil {
			return err
		}
	}
	c.Start()
	s.c = c
	s.log.Info("maintenance started",
		logx.Duration("ping_every", s.cfg.PingEvery),
		logx.Duration("export_every", s.cfg.ExportEvery))
	return nil
}

func (s *Service) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.c == nil {
		return
	}
	<-s.c.Stop().Done()
	s.c = nil
	s.log.Info("maintenance stopped")
}

func (s *Service) pingJob() {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	d, err := s.st.Ping(ctx)
	if err != nil {
		s.log.Warn("ping skipped", logx.Err(err))
		return
	}
	s.log.Debug("store ping", logx.Duration("elapsed", d))
}

func (s *Service) exportJob() {
	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()

	tables := s.cfg.ExportTables
	if len(tables) == 0 {
		tables = s.st.Tables()
	}
	for _, t := range tables {
		path := filepath.Join(s.cfg.ExportDir, t+".json")
		if err := s.st.ExportTableFile(ctx, t, path); err != nil {
			s.log.Warn("export failed", logx.String("table", t), logx.Err(err))
			continue
		}
		s.log.Debug("table exported", logx.String("table", t), logx.String("path", path))
	}
}
