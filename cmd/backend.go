package cmd

import (
	"context"
	"errors"
	"fmt"

	"github.com/kozaktomas/attendance-engine/internal/attendance"
	"github.com/kozaktomas/attendance-engine/internal/capture"
	"github.com/kozaktomas/attendance-engine/internal/config"
	"github.com/kozaktomas/attendance-engine/internal/database"
	"github.com/kozaktomas/attendance-engine/internal/database/mariadb"
	"github.com/kozaktomas/attendance-engine/internal/database/postgres"
	"github.com/kozaktomas/attendance-engine/internal/database/sqlite"
	"github.com/kozaktomas/attendance-engine/internal/engine"
	"github.com/kozaktomas/attendance-engine/internal/gateway"
	"github.com/kozaktomas/attendance-engine/internal/logger"
	"github.com/kozaktomas/attendance-engine/internal/matcher"
	"github.com/kozaktomas/attendance-engine/internal/metrics"
	"github.com/kozaktomas/attendance-engine/internal/recognition"
	"github.com/kozaktomas/attendance-engine/internal/recognizer"
)

// openBackend opens the configured storage driver, overlays the legacy
// candidate source when one is configured and registers the result.
func openBackend(ctx context.Context, cfg *config.Config) (*database.Backend, error) {
	log := logger.Named("cmd")

	var (
		b   *database.Backend
		err error
	)
	switch cfg.Database.Driver {
	case config.DriverSQLite:
		b, err = sqlite.Open(ctx, cfg.Database.SQLitePath)
		if err != nil {
			return nil, fmt.Errorf("failed to open SQLite database: %w", err)
		}
	default:
		if cfg.Database.URL == "" {
			return nil, errors.New("DATABASE_URL environment variable is required")
		}
		b, err = postgres.Open(ctx, &cfg.Database)
		if err != nil {
			return nil, fmt.Errorf("failed to initialize PostgreSQL: %w", err)
		}
	}

	if cfg.Database.LegacyDSN != "" {
		pool, err := mariadb.NewPool(ctx, cfg.Database.LegacyDSN)
		if err != nil {
			b.Close()
			return nil, fmt.Errorf("failed to connect to legacy enrollment database: %w", err)
		}
		mariadb.Attach(b, pool)
		log.Info(ctx, "reading candidates from legacy enrollment database")
	}

	database.RegisterBackend(b)
	log.Info(ctx, "storage backend ready", logger.String("driver", b.Name))
	return b, nil
}

// runtime is everything a command needs to identify and record attendance.
type runtime struct {
	cfg     *config.Config
	backend *database.Backend
	metrics *metrics.Manager
	gateway *gateway.Client // nil when no device is configured
	service *engine.Service
}

// newRuntime opens storage and assembles the engine from cfg.
func newRuntime(ctx context.Context, cfg *config.Config) (*runtime, error) {
	b, err := openBackend(ctx, cfg)
	if err != nil {
		return nil, err
	}

	m := metrics.NewManager()

	var primary recognizer.Adapter
	if cfg.Recognizer.Enabled {
		primary = recognizer.NewProcessRecognizer(cfg.Recognizer.Executable, cfg.Recognizer.Script, cfg.Recognizer.Timeout)
	}
	chain := recognizer.NewDefaultChain(primary, m)
	recorder := recognition.NewLogger(b.LogWriter, m)

	rt := &runtime{cfg: cfg, backend: b, metrics: m}

	deps := engine.Deps{
		Decoder:    capture.NewDecoder(cfg.Capture.TempDir, cfg.Capture.MaxBytes),
		Candidates: b.Candidates,
		Sessions:   b.Sessions,
		Attendance: b.Attendance,
		LogReader:  b.LogReader,
		Aggregator: matcher.NewAggregator(chain, recorder, &cfg.Matching, cfg.Capture.TemplatesRoot),
		Recorder:   recorder,
		Machine:    attendance.NewMachine(b.Attendance),
		Observer:   m,
	}
	if url := cfg.Gateway.BaseURL(); url != "" {
		rt.gateway = gateway.NewClient(url, cfg.Gateway.Timeout, m)
		deps.Gateway = rt.gateway
	}
	rt.service = engine.NewService(deps)
	return rt, nil
}

// Close releases storage.
func (r *runtime) Close() {
	if err := r.backend.Close(); err != nil {
		logger.Named("cmd").Warn(context.Background(), "failed to close storage", logger.Error(err))
	}
}

// requireGateway returns the device client or an error when none is configured.
func (r *runtime) requireGateway() (*gateway.Client, error) {
	if r.gateway == nil {
		return nil, errors.New("fingerprint gateway not configured: set gateway.host or ESP32_IP")
	}
	return r.gateway, nil
}
