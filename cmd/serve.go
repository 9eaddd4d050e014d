package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/kozaktomas/attendance-engine/internal/config"
	"github.com/kozaktomas/attendance-engine/internal/logger"
	"github.com/kozaktomas/attendance-engine/internal/ratelimit"
	"github.com/kozaktomas/attendance-engine/internal/web"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the web server",
	Long: `Start the Attendance Engine HTTP API.
The API accepts face captures and fingerprint scan requests, records
check-ins and check-outs, and exposes recent activity, the recognition
log, the fingerprint device status and Prometheus metrics.`,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)

	serveCmd.Flags().Int("port", 0, "Port to listen on (overrides server.port)")
	serveCmd.Flags().String("host", "", "Host to bind to (overrides server.host)")
}

// resolveServeHostPort applies flag and WEB_* overrides to the server config.
func resolveServeHostPort(cmd *cobra.Command, cfg *config.Config) {
	if port := mustGetInt(cmd, "port"); port > 0 {
		cfg.Server.Port = port
	} else if envPort := os.Getenv("WEB_PORT"); envPort != "" {
		fmt.Sscanf(envPort, "%d", &cfg.Server.Port)
	}
	if host := mustGetString(cmd, "host"); host != "" {
		cfg.Server.Host = host
	} else if envHost := os.Getenv("WEB_HOST"); envHost != "" {
		cfg.Server.Host = envHost
	}
}

// newLimiter builds the identification rate limiter on the configured store.
// The returned sweeper is nil unless the in-memory store is used.
func newLimiter(ctx context.Context, cfg *config.Config) (*ratelimit.Limiter, *ratelimit.Sweeper, func(), error) {
	switch cfg.RateLimit.Backend {
	case "redis":
		if cfg.Redis.Addr == "" {
			return nil, nil, nil, errors.New("rate_limit.backend is redis but REDIS_URI is not set")
		}
		client, err := ratelimit.NewRedisClient(ctx, cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB)
		if err != nil {
			return nil, nil, nil, err
		}
		closer := func() { client.Close() }
		return ratelimit.New(ratelimit.NewRedisStore(client), cfg.RateLimit.Limit, cfg.RateLimit.Window), nil, closer, nil
	default:
		store := ratelimit.NewMemoryStore()
		sweeper := ratelimit.NewSweeper(store, cfg.RateLimit.SweepInterval)
		return ratelimit.New(store, cfg.RateLimit.Limit, cfg.RateLimit.Window), sweeper, func() {}, nil
	}
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	resolveServeHostPort(cmd, cfg)
	log := logger.Named("cmd")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	rt, err := newRuntime(ctx, cfg)
	if err != nil {
		return err
	}
	defer rt.Close()

	limiter, sweeper, closeLimiter, err := newLimiter(ctx, cfg)
	if err != nil {
		return err
	}
	defer closeLimiter()

	deps := web.Deps{
		Attendance: rt.service,
		Metrics:    rt.metrics,
		Limiter:    limiter,
	}
	if rt.gateway != nil {
		deps.Gateway = rt.gateway
	}
	server := web.NewServer(cfg, deps)

	g, gctx := errgroup.WithContext(ctx)

	if sweeper != nil {
		sweeper.Start(gctx)
		defer sweeper.Stop()
	}

	g.Go(func() error {
		log.Info(gctx, "press Ctrl+C to stop", logger.String("addr", server.Addr()))
		return server.Start()
	})

	g.Go(func() error {
		<-gctx.Done()
		log.Info(context.Background(), "shutting down")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()

		return server.Shutdown(shutdownCtx)
	})

	return g.Wait()
}
