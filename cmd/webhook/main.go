package main

import (
	"context"
	"flag"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	_ "github.com/KimMachineGun/automemlimit"
	_ "go.uber.org/automaxprocs"

	"github.com/aslitaser/k8s-sentinel/internal/config"
	"github.com/aslitaser/k8s-sentinel/internal/engine"
	"github.com/aslitaser/k8s-sentinel/internal/errors"
	"github.com/aslitaser/k8s-sentinel/internal/health"
	"github.com/aslitaser/k8s-sentinel/internal/observability"
	"github.com/aslitaser/k8s-sentinel/internal/policy"
	"github.com/aslitaser/k8s-sentinel/internal/webhook"
)

// evaluationTimeout bounds a single admission request (spec §7). Well under
// the apiserver's default 10s admission timeout, leaving headroom for
// network latency between the apiserver and this webhook.
const evaluationTimeout = 5 * time.Second

const gracefulShutdownTimeout = 5 * time.Second

func main() {
	configPath := flag.String("config", "", "path to the sentinel YAML config file")
	flag.Parse()

	// 1. Load and compile config.
	cfg, err := config.Load(*configPath)
	if err != nil {
		slog.Error("failed to load configuration", "error", err)
		os.Exit(1)
	}
	policyCfg, err := cfg.ToPolicyConfig()
	if err != nil {
		slog.Error("invalid policy configuration", "error", err)
		os.Exit(1)
	}

	logger := newLogger(cfg.LogLevel)
	slog.SetDefault(logger)

	// 2. Context with signal handling.
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGTERM, syscall.SIGINT)
	go func() {
		sig := <-sigCh
		logger.Info("shutdown signal received", "signal", sig)
		cancel()
	}()

	logger.Info("k8s-sentinel starting",
		"listen_addr", cfg.ListenAddr,
		"metrics_addr", cfg.MetricsAddr,
	)

	// 3. Shared infrastructure.
	metrics := observability.NewMetrics()
	errCollector := errors.NewCollector(errors.RealClock{})
	eng := engine.New(policyCfg, metrics, errCollector, logger)
	reportPolicyGauges(metrics, policyCfg)

	// 4. Admission webhook HTTPS listener.
	handler := webhook.New(eng, metrics, errCollector, logger, evaluationTimeout)
	admissionSrv := &http.Server{
		Addr:         cfg.ListenAddr,
		Handler:      handler.Mux(),
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	ready := &readinessFlag{}
	go func() {
		var serveErr error
		if cfg.TLSCertPath != "" && cfg.TLSKeyPath != "" {
			ready.set(true)
			serveErr = admissionSrv.ListenAndServeTLS(cfg.TLSCertPath, cfg.TLSKeyPath)
		} else {
			logger.Warn("starting admission listener without TLS; only suitable for local testing")
			ready.set(true)
			serveErr = admissionSrv.ListenAndServe()
		}
		if serveErr != nil && serveErr != http.ErrServerClosed {
			logger.Error("admission server exited with error", "error", serveErr)
			cancel()
		}
	}()

	// 5. Health/metrics/debug listener.
	healthSrv := health.NewServer(metricsPort(cfg.MetricsAddr), metrics, ready, errCollector, false)
	if err := healthSrv.Start(); err != nil {
		logger.Error("failed to start health server", "error", err)
		os.Exit(1)
	}

	<-ctx.Done()

	// 6. Graceful shutdown.
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), gracefulShutdownTimeout)
	defer shutdownCancel()

	if err := admissionSrv.Shutdown(shutdownCtx); err != nil {
		logger.Error("admission server shutdown error", "error", err)
	}
	if err := healthSrv.Stop(shutdownCtx); err != nil {
		logger.Error("health server shutdown error", "error", err)
	}

	logger.Info("k8s-sentinel stopped")
}

// readinessFlag implements health.ReadinessChecker for a stateless webhook:
// ready as soon as the admission listener has been scheduled to start.
type readinessFlag struct {
	ready bool
}

func (r *readinessFlag) set(v bool)    { r.ready = v }
func (r *readinessFlag) IsReady() bool { return r.ready }

func newLogger(level string) *slog.Logger {
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(level)); err != nil {
		lvl = slog.LevelInfo
	}
	return slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: lvl}))
}

// reportPolicyGauges publishes each policy's enabled/mode state once at
// startup, so sentinel_policies_enabled reflects the running configuration
// without waiting for the first admission request.
func reportPolicyGauges(metrics *observability.Metrics, cfg *policy.Config) {
	for _, name := range policy.Order {
		enabled := 0.0
		if cfg.Enabled(name) {
			enabled = 1.0
		}
		metrics.PoliciesEnabled.WithLabelValues(string(name), string(cfg.PolicyMode(name))).Set(enabled)
	}
}

// metricsPort extracts the port health.NewServer needs from the configured
// metrics_addr (e.g. ":9090" or "0.0.0.0:9090"), falling back to 9090 when
// the address is malformed.
func metricsPort(addr string) int {
	_, portStr, err := net.SplitHostPort(addr)
	if err != nil {
		return 9090
	}
	port, err := strconv.Atoi(portStr)
	if err != nil {
		return 9090
	}
	return port
}
