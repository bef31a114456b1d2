package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/danielgtaylor/huma/v2"
	"github.com/danielgtaylor/huma/v2/adapters/humachi"
	_ "github.com/danielgtaylor/huma/v2/formats/cbor"
	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"go.uber.org/zap"

	"github.com/janisto/ci-pipeline-demo/internal/config"
	"github.com/janisto/ci-pipeline-demo/internal/http/routes"
	applog "github.com/janisto/ci-pipeline-demo/internal/platform/logging"
	"github.com/janisto/ci-pipeline-demo/internal/platform/metrics"
	appmiddleware "github.com/janisto/ci-pipeline-demo/internal/platform/middleware"
	"github.com/janisto/ci-pipeline-demo/internal/platform/respond"
)

// Version can be overridden at build time: -ldflags "-X main.Version=1.2.3"
var Version = "dev"

const docsPath = "/api-docs"

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	err := run(ctx)
	stop()
	if err != nil {
		applog.LogError(context.Background(), "server failed", err)
	}
	// Sync on stdout can fail with EINVAL.
	_ = applog.Sync()
	if err != nil {
		os.Exit(1)
	}
}

// run loads configuration, binds the listeners and serves until ctx is done.
func run(ctx context.Context) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	if err := applog.Configure(cfg.LogLevel, cfg.Debug); err != nil {
		return err
	}
	if err := applog.Err(); err != nil {
		return fmt.Errorf("logger init: %w", err)
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	router := newRouter(cfg, metrics.New(reg))

	ln, err := net.Listen("tcp", cfg.Addr())
	if err != nil {
		return fmt.Errorf("listen on %s: %w", cfg.Addr(), err)
	}

	var metricsLn net.Listener
	if cfg.MetricsAddr != "" {
		metricsLn, err = net.Listen("tcp", cfg.MetricsAddr)
		if err != nil {
			_ = ln.Close()
			return fmt.Errorf("listen on %s: %w", cfg.MetricsAddr, err)
		}
	}

	servers := []*boundServer{{name: "http", srv: newServer(router), ln: ln}}
	if metricsLn != nil {
		mux := http.NewServeMux()
		mux.Handle("/metrics", metrics.Handler(reg))
		servers = append(servers, &boundServer{name: "metrics", srv: newServer(mux), ln: metricsLn})
	}

	applog.LogInfo(ctx, "starting server",
		zap.String("version", Version),
		zap.Bool("debug", cfg.Debug),
		zap.Bool("apiDocs", cfg.APIDocs),
	)
	return serve(ctx, cfg.ShutdownTimeout, servers...)
}

// newRouter builds the chi router with the middleware stack and all routes registered.
func newRouter(cfg *config.Config, m *metrics.Metrics) chi.Router {
	router := chi.NewRouter()
	router.NotFound(respond.NotFoundHandler())
	router.MethodNotAllowed(respond.MethodNotAllowedHandler())

	router.Use(
		appmiddleware.Security(docsPath),
		appmiddleware.Vary(),
		appmiddleware.CORS(),
		appmiddleware.RequestID(),
		// RealIP trusts X-Real-IP and X-Forwarded-For. Only deploy behind a
		// load balancer that overwrites them.
		chimiddleware.RealIP,
		chimiddleware.RequestSize(1<<20), // 1 MB limit
		applog.RequestLogger(),
		applog.AccessLogger(),
		m.Middleware(),
		respond.Recoverer(),
		chimiddleware.GetHead,
	)

	api := humachi.New(router, apiConfig(cfg))
	routes.Register(api)
	return router
}

// apiConfig returns the huma configuration. Unless docs are enabled, no
// OpenAPI, docs or schema routes are mounted.
func apiConfig(cfg *config.Config) huma.Config {
	hc := huma.DefaultConfig("CI/CD Demo App", Version)
	if !cfg.APIDocs {
		hc.OpenAPIPath = ""
		hc.DocsPath = ""
		hc.SchemasPath = ""
		return hc
	}
	hc.DocsPath = docsPath
	return hc
}

func newServer(handler http.Handler) *http.Server {
	return &http.Server{
		Handler:           handler,
		ReadTimeout:       5 * time.Second,
		ReadHeaderTimeout: 2 * time.Second,
		WriteTimeout:      10 * time.Second,
		IdleTimeout:       60 * time.Second,
		MaxHeaderBytes:    64 << 10, // 64 KB
	}
}

type boundServer struct {
	name string
	srv  *http.Server
	ln   net.Listener
}

// serve runs every server on its listener until ctx is done or one of them
// fails, then shuts all of them down within timeout.
func serve(ctx context.Context, timeout time.Duration, servers ...*boundServer) error {
	serveErr := make(chan error, len(servers))
	for _, s := range servers {
		go func() {
			applog.LogInfo(ctx, "server listening", zap.String("server", s.name), zap.String("addr", s.ln.Addr().String()))
			if err := s.srv.Serve(s.ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
				serveErr <- fmt.Errorf("%s server: %w", s.name, err)
			}
		}()
	}

	var runErr error
	select {
	case runErr = <-serveErr:
	case <-ctx.Done():
		applog.LogInfo(context.Background(), "shutdown signal received")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	for _, s := range servers {
		if err := s.srv.Shutdown(shutdownCtx); err != nil {
			applog.LogError(shutdownCtx, "server shutdown error", err, zap.String("server", s.name))
			runErr = errors.Join(runErr, err)
		}
	}
	applog.LogInfo(context.Background(), "server exited")
	return runErr
}
