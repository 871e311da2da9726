package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/voicewire/voicerelay/internal/dotenv"
	"github.com/voicewire/voicerelay/pkg/gateway/config"
	gatewayserver "github.com/voicewire/voicerelay/pkg/gateway/server"
)

const drainingNotice = "The server is shutting down. Your session will end shortly."

type relayDeps struct {
	loadConfig   func() (config.Config, error)
	newServer    func(context.Context, config.Config, *slog.Logger) (*gatewayserver.Server, error)
	signalNotify func(chan<- os.Signal, ...os.Signal)
	signalStop   func(chan<- os.Signal)
}

func defaultRelayDeps() relayDeps {
	return relayDeps{
		loadConfig: config.LoadFromEnv,
		newServer:  gatewayserver.New,
		signalNotify: func(c chan<- os.Signal, sig ...os.Signal) {
			signal.Notify(c, sig...)
		},
		signalStop: signal.Stop,
	}
}

func buildLogger(cfg config.Config, w io.Writer) *slog.Logger {
	var level slog.Level
	switch cfg.LogLevel {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}
	opts := &slog.HandlerOptions{Level: level}
	if cfg.LogFormat == "json" {
		return slog.New(slog.NewJSONHandler(w, opts))
	}
	return slog.New(slog.NewTextHandler(w, opts))
}

func buildHTTPServer(cfg config.Config, handler http.Handler) *http.Server {
	return &http.Server{
		Addr:              cfg.Addr,
		Handler:           handler,
		ReadHeaderTimeout: cfg.ReadHeaderTimeout,
	}
}

func runRelay(ctx context.Context, stderr io.Writer, deps relayDeps) error {
	if deps.loadConfig == nil {
		return errors.New("missing loadConfig dependency")
	}
	if deps.newServer == nil {
		return errors.New("missing newServer dependency")
	}
	if deps.signalNotify == nil || deps.signalStop == nil {
		return errors.New("missing signal dependency")
	}

	cfg, err := deps.loadConfig()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	logger := buildLogger(cfg, stderr)

	srv, err := deps.newServer(ctx, cfg, logger)
	if err != nil {
		return fmt.Errorf("build server: %w", err)
	}
	defer srv.Close()

	httpSrv := buildHTTPServer(cfg, srv.Handler())

	logger.Info("starting relay", "addr", cfg.Addr, "stt_backend", cfg.STTBackend)

	listenErrCh := make(chan error, 1)
	go func() {
		err := httpSrv.ListenAndServe()
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			listenErrCh <- err
			return
		}
		listenErrCh <- nil
	}()

	sigCh := make(chan os.Signal, 1)
	deps.signalNotify(sigCh, os.Interrupt, syscall.SIGTERM)
	defer deps.signalStop(sigCh)

	select {
	case err := <-listenErrCh:
		if err != nil {
			return fmt.Errorf("serve: %w", err)
		}
		return nil
	case <-ctx.Done():
		return ctx.Err()
	case sig := <-sigCh:
		logger.Info("shutdown signal received", "signal", sig.String())
	}

	srv.SetDraining(true)
	if n := srv.WarnLiveSessions(drainingNotice); n > 0 {
		logger.Info("warned live sessions", "count", n)
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.ShutdownGracePeriod)
	defer shutdownCancel()
	if err := httpSrv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown http server: %w", err)
	}

	waitCtx, waitCancel := context.WithTimeout(context.Background(), cfg.ShutdownGracePeriod)
	defer waitCancel()
	if !srv.WaitLiveSessions(waitCtx) {
		canceled := srv.CancelLiveSessions()
		logger.Warn("canceled live sessions after grace period", "count", canceled)
	}

	if err := <-listenErrCh; err != nil {
		return fmt.Errorf("serve: %w", err)
	}

	logger.Info("relay stopped")
	return nil
}

func runMain(ctx context.Context, stderr io.Writer, deps relayDeps) int {
	if stderr == nil {
		stderr = os.Stderr
	}

	if err := dotenv.LoadFile(".env"); err != nil {
		fmt.Fprintf(stderr, "voicerelay: %v\n", err)
		return 1
	}

	if err := runRelay(ctx, stderr, deps); err != nil {
		fmt.Fprintf(stderr, "voicerelay: %v\n", err)
		return 1
	}
	return 0
}

func main() {
	os.Exit(runMain(context.Background(), os.Stderr, defaultRelayDeps()))
}
