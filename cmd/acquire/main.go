// Command acquire runs one biosignal acquisition session until interrupted.
package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/banshee-data/biosignal/internal/acq"
	"github.com/banshee-data/biosignal/internal/config"
	"github.com/banshee-data/biosignal/internal/monitoring"
	"github.com/banshee-data/biosignal/internal/multicast"
	"github.com/banshee-data/biosignal/internal/version"
)

const shutdownTimeout = 5 * time.Second

// errWorkerExited means acquisition ended without a stop request, usually
// because the device or socket went away.
var errWorkerExited = errors.New("acquisition worker exited")

func main() {
	flags := newFlags(os.Args[0])
	if err := flags.parse(os.Args[1:]); err != nil {
		os.Exit(2)
	}
	if flags.version {
		fmt.Println(version.String("acquire"))
		return
	}

	logger := zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr}).With().Timestamp().Logger()
	cfg, err := flags.load()
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to load configuration")
	}
	level, err := monitoring.ParseLevel(cfg.GetLogLevel())
	if err != nil {
		logger.Fatal().Err(err).Msg("invalid log level")
	}
	logger = logger.Level(level)
	monitoring.SetLogger(&logger)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, logger); err != nil {
		logger.Fatal().Err(err).Msg("acquisition failed")
	}
}

// sessionOptions maps the config onto session options.
func sessionOptions(cfg *config.AcquireConfig, logger zerolog.Logger) []acq.Option {
	opts := []acq.Option{
		acq.WithLogger(logger),
		acq.WithScale(cfg.GetVref(), cfg.GetGain()),
		acq.WithReadTimeout(cfg.GetReadTimeout()),
	}
	switch {
	case cfg.GetReplayPcap() != "":
		opts = append(opts, acq.WithSocketFactory(multicast.NewReplayFactory(cfg.GetReplayPcap())))
	case cfg.GetInterface() != "":
		opts = append(opts, acq.WithSocketFactory(multicast.NewFactory(cfg.GetInterface())))
	}
	return opts
}

func run(ctx context.Context, cfg *config.AcquireConfig, logger zerolog.Logger) error {
	session, err := acq.NewSession(cfg.SessionParams(), sessionOptions(cfg, logger)...)
	if err != nil {
		return err
	}
	defer func() {
		if err := session.Release(); err != nil {
			logger.Warn().Err(err).Msg("failed to release session")
		}
	}()

	if err := session.Prepare(); err != nil {
		return err
	}
	if err := session.Start(cfg.GetBufferSize(), cfg.GetStreamer()); err != nil {
		return err
	}

	eg, ctx := errgroup.WithContext(ctx)

	done := session.Done()
	eg.Go(func() error {
		return watchWorker(ctx, done)
	})

	eg.Go(func() error {
		ticker := time.NewTicker(cfg.GetStatsInterval())
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return nil
			case <-ticker.C:
				session.LogStats()
				if c, ok := session.Sink().(interface{ Count() int }); ok {
					logger.Info().Int("buffered", c.Count()).Msg("ring buffer")
				}
			}
		}
	})

	if addr := cfg.GetDebugListen(); addr != "" {
		eg.Go(func() error {
			return serveDebug(ctx, addr, session, logger)
		})
	}

	err = eg.Wait()
	if stopErr := session.Stop(); stopErr != nil {
		logger.Warn().Err(stopErr).Msg("failed to stop session")
	}
	session.LogStats()
	return err
}

// watchWorker returns errWorkerExited if done closes before ctx ends.
func watchWorker(ctx context.Context, done <-chan struct{}) error {
	select {
	case <-ctx.Done():
		return nil
	case <-done:
		return errWorkerExited
	}
}

// serveDebug exposes the session on the tsweb debug page until ctx is done.
func serveDebug(ctx context.Context, addr string, session *acq.Session, logger zerolog.Logger) error {
	mux := http.NewServeMux()
	session.AttachAdminRoutes(mux)

	server := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info().Str("addr", addr).Msg("debug server listening")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- fmt.Errorf("debug server: %w", err)
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Warn().Err(err).Msg("debug server shutdown error")
	}
	return nil
}
