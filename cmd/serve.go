package cmd

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/subcommands"

	"github.com/LovationAdmin/finance-api/routes"
	"github.com/LovationAdmin/finance-api/utils"
)

type serveCmd struct {
	port string
}

func (*serveCmd) Name() string     { return "serve" }
func (*serveCmd) Synopsis() string { return "run the HTTP API" }
func (*serveCmd) Usage() string {
	return `finance-api serve [-port <port>]

  Starts the HTTP API and the realtime websocket hub. Runs until SIGINT or
  SIGTERM, then drains in-flight requests.
`
}

func (s *serveCmd) SetFlags(f *flag.FlagSet) {
	f.StringVar(&s.port, "port", "", "Port to listen on. Overrides PORT.")
}

func (s *serveCmd) Execute(ctx context.Context, _ *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	e, err := bootstrap()
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return subcommands.ExitFailure
	}

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	st, err := e.openStore(ctx)
	if err != nil {
		e.log.Error().Err(err).Msg("store unavailable")
		return subcommands.ExitFailure
	}
	defer st.Close()

	enc, err := utils.NewAESEncryptor(e.cfg.DataEncryptionKey)
	if err != nil {
		e.log.Error().Err(err).Msg("invalid encryption key")
		return subcommands.ExitFailure
	}

	agg, err := e.aggregator()
	if err != nil {
		e.log.Error().Err(err).Msg("invalid aggregator configuration")
		return subcommands.ExitFailure
	}
	if agg == nil {
		e.log.Warn().Msg("PLUGGY_CLIENT_ID not set, sync endpoints are disabled")
	}

	srv := routes.NewRouter(ctx, routes.Deps{
		Config:     e.cfg,
		Store:      st,
		Encryptor:  enc,
		Aggregator: agg,
		Logger:     e.log,
	})
	defer srv.WS.Close()

	port := s.port
	if port == "" {
		port = e.cfg.Port
	}
	httpServer := &http.Server{
		Addr:              ":" + port,
		Handler:           srv.Engine,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		e.log.Info().Str("port", port).Str("env", e.cfg.Environment).Str("mode", utils.GetEnvMode()).Msg("server starting")
		errCh <- httpServer.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if !errors.Is(err, http.ErrServerClosed) {
			e.log.Error().Err(err).Msg("server failed")
			return subcommands.ExitFailure
		}
	case <-ctx.Done():
		e.log.Info().Msg("shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			e.log.Error().Err(err).Msg("graceful shutdown failed")
			return subcommands.ExitFailure
		}
	}
	return subcommands.ExitSuccess
}
