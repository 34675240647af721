package main

import (
	"context"
	"os/signal"
	"syscall"

	"github.com/gin-gonic/gin"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"ntropiq/internal/logger"
	"ntropiq/internal/server"
	"ntropiq/internal/version"
)

var serveAddr string

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve the chat, notebook, speech and session API over HTTP",
	Args:  cobra.NoArgs,
	RunE:  runServe,
}

func init() {
	serveCmd.Flags().StringVar(&serveAddr, "addr", "", "Listen address [default: server.addr]")
}

func runServe(cmd *cobra.Command, _ []string) error {
	a, err := openApp()
	if err != nil {
		return err
	}
	defer func() {
		if err := a.Close(); err != nil {
			logger.Error("Failed to close storage", "error", err)
		}
	}()

	addr := a.cfg.Server.Addr
	if serveAddr != "" {
		addr = serveAddr
	}
	if !testMode {
		gin.SetMode(gin.ReleaseMode)
	}

	srv := server.New(server.Config{
		Collaborators:  a.collab,
		Store:          a.store,
		RequestTimeout: a.cfg.LLM.Timeout,
		RateLimit:      a.cfg.Server.RateLimit,
		Burst:          a.cfg.Server.Burst,
	})

	ctx, stop := signal.NotifyContext(commandContext(cmd), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	logger.Info("Starting ntropiq server", "version", version.Version, "addr", addr,
		"services", a.registry.Names())
	group, gctx := errgroup.WithContext(ctx)
	group.Go(func() error {
		return srv.Run(gctx, addr)
	})
	group.Go(func() error {
		return a.store.RunGC(gctx, a.cfg.Storage.GCInterval)
	})
	err = group.Wait()
	logger.Info("Stopped ntropiq server")
	return err
}

// commandContext returns cmd's context, or Background when the command runs without one.
func commandContext(cmd *cobra.Command) context.Context {
	if ctx := cmd.Context(); ctx != nil {
		return ctx
	}
	return context.Background()
}
