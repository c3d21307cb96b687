package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/unkn0wn-root/replog/cluster"
	rlog "github.com/unkn0wn-root/replog/internal/log"
)

func newMasterCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:     "master",
		Short:   "Accept client writes and replicate them to the secondaries",
		Example: "SECONDARY_HOSTS=secondary1,secondary2 SECRET=s3cret replog master",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(opts, nil)
			if err != nil {
				return err
			}
			logger, err := rlog.New(cfg.LogLevel)
			if err != nil {
				return err
			}
			defer func() { _ = logger.Sync() }()

			codec, err := cluster.CodecByName(cfg.Codec)
			if err != nil {
				return err
			}
			m, err := cluster.NewMaster(cfg, cluster.NewHTTPTransport(codec, nil), logger)
			if err != nil {
				return err
			}
			m.Start()
			defer m.Stop()

			return serve(cmd.Context(), cfg, m.Handler(), logger)
		},
	}
}

func newSecondaryCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:     "secondary",
		Short:   "Receive replicated writes from the master",
		Example: "HOST=secondary1 SECRET=s3cret SLEEP=2 replog secondary",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(opts, nil)
			if err != nil {
				return err
			}
			logger, err := rlog.New(cfg.LogLevel)
			if err != nil {
				return err
			}
			defer func() { _ = logger.Sync() }()

			s, err := cluster.NewSecondary(cfg, logger)
			if err != nil {
				return err
			}
			return serve(cmd.Context(), cfg, s.Handler(), logger)
		},
	}
}

func serve(parent context.Context, cfg cluster.Config, h http.Handler, logger *zap.Logger) error {
	if parent == nil {
		parent = context.Background()
	}
	ctx, stop := signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
	defer stop()

	err := cluster.Serve(ctx, cluster.ListenAddrs(cfg), h, logger)
	logger.Info("shutting down")
	return err
}
