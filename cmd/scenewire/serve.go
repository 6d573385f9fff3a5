package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/scenewire/scenewire/internal/config"
	"github.com/scenewire/scenewire/pkg/scene"
	"github.com/scenewire/scenewire/pkg/server"
)

func serveCmd() *cobra.Command {
	var (
		configPath string
		addr       string
		opsAddr    string
		logLevel   string
		demo       bool
	)

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the scene server",
		Long: `Run the scene server on a plain TCP listener.

Configuration is read from scenewire.toml in the working directory
when present; flags override the file.

Examples:
  scenewire serve
  scenewire serve --addr=:8765 --ops-addr=:9090 --demo
  scenewire serve --config=/etc/scenewire.toml`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(configPath, addr, opsAddr, logLevel, demo)
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", "", "Path to scenewire.toml")
	cmd.Flags().StringVar(&addr, "addr", "", "Scene listener address (overrides config)")
	cmd.Flags().StringVar(&opsAddr, "ops-addr", "", "Operations listener address (overrides config)")
	cmd.Flags().StringVar(&logLevel, "log-level", "", "Log level: debug, info, warn, error")
	cmd.Flags().BoolVar(&demo, "demo", false, "Preload the built-in demo scene")

	return cmd
}

func runServe(configPath, addr, opsAddr, logLevel string, demo bool) error {
	var (
		cfg *config.Config
		err error
	)
	if configPath != "" {
		cfg, err = config.LoadFile(configPath)
	} else {
		wd, wdErr := os.Getwd()
		if wdErr != nil {
			return wdErr
		}
		cfg, err = config.Load(wd)
	}
	if err != nil {
		return err
	}

	if addr != "" {
		cfg.Addr = addr
	}
	if opsAddr != "" {
		cfg.OpsAddr = opsAddr
	}
	if logLevel != "" {
		cfg.LogLevel = logLevel
	}
	if demo {
		cfg.Demo = true
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	level, err := cfg.ParseLevel()
	if err != nil {
		return err
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
	slog.SetDefault(logger)

	graph := scene.NewGraph()
	if cfg.Demo {
		graph.Load(scene.DemoProject())
		for _, img := range scene.DemoImages() {
			graph.AddImage(img)
		}
		logger.Info("demo scene loaded",
			"meshes", graph.MeshCount(),
			"images", len(graph.Images()))
	}

	serverCfg := cfg.ServerConfig()
	serverCfg.Logger = logger
	srv := server.New(graph, serverCfg)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	return srv.Run(ctx)
}
