package command

import (
	"fmt"

	"github.com/urfave/cli/v2"

	"github.com/yndnr/roomrelay/internal/infra/buildinfo"
	"github.com/yndnr/roomrelay/internal/server/config"
	"github.com/yndnr/roomrelay/internal/telemetry/logger"
)

// ServeCommand runs a relay process.
func ServeCommand() *cli.Command {
	return &cli.Command{
		Name:  "serve",
		Usage: "Run the relay server",
		Flags: []cli.Flag{
			configFlag(),
		},
		Action: serveAction,
	}
}

func configFlag() cli.Flag {
	return &cli.StringFlag{
		Name:    "config",
		Aliases: []string{"c"},
		Usage:   "Path to the YAML configuration file",
		EnvVars: []string{"ROOMRELAY_CONFIG"},
	}
}

// loadConfig loads and validates the server configuration.
func loadConfig(path string) (*config.ServerConfig, error) {
	cfg, err := config.Load(path)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	if err := config.Verify(cfg); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

func serveAction(c *cli.Context) error {
	path := c.String("config")
	cfg, err := loadConfig(path)
	if err != nil {
		return err
	}

	l, err := logger.New(config.ToLoggerConfig(cfg))
	if err != nil {
		return fmt.Errorf("init logger: %w", err)
	}
	logger.SetDefault(l)
	log := logger.Slog(l)

	sanitized := config.Sanitize(cfg)
	log.Info("starting roomrelay",
		"version", buildinfo.Version,
		"commit", buildinfo.Get().Commit,
		"http_addr", cfg.Server.HTTP.Addr,
		"coord_backend", cfg.Coord.Backend,
		"coord_url", sanitized.Coord.URL,
		"config_file", path,
	)

	srv, err := StartServer(c.Context, cfg, log)
	if err != nil {
		return err
	}
	if path != "" {
		srv.WatchConfig(path)
	}

	if err := srv.Wait(c.Context); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	log.Info("roomrelay stopped")
	return nil
}
