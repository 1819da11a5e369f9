package command

import (
	"fmt"

	"github.com/urfave/cli/v2"

	"github.com/yndnr/roomrelay/internal/server/config"
)

// ConfigCommand returns the config subcommand group.
func ConfigCommand() *cli.Command {
	return &cli.Command{
		Name:  "config",
		Usage: "Server configuration tools",
		Subcommands: []*cli.Command{
			{
				Name:   "show",
				Usage:  "Print the effective configuration with secrets masked",
				Flags:  []cli.Flag{configFlag()},
				Action: configShow,
			},
			{
				Name:   "validate",
				Usage:  "Check the configuration file and environment",
				Flags:  []cli.Flag{configFlag()},
				Action: configValidate,
			},
			{
				Name:   "default",
				Usage:  "Print the built-in defaults (use -o yaml for a starter file)",
				Action: configDefault,
			},
		},
	}
}

func configShow(c *cli.Context) error {
	cfg, err := config.Load(c.String("config"))
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	if err := render(c, config.ToMap(config.Sanitize(cfg))); err != nil {
		return err
	}
	if err := config.Verify(cfg); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	return nil
}

func configValidate(c *cli.Context) error {
	if _, err := loadConfig(c.String("config")); err != nil {
		return err
	}
	fmt.Fprintln(c.App.Writer, "configuration is valid")
	return nil
}

func configDefault(c *cli.Context) error {
	return render(c, config.ToMap(config.Default()))
}
