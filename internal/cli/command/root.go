package command

import (
	"time"

	"github.com/urfave/cli/v2"

	"github.com/yndnr/roomrelay/internal/cli/connection"
	"github.com/yndnr/roomrelay/internal/cli/output"
	"github.com/yndnr/roomrelay/internal/infra/buildinfo"
	"github.com/yndnr/roomrelay/internal/infra/tlsroots"
)

// App creates the CLI application.
func App() *cli.App {
	return &cli.App{
		Name:    "roomrelay",
		Usage:   "Fleet-wide room messaging over websockets",
		Version: buildinfo.String(),
		Flags:   globalFlags(),
		Commands: []*cli.Command{
			ServeCommand(),
			PublishCommand(),
			RoomCommand(),
			HealthCommand(),
			ConfigCommand(),
			VersionCommand(),
		},
	}
}

// globalFlags returns the global CLI flags.
func globalFlags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:    "server",
			Aliases: []string{"s"},
			Usage:   "roomrelay server address (e.g., localhost:8080)",
			EnvVars: []string{"ROOMRELAY_SERVER"},
			Value:   "localhost:8080",
		},
		&cli.StringFlag{
			Name:    "ca-file",
			Usage:   "PEM bundle trusted in addition to the system roots for https servers",
			EnvVars: []string{"ROOMRELAY_CA_FILE"},
		},
		&cli.DurationFlag{
			Name:  "timeout",
			Usage: "Request timeout",
			Value: connection.DefaultTimeout,
		},
		&cli.StringFlag{
			Name:    "output",
			Aliases: []string{"o"},
			Usage:   "Output format: table, json, yaml",
			Value:   string(output.FormatTable),
		},
	}
}

// GlobalFlags defines flags available to all commands.
type GlobalFlags struct {
	Server  string
	CAFile  string
	Timeout time.Duration
	Output  string
}

// ParseGlobalFlags extracts global flags from context.
func ParseGlobalFlags(c *cli.Context) *GlobalFlags {
	return &GlobalFlags{
		Server:  c.String("server"),
		CAFile:  c.String("ca-file"),
		Timeout: c.Duration("timeout"),
		Output:  c.String("output"),
	}
}

// newClient builds the API client from the global flags.
func newClient(c *cli.Context) (*connection.HTTPClient, error) {
	flags := ParseGlobalFlags(c)
	opts := []connection.Option{connection.WithTimeout(flags.Timeout)}

	if flags.CAFile != "" {
		tlsCfg, err := tlsroots.ClientTLS(flags.CAFile, "")
		if err != nil {
			return nil, err
		}
		opts = append(opts, connection.WithTLSConfig(tlsCfg))
	}

	return connection.NewHTTPClient(flags.Server, opts...), nil
}

// render writes data in the format chosen by --output.
func render(c *cli.Context, data any) error {
	format, err := output.ParseFormat(ParseGlobalFlags(c).Output)
	if err != nil {
		return err
	}
	return output.NewFormatter(format).Format(c.App.Writer, data)
}
