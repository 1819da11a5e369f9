package command

import (
	"errors"
	"fmt"
	"io"

	"github.com/urfave/cli/v2"
)

// PublishCommand sends a message to a room.
func PublishCommand() *cli.Command {
	return &cli.Command{
		Name:      "publish",
		Aliases:   []string{"pub"},
		Usage:     "Publish a message to every member of a room",
		ArgsUsage: "ROOM [MESSAGE]",
		Description: "MESSAGE is sent unchanged. Without MESSAGE, or with \"-\", " +
			"the message is read from standard input.",
		Action: publishAction,
	}
}

// RoomCommand reports the fleet-wide membership of a room.
func RoomCommand() *cli.Command {
	return &cli.Command{
		Name:      "room",
		Usage:     "Show how many connections are in a room",
		ArgsUsage: "ROOM",
		Action:    roomAction,
	}
}

// HealthCommand probes a server.
func HealthCommand() *cli.Command {
	return &cli.Command{
		Name:  "health",
		Usage: "Check server liveness, or readiness with --ready",
		Flags: []cli.Flag{
			&cli.BoolFlag{
				Name:  "ready",
				Usage: "Also require the coordination store to answer",
			},
		},
		Action: healthAction,
	}
}

func publishAction(c *cli.Context) error {
	if c.NArg() < 1 || c.NArg() > 2 {
		return errors.New("usage: roomrelay publish ROOM [MESSAGE]")
	}
	room := c.Args().Get(0)

	var payload []byte
	if msg := c.Args().Get(1); msg != "" && msg != "-" {
		payload = []byte(msg)
	} else {
		data, err := io.ReadAll(c.App.Reader)
		if err != nil {
			return fmt.Errorf("read message: %w", err)
		}
		payload = data
	}

	client, err := newClient(c)
	if err != nil {
		return err
	}
	result, err := client.Publish(c.Context, room, payload)
	if err != nil {
		return err
	}
	return render(c, result)
}

func roomAction(c *cli.Context) error {
	if c.NArg() != 1 {
		return errors.New("usage: roomrelay room ROOM")
	}

	client, err := newClient(c)
	if err != nil {
		return err
	}
	result, err := client.Room(c.Context, c.Args().First())
	if err != nil {
		return err
	}
	return render(c, result)
}

// healthResult is the printed outcome of a probe.
type healthResult struct {
	Server string `json:"server"`
	Status string `json:"status"`
	Time   string `json:"time"`
}

func healthAction(c *cli.Context) error {
	client, err := newClient(c)
	if err != nil {
		return err
	}

	status, err := client.Health(c.Context, c.Bool("ready"))
	if err != nil {
		return fmt.Errorf("%s is unhealthy: %w", client.BaseURL(), err)
	}
	return render(c, healthResult{
		Server: client.BaseURL(),
		Status: status.Status,
		Time:   status.Time,
	})
}
