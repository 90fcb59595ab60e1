package tui

import (
	"context"
	"fmt"
	"strings"

	"sentinel-sim/internal/sim"
)

type verb string

const (
	verbReboot  verb = "reboot"
	verbEnable  verb = "enable"
	verbDisable verb = "disable"
	verbRestart verb = "restart"
	verbAck     verb = "ack"
)

// command is one parsed prompt line.
type command struct {
	verb   verb
	target string
}

func parseCommand(line string) (command, error) {
	fields := strings.Fields(line)
	if len(fields) != 2 {
		return command{}, fmt.Errorf("expected <verb> <id>, got %q", line)
	}
	c := command{verb: verb(strings.ToLower(fields[0])), target: fields[1]}
	switch c.verb {
	case verbReboot, verbEnable, verbDisable, verbRestart:
		if !sim.ValidID(c.target) {
			return command{}, fmt.Errorf("invalid id %q", c.target)
		}
	case verbAck:
	default:
		return command{}, fmt.Errorf("unknown command %q", fields[0])
	}
	return c, nil
}

func (c command) apply(ctx context.Context, ctrl Controller) error {
	if ctrl == nil {
		return fmt.Errorf("no controller")
	}
	switch c.verb {
	case verbReboot:
		return ctrl.RebootGateway(ctx, c.target)
	case verbAck:
		return ctrl.AckAlert(ctx, c.target)
	}
	action := map[verb]sim.NodeAction{
		verbEnable:  sim.ActionEnable,
		verbDisable: sim.ActionDisable,
		verbRestart: sim.ActionReboot,
	}[c.verb]
	n, err := ctrl.ControlNodes(ctx, sim.NodeControl{Action: action, NodeIDs: []string{c.target}})
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("node %s: %w", c.target, sim.ErrNotFound)
	}
	return nil
}
