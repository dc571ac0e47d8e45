package mount

import (
	"context"
	"fmt"
	"strings"

	"github.com/nace/automount/internal/system"
)

// UnitController drives the templated mount helper service through systemctl.
type UnitController struct {
	runner   system.Runner
	template string
}

// NewUnitController creates a controller for services named
// <template><instance>.service.
func NewUnitController(runner system.Runner, template string) *UnitController {
	return &UnitController{runner: runner, template: template}
}

// Service returns the helper service name for instance.
func (u *UnitController) Service(instance string) string {
	return u.template + instance + ".service"
}

// Activate wires the helper to the mount unit, enables it and starts it.
func (u *UnitController) Activate(ctx context.Context, instance string) error {
	svc := u.Service(instance)

	steps := [][]string{
		{"add-wants", instance, svc},
		{"enable", svc},
		{"start", svc},
	}

	for _, args := range steps {
		if err := u.runner.Run(ctx, "systemctl", args...); err != nil {
			return fmt.Errorf("systemctl %s failed: %w", args[0], err)
		}
	}

	return nil
}

// Deactivate stops and disables the helper and removes the wants link. Every
// step is attempted; the first failure is returned.
func (u *UnitController) Deactivate(ctx context.Context, instance string) error {
	svc := u.Service(instance)

	steps := [][]string{
		{"stop", svc},
		{"disable", svc},
		{"remove-wants", instance, svc},
	}

	var first error
	for _, args := range steps {
		if err := u.runner.Run(ctx, "systemctl", args...); err != nil && first == nil {
			first = fmt.Errorf("systemctl %s failed: %w", args[0], err)
		}
	}

	return first
}

// ActiveState returns the ActiveState of the helper service, e.g. "active".
func (u *UnitController) ActiveState(ctx context.Context, instance string) string {
	out, err := u.runner.RunOutput(ctx, "systemctl", "show", "--property=ActiveState", "--value", u.Service(instance))
	if err != nil {
		return "unknown"
	}

	if state := strings.TrimSpace(out); state != "" {
		return state
	}
	return "unknown"
}

// DaemonReload asks systemd to reload unit files and generators.
func (u *UnitController) DaemonReload(ctx context.Context) error {
	if err := u.runner.Run(ctx, "systemctl", "daemon-reload"); err != nil {
		return fmt.Errorf("systemctl daemon-reload failed: %w", err)
	}
	return nil
}
