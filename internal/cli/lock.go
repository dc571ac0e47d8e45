package cli

import (
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/nace/automount/internal/device"
	"github.com/nace/automount/internal/ui"
)

// LockCommand closes an unlocked LUKS container.
type LockCommand struct {
	ctx   *GlobalContext
	force bool
}

// NewLockCommand creates the lock command
func NewLockCommand(ctx *GlobalContext) *cobra.Command {
	cmd := &LockCommand{ctx: ctx}

	cobraCmd := &cobra.Command{
		Use:   "lock <container-uuid>",
		Short: "Lock an encrypted container",
		Long: `Close the active mapping of a LUKS container. Partitions inside must be
unmounted first. Automount settings are left unchanged.`,
		Args: cobra.ExactArgs(1),
		RunE: cmd.Run,
	}

	cobraCmd.Flags().BoolVarP(&cmd.force, "force", "f", false, "Do not ask when partitions inside are enabled")

	return cobraCmd
}

// Run executes the lock command
func (c *LockCommand) Run(cmd *cobra.Command, args []string) error {
	if err := c.ctx.RequireAdmin(); err != nil {
		return err
	}

	if err := c.ctx.CheckDependencies(); err != nil {
		return err
	}

	path, err := PartitionPath(args[0])
	if err != nil {
		return err
	}

	return c.execute(cmd, strings.TrimPrefix(path, device.ByUUIDPrefix))
}

func (c *LockCommand) execute(cmd *cobra.Command, outerUUID string) error {
	ctx := cmd.Context()

	set, err := c.ctx.Store.Snapshot()
	if err != nil {
		c.ctx.Logger.Warning("Could not read %s: %v", c.ctx.Store.Path(), err)
	}

	for _, p := range c.ctx.Inventory.Scan(ctx).Partitions() {
		outer, ok := c.ctx.Inventory.ResolveOuter(ctx, p.UUID)
		if !ok || outer.UUID != outerUUID {
			continue
		}

		if p.Mounted() {
			return fmt.Errorf("%s is mounted at %s, unmount it first", p.DevicePath, p.Mountpoint)
		}

		if set.Contains(p.DevicePath) && !c.force {
			if !ui.PromptConfirm(fmt.Sprintf("%s has automount enabled. Lock anyway?", p.DevicePath)) {
				return errors.New("cancelled")
			}
		}
	}

	if err := c.ctx.Manager.Lock(ctx, outerUUID); err != nil {
		return fmt.Errorf("failed to lock %s: %w", outerUUID, err)
	}

	c.ctx.Logger.Success("Locked %s", outerUUID)

	return nil
}
