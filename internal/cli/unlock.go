package cli

import (
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/nace/automount/internal/container"
	"github.com/nace/automount/internal/device"
)

// UnlockCommand opens a locked LUKS container so its partitions can be
// enabled.
type UnlockCommand struct {
	ctx           *GlobalContext
	passwordStdin bool
	enable        bool
}

// NewUnlockCommand creates the unlock command
func NewUnlockCommand(ctx *GlobalContext) *cobra.Command {
	cmd := &UnlockCommand{ctx: ctx}

	cobraCmd := &cobra.Command{
		Use:   "unlock <container-uuid>",
		Short: "Unlock an encrypted container",
		Long: `Open a locked LUKS container. The passphrase is kept in memory for
the rest of the command, so --enable can set up automount and auto-unlock
for the partitions inside without asking again.`,
		Args: cobra.ExactArgs(1),
		RunE: cmd.Run,
	}

	cobraCmd.Flags().BoolVar(&cmd.passwordStdin, "password-stdin", false, "Read passphrase from stdin")
	cobraCmd.Flags().BoolVar(&cmd.enable, "enable", false, "Enable automount for the partitions inside")

	return cobraCmd
}

// Run executes the unlock command
func (c *UnlockCommand) Run(cmd *cobra.Command, args []string) error {
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

func (c *UnlockCommand) execute(cmd *cobra.Command, outerUUID string) error {
	ctx := cmd.Context()

	if c.ctx.Inventory.OuterUnlocked(ctx, outerUUID) {
		c.ctx.Logger.Info("Container %s is already unlocked", outerUUID)
		return nil
	}

	passphrase, err := GetPassphrase(fmt.Sprintf("Passphrase for %s", outerUUID), c.passwordStdin)
	if err != nil {
		return err
	}
	defer passphrase.Zeroize()

	if passphrase.Len() == 0 {
		return errors.New("passphrase must not be empty")
	}

	c.ctx.Logger.Info("Unlocking %s...", outerUUID)

	if err := c.ctx.Manager.Unlock(ctx, outerUUID, passphrase); err != nil {
		if container.IsWrongPassphrase(err) {
			return fmt.Errorf("wrong passphrase for %s", outerUUID)
		}
		return fmt.Errorf("failed to unlock %s: %w", outerUUID, err)
	}

	c.ctx.Logger.Success("Unlocked %s", outerUUID)

	if c.ctx.Keys.HasAutoUnlock(outerUUID) {
		c.ctx.Logger.Debug("%s already unlocks at boot with %s", outerUUID, c.ctx.Keys.KeyfilePath(outerUUID))
	}

	var inner []string
	for _, p := range c.ctx.Inventory.Scan(ctx).Partitions() {
		if outer, ok := c.ctx.Inventory.ResolveOuter(ctx, p.UUID); ok && outer.UUID == outerUUID {
			c.ctx.Logger.Info("Contains %s (%s)", p.DevicePath, p.FSType)
			inner = append(inner, p.DevicePath)
		}
	}

	if !c.enable {
		return nil
	}

	if len(inner) == 0 {
		c.ctx.Logger.Warning("No mountable partitions found in %s", outerUUID)
		return nil
	}

	toggle := &ToggleCommand{ctx: c.ctx, enable: true, passwordStdin: c.passwordStdin}
	return toggle.execute(cmd, inner)
}
