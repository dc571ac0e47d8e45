package cli

import (
	"errors"
	"fmt"
	"slices"

	"github.com/spf13/cobra"

	"github.com/nace/automount/internal/automount"
)

// ToggleCommand enables or disables automount for partitions.
type ToggleCommand struct {
	ctx           *GlobalContext
	enable        bool
	passwordStdin bool
}

// NewEnableCommand creates the enable command
func NewEnableCommand(ctx *GlobalContext) *cobra.Command {
	cmd := &ToggleCommand{ctx: ctx, enable: true}

	cobraCmd := &cobra.Command{
		Use:   "enable <uuid>...",
		Short: "Mount partitions automatically at login",
		Long: `Enable automount for one or more partitions, given by UUID or
/dev/disk/by-uuid path. Partitions inside an unlocked LUKS container also get
a keyfile so the container unlocks at boot; the container passphrase is asked
for once.`,
		Args: cobra.MinimumNArgs(1),
		RunE: cmd.Run,
	}

	cobraCmd.Flags().BoolVar(&cmd.passwordStdin, "password-stdin", false, "Read container passphrase from stdin")

	return cobraCmd
}

// NewDisableCommand creates the disable command
func NewDisableCommand(ctx *GlobalContext) *cobra.Command {
	cmd := &ToggleCommand{ctx: ctx}

	return &cobra.Command{
		Use:   "disable <uuid>...",
		Short: "Stop mounting partitions automatically",
		Long: `Disable automount for one or more partitions. Auto-unlock of the
containing LUKS container is removed unless another enabled partition still
lives in it.`,
		Args: cobra.MinimumNArgs(1),
		RunE: cmd.Run,
	}
}

// Run executes the enable or disable command
func (c *ToggleCommand) Run(cmd *cobra.Command, args []string) error {
	if err := c.ctx.RequireAdmin(); err != nil {
		return err
	}

	if err := c.ctx.CheckDependencies(); err != nil {
		return err
	}

	partitions := make([]string, 0, len(args))
	for _, arg := range args {
		p, err := PartitionPath(arg)
		if err != nil {
			return err
		}
		if !slices.Contains(partitions, p) {
			partitions = append(partitions, p)
		}
	}

	return c.execute(cmd, partitions)
}

func (c *ToggleCommand) execute(cmd *cobra.Command, partitions []string) error {
	shell := automount.NewShell(c.ctx.Manager, &TerminalPrompter{Stdin: c.passwordStdin}, nil,
		c.ctx.Config.MinBusy, c.ctx.Config.Cooldown)

	c.ctx.Logger.Info("Applying changes, please wait...")

	failed := 0
	for _, p := range partitions {
		// One toggle at a time so passphrase prompts do not overlap.
		if !shell.Submit(cmd.Context(), automount.Request{Partition: p, Enable: c.enable}) {
			c.ctx.Logger.Warning("%s is busy, skipping", p)
			failed++
			continue
		}

		if !c.report(<-shell.Results()) {
			failed++
		}
	}

	shell.Wait()

	if failed > 0 {
		return fmt.Errorf("%d of %d changes could not be applied", failed, len(partitions))
	}

	return nil
}

// report prints a toggle result and reports whether it succeeded.
func (c *ToggleCommand) report(res automount.Result) bool {
	log := c.ctx.Logger

	switch res.Outcome {
	case automount.OutcomeEnabled:
		log.Success("%s", res.Message)
		log.Debug("Unit %s is %s", c.ctx.Units.Service(res.Instance), res.ActiveState)
		if res.Mountpoint != "" {
			log.Info("Mounted at %s", res.Mountpoint)
		} else {
			log.Warning("%s is not mounted yet; it will be mounted at next login", res.Partition)
		}
	case automount.OutcomeDisabled, automount.OutcomeKeyKept:
		if res.Err != nil {
			log.Warning("%s", res.Message)
		} else {
			log.Success("%s", res.Message)
		}
	case automount.OutcomeCancelled:
		log.Warning("%s", res.Message)
	default:
		log.Error("%s", res.Message)
	}

	if res.Err != nil && !errors.Is(res.Err, automount.ErrPromptCancelled) {
		log.Debug("%s: %v", res.Partition, res.Err)
	}

	switch res.Outcome {
	case automount.OutcomeEnabled, automount.OutcomeDisabled, automount.OutcomeKeyKept:
		return true
	default:
		return false
	}
}
