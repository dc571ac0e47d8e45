package main

import (
	"context"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/nace/automount/internal/cli"
)

var (
	opts cli.Options

	ctx     = &cli.GlobalContext{}
	once    sync.Once
	initErr error
)

func main() {
	sigCtx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)

	err := rootCmd.ExecuteContext(sigCtx)

	stop()

	if ctx.Manager != nil {
		ctx.Close()
	}

	if err != nil {
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "automount",
	Short: "automount - partition auto-mount and LUKS auto-unlock manager",
	Long: `automount selects which partitions are mounted automatically at login.

Enabled partitions are recorded in enabled.conf and mounted by the
nobara-automount@ systemd helper. Partitions inside LUKS containers get a
keyfile and a crypttab entry so the container unlocks at boot.`,
	Version:      "0.1.0",
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		// Build the context once, after flags are parsed
		once.Do(func() {
			var built *cli.GlobalContext
			built, initErr = cli.NewGlobalContext(opts)
			if initErr == nil {
				*ctx = *built
			}
		})
		return initErr
	},
}

func init() {
	// Global flags
	rootCmd.PersistentFlags().BoolVarP(&opts.Verbose, "verbose", "v", false, "Verbose output")
	rootCmd.PersistentFlags().BoolVarP(&opts.Quiet, "quiet", "q", false, "Quiet mode (suppress non-error output)")
	rootCmd.PersistentFlags().BoolVar(&opts.NoColor, "no-color", false, "Disable color output")
	rootCmd.PersistentFlags().BoolVar(&opts.Debug, "debug", false, "Debug mode (show commands)")
	rootCmd.PersistentFlags().StringVarP(&opts.ConfigPath, "config", "c", "", "Configuration file")

	// Register commands
	rootCmd.AddCommand(cli.NewListCommand(ctx))
	rootCmd.AddCommand(cli.NewEnableCommand(ctx))
	rootCmd.AddCommand(cli.NewDisableCommand(ctx))
	rootCmd.AddCommand(cli.NewUnlockCommand(ctx))
	rootCmd.AddCommand(cli.NewLockCommand(ctx))

	rootCmd.SetHelpCommand(&cobra.Command{
		Use:    "no-help",
		Hidden: true,
	})

	rootCmd.CompletionOptions.DisableDefaultCmd = true
}
