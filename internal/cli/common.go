package cli

import (
	"errors"
	"fmt"
	"os/user"
	"strings"

	"go.uber.org/zap"

	"github.com/nace/automount/internal/automount"
	"github.com/nace/automount/internal/config"
	"github.com/nace/automount/internal/container"
	"github.com/nace/automount/internal/device"
	"github.com/nace/automount/internal/enablement"
	"github.com/nace/automount/internal/logging"
	"github.com/nace/automount/internal/mount"
	"github.com/nace/automount/internal/system"
	"github.com/nace/automount/internal/ui"
)

// Options are the global flags.
type Options struct {
	Verbose    bool
	Quiet      bool
	NoColor    bool
	Debug      bool
	ConfigPath string
}

// GlobalContext holds shared resources for all commands
type GlobalContext struct {
	Config    config.Config
	Log       *zap.Logger
	Executor  *system.Executor
	Logger    *ui.Logger
	Owner     *user.User
	Inventory *device.Inventory
	Store     *enablement.Store
	Units     *mount.UnitController
	Keys      *container.KeyManager
	Manager   *automount.Manager
}

// NewGlobalContext loads configuration and wires every component.
func NewGlobalContext(opts Options) (*GlobalContext, error) {
	logger := ui.NewLogger(opts.Verbose || opts.Debug, opts.Quiet, opts.NoColor)

	cfg, err := loadConfig(opts.ConfigPath)
	if err != nil {
		return nil, err
	}

	level := cfg.Log.Level
	if opts.Debug {
		level = "debug"
	}

	log, err := logging.New(logging.Options{
		Level:   level,
		File:    cfg.Log.File,
		Verbose: opts.Verbose || opts.Debug,
		Quiet:   opts.Quiet,
	})
	if err != nil {
		return nil, err
	}

	owner, err := system.TargetUser()
	if err != nil {
		return nil, err
	}

	executor := system.NewExecutor(log, opts.Debug)
	units := mount.NewUnitController(executor, cfg.UnitTemplate)
	luks := container.NewLUKSManager(executor)
	inventory := device.NewInventory(device.NewLsblkLister(executor), device.NewChainProber(executor, log), device.SystemMounts{}, log).
		WithHeaderCheck(luks)
	store := enablement.NewStore(cfg.EnabledFile)
	keys := container.NewKeyManager(luks, container.NewCrypttab(cfg.Crypttab), cfg.KeyDir, units, log)

	manager := automount.NewManager(automount.Dependencies{
		Inventory:   inventory,
		Synthesizer: mount.NewSynthesizer(mount.NewMounter(executor), cfg.MediaRoot, cfg.FilesystemsFile, log),
		EnvFiles:    mount.NewEnvWriter(cfg.EnvDir),
		Units:       units,
		Keys:        keys,
		Store:       store,
		Logger:      log,
	}, automount.Owner{Name: owner.Username, UID: owner.Uid, GID: owner.Gid}, cfg.MediaRoot, cfg.PassphraseTTL)

	return &GlobalContext{
		Config:    cfg,
		Log:       log,
		Executor:  executor,
		Logger:    logger,
		Owner:     owner,
		Inventory: inventory,
		Store:     store,
		Units:     units,
		Keys:      keys,
		Manager:   manager,
	}, nil
}

func loadConfig(path string) (config.Config, error) {
	if path != "" {
		return config.LoadFrom(path)
	}
	return config.Load()
}

// Close releases cached secrets and flushes logs.
func (ctx *GlobalContext) Close() {
	ctx.Manager.Close()
	_ = ctx.Log.Sync()
}

// CheckDependencies checks for required system commands
func (ctx *GlobalContext) CheckDependencies() error {
	deps := []string{
		"lsblk",
		"blkid",
		"cryptsetup",
		"systemctl",
		"mount",
	}
	return ctx.Executor.CheckDependencies(deps)
}

// RequireAdmin ensures the process may change system configuration: it runs
// as root and the target user is in the admin group.
func (ctx *GlobalContext) RequireAdmin() error {
	if err := system.RequireRoot(); err != nil {
		return err
	}

	return system.RequireAdminGroup(ctx.Owner)
}

// PartitionPath normalizes a UUID or by-uuid path argument.
func PartitionPath(arg string) (string, error) {
	switch {
	case arg == "":
		return "", errors.New("partition UUID is required")
	case strings.HasPrefix(arg, device.ByUUIDPrefix) && len(arg) > len(device.ByUUIDPrefix):
		return arg, nil
	case strings.Contains(arg, "/"):
		return "", fmt.Errorf("expected a UUID or %s<uuid>, got %s", device.ByUUIDPrefix, arg)
	default:
		return device.ByUUIDPath(arg), nil
	}
}

// GetPassphrase reads a passphrase from stdin or the terminal. The caller
// must Zeroize it.
func GetPassphrase(prompt string, fromStdin bool) (*system.SecureBytes, error) {
	var (
		passphrase *system.SecureBytes
		err        error
	)

	if fromStdin {
		passphrase, err = ui.ReadPasswordLine()
	} else {
		passphrase, err = ui.PromptPassword(prompt)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read passphrase: %w", err)
	}

	return passphrase, nil
}
