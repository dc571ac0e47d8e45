package cli

import (
	"cmp"
	"fmt"
	"path/filepath"
	"slices"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/nace/automount/internal/device"
	"github.com/nace/automount/internal/enablement"
	"github.com/nace/automount/internal/ui"
)

// ListCommand shows partitions, their automount state and locked containers.
type ListCommand struct {
	ctx  *GlobalContext
	json bool
}

// PartitionView is one row of the partition table.
type PartitionView struct {
	device.Partition
	Enabled  bool   `json:"enabled"`
	Shortcut string `json:"shortcut,omitempty"`
}

// Listing is everything the list command shows.
type Listing struct {
	Partitions []PartitionView     `json:"partitions"`
	External   []PartitionView     `json:"external"`
	Locked     []device.LockedLuks `json:"locked"`
}

// NewListCommand creates the list command
func NewListCommand(ctx *GlobalContext) *cobra.Command {
	cmd := &ListCommand{ctx: ctx}

	cobraCmd := &cobra.Command{
		Use:   "list",
		Short: "List partitions and encrypted containers",
		Long: `List partitions that can be mounted automatically, whether automount is
enabled for each, mounts managed elsewhere and locked LUKS containers.`,
		RunE: cmd.Run,
	}

	cobraCmd.Flags().BoolVarP(&cmd.json, "json", "j", false, "JSON output")

	return cobraCmd
}

// Run executes the list command
func (c *ListCommand) Run(cmd *cobra.Command, args []string) error {
	if err := c.ctx.CheckDependencies(); err != nil {
		return err
	}

	set, err := c.ctx.Store.Snapshot()
	if err != nil {
		c.ctx.Logger.Warning("Could not read %s: %v", c.ctx.Store.Path(), err)
	}

	snap := c.ctx.Inventory.Scan(cmd.Context())
	listing := BuildListing(snap, set, filepath.Join(c.ctx.Owner.HomeDir, "Desktop"))

	if c.json {
		return ui.PrintJSON(listing)
	}

	c.printListing(listing)

	return nil
}

// BuildListing splits a scan into the rows shown to the user. Unmounted
// partitions and mounted enabled ones are listed together, enabled first and
// then by path; mounted partitions that are not enabled are external.
func BuildListing(snap device.Snapshot, set enablement.Set, desktopDir string) Listing {
	var listing Listing

	for _, p := range snap.Unmounted {
		listing.Partitions = append(listing.Partitions, PartitionView{
			Partition: p,
			Enabled:   set.Contains(p.DevicePath),
		})
	}

	for _, p := range snap.Mounted {
		view := PartitionView{
			Partition: p,
			Enabled:   set.Contains(p.DevicePath),
			Shortcut:  DesktopShortcutName(desktopDir, p.Mountpoint),
		}

		if view.Enabled {
			listing.Partitions = append(listing.Partitions, view)
		} else {
			listing.External = append(listing.External, view)
		}
	}

	slices.SortFunc(listing.Partitions, func(a, b PartitionView) int {
		if a.Enabled != b.Enabled {
			if a.Enabled {
				return -1
			}
			return 1
		}
		return cmp.Compare(a.DevicePath, b.DevicePath)
	})

	slices.SortFunc(listing.External, func(a, b PartitionView) int {
		return cmp.Compare(a.DevicePath, b.DevicePath)
	})

	listing.Locked = snap.Locked

	return listing
}

func (c *ListCommand) printListing(listing Listing) {
	if len(listing.Partitions) == 0 && len(listing.External) == 0 && len(listing.Locked) == 0 {
		fmt.Println("No partitions found")
		return
	}

	table := ui.NewTable("PARTITION", "FS", "SIZE", "MODEL", "AUTOMOUNT", "MOUNT POINT", "SHORTCUT")
	for _, p := range listing.Partitions {
		table.AddRow(p.DevicePath, p.FSType, formatSize(p.SizeBytes), p.Model, yesNo(p.Enabled), dash(p.Mountpoint), dash(p.Shortcut))
	}
	table.Print()

	if len(listing.External) > 0 {
		fmt.Println()
		fmt.Println("Mounted outside automount:")

		external := ui.NewTable("PARTITION", "FS", "SIZE", "MODEL", "MOUNT POINT", "SHORTCUT")
		for _, p := range listing.External {
			external.AddRow(p.DevicePath, p.FSType, formatSize(p.SizeBytes), p.Model, p.Mountpoint, dash(p.Shortcut))
		}
		external.Print()
	}

	if len(listing.Locked) > 0 {
		fmt.Println()
		fmt.Println("Locked encrypted containers:")

		locked := ui.NewTable("CONTAINER", "SIZE", "MODEL")
		for _, l := range listing.Locked {
			locked.AddRow(l.OuterDevicePath, formatSize(l.SizeBytes), l.Model)
		}
		locked.Print()
	}
}

func formatSize(bytes uint64) string {
	if bytes == 0 {
		return "-"
	}
	return humanize.IBytes(bytes)
}

func yesNo(b bool) string {
	if b {
		return "yes"
	}
	return "no"
}

func dash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}
