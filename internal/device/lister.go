package device

import (
	"bufio"
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/nace/automount/internal/system"
)

// lsblkColumns is the column set requested from lsblk.
const lsblkColumns = "NAME,TYPE,PKNAME,UUID,FSTYPE,SIZE,MODEL,MOUNTPOINT"

// Lister enumerates block devices.
type Lister interface {
	List(ctx context.Context) ([]Row, error)
}

// LsblkLister reads block devices from `lsblk -b -P`.
type LsblkLister struct {
	runner system.Runner
}

// NewLsblkLister creates a lister backed by lsblk.
func NewLsblkLister(runner system.Runner) *LsblkLister {
	return &LsblkLister{runner: runner}
}

// List runs lsblk and parses every row.
func (l *LsblkLister) List(ctx context.Context) ([]Row, error) {
	output, err := l.runner.RunOutput(ctx, "lsblk", "-b", "-P", "-o", lsblkColumns)
	if err != nil {
		return nil, fmt.Errorf("failed to list block devices: %w", err)
	}

	return ParseLsblk(output)
}

// ParseLsblk parses `lsblk -P` output into rows.
func ParseLsblk(output string) ([]Row, error) {
	var rows []Row

	scanner := bufio.NewScanner(strings.NewReader(output))
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}

		fields, err := system.ParseKeyValueRow(line)
		if err != nil {
			return nil, err
		}

		row := Row{
			Name:       fields["NAME"],
			Type:       fields["TYPE"],
			PKName:     fields["PKNAME"],
			UUID:       fields["UUID"],
			FSType:     fields["FSTYPE"],
			Model:      strings.TrimSpace(fields["MODEL"]),
			Mountpoint: fields["MOUNTPOINT"],
		}

		if size := fields["SIZE"]; size != "" {
			// Bad sizes are tolerated; the row is still usable.
			row.Size, _ = strconv.ParseUint(size, 10, 64)
		}

		rows = append(rows, row)
	}

	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("failed to read lsblk output: %w", err)
	}

	return rows, nil
}
