package system

import (
	"fmt"
	"os"
	"os/user"
	"slices"

	"golang.org/x/sys/unix"
)

// AdminGroup is the group whose members may change auto-mount settings.
const AdminGroup = "wheel"

// IsRoot checks if running as root
func IsRoot() bool {
	return unix.Geteuid() == 0
}

// RequireRoot ensures the program is running as root
func RequireRoot() error {
	if !IsRoot() {
		return fmt.Errorf("this command must be run as root (try with sudo)")
	}
	return nil
}

// TargetUser returns the account mounts are made for: the invoking user when
// running under sudo or pkexec, the current user otherwise.
func TargetUser() (*user.User, error) {
	for _, env := range []string{"SUDO_USER", "PKEXEC_UID"} {
		value := os.Getenv(env)
		if value == "" {
			continue
		}

		var (
			u   *user.User
			err error
		)
		if env == "PKEXEC_UID" {
			u, err = user.LookupId(value)
		} else {
			u, err = user.Lookup(value)
		}
		if err != nil {
			return nil, fmt.Errorf("failed to look up %s=%s: %w", env, value, err)
		}
		return u, nil
	}

	u, err := user.Current()
	if err != nil {
		return nil, fmt.Errorf("failed to determine current user: %w", err)
	}
	return u, nil
}

// RequireAdminGroup ensures the target user is a member of AdminGroup.
func RequireAdminGroup(u *user.User) error {
	if u.Uid == "0" {
		return nil
	}

	gids, err := u.GroupIds()
	if err != nil {
		return fmt.Errorf("failed to check group membership: %w", err)
	}

	group, err := user.LookupGroup(AdminGroup)
	if err != nil {
		return fmt.Errorf("failed to check group membership: %w", err)
	}

	if !slices.Contains(gids, group.Gid) {
		return fmt.Errorf("permission denied: %s must be in the '%s' group", u.Username, AdminGroup)
	}
	return nil
}
