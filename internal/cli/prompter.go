package cli

import (
	"context"
	"fmt"

	"github.com/nace/automount/internal/automount"
	"github.com/nace/automount/internal/system"
)

// TerminalPrompter asks for container passphrases on the terminal, or reads
// them from stdin.
type TerminalPrompter struct {
	Stdin bool
}

// Passphrase implements automount.Prompter.
func (p *TerminalPrompter) Passphrase(ctx context.Context, outerUUID string) (*system.SecureBytes, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	passphrase, err := GetPassphrase(fmt.Sprintf("Passphrase for encrypted container %s", outerUUID), p.Stdin)
	if err != nil {
		return nil, err
	}

	if passphrase.Len() == 0 {
		return nil, automount.ErrPromptCancelled
	}

	return passphrase, nil
}
