package ui

import (
	"bufio"
	"fmt"
	"os"
	"strings"

	"golang.org/x/term"

	"github.com/nace/automount/internal/system"
)

// stdin is shared by every line-oriented read so that input buffered for
// one prompt is still there for the next.
var stdin = bufio.NewReader(os.Stdin)

// PromptString prompts for a string input
func PromptString(prompt string) string {
	fmt.Fprintf(os.Stderr, "%s: ", prompt)
	input, _ := stdin.ReadString('\n')
	return strings.TrimSpace(input)
}

// PromptPassword prompts for a password without echoing. An empty answer is
// returned as an empty SecureBytes; callers treat it as a cancelled prompt.
func PromptPassword(prompt string) (*system.SecureBytes, error) {
	fmt.Fprintf(os.Stderr, "%s: ", prompt)
	password, err := term.ReadPassword(int(os.Stdin.Fd()))
	fmt.Fprintln(os.Stderr) // New line after password input
	if err != nil {
		return nil, err
	}
	return system.NewSecureBytes(password), nil
}

// ReadPasswordLine reads the next passphrase line from stdin (for
// automation). Each call consumes exactly one line.
func ReadPasswordLine() (*system.SecureBytes, error) {
	line, err := stdin.ReadBytes('\n')
	if err != nil && len(line) == 0 {
		return nil, fmt.Errorf("failed to read passphrase from stdin: %w", err)
	}

	n := len(line)
	for n > 0 && (line[n-1] == '\n' || line[n-1] == '\r') {
		n--
	}

	secret := append([]byte(nil), line[:n]...)
	clear(line)

	return system.NewSecureBytes(secret), nil
}

// PromptConfirm prompts for yes/no confirmation
func PromptConfirm(prompt string) bool {
	input := strings.ToLower(PromptString(prompt + " [y/N]"))
	return input == "y" || input == "yes"
}
