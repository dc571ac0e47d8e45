package system

import (
	"bufio"
	"fmt"
	"strings"

	"github.com/google/shlex"
)

// ParseKeyValueRow splits a single `lsblk -P` row into its fields.
// Format: NAME="sda1" TYPE="part" MODEL="Samsung SSD 870"
func ParseKeyValueRow(line string) (map[string]string, error) {
	tokens, err := shlex.Split(line)
	if err != nil {
		return nil, fmt.Errorf("invalid key/value row %q: %w", line, err)
	}

	fields := make(map[string]string, len(tokens))
	for _, tok := range tokens {
		key, value, ok := strings.Cut(tok, "=")
		if !ok {
			continue
		}
		fields[key] = strings.Trim(value, `"`)
	}

	return fields, nil
}

// ParseExport parses KEY=value lines as printed by `blkid -o export` and
// `udevadm info --query=property`. Lines without '=' are skipped.
func ParseExport(output string) map[string]string {
	values := make(map[string]string)

	scanner := bufio.NewScanner(strings.NewReader(output))
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		key, value, ok := strings.Cut(line, "=")
		if !ok || key == "" {
			continue
		}
		values[key] = value
	}

	return values
}
