package policy

import (
	"strings"

	clierr "github.com/gustavo/tradeguard/internal/errors"
)

// CheckCommandAllowed enforces the platform command allowlist. An empty
// allowlist permits everything.
func CheckCommandAllowed(allowlist []string, commandPath string) error {
	if len(allowlist) == 0 {
		return nil
	}
	normPath := normalizeCommand(commandPath)
	for _, allowed := range allowlist {
		if normalizeCommand(allowed) == normPath {
			return nil
		}
	}
	return clierr.New(clierr.CodeBlocked, "command blocked by platform controls")
}

func normalizeCommand(v string) string {
	parts := strings.Fields(strings.ToLower(strings.TrimSpace(v)))
	return strings.Join(parts, " ")
}
