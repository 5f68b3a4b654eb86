package cli

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"
)

func OptionalStringFlag(cmd *cobra.Command, name string) (string, error) {
	if cmd == nil || cmd.Flags().Lookup(name) == nil {
		return "", nil
	}
	value, err := cmd.Flags().GetString(name)
	if err != nil {
		return "", fmt.Errorf("failed to read --%s flag: %w", name, err)
	}
	return strings.TrimSpace(value), nil
}

func OptionalBoolFlag(cmd *cobra.Command, name string) (bool, error) {
	if cmd == nil || cmd.Flags().Lookup(name) == nil {
		return false, nil
	}
	value, err := cmd.Flags().GetBool(name)
	if err != nil {
		return false, fmt.Errorf("failed to read --%s flag: %w", name, err)
	}
	return value, nil
}

func ParseWorkers(cmd *cobra.Command, fallback int) (int, error) {
	if cmd.Flags().Lookup("workers") == nil {
		return fallback, nil
	}
	workers, err := cmd.Flags().GetInt("workers")
	if err != nil {
		return 0, fmt.Errorf("failed to read --workers flag: %w", err)
	}
	if workers < 0 {
		return 0, fmt.Errorf("--workers must be >= 0, got %d", workers)
	}
	if workers == 0 {
		return fallback, nil
	}
	return workers, nil
}
