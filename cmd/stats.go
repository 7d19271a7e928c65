package cmd

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

//nolint:gochecknoglobals // Cobra commands are typically global
var statsCmd = &cobra.Command{
	Use:   "stats <address>",
	Short: "Show cache statistics for an address",
	Args:  cobra.ExactArgs(1),
	RunE:  runStats,
}

func init() {
	rootCmd.AddCommand(statsCmd)
}

func runStats(cmd *cobra.Command, args []string) error {
	cmd.SilenceUsage = true

	address := args[0]
	ctx := cmd.Context()

	config, err := loadConfigFromFile(cfgFile)
	if err != nil {
		return err
	}

	st, err := openStore(ctx, logger, &config.Store)
	if err != nil {
		return err
	}
	defer closeStore(logger, st)

	stats, err := st.Stats(ctx, address)
	if err != nil {
		return err
	}

	cursor, err := st.GetCursor(ctx, address)
	if err != nil {
		return err
	}

	out := map[string]interface{}{
		"address": address,
		"cache":   stats,
	}

	if cursor != nil {
		out["cursor"] = cursor
	}

	encoder := json.NewEncoder(os.Stdout)
	encoder.SetIndent("", "  ")

	if err := encoder.Encode(out); err != nil {
		return fmt.Errorf("failed to write stats: %w", err)
	}

	return nil
}
