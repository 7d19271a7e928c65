package cmd

import (
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/solwatch/soltrail/pkg/fetcher"
	"github.com/solwatch/soltrail/pkg/observability"
	"github.com/solwatch/soltrail/pkg/solana"
)

//nolint:gochecknoglobals // Cobra flags are typically global
var (
	fetchLimit     int
	fetchForce     bool
	fetchEndpoints []string
)

//nolint:gochecknoglobals // Cobra commands are typically global
var fetchCmd = &cobra.Command{
	Use:   "fetch <address>",
	Short: "Sync transaction history for an address",
	Long: `Fetch lists transaction signatures newer than the cached frontier for
the given address, stores them, and fetches full transaction details for
every record still missing one.`,
	Args: cobra.ExactArgs(1),
	RunE: runFetch,
}

func init() {
	rootCmd.AddCommand(fetchCmd)
	fetchCmd.Flags().IntVar(&fetchLimit, "limit", 0, "maximum number of new signatures to list (0 = unbounded)")
	fetchCmd.Flags().BoolVar(&fetchForce, "force-refresh", false, "discard cached records and re-sync from scratch")
	fetchCmd.Flags().StringSliceVar(&fetchEndpoints, "endpoint", nil, "RPC endpoint URL (repeatable, overrides config)")
}

func runFetch(cmd *cobra.Command, args []string) error {
	cmd.SilenceUsage = true

	address := args[0]
	ctx := cmd.Context()

	config, err := loadConfigFromFile(cfgFile)
	if err != nil {
		return err
	}

	if len(fetchEndpoints) > 0 {
		config.Solana.Endpoints = fetchEndpoints
	}

	st, err := openStore(ctx, logger, &config.Store)
	if err != nil {
		return err
	}
	defer closeStore(logger, st)

	pool, err := solana.NewPool(logger, &config.Solana)
	if err != nil {
		return err
	}
	defer func() { _ = pool.Stop() }()

	fetcherService, err := fetcher.NewService(logger, &config.Fetcher, st, pool)
	if err != nil {
		return err
	}

	start := time.Now()

	result, err := fetcherService.FetchIncremental(ctx, address, fetcher.FetchOptions{
		Limit:        fetchLimit,
		ForceRefresh: fetchForce,
	})

	duration := time.Since(start)

	if err != nil {
		observability.RecordSyncRun("manual", "failed", duration.Seconds())

		return err
	}

	observability.RecordSyncRun("manual", "success", duration.Seconds())

	summary := map[string]interface{}{
		"address":        address,
		"new_signatures": result.NewSignatureCount,
		"fetched":        len(result.Details),
		"failed":         result.FailedIDs,
		"duration":       duration.String(),
	}

	encoder := json.NewEncoder(os.Stdout)
	encoder.SetIndent("", "  ")

	if err := encoder.Encode(summary); err != nil {
		return fmt.Errorf("failed to write summary: %w", err)
	}

	return nil
}
