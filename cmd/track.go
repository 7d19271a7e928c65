package cmd

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/solwatch/soltrail/pkg/store"
)

//nolint:gochecknoglobals // Cobra flags are typically global
var trackLabel string

//nolint:gochecknoglobals // Cobra commands are typically global
var trackCmd = &cobra.Command{
	Use:   "track",
	Short: "Manage the tracked subject set",
	Long:  `Tracked subjects are synced automatically by the daemon on a schedule.`,
}

//nolint:gochecknoglobals // Cobra commands are typically global
var trackAddCmd = &cobra.Command{
	Use:   "add <address>",
	Short: "Add an address to the tracked set",
	Args:  cobra.ExactArgs(1),
	RunE:  runTrackAdd,
}

//nolint:gochecknoglobals // Cobra commands are typically global
var trackRemoveCmd = &cobra.Command{
	Use:   "remove <address>",
	Short: "Remove an address from the tracked set",
	Args:  cobra.ExactArgs(1),
	RunE:  runTrackRemove,
}

//nolint:gochecknoglobals // Cobra commands are typically global
var trackListCmd = &cobra.Command{
	Use:   "list",
	Short: "List tracked addresses",
	Args:  cobra.NoArgs,
	RunE:  runTrackList,
}

func init() {
	rootCmd.AddCommand(trackCmd)
	trackCmd.AddCommand(trackAddCmd, trackRemoveCmd, trackListCmd)
	trackAddCmd.Flags().StringVar(&trackLabel, "label", "", "human-readable label for the address")
}

func runTrackAdd(cmd *cobra.Command, args []string) error {
	cmd.SilenceUsage = true

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

	subject := store.TrackedSubject{
		Subject: args[0],
		Label:   trackLabel,
		AddedAt: time.Now().UTC(),
		Enabled: true,
	}

	if err := st.TrackSubject(ctx, subject); err != nil {
		return err
	}

	fmt.Printf("Tracking %s\n", args[0])

	return nil
}

func runTrackRemove(cmd *cobra.Command, args []string) error {
	cmd.SilenceUsage = true

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

	if err := st.UntrackSubject(ctx, args[0]); err != nil {
		return err
	}

	fmt.Printf("Stopped tracking %s\n", args[0])

	return nil
}

func runTrackList(cmd *cobra.Command, _ []string) error {
	cmd.SilenceUsage = true

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

	subjects, err := st.ListTrackedSubjects(ctx)
	if err != nil {
		return err
	}

	if len(subjects) == 0 {
		fmt.Println("No tracked subjects")

		return nil
	}

	for _, s := range subjects {
		line := s.Subject
		if s.Label != "" {
			line = fmt.Sprintf("%s (%s)", line, s.Label)
		}

		if !s.Enabled {
			line += " [disabled]"
		}

		fmt.Printf("%s  added %s\n", line, s.AddedAt.Format(time.RFC3339))
	}

	return nil
}
