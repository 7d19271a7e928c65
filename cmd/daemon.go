package cmd

import (
	"os"
	"os/signal"
	"syscall"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/solwatch/soltrail/pkg/engine"
)

//nolint:gochecknoglobals // Cobra commands are typically global
var daemonCmd = &cobra.Command{
	Use:   "daemon",
	Short: "Run the soltrail daemon",
	Long: `The daemon keeps tracked subjects in sync on a schedule, serves the
REST API, and exposes Prometheus metrics.`,
	RunE: runDaemon,
}

func init() {
	rootCmd.AddCommand(daemonCmd)
}

func runDaemon(cmd *cobra.Command, _ []string) error {
	// Silence usage on error
	cmd.SilenceUsage = true
	cmd.SilenceErrors = true

	config, err := loadConfigFromFile(cfgFile)
	if err != nil {
		return err
	}

	// Setup logger
	level, err := logrus.ParseLevel(config.Logging)
	if err != nil {
		return err
	}

	log := logrus.New()
	log.SetLevel(level)

	log.Info("Configuration loaded")

	app, err := engine.NewService(log, config)
	if err != nil {
		return err
	}

	if err := app.Start(); err != nil {
		return err
	}

	// Wait for interrupt signal
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	<-sigChan

	log.Info("Received shutdown signal")

	return app.Stop()
}
