package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/fleetops/fuelcore/internal/alertdispatch"
	"github.com/fleetops/fuelcore/internal/config"
	"github.com/fleetops/fuelcore/internal/persistence"
	"github.com/fleetops/fuelcore/internal/report"
)

var (
	flagDate   string
	flagSend   bool
	flagOutput string
	flagConfig string
)

var reportCmd = &cobra.Command{
	Use:   "report",
	Short: "Generate the fleet daily report",
	RunE: func(cmd *cobra.Command, args []string) error {
		return runReport()
	},
	SilenceUsage: true,
}

func init() {
	reportCmd.Flags().StringVar(&flagDate, "date", "", "report date (YYYY-MM-DD, default yesterday)")
	reportCmd.Flags().BoolVar(&flagSend, "send", false, "email the report to the configured recipients")
	reportCmd.Flags().StringVar(&flagOutput, "output", "data/reports", "directory for the JSON report file")
	reportCmd.Flags().StringVar(&flagConfig, "config", "fuelcore.yaml", "path to the YAML configuration file")
}

func main() {
	if err := reportCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func runReport() error {
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})

	day := time.Now().UTC().AddDate(0, 0, -1)
	if flagDate != "" {
		parsed, err := time.Parse("2006-01-02", flagDate)
		if err != nil {
			return fmt.Errorf("invalid --date %q: %w", flagDate, err)
		}
		day = parsed
	}

	cfg, err := config.Load(flagConfig)
	if err != nil {
		log.Warn().Err(err).Msg("config load failed, using defaults")
	}

	store, err := persistence.OpenStore(cfg.SQLitePath, cfg.StoreTimeout)
	if err != nil {
		return fmt.Errorf("open store: %w", err)
	}
	defer store.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 60*time.Second)
	defer cancel()

	summary, err := report.Generate(ctx, store, day)
	if err != nil {
		return fmt.Errorf("generate report: %w", err)
	}

	path, err := report.Save(summary, flagOutput)
	if err != nil {
		return fmt.Errorf("save report: %w", err)
	}
	log.Info().Str("path", path).Int("trucks", summary.TotalTrucks).Msg("daily report written")

	if flagSend {
		smtpCfg := alertdispatch.SMTPConfigFromEnv()
		if !smtpCfg.Configured() {
			return fmt.Errorf("--send requires SMTP_HOST, REPORT_FROM_EMAIL, and REPORT_TO_EMAILS")
		}
		sender := alertdispatch.NewSMTPSender(smtpCfg)
		subject := fmt.Sprintf("Fleet daily report %s", summary.Date)
		body := fmt.Sprintf("Fleet daily report for %s\n\nTrucks: %d (%d active)\nMiles: %.1f\nFuel: %.1f gal\nFleet MPG: %.2f\n\nFull report: %s\n",
			summary.Date, summary.TotalTrucks, summary.ActiveTrucks,
			summary.TotalMiles, summary.TotalFuelGal, summary.FleetMPG, path)
		if err := sender.SendEmail(ctx, subject, body); err != nil {
			return fmt.Errorf("send report: %w", err)
		}
		log.Info().Msg("daily report emailed")
	}

	return nil
}
