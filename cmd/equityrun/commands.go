package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/sawpanic/equityrun/internal/domain"
)

// signalContext cancels on SIGINT/SIGTERM.
func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
}

func newIngestCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "ingest",
		Short: "Run the realtime quote polling loop",
		Long:  "Polls the watchlist universe through the tiered provider chain and keeps the quote cache and Redis mirror current until interrupted.",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := loadApp(cmd)
			if err != nil {
				return err
			}
			defer a.close()

			ctx, stop := signalContext()
			defer stop()

			go func() {
				if err := a.monitor.Run(ctx); err != nil {
					log.Error().Err(err).Msg("monitor stopped")
				}
			}()

			log.Info().Msg("ingest loop starting")
			if err := a.ingester.Run(ctx); err != nil && ctx.Err() == nil {
				return err
			}
			return nil
		},
	}
}

func newScanCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "scan",
		Short: "Run one batch scoring pass now",
		Long:  "Refreshes quotes, screens the universe, scores all horizons, persists candidates and emits any due signals. Re-running on the same trading day never duplicates signals.",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := loadApp(cmd)
			if err != nil {
				return err
			}
			defer a.close()

			ctx, stop := signalContext()
			defer stop()

			if _, err := a.ingester.Poll(ctx); err != nil {
				log.Warn().Err(err).Msg("quote refresh failed, scoring cached state")
			}
			summary, err := a.pass.Run(ctx)
			if err != nil {
				return err
			}

			fmt.Printf("Pass %s (%s): universe=%d screened=%d scored=%d signals=%d\n",
				summary.PassID, summary.TradingDay, summary.Universe, summary.Screened,
				summary.Scored, len(summary.Signals))
			for _, h := range domain.Horizons() {
				for _, c := range summary.Candidates[h] {
					fmt.Printf("  %-5s #%d %-10s score=%.1f conf=%.2f %s\n",
						h, c.Rank, c.Symbol, c.Score, c.Confidence, c.Reason)
				}
			}
			for _, s := range summary.Signals {
				fmt.Printf("  SIGNAL %s %s score=%.1f price=%.2f\n", s.Type, s.Symbol, s.Score, s.Price)
			}
			return nil
		},
	}
}

func newScheduleCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "schedule",
		Short: "Run the full daemon: ingest loop, daily pass, monitor",
		Long:  "Keeps quotes flowing, triggers the scoring pass at the configured time after market close, and serves the monitor endpoint until interrupted.",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := loadApp(cmd)
			if err != nil {
				return err
			}
			defer a.close()

			ctx, stop := signalContext()
			defer stop()

			go func() {
				if err := a.monitor.Run(ctx); err != nil {
					log.Error().Err(err).Msg("monitor stopped")
				}
			}()
			go func() {
				if err := a.ingester.Run(ctx); err != nil && ctx.Err() == nil {
					log.Error().Err(err).Msg("ingest loop stopped")
				}
			}()

			a.scheduler.Start()
			<-ctx.Done()
			a.scheduler.Stop()
			return nil
		},
	}
}

func newDeepDiveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "deepdive <symbol>",
		Short: "Fetch the full detail view for one symbol",
		Long:  "Pulls quote, history, fundamentals, holders and recent announcements through the failover chain and prints the result as JSON with per-section source attribution.",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := loadApp(cmd)
			if err != nil {
				return err
			}
			defer a.close()

			ctx, stop := signalContext()
			defer stop()

			dd, err := a.diver.Dive(ctx, args[0])
			if err != nil {
				return err
			}
			enc := json.NewEncoder(os.Stdout)
			enc.SetIndent("", "  ")
			return enc.Encode(dd)
		},
	}
}

func newMonitorCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "monitor",
		Short: "Serve only the health/metrics/signals endpoint",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := loadApp(cmd)
			if err != nil {
				return err
			}
			defer a.close()

			ctx, stop := signalContext()
			defer stop()
			return a.monitor.Run(ctx)
		},
	}
}
