package main

import (
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"canditrack/internal/app/driver"
	"canditrack/internal/platform/config"
	"canditrack/internal/platform/logging"

	"github.com/spf13/cobra"
)

type driverFlags struct {
	gatewayURL  string
	apiKey      string
	interval    time.Duration
	concurrency int
	timeout     time.Duration
	logLevel    string
}

func newRootCommand() *cobra.Command {
	cfg := config.Load()
	flags := &driverFlags{
		gatewayURL:  cfg.QueueGatewayURL,
		apiKey:      cfg.QueueAPIKey,
		interval:    cfg.QueuePollInterval,
		concurrency: cfg.QueueConcurrency,
		logLevel:    cfg.LogLevel,
	}

	rootCmd := &cobra.Command{
		Use:           "queue-driver",
		Short:         "Drives the CandiTrack upload queue gateway",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return cmd.Help()
		},
	}

	pf := rootCmd.PersistentFlags()
	pf.StringVar(&flags.gatewayURL, "gateway-url", flags.gatewayURL, "Queue gateway endpoint")
	pf.StringVar(&flags.apiKey, "api-key", flags.apiKey, "Shared key sent as x-api-key")
	pf.DurationVar(&flags.timeout, "timeout", 0, "Per-request timeout (0 disables)")
	pf.StringVar(&flags.logLevel, "log-level", flags.logLevel, "Log level (debug, info, warn, error)")

	rootCmd.AddCommand(newRunCommand(flags, cfg.LogFormat))
	rootCmd.AddCommand(newOnceCommand(flags, cfg.LogFormat))
	return rootCmd
}

func (f *driverFlags) trigger() (*driver.HTTPTrigger, error) {
	if f.apiKey == "" {
		return nil, fmt.Errorf("an API key is required (--api-key or QUEUE_PROCESSOR_API_KEY)")
	}
	return driver.NewHTTPTrigger(f.gatewayURL, f.apiKey, &http.Client{Timeout: f.timeout}), nil
}

func newRunCommand(flags *driverFlags, logFormat string) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Call the gateway every interval until interrupted",
		RunE: func(cmd *cobra.Command, args []string) error {
			trigger, err := flags.trigger()
			if err != nil {
				return err
			}
			logger := logging.New(flags.logLevel, logFormat)

			ctx, cancel := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer cancel()

			logger.Info("queue driver starting",
				"gateway", flags.gatewayURL,
				"interval", flags.interval,
				"concurrency", flags.concurrency)
			driver.New(trigger,
				driver.WithInterval(flags.interval),
				driver.WithConcurrency(flags.concurrency),
				driver.WithLogger(logger),
			).Run(ctx)
			logger.Info("queue driver stopped")
			return nil
		},
	}
	cmd.Flags().DurationVar(&flags.interval, "interval", flags.interval, "Delay between ticks")
	cmd.Flags().IntVar(&flags.concurrency, "concurrency", flags.concurrency, "Gateway calls per tick")
	return cmd
}

func newOnceCommand(flags *driverFlags, logFormat string) *cobra.Command {
	return &cobra.Command{
		Use:   "once",
		Short: "Call the gateway a single time and print the outcome",
		RunE: func(cmd *cobra.Command, args []string) error {
			trigger, err := flags.trigger()
			if err != nil {
				return err
			}
			ctx, cancel := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer cancel()

			out, err := trigger.Trigger(ctx)
			if err != nil {
				return err
			}
			w := cmd.OutOrStdout()
			if out.NoJob {
				fmt.Fprintln(w, "No queued jobs")
				return nil
			}
			webhook := "-"
			if out.WebhookStatus != nil {
				webhook = fmt.Sprint(*out.WebhookStatus)
			}
			fmt.Fprintf(w, "job %s -> %s (webhook %s)\n", out.JobID, out.Status, webhook)
			return nil
		},
	}
}
