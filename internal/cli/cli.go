// Package cli wires the shortlisting pipeline into the shortlist-agent command.
package cli

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"

	"github.com/fmuoria/shortlist-agent/internal/api"
	"github.com/fmuoria/shortlist-agent/internal/capacity"
	"github.com/fmuoria/shortlist-agent/internal/config"
	"github.com/fmuoria/shortlist-agent/internal/export"
	"github.com/fmuoria/shortlist-agent/internal/logging"
	"github.com/fmuoria/shortlist-agent/internal/notify"
	"github.com/fmuoria/shortlist-agent/internal/pipeline"
)

const shutdownTimeout = 15 * time.Second

var configFile string

// Execute runs the root command
func Execute() error {
	return BuildCLI().Execute()
}

// BuildCLI assembles the command tree
func BuildCLI() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "shortlist-agent",
		Short: "Shortlist Agent: capacity-bounded candidate shortlisting",
		Long: `Shortlist Agent accepts applications up to a job's target, scores them
with Vertex AI, and shortlists, interviews and notifies candidates.`,
		Version:      "1.0.0",
		SilenceUsage: true,
	}

	rootCmd.PersistentFlags().StringVarP(&configFile, "config", "c", "", "config file path (JSON or YAML)")

	rootCmd.AddCommand(buildServeCommand())
	rootCmd.AddCommand(buildMigrateCommand())
	rootCmd.AddCommand(buildShortlistCommand())
	rootCmd.AddCommand(buildRetryCommand())
	rootCmd.AddCommand(buildExportCommand())
	rootCmd.AddCommand(buildGmailAuthCommand())
	rootCmd.AddCommand(buildConfigCommand())

	return rootCmd
}

func buildServeCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Start the HTTP API and the shortlisting workers",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			return runServer(ctx)
		},
	}
}

func runServer(ctx context.Context) error {
	c, err := openComponents(ctx, configFile, prometheus.DefaultRegisterer)
	if err != nil {
		return err
	}
	defer c.Close()

	resumeScorer, interviewScorer, err := c.newScorers(ctx)
	if err != nil {
		return err
	}
	limiter, err := c.newLimiter(ctx)
	if err != nil {
		return err
	}

	orchestrator := c.newOrchestrator()
	dispatcher := pipeline.NewDispatcher(orchestrator, c.cfg.QueueSize, c.metrics, c.logger)
	if err := dispatcher.Start(ctx, c.cfg.Workers); err != nil {
		return err
	}
	defer dispatcher.Stop()

	if queued, err := dispatcher.RecoverPending(ctx, c.store); err != nil {
		c.logger.Warn("failed to recover pending shortlisting runs", logging.Err(err))
	} else if queued > 0 {
		c.logger.Info("recovered pending shortlisting runs", slog.Int("count", queued))
	}

	guard := capacity.NewGuard(c.store, capacity.DefaultOptions(), c.logger)
	server := api.NewServer(api.Services{
		Host:         c.newHost(dispatcher),
		Intake:       pipeline.NewIntake(c.store, guard, resumeScorer, dispatcher, limiter, c.metrics, c.logger),
		Interviews:   pipeline.NewInterviews(c.store, interviewScorer, c.logger),
		Orchestrator: orchestrator,
		Retrier:      c.newRetrier(),
		Metrics:      c.metrics,
	}, c.logger)

	httpServer := &http.Server{
		Addr:              c.cfg.HTTPAddr,
		Handler:           server.Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		c.logger.Info("starting Shortlist Agent", slog.String("addr", c.cfg.HTTPAddr),
			slog.Int("workers", c.cfg.Workers))
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("server error: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	c.logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownTimeout)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("failed to shut down server: %w", err)
	}
	return nil
}

func buildMigrateCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Create or update the database schema",
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := openComponents(cmd.Context(), configFile, nil)
			if err != nil {
				return err
			}
			defer c.Close()
			fmt.Fprintf(cmd.OutOrStdout(), "Schema is up to date (%s)\n", c.cfg.DatabaseDriver)
			return nil
		},
	}
}

func buildShortlistCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "shortlist <job-id>",
		Short: "Run shortlisting for a closed job and wait for it to finish",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := openComponents(cmd.Context(), configFile, nil)
			if err != nil {
				return err
			}
			defer c.Close()

			outcome, err := c.newOrchestrator().Run(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), outcome.Summary())
			return nil
		},
	}
}

func buildRetryCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "retry-notifications",
		Short: "Resend candidate notices that failed to go out",
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := openComponents(cmd.Context(), configFile, nil)
			if err != nil {
				return err
			}
			defer c.Close()

			outcome, err := c.newRetrier().Sweep(cmd.Context())
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%d notices attempted, %d sent, %d failed\n",
				outcome.Attempted, outcome.Sent, outcome.Failed)
			return nil
		},
	}
}

func buildExportCommand() *cobra.Command {
	var output string

	cmd := &cobra.Command{
		Use:   "export <job-id>",
		Short: "Write the ranked shortlist for a job to an Excel workbook",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := openComponents(cmd.Context(), configFile, nil)
			if err != nil {
				return err
			}
			defer c.Close()

			host := c.newHost(nil)
			job, err := host.GetJob(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			apps, err := host.ListApplications(cmd.Context(), job.ID)
			if err != nil {
				return err
			}

			path := output
			if path == "" {
				path = "shortlist-" + job.ID + ".xlsx"
			}
			if err := export.ExportShortlist(job, apps, path); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Exported %d candidates to %s\n", len(apps), path)
			return nil
		},
	}

	cmd.Flags().StringVarP(&output, "output", "o", "", "output file (default shortlist-<job-id>.xlsx)")

	return cmd
}

func buildGmailAuthCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "gmail-auth",
		Short: "Authorize the Gmail account used to send candidate notices",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(configFile)
			if err != nil {
				return err
			}
			if cfg.GmailCredentialsPath == "" {
				return errors.New("gmail_credentials_path is not configured")
			}
			return notify.AuthorizeGmail(cmd.Context(), cfg.GmailCredentialsPath, cfg.GmailTokenPath,
				cmd.InOrStdin(), cmd.OutOrStdout())
		},
	}
}

func buildConfigCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Inspect or create the configuration file",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "init [path]",
		Short: "Write a config file with default values",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			path := configFile
			if len(args) == 1 {
				path = args[0]
			}
			if path == "" {
				var err error
				if path, err = config.GetConfigPath(); err != nil {
					return err
				}
			}
			if _, err := os.Stat(path); err == nil {
				return fmt.Errorf("config file %s already exists", path)
			}
			if err := config.DefaultConfig().SaveTo(path); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Wrote default config to %s\n", path)
			return nil
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "show",
		Short: "Print the effective configuration",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(configFile)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "database: %s\nhttp_addr: %s\nworkers: %d\nqueue_size: %d\n",
				cfg.DatabaseDriver, cfg.HTTPAddr, cfg.Workers, cfg.QueueSize)
			fmt.Fprintf(cmd.OutOrStdout(), "gmail: %t\ntelegram: %t\nredis: %t\nvertex_project: %s\n",
				cfg.GmailCredentialsPath != "", cfg.TelegramToken != "", cfg.RedisURL != "", cfg.GoogleCloudProject)
			return nil
		},
	})

	return cmd
}
