package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"koru/internal/domain/ingest"
	"koru/internal/infrastructure/postgres"
)

const statusPollInterval = 2 * time.Second

// withDeps loads config and dependencies around fn.
func withDeps(ctx context.Context, fn func(*Dependencies) error) error {
	cfg, logger, err := loadBase()
	if err != nil {
		return err
	}
	deps, err := NewDependencies(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer deps.Close()
	return fn(deps)
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func newImportCommand() *cobra.Command {
	var wait bool

	cmd := &cobra.Command{
		Use:   "import <connection-id>",
		Short: "Import all accounts of a connection",
		Long: "Starts one import task per account of the connection and prints the job ID.\n" +
			"In local queue mode the tasks run in this process, so the command always waits.",
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withDeps(cmd.Context(), func(d *Dependencies) error {
				ctx := cmd.Context()
				local := d.LocalQueue()
				if local {
					d.Pool.Start()
				}

				jobID, err := d.Coordinator.ImportConnection(ctx, args[0])
				if err != nil {
					if local {
						d.Pool.Shutdown(ctx)
					}
					return err
				}
				fmt.Fprintf(cmd.ErrOrStderr(), "job %s started\n", jobID)

				if !wait && !local {
					return printJSON(cmd.OutOrStdout(), map[string]string{"jobId": jobID})
				}

				status, err := waitForJob(ctx, d.Coordinator, jobID)
				if local {
					d.Pool.Shutdown(ctx)
				}
				if err != nil {
					return err
				}
				if err := printJSON(cmd.OutOrStdout(), status); err != nil {
					return err
				}
				if status.Status == ingest.JobFailure {
					return fmt.Errorf("job %s finished with %d failed account(s)", jobID, status.FailedCount)
				}
				return nil
			})
		},
	}

	cmd.Flags().BoolVar(&wait, "wait", false, "wait until every account import has finished")
	return cmd
}

func waitForJob(ctx context.Context, c *ingest.Coordinator, jobID string) (*ingest.JobStatus, error) {
	ticker := time.NewTicker(statusPollInterval)
	defer ticker.Stop()

	for {
		status, err := c.GetStatus(ctx, jobID)
		if err != nil {
			return nil, err
		}
		if status.Ready {
			return status, nil
		}
		select {
		case <-ctx.Done():
			return status, ctx.Err()
		case <-ticker.C:
		}
	}
}

func newStatusCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "status <job-id>",
		Short: "Show the progress of an import job",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withDeps(cmd.Context(), func(d *Dependencies) error {
				status, err := d.Coordinator.GetStatus(cmd.Context(), args[0])
				if err != nil {
					return err
				}
				return printJSON(cmd.OutOrStdout(), status)
			})
		},
	}
}

func newMatchCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "match <account-id>",
		Short: "Link unprocessed transactions of an account to accounts and merchants",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withDeps(cmd.Context(), func(d *Dependencies) error {
				result, err := d.Matcher.Process(cmd.Context(), args[0])
				if result != nil {
					if printErr := printJSON(cmd.OutOrStdout(), result); printErr != nil && err == nil {
						err = printErr
					}
				}
				return err
			})
		},
	}
}

func newInstitutionsCommand() *cobra.Command {
	var country string

	cmd := &cobra.Command{
		Use:   "institutions",
		Short: "List institutions available through GoCardless",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withDeps(cmd.Context(), func(d *Dependencies) error {
				institutions, err := d.Client.ListInstitutions(cmd.Context(), country)
				if err != nil {
					return err
				}

				tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
				fmt.Fprintln(tw, "ID\tNAME\tBIC\tHISTORY DAYS")
				for _, inst := range institutions {
					fmt.Fprintf(tw, "%s\t%s\t%s\t%d\n", inst.ID, inst.Name, inst.BIC, int(inst.TransactionTotalDays))
				}
				return tw.Flush()
			})
		},
	}

	cmd.Flags().StringVar(&country, "country", "", "ISO 3166 country code filter, e.g. DE")
	return cmd
}

func newLinkCommand() *cobra.Command {
	linkCmd := &cobra.Command{
		Use:   "link",
		Short: "Connect a bank through the GoCardless consent flow",
	}

	linkCmd.AddCommand(&cobra.Command{
		Use:   "start <user-id> <institution-id>",
		Short: "Create a requisition and print the consent link",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withDeps(cmd.Context(), func(d *Dependencies) error {
				requisition, err := d.Links.StartLink(cmd.Context(), args[0], args[1])
				if err != nil {
					return err
				}
				return printJSON(cmd.OutOrStdout(), requisition)
			})
		},
	})

	linkCmd.AddCommand(&cobra.Command{
		Use:   "complete <ref>",
		Short: "Finish a link after the user returned from the bank",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withDeps(cmd.Context(), func(d *Dependencies) error {
				if d.LocalQueue() {
					d.Pool.Start()
					defer d.Pool.Shutdown(cmd.Context())
				}
				result, err := d.Links.CompleteLink(cmd.Context(), args[0])
				if err != nil {
					return err
				}
				return printJSON(cmd.OutOrStdout(), map[string]any{
					"connectionId": result.Connection.ID,
					"created":      result.Created,
					"jobId":        result.JobID,
				})
			})
		},
	})

	return linkCmd
}

func newMigrateCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Create tables and indexes if they do not exist",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, logger, err := loadBase()
			if err != nil {
				return err
			}
			defer func() { _ = logger.Sync() }()

			db, err := openDB(cfg, logger)
			if err != nil {
				return err
			}
			defer db.Close()

			if err := postgres.EnsureSchema(cmd.Context(), db); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "schema up to date")
			return nil
		},
	}
}
