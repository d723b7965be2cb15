package main

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/cobra"
	"github.com/target/mmk-analysis-api/internal/domain/model"
)

func newJobsCmd(cc *commandContext) *cobra.Command {
	jobs := &cobra.Command{
		Use:   "jobs",
		Short: "Inspect and retry analysis jobs",
	}
	jobs.AddCommand(newJobsListCmd(cc), newJobsStatsCmd(cc), newJobsRetryCmd(cc))
	return jobs
}

type jobsListOptions struct {
	Status string
	OrgID  string
	Limit  int
	Offset int
}

func (o jobsListOptions) toModel() (model.AnalysisJobListOptions, error) {
	opts := model.AnalysisJobListOptions{
		OrganizationID: strings.TrimSpace(o.OrgID),
		Limit:          o.Limit,
		Offset:         o.Offset,
	}
	if s := strings.ToLower(strings.TrimSpace(o.Status)); s != "" {
		status := model.AnalysisStatus(s)
		if !status.Valid() {
			return opts, fmt.Errorf("invalid --status %q (valid: pending, processing, completed, failed)", o.Status)
		}
		opts.Status = &status
	}
	if opts.Limit <= 0 || opts.Limit > 1000 {
		return opts, errors.New("--limit must be between 1 and 1000")
	}
	if opts.Offset < 0 {
		return opts, errors.New("--offset must not be negative")
	}
	return opts, nil
}

func newJobsListCmd(cc *commandContext) *cobra.Command {
	var o jobsListOptions
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List analysis jobs, newest first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			opts, err := o.toModel()
			if err != nil {
				return err
			}
			return cc.withServices(cmd.Context(), func(ctx context.Context, rt *runtime) error {
				jobs, err := rt.services.Analyses.List(ctx, opts)
				if err != nil {
					return err
				}
				return cc.render(cmd, jobs, func() { renderJobs(cmd.OutOrStdout(), jobs) })
			})
		},
	}
	cmd.Flags().StringVar(&o.Status, "status", "", "filter by status")
	cmd.Flags().StringVar(&o.OrgID, "org", "", "filter by organization id")
	cmd.Flags().IntVar(&o.Limit, "limit", 50, "maximum rows to return")
	cmd.Flags().IntVar(&o.Offset, "offset", 0, "rows to skip")
	return cmd
}

func newJobsStatsCmd(cc *commandContext) *cobra.Command {
	var orgID string
	cmd := &cobra.Command{
		Use:   "stats",
		Short: "Count jobs per status",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return cc.withServices(cmd.Context(), func(ctx context.Context, rt *runtime) error {
				stats, err := rt.services.Analyses.Stats(ctx, strings.TrimSpace(orgID))
				if err != nil {
					return err
				}
				return cc.render(cmd, stats, func() { renderStats(cmd.OutOrStdout(), stats) })
			})
		},
	}
	cmd.Flags().StringVar(&orgID, "org", "", "limit counts to one organization")
	return cmd
}

func newJobsRetryCmd(cc *commandContext) *cobra.Command {
	var orgID, userID string
	cmd := &cobra.Command{
		Use:   "retry ID [ID...]",
		Short: "Requeue failed, retryable jobs",
		Args:  cobra.RangeArgs(1, 100),
		RunE: func(cmd *cobra.Command, args []string) error {
			if strings.TrimSpace(orgID) == "" || strings.TrimSpace(userID) == "" {
				return errors.New("--org and --user are required")
			}
			return cc.withServices(cmd.Context(), func(ctx context.Context, rt *runtime) error {
				res, err := rt.services.Retry.BulkRetryAnalyses(ctx, args, strings.TrimSpace(userID), strings.TrimSpace(orgID))
				if err != nil {
					return err
				}
				return cc.render(cmd, res, func() { renderBulkRetry(cmd.OutOrStdout(), res) })
			})
		},
	}
	cmd.Flags().StringVar(&orgID, "org", "", "organization that owns the jobs")
	cmd.Flags().StringVar(&userID, "user", "", "operator id recorded with the retry")
	return cmd
}
