package main

import (
	"context"
	"errors"
	"strings"

	"github.com/spf13/cobra"
)

func newDeliveriesCmd(cc *commandContext) *cobra.Command {
	deliveries := &cobra.Command{
		Use:   "deliveries",
		Short: "Inspect webhook deliveries",
	}
	deliveries.AddCommand(newDeliveriesListCmd(cc))
	return deliveries
}

func newDeliveriesListCmd(cc *commandContext) *cobra.Command {
	var (
		webhookID, orgID string
		limit, offset    int
	)
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List deliveries for a webhook, newest first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if strings.TrimSpace(webhookID) == "" || strings.TrimSpace(orgID) == "" {
				return errors.New("--webhook and --org are required")
			}
			return cc.withServices(cmd.Context(), func(ctx context.Context, rt *runtime) error {
				list, err := rt.services.Deliveries.ListDeliveries(ctx, strings.TrimSpace(orgID), strings.TrimSpace(webhookID), limit, offset)
				if err != nil {
					return err
				}
				return cc.render(cmd, list, func() { renderDeliveries(cmd.OutOrStdout(), list) })
			})
		},
	}
	cmd.Flags().StringVar(&webhookID, "webhook", "", "webhook id")
	cmd.Flags().StringVar(&orgID, "org", "", "organization that owns the webhook")
	cmd.Flags().IntVar(&limit, "limit", 50, "maximum rows to return")
	cmd.Flags().IntVar(&offset, "offset", 0, "rows to skip")
	return cmd
}
