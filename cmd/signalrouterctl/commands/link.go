package commands

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
)

func linkCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "link",
		Short: "Inspect peer links",
	}

	cmd.AddCommand(linkListCmd())

	return cmd
}

func linkListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List all peer links",
		Args:  cobra.NoArgs,
		RunE: func(_ *cobra.Command, _ []string) error {
			var links []linkView
			if err := client.get(context.Background(), "/v1/links", &links); err != nil {
				return fmt.Errorf("list links: %w", err)
			}

			out, err := formatLinks(links, outputFormat)
			if err != nil {
				return fmt.Errorf("format links: %w", err)
			}
			fmt.Print(out)
			return nil
		},
	}
}
