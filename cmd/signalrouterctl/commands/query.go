package commands

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
)

type sendQueryRequest struct {
	Signal string `json:"signal,omitempty"`
}

type sendQueryResponse struct {
	Queried int `json:"queried"`
}

func queryCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "query",
		Short: "Query destination values",
	}

	cmd.AddCommand(querySendCmd())

	return cmd
}

func querySendCmd() *cobra.Command {
	var signal string

	cmd := &cobra.Command{
		Use:   "send",
		Short: "Ask every connected destination to report its current value",
		Long:  "Sends a query-request to every OUTGOING connection's destination. With --signal, scopes the query to one local signal; otherwise queries every local signal.",
		Args:  cobra.NoArgs,
		RunE: func(_ *cobra.Command, _ []string) error {
			var resp sendQueryResponse
			req := sendQueryRequest{Signal: signal}
			if err := client.post(context.Background(), "/v1/query", req, &resp); err != nil {
				return fmt.Errorf("send query: %w", err)
			}
			fmt.Printf("Queried %d link(s).\n", resp.Queried)
			return nil
		},
	}

	cmd.Flags().StringVar(&signal, "signal", "", "local signal path to query (default: all local signals)")

	return cmd
}
