package commands

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
)

// linkEventView mirrors the control API's LinkEvent NDJSON shape.
type linkEventView struct {
	Remote string `json:"Remote"`
	Up     bool   `json:"Up"`
}

func monitorCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "monitor",
		Short: "Stream link up/down events",
		Long:  "Connects to the signalrouter daemon and streams link events until interrupted (Ctrl+C).",
		Args:  cobra.NoArgs,
		RunE: func(_ *cobra.Command, _ []string) error {
			ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			req, err := http.NewRequestWithContext(ctx, http.MethodGet, client.baseURL+"/v1/links/watch", nil)
			if err != nil {
				return fmt.Errorf("build request: %w", err)
			}

			resp, err := client.http.Do(req)
			if err != nil {
				return fmt.Errorf("watch link events: %w", err)
			}
			defer resp.Body.Close()

			if resp.StatusCode >= 300 {
				return fmt.Errorf("watch link events: status %s", resp.Status)
			}

			dec := json.NewDecoder(resp.Body)
			for {
				var ev linkEventView
				if err := dec.Decode(&ev); err != nil {
					if errors.Is(err, context.Canceled) {
						return nil
					}
					if ctx.Err() != nil {
						return nil
					}
					return fmt.Errorf("decode event: %w", err)
				}
				fmt.Println(formatLinkEvent(ev))
			}
		},
	}
}

func formatLinkEvent(ev linkEventView) string {
	state := "DOWN"
	if ev.Up {
		state = "UP"
	}
	return fmt.Sprintf("link=%s state=%s", ev.Remote, state)
}
