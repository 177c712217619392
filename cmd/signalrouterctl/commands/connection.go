package commands

import (
	"context"
	"errors"
	"fmt"
	"strconv"

	"github.com/spf13/cobra"
)

var errDestRequired = errors.New("--dest flag is required")

func connectionCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "connection",
		Short: "Manage router connections",
	}

	cmd.AddCommand(connectionListCmd())
	cmd.AddCommand(connectionAddCmd())
	cmd.AddCommand(connectionRemoveCmd())

	return cmd
}

// --- connection list ---

func connectionListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List all connections",
		Args:  cobra.NoArgs,
		RunE: func(_ *cobra.Command, _ []string) error {
			var conns []connectionView
			if err := client.get(context.Background(), "/v1/connections", &conns); err != nil {
				return fmt.Errorf("list connections: %w", err)
			}

			out, err := formatConnections(conns, outputFormat)
			if err != nil {
				return fmt.Errorf("format connections: %w", err)
			}
			fmt.Print(out)
			return nil
		},
	}
}

// --- connection add ---

type addOutgoingRequest struct {
	Sources    []string `json:"sources"`
	Dest       string   `json:"dest"`
	DestType   string   `json:"dest_type"`
	DestLength int      `json:"dest_length"`
	Expression string   `json:"expression"`
}

func connectionAddCmd() *cobra.Command {
	var (
		sources    []string
		dest       string
		destType   string
		destLength int
		expression string
	)

	cmd := &cobra.Command{
		Use:   "add",
		Short: "Create an outgoing connection from one or more local sources to a destination",
		Args:  cobra.NoArgs,
		RunE: func(_ *cobra.Command, _ []string) error {
			if dest == "" {
				return errDestRequired
			}

			req := addOutgoingRequest{
				Sources:    sources,
				Dest:       dest,
				DestType:   destType,
				DestLength: destLength,
				Expression: expression,
			}

			var conn connectionView
			if err := client.post(context.Background(), "/v1/connections/outgoing", req, &conn); err != nil {
				return fmt.Errorf("add connection: %w", err)
			}

			out, err := formatConnection(conn, outputFormat)
			if err != nil {
				return fmt.Errorf("format connection: %w", err)
			}
			fmt.Print(out)
			return nil
		},
	}

	flags := cmd.Flags()
	flags.StringSliceVar(&sources, "source", nil, "local source signal path (repeatable)")
	flags.StringVar(&dest, "dest", "", "destination signal path, \"/device/signal\" (required)")
	flags.StringVar(&destType, "dest-type", "f", "destination OSC type tag (single character)")
	flags.IntVar(&destLength, "dest-length", 1, "destination vector length")
	flags.StringVar(&expression, "expr", "", "mapping expression (e.g. \"y=x\")")

	return cmd
}

// --- connection remove ---

func connectionRemoveCmd() *cobra.Command {
	var (
		local      string
		sourceRefs []string
		dest       string
	)

	cmd := &cobra.Command{
		Use:   "remove <incoming-id>",
		Short: "Remove a connection by incoming id, or by local/sources/dest for an outgoing connection",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(_ *cobra.Command, args []string) error {
			ctx := context.Background()

			if len(args) == 1 {
				id, err := strconv.ParseInt(args[0], 10, 32)
				if err != nil {
					return fmt.Errorf("parse id %q: %w", args[0], err)
				}
				if err := client.delete(ctx, "/v1/connections/incoming/"+strconv.FormatInt(id, 10)); err != nil {
					if errNotFound(err) {
						return fmt.Errorf("connection %d not found", id)
					}
					return fmt.Errorf("remove connection: %w", err)
				}
				fmt.Printf("Connection %d removed.\n", id)
				return nil
			}

			if local == "" || dest == "" {
				return errors.New("either an incoming id argument or both --local and --dest are required")
			}

			req := struct {
				Local      string   `json:"local"`
				SourceRefs []string `json:"source_refs"`
				Dest       string   `json:"dest"`
			}{Local: local, SourceRefs: sourceRefs, Dest: dest}

			if err := client.post(ctx, "/v1/connections/outgoing/remove", req, nil); err != nil {
				if errNotFound(err) {
					return fmt.Errorf("connection %s -> %s not found", local, dest)
				}
				return fmt.Errorf("remove connection: %w", err)
			}
			fmt.Printf("Connection %s -> %s removed.\n", local, dest)
			return nil
		},
	}

	flags := cmd.Flags()
	flags.StringVar(&local, "local", "", "anchoring local source signal path (outgoing connections)")
	flags.StringVar(&dest, "dest", "", "destination signal path (outgoing connections)")
	flags.StringSliceVar(&sourceRefs, "source-ref", nil, "additional source names, in order (outgoing connections)")

	return cmd
}
