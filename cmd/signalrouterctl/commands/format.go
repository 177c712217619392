package commands

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"text/tabwriter"
)

const (
	formatJSON  = "json"
	formatTable = "table"
)

// errUnsupportedFormat is returned when the requested output format is not supported.
var errUnsupportedFormat = errors.New("unsupported output format")

// connectionView mirrors controlapi's ConnectionSummary JSON shape.
type connectionView struct {
	ID         int32    `json:"ID"`
	Direction  string   `json:"Direction"`
	Sources    []string `json:"Sources"`
	Dest       string   `json:"Dest"`
	Expression string   `json:"Expression"`
	Status     string   `json:"Status"`
	Scope      []string `json:"Scope"`
}

// linkView mirrors controlapi's LinkSummary JSON shape.
type linkView struct {
	RemoteName      string `json:"RemoteName"`
	RemoteHash      uint32 `json:"RemoteHash"`
	RemoteHost      string `json:"RemoteHost"`
	RemoteAdminAddr string `json:"RemoteAdminAddr"`
	RemoteDataAddr  string `json:"RemoteDataAddr"`
	SelfLink        bool   `json:"SelfLink"`
	HasAddresses    bool   `json:"HasAddresses"`
	ConnectionsIn   int    `json:"ConnectionsIn"`
	ConnectionsOut  int    `json:"ConnectionsOut"`
}

func formatConnections(conns []connectionView, format string) (string, error) {
	switch format {
	case formatJSON:
		return formatJSONValue(conns)
	case formatTable:
		return formatConnectionsTable(conns), nil
	default:
		return "", fmt.Errorf("%w: %q", errUnsupportedFormat, format)
	}
}

func formatConnection(conn connectionView, format string) (string, error) {
	switch format {
	case formatJSON:
		return formatJSONValue(conn)
	case formatTable:
		return formatConnectionsTable([]connectionView{conn}), nil
	default:
		return "", fmt.Errorf("%w: %q", errUnsupportedFormat, format)
	}
}

func formatLinks(links []linkView, format string) (string, error) {
	switch format {
	case formatJSON:
		return formatJSONValue(links)
	case formatTable:
		return formatLinksTable(links), nil
	default:
		return "", fmt.Errorf("%w: %q", errUnsupportedFormat, format)
	}
}

func formatJSONValue(v any) (string, error) {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return "", fmt.Errorf("marshal to JSON: %w", err)
	}
	return string(data), nil
}

func formatConnectionsTable(conns []connectionView) string {
	var buf strings.Builder
	w := tabwriter.NewWriter(&buf, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tDIRECTION\tSOURCES\tDEST\tEXPRESSION\tSTATUS\tSCOPE")

	for _, c := range conns {
		fmt.Fprintf(w, "%d\t%s\t%s\t%s\t%s\t%s\t%s\n",
			c.ID,
			c.Direction,
			strings.Join(c.Sources, ","),
			c.Dest,
			c.Expression,
			c.Status,
			strings.Join(c.Scope, ","),
		)
	}

	_ = w.Flush()
	return buf.String()
}

func formatLinksTable(links []linkView) string {
	var buf strings.Builder
	w := tabwriter.NewWriter(&buf, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "REMOTE\tHASH\tHOST\tDATA-ADDR\tSELF\tRESOLVED\tCONN-IN\tCONN-OUT")

	for _, l := range links {
		fmt.Fprintf(w, "%s\t%d\t%s\t%s\t%t\t%t\t%d\t%d\n",
			l.RemoteName,
			l.RemoteHash,
			l.RemoteHost,
			l.RemoteDataAddr,
			l.SelfLink,
			l.HasAddresses,
			l.ConnectionsIn,
			l.ConnectionsOut,
		)
	}

	_ = w.Flush()
	return buf.String()
}
