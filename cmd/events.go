package cmd

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"
	"go.olrik.dev/devhub/internal/db"
)

func NewEventsCommand() *cobra.Command {
	eventsCmd := &cobra.Command{
		Use:   "events",
		Short: "Show recent connect, repair and disconnect events",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, args []string) {
			limit, _ := cmd.Flags().GetInt("limit")

			store := openStore()
			defer store.Close()

			events, err := store.GetRecentDeviceEvents(limit)
			if err != nil {
				slog.Error(fmt.Sprintf("Failed to read events: %v", err))
				os.Exit(1)
			}
			writeEvents(os.Stdout, events)
		},
	}
	eventsCmd.Flags().IntP("limit", "n", 20, "Number of events to show")

	return eventsCmd
}

func writeEvents(w io.Writer, events []db.DeviceEvent) {
	if len(events) == 0 {
		fmt.Fprintln(w, "No events recorded")
		return
	}

	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "TIME\tDEVICE\tEVENT\tDETAILS")
	for _, e := range events {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", e.Timestamp.Local().Format(time.DateTime), e.Serial, e.EventType, e.Details)
	}
	tw.Flush()
}
