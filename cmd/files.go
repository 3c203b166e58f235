package cmd

import (
	"context"
	"fmt"
	"io"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"
	"go.olrik.dev/devhub/internal/daemon"
	"go.olrik.dev/devhub/internal/device"
)

func NewFilesCommand() *cobra.Command {
	return &cobra.Command{
		Use:               "files <serial> [path]",
		Aliases:           []string{"ls-files"},
		Short:             "List a folder on a device",
		Args:              cobra.RangeArgs(1, 2),
		ValidArgsFunction: serialCompletionFunc,
		Run: func(cmd *cobra.Command, args []string) {
			dir := "/"
			if len(args) == 2 {
				dir = args[1]
			}
			runWithApp(func(ctx context.Context, app *daemon.App) error {
				d, err := app.Device(ctx, args[0])
				if err != nil {
					return err
				}
				entries, err := d.ListFiles(ctx, dir)
				if err != nil {
					return fmt.Errorf("failed to list %s on %s: %w", dir, d.Serial, err)
				}
				writeFiles(os.Stdout, entries)
				return nil
			})
		},
	}
}

// writeFiles prints a listing. A listing that is a single error or tip
// entry prints its message instead.
func writeFiles(w io.Writer, entries []device.FileEntry) {
	if len(entries) == 1 && (entries[0].Type == device.Error || entries[0].Type == device.Tip) {
		fmt.Fprintf(w, "%s: %s\n", entries[0].Type, entries[0].Message)
		return
	}

	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	for _, e := range entries {
		name := e.Name
		if e.IsDir() {
			name += "/"
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", e.Permissions, e.Size, e.ModTime, name)
	}
	tw.Flush()
}
