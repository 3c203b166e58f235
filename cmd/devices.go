package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"
	"go.olrik.dev/devhub/internal/daemon"
	"go.olrik.dev/devhub/internal/device"
)

func NewDevicesCommand() *cobra.Command {
	devicesCmd := &cobra.Command{
		Use:     "devices",
		Aliases: []string{"ls", "list"},
		Short:   "List devices on every backend",
		Args:    cobra.NoArgs,
		Run: func(cmd *cobra.Command, args []string) {
			format, _ := cmd.Flags().GetString("format")
			runWithApp(func(ctx context.Context, app *daemon.App) error {
				app.Manager().Refresh(ctx)
				list := app.Manager().Devices().Get()

				switch format {
				case "text":
					writeDevices(os.Stdout, list, app.Manager().Selection().Get())
				case "json":
					return json.NewEncoder(os.Stdout).Encode(list)
				default:
					return fmt.Errorf("unknown format %q", format)
				}
				return nil
			})
		},
	}
	devicesCmd.Flags().StringP("format", "F", "text", "Format to use (text/json)")

	return devicesCmd
}

func NewSelectCommand() *cobra.Command {
	return &cobra.Command{
		Use:               "select <serial>",
		Short:             "Select a device and show it",
		Args:              cobra.ExactArgs(1),
		ValidArgsFunction: serialCompletionFunc,
		Run: func(cmd *cobra.Command, args []string) {
			runWithApp(func(ctx context.Context, app *daemon.App) error {
				app.Manager().Refresh(ctx)
				if err := report(app.Manager().SelectDevice(args[0])); err != nil {
					return err
				}
				if sel := app.Manager().Selection().Get(); sel != nil {
					writeDevices(os.Stdout, []device.Device{*sel}, sel)
				}
				return nil
			})
		},
	}
}

func NewDescribeCommand() *cobra.Command {
	return &cobra.Command{
		Use:               "describe <serial> [text...]",
		Aliases:           []string{"label"},
		Short:             "Set the description of a device, no text clears it",
		Args:              cobra.MinimumNArgs(1),
		ValidArgsFunction: serialCompletionFunc,
		Run: func(cmd *cobra.Command, args []string) {
			text := strings.Join(args[1:], " ")
			runWithApp(func(ctx context.Context, app *daemon.App) error {
				app.Manager().Refresh(ctx)
				if err := report(app.Manager().SelectDevice(args[0])); err != nil {
					return err
				}
				return report(app.Manager().UpdateCurrentDescription(text))
			})
		},
	}
}

// writeDevices prints list as a table, marking the selected device
func writeDevices(w io.Writer, list []device.Device, selected *device.Device) {
	if len(list) == 0 {
		fmt.Fprintln(w, "No devices found")
		return
	}

	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "\tSERIAL\tPLATFORM\tSTATUS\tMODEL\tVERSION\tAPI\tDESCRIPTION")
	for _, d := range list {
		marker := ""
		if selected != nil && selected.Serial == d.Serial {
			marker = "*"
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%s\t%s\t%s\n",
			marker, d.Serial, d.Platform, d.Status, d.Model, d.Version, d.APIVersion, d.Description)
	}
	tw.Flush()
}
