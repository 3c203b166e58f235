package cmd

import (
	"context"
	"fmt"
	"io"
	"maps"
	"os"
	"slices"
	"text/tabwriter"

	"github.com/spf13/cobra"
	"go.olrik.dev/devhub/internal/daemon"
	"go.olrik.dev/devhub/internal/device"
)

func NewProcessesCommand() *cobra.Command {
	psCmd := &cobra.Command{
		Use:               "ps <serial>",
		Short:             "List processes on a device",
		Args:              cobra.ExactArgs(1),
		ValidArgsFunction: serialCompletionFunc,
		Run: func(cmd *cobra.Command, args []string) {
			verboseList, _ := cmd.Flags().GetBool("long")
			runWithApp(func(ctx context.Context, app *daemon.App) error {
				d, err := app.Device(ctx, args[0])
				if err != nil {
					return err
				}
				procs, err := d.Processes(ctx, verboseList)
				if err != nil {
					return fmt.Errorf("failed to list processes on %s: %w", d.Serial, err)
				}
				writeProcesses(os.Stdout, procs, verboseList)
				return nil
			})
		},
	}
	psCmd.Flags().BoolP("long", "l", false, "Include ABI and process attributes")

	return psCmd
}

func NewForceStopCommand() *cobra.Command {
	return &cobra.Command{
		Use:               "force-stop <serial> <package>",
		Aliases:           []string{"kill"},
		Short:             "Force stop an application",
		Args:              cobra.ExactArgs(2),
		ValidArgsFunction: serialCompletionFunc,
		Run: func(cmd *cobra.Command, args []string) {
			runWithApp(func(ctx context.Context, app *daemon.App) error {
				d, err := app.Device(ctx, args[0])
				if err != nil {
					return err
				}
				if err := d.ForceStop(ctx, args[1]); err != nil {
					return fmt.Errorf("failed to stop %s on %s: %w", args[1], d.Serial, err)
				}
				daemon.ConsoleLogger().Info(fmt.Sprintf("Stopped %s on %s", args[1], d.Name()))
				return nil
			})
		},
	}
}

func writeProcesses(w io.Writer, procs []device.Process, long bool) {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	if long {
		fmt.Fprintln(tw, "USER\tUID\tPID\tNAME\tPACKAGE\tABI\tATTRIBUTES")
	} else {
		fmt.Fprintln(tw, "USER\tUID\tPID\tNAME\tPACKAGE")
	}
	for _, p := range procs {
		if !long {
			fmt.Fprintf(tw, "%s\t%d\t%d\t%s\t%s\n", p.User(), p.UID(), p.PID(), p.ProcessName(), p.PackageName())
			continue
		}
		fmt.Fprintf(tw, "%s\t%d\t%d\t%s\t%s\t%s\t%s\n",
			p.User(), p.UID(), p.PID(), p.ProcessName(), p.PackageName(), p.ABI(), formatAttributes(p.Attributes()))
	}
	tw.Flush()
}

// formatAttributes renders attrs as sorted key=value pairs
func formatAttributes(attrs map[string]string) string {
	var out []byte
	for i, k := range slices.Sorted(maps.Keys(attrs)) {
		if i > 0 {
			out = append(out, ' ')
		}
		out = fmt.Appendf(out, "%s=%s", k, attrs[k])
	}
	return string(out)
}
