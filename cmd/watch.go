package cmd

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"time"

	"github.com/spf13/cobra"
	"go.olrik.dev/devhub/internal/core"
	"go.olrik.dev/devhub/internal/daemon"
	"go.olrik.dev/devhub/internal/device"
	"go.olrik.dev/devhub/internal/manager"
)

func NewWatchCommand() *cobra.Command {
	var historyLines int

	watchCmd := &cobra.Command{
		Use:   "watch",
		Short: "Keep discovering devices and print every change",
		Long: `Keep discovering devices and print the device list every time it changes.
The configuration file is reloaded when it changes, and devices are
rediscovered after the system wakes from sleep. Press Ctrl+C to exit.`,
		Args: cobra.NoArgs,
		Run: func(cmd *cobra.Command, args []string) {
			jsonOut, _ := cmd.Flags().GetBool("json")
			killServers, _ := cmd.Flags().GetBool("kill-servers")

			logs := daemon.NewLogBroadcaster(1000)
			daemon.SetupLogging(daemon.LevelForVerbosity(max(verbose, core.Config.Verbose, 1)), logs)

			app, err := daemon.New(core.Config, logs)
			if err != nil {
				slog.Error(err.Error())
				os.Exit(1)
			}

			ctx, cancel := context.WithCancel(context.Background())
			printed := make(chan struct{})
			go func() {
				defer close(printed)
				printChanges(ctx, os.Stdout, app.Manager(), jsonOut)
			}()

			app.Run(ctx)
			cancel()
			<-printed
			app.Shutdown(killServers)

			if historyLines > 0 {
				fmt.Fprintln(os.Stderr, "Recent log lines:")
				for _, line := range app.Logs().History(historyLines) {
					fmt.Fprint(os.Stderr, line)
				}
			}
		},
	}
	watchCmd.Flags().Bool("json", false, "Print one JSON line per change")
	watchCmd.Flags().Bool("kill-servers", false, "Kill the adb and hdc servers on exit")
	watchCmd.Flags().IntVar(&historyLines, "history", 0, "Print this many recent log lines on exit")

	return watchCmd
}

// printChanges writes the device list every time it or the selection
// changes, until ctx is done
func printChanges(ctx context.Context, w io.Writer, m *manager.Manager, jsonOut bool) {
	devices, cancelDevices := m.Devices().Subscribe()
	defer cancelDevices()
	selection, cancelSelection := m.Selection().Subscribe()
	defer cancelSelection()

	var list []device.Device
	var selected *device.Device

	for {
		select {
		case <-ctx.Done():
			return
		case list = <-devices:
		case selected = <-selection:
		}

		if jsonOut {
			var resp manager.Response
			resp.Infof("%d device(s)", len(list))
			resp.AddData(list)
			fmt.Fprintln(w, resp.ToJSON())
			continue
		}
		fmt.Fprintf(w, "\n%s\n", time.Now().Format(time.DateTime))
		writeDevices(w, list, selected)
	}
}
