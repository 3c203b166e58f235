package cmd

import (
	"context"
	"errors"

	"github.com/spf13/cobra"
	"go.olrik.dev/devhub/internal/daemon"
	"go.olrik.dev/devhub/internal/device"
)

func NewConnectCommand() *cobra.Command {
	connectCmd := &cobra.Command{
		Use:     "connect <ip[:port]>",
		Aliases: []string{"c"},
		Short:   "Connect a network device",
		Long: `Connect a network device over TCP. When the bridge cannot connect, the
device's debug daemon is re-enabled over SSH and the connect is tried once
more. The port defaults to the configured port of the platform.`,
		Args:              cobra.ExactArgs(1),
		ValidArgsFunction: historyCompletionFunc,
		Run: func(cmd *cobra.Command, args []string) {
			name, _ := cmd.Flags().GetString("platform")
			runWithApp(func(ctx context.Context, app *daemon.App) error {
				p, err := device.ParsePlatform(name)
				if err != nil {
					return err
				}
				ip, port, err := parseAddress(args[0], app.DefaultPort(p))
				if err != nil {
					return err
				}
				return report(app.Manager().Connect(ctx, p, ip, port))
			})
		},
	}
	connectCmd.Flags().StringP("platform", "p", "android", "Device platform (android/harmony)")

	return connectCmd
}

func NewDisconnectCommand() *cobra.Command {
	disconnectCmd := &cobra.Command{
		Use:     "disconnect [serial]",
		Aliases: []string{"d"},
		Short:   "Disconnect a network device",
		Args: func(cmd *cobra.Command, args []string) error {
			all, _ := cmd.Flags().GetBool("all")
			if all == (len(args) == 1) {
				return errors.New("give either a serial or --all")
			}
			return nil
		},
		ValidArgsFunction: serialCompletionFunc,
		Run: func(cmd *cobra.Command, args []string) {
			all, _ := cmd.Flags().GetBool("all")
			runWithApp(func(ctx context.Context, app *daemon.App) error {
				if all {
					return report(app.Manager().DisconnectAll(ctx))
				}
				app.Manager().Refresh(ctx)
				return report(app.Manager().Disconnect(ctx, args[0]))
			})
		},
	}
	disconnectCmd.Flags().BoolP("all", "a", false, "Disconnect every network device")

	return disconnectCmd
}
