package cmd

import (
	"context"
	"errors"
	"fmt"

	"github.com/spf13/cobra"
	"go.olrik.dev/devhub/internal/daemon"
	"go.olrik.dev/devhub/internal/mirror"
)

func NewMirrorCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "mirror <serial> [-- tool args...]",
		Short: "Mirror the screen of a device",
		Long: `Mirror the screen of a device with the configured mirroring tool.
Arguments after -- are passed to the tool. Press Ctrl+C to stop.`,
		Args:              cobra.MinimumNArgs(1),
		ValidArgsFunction: serialCompletionFunc,
		Run: func(cmd *cobra.Command, args []string) {
			runWithApp(func(ctx context.Context, app *daemon.App) error {
				d, err := app.Device(ctx, args[0])
				if err != nil {
					return err
				}
				session, err := app.Mirrors().Start(ctx, d, mirror.Options{
					ExtraArgs: args[1:],
					OnLine: func(serial, line string) {
						fmt.Println(line)
					},
				})
				if err != nil {
					return err
				}

				daemon.ConsoleLogger().Info(fmt.Sprintf("Mirroring %s (PID %d)", d.Name(), session.Pid))
				if err := session.Wait(); err != nil && !errors.Is(err, context.Canceled) {
					return fmt.Errorf("mirroring %s ended: %w", d.Serial, err)
				}
				return nil
			})
		},
	}
}
