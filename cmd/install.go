package cmd

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
	"go.olrik.dev/devhub/internal/daemon"
)

func NewInstallCommand() *cobra.Command {
	return &cobra.Command{
		Use:               "install <serial> <package-file>",
		Short:             "Install an .apk or .hap on a device",
		Args:              cobra.ExactArgs(2),
		ValidArgsFunction: serialCompletionFunc,
		Run: func(cmd *cobra.Command, args []string) {
			runWithApp(func(ctx context.Context, app *daemon.App) error {
				d, err := app.Device(ctx, args[0])
				if err != nil {
					return err
				}
				if err := d.Install(ctx, args[1]); err != nil {
					return fmt.Errorf("failed to install %s on %s: %w", args[1], d.Serial, err)
				}
				daemon.ConsoleLogger().Info(fmt.Sprintf("Installed %s on %s", args[1], d.Name()))
				return nil
			})
		},
	}
}

func NewRebootCommand() *cobra.Command {
	return &cobra.Command{
		Use:               "reboot <serial>",
		Short:             "Reboot a device",
		Args:              cobra.ExactArgs(1),
		ValidArgsFunction: serialCompletionFunc,
		Run: func(cmd *cobra.Command, args []string) {
			runWithApp(func(ctx context.Context, app *daemon.App) error {
				d, err := app.Device(ctx, args[0])
				if err != nil {
					return err
				}
				if err := d.Reboot(ctx); err != nil {
					return fmt.Errorf("failed to reboot %s: %w", d.Serial, err)
				}
				daemon.ConsoleLogger().Info(fmt.Sprintf("Rebooting %s", d.Name()))
				return nil
			})
		},
	}
}
