package cmd

import (
	"os"
	"path/filepath"

	"github.com/spf13/cobra"
	"go.olrik.dev/devhub/internal/core"
	"go.olrik.dev/devhub/internal/daemon"
)

var (
	configPath string
	verbose    int
)

func NewRootCommand() *cobra.Command {
	homeDir, _ := os.UserHomeDir()

	rootCmd := &cobra.Command{
		Use:   "devhub",
		Short: "devhub - Android and OpenHarmony device manager",
		Long: `devhub discovers devices on adb and hdc, connects to network devices
(re-enabling network debugging over SSH when needed) and runs file, process
and mirroring commands against them.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := core.Load(configPath)
			if err != nil {
				return err
			}
			core.Config = cfg
			daemon.SetupLogging(daemon.LevelForVerbosity(max(verbose, cfg.Verbose)), nil)
			return nil
		},
	}
	rootCmd.PersistentFlags().StringVar(
		&configPath, "config-path", filepath.Join(homeDir, core.BaseDirName),
		"config path",
	)
	rootCmd.PersistentFlags().CountVarP(&verbose, "verbose", "v", "more output, repeat for even more")

	rootCmd.AddCommand(
		NewDevicesCommand(),
		NewSelectCommand(),
		NewDescribeCommand(),
		NewConnectCommand(),
		NewDisconnectCommand(),
		NewFilesCommand(),
		NewProcessesCommand(),
		NewForceStopCommand(),
		NewRebootCommand(),
		NewInstallCommand(),
		NewMirrorCommand(),
		NewWatchCommand(),
		NewHistoryCommand(),
		NewEventsCommand(),
		NewPasswordCommand(),
		NewVersionCommand(),
	)

	return rootCmd
}
