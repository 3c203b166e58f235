package cmd

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"
	"go.olrik.dev/devhub/internal/core"
	"go.olrik.dev/devhub/internal/daemon"
	"go.olrik.dev/devhub/internal/keyring"
)

// sshUser is the user named on the command line, or the configured one
func sshUser(args []string) string {
	if len(args) == 1 {
		return args[0]
	}
	return core.Config.SSH.User
}

func NewPasswordCommand() *cobra.Command {
	passwordCmd := &cobra.Command{
		Use:     "password",
		Aliases: []string{"passwd", "pass"},
		Short:   "Manage the stored SSH repair password",
		Long: `Store or delete the password used to log in to devices over SSH when
network debugging has to be re-enabled. The password is stored securely in
the system keyring and is only used when the config file sets none.`,
	}

	// password set command
	setCmd := &cobra.Command{
		Use:   "set [user]",
		Short: "Store the SSH password for a user, the configured user by default",
		Args:  cobra.MaximumNArgs(1),
		Run: func(cmd *cobra.Command, args []string) {
			user := sshUser(args)

			password, err := keyring.PromptAndConfirmPassword(user)
			if err != nil {
				slog.Error(fmt.Sprintf("Failed to read password: %v", err))
				os.Exit(1)
			}

			if err := keyring.SetPassword(user, password); err != nil {
				slog.Error(fmt.Sprintf("Failed to store password: %v", err))
				os.Exit(1)
			}

			daemon.ConsoleLogger().Info(fmt.Sprintf("Password stored securely for '%s'", user))
		},
	}

	// password delete command
	deleteCmd := &cobra.Command{
		Use:     "delete [user]",
		Aliases: []string{"del", "remove", "rm"},
		Short:   "Delete the stored SSH password for a user",
		Args:    cobra.MaximumNArgs(1),
		Run: func(cmd *cobra.Command, args []string) {
			user := sshUser(args)

			if err := keyring.DeletePassword(user); err != nil {
				slog.Error(fmt.Sprintf("Failed to delete password: %v", err))
				os.Exit(1)
			}

			daemon.ConsoleLogger().Info(fmt.Sprintf("Password deleted for '%s'", user))
		},
	}

	// password status command
	statusCmd := &cobra.Command{
		Use:   "status [user]",
		Short: "Show whether a password is stored for a user",
		Args:  cobra.MaximumNArgs(1),
		Run: func(cmd *cobra.Command, args []string) {
			user := sshUser(args)
			if keyring.HasPassword(user) {
				fmt.Printf("A password is stored for '%s'\n", user)
				return
			}
			fmt.Printf("No password stored for '%s'\n", user)
		},
	}

	passwordCmd.AddCommand(setCmd, deleteCmd, statusCmd)
	return passwordCmd
}
