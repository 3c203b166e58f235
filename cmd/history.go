package cmd

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"
	"go.olrik.dev/devhub/internal/core"
	"go.olrik.dev/devhub/internal/daemon"
	"go.olrik.dev/devhub/internal/db"
	"go.olrik.dev/devhub/internal/device"
)

// openStore opens the SQLite store of the loaded configuration or exits
func openStore() *db.DB {
	store, err := db.Open(filepath.Join(core.Config.ConfigPath, core.DBFileName))
	if err != nil {
		slog.Error(fmt.Sprintf("Failed to open store: %v", err))
		os.Exit(1)
	}
	return store
}

func NewHistoryCommand() *cobra.Command {
	historyCmd := &cobra.Command{
		Use:     "history",
		Aliases: []string{"hist"},
		Short:   "Show and manage remembered network devices",
		Args:    cobra.NoArgs,
		Run: func(cmd *cobra.Command, args []string) {
			store := openStore()
			defer store.Close()

			list, err := store.History()
			if err != nil {
				slog.Error(fmt.Sprintf("Failed to read history: %v", err))
				os.Exit(1)
			}
			writeHistory(os.Stdout, list)
		},
	}

	// history tag/untag/rm commands
	historyCmd.AddCommand(
		historyEntryCommand("tag <ip:port>", "Pin an entry to the top of the history", func(store *db.DB, ip string, port int) error {
			return store.SetTagged(ip, port, true)
		}),
		historyEntryCommand("untag <ip:port>", "Unpin an entry", func(store *db.DB, ip string, port int) error {
			return store.SetTagged(ip, port, false)
		}),
		historyEntryCommand("rm <ip:port>", "Forget an entry", func(store *db.DB, ip string, port int) error {
			return store.RemoveHistory(ip, port)
		}),
	)

	return historyCmd
}

func historyEntryCommand(use, short string, fn func(store *db.DB, ip string, port int) error) *cobra.Command {
	return &cobra.Command{
		Use:               use,
		Short:             short,
		Args:              cobra.ExactArgs(1),
		ValidArgsFunction: historyCompletionFunc,
		Run: func(cmd *cobra.Command, args []string) {
			ip, port, err := parseAddress(args[0], core.Config.ADB.Port)
			if err != nil {
				slog.Error(err.Error())
				os.Exit(1)
			}

			store := openStore()
			err = fn(store, ip, port)
			store.Close()
			if err != nil {
				slog.Error(err.Error())
				os.Exit(1)
			}
			daemon.ConsoleLogger().Info(fmt.Sprintf("History updated for %s:%d", ip, port))
		},
	}
}

func writeHistory(w io.Writer, list []device.HistoryDevice) {
	if len(list) == 0 {
		fmt.Fprintln(w, "No connection history")
		return
	}

	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "\tADDRESS\tLAST CONNECTED")
	for _, h := range list {
		marker := ""
		if h.Tagged {
			marker = "*"
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\n", marker, h.Address(), time.UnixMilli(h.TimeMs).Format(time.DateTime))
	}
	tw.Flush()
}
