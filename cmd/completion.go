package cmd

import (
	"path/filepath"
	"slices"
	"strings"

	"github.com/spf13/cobra"
	"go.olrik.dev/devhub/internal/core"
	"go.olrik.dev/devhub/internal/db"
)

// completionStore opens the store without touching the bridges. Completion
// must stay fast, so devices are not discovered.
func completionStore() (*db.DB, bool) {
	cfg, err := core.Load(configPath)
	if err != nil {
		return nil, false
	}
	store, err := db.Open(filepath.Join(cfg.ConfigPath, core.DBFileName))
	if err != nil {
		return nil, false
	}
	return store, true
}

// historyCompletionFunc completes remembered ip:port addresses
func historyCompletionFunc(cmd *cobra.Command, args []string, toComplete string) ([]string, cobra.ShellCompDirective) {
	if len(args) > 0 {
		return nil, cobra.ShellCompDirectiveNoFileComp
	}
	store, ok := completionStore()
	if !ok {
		return nil, cobra.ShellCompDirectiveNoFileComp
	}
	defer store.Close()

	list, err := store.History()
	if err != nil {
		return nil, cobra.ShellCompDirectiveNoFileComp
	}
	var addrs []string
	for _, h := range list {
		if strings.HasPrefix(h.Address(), toComplete) {
			addrs = append(addrs, h.Address())
		}
	}
	return addrs, cobra.ShellCompDirectiveNoFileComp
}

// serialCompletionFunc completes serials that have a description or a
// history entry
func serialCompletionFunc(cmd *cobra.Command, args []string, toComplete string) ([]string, cobra.ShellCompDirective) {
	if len(args) > 0 {
		return nil, cobra.ShellCompDirectiveDefault
	}
	store, ok := completionStore()
	if !ok {
		return nil, cobra.ShellCompDirectiveNoFileComp
	}
	defer store.Close()

	var serials []string
	if descriptions, err := store.Descriptions(); err == nil {
		for serial := range descriptions {
			serials = append(serials, serial)
		}
	}
	if list, err := store.History(); err == nil {
		for _, h := range list {
			serials = append(serials, h.Address())
		}
	}
	slices.Sort(serials)
	serials = slices.Compact(serials)

	var out []string
	for _, s := range serials {
		if strings.HasPrefix(s, toComplete) {
			out = append(out, s)
		}
	}
	return out, cobra.ShellCompDirectiveNoFileComp
}
