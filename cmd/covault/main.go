package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/btcsuite/btcd/btcutil"
	"github.com/spf13/cobra"
)

var (
	version = "dev"
	commit  = "none"
	date    = "unknown"

	datadir   = btcutil.AppDataDir("covault-cli", false)
	statePath = filepath.Join(datadir, "state.json")

	initialState = map[string]string{
		"api_url": "http://localhost:18000",
	}

	rootCmd = &cobra.Command{
		Use:   "covault",
		Short: "CLI for covault daemon",
		Long: "This CLI lets you interact with a running covault daemon to " +
			"propose, sign and broadcast multisig spends",
		PersistentPreRun: func(_ *cobra.Command, _ []string) {
			if _, err := os.Stat(datadir); os.IsNotExist(err) {
				os.Mkdir(datadir, os.ModeDir|0755)
			}
		},
		Version: formatVersion(),
	}
)

func init() {
	rootCmd.AddCommand(configCmd, offerCmd, txCmd, balanceCmd, historyCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
