package main

import (
	"fmt"
	"net/http"

	"github.com/spf13/cobra"
)

var (
	cleanupRetentionDays int

	txListCmd = &cobra.Command{
		Use:   "list",
		Short: "list transactions currently tracked by the daemon",
		RunE:  txList,
	}
	txArchivedCmd = &cobra.Command{
		Use:   "archived",
		Short: "list archived transactions",
		RunE:  txArchived,
	}
	txRefreshCmd = &cobra.Command{
		Use:   "refresh",
		Short: "force a deposit and confirmation check right now",
		Long: "this command lets you trigger an immediate scan for incoming " +
			"deposits and a confirmation update of the tracked transactions, " +
			"without waiting for the next poll",
		RunE: txRefresh,
	}
	txCleanupCmd = &cobra.Command{
		Use:   "cleanup",
		Short: "remove archived transactions older than the retention window",
		RunE:  txCleanup,
	}
	txCmd = &cobra.Command{
		Use:   "transaction",
		Short: "interact with covault tracked transactions",
		Long: "this command lets you inspect the transactions the daemon is " +
			"tracking for confirmations, both outgoing spends and incoming " +
			"deposits",
	}

	balanceCmd = &cobra.Command{
		Use:   "balance",
		Short: "show the wallet balance",
		RunE:  balance,
	}
	historyCmd = &cobra.Command{
		Use:   "history",
		Short: "show the completed spend history",
		RunE:  history,
	}
)

func init() {
	txCleanupCmd.Flags().IntVar(
		&cleanupRetentionDays, "retention-days", 30,
		"remove archived transactions first seen more than this many days ago",
	)

	txCmd.AddCommand(txListCmd, txArchivedCmd, txRefreshCmd, txCleanupCmd)
}

func txList(_ *cobra.Command, _ []string) error {
	reply, err := apiCall(http.MethodGet, "/v1/txs", nil)
	if err != nil {
		printErr(err)
		return nil
	}

	fmt.Println(reply)
	return nil
}

func txArchived(_ *cobra.Command, _ []string) error {
	reply, err := apiCall(http.MethodGet, "/v1/txs/archived", nil)
	if err != nil {
		printErr(err)
		return nil
	}

	fmt.Println(reply)
	return nil
}

func txRefresh(_ *cobra.Command, _ []string) error {
	if _, err := apiCall(http.MethodPost, "/v1/txs/refresh", nil); err != nil {
		printErr(err)
		return nil
	}

	fmt.Println("refresh done")
	return nil
}

func txCleanup(_ *cobra.Command, _ []string) error {
	reply, err := apiCall(http.MethodPost, "/v1/txs/cleanup", map[string]int{
		"retention_days": cleanupRetentionDays,
	})
	if err != nil {
		printErr(err)
		return nil
	}

	fmt.Println(reply)
	return nil
}

func balance(_ *cobra.Command, _ []string) error {
	reply, err := apiCall(http.MethodGet, "/v1/balance", nil)
	if err != nil {
		printErr(err)
		return nil
	}

	fmt.Println(reply)
	return nil
}

func history(_ *cobra.Command, _ []string) error {
	reply, err := apiCall(http.MethodGet, "/v1/history", nil)
	if err != nil {
		printErr(err)
		return nil
	}

	fmt.Println(reply)
	return nil
}
