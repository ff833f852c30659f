package main

import (
	"fmt"
	"net/http"

	"github.com/spf13/cobra"
)

var (
	draftDestination string
	draftAmount      int64
	draftFeeRate     string
	draftStrategy    string
	signFingerprint  string

	offerDraftCmd = &cobra.Command{
		Use:   "draft",
		Short: "prepare a spend proposal",
		Long: "this command lets you prepare a spend by selecting coins for the " +
			"given destination and amount, without committing to it yet",
		RunE: offerDraft,
	}
	offerCreateCmd = &cobra.Command{
		Use:   "create",
		Short: "turn the current draft into an open offer",
		Long: "this command lets you commit the current draft and open it for " +
			"signature collection",
		RunE: offerCreate,
	}
	offerListCmd = &cobra.Command{
		Use:   "list",
		Short: "list all open offers",
		RunE:  offerList,
	}
	offerShowCmd = &cobra.Command{
		Use:   "show",
		Short: "show the details of an offer",
		Args:  cobra.ExactArgs(1),
		RunE:  offerShow,
	}
	offerSignCmd = &cobra.Command{
		Use:   "sign",
		Short: "add a cosigner signature to an offer",
		Long: "this command lets you collect the signature of the cosigner " +
			"identified by the given fingerprint for the given offer",
		Args: cobra.ExactArgs(1),
		RunE: offerSign,
	}
	offerBroadcastCmd = &cobra.Command{
		Use:   "broadcast",
		Short: "publish an offer that reached the signature quorum",
		Args:  cobra.ExactArgs(1),
		RunE:  offerBroadcast,
	}
	offerCancelCmd = &cobra.Command{
		Use:   "cancel",
		Short: "discard an open offer and release its coins",
		Args:  cobra.ExactArgs(1),
		RunE:  offerCancel,
	}
	offerCmd = &cobra.Command{
		Use:   "offer",
		Short: "interact with covault spend offers",
		Long: "this command lets you manage the lifecycle of multisig spends: " +
			"draft them, collect cosigner signatures and broadcast them once the " +
			"quorum is reached",
	}
)

func init() {
	offerDraftCmd.Flags().StringVar(
		&draftDestination, "to", "", "destination address of the spend",
	)
	offerDraftCmd.Flags().Int64Var(
		&draftAmount, "amount", 0, "amount to send in sats",
	)
	offerDraftCmd.Flags().StringVar(
		&draftFeeRate, "fee-rate", "", "fee rate in sats/vbyte, estimated if omitted",
	)
	offerDraftCmd.Flags().StringVar(
		&draftStrategy, "strategy", "",
		"coin selection strategy: largest_first, smallest_first or near_exact",
	)
	offerSignCmd.Flags().StringVar(
		&signFingerprint, "fingerprint", "", "fingerprint of the signing cosigner",
	)

	offerCmd.AddCommand(
		offerDraftCmd, offerCreateCmd, offerListCmd, offerShowCmd,
		offerSignCmd, offerBroadcastCmd, offerCancelCmd,
	)
}

func offerDraft(_ *cobra.Command, _ []string) error {
	reply, err := apiCall(http.MethodPost, "/v1/draft", map[string]interface{}{
		"destination": draftDestination,
		"amount":      draftAmount,
		"fee_rate":    draftFeeRate,
		"strategy":    draftStrategy,
	})
	if err != nil {
		printErr(err)
		return nil
	}

	fmt.Println(reply)
	return nil
}

func offerCreate(_ *cobra.Command, _ []string) error {
	reply, err := apiCall(http.MethodPost, "/v1/offers", nil)
	if err != nil {
		printErr(err)
		return nil
	}

	fmt.Println(reply)
	return nil
}

func offerList(_ *cobra.Command, _ []string) error {
	reply, err := apiCall(http.MethodGet, "/v1/offers", nil)
	if err != nil {
		printErr(err)
		return nil
	}

	fmt.Println(reply)
	return nil
}

func offerShow(_ *cobra.Command, args []string) error {
	reply, err := apiCall(http.MethodGet, "/v1/offers/"+args[0], nil)
	if err != nil {
		printErr(err)
		return nil
	}

	fmt.Println(reply)
	return nil
}

func offerSign(_ *cobra.Command, args []string) error {
	reply, err := apiCall(
		http.MethodPost, "/v1/offers/"+args[0]+"/sign",
		map[string]string{"fingerprint": signFingerprint},
	)
	if err != nil {
		printErr(err)
		return nil
	}

	fmt.Println(reply)
	return nil
}

func offerBroadcast(_ *cobra.Command, args []string) error {
	reply, err := apiCall(http.MethodPost, "/v1/offers/"+args[0]+"/broadcast", nil)
	if err != nil {
		printErr(err)
		return nil
	}

	fmt.Println(reply)
	return nil
}

func offerCancel(_ *cobra.Command, args []string) error {
	if _, err := apiCall(http.MethodDelete, "/v1/offers/"+args[0], nil); err != nil {
		printErr(err)
		return nil
	}

	fmt.Println("offer cancelled")
	return nil
}
